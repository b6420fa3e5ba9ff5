package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/Tiliavir/ttt-anomalies/internal/model"
)

var (
	reportFormat string
	reportStatus string
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Show anomaly counts per user and type",
	Args:  cobra.NoArgs,
	RunE:  runReport,
}

func init() {
	reportCmd.Flags().StringVar(&reportFormat, "format", "md", "Output format: md, csv, json")
	reportCmd.Flags().StringVar(&reportStatus, "status", "", "Only count anomalies with this status")
}

// userCounts is one report row.
type userCounts struct {
	UserID string                    `json:"user_id"`
	Counts map[model.AnomalyType]int `json:"counts"`
	Total  int                       `json:"total"`
}

func countAnomalies(anomalies []model.Anomaly) []userCounts {
	byUser := map[string]*userCounts{}
	for _, a := range anomalies {
		row, ok := byUser[a.UserID]
		if !ok {
			row = &userCounts{UserID: a.UserID, Counts: map[model.AnomalyType]int{}}
			byUser[a.UserID] = row
		}
		row.Counts[a.Type]++
		row.Total++
	}
	rows := make([]userCounts, 0, len(byUser))
	for _, r := range byUser {
		rows = append(rows, *r)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].UserID < rows[j].UserID })
	return rows
}

func runReport(cmd *cobra.Command, args []string) error {
	var filter anomalyFilter
	if reportStatus != "" {
		st, err := model.ParseAnomalyStatus(reportStatus)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		filter.status = st
	}

	s := mustScan(cmd.Context())
	defer s.Close()

	if err := writeReport(os.Stdout, reportFormat, countAnomalies(filter.apply(s.engine.Anomalies()))); err != nil {
		fail(err)
	}
	return nil
}

func writeReport(w io.Writer, format string, rows []userCounts) error {
	grand := 0
	for _, r := range rows {
		grand += r.Total
	}

	switch format {
	case "csv":
		fmt.Fprint(w, "user_id")
		for _, t := range model.AnomalyTypes {
			fmt.Fprintf(w, ",%s", t.Slug())
		}
		fmt.Fprintln(w, ",total")
		for _, r := range rows {
			fmt.Fprint(w, csvEscape(r.UserID))
			for _, t := range model.AnomalyTypes {
				fmt.Fprintf(w, ",%d", r.Counts[t])
			}
			fmt.Fprintf(w, ",%d\n", r.Total)
		}
	case "json":
		out := struct {
			Users []userCounts `json:"users"`
			Total int          `json:"total"`
		}{Users: rows, Total: grand}
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return fmt.Errorf("error encoding JSON: %w", err)
		}
		fmt.Fprintln(w, string(data))
	default: // md
		fmt.Fprintf(w, "%-14s", "User")
		for _, t := range model.AnomalyTypes {
			fmt.Fprintf(w, "%20s", t.Slug())
		}
		fmt.Fprintf(w, "%8s\n", "Total")
		fmt.Fprintln(w, "--------------------------------------------------------------------------------------------------------------------------")
		for _, r := range rows {
			fmt.Fprintf(w, "%-14s", r.UserID)
			for _, t := range model.AnomalyTypes {
				fmt.Fprintf(w, "%20d", r.Counts[t])
			}
			fmt.Fprintf(w, "%8d\n", r.Total)
		}
		fmt.Fprintln(w, "--------------------------------------------------------------------------------------------------------------------------")
		fmt.Fprintf(w, "%-14s%108d\n", "Total", grand)
	}
	return nil
}
