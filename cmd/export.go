package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Tiliavir/ttt-anomalies/internal/model"
	"github.com/Tiliavir/ttt-anomalies/internal/timecalc"
)

var exportFormat string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export all anomalies to stdout",
	Args:  cobra.NoArgs,
	RunE:  runExport,
}

func init() {
	exportCmd.Flags().StringVar(&exportFormat, "format", "csv", "Output format: csv, json, md")
}

func runExport(cmd *cobra.Command, args []string) error {
	switch exportFormat {
	case "csv", "json", "md":
	default:
		fmt.Fprintf(os.Stderr, "unknown format %q (want csv, json or md)\n", exportFormat)
		os.Exit(1)
	}

	s := mustScan(cmd.Context())
	defer s.Close()

	if err := writeExport(os.Stdout, exportFormat, s.engine.Anomalies()); err != nil {
		fail(err)
	}
	return nil
}

func writeExport(w io.Writer, format string, anomalies []model.Anomaly) error {
	switch format {
	case "json":
		if anomalies == nil {
			anomalies = []model.Anomaly{}
		}
		data, err := json.MarshalIndent(anomalies, "", "  ")
		if err != nil {
			return fmt.Errorf("error encoding JSON: %w", err)
		}
		fmt.Fprintln(w, string(data))
	case "md":
		printMarkdown(w, anomalies)
	default:
		printCSV(w, anomalies)
	}
	return nil
}

func printCSV(w io.Writer, anomalies []model.Anomaly) {
	fmt.Fprintln(w, "id,user_id,date,type,status,tracked_hours,target_hours,has_shoot,comments")
	for _, a := range anomalies {
		fmt.Fprintf(w, "%s,%s,%s,%s,%s,%.2f,%.2f,%t,%s\n",
			csvEscape(a.Key().String()),
			csvEscape(a.UserID),
			a.Date,
			a.Type,
			a.Status,
			a.Details.TrackedHours,
			a.Details.TargetHours,
			a.Details.HasShoot,
			csvEscape(joinComments(a.Comments)),
		)
	}
}

func printMarkdown(w io.Writer, anomalies []model.Anomaly) {
	fmt.Fprintln(w, "| Date | User | Type | Status | Tracked | Target | Comments |")
	fmt.Fprintln(w, "|------|------|------|--------|--------:|-------:|----------|")
	for _, a := range anomalies {
		fmt.Fprintf(w, "| %s | %s | %s | %s | %s | %s | %s |\n",
			a.Date,
			mdEscape(a.UserID),
			a.Type.Slug(),
			a.Status,
			timecalc.FormatHours(a.Details.TrackedHours),
			timecalc.FormatHours(a.Details.TargetHours),
			mdEscape(joinComments(a.Comments)),
		)
	}
}

// joinComments renders a thread as "author: message" pairs separated by "; ".
func joinComments(comments []model.AnomalyComment) string {
	parts := make([]string, len(comments))
	for i, c := range comments {
		parts[i] = c.UserID + ": " + c.Message
	}
	return strings.Join(parts, "; ")
}

// csvEscape wraps a field in quotes if it contains a comma, quote, or newline.
func csvEscape(s string) string {
	if !strings.ContainsAny(s, ",\"\n\r") {
		return s
	}
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func mdEscape(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ").Replace(s)
}
