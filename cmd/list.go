package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Tiliavir/ttt-anomalies/internal/model"
)

var (
	listUser   string
	listType   string
	listStatus string
	listAll    bool
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Scan for anomalies and list them",
	Long: `Scans the evaluation window, stores the result and lists the anomalies.
Only open anomalies are shown unless --status or --all is given.`,
	Args: cobra.NoArgs,
	RunE: runList,
}

func init() {
	listCmd.Flags().StringVar(&listUser, "user", "", "Only anomalies of this user")
	listCmd.Flags().StringVar(&listType, "type", "", "Only anomalies of this type, e.g. missing-entry")
	listCmd.Flags().StringVar(&listStatus, "status", "", "Only anomalies with this status: open, muted, resolved")
	listCmd.Flags().BoolVar(&listAll, "all", false, "Show anomalies of every status")
}

// anomalyFilter selects anomalies for display. Zero fields match everything.
type anomalyFilter struct {
	user   string
	typ    model.AnomalyType
	status model.AnomalyStatus
}

func (f anomalyFilter) apply(anomalies []model.Anomaly) []model.Anomaly {
	var out []model.Anomaly
	for _, a := range anomalies {
		if f.user != "" && a.UserID != f.user {
			continue
		}
		if f.typ != "" && a.Type != f.typ {
			continue
		}
		if f.status != "" && a.Status != f.status {
			continue
		}
		out = append(out, a)
	}
	return out
}

func listFilter() (anomalyFilter, error) {
	f := anomalyFilter{user: listUser}
	if listType != "" {
		t, err := model.ParseAnomalyType(listType)
		if err != nil {
			return f, err
		}
		f.typ = t
	}
	switch {
	case listStatus != "":
		st, err := model.ParseAnomalyStatus(listStatus)
		if err != nil {
			return f, err
		}
		f.status = st
	case !listAll:
		f.status = model.StatusOpen
	}
	return f, nil
}

func runList(cmd *cobra.Command, args []string) error {
	filter, err := listFilter()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	s := mustScan(cmd.Context())
	defer s.Close()

	all := s.engine.Anomalies()
	p := painter{color: colorOutput()}
	printAnomalies(os.Stdout, filter.apply(all), p)
	printSummary(os.Stdout, all, p)
	return nil
}
