package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Tiliavir/ttt-anomalies/internal/anomaly"
	"github.com/Tiliavir/ttt-anomalies/internal/model"
	"github.com/Tiliavir/ttt-anomalies/internal/timecalc"
)

var (
	muteCmd    = dispositionCmd("mute", "Mute an anomaly; it stays listed under --all", model.StatusMuted)
	resolveCmd = dispositionCmd("resolve", "Mark an anomaly as resolved", model.StatusResolved)
	reopenCmd  = dispositionCmd("reopen", "Set a muted or resolved anomaly back to open", model.StatusOpen)
)

func dispositionCmd(use, short string, status model.AnomalyStatus) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <user> <date> <type>",
		Short: short,
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDisposition(cmd, args, status)
		},
	}
}

// anomalyArgs parses "<user> <date> <type>".
func anomalyArgs(args []string) (model.AnomalyKey, error) {
	t, err := model.ParseAnomalyType(args[2])
	if err != nil {
		return model.AnomalyKey{}, err
	}
	date := timecalc.TrimDate(args[1])
	if _, err := timecalc.ParseDate(date, nil); err != nil {
		return model.AnomalyKey{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", args[1])
	}
	return model.AnomalyKey{UserID: args[0], Date: date, Type: t}, nil
}

func runDisposition(cmd *cobra.Command, args []string, status model.AnomalyStatus) error {
	key, err := anomalyArgs(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	s := mustScan(cmd.Context())
	defer s.Close()

	if err := s.engine.UpdateAnomalyStatus(key.UserID, key.Date, key.Type, status); err != nil {
		if errors.Is(err, anomaly.ErrNotFound) {
			fmt.Fprintf(os.Stderr, "No anomaly %s.\n", key)
			os.Exit(1)
		}
		fail(err)
	}
	if err := s.persist(cmd.Context()); err != nil {
		fail(err)
	}

	fmt.Printf("%s %s on %s: %s\n", key.UserID, key.Type.Slug(), key.Date, status)
	return nil
}
