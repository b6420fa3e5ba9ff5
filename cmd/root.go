package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "tta",
	Short: "Time tracking anomaly detection for ttt data",
	Long: `tta scans the JSON day files written by ttt (~/.ttt/) for missing
entries, under-performance, excess work and forgotten timers, and keeps track
of how each finding was handled.`,
	SilenceUsage: true,
}

// Execute is the entry point called from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(muteCmd)
	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(reopenCmd)
	rootCmd.AddCommand(commentCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(remoteCmd)
}
