package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Tiliavir/ttt-anomalies/internal/anomaly"
)

var commentAuthor string

var commentCmd = &cobra.Command{
	Use:   "comment <user> <date> <type> <message>",
	Short: "Add a comment to an anomaly",
	Args:  cobra.MinimumNArgs(4),
	RunE:  runComment,
}

func init() {
	commentCmd.Flags().StringVar(&commentAuthor, "author", "", "Comment author (default: the configured default user)")
}

func runComment(cmd *cobra.Command, args []string) error {
	key, err := anomalyArgs(args[:3])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	message := strings.TrimSpace(strings.Join(args[3:], " "))
	if message == "" {
		fmt.Fprintln(os.Stderr, "comment message must not be empty")
		os.Exit(1)
	}

	s := mustScan(cmd.Context())
	defer s.Close()

	author := commentAuthor
	if author == "" {
		author = s.cfg.DefaultUser
	}
	c, err := s.engine.AddAnomalyComment(key.UserID, key.Date, key.Type, author, message)
	if err != nil {
		if errors.Is(err, anomaly.ErrNotFound) {
			fmt.Fprintf(os.Stderr, "No anomaly %s.\n", key)
			os.Exit(1)
		}
		fail(err)
	}
	if err := s.persist(cmd.Context()); err != nil {
		fail(err)
	}

	fmt.Printf("Comment %s added to %s.\n", c.ID, key)
	return nil
}
