package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Tiliavir/ttt-anomalies/internal/config"
	"github.com/Tiliavir/ttt-anomalies/internal/remote"
	"github.com/Tiliavir/ttt-anomalies/internal/storage"
)

var remoteCmd = &cobra.Command{
	Use:   "remote",
	Short: "Mirror anomaly state to the remote store",
}

var remoteLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Authenticate against the remote store (device code flow)",
	Args:  cobra.NoArgs,
	RunE:  runRemoteLogin,
}

var remotePushCmd = &cobra.Command{
	Use:   "push",
	Short: "Scan and upload all anomalies, statuses and comments",
	Args:  cobra.NoArgs,
	RunE:  runRemotePush,
}

var remotePullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Merge remote statuses and comments into the local state, then scan",
	Args:  cobra.NoArgs,
	RunE:  runRemotePull,
}

func init() {
	remoteCmd.AddCommand(remoteLoginCmd)
	remoteCmd.AddCommand(remotePushCmd)
	remoteCmd.AddCommand(remotePullCmd)
}

func authConfig(cfg config.RemoteConfig, base string) remote.AuthConfig {
	return remote.AuthConfig{
		ClientID:      cfg.ClientID,
		DeviceAuthURL: cfg.DeviceAuthURL,
		TokenURL:      cfg.TokenURL,
		Scopes:        cfg.Scopes,
		TokenPath:     remote.TokenPath(base),
	}
}

// remoteClient builds an authenticated client, exiting with status 1 when no
// remote is configured or the user has not logged in.
func remoteClient(s *session, cmd *cobra.Command) *remote.Client {
	if !s.cfg.Remote.Enabled() {
		fmt.Fprintln(os.Stderr, "No remote configured. Set remote.base_url in anomalies.yaml.")
		os.Exit(1)
	}
	ts, err := remote.TokenSource(cmd.Context(), authConfig(s.cfg.Remote, s.base))
	if errors.Is(err, remote.ErrNotLoggedIn) {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err != nil {
		fail(err)
	}
	return remote.NewAuthenticatedClient(cmd.Context(), s.cfg.Remote.BaseURL, ts, s.cfg.Remote.RequestsPerSecond, s.cfg.Remote.Timeout)
}

func runRemoteLogin(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		fail(err)
	}
	base, err := storage.BaseDir()
	if err != nil {
		fail(err)
	}
	if cfg.Remote.ClientID == "" || cfg.Remote.DeviceAuthURL == "" || cfg.Remote.TokenURL == "" {
		fmt.Fprintln(os.Stderr, "remote.client_id, remote.device_auth_url and remote.token_url must be set in anomalies.yaml.")
		os.Exit(1)
	}
	if _, err := remote.Login(cmd.Context(), authConfig(cfg.Remote, base), os.Stdout); err != nil {
		fail(err)
	}
	fmt.Println("Logged in.")
	return nil
}

func runRemotePush(cmd *cobra.Command, args []string) error {
	s := mustScan(cmd.Context())
	defer s.Close()

	client := remoteClient(s, cmd)
	res, err := client.Push(cmd.Context(), s.engine.Anomalies(), os.Stderr)
	if err != nil {
		fail(err)
	}
	fmt.Printf("Pushed: %d upserted, %d deleted, %d comments", res.Upserted, res.Deleted, res.Comments)
	if res.Errors > 0 {
		fmt.Printf(", %d errors", res.Errors)
	}
	fmt.Println()
	return nil
}

func runRemotePull(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd.Context(), nil)
	if err != nil {
		fail(err)
	}
	defer s.Close()

	client := remoteClient(s, cmd)
	pulled, err := client.Pull(cmd.Context())
	if err != nil {
		fail(err)
	}
	// Remote statuses and comments win over local ones with the same key.
	s.engine.Seed(pulled)
	if err := s.scan(cmd.Context()); err != nil {
		fail(err)
	}
	fmt.Printf("Pulled %d anomalies; %d after scan.\n", len(pulled), len(s.engine.Anomalies()))
	return nil
}
