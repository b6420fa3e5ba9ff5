package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/oauth2"
)

// ErrNotLoggedIn is returned when no token has been stored yet.
var ErrNotLoggedIn = errors.New("not logged in to the remote store; run \"tta remote login\"")

// AuthConfig describes the OAuth2 device-code client of the remote store.
type AuthConfig struct {
	ClientID      string
	DeviceAuthURL string
	TokenURL      string
	Scopes        []string
	// TokenPath is where the token is cached, see TokenPath.
	TokenPath string
}

// TokenPath returns base/auth/remote_tokens.json.
func TokenPath(base string) string {
	return filepath.Join(base, "auth", "remote_tokens.json")
}

func (c AuthConfig) oauth2Config() *oauth2.Config {
	return &oauth2.Config{
		ClientID: c.ClientID,
		Scopes:   c.Scopes,
		Endpoint: oauth2.Endpoint{
			DeviceAuthURL: c.DeviceAuthURL,
			TokenURL:      c.TokenURL,
			AuthStyle:     oauth2.AuthStyleInParams,
		},
	}
}

// loadToken loads a previously saved token from disk.
func loadToken(path string) (*oauth2.Token, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading token file: %w", err)
	}
	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("corrupt token file (delete %s to re-authenticate): %w", path, err)
	}
	return &tok, nil
}

// saveToken persists a token to disk.
func saveToken(path string, tok *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating auth directory: %w", err)
	}
	data, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling token: %w", err)
	}
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o600); err != nil {
		return fmt.Errorf("writing token file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("saving token file: %w", err)
	}
	return nil
}

// Login runs the device code flow, printing the verification instructions to
// w, and stores the resulting token.
func Login(ctx context.Context, cfg AuthConfig, w io.Writer) (*oauth2.Token, error) {
	oc := cfg.oauth2Config()
	resp, err := oc.DeviceAuth(ctx)
	if err != nil {
		return nil, fmt.Errorf("device auth request failed: %w", err)
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "To sign in, use a web browser to open the page:")
	fmt.Fprintf(w, "  %s\n", resp.VerificationURI)
	fmt.Fprintf(w, "Enter the code: %s\n", resp.UserCode)
	fmt.Fprintln(w)

	tok, err := oc.DeviceAccessToken(ctx, resp)
	if err != nil {
		return nil, fmt.Errorf("device authentication failed: %w", err)
	}
	if err := saveToken(cfg.TokenPath, tok); err != nil {
		return nil, err
	}
	return tok, nil
}

// TokenSource returns a source that refreshes the stored token as needed and
// writes refreshed tokens back to disk.
func TokenSource(ctx context.Context, cfg AuthConfig) (oauth2.TokenSource, error) {
	tok, err := loadToken(cfg.TokenPath)
	if err != nil {
		return nil, err
	}
	if tok == nil {
		return nil, ErrNotLoggedIn
	}
	return &savingTokenSource{
		path: cfg.TokenPath,
		last: tok.AccessToken,
		ts:   cfg.oauth2Config().TokenSource(ctx, tok),
	}, nil
}

// savingTokenSource wraps a TokenSource and persists refreshed tokens.
type savingTokenSource struct {
	path string
	last string
	ts   oauth2.TokenSource
}

func (s *savingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.ts.Token()
	if err != nil {
		return nil, err
	}
	if tok.AccessToken != s.last {
		// Best-effort save; the in-memory token stays usable.
		_ = saveToken(s.path, tok)
		s.last = tok.AccessToken
	}
	return tok, nil
}
