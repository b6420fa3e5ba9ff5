package remote_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/Tiliavir/ttt-anomalies/internal/remote"
)

func TestTokenSourceRequiresLogin(t *testing.T) {
	cfg := remote.AuthConfig{TokenPath: remote.TokenPath(t.TempDir())}
	_, err := remote.TokenSource(context.Background(), cfg)
	assert.True(t, errors.Is(err, remote.ErrNotLoggedIn))
}

func TestAuthenticatedClientSendsStoredToken(t *testing.T) {
	path := remote.TokenPath(t.TempDir())
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o700))
	tok := &oauth2.Token{AccessToken: "secret", TokenType: "Bearer", Expiry: time.Now().Add(time.Hour)}
	data, err := json.Marshal(tok)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte("[]"))
	}))
	defer srv.Close()

	ctx := context.Background()
	ts, err := remote.TokenSource(ctx, remote.AuthConfig{TokenPath: path, TokenURL: srv.URL + "/token"})
	require.NoError(t, err)

	c := remote.NewAuthenticatedClient(ctx, srv.URL, ts, 1000, 5*time.Second)
	got, err := c.Pull(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, "Bearer secret", auth)
}
