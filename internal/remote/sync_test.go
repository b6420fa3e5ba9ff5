package remote_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tiliavir/ttt-anomalies/internal/model"
	"github.com/Tiliavir/ttt-anomalies/internal/remote"
)

// fakeStore is a minimal PostgREST stand-in keeping rows in memory.
type fakeStore struct {
	mu        sync.Mutex
	anomalies map[string]remote.Row
	comments  map[string]remote.CommentRow
	prefers   []string
	failPost  bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{anomalies: map[string]remote.Row{}, comments: map[string]remote.CommentRow{}}
}

func (f *fakeStore) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	table := strings.TrimPrefix(r.URL.Path, "/")
	switch {
	case r.Method == http.MethodGet && table == "anomalies":
		rows := []remote.Row{}
		for _, row := range f.anomalies {
			rows = append(rows, row)
		}
		_ = json.NewEncoder(w).Encode(rows)
	case r.Method == http.MethodGet && table == "anomaly_comments":
		rows := []remote.CommentRow{}
		for _, row := range f.comments {
			rows = append(rows, row)
		}
		_ = json.NewEncoder(w).Encode(rows)
	case r.Method == http.MethodPost && table == "anomalies":
		if f.failPost {
			http.Error(w, `{"message":"boom"}`, http.StatusInternalServerError)
			return
		}
		f.prefers = append(f.prefers, r.Header.Get("Prefer"))
		var rows []remote.Row
		if err := json.NewDecoder(r.Body).Decode(&rows); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		for _, row := range rows {
			f.anomalies[row.ID] = row
		}
		w.WriteHeader(http.StatusCreated)
	case r.Method == http.MethodPost && table == "anomaly_comments":
		var rows []remote.CommentRow
		if err := json.NewDecoder(r.Body).Decode(&rows); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		for _, row := range rows {
			f.comments[row.ID] = row
		}
		w.WriteHeader(http.StatusCreated)
	case r.Method == http.MethodDelete && table == "anomalies":
		id := strings.TrimPrefix(r.URL.Query().Get("id"), "eq.")
		delete(f.anomalies, id)
		w.WriteHeader(http.StatusNoContent)
	default:
		http.NotFound(w, r)
	}
}

func snapshot() []model.Anomaly {
	ts := time.Date(2026, 3, 3, 8, 0, 0, 0, time.UTC)
	return []model.Anomaly{
		{
			UserID: "anna", Date: "2026-03-02", Type: model.MissingEntry, Status: model.StatusMuted,
			Details: model.AnomalyDetails{TargetHours: 8},
			Comments: []model.AnomalyComment{
				{ID: "c2", UserID: "anna", Message: "sorry", Timestamp: ts.Add(time.Hour)},
				{ID: "c1", UserID: "lead", Message: "please fill in", Timestamp: ts},
			},
		},
		{
			UserID: "ben", Date: "2026-03-03", Type: model.UnderPerformance, Status: model.StatusOpen,
			Details:  model.AnomalyDetails{TrackedHours: 2, TargetHours: 8},
			Comments: []model.AnomalyComment{},
		},
	}
}

func TestPushAndPull(t *testing.T) {
	store := newFakeStore()
	store.anomalies["old-2026-01-01-MISSING_ENTRY"] = remote.Row{ID: "old-2026-01-01-MISSING_ENTRY"}
	srv := httptest.NewServer(store)
	defer srv.Close()

	c := remote.NewClient(srv.URL, srv.Client(), 1000)
	var log bytes.Buffer
	res, err := c.Push(context.Background(), snapshot(), &log)
	require.NoError(t, err)
	assert.Equal(t, remote.SyncResult{Upserted: 2, Deleted: 1, Comments: 2}, res)
	assert.Contains(t, log.String(), "old-2026-01-01-MISSING_ENTRY")
	assert.Equal(t, []string{"resolution=merge-duplicates,return=minimal"}, store.prefers)
	assert.Contains(t, store.anomalies, "anna-2026-03-02-MISSING_ENTRY")

	// Comments already known remotely are not sent again.
	res, err = c.Push(context.Background(), snapshot(), &log)
	require.NoError(t, err)
	assert.Equal(t, remote.SyncResult{Upserted: 2}, res)

	pulled, err := c.Pull(context.Background())
	require.NoError(t, err)
	require.Len(t, pulled, 2)
	assert.Equal(t, model.StatusMuted, pulled[0].Status)
	require.Len(t, pulled[0].Comments, 2)
	assert.Equal(t, "c1", pulled[0].Comments[0].ID)
	assert.Equal(t, "c2", pulled[0].Comments[1].ID)
	assert.Equal(t, model.AnomalyDetails{TrackedHours: 2, TargetHours: 8}, pulled[1].Details)
	assert.NotNil(t, pulled[1].Comments)
}

func TestPushCountsFailures(t *testing.T) {
	store := newFakeStore()
	store.failPost = true
	srv := httptest.NewServer(store)
	defer srv.Close()

	c := remote.NewClient(srv.URL, srv.Client(), 1000)
	var log bytes.Buffer
	res, err := c.Push(context.Background(), snapshot()[1:], &log)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Errors)
	assert.Equal(t, 0, res.Upserted)
	assert.Contains(t, log.String(), "error 500")
}

func TestPullReportsHTTPErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := remote.NewClient(srv.URL, srv.Client(), 1000).Pull(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestRowOf(t *testing.T) {
	row := remote.RowOf(snapshot()[0])
	assert.Equal(t, "anna-2026-03-02-MISSING_ENTRY", row.ID)
	assert.Equal(t, model.StatusMuted, row.Status)
}
