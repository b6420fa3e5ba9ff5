package cmd

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tiliavir/ttt-anomalies/internal/anomaly"
	"github.com/Tiliavir/ttt-anomalies/internal/model"
	"github.com/Tiliavir/ttt-anomalies/internal/storage"
	"github.com/Tiliavir/ttt-anomalies/internal/watch"
)

var missingMonday = model.AnomalyKey{UserID: "me", Date: "2026-03-02", Type: model.MissingEntry}

// sharedHome points every session of the test at one fresh data directory
// whose state already holds an open anomaly.
func sharedHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("TTT_HOME", home)
	t.Setenv("TTA_CONFIG", "")
	t.Setenv("TTA_ENGINE_TIMEZONE", "UTC")
	t.Setenv("TTA_CALENDAR_DISABLE_HOLIDAYS", "true")
	t.Setenv("TTA_STATE_BACKEND", "json")
	t.Setenv("TTA_STATE_PATH", "")

	path := filepath.Join(storage.StateDir(home), "state.json")
	require.NoError(t, storage.NewJSONState(path).Save(context.Background(), []model.Anomaly{{
		UserID:  missingMonday.UserID,
		Date:    missingMonday.Date,
		Type:    missingMonday.Type,
		Status:  model.StatusOpen,
		Details: model.AnomalyDetails{TargetHours: 8},
	}}))
	return path
}

func newTestSession(t *testing.T) *session {
	t.Helper()
	s, err := openSession(context.Background(), nil)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func storedAnomaly(t *testing.T, path string, key model.AnomalyKey) model.Anomaly {
	t.Helper()
	stored, err := storage.NewJSONState(path).Load(context.Background())
	require.NoError(t, err)
	for _, a := range stored {
		if a.Key() == key {
			return a
		}
	}
	t.Fatalf("%s not in %s", key, path)
	return model.Anomaly{}
}

func TestPersistKeepsDispositionsOfOtherSessions(t *testing.T) {
	path := sharedHome(t)
	ctx := context.Background()

	// A long-running watch session.
	long := newTestSession(t)
	assert.Equal(t, path, long.statePath)

	// A resolve and a comment issued while it runs.
	short := newTestSession(t)
	require.NoError(t, short.engine.UpdateAnomalyStatus(missingMonday.UserID, missingMonday.Date, missingMonday.Type, model.StatusResolved))
	c, err := short.engine.AddAnomalyComment(missingMonday.UserID, missingMonday.Date, missingMonday.Type, "me", "was on leave")
	require.NoError(t, err)
	require.NoError(t, short.persist(ctx))

	require.NoError(t, long.persist(ctx))

	got := storedAnomaly(t, path, missingMonday)
	assert.Equal(t, model.StatusResolved, got.Status)
	require.Len(t, got.Comments, 1)
	assert.Equal(t, c.ID, got.Comments[0].ID)

	held, ok := long.engine.Anomaly(missingMonday)
	require.True(t, ok)
	assert.Equal(t, model.StatusResolved, held.Status)
	assert.Len(t, held.Comments, 1)
}

func TestPersistKeepsOwnDisposition(t *testing.T) {
	path := sharedHome(t)
	ctx := context.Background()

	s := newTestSession(t)
	require.NoError(t, s.engine.UpdateAnomalyStatus(missingMonday.UserID, missingMonday.Date, missingMonday.Type, model.StatusMuted))
	require.NoError(t, s.persist(ctx))

	assert.Equal(t, model.StatusMuted, storedAnomaly(t, path, missingMonday).Status)
}

func TestRefreshReadsWithoutWriting(t *testing.T) {
	path := sharedHome(t)
	ctx := context.Background()

	long := newTestSession(t)
	short := newTestSession(t)
	require.NoError(t, short.engine.UpdateAnomalyStatus(missingMonday.UserID, missingMonday.Date, missingMonday.Type, model.StatusMuted))
	require.NoError(t, short.persist(ctx))

	before := storedAnomaly(t, path, missingMonday)
	require.NoError(t, long.refresh(ctx))

	held, ok := long.engine.Anomaly(missingMonday)
	require.True(t, ok)
	assert.Equal(t, model.StatusMuted, held.Status)
	assert.Equal(t, before, storedAnomaly(t, path, missingMonday))

	// Once applied, the same stored status does not override a later local change.
	require.NoError(t, long.engine.UpdateAnomalyStatus(missingMonday.UserID, missingMonday.Date, missingMonday.Type, model.StatusOpen))
	require.NoError(t, long.refresh(ctx))
	held, _ = long.engine.Anomaly(missingMonday)
	assert.Equal(t, model.StatusOpen, held.Status)
}

func newReconcileEngine(t *testing.T) *anomaly.Engine {
	t.Helper()
	e, err := anomaly.New(anomaly.Options{Debounce: time.Hour, Location: time.UTC})
	require.NoError(t, err)
	t.Cleanup(e.Close)
	return e
}

func TestReconcile(t *testing.T) {
	cleared := model.AnomalyKey{UserID: "me", Date: "2026-03-03", Type: model.MissingEntry}
	fresh := model.AnomalyKey{UserID: "bob", Date: "2026-03-03", Type: model.ForgotToStop}
	anomalyOf := func(k model.AnomalyKey, st model.AnomalyStatus) model.Anomaly {
		return model.Anomaly{UserID: k.UserID, Date: k.Date, Type: k.Type, Status: st}
	}

	e := newReconcileEngine(t)
	e.Seed([]model.Anomaly{anomalyOf(missingMonday, model.StatusOpen)})
	known := map[model.AnomalyKey]model.AnomalyStatus{
		missingMonday: model.StatusOpen,
		cleared:       model.StatusOpen,
	}
	stored := []model.Anomaly{
		anomalyOf(missingMonday, model.StatusResolved),
		anomalyOf(cleared, model.StatusOpen),
		anomalyOf(fresh, model.StatusMuted),
	}

	assert.Equal(t, 2, reconcile(e, known, stored))

	got, ok := e.Anomaly(missingMonday)
	require.True(t, ok)
	assert.Equal(t, model.StatusResolved, got.Status)
	_, ok = e.Anomaly(cleared)
	assert.False(t, ok, "anomalies this process removed stay removed")
	got, ok = e.Anomaly(fresh)
	require.True(t, ok)
	assert.Equal(t, model.StatusMuted, got.Status)

	// Nothing changed on disk since: a second pass is a no-op.
	assert.Equal(t, 0, reconcile(e, statuses(stored), stored))
}

func TestMergeComments(t *testing.T) {
	at := func(h int) time.Time { return time.Date(2026, 3, 2, h, 0, 0, 0, time.UTC) }
	ours := []model.AnomalyComment{{ID: "a", Timestamp: at(9)}, {ID: "c", Timestamp: at(11)}}
	other := []model.AnomalyComment{{ID: "b", Timestamp: at(10)}, {ID: "a", Timestamp: at(9)}}

	merged, added := mergeComments(ours, other)
	assert.True(t, added)
	ids := make([]string, len(merged))
	for i, c := range merged {
		ids[i] = c.ID
	}
	assert.Equal(t, []string{"a", "b", "c"}, ids)
	assert.Len(t, ours, 2)

	same, added := mergeComments(ours, ours[:1])
	assert.False(t, added)
	assert.Equal(t, ours, same)
}

func TestSplitChanges(t *testing.T) {
	base := filepath.Join("home", "u", ".ttt")
	statePath := filepath.Join(base, "anomalies", "state.json")
	day := watch.Change{Path: filepath.Join(base, "2026", "03", "02.json")}
	state := watch.Change{Path: statePath}

	s, d := splitChanges(statePath, []watch.Change{day})
	assert.False(t, s)
	assert.True(t, d)

	s, d = splitChanges(statePath, []watch.Change{state})
	assert.True(t, s)
	assert.False(t, d)

	s, d = splitChanges(statePath, []watch.Change{state, day})
	assert.True(t, s)
	assert.True(t, d)
}
