package sqlitestate_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tiliavir/ttt-anomalies/internal/model"
	"github.com/Tiliavir/ttt-anomalies/internal/storage"
	"github.com/Tiliavir/ttt-anomalies/internal/storage/sqlitestate"
)

var _ storage.StateRepository = (*sqlitestate.Repository)(nil)

func TestRepositoryRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "anomalies", "state.db")
	repo, err := sqlitestate.Open(path)
	require.NoError(t, err)
	ctx := context.Background()

	got, err := repo.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)

	ts := time.Date(2026, 3, 3, 8, 0, 0, 0, time.UTC)
	want := []model.Anomaly{
		{
			UserID: "anna", Date: "2026-03-02", Type: model.MissingEntry, Status: model.StatusMuted,
			Details: model.AnomalyDetails{TargetHours: 8},
			Comments: []model.AnomalyComment{
				{ID: "c1", UserID: "lead", Message: "first", Timestamp: ts},
				{ID: "c2", UserID: "anna", Message: "second", Timestamp: ts.Add(time.Hour)},
			},
		},
		{
			UserID: "ben", Date: "2026-03-03", Type: model.ExcessWorkShoot, Status: model.StatusOpen,
			Details:  model.AnomalyDetails{TrackedHours: 16.5, TargetHours: 8, HasShoot: true},
			Comments: []model.AnomalyComment{},
		},
	}
	require.NoError(t, repo.Save(ctx, want))
	require.NoError(t, repo.Close())

	repo, err = sqlitestate.Open(path)
	require.NoError(t, err)
	defer repo.Close()

	got, err = repo.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	require.NoError(t, repo.Save(ctx, want[1:]))
	got, err = repo.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, want[1:], got)
}
