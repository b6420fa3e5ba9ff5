package model_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tiliavir/ttt-anomalies/internal/model"
)

func TestParseAnomalyType(t *testing.T) {
	tests := []struct {
		input string
		want  model.AnomalyType
	}{
		{"MISSING_ENTRY", model.MissingEntry},
		{"missing-entry", model.MissingEntry},
		{"excess-work-shoot", model.ExcessWorkShoot},
		{"FORGOT_TO_STOP", model.ForgotToStop},
	}
	for _, tt := range tests {
		got, err := model.ParseAnomalyType(tt.input)
		require.NoError(t, err, tt.input)
		assert.Equal(t, tt.want, got)
	}

	_, err := model.ParseAnomalyType("late")
	assert.Error(t, err)
}

func TestAnomalyKeyString(t *testing.T) {
	k := model.AnomalyKey{UserID: "u1", Date: "2026-02-27", Type: model.UnderPerformance}
	assert.Equal(t, "u1-2026-02-27-UNDER_PERFORMANCE", k.String())
}

func TestWorkScheduleDefaults(t *testing.T) {
	s := model.DefaultWorkSchedule()
	assert.True(t, s.IsWorkDay(time.Monday))
	assert.True(t, s.IsWorkDay(time.Friday))
	assert.False(t, s.IsWorkDay(time.Saturday))
	assert.False(t, s.IsWorkDay(time.Sunday))
	assert.Equal(t, 8.0, s.TargetHours())

	assert.Equal(t, 8.0, model.WorkSchedule{Monday: true}.TargetHours())
}

func TestAbsenceTypeExcludes(t *testing.T) {
	assert.True(t, model.AbsenceVacation.Excludes())
	assert.True(t, model.AbsenceSick.Excludes())
	assert.True(t, model.AbsenceBusinessTrip.Excludes())
	assert.False(t, model.AbsenceHomeOffice.Excludes())
	assert.False(t, model.AbsenceOther.Excludes())
}

func TestUserChecked(t *testing.T) {
	assert.True(t, model.User{ID: "a", Active: true}.Checked())
	assert.False(t, model.User{ID: "b", Active: false}.Checked())
	assert.False(t, model.User{ID: "c", Active: true, Role: model.RoleAdmin}.Checked())
}

func TestAnomalyCloneDetachesComments(t *testing.T) {
	a := model.Anomaly{UserID: "u", Comments: []model.AnomalyComment{{ID: "1"}}}
	c := a.Clone()
	c.Comments[0].ID = "2"
	assert.Equal(t, "1", a.Comments[0].ID)

	empty := model.Anomaly{}.Clone()
	assert.NotNil(t, empty.Comments)
}
