package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/Tiliavir/ttt-anomalies/internal/model"
)

// RosterFile is the team file name inside the ttt home directory.
const RosterFile = "team.yaml"

// RosterPath returns base/team.yaml.
func RosterPath(base string) string {
	return filepath.Join(base, RosterFile)
}

// rosterUser distinguishes an omitted active flag from false.
type rosterUser struct {
	ID       string              `yaml:"id"`
	Name     string              `yaml:"name"`
	Active   *bool               `yaml:"active"`
	Role     string              `yaml:"role"`
	Schedule *model.WorkSchedule `yaml:"schedule"`
}

// LoadRoster reads the team file. Without one, the roster is the single
// active defaultUser on the default schedule. Users without an explicit
// active flag are active.
func LoadRoster(path, defaultUser string) (model.Roster, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return model.Roster{Users: []model.User{{ID: defaultUser, Name: defaultUser, Active: true}}}, nil
	}
	if err != nil {
		return model.Roster{}, fmt.Errorf("storage error reading %s: %w", path, err)
	}

	var doc struct {
		Users    []rosterUser           `yaml:"users"`
		Absences []model.AbsenceRequest `yaml:"absences"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return model.Roster{}, fmt.Errorf("%w: %s: %v", ErrCorrupt, path, err)
	}

	r := model.Roster{Absences: doc.Absences}
	seen := make(map[string]bool, len(doc.Users))
	for i, u := range doc.Users {
		if u.ID == "" {
			return model.Roster{}, fmt.Errorf("%s: user #%d has no id", path, i+1)
		}
		if seen[u.ID] {
			return model.Roster{}, fmt.Errorf("%s: duplicate user %q", path, u.ID)
		}
		seen[u.ID] = true
		r.Users = append(r.Users, model.User{
			ID:       u.ID,
			Name:     u.Name,
			Active:   u.Active == nil || *u.Active,
			Role:     u.Role,
			Schedule: u.Schedule,
		})
	}
	for i, a := range r.Absences {
		if a.Status == "" {
			r.Absences[i].Status = model.AbsenceApproved
		}
	}
	return r, nil
}
