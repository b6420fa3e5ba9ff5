// Package sqlitestate stores anomaly dispositions in a SQLite database.
package sqlitestate

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Tiliavir/ttt-anomalies/internal/model"

	_ "modernc.org/sqlite"
)

// Repository implements storage.StateRepository on two tables, anomalies and
// anomaly_comments.
type Repository struct {
	db *sql.DB
}

// Open opens or creates the database at path.
func Open(path string) (*Repository, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("storage error creating directories: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// A single connection keeps :memory: databases alive and serialises writers.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	repo := &Repository{db: db}
	if err := repo.init(); err != nil {
		db.Close()
		return nil, err
	}
	return repo, nil
}

func (r *Repository) init() error {
	anomaliesQuery := `
	CREATE TABLE IF NOT EXISTS anomalies (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		date TEXT NOT NULL,
		type TEXT NOT NULL,
		status TEXT NOT NULL,
		tracked_hours REAL NOT NULL,
		target_hours REAL NOT NULL,
		has_shoot INTEGER NOT NULL DEFAULT 0
	)
	`
	if _, err := r.db.Exec(anomaliesQuery); err != nil {
		return err
	}

	commentsQuery := `
	CREATE TABLE IF NOT EXISTS anomaly_comments (
		anomaly_id TEXT NOT NULL,
		id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		message TEXT NOT NULL,
		created_at TEXT NOT NULL,
		position INTEGER NOT NULL,
		PRIMARY KEY (anomaly_id, position),
		FOREIGN KEY (anomaly_id) REFERENCES anomalies(id) ON DELETE CASCADE
	)
	`
	_, err := r.db.Exec(commentsQuery)
	return err
}

// Load returns every stored anomaly with its comments, ordered by key.
func (r *Repository) Load(ctx context.Context) ([]model.Anomaly, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, user_id, date, type, status, tracked_hours, target_hours, has_shoot FROM anomalies ORDER BY date, user_id, type",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var anomalies []model.Anomaly
	index := make(map[string]int)
	for rows.Next() {
		var a model.Anomaly
		var id string
		var shoot int
		if err := rows.Scan(&id, &a.UserID, &a.Date, &a.Type, &a.Status,
			&a.Details.TrackedHours, &a.Details.TargetHours, &shoot); err != nil {
			return nil, err
		}
		a.Details.HasShoot = shoot == 1
		a.Comments = []model.AnomalyComment{}
		index[id] = len(anomalies)
		anomalies = append(anomalies, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	crows, err := r.db.QueryContext(ctx,
		"SELECT id, anomaly_id, user_id, message, created_at FROM anomaly_comments ORDER BY anomaly_id, position",
	)
	if err != nil {
		return nil, err
	}
	defer crows.Close()

	for crows.Next() {
		var c model.AnomalyComment
		var anomalyID, createdAt string
		if err := crows.Scan(&c.ID, &anomalyID, &c.UserID, &c.Message, &createdAt); err != nil {
			return nil, err
		}
		c.Timestamp, _ = time.Parse(time.RFC3339Nano, createdAt)
		if i, ok := index[anomalyID]; ok {
			anomalies[i].Comments = append(anomalies[i].Comments, c)
		}
	}
	return anomalies, crows.Err()
}

// Save replaces the stored snapshot in one transaction.
func (r *Repository) Save(ctx context.Context, anomalies []model.Anomaly) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM anomaly_comments"); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM anomalies"); err != nil {
		return err
	}

	for _, a := range anomalies {
		id := a.Key().String()
		shoot := 0
		if a.Details.HasShoot {
			shoot = 1
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO anomalies (id, user_id, date, type, status, tracked_hours, target_hours, has_shoot) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
			id, a.UserID, a.Date, string(a.Type), string(a.Status),
			a.Details.TrackedHours, a.Details.TargetHours, shoot,
		); err != nil {
			return fmt.Errorf("insert anomaly %s: %w", id, err)
		}
		for pos, c := range a.Comments {
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO anomaly_comments (id, anomaly_id, user_id, message, created_at, position) VALUES (?, ?, ?, ?, ?, ?)",
				c.ID, id, c.UserID, c.Message, c.Timestamp.UTC().Format(time.RFC3339Nano), pos,
			); err != nil {
				return fmt.Errorf("insert comment %s: %w", c.ID, err)
			}
		}
	}
	return tx.Commit()
}

// Close closes the database.
func (r *Repository) Close() error {
	return r.db.Close()
}
