package remote

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/Tiliavir/ttt-anomalies/internal/model"
)

const (
	anomaliesTable = "anomalies"
	commentsTable  = "anomaly_comments"
	// upsertBatch bounds the rows sent in one request.
	upsertBatch = 500
)

// SyncResult holds counters for a push.
type SyncResult struct {
	Upserted int
	Deleted  int
	Comments int
	Errors   int
}

// Row is the remote representation of an anomaly. ID is "user-date-TYPE".
type Row struct {
	ID      string               `json:"id"`
	UserID  string               `json:"user_id"`
	Date    string               `json:"date"`
	Type    model.AnomalyType    `json:"type"`
	Status  model.AnomalyStatus  `json:"status"`
	Details model.AnomalyDetails `json:"details"`
}

// CommentRow is the remote representation of a comment.
type CommentRow struct {
	ID        string    `json:"id"`
	AnomalyID string    `json:"anomaly_id"`
	UserID    string    `json:"user_id"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// RowOf maps an anomaly to its remote row.
func RowOf(a model.Anomaly) Row {
	return Row{
		ID:      a.Key().String(),
		UserID:  a.UserID,
		Date:    a.Date,
		Type:    a.Type,
		Status:  a.Status,
		Details: a.Details,
	}
}

// Push mirrors snapshot to the remote store: every anomaly is upserted,
// remote anomalies missing locally are deleted and comments the remote does
// not know yet are inserted. Per-row failures are reported to log and
// counted; failing to list the remote state aborts the push.
func (c *Client) Push(ctx context.Context, snapshot []model.Anomaly, log io.Writer) (SyncResult, error) {
	var result SyncResult

	var remoteRows []Row
	if err := c.do(ctx, request{method: http.MethodGet, table: anomaliesTable, query: url.Values{"select": {"id"}}}, &remoteRows); err != nil {
		return result, fmt.Errorf("listing remote anomalies: %w", err)
	}
	var remoteComments []CommentRow
	if err := c.do(ctx, request{method: http.MethodGet, table: commentsTable, query: url.Values{"select": {"id"}}}, &remoteComments); err != nil {
		return result, fmt.Errorf("listing remote comments: %w", err)
	}

	rows := make([]Row, 0, len(snapshot))
	local := make(map[string]bool, len(snapshot))
	for _, a := range snapshot {
		r := RowOf(a)
		rows = append(rows, r)
		local[r.ID] = true
	}

	for start := 0; start < len(rows); start += upsertBatch {
		end := min(start+upsertBatch, len(rows))
		err := c.do(ctx, request{
			method: http.MethodPost,
			table:  anomaliesTable,
			query:  url.Values{"on_conflict": {"id"}},
			prefer: "resolution=merge-duplicates,return=minimal",
			body:   rows[start:end],
		}, nil)
		if err != nil {
			fmt.Fprintf(log, "  ! Error upserting %d anomalies: %v\n", end-start, err)
			result.Errors++
			continue
		}
		result.Upserted += end - start
	}

	for _, r := range remoteRows {
		if local[r.ID] {
			continue
		}
		err := c.do(ctx, request{
			method: http.MethodDelete,
			table:  anomaliesTable,
			query:  url.Values{"id": {"eq." + r.ID}},
		}, nil)
		if err != nil {
			fmt.Fprintf(log, "  ! Error deleting %s: %v\n", r.ID, err)
			result.Errors++
			continue
		}
		fmt.Fprintf(log, "  – Deleted:  %s\n", r.ID)
		result.Deleted++
	}

	known := make(map[string]bool, len(remoteComments))
	for _, rc := range remoteComments {
		known[rc.ID] = true
	}
	var fresh []CommentRow
	for _, a := range snapshot {
		for _, cm := range a.Comments {
			if cm.ID == "" || known[cm.ID] {
				continue
			}
			fresh = append(fresh, CommentRow{
				ID:        cm.ID,
				AnomalyID: a.Key().String(),
				UserID:    cm.UserID,
				Message:   cm.Message,
				CreatedAt: cm.Timestamp.UTC(),
			})
		}
	}
	if len(fresh) > 0 {
		err := c.do(ctx, request{
			method: http.MethodPost,
			table:  commentsTable,
			query:  url.Values{"on_conflict": {"id"}},
			prefer: "resolution=ignore-duplicates,return=minimal",
			body:   fresh,
		}, nil)
		if err != nil {
			fmt.Fprintf(log, "  ! Error inserting %d comments: %v\n", len(fresh), err)
			result.Errors++
		} else {
			result.Comments = len(fresh)
		}
	}
	return result, nil
}

// Pull returns the remote anomalies with their comments in creation order,
// ready to seed an engine.
func (c *Client) Pull(ctx context.Context) ([]model.Anomaly, error) {
	var rows []Row
	if err := c.do(ctx, request{method: http.MethodGet, table: anomaliesTable, query: url.Values{"select": {"*"}}}, &rows); err != nil {
		return nil, fmt.Errorf("fetching remote anomalies: %w", err)
	}
	var comments []CommentRow
	if err := c.do(ctx, request{method: http.MethodGet, table: commentsTable, query: url.Values{"select": {"*"}}}, &comments); err != nil {
		return nil, fmt.Errorf("fetching remote comments: %w", err)
	}

	sort.SliceStable(comments, func(i, j int) bool {
		return comments[i].CreatedAt.Before(comments[j].CreatedAt)
	})
	byAnomaly := make(map[string][]model.AnomalyComment)
	for _, cm := range comments {
		byAnomaly[cm.AnomalyID] = append(byAnomaly[cm.AnomalyID], model.AnomalyComment{
			ID:        cm.ID,
			UserID:    cm.UserID,
			Message:   cm.Message,
			Timestamp: cm.CreatedAt,
		})
	}

	out := make([]model.Anomaly, 0, len(rows))
	for _, r := range rows {
		a := model.Anomaly{
			UserID:   r.UserID,
			Date:     r.Date,
			Type:     r.Type,
			Status:   r.Status,
			Details:  r.Details,
			Comments: byAnomaly[r.ID],
		}
		if a.Comments == nil {
			a.Comments = []model.AnomalyComment{}
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Key().String() < out[j].Key().String()
	})
	return out, nil
}
