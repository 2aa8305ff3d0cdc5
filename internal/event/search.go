package event

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// clientEventRow mirrors the ClientEvents columns written by Writer.insert;
// event_value holds the full marshaled Event, so the SQL filter only needs
// to narrow by the indexable columns (caused_by_user_id, instance_id) and
// the remaining Filter fields are applied in Go, grounded on the teacher's
// coarse-SQL-then-fine-Go-filter pattern in applications/storage queries.
type clientEventRow struct {
	EventValue string `db:"event_value"`
}

// Search queries the ClientEvents table for events matching f, newest last,
// backing the §6 events/search route. limit<=0 means unbounded.
func Search(ctx context.Context, db *sqlx.DB, f Filter, limit int) ([]Event, error) {
	query := "SELECT event_value FROM ClientEvents WHERE 1=1"
	var args []interface{}

	if len(f.EventUserIds) == 1 {
		query += " AND caused_by_user_id = ?"
		args = append(args, f.EventUserIds[0])
	}
	if len(f.EventInstanceIds) == 1 {
		query += " AND instance_id = ?"
		args = append(args, f.EventInstanceIds[0])
	}
	query += " ORDER BY id ASC"

	rows, err := db.QueryxContext(ctx, db.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("search events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var row clientEventRow
		if err := rows.StructScan(&row); err != nil {
			return nil, fmt.Errorf("scan event row: %w", err)
		}
		var ev Event
		if err := json.Unmarshal([]byte(row.EventValue), &ev); err != nil {
			continue
		}
		if !f.Matches(ev) {
			continue
		}
		out = append(out, ev)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, rows.Err()
}
