package event

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/lodestone-core/lodestone/infrastructure/logging"
	"github.com/lodestone-core/lodestone/infrastructure/metrics"
)

const createClientEventsTable = `
CREATE TABLE IF NOT EXISTS ClientEvents (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	event_value TEXT NOT NULL,
	details TEXT NOT NULL,
	snowflake INTEGER NOT NULL,
	level TEXT NOT NULL,
	caused_by_user_id TEXT,
	instance_id TEXT
)`

const insertClientEvent = `
INSERT INTO ClientEvents (event_value, details, snowflake, level, caused_by_user_id, instance_id)
VALUES (?, ?, ?, ?, ?, ?)`

// Writer drains a Receiver into the ClientEvents table, dropping
// high-cardinality progression-update events and keeping start/end.
type Writer struct {
	db     *sqlx.DB
	logger *logging.Logger
}

// NewWriter prepares the ClientEvents table. Failure here aborts the writer
// before it ever starts consuming.
func NewWriter(db *sqlx.DB, logger *logging.Logger) (*Writer, error) {
	if _, err := db.Exec(createClientEventsTable); err != nil {
		return nil, fmt.Errorf("init ClientEvents table: %w", err)
	}
	return &Writer{db: db, logger: logger}, nil
}

// Run drains r until Closed or a write failure, persisting every event that
// is not a progression-update. A write failure is logged and terminates the
// writer without affecting the broadcast bus.
func (w *Writer) Run(ctx context.Context, r *Receiver) {
	for {
		ev, lagged, ok := r.Recv()
		if !ok {
			return
		}
		if lagged {
			continue
		}
		if ev.Kind == KindProgression && ev.Progression != nil && ev.Progression.Variant == ProgressionUpdate {
			continue
		}
		if err := w.insert(ctx, ev); err != nil {
			if w.logger != nil {
				w.logger.WithContext(ctx).WithError(err).Error("event writer insert failed, terminating")
			}
			if m := metrics.Global(); m != nil {
				m.RecordEventPersistFailure()
			}
			return
		}
	}
}

func (w *Writer) insert(ctx context.Context, ev Event) error {
	valueJSON, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	detailsJSON, err := json.Marshal(ev.CausedBy)
	if err != nil {
		return fmt.Errorf("marshal details: %w", err)
	}

	var userID sql.NullString
	if ev.CausedBy.Kind == CausedByUser {
		userID = sql.NullString{String: ev.CausedBy.UserId, Valid: true}
	}
	var instanceID sql.NullString
	if ev.Kind == KindInstance && ev.Instance != nil {
		instanceID = sql.NullString{String: ev.Instance.InstanceUuid, Valid: true}
	} else if ev.Kind == KindMacro && ev.Macro != nil && ev.Macro.InstanceUuid != "" {
		instanceID = sql.NullString{String: ev.Macro.InstanceUuid, Valid: true}
	}

	_, err = w.db.ExecContext(ctx, insertClientEvent,
		string(valueJSON), string(detailsJSON), int64(ev.Snowflake), string(ev.Level()), userID, instanceID)
	return err
}
