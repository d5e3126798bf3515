// Package history stores command-driven motor events in SQLite and mirrors
// motor activity to InfluxDB.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/nerrad567/motorbank-core/internal/motor"
)

// timeLayout is fixed-width so occurred_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000Z07:00"

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// EventRecord is a stored motor event.
type EventRecord struct {
	ID    int64       `json:"id"`
	Motor int         `json:"motor"`
	Event motor.Event `json:"event"`
}

// Repository reads and writes motor event history.
type Repository interface {
	RecordEvent(ctx context.Context, number int, ev motor.Event) error
	ListEvents(ctx context.Context, number, limit int) ([]EventRecord, error)
	Prune(ctx context.Context, olderThan time.Time) (int64, error)
}

// SQLiteRepository is the motor_events table.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository over an open, migrated database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// RecordEvent stores ev for the 1-based motor number.
func (r *SQLiteRepository) RecordEvent(ctx context.Context, number int, ev motor.Event) error {
	if _, err := motor.IndexFromNumber(number); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO motor_events (motor, kind, success, summary, occurred_at) VALUES (?, ?, ?, ?, ?)`,
		number, ev.Kind.String(), ev.Success, ev.Summary, ev.Time.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("inserting motor event: %w", err)
	}
	return nil
}

// ListEvents returns the newest events for a motor, newest first. A
// number of 0 lists every motor.
func (r *SQLiteRepository) ListEvents(ctx context.Context, number, limit int) ([]EventRecord, error) {
	switch {
	case limit <= 0:
		limit = defaultListLimit
	case limit > maxListLimit:
		limit = maxListLimit
	}

	query := `SELECT id, motor, kind, success, summary, occurred_at FROM motor_events`
	args := []any{}
	if number != 0 {
		if _, err := motor.IndexFromNumber(number); err != nil {
			return nil, err
		}
		query += ` WHERE motor = ?`
		args = append(args, number)
	}
	query += ` ORDER BY occurred_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying motor events: %w", err)
	}
	defer rows.Close()

	out := []EventRecord{}
	for rows.Next() {
		var rec EventRecord
		var kind, occurredAt string
		if err := rows.Scan(&rec.ID, &rec.Motor, &kind, &rec.Event.Success, &rec.Event.Summary, &occurredAt); err != nil {
			return nil, fmt.Errorf("scanning motor event: %w", err)
		}
		if rec.Event.Kind, err = motor.ParseState(kind); err != nil {
			return nil, fmt.Errorf("motor event %d: %w", rec.ID, err)
		}
		if rec.Event.Time, err = time.Parse(timeLayout, occurredAt); err != nil {
			return nil, fmt.Errorf("parsing motor event time %q: %w", occurredAt, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating motor events: %w", err)
	}
	return out, nil
}

// Prune deletes events older than olderThan and returns how many went.
func (r *SQLiteRepository) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM motor_events WHERE occurred_at < ?`,
		olderThan.UTC().Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("pruning motor events: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("pruning motor events: %w", err)
	}
	return n, nil
}
