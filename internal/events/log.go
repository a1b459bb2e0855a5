package events

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// EventLog is the append-only SQLite audit trail.
type EventLog struct {
	db *sql.DB
}

// NewEventLog creates an event log over an open database.
func NewEventLog(db *sql.DB) *EventLog {
	return &EventLog{db: db}
}

// Append persists an event and returns its row ID.
func (l *EventLog) Append(e Event) (int64, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return 0, fmt.Errorf("marshal event: %w", err)
	}

	result, err := l.db.Exec(`
		INSERT INTO events (event_id, event_type, entity_type, entity_id, payload, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.EventID(), e.EventType(), e.EntityType(), e.EntityID(), string(payload), e.OccurredAt(),
	)
	if err != nil {
		return 0, fmt.Errorf("insert event: %w", err)
	}
	return result.LastInsertId()
}

// Record is a persisted event with its raw JSON payload.
type Record struct {
	ID         int64     `json:"id"`
	EventID    string    `json:"event_id"`
	EventType  string    `json:"type"`
	EntityType string    `json:"entity_type"`
	EntityID   int64     `json:"entity_id"`
	Payload    string    `json:"payload"`
	OccurredAt time.Time `json:"occurred_at"`
	CreatedAt  time.Time `json:"created_at"`
}

// Since returns events that occurred at or after t, oldest first.
func (l *EventLog) Since(t time.Time, limit int) ([]Record, error) {
	q := `
		SELECT id, event_id, event_type, entity_type, entity_id, payload, occurred_at, created_at
		FROM events
		WHERE occurred_at >= ?
		ORDER BY id ASC`
	args := []any{t}
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := l.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// ForEntity returns the full history for one entity, oldest first.
func (l *EventLog) ForEntity(entityType string, entityID int64) ([]Record, error) {
	rows, err := l.db.Query(`
		SELECT id, event_id, event_type, entity_type, entity_id, payload, occurred_at, created_at
		FROM events
		WHERE entity_type = ? AND entity_id = ?
		ORDER BY id ASC`,
		entityType, entityID,
	)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// Prune removes events older than the given age.
func (l *EventLog) Prune(olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	result, err := l.db.Exec(`DELETE FROM events WHERE occurred_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune events: %w", err)
	}
	return result.RowsAffected()
}

func scanRecords(rows *sql.Rows) ([]Record, error) {
	var records []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.EventID, &r.EventType, &r.EntityType, &r.EntityID, &r.Payload, &r.OccurredAt, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}
