// Package queue persists pipeline items and guards their state transitions.
package queue

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tomearr/tomearr/internal/pipeline"
)

// Sentinel errors for the queue package.
var (
	// ErrNotFound is returned when an item does not exist.
	ErrNotFound = errors.New("pipeline item not found")

	// ErrStale is returned when an optimistic-concurrency version check
	// fails: the row changed since it was read.
	ErrStale = errors.New("pipeline item modified concurrently")
)

// TransitionEvent describes one applied state change.
type TransitionEvent struct {
	ItemID   int64
	Identity string
	From     pipeline.Status
	To       pipeline.Status
	Progress float64
	At       time.Time
}

// TransitionHandler is called synchronously after a transition commits.
type TransitionHandler func(TransitionEvent)

// Store persists pipeline items.
type Store struct {
	db       *sql.DB
	limits   pipeline.Limits
	handlers []TransitionHandler
}

// NewStore creates a queue store with the given retry limits.
func NewStore(db *sql.DB, limits pipeline.Limits) *Store {
	return &Store{db: db, limits: limits}
}

// OnTransition registers a handler called after each committed transition.
func (s *Store) OnTransition(h TransitionHandler) {
	s.handlers = append(s.handlers, h)
}

const itemColumns = `id, identity, title, author, narrator, priority, status,
	selected_reference, selected_title, selected_indexer, selected_source_type,
	selected_format, selected_bitrate, selected_size, selected_confidence,
	client_id, progress, speed, eta_seconds, ratio, elapsed_seconds,
	search_retries, download_retries, conversion_retries, import_retries,
	download_path, converted_path, final_path, last_error,
	queued_at, started_at, completed_at, version`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*pipeline.Item, error) {
	item := &pipeline.Item{}
	sel := pipeline.Selected{}
	var etaSeconds, elapsedSeconds int64
	var startedAt, completedAt sql.NullTime

	err := row.Scan(
		&item.ID, &item.Identity, &item.Title, &item.Author, &item.Narrator,
		&item.Priority, &item.Status,
		&sel.Reference, &sel.Title, &sel.Indexer, &sel.SourceType,
		&sel.Format, &sel.Bitrate, &sel.Size, &sel.Confidence,
		&item.ClientID,
		&item.Progress.Percent, &item.Progress.Speed, &etaSeconds,
		&item.Progress.Ratio, &elapsedSeconds,
		&item.Retries.Search, &item.Retries.Download,
		&item.Retries.Conversion, &item.Retries.Import,
		&item.DownloadPath, &item.ConvertedPath, &item.FinalPath,
		&item.LastError,
		&item.QueuedAt, &startedAt, &completedAt, &item.Version,
	)
	if err != nil {
		return nil, err
	}

	item.Progress.ETA = time.Duration(etaSeconds) * time.Second
	item.Progress.Elapsed = time.Duration(elapsedSeconds) * time.Second
	if sel.Reference != "" || sel.SourceType != "" {
		item.Selected = &sel
	}
	if startedAt.Valid {
		t := startedAt.Time
		item.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		item.CompletedAt = &t
	}

	return item, nil
}

func selectedOrZero(item *pipeline.Item) pipeline.Selected {
	if item.Selected != nil {
		return *item.Selected
	}
	return pipeline.Selected{}
}

// Enqueue inserts a new item in queued state. Idempotent by identity: if a
// non-terminal item already exists for the same identity, that item is
// returned unchanged and no row is created.
func (s *Store) Enqueue(item *pipeline.Item) (*pipeline.Item, error) {
	if item.Identity != "" {
		existing, err := s.activeByIdentity(item.Identity)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		if existing != nil {
			return existing, nil
		}
	}

	if item.Status == "" {
		item.Status = pipeline.StatusQueued
	}
	if !item.Status.Valid() {
		return nil, fmt.Errorf("enqueue: invalid status %q", item.Status)
	}

	now := time.Now().UTC()
	item.QueuedAt = now
	item.Version = 1
	sel := selectedOrZero(item)

	result, err := s.db.Exec(`
		INSERT INTO pipeline_items (
			identity, title, author, narrator, priority, status,
			selected_reference, selected_title, selected_indexer,
			selected_source_type, selected_format, selected_bitrate,
			selected_size, selected_confidence,
			client_id, queued_at, version
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`,
		item.Identity, item.Title, item.Author, item.Narrator, item.Priority,
		item.Status,
		sel.Reference, sel.Title, sel.Indexer, sel.SourceType,
		sel.Format, sel.Bitrate, sel.Size, sel.Confidence,
		item.ClientID, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert pipeline item: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}
	item.ID = id
	return item, nil
}

// Get retrieves an item by ID.
func (s *Store) Get(id int64) (*pipeline.Item, error) {
	row := s.db.QueryRow(`SELECT `+itemColumns+` FROM pipeline_items WHERE id = ?`, id)
	item, err := scanItem(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("get item %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get item %d: %w", id, err)
	}
	return item, nil
}

// GetByIdentity retrieves the most recent item for an identity, preferring a
// live (non-terminal) one.
func (s *Store) GetByIdentity(identity string) (*pipeline.Item, error) {
	if item, err := s.activeByIdentity(identity); err == nil {
		return item, nil
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	row := s.db.QueryRow(`SELECT `+itemColumns+` FROM pipeline_items
		WHERE identity = ? ORDER BY id DESC LIMIT 1`, identity)
	item, err := scanItem(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("get item %q: %w", identity, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get item %q: %w", identity, err)
	}
	return item, nil
}

func (s *Store) activeByIdentity(identity string) (*pipeline.Item, error) {
	row := s.db.QueryRow(`SELECT `+itemColumns+` FROM pipeline_items
		WHERE identity = ? AND status NOT IN (?, ?, ?, ?)
		ORDER BY id DESC LIMIT 1`,
		identity,
		pipeline.StatusImported, pipeline.StatusSeedingComplete,
		pipeline.StatusFailed, pipeline.StatusCancelled,
	)
	item, err := scanItem(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get active item %q: %w", identity, err)
	}
	return item, nil
}

// Filter specifies criteria for listing items.
type Filter struct {
	Status   *pipeline.Status
	Statuses []pipeline.Status
	Active   bool // exclude terminal states
	Limit    int
}

// List returns items matching the filter, highest priority first, oldest
// first within a priority.
func (s *Store) List(f Filter) ([]*pipeline.Item, error) {
	var conditions []string
	var args []any

	if f.Status != nil {
		conditions = append(conditions, "status = ?")
		args = append(args, *f.Status)
	}
	if len(f.Statuses) > 0 {
		placeholders := make([]string, len(f.Statuses))
		for i, st := range f.Statuses {
			placeholders[i] = "?"
			args = append(args, st)
		}
		conditions = append(conditions, "status IN ("+strings.Join(placeholders, ", ")+")")
	}
	if f.Active {
		conditions = append(conditions, "status NOT IN (?, ?, ?, ?)")
		args = append(args,
			pipeline.StatusImported, pipeline.StatusSeedingComplete,
			pipeline.StatusFailed, pipeline.StatusCancelled)
	}

	query := `SELECT ` + itemColumns + ` FROM pipeline_items`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY priority DESC, id ASC"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var items []*pipeline.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate items: %w", err)
	}
	return items, nil
}

// CountByStatus returns aggregate item counts per state.
func (s *Store) CountByStatus() (map[pipeline.Status]int, error) {
	rows, err := s.db.Query(`SELECT status, COUNT(*) FROM pipeline_items GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count items: %w", err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[pipeline.Status]int)
	for rows.Next() {
		var status pipeline.Status
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[status] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate counts: %w", err)
	}
	return counts, nil
}

// Update persists all mutable fields of an item with a version check. The
// item's Version is bumped on success; ErrStale is returned when another
// writer got there first.
func (s *Store) Update(item *pipeline.Item) error {
	sel := selectedOrZero(item)

	result, err := s.db.Exec(`
		UPDATE pipeline_items SET
			priority = ?, status = ?,
			selected_reference = ?, selected_title = ?, selected_indexer = ?,
			selected_source_type = ?, selected_format = ?, selected_bitrate = ?,
			selected_size = ?, selected_confidence = ?,
			client_id = ?,
			progress = ?, speed = ?, eta_seconds = ?, ratio = ?, elapsed_seconds = ?,
			search_retries = ?, download_retries = ?, conversion_retries = ?, import_retries = ?,
			download_path = ?, converted_path = ?, final_path = ?,
			last_error = ?, started_at = ?, completed_at = ?,
			version = version + 1
		WHERE id = ? AND version = ?`,
		item.Priority, item.Status,
		sel.Reference, sel.Title, sel.Indexer, sel.SourceType,
		sel.Format, sel.Bitrate, sel.Size, sel.Confidence,
		item.ClientID,
		item.Progress.Percent, item.Progress.Speed,
		int64(item.Progress.ETA/time.Second), item.Progress.Ratio,
		int64(item.Progress.Elapsed/time.Second),
		item.Retries.Search, item.Retries.Download,
		item.Retries.Conversion, item.Retries.Import,
		item.DownloadPath, item.ConvertedPath, item.FinalPath,
		item.LastError, item.StartedAt, item.CompletedAt,
		item.ID, item.Version,
	)
	if err != nil {
		return fmt.Errorf("update item %d: %w", item.ID, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		// Distinguish a stale version from a missing row.
		var exists int
		if err := s.db.QueryRow(`SELECT 1 FROM pipeline_items WHERE id = ?`, item.ID).Scan(&exists); err == sql.ErrNoRows {
			return fmt.Errorf("update item %d: %w", item.ID, ErrNotFound)
		}
		return fmt.Errorf("update item %d: %w", item.ID, ErrStale)
	}

	item.Version++
	return nil
}

// Delete removes an item by ID. Idempotent.
func (s *Store) Delete(id int64) error {
	if _, err := s.db.Exec(`DELETE FROM pipeline_items WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete item %d: %w", id, err)
	}
	return nil
}
