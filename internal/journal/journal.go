package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const (
	defaultLimit = 50
	maxLimit     = 200

	// timeLayout is fixed width so stored timestamps sort as text.
	timeLayout = "2006-01-02T15:04:05.000000Z"
)

// Entry kinds.
const (
	KindReading = "reading"
	KindPush    = "push"
)

// Entry is one row of the delivery journal.
type Entry struct {
	ID        int64     `json:"id"`
	Kind      string    `json:"kind"`
	Subject   string    `json:"subject"`
	Action    string    `json:"action"`
	Value     *int64    `json:"value,omitempty"`
	BackendID *int64    `json:"backend_id,omitempty"`
	RunID     string    `json:"run_id,omitempty"`
	Items     *int      `json:"items,omitempty"`
	Published *int      `json:"published,omitempty"`
	Success   bool      `json:"success"`
	Error     string    `json:"error,omitempty"`
	Duration  int64     `json:"duration_ms"`
	CreatedAt time.Time `json:"created_at"`
}

// Query filters Recent. Zero fields match everything.
type Query struct {
	Kind    string
	Subject string
	// Limit defaults to 50 and is capped at 200.
	Limit int
}

// Repository reads and writes the delivery_journal table.
type Repository struct {
	db *sql.DB
}

// NewRepository returns a repository on an open, migrated database.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Insert appends e. CreatedAt defaults to now.
func (r *Repository) Insert(ctx context.Context, e Entry) error {
	if e.Kind != KindReading && e.Kind != KindPush {
		return fmt.Errorf("invalid journal kind %q", e.Kind)
	}
	if e.Subject == "" {
		return errors.New("journal subject is required")
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	var runID sql.NullString
	if e.RunID != "" {
		runID = sql.NullString{String: e.RunID, Valid: true}
	}
	var errText sql.NullString
	if e.Error != "" {
		errText = sql.NullString{String: e.Error, Valid: true}
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO delivery_journal
		 (kind, subject, action, value, backend_id, run_id, items, published, success, error, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Kind,
		e.Subject,
		e.Action,
		nullInt64(e.Value),
		nullInt64(e.BackendID),
		runID,
		nullInt(e.Items),
		nullInt(e.Published),
		boolToInt(e.Success),
		errText,
		e.Duration,
		e.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting journal entry: %w", err)
	}
	return nil
}

// Recent returns matching entries, newest first.
func (r *Repository) Recent(ctx context.Context, q Query) ([]Entry, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, kind, subject, action, value, backend_id, run_id, items, published,
		        success, error, duration_ms, created_at
		 FROM delivery_journal
		 WHERE (? = '' OR kind = ?) AND (? = '' OR subject = ?)
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
		q.Kind, q.Kind,
		q.Subject, q.Subject,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying journal: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0, limit)
	for rows.Next() {
		var (
			e                Entry
			value, backendID sql.NullInt64
			items, published sql.NullInt64
			runID, errText   sql.NullString
			success          int
			createdAt        string
		)
		if err := rows.Scan(&e.ID, &e.Kind, &e.Subject, &e.Action, &value, &backendID, &runID,
			&items, &published, &success, &errText, &e.Duration, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning journal entry: %w", err)
		}

		if value.Valid {
			e.Value = &value.Int64
		}
		if backendID.Valid {
			e.BackendID = &backendID.Int64
		}
		if items.Valid {
			n := int(items.Int64)
			e.Items = &n
		}
		if published.Valid {
			n := int(published.Int64)
			e.Published = &n
		}
		e.RunID = runID.String
		e.Error = errText.String
		e.Success = success == 1

		e.CreatedAt, err = time.Parse(timeLayout, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating journal: %w", err)
	}
	return entries, nil
}

// Prune deletes entries older than olderThan and returns how many went.
func (r *Repository) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, errors.New("olderThan must be positive")
	}

	cutoff := time.Now().UTC().Add(-olderThan).Format(timeLayout)
	result, err := r.db.ExecContext(ctx, "DELETE FROM delivery_journal WHERE created_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("pruning journal: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return n, nil
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
