package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Sources of recorded actions.
const (
	SourceAPI      = "api"
	SourceRegistry = "registry"
)

// Outcomes of recorded actions.
const (
	OutcomeAccepted = "accepted"
	OutcomeFailed   = "failed"
)

// ActionRegister marks an entity registration.
const ActionRegister = "register"

// timeLayout is fixed width so created_at sorts chronologically as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Page size bounds for List.
const (
	defaultLimit = 50
	maxLimit     = 200
)

// Entry is one recorded action.
type Entry struct {
	ID        string         `json:"id"`
	Action    string         `json:"action"`
	EntityID  string         `json:"entity_id"`
	UniqueID  string         `json:"unique_id"`
	Subject   string         `json:"subject,omitempty"`
	Source    string         `json:"source"`
	Outcome   string         `json:"outcome"`
	Params    map[string]any `json:"params,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Filter controls which entries List returns.
type Filter struct {
	Action   string // optional
	EntityID string // optional
	Limit    int    // default 50, max 200
	Offset   int
}

// ListResult is one page of entries, newest first.
type ListResult struct {
	Entries []Entry `json:"entries"`
	Total   int     `json:"total"`
	Limit   int     `json:"limit"`
	Offset  int     `json:"offset"`
}

// Repository defines the action log operations.
type Repository interface {
	Create(ctx context.Context, e *Entry) error
	List(ctx context.Context, filter Filter) (*ListResult, error)
}

// SQLiteRepository stores entries in SQLite.
type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteRepository creates a new action log repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db, now: time.Now}
}

// Create inserts e. ID and CreatedAt are filled in when empty.
func (r *SQLiteRepository) Create(ctx context.Context, e *Entry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = r.now().UTC()
	}

	var params *string
	if len(e.Params) > 0 {
		b, err := json.Marshal(e.Params)
		if err != nil {
			return fmt.Errorf("marshalling action params: %w", err)
		}
		s := string(b)
		params = &s
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO action_log (id, action, entity_id, unique_id, subject, source, outcome, params, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Action, e.EntityID, e.UniqueID,
		nullableString(e.Subject), e.Source, e.Outcome, params,
		e.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting action log entry: %w", err)
	}
	return nil
}

// nullableString maps "" to NULL.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// List returns entries matching filter, most recent first.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultLimit
	}
	if filter.Limit > maxLimit {
		filter.Limit = maxLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	var conditions []string
	var args []any
	if filter.Action != "" {
		conditions = append(conditions, "action = ?")
		args = append(args, filter.Action)
	}
	if filter.EntityID != "" {
		conditions = append(conditions, "entity_id = ?")
		args = append(args, filter.EntityID)
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM action_log " + where //nolint:gosec // WHERE built from parameterised conditions
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting action log: %w", err)
	}

	query := "SELECT id, action, entity_id, unique_id, subject, source, outcome, params, created_at FROM action_log " + //nolint:gosec // as above
		where + " ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?"
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying action log: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0, filter.Limit)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating action log: %w", err)
	}

	return &ListResult{
		Entries: entries,
		Total:   total,
		Limit:   filter.Limit,
		Offset:  filter.Offset,
	}, nil
}

func scanEntry(rows *sql.Rows) (Entry, error) {
	var e Entry
	var subject, params sql.NullString
	var createdAt string

	if err := rows.Scan(&e.ID, &e.Action, &e.EntityID, &e.UniqueID,
		&subject, &e.Source, &e.Outcome, &params, &createdAt); err != nil {
		return Entry{}, fmt.Errorf("scanning action log entry: %w", err)
	}

	e.Subject = subject.String
	if params.Valid && params.String != "" {
		if err := json.Unmarshal([]byte(params.String), &e.Params); err != nil {
			return Entry{}, fmt.Errorf("decoding params of %s: %w", e.ID, err)
		}
	}

	t, err := time.Parse(timeLayout, createdAt)
	if err != nil {
		return Entry{}, fmt.Errorf("parsing action log timestamp %q: %w", createdAt, err)
	}
	e.CreatedAt = t
	return e, nil
}
