package entity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Record is the persisted identity of an entity.
type Record struct {
	ID        string
	EntityID  string
	UniqueID  string
	Domain    string
	Platform  string
	EntryID   string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Repository persists entity records.
type Repository interface {
	// GetByUniqueID returns ErrNotFound if no record matches.
	GetByUniqueID(ctx context.Context, domain, platform, uniqueID string) (*Record, error)

	// EntityIDExists reports whether entityID is already assigned.
	EntityIDExists(ctx context.Context, entityID string) (bool, error)

	// Create inserts a record. Returns ErrEntityIDExists on conflict.
	Create(ctx context.Context, rec *Record) error

	// Touch refreshes the stored name and entry of an existing record.
	Touch(ctx context.Context, id, entryID, name string, at time.Time) error

	// List returns every record ordered by entity_id.
	List(ctx context.Context) ([]Record, error)
}

// SQLiteRepository implements Repository on the entity_registry table.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository over an open, migrated database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const selectRecord = `
	SELECT id, entity_id, unique_id, domain, platform, entry_id, name, created_at, updated_at
	FROM entity_registry`

// GetByUniqueID looks up the record for a device.
func (r *SQLiteRepository) GetByUniqueID(ctx context.Context, domain, platform, uniqueID string) (*Record, error) {
	row := r.db.QueryRowContext(ctx,
		selectRecord+` WHERE domain = ? AND platform = ? AND unique_id = ?`,
		domain, platform, uniqueID,
	)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying entity by unique id: %w", err)
	}
	return rec, nil
}

// EntityIDExists checks whether an entity_id is taken.
func (r *SQLiteRepository) EntityIDExists(ctx context.Context, entityID string) (bool, error) {
	var n int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM entity_registry WHERE entity_id = ?`, entityID,
	).Scan(&n); err != nil {
		return false, fmt.Errorf("checking entity id: %w", err)
	}
	return n > 0, nil
}

// Create inserts a new record.
func (r *SQLiteRepository) Create(ctx context.Context, rec *Record) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO entity_registry
			(id, entity_id, unique_id, domain, platform, entry_id, name, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.EntityID, rec.UniqueID, rec.Domain, rec.Platform, rec.EntryID, rec.Name,
		rec.CreatedAt.UTC().Format(time.RFC3339), rec.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("%w: %s", ErrEntityIDExists, rec.EntityID)
		}
		return fmt.Errorf("inserting entity: %w", err)
	}
	return nil
}

// Touch updates name, entry and updated_at.
func (r *SQLiteRepository) Touch(ctx context.Context, id, entryID, name string, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE entity_registry SET entry_id = ?, name = ?, updated_at = ? WHERE id = ?`,
		entryID, name, at.UTC().Format(time.RFC3339), id,
	)
	if err != nil {
		return fmt.Errorf("updating entity: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns all records.
func (r *SQLiteRepository) List(ctx context.Context) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx, selectRecord+` ORDER BY entity_id`)
	if err != nil {
		return nil, fmt.Errorf("listing entities: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning entity: %w", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating entities: %w", err)
	}
	return records, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (*Record, error) {
	var rec Record
	var createdAt, updatedAt string
	if err := s.Scan(&rec.ID, &rec.EntityID, &rec.UniqueID, &rec.Domain, &rec.Platform,
		&rec.EntryID, &rec.Name, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	rec.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // we write this format
	rec.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt) //nolint:errcheck // we write this format
	return &rec, nil
}
