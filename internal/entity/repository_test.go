package entity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/simmsb/synapse-extension/internal/infrastructure/config"
	"github.com/simmsb/synapse-extension/internal/infrastructure/database"
	_ "github.com/simmsb/synapse-extension/migrations" // registers the schema
)

func openTestRepository(t *testing.T) *SQLiteRepository {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(ctx, config.DatabaseConfig{Path: ":memory:", BusyTimeout: 5})
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // test cleanup

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return NewSQLiteRepository(db.DB)
}

func TestSQLiteRepository(t *testing.T) {
	repo := openTestRepository(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	if _, err := repo.GetByUniqueID(ctx, "light", "synapse", "abc"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetByUniqueID() on empty table error = %v, want ErrNotFound", err)
	}

	rec := &Record{
		ID: "row-1", EntityID: "light.desk_lamp", UniqueID: "abc", Domain: "light",
		Platform: "synapse", EntryID: "entry-1", Name: "Desk Lamp",
		CreatedAt: now, UpdatedAt: now,
	}
	if err := repo.Create(ctx, rec); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	got, err := repo.GetByUniqueID(ctx, "light", "synapse", "abc")
	if err != nil {
		t.Fatalf("GetByUniqueID() error = %v", err)
	}
	if got.EntityID != "light.desk_lamp" || got.Name != "Desk Lamp" || !got.CreatedAt.Equal(now) {
		t.Errorf("GetByUniqueID() = %+v", got)
	}

	exists, err := repo.EntityIDExists(ctx, "light.desk_lamp")
	if err != nil || !exists {
		t.Errorf("EntityIDExists() = %v, %v", exists, err)
	}

	dup := *rec
	dup.ID = "row-2"
	dup.UniqueID = "other"
	if err := repo.Create(ctx, &dup); !errors.Is(err, ErrEntityIDExists) {
		t.Errorf("Create() duplicate entity_id error = %v, want ErrEntityIDExists", err)
	}

	later := now.Add(time.Hour)
	if err := repo.Touch(ctx, "row-1", "entry-2", "Study Lamp", later); err != nil {
		t.Fatalf("Touch() error = %v", err)
	}
	if err := repo.Touch(ctx, "missing", "e", "n", later); !errors.Is(err, ErrNotFound) {
		t.Errorf("Touch(missing) error = %v, want ErrNotFound", err)
	}

	list, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 1 || list[0].Name != "Study Lamp" || list[0].EntryID != "entry-2" || !list[0].UpdatedAt.Equal(later) {
		t.Errorf("List() = %+v", list)
	}
}

func TestRegistryOverSQLite(t *testing.T) {
	repo := openTestRepository(t)
	ctx := context.Background()

	first := NewRegistry(repo)
	e1, err := first.Register(ctx, "entry-1", light("abc", "Desk Lamp"))
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if _, err := first.Register(ctx, "entry-1", light("def", "Desk Lamp")); err != nil {
		t.Fatalf("Register() second lamp error = %v", err)
	}

	second := NewRegistry(repo)
	e2, err := second.Register(ctx, "entry-1", light("abc", "Desk Lamp"))
	if err != nil {
		t.Fatalf("Register() after restart error = %v", err)
	}
	if e2.EntityID != e1.EntityID {
		t.Errorf("EntityID = %q, want %q", e2.EntityID, e1.EntityID)
	}

	e3, err := second.Register(ctx, "entry-1", light("def", "Desk Lamp"))
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if e3.EntityID != "light.desk_lamp_2" {
		t.Errorf("EntityID = %q, want light.desk_lamp_2", e3.EntityID)
	}
}
