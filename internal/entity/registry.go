package entity

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/simmsb/synapse-extension/internal/platform"
)

// DefaultPlatform is the platform name recorded for Synapse entities.
const DefaultPlatform = "synapse"

// maxEntityIDSuffix bounds the search for a free entity_id.
const maxEntityIDSuffix = 1000

// Logger defines the logging interface used by the Registry.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Entry is a live registered entity.
type Entry struct {
	Record
	Entity platform.Entity
}

// Registry tracks live entities and their persisted identities.
//
// All public methods are thread-safe.
type Registry struct {
	repo     Repository
	platform string

	mu       sync.RWMutex
	live     map[string]*Entry // by entity_id
	byUnique map[string]string // domain/unique_id -> entity_id
	rejected int

	listenersMu sync.RWMutex
	listeners   []func(*Entry)

	logger Logger
	now    func() time.Time
}

// NewRegistry creates a registry persisting to repo.
func NewRegistry(repo Repository) *Registry {
	return &Registry{
		repo:     repo,
		platform: DefaultPlatform,
		live:     make(map[string]*Entry),
		byUnique: make(map[string]string),
		logger:   noopLogger{},
		now:      time.Now,
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// OnRegistered registers fn to run after each successful registration.
func (r *Registry) OnRegistered(fn func(*Entry)) {
	r.listenersMu.Lock()
	r.listeners = append(r.listeners, fn)
	r.listenersMu.Unlock()
}

// AddEntities returns the callback a platform uses to hand over entities
// for one configuration entry. Rejected entities are logged and skipped.
func (r *Registry) AddEntities(ctx context.Context, entryID string) platform.AddEntitiesFunc {
	return func(entities []platform.Entity) {
		for _, e := range entities {
			if _, err := r.Register(ctx, entryID, e); err != nil {
				r.logger.Warn("entity not registered",
					"entry_id", entryID,
					"unique_id", e.UniqueID(),
					"domain", e.Domain(),
					"error", err,
				)
			}
		}
	}
}

func uniqueKey(domain, uniqueID string) string {
	return domain + "/" + uniqueID
}

// Register adds one entity, reusing its stored entity_id if it has one.
func (r *Registry) Register(ctx context.Context, entryID string, e platform.Entity) (*Entry, error) {
	uniqueID := e.UniqueID()
	if uniqueID == "" {
		return nil, ErrMissingUniqueID
	}
	domain := e.Domain()
	key := uniqueKey(domain, uniqueID)

	// Holding the lock across the store round trip keeps two registrations
	// of the same device from both succeeding.
	r.mu.Lock()
	if existing, ok := r.byUnique[key]; ok {
		r.rejected++
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s is %s", ErrDuplicateUniqueID, key, existing)
	}

	rec, err := r.resolve(ctx, entryID, domain, uniqueID, e.Name())
	if err != nil {
		r.mu.Unlock()
		return nil, err
	}

	entry := &Entry{Record: *rec, Entity: e}
	r.live[rec.EntityID] = entry
	r.byUnique[key] = rec.EntityID
	r.mu.Unlock()

	r.logger.Info("entity registered", "entity_id", rec.EntityID, "unique_id", uniqueID, "entry_id", entryID)

	r.listenersMu.RLock()
	listeners := r.listeners
	r.listenersMu.RUnlock()
	for _, fn := range listeners {
		fn(entry)
	}
	return entry, nil
}

// resolve loads or creates the persisted record. Caller holds r.mu.
func (r *Registry) resolve(ctx context.Context, entryID, domain, uniqueID, name string) (*Record, error) {
	now := r.now()

	rec, err := r.repo.GetByUniqueID(ctx, domain, r.platform, uniqueID)
	switch {
	case err == nil:
		if rec.Name != name || rec.EntryID != entryID {
			if err := r.repo.Touch(ctx, rec.ID, entryID, name, now); err != nil {
				return nil, fmt.Errorf("refreshing %s: %w", rec.EntityID, err)
			}
			rec.Name, rec.EntryID, rec.UpdatedAt = name, entryID, now
		}
		return rec, nil
	case !errors.Is(err, ErrNotFound):
		return nil, fmt.Errorf("looking up %s: %w", uniqueID, err)
	}

	entityID, err := r.freeEntityID(ctx, domain, name, uniqueID)
	if err != nil {
		return nil, err
	}

	rec = &Record{
		ID:        uuid.NewString(),
		EntityID:  entityID,
		UniqueID:  uniqueID,
		Domain:    domain,
		Platform:  r.platform,
		EntryID:   entryID,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := r.repo.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("storing %s: %w", entityID, err)
	}
	return rec, nil
}

// freeEntityID picks domain.slug, adding _2, _3, ... when taken.
func (r *Registry) freeEntityID(ctx context.Context, domain, name, uniqueID string) (string, error) {
	slug := Slugify(name)
	if slug == "" {
		slug = Slugify(uniqueID)
	}
	if slug == "" {
		slug = "unnamed"
	}
	base := domain + "." + slug

	for i := 1; i <= maxEntityIDSuffix; i++ {
		candidate := base
		if i > 1 {
			candidate = base + "_" + strconv.Itoa(i)
		}
		if _, live := r.live[candidate]; live {
			continue
		}
		taken, err := r.repo.EntityIDExists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w: no free id for %s", ErrEntityIDExists, base)
}

// Get returns the live entry for entityID.
func (r *Registry) Get(entityID string) (*Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.live[entityID]
	return e, ok
}

// Lookup returns the live entry for a domain and unique id.
func (r *Registry) Lookup(domain, uniqueID string) (*Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byUnique[uniqueKey(domain, uniqueID)]
	if !ok {
		return nil, false
	}
	e, ok := r.live[id]
	return e, ok
}

// List returns live entries of domain ("" for all), ordered by entity_id.
func (r *Registry) List(domain string) []*Entry {
	r.mu.RLock()
	out := make([]*Entry, 0, len(r.live))
	for _, e := range r.live {
		if domain == "" || e.Domain == domain {
			out = append(out, e)
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].EntityID < out[j].EntityID })
	return out
}

// Count returns the number of live entities.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.live)
}

// Rejected returns how many registrations were refused as duplicates.
func (r *Registry) Rejected() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.rejected
}
