// Package registry resolves category and source names to stored rows,
// creating them on first use.
package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"tldrbot/internal/database"
)

// Store is the part of the persistence layer the registry needs.
type Store interface {
	FindByName(ctx context.Context, kind database.Kind, name string) (database.Named, error)
	InsertNamed(ctx context.Context, kind database.Kind, name string) (database.Named, error)
}

// Handle identifies a resolved category or source.
type Handle struct {
	ID   int64
	Name string
}

type cacheKey struct {
	kind database.Kind
	name string
}

type Registry struct {
	store  Store
	logger zerolog.Logger
	mu     sync.RWMutex
	cache  map[cacheKey]Handle
}

func New(store Store, logger zerolog.Logger) *Registry {
	return &Registry{
		store:  store,
		logger: logger.With().Str("component", "registry").Logger(),
		cache:  make(map[cacheKey]Handle),
	}
}

// Category resolves or creates the named category.
func (r *Registry) Category(ctx context.Context, name string) (Handle, error) {
	return r.ResolveOrCreate(ctx, database.KindCategory, name)
}

// Source resolves or creates the named news source.
func (r *Registry) Source(ctx context.Context, name string) (Handle, error) {
	return r.ResolveOrCreate(ctx, database.KindSource, name)
}

// ResolveOrCreate looks the name up and inserts it when absent. A concurrent
// insert of the same name is resolved by reading back the winning row.
func (r *Registry) ResolveOrCreate(ctx context.Context, kind database.Kind, name string) (Handle, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Handle{}, fmt.Errorf("%w: empty %s name", database.ErrInvalidInput, kind)
	}
	key := cacheKey{kind, name}

	r.mu.RLock()
	h, ok := r.cache[key]
	r.mu.RUnlock()
	if ok {
		return h, nil
	}

	row, err := r.store.FindByName(ctx, kind, name)
	switch {
	case err == nil:
	case errors.Is(err, database.ErrNotFound):
		row, err = r.store.InsertNamed(ctx, kind, name)
		if errors.Is(err, database.ErrDuplicate) {
			r.logger.Debug().Str("kind", string(kind)).Str("name", name).Msg("Lost create race, reading existing row")
			row, err = r.store.FindByName(ctx, kind, name)
		} else if err == nil {
			r.logger.Info().Str("kind", string(kind)).Str("name", name).Int64("id", row.ID).Msg("Created")
		}
		if err != nil {
			return Handle{}, fmt.Errorf("creating %s %q: %w", kind, name, err)
		}
	default:
		return Handle{}, fmt.Errorf("resolving %s %q: %w", kind, name, err)
	}

	h = Handle{ID: row.ID, Name: row.Name}
	r.mu.Lock()
	r.cache[key] = h
	r.mu.Unlock()
	return h, nil
}
