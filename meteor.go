// Package meteor turns a terse per-entity configuration into a full set of
// data-access operations (find, findAll, create, update, destroy) and a
// mirrored HTTP client layer with an identical contract.
//
// The shared contracts live in this package: Record (a dynamic row), Query
// (the resolved query object handed to the data layer), Model (the narrow
// interface the data layer must satisfy) and the error taxonomy every
// generated operation reports through. The actual generators live in the
// crud and client packages; the association-path micro-language in assocpath.
package meteor

import (
	"context"
	"strconv"
	"time"

	"github.com/VR-web-shop/METEOR/graph"
)

// Record is a single row as the dynamic data layer sees it. Included
// associations appear under their alias as a nested Record or []Record.
type Record map[string]any

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	c := make(Record, len(r))
	for k, v := range r {
		c[k] = v
	}
	return c
}

// Pick returns a copy of the record narrowed to the given fields.
// Fields absent on the record stay absent, never defaulted.
func (r Record) Pick(fields []string) Record {
	c := make(Record, len(fields))
	for _, f := range fields {
		if v, ok := r[f]; ok {
			c[f] = v
		}
	}
	return c
}

// Search describes an OR-across-fields substring match.
type Search struct {
	Fields []string
	Term   string
}

// Query is the resolved query object driving a data-layer call.
// Where keys are merged with, not replaced by, the search filter.
type Query struct {
	Where   map[string]any
	Search  *Search
	Include []*graph.Node
	Limit   int
	Offset  int
}

// Model is the data-layer collaborator an operation set is generated
// against. Implementations must treat a missing row as (nil, nil) on
// FindOne; the operation layer turns that into a NotFoundError.
type Model interface {
	// Name returns the entity type name (e.g. "Material").
	Name() string

	// Count returns the total number of rows of the entity.
	Count(ctx context.Context) (int, error)

	// FindAll returns the rows matching the query, honoring
	// Where, Search, Include, Limit and Offset.
	FindAll(ctx context.Context, q Query) ([]Record, error)

	// FindOne returns the first row matching the query, or nil if none.
	FindOne(ctx context.Context, q Query) (Record, error)

	// Create persists the given fields and returns the stored row.
	Create(ctx context.Context, fields Record) (Record, error)

	// Update mutates the row whose keyField equals key and returns the
	// updated row. Returns ErrNotFound if no such row exists.
	Update(ctx context.Context, key any, keyField string, fields Record) (Record, error)

	// Destroy removes the row whose keyField equals key.
	// Returns ErrNotFound if no such row exists.
	Destroy(ctx context.Context, key any, keyField string) error

	// Associations returns the entity's read-only association registry.
	Associations() *graph.Graph
}

// Cache is the interface for caching findAll pages.
// Users should implement this interface with their preferred caching
// solution (e.g. Redis, Memcached, in-memory).
type Cache interface {
	// Get retrieves a value from the cache.
	// Returns nil, nil if the key doesn't exist.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value in the cache with an optional TTL.
	// If ttl is 0, the value should not expire.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from the cache.
	Delete(ctx context.Context, key string) error

	// DeletePrefix removes all values with the given prefix.
	DeletePrefix(ctx context.Context, prefix string) error
}

// CacheKey identifies one findAll page in a Cache.
type CacheKey struct {
	Entity string
	Limit  int
	Page   int
	Q      string
	Where  string
	Inc    string
}

// String returns the string representation of the cache key.
// Keys of one entity share the prefix returned by Prefix.
func (k CacheKey) String() string {
	return k.Prefix() + k.Q + ":" + k.Where + ":" + k.Inc + ":" +
		strconv.Itoa(k.Limit) + ":" + strconv.Itoa(k.Page)
}

// Prefix returns the cache-key prefix shared by all pages of the entity.
func (k CacheKey) Prefix() string {
	return k.Entity + ":findAll:"
}

// Logger receives structured debug and failure lines from generated
// operations. The signature is log.Printf compatible.
type Logger func(format string, args ...any)

// NopLogger discards all lines. It is the default for operation sets
// constructed without Options.Debug.
func NopLogger(string, ...any) {}
