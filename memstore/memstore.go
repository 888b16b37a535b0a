// Package memstore provides an in-process meteor.Model over a mutable row
// slice. It backs the package tests, the examples and the CLI demo mode;
// production deployments use sqlstore or their own Model.
package memstore

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	meteor "github.com/VR-web-shop/METEOR"
	"github.com/VR-web-shop/METEOR/graph"
)

// Store is an in-memory entity table. Safe for concurrent use.
type Store struct {
	name     string
	keyField string

	mu        sync.RWMutex
	rows      []meteor.Record
	relations []*relation
	graph     *graph.Graph
}

// relation links an association alias to a sibling store.
type relation struct {
	alias      string
	target     *Store
	localKey   string // field on this store's rows
	foreignKey string // field on the target's rows compared against localKey
	many       bool   // list association vs single record
}

// New returns an empty store for the named entity with the given
// primary-key field.
func New(name, keyField string) *Store {
	return &Store{name: name, keyField: keyField, graph: &graph.Graph{}}
}

// Relate registers an association from this store to target under alias.
// Rows of target whose foreignKey equals a row's localKey are attached on
// include; many selects between a list and a single record.
func (s *Store) Relate(alias string, target *Store, localKey, foreignKey string, many bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.graph.Add(&graph.Association{Alias: alias, Target: target.name, Graph: target.graph}); err != nil {
		return err
	}
	s.relations = append(s.relations, &relation{
		alias:      alias,
		target:     target,
		localKey:   localKey,
		foreignKey: foreignKey,
		many:       many,
	})
	return nil
}

// Name implements meteor.Model.
func (s *Store) Name() string { return s.name }

// Associations implements meteor.Model.
func (s *Store) Associations() *graph.Graph { return s.graph }

// Count implements meteor.Model.
func (s *Store) Count(context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows), nil
}

// FindAll implements meteor.Model.
func (s *Store) FindAll(_ context.Context, q meteor.Query) ([]meteor.Record, error) {
	s.mu.RLock()
	var matched []meteor.Record
	for _, row := range s.rows {
		if s.matches(row, q) {
			matched = append(matched, row.Clone())
		}
	}
	s.mu.RUnlock()
	if q.Offset > 0 {
		if q.Offset >= len(matched) {
			matched = nil
		} else {
			matched = matched[q.Offset:]
		}
	}
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}
	// Attach outside the lock: a relation may point back at this store.
	for _, row := range matched {
		s.attach(row, q.Include)
	}
	return matched, nil
}

// FindOne implements meteor.Model. Returns nil, nil when no row matches.
func (s *Store) FindOne(_ context.Context, q meteor.Query) (meteor.Record, error) {
	s.mu.RLock()
	var out meteor.Record
	for _, row := range s.rows {
		if s.matches(row, q) {
			out = row.Clone()
			break
		}
	}
	s.mu.RUnlock()
	if out == nil {
		return nil, nil
	}
	s.attach(out, q.Include)
	return out, nil
}

// Create implements meteor.Model. A missing primary key is filled with a
// fresh uuid.
func (s *Store) Create(_ context.Context, fields meteor.Record) (meteor.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row := fields.Clone()
	if row == nil {
		row = meteor.Record{}
	}
	if v, ok := row[s.keyField]; !ok || v == "" {
		row[s.keyField] = uuid.NewString()
	}
	s.rows = append(s.rows, row)
	return row.Clone(), nil
}

// Update implements meteor.Model.
func (s *Store) Update(_ context.Context, key any, keyField string, fields meteor.Record) (meteor.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range s.rows {
		if equal(row[keyField], key) {
			for k, v := range fields {
				row[k] = v
			}
			return row.Clone(), nil
		}
	}
	return nil, meteor.NewNotFoundErrorWithKey(s.name, key)
}

// Destroy implements meteor.Model.
func (s *Store) Destroy(_ context.Context, key any, keyField string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, row := range s.rows {
		if equal(row[keyField], key) {
			s.rows = append(s.rows[:i], s.rows[i+1:]...)
			return nil
		}
	}
	return meteor.NewNotFoundErrorWithKey(s.name, key)
}

// Seed inserts rows directly, bypassing key generation. Test helper.
func (s *Store) Seed(rows ...meteor.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range rows {
		s.rows = append(s.rows, row.Clone())
	}
}

// matches applies the where and search filters of q to one row.
func (s *Store) matches(row meteor.Record, q meteor.Query) bool {
	for k, want := range q.Where {
		if !equal(row[k], want) {
			return false
		}
	}
	if q.Search != nil {
		term := strings.ToLower(q.Search.Term)
		found := false
		for _, f := range q.Search.Fields {
			v, ok := row[f]
			if !ok {
				continue
			}
			if strings.Contains(strings.ToLower(fmt.Sprint(v)), term) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// attach resolves the inclusion tree against the registered relations and
// nests related records under their alias.
func (s *Store) attach(row meteor.Record, include []*graph.Node) {
	for _, node := range include {
		rel := s.relation(node.Alias)
		if rel == nil {
			continue
		}
		related := rel.target.matchRelated(row[rel.localKey], rel.foreignKey, node.Children)
		if rel.many {
			row[node.Alias] = related
		} else if len(related) > 0 {
			row[node.Alias] = related[0]
		}
	}
}

// matchRelated returns clones of the rows whose foreignKey equals value,
// each with the child inclusion tree attached.
func (s *Store) matchRelated(value any, foreignKey string, children []*graph.Node) []meteor.Record {
	s.mu.RLock()
	var related []meteor.Record
	for _, row := range s.rows {
		if equal(row[foreignKey], value) {
			related = append(related, row.Clone())
		}
	}
	s.mu.RUnlock()
	for _, out := range related {
		s.attach(out, children)
	}
	return related
}

func (s *Store) relation(alias string) *relation {
	for _, rel := range s.relations {
		if rel.alias == alias {
			return rel
		}
	}
	return nil
}

// equal compares loosely by printed value, so string keys match their
// typed counterparts the way a dynamic data layer would.
func equal(a, b any) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a == b || fmt.Sprint(a) == fmt.Sprint(b)
}

var _ meteor.Model = (*Store)(nil)
