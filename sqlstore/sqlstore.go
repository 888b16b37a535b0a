// Package sqlstore implements the Model contract over database/sql. One
// Store maps one table; associations are declared per alias and loaded
// with batched follow-up queries, one query per association level.
//
// Supported dialects are mysql, postgres and sqlite. The store only
// differs between them in placeholder style, identifier quoting and the
// case-insensitive LIKE form.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"

	meteor "github.com/VR-web-shop/METEOR"
	"github.com/VR-web-shop/METEOR/graph"
)

// Supported dialect names. They double as driver names for sql.Open.
const (
	MySQL    = "mysql"
	Postgres = "postgres"
	SQLite   = "sqlite"
)

// ExecQuerier wraps the standard Exec and Query methods, satisfied by
// *sql.DB and *sql.Tx.
type ExecQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// validIdentifier bounds table, column and alias names. Filter fields
// are whitelisted upstream, this is the last line.
var validIdentifier = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Store is a Model over one SQL table.
type Store struct {
	db        ExecQuerier
	dialect   string
	name      string
	table     string
	keyField  string
	graph     *graph.Graph
	relations map[string]relation
}

type relation struct {
	target     *Store
	localKey   string
	foreignKey string
	many       bool
}

// New builds a Store over db. name is the entity label used in errors,
// table the SQL table, keyField the primary-key column.
func New(db ExecQuerier, dialect, name, table, keyField string) (*Store, error) {
	switch dialect {
	case MySQL, Postgres, SQLite:
	default:
		return nil, fmt.Errorf("sqlstore: unsupported dialect %q", dialect)
	}
	for _, ident := range []string{table, keyField} {
		if !validIdentifier.MatchString(ident) {
			return nil, fmt.Errorf("sqlstore: invalid identifier %q", ident)
		}
	}
	return &Store{
		db:        db,
		dialect:   dialect,
		name:      name,
		table:     table,
		keyField:  keyField,
		graph:     graph.New(),
		relations: map[string]relation{},
	}, nil
}

// Open opens a database and builds a Store over it. The driver named by
// dialect must be imported by the caller.
func Open(dialect, source, name, table, keyField string) (*Store, *sql.DB, error) {
	db, err := sql.Open(dialect, source)
	if err != nil {
		return nil, nil, fmt.Errorf("sqlstore: open %s: %w", dialect, err)
	}
	s, err := New(db, dialect, name, table, keyField)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return s, db, nil
}

// Relate declares the association alias from this store to target. Rows
// of target are matched where target.foreignKey equals this row's
// localKey; many selects all matches, otherwise the first. The alias
// becomes part of the association graph so include paths can traverse
// it.
func (s *Store) Relate(alias string, target *Store, localKey, foreignKey string, many bool) error {
	if target == nil {
		return fmt.Errorf("sqlstore: nil target for association %q", alias)
	}
	if !validIdentifier.MatchString(localKey) || !validIdentifier.MatchString(foreignKey) {
		return fmt.Errorf("sqlstore: invalid key for association %q", alias)
	}
	if err := s.graph.Add(&graph.Association{Alias: alias, Target: target.name, Graph: target.graph}); err != nil {
		return err
	}
	s.relations[alias] = relation{target: target, localKey: localKey, foreignKey: foreignKey, many: many}
	return nil
}

// Name implements Model.
func (s *Store) Name() string { return s.name }

// Associations implements Model.
func (s *Store) Associations() *graph.Graph { return s.graph }

// Count implements Model. It counts the whole table.
func (s *Store) Count(ctx context.Context) (int, error) {
	var count int
	rows, err := s.db.QueryContext(ctx, "SELECT COUNT(*) FROM "+s.ident(s.table))
	if err != nil {
		return 0, fmt.Errorf("sqlstore: count %s: %w", s.name, err)
	}
	defer rows.Close()
	if rows.Next() {
		if err := rows.Scan(&count); err != nil {
			return 0, fmt.Errorf("sqlstore: count %s: %w", s.name, err)
		}
	}
	return count, rows.Err()
}

// FindAll implements Model.
func (s *Store) FindAll(ctx context.Context, q meteor.Query) ([]meteor.Record, error) {
	query, args := s.selectQuery(q)
	rows, err := s.query(ctx, query, args)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: find all %s: %w", s.name, err)
	}
	if err := s.attach(ctx, rows, q.Include); err != nil {
		return nil, err
	}
	return rows, nil
}

// FindOne implements Model. A miss is (nil, nil).
func (s *Store) FindOne(ctx context.Context, q meteor.Query) (meteor.Record, error) {
	q.Limit = 1
	q.Offset = 0
	rows, err := s.FindAll(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// Create implements Model. A missing key field gets a fresh UUID.
func (s *Store) Create(ctx context.Context, fields meteor.Record) (meteor.Record, error) {
	row := fields.Clone()
	if row == nil {
		row = meteor.Record{}
	}
	if _, ok := row[s.keyField]; !ok {
		row[s.keyField] = uuid.NewString()
	}
	cols := sortedColumns(row)
	var (
		sb   strings.Builder
		args = make([]any, 0, len(cols))
	)
	sb.WriteString("INSERT INTO " + s.ident(s.table) + " (")
	for i, c := range cols {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(s.ident(c))
	}
	sb.WriteString(") VALUES (")
	for i, c := range cols {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(s.placeholder(i + 1))
		args = append(args, row[c])
	}
	sb.WriteString(")")
	if _, err := s.db.ExecContext(ctx, sb.String(), args...); err != nil {
		return nil, fmt.Errorf("sqlstore: create %s: %w", s.name, err)
	}
	return s.fetch(ctx, row[s.keyField], s.keyField)
}

// Update implements Model. Updating a missing key fails with
// NotFoundError.
func (s *Store) Update(ctx context.Context, key any, keyField string, fields meteor.Record) (meteor.Record, error) {
	if keyField == "" {
		keyField = s.keyField
	}
	if !validIdentifier.MatchString(keyField) {
		return nil, fmt.Errorf("sqlstore: invalid identifier %q", keyField)
	}
	cols := sortedColumns(fields)
	if len(cols) == 0 {
		return s.fetch(ctx, key, keyField)
	}
	var (
		sb   strings.Builder
		args = make([]any, 0, len(cols)+1)
	)
	sb.WriteString("UPDATE " + s.ident(s.table) + " SET ")
	for i, c := range cols {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(s.ident(c) + " = " + s.placeholder(i+1))
		args = append(args, fields[c])
	}
	sb.WriteString(" WHERE " + s.ident(keyField) + " = " + s.placeholder(len(cols)+1))
	args = append(args, key)
	res, err := s.db.ExecContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: update %s: %w", s.name, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, meteor.NewNotFoundErrorWithKey(s.name, key)
	}
	return s.fetch(ctx, key, keyField)
}

// Destroy implements Model. Destroying a missing key fails with
// NotFoundError.
func (s *Store) Destroy(ctx context.Context, key any, keyField string) error {
	if keyField == "" {
		keyField = s.keyField
	}
	if !validIdentifier.MatchString(keyField) {
		return fmt.Errorf("sqlstore: invalid identifier %q", keyField)
	}
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM "+s.ident(s.table)+" WHERE "+s.ident(keyField)+" = "+s.placeholder(1), key)
	if err != nil {
		return fmt.Errorf("sqlstore: destroy %s: %w", s.name, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return meteor.NewNotFoundErrorWithKey(s.name, key)
	}
	return nil
}

// selectQuery renders the SELECT for q. Where keys are sorted so a
// given query always renders the same SQL.
func (s *Store) selectQuery(q meteor.Query) (string, []any) {
	var (
		sb   strings.Builder
		args []any
		n    int
	)
	sb.WriteString("SELECT * FROM " + s.ident(s.table))
	var conds []string
	for _, k := range sortedColumns(q.Where) {
		if !validIdentifier.MatchString(k) {
			continue
		}
		n++
		conds = append(conds, s.ident(k)+" = "+s.placeholder(n))
		args = append(args, q.Where[k])
	}
	if q.Search != nil && q.Search.Term != "" && len(q.Search.Fields) > 0 {
		var ors []string
		for _, f := range q.Search.Fields {
			if !validIdentifier.MatchString(f) {
				continue
			}
			n++
			ors = append(ors, s.like(f, n))
			args = append(args, "%"+q.Search.Term+"%")
		}
		if len(ors) > 0 {
			conds = append(conds, "("+strings.Join(ors, " OR ")+")")
		}
	}
	if len(conds) > 0 {
		sb.WriteString(" WHERE " + strings.Join(conds, " AND "))
	}
	sb.WriteString(" ORDER BY " + s.ident(s.keyField))
	if q.Limit > 0 {
		sb.WriteString(" LIMIT " + strconv.Itoa(q.Limit))
	}
	if q.Offset > 0 {
		sb.WriteString(" OFFSET " + strconv.Itoa(q.Offset))
	}
	return sb.String(), args
}

// attach loads the associations named by nodes onto rows with one
// batched query per node, recursing into child nodes on the target
// store.
func (s *Store) attach(ctx context.Context, rows []meteor.Record, nodes []*graph.Node) error {
	if len(rows) == 0 || len(nodes) == 0 {
		return nil
	}
	for _, node := range nodes {
		rel, ok := s.relations[node.Alias]
		if !ok {
			return meteor.NewInvalidAssociationError(node.Alias, s.graph.Aliases())
		}
		keys := make([]any, 0, len(rows))
		seen := make(map[string]struct{}, len(rows))
		for _, row := range rows {
			v, ok := row[rel.localKey]
			if !ok || v == nil {
				continue
			}
			k := fmt.Sprint(v)
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			keys = append(keys, v)
		}
		if len(keys) == 0 {
			continue
		}
		related, err := rel.target.fetchBatch(ctx, rel.foreignKey, keys)
		if err != nil {
			return err
		}
		if err := rel.target.attach(ctx, related, node.Children); err != nil {
			return err
		}
		grouped := make(map[string][]meteor.Record, len(related))
		for _, r := range related {
			k := fmt.Sprint(r[rel.foreignKey])
			grouped[k] = append(grouped[k], r)
		}
		for _, row := range rows {
			v, ok := row[rel.localKey]
			if !ok || v == nil {
				continue
			}
			matches := grouped[fmt.Sprint(v)]
			if rel.many {
				row[node.Alias] = matches
			} else if len(matches) > 0 {
				row[node.Alias] = matches[0]
			}
		}
	}
	return nil
}

// fetchBatch selects all rows whose field is in keys.
func (s *Store) fetchBatch(ctx context.Context, field string, keys []any) ([]meteor.Record, error) {
	ph := make([]string, len(keys))
	for i := range keys {
		ph[i] = s.placeholder(i + 1)
	}
	query := "SELECT * FROM " + s.ident(s.table) +
		" WHERE " + s.ident(field) + " IN (" + strings.Join(ph, ", ") + ")" +
		" ORDER BY " + s.ident(s.keyField)
	rows, err := s.query(ctx, query, keys)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: load %s: %w", s.name, err)
	}
	return rows, nil
}

// fetch reads one row back by key, after a mutation.
func (s *Store) fetch(ctx context.Context, key any, keyField string) (meteor.Record, error) {
	rows, err := s.query(ctx,
		"SELECT * FROM "+s.ident(s.table)+" WHERE "+s.ident(keyField)+" = "+s.placeholder(1), []any{key})
	if err != nil {
		return nil, fmt.Errorf("sqlstore: fetch %s: %w", s.name, err)
	}
	if len(rows) == 0 {
		return nil, meteor.NewNotFoundErrorWithKey(s.name, key)
	}
	return rows[0], nil
}

// query runs one SELECT and scans every row into a Record keyed by
// column name. []byte cells become strings so rows behave the same
// across drivers.
func (s *Store) query(ctx context.Context, query string, args []any) ([]meteor.Record, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out []meteor.Record
	for rows.Next() {
		cells := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range cells {
			ptrs[i] = &cells[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(meteor.Record, len(cols))
		for i, c := range cols {
			if b, ok := cells[i].([]byte); ok {
				row[c] = string(b)
				continue
			}
			row[c] = cells[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (s *Store) placeholder(n int) string {
	if s.dialect == Postgres {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

func (s *Store) ident(name string) string {
	if s.dialect == MySQL {
		return "`" + name + "`"
	}
	return `"` + name + `"`
}

// like renders the case-insensitive substring condition for field. The
// default mysql and sqlite collations already compare LIKE without
// case.
func (s *Store) like(field string, n int) string {
	if s.dialect == Postgres {
		return s.ident(field) + " ILIKE " + s.placeholder(n)
	}
	return s.ident(field) + " LIKE " + s.placeholder(n)
}

func sortedColumns(r meteor.Record) []string {
	cols := make([]string, 0, len(r))
	for k := range r {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}

var _ meteor.Model = (*Store)(nil)
