// Package crud synthesizes the server-side operation set of one entity
// from a declarative options object: lookup by key, paginated listing with
// search and filtering, creation, update and destruction, with DTO
// projection and optional file-field side effects.
//
// An OperationSet is constructed once and is stateless across calls. Each
// operation handle is nil unless its option key was supplied; callers
// probe presence structurally (a nil check), never through a thrown
// "not configured" error.
package crud

import (
	"context"
	"fmt"
	"sort"
	"strings"

	jsoniter "github.com/json-iterator/go"

	meteor "github.com/VR-web-shop/METEOR"
	"github.com/VR-web-shop/METEOR/assocpath"
	"github.com/VR-web-shop/METEOR/graph"
	"github.com/VR-web-shop/METEOR/params"
	"github.com/VR-web-shop/METEOR/storage"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DefaultLimit is the findAll page size when neither the call nor the
// options provide one.
const DefaultLimit = 10

// FindAllParams are the per-call parameters of the findAll operation.
type FindAllParams struct {
	// Limit is the page size. Values < 1 fall back to the configured
	// default, then to DefaultLimit.
	Limit int

	// Page is 1-based. Values < 1 fall back to the configured default,
	// then to 1.
	Page int

	// Q is an optional search term, matched as a substring against the
	// configured search properties (OR across fields).
	Q string

	// Where filters rows by exact match. Every key must be in the
	// configured whitelist of filterable fields.
	Where map[string]any

	// Include is an optional association-path string.
	Include string
}

// Page is one findAll result page.
//
// Count is the total row count of the entity, taken from an independent
// count query that the q/where filters do not reduce. The original
// contract behaves this way and it is reproduced literally; see the
// findAll tests, which pin it.
type Page struct {
	Count int             `json:"count"`
	Pages int             `json:"pages"`
	Rows  []meteor.Record `json:"rows"`
}

// FindFunc looks a row up by primary key, optionally attaching one
// association given by its bare alias.
type FindFunc func(ctx context.Context, key any, include string) (meteor.Record, error)

// FindAllFunc returns one page of rows.
type FindAllFunc func(ctx context.Context, p FindAllParams) (*Page, error)

// CreateFunc persists a new row. responseInclude, when non-empty, is an
// association-path string resolved for the re-fetched response. files are
// matched to the configured upload fields by position.
type CreateFunc func(ctx context.Context, fields meteor.Record, responseInclude string, files []storage.File) (meteor.Record, error)

// UpdateFunc mutates an existing row; parameters as in CreateFunc.
type UpdateFunc func(ctx context.Context, key any, fields meteor.Record, responseInclude string, files []storage.File) (meteor.Record, error)

// DestroyFunc removes a row and its stored files.
type DestroyFunc func(ctx context.Context, key any) error

// OperationSet is the bundle of generated operations for one entity.
// A nil handle means the operation was not generated.
type OperationSet struct {
	model    meteor.Model
	keyField string
	opts     Options
	log      meteor.Logger

	Find    FindFunc
	FindAll FindAllFunc
	Create  CreateFunc
	Update  UpdateFunc
	Destroy DestroyFunc
}

// New generates the operation set for model from the declarative options.
// Presence is immutable once constructed.
func New(model meteor.Model, keyField string, opts Options) (*OperationSet, error) {
	if model == nil {
		return nil, fmt.Errorf("crud: model is required")
	}
	if keyField == "" {
		return nil, fmt.Errorf("crud: key field is required")
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}
	s := &OperationSet{model: model, keyField: keyField, opts: opts, log: opts.logger()}
	if opts.Find != nil {
		s.Find = s.find
	}
	if opts.FindAll != nil {
		s.FindAll = s.findAll
	}
	if opts.Create != nil {
		s.Create = s.create
	}
	if opts.Update != nil {
		s.Update = s.update
	}
	if opts.Delete {
		s.Destroy = s.destroy
	}
	return s, nil
}

// Model returns the entity model the set was generated for.
func (s *OperationSet) Model() meteor.Model { return s.model }

// KeyField returns the primary-key field name.
func (s *OperationSet) KeyField() string { return s.keyField }

// Options returns the declarative options the set was generated from.
func (s *OperationSet) Options() Options { return s.opts }

func (s *OperationSet) find(ctx context.Context, key any, include string) (meteor.Record, error) {
	s.debug("find", "key=%v include=%q", key, include)
	if _, err := params.New(meteor.Record{s.keyField: key}, s.keyField).Build(); err != nil {
		return nil, err
	}
	q := meteor.Query{Where: map[string]any{s.keyField: key}, Limit: 1}
	if include != "" {
		node, err := assocpath.ResolveOne(s.model.Associations(), include)
		if err != nil {
			return nil, err
		}
		q.Include = append(q.Include, node)
	}
	row, err := s.model.FindOne(ctx, q)
	if err != nil {
		return nil, s.internal("find", err)
	}
	if row == nil {
		return nil, meteor.NewNotFoundErrorWithKey(s.model.Name(), key)
	}
	return project(row, s.opts.Find.DTO), nil
}

func (s *OperationSet) findAll(ctx context.Context, p FindAllParams) (*Page, error) {
	s.debug("findAll", "limit=%d page=%d q=%q where=%v include=%q", p.Limit, p.Page, p.Q, p.Where, p.Include)
	opts := s.opts.FindAll

	limit := p.Limit
	if limit < 1 {
		limit = opts.DefaultLimit
	}
	if limit < 1 {
		limit = DefaultLimit
	}
	// page < 1 behaves identically to omitting the page.
	page := p.Page
	if page < 1 {
		page = opts.DefaultPage
	}
	if page < 1 {
		page = 1
	}

	q := meteor.Query{Limit: limit, Offset: (page - 1) * limit}
	if p.Q != "" {
		if len(opts.SearchProperties) == 0 {
			return nil, meteor.NewSearchNotConfiguredError(s.model.Name())
		}
		q.Search = &meteor.Search{Fields: opts.SearchProperties, Term: p.Q}
	}
	if len(p.Where) > 0 {
		allowed := map[string]struct{}{}
		for _, f := range opts.WhereProperties {
			allowed[f] = struct{}{}
		}
		for _, k := range sortedKeys(p.Where) {
			if _, ok := allowed[k]; !ok {
				return nil, meteor.NewInvalidFilterError(k, opts.WhereProperties)
			}
		}
		// Filter keys merge with the search filter, they do not
		// replace it.
		q.Where = p.Where
	}
	if p.Include != "" {
		out, err := params.New(meteor.Record{"include": p.Include}).
			Includes(s.model.Associations(), "include", false).
			Build()
		if err != nil {
			return nil, err
		}
		q.Include, _ = out["include"].([]*graph.Node)
	}

	cacheKey := s.cacheKey(p, limit, page)
	if cached := s.cacheGet(ctx, cacheKey); cached != nil {
		return cached, nil
	}

	// The count query is independent of the where/q filters.
	count, err := s.model.Count(ctx)
	if err != nil {
		return nil, s.internal("findAll", err)
	}
	rows, err := s.model.FindAll(ctx, q)
	if err != nil {
		return nil, s.internal("findAll", err)
	}
	result := &Page{
		Count: count,
		Pages: (count + limit - 1) / limit,
		Rows:  make([]meteor.Record, len(rows)),
	}
	for i, row := range rows {
		result.Rows[i] = project(row, opts.DTO)
	}
	s.cacheSet(ctx, cacheKey, result)
	return result, nil
}

func (s *OperationSet) create(ctx context.Context, fields meteor.Record, responseInclude string, files []storage.File) (meteor.Record, error) {
	s.debug("create", "fields=%d include=%q files=%d", len(fields), responseInclude, len(files))
	opts := s.opts.Create
	// Every configured creatable property is required; unknown keys are
	// dropped, not rejected.
	out, err := params.New(fields, opts.Properties...).Fields(opts.Properties...).Build()
	if err != nil {
		return nil, err
	}
	row, err := s.model.Create(ctx, out)
	if err != nil {
		return nil, s.internal("create", err)
	}
	key := row[s.keyField]
	if len(files) > 0 {
		urls, err := s.uploadNew(ctx, files)
		if err != nil {
			// The created row stays intact; there is no rollback for
			// a failed upload.
			return nil, err
		}
		if row, err = s.model.Update(ctx, key, s.keyField, urls); err != nil {
			return nil, s.internal("create", err)
		}
	}
	if responseInclude != "" {
		if row, err = s.refetch(ctx, key, responseInclude); err != nil {
			return nil, err
		}
	}
	s.invalidate(ctx)
	return project(row, opts.DTO), nil
}

func (s *OperationSet) update(ctx context.Context, key any, fields meteor.Record, responseInclude string, files []storage.File) (meteor.Record, error) {
	s.debug("update", "key=%v fields=%d include=%q files=%d", key, len(fields), responseInclude, len(files))
	opts := s.opts.Update
	if _, err := params.New(meteor.Record{s.keyField: key}, s.keyField).Build(); err != nil {
		return nil, err
	}
	for _, r := range opts.RequiredProperties {
		if _, ok := fields[r]; !ok {
			return nil, meteor.NewMissingFieldError(r)
		}
	}
	out, err := params.New(fields).Fields(opts.Properties...).Build()
	if err != nil {
		return nil, err
	}
	existing, err := s.model.FindOne(ctx, meteor.Query{Where: map[string]any{s.keyField: key}, Limit: 1})
	if err != nil {
		return nil, s.internal("update", err)
	}
	if existing == nil {
		return nil, meteor.NewNotFoundErrorWithKey(s.model.Name(), key)
	}
	if len(files) > 0 {
		urls, err := s.uploadReplacing(ctx, existing, files)
		if err != nil {
			return nil, err
		}
		for field, url := range urls {
			out[field] = url
		}
	}
	row, err := s.model.Update(ctx, key, s.keyField, out)
	if err != nil {
		return nil, s.internal("update", err)
	}
	if responseInclude != "" {
		if row, err = s.refetch(ctx, key, responseInclude); err != nil {
			return nil, err
		}
	}
	s.invalidate(ctx)
	return project(row, opts.DTO), nil
}

func (s *OperationSet) destroy(ctx context.Context, key any) error {
	s.debug("destroy", "key=%v", key)
	if _, err := params.New(meteor.Record{s.keyField: key}, s.keyField).Build(); err != nil {
		return err
	}
	existing, err := s.model.FindOne(ctx, meteor.Query{Where: map[string]any{s.keyField: key}, Limit: 1})
	if err != nil {
		return s.internal("destroy", err)
	}
	if existing == nil {
		return meteor.NewNotFoundErrorWithKey(s.model.Name(), key)
	}
	if up := s.opts.Upload; up != nil {
		// Deletions run sequentially in configured field order, each one
		// best-effort: a failure is logged and the remaining fields are
		// still attempted. No rollback on partial failure.
		for _, field := range up.Fields {
			url, _ := existing[field].(string)
			if url == "" {
				continue
			}
			k, err := up.Service.ParseKey(url)
			if err != nil {
				s.log("meteor: destroy %s: parse key of %s: %v", s.model.Name(), field, err)
				continue
			}
			if err := up.Service.DeleteFile(ctx, k); err != nil {
				s.log("meteor: destroy %s: delete %s: %v", s.model.Name(), field, err)
			}
		}
	}
	if err := s.model.Destroy(ctx, key, s.keyField); err != nil {
		return s.internal("destroy", err)
	}
	s.invalidate(ctx)
	return nil
}

// uploadNew stores each file under the configured field at its position
// and returns the field-to-URL mapping.
func (s *OperationSet) uploadNew(ctx context.Context, files []storage.File) (meteor.Record, error) {
	up := s.opts.Upload
	if up == nil {
		return nil, meteor.NewUploadNotConfiguredError(s.model.Name())
	}
	if len(files) > len(up.Fields) {
		return nil, s.internal("upload", fmt.Errorf("%d files for %d configured upload fields", len(files), len(up.Fields)))
	}
	urls := meteor.Record{}
	for i, f := range files {
		url, err := up.Service.UploadFile(ctx, f)
		if err != nil {
			return nil, s.internal("upload", err)
		}
		urls[up.Fields[i]] = url
	}
	return urls, nil
}

// uploadReplacing replaces the stored object behind each file's field when
// the existing row holds a URL for it, and uploads fresh otherwise.
func (s *OperationSet) uploadReplacing(ctx context.Context, existing meteor.Record, files []storage.File) (meteor.Record, error) {
	up := s.opts.Upload
	if up == nil {
		return nil, meteor.NewUploadNotConfiguredError(s.model.Name())
	}
	if len(files) > len(up.Fields) {
		return nil, s.internal("upload", fmt.Errorf("%d files for %d configured upload fields", len(files), len(up.Fields)))
	}
	urls := meteor.Record{}
	for i, f := range files {
		field := up.Fields[i]
		oldURL, _ := existing[field].(string)
		var (
			url string
			err error
		)
		if oldURL != "" {
			var key string
			if key, err = up.Service.ParseKey(oldURL); err != nil {
				return nil, s.internal("upload", err)
			}
			url, err = up.Service.UpdateFile(ctx, key, f)
		} else {
			url, err = up.Service.UploadFile(ctx, f)
		}
		if err != nil {
			return nil, s.internal("upload", err)
		}
		urls[field] = url
	}
	return urls, nil
}

// refetch loads the row again with the resolved inclusion tree attached.
func (s *OperationSet) refetch(ctx context.Context, key any, include string) (meteor.Record, error) {
	nodes, err := assocpath.Parse(s.model.Associations(), include)
	if err != nil {
		return nil, err
	}
	row, err := s.model.FindOne(ctx, meteor.Query{
		Where:   map[string]any{s.keyField: key},
		Include: nodes,
		Limit:   1,
	})
	if err != nil {
		return nil, s.internal("refetch", err)
	}
	if row == nil {
		return nil, meteor.NewNotFoundErrorWithKey(s.model.Name(), key)
	}
	return row, nil
}

func (s *OperationSet) cacheKey(p FindAllParams, limit, page int) string {
	if s.opts.Cache == nil {
		return ""
	}
	return meteor.CacheKey{
		Entity: s.model.Name(),
		Limit:  limit,
		Page:   page,
		Q:      p.Q,
		Where:  EncodeWhere(p.Where),
		Inc:    p.Include,
	}.String()
}

func (s *OperationSet) cacheGet(ctx context.Context, key string) *Page {
	if s.opts.Cache == nil || key == "" {
		return nil
	}
	data, err := s.opts.Cache.Get(ctx, key)
	if err != nil {
		s.log("meteor: cache get %s: %v", key, err)
		return nil
	}
	if data == nil {
		return nil
	}
	var page Page
	if err := json.Unmarshal(data, &page); err != nil {
		s.log("meteor: cache decode %s: %v", key, err)
		return nil
	}
	return &page
}

func (s *OperationSet) cacheSet(ctx context.Context, key string, page *Page) {
	if s.opts.Cache == nil || key == "" {
		return
	}
	data, err := json.Marshal(page)
	if err != nil {
		s.log("meteor: cache encode %s: %v", key, err)
		return
	}
	if err := s.opts.Cache.Set(ctx, key, data, s.opts.CacheTTL); err != nil {
		s.log("meteor: cache set %s: %v", key, err)
	}
}

// invalidate drops every cached page of the entity after a mutation.
func (s *OperationSet) invalidate(ctx context.Context) {
	if s.opts.Cache == nil {
		return
	}
	prefix := meteor.CacheKey{Entity: s.model.Name()}.Prefix()
	if err := s.opts.Cache.DeletePrefix(ctx, prefix); err != nil {
		s.log("meteor: cache invalidate %s: %v", prefix, err)
	}
}

// internal wraps an unexpected data-layer failure; taxonomy errors pass
// through untouched so clients keep their self-correction detail.
func (s *OperationSet) internal(op string, err error) error {
	if meteor.IsNotFound(err) {
		return meteor.NewNotFoundError(s.model.Name())
	}
	wrapped := meteor.NewOperationError(s.model.Name(), op, err)
	s.log("%v", wrapped)
	return wrapped
}

func (s *OperationSet) debug(op, format string, args ...any) {
	if s.opts.Debug {
		s.log("meteor: %s.%s "+format, append([]any{s.model.Name(), op}, args...)...)
	}
}

// project narrows a row to the DTO field list, if one is configured.
// Fields absent on the row stay absent, never defaulted.
func project(row meteor.Record, dto []string) meteor.Record {
	if len(dto) == 0 {
		return row
	}
	return row.Pick(dto)
}

// EncodeWhere renders a where mapping in the canonical k:v,k:v string
// form, keys sorted. It is the inverse of the params.Builder key:value
// decoding and the form the client sends over the wire.
func EncodeWhere(where map[string]any) string {
	if len(where) == 0 {
		return ""
	}
	keys := sortedKeys(where)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s:%v", k, where[k])
	}
	return strings.Join(parts, ",")
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
