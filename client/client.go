// Package client provides the HTTP-calling mirror of the crud package: an
// operation set with the same declarative presence rules whose operations
// issue requests against a mounted METEOR API instead of a data layer.
//
// Association paths and where-filters are encoded with the same canonical
// string forms the server decodes (assocpath.Encode and crud.EncodeWhere),
// so a string produced here always round-trips through the server's
// parser. A client's full construction options serialize to a flat
// Serialized value; see serialize.go.
package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	jsoniter "github.com/json-iterator/go"

	meteor "github.com/VR-web-shop/METEOR"
	"github.com/VR-web-shop/METEOR/crud"
	"github.com/VR-web-shop/METEOR/params"
	"github.com/VR-web-shop/METEOR/storage"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Config constructs an OperationSet.
type Config struct {
	// ServerURL is the API base, e.g. "https://shop.example.com/api/v1".
	ServerURL string

	// Path is the entity route under ServerURL, e.g. "materials".
	Path string

	// KeyField is the primary-key field name, e.g. "uuid".
	KeyField string

	// Options declare which operations exist and which need auth.
	Options Options

	// TokenSource supplies credentials for Auth operations. Optional;
	// SetToken overrides it per instance.
	TokenSource TokenSource

	// HTTPClient defaults to http.DefaultClient.
	HTTPClient *http.Client
}

// FindFunc mirrors crud.FindFunc over HTTP.
type FindFunc func(ctx context.Context, key any, include string) (meteor.Record, error)

// FindAllFunc mirrors crud.FindAllFunc over HTTP.
type FindAllFunc func(ctx context.Context, p crud.FindAllParams) (*crud.Page, error)

// CreateFunc mirrors crud.CreateFunc over HTTP; files switch the request
// body to multipart.
type CreateFunc func(ctx context.Context, fields meteor.Record, responseInclude string, files []storage.File) (meteor.Record, error)

// UpdateFunc mirrors crud.UpdateFunc over HTTP.
type UpdateFunc func(ctx context.Context, key any, fields meteor.Record, responseInclude string, files []storage.File) (meteor.Record, error)

// DestroyFunc mirrors crud.DestroyFunc over HTTP.
type DestroyFunc func(ctx context.Context, key any) error

// OperationSet is the generated client for one entity. Handles are nil
// for operations the options did not declare. The only mutable state is
// the credential slot behind SetToken.
type OperationSet struct {
	cfg  Config
	http *http.Client
	log  meteor.Logger

	mu    sync.Mutex
	token string

	Find    FindFunc
	FindAll FindAllFunc
	Create  CreateFunc
	Update  UpdateFunc
	Destroy DestroyFunc
}

// New builds the client operation set for one entity.
func New(cfg Config) (*OperationSet, error) {
	if cfg.ServerURL == "" {
		return nil, fmt.Errorf("client: server url is required")
	}
	if cfg.Path == "" {
		return nil, fmt.Errorf("client: path is required")
	}
	if cfg.KeyField == "" {
		return nil, fmt.Errorf("client: key field is required")
	}
	s := &OperationSet{cfg: cfg, http: cfg.HTTPClient, log: cfg.Options.logger()}
	if s.http == nil {
		s.http = http.DefaultClient
	}
	if cfg.Options.Find != nil {
		s.Find = s.find
	}
	if cfg.Options.FindAll != nil {
		s.FindAll = s.findAll
	}
	if cfg.Options.Create != nil {
		s.Create = s.create
	}
	if cfg.Options.Update != nil {
		s.Update = s.update
	}
	if cfg.Options.Delete != nil {
		s.Destroy = s.destroy
	}
	return s, nil
}

// Config returns the construction config.
func (s *OperationSet) Config() Config { return s.cfg }

// SetToken sets the in-memory credential, taking precedence over the
// configured TokenSource. An empty string clears it.
func (s *OperationSet) SetToken(token string) {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
}

// credential resolves the token for an authorized request: the instance
// slot first, then the configured source.
func (s *OperationSet) credential(ctx context.Context) (string, error) {
	s.mu.Lock()
	token := s.token
	s.mu.Unlock()
	if token != "" {
		return token, nil
	}
	if s.cfg.TokenSource != nil {
		return s.cfg.TokenSource.Token(ctx)
	}
	return "", ErrNoToken
}

func (s *OperationSet) find(ctx context.Context, key any, include string) (meteor.Record, error) {
	if params.Empty(key) {
		return nil, meteor.NewMissingParameterError(s.cfg.KeyField)
	}
	path := s.base() + "/" + url.PathEscape(fmt.Sprint(key))
	if include != "" {
		path += "/" + url.PathEscape(include)
	}
	var row meteor.Record
	if err := s.call(ctx, http.MethodGet, path, nil, "", s.cfg.Options.Find.Auth, &row); err != nil {
		return nil, err
	}
	return row, nil
}

func (s *OperationSet) findAll(ctx context.Context, p crud.FindAllParams) (*crud.Page, error) {
	opts := s.cfg.Options.FindAll
	q := url.Values{}
	limit := p.Limit
	if limit < 1 {
		limit = opts.DefaultLimit
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	page := p.Page
	if page < 1 {
		page = opts.DefaultPage
	}
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	if p.Q != "" {
		q.Set("q", p.Q)
	}
	if len(p.Where) > 0 {
		q.Set("where", crud.EncodeWhere(p.Where))
	}
	if p.Include != "" {
		q.Set("include", p.Include)
	}
	path := s.base()
	if encoded := q.Encode(); encoded != "" {
		path += "?" + encoded
	}
	var result crud.Page
	if err := s.call(ctx, http.MethodGet, path, nil, "", opts.Auth, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (s *OperationSet) create(ctx context.Context, fields meteor.Record, responseInclude string, files []storage.File) (meteor.Record, error) {
	body := fields.Clone()
	if body == nil {
		body = meteor.Record{}
	}
	if responseInclude != "" {
		body["responseInclude"] = responseInclude
	}
	var row meteor.Record
	if err := s.send(ctx, http.MethodPost, s.base(), body, files, s.cfg.Options.Create.Auth, &row); err != nil {
		return nil, err
	}
	return row, nil
}

func (s *OperationSet) update(ctx context.Context, key any, fields meteor.Record, responseInclude string, files []storage.File) (meteor.Record, error) {
	if params.Empty(key) {
		return nil, meteor.NewMissingParameterError(s.cfg.KeyField)
	}
	body := fields.Clone()
	if body == nil {
		body = meteor.Record{}
	}
	body[s.cfg.KeyField] = key
	if responseInclude != "" {
		body["responseInclude"] = responseInclude
	}
	var row meteor.Record
	if err := s.send(ctx, http.MethodPut, s.base(), body, files, s.cfg.Options.Update.Auth, &row); err != nil {
		return nil, err
	}
	return row, nil
}

func (s *OperationSet) destroy(ctx context.Context, key any) error {
	if params.Empty(key) {
		return meteor.NewMissingParameterError(s.cfg.KeyField)
	}
	body := meteor.Record{s.cfg.KeyField: key}
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("client: encode body: %w", err)
	}
	// Successful delete is a no-content response; nothing to decode.
	return s.call(ctx, http.MethodDelete, s.base(), bytes.NewReader(data), "application/json", s.cfg.Options.Delete.Auth, nil)
}

// send issues a mutation request: JSON when no files are attached,
// multipart otherwise.
func (s *OperationSet) send(ctx context.Context, method, path string, body meteor.Record, files []storage.File, auth bool, out any) error {
	if len(files) == 0 {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("client: encode body: %w", err)
		}
		return s.call(ctx, method, path, bytes.NewReader(data), "application/json", auth, out)
	}
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range body {
		if err := w.WriteField(k, fmt.Sprint(v)); err != nil {
			return fmt.Errorf("client: write field %q: %w", k, err)
		}
	}
	for _, f := range files {
		field := f.Field
		if field == "" {
			field = "files"
		}
		part, err := w.CreateFormFile(field, f.Name)
		if err != nil {
			return fmt.Errorf("client: write file %q: %w", f.Name, err)
		}
		if _, err := part.Write(f.Data); err != nil {
			return fmt.Errorf("client: write file %q: %w", f.Name, err)
		}
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("client: close multipart body: %w", err)
	}
	return s.call(ctx, method, path, &buf, w.FormDataContentType(), auth, out)
}

// call issues one request and decodes the JSON response into out, when
// out is non-nil.
func (s *OperationSet) call(ctx context.Context, method, path string, body io.Reader, contentType string, auth bool, out any) error {
	if s.cfg.Options.Debug {
		s.log("meteor: client %s %s", method, path)
	}
	req, err := http.NewRequestWithContext(ctx, method, path, body)
	if err != nil {
		return fmt.Errorf("client: build request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if auth {
		token, err := s.credential(ctx)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	res, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("client: %s %s: %w", method, path, err)
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNotFound {
		return meteor.NewNotFoundError(s.cfg.Path)
	}
	if res.StatusCode >= 400 {
		return decodeError(res, method, path)
	}
	if out == nil || res.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("client: decode response of %s %s: %w", method, path, err)
	}
	return nil
}

// decodeError surfaces the server's error detail so a caller can
// self-correct without a retry loop.
func decodeError(res *http.Response, method, path string) error {
	data, _ := io.ReadAll(io.LimitReader(res.Body, 8<<10))
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(data, &body); err == nil && body.Error != "" {
		return fmt.Errorf("client: %s %s: %s (status %d)", method, path, body.Error, res.StatusCode)
	}
	msg := strings.TrimSpace(string(data))
	if msg == "" {
		msg = res.Status
	}
	return fmt.Errorf("client: %s %s: %s (status %d)", method, path, msg, res.StatusCode)
}

func (s *OperationSet) base() string {
	return strings.TrimSuffix(s.cfg.ServerURL, "/") + "/" + strings.Trim(s.cfg.Path, "/")
}
