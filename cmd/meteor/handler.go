package main

import (
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"

	meteor "github.com/VR-web-shop/METEOR"
	"github.com/VR-web-shop/METEOR/crud"
	"github.com/VR-web-shop/METEOR/params"
	"github.com/VR-web-shop/METEOR/storage"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const maxBodySize = 32 << 20

// mountEntity registers one entity's routes on mux. An operation whose
// handle is nil has no route at all, the request falls through to 404.
func mountEntity(mux *http.ServeMux, path, keyField string, set *crud.OperationSet) {
	base := "/" + strings.Trim(path, "/")
	h := &entityHandler{set: set, base: base, keyField: keyField}
	mux.Handle(base, h)
	mux.Handle(base+"/", h)
}

type entityHandler struct {
	set      *crud.OperationSet
	base     string
	keyField string
}

func (h *entityHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, h.base), "/")
	switch {
	case r.Method == http.MethodGet && rest == "":
		h.findAll(w, r)
	case r.Method == http.MethodGet:
		h.find(w, r, rest)
	case r.Method == http.MethodPost && rest == "":
		h.create(w, r)
	case r.Method == http.MethodPut && rest == "":
		h.update(w, r)
	case r.Method == http.MethodDelete && rest == "":
		h.destroy(w, r)
	default:
		http.NotFound(w, r)
	}
}

// find serves GET {base}/{key} and GET {base}/{key}/{include}.
func (h *entityHandler) find(w http.ResponseWriter, r *http.Request, rest string) {
	if h.set.Find == nil {
		http.NotFound(w, r)
		return
	}
	key, include, _ := strings.Cut(rest, "/")
	row, err := h.set.Find(r.Context(), key, include)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, row)
}

// findAll serves GET {base}?limit=&page=&q=&where=&include=.
func (h *entityHandler) findAll(w http.ResponseWriter, r *http.Request) {
	if h.set.FindAll == nil {
		http.NotFound(w, r)
		return
	}
	query := r.URL.Query()
	p := crud.FindAllParams{
		Q:       query.Get("q"),
		Include: query.Get("include"),
	}
	p.Limit, _ = strconv.Atoi(query.Get("limit"))
	p.Page, _ = strconv.Atoi(query.Get("page"))
	if raw := query.Get("where"); raw != "" {
		out, err := params.New(meteor.Record{"where": raw}).
			DecodeKeyValues("where", "where", false).
			Build()
		if err != nil {
			writeError(w, err)
			return
		}
		p.Where, _ = out["where"].(map[string]any)
	}
	page, err := h.set.FindAll(r.Context(), p)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// create serves POST {base}. The body is JSON, or multipart when files
// are attached.
func (h *entityHandler) create(w http.ResponseWriter, r *http.Request) {
	if h.set.Create == nil {
		http.NotFound(w, r)
		return
	}
	fields, files, err := decodeBody(r)
	if err != nil {
		writeError(w, err)
		return
	}
	responseInclude, _ := fields["responseInclude"].(string)
	delete(fields, "responseInclude")
	row, err := h.set.Create(r.Context(), fields, responseInclude, files)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, row)
}

// update serves PUT {base}. The key travels in the body under the
// entity's key field.
func (h *entityHandler) update(w http.ResponseWriter, r *http.Request) {
	if h.set.Update == nil {
		http.NotFound(w, r)
		return
	}
	fields, files, err := decodeBody(r)
	if err != nil {
		writeError(w, err)
		return
	}
	key := fields[h.keyField]
	delete(fields, h.keyField)
	responseInclude, _ := fields["responseInclude"].(string)
	delete(fields, "responseInclude")
	row, err := h.set.Update(r.Context(), key, fields, responseInclude, files)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, row)
}

// destroy serves DELETE {base} with body {keyField: key}, answering 204.
func (h *entityHandler) destroy(w http.ResponseWriter, r *http.Request) {
	if h.set.Destroy == nil {
		http.NotFound(w, r)
		return
	}
	fields, _, err := decodeBody(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.set.Destroy(r.Context(), fields[h.keyField]); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// decodeBody reads fields and files from a JSON or multipart body.
// Multipart files are ordered by form field name so a request decodes
// the same way every time.
func decodeBody(r *http.Request) (meteor.Record, []storage.File, error) {
	ct := r.Header.Get("Content-Type")
	if !strings.HasPrefix(ct, "multipart/") {
		fields := meteor.Record{}
		data, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
		if err != nil {
			return nil, nil, err
		}
		if len(data) > 0 {
			if err := json.Unmarshal(data, &fields); err != nil {
				return nil, nil, err
			}
		}
		return fields, nil, nil
	}
	if err := r.ParseMultipartForm(maxBodySize); err != nil {
		return nil, nil, err
	}
	fields := meteor.Record{}
	for k, v := range r.MultipartForm.Value {
		if len(v) > 0 {
			fields[k] = v[0]
		}
	}
	names := make([]string, 0, len(r.MultipartForm.File))
	for k := range r.MultipartForm.File {
		names = append(names, k)
	}
	sort.Strings(names)
	var files []storage.File
	for _, name := range names {
		for _, fh := range r.MultipartForm.File[name] {
			f, err := fh.Open()
			if err != nil {
				return nil, nil, err
			}
			data, err := io.ReadAll(f)
			f.Close()
			if err != nil {
				return nil, nil, err
			}
			files = append(files, storage.File{
				Field:       name,
				Name:        fh.Filename,
				ContentType: fh.Header.Get("Content-Type"),
				Data:        data,
			})
		}
	}
	return fields, files, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps the error taxonomy onto HTTP statuses: bad input is
// 400, a miss is 404, everything else 500.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case meteor.IsNotFound(err):
		status = http.StatusNotFound
	case meteor.IsMissingParameter(err),
		meteor.IsInvalidFilter(err),
		meteor.IsInvalidAssociation(err),
		meteor.IsSearchNotConfigured(err),
		meteor.IsUploadNotConfigured(err),
		meteor.IsMissingField(err):
		status = http.StatusBadRequest
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
