// Package storage defines the pluggable file-storage collaborator used by
// upload-enabled operations, plus two reference implementations: an
// in-memory store for tests and a local-disk store.
//
// Remote backends (S3 and friends) are supplied by the caller as a Service
// implementation; the operation layer never knows which backend it talks to.
package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// ErrUnknownKey is returned when a storage key does not resolve to a
// stored object.
var ErrUnknownKey = errors.New("storage: unknown key")

// File is one uploaded file as received by an operation.
type File struct {
	// Field is the multipart field the file was sent under, if known.
	Field string

	// Name is the original file name.
	Name string

	// ContentType is the declared media type.
	ContentType string

	// Data is the file content.
	Data []byte
}

// Service stores, replaces and deletes uploaded files. Implementations
// derive a stable key per object and must be able to recover that key
// from the public URL they returned (ParseKey), since records store URLs,
// not keys.
type Service interface {
	// UploadFile stores a new file and returns its public URL.
	UploadFile(ctx context.Context, f File) (url string, err error)

	// UpdateFile replaces the object stored under key and returns the
	// (possibly new) public URL.
	UpdateFile(ctx context.Context, key string, f File) (url string, err error)

	// DeleteFile removes the object stored under key.
	DeleteFile(ctx context.Context, key string) error

	// ParseKey extracts the storage key from a public URL previously
	// returned by this service.
	ParseKey(url string) (string, error)
}

// Memory is an in-memory Service. It is safe for concurrent use and
// intended for tests and examples.
type Memory struct {
	// BaseURL prefixes returned URLs. Defaults to "memory://".
	BaseURL string

	mu      sync.Mutex
	objects map[string][]byte
	seq     int
}

// NewMemory returns an empty in-memory service.
func NewMemory() *Memory {
	return &Memory{objects: map[string][]byte{}}
}

// UploadFile implements Service.
func (m *Memory) UploadFile(_ context.Context, f File) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	key := fmt.Sprintf("%d-%s", m.seq, f.Name)
	m.objects[key] = f.Data
	return m.base() + key, nil
}

// UpdateFile implements Service.
func (m *Memory) UpdateFile(_ context.Context, key string, f File) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[key]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownKey, key)
	}
	m.objects[key] = f.Data
	return m.base() + key, nil
}

// DeleteFile implements Service.
func (m *Memory) DeleteFile(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[key]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownKey, key)
	}
	delete(m.objects, key)
	return nil
}

// ParseKey implements Service.
func (m *Memory) ParseKey(url string) (string, error) {
	key, ok := strings.CutPrefix(url, m.base())
	if !ok || key == "" {
		return "", fmt.Errorf("storage: url %q was not issued by this service", url)
	}
	return key, nil
}

// Get returns the stored content for key. Test helper.
func (m *Memory) Get(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	return data, ok
}

// Len returns the number of stored objects. Test helper.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}

func (m *Memory) base() string {
	if m.BaseURL != "" {
		return m.BaseURL
	}
	return "memory://"
}

// Disk is a Service writing files under a local directory. The public URL
// is BaseURL + key; the key is the file name relative to Dir.
type Disk struct {
	// Dir is the directory objects are stored in.
	Dir string

	// BaseURL prefixes returned URLs, e.g. "https://cdn.example.com/".
	BaseURL string

	mu  sync.Mutex
	seq int
}

// NewDisk returns a disk-backed service rooted at dir.
func NewDisk(dir, baseURL string) *Disk {
	return &Disk{Dir: dir, BaseURL: baseURL}
}

// UploadFile implements Service.
func (d *Disk) UploadFile(_ context.Context, f File) (string, error) {
	d.mu.Lock()
	d.seq++
	key := fmt.Sprintf("%d-%s", d.seq, sanitize(f.Name))
	d.mu.Unlock()
	if err := os.WriteFile(filepath.Join(d.Dir, key), f.Data, 0o644); err != nil {
		return "", fmt.Errorf("storage: upload %q: %w", f.Name, err)
	}
	return d.BaseURL + key, nil
}

// UpdateFile implements Service.
func (d *Disk) UpdateFile(_ context.Context, key string, f File) (string, error) {
	path := filepath.Join(d.Dir, sanitize(key))
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("%w: %q", ErrUnknownKey, key)
	}
	if err := os.WriteFile(path, f.Data, 0o644); err != nil {
		return "", fmt.Errorf("storage: update %q: %w", key, err)
	}
	return d.BaseURL + key, nil
}

// DeleteFile implements Service.
func (d *Disk) DeleteFile(_ context.Context, key string) error {
	path := filepath.Join(d.Dir, sanitize(key))
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %q", ErrUnknownKey, key)
		}
		return fmt.Errorf("storage: delete %q: %w", key, err)
	}
	return nil
}

// ParseKey implements Service.
func (d *Disk) ParseKey(url string) (string, error) {
	key, ok := strings.CutPrefix(url, d.BaseURL)
	if !ok || key == "" {
		return "", fmt.Errorf("storage: url %q was not issued by this service", url)
	}
	return key, nil
}

// sanitize strips path separators so a key cannot escape Dir.
func sanitize(name string) string {
	name = filepath.Base(name)
	if name == "." || name == string(filepath.Separator) {
		return "unnamed"
	}
	return name
}

var (
	_ Service = (*Memory)(nil)
	_ Service = (*Disk)(nil)
)
