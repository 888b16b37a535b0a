// Package config loads the declarative entity file: one YAML document
// naming the entities, their key fields, routes and operation options.
// One file drives both sides, the server operations (crud) and the
// serialized clients handed to consumers.
package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/go-openapi/inflect"
	"gopkg.in/yaml.v3"

	meteor "github.com/VR-web-shop/METEOR"
	"github.com/VR-web-shop/METEOR/client"
	"github.com/VR-web-shop/METEOR/crud"
	"github.com/VR-web-shop/METEOR/storage"
)

// DefaultKeyField is assumed when an entity declares none.
const DefaultKeyField = "uuid"

// File is one parsed configuration document.
type File struct {
	// ServerURL is the API base the generated clients call.
	ServerURL string `yaml:"serverURL"`

	// TokenName is the token-source registry name serialized clients
	// resolve their credential under. Optional.
	TokenName string `yaml:"tokenName"`

	Entities []Entity `yaml:"entities"`
}

// Entity declares one entity's key field, route, table and operations.
type Entity struct {
	// Name is the entity type name, e.g. "TextureType". Required.
	Name string `yaml:"name"`

	// KeyField defaults to DefaultKeyField.
	KeyField string `yaml:"keyField"`

	// Path is the route segment under ServerURL. Defaults to the
	// dasherized plural of Name ("TextureType" becomes "texture-types").
	Path string `yaml:"path"`

	// Table is the SQL table. Defaults to the tableized Name
	// ("TextureType" becomes "texture_types").
	Table string `yaml:"table"`

	// Associations declare the include graph of the entity. Targets
	// refer to other entities of the same file by name.
	Associations []Association `yaml:"associations"`

	Find    *FindSpec    `yaml:"find"`
	FindAll *FindAllSpec `yaml:"findAll"`
	Create  *CreateSpec  `yaml:"create"`
	Update  *UpdateSpec  `yaml:"update"`
	Delete  *DeleteSpec  `yaml:"delete"`
	Upload  *UploadSpec  `yaml:"upload"`

	// Debug turns on operation logging for this entity.
	Debug bool `yaml:"debug"`
}

// UploadSpec declares the file-holding fields of an entity. The storage
// service behind them is a live collaborator supplied at build time,
// never part of the file.
type UploadSpec struct {
	Fields []string `yaml:"fields"`
}

// Association declares one alias of an entity's include graph.
type Association struct {
	// Alias is the include name, e.g. "Texture" on "Material".
	Alias string `yaml:"alias"`

	// Target names the associated entity.
	Target string `yaml:"target"`

	// LocalKey is the field on this entity matched against the
	// target's ForeignKey.
	LocalKey   string `yaml:"localKey"`
	ForeignKey string `yaml:"foreignKey"`

	// Many selects every match instead of the first.
	Many bool `yaml:"many"`
}

// FindSpec declares the find operation. Auth applies to the client side
// only.
type FindSpec struct {
	DTO  []string `yaml:"dto"`
	Auth bool     `yaml:"auth"`
}

// FindAllSpec declares the findAll operation.
type FindAllSpec struct {
	SearchProperties []string `yaml:"searchProperties"`
	WhereProperties  []string `yaml:"whereProperties"`
	DefaultLimit     int      `yaml:"defaultLimit"`
	DefaultPage      int      `yaml:"defaultPage"`
	DTO              []string `yaml:"dto"`
	Auth             bool     `yaml:"auth"`
}

// CreateSpec declares the create operation.
type CreateSpec struct {
	Properties []string `yaml:"properties"`
	DTO        []string `yaml:"dto"`
	Auth       bool     `yaml:"auth"`
}

// UpdateSpec declares the update operation.
type UpdateSpec struct {
	Properties         []string `yaml:"properties"`
	RequiredProperties []string `yaml:"requiredProperties"`
	DTO                []string `yaml:"dto"`
	Auth               bool     `yaml:"auth"`
}

// DeleteSpec declares the delete operation.
type DeleteSpec struct {
	Auth bool `yaml:"auth"`
}

// Load reads and parses the file at path.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return f, nil
}

// Parse decodes a YAML document, applies defaults and validates it.
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	if len(f.Entities) == 0 {
		return nil, fmt.Errorf("config: no entities declared")
	}
	seen := make(map[string]struct{}, len(f.Entities))
	for i := range f.Entities {
		e := &f.Entities[i]
		if e.Name == "" {
			return nil, fmt.Errorf("config: entity %d has no name", i)
		}
		if _, dup := seen[e.Name]; dup {
			return nil, fmt.Errorf("config: duplicate entity %q", e.Name)
		}
		seen[e.Name] = struct{}{}
		if e.KeyField == "" {
			e.KeyField = DefaultKeyField
		}
		if e.Table == "" {
			e.Table = inflect.Tableize(e.Name)
		}
		if e.Path == "" {
			e.Path = strings.ReplaceAll(inflect.Tableize(e.Name), "_", "-")
		}
	}
	for i := range f.Entities {
		e := &f.Entities[i]
		for _, a := range e.Associations {
			if a.Alias == "" || a.Target == "" || a.LocalKey == "" || a.ForeignKey == "" {
				return nil, fmt.Errorf("config: entity %q: incomplete association %q", e.Name, a.Alias)
			}
			if _, ok := seen[a.Target]; !ok {
				return nil, fmt.Errorf("config: entity %q: association %q targets unknown entity %q", e.Name, a.Alias, a.Target)
			}
		}
	}
	return &f, nil
}

// Lookup returns the entity declared under name.
func (f *File) Lookup(name string) (*Entity, bool) {
	for i := range f.Entities {
		if f.Entities[i].Name == name {
			return &f.Entities[i], true
		}
	}
	return nil, false
}

// CrudOptions maps the declaration to server-side options. Live
// collaborators (cache, upload service, logger) are not part of the
// file; the caller sets them on the returned value.
func (e *Entity) CrudOptions() crud.Options {
	opts := crud.Options{Debug: e.Debug}
	if e.Find != nil {
		opts.Find = &crud.FindOptions{DTO: e.Find.DTO}
	}
	if e.FindAll != nil {
		opts.FindAll = &crud.FindAllOptions{
			SearchProperties: e.FindAll.SearchProperties,
			WhereProperties:  e.FindAll.WhereProperties,
			DefaultLimit:     e.FindAll.DefaultLimit,
			DefaultPage:      e.FindAll.DefaultPage,
			DTO:              e.FindAll.DTO,
		}
	}
	if e.Create != nil {
		opts.Create = &crud.CreateOptions{Properties: e.Create.Properties, DTO: e.Create.DTO}
	}
	if e.Update != nil {
		opts.Update = &crud.UpdateOptions{
			Properties:         e.Update.Properties,
			RequiredProperties: e.Update.RequiredProperties,
			DTO:                e.Update.DTO,
		}
	}
	opts.Delete = e.Delete != nil
	return opts
}

// ClientOptions maps the declaration to the client-side mirror.
func (e *Entity) ClientOptions() client.Options {
	opts := client.Options{Debug: e.Debug}
	if e.Find != nil {
		opts.Find = &client.FindOptions{Auth: e.Find.Auth}
	}
	if e.FindAll != nil {
		opts.FindAll = &client.FindAllOptions{
			Auth:         e.FindAll.Auth,
			DefaultLimit: e.FindAll.DefaultLimit,
			DefaultPage:  e.FindAll.DefaultPage,
		}
	}
	if e.Create != nil {
		opts.Create = &client.CreateOptions{Auth: e.Create.Auth}
	}
	if e.Update != nil {
		opts.Update = &client.UpdateOptions{Auth: e.Update.Auth}
	}
	if e.Delete != nil {
		opts.Delete = &client.DeleteOptions{Auth: e.Delete.Auth}
	}
	return opts
}

// BuildOperations binds every declared entity to its registered model
// and generates the operation sets, keyed by entity name. store backs
// the declared upload fields and may be nil when no entity declares
// any. Per-entity failures are collected, not short-circuited, so one
// broken entity reports alongside the others.
func (f *File) BuildOperations(models map[string]meteor.Model, store storage.Service) (map[string]*crud.OperationSet, error) {
	sets := make(map[string]*crud.OperationSet, len(f.Entities))
	var errs []error
	for i := range f.Entities {
		e := &f.Entities[i]
		model, ok := models[e.Name]
		if !ok {
			errs = append(errs, fmt.Errorf("config: no model registered for entity %q", e.Name))
			continue
		}
		opts := e.CrudOptions()
		if e.Upload != nil {
			if store == nil {
				errs = append(errs, fmt.Errorf("config: entity %q declares upload fields but no storage service was given", e.Name))
				continue
			}
			opts.Upload = &crud.UploadOptions{Fields: e.Upload.Fields, Service: store}
		}
		set, err := crud.New(model, e.KeyField, opts)
		if err != nil {
			errs = append(errs, fmt.Errorf("config: entity %q: %w", e.Name, err))
			continue
		}
		sets[e.Name] = set
	}
	if err := meteor.NewAggregateError(errs...); err != nil {
		return nil, err
	}
	return sets, nil
}

// BuildClients emits the serialized client set for every declared
// entity, the form bundled for consumers.
func (f *File) BuildClients() ([]client.Serialized, error) {
	if f.ServerURL == "" {
		return nil, fmt.Errorf("config: serverURL is required to build clients")
	}
	clients := make([]client.Serialized, 0, len(f.Entities))
	for i := range f.Entities {
		e := &f.Entities[i]
		clients = append(clients, client.Serialized{
			ServerURL: f.ServerURL,
			Path:      e.Path,
			KeyField:  e.KeyField,
			TokenName: f.TokenName,
			Options:   e.ClientOptions(),
		})
	}
	return clients, nil
}

// Watch re-parses path on every write and reports the result through
// fn, until ctx is done. The parent directory is watched, not the file,
// so editors that replace the file on save are still seen.
func Watch(ctx context.Context, path string, fn func(*File, error)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: watch %s: %w", path, err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		watcher.Close()
		return fmt.Errorf("config: watch %s: %w", path, err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return fmt.Errorf("config: watch %s: %w", path, err)
	}
	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Name != abs || !event.Op.Has(fsnotify.Write|fsnotify.Create) {
					continue
				}
				fn(Load(abs))
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				fn(nil, fmt.Errorf("config: watch %s: %w", path, err))
			}
		}
	}()
	return nil
}
