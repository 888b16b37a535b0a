package crud

import (
	"fmt"
	"time"

	meteor "github.com/VR-web-shop/METEOR"
	"github.com/VR-web-shop/METEOR/storage"
)

// Options is the closed declarative option set an operation set is
// generated from. A nil operation option means the operation is absent:
// the corresponding handle on the OperationSet stays nil and the
// operation does not exist at all, it is not merely disabled.
type Options struct {
	// Find enables lookup by primary key.
	Find *FindOptions

	// FindAll enables paginated listing with search and filtering.
	FindAll *FindAllOptions

	// Create enables creation. Properties is mandatory.
	Create *CreateOptions

	// Update enables updating. Properties is mandatory.
	Update *UpdateOptions

	// Delete enables destruction.
	Delete bool

	// Upload configures file-field side effects on create, update and
	// destroy. Optional.
	Upload *UploadOptions

	// Debug logs every operation call through Logger.
	Debug bool

	// Logger receives debug and internal-failure lines.
	// Defaults to meteor.NopLogger.
	Logger meteor.Logger

	// Cache, when set, caches findAll pages and is invalidated by any
	// mutation on the entity. Cache failures are logged, never surfaced.
	Cache meteor.Cache

	// CacheTTL bounds the lifetime of cached pages. Zero means no expiry.
	CacheTTL time.Duration
}

// FindOptions configures the find operation.
type FindOptions struct {
	// DTO, when non-empty, narrows every result to exactly these fields.
	DTO []string
}

// FindAllOptions configures the findAll operation.
type FindAllOptions struct {
	// SearchProperties are the fields the q parameter matches against
	// (OR-across-fields substring). Empty means search is not
	// configured and a q parameter fails.
	SearchProperties []string

	// WhereProperties is the whitelist of filterable fields.
	WhereProperties []string

	// DefaultLimit is used when no limit is given. Defaults to 10.
	DefaultLimit int

	// DefaultPage is used when no page (or a page < 1) is given.
	// Defaults to 1.
	DefaultPage int

	// DTO, when non-empty, narrows every row to exactly these fields.
	DTO []string
}

// CreateOptions configures the create operation.
type CreateOptions struct {
	// Properties are the creatable fields. All of them are required on
	// create; unknown input keys are dropped, not rejected.
	Properties []string

	// DTO, when non-empty, narrows the result to exactly these fields.
	DTO []string
}

// UpdateOptions configures the update operation.
type UpdateOptions struct {
	// Properties are the updatable fields. Unknown input keys are
	// dropped, not rejected.
	Properties []string

	// RequiredProperties is the subset that must be present on every
	// update call.
	RequiredProperties []string

	// DTO, when non-empty, narrows the result to exactly these fields.
	DTO []string
}

// UploadOptions configures file-field side effects. Files are matched to
// Fields by position: the i-th uploaded file lands in Fields[i].
type UploadOptions struct {
	// Fields are the record fields holding stored-file URLs.
	Fields []string

	// Service stores, replaces and deletes the files. Backends such as
	// S3 are supplied here by the caller.
	Service storage.Service
}

// validate checks the declarative options once, at construction.
func (o Options) validate() error {
	if o.Create != nil && len(o.Create.Properties) == 0 {
		return fmt.Errorf("crud: create requires a non-empty property list")
	}
	if o.Update != nil && len(o.Update.Properties) == 0 {
		return fmt.Errorf("crud: update requires a non-empty property list")
	}
	if o.Update != nil {
		props := map[string]struct{}{}
		for _, p := range o.Update.Properties {
			props[p] = struct{}{}
		}
		for _, r := range o.Update.RequiredProperties {
			if _, ok := props[r]; !ok {
				return fmt.Errorf("crud: required property %q is not an updatable property", r)
			}
		}
	}
	if o.FindAll != nil {
		if o.FindAll.DefaultLimit < 0 {
			return fmt.Errorf("crud: defaultLimit must not be negative")
		}
		if o.FindAll.DefaultPage < 0 {
			return fmt.Errorf("crud: defaultPage must not be negative")
		}
	}
	if o.Upload != nil {
		if len(o.Upload.Fields) == 0 {
			return fmt.Errorf("crud: upload requires a non-empty field list")
		}
		if o.Upload.Service == nil {
			return fmt.Errorf("crud: upload requires a storage service")
		}
	}
	return nil
}

func (o Options) logger() meteor.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return meteor.NopLogger
}
