package client

import meteor "github.com/VR-web-shop/METEOR"

// Options mirror the server-side declarative options: a nil operation
// option means the operation is absent on this client too, so a bundle
// built from the same declaration exposes exactly the same surface.
// Storage details stay on the server; what is added here is one Auth
// flag per operation.
type Options struct {
	Find    *FindOptions    `json:"find,omitempty" msgpack:"find,omitempty" yaml:"find,omitempty"`
	FindAll *FindAllOptions `json:"findAll,omitempty" msgpack:"findAll,omitempty" yaml:"findAll,omitempty"`
	Create  *CreateOptions  `json:"create,omitempty" msgpack:"create,omitempty" yaml:"create,omitempty"`
	Update  *UpdateOptions  `json:"update,omitempty" msgpack:"update,omitempty" yaml:"update,omitempty"`
	Delete  *DeleteOptions  `json:"delete,omitempty" msgpack:"delete,omitempty" yaml:"delete,omitempty"`

	// Debug logs every outbound request through Logger.
	Debug bool `json:"debug,omitempty" msgpack:"debug,omitempty" yaml:"debug,omitempty"`

	// Logger receives debug and failure lines. Not serialized.
	Logger meteor.Logger `json:"-" msgpack:"-" yaml:"-"`
}

// FindOptions configures the client find operation.
type FindOptions struct {
	// Auth attaches the credential to every find request.
	Auth bool `json:"auth,omitempty" msgpack:"auth,omitempty" yaml:"auth,omitempty"`
}

// FindAllOptions configures the client findAll operation.
type FindAllOptions struct {
	Auth bool `json:"auth,omitempty" msgpack:"auth,omitempty" yaml:"auth,omitempty"`

	// DefaultLimit is sent when the call gives no limit. Zero omits the
	// parameter and defers to the server default.
	DefaultLimit int `json:"defaultLimit,omitempty" msgpack:"defaultLimit,omitempty" yaml:"defaultLimit,omitempty"`

	// DefaultPage is sent when the call gives no page (or page < 1).
	DefaultPage int `json:"defaultPage,omitempty" msgpack:"defaultPage,omitempty" yaml:"defaultPage,omitempty"`
}

// CreateOptions configures the client create operation.
type CreateOptions struct {
	Auth bool `json:"auth,omitempty" msgpack:"auth,omitempty" yaml:"auth,omitempty"`
}

// UpdateOptions configures the client update operation.
type UpdateOptions struct {
	Auth bool `json:"auth,omitempty" msgpack:"auth,omitempty" yaml:"auth,omitempty"`
}

// DeleteOptions configures the client delete operation.
type DeleteOptions struct {
	Auth bool `json:"auth,omitempty" msgpack:"auth,omitempty" yaml:"auth,omitempty"`
}

func (o Options) logger() meteor.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return meteor.NopLogger
}
