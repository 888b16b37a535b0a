package client

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Serialized is the portable form of a client configuration: everything
// New needs except live values (http client, logger, token source). A
// credential is referenced by registry name, never embedded.
//
// The round-trip law holds: FromSerialized(ToSerialized(cfg, name))
// builds a client with the same surface and request shapes as New(cfg).
type Serialized struct {
	ServerURL string  `json:"serverURL" msgpack:"serverURL" yaml:"serverURL"`
	Path      string  `json:"path" msgpack:"path" yaml:"path"`
	KeyField  string  `json:"keyField" msgpack:"keyField" yaml:"keyField"`
	TokenName string  `json:"tokenName,omitempty" msgpack:"tokenName,omitempty" yaml:"tokenName,omitempty"`
	Options   Options `json:"options" msgpack:"options" yaml:"options"`
}

// ToSerialized captures cfg into its portable form. tokenName is the
// registry name a rebuilt client resolves its credential under; empty
// means no token source.
func ToSerialized(cfg Config, tokenName string) Serialized {
	return Serialized{
		ServerURL: cfg.ServerURL,
		Path:      cfg.Path,
		KeyField:  cfg.KeyField,
		TokenName: tokenName,
		Options:   cfg.Options,
	}
}

// FromSerialized rebuilds a client from its portable form. The token
// source, when named, resolves lazily through the registry so
// registration order does not matter.
func FromSerialized(s Serialized) (*OperationSet, error) {
	cfg := Config{
		ServerURL: s.ServerURL,
		Path:      s.Path,
		KeyField:  s.KeyField,
		Options:   s.Options,
	}
	if s.TokenName != "" {
		cfg.TokenSource = NamedToken(s.TokenName)
	}
	return New(cfg)
}

// EncodeBundle packs a set of serialized clients into one msgpack blob,
// the form a server hands to downstream consumers.
func EncodeBundle(clients []Serialized) ([]byte, error) {
	data, err := msgpack.Marshal(clients)
	if err != nil {
		return nil, fmt.Errorf("client: encode bundle: %w", err)
	}
	return data, nil
}

// DecodeBundle unpacks a bundle produced by EncodeBundle.
func DecodeBundle(data []byte) ([]Serialized, error) {
	var clients []Serialized
	if err := msgpack.Unmarshal(data, &clients); err != nil {
		return nil, fmt.Errorf("client: decode bundle: %w", err)
	}
	return clients, nil
}
