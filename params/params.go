// Package params implements the fluent, order-sensitive parameter pipeline
// that turns one raw input mapping into one resolved output mapping.
//
// A Builder applies its steps strictly in call order; later steps may
// overwrite output keys written by earlier ones, and that ordering is part
// of the contract. The first failing step wins: every later step becomes a
// no-op and Build returns the recorded error.
package params

import (
	"strings"

	meteor "github.com/VR-web-shop/METEOR"
	"github.com/VR-web-shop/METEOR/assocpath"
	"github.com/VR-web-shop/METEOR/graph"
)

// IncludeKey is the output key IncludeOne writes the validated alias to.
const IncludeKey = "include"

// Builder accumulates an output mapping from one immutable input mapping.
type Builder struct {
	input meteor.Record
	out   meteor.Record
	err   error
}

// New returns a Builder over input. Every listed required key must be
// present and non-empty on input; the first one that is absent or empty
// records a MissingParameterError. Deliberate strictness inherited from
// the original contract: the empty string, numeric zero and false all
// count as "not provided".
func New(input meteor.Record, required ...string) *Builder {
	b := &Builder{input: input, out: meteor.Record{}}
	for _, key := range required {
		v, ok := input[key]
		if !ok || Empty(v) {
			b.err = meteor.NewMissingParameterError(key)
			break
		}
	}
	return b
}

// Fields copies the listed fields from input to the output. Fields absent
// on input are dropped, never defaulted.
func (b *Builder) Fields(fields ...string) *Builder {
	if b.err != nil {
		return b
	}
	for _, f := range fields {
		if v, ok := b.input[f]; ok {
			b.out[f] = v
		}
	}
	return b
}

// FieldsInto copies the listed fields from input into a nested mapping
// under dest, separating e.g. body fields from routing fields.
func (b *Builder) FieldsInto(dest string, fields ...string) *Builder {
	if b.err != nil {
		return b
	}
	nested := meteor.Record{}
	for _, f := range fields {
		if v, ok := b.input[f]; ok {
			nested[f] = v
		}
	}
	b.out[dest] = nested
	return b
}

// DecodeKeyValues decodes input[source], a string of the form
// "k1:v1,k2:v2", into a mapping written to output[dest]. When skip is
// true the whole step is a no-op; callers use it to make the step
// conditional on whether the field was sent at all.
func (b *Builder) DecodeKeyValues(source, dest string, skip bool) *Builder {
	if b.err != nil || skip {
		return b
	}
	raw, ok := b.input[source].(string)
	if !ok || raw == "" {
		b.err = meteor.NewMissingParameterError(source)
		return b
	}
	decoded := map[string]any{}
	for _, pair := range strings.Split(raw, ",") {
		k, v, found := strings.Cut(pair, ":")
		if !found || k == "" {
			b.err = meteor.NewInvalidFilterError(pair, nil)
			return b
		}
		decoded[k] = v
	}
	b.out[dest] = decoded
	return b
}

// IncludeOne validates a single alias from input[source] against the
// direct children of g and writes the bare alias to output["include"].
func (b *Builder) IncludeOne(g *graph.Graph, source string, skip bool) *Builder {
	if b.err != nil || skip {
		return b
	}
	alias, ok := b.input[source].(string)
	if !ok || alias == "" {
		b.err = meteor.NewMissingParameterError(source)
		return b
	}
	if _, err := assocpath.ResolveOne(g, alias); err != nil {
		b.err = err
		return b
	}
	b.out[IncludeKey] = alias
	return b
}

// Includes runs the association-path parser over input[source] and writes
// the resolved inclusion tree ([]*graph.Node) to output[source].
func (b *Builder) Includes(g *graph.Graph, source string, skip bool) *Builder {
	if b.err != nil || skip {
		return b
	}
	path, ok := b.input[source].(string)
	if !ok || path == "" {
		b.err = meteor.NewMissingParameterError(source)
		return b
	}
	nodes, err := assocpath.Parse(g, path)
	if err != nil {
		b.err = err
		return b
	}
	b.out[source] = nodes
	return b
}

// Build returns the accumulated output and the first error recorded by
// the pipeline, if any.
func (b *Builder) Build() (meteor.Record, error) {
	return b.out, b.err
}

// Output returns the accumulated output. It never fails and is
// idempotent; use Err to inspect the pipeline state.
func (b *Builder) Output() meteor.Record {
	return b.out
}

// Err returns the first error recorded by the pipeline.
func (b *Builder) Err() error {
	return b.err
}

// Empty reports whether v counts as absent under the required-parameter
// rule: nil, the empty string, a numeric zero of any width, or false.
// Builder applies it to required keys; client key checks share it so both
// sides of the wire agree on what a missing key is.
func Empty(v any) bool {
	switch v := v.(type) {
	case nil:
		return true
	case string:
		return v == ""
	case bool:
		return !v
	case int:
		return v == 0
	case int8:
		return v == 0
	case int16:
		return v == 0
	case int32:
		return v == 0
	case int64:
		return v == 0
	case uint:
		return v == 0
	case uint8:
		return v == 0
	case uint16:
		return v == 0
	case uint32:
		return v == 0
	case uint64:
		return v == 0
	case float32:
		return v == 0
	case float64:
		return v == 0
	}
	return false
}
