package meteor

import (
	"errors"
	"fmt"
	"strings"
)

// Standard sentinel errors for common operations.
var (
	// ErrMissingParameter is returned when a required input parameter
	// is absent or empty.
	ErrMissingParameter = errors.New("meteor: missing parameter")

	// ErrInvalidAssociation is returned when an association path names
	// an alias outside the entity's association registry.
	ErrInvalidAssociation = errors.New("meteor: invalid association")

	// ErrInvalidFilter is returned when a where-filter names a field
	// outside the configured whitelist.
	ErrInvalidFilter = errors.New("meteor: invalid filter")

	// ErrNotFound is returned when a key does not resolve to an
	// existing row.
	ErrNotFound = errors.New("meteor: entity not found")

	// ErrSearchNotConfigured is returned when a search term is given
	// but no search properties are configured.
	ErrSearchNotConfigured = errors.New("meteor: search not configured")

	// ErrUploadNotConfigured is returned when files are given but no
	// upload configuration exists.
	ErrUploadNotConfigured = errors.New("meteor: upload not configured")

	// ErrMissingField is returned when an update omits a required
	// property.
	ErrMissingField = errors.New("meteor: missing field")
)

// MissingParameterError represents a required input parameter that was
// absent or empty. The original contract treats the empty string and
// numeric zero as "not provided".
type MissingParameterError struct {
	param string
}

// Error returns the error string.
func (e *MissingParameterError) Error() string {
	return fmt.Sprintf("meteor: missing required parameter %q", e.param)
}

// Is reports whether the target error matches MissingParameterError.
// This allows errors.Is(err, ErrMissingParameter) to return true.
func (e *MissingParameterError) Is(err error) bool {
	return err == ErrMissingParameter
}

// Param returns the name of the missing parameter.
func (e *MissingParameterError) Param() string {
	return e.param
}

// NewMissingParameterError returns a new MissingParameterError for the
// given parameter name.
func NewMissingParameterError(param string) *MissingParameterError {
	return &MissingParameterError{param: param}
}

// IsMissingParameter returns true if the error is a MissingParameterError.
func IsMissingParameter(err error) bool {
	if err == nil {
		return false
	}
	var e *MissingParameterError
	return errors.As(err, &e) || errors.Is(err, ErrMissingParameter)
}

// InvalidAssociationError represents an association alias that does not
// exist in the graph scope it was looked up in. Valid lists the aliases
// available at that scope so a client can self-correct.
type InvalidAssociationError struct {
	alias string
	valid []string
}

// Error returns the error string.
func (e *InvalidAssociationError) Error() string {
	if len(e.valid) > 0 {
		return fmt.Sprintf("meteor: invalid association %q (valid: %s)",
			e.alias, strings.Join(e.valid, ", "))
	}
	return fmt.Sprintf("meteor: invalid association %q", e.alias)
}

// Is reports whether the target error matches InvalidAssociationError.
func (e *InvalidAssociationError) Is(err error) bool {
	return err == ErrInvalidAssociation
}

// Alias returns the offending alias.
func (e *InvalidAssociationError) Alias() string {
	return e.alias
}

// Valid returns the aliases valid at the scope of the failed lookup,
// if known.
func (e *InvalidAssociationError) Valid() []string {
	return e.valid
}

// NewInvalidAssociationError returns a new InvalidAssociationError for
// the given alias and the aliases valid at its scope.
func NewInvalidAssociationError(alias string, valid []string) *InvalidAssociationError {
	return &InvalidAssociationError{alias: alias, valid: valid}
}

// IsInvalidAssociation returns true if the error is an InvalidAssociationError.
func IsInvalidAssociation(err error) bool {
	if err == nil {
		return false
	}
	var e *InvalidAssociationError
	return errors.As(err, &e) || errors.Is(err, ErrInvalidAssociation)
}

// InvalidFilterError represents a where-filter field outside the
// configured whitelist.
type InvalidFilterError struct {
	field string
	valid []string
}

// Error returns the error string.
func (e *InvalidFilterError) Error() string {
	if len(e.valid) > 0 {
		return fmt.Sprintf("meteor: invalid filter field %q (valid: %s)",
			e.field, strings.Join(e.valid, ", "))
	}
	return fmt.Sprintf("meteor: invalid filter field %q", e.field)
}

// Is reports whether the target error matches InvalidFilterError.
func (e *InvalidFilterError) Is(err error) bool {
	return err == ErrInvalidFilter
}

// Field returns the offending filter field.
func (e *InvalidFilterError) Field() string {
	return e.field
}

// Valid returns the filterable fields.
func (e *InvalidFilterError) Valid() []string {
	return e.valid
}

// NewInvalidFilterError returns a new InvalidFilterError for the given
// field and the configured filterable fields.
func NewInvalidFilterError(field string, valid []string) *InvalidFilterError {
	return &InvalidFilterError{field: field, valid: valid}
}

// IsInvalidFilter returns true if the error is an InvalidFilterError.
func IsInvalidFilter(err error) bool {
	if err == nil {
		return false
	}
	var e *InvalidFilterError
	return errors.As(err, &e) || errors.Is(err, ErrInvalidFilter)
}

// NotFoundError represents an error when an entity is not found.
type NotFoundError struct {
	label string
	key   any // Optional: the key that was searched for
}

// Error returns the error string.
func (e *NotFoundError) Error() string {
	if e.key != nil {
		return fmt.Sprintf("meteor: %s not found (key=%v)", e.label, e.key)
	}
	return fmt.Sprintf("meteor: %s not found", e.label)
}

// Is reports whether the target error matches NotFoundError.
// This allows errors.Is(notFoundErr, ErrNotFound) to return true.
func (e *NotFoundError) Is(err error) bool {
	return err == ErrNotFound
}

// Label returns the entity label.
func (e *NotFoundError) Label() string {
	return e.label
}

// Key returns the key that was searched for, if available.
func (e *NotFoundError) Key() any {
	return e.key
}

// NewNotFoundError returns a new NotFoundError for the given entity type.
func NewNotFoundError(label string) *NotFoundError {
	return &NotFoundError{label: label}
}

// NewNotFoundErrorWithKey returns a new NotFoundError with the key that
// was searched for.
func NewNotFoundErrorWithKey(label string, key any) *NotFoundError {
	return &NotFoundError{label: label, key: key}
}

// IsNotFound returns true if the error is a NotFoundError.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	var e *NotFoundError
	return errors.As(err, &e) || errors.Is(err, ErrNotFound)
}

// SearchNotConfiguredError represents a search request against an
// entity with no configured search properties.
type SearchNotConfiguredError struct {
	label string
}

// Error returns the error string.
func (e *SearchNotConfiguredError) Error() string {
	return fmt.Sprintf("meteor: search is not configured for %s", e.label)
}

// Is reports whether the target error matches SearchNotConfiguredError.
func (e *SearchNotConfiguredError) Is(err error) bool {
	return err == ErrSearchNotConfigured
}

// NewSearchNotConfiguredError returns a new SearchNotConfiguredError
// for the given entity type.
func NewSearchNotConfiguredError(label string) *SearchNotConfiguredError {
	return &SearchNotConfiguredError{label: label}
}

// IsSearchNotConfigured returns true if the error is a SearchNotConfiguredError.
func IsSearchNotConfigured(err error) bool {
	if err == nil {
		return false
	}
	var e *SearchNotConfiguredError
	return errors.As(err, &e) || errors.Is(err, ErrSearchNotConfigured)
}

// UploadNotConfiguredError represents a file upload against an entity
// with no upload configuration.
type UploadNotConfiguredError struct {
	label string
}

// Error returns the error string.
func (e *UploadNotConfiguredError) Error() string {
	return fmt.Sprintf("meteor: upload is not configured for %s", e.label)
}

// Is reports whether the target error matches UploadNotConfiguredError.
func (e *UploadNotConfiguredError) Is(err error) bool {
	return err == ErrUploadNotConfigured
}

// NewUploadNotConfiguredError returns a new UploadNotConfiguredError
// for the given entity type.
func NewUploadNotConfiguredError(label string) *UploadNotConfiguredError {
	return &UploadNotConfiguredError{label: label}
}

// IsUploadNotConfigured returns true if the error is an UploadNotConfiguredError.
func IsUploadNotConfigured(err error) bool {
	if err == nil {
		return false
	}
	var e *UploadNotConfiguredError
	return errors.As(err, &e) || errors.Is(err, ErrUploadNotConfigured)
}

// MissingFieldError represents an update that omits a configured
// required property.
type MissingFieldError struct {
	field string
}

// Error returns the error string.
func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("meteor: missing required field %q", e.field)
}

// Is reports whether the target error matches MissingFieldError.
func (e *MissingFieldError) Is(err error) bool {
	return err == ErrMissingField
}

// Field returns the name of the missing field.
func (e *MissingFieldError) Field() string {
	return e.field
}

// NewMissingFieldError returns a new MissingFieldError for the given field.
func NewMissingFieldError(field string) *MissingFieldError {
	return &MissingFieldError{field: field}
}

// IsMissingField returns true if the error is a MissingFieldError.
func IsMissingField(err error) bool {
	if err == nil {
		return false
	}
	var e *MissingFieldError
	return errors.As(err, &e) || errors.Is(err, ErrMissingField)
}

// OperationError wraps an unexpected failure inside a generated
// operation with the entity and operation it occurred in.
type OperationError struct {
	Entity string // Entity type the operation set was built for
	Op     string // Operation (e.g. "find", "create", "destroy")
	Err    error  // Underlying error
}

// Error returns the error string.
func (e *OperationError) Error() string {
	return fmt.Sprintf("meteor: %s %s: %v", e.Op, e.Entity, e.Err)
}

// Unwrap returns the underlying error.
func (e *OperationError) Unwrap() error {
	return e.Err
}

// NewOperationError returns a new OperationError.
func NewOperationError(entity, op string, err error) *OperationError {
	return &OperationError{Entity: entity, Op: op, Err: err}
}

// IsOperationError returns true if the error is an OperationError.
func IsOperationError(err error) bool {
	if err == nil {
		return false
	}
	var e *OperationError
	return errors.As(err, &e)
}

// AggregateError represents multiple errors collected during an
// operation, e.g. best-effort file deletions on destroy.
type AggregateError struct {
	Errors []error
}

// Error returns the error string.
func (e *AggregateError) Error() string {
	if len(e.Errors) == 0 {
		return "meteor: no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	var sb strings.Builder
	sb.WriteString("meteor: multiple errors:")
	for i, err := range e.Errors {
		fmt.Fprintf(&sb, "\n  [%d] %v", i+1, err)
	}
	return sb.String()
}

// NewAggregateError returns a new AggregateError if there are errors,
// otherwise returns nil.
func NewAggregateError(errs ...error) error {
	var filtered []error
	for _, err := range errs {
		if err != nil {
			filtered = append(filtered, err)
		}
	}
	if len(filtered) == 0 {
		return nil
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &AggregateError{Errors: filtered}
}
