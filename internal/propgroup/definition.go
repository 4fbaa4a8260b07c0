package propgroup

import (
	"regexp"
	"strings"
)

// DefaultCodec is the compression codec used when none is given.
const DefaultCodec = "ZSTD(1)"

// identifierPattern restricts group, table and column names to plain
// ClickHouse identifiers. These names are interpolated into DDL unquoted.
var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// qualifiedPattern allows a database-qualified table name (db.table).
var qualifiedPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// codecPattern accepts a comma-separated codec chain such as
// "Delta, ZSTD(3)". The codec is interpolated into CODEC(...) unquoted.
var codecPattern = regexp.MustCompile(`^[A-Za-z0-9_]+(\([0-9, ]*\))?(, ?[A-Za-z0-9_]+(\([0-9, ]*\))?)*$`)

// Definition binds a group name to a key classifier.
//
// The filter expression and the predicate describe the same set of keys:
// the expression runs inside ClickHouse, the predicate runs here.
// Definitions are immutable once constructed.
type Definition struct {
	name       string
	expression string
	predicate  func(string) bool
	codec      string
}

// DefinitionOption customizes a Definition at construction.
type DefinitionOption func(*Definition)

// WithCodec overrides the compression codec of the derived column.
func WithCodec(codec string) DefinitionOption {
	return func(d *Definition) {
		d.codec = codec
	}
}

// NewDefinition creates a group definition.
//
// Returns a configuration error if the name is empty or not an identifier,
// the expression is blank, the predicate is nil, or the codec is blank.
func NewDefinition(name, expression string, predicate func(string) bool, opts ...DefinitionOption) (*Definition, error) {
	d := &Definition{
		name:       name,
		expression: expression,
		predicate:  predicate,
		codec:      DefaultCodec,
	}
	for _, opt := range opts {
		opt(d)
	}

	if name == "" {
		return nil, configError(ErrCodeEmptyName, "", "group name is required")
	}
	if !identifierPattern.MatchString(name) {
		return nil, configError(ErrCodeInvalidName, name, "group name must match %s", identifierPattern)
	}
	if strings.TrimSpace(expression) == "" {
		return nil, configError(ErrCodeEmptyExpression, name, "filter expression is required")
	}
	if predicate == nil {
		return nil, configError(ErrCodeNilPredicate, name, "predicate is required")
	}
	if strings.TrimSpace(d.codec) == "" {
		return nil, configError(ErrCodeEmptyCodec, name, "codec must not be empty")
	}
	if !codecPattern.MatchString(d.codec) {
		return nil, configError(ErrCodeInvalidCodec, name, "codec %q must match %s", d.codec, codecPattern)
	}

	return d, nil
}

// MustDefinition is like NewDefinition but panics on error.
// Intended for package-level group sets built from constants.
func MustDefinition(name, expression string, predicate func(string) bool, opts ...DefinitionOption) *Definition {
	d, err := NewDefinition(name, expression, predicate, opts...)
	if err != nil {
		panic(err)
	}
	return d
}

// Name returns the group name.
func (d *Definition) Name() string { return d.name }

// FilterExpression returns the ClickHouse expression over `key`.
func (d *Definition) FilterExpression() string { return d.expression }

// Codec returns the compression codec of the derived column.
func (d *Definition) Codec() string { return d.codec }

// Contains reports whether key belongs to the group.
func (d *Definition) Contains(key string) bool {
	return d.predicate(key)
}
