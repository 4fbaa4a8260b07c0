package propgroup

import (
	"errors"
	"fmt"
)

// ErrorKind separates misconfiguration from lookups of unknown groups.
type ErrorKind string

const (
	// KindConfiguration covers invalid definitions, targets and duplicate
	// registrations. These are fatal at startup.
	KindConfiguration ErrorKind = "configuration"

	// KindLookup covers requests for groups that were never registered.
	KindLookup ErrorKind = "lookup"
)

// ErrorCode identifies the specific failure.
type ErrorCode string

const (
	ErrCodeEmptyName       ErrorCode = "EMPTY_NAME"
	ErrCodeInvalidName     ErrorCode = "INVALID_NAME"
	ErrCodeEmptyExpression ErrorCode = "EMPTY_EXPRESSION"
	ErrCodeNilPredicate    ErrorCode = "NIL_PREDICATE"
	ErrCodeEmptyCodec      ErrorCode = "EMPTY_CODEC"
	ErrCodeInvalidCodec    ErrorCode = "INVALID_CODEC"
	ErrCodeInvalidTarget   ErrorCode = "INVALID_TARGET"
	ErrCodeDuplicateGroup  ErrorCode = "DUPLICATE_GROUP"
	ErrCodeGroupNotFound   ErrorCode = "GROUP_NOT_FOUND"
)

// Error is returned by every fallible operation in this package.
type Error struct {
	Kind    ErrorKind
	Code    ErrorCode
	Group   string // empty when the error is not about a specific group
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Group != "" {
		return fmt.Sprintf("%s: %s (group=%s)", e.Code, e.Message, e.Group)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsConfigurationError reports whether err wraps a configuration error.
func IsConfigurationError(err error) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind == KindConfiguration
	}
	return false
}

// IsLookupError reports whether err wraps a lookup error.
func IsLookupError(err error) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind == KindLookup
	}
	return false
}

// HasCode reports whether err wraps an *Error with the given code.
func HasCode(err error, code ErrorCode) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Code == code
	}
	return false
}

func configError(code ErrorCode, group, format string, args ...any) *Error {
	return &Error{
		Kind:    KindConfiguration,
		Code:    code,
		Group:   group,
		Message: fmt.Sprintf(format, args...),
	}
}

func newNotFoundError(group string) *Error {
	return &Error{
		Kind:    KindLookup,
		Code:    ErrCodeGroupNotFound,
		Group:   group,
		Message: "property group is not registered",
	}
}
