// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrValidation indicates that caller-supplied input was rejected.
// Wrap it with the field-level detail: fmt.Errorf("%w: text is required", ErrValidation).
var ErrValidation = errors.New("validation failed")

// ErrUnsupported indicates the operation has no implementation for the given kind
// (for example a channel type without a test-call path).
var ErrUnsupported = errors.New("unsupported")
