// This file provides the error taxonomy shared by all CI backends.
//
// Backend specific transport errors never leak upward: providers wrap them
// into one of these types at their boundary. Read-only queries degrade to a
// conservative default instead of failing, mutating operations surface a
// ConnectorError to the caller.

package ci

import (
	"errors"
	"fmt"
)

// ConnectorError represents a failed request against a CI backend.
type ConnectorError struct {
	Cause     error
	Operation string
	Backend   string
	URL       string
}

// Error implements the error interface
func (e *ConnectorError) Error() string {
	if e.URL != "" {
		return fmt.Sprintf("%s request failed [%s] against %s: %v", e.Backend, e.Operation, e.URL, e.Cause)
	}
	return fmt.Sprintf("%s request failed [%s]: %v", e.Backend, e.Operation, e.Cause)
}

// Unwrap returns the underlying error for error unwrapping
func (e *ConnectorError) Unwrap() error {
	return e.Cause
}

// NewConnectorError creates a new connector error
func NewConnectorError(backend, operation string, cause error) *ConnectorError {
	return &ConnectorError{
		Backend:   backend,
		Operation: operation,
		Cause:     cause,
	}
}

// WithURL adds the request URL to the error
func (e *ConnectorError) WithURL(url string) *ConnectorError {
	e.URL = url
	return e
}

// NotFoundError reports that a remote artifact does not exist. Delete-class
// operations treat it as success, existence checks as "absent", and callers
// that expected the artifact treat it as fatal.
type NotFoundError struct {
	Kind string // "plan", "project", "job", "repository"
	Key  string
}

// Error implements the error interface
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.Key)
}

// NewNotFoundError creates a new not-found error
func NewNotFoundError(kind, key string) *NotFoundError {
	return &NotFoundError{Kind: kind, Key: key}
}

// IsNotFound reports whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// TemplateError reports that the build script templates for a language could
// not be loaded or that no template set exists. It aborts exercise creation,
// a plan is never partially published.
type TemplateError struct {
	Cause    error
	Language Language
}

// Error implements the error interface
func (e *TemplateError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("unable to load build plan templates for %s: %v", e.Language, e.Cause)
	}
	return fmt.Sprintf("no build plan template setup for programming language %s", e.Language)
}

// Unwrap returns the underlying error for error unwrapping
func (e *TemplateError) Unwrap() error {
	return e.Cause
}

// NewTemplateError creates a new template error
func NewTemplateError(language Language, cause error) *TemplateError {
	return &TemplateError{Language: language, Cause: cause}
}
