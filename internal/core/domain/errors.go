// Package domain defines the core domain types for camhub.
package domain

import (
	"errors"
	"fmt"
)

// DomainError is a domain-level error carrying a stable code.
// Codes have the form CH-<AREA>-<NNNN>; the last four digits follow HTTP
// status semantics so the admin API can map them directly.
type DomainError struct {
	Code    string
	Message string
	Details string
	Cause   error
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a DomainError with the same code.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewDomainError creates a DomainError.
func NewDomainError(code, message string) *DomainError {
	return &DomainError{Code: code, Message: message}
}

// WithDetails returns a copy of the error with details attached.
func (e *DomainError) WithDetails(details string) *DomainError {
	return &DomainError{Code: e.Code, Message: e.Message, Details: details, Cause: e.Cause}
}

// WithCause returns a copy of the error wrapping cause.
func (e *DomainError) WithCause(cause error) *DomainError {
	return &DomainError{Code: e.Code, Message: e.Message, Details: e.Details, Cause: cause}
}

// ErrorCode extracts the code from err if it is a DomainError.
func ErrorCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// Video errors.
var (
	// ErrVideoExists rejects a second capture within the same second.
	ErrVideoExists = NewDomainError("CH-VID-4090", "video already tracked")

	// ErrVideoInvalid indicates a malformed descriptor.
	ErrVideoInvalid = NewDomainError("CH-VID-4001", "invalid video descriptor")
)

// Channel errors.
var (
	// ErrChannelLayout indicates an invalid channel registry layout.
	ErrChannelLayout = NewDomainError("CH-CHN-4001", "invalid channel layout")

	// ErrChannelNotFound indicates a lookup for an unregistered channel.
	ErrChannelNotFound = NewDomainError("CH-CHN-4040", "channel not found")
)

// Snapshot errors.
var (
	// ErrSnapshotWrite indicates a snapshot could not be made durable.
	ErrSnapshotWrite = NewDomainError("CH-SNP-5000", "snapshot write failed")

	// ErrSnapshotNotNewest indicates a freshly written snapshot was not
	// the newest of its category, i.e. another writer raced this one.
	ErrSnapshotNotNewest = NewDomainError("CH-SNP-5001", "snapshot is not the newest generation")
)
