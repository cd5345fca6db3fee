package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by stores for missing documents or objects.
var ErrNotFound = errors.New("not found")

// ErrStaleRevision is returned by UpsertAnnotation when the stored record
// carries a higher revision and the write was not applied.
var ErrStaleRevision = errors.New("stored annotation has a newer revision")

// ErrPublicLinksDisabled is returned by private-only object stores.
var ErrPublicLinksDisabled = errors.New("public links disabled")

// ValidationError rejects a malformed record at the store boundary.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}
