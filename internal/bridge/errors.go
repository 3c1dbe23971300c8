package bridge

import (
	"errors"
	"fmt"
)

// ErrUnmappedCatalog means no line item resolved and the tenant has no
// fallback product.
var ErrUnmappedCatalog = errors.New("no mapped items and no fallbackProductId configured")

// ValidationError reports a request that can never succeed as sent.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Invalid builds a ValidationError.
func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
