package blocks

import "fmt"

// ValidationError reports the first payload field that failed its schema.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid block field %q: %s", e.Field, e.Reason)
}
