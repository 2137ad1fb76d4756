package records

import "fmt"

// ValidationError marks a record that arrived malformed. The record is
// dropped and logged; the page it came from continues.
type ValidationError struct {
	Kind   string
	Reason string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s record: %s", e.Kind, e.Reason)
}
