package model

import "fmt"

// ValidationError reports user input that fails a precondition. It is raised at the
// input boundary and never reaches the reorder engine or a gateway.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return "invalid input: " + e.Reason
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
