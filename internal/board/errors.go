package board

import "fmt"

// NotFoundError means a mutation referenced a column or task that is no longer on the
// board, typically because a remote snapshot removed it. Callers treat it as a no-op.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

func errColumn(id string) error { return NotFoundError{Kind: "column", ID: id} }
func errTask(id string) error   { return NotFoundError{Kind: "task", ID: id} }
