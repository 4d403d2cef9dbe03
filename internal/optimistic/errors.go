package optimistic

import (
	"errors"
	"fmt"
)

// SyncError reports a gateway write that failed after the change was already shown.
// By the time it is delivered the in-memory change has been rolled back.
type SyncError struct {
	Op   string
	Kind string
	ID   string
	Err  error
}

func (e *SyncError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("sync %s %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("sync %s %s %s: %v", e.Op, e.Kind, e.ID, e.Err)
}

func (e *SyncError) Unwrap() error { return e.Err }

// IsSyncError reports whether err carries a SyncError.
func IsSyncError(err error) bool {
	var se *SyncError
	return errors.As(err, &se)
}

// errDiscarded means a write targeted a record whose create failed and was rolled back.
var errDiscarded = errors.New("record discarded")
