package state

import (
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// SetupError indicates the one-time store connection setup could not
// complete: credentials were missing, or a connection to the document or
// realtime service failed. It is fatal to the operation that triggered
// setup, but a later setup attempt may retry.
type SetupError struct {
	Reason string
	Err    error
}

func (e *SetupError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("state store setup failed: %s: %v", e.Reason, e.Err)
	}
	return "state store setup failed: " + e.Reason
}

func (e *SetupError) Unwrap() error { return e.Err }

// PersistenceError indicates a create/update/read against the store
// failed. These are never swallowed; callers must observe them.
type PersistenceError struct {
	Op      string
	ModelID string
	Err     error
}

func (e *PersistenceError) Error() string {
	if e.ModelID != "" {
		return fmt.Sprintf("%s failed for model %s: %v", e.Op, e.ModelID, e.Err)
	}
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// IsNotFound reports whether err was caused by a missing store document.
func IsNotFound(err error) bool {
	var perr *PersistenceError
	if errors.As(err, &perr) {
		err = perr.Err
	}
	return status.Code(err) == codes.NotFound
}
