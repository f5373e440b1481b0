package recurrence

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfig marks a recurrence configuration that cannot be
	// evaluated: interval below one, unknown pattern, missing end date.
	ErrInvalidConfig = errors.New("invalid recurrence config")

	// ErrDuplicateInstance is returned by TaskStore.Insert when the series
	// already has an instance on the same due date.
	ErrDuplicateInstance = errors.New("recurring instance already exists")

	// ErrPersistence marks any failure of the underlying task store.
	ErrPersistence = errors.New("persistence failed")
)

// PersistenceError wraps a store failure with the operation that failed.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

func (e *PersistenceError) Is(target error) bool {
	return target == ErrPersistence
}

func persistenceError(op string, err error) error {
	return &PersistenceError{Op: op, Err: err}
}
