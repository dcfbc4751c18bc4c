package store

import (
	"errors"
	"fmt"
)

// ErrStoreIO marks failures of the underlying store. A run that fails with
// ErrStoreIO left the previous canonical view intact and may be retried.
var ErrStoreIO = errors.New("evidence store I/O failure")

// IOError records which store operation failed.
type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *IOError) Unwrap() []error {
	return []error{ErrStoreIO, e.Err}
}

// Wrap annotates err as a store failure of op; nil stays nil.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var ioErr *IOError
	if errors.As(err, &ioErr) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return &IOError{Op: op, Err: err}
}
