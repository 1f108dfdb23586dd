package fleet

import (
	"errors"
	"fmt"
)

// Error kinds surfaced by ingestion and estimation. Every error returned by
// the core wraps exactly one of these.
var (
	ErrMissingField = errors.New("MissingField")
	ErrInvalidType  = errors.New("InvalidType")
	ErrOutOfRange   = errors.New("OutOfRange")
	ErrNotFound     = errors.New("NotFound")
	ErrUnassigned   = errors.New("Unassigned")
	ErrNoStops      = errors.New("NoStops")
	ErrStorage      = errors.New("StorageError")
)

var kinds = []error{
	ErrMissingField, ErrInvalidType, ErrOutOfRange,
	ErrNotFound, ErrUnassigned, ErrNoStops, ErrStorage,
}

// KindOf returns the kind name carried by err, or "" if err is nil or not
// one of ours.
func KindOf(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k.Error()
		}
	}
	return ""
}

// StorageError wraps a failure of the persistence collaborator. The cause is
// kept reachable through errors.Unwrap / errors.As.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return fmt.Sprintf("storage %s: %v", e.Op, e.Err) }

func (e *StorageError) Unwrap() []error { return []error{ErrStorage, e.Err} }

// WrapStorage tags err as a StorageError unless it is nil or already carries
// a kind (e.g. ErrNotFound).
func WrapStorage(op string, err error) error {
	if err == nil || KindOf(err) != "" {
		return err
	}
	return &StorageError{Op: op, Err: err}
}
