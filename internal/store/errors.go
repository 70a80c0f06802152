package store

import "fmt"

// WriteError reports a rejected append/trim or delete batch for one key.
type WriteError struct {
	Key Key
	Err error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("store write %s/%s: %v", e.Key.Kind, e.Key.OwnerID, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// ReadError reports a rejected read or metadata-resolution batch.
type ReadError struct {
	Key Key
	Err error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("store read %s/%s: %v", e.Key.Kind, e.Key.OwnerID, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }
