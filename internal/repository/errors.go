package repository

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrCapacityReached = errors.New("capacity reached")
	ErrStaleStatus     = errors.New("status changed concurrently")
	// ErrSerialization marks a transaction aborted by the database to keep
	// serializable isolation; the whole unit of work may be retried.
	ErrSerialization = errors.New("serialization failure")
)
