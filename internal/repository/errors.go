package repository

import "errors"

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("repository: not found")
	// ErrUnavailable indicates the backing store could not be reached or failed an I/O operation.
	ErrUnavailable = errors.New("repository: unavailable")
	// ErrInvalidKey indicates an empty or malformed key was supplied.
	ErrInvalidKey = errors.New("repository: invalid key")
	// ErrStoreFull indicates a bounded store has no room for another live entry.
	ErrStoreFull = errors.New("repository: store full")
)
