package store

import "errors"

// ErrNotFound is returned when toggling or deleting an override that does not exist.
var ErrNotFound = errors.New("not found")
