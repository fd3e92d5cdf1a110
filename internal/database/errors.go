package database

import "errors"

// ErrNotFound is wrapped by every repository when a lookup target does not
// exist, so callers can map storage misses with errors.Is.
var ErrNotFound = errors.New("not found")
