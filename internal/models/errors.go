package models

import "errors"

// ErrNotFound is returned by repositories when the row does not exist or
// is not in the state the query requires.
var ErrNotFound = errors.New("not found")
