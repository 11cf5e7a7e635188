package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrNotFound       = errors.New("project record not found")
	ErrMissingProject = errors.New("project id is required")
	ErrMissingTable   = errors.New("layout table is required")
)
