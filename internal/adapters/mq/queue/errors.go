package queue

import "errors"

// Sentinel kinds for queue errors.
var (
	ErrFull     = errors.New("recompute queue is full")
	ErrClosed   = errors.New("recompute queue is closed")
	ErrCanceled = errors.New("enqueue canceled")
)
