package service

import (
	"errors"

	"github.com/Greggwolin/landscape-sub003/internal/adapters/repository"
)

// Sentinel kinds for service errors.
var (
	ErrNotStarted   = errors.New("service not started")
	ErrNotFound     = repository.ErrNotFound
	ErrBackpressure = errors.New("recompute queue is full")
	ErrEmptyBatch   = errors.New("batch has no scenarios")
)
