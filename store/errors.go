package store

import "errors"

var (
	ErrClosed       = errors.New("store is closed")
	ErrReadOnly     = errors.New("store is read-only")
	ErrInvalidKind  = errors.New("invalid record kind")
	ErrNoReceivers  = errors.New("record has no receivers")
	ErrMissingIndex = errors.New("index points at a missing record")
)
