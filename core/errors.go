package core

import "errors"

// Actor errors
var (
	ErrMailboxFull    = errors.New("mailbox is full")
	ErrActorStopped   = errors.New("actor is not running")
	ErrActorNotFound  = errors.New("actor not found")
	ErrDuplicateActor = errors.New("actor already registered")
	ErrSystemShutdown = errors.New("actor system is shutting down")
	ErrAlreadyStarted = errors.New("actor is already started")
)
