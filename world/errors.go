package world

import "errors"

var (
	// ErrInvalidName is returned when a login name does not match NamePattern
	ErrInvalidName = errors.New("invalid character name")

	// ErrAlreadyConnected is returned when a character already has a live session
	ErrAlreadyConnected = errors.New("character already connected")

	// ErrOffline is returned by Deliver when the character has no session
	ErrOffline = errors.New("character is offline")

	// ErrInvalidSchedule is returned for a sweep schedule gronx rejects
	ErrInvalidSchedule = errors.New("invalid sweep schedule")
)
