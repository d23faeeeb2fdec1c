package session

import "errors"

var (
	// ErrMissingSessionID is returned when a storage is bound to an empty id.
	ErrMissingSessionID = errors.New("session id is required")
	// ErrInvalidSnapshot is returned when an imported snapshot carries no data.
	ErrInvalidSnapshot = errors.New("invalid session snapshot")
	// ErrInvalidBackup is returned when a backup bundle carries no sessions.
	ErrInvalidBackup = errors.New("invalid sessions backup")
	// ErrInvalidSessionID is returned for an id that is not a UUID v4.
	ErrInvalidSessionID = errors.New("invalid session id")
)
