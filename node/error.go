package node

import "errors"

var (
	// ErrInvalidMessageLength is returned when the 8 byte length header arrives short.
	ErrInvalidMessageLength = errors.New("invalid message length")
	// ErrMessageNumber is returned when a frame body arrives shorter than its header declared.
	ErrMessageNumber = errors.New("error message number")
	ErrFrameTooLarge = errors.New("frame exceeds max frame size")

	ErrInvalidToken   = errors.New("invalid token")
	ErrRegistryFull   = errors.New("no slot available")
	ErrTooManyClients = errors.New("max clients must be less than the listener token")

	ErrInvalidAddr    = errors.New("address format [ip:port]")
	ErrCouldNotStart  = errors.New("could not start")
	ErrSignalStopped  = errors.New("signal stopped")
	ErrServerNotBound = errors.New("server is not listening")
)
