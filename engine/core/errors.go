package core

import (
	"errors"
)

var (
	ErrInvalidConfig        = errors.New("invalid configuration")
	ErrUnknownLogLevel      = errors.New("unknown log level")
	ErrShuttingDown         = errors.New("engine is shutting down")
	ErrNotInitialized       = errors.New("engine not initialized")
	ErrIdentifierOutOfRange = errors.New("identifier out of range")
)
