package domain

import "errors"

var (
	ErrUnknownFormat     = errors.New("unknown stream format")
	ErrTestTimeout       = errors.New("test timed out")
	ErrSessionSuperseded = errors.New("session superseded by a newer start")
	ErrFallbackExhausted = errors.New("no backup URL available")
)
