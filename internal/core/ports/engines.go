package ports

import (
	"context"

	"github.com/wingskh/live-stream-tester/internal/core/domain"
)

// StatusFunc receives engine status transitions. The reason string is empty
// unless the status is an error.
type StatusFunc func(status domain.SessionStatus, reason string)

// Surface is the single output sink a live engine renders into. Exactly one
// engine may own a surface at a time.
type Surface interface {
	// SetSource assigns a new source, clearing any previously assigned one.
	SetSource(url string)
	// ClearSource drops the current source and any buffered state.
	ClearSource()
	// WriteSample accounts one received media sample.
	WriteSample(track string, n int)
	// Source returns the currently assigned source URL, if any.
	Source() string
}

// Engine is the capability contract every playback backend implements.
//
// Initialize constructs and starts exactly one backend instance; if it
// returns an error it must not leave partially constructed resources behind.
// Teardown is idempotent, safe on a never-initialized engine, safe to call
// multiple times, and releases every acquired handle.
type Engine interface {
	Initialize(ctx context.Context, url string, surface Surface, onStatus StatusFunc) error
	Teardown() error
}

// EngineRegistry maps a stream format to the engine that can drive it, taking
// the runtime capability probe into account.
type EngineRegistry interface {
	EngineFor(format domain.StreamFormat) (Engine, error)
	Capabilities() domain.RuntimeCapabilities
}
