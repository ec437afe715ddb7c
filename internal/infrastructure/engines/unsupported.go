package engines

import (
	"context"

	"github.com/wingskh/live-stream-tester/internal/core/domain"
	"github.com/wingskh/live-stream-tester/internal/core/ports"
	pkgerrors "github.com/wingskh/live-stream-tester/pkg/errors"
)

// unsupportedEngine rejects formats with no playback path in this runtime.
// Initialize fails synchronously and performs no network I/O.
type unsupportedEngine struct {
	format domain.StreamFormat
}

func newUnsupportedEngine(format domain.StreamFormat) ports.Engine {
	return &unsupportedEngine{format: format}
}

func (e *unsupportedEngine) Initialize(_ context.Context, _ string, _ ports.Surface, _ ports.StatusFunc) error {
	return pkgerrors.Unsupported(e.format.String())
}

func (e *unsupportedEngine) Teardown() error {
	return nil
}
