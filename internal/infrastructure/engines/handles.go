package engines

import (
	"sync"

	"go.uber.org/zap"
)

// handleSet collects every externally-owned resource an engine acquires
// (connections, decoder contexts, cancel funcs, timers) so that one teardown
// routine releases all of them regardless of which initialization branch
// acquired them. Release is idempotent: a second call finds nothing to do.
type handleSet struct {
	logger *zap.SugaredLogger

	mu      sync.Mutex
	closers []namedCloser
}

type namedCloser struct {
	name  string
	close func() error
}

func newHandleSet(logger *zap.SugaredLogger) *handleSet {
	return &handleSet{logger: logger}
}

// add registers a resource for release. Registration order is reversed on
// release so dependent handles close before what they depend on.
func (h *handleSet) add(name string, close func() error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closers = append(h.closers, namedCloser{name: name, close: close})
}

// releaseAll closes every registered handle, newest first, and empties the
// set. Errors are logged, not propagated: teardown must never throw.
func (h *handleSet) releaseAll() {
	h.mu.Lock()
	closers := h.closers
	h.closers = nil
	h.mu.Unlock()

	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i].close(); err != nil {
			h.logger.Debugw("handle release failed", "handle", closers[i].name, "error", err)
		}
	}
}
