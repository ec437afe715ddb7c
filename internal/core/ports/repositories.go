package ports

import (
	"context"

	"github.com/wingskh/live-stream-tester/internal/core/domain"
)

// ResultRepository stores the bounded, newest-first test result log.
type ResultRepository interface {
	// Append inserts a new record at the head of the log, evicting the oldest
	// entry beyond the bound.
	Append(ctx context.Context, record domain.ResultRecord) error
	// Finalize mutates the record with the given ID to its terminal value.
	// A record is finalized at most once; later calls are no-ops.
	Finalize(ctx context.Context, id string, status domain.SessionStatus, reason string) error
	// List returns the log, newest first.
	List(ctx context.Context) ([]domain.ResultRecord, error)
}

// SampleCatalog supplies the configured sample URLs per format. Opaque
// configuration as far as the orchestration core is concerned.
type SampleCatalog interface {
	// Lookup returns the primary URL and ordered backup URLs for a format.
	// ok is false when the catalog has no entry for the format.
	Lookup(format domain.StreamFormat) (primary string, backups []string, ok bool)
}
