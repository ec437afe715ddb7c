package memory

import (
	"context"
	"sync"
	"time"

	"github.com/wingskh/live-stream-tester/internal/core/domain"
)

// ResultRepository keeps the test result log in memory, newest first,
// bounded to the configured size. The default repository when no redis
// address is configured.
type ResultRepository struct {
	mu      sync.RWMutex
	records []domain.ResultRecord
	limit   int
}

func NewResultRepository(limit int) *ResultRepository {
	if limit <= 0 {
		limit = domain.ResultLogSize
	}
	return &ResultRepository{limit: limit}
}

func (r *ResultRepository) Append(_ context.Context, record domain.ResultRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append([]domain.ResultRecord{record}, r.records...)
	if len(r.records) > r.limit {
		r.records = r.records[:r.limit]
	}
	return nil
}

func (r *ResultRepository) Finalize(_ context.Context, id string, status domain.SessionStatus, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.records {
		if r.records[i].ID != id {
			continue
		}
		if r.records[i].Finished() {
			return nil
		}
		r.records[i].Status = status
		r.records[i].Reason = reason
		r.records[i].EndedAt = time.Now()
		return nil
	}
	return nil
}

func (r *ResultRepository) List(_ context.Context) ([]domain.ResultRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.ResultRecord, len(r.records))
	copy(out, r.records)
	return out, nil
}
