package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wingskh/live-stream-tester/internal/core/domain"
)

// recordTTL bounds how long an evicted record's detail key can linger after
// its ID left the bounded index list.
const recordTTL = 24 * time.Hour

// ResultRepository stores the test result log in Redis: one JSON blob per
// record plus a bounded, newest-first list of record IDs as the index.
type ResultRepository struct {
	client *redis.Client
	prefix string
	limit  int
}

func NewResultRepository(client *redis.Client, limit int) *ResultRepository {
	if limit <= 0 {
		limit = domain.ResultLogSize
	}
	return &ResultRepository{
		client: client,
		prefix: "lst:result:",
		limit:  limit,
	}
}

func (r *ResultRepository) recordKey(id string) string {
	return r.prefix + id
}

func (r *ResultRepository) indexKey() string {
	return r.prefix + "index"
}

func (r *ResultRepository) Append(ctx context.Context, record domain.ResultRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal result record: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, r.recordKey(record.ID), data, recordTTL)
	pipe.LPush(ctx, r.indexKey(), record.ID)
	pipe.LTrim(ctx, r.indexKey(), 0, int64(r.limit-1))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append result record: %w", err)
	}
	return nil
}

func (r *ResultRepository) Finalize(ctx context.Context, id string, status domain.SessionStatus, reason string) error {
	key := r.recordKey(id)
	data, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to get result record: %w", err)
	}

	var record domain.ResultRecord
	if err := json.Unmarshal([]byte(data), &record); err != nil {
		return fmt.Errorf("failed to unmarshal result record: %w", err)
	}
	if record.Finished() {
		return nil
	}

	record.Status = status
	record.Reason = reason
	record.EndedAt = time.Now()

	updated, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal result record: %w", err)
	}
	if err := r.client.Set(ctx, key, updated, recordTTL).Err(); err != nil {
		return fmt.Errorf("failed to update result record: %w", err)
	}
	return nil
}

func (r *ResultRepository) List(ctx context.Context) ([]domain.ResultRecord, error) {
	ids, err := r.client.LRange(ctx, r.indexKey(), 0, int64(r.limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read result index: %w", err)
	}
	if len(ids) == 0 {
		return []domain.ResultRecord{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.recordKey(id)
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read result records: %w", err)
	}

	records := make([]domain.ResultRecord, 0, len(values))
	for _, v := range values {
		s, ok := v.(string)
		if !ok {
			continue // expired detail key
		}
		var record domain.ResultRecord
		if err := json.Unmarshal([]byte(s), &record); err != nil {
			continue
		}
		records = append(records, record)
	}
	return records, nil
}
