package domain

import "time"

// ResultLogSize bounds the result log to the most recent entries.
const ResultLogSize = 10

// ResultRecord is one entry in the append-only test result log. A record is
// created with StatusLoading when a test starts and mutated at most once
// afterwards, to its terminal status.
type ResultRecord struct {
	ID        string        `json:"id"`
	Format    StreamFormat  `json:"format"`
	URL       string        `json:"url"`
	Status    SessionStatus `json:"status"`
	Reason    string        `json:"reason,omitempty"`
	StartedAt time.Time     `json:"started_at"`
	EndedAt   time.Time     `json:"ended_at,omitempty"`
}

// Finished reports whether the record has reached its terminal value.
func (r ResultRecord) Finished() bool {
	return r.Status.Terminal()
}
