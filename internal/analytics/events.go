// Package analytics tracks what users search for: events are buffered and
// shipped to Kafka, folded into running statistics and periodically
// snapshotted to PostgreSQL.
package analytics

import "time"

// SearchEvent describes one answered search request.
type SearchEvent struct {
	Query     string    `json:"query"`
	Matches   int       `json:"matches"`
	Returned  int       `json:"returned"`
	Scanned   int       `json:"scanned"`
	LatencyUs int64     `json:"latency_us"`
	CacheHit  bool      `json:"cache_hit"`
	Vector    bool      `json:"vector"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}

// ReloadEvent announces a haystack change so that other replicas reload
// from the shared source.
type ReloadEvent struct {
	Instance    string    `json:"instance"`
	Reason      string    `json:"reason"`
	Entries     int       `json:"entries"`
	Fingerprint string    `json:"fingerprint"`
	Timestamp   time.Time `json:"timestamp"`
}

// Tracker accepts search events. Both the Kafka Collector and the local
// Aggregator implement it.
type Tracker interface {
	Track(event SearchEvent)
}
