package cache

import (
	"sync/atomic"
	"time"
)

// RefreshFailure records a failed background refresh attempt for a stale
// record. It never blocks serving the record.
type RefreshFailure struct {
	Reason string    `json:"reason"`
	At     time.Time `json:"at"`
	Count  int       `json:"count"`
}

// Record is one cached question/answer pair. The JSON field names define
// the persisted file format and must stay stable across releases.
type Record struct {
	Fingerprint    string          `json:"questionHash"`
	Question       string          `json:"question"`
	Answer         string          `json:"answer"`
	ContextTag     string          `json:"contextTag,omitempty"`
	CreatedAt      time.Time       `json:"timestamp"`
	AccessCount    int64           `json:"accessCount"`
	LastAccessed   time.Time       `json:"lastAccessed"`
	RefreshFailure *RefreshFailure `json:"refreshFailure,omitempty"`

	// Annotations set on copies returned from lookups. Never persisted and
	// never set on the record held by the store.
	NeedsRefresh bool    `json:"-"`
	Similarity   float64 `json:"-"`
}

// clone returns a value copy safe to hand to callers. Store internals are
// never aliased outward.
func (r *Record) clone() *Record {
	cp := *r
	if r.RefreshFailure != nil {
		rf := *r.RefreshFailure
		cp.RefreshFailure = &rf
	}
	return &cp
}

// counters tracks lookup and mutation outcomes. Atomic so read paths can
// bump them without holding the store write lock.
type counters struct {
	exactHits        atomic.Int64
	similarityHits   atomic.Int64
	fastPathHits     atomic.Int64
	misses           atomic.Int64
	inserts          atomic.Int64
	duplicateRejects atomic.Int64
	evictions        atomic.Int64
	errors           atomic.Int64
}

// Stats is a read-only snapshot of cache counters for the admin dashboard.
type Stats struct {
	Size             int     `json:"size"`
	Dirty            bool    `json:"dirty"`
	ExactHits        int64   `json:"exactHits"`
	SimilarityHits   int64   `json:"similarityHits"`
	FastPathHits     int64   `json:"fastPathHits"`
	Hits             int64   `json:"hits"`
	Misses           int64   `json:"misses"`
	Inserts          int64   `json:"inserts"`
	DuplicateRejects int64   `json:"duplicateRejects"`
	Evictions        int64   `json:"evictions"`
	Errors           int64   `json:"errors"`
	HitRate          float64 `json:"hitRate"`
}

// RecordSummary is a trimmed view of a record for the admin dashboard;
// answers are omitted to keep the listing small.
type RecordSummary struct {
	Fingerprint  string    `json:"fingerprint"`
	Question     string    `json:"question"`
	ContextTag   string    `json:"contextTag,omitempty"`
	AccessCount  int64     `json:"accessCount"`
	CreatedAt    time.Time `json:"createdAt"`
	LastAccessed time.Time `json:"lastAccessed"`
	Stale        bool      `json:"stale"`
}
