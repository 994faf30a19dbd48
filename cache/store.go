package cache

import (
	"sort"
	"strings"
	"sync"
	"time"

	apperrors "github.com/powerfulqa/aszune-ai-bot-sub000/errors"
	"go.uber.org/zap"
)

// Config holds the tuning knobs for the store and its attached layers.
type Config struct {
	MaxSize             int           // hard capacity; insert evicts pre-emptively at this bound
	HighWater           int           // record count that triggers batch eviction
	TargetSize          int           // post-eviction goal size
	SimilarityThreshold float64       // minimum Jaccard score for a near-duplicate hit
	StalenessAge        time.Duration // age past which records are flagged for refresh
	FastPathSize        int           // raw-query recency cache size; 0 disables
	MaxQuestionLength   int           // overlong questions are rejected, not truncated
	DuplicateWindow     time.Duration // reject same-key inserts racing within this window
}

func (c Config) withDefaults() Config {
	if c.MaxSize <= 0 {
		c.MaxSize = 1000
	}
	if c.HighWater <= 0 || c.HighWater > c.MaxSize {
		c.HighWater = c.MaxSize * 9 / 10
	}
	if c.TargetSize <= 0 || c.TargetSize >= c.HighWater {
		c.TargetSize = c.HighWater * 3 / 4
	}
	if c.SimilarityThreshold <= 0 || c.SimilarityThreshold > 1 {
		c.SimilarityThreshold = 0.85
	}
	if c.StalenessAge <= 0 {
		c.StalenessAge = 30 * 24 * time.Hour
	}
	if c.MaxQuestionLength <= 0 {
		c.MaxQuestionLength = 2000
	}
	if c.DuplicateWindow <= 0 {
		c.DuplicateWindow = 5 * time.Second
	}
	return c
}

// Store is the authoritative map from fingerprint to cached record. All
// mutation goes through its lock; lookups take the read side and promote to
// the write side only for the access-stat update on a hit. Records never
// leave the store by reference.
type Store struct {
	mu         sync.RWMutex
	records    map[string]*Record
	size       int // cached len(records), self-healing
	dirty      bool
	generation uint64 // bumped on every mutation; lets a flush detect writes behind its back

	cfg      Config
	fastPath *fastPath
	counters counters
	logger   *zap.Logger

	now func() time.Time // test hook
}

// NewStore creates an empty store. Hydrate it from disk with
// Persister.Load before serving traffic.
func NewStore(cfg Config, logger *zap.Logger) *Store {
	cfg = cfg.withDefaults()
	return &Store{
		records:  make(map[string]*Record),
		cfg:      cfg,
		fastPath: newFastPath(cfg.FastPathSize),
		logger:   logger,
		now:      time.Now,
	}
}

// Find looks up a cached answer for question, narrowed by contextTag when
// one is supplied. Resolution order: fast path, exact fingerprint,
// similarity scan. Returns nil on a miss or invalid input; never returns an
// error to the caller.
func (s *Store) Find(question, contextTag string) *Record {
	question = strings.TrimSpace(question)
	if question == "" {
		s.counters.misses.Add(1)
		return nil
	}

	// Literal repeat of a recent query: skip hashing and scanning.
	if entry, ok := s.fastPath.get(question, contextTag); ok {
		if rec := s.touchAndCopy(entry.fingerprint, entry.viaSimilarity, entry.similarity); rec != nil {
			s.counters.fastPathHits.Add(1)
			return rec
		}
		// Underlying record was evicted; entry is garbage.
		s.fastPath.remove(question, contextTag)
	}

	fp := Fingerprint(question)

	s.mu.RLock()
	existing, ok := s.records[fp]
	eligible := ok && contextEligible(existing.ContextTag, contextTag)
	s.mu.RUnlock()

	if eligible {
		if rec := s.touchAndCopy(fp, false, 0); rec != nil {
			s.counters.exactHits.Add(1)
			s.fastPath.add(question, contextTag, fastPathEntry{fingerprint: fp})
			return rec
		}
	}

	if bestFP, bestScore := s.scanSimilar(question, contextTag); bestFP != "" {
		if rec := s.touchAndCopy(bestFP, true, bestScore); rec != nil {
			s.counters.similarityHits.Add(1)
			s.fastPath.add(question, contextTag, fastPathEntry{
				fingerprint:   bestFP,
				similarity:    bestScore,
				viaSimilarity: true,
			})
			return rec
		}
	}

	s.counters.misses.Add(1)
	return nil
}

// Insert records a new question/answer pair. Returns false on validation
// failure or when a record for the same fingerprint was created within the
// duplicate-suppression window (two concurrent cache misses racing to
// populate the same key). A record older than the window is overwritten,
// which is how refreshed answers land.
func (s *Store) Insert(question, answer, contextTag string) bool {
	question = strings.TrimSpace(question)
	answer = strings.TrimSpace(answer)
	if question == "" || answer == "" {
		s.counters.errors.Add(1)
		return false
	}
	if len(question) > s.cfg.MaxQuestionLength {
		s.logger.Warn("Rejecting overlong question",
			zap.Int("length", len(question)),
			zap.Int("limit", s.cfg.MaxQuestionLength))
		s.counters.errors.Add(1)
		return false
	}

	fp := Fingerprint(question)
	now := s.now()

	s.mu.Lock()
	if existing, ok := s.records[fp]; ok {
		if now.Sub(existing.CreatedAt) < s.cfg.DuplicateWindow {
			s.mu.Unlock()
			s.counters.duplicateRejects.Add(1)
			return false
		}
	} else if len(s.records) >= s.cfg.MaxSize {
		evicted := s.evictToLocked(s.cfg.TargetSize)
		s.logger.Info("Evicted records to make room for insert",
			zap.Int("evicted", evicted),
			zap.Int("target", s.cfg.TargetSize))
	}

	s.records[fp] = &Record{
		Fingerprint:  fp,
		Question:     question,
		Answer:       answer,
		ContextTag:   contextTag,
		CreatedAt:    now,
		LastAccessed: now,
	}
	s.size = len(s.records)
	s.markDirtyLocked()
	s.mu.Unlock()

	s.counters.inserts.Add(1)
	return true
}

// RecordRefreshFailure notes a failed background refresh on a record
// without blocking it from being served.
func (s *Store) RecordRefreshFailure(fingerprint, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[fingerprint]
	if !ok {
		return
	}
	count := 1
	if rec.RefreshFailure != nil {
		count = rec.RefreshFailure.Count + 1
	}
	rec.RefreshFailure = &RefreshFailure{Reason: reason, At: s.now(), Count: count}
	s.markDirtyLocked()
}

// EvictIfOver runs batch eviction when the record count exceeds the
// high-water mark, removing least-recently-accessed records until the
// target size is reached. Returns the number of records removed. A no-op
// below the mark.
func (s *Store) EvictIfOver() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.records) <= s.cfg.HighWater {
		return 0
	}
	return s.evictToLocked(s.cfg.TargetSize)
}

// EvictToTarget forces eviction down to the configured target size
// regardless of the high-water mark. A no-op when already at or below it.
func (s *Store) EvictToTarget() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.evictToLocked(s.cfg.TargetSize)
}

// evictToLocked removes the oldest records by lastAccessed until target
// size is reached. Ties break on fingerprint order so eviction is
// deterministic. Caller holds the write lock.
func (s *Store) evictToLocked(target int) int {
	if target < 0 {
		target = 0
	}
	excess := len(s.records) - target
	if excess <= 0 {
		return 0
	}

	type victim struct {
		fp           string
		lastAccessed time.Time
	}
	victims := make([]victim, 0, len(s.records))
	for fp, rec := range s.records {
		victims = append(victims, victim{fp: fp, lastAccessed: rec.LastAccessed})
	}
	sort.Slice(victims, func(i, j int) bool {
		if !victims[i].lastAccessed.Equal(victims[j].lastAccessed) {
			return victims[i].lastAccessed.Before(victims[j].lastAccessed)
		}
		return victims[i].fp < victims[j].fp
	})

	for _, v := range victims[:excess] {
		delete(s.records, v.fp)
	}
	s.size = len(s.records)
	s.markDirtyLocked()
	s.counters.evictions.Add(int64(excess))
	// Entries may point at removed records; they are disposable.
	s.fastPath.purge()
	return excess
}

// touchAndCopy bumps access stats on the record for fp and returns an
// annotated value copy, or nil if the record no longer exists.
func (s *Store) touchAndCopy(fp string, viaSimilarity bool, similarity float64) *Record {
	now := s.now()

	s.mu.Lock()
	rec, ok := s.records[fp]
	if !ok {
		s.mu.Unlock()
		return nil
	}
	rec.AccessCount++
	if now.After(rec.LastAccessed) {
		rec.LastAccessed = now
	}
	stale := now.Sub(rec.CreatedAt) > s.cfg.StalenessAge
	cp := rec.clone()
	s.markDirtyLocked()
	s.mu.Unlock()

	cp.NeedsRefresh = stale
	if viaSimilarity {
		cp.Similarity = similarity
	}
	return cp
}

// scanSimilar finds the best candidate at or above the similarity
// threshold. Candidates are pre-filtered to questions within a 0.5x-1.5x
// length band of the query, and a failure scoring one candidate skips that
// candidate rather than aborting the scan.
func (s *Store) scanSimilar(question, contextTag string) (string, float64) {
	qLen := len(question)
	lo, hi := qLen/2, qLen+qLen/2

	s.mu.RLock()
	defer s.mu.RUnlock()

	var bestFP string
	var best float64
	for fp, rec := range s.records {
		if l := len(rec.Question); l < lo || l > hi {
			continue
		}
		if !contextEligible(rec.ContextTag, contextTag) {
			continue
		}
		score, err := s.scoreCandidate(question, rec.Question)
		if err != nil {
			s.counters.errors.Add(1)
			s.logger.Warn("Skipping candidate after scoring failure",
				zap.Error(err),
				zap.String("fingerprint", fp))
			continue
		}
		if score < s.cfg.SimilarityThreshold {
			continue
		}
		if score > best || (score == best && (bestFP == "" || fp < bestFP)) {
			best, bestFP = score, fp
		}
	}
	return bestFP, best
}

// scoreCandidate converts a panic inside the scorer into an error so a
// single bad candidate cannot abort a whole lookup.
func (s *Store) scoreCandidate(a, b string) (score float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = apperrors.Wrapf(apperrors.ErrInternal, "similarity scoring panicked: %v", r)
		}
	}()
	return Similarity(a, b), nil
}

// contextEligible reports whether a candidate record with candidateTag may
// serve a query carrying queryTag. Context never widens matches, only
// narrows them: an untagged query accepts anything, a tagged query accepts
// untagged or same-tagged records.
func contextEligible(candidateTag, queryTag string) bool {
	if queryTag == "" {
		return true
	}
	return candidateTag == "" || candidateTag == queryTag
}

// Size returns the record count. The cached count is redundant bookkeeping;
// if it ever drifts from the map it is recomputed silently.
func (s *Store) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.size != len(s.records) {
		s.size = len(s.records)
	}
	return s.size
}

// Dirty reports whether in-memory state has diverged from the last
// successful flush.
func (s *Store) Dirty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dirty
}

// Stats returns a snapshot of the cache counters.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	size := len(s.records)
	dirty := s.dirty
	s.mu.RUnlock()

	exact := s.counters.exactHits.Load()
	similar := s.counters.similarityHits.Load()
	fast := s.counters.fastPathHits.Load()
	misses := s.counters.misses.Load()
	hits := exact + similar + fast

	stats := Stats{
		Size:             size,
		Dirty:            dirty,
		ExactHits:        exact,
		SimilarityHits:   similar,
		FastPathHits:     fast,
		Hits:             hits,
		Misses:           misses,
		Inserts:          s.counters.inserts.Load(),
		DuplicateRejects: s.counters.duplicateRejects.Load(),
		Evictions:        s.counters.evictions.Load(),
		Errors:           s.counters.errors.Load(),
	}
	if total := hits + misses; total > 0 {
		stats.HitRate = float64(hits) / float64(total)
	}
	return stats
}

// Summaries returns up to limit record summaries ordered by last access,
// most recent first.
func (s *Store) Summaries(limit int) []RecordSummary {
	now := s.now()

	s.mu.RLock()
	summaries := make([]RecordSummary, 0, len(s.records))
	for _, rec := range s.records {
		summaries = append(summaries, RecordSummary{
			Fingerprint:  rec.Fingerprint,
			Question:     rec.Question,
			ContextTag:   rec.ContextTag,
			AccessCount:  rec.AccessCount,
			CreatedAt:    rec.CreatedAt,
			LastAccessed: rec.LastAccessed,
			Stale:        now.Sub(rec.CreatedAt) > s.cfg.StalenessAge,
		})
	}
	s.mu.RUnlock()

	sort.Slice(summaries, func(i, j int) bool {
		if !summaries[i].LastAccessed.Equal(summaries[j].LastAccessed) {
			return summaries[i].LastAccessed.After(summaries[j].LastAccessed)
		}
		return summaries[i].Fingerprint < summaries[j].Fingerprint
	})
	if limit > 0 && len(summaries) > limit {
		summaries = summaries[:limit]
	}
	return summaries
}

// markDirtyLocked flags divergence from the persisted state. Caller holds
// the write lock.
func (s *Store) markDirtyLocked() {
	s.dirty = true
	s.generation++
}

// markClean clears the dirty flag only if no mutation happened since the
// snapshot at generation gen was staged.
func (s *Store) markClean(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation == gen {
		s.dirty = false
	}
}

// hydrate replaces store contents from persisted records. Used once at
// startup, before the store is shared.
func (s *Store) hydrate(records map[string]*Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = records
	s.size = len(records)
	s.dirty = false
	s.fastPath.purge()
}

// snapshot returns value copies of all records plus the generation they
// were staged at.
func (s *Store) snapshot() (map[string]*Record, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := make(map[string]*Record, len(s.records))
	for fp, rec := range s.records {
		snap[fp] = rec.clone()
	}
	return snap, s.generation
}
