package cache

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
)

func newTestStore(t *testing.T, cfg Config) *Store {
	t.Helper()
	logger, _ := zap.NewDevelopment()
	return NewStore(cfg, logger)
}

func TestInsertThenFindRoundTrip(t *testing.T) {
	s := newTestStore(t, Config{})

	if !s.Insert("What is Rust?", "A systems language", "") {
		t.Fatal("insert should succeed")
	}

	rec := s.Find("What is Rust?", "")
	if rec == nil {
		t.Fatal("expected a hit")
	}
	if rec.Answer != "A systems language" {
		t.Errorf("answer = %q, want %q", rec.Answer, "A systems language")
	}
	if rec.AccessCount != 1 {
		t.Errorf("access count = %d, want 1", rec.AccessCount)
	}
	if rec.LastAccessed.Before(rec.CreatedAt) {
		t.Error("lastAccessed must never precede createdAt")
	}
}

func TestFindExactHitNormalizesVariants(t *testing.T) {
	s := newTestStore(t, Config{})
	s.Insert("What is Rust?", "A systems language", "")

	rec := s.Find("  WHAT IS RUST?", "")
	if rec == nil {
		t.Fatal("expected normalization to collapse the variants into a hit")
	}
	if rec.Answer != "A systems language" {
		t.Errorf("answer = %q, want %q", rec.Answer, "A systems language")
	}
	if got := s.Stats().ExactHits; got != 1 {
		t.Errorf("exact hits = %d, want 1", got)
	}
}

func TestFindSimilarityHit(t *testing.T) {
	s := newTestStore(t, Config{})
	s.Insert("How do I bake bread", "Mix flour and water...", "")

	rec := s.Find("how do I bake some bread", "")
	if rec == nil {
		t.Fatal("expected a similarity hit")
	}
	if rec.Answer != "Mix flour and water..." {
		t.Errorf("answer = %q, want the bread answer", rec.Answer)
	}
	if rec.Similarity < 0.85 {
		t.Errorf("similarity = %v, want >= 0.85", rec.Similarity)
	}
	if got := s.Stats().SimilarityHits; got != 1 {
		t.Errorf("similarity hits = %d, want 1", got)
	}
}

func TestFindMissOnEmptyStore(t *testing.T) {
	s := newTestStore(t, Config{})

	if rec := s.Find("anything", ""); rec != nil {
		t.Fatalf("expected nil on empty store, got %+v", rec)
	}
	if got := s.Stats().Misses; got != 1 {
		t.Errorf("misses = %d, want 1", got)
	}
}

func TestFindRejectsInvalidInput(t *testing.T) {
	s := newTestStore(t, Config{})
	s.Insert("real question here", "real answer", "")

	for _, input := range []string{"", "   ", "\t\n"} {
		if rec := s.Find(input, ""); rec != nil {
			t.Errorf("Find(%q) = %+v, want nil", input, rec)
		}
	}
}

func TestInsertValidation(t *testing.T) {
	s := newTestStore(t, Config{MaxQuestionLength: 50})

	tests := []struct {
		name     string
		question string
		answer   string
		want     bool
	}{
		{name: "valid", question: "what is go", answer: "a language", want: true},
		{name: "empty_question", question: "", answer: "a", want: false},
		{name: "whitespace_question", question: "   ", answer: "a", want: false},
		{name: "empty_answer", question: "valid question", answer: "", want: false},
		{name: "whitespace_answer", question: "valid question", answer: " \n ", want: false},
		{name: "overlong_question", question: strings.Repeat("x", 51), answer: "a", want: false},
		{name: "at_length_limit", question: strings.Repeat("y", 50), answer: "a", want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.Insert(tt.question, tt.answer, ""); got != tt.want {
				t.Errorf("Insert(%q, %q) = %v, want %v", tt.question, tt.answer, got, tt.want)
			}
		})
	}
}

func TestInsertDuplicateInFlightRejected(t *testing.T) {
	s := newTestStore(t, Config{DuplicateWindow: 5 * time.Second})
	base := time.Now()
	s.now = func() time.Time { return base }

	if !s.Insert("what is rust", "first answer", "") {
		t.Fatal("first insert should succeed")
	}

	// A second writer racing within the window loses.
	s.now = func() time.Time { return base.Add(time.Second) }
	if s.Insert("what is rust", "racing answer", "") {
		t.Error("insert within duplicate window should be rejected")
	}
	if got := s.Stats().DuplicateRejects; got != 1 {
		t.Errorf("duplicate rejects = %d, want 1", got)
	}
	if rec := s.Find("what is rust", ""); rec.Answer != "first answer" {
		t.Errorf("answer = %q, the racing write must not clobber", rec.Answer)
	}

	// Past the window the same key is refreshable.
	s.now = func() time.Time { return base.Add(time.Minute) }
	if !s.Insert("what is rust", "refreshed answer", "") {
		t.Error("insert past the duplicate window should overwrite")
	}
	if rec := s.Find("what is rust", ""); rec.Answer != "refreshed answer" {
		t.Errorf("answer = %q, want the refreshed answer", rec.Answer)
	}
}

func TestFindReturnsCopyNotAlias(t *testing.T) {
	s := newTestStore(t, Config{})
	s.Insert("what is rust", "a systems language", "")

	rec := s.Find("what is rust", "")
	rec.Answer = "mutated by caller"
	rec.Question = "also mutated"

	again := s.Find("what is rust", "")
	if again.Answer != "a systems language" {
		t.Errorf("store internals were aliased outward: answer = %q", again.Answer)
	}
}

func TestContextTagNarrowsMatches(t *testing.T) {
	s := newTestStore(t, Config{})
	s.Insert("how do I deploy", "run the pipeline", "devops")
	s.Insert("what is a slice", "a view over an array", "")

	tests := []struct {
		name     string
		question string
		context  string
		wantHit  bool
	}{
		{name: "matching_tag", question: "how do I deploy", context: "devops", wantHit: true},
		{name: "mismatched_tag", question: "how do I deploy", context: "cooking", wantHit: false},
		{name: "untagged_query_accepts_tagged_record", question: "how do I deploy", context: "", wantHit: true},
		{name: "untagged_record_serves_any_tag", question: "what is a slice", context: "golang", wantHit: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.Find(tt.question, tt.context)
			if (rec != nil) != tt.wantHit {
				t.Errorf("Find(%q, %q) hit = %v, want %v", tt.question, tt.context, rec != nil, tt.wantHit)
			}
		})
	}
}

func TestEvictToTargetRemovesLeastRecentlyUsed(t *testing.T) {
	s := newTestStore(t, Config{MaxSize: 10, HighWater: 5, TargetSize: 3})
	base := time.Now()

	// Five records with strictly increasing access times. Questions share no
	// tokens so an evicted one cannot similarity-match a survivor.
	questions := []string{
		"alpha aardvark anchor", "bravo badger bucket", "charlie cheetah candle",
		"delta dolphin drawer", "echo elephant engine",
	}
	for i, q := range questions {
		s.now = func() time.Time { return base.Add(time.Duration(i) * time.Minute) }
		if !s.Insert(q, fmt.Sprintf("answer %d", i), "") {
			t.Fatalf("insert %d failed", i)
		}
	}
	if s.Size() != 5 {
		t.Fatalf("size = %d, want 5", s.Size())
	}

	evicted := s.EvictToTarget()
	if evicted != 2 {
		t.Fatalf("evicted = %d, want exactly 2", evicted)
	}
	if s.Size() != 3 {
		t.Fatalf("size after eviction = %d, want 3", s.Size())
	}

	// The two least-recently-accessed are gone, the three most recent remain.
	for i := 0; i < 2; i++ {
		if rec := s.Find(questions[i], ""); rec != nil {
			t.Errorf("record %d should have been evicted", i)
		}
	}
	for i := 2; i < 5; i++ {
		if rec := s.Find(questions[i], ""); rec == nil {
			t.Errorf("record %d should have survived eviction", i)
		}
	}
}

func TestEvictionIdempotentBelowTarget(t *testing.T) {
	s := newTestStore(t, Config{MaxSize: 10, HighWater: 5, TargetSize: 3})
	s.Insert("only question", "only answer", "")

	dirtyBefore := s.Dirty()
	if evicted := s.EvictToTarget(); evicted != 0 {
		t.Errorf("evicted = %d, want 0 when size <= target", evicted)
	}
	if evicted := s.EvictIfOver(); evicted != 0 {
		t.Errorf("evicted = %d, want 0 when size <= high water", evicted)
	}
	if s.Dirty() != dirtyBefore {
		t.Error("no-op eviction must not change the dirty flag")
	}
	if s.Size() != 1 {
		t.Errorf("size = %d, want 1", s.Size())
	}
}

func TestInsertEvictsPreemptivelyAtCapacity(t *testing.T) {
	s := newTestStore(t, Config{MaxSize: 3, HighWater: 3, TargetSize: 2})
	base := time.Now()
	// Token-disjoint questions, so evicted ones cannot similarity-match.
	questions := []string{"foxtrot falcon fence", "golf giraffe garden", "hotel heron hammer"}
	for i, q := range questions {
		s.now = func() time.Time { return base.Add(time.Duration(i) * time.Minute) }
		s.Insert(q, "answer", "")
	}

	s.now = func() time.Time { return base.Add(time.Hour) }
	if !s.Insert("india ibis island", "newest answer", "") {
		t.Fatal("insert at capacity should evict to make room, not fail")
	}
	if s.Size() != 3 {
		t.Errorf("size = %d, want 3 (target 2 plus the new record)", s.Size())
	}
	if rec := s.Find(questions[0], ""); rec != nil {
		t.Error("oldest record should have been evicted to make room")
	}
	if rec := s.Find("india ibis island", ""); rec == nil {
		t.Error("incoming record should be present after pre-emptive eviction")
	}
}

func TestStalenessFlaggedOnReturnedCopy(t *testing.T) {
	s := newTestStore(t, Config{StalenessAge: time.Hour})
	base := time.Now()
	s.now = func() time.Time { return base }
	s.Insert("aging question", "aging answer", "")

	s.now = func() time.Time { return base.Add(30 * time.Minute) }
	if rec := s.Find("aging question", ""); rec == nil || rec.NeedsRefresh {
		t.Error("fresh record should not be flagged for refresh")
	}

	s.now = func() time.Time { return base.Add(2 * time.Hour) }
	rec := s.Find("aging question", "")
	if rec == nil {
		t.Fatal("stale records must remain servable")
	}
	if !rec.NeedsRefresh {
		t.Error("record past the staleness age should be flagged needsRefresh")
	}
}

func TestRecordRefreshFailure(t *testing.T) {
	s := newTestStore(t, Config{})
	s.Insert("flaky question", "old answer", "")
	fp := Fingerprint("flaky question")

	s.RecordRefreshFailure(fp, "backend timeout")
	s.RecordRefreshFailure(fp, "backend timeout again")

	rec := s.Find("flaky question", "")
	if rec == nil {
		t.Fatal("refresh failure must never block serving")
	}
	if rec.RefreshFailure == nil {
		t.Fatal("refresh failure note missing")
	}
	if rec.RefreshFailure.Count != 2 {
		t.Errorf("refresh failure count = %d, want 2", rec.RefreshFailure.Count)
	}
	if rec.RefreshFailure.Reason != "backend timeout again" {
		t.Errorf("refresh failure reason = %q", rec.RefreshFailure.Reason)
	}
}

func TestStatsHitRate(t *testing.T) {
	s := newTestStore(t, Config{})
	s.Insert("tracked question", "tracked answer", "")

	s.Find("tracked question", "") // hit
	s.Find("tracked question", "") // hit (fast path or exact)
	s.Find("unknown question", "") // miss

	stats := s.Stats()
	if stats.Hits != 2 {
		t.Errorf("hits = %d, want 2", stats.Hits)
	}
	if stats.Misses != 1 {
		t.Errorf("misses = %d, want 1", stats.Misses)
	}
	if want := 2.0 / 3.0; stats.HitRate != want {
		t.Errorf("hit rate = %v, want %v", stats.HitRate, want)
	}
	if stats.Size != 1 {
		t.Errorf("size = %d, want 1", stats.Size)
	}
}

func TestSizeSelfHeals(t *testing.T) {
	s := newTestStore(t, Config{})
	s.Insert("a question about go", "an answer", "")
	s.Insert("a question about rust", "another answer", "")

	// Force the cached count out of sync; Size must recompute silently.
	s.mu.Lock()
	s.size = 99
	s.mu.Unlock()

	if got := s.Size(); got != 2 {
		t.Errorf("size = %d, want self-healed 2", got)
	}
}
