package cache

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"go.uber.org/zap"
)

func newTestMaintainer(t *testing.T, s *Store, interval, minGap time.Duration) (*Maintainer, string) {
	t.Helper()
	p, path := newTestPersister(t, s)
	logger, _ := zap.NewDevelopment()
	return NewMaintainer(s, p, interval, minGap, logger), path
}

func TestMaintainFlushesAndEvicts(t *testing.T) {
	s := newTestStore(t, Config{MaxSize: 100, HighWater: 5, TargetSize: 3})
	m, path := newTestMaintainer(t, s, time.Minute, time.Second)

	for i := 0; i < 6; i++ {
		s.Insert(fmt.Sprintf("maintenance question %d alpha%d", i, i), "answer", "")
	}
	if !s.Dirty() {
		t.Fatal("store should be dirty before maintenance")
	}

	m.Maintain()

	if s.Size() != 3 {
		t.Errorf("size = %d, want evicted down to target 3", s.Size())
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("maintenance did not flush the cache file: %v", err)
	}
}

func TestMaintainIdempotent(t *testing.T) {
	s := newTestStore(t, Config{MaxSize: 100, HighWater: 5, TargetSize: 3})
	m, _ := newTestMaintainer(t, s, time.Minute, time.Second)

	s.Insert("idempotent question", "answer", "")

	m.Maintain()
	sizeAfterFirst := s.Size()
	evictionsAfterFirst := s.Stats().Evictions

	m.Maintain()
	if s.Size() != sizeAfterFirst {
		t.Error("second maintenance cycle changed the store size")
	}
	if s.Stats().Evictions != evictionsAfterFirst {
		t.Error("second maintenance cycle evicted records")
	}
}

func TestNotifyWriteNeverBlocks(t *testing.T) {
	s := newTestStore(t, Config{})
	m, _ := newTestMaintainer(t, s, time.Minute, time.Second)

	// No consumer running; repeated notifications must coalesce, not block.
	for i := 0; i < 10; i++ {
		m.NotifyWrite()
	}
}

func TestRunFlushesOnShutdown(t *testing.T) {
	s := newTestStore(t, Config{})
	m, path := newTestMaintainer(t, s, time.Hour, time.Hour)

	s.Insert("shutdown question", "shutdown answer", "")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("maintenance loop did not stop")
	}

	if s.Dirty() {
		t.Error("store should be flushed clean on shutdown")
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("cache file missing after shutdown flush: %v", err)
	}
}
