package cache

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Maintainer periodically flushes the store if dirty and evicts when the
// record count is over the high-water mark. It also accepts write
// notifications so a burst of inserts is persisted without waiting a full
// interval, throttled so the opportunistic path runs at most once per
// minFlushGap.
type Maintainer struct {
	store       *Store
	persister   *Persister
	interval    time.Duration
	minFlushGap time.Duration
	logger      *zap.Logger

	notify chan struct{}

	mu        sync.Mutex
	lastCycle time.Time
}

func NewMaintainer(store *Store, persister *Persister, interval, minFlushGap time.Duration, logger *zap.Logger) *Maintainer {
	if interval <= 0 {
		interval = time.Minute
	}
	if minFlushGap <= 0 {
		minFlushGap = 10 * time.Second
	}
	return &Maintainer{
		store:       store,
		persister:   persister,
		interval:    interval,
		minFlushGap: minFlushGap,
		logger:      logger,
		notify:      make(chan struct{}, 1),
	}
}

// Run drives the maintenance loop until ctx is cancelled, then performs a
// final flush so a clean shutdown loses nothing.
func (m *Maintainer) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.logger.Info("Cache maintenance started",
		zap.Duration("interval", m.interval),
		zap.Duration("min_flush_gap", m.minFlushGap))

	for {
		select {
		case <-ctx.Done():
			if err := m.persister.Flush(); err != nil {
				m.logger.Error("Final cache flush failed", zap.Error(err))
			}
			m.logger.Info("Cache maintenance stopped")
			return
		case <-ticker.C:
			m.Maintain()
		case <-m.notify:
			if m.sinceLastCycle() >= m.minFlushGap {
				m.Maintain()
			}
		}
	}
}

// NotifyWrite signals that a write happened. Non-blocking; coalesces with
// any pending notification.
func (m *Maintainer) NotifyWrite() {
	select {
	case m.notify <- struct{}{}:
	default:
	}
}

// Maintain runs one maintenance cycle: flush-if-dirty, then
// evict-if-over-threshold. Idempotent and safe to call concurrently with
// lookups; persistence failures are logged and retried on the next cycle.
func (m *Maintainer) Maintain() {
	m.mu.Lock()
	m.lastCycle = time.Now()
	m.mu.Unlock()

	if err := m.persister.Flush(); err != nil {
		m.logger.Error("Scheduled cache flush failed, will retry", zap.Error(err))
	}
	if evicted := m.store.EvictIfOver(); evicted > 0 {
		m.logger.Info("Evicted least-recently-used cache records",
			zap.Int("evicted", evicted),
			zap.Int("remaining", m.store.Size()))
	}
}

func (m *Maintainer) sinceLastCycle() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return time.Since(m.lastCycle)
}
