package telemetry

import (
	"sync"
	"time"
)

// LedgerStats is implemented by components holding unflushed change records
type LedgerStats interface {
	PendingRecords() int
}

// SessionStats is implemented by the session directory
type SessionStats interface {
	Len() int
}

// MetricsCollector periodically collects stats and updates telemetry gauges
type MetricsCollector struct {
	ledger   LedgerStats
	sessions SessionStats
	interval time.Duration
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewMetricsCollector creates a new metrics collector
// Either source may be nil.
func NewMetricsCollector(ledger LedgerStats, sessions SessionStats, interval time.Duration) *MetricsCollector {
	return &MetricsCollector{
		ledger:   ledger,
		sessions: sessions,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the periodic collection
func (mc *MetricsCollector) Start() {
	mc.wg.Add(1)
	go mc.collectLoop()
}

// Stop stops the collector
func (mc *MetricsCollector) Stop() {
	close(mc.stopCh)
	mc.wg.Wait()
}

func (mc *MetricsCollector) collectLoop() {
	defer mc.wg.Done()

	ticker := time.NewTicker(mc.interval)
	defer ticker.Stop()

	mc.collect()

	for {
		select {
		case <-ticker.C:
			mc.collect()
		case <-mc.stopCh:
			return
		}
	}
}

func (mc *MetricsCollector) collect() {
	if mc.ledger != nil {
		LedgerRecords.Set(float64(mc.ledger.PendingRecords()))
	}
	if mc.sessions != nil {
		SessionsTracked.Set(float64(mc.sessions.Len()))
	}
}
