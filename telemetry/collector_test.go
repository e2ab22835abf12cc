package telemetry

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type countingProvider struct {
	calls atomic.Int32
}

func (p *countingProvider) PendingRecords() int {
	p.calls.Add(1)
	return 3
}

func (p *countingProvider) Len() int {
	return 1
}

func TestMetricsCollectorCollectsOnStart(t *testing.T) {
	provider := &countingProvider{}
	mc := NewMetricsCollector(provider, provider, time.Hour)
	mc.Start()

	assert.Eventually(t, func() bool {
		return provider.calls.Load() >= 1
	}, time.Second, 5*time.Millisecond)

	mc.Stop()
}

func TestMetricsCollectorNilSources(t *testing.T) {
	mc := NewMetricsCollector(nil, nil, time.Millisecond)
	mc.Start()
	time.Sleep(5 * time.Millisecond)
	mc.Stop()
}

func TestNoopMetricsWithoutRegistry(t *testing.T) {
	assert.Equal(t, NoopStat{}, NewCounter("x_total", "x"))
	assert.Nil(t, GetMetricsHandler())

	// Default vecs must be safe to use before InitMetrics.
	DeliveriesTotal.With("https", "delivered").Inc()
	DeliveryDurationSeconds.With("https").Observe(0.1)
}
