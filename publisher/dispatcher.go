package publisher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/jizhuozhi/go-future"
	"github.com/maxpert/padhook/ledger"
	"github.com/maxpert/padhook/telemetry"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rs/zerolog/log"
)

// cachedSink is a sink built for one settings generation
type cachedSink struct {
	generation uint64
	sink       Sink
}

// Dispatcher fans a batch out to every configured endpoint
type Dispatcher struct {
	sinks   *xsync.MapOf[string, *cachedSink]
	journal *Journal

	retiredMu sync.Mutex
	retired   []Sink
}

// NewDispatcher creates a dispatcher. journal may be nil.
func NewDispatcher(journal *Journal) *Dispatcher {
	return &Dispatcher{
		sinks:   xsync.NewMapOf[string, *cachedSink](),
		journal: journal,
	}
}

// BatchID derives a stable identifier from an encoded payload
func BatchID(payload []byte) string {
	return fmt.Sprintf("%016x", xxhash.Sum64(payload))
}

// Deliver starts one asynchronous delivery per endpoint and returns without
// waiting. Empty batches and missing settings produce no calls. The returned
// futures complete when each attempt finishes; nobody is required to wait.
func (d *Dispatcher) Deliver(batch ledger.Batch, snap *Snapshot) []*future.Future[DeliveryRecord] {
	if batch.Empty() {
		return nil
	}

	telemetry.FlushesTotal.Inc()
	telemetry.FlushRecords.Observe(float64(batch.Len()))

	if snap == nil || snap.Settings == nil || len(snap.Settings.Endpoints) == 0 {
		log.Debug().Int("records", batch.Len()).Msg("No webhook endpoints configured, dropping batch")
		return nil
	}

	payload, err := batch.Payload()
	if err != nil {
		log.Error().Err(err).Msg("Failed to encode change batch")
		return nil
	}
	batchID := BatchID(payload)

	log.Debug().
		Str("batch", batchID).
		Strs("pads", batch.DocIDs()).
		Int("records", batch.Len()).
		Int("endpoints", len(snap.Settings.Endpoints)).
		Msg("Delivering change batch")

	futures := make([]*future.Future[DeliveryRecord], 0, len(snap.Settings.Endpoints))
	for _, endpoint := range snap.Settings.Endpoints {
		p := future.NewPromise[DeliveryRecord]()
		futures = append(futures, p.Future())

		record := DeliveryRecord{
			BatchID:  batchID,
			Endpoint: RedactEndpoint(endpoint),
			Pads:     len(batch.Pads),
			Records:  batch.Len(),
		}
		go d.deliver(p, endpoint, snap, payload, record)
	}

	return futures
}

// deliver performs a single attempt. It never touches the ledger.
func (d *Dispatcher) deliver(p *future.Promise[DeliveryRecord], endpoint string, snap *Snapshot, payload []byte, record DeliveryRecord) {
	start := time.Now()
	record.AttemptedAt = start.UnixMilli()
	scheme := endpointScheme(endpoint)

	snk, err := d.sinkFor(endpoint, snap)
	if err == nil {
		err = snk.Publish(context.Background(), record.BatchID, payload)
	}

	elapsed := time.Since(start)
	record.DurationMS = elapsed.Milliseconds()
	telemetry.DeliveryDurationSeconds.With(scheme).Observe(elapsed.Seconds())

	if err != nil {
		record.Result = ResultFailed
		record.Error = err.Error()
		telemetry.DeliveriesTotal.With(scheme, ResultFailed).Inc()
		log.Error().
			Err(err).
			Str("endpoint", record.Endpoint).
			Str("batch", record.BatchID).
			Msg("Webhook delivery failed")
	} else {
		record.Result = ResultDelivered
		telemetry.DeliveriesTotal.With(scheme, ResultDelivered).Inc()
		log.Debug().
			Str("endpoint", record.Endpoint).
			Str("batch", record.BatchID).
			Dur("took", elapsed).
			Msg("Webhook delivered")
	}

	if d.journal != nil {
		if jerr := d.journal.Append(&record); jerr != nil {
			log.Warn().Err(jerr).Str("batch", record.BatchID).Msg("Failed to journal delivery")
		}
	}

	p.Set(record, err)
}

// sinkFor returns the cached sink for endpoint, rebuilding it when the
// settings generation moved forward
func (d *Dispatcher) sinkFor(endpoint string, snap *Snapshot) (Sink, error) {
	var buildErr error
	var stale Sink

	entry, ok := d.sinks.Compute(endpoint, func(old *cachedSink, loaded bool) (*cachedSink, bool) {
		if loaded && old.generation >= snap.Generation {
			return old, false
		}
		snk, err := createSink(endpoint, snap.Settings)
		if err != nil {
			buildErr = err
			return old, !loaded
		}
		if loaded {
			stale = old.sink
		}
		return &cachedSink{generation: snap.Generation, sink: snk}, false
	})

	if stale != nil {
		d.retire(stale)
	}
	if buildErr != nil {
		return nil, fmt.Errorf("failed to create sink: %w", buildErr)
	}
	if !ok || entry == nil {
		return nil, fmt.Errorf("no sink for endpoint")
	}
	return entry.sink, nil
}

// retire parks a replaced sink until Close; in-flight deliveries may still use it
func (d *Dispatcher) retire(snk Sink) {
	d.retiredMu.Lock()
	d.retired = append(d.retired, snk)
	d.retiredMu.Unlock()
}

// Close closes every sink the dispatcher created
func (d *Dispatcher) Close() error {
	var firstErr error
	closeSink := func(snk Sink) {
		if err := snk.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	d.sinks.Range(func(endpoint string, entry *cachedSink) bool {
		closeSink(entry.sink)
		return true
	})
	d.sinks.Clear()

	d.retiredMu.Lock()
	for _, snk := range d.retired {
		closeSink(snk)
	}
	d.retired = nil
	d.retiredMu.Unlock()

	return firstErr
}

// AwaitAll waits until every future completes or timeout elapses.
// It returns false on timeout.
func AwaitAll(futures []*future.Future[DeliveryRecord], timeout time.Duration) bool {
	if len(futures) == 0 {
		return true
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for _, f := range futures {
			_, _ = f.Get()
		}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}
