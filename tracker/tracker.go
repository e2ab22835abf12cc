// Package tracker owns the change ledger and the debouncer and turns host
// events into debounced webhook deliveries.
//
// All ledger access happens on a single event-loop goroutine. Adapters and
// debouncer fires post closures to it, so mutations apply in call order.
package tracker

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/jizhuozhi/go-future"
	"github.com/juju/clock"
	"github.com/maxpert/padhook/cfg"
	"github.com/maxpert/padhook/debounce"
	"github.com/maxpert/padhook/ledger"
	"github.com/maxpert/padhook/publisher"
	"github.com/maxpert/padhook/telemetry"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rs/zerolog/log"
)

const defaultQueueSize = 1024

// Deliverer hands a drained batch to the outbound sinks
type Deliverer interface {
	Deliver(batch ledger.Batch, snap *publisher.Snapshot) []*future.Future[publisher.DeliveryRecord]
}

// Options configures a Tracker
type Options struct {
	Clock     clock.Clock
	Quiet     time.Duration
	MaxWait   time.Duration
	QueueSize int
}

// Tracker is the context object shared by all event adapters
type Tracker struct {
	ledger     *ledger.Ledger
	debouncer  *debounce.Debouncer
	dispatcher Deliverer
	settings   *publisher.SettingsStore
	filter     atomic.Pointer[publisher.PadFilter]

	events    chan func()
	quit      chan struct{}
	done      chan struct{}
	startOnce sync.Once
	stopping  atomic.Bool

	docs    atomic.Int64
	records atomic.Int64

	flushSeq atomic.Uint64
	inflight *xsync.MapOf[uint64, []*future.Future[publisher.DeliveryRecord]]
}

// New creates a tracker. Call Start before posting events.
func New(dispatcher Deliverer, opts Options) *Tracker {
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}

	t := &Tracker{
		ledger:     ledger.New(),
		dispatcher: dispatcher,
		settings:   publisher.NewSettingsStore(),
		events:     make(chan func(), opts.QueueSize),
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
		inflight:   xsync.NewMapOf[uint64, []*future.Future[publisher.DeliveryRecord]](),
	}
	t.debouncer = debounce.New(opts.Clock, opts.Quiet, opts.MaxWait, func() {
		t.post(t.flush)
	})
	return t
}

// Start launches the event loop
func (t *Tracker) Start() {
	t.startOnce.Do(func() {
		go t.loop()
	})
}

func (t *Tracker) loop() {
	defer close(t.done)

	for {
		select {
		case fn := <-t.events:
			fn()
		case <-t.quit:
			for {
				select {
				case fn := <-t.events:
					fn()
				default:
					return
				}
			}
		}
	}
}

// post queues fn on the event loop. It returns false once the loop is gone.
func (t *Tracker) post(fn func()) bool {
	select {
	case <-t.quit:
		return false
	default:
	}

	select {
	case t.events <- fn:
		return true
	case <-t.done:
		return false
	}
}

// OnConfigLoad installs webhook settings. nil leaves the tracker inert.
// On error the previous settings stay in force.
func (t *Tracker) OnConfigLoad(settings *cfg.WebhookSettings) error {
	if settings == nil {
		log.Warn().Msg("Webhook configuration not found, doing nothing")
		t.settings.Store(nil)
		return nil
	}

	filter, err := publisher.NewPadFilter(settings.Pads.Include, settings.Pads.Exclude)
	if err != nil {
		return err
	}

	t.filter.Store(filter)
	t.settings.Store(settings)

	log.Info().
		Int("endpoints", len(settings.Endpoints)).
		Bool("ca_cert", settings.CACert != "").
		Bool("gzip", settings.Gzip).
		Msg("Webhook settings loaded")
	return nil
}

// SettingsLoaded reports whether webhook settings are installed
func (t *Tracker) SettingsLoaded() bool {
	return t.settings.Loaded()
}

// accept applies the not-loaded and pad filter checks shared by all adapters
func (t *Tracker) accept(kind, docID string) bool {
	telemetry.EventsTotal.With(kind).Inc()

	if !t.settings.Loaded() {
		telemetry.DroppedEventsTotal.With(DropNotLoaded).Inc()
		log.Debug().Str("kind", kind).Str("pad", docID).Msg("No webhook settings, ignoring event")
		return false
	}

	if f := t.filter.Load(); docID != "" && f != nil && !f.Match(docID) {
		telemetry.DroppedEventsTotal.With(DropFiltered).Inc()
		log.Debug().Str("kind", kind).Str("pad", docID).Msg("Pad filtered out")
		return false
	}

	return true
}

// OnUserChange records an edit and schedules a flush
func (t *Tracker) OnUserChange(ev UserChange) {
	if !t.accept(KindUserChanges, ev.DocID) {
		return
	}

	t.post(func() {
		if err := t.ledger.RecordChange(ev.DocID, ev.UserID, ev.Revision, ev.ClientIP); err != nil {
			telemetry.DroppedEventsTotal.With(DropMissingIdentity).Inc()
			log.Warn().
				Err(err).
				Str("pad", ev.DocID).
				Str("user", ev.UserID).
				Int64("revision", ev.Revision).
				Msg("Dropping change without identity")
			return
		}
		t.updateGauges()
		t.debouncer.Signal()
	})
}

// OnRevisionCommitted confirms the committed revision for the author's
// pending records and schedules a flush
func (t *Tracker) OnRevisionCommitted(ev RevisionCommit) {
	if !t.accept(KindRevision, ev.DocID) {
		return
	}

	t.post(func() {
		if n := t.ledger.ConfirmRevision(ev.DocID, ev.AuthorID, ev.Head); n > 0 {
			log.Debug().Str("pad", ev.DocID).Int64("revision", ev.Head).Int("records", n).Msg("Revision confirmed")
		}
		t.debouncer.Signal()
	})
}

// OnUserDisconnect schedules a flush so a departing user's edits are reported
func (t *Tracker) OnUserDisconnect(ev Disconnect) {
	if !t.accept(KindDisconnect, ev.DocID) {
		return
	}

	t.post(func() {
		t.debouncer.Signal()
	})
}

// Flush fires the pending burst now instead of waiting for its deadline
func (t *Tracker) Flush() {
	t.debouncer.Flush()
}

// flush drains the ledger and hands the batch to the dispatcher.
// Runs on the event loop.
func (t *Tracker) flush() {
	batch := t.ledger.Drain()
	t.updateGauges()

	if batch.Empty() {
		return
	}

	futures := t.dispatcher.Deliver(batch, t.settings.Load())
	t.track(futures)
}

// track remembers futures until they complete so Stop can wait for them
func (t *Tracker) track(futures []*future.Future[publisher.DeliveryRecord]) {
	if len(futures) == 0 {
		return
	}

	seq := t.flushSeq.Add(1)
	t.inflight.Store(seq, futures)
	go func() {
		for _, f := range futures {
			_, _ = f.Get()
		}
		t.inflight.Delete(seq)
	}()
}

func (t *Tracker) updateGauges() {
	t.docs.Store(int64(t.ledger.Docs()))
	t.records.Store(int64(t.ledger.Len()))
}

// Stats returns the pending ledger size and burst state
func (t *Tracker) Stats() Stats {
	return Stats{
		Docs:         int(t.docs.Load()),
		Records:      int(t.records.Load()),
		BurstPending: t.debouncer.Pending(),
	}
}

// PendingRecords returns the number of records waiting for a flush
func (t *Tracker) PendingRecords() int {
	return int(t.records.Load())
}

// Stop flushes any pending burst, stops the event loop and waits up to grace
// for in-flight deliveries. It returns false if deliveries were still running.
func (t *Tracker) Stop(grace time.Duration) bool {
	if !t.stopping.CompareAndSwap(false, true) {
		return true
	}

	t.Start()
	t.debouncer.Flush()
	t.debouncer.Stop()

	close(t.quit)
	<-t.done

	var pending []*future.Future[publisher.DeliveryRecord]
	t.inflight.Range(func(_ uint64, futures []*future.Future[publisher.DeliveryRecord]) bool {
		pending = append(pending, futures...)
		return true
	})

	if !publisher.AwaitAll(pending, grace) {
		log.Warn().Int("deliveries", len(pending)).Dur("grace", grace).Msg("Shutdown grace elapsed with deliveries in flight")
		return false
	}
	return true
}
