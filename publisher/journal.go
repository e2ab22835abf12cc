package publisher

import (
	"fmt"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/pebble"
	"github.com/maxpert/padhook/encoding"
	"github.com/rs/zerolog/log"
)

// prefixDelivery keys journal entries: /delivery/{16-hex-digit-seq}
const prefixDelivery = "/delivery/"

const (
	defaultRecentLimit = 50
	trimIntervalMask   = 0x3F // Trim every 64 appends
	journalMemTable    = 4 << 20
)

// Journal is a Pebble-backed, size-bounded record of delivery attempts
type Journal struct {
	db     *pebble.DB
	path   string
	retain uint64

	nextSeq atomic.Uint64

	trimMu      sync.Mutex
	trimRunning atomic.Bool
	trimWg      sync.WaitGroup

	// mu guards db against Close while reads and writes are in flight
	mu     sync.RWMutex
	closed atomic.Bool
}

// NewJournal creates or opens the delivery journal under dataDir.
// At most retain entries are kept.
func NewJournal(dataDir string, retain int) (*Journal, error) {
	if retain < 1 {
		return nil, fmt.Errorf("journal retain must be >= 1, got %d", retain)
	}

	path := filepath.Join(dataDir, "delivery_journal")
	db, err := pebble.Open(path, &pebble.Options{
		MemTableSize: journalMemTable,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open delivery journal at %s: %w", path, err)
	}

	j := &Journal{
		db:     db,
		path:   path,
		retain: uint64(retain),
	}

	if err := j.loadNextSeq(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to load journal sequence: %w", err)
	}

	return j, nil
}

// loadNextSeq resumes numbering after the newest stored entry
func (j *Journal) loadNextSeq() error {
	prefix := []byte(prefixDelivery)
	iter, err := j.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixUpperBound(prefix),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	if !iter.Last() {
		j.nextSeq.Store(0)
		return iter.Error()
	}

	seq, err := parseDeliveryKey(iter.Key())
	if err != nil {
		return err
	}
	j.nextSeq.Store(seq)
	return nil
}

// Append stores rec, assigning its sequence number
func (j *Journal) Append(rec *DeliveryRecord) error {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed.Load() {
		return fmt.Errorf("delivery journal closed")
	}

	seq := j.nextSeq.Add(1)
	rec.Seq = seq

	val, err := encoding.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode delivery record: %w", err)
	}

	if err := j.db.Set(formatDeliveryKey(seq), val, pebble.NoSync); err != nil {
		return fmt.Errorf("failed to write delivery record: %w", err)
	}

	if seq&trimIntervalMask == 0 && j.trimRunning.CompareAndSwap(false, true) {
		j.trimWg.Add(1)
		go j.trimAsync(seq)
	}

	return nil
}

// Recent returns up to limit entries, newest first
func (j *Journal) Recent(limit int) ([]DeliveryRecord, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed.Load() {
		return nil, fmt.Errorf("delivery journal closed")
	}
	if limit <= 0 {
		limit = defaultRecentLimit
	}

	prefix := []byte(prefixDelivery)
	iter, err := j.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixUpperBound(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	records := make([]DeliveryRecord, 0, limit)
	for valid := iter.Last(); valid && len(records) < limit; valid = iter.Prev() {
		val, err := iter.ValueAndErr()
		if err != nil {
			return nil, err
		}

		var rec DeliveryRecord
		if err := encoding.Unmarshal(val, &rec); err != nil {
			return nil, fmt.Errorf("failed to decode delivery record: %w", err)
		}
		records = append(records, rec)
	}

	return records, iter.Error()
}

// trim deletes everything older than the newest retain entries
func (j *Journal) trim(head uint64) {
	j.trimMu.Lock()
	defer j.trimMu.Unlock()
	j.mu.RLock()
	defer j.mu.RUnlock()

	if j.closed.Load() || head <= j.retain {
		return
	}

	oldest := head - j.retain + 1
	if err := j.db.DeleteRange([]byte(prefixDelivery), formatDeliveryKey(oldest), pebble.NoSync); err != nil {
		log.Warn().Err(err).Uint64("oldest", oldest).Msg("Failed to trim delivery journal")
		return
	}

	log.Debug().Uint64("oldest", oldest).Msg("Trimmed delivery journal")
}

func (j *Journal) trimAsync(head uint64) {
	defer j.trimWg.Done()
	defer j.trimRunning.Store(false)
	j.trim(head)
}

// Close waits for in-flight trims and closes the Pebble database
func (j *Journal) Close() error {
	j.mu.Lock()
	if !j.closed.CompareAndSwap(false, true) {
		j.mu.Unlock()
		return fmt.Errorf("delivery journal already closed")
	}
	j.mu.Unlock()

	j.trimWg.Wait()
	return j.db.Close()
}

func formatDeliveryKey(seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%016x", prefixDelivery, seq))
}

func parseDeliveryKey(key []byte) (uint64, error) {
	if len(key) <= len(prefixDelivery) {
		return 0, fmt.Errorf("invalid delivery key %q", key)
	}
	return strconv.ParseUint(string(key[len(prefixDelivery):]), 16, 64)
}

// prefixUpperBound returns the upper bound for a prefix scan
func prefixUpperBound(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end
		}
	}
	return nil
}
