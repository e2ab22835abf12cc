// Package ledger keeps the pending per-pad change records between flushes.
//
// A Ledger is not safe for concurrent use. It is owned by a single event loop
// (see package tracker) which serializes RecordChange, ConfirmRevision and
// Drain by call order.
package ledger

import (
	"encoding/json"
	"errors"
)

var (
	// ErrMissingDocument is returned when a change carries no pad id
	ErrMissingDocument = errors.New("change has no document id")
	// ErrMissingUser is returned when a change carries no user id
	ErrMissingUser = errors.New("change has no user id")
)

// ChangeRecord is one user's pending change on a pad.
// author is only used to match revision confirmations and is never sent.
type ChangeRecord struct {
	UserID   string `json:"userId"`
	Revision int64  `json:"revision"`
	ClientIP string `json:"clientIp"`
	author   string
}

// Ledger maps pad ids to their pending change records
type Ledger struct {
	pads    map[string][]ChangeRecord
	order   []string // pad ids in order of first change
	records int
}

// New creates an empty ledger
func New() *Ledger {
	return &Ledger{
		pads: make(map[string][]ChangeRecord),
	}
}

// RecordChange registers a change by userID on docID. An existing record for
// the same pair is evicted and a fresh one appended, so the last call wins.
func (l *Ledger) RecordChange(docID, userID string, revision int64, clientIP string) error {
	if docID == "" {
		return ErrMissingDocument
	}
	if userID == "" {
		return ErrMissingUser
	}

	records, exists := l.pads[docID]
	if !exists {
		l.order = append(l.order, docID)
	}

	for i := range records {
		if records[i].UserID == userID {
			records = append(records[:i], records[i+1:]...)
			l.records--
			break
		}
	}

	l.pads[docID] = append(records, ChangeRecord{
		UserID:   userID,
		Revision: revision,
		ClientIP: clientIP,
		author:   userID,
	})
	l.records++

	return nil
}

// ConfirmRevision moves every pending record of authorID on docID to head.
// It never creates records and returns how many were updated.
func (l *Ledger) ConfirmRevision(docID, authorID string, head int64) int {
	records := l.pads[docID]
	updated := 0
	for i := range records {
		if records[i].author == authorID {
			records[i].Revision = head
			updated++
		}
	}
	return updated
}

// Drain returns the current contents and leaves the ledger empty
func (l *Ledger) Drain() Batch {
	batch := Batch{
		Pads:  l.pads,
		order: l.order,
		count: l.records,
	}

	l.pads = make(map[string][]ChangeRecord)
	l.order = nil
	l.records = 0

	return batch
}

// Len returns the number of pending records
func (l *Ledger) Len() int {
	return l.records
}

// Docs returns the number of pads with pending records
func (l *Ledger) Docs() int {
	return len(l.pads)
}

// Records returns a copy of the pending records for docID
func (l *Ledger) Records(docID string) []ChangeRecord {
	records := l.pads[docID]
	if len(records) == 0 {
		return nil
	}
	out := make([]ChangeRecord, len(records))
	copy(out, records)
	return out
}

// Batch is a drained ledger snapshot handed to delivery
type Batch struct {
	Pads  map[string][]ChangeRecord `json:"pads"`
	order []string
	count int
}

// Empty reports whether the batch has no records
func (b Batch) Empty() bool {
	return b.count == 0
}

// Len returns the number of records in the batch
func (b Batch) Len() int {
	return b.count
}

// DocIDs returns the pad ids in order of their first change
func (b Batch) DocIDs() []string {
	out := make([]string, len(b.order))
	copy(out, b.order)
	return out
}

// Payload encodes the wire form: {"pads": {"<padId>": [{userId, revision, clientIp}]}}
func (b Batch) Payload() ([]byte, error) {
	pads := b.Pads
	if pads == nil {
		pads = map[string][]ChangeRecord{}
	}
	return json.Marshal(struct {
		Pads map[string][]ChangeRecord `json:"pads"`
	}{Pads: pads})
}
