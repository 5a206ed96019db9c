// Package tracker keeps the last position each connected peer reported.
// It has no locking of its own; the coordinator's lock guards it.
package tracker

import "time"

type Record struct {
	Position   float64
	ReportedAt time.Time
}

type Tracker struct {
	records map[string]Record
}

func New() *Tracker {
	return &Tracker{records: make(map[string]Record)}
}

func (t *Tracker) Upsert(peerID string, position float64, at time.Time) {
	t.records[peerID] = Record{Position: position, ReportedAt: at}
}

func (t *Tracker) Get(peerID string) (Record, bool) {
	r, ok := t.records[peerID]
	return r, ok
}

func (t *Tracker) Remove(peerID string) {
	delete(t.records, peerID)
}

func (t *Tracker) Len() int {
	return len(t.records)
}
