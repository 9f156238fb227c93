// Package aggregate merges per-page, per-state observations into one canonical
// record per distinct technology.
//
// An Aggregator is owned by a single crawl. It is not shared between scans and
// holds no package-level state, so concurrent scans never interfere.
package aggregate

import (
	"sync"

	"github.com/nao1215/consentscan/internal/model"
)

// Aggregator is an in-place upsert map of canonical records keyed by the
// observation natural key.
//
// Design decision: We keep insertion order alongside the map so that Records
// returns technologies in the order they were first seen. That keeps reports
// and oracle batches stable across identical runs.
type Aggregator struct {
	mu      sync.Mutex
	records map[model.Key]*model.CanonicalRecord
	order   []model.Key
}

// New creates an empty Aggregator.
func New() *Aggregator {
	return &Aggregator{
		records: make(map[model.Key]*model.CanonicalRecord),
	}
}

// Merge upserts every observation under state and pageURL.
//
// A key seen for the first time creates a record seeded with that
// observation's payload. Subsequent observations of the same key only union
// the state and page; the payload is never overwritten. Invalid observations
// are skipped. Merging the same (key, state, page) twice is a no-op.
func (a *Aggregator) Merge(observations []model.Observation, state model.ConsentState, pageURL string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, obs := range observations {
		if !obs.Valid() {
			continue
		}
		key := obs.Key()
		rec, ok := a.records[key]
		if !ok {
			rec = model.NewCanonicalRecord(obs)
			a.records[key] = rec
			a.order = append(a.order, key)
		}
		rec.Observe(state, pageURL)
	}
}

// Len returns the number of distinct technologies merged so far.
func (a *Aggregator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.order)
}

// Get returns a copy of the record for key.
func (a *Aggregator) Get(key model.Key) (model.CanonicalRecord, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	rec, ok := a.records[key]
	if !ok {
		return model.CanonicalRecord{}, false
	}
	return rec.Clone(), true
}

// Records returns finalized copies of every record in first-seen order.
// The returned records are detached from the aggregator.
func (a *Aggregator) Records() []model.CanonicalRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]model.CanonicalRecord, 0, len(a.order))
	for _, key := range a.order {
		out = append(out, a.records[key].Clone())
	}
	return out
}
