package model

import "sort"

// CanonicalRecord is the merged identity of one distinct technology across a
// whole crawl.
//
// Invariants:
//   - Observation is the payload of the first observation merged for Key and
//     is never overwritten afterwards.
//   - States and Pages only grow.
type CanonicalRecord struct {
	Key         Key                 `json:"key"`
	Observation Observation         `json:"observation"`
	States      StateSet            `json:"states_observed"`
	Pages       map[string]struct{} `json:"-"`
}

// NewCanonicalRecord seeds a record from its first observation.
func NewCanonicalRecord(obs Observation) *CanonicalRecord {
	return &CanonicalRecord{
		Key:         obs.Key(),
		Observation: obs,
		Pages:       make(map[string]struct{}),
	}
}

// Observe unions a state and a page into the record.
// Repeating the same (state, page) pair leaves the record unchanged.
func (r *CanonicalRecord) Observe(state ConsentState, pageURL string) {
	r.States = r.States.With(state)
	if pageURL == "" {
		return
	}
	if r.Pages == nil {
		r.Pages = make(map[string]struct{})
	}
	r.Pages[pageURL] = struct{}{}
}

// PageList returns the pages the technology was found on, sorted.
func (r *CanonicalRecord) PageList() []string {
	pages := make([]string, 0, len(r.Pages))
	for p := range r.Pages {
		pages = append(pages, p)
	}
	sort.Strings(pages)
	return pages
}

// Clone returns a deep copy so finalized records cannot be mutated through
// the aggregator's map.
func (r *CanonicalRecord) Clone() CanonicalRecord {
	pages := make(map[string]struct{}, len(r.Pages))
	for p := range r.Pages {
		pages[p] = struct{}{}
	}
	obs := r.Observation
	switch {
	case obs.Cookie != nil:
		c := *obs.Cookie
		obs.Cookie = &c
	case obs.Request != nil:
		req := *obs.Request
		obs.Request = &req
	case obs.Storage != nil:
		s := *obs.Storage
		obs.Storage = &s
	}
	return CanonicalRecord{
		Key:         r.Key,
		Observation: obs,
		States:      r.States,
		Pages:       pages,
	}
}

// ClassifiedRecord is a canonical record with the classifier's output.
type ClassifiedRecord struct {
	CanonicalRecord

	Category Category `json:"category"`
	Purpose  string   `json:"purpose"`
}

// VerdictRecord is a classified record with its final compliance verdict.
// This is the terminal shape handed to the result assembler.
type VerdictRecord struct {
	ClassifiedRecord

	Status      ComplianceStatus `json:"compliance_status"`
	Remediation string           `json:"remediation"`
}
