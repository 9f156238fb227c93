package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ConsentState is the phase of the simulated user journey in which an
// observation was taken.
//
// PreConsent and PostRejection are both non-consented phases. PostAcceptance
// is the only phase in which non-essential technology is expected.
type ConsentState int

const (
	// StatePreConsent is the first load of the entry page, before any
	// interaction with a consent banner.
	StatePreConsent ConsentState = iota

	// StatePostRejection is observed after the "reject" affordance was activated.
	StatePostRejection

	// StatePostAcceptance is observed after the "accept" affordance was
	// activated, and on every subsequently crawled page.
	StatePostAcceptance
)

// AllStates lists every consent state in lifecycle order.
var AllStates = []ConsentState{StatePreConsent, StatePostRejection, StatePostAcceptance}

// String returns the canonical upper-case name of the state.
func (s ConsentState) String() string {
	switch s {
	case StatePreConsent:
		return "PRE_CONSENT"
	case StatePostRejection:
		return "POST_REJECTION"
	case StatePostAcceptance:
		return "POST_ACCEPTANCE"
	default:
		return "UNKNOWN"
	}
}

// Consented reports whether the state is one where non-essential technology
// is allowed to run.
func (s ConsentState) Consented() bool {
	return s == StatePostAcceptance
}

// MarshalText encodes the state as its canonical name.
func (s ConsentState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a canonical state name.
func (s *ConsentState) UnmarshalText(text []byte) error {
	state, err := ParseConsentState(string(text))
	if err != nil {
		return err
	}
	*s = state
	return nil
}

// ParseConsentState parses a state name. Matching is case-insensitive.
func ParseConsentState(name string) (ConsentState, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "PRE_CONSENT":
		return StatePreConsent, nil
	case "POST_REJECTION":
		return StatePostRejection, nil
	case "POST_ACCEPTANCE":
		return StatePostAcceptance, nil
	default:
		return 0, fmt.Errorf("unknown consent state %q", name)
	}
}

// StateSet is a set of consent states.
// The zero value is the empty set.
//
// Design decision: We use a bitmask rather than a map because there are only
// three states, the set is copied by value, and union is a single OR. That
// makes "add a state" trivially idempotent and monotonic.
type StateSet uint8

// NewStateSet returns a set containing the given states.
func NewStateSet(states ...ConsentState) StateSet {
	var set StateSet
	for _, s := range states {
		set = set.With(s)
	}
	return set
}

// With returns the union of the set and the given state.
func (s StateSet) With(state ConsentState) StateSet {
	if state < StatePreConsent || state > StatePostAcceptance {
		return s
	}
	return s | 1<<uint(state)
}

// Union returns the union of both sets.
func (s StateSet) Union(other StateSet) StateSet {
	return s | other
}

// Has reports whether the state is a member of the set.
func (s StateSet) Has(state ConsentState) bool {
	if state < StatePreConsent || state > StatePostAcceptance {
		return false
	}
	return s&(1<<uint(state)) != 0
}

// Contains reports whether every state of other is also in s.
func (s StateSet) Contains(other StateSet) bool {
	return s&other == other
}

// Empty reports whether the set has no members.
func (s StateSet) Empty() bool {
	return s == 0
}

// Len returns the number of states in the set.
func (s StateSet) Len() int {
	n := 0
	for _, state := range AllStates {
		if s.Has(state) {
			n++
		}
	}
	return n
}

// States returns the members in lifecycle order.
func (s StateSet) States() []ConsentState {
	states := make([]ConsentState, 0, 3)
	for _, state := range AllStates {
		if s.Has(state) {
			states = append(states, state)
		}
	}
	return states
}

// String returns the members joined by "|", e.g. "PRE_CONSENT|POST_REJECTION".
func (s StateSet) String() string {
	states := s.States()
	names := make([]string, len(states))
	for i, state := range states {
		names[i] = state.String()
	}
	return strings.Join(names, "|")
}

// MarshalJSON encodes the set as an array of state names.
func (s StateSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.States())
}

// UnmarshalJSON decodes an array of state names.
func (s *StateSet) UnmarshalJSON(data []byte) error {
	var states []ConsentState
	if err := json.Unmarshal(data, &states); err != nil {
		return err
	}
	*s = NewStateSet(states...)
	return nil
}
