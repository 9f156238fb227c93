package model

import (
	"encoding/json"
	"testing"
)

func TestStateSet(t *testing.T) {
	t.Parallel()

	t.Run("zero value is empty", func(t *testing.T) {
		t.Parallel()
		var s StateSet
		if !s.Empty() || s.Len() != 0 {
			t.Errorf("zero set: Empty=%v Len=%d", s.Empty(), s.Len())
		}
	})

	t.Run("With is idempotent", func(t *testing.T) {
		t.Parallel()
		s := NewStateSet(StatePreConsent)
		if s.With(StatePreConsent) != s {
			t.Error("adding an existing state changed the set")
		}
	})

	t.Run("With ignores out-of-range states", func(t *testing.T) {
		t.Parallel()
		s := NewStateSet(StatePreConsent)
		if s.With(ConsentState(7)) != s {
			t.Error("invalid state was added")
		}
		if s.Has(ConsentState(-1)) {
			t.Error("Has(-1) returned true")
		}
	})

	t.Run("States are in lifecycle order", func(t *testing.T) {
		t.Parallel()
		s := NewStateSet(StatePostAcceptance, StatePreConsent)
		if got := s.String(); got != "PRE_CONSENT|POST_ACCEPTANCE" {
			t.Errorf("String() = %q", got)
		}
	})

	t.Run("Contains and Union", func(t *testing.T) {
		t.Parallel()
		a := NewStateSet(StatePreConsent)
		b := NewStateSet(StatePostRejection)
		u := a.Union(b)
		if !u.Contains(a) || !u.Contains(b) {
			t.Errorf("%v does not contain both operands", u)
		}
		if a.Contains(u) {
			t.Errorf("%v should not contain %v", a, u)
		}
	})
}

func TestStateSetJSON(t *testing.T) {
	t.Parallel()

	s := NewStateSet(StatePreConsent, StatePostRejection)
	data, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(data) != `["PRE_CONSENT","POST_REJECTION"]` {
		t.Errorf("Marshal = %s", data)
	}

	var decoded StateSet
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded != s {
		t.Errorf("decoded = %v, expected %v", decoded, s)
	}

	if err := json.Unmarshal([]byte(`["LATER"]`), &decoded); err == nil {
		t.Error("expected error for unknown state name")
	}
}

func TestParseCategory(t *testing.T) {
	t.Parallel()

	tests := []struct {
		label string
		want  Category
	}{
		{"NECESSARY", CategoryNecessary},
		{"  essential ", CategoryNecessary},
		{"Strictly Necessary", CategoryNecessary},
		{"preferences", CategoryFunctional},
		{"Statistics", CategoryAnalytics},
		{"advertising", CategoryMarketing},
		{"", CategoryUnknown},
		{"social", CategoryUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			t.Parallel()
			if got := ParseCategory(tt.label); got != tt.want {
				t.Errorf("ParseCategory(%q) = %v, expected %v", tt.label, got, tt.want)
			}
		})
	}
}

func TestComplianceStatusIsViolation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status ComplianceStatus
		want   bool
	}{
		{StatusCompliant, false},
		{StatusUnknown, false},
		{StatusPreConsentViolation, true},
		{StatusPostRejectionViolation, true},
	}
	for _, tt := range tests {
		t.Run(tt.status.String(), func(t *testing.T) {
			t.Parallel()
			if got := tt.status.IsViolation(); got != tt.want {
				t.Errorf("IsViolation() = %v, expected %v", got, tt.want)
			}
		})
	}
}
