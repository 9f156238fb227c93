package config

import (
	"fmt"
	"strings"
)

// Tier is a named page budget.
type Tier string

// Depth tiers.
const (
	// TierQuick scans the entry page only.
	TierQuick Tier = "quick"

	// TierStandard scans up to 10 pages.
	TierStandard Tier = "standard"

	// TierDeep scans up to 50 pages.
	TierDeep Tier = "deep"

	// TierFull scans up to 100 pages.
	TierFull Tier = "full"
)

var tierPages = map[Tier]int{
	TierQuick:    1,
	TierStandard: 10,
	TierDeep:     50,
	TierFull:     100,
}

// Tiers lists the tiers from smallest to largest.
func Tiers() []Tier {
	return []Tier{TierQuick, TierStandard, TierDeep, TierFull}
}

// ParseTier parses a tier name case-insensitively.
func ParseTier(s string) (Tier, error) {
	t := Tier(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := tierPages[t]; !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidTier, s)
	}
	return t, nil
}

// Pages returns the page budget of t.
func (t Tier) Pages() (int, error) {
	n, ok := tierPages[Tier(strings.ToLower(string(t)))]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTier, string(t))
	}
	return n, nil
}
