package signal

import "fmt"

// Tier grades a confluence signal by its number of confirmations.
type Tier string

const (
	TierHighest Tier = "highest"
	TierHigh    Tier = "high"
	TierMedium  Tier = "medium"
	TierLow     Tier = "low"
)

// Tiers lists every tier from strongest to weakest.
var Tiers = []Tier{TierHighest, TierHigh, TierMedium, TierLow}

// TierFor maps a confirmation count (0-4) to a tier.
func TierFor(count int) Tier {
	switch {
	case count >= 4:
		return TierHighest
	case count == 3:
		return TierHigh
	case count == 2:
		return TierMedium
	}
	return TierLow
}

// Rank orders tiers: 3 for highest down to 0 for low.
func (t Tier) Rank() int {
	switch t {
	case TierHighest:
		return 3
	case TierHigh:
		return 2
	case TierMedium:
		return 1
	}
	return 0
}

// Label is the capitalised tier name used in rationales.
func (t Tier) Label() string {
	switch t {
	case TierHighest:
		return "Highest"
	case TierHigh:
		return "High"
	case TierMedium:
		return "Medium"
	case TierLow:
		return "Low"
	}
	return string(t)
}

// ParseTier accepts a tier name.
func ParseTier(s string) (Tier, error) {
	for _, t := range Tiers {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown tier %q", s)
}
