package reconcile

import "fmt"

// MatchStatus classifies how the on-chain bytecode relates to the claimed
// source repository.
type MatchStatus int

const (
	// StatusUnknown means no verified build was available to compare
	// against, or the available signals contradicted each other.
	StatusUnknown MatchStatus = iota

	// StatusOriginal means the bytecode matches a verified build of the
	// claimed repository (or of the registry's repository when no claim
	// was comparable).
	StatusOriginal

	// StatusFork means the bytecode matches a verified build, but of a
	// different repository than the one claimed.
	StatusFork

	// StatusNotDeployed means no program account exists at the address.
	StatusNotDeployed
)

// String returns the wire representation of the status.
func (s MatchStatus) String() string {
	switch s {
	case StatusUnknown:
		return "unknown"
	case StatusOriginal:
		return "original"
	case StatusFork:
		return "fork"
	case StatusNotDeployed:
		return "not-deployed"
	default:
		return fmt.Sprintf("match-status(%d)", int(s))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s MatchStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *MatchStatus) UnmarshalText(text []byte) error {
	switch string(text) {
	case "unknown":
		*s = StatusUnknown
	case "original":
		*s = StatusOriginal
	case "fork":
		*s = StatusFork
	case "not-deployed":
		*s = StatusNotDeployed
	default:
		return fmt.Errorf("unknown match status %q", text)
	}
	return nil
}

// Confidence grades how corroborated a match status is. It is an
// independent axis from MatchStatus: it encodes how much to trust the
// verdict, not what the verdict is.
type Confidence int

const (
	// ConfidenceLow means the verdict rests on a single signal or on no
	// comparable signals at all.
	ConfidenceLow Confidence = iota

	// ConfidenceMedium means the verdict is supported by the registry but
	// only one of the two executable hashes was available to compare.
	ConfidenceMedium

	// ConfidenceHigh means both independently-sourced hashes agree and
	// the repository identity matches the claim.
	ConfidenceHigh

	// ConfidenceSuspicious means the signals actively contradict each
	// other: either the two hashes disagree, or verified bytecode is
	// being claimed under a mismatched identity.
	ConfidenceSuspicious

	// ConfidenceNotDeployed accompanies StatusNotDeployed.
	ConfidenceNotDeployed
)

// String returns the wire representation of the confidence tier.
func (c Confidence) String() string {
	switch c {
	case ConfidenceLow:
		return "low"
	case ConfidenceMedium:
		return "medium"
	case ConfidenceHigh:
		return "high"
	case ConfidenceSuspicious:
		return "suspicious"
	case ConfidenceNotDeployed:
		return "not-deployed"
	default:
		return fmt.Sprintf("confidence(%d)", int(c))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (c Confidence) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Confidence) UnmarshalText(text []byte) error {
	switch string(text) {
	case "low":
		*c = ConfidenceLow
	case "medium":
		*c = ConfidenceMedium
	case "high":
		*c = ConfidenceHigh
	case "suspicious":
		*c = ConfidenceSuspicious
	case "not-deployed":
		*c = ConfidenceNotDeployed
	default:
		return fmt.Errorf("unknown confidence %q", text)
	}
	return nil
}
