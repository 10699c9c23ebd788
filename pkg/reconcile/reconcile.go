// Package reconcile combines independently-sourced claims about a deployed
// program into a single verdict with an explicit trust level.
//
// Three signals feed the decision: the executable hash computed locally
// from on-chain account data, the hash and repository reported by an
// external reproducible-build registry, and the repository the program's
// owner claims to have deployed from. Any of these can be missing, and the
// two hashes can disagree. The decision table is arranged so that missing
// or conflicting data can only ever lower confidence, never raise it:
// silence is "unknown", disagreement is "suspicious", and the two are
// never conflated.
package reconcile

import (
	"fmt"

	"github.com/solguard/solguard/internal/types"
)

// External carries the registry's report for a program.
type External struct {
	// Verified indicates the registry holds a successful reproducible
	// build for the program.
	Verified bool

	// ReportedHash is the executable hash the registry observed on-chain,
	// nil when the registry did not report one.
	ReportedHash *types.Hash

	// RepoURL is the source repository the verified build came from.
	RepoURL string
}

// Input is the full signal set for one program.
type Input struct {
	// Deployed is false when no program account exists at the address.
	Deployed bool

	// OnChainHash is the locally computed executable digest, nil when the
	// chain read or parse failed.
	OnChainHash *types.Hash

	// External is the registry report, nil when the registry was
	// unavailable or has never seen the program.
	External *External

	// ClaimedRepo is the user-asserted source repository, may be empty.
	ClaimedRepo string
}

// Outcome is the reconciled verdict.
type Outcome struct {
	Status     MatchStatus
	Confidence Confidence

	// Message explains which signals were available and how they
	// compared. It is for humans; nothing parses it.
	Message string
}

// Decide runs the reconciliation decision table over the input.
//
// The ordering is load-bearing: the not-deployed check is terminal, the
// repository comparison establishes a provisional status, and the hash
// comparison refines confidence and can override the status outright when
// the two hashes disagree. A disagreement between the locally computed
// and registry-reported hashes means the two sources of truth do not
// agree on what is on-chain, and no repository-level agreement can rescue
// that.
func Decide(in Input) Outcome {
	if !in.Deployed {
		return Outcome{
			Status:     StatusNotDeployed,
			Confidence: ConfidenceNotDeployed,
			Message:    "no program account exists at this address",
		}
	}

	if in.External == nil {
		return Outcome{
			Status:     StatusUnknown,
			Confidence: ConfidenceLow,
			Message:    "build registry has no record for this program; bytecode identity cannot be corroborated",
		}
	}
	if !in.External.Verified {
		return Outcome{
			Status:     StatusUnknown,
			Confidence: ConfidenceLow,
			Message:    "build registry reports the program as unverified; bytecode identity cannot be corroborated",
		}
	}

	// Registry holds a verified build. Establish the provisional status
	// from repository identity.
	claimed, claimedOK := NormalizeRepoURL(in.ClaimedRepo)
	reported, reportedOK := NormalizeRepoURL(in.External.RepoURL)

	status := StatusOriginal
	var repoNote string
	switch {
	case !claimedOK || !reportedOK:
		// An absent or unparseable claim is not evidence of forgery;
		// fall back to trusting the registry's repository.
		repoNote = "repository identity not comparable, trusting registry build"
	case claimed == reported:
		repoNote = fmt.Sprintf("repository matches claim (%s)", claimed)
	default:
		status = StatusFork
		repoNote = fmt.Sprintf("verified build belongs to %s, not the claimed %s", reported, claimed)
	}

	// Refine confidence from the hash comparison.
	local := in.OnChainHash
	remote := in.External.ReportedHash

	switch {
	case local != nil && remote != nil && local.Equals(*remote):
		if status == StatusOriginal {
			return Outcome{
				Status:     StatusOriginal,
				Confidence: ConfidenceHigh,
				Message:    "on-chain hash matches registry hash; " + repoNote,
			}
		}
		// Bytecode is genuinely verified somewhere, but claimed under a
		// mismatched identity. Active impersonation signal.
		return Outcome{
			Status:     status,
			Confidence: ConfidenceSuspicious,
			Message:    "on-chain hash matches registry hash but " + repoNote,
		}

	case local != nil && remote != nil:
		// Hard anomaly: the two sources of truth disagree about what is
		// on-chain. Never report original when hashes disagree.
		return Outcome{
			Status:     StatusUnknown,
			Confidence: ConfidenceSuspicious,
			Message: fmt.Sprintf(
				"on-chain hash %s disagrees with registry hash %s; %s",
				local, remote, repoNote),
		}

	default:
		// At most one hash available; nothing to cross-check.
		var missing string
		switch {
		case local == nil && remote == nil:
			missing = "neither hash available for comparison"
		case local == nil:
			missing = "on-chain hash unavailable"
		default:
			missing = "registry reported no hash"
		}

		if status == StatusOriginal {
			return Outcome{
				Status:     StatusOriginal,
				Confidence: ConfidenceMedium,
				Message:    missing + "; " + repoNote,
			}
		}
		return Outcome{
			Status:     status,
			Confidence: ConfidenceLow,
			Message:    missing + "; " + repoNote,
		}
	}
}
