// Package provenance orchestrates a full program verification: it reads
// the deployed executable from chain, fetches the build registry's report,
// reconciles the two against the caller's repository claim, and manages
// the cached verdict and the append-only history.
package provenance

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/solguard/solguard/internal/types"
	"github.com/solguard/solguard/pkg/chainread"
	"github.com/solguard/solguard/pkg/history"
	"github.com/solguard/solguard/pkg/loader"
	"github.com/solguard/solguard/pkg/reconcile"
	"github.com/solguard/solguard/pkg/vcache"
	"github.com/solguard/solguard/pkg/verifyapi"
)

// Request asks for one program's verification verdict.
type Request struct {
	// ProgramID is the base58 program address.
	ProgramID string

	// ProfileID identifies the requesting profile, for logging only. The
	// verdict does not depend on who asks.
	ProfileID string

	// ClaimedRepoURL is the repository the profile claims the program was
	// built from. May be empty.
	ClaimedRepoURL string

	// Force skips the cache and always re-verifies.
	Force bool
}

// Result is the verdict handed back to the caller.
type Result struct {
	// ProgramID is the verified program's base58 address.
	ProgramID string `json:"program_id"`

	// Status and Confidence are the reconciled verdict.
	Status     reconcile.MatchStatus `json:"match_status"`
	Confidence reconcile.Confidence  `json:"confidence"`

	// OnChainHash is the locally computed executable digest.
	OnChainHash *types.Hash `json:"on_chain_hash,omitempty"`

	// RegistryHash is the hash the build registry reported.
	RegistryHash *types.Hash `json:"registry_hash,omitempty"`

	// DeploySlot is the executable's deployment slot, when known.
	DeploySlot *uint64 `json:"deploy_slot,omitempty"`

	// RepoURL is the verified build's repository per the registry.
	RepoURL string `json:"repo_url,omitempty"`

	// Message explains how the verdict was reached.
	Message string `json:"message"`

	// VerifiedAt is when the verdict was produced. For a cached result
	// this is the original verification time, not the serve time.
	VerifiedAt time.Time `json:"verified_at"`

	// Cached indicates the verdict was served from the cache.
	Cached bool `json:"cached"`
}

// Config holds verifier configuration options.
type Config struct {
	// Logger receives verification progress lines. Nil disables logging.
	Logger *log.Logger

	// Now supplies the current time. Nil means time.Now.
	Now func() time.Time
}

// Verifier runs verifications. All methods are safe for concurrent use;
// requests for the same program are serialized through the cache gate.
type Verifier struct {
	chain    *chainread.Client
	registry *verifyapi.Client
	gate     *vcache.Gate
	ledger   *history.Ledger
	logger   *log.Logger
	now      func() time.Time
	closed   atomic.Bool
}

// NewVerifier wires a verifier from its four subsystems.
func NewVerifier(chain *chainread.Client, registry *verifyapi.Client, gate *vcache.Gate, ledger *history.Ledger, cfg Config) *Verifier {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Verifier{
		chain:    chain,
		registry: registry,
		gate:     gate,
		ledger:   ledger,
		logger:   cfg.Logger,
		now:      now,
	}
}

// chainObservation is what the chain leg produced for one program.
type chainObservation struct {
	// deployed is true when an executable program account exists.
	deployed bool

	// hash is the executable digest, nil when the executable could not
	// be read or decoded.
	hash *types.Hash

	// slot is the deployment slot, nil for non-upgradeable programs and
	// for not-deployed or undecodable accounts.
	slot *uint64
}

// registryReport is what the registry leg produced.
type registryReport struct {
	external *reconcile.External
	repoURL  string
	err      error
}

// Verify produces the verdict for one program.
//
// The chain leg always runs, cached entry or not: the deployment slot must
// be observed fresh on every request, because a stale slot is how a
// redeployed program would keep its old verdict. What the cache saves is
// the registry round trip and the reconciliation.
func (v *Verifier) Verify(ctx context.Context, req Request) (*Result, error) {
	if v.closed.Load() {
		return nil, ErrClosed
	}

	program, err := types.PubkeyFromBase58(req.ProgramID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidProgramID, err)
	}

	unlock := v.gate.Lock(program)
	defer unlock()

	// Peek the cache before the chain read. With no entry (or a forced
	// run) the registry call is unavoidable, so it can start now and
	// overlap the chain leg.
	entry, entryErr := v.gate.Store().Get(program)
	if entryErr != nil {
		entry = nil
	}
	eager := req.Force || entry == nil

	var registryCh chan registryReport
	if eager {
		registryCh = v.startRegistryLeg(ctx, program)
	}

	obs, chainErr := v.readChain(ctx, program)
	if chainErr != nil {
		// The chain is the source of truth for the deploy slot; without
		// it a verdict cannot be refreshed. An existing entry is the
		// best answer available, stale or not. A forced request asked
		// for a fresh verdict and gets the failure instead. The registry
		// leg, if started, finishes into its buffered channel on its own.
		if entry != nil && !req.Force {
			v.logf("program %s: chain unavailable, serving cached verdict: %v", req.ProgramID, chainErr)
			return resultFromEntry(entry), nil
		}
		return nil, fmt.Errorf("%w: %v", ErrChainUnavailable, chainErr)
	}

	if !req.Force {
		decision := v.gate.Evaluate(entry, obs.slot, v.now())
		if decision == vcache.DecisionServeCached {
			v.logf("program %s: serving cached verdict (%s/%s)", req.ProgramID, entry.Status, entry.Confidence)
			return resultFromEntry(entry), nil
		}
		v.logf("program %s: %s", req.ProgramID, decision)
	}

	if registryCh == nil {
		registryCh = v.startRegistryLeg(ctx, program)
	}
	report := <-registryCh
	if report.err != nil {
		v.logf("program %s: registry unavailable, reconciling without it: %v", req.ProgramID, report.err)
	}

	outcome := reconcile.Decide(reconcile.Input{
		Deployed:    obs.deployed,
		OnChainHash: obs.hash,
		External:    report.external,
		ClaimedRepo: req.ClaimedRepoURL,
	})

	result := &Result{
		ProgramID:   req.ProgramID,
		Status:      outcome.Status,
		Confidence:  outcome.Confidence,
		OnChainHash: obs.hash,
		DeploySlot:  obs.slot,
		RepoURL:     report.repoURL,
		Message:     outcome.Message,
		VerifiedAt:  v.now(),
	}
	if report.external != nil {
		result.RegistryHash = report.external.ReportedHash
	}

	v.persist(program, result)

	v.logf("program %s: verdict %s/%s (profile %s)", req.ProgramID, result.Status, result.Confidence, req.ProfileID)
	return result, nil
}

// Stats reports store counters for the operational surface.
type Stats struct {
	// CachedPrograms is the number of programs with a cached verdict.
	CachedPrograms uint64 `json:"cached_programs"`

	// HistoryRecords is the total number of ledger records.
	HistoryRecords uint64 `json:"history_records"`
}

// Stats returns current store counters. A cache counting failure reports
// zero rather than failing the health probe.
func (v *Verifier) Stats() Stats {
	cached, err := v.gate.Store().Count()
	if err != nil {
		cached = 0
	}
	return Stats{
		CachedPrograms: cached,
		HistoryRecords: v.ledger.Count(),
	}
}

// History returns a program's past verdicts, newest first.
func (v *Verifier) History(program types.Pubkey, limit int) ([]*history.Record, error) {
	if v.closed.Load() {
		return nil, ErrClosed
	}
	return v.ledger.ListByProgram(program, limit)
}

// Close marks the verifier closed. The underlying stores are owned by the
// caller and stay open.
func (v *Verifier) Close() error {
	if v.closed.Swap(true) {
		return ErrClosed
	}
	return nil
}

// readChain resolves a program address to its deployed executable digest
// and deployment slot.
//
// Upgradeable programs take two reads: the program account points at the
// programdata account that carries the executable. Programs owned by the
// legacy loaders carry the executable in the program account itself and
// have no recorded deployment slot.
func (v *Verifier) readChain(ctx context.Context, program types.Pubkey) (chainObservation, error) {
	account, err := v.chain.GetAccountInfo(ctx, program)
	if chainread.IsNotFound(err) {
		return chainObservation{deployed: false}, nil
	}
	if err != nil {
		return chainObservation{}, fmt.Errorf("read program account: %w", err)
	}

	if !account.Executable || !types.IsLoader(account.Owner) {
		// An account exists but is not an executable program. For the
		// verdict this is the same as no account at all.
		return chainObservation{deployed: false}, nil
	}

	if !account.Owner.Equals(types.BPFLoaderUpgradeableAddr) {
		hash := loader.ExecutableDigest(account.Data)
		return chainObservation{deployed: true, hash: &hash}, nil
	}

	pa, ok := loader.ParseProgramAccount(account.Data)
	if !ok {
		// Executable and loader-owned, but not the layout we know how
		// to decode. Deployed, hash unavailable.
		return chainObservation{deployed: true}, nil
	}

	pdAccount, err := v.chain.GetAccountInfo(ctx, pa.ProgramDataAddress)
	if chainread.IsNotFound(err) {
		// Dangling programdata pointer. The program slot is occupied
		// but nothing runs there.
		return chainObservation{deployed: true}, nil
	}
	if err != nil {
		return chainObservation{}, fmt.Errorf("read programdata account: %w", err)
	}

	pd, ok := loader.ParseProgramDataAccount(pdAccount.Data)
	if !ok {
		return chainObservation{deployed: true}, nil
	}

	hash := loader.ExecutableDigest(pd.Executable)
	slot := pd.Slot
	return chainObservation{deployed: true, hash: &hash, slot: &slot}, nil
}

// startRegistryLeg fetches the registry report in the background. The
// channel is buffered so an abandoned leg does not leak its goroutine.
func (v *Verifier) startRegistryLeg(ctx context.Context, program types.Pubkey) chan registryReport {
	ch := make(chan registryReport, 1)
	go func() {
		status, err := v.registry.Status(ctx, program)
		switch {
		case err == nil:
			ch <- registryReport{
				external: &reconcile.External{
					Verified:     status.Verified,
					ReportedHash: status.ReportedHash(),
					RepoURL:      status.RepoURL,
				},
				repoURL: status.RepoURL,
			}
		case verifyapi.IsNotIndexed(err):
			// Never seen by the registry. Absent data, not a failure.
			ch <- registryReport{}
		default:
			ch <- registryReport{err: err}
		}
	}()
	return ch
}

// persist writes the verdict to the cache and the history ledger. Both are
// best effort; a persistence failure degrades the next request to a cache
// miss but never fails this one.
func (v *Verifier) persist(program types.Pubkey, result *Result) {
	entry := &vcache.Entry{
		Program:      program,
		Status:       result.Status,
		Confidence:   result.Confidence,
		OnChainHash:  result.OnChainHash,
		RegistryHash: result.RegistryHash,
		DeploySlot:   result.DeploySlot,
		RepoURL:      result.RepoURL,
		Message:      result.Message,
		VerifiedAt:   result.VerifiedAt,
	}
	if err := v.gate.Store().Put(entry); err != nil {
		v.logf("program %s: cache write failed: %v", result.ProgramID, err)
	}

	rec := &history.Record{
		Program:      program,
		Status:       result.Status,
		Confidence:   result.Confidence,
		OnChainHash:  result.OnChainHash,
		RegistryHash: result.RegistryHash,
		DeploySlot:   result.DeploySlot,
		RepoURL:      result.RepoURL,
		Message:      result.Message,
		VerifiedAt:   result.VerifiedAt,
	}
	if err := v.ledger.Append(rec); err != nil {
		v.logf("program %s: history append failed: %v", result.ProgramID, err)
	}
}

func resultFromEntry(e *vcache.Entry) *Result {
	e = e.Clone()
	return &Result{
		ProgramID:    e.Program.String(),
		Status:       e.Status,
		Confidence:   e.Confidence,
		OnChainHash:  e.OnChainHash,
		RegistryHash: e.RegistryHash,
		DeploySlot:   e.DeploySlot,
		RepoURL:      e.RepoURL,
		Message:      e.Message,
		VerifiedAt:   e.VerifiedAt,
		Cached:       true,
	}
}

func (v *Verifier) logf(format string, args ...interface{}) {
	if v.logger != nil {
		v.logger.Printf(format, args...)
	}
}
