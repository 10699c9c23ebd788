package vcache

import (
	"sync"
	"time"

	"github.com/solguard/solguard/internal/types"
)

// DefaultFreshnessWindow is how long a cached verdict may be served
// without re-verification. A design parameter, not a correctness
// invariant; the upgrade check below is the correctness invariant.
const DefaultFreshnessWindow = 24 * time.Hour

// Decision says what to do with a verification request given the cache.
type Decision int

const (
	// DecisionVerify means no usable entry exists; run a full
	// verification.
	DecisionVerify Decision = iota

	// DecisionServeCached means the entry is fresh and the deploy slot
	// is unchanged; serve it.
	DecisionServeCached

	// DecisionReverifyUpgraded means the observed deploy slot differs
	// from the cached one. The executable was redeployed and the cached
	// verdict is void regardless of freshness.
	DecisionReverifyUpgraded

	// DecisionReverifyStale means the entry aged past the freshness
	// window.
	DecisionReverifyStale
)

// String returns a short name for the decision.
func (d Decision) String() string {
	switch d {
	case DecisionVerify:
		return "verify"
	case DecisionServeCached:
		return "serve-cached"
	case DecisionReverifyUpgraded:
		return "reverify-upgraded"
	case DecisionReverifyStale:
		return "reverify-stale"
	default:
		return "unknown"
	}
}

// Gate wraps the store with the freshness/upgrade state machine and
// per-program serialization.
type Gate struct {
	store  *Store
	window time.Duration

	// locks serializes verifications of the same program so concurrent
	// requests cannot interleave the slot comparison with the cache
	// write. Requests for different programs never contend.
	mu    sync.Mutex
	locks map[types.Pubkey]*programLock
}

// programLock is a refcounted mutex for one program.
type programLock struct {
	mu   sync.Mutex
	refs int
}

// NewGate creates a gate over the store. A zero window means
// DefaultFreshnessWindow.
func NewGate(store *Store, window time.Duration) *Gate {
	if window == 0 {
		window = DefaultFreshnessWindow
	}
	return &Gate{
		store:  store,
		window: window,
		locks:  make(map[types.Pubkey]*programLock),
	}
}

// Store returns the underlying store.
func (g *Gate) Store() *Store {
	return g.store
}

// Window returns the freshness window.
func (g *Gate) Window() time.Duration {
	return g.window
}

// Lock acquires the per-program lock and returns its release function.
// Lock entries are dropped once unused, so the map does not grow with
// the set of programs ever verified.
func (g *Gate) Lock(program types.Pubkey) func() {
	g.mu.Lock()
	l, ok := g.locks[program]
	if !ok {
		l = &programLock{}
		g.locks[program] = l
	}
	l.refs++
	g.mu.Unlock()

	l.mu.Lock()

	return func() {
		l.mu.Unlock()

		g.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(g.locks, program)
		}
		g.mu.Unlock()
	}
}

// Evaluate decides whether a cached entry may be served, given the deploy
// slot observed on-chain right now.
//
// The slot comparison runs before the freshness check. Checking freshness
// first would let a redeployed program keep its old verdict for up to the
// window, which is exactly the badge a malicious upgrade wants.
func (g *Gate) Evaluate(entry *Entry, observedSlot *uint64, now time.Time) Decision {
	if entry == nil {
		return DecisionVerify
	}

	if slotChanged(entry.DeploySlot, observedSlot) {
		return DecisionReverifyUpgraded
	}

	if now.Sub(entry.VerifiedAt) > g.window {
		return DecisionReverifyStale
	}

	return DecisionServeCached
}

// Check loads the program's entry and evaluates it in one step. A missing
// or corrupt row evaluates as DecisionVerify.
func (g *Gate) Check(program types.Pubkey, observedSlot *uint64, now time.Time) (*Entry, Decision) {
	entry, err := g.store.Get(program)
	if err != nil {
		return nil, DecisionVerify
	}
	return entry, g.Evaluate(entry, observedSlot, now)
}

// slotChanged reports whether the deployment slot moved between the cached
// and observed values. A slot appearing or disappearing also counts: both
// mean the program's deployment state is not what it was.
func slotChanged(cached, observed *uint64) bool {
	switch {
	case cached == nil && observed == nil:
		return false
	case cached == nil || observed == nil:
		return true
	default:
		return *cached != *observed
	}
}
