package reconcile

import (
	"strings"
	"testing"

	"github.com/solguard/solguard/internal/types"
)

func hashOf(s string) *types.Hash {
	h := types.ComputeHash([]byte(s))
	return &h
}

func TestNormalizeRepoURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"https://github.com/Owner/Repo", "owner/repo", true},
		{"https://github.com/owner/repo.git", "owner/repo", true},
		{"http://www.github.com/owner/repo/", "owner/repo", true},
		{"github.com/owner/repo/tree/main/programs", "owner/repo", true},
		{"owner/repo", "owner/repo", true},
		{"Owner/Repo.git", "owner/repo", true},
		{"https://gitlab.com/owner/repo", "owner/repo", true},
		{"", "", false},
		{"   ", "", false},
		{"github.com", "", false},
		{"https://github.com/owner", "", false},
		{"/", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := NormalizeRepoURL(tt.in)
			if ok != tt.ok || got != tt.want {
				t.Errorf("NormalizeRepoURL(%q) = (%q, %v), want (%q, %v)",
					tt.in, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestDecideNotDeployedTerminal(t *testing.T) {
	// Whatever the registry says, a missing program account is terminal.
	inputs := []Input{
		{Deployed: false},
		{Deployed: false, External: &External{Verified: true, ReportedHash: hashOf("x"), RepoURL: "a/b"}},
		{Deployed: false, OnChainHash: hashOf("x"), ClaimedRepo: "a/b"},
	}

	for _, in := range inputs {
		got := Decide(in)
		if got.Status != StatusNotDeployed || got.Confidence != ConfidenceNotDeployed {
			t.Errorf("Decide(%+v) = (%v, %v), want (not-deployed, not-deployed)",
				in, got.Status, got.Confidence)
		}
	}
}

func TestDecideNoRegistryRecord(t *testing.T) {
	// Scenario D: program exists, registry has nothing. A locally computed
	// hash with nothing to compare against cannot raise confidence.
	for _, local := range []*types.Hash{nil, hashOf("x")} {
		got := Decide(Input{Deployed: true, OnChainHash: local, ClaimedRepo: "a/b"})
		if got.Status != StatusUnknown || got.Confidence != ConfidenceLow {
			t.Errorf("got (%v, %v), want (unknown, low)", got.Status, got.Confidence)
		}
	}
}

func TestDecideRegistryUnverified(t *testing.T) {
	got := Decide(Input{
		Deployed:    true,
		OnChainHash: hashOf("x"),
		External:    &External{Verified: false, ReportedHash: hashOf("x"), RepoURL: "a/b"},
		ClaimedRepo: "a/b",
	})
	if got.Status != StatusUnknown || got.Confidence != ConfidenceLow {
		t.Errorf("got (%v, %v), want (unknown, low)", got.Status, got.Confidence)
	}
}

func TestDecideOriginalHigh(t *testing.T) {
	// Scenario B: repos agree, hashes agree.
	h := hashOf("bytecode")
	got := Decide(Input{
		Deployed:    true,
		OnChainHash: h,
		External:    &External{Verified: true, ReportedHash: h, RepoURL: "https://github.com/Owner/Repo"},
		ClaimedRepo: "owner/repo",
	})
	if got.Status != StatusOriginal || got.Confidence != ConfidenceHigh {
		t.Errorf("got (%v, %v), want (original, high)", got.Status, got.Confidence)
	}
}

func TestDecideForkSuspicious(t *testing.T) {
	// Scenario C: hashes agree but the verified build belongs to someone
	// else's repository.
	h := hashOf("bytecode")
	got := Decide(Input{
		Deployed:    true,
		OnChainHash: h,
		External:    &External{Verified: true, ReportedHash: h, RepoURL: "github.com/upstream/program"},
		ClaimedRepo: "github.com/copycat/program",
	})
	if got.Status != StatusFork || got.Confidence != ConfidenceSuspicious {
		t.Errorf("got (%v, %v), want (fork, suspicious)", got.Status, got.Confidence)
	}
	if !strings.Contains(got.Message, "upstream/program") {
		t.Errorf("message should name the registry repo: %q", got.Message)
	}
}

func TestDecideHashMismatchOverride(t *testing.T) {
	// Scenario E: hash disagreement overrides repo agreement, and every
	// other repository outcome too.
	repoPairs := []struct{ claimed, reported string }{
		{"owner/repo", "github.com/owner/repo"}, // equal
		{"owner/repo", "github.com/other/repo"}, // fork
		{"", "github.com/owner/repo"},           // claim absent
		{"owner/repo", ""},                      // report absent
	}

	for _, pair := range repoPairs {
		got := Decide(Input{
			Deployed:    true,
			OnChainHash: hashOf("on-chain"),
			External:    &External{Verified: true, ReportedHash: hashOf("registry"), RepoURL: pair.reported},
			ClaimedRepo: pair.claimed,
		})
		if got.Status != StatusUnknown || got.Confidence != ConfidenceSuspicious {
			t.Errorf("repos %+v: got (%v, %v), want (unknown, suspicious)",
				pair, got.Status, got.Confidence)
		}
	}
}

func TestDecideAbsentClaimTrustsRegistry(t *testing.T) {
	// A missing claim is not evidence of forgery.
	h := hashOf("bytecode")
	got := Decide(Input{
		Deployed:    true,
		OnChainHash: h,
		External:    &External{Verified: true, ReportedHash: h, RepoURL: "github.com/owner/repo"},
	})
	if got.Status != StatusOriginal || got.Confidence != ConfidenceHigh {
		t.Errorf("got (%v, %v), want (original, high)", got.Status, got.Confidence)
	}
}

func TestDecideSingleHash(t *testing.T) {
	tests := []struct {
		name     string
		local    *types.Hash
		remote   *types.Hash
		claimed  string
		reported string
		status   MatchStatus
		conf     Confidence
	}{
		{"local only, repos equal", hashOf("x"), nil, "a/b", "github.com/a/b", StatusOriginal, ConfidenceMedium},
		{"remote only, repos equal", nil, hashOf("x"), "a/b", "github.com/a/b", StatusOriginal, ConfidenceMedium},
		{"local only, repos differ", hashOf("x"), nil, "a/b", "github.com/c/d", StatusFork, ConfidenceLow},
		{"no hashes, repos equal", nil, nil, "a/b", "github.com/a/b", StatusOriginal, ConfidenceMedium},
		{"no hashes, repos differ", nil, nil, "a/b", "github.com/c/d", StatusFork, ConfidenceLow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Decide(Input{
				Deployed:    true,
				OnChainHash: tt.local,
				External:    &External{Verified: true, ReportedHash: tt.remote, RepoURL: tt.reported},
				ClaimedRepo: tt.claimed,
			})
			if got.Status != tt.status || got.Confidence != tt.conf {
				t.Errorf("got (%v, %v), want (%v, %v)",
					got.Status, got.Confidence, tt.status, tt.conf)
			}
		})
	}
}

// TestConfidenceMonotonicity checks that for a fixed match status, both
// hashes present and equal never yields lower confidence than only one
// hash present.
func TestConfidenceMonotonicity(t *testing.T) {
	rank := map[Confidence]int{
		ConfidenceLow:        0,
		ConfidenceMedium:     1,
		ConfidenceHigh:       2,
		ConfidenceSuspicious: 2, // contradiction outranks corroboration
	}

	h := hashOf("bytecode")
	repoPairs := []struct{ claimed, reported string }{
		{"a/b", "github.com/a/b"},
		{"a/b", "github.com/c/d"},
		{"", "github.com/a/b"},
	}

	for _, pair := range repoPairs {
		both := Decide(Input{
			Deployed:    true,
			OnChainHash: h,
			External:    &External{Verified: true, ReportedHash: h, RepoURL: pair.reported},
			ClaimedRepo: pair.claimed,
		})
		one := Decide(Input{
			Deployed:    true,
			OnChainHash: h,
			External:    &External{Verified: true, RepoURL: pair.reported},
			ClaimedRepo: pair.claimed,
		})

		if both.Status == one.Status && rank[both.Confidence] < rank[one.Confidence] {
			t.Errorf("repos %+v: both-hashes confidence %v below one-hash confidence %v",
				pair, both.Confidence, one.Confidence)
		}
	}
}

func TestStatusTextRoundTrip(t *testing.T) {
	for _, s := range []MatchStatus{StatusUnknown, StatusOriginal, StatusFork, StatusNotDeployed} {
		text, err := s.MarshalText()
		if err != nil {
			t.Fatalf("MarshalText(%v): %v", s, err)
		}
		var back MatchStatus
		if err := back.UnmarshalText(text); err != nil {
			t.Fatalf("UnmarshalText(%q): %v", text, err)
		}
		if back != s {
			t.Errorf("round trip %v -> %q -> %v", s, text, back)
		}
	}

	for _, c := range []Confidence{ConfidenceLow, ConfidenceMedium, ConfidenceHigh, ConfidenceSuspicious, ConfidenceNotDeployed} {
		text, err := c.MarshalText()
		if err != nil {
			t.Fatalf("MarshalText(%v): %v", c, err)
		}
		var back Confidence
		if err := back.UnmarshalText(text); err != nil {
			t.Fatalf("UnmarshalText(%q): %v", text, err)
		}
		if back != c {
			t.Errorf("round trip %v -> %q -> %v", c, text, back)
		}
	}
}
