package history

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/solguard/solguard/internal/types"
	"github.com/solguard/solguard/pkg/reconcile"
)

func openTestLedger(t *testing.T) *Ledger {
	t.Helper()
	path := filepath.Join(t.TempDir(), "history.db")
	l, err := Open(DefaultConfig(path))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func testPubkey(seed byte) types.Pubkey {
	var pk types.Pubkey
	for i := range pk {
		pk[i] = seed
	}
	return pk
}

func testRecord(seed byte, at time.Time) *Record {
	hash := types.ComputeHash([]byte{seed})
	slot := uint64(1000) + uint64(seed)
	return &Record{
		Program:      testPubkey(seed),
		Status:       reconcile.StatusOriginal,
		Confidence:   reconcile.ConfidenceHigh,
		OnChainHash:  &hash,
		RegistryHash: &hash,
		DeploySlot:   &slot,
		Message:      "hashes match",
		VerifiedAt:   at,
	}
}

func TestAppendAndList(t *testing.T) {
	l := openTestLedger(t)
	now := time.Now().UTC().Truncate(time.Microsecond)

	rec := testRecord(1, now)
	if err := l.Append(rec); err != nil {
		t.Fatalf("Append: %v", err)
	}

	got, err := l.ListByProgram(rec.Program, 0)
	if err != nil {
		t.Fatalf("ListByProgram: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d records, want 1", len(got))
	}
	r := got[0]
	if r.Program != rec.Program || r.Status != rec.Status || r.Message != rec.Message {
		t.Error("record fields do not round trip")
	}
	if r.OnChainHash == nil || *r.OnChainHash != *rec.OnChainHash {
		t.Error("on-chain hash does not round trip")
	}
	if r.DeploySlot == nil || *r.DeploySlot != *rec.DeploySlot {
		t.Error("deploy slot does not round trip")
	}
	if !r.VerifiedAt.Equal(rec.VerifiedAt) {
		t.Errorf("verified-at = %v, want %v", r.VerifiedAt, rec.VerifiedAt)
	}

	if l.Count() != 1 {
		t.Errorf("Count = %d, want 1", l.Count())
	}
}

func TestListNewestFirst(t *testing.T) {
	l := openTestLedger(t)
	base := time.Now().UTC()
	program := testPubkey(2)

	for i := 0; i < 5; i++ {
		rec := testRecord(2, base.Add(time.Duration(i)*time.Minute))
		rec.Message = string(rune('a' + i))
		if err := l.Append(rec); err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
	}

	got, err := l.ListByProgram(program, 0)
	if err != nil {
		t.Fatalf("ListByProgram: %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("got %d records, want 5", len(got))
	}
	for i, r := range got {
		want := string(rune('a' + 4 - i))
		if r.Message != want {
			t.Errorf("record %d message = %q, want %q (newest first)", i, r.Message, want)
		}
	}
}

func TestListLimit(t *testing.T) {
	l := openTestLedger(t)
	base := time.Now().UTC()

	for i := 0; i < 10; i++ {
		if err := l.Append(testRecord(3, base.Add(time.Duration(i)*time.Second))); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	got, err := l.ListByProgram(testPubkey(3), 3)
	if err != nil {
		t.Fatalf("ListByProgram: %v", err)
	}
	if len(got) != 3 {
		t.Errorf("got %d records, want 3", len(got))
	}
}

func TestListIsolatesPrograms(t *testing.T) {
	l := openTestLedger(t)
	now := time.Now().UTC()

	if err := l.Append(testRecord(4, now)); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := l.Append(testRecord(5, now)); err != nil {
		t.Fatalf("Append: %v", err)
	}

	got, err := l.ListByProgram(testPubkey(4), 0)
	if err != nil {
		t.Fatalf("ListByProgram: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d records, want 1", len(got))
	}
	if got[0].Program != testPubkey(4) {
		t.Error("returned a record for the wrong program")
	}

	empty, err := l.ListByProgram(testPubkey(6), 0)
	if err != nil {
		t.Fatalf("ListByProgram empty: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("unknown program returned %d records", len(empty))
	}
}

func TestAdjacentProgramBoundary(t *testing.T) {
	// A program whose key is all 0xff exercises the cursor's upper-bound
	// wraparound.
	l := openTestLedger(t)
	now := time.Now().UTC()

	high := testPubkey(0xff)
	rec := testRecord(1, now)
	rec.Program = high
	if err := l.Append(rec); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := l.Append(testRecord(1, now)); err != nil {
		t.Fatalf("Append: %v", err)
	}

	got, err := l.ListByProgram(high, 0)
	if err != nil {
		t.Fatalf("ListByProgram: %v", err)
	}
	if len(got) != 1 || got[0].Program != high {
		t.Errorf("got %d records for high program, want exactly 1", len(got))
	}
}

func TestCountSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	cfg := DefaultConfig(path)

	l, err := Open(cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	now := time.Now().UTC()
	for i := 0; i < 3; i++ {
		if err := l.Append(testRecord(7, now.Add(time.Duration(i)*time.Second))); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := Open(cfg)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	if reopened.Count() != 3 {
		t.Errorf("Count after reopen = %d, want 3", reopened.Count())
	}
	got, err := reopened.ListByProgram(testPubkey(7), 0)
	if err != nil {
		t.Fatalf("ListByProgram: %v", err)
	}
	if len(got) != 3 {
		t.Errorf("got %d records after reopen, want 3", len(got))
	}
}

func TestClosedLedger(t *testing.T) {
	l := openTestLedger(t)
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if err := l.Append(testRecord(1, time.Now())); !errors.Is(err, ErrClosed) {
		t.Errorf("Append after close: err = %v, want ErrClosed", err)
	}
	if _, err := l.ListByProgram(testPubkey(1), 0); !errors.Is(err, ErrClosed) {
		t.Errorf("List after close: err = %v, want ErrClosed", err)
	}
	if err := l.Close(); !errors.Is(err, ErrClosed) {
		t.Errorf("double Close: err = %v, want ErrClosed", err)
	}
}

func TestAppendNil(t *testing.T) {
	l := openTestLedger(t)
	if err := l.Append(nil); !errors.Is(err, ErrNilRecord) {
		t.Errorf("err = %v, want ErrNilRecord", err)
	}
}
