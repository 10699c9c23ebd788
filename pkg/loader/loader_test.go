package loader

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/solguard/solguard/internal/types"
)

// buildProgramAccount constructs raw Program account bytes.
func buildProgramAccount(tag uint32, programData types.Pubkey) []byte {
	raw := make([]byte, ProgramAccountSize)
	binary.LittleEndian.PutUint32(raw[0:4], tag)
	copy(raw[4:36], programData.Bytes())
	return raw
}

// buildProgramDataAccount constructs raw ProgramData account bytes with the
// given payload appended to a well-formed header.
func buildProgramDataAccount(tag uint32, slot uint64, authority *types.Pubkey, payload []byte) []byte {
	raw := make([]byte, ProgramDataHeaderSize, ProgramDataHeaderSize+len(payload))
	binary.LittleEndian.PutUint32(raw[0:4], tag)
	binary.LittleEndian.PutUint64(raw[4:12], slot)
	if authority != nil {
		raw[12] = 1
		copy(raw[13:45], authority.Bytes())
	}
	return append(raw, payload...)
}

func TestParseProgramAccount(t *testing.T) {
	target := types.MustPubkeyFromBase58("BPFLoaderUpgradeab1e11111111111111111111111")

	acc, ok := ParseProgramAccount(buildProgramAccount(StateProgram, target))
	if !ok {
		t.Fatal("expected successful parse")
	}
	if acc.State != StateProgram {
		t.Errorf("State = %d, want %d", acc.State, StateProgram)
	}
	if !acc.ProgramDataAddress.Equals(target) {
		t.Errorf("ProgramDataAddress = %s, want %s", acc.ProgramDataAddress, target)
	}
}

func TestParseProgramAccountRejects(t *testing.T) {
	target := types.MustPubkeyFromBase58("BPFLoaderUpgradeab1e11111111111111111111111")

	tests := []struct {
		name string
		raw  []byte
	}{
		{"nil", nil},
		{"empty", []byte{}},
		{"too short", buildProgramAccount(StateProgram, target)[:35]},
		{"uninitialized tag", buildProgramAccount(StateUninitialized, target)},
		{"buffer tag", buildProgramAccount(StateBuffer, target)},
		{"programdata tag", buildProgramAccount(StateProgramData, target)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, ok := ParseProgramAccount(tt.raw); ok {
				t.Error("expected parse failure")
			}
		})
	}
}

func TestParseProgramDataAccount(t *testing.T) {
	auth := types.MustPubkeyFromBase58("So11111111111111111111111111111111111111112")
	payload := []byte{0x7f, 0x45, 0x4c, 0x46, 0x00, 0x00, 0x01}

	acc, ok := ParseProgramDataAccount(buildProgramDataAccount(StateProgramData, 123456789, &auth, payload))
	if !ok {
		t.Fatal("expected successful parse")
	}
	if acc.Slot != 123456789 {
		t.Errorf("Slot = %d, want 123456789", acc.Slot)
	}
	if !acc.HasAuthority {
		t.Error("expected HasAuthority")
	}
	if !acc.Authority.Equals(auth) {
		t.Errorf("Authority = %s, want %s", acc.Authority, auth)
	}

	// Trailing zeros trimmed, interior zeros kept.
	want := []byte{0x7f, 0x45, 0x4c, 0x46, 0x00, 0x00, 0x01}
	if !bytes.Equal(acc.Executable, want) {
		t.Errorf("Executable = %x, want %x", acc.Executable, want)
	}
}

func TestParseProgramDataAccountTrimsPadding(t *testing.T) {
	payload := append([]byte{0x7f, 0x45, 0x00, 0x4c}, make([]byte, 1024)...)

	acc, ok := ParseProgramDataAccount(buildProgramDataAccount(StateProgramData, 1, nil, payload))
	if !ok {
		t.Fatal("expected successful parse")
	}
	want := []byte{0x7f, 0x45, 0x00, 0x4c}
	if !bytes.Equal(acc.Executable, want) {
		t.Errorf("Executable = %x, want %x", acc.Executable, want)
	}
	if acc.HasAuthority {
		t.Error("expected no authority")
	}
}

func TestParseProgramDataAccountEmptyExecutable(t *testing.T) {
	// An all-zero payload trims to an empty executable; that is a valid
	// parse, and the empty image still has a digest.
	acc, ok := ParseProgramDataAccount(buildProgramDataAccount(StateProgramData, 42, nil, make([]byte, 64)))
	if !ok {
		t.Fatal("expected successful parse")
	}
	if len(acc.Executable) != 0 {
		t.Errorf("expected empty executable, got %d bytes", len(acc.Executable))
	}
	if ExecutableDigest(acc.Executable).IsZero() {
		t.Error("digest of empty executable should not be the zero hash")
	}
}

func TestParseProgramDataAccountRejects(t *testing.T) {
	ok45 := buildProgramDataAccount(StateProgramData, 1, nil, []byte{1})

	tests := []struct {
		name string
		raw  []byte
	}{
		{"nil", nil},
		{"header only", ok45[:ProgramDataHeaderSize]},
		{"program tag", buildProgramDataAccount(StateProgram, 1, nil, []byte{1})},
		{"buffer tag", buildProgramDataAccount(StateBuffer, 1, nil, []byte{1})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, ok := ParseProgramDataAccount(tt.raw); ok {
				t.Error("expected parse failure")
			}
		})
	}
}

func TestParseProgramDataAccountFullWidthSlot(t *testing.T) {
	// All 8 slot bytes must be decoded, not just the low 32 bits.
	slot := uint64(0x0000_7fff_ffff_ffff)
	acc, ok := ParseProgramDataAccount(buildProgramDataAccount(StateProgramData, slot, nil, []byte{1}))
	if !ok {
		t.Fatal("expected successful parse")
	}
	if acc.Slot != slot {
		t.Errorf("Slot = %d, want %d", acc.Slot, slot)
	}
}

func TestExecutableDigestPaddingSensitive(t *testing.T) {
	image := []byte{0x7f, 0x45, 0x4c, 0x46}
	padded := append(append([]byte{}, image...), make([]byte, 512)...)

	// The digest itself is padding sensitive; equality only holds because
	// the parser trims before hashing.
	if ExecutableDigest(image).Equals(ExecutableDigest(padded)) {
		t.Fatal("digest should differ between trimmed and padded images")
	}

	acc, ok := ParseProgramDataAccount(buildProgramDataAccount(StateProgramData, 1, nil, padded))
	if !ok {
		t.Fatal("expected successful parse")
	}
	if !ExecutableDigest(acc.Executable).Equals(ExecutableDigest(image)) {
		t.Error("parser trim must be applied before hashing")
	}
}

func TestExecutableDigestDeterministic(t *testing.T) {
	image := []byte("deterministic bytecode image")
	if !ExecutableDigest(image).Equals(ExecutableDigest(image)) {
		t.Error("digest is not deterministic")
	}
}
