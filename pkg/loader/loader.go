// Package loader decodes the on-chain account layouts of the BPF Loader
// Upgradeable program.
//
// Programs deployed through the upgradeable loader are split across two
// accounts: a small Program account that points at a ProgramData account,
// and the ProgramData account that holds deployment metadata followed by
// the executable image. Both layouts begin with a little-endian uint32
// state discriminator:
//
//	0 = Uninitialized
//	1 = Buffer
//	2 = Program
//	3 = ProgramData
//
// Program account layout (36 bytes):
//
//	[0:4)   state tag (2)
//	[4:36)  programdata address
//
// ProgramData account layout (45-byte header + payload):
//
//	[0:4)   state tag (3)
//	[4:12)  deployment slot, little-endian uint64
//	[12:13) upgrade authority option flag
//	[13:45) upgrade authority address
//	[45:)   executable image, zero-padded to the account's allocated size
//
// The parsers are pure functions over raw account bytes. Accounts that do
// not carry the expected tag or are too short simply fail to parse; that is
// an expected outcome ("this is not a program account"), not an error.
package loader

import (
	"encoding/binary"

	"github.com/solguard/solguard/internal/types"
)

// Upgradeable loader state discriminators.
const (
	StateUninitialized uint32 = 0
	StateBuffer        uint32 = 1
	StateProgram       uint32 = 2
	StateProgramData   uint32 = 3
)

// Layout sizes.
const (
	// ProgramAccountSize is the exact size of a Program account.
	ProgramAccountSize = 36

	// ProgramDataHeaderSize is the fixed metadata size preceding the
	// executable in a ProgramData account.
	ProgramDataHeaderSize = 45

	// minProgramDataSize is the smallest raw account that can carry a
	// ProgramData payload.
	minProgramDataSize = ProgramDataHeaderSize + 1
)

// ProgramAccount is the decoded head of a Program account.
type ProgramAccount struct {
	// State is the loader state discriminator, always StateProgram.
	State uint32

	// ProgramDataAddress points at the account holding the executable.
	ProgramDataAddress types.Pubkey
}

// ProgramDataAccount is the decoded head and payload of a ProgramData
// account.
type ProgramDataAccount struct {
	// State is the loader state discriminator, always StateProgramData.
	State uint32

	// Slot is the slot at which the executable was last deployed.
	// It changes exactly when the program is redeployed or upgraded.
	Slot uint64

	// HasAuthority indicates whether an upgrade authority is set.
	// Programs without an authority are immutable.
	HasAuthority bool

	// Authority is the upgrade authority address. Only meaningful when
	// HasAuthority is true.
	Authority types.Pubkey

	// Executable is the program image with trailing zero padding removed.
	// It may be empty.
	Executable []byte
}

// ParseProgramAccount decodes a Program account from raw account bytes.
// Returns ok=false when the bytes are too short or do not carry the
// Program state tag.
func ParseProgramAccount(raw []byte) (ProgramAccount, bool) {
	if len(raw) < ProgramAccountSize {
		return ProgramAccount{}, false
	}

	tag := binary.LittleEndian.Uint32(raw[0:4])
	if tag != StateProgram {
		return ProgramAccount{}, false
	}

	addr, err := types.PubkeyFromBytes(raw[4:36])
	if err != nil {
		return ProgramAccount{}, false
	}

	return ProgramAccount{
		State:              tag,
		ProgramDataAddress: addr,
	}, true
}

// ParseProgramDataAccount decodes a ProgramData account from raw account
// bytes. Returns ok=false when the bytes are too short or do not carry the
// ProgramData state tag.
//
// The executable is trimmed of trailing zero bytes only; interior zero runs
// are preserved. An executable that trims to zero length is still a valid
// parse.
func ParseProgramDataAccount(raw []byte) (ProgramDataAccount, bool) {
	if len(raw) < minProgramDataSize {
		return ProgramDataAccount{}, false
	}

	tag := binary.LittleEndian.Uint32(raw[0:4])
	if tag != StateProgramData {
		return ProgramDataAccount{}, false
	}

	// The slot is decoded from all 8 bytes. Real slots fit in 48 bits but
	// truncating here would silently break upgrade detection.
	slot := binary.LittleEndian.Uint64(raw[4:12])

	hasAuthority := raw[12] != 0
	var authority types.Pubkey
	if hasAuthority {
		authority, _ = types.PubkeyFromBytes(raw[13:45])
	}

	return ProgramDataAccount{
		State:        tag,
		Slot:         slot,
		HasAuthority: hasAuthority,
		Authority:    authority,
		Executable:   trimTrailingZeros(raw[ProgramDataHeaderSize:]),
	}, true
}

// trimTrailingZeros removes the zero padding at the tail of an executable
// image. Scanning stops at the first non-zero byte from the end.
func trimTrailingZeros(b []byte) []byte {
	end := len(b)
	for end > 0 && b[end-1] == 0 {
		end--
	}
	return b[:end]
}
