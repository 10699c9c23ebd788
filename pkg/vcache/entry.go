package vcache

import (
	"encoding/binary"
	"time"

	"github.com/zeebo/blake3"

	"github.com/solguard/solguard/internal/types"
	"github.com/solguard/solguard/pkg/reconcile"
)

// entryVersion is the serialization format version.
const entryVersion = 1

// checksumSize is the BLAKE3 checksum appended to every serialized entry.
const checksumSize = 32

// Entry is the cached outcome of the last verification of one program.
// Entries are overwritten in place on every re-verification; the previous
// row is implicitly the history, and the history package keeps it.
type Entry struct {
	// Program is the verified program's address.
	Program types.Pubkey

	// Status and Confidence are the reconciled verdict.
	Status     reconcile.MatchStatus
	Confidence reconcile.Confidence

	// OnChainHash is the locally computed executable digest, nil when the
	// chain read or parse failed.
	OnChainHash *types.Hash

	// RegistryHash is the hash the build registry reported, nil when the
	// registry had none.
	RegistryHash *types.Hash

	// DeploySlot is the executable's deployment slot at verification
	// time. A later observation of a different slot voids this entry.
	DeploySlot *uint64

	// RepoURL is the verified build's repository per the registry, empty
	// when the registry reported none.
	RepoURL string

	// Message is the human-readable justification.
	Message string

	// VerifiedAt is when the verdict was produced.
	VerifiedAt time.Time
}

// Clone returns a deep copy of the entry.
func (e *Entry) Clone() *Entry {
	if e == nil {
		return nil
	}
	out := *e
	if e.OnChainHash != nil {
		h := *e.OnChainHash
		out.OnChainHash = &h
	}
	if e.RegistryHash != nil {
		h := *e.RegistryHash
		out.RegistryHash = &h
	}
	if e.DeploySlot != nil {
		s := *e.DeploySlot
		out.DeploySlot = &s
	}
	return &out
}

// Entry flag bits.
const (
	flagOnChainHash  = 1 << 0
	flagRegistryHash = 1 << 1
	flagDeploySlot   = 1 << 2
)

// Serialize encodes the entry into a compact binary form with a trailing
// BLAKE3 checksum. The checksum lets a read distinguish a corrupt row from
// a genuine verdict; trust decisions must never be made from bytes that
// fail it.
func (e *Entry) Serialize() []byte {
	size := 1 + 1 + 1 + 1 + types.PubkeySize + 8 + 2 + len(e.RepoURL) + 2 + len(e.Message)
	if e.OnChainHash != nil {
		size += types.HashSize
	}
	if e.RegistryHash != nil {
		size += types.HashSize
	}
	if e.DeploySlot != nil {
		size += 8
	}

	buf := make([]byte, 0, size+checksumSize)
	buf = append(buf, entryVersion)
	buf = append(buf, byte(e.Status), byte(e.Confidence))

	var flags byte
	if e.OnChainHash != nil {
		flags |= flagOnChainHash
	}
	if e.RegistryHash != nil {
		flags |= flagRegistryHash
	}
	if e.DeploySlot != nil {
		flags |= flagDeploySlot
	}
	buf = append(buf, flags)

	buf = append(buf, e.Program.Bytes()...)

	if e.OnChainHash != nil {
		buf = append(buf, e.OnChainHash.Bytes()...)
	}
	if e.RegistryHash != nil {
		buf = append(buf, e.RegistryHash.Bytes()...)
	}
	if e.DeploySlot != nil {
		buf = binary.LittleEndian.AppendUint64(buf, *e.DeploySlot)
	}

	buf = binary.LittleEndian.AppendUint64(buf, uint64(e.VerifiedAt.UnixNano()))

	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(e.RepoURL)))
	buf = append(buf, e.RepoURL...)

	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(e.Message)))
	buf = append(buf, e.Message...)

	sum := blake3.Sum256(buf)
	return append(buf, sum[:]...)
}

// DeserializeEntry decodes a serialized entry, verifying its checksum.
// Returns ErrCorrupted for any malformed or tampered row.
func DeserializeEntry(data []byte) (*Entry, error) {
	if len(data) < checksumSize+4 {
		return nil, ErrCorrupted
	}

	payload, sum := data[:len(data)-checksumSize], data[len(data)-checksumSize:]
	want := blake3.Sum256(payload)
	if string(sum) != string(want[:]) {
		return nil, ErrCorrupted
	}

	if payload[0] != entryVersion {
		return nil, ErrCorrupted
	}

	e := &Entry{
		Status:     reconcile.MatchStatus(payload[1]),
		Confidence: reconcile.Confidence(payload[2]),
	}
	flags := payload[3]
	off := 4

	take := func(n int) ([]byte, bool) {
		if off+n > len(payload) {
			return nil, false
		}
		b := payload[off : off+n]
		off += n
		return b, true
	}

	b, ok := take(types.PubkeySize)
	if !ok {
		return nil, ErrCorrupted
	}
	copy(e.Program[:], b)

	if flags&flagOnChainHash != 0 {
		b, ok := take(types.HashSize)
		if !ok {
			return nil, ErrCorrupted
		}
		var h types.Hash
		copy(h[:], b)
		e.OnChainHash = &h
	}
	if flags&flagRegistryHash != 0 {
		b, ok := take(types.HashSize)
		if !ok {
			return nil, ErrCorrupted
		}
		var h types.Hash
		copy(h[:], b)
		e.RegistryHash = &h
	}
	if flags&flagDeploySlot != 0 {
		b, ok := take(8)
		if !ok {
			return nil, ErrCorrupted
		}
		slot := binary.LittleEndian.Uint64(b)
		e.DeploySlot = &slot
	}

	b, ok = take(8)
	if !ok {
		return nil, ErrCorrupted
	}
	e.VerifiedAt = time.Unix(0, int64(binary.LittleEndian.Uint64(b)))

	b, ok = take(2)
	if !ok {
		return nil, ErrCorrupted
	}
	repoLen := int(binary.LittleEndian.Uint16(b))

	b, ok = take(repoLen)
	if !ok {
		return nil, ErrCorrupted
	}
	e.RepoURL = string(b)

	b, ok = take(2)
	if !ok {
		return nil, ErrCorrupted
	}
	msgLen := int(binary.LittleEndian.Uint16(b))

	b, ok = take(msgLen)
	if !ok || off != len(payload) {
		return nil, ErrCorrupted
	}
	e.Message = string(b)

	return e, nil
}
