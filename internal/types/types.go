// Package types defines the core cryptographic types used by solguard.
//
// These types follow Solana conventions: public keys are 32-byte Ed25519
// points rendered as base58 text, hashes are 32-byte SHA256 digests rendered
// as hex for storage and comparison.
package types

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
)

// Size constants for core types.
const (
	PubkeySize = 32
	HashSize   = 32

	// MinAddressLen and MaxAddressLen bound the base58 text form of a
	// 32-byte public key. 32 characters corresponds to a key that is
	// mostly zero bytes; 44 is the longest possible encoding.
	MinAddressLen = 32
	MaxAddressLen = 44
)

var (
	// ErrInvalidPubkey is returned when a pubkey has invalid length.
	ErrInvalidPubkey = errors.New("invalid pubkey: must be 32 bytes")

	// ErrInvalidAddress is returned when an address string is malformed.
	ErrInvalidAddress = errors.New("invalid address: must be 32-44 base58 characters")

	// ErrInvalidHash is returned when a hash has invalid length.
	ErrInvalidHash = errors.New("invalid hash: must be 32 bytes")
)

// Pubkey represents a 32-byte Ed25519 public key.
type Pubkey [PubkeySize]byte

// PubkeyFromBase58 parses a base58-encoded public key.
// The string must be 32-44 characters from the base58 alphabet and must
// decode to exactly 32 bytes.
func PubkeyFromBase58(s string) (Pubkey, error) {
	var p Pubkey
	if len(s) < MinAddressLen || len(s) > MaxAddressLen {
		return p, ErrInvalidAddress
	}
	data, err := base58.Decode(s)
	if err != nil {
		return p, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	if len(data) != PubkeySize {
		return p, ErrInvalidPubkey
	}
	copy(p[:], data)
	return p, nil
}

// PubkeyFromBytes creates a Pubkey from a byte slice.
func PubkeyFromBytes(b []byte) (Pubkey, error) {
	var p Pubkey
	if len(b) != PubkeySize {
		return p, ErrInvalidPubkey
	}
	copy(p[:], b)
	return p, nil
}

// IsValidAddress reports whether s is a well-formed base58 address.
func IsValidAddress(s string) bool {
	_, err := PubkeyFromBase58(s)
	return err == nil
}

// String returns the base58-encoded representation.
// Leading zero bytes encode as leading '1' characters.
func (p Pubkey) String() string {
	return base58.Encode(p[:])
}

// IsZero returns true if the pubkey is all zeros.
func (p Pubkey) IsZero() bool {
	for _, b := range p {
		if b != 0 {
			return false
		}
	}
	return true
}

// Equals returns true if two pubkeys are equal.
func (p Pubkey) Equals(other Pubkey) bool {
	return p == other
}

// Bytes returns the pubkey as a byte slice.
func (p Pubkey) Bytes() []byte {
	return p[:]
}

// MarshalText implements encoding.TextMarshaler.
func (p Pubkey) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Pubkey) UnmarshalText(text []byte) error {
	parsed, err := PubkeyFromBase58(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// Hash represents a 32-byte SHA256 hash.
type Hash [HashSize]byte

// HashFromHex parses a hex-encoded hash.
func HashFromHex(s string) (Hash, error) {
	var h Hash
	data, err := hex.DecodeString(s)
	if err != nil {
		return h, fmt.Errorf("hex decode: %w", err)
	}
	if len(data) != HashSize {
		return h, ErrInvalidHash
	}
	copy(h[:], data)
	return h, nil
}

// HashFromBytes creates a Hash from a byte slice.
func HashFromBytes(b []byte) (Hash, error) {
	var h Hash
	if len(b) != HashSize {
		return h, ErrInvalidHash
	}
	copy(h[:], b)
	return h, nil
}

// ComputeHash computes the SHA256 hash of data.
func ComputeHash(data []byte) Hash {
	return sha256.Sum256(data)
}

// String returns the hex-encoded representation.
// Hex is used rather than base58 because build registries report executable
// hashes as hex strings.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// Base58 returns the base58-encoded representation.
func (h Hash) Base58() string {
	return base58.Encode(h[:])
}

// IsZero returns true if the hash is all zeros.
func (h Hash) IsZero() bool {
	for _, b := range h {
		if b != 0 {
			return false
		}
	}
	return true
}

// Equals returns true if two hashes are equal.
func (h Hash) Equals(other Hash) bool {
	return h == other
}

// Bytes returns the hash as a byte slice.
func (h Hash) Bytes() []byte {
	return h[:]
}

// MarshalText implements encoding.TextMarshaler.
func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (h *Hash) UnmarshalText(text []byte) error {
	parsed, err := HashFromHex(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}
