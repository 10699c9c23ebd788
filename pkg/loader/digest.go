package loader

import (
	"github.com/solguard/solguard/internal/types"
)

// ExecutableDigest computes the SHA256 digest of a program executable.
//
// The input must be the trimmed image from ParseProgramDataAccount. Hashing
// an untrimmed account tail commits the padding into the digest and breaks
// every downstream comparison, because the account's allocated size (and so
// the padding length) is unrelated to the build output.
//
// An empty executable is hashable; SHA256 of the empty string is
// well-defined and distinct from any non-empty image.
func ExecutableDigest(executable []byte) types.Hash {
	return types.ComputeHash(executable)
}
