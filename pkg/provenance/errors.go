package provenance

import "errors"

var (
	// ErrInvalidProgramID is returned when the request's program address
	// does not decode. Nothing was read from chain or registry.
	ErrInvalidProgramID = errors.New("invalid program id")

	// ErrChainUnavailable is returned when the chain could not be read and
	// no cached verdict exists to fall back on.
	ErrChainUnavailable = errors.New("chain unavailable")

	// ErrClosed is returned when verifying through a closed verifier.
	ErrClosed = errors.New("verifier closed")
)
