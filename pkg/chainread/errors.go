package chainread

import (
	"errors"
	"fmt"
)

// Package errors.
var (
	// ErrNoEndpoints is returned when no RPC endpoints are available.
	ErrNoEndpoints = errors.New("no RPC endpoints available")

	// ErrAccountNotFound is returned when an address has no account.
	// This is a valid terminal outcome for verification, not a failure.
	ErrAccountNotFound = errors.New("account not found")

	// ErrRequestTimeout is returned when an RPC request times out.
	ErrRequestTimeout = errors.New("request timeout")
)

// RPCError represents a JSON-RPC error response.
type RPCError struct {
	Code    int
	Message string
}

// Error implements the error interface.
func (e *RPCError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// IsNotFound returns true if the error means the account does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrAccountNotFound)
}

// IsTransient returns true if the error is likely transient and the read
// is worth retrying. Not-found is a definitive answer, not a transient
// failure.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if IsNotFound(err) {
		return false
	}

	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		// Client-side request errors are not transient.
		if rpcErr.Code == -32600 || rpcErr.Code == -32601 || rpcErr.Code == -32602 {
			return false
		}
	}

	return true
}
