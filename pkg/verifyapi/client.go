// Package verifyapi queries an external reproducible-build registry for a
// program's verification status.
//
// The registry rebuilds programs from their published sources and records
// whether the rebuilt executable matches what is deployed on-chain. This
// client only transports that report; judging it against locally computed
// state is the reconcile package's job. The registry is one leg of the
// verification pipeline, never a substitute for reading the chain.
package verifyapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/solguard/solguard/internal/types"
)

// Default configuration values.
const (
	// DefaultBaseURL is the public OtterSec verification registry.
	DefaultBaseURL = "https://verify.osec.io"

	// DefaultRequestTimeout bounds a registry query. A slow registry
	// degrades its leg to "unavailable"; it must never hang the whole
	// verification.
	DefaultRequestTimeout = 10 * time.Second
)

var (
	// ErrProgramNotIndexed is returned when the registry has never seen
	// the program. Not a failure; it feeds the unknown/low verdict.
	ErrProgramNotIndexed = errors.New("program not indexed by build registry")

	// ErrRegistryUnavailable is returned on transport failures and
	// server-side errors. The registry leg degrades to absent data.
	ErrRegistryUnavailable = errors.New("build registry unavailable")
)

// Config holds configuration for the registry client.
type Config struct {
	// BaseURL is the registry root, without a trailing slash.
	BaseURL string

	// RequestTimeout is the timeout for a single status query.
	RequestTimeout time.Duration
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		BaseURL:        DefaultBaseURL,
		RequestTimeout: DefaultRequestTimeout,
	}
}

// WithDefaults applies default values for any unset fields.
func (c Config) WithDefaults() Config {
	defaults := DefaultConfig()

	if c.BaseURL == "" {
		c.BaseURL = defaults.BaseURL
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = defaults.RequestTimeout
	}

	return c
}

// Status is the registry's report for one program.
type Status struct {
	// Verified indicates the registry holds a successful reproducible
	// build whose output matches the on-chain executable.
	Verified bool `json:"is_verified"`

	// Message is the registry's own summary line.
	Message string `json:"message"`

	// OnChainHash is the executable hash the registry observed on-chain,
	// hex-encoded, possibly empty.
	OnChainHash string `json:"on_chain_hash"`

	// ExecutableHash is the hash of the registry's rebuilt executable.
	ExecutableHash string `json:"executable_hash"`

	// RepoURL is the source repository of the verified build.
	RepoURL string `json:"repo_url"`

	// Commit is the verified source revision, possibly empty.
	Commit string `json:"commit"`

	// LastVerified is when the registry last ran the build, if reported.
	LastVerified *time.Time `json:"last_verified_at"`
}

// ReportedHash parses the registry's on-chain hash. Returns nil when the
// registry reported none or the value is malformed; a malformed hash is
// absent data, not a verification failure.
func (s *Status) ReportedHash() *types.Hash {
	if s == nil || s.OnChainHash == "" {
		return nil
	}
	h, err := types.HashFromHex(strings.TrimPrefix(s.OnChainHash, "0x"))
	if err != nil {
		return nil
	}
	return &h
}

// Client queries the build registry over HTTP.
type Client struct {
	config     Config
	httpClient *http.Client
}

// NewClient creates a registry client.
func NewClient(config Config) *Client {
	config = config.WithDefaults()
	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.RequestTimeout,
		},
	}
}

// Status fetches the registry's verification report for a program.
//
// Outcomes are three-way: a report, ErrProgramNotIndexed, or
// ErrRegistryUnavailable. Callers treat the latter two as absent data
// with different log lines, not as failures of the verification request.
func (c *Client) Status(ctx context.Context, program types.Pubkey) (*Status, error) {
	url := strings.TrimSuffix(c.config.BaseURL, "/") + "/status/" + program.String()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRegistryUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrRegistryUnavailable, err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrProgramNotIndexed
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: status %d", ErrRegistryUnavailable, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("registry status %d: %s", resp.StatusCode, string(body))
	}

	var status Status
	if err := json.Unmarshal(body, &status); err != nil {
		return nil, fmt.Errorf("%w: unmarshal response: %v", ErrRegistryUnavailable, err)
	}

	return &status, nil
}

// IsNotIndexed returns true if the error means the registry has no record
// of the program.
func IsNotIndexed(err error) bool {
	return errors.Is(err, ErrProgramNotIndexed)
}

// IsUnavailable returns true if the error means the registry could not be
// reached or answered with a server error.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrRegistryUnavailable)
}
