// SolGuard: on-chain program verification service.
//
// SolGuard reads the deployed executable of a Solana program, compares it
// against the build registry's reproducible-build report and the owning
// profile's repository claim, and serves the reconciled verdict over HTTP.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/solguard/solguard/pkg/api"
	"github.com/solguard/solguard/pkg/chainread"
	"github.com/solguard/solguard/pkg/history"
	"github.com/solguard/solguard/pkg/provenance"
	"github.com/solguard/solguard/pkg/vcache"
	"github.com/solguard/solguard/pkg/verifyapi"
)

// Version information
var (
	Version   = "0.1.0"
	GitCommit = "dev"
)

// Configuration flags
var (
	dataDir      = flag.String("data-dir", "/var/lib/solguard", "Data directory for the cache and history databases")
	rpcEndpoints = flag.String("rpc-endpoints", "https://api.mainnet-beta.solana.com", "Comma-separated Solana RPC endpoints")
	registryURL  = flag.String("registry-url", verifyapi.DefaultBaseURL, "Build registry base URL")
	commitment   = flag.String("commitment", "confirmed", "Commitment level: processed, confirmed, finalized")
	listenAddr   = flag.String("listen-addr", ":8710", "HTTP API listen address")
	freshness    = flag.Duration("freshness-window", vcache.DefaultFreshnessWindow, "How long a cached verdict stays fresh")
	rpcTimeout   = flag.Duration("rpc-timeout", chainread.DefaultRequestTimeout, "Per-request chain RPC timeout")
	logRequests  = flag.Bool("log-requests", false, "Log every API request")
	showVersion  = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("SolGuard %s (%s)\n", Version, GitCommit)
		os.Exit(0)
	}

	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)
	log.Printf("Starting SolGuard %s", Version)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Printf("Received signal %v, shutting down...", sig)
		cancel()
	}()

	endpoints := splitEndpoints(*rpcEndpoints)
	if len(endpoints) == 0 {
		log.Fatal("No RPC endpoints configured")
	}
	log.Printf("Using %d RPC endpoints", len(endpoints))
	for _, ep := range endpoints {
		log.Printf("  - %s", ep)
	}

	pool := chainread.NewSimplePool(endpoints)
	defer pool.Close()
	chain := chainread.NewClient(pool, *rpcTimeout, *commitment)

	registry := verifyapi.NewClient(verifyapi.Config{BaseURL: *registryURL})
	log.Printf("Build registry: %s", *registryURL)

	store, err := vcache.Open(vcache.DefaultConfig(filepath.Join(*dataDir, "cache")))
	if err != nil {
		log.Fatalf("Failed to open verification cache: %v", err)
	}
	defer store.Close()

	ledger, err := history.Open(history.DefaultConfig(filepath.Join(*dataDir, "history.db")))
	if err != nil {
		log.Fatalf("Failed to open history ledger: %v", err)
	}
	defer ledger.Close()
	log.Printf("History ledger holds %d records", ledger.Count())

	verifier := provenance.NewVerifier(chain, registry, vcache.NewGate(store, *freshness), ledger, provenance.Config{
		Logger: log.Default(),
	})
	defer verifier.Close()

	apiConfig := api.DefaultConfig()
	apiConfig.Addr = *listenAddr
	apiConfig.LogRequests = *logRequests
	server := api.New(apiConfig, verifier)

	log.Printf("API listening on %s (freshness window %s)", *listenAddr, *freshness)
	if err := server.Start(ctx); err != nil {
		log.Fatalf("API server failed: %v", err)
	}

	// Start only returns once the context is cancelled and the listener
	// has drained, so the deferred closes run after the last request.
	log.Println("Shutdown complete")
}

// splitEndpoints parses the comma-separated endpoint flag.
func splitEndpoints(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
