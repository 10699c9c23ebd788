// Package vcache persists the last verification outcome per program and
// decides when a cached verdict may be served instead of running a full
// re-verification.
//
// The store is BadgerDB-backed, one row per program keyed by pubkey.
// Rows are overwritten on every re-verification; there is no deletion.
// Each row carries a BLAKE3 checksum so that a corrupt row reads as a
// cache miss rather than a stale trust verdict.
package vcache

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/dgraph-io/badger/v4"

	"github.com/solguard/solguard/internal/types"
)

var (
	// ErrEntryNotFound is returned when a program has no cached entry.
	ErrEntryNotFound = errors.New("cache entry not found")

	// ErrCorrupted is returned when a row fails its checksum or cannot
	// be decoded. Callers treat it as a miss.
	ErrCorrupted = errors.New("cache entry corrupted")

	// ErrClosed is returned when operating on a closed store.
	ErrClosed = errors.New("cache store closed")
)

// Key prefixes for BadgerDB storage.
var (
	// prefixEntry is the prefix for verification entries.
	// Key format: prefixEntry + pubkey (32 bytes)
	prefixEntry = []byte{0x01}
)

// Config contains configuration for the cache store.
type Config struct {
	// Path is the directory path for the database.
	Path string

	// InMemory runs the database in memory (for testing).
	InMemory bool

	// SyncWrites ensures writes are synced to disk. Verification verdicts
	// are cheap to recompute, so async is the default.
	SyncWrites bool

	// Logger is an optional badger logger. Nil disables logging.
	Logger badger.Logger
}

// DefaultConfig returns default configuration.
func DefaultConfig(path string) Config {
	return Config{
		Path:       path,
		InMemory:   false,
		SyncWrites: false,
		Logger:     nil,
	}
}

// Store is the BadgerDB-backed verification cache.
type Store struct {
	db     *badger.DB
	closed atomic.Bool
}

// Open opens or creates the cache store.
func Open(cfg Config) (*Store, error) {
	opts := badger.DefaultOptions(cfg.Path)

	if cfg.InMemory {
		opts = opts.WithInMemory(true).WithDir("").WithValueDir("")
	}

	opts = opts.
		WithSyncWrites(cfg.SyncWrites).
		WithLogger(cfg.Logger)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}

	return &Store{db: db}, nil
}

// entryKey returns the BadgerDB key for a program's entry.
func entryKey(program types.Pubkey) []byte {
	key := make([]byte, 1+types.PubkeySize)
	key[0] = prefixEntry[0]
	copy(key[1:], program[:])
	return key
}

// Get retrieves the cached entry for a program.
func (s *Store) Get(program types.Pubkey) (*Entry, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}

	var entry *Entry

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(entryKey(program))
		if err == badger.ErrKeyNotFound {
			return ErrEntryNotFound
		}
		if err != nil {
			return err
		}

		return item.Value(func(val []byte) error {
			e, err := DeserializeEntry(val)
			if err != nil {
				return err
			}
			entry = e
			return nil
		})
	})

	if err != nil {
		return nil, err
	}

	return entry, nil
}

// Put stores an entry, overwriting any previous row for the program.
func (s *Store) Put(entry *Entry) error {
	if s.closed.Load() {
		return ErrClosed
	}

	data := entry.Serialize()
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(entryKey(entry.Program), data)
	})
}

// Count returns the number of cached programs.
func (s *Store) Count() (uint64, error) {
	if s.closed.Load() {
		return 0, ErrClosed
	}

	var count uint64
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefixEntry
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// Close closes the store.
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return ErrClosed
	}
	return s.db.Close()
}
