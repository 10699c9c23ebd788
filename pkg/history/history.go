// Package history keeps an append-only ledger of verification outcomes.
// Where the cache holds only the latest verdict per program, the ledger
// retains every verdict ever produced, so a program's trust trajectory
// (original, then fork after a redeploy, then original again) stays
// auditable.
package history

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/solguard/solguard/internal/types"
	"github.com/solguard/solguard/pkg/reconcile"
)

var (
	// ErrClosed is returned when operating on a closed ledger.
	ErrClosed = errors.New("history ledger closed")

	// ErrNilRecord is returned when appending a nil record.
	ErrNilRecord = errors.New("nil history record")
)

// Bucket names for BoltDB.
var (
	// bucketRecords stores gob-encoded records.
	// Key format: pubkey (32 bytes) + big-endian unix nanos (8 bytes) +
	// big-endian sequence (8 bytes). Big-endian keeps keys for one
	// program time-ordered under bbolt's byte-wise iteration.
	bucketRecords = []byte("records")

	// bucketMetadata stores ledger counters.
	bucketMetadata = []byte("metadata")
)

var keyRecordCount = []byte("record_count")

// Record is one verification outcome as it was produced.
type Record struct {
	// Program is the verified program's address.
	Program types.Pubkey

	// Status and Confidence are the reconciled verdict.
	Status     reconcile.MatchStatus
	Confidence reconcile.Confidence

	// OnChainHash is the locally computed executable digest, nil when
	// the chain leg produced none.
	OnChainHash *types.Hash

	// RegistryHash is the registry-reported hash, nil when absent.
	RegistryHash *types.Hash

	// DeploySlot is the deployment slot observed at verification time.
	DeploySlot *uint64

	// RepoURL is the verified build's repository per the registry.
	RepoURL string

	// Message is the human-readable justification.
	Message string

	// VerifiedAt is when the verdict was produced.
	VerifiedAt time.Time
}

// Config holds ledger configuration options.
type Config struct {
	// Path is the file path for the ledger database.
	Path string

	// NoSync disables fsync after each write (faster but less durable).
	NoSync bool

	// ReadOnly opens the database in read-only mode.
	ReadOnly bool
}

// DefaultConfig returns the default ledger configuration.
func DefaultConfig(path string) Config {
	return Config{
		Path:     path,
		NoSync:   false,
		ReadOnly: false,
	}
}

// Ledger is the BoltDB-backed verification history.
type Ledger struct {
	db     *bolt.DB
	config Config

	mu          sync.RWMutex
	recordCount uint64
	seq         uint64
	closed      bool
}

// Open creates or opens a ledger at the configured path.
func Open(config Config) (*Ledger, error) {
	dir := filepath.Dir(config.Path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}

	opts := &bolt.Options{
		Timeout:  5 * time.Second,
		NoSync:   config.NoSync,
		ReadOnly: config.ReadOnly,
	}

	db, err := bolt.Open(config.Path, 0600, opts)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	l := &Ledger{db: db, config: config}

	if !config.ReadOnly {
		if err := l.initBuckets(); err != nil {
			db.Close()
			return nil, fmt.Errorf("init buckets: %w", err)
		}
	}

	if err := l.loadCount(); err != nil {
		db.Close()
		return nil, fmt.Errorf("load record count: %w", err)
	}

	return l, nil
}

func (l *Ledger) initBuckets() error {
	return l.db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketRecords, bucketMetadata} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("create bucket %s: %w", name, err)
			}
		}
		return nil
	})
}

func (l *Ledger) loadCount() error {
	return l.db.View(func(tx *bolt.Tx) error {
		meta := tx.Bucket(bucketMetadata)
		if meta == nil {
			return nil
		}
		if v := meta.Get(keyRecordCount); len(v) == 8 {
			l.recordCount = binary.BigEndian.Uint64(v)
		}
		return nil
	})
}

// recordKey builds the ordered key for one record. The in-process
// sequence breaks ties between records appended within the same
// nanosecond.
func recordKey(program types.Pubkey, at time.Time, seq uint64) []byte {
	key := make([]byte, types.PubkeySize+16)
	copy(key, program[:])
	binary.BigEndian.PutUint64(key[types.PubkeySize:], uint64(at.UnixNano()))
	binary.BigEndian.PutUint64(key[types.PubkeySize+8:], seq)
	return key
}

// Append writes a record to the ledger. Records are never updated or
// deleted.
func (l *Ledger) Append(rec *Record) error {
	if rec == nil {
		return ErrNilRecord
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrClosed
	}
	l.seq++
	seq := l.seq
	l.mu.Unlock()

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(rec); err != nil {
		return fmt.Errorf("encode record: %w", err)
	}

	err := l.db.Update(func(tx *bolt.Tx) error {
		records := tx.Bucket(bucketRecords)
		if err := records.Put(recordKey(rec.Program, rec.VerifiedAt, seq), buf.Bytes()); err != nil {
			return err
		}

		// Read the counter from the bucket, not from memory; update
		// transactions serialize, the in-memory mirror does not.
		meta := tx.Bucket(bucketMetadata)
		var count uint64
		if v := meta.Get(keyRecordCount); len(v) == 8 {
			count = binary.BigEndian.Uint64(v)
		}
		encoded := make([]byte, 8)
		binary.BigEndian.PutUint64(encoded, count+1)
		return meta.Put(keyRecordCount, encoded)
	})
	if err != nil {
		return fmt.Errorf("append record: %w", err)
	}

	l.mu.Lock()
	l.recordCount++
	l.mu.Unlock()
	return nil
}

// ListByProgram returns a program's records newest first. A limit of 0
// returns everything.
func (l *Ledger) ListByProgram(program types.Pubkey, limit int) ([]*Record, error) {
	l.mu.RLock()
	if l.closed {
		l.mu.RUnlock()
		return nil, ErrClosed
	}
	l.mu.RUnlock()

	var records []*Record
	err := l.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketRecords).Cursor()

		prefix := program[:]

		// Seek to the first key past this program's range, then walk
		// backwards through the prefix to get newest-first order.
		var upper [types.PubkeySize]byte
		copy(upper[:], prefix)
		var k, v []byte
		if carryIncrement(upper[:]) {
			k, v = c.Last()
		} else {
			k, v = c.Seek(upper[:])
			if k == nil {
				k, v = c.Last()
			} else {
				k, v = c.Prev()
			}
		}

		for ; k != nil && bytes.HasPrefix(k, prefix); k, v = c.Prev() {
			var rec Record
			if err := gob.NewDecoder(bytes.NewReader(v)).Decode(&rec); err != nil {
				return fmt.Errorf("decode record: %w", err)
			}
			records = append(records, &rec)
			if limit > 0 && len(records) >= limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// carryIncrement adds one to a big-endian byte string in place. Returns
// true on overflow, meaning the input was all 0xff and has no successor.
func carryIncrement(b []byte) bool {
	for i := len(b) - 1; i >= 0; i-- {
		b[i]++
		if b[i] != 0 {
			return false
		}
	}
	return true
}

// Count returns the total number of records in the ledger.
func (l *Ledger) Count() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.recordCount
}

// Sync forces a write of all pending data to disk.
func (l *Ledger) Sync() error {
	l.mu.RLock()
	if l.closed {
		l.mu.RUnlock()
		return ErrClosed
	}
	l.mu.RUnlock()
	return l.db.Sync()
}

// Close closes the ledger.
func (l *Ledger) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrClosed
	}
	l.closed = true
	l.mu.Unlock()
	return l.db.Close()
}
