// Package offline keeps writes flowing while the backend is
// unreachable: a durable journal queues them locally and a
// coordinator replays the queue when connectivity returns.
package offline

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"

	"github.com/briangreenhill/csmkit/store"
)

// JournalConfig tunes the journal's badger instance.
type JournalConfig struct {
	// Path is the directory for the journal files. Required unless
	// InMemory is set.
	Path string
	// InMemory keeps the journal in process memory, for tests and
	// ephemeral runs. Nothing survives a restart.
	InMemory bool
	// SyncWrites fsyncs every append. Slower, but a power cut cannot
	// eat a queued write.
	SyncWrites bool
}

var (
	entryPrefix = []byte("w/")
	seqKey      = []byte("!seq")
)

// Journal is a durable FIFO of pending writes. Keys are fixed-width
// big-endian sequence numbers, so badger's key order is arrival order.
type Journal struct {
	db  *badger.DB
	seq *badger.Sequence
	log zerolog.Logger

	mu  sync.Mutex
	len int
}

// Entry is one queued write together with the key that removes it.
type Entry struct {
	Key []byte
	Ops []store.WriteOp
}

// OpenJournal opens or creates the journal. Entries left over from a
// previous run are counted and replayed like any others.
func OpenJournal(cfg JournalConfig, log zerolog.Logger) (*Journal, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, errors.New("offline: journal path required")
		}
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("offline: create journal dir: %w", err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithLogger(badgerLogger{log})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("offline: open journal: %w", err)
	}
	seq, err := db.GetSequence(seqKey, 64)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("offline: journal sequence: %w", err)
	}

	j := &Journal{db: db, seq: seq, log: log}
	n, err := j.count()
	if err != nil {
		_ = seq.Release()
		_ = db.Close()
		return nil, err
	}
	j.len = n
	if n > 0 {
		log.Info().Int("pending", n).Msg("journal reopened with queued writes")
	}
	return j, nil
}

// Append queues one write at the tail.
func (j *Journal) Append(ops []store.WriteOp) error {
	n, err := j.seq.Next()
	if err != nil {
		return fmt.Errorf("offline: next sequence: %w", err)
	}
	data, err := json.Marshal(ops)
	if err != nil {
		return fmt.Errorf("offline: encode write: %w", err)
	}

	key := entryKey(n)
	err = j.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, data)
	})
	if err != nil {
		return fmt.Errorf("offline: append: %w", err)
	}

	j.mu.Lock()
	j.len++
	j.mu.Unlock()
	return nil
}

// Oldest returns up to n queued writes in arrival order. Entries stay
// queued until Remove.
func (j *Journal) Oldest(n int) ([]Entry, error) {
	var out []Entry
	err := j.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = entryPrefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid() && len(out) < n; it.Next() {
			item := it.Item()
			key := item.KeyCopy(nil)
			var ops []store.WriteOp
			if err := item.Value(func(v []byte) error {
				return json.Unmarshal(v, &ops)
			}); err != nil {
				return fmt.Errorf("offline: decode entry %x: %w", key, err)
			}
			out = append(out, Entry{Key: key, Ops: ops})
		}
		return nil
	})
	return out, err
}

// Remove deletes replayed entries.
func (j *Journal) Remove(keys ...[]byte) error {
	if len(keys) == 0 {
		return nil
	}
	err := j.db.Update(func(txn *badger.Txn) error {
		for _, k := range keys {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("offline: remove: %w", err)
	}

	j.mu.Lock()
	j.len -= len(keys)
	if j.len < 0 {
		j.len = 0
	}
	j.mu.Unlock()
	return nil
}

// Len is the number of queued writes.
func (j *Journal) Len() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.len
}

// Close releases the sequence and the database. Queued writes stay on
// disk for the next run.
func (j *Journal) Close() error {
	if err := j.seq.Release(); err != nil {
		j.log.Warn().Err(err).Msg("journal sequence release")
	}
	return j.db.Close()
}

func (j *Journal) count() (int, error) {
	n := 0
	err := j.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = entryPrefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("offline: count entries: %w", err)
	}
	return n, nil
}

func entryKey(n uint64) []byte {
	k := make([]byte, len(entryPrefix)+8)
	copy(k, entryPrefix)
	binary.BigEndian.PutUint64(k[len(entryPrefix):], n)
	return k
}

// badgerLogger adapts zerolog to badger's logger interface. Badger's
// info output is chatty, so it lands on debug.
type badgerLogger struct {
	log zerolog.Logger
}

func (l badgerLogger) Errorf(format string, args ...any)   { l.log.Error().Msgf(format, args...) }
func (l badgerLogger) Warningf(format string, args ...any) { l.log.Warn().Msgf(format, args...) }
func (l badgerLogger) Infof(format string, args ...any)    { l.log.Debug().Msgf(format, args...) }
func (l badgerLogger) Debugf(format string, args ...any)   { l.log.Debug().Msgf(format, args...) }
