// Package badgerstore provides a metrictree.NodeStore backed by BadgerDB.
//
// Node records are encoded with msgpack and compressed (LZ4 or zstd) before
// they are written. Handles come from a Badger sequence, so they stay unique
// across process restarts. Named roots let a tree be reopened later:
//
//	st, _ := badgerstore.Open[metrictree.Vector](badgerstore.DefaultConfig("/var/lib/index"))
//	tree, _ := metrictree.Build(ctx, items, metric, cfg, metrictree.WithStore[metrictree.Vector](st))
//	_ = st.SetRoot(ctx, "main", tree.RootHandle())
//	...
//	h, _ := st.Root(ctx, "main")
//	tree, _ = metrictree.Open[metrictree.Vector](ctx, st, h, metric)
package badgerstore

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/dgraph-io/badger/v4"

	"github.com/TrevorS/metrictree"
)

var (
	keySequence = []byte("seq/nodes")
	prefixNode  = []byte("n/")
	prefixRoot  = []byte("r/")
)

// Config holds configuration for a Store.
type Config struct {
	// Path is the directory for BadgerDB files. Ignored when InMemory is
	// true.
	Path string

	// InMemory keeps everything in memory. Useful for testing.
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool

	// Compression applied to node records. Default: CompressionZSTD.
	Compression Compression

	// Logger receives BadgerDB's internal log lines. If nil they are
	// discarded.
	Logger *slog.Logger

	// SequenceBandwidth is how many handles are leased from the sequence at
	// a time. Default: 256.
	SequenceBandwidth uint64
}

// DefaultConfig returns a durable configuration rooted at path.
func DefaultConfig(path string) Config {
	return Config{
		Path:              path,
		SyncWrites:        true,
		Compression:       CompressionZSTD,
		SequenceBandwidth: 256,
	}
}

// InMemoryConfig returns a configuration for tests.
func InMemoryConfig() Config {
	return Config{
		InMemory:          true,
		Compression:       CompressionZSTD,
		SequenceBandwidth: 256,
	}
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// Store is a metrictree.NodeStore over a BadgerDB instance. It is safe for
// concurrent use.
type Store[T any] struct {
	db          *badger.DB
	seq         *badger.Sequence
	compression Compression
	ownsDB      bool
}

var _ metrictree.NodeStore[[]float64] = (*Store[[]float64])(nil)

// Open opens (or creates) the database described by cfg.
func Open[T any](cfg Config) (*Store[T], error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("badgerstore: path is required for persistent database")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("badgerstore: create database directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badgerstore: open: %w", err)
	}
	s, err := New[T](db, cfg.Compression, cfg.SequenceBandwidth)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	s.ownsDB = true
	return s, nil
}

// New wraps an already open database. Close releases the handle sequence
// but leaves db open.
func New[T any](db *badger.DB, compression Compression, bandwidth uint64) (*Store[T], error) {
	if db == nil {
		return nil, errors.New("badgerstore: db must not be nil")
	}
	if bandwidth == 0 {
		bandwidth = 256
	}
	seq, err := db.GetSequence(keySequence, bandwidth)
	if err != nil {
		return nil, fmt.Errorf("badgerstore: sequence: %w", err)
	}
	return &Store[T]{db: db, seq: seq, compression: compression}, nil
}

func nodeKey(h metrictree.Handle) []byte {
	k := make([]byte, len(prefixNode)+8)
	copy(k, prefixNode)
	binary.BigEndian.PutUint64(k[len(prefixNode):], uint64(h))
	return k
}

// Put stores rec under a fresh handle.
func (s *Store[T]) Put(ctx context.Context, rec *metrictree.NodeRecord[T]) (metrictree.Handle, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	n, err := s.seq.Next()
	if err != nil {
		return 0, fmt.Errorf("badgerstore: next handle: %w", err)
	}
	h := metrictree.Handle(n + 1)

	val, err := encode(rec, s.compression)
	if err != nil {
		return 0, err
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(nodeKey(h), val)
	})
	if err != nil {
		return 0, fmt.Errorf("badgerstore: put node %d: %w", h, err)
	}
	return h, nil
}

// Get loads the record behind h. Unknown handles yield
// metrictree.ErrNodeNotFound.
func (s *Store[T]) Get(ctx context.Context, h metrictree.Handle) (*metrictree.NodeRecord[T], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var val []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(nodeKey(h))
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: handle %d", metrictree.ErrNodeNotFound, h)
	}
	if err != nil {
		return nil, fmt.Errorf("badgerstore: get node %d: %w", h, err)
	}

	rec := new(metrictree.NodeRecord[T])
	if err := decode(val, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// SetRoot records h as the root of the tree called name.
func (s *Store[T]) SetRoot(ctx context.Context, name string, h metrictree.Handle) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(h))
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(append(append([]byte{}, prefixRoot...), name...), buf[:])
	})
}

// Root returns the root handle recorded for name.
func (s *Store[T]) Root(ctx context.Context, name string) (metrictree.Handle, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var h metrictree.Handle
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(append(append([]byte{}, prefixRoot...), name...))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if len(val) != 8 {
				return errCorrupt
			}
			h = metrictree.Handle(binary.BigEndian.Uint64(val))
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, fmt.Errorf("%w: no root named %q", metrictree.ErrNodeNotFound, name)
	}
	return h, err
}

// Close releases the handle sequence and, when the store opened the
// database itself, closes it.
func (s *Store[T]) Close() error {
	err := s.seq.Release()
	if s.ownsDB {
		err = errors.Join(err, s.db.Close())
	}
	return err
}
