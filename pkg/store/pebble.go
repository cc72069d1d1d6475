package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"

	"github.com/yz174/kliq/pkg/logger"
	"github.com/yz174/kliq/pkg/models"
	"github.com/yz174/kliq/pkg/store/keys"
	"github.com/yz174/kliq/pkg/timeutil"
)

var errNotOpen = errors.New("pebble not opened; call store.Open first")

// Notifier receives the live topics touched by each committed write.
type Notifier interface {
	Publish(topics ...string)
}

type Options struct {
	// FS overrides the filesystem; tests pass vfs.NewMem().
	FS       vfs.FS
	Clock    timeutil.Clock
	Notifier Notifier
	// Sync fsyncs every batch. Off trades the last few writes on power
	// loss for latency; the pebble WAL still protects against crashes.
	Sync bool
}

// Store is the pebble-backed persistence layer. All methods are safe for
// concurrent use.
type Store struct {
	db     *pebble.DB
	path   string
	clock  timeutil.Clock
	notify Notifier
	sync   bool
	locks  keyLocks

	jobSeq      atomic.Uint64
	artifactSeq atomic.Uint64
	writes      atomic.Uint64
}

// Open opens or creates the database at path.
func Open(path string, opts Options) (*Store, error) {
	po := &pebble.Options{}
	if opts.FS != nil {
		po.FS = opts.FS
	}
	db, err := pebble.Open(path, po)
	if err != nil {
		logger.Error("pebble_open_failed", "path", path, "error", err)
		return nil, err
	}
	s := &Store{
		db:     db,
		path:   path,
		clock:  timeutil.Or(opts.Clock),
		notify: opts.Notifier,
		sync:   opts.Sync,
	}
	if err := s.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	logger.Info("store_opened", "path", path, "sync", opts.Sync)
	return s, nil
}

// init stamps the schema version and restores the job sequence.
func (s *Store) init() error {
	v, err := s.getRaw(keys.SystemVersionKey)
	switch {
	case errors.Is(err, models.ErrNotFound):
		if err := s.db.Set([]byte(keys.SystemVersionKey), []byte(keys.SchemaVersion), pebble.Sync); err != nil {
			return fmt.Errorf("write schema version: %w", err)
		}
	case err != nil:
		return err
	case string(v) != keys.SchemaVersion:
		return fmt.Errorf("unsupported schema version %q (want %s)", v, keys.SchemaVersion)
	}

	last, err := s.lastJobSeq()
	if err != nil {
		return fmt.Errorf("restore job sequence: %w", err)
	}
	s.jobSeq.Store(last)
	return nil
}

// Close flushes and closes the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	if err := s.db.Close(); err != nil {
		return err
	}
	s.db = nil
	logger.Info("store_closed", "path", s.path)
	return nil
}

// Ready reports whether the database is open.
func (s *Store) Ready() bool { return s != nil && s.db != nil }

// Flush forces memtables to disk.
func (s *Store) Flush() error {
	if !s.Ready() {
		return errNotOpen
	}
	return s.db.Flush()
}

// Writes returns the number of committed batches since open.
func (s *Store) Writes() uint64 { return s.writes.Load() }

func (s *Store) now() int64 { return s.clock.Now().UnixNano() }

func (s *Store) writeOpt() *pebble.WriteOptions {
	if s.sync {
		return pebble.Sync
	}
	return pebble.NoSync
}

// commit applies the batch and publishes topics on success.
func (s *Store) commit(b *pebble.Batch, topics ...string) error {
	defer b.Close()
	if !s.Ready() {
		return errNotOpen
	}
	if err := b.Commit(s.writeOpt()); err != nil {
		logger.Error("pebble_apply_batch_failed", "error", err)
		return err
	}
	s.writes.Add(1)
	if s.notify != nil && len(topics) > 0 {
		s.notify.Publish(topics...)
	}
	return nil
}

func (s *Store) newBatch() *pebble.Batch { return s.db.NewBatch() }

func (s *Store) getRaw(key string) ([]byte, error) {
	if !s.Ready() {
		return nil, errNotOpen
	}
	v, closer, err := s.db.Get([]byte(key))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		return nil, err
	}
	out := append([]byte(nil), v...)
	closer.Close()
	return out, nil
}

func (s *Store) getJSON(key string, v any) error {
	b, err := s.getRaw(key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

func (s *Store) has(key string) (bool, error) {
	_, err := s.getRaw(key)
	if errors.Is(err, models.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func setJSON(b *pebble.Batch, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return b.Set([]byte(key), data, nil)
}

func deletePrefix(b *pebble.Batch, prefix string) error {
	return b.DeleteRange([]byte(prefix), keys.UpperBound(prefix), nil)
}

// scan iterates keys in [lower, upper) in ascending order; fn returns
// false to stop. Key and value slices are only valid during fn.
func (s *Store) scan(lower, upper []byte, fn func(k, v []byte) (bool, error)) error {
	if !s.Ready() {
		return errNotOpen
	}
	it, err := s.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return err
	}
	defer it.Close()
	for it.First(); it.Valid(); it.Next() {
		cont, err := fn(it.Key(), it.Value())
		if err != nil {
			return err
		}
		if !cont {
			break
		}
	}
	return it.Error()
}

// scanReverse is scan in descending order.
func (s *Store) scanReverse(lower, upper []byte, fn func(k, v []byte) (bool, error)) error {
	if !s.Ready() {
		return errNotOpen
	}
	it, err := s.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return err
	}
	defer it.Close()
	for it.Last(); it.Valid(); it.Prev() {
		cont, err := fn(it.Key(), it.Value())
		if err != nil {
			return err
		}
		if !cont {
			break
		}
	}
	return it.Error()
}

func (s *Store) scanPrefix(prefix string, fn func(k, v []byte) (bool, error)) error {
	return s.scan([]byte(prefix), keys.UpperBound(prefix), fn)
}

// Stats counts records per family for the admin surface.
func (s *Store) Stats() (map[string]int, error) {
	families := map[string]string{
		"users":         keys.UserPrefix,
		"conversations": "c:",
		"memberships":   "mb:",
		"messages":      "m:",
		"reactions":     "r:",
		"typing":        keys.TypingAllPrefix,
		"artifacts":     keys.ArtifactAllPrefix,
		"pending_jobs":  keys.JobPrefix,
	}
	out := make(map[string]int, len(families))
	for name, prefix := range families {
		n := 0
		if err := s.scanPrefix(prefix, func(_, _ []byte) (bool, error) {
			n++
			return true, nil
		}); err != nil {
			return nil, err
		}
		out[name] = n
	}
	return out, nil
}

func decode(v []byte, out any) error {
	if err := json.Unmarshal(v, out); err != nil {
		return fmt.Errorf("decode record: %w", err)
	}
	return nil
}
