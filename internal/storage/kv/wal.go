package kv

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/gowal"
)

const (
	defaultWALDir   = "./state/wal"
	walSegmentLimit = 100
	walMaxSegments  = 5
	walStateKey     = "kv_state"
)

// WALStore persists the whole key space as one WAL record per change, so a
// batch is atomic and recovery only needs the newest record.
type WALStore struct {
	wal    *gowal.Wal
	mu     sync.RWMutex
	values map[string]string
}

// NewWALStore opens the WAL under dir and restores the latest state.
func NewWALStore(dir string) (*WALStore, error) {
	if dir == "" {
		dir = defaultWALDir
	}

	cfg := gowal.Config{
		Dir:              dir,
		Prefix:           "kv_",
		SegmentThreshold: walSegmentLimit,
		MaxSegments:      walMaxSegments,
		IsInSyncDiskMode: true,
	}

	wal, err := gowal.NewWAL(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "init kv WAL")
	}

	s := &WALStore{wal: wal, values: make(map[string]string)}
	if err := s.restore(); err != nil {
		_ = wal.Close()
		return nil, err
	}

	return s, nil
}

func (s *WALStore) restore() error {
	idx := s.wal.CurrentIndex()
	if idx == 0 {
		return nil
	}

	key, payload, err := s.wal.Get(idx)
	if err != nil {
		return errors.Wrapf(err, "read kv state at index %d", idx)
	}
	if key != walStateKey {
		return nil
	}
	if err := json.Unmarshal(payload, &s.values); err != nil {
		return errors.Wrap(err, "decode kv state")
	}
	return nil
}

func (s *WALStore) Get(_ context.Context, key string) (string, bool, error) {
	if s == nil || s.wal == nil {
		return "", false, errors.New("kv WAL store is not initialized")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.values == nil {
		return "", false, ErrClosed
	}
	v, ok := s.values[key]
	return v, ok, nil
}

func (s *WALStore) SetMany(_ context.Context, values map[string]string) error {
	if s == nil || s.wal == nil {
		return errors.New("kv WAL store is not initialized")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.values == nil {
		return ErrClosed
	}
	next := copyState(s.values)
	for k, v := range values {
		next[k] = v
	}
	return s.append(next)
}

func (s *WALStore) Delete(_ context.Context, keys ...string) error {
	if s == nil || s.wal == nil {
		return errors.New("kv WAL store is not initialized")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.values == nil {
		return ErrClosed
	}
	next := copyState(s.values)
	for _, k := range keys {
		delete(next, k)
	}
	return s.append(next)
}

// append must be called with mu held.
func (s *WALStore) append(next map[string]string) error {
	payload, err := json.Marshal(next)
	if err != nil {
		return errors.Wrap(err, "marshal kv state")
	}

	nextIndex := s.wal.CurrentIndex() + 1
	if err := s.wal.Write(nextIndex, walStateKey, payload); err != nil {
		return errors.Wrap(err, "write kv state")
	}

	s.values = next
	return nil
}

// Close closes the underlying WAL.
func (s *WALStore) Close() error {
	if s == nil || s.wal == nil {
		return errors.New("kv WAL store is not initialized")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.values == nil {
		return nil
	}
	s.values = nil
	return s.wal.Close()
}
