// Package walletsnapshots keeps an append-only history of wallet cache
// snapshots that the dashboard stream replays from a given index.
package walletsnapshots

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/gowal"

	"github.com/vadiminshakov/cobrand/internal/domain"
)

const (
	defaultSnapshotDir   = "./state/wallet_snapshots"
	snapshotSegmentLimit = 1000
	snapshotMaxSegments  = 20
	snapshotKeyPrefix    = "wallet_snapshot_"
)

var errNotInitialized = errors.New("wallet snapshot store is not initialized")

// WALStore persists wallet snapshots in a WAL.
type WALStore struct {
	wal *gowal.Wal
	mu  sync.RWMutex
}

// NewWALStore opens the snapshot log under dir.
func NewWALStore(dir string) (*WALStore, error) {
	if dir == "" {
		dir = defaultSnapshotDir
	}

	wal, err := gowal.NewWAL(gowal.Config{
		Dir:              dir,
		Prefix:           "snapshot_",
		SegmentThreshold: snapshotSegmentLimit,
		MaxSegments:      snapshotMaxSegments,
		IsInSyncDiskMode: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "init wallet snapshot WAL")
	}

	return &WALStore{wal: wal}, nil
}

// Save appends the event and returns the index it was written at.
func (s *WALStore) Save(event domain.WalletSnapshotEvent) (uint64, error) {
	if s == nil || s.wal == nil {
		return 0, errNotInitialized
	}
	if event.WalletID <= 0 {
		return 0, fmt.Errorf("wallet snapshot walletId must be positive, got %d", event.WalletID)
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return 0, errors.Wrap(err, "marshal wallet snapshot")
	}

	key := fmt.Sprintf("%s%d", snapshotKeyPrefix, event.WalletID)

	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.wal.CurrentIndex() + 1
	if err := s.wal.Write(next, key, payload); err != nil {
		return 0, errors.Wrap(err, "write wallet snapshot")
	}
	return next, nil
}

// SnapshotsAfter returns the snapshots written after index, oldest first.
func (s *WALStore) SnapshotsAfter(index uint64) ([]domain.WalletSnapshotRecord, error) {
	if s == nil || s.wal == nil {
		return nil, errNotInitialized
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	current := s.wal.CurrentIndex()
	if current <= index {
		return nil, nil
	}

	records := make([]domain.WalletSnapshotRecord, 0, current-index)
	for idx := index + 1; idx <= current; idx++ {
		key, payload, err := s.wal.Get(idx)
		if err != nil {
			return nil, errors.Wrapf(err, "read wallet snapshot at index %d", idx)
		}
		// records of dropped segments come back empty
		if !strings.HasPrefix(key, snapshotKeyPrefix) {
			continue
		}
		var event domain.WalletSnapshotEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			return nil, errors.Wrap(err, "decode wallet snapshot")
		}
		records = append(records, domain.WalletSnapshotRecord{Index: idx, Event: event})
	}

	return records, nil
}

// CurrentIndex returns the latest index written.
func (s *WALStore) CurrentIndex() uint64 {
	if s == nil || s.wal == nil {
		return 0
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.wal.CurrentIndex()
}

// Close closes the underlying WAL.
func (s *WALStore) Close() error {
	if s == nil || s.wal == nil {
		return errNotInitialized
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.wal.Close()
}
