// Package wallet caches the wallet summary shown on the dashboard.
//
// The cache only answers while a session exists, and it is invalidated by the
// session store whenever the user signs out or a different user signs in.
package wallet

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/cobrand/internal/domain"
	"github.com/vadiminshakov/cobrand/internal/events"
	"github.com/vadiminshakov/cobrand/internal/storage/kv"
)

// Persisted keys.
const (
	KeyWalletData      = "walletData"
	KeyWalletRevision  = "walletRevision"
	KeyWalletFetchedAt = "walletFetchedAt"
)

// ErrSessionChanged is returned by SetForSession when the session the wallet
// was fetched under is no longer the current one.
var ErrSessionChanged = errors.New("session changed while the wallet was fetched")

// SessionReader reports whether someone is signed in.
type SessionReader interface {
	Current(ctx context.Context) (domain.Session, bool)
}

// SnapshotLog records every wallet the cache accepts.
type SnapshotLog interface {
	Save(event domain.WalletSnapshotEvent) (uint64, error)
}

// Entry is a cached snapshot with its freshness metadata.
type Entry struct {
	Snapshot  domain.WalletSnapshot `json:"snapshot"`
	Revision  uint64                `json:"revision"`
	FetchedAt time.Time             `json:"fetchedAt"`
}

// Cache holds at most one wallet snapshot.
type Cache struct {
	kv       kv.Store
	sessions SessionReader
	logger   *zap.Logger
	now      func() time.Time

	broadcaster *events.WalletBroadcaster
	snapshots   SnapshotLog

	// serializes revision bumps
	mu sync.Mutex
}

// Option configures a Cache.
type Option func(*Cache)

// WithBroadcaster publishes cache changes to b.
func WithBroadcaster(b *events.WalletBroadcaster) Option {
	return func(c *Cache) {
		c.broadcaster = b
	}
}

// WithSnapshotLog appends every accepted snapshot to log.
func WithSnapshotLog(log SnapshotLog) Option {
	return func(c *Cache) {
		c.snapshots = log
	}
}

// WithClock overrides the clock used for FetchedAt.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// NewCache creates a wallet cache over store gated on sessions.
func NewCache(store kv.Store, sessions SessionReader, logger *zap.Logger, opts ...Option) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Cache{kv: store, sessions: sessions, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Set replaces the cached wallet wholesale.
func (c *Cache) Set(ctx context.Context, snapshot domain.WalletSnapshot) (Entry, error) {
	payload, err := encodeSnapshot(snapshot)
	if err != nil {
		return Entry{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.write(ctx, snapshot, payload)
}

// SetForSession replaces the cached wallet only while token still belongs to
// the current session. A wallet fetched for a user who has since signed out,
// or been replaced by another login, is dropped with ErrSessionChanged.
// The check holds the lock Invalidate takes, so a write that passes it is
// removed by the invalidation following the next Establish or Clear.
func (c *Cache) SetForSession(ctx context.Context, token string, snapshot domain.WalletSnapshot) (Entry, error) {
	payload, err := encodeSnapshot(snapshot)
	if err != nil {
		return Entry{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	current, ok := c.sessions.Current(ctx)
	if !ok || token == "" || current.Token != token {
		c.logger.Debug("dropping wallet fetched under a previous session", zap.Int64("wallet_id", snapshot.WalletID))
		return Entry{}, ErrSessionChanged
	}
	return c.write(ctx, snapshot, payload)
}

func encodeSnapshot(snapshot domain.WalletSnapshot) ([]byte, error) {
	if err := snapshot.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid wallet snapshot")
	}
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return nil, errors.Wrap(err, "marshal wallet snapshot")
	}
	return payload, nil
}

// write must be called with mu held.
func (c *Cache) write(ctx context.Context, snapshot domain.WalletSnapshot, payload []byte) (Entry, error) {
	entry := Entry{
		Snapshot:  snapshot,
		Revision:  c.revision(ctx) + 1,
		FetchedAt: c.now().UTC(),
	}

	err := c.kv.SetMany(ctx, map[string]string{
		KeyWalletData:      string(payload),
		KeyWalletRevision:  strconv.FormatUint(entry.Revision, 10),
		KeyWalletFetchedAt: entry.FetchedAt.Format(time.RFC3339Nano),
	})
	if err != nil {
		return Entry{}, errors.Wrap(err, "persist wallet snapshot")
	}

	event := domain.NewWalletSnapshotEvent(entry.FetchedAt, entry.Revision, snapshot)
	if c.snapshots != nil {
		if _, err := c.snapshots.Save(event); err != nil {
			c.logger.Warn("failed to record wallet snapshot", zap.Error(err), zap.Int64("wallet_id", snapshot.WalletID))
		}
	}
	c.publish(events.WalletEvent{
		Kind:      events.WalletUpdated,
		Timestamp: entry.FetchedAt,
		Revision:  entry.Revision,
		Snapshot:  &event,
	})

	return entry, nil
}

// Get returns the cached snapshot. It reports absent when nobody is signed
// in, even if a value is still persisted.
func (c *Cache) Get(ctx context.Context) (domain.WalletSnapshot, bool) {
	entry, ok := c.Entry(ctx)
	if !ok {
		return domain.WalletSnapshot{}, false
	}
	return entry.Snapshot, true
}

// Entry returns the cached snapshot with its revision and fetch time.
func (c *Cache) Entry(ctx context.Context) (Entry, bool) {
	if _, ok := c.sessions.Current(ctx); !ok {
		return Entry{}, false
	}

	raw, ok := c.read(ctx, KeyWalletData)
	if !ok {
		return Entry{}, false
	}

	var snapshot domain.WalletSnapshot
	if err := json.Unmarshal([]byte(raw), &snapshot); err != nil {
		c.logger.Debug("discarding corrupt wallet cache", zap.Error(err))
		return Entry{}, false
	}
	if err := snapshot.Validate(); err != nil {
		c.logger.Debug("discarding invalid wallet cache", zap.Error(err))
		return Entry{}, false
	}

	entry := Entry{Snapshot: snapshot, Revision: c.revision(ctx)}
	if ts, ok := c.read(ctx, KeyWalletFetchedAt); ok {
		if parsed, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			entry.FetchedAt = parsed
		}
	}
	return entry, true
}

// Invalidate drops the cached snapshot. The revision counter is kept so
// revisions stay monotonic across logins.
func (c *Cache) Invalidate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.kv.Delete(ctx, KeyWalletData, KeyWalletFetchedAt); err != nil {
		return errors.Wrap(err, "delete wallet snapshot")
	}

	c.publish(events.WalletEvent{
		Kind:      events.WalletInvalidated,
		Timestamp: c.now().UTC(),
		Revision:  c.revision(ctx),
	})
	return nil
}

func (c *Cache) revision(ctx context.Context) uint64 {
	raw, ok := c.read(ctx, KeyWalletRevision)
	if !ok {
		return 0
	}
	rev, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		c.logger.Debug("resetting corrupt wallet revision", zap.String("value", raw))
		return 0
	}
	return rev
}

func (c *Cache) publish(e events.WalletEvent) {
	if c.broadcaster == nil {
		return
	}
	c.broadcaster.Publish(e)
}

func (c *Cache) read(ctx context.Context, key string) (string, bool) {
	v, ok, err := c.kv.Get(ctx, key)
	if err != nil {
		c.logger.Debug("wallet cache read failed", zap.String("key", key), zap.Error(err))
		return "", false
	}
	return v, ok
}
