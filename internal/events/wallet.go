// Package events fans wallet cache changes out to in-process listeners such
// as the dashboard stream.
package events

import (
	"sync"
	"time"

	"github.com/vadiminshakov/cobrand/internal/domain"
)

// WalletEventKind tells listeners what happened to the cached wallet.
type WalletEventKind string

const (
	WalletUpdated     WalletEventKind = "updated"
	WalletInvalidated WalletEventKind = "invalidated"
)

// WalletEvent is published on every cache change. Snapshot is nil for
// invalidations.
type WalletEvent struct {
	Kind      WalletEventKind             `json:"kind"`
	Timestamp time.Time                   `json:"ts"`
	Revision  uint64                      `json:"revision"`
	Snapshot  *domain.WalletSnapshotEvent `json:"snapshot,omitempty"`
}

// WalletBroadcaster fans out events to all subscribers via buffered channels.
type WalletBroadcaster struct {
	mu     sync.RWMutex
	subs   map[chan WalletEvent]struct{}
	buffer int
}

// NewWalletBroadcaster creates a broadcaster with the given per-subscriber buffer.
func NewWalletBroadcaster(buffer int) *WalletBroadcaster {
	if buffer < 1 {
		buffer = 64
	}
	return &WalletBroadcaster{
		subs:   make(map[chan WalletEvent]struct{}),
		buffer: buffer,
	}
}

// Publish sends the event to all subscribers, dropping it for slow readers.
func (b *WalletBroadcaster) Publish(e WalletEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Subscribe returns a channel that receives events until Unsubscribe is called.
func (b *WalletBroadcaster) Subscribe() chan WalletEvent {
	ch := make(chan WalletEvent, b.buffer)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes the channel and closes it.
func (b *WalletBroadcaster) Unsubscribe(ch chan WalletEvent) {
	b.mu.Lock()
	if _, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(ch)
	}
	b.mu.Unlock()
}

// Subscribers returns the number of active subscriptions.
func (b *WalletBroadcaster) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
