package domain

import "time"

// WalletSnapshotEvent wallet state recorded for the dashboard stream.
// Amounts are strings so UI layers never see float rounding.
type WalletSnapshotEvent struct {
	Timestamp time.Time `json:"ts"`
	Revision  uint64    `json:"revision"`
	WalletID  int64     `json:"walletId"`
	Balance   string    `json:"balance"`
	Currency  string    `json:"currency"`
	Status    string    `json:"status"`
}

// NewWalletSnapshotEvent creates an event for snapshot at revision.
func NewWalletSnapshotEvent(ts time.Time, revision uint64, snapshot WalletSnapshot) WalletSnapshotEvent {
	return WalletSnapshotEvent{
		Timestamp: ts,
		Revision:  revision,
		WalletID:  snapshot.WalletID,
		Balance:   snapshot.CurrentBalance.String(),
		Currency:  snapshot.Currency,
		Status:    snapshot.Status,
	}
}

// WalletSnapshotRecord bundles an event with the log index it was stored at.
type WalletSnapshotRecord struct {
	Index uint64
	Event WalletSnapshotEvent
}
