package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/vadiminshakov/cobrand/internal/domain"
	"github.com/vadiminshakov/cobrand/internal/events"
)

const (
	snapshotPollInterval = 3 * time.Second
	heartbeatInterval    = 20 * time.Second
	replayKeepLast       = 100
)

// handleWalletStream replays the wallet history after Last-Event-ID, then
// streams new snapshots and invalidations. History records carry their log
// index as the event id so reconnecting clients resume where they left off.
func (s *Server) handleWalletStream(w http.ResponseWriter, r *http.Request) {
	if s.snapshots == nil && s.events == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, "wallet stream not available")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	var live chan events.WalletEvent
	if s.events != nil {
		live = s.events.Subscribe()
		defer s.events.Unsubscribe(live)
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	lastIndex := parseLastEventID(r.Header.Get("Last-Event-ID"), r.URL.Query().Get("last_event_id"))
	firstLoad := lastIndex == 0
	sendHistory := func() error {
		if s.snapshots == nil {
			return nil
		}
		records, err := s.snapshots.SnapshotsAfter(lastIndex)
		if err != nil {
			return err
		}
		if firstLoad {
			records = thinRecords(records)
			firstLoad = false
		}
		for _, record := range records {
			if err := writeEvent(w, strconv.FormatUint(record.Index, 10), "wallet", record.Event); err != nil {
				return err
			}
			lastIndex = record.Index
		}
		flusher.Flush()
		return nil
	}

	if err := sendHistory(); err != nil {
		http.Error(w, "failed to load wallet history", http.StatusInternalServerError)
		s.logger.Error("wallet stream initial load", zap.Error(err))
		return
	}
	if lastIndex == 0 {
		fmt.Fprint(w, "event: no_data\ndata: {}\n\n")
		flusher.Flush()
	}

	// without a history log live updates are the only source
	var poll <-chan time.Time
	if s.snapshots != nil {
		ticker := time.NewTicker(snapshotPollInterval)
		defer ticker.Stop()
		poll = ticker.C
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case <-poll:
			if err := sendHistory(); err != nil {
				s.logger.Warn("wallet stream poll", zap.Error(err))
			}
		case ev, ok := <-live:
			if !ok {
				return
			}
			if err := s.forward(w, ev, sendHistory); err != nil {
				s.logger.Warn("wallet stream write", zap.Error(err))
				return
			}
			flusher.Flush()
		}
	}
}

// forward relays a live event. Updates go through the history log when one
// is configured so ids stay log indexes.
func (s *Server) forward(w http.ResponseWriter, ev events.WalletEvent, sendHistory func() error) error {
	switch {
	case ev.Kind == events.WalletInvalidated:
		return writeEvent(w, "", "invalidated", ev)
	case s.snapshots != nil:
		return sendHistory()
	case ev.Snapshot != nil:
		return writeEvent(w, "", "wallet", ev.Snapshot)
	default:
		return nil
	}
}

func writeEvent(w http.ResponseWriter, id, name string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if id != "" {
		fmt.Fprintf(w, "id: %s\n", id)
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, payload)
	return err
}

// parseLastEventID reads the resume index from the Last-Event-ID header or,
// for manual reconnects, the last_event_id query parameter.
func parseLastEventID(headerVal, queryVal string) uint64 {
	idStr := strings.TrimSpace(headerVal)
	if idStr == "" {
		idStr = strings.TrimSpace(queryVal)
	}
	if idStr == "" {
		return 0
	}
	id, err := strconv.ParseUint(idStr, 10, 64)
	if err != nil {
		return 0
	}
	return id
}

// thinRecords keeps the last records intact and thins older history
// exponentially.
func thinRecords(records []domain.WalletSnapshotRecord) []domain.WalletSnapshotRecord {
	if len(records) <= replayKeepLast {
		return records
	}

	older := records[:len(records)-replayKeepLast]
	var thinned []domain.WalletSnapshotRecord
	skip := 1
	for i := len(older) - 1; i >= 0; i-- {
		thinned = append([]domain.WalletSnapshotRecord{older[i]}, thinned...)
		i -= skip
		if (len(older)-1-i)%12 == 0 {
			skip *= 2
		}
	}
	return append(thinned, records[len(records)-replayKeepLast:]...)
}
