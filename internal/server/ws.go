package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/axescan/axescan/internal/logging"
	"github.com/axescan/axescan/internal/store"
)

// wsPollInterval is how often the status stream re-reads the scan record.
const wsPollInterval = 500 * time.Millisecond

// handleScanWS streams scan status snapshots until the scan reaches a
// terminal state or the client disconnects. The store is the source of
// truth; the stream is a convenience over polling GET /scans/{scanID}.
func (s *Server) handleScanWS(w http.ResponseWriter, r *http.Request) {
	scanID := chi.URLParam(r, "scanID")

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("upgrading to websocket", logging.Field{Key: "error", Value: err.Error()})
		return
	}
	defer conn.Close()

	ctx := r.Context()
	ticker := time.NewTicker(wsPollInterval)
	defer ticker.Stop()

	var lastStatus string
	for {
		scan, err := s.orchestrator.Get(ctx, scanID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				_ = conn.WriteJSON(map[string]string{"error": "scan not found"})
			} else {
				_ = conn.WriteJSON(map[string]string{"error": err.Error()})
			}
			return
		}

		if string(scan.Status) != lastStatus {
			lastStatus = string(scan.Status)
			if err := conn.WriteJSON(scan); err != nil {
				// Client disconnected.
				return
			}
		}
		if scan.Status.Terminal() {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
