package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/brojonat/bankd/service/bank"
	"github.com/brojonat/bankd/service/events"
	"github.com/brojonat/bankd/service/metrics"
)

// handleStreamAccount handles SSE streaming of an account's new
// transactions. GET /api/v1/stream/accounts/{name}
//
// The stream is fed by a monitor cursor on the account, so every
// subscriber sees every transaction from the moment it connected, in
// order, with no polling involved.
func handleStreamAccount(ledger *bank.Ledger, m *metrics.Metrics, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := r.PathValue("name")
		if name == "" {
			http.Error(w, "account name is required", http.StatusBadRequest)
			return
		}

		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming unsupported", http.StatusInternalServerError)
			return
		}

		account := ledger.GetOrCreateAccount(name)
		cursor := account.Monitor()

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		flusher.Flush()

		logger.Debug("SSE client connected",
			"account", name,
			"remote_addr", r.RemoteAddr,
		)
		if m != nil {
			m.RecordSSEConnectionChange(name, 1)
			defer m.RecordSSEConnectionChange(name, -1)
		}

		// Feed cursor reads through a channel so the write loop can
		// multiplex them with keepalives and disconnection.
		txChan := make(chan bank.Transaction)
		go func() {
			defer close(txChan)
			for {
				tx, err := cursor.Next(r.Context())
				if err != nil {
					return
				}
				select {
				case txChan <- tx:
				case <-r.Context().Done():
					return
				}
			}
		}()

		fmt.Fprintf(w, "event: connected\ndata: {\"account\":%q}\n\n", name)
		flusher.Flush()
		if m != nil {
			m.RecordSSEEventSent(name, "connected")
		}

		keepalive := time.NewTicker(10 * time.Second)
		defer keepalive.Stop()

		for {
			select {
			case <-keepalive.C:
				fmt.Fprintf(w, ": keepalive\n\n")
				flusher.Flush()

			case tx, ok := <-txChan:
				if !ok {
					return
				}
				data, err := json.Marshal(events.FromTransaction(name, tx))
				if err != nil {
					logger.Warn("failed to marshal transfer event", "error", err)
					continue
				}
				fmt.Fprintf(w, "event: transaction\ndata: %s\n\n", data)
				flusher.Flush()
				if m != nil {
					m.RecordSSEEventSent(name, "transaction")
				}

			case <-r.Context().Done():
				logger.Debug("SSE client disconnected",
					"account", name,
					"remote_addr", r.RemoteAddr,
				)
				return
			}
		}
	})
}
