package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/brojonat/bankd/service/bank"
	"github.com/brojonat/bankd/service/events"
	"github.com/brojonat/bankd/service/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server serves the bank text protocol over TCP and a small HTTP
// surface (health, Prometheus metrics, SSE transaction streaming).
type Server struct {
	bankAddr string
	httpAddr string
	ledger   *bank.Ledger
	// publisher is optional - if nil, transfer events are not published.
	publisher events.Publisher
	// metrics is optional - if nil, no metrics are recorded and the
	// /metrics endpoint is disabled.
	metrics *metrics.Metrics
	logger  *slog.Logger

	ln         net.Listener
	httpServer *http.Server

	ctx     context.Context
	cancel  context.CancelFunc
	closing sync.Once
	wg      sync.WaitGroup

	mu    sync.Mutex
	conns map[net.Conn]struct{}
}

// New creates a server with the given dependencies. The ledger is shared
// mutable state: every session goroutine operates on it concurrently.
func New(bankAddr, httpAddr string, ledger *bank.Ledger, publisher events.Publisher, m *metrics.Metrics, logger *slog.Logger) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		bankAddr:  bankAddr,
		httpAddr:  httpAddr,
		ledger:    ledger,
		publisher: publisher,
		metrics:   m,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
		conns:     make(map[net.Conn]struct{}),
	}
}

// Listen binds the TCP listener and returns the bound port. The
// configured address may use port 0; the returned port is the real one,
// which the caller can write to a port file.
func (s *Server) Listen() (int, error) {
	ln, err := net.Listen("tcp", s.bankAddr)
	if err != nil {
		return 0, fmt.Errorf("failed to listen on %s: %w", s.bankAddr, err)
	}
	s.ln = ln
	port := ln.Addr().(*net.TCPAddr).Port
	s.logger.Info("listening", "addr", ln.Addr().String())
	return port, nil
}

// Serve runs the accept loop and the HTTP listener until Shutdown. It
// must be called after Listen.
func (s *Server) Serve() error {
	if s.ln == nil {
		return fmt.Errorf("Serve called before Listen")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	if s.metrics != nil {
		mux.Handle("GET /metrics", promhttp.Handler())
		s.logger.Info("Prometheus metrics endpoint enabled")
	}
	streamMiddleware := metrics.HTTPMetricsMiddleware(s.metrics, "/api/v1/stream/accounts")
	mux.Handle("GET /api/v1/stream/accounts/{name}", streamMiddleware(handleStreamAccount(s.ledger, s.metrics, s.logger)))

	s.httpServer = &http.Server{
		Addr:        s.httpAddr,
		Handler:     mux,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	httpErrors := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", s.httpAddr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			httpErrors <- err
		}
	}()

	for {
		conn, err := s.ln.Accept()
		if err != nil {
			select {
			case <-s.ctx.Done():
				// Shutdown closed the listener.
				return nil
			case herr := <-httpErrors:
				return fmt.Errorf("http server failed: %w", herr)
			default:
			}
			return fmt.Errorf("accept failed: %w", err)
		}

		s.trackConn(conn, true)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.trackConn(conn, false)
			s.handleConn(s.ctx, conn)
		}()
	}
}

// Shutdown stops accepting connections, cancels every in-flight session
// (including blocked monitor streams) and waits for them to drain, then
// shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")

	s.closing.Do(func() {
		s.cancel()
		if s.ln != nil {
			s.ln.Close()
		}
		// Sessions blocked reading from their socket are only freed by
		// closing it; ctx cancellation covers the ones blocked on a
		// cursor wait.
		s.mu.Lock()
		for conn := range s.conns {
			conn.Close()
		}
		s.mu.Unlock()
	})

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

func (s *Server) trackConn(conn net.Conn, add bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		s.conns[conn] = struct{}{}
	} else {
		delete(s.conns, conn)
	}
}
