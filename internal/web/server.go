// Package web serves the wallet dashboard: a JSON API in front of the cobrand
// client plus a server-sent event stream of wallet changes.
package web

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/crypto/acme/autocert"

	"github.com/vadiminshakov/cobrand/internal/domain"
	"github.com/vadiminshakov/cobrand/internal/events"
	"github.com/vadiminshakov/cobrand/internal/wallet"
)

const shutdownTimeout = 5 * time.Second

// Backend is the client the dashboard drives.
type Backend interface {
	Login(ctx context.Context, creds domain.Credentials, tenant string) (domain.Session, error)
	Logout(ctx context.Context)
	Session(ctx context.Context) (domain.Session, bool)
	Wallet(ctx context.Context) (wallet.Entry, bool)
	RefreshWallet(ctx context.Context) (wallet.Entry, error)
	TopUp(ctx context.Context, req domain.TopUpRequest) (domain.TopUpResult, error)
	Transfer(ctx context.Context, req domain.TransferRequest) (domain.TransferResult, error)
	Transactions(ctx context.Context, filter domain.TransactionFilter) (domain.TransactionPage, error)
}

type snapshotReader interface {
	SnapshotsAfter(index uint64) ([]domain.WalletSnapshotRecord, error)
}

// Server exposes the dashboard endpoints.
type Server struct {
	Addr string

	backend   Backend
	snapshots snapshotReader
	events    *events.WalletBroadcaster
	registry  prometheus.Gatherer
	logger    *zap.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithSnapshots replays wallet history from r on stream connect.
func WithSnapshots(r snapshotReader) Option {
	return func(s *Server) {
		s.snapshots = r
	}
}

// WithEvents forwards live wallet changes from b to stream clients.
func WithEvents(b *events.WalletBroadcaster) Option {
	return func(s *Server) {
		s.events = b
	}
}

// WithMetrics serves g on /metrics.
func WithMetrics(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.registry = g
	}
}

// NewServer creates a dashboard server for backend.
func NewServer(addr string, backend Backend, logger *zap.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{Addr: addr, backend: backend, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the dashboard routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("POST /login", s.handleLogin)
	mux.HandleFunc("POST /logout", s.handleLogout)
	mux.HandleFunc("GET /session", s.handleSession)
	mux.HandleFunc("GET /wallet", s.handleWallet)
	mux.HandleFunc("POST /wallet/refresh", s.handleRefresh)
	mux.HandleFunc("POST /wallet/topup", s.handleTopUp)
	mux.HandleFunc("POST /wallet/transfer", s.handleTransfer)
	mux.HandleFunc("GET /wallet/transactions", s.handleTransactions)
	mux.HandleFunc("GET /wallet/stream", s.handleWalletStream)
	if s.registry != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	}
	return mux
}

// Start runs the HTTP server (blocking) and shuts it down when ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	server := s.newHTTPServer(s.Addr, s.Handler())
	go s.shutdownOnDone(ctx, server)

	s.logger.Info("dashboard listening", zap.String("addr", s.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// StartWithAutoTLS runs an HTTPS server with ACME certificates for domains.
// An HTTP server on :80 answers the HTTP-01 challenges.
func (s *Server) StartWithAutoTLS(ctx context.Context, domains []string, cacheDir string) error {
	if len(domains) == 0 {
		return fmt.Errorf("no domains provided for automatic TLS")
	}
	if cacheDir == "" {
		cacheDir = "cert-cache"
	}

	manager := &autocert.Manager{
		Prompt:     autocert.AcceptTOS,
		HostPolicy: autocert.HostWhitelist(domains...),
		Cache:      autocert.DirCache(cacheDir),
	}

	httpSrv := s.newHTTPServer(":80", manager.HTTPHandler(nil))
	httpsSrv := s.newHTTPServer(s.Addr, s.Handler())
	httpsSrv.TLSConfig = manager.TLSConfig()
	httpsSrv.TLSConfig.MinVersion = tls.VersionTLS12

	go s.shutdownOnDone(ctx, httpSrv, httpsSrv)
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("acme http server failed", zap.Error(err))
		}
	}()

	s.logger.Info("dashboard listening with tls", zap.String("addr", s.Addr), zap.Strings("domains", domains))
	if err := httpsSrv.ListenAndServeTLS("", ""); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) newHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

func (s *Server) shutdownOnDone(ctx context.Context, servers ...*http.Server) {
	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Warn("server shutdown", zap.String("addr", srv.Addr), zap.Error(err))
		}
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, indexHTML)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
