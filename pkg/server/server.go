// Package server exposes the VIN ledger over HTTP: the contribution
// surface under /api/collecte/ plus health.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/autoverif/vinledger/pkg/chain"
	"github.com/autoverif/vinledger/pkg/ingest"
	"github.com/autoverif/vinledger/pkg/lookup"
	"github.com/autoverif/vinledger/pkg/observability"
	"github.com/autoverif/vinledger/pkg/registry"
	"github.com/autoverif/vinledger/pkg/store"
	"github.com/autoverif/vinledger/pkg/submission"
	"github.com/autoverif/vinledger/pkg/uploads"
	"github.com/autoverif/vinledger/pkg/vin"
)

// Server wires the HTTP surface to the services.
type Server struct {
	store    *store.Store
	decoder  vin.Decoder
	registry *registry.Registry
	submit   *submission.Service
	ingestor *ingest.Ingestor
	lookup   *lookup.Service
	chain    *chain.Chain
	uploads  uploads.Store
	obs      *observability.Provider
}

// New builds a Server over its collaborators. obs may be nil.
func New(s *store.Store, d vin.Decoder, r *registry.Registry,
	svc *submission.Service, ing *ingest.Ingestor, l *lookup.Service,
	c *chain.Chain, up uploads.Store, obs *observability.Provider) *Server {
	return &Server{
		store: s, decoder: d, registry: r, submit: svc,
		ingestor: ing, lookup: l, chain: c, uploads: up, obs: obs,
	}
}

// Handler builds the routed handler with CORS and, when configured,
// telemetry middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/collecte/vin-check/", s.handleVINCheck)
	mux.HandleFunc("/api/collecte/submit", s.handleSubmit)
	mux.HandleFunc("/api/collecte/batch", s.handleBatch)
	mux.HandleFunc("/api/collecte/import-csv", s.handleImportCSV)
	mux.HandleFunc("/api/collecte/upload", s.handleUpload)
	mux.HandleFunc("/api/collecte/stats", s.handleStats)
	mux.HandleFunc("/api/collecte/verify", s.handleVerifyAll)
	mux.HandleFunc("/api/collecte/verify/", s.handleVerifyOne)
	mux.HandleFunc("/api/collecte/lookup/", s.handleLookup)
	mux.HandleFunc("/api/collecte/templates", s.handleTemplateList)
	mux.HandleFunc("/api/collecte/templates/", s.handleTemplateDownload)
	mux.HandleFunc("/api/health", s.handleHealth)

	var h http.Handler = corsMiddleware(mux)
	if s.obs != nil {
		h = s.obs.Middleware(h)
	}
	return h
}

// Start runs the HTTP server until ctx is cancelled.
func (s *Server) Start(ctx context.Context, port string) error {
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	}
}

// corsMiddleware applies the permissive CORS policy to /api/*.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP extracts the caller address, honoring X-Forwarded-For from
// a fronting proxy.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return strings.TrimSpace(fwd)
	}
	host := r.RemoteAddr
	if i := strings.LastIndexByte(host, ':'); i >= 0 {
		host = host[:i]
	}
	return host
}

// pathTail returns the path segment after prefix, or "" when absent.
func pathTail(path, prefix string) string {
	tail := strings.TrimPrefix(path, prefix)
	if tail == path || tail == "" || strings.Contains(tail, "/") {
		return ""
	}
	return tail
}
