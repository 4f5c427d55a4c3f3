package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/NYTimes/gziphandler"
	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/levenlabs/go-lflag"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/raterudder/luminus/pkg/common"
	"github.com/raterudder/luminus/pkg/log"
	"github.com/raterudder/luminus/pkg/luminus"
	"github.com/raterudder/luminus/pkg/storage"
	"github.com/raterudder/luminus/pkg/types"
	"github.com/robfig/cron/v3"
)

// PricingClient is what the server needs from a Luminus client.
type PricingClient interface {
	ListMeters(ctx context.Context) ([]types.Meter, error)
	GetMeterPricing(ctx context.Context, ean string) (types.PriceDocument, error)
	Logout(ctx context.Context) error
	Authenticated() bool
}

var _ PricingClient = (*luminus.Client)(nil)

// Server exposes the Luminus client and the stored price history over HTTP.
type Server struct {
	client  PricingClient
	storage storage.Database

	listenAddr string
	httpServer *http.Server
	serverName string

	adminEmails    []string
	oidcAudience   string
	tokenValidator tokenValidator
	bypassAuth     bool

	updateSchedule string
	updateMu       sync.Mutex
	now            func() time.Time
}

// Configured initializes the Server with dependencies.
// It uses lflag to register command-line flags for configuration.
func Configured(c PricingClient, s storage.Database) *Server {
	srv := &Server{
		client:     c,
		storage:    s,
		serverName: "luminus",
		now:        time.Now,
	}
	revision := os.Getenv("K_REVISION")
	if revision != "" {
		srv.serverName = revision
	}

	// get the port from PORT when running in cloud run
	port := os.Getenv("PORT")
	if port == "" {
		// otherwise default to 8080
		port = "8080"
	}

	listenAddr := lflag.String("http-listen", ":"+port, "HTTP server listen address")
	adminEmails := lflag.String("admin-emails", "", "comma-delimited list of email addresses allowed to use the API")
	oidcAudience := lflag.String("oidc-audience", "", "audience to validate id tokens against, auth is disabled when empty")
	oidcIssuer := lflag.String("oidc-issuer", "", "OIDC issuer to accept id tokens from instead of Google")
	updateSchedule := lflag.String("update-schedule", "", "cron spec for taking price snapshots (e.g. @hourly), disabled when empty")

	lflag.Do(func() {
		srv.listenAddr = *listenAddr
		srv.adminEmails = splitEmails(*adminEmails)
		srv.oidcAudience = *oidcAudience

		if *updateSchedule != "" {
			if _, err := cron.ParseStandard(*updateSchedule); err != nil {
				panic(fmt.Sprintf("invalid update-schedule (%s): %v", *updateSchedule, err))
			}
			srv.updateSchedule = *updateSchedule
		}

		if srv.oidcAudience == "" {
			srv.bypassAuth = true
			return
		}
		if len(srv.adminEmails) == 0 {
			log.Ctx(context.Background()).Warn("oidc-audience is set without admin-emails, every API request will be forbidden")
		}
		if *oidcIssuer == "" {
			srv.tokenValidator = googleValidator(srv.oidcAudience)
			return
		}
		ctx := oidc.ClientContext(context.Background(), common.HTTPClient(time.Minute))
		provider, err := oidc.NewProvider(ctx, *oidcIssuer)
		if err != nil {
			log.Ctx(ctx).Error("failed to initialize OIDC provider", slog.String("issuer", *oidcIssuer), slog.Any("error", err))
			os.Exit(1)
		}
		srv.tokenValidator = oidcValidator(provider.Verifier(&oidc.Config{ClientID: srv.oidcAudience}))
	})

	return srv
}

func splitEmails(raw string) []string {
	if raw == "" {
		return nil
	}
	var emails []string
	for _, email := range strings.Split(raw, ",") {
		if email = strings.TrimSpace(email); email != "" {
			emails = append(emails, email)
		}
	}
	return emails
}

func (s *Server) setupHandler() http.Handler {
	apiMux := http.NewServeMux()
	apiMux.HandleFunc("GET /api/status", s.handleStatus)
	apiMux.HandleFunc("GET /api/meters", s.handleListMeters)
	apiMux.HandleFunc("GET /api/meters/{ean}/pricing", s.handleMeterPricing)
	apiMux.HandleFunc("GET /api/meters/{ean}/pricing/latest", s.handleLatestPricing)
	apiMux.HandleFunc("GET /api/history/prices", s.handleHistoryPrices)
	apiMux.HandleFunc("POST /api/update", s.handleUpdate)

	mux := http.NewServeMux()
	mux.Handle("/api/", s.authMiddleware(apiMux))
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.Handle("/metrics", promhttp.Handler())
	return s.revisionMiddleware(s.requestIDMiddleware(gziphandler.GzipHandler(s.securityHeadersMiddleware(mux))))
}

// Run starts the HTTP server and blocks until the context is canceled or an error occurs.
// It also handles graceful shutdown when the context is done.
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         s.listenAddr,
		Handler:      s.setupHandler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  15 * time.Second,
	}

	scheduler, err := s.startScheduler(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if scheduler != nil {
			<-scheduler.Stop().Done()
		}
		s.logout()
	}()

	// use a channel to capturing server errors
	errChan := make(chan error, 1)
	go func() {
		defer close(errChan)
		log.Ctx(ctx).InfoContext(ctx, "starting server", slog.String("addr", s.listenAddr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		// Context canceled, shut down gracefully
		log.Ctx(ctx).InfoContext(ctx, "shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	}
}

// logout ends the remote session so it does not linger after we exit.
func (s *Server) logout() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.client.Logout(ctx); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to log out of luminus", slog.Any("error", err))
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		panic(http.ErrAbortHandler)
	}
}

func writeJSONError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(struct {
		Error string `json:"error"`
	}{Error: msg}); err != nil {
		slog.Warn("failed to write error response", slog.Any("error", err))
		panic(http.ErrAbortHandler)
	}
}

// writeClientError maps an error from the Luminus client onto a status code.
func writeClientError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, luminus.ErrNotFound):
		writeJSONError(w, "meter not found", http.StatusNotFound)
	case luminus.IsAuthError(err):
		log.Ctx(ctx).ErrorContext(ctx, "luminus login rejected", slog.Any("error", err))
		writeJSONError(w, "luminus login rejected", http.StatusBadGateway)
	case luminus.IsTimeout(err):
		log.Ctx(ctx).WarnContext(ctx, "luminus timed out", slog.Any("error", err))
		writeJSONError(w, "luminus timed out", http.StatusGatewayTimeout)
	default:
		log.Ctx(ctx).WarnContext(ctx, "luminus request failed", slog.Any("error", err))
		writeJSONError(w, "luminus unavailable", http.StatusServiceUnavailable)
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("ok")); err != nil {
		panic(http.ErrAbortHandler)
	}
}

type statusResponse struct {
	Authenticated bool   `json:"authenticated"`
	Version       string `json:"version"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, statusResponse{
		Authenticated: s.client.Authenticated(),
		Version:       common.Version(),
	})
}

func (s *Server) revisionMiddleware(next http.Handler) http.Handler {
	if s.serverName == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", s.serverName)
		next.ServeHTTP(w, r)
	})
}
