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
	"time"

	"github.com/NYTimes/gziphandler"
	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/levenlabs/go-lflag"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/semaphore"
	"google.golang.org/api/idtoken"

	"github.com/gridplan/gridplan/pkg/common"
	"github.com/gridplan/gridplan/pkg/log"
	"github.com/gridplan/gridplan/pkg/storage"
	"github.com/gridplan/gridplan/pkg/types"
)

type contextKey string

const userContextKey contextKey = "user"

// tokenVerifier validates an ID token issued by an OIDC provider.
type tokenVerifier func(ctx context.Context, rawIDToken string) (*oidc.IDToken, error)

// tokenValidator validates a Google-signed ID token for a fixed audience.
// It matches idtoken.Validate.
type tokenValidator func(ctx context.Context, token, audience string) (*idtoken.Payload, error)

// Runner plans a scenario and returns the run record. *planner.Planner
// satisfies it.
type Runner interface {
	Run(ctx context.Context, sc types.Scenario) (types.Run, error)
}

// Server exposes planning runs over HTTP.
type Server struct {
	runner   Runner
	storage  storage.Database
	gatherer prometheus.Gatherer
	slots    *semaphore.Weighted

	listenAddr string
	httpServer *http.Server

	adminEmails     []string
	viewerDomains   []string
	oidcVerifiers   map[string]tokenVerifier
	tokenValidator  tokenValidator
	serviceAudience string
	bypassAuth      bool
	serverName      string
	runTimeout      time.Duration
	maxBodyBytes    int64
}

// Configured initializes the Server with dependencies.
// It uses lflag to register command-line flags for configuration.
func Configured(runner Runner, s storage.Database) *Server {
	srv := &Server{
		runner:       runner,
		storage:      s,
		gatherer:     prometheus.DefaultGatherer,
		serverName:   common.UserAgent(),
		maxBodyBytes: 1 << 20,
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
	adminEmails := lflag.String("admin-emails", "", "comma-delimited list of email addresses allowed to submit runs")
	viewerDomains := lflag.String("viewer-domains", "", "comma-delimited list of email domains allowed to read runs")
	oidcIssuers := map[string]string{}
	lflag.JSON(&oidcIssuers, "oidc-issuers", oidcIssuers, "JSON map of OIDC issuer URL to client ID")
	serviceAudience := lflag.String("service-audience", "", "audience of Google-signed service account ID tokens")
	concurrentRuns := 1
	lflag.JSON(&concurrentRuns, "concurrent-runs", concurrentRuns, "number of planning runs solved at once")
	runTimeout := lflag.Duration("run-timeout", 10*time.Minute, "maximum duration of one planning run")
	dev := lflag.Bool("dev", false, "allow unauthenticated access when no auth is configured")

	lflag.Do(func() {
		srv.listenAddr = *listenAddr
		srv.adminEmails = splitList(*adminEmails)
		srv.viewerDomains = splitList(*viewerDomains)
		if len(oidcIssuers) > 0 {
			srv.oidcVerifiers = make(map[string]tokenVerifier, len(oidcIssuers))
			for issuer, clientID := range oidcIssuers {
				provider, err := oidc.NewProvider(context.Background(), issuer)
				if err != nil {
					log.Ctx(context.Background()).Error("failed to initialize OIDC provider", slog.String("issuer", issuer), slog.Any("error", err))
					os.Exit(1)
				}
				srv.oidcVerifiers[issuer] = provider.Verifier(&oidc.Config{ClientID: clientID}).Verify
			}
		}
		if *serviceAudience != "" {
			srv.serviceAudience = *serviceAudience
			srv.tokenValidator = idtoken.Validate
		}
		if concurrentRuns < 1 {
			panic(fmt.Sprintf("concurrent-runs must be positive, got %d", concurrentRuns))
		}
		srv.slots = semaphore.NewWeighted(int64(concurrentRuns))
		srv.runTimeout = *runTimeout

		if *dev && len(srv.oidcVerifiers) == 0 && srv.tokenValidator == nil && len(srv.adminEmails) == 0 {
			srv.bypassAuth = true
		}
	})

	return srv
}

func splitList(s string) []string {
	var out []string
	for _, v := range strings.Split(s, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func (s *Server) setupHandler() http.Handler {
	apiMux := http.NewServeMux()
	apiMux.HandleFunc("POST /api/runs", s.handleCreateRun)
	apiMux.HandleFunc("GET /api/runs", s.handleListRuns)
	apiMux.HandleFunc("GET /api/runs/{id}", s.handleGetRun)
	apiMux.HandleFunc("GET /api/runs/{id}/{table}", s.handleRunTable)
	apiMux.HandleFunc("GET /api/auth/status", s.handleAuthStatus)

	mux := http.NewServeMux()
	mux.Handle("/api/", s.authMiddleware(apiMux))
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", s.handleHealthz)
	return s.revisionMiddleware(gziphandler.GzipHandler(s.securityHeadersMiddleware(mux)))
}

func (s *Server) getUser(r *http.Request) user {
	if u, ok := r.Context().Value(userContextKey).(user); ok {
		return u
	}
	return user{}
}

// Run starts the HTTP server and blocks until the context is canceled or an error occurs.
// It also handles graceful shutdown when the context is done.
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:        s.listenAddr,
		Handler:     s.setupHandler(),
		ReadTimeout: 15 * time.Second,
		// runs are solved inside the request
		WriteTimeout: s.runTimeout + 30*time.Second,
		IdleTimeout:  15 * time.Second,
	}

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

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to write response", slog.Any("error", err))
		panic(http.ErrAbortHandler)
	}
}

func writeJSONError(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, struct {
		Error string `json:"error"`
	}{Error: msg})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("ok")); err != nil {
		panic(http.ErrAbortHandler)
	}
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
