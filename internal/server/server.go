package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"tierstore/internal/auth"
	"tierstore/internal/blobstore"
	"tierstore/internal/config"
	"tierstore/internal/store"
)

const (
	allowRemoteEnvKey   = "TIERSTORE_ALLOW_REMOTE"
	adminTokenHeader    = "X-Admin-Token"
	metricsNamespace    = "tierstore"
	readHeaderTimeout   = 5 * time.Second
	readTimeout         = 5 * time.Minute
	writeTimeout        = 5 * time.Minute
	idleTimeout         = 60 * time.Second
	shutdownTimeout     = 10 * time.Second
	defaultJanitorEvery = 24 * time.Hour
)

// Options tunes a Server beyond its required collaborators.
type Options struct {
	// Registry receives the server metrics. A fresh registry is used when nil.
	Registry *prometheus.Registry
	// ObjectStoreFactory replaces the S3 client constructor.
	ObjectStoreFactory ObjectStoreFactory
	// JanitorInterval is how often the cache is swept in the background.
	// Zero uses a daily sweep; a negative value disables it.
	JanitorInterval time.Duration
}

// Server wraps HTTP handlers for the tierstore API.
type Server struct {
	addr            string
	store           *store.Store
	cfg             *config.Config
	attachments     *AttachmentService
	settings        *SettingsService
	logger          *slog.Logger
	adminTokenHash  string
	registry        *prometheus.Registry
	requests        *prometheus.CounterVec
	tokenLimiter    *tokenFailureLimiter
	janitorInterval time.Duration
}

// New creates a new server instance.
func New(addr string, st *store.Store, cfg *config.Config, logger *slog.Logger, opts Options) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg == nil {
		defaults := config.Default()
		cfg = &defaults
	}
	registry := opts.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "http_requests_total",
		Help:      "HTTP requests by route and status class",
	}, []string{"route", "code"})
	registry.MustRegister(requests)

	metrics := blobstore.NewPromMetrics(metricsNamespace, registry)
	attachments := NewAttachmentService(st, st, cfg, ServiceOptions{
		Logger:             logger,
		Metrics:            metrics,
		ObjectStoreFactory: opts.ObjectStoreFactory,
	})

	interval := opts.JanitorInterval
	if interval == 0 {
		interval = defaultJanitorEvery
	}

	return &Server{
		addr:            addr,
		store:           st,
		cfg:             cfg,
		attachments:     attachments,
		settings:        NewSettingsService(st, cfg),
		logger:          logger,
		adminTokenHash:  strings.TrimSpace(cfg.Admin.TokenHash),
		registry:        registry,
		requests:        requests,
		tokenLimiter:    newTokenFailureLimiter(adminTokenMaxFailures, adminTokenWindow, adminTokenBlockFor),
		janitorInterval: interval,
	}
}

// Attachments returns the attachment service backing the server.
func (s *Server) Attachments() *AttachmentService {
	return s.attachments
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.withAuth(s.withRequestLogging(s.routes()))
}

// ListenAndServe starts the HTTP server and the cache janitor. It returns
// when ctx is cancelled or the listener fails.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.log().Info("starting server", "addr", s.addr)
	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}

	janitorCtx, stopJanitor := context.WithCancel(ctx)
	defer stopJanitor()
	go s.runCacheJanitor(janitorCtx)

	errCh := make(chan error, 1)
	go func() { errCh <- server.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

// runCacheJanitor sweeps cache files untouched for a day on every tick.
func (s *Server) runCacheJanitor(ctx context.Context) {
	if s.janitorInterval < 0 {
		return
	}
	ticker := time.NewTicker(s.janitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.attachments.CacheGC(ctx, DefaultCacheGCHours); err != nil {
				s.log().Warn("scheduled cache sweep failed", "error", err)
			}
		}
	}
}

// withAuth resolves the admin capability from X-Admin-Token. Admin and
// settings routes are refused without it; other routes pass through.
func (s *Server) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimSpace(r.Header.Get(adminTokenHeader))
		admin := false
		if token != "" {
			client := requestClientIP(r)
			now := time.Now()
			if !s.tokenLimiter.Allow(client, now) {
				err := apiError{
					status:  http.StatusTooManyRequests,
					code:    "resource_exhausted",
					errCode: ErrCodeResourceExhausted,
					err:     fmt.Errorf("too many invalid admin tokens"),
				}
				s.writeErrorReq(w, r, http.StatusTooManyRequests, err)
				return
			}
			admin = auth.VerifyToken(s.adminTokenHash, token)
			if admin {
				s.tokenLimiter.Reset(client)
				r = r.WithContext(contextWithAuthPrincipal(r.Context(), authPrincipal{AuthType: authTypeAdminToken, Admin: true}))
			} else {
				s.tokenLimiter.Fail(client, now)
			}
		}

		if requiresAdmin(r.URL.Path) && !admin {
			err := fmt.Errorf("admin token required")
			if s.adminTokenHash == "" {
				err = fmt.Errorf("admin token is not configured; set admin.token_hash")
			}
			s.writeErrorReq(w, r, http.StatusForbidden, forbidden(err))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func requiresAdmin(path string) bool {
	return path == "/v1/settings" ||
		strings.HasPrefix(path, "/v1/settings/") ||
		strings.HasPrefix(path, "/v1/admin/")
}

// ListenAddr converts a base API URL into a listen address.
func ListenAddr(apiURL string) (string, error) {
	if apiURL == "" {
		return "", fmt.Errorf("api url is required")
	}
	if u, err := url.Parse(apiURL); err == nil && u.Host != "" {
		host := u.Hostname()
		if !isAllowedListenHost(host) {
			return "", fmt.Errorf("remote listen host %q requires %s=true", host, allowRemoteEnvKey)
		}
		return u.Host, nil
	}

	host, _, err := net.SplitHostPort(apiURL)
	if err == nil && !isAllowedListenHost(host) {
		return "", fmt.Errorf("remote listen host %q requires %s=true", host, allowRemoteEnvKey)
	}

	return apiURL, nil
}

func isAllowedListenHost(host string) bool {
	if host == "" {
		return true
	}
	if strings.EqualFold(strings.TrimSpace(os.Getenv(allowRemoteEnvKey)), "true") {
		return true
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func (s *Server) log() *slog.Logger {
	if s != nil && s.logger != nil {
		return s.logger
	}
	return slog.Default()
}
