package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"postboard/internal/config"
	"postboard/internal/page"
	"postboard/internal/store"
)

const (
	allowRemoteEnvKey = "POSTBOARD_ALLOW_REMOTE"
	readHeaderTimeout = 5 * time.Second
	readTimeout       = 30 * time.Second
	writeTimeout      = 60 * time.Second
	idleTimeout       = 60 * time.Second
)

// FormOptions bounds multipart submissions.
type FormOptions struct {
	MaxUploadBytes int64
	MaxFieldBytes  int64
}

// Server wraps HTTP handlers for the blog.
type Server struct {
	addr        string
	store       store.PostStore
	submissions *SubmissionService
	renderer    *page.Renderer
	forms       FormOptions
	logger      *slog.Logger

	mu         sync.Mutex
	httpServer *http.Server
	closed     bool
}

// New creates a new server instance.
func New(addr string, postStore store.PostStore, fetcher AvatarFetcher, renderer *page.Renderer, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{
		addr:        addr,
		store:       postStore,
		submissions: NewSubmissionService(postStore, fetcher, logger),
		renderer:    renderer,
		forms: FormOptions{
			MaxUploadBytes: config.DefaultFormMaxUploadBytes,
			MaxFieldBytes:  config.DefaultFormMaxFieldBytes,
		},
		logger: logger,
	}
}

// ConfigureFormOptions overrides multipart limits. Non-positive values keep defaults.
func (s *Server) ConfigureFormOptions(opts FormOptions) {
	if opts.MaxUploadBytes > 0 {
		s.forms.MaxUploadBytes = opts.MaxUploadBytes
	}
	if opts.MaxFieldBytes > 0 {
		s.forms.MaxFieldBytes = opts.MaxFieldBytes
	}
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.withRequestLogging(s.routes())
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return http.ErrServerClosed
	}
	hs := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}
	s.httpServer = hs
	s.mu.Unlock()

	s.log().Info("starting server", "addr", s.addr)
	return hs.ListenAndServe()
}

// Shutdown gracefully stops a server started with ListenAndServe.
// Calling it before ListenAndServe makes the later call return http.ErrServerClosed.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	hs := s.httpServer
	s.mu.Unlock()

	if hs == nil {
		return nil
	}
	s.log().Info("stopping server", "addr", s.addr)
	return hs.Shutdown(ctx)
}

// ListenAddr converts a base URL into a listen address.
func ListenAddr(baseURL string) (string, error) {
	if baseURL == "" {
		return "", fmt.Errorf("api url is required")
	}
	if u, err := url.Parse(baseURL); err == nil && u.Host != "" {
		host := u.Hostname()
		if !isAllowedListenHost(host) {
			return "", fmt.Errorf("remote listen host %q requires %s=true", host, allowRemoteEnvKey)
		}
		return u.Host, nil
	}

	host, _, err := net.SplitHostPort(baseURL)
	if err == nil && !isAllowedListenHost(host) {
		return "", fmt.Errorf("remote listen host %q requires %s=true", host, allowRemoteEnvKey)
	}

	return baseURL, nil
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
