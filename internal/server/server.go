package server

import (
	"context"
	"fmt"
	"html"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/jpalmerr/bifrost/internal/names"
	"github.com/jpalmerr/bifrost/internal/store"
	"github.com/jpalmerr/bifrost/internal/telemetry"
)

const (
	// streamWriteTimeout bounds a single SSE or WebSocket write so a stalled
	// client cannot pin its handler. Must be <= shutdownTimeout.
	streamWriteTimeout = 5 * time.Second

	shutdownTimeout = 5 * time.Second

	defaultTitle = "Bifrost Dashboard"

	// titlePlaceholder is replaced with the HTML-escaped title.
	titlePlaceholder = "{{.Title}}"
)

// Feed delivers coalesced batches to live observers. [broadcast.Hub]
// implements it.
type Feed interface {
	Subscribe() <-chan telemetry.Batch
	Unsubscribe(ch <-chan telemetry.Batch)
}

// Config holds the collaborators and settings of a [Server].
type Config struct {
	History store.History
	Names   *names.Store
	Feed    Feed

	// Metrics serves "/metrics". Nil disables the route.
	Metrics http.Handler

	// Port 0 lets the OS pick a free port; see [Server.Addr].
	Port int

	// Assets must contain assets/index.html. Nil disables the dashboard.
	Assets fs.FS

	Title  string
	Logger *slog.Logger
}

// Server handles HTTP requests for the dashboard, API and live streams.
type Server struct {
	cfg        Config
	logger     *slog.Logger
	httpServer *http.Server
	addr       net.Addr
}

// NewServer creates a [Server]. It does not listen until [Server.Start].
func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Names == nil {
		cfg.Names = names.Open("", logger)
	}
	return &Server{cfg: cfg, logger: logger}
}

// Handler returns the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/history", s.handleHistory)
	mux.HandleFunc("/api/topics", s.handleTopics)
	mux.HandleFunc("/api/names", s.handleNames)
	mux.HandleFunc("/api/sse", s.handleSSE)
	mux.HandleFunc("/api/ws", s.handleWebSocket)

	// legacy routes
	mux.HandleFunc("/get_history", s.handleHistory)
	mux.HandleFunc("/update_name", s.handleUpdateName)

	if s.cfg.Metrics != nil {
		mux.Handle("/metrics", s.cfg.Metrics)
	}
	if s.cfg.Assets != nil {
		mux.HandleFunc("/", s.handleDashboard)
	}
	return mux
}

// Start binds the port and serves in a background goroutine. It returns once
// the listener is up; shutdown starts when ctx is cancelled.
//
// Returns an error if the port cannot be bound.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.cfg.Port))
	if err != nil {
		return fmt.Errorf("failed to bind to port %d: %w", s.cfg.Port, err)
	}
	s.addr = ln.Addr()

	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		// request contexts end with ctx so streaming handlers exit on shutdown
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("http server error", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("http server shutdown error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound address, or nil before [Server.Start].
func (s *Server) Addr() net.Addr {
	return s.addr
}

// handleDashboard serves the dashboard page with the configured title.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	if s.cfg.Assets == nil {
		http.Error(w, "Dashboard not found", http.StatusInternalServerError)
		return
	}

	content, err := fs.ReadFile(s.cfg.Assets, "assets/index.html")
	if err != nil {
		http.Error(w, "Dashboard not found", http.StatusInternalServerError)
		return
	}

	title := s.cfg.Title
	if title == "" {
		title = defaultTitle
	}
	rendered := strings.ReplaceAll(string(content), titlePlaceholder, html.EscapeString(title))

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err = w.Write([]byte(rendered)); err != nil {
		s.logger.Error("failed to write dashboard response", "error", err)
	}
}
