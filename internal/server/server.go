package server

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/lox/blackjack/internal/auth"
	"github.com/lox/blackjack/internal/config"
	"github.com/lox/blackjack/internal/game"
	"github.com/lox/blackjack/internal/ledger"
	"github.com/lox/blackjack/internal/randutil"
)

// StoreFactory returns the ledger store for a table
type StoreFactory func(tableID string) ledger.Store

// Option configures a Server
type Option func(*Server)

// WithClock sets the clock used by every table
func WithClock(clock quartz.Clock) Option {
	return func(s *Server) { s.clock = clock }
}

// WithStores sets where table ledgers are kept. Tables default to memory.
func WithStores(f StoreFactory) Option {
	return func(s *Server) { s.stores = f }
}

// WithSeeds sets the shuffle seed source for new tables
func WithSeeds(f func() int64) Option {
	return func(s *Server) { s.seed = f }
}

// WithTableOptions appends engine options to every new table
func WithTableOptions(opts ...game.Option) Option {
	return func(s *Server) { s.tableOpts = append(s.tableOpts, opts...) }
}

// WithAuth requires every table request to carry a token accepted by v
func WithAuth(v auth.Validator) Option {
	return func(s *Server) { s.auth = v }
}

// Server hosts blackjack tables over HTTP and websockets
type Server struct {
	cfg       *config.Config
	logger    *log.Logger
	clock     quartz.Clock
	stores    StoreFactory
	seed      func() int64
	tableOpts []game.Option
	auth      auth.Validator
	upgrader  websocket.Upgrader
	router    chi.Router

	mu     sync.RWMutex
	tables map[string]*Table
}

// NewServer creates a server for cfg
func NewServer(cfg *config.Config, logger *log.Logger, opts ...Option) *Server {
	s := &Server{
		cfg:    cfg,
		logger: logger.WithPrefix("server"),
		clock:  quartz.NewReal(),
		seed:   randutil.FreshSeed,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		tables: make(map[string]*Table),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.routes()
	return s
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/health", s.handleHealth)
	r.Route("/api/tables", func(r chi.Router) {
		r.Use(s.authenticate)
		r.Get("/", s.handleListTables)
		r.Post("/", s.handleCreateTable)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetTable)
			r.Delete("/", s.handleCloseTable)
			r.Post("/actions", s.handleAction)
			r.Post("/funds", s.handleAddFunds)
			r.Delete("/funds", s.handleDeclineFunds)
			r.Get("/ledger", s.handleLedger)
			r.Get("/ws", s.handleWebSocket)
		})
	})
	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := s.clock.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("Request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", s.clock.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}

// authenticate rejects requests without a valid token when auth is enabled.
// An unreachable auth service fails closed.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.auth == nil {
			next.ServeHTTP(w, r)
			return
		}
		id, err := s.auth.Validate(r.Context(), auth.BearerToken(r))
		switch {
		case errors.Is(err, auth.ErrInvalidToken):
			writeError(w, http.StatusUnauthorized, "unauthorized", "invalid or missing token")
			return
		case err != nil:
			s.logger.Warn("Auth service unavailable", "error", err)
			writeError(w, http.StatusServiceUnavailable, "auth_unavailable", "authentication is unavailable")
			return
		}
		if id != nil {
			r = r.WithContext(auth.WithIdentity(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}

// Start serves on the configured address until ctx is done
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.ServerAddress(),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("Starting blackjack server", "addr", srv.Addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		s.Stop()
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.Stop()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop closes every table
func (s *Server) Stop() {
	s.mu.Lock()
	tables := s.tables
	s.tables = make(map[string]*Table)
	s.mu.Unlock()

	for _, t := range tables {
		if err := t.Close(); err != nil {
			s.logger.Warn("Failed to close table", "table", t.ID, "error", err)
		}
	}
}

// CreateTableRequest overrides table settings from the config
type CreateTableRequest struct {
	Seed *int64 `json:"seed,omitempty"`
}

// CreateTable starts a new table
func (s *Server) CreateTable(ctx context.Context, req CreateTableRequest) (*Table, error) {
	id := uuid.NewString()
	seed := s.seed()
	if req.Seed != nil {
		seed = *req.Seed
	}

	var store ledger.Store
	if s.stores != nil {
		store = s.stores(id)
	}

	cfg := TableConfig{
		Seed:             seed,
		Options:          append(s.cfg.EngineOptions(), s.tableOpts...),
		Store:            store,
		MaxHands:         s.cfg.Ledger.MaxHands,
		InsuranceTimeout: s.cfg.InsuranceTimeout(),
	}
	if id, ok := auth.FromContext(ctx); ok {
		cfg.Owner = id.PlayerID
	}
	t, err := NewTable(ctx, id, cfg, s.clock, s.logger)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.tables[id] = t
	s.mu.Unlock()

	s.logger.Info("Table created", "table", id, "seed", seed)
	return t, nil
}

// Table looks up a table by ID
func (s *Server) Table(id string) (*Table, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tables[id]
	return t, ok
}

// CloseTable stops and removes a table
func (s *Server) CloseTable(id string) error {
	s.mu.Lock()
	t, ok := s.tables[id]
	delete(s.tables, id)
	s.mu.Unlock()
	if !ok {
		return ErrTableNotFound
	}
	return t.Close()
}

// Tables lists every table, oldest first
func (s *Server) Tables() []TableInfo {
	s.mu.RLock()
	infos := make([]TableInfo, 0, len(s.tables))
	for _, t := range s.tables {
		infos = append(infos, t.Info())
	}
	s.mu.RUnlock()

	slices.SortFunc(infos, func(a, b TableInfo) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return infos
}

// ErrTableNotFound is returned for unknown table IDs
var ErrTableNotFound = errors.New("table not found")
