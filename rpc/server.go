package rpc

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"latchain/core"
	"latchain/core/types"
	"latchain/observability"
	"latchain/services/indexer"
)

const (
	jsonRPCVersion         = "2.0"
	defaultMaxRequestBytes = 1 << 20 // 1 MiB
	defaultTimeout         = 15 * time.Second
	requestIDHeader        = "X-Request-ID"
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeUnauthorized   = -32001
	codeNotFound       = -32004
	codeServerError    = -32000
	codeRateLimited    = -32020
	codeModulePaused   = -32030
	codeUnavailable    = -32050
)

// HistoryService answers receipt history queries and exports.
type HistoryService interface {
	History(ctx context.Context, q indexer.Query) ([]*types.Receipt, error)
	ExportParquet(ctx context.Context, dir string, now time.Time) (string, error)
}

// Config holds the listener settings and operator credentials.
type Config struct {
	AuthToken          string
	JWTSecret          string
	JWTIssuer          string
	RateLimitPerMinute float64
	RateLimitBurst     int
	MaxBodyBytes       int64
	ReadTimeout        time.Duration
	WriteTimeout       time.Duration
	ExportDir          string
	Logger             *slog.Logger
}

type Server struct {
	node    *core.Node
	history HistoryService
	cfg     Config
	auth    *operatorAuth
	limiter *rateLimiter
	metrics *observability.RPCMetrics
	logger  *slog.Logger

	mu         sync.Mutex
	httpServer *http.Server
}

// NewServer builds a JSON-RPC server over node. history may be nil, in which
// case history and export methods report the service as unavailable.
func NewServer(node *core.Node, history HistoryService, cfg Config) *Server {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxRequestBytes
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = defaultTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		node:    node,
		history: history,
		cfg:     cfg,
		auth:    newOperatorAuth(cfg.AuthToken, cfg.JWTSecret, cfg.JWTIssuer),
		limiter: newRateLimiter(cfg.RateLimitPerMinute, cfg.RateLimitBurst),
		metrics: observability.RPC(),
		logger:  logger.With("component", "rpc"),
	}
}

// Handler returns the HTTP routes served by the node.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/ws/events", s.handleEventsWS)
	r.Method(http.MethodPost, "/", http.TimeoutHandler(http.HandlerFunc(s.handle), s.cfg.WriteTimeout, "request timed out"))
	return otelhttp.NewHandler(r, "latchain-rpc")
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(listener)
}

func (s *Server) Serve(listener net.Listener) error {
	// No connection write deadline: event streams are long lived.
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: s.cfg.ReadTimeout,
	}
	s.mu.Lock()
	s.httpServer = srv
	s.mu.Unlock()
	s.logger.Info("JSON-RPC server listening", "addr", listener.Addr().String())
	err := srv.Serve(listener)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpServer
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// requestID propagates or assigns an X-Request-ID for log correlation.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}
