package rpc

import (
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"tubbly/core"
	"tubbly/observability"
)

const (
	maxRequestBytes = 1 << 20 // 1 MiB
	txPerMinute     = 30
	txBurst         = 10
)

// rpcTokenEnv names the environment variable holding the optional bearer
// token required for mutating methods.
const rpcTokenEnv = "TUBBLY_RPC_TOKEN"

type Server struct {
	node    *core.Node
	logger  *slog.Logger
	metrics *observability.InstructionMetrics

	authToken string

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewServer builds the JSON-RPC surface over the node. The bearer token for
// mutating methods comes from TUBBLY_RPC_TOKEN; when unset, mutations are
// open (local development only).
func NewServer(node *core.Node, logger *slog.Logger) *Server {
	return &Server{
		node:      node,
		logger:    logger,
		metrics:   observability.Instructions(),
		authToken: strings.TrimSpace(os.Getenv(rpcTokenEnv)),
		limiters:  make(map[string]*rate.Limiter),
	}
}

// Router assembles the HTTP mux: the JSON-RPC endpoint plus health and
// metrics.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Post("/", s.handle)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	return r
}

// Start serves the router on addr and blocks.
func (s *Server) Start(addr string) error {
	if s.logger != nil {
		s.logger.Info("starting JSON-RPC server", slog.String("addr", addr))
	}
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return server.ListenAndServe()
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "parse_error", err.Error())
		return
	}
	if len(body) > maxRequestBytes {
		writeError(w, http.StatusRequestEntityTooLarge, nil, codeInvalidRequest, "request_too_large", nil)
		return
	}
	var req RPCRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "parse_error", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "invalid_request", "unsupported jsonrpc version")
		return
	}

	started := time.Now()
	handler, ok := s.methods()[req.Method]
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, "method_not_found", req.Method)
		return
	}
	if mutatingMethods[req.Method] {
		if authErr := s.requireAuth(r); authErr != nil {
			s.metrics.ObserveError(req.Method, strconv.Itoa(codeUnauthorized), time.Since(started))
			writeError(w, http.StatusUnauthorized, req.ID, codeUnauthorized, "unauthorized", authErr.Error())
			return
		}
		if !s.allow(r) {
			s.metrics.ObserveError(req.Method, strconv.Itoa(codeRateLimited), time.Since(started))
			writeError(w, http.StatusTooManyRequests, req.ID, codeRateLimited, "rate_limited", nil)
			return
		}
	}
	handler(w, &req, started)
}

type methodFunc func(http.ResponseWriter, *RPCRequest, time.Time)

var mutatingMethods = map[string]bool{
	"ledger_initialize":      true,
	"ledger_submit":          true,
	"ledger_confirm":         true,
	"ledger_changeOwnership": true,
	"ledger_reclaim":         true,
}

func (s *Server) methods() map[string]methodFunc {
	return map[string]methodFunc{
		"ledger_initialize":      s.handleInitialize,
		"ledger_submit":          s.handleSubmit,
		"ledger_confirm":         s.handleConfirm,
		"ledger_balanceOf":       s.handleBalanceOf,
		"ledger_getRequest":      s.handleGetRequest,
		"ledger_changeOwnership": s.handleChangeOwnership,
		"ledger_reclaim":         s.handleReclaim,
		"ledger_state":           s.handleState,
		"ledger_events":          s.handleEvents,
	}
}

type authError struct{ msg string }

func (e *authError) Error() string { return e.msg }

func (s *Server) requireAuth(r *http.Request) error {
	if s.authToken == "" {
		return nil
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return &authError{msg: "missing bearer token"}
	}
	if strings.TrimSpace(strings.TrimPrefix(header, prefix)) != s.authToken {
		return &authError{msg: "invalid bearer token"}
	}
	return nil
}

func (s *Server) allow(r *http.Request) bool {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	s.mu.Lock()
	limiter, ok := s.limiters[host]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(float64(txPerMinute)/60.0), txBurst)
		s.limiters[host] = limiter
	}
	s.mu.Unlock()
	return limiter.Allow()
}

// observe wraps the outcome bookkeeping shared by every handler.
func (s *Server) observe(method string, started time.Time, err error) {
	if err == nil {
		s.metrics.ObserveSuccess(method, time.Since(started))
		return
	}
	_, code := ledgerErrorCode(err)
	s.metrics.ObserveError(method, strconv.Itoa(code), time.Since(started))
	if s.logger != nil {
		s.logger.Warn("instruction failed",
			slog.String("method", method),
			slog.String("error", err.Error()),
		)
	}
}
