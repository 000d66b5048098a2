// Package api implements the admin HTTP surface (§6.4): health,
// redacted config, Prometheus metrics, and liquidity-management
// endpoints that trigger the dispatcher. Grounded on the teacher's
// api/router.go and api/metrics.go for the gorilla/mux wiring and
// CORS middleware shape, retargeted from dashboard/demo data to the
// router daemon's real operations.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/meshbridge/router-node/chainid"
	"github.com/meshbridge/router-node/errs"
	"github.com/meshbridge/router-node/storage"
)

// ConfigProvider supplies the redacted configuration payload for
// GET /config.
type ConfigProvider interface {
	RedactedConfig() any
}

// LiquidityController is the narrow surface the admin endpoints need
// from the dispatcher/router layer to act on liquidity requests.
type LiquidityController interface {
	RemoveLiquidity(ctx context.Context, chain chainid.ID, assetID string, amount string, recipient string) error
	AddLiquidityFor(ctx context.Context, chain chainid.ID, assetID string, amount string, router string) error
}

// DeadLetterLister supplies the dispatch actions the dispatcher gave up
// retrying, for GET /dead-letters (SPEC_FULL.md supplemented feature
// #2: an operator inspects and manually resubmits stuck actions).
type DeadLetterLister interface {
	ListDeadLetters() map[string]storage.DeadLetter
}

// Server hosts the admin HTTP surface.
type Server struct {
	router      *mux.Router
	cfg         ConfigProvider
	liquidity   LiquidityController
	deadLetters DeadLetterLister
	metrics     *Metrics
}

// NewServer builds a Server with every §6.4 route registered.
func NewServer(cfg ConfigProvider, liquidity LiquidityController, deadLetters DeadLetterLister, metrics *Metrics) *Server {
	s := &Server{
		router:      mux.NewRouter(),
		cfg:         cfg,
		liquidity:   liquidity,
		deadLetters: deadLetters,
		metrics:     metrics,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/ping", s.handlePing).Methods(http.MethodGet)
	s.router.HandleFunc("/config", s.handleConfig).Methods(http.MethodGet)
	s.router.Handle("/metrics", promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{})).Methods(http.MethodGet)
	s.router.HandleFunc("/remove-liquidity", s.handleRemoveLiquidity).Methods(http.MethodPost)
	s.router.HandleFunc("/add-liquidity-for", s.handleAddLiquidityFor).Methods(http.MethodPost)
	s.router.HandleFunc("/dead-letters", s.handleDeadLetters).Methods(http.MethodGet)
	s.router.Use(s.corsMiddleware)
}

// Handler exposes the underlying mux.Router for embedding in an
// http.Server.
func (s *Server) Handler() http.Handler { return s.router }

// Mount registers an additional handler on the admin router, used by
// the router package to attach the price feed websocket endpoint
// without api/ needing to depend on it.
func (s *Server) Mount(path string, handler http.Handler) {
	s.router.Handle(path, handler)
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte("pong"))
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.cfg.RedactedConfig())
}

type liquidityRequest struct {
	ChainID   uint64 `json:"chainId"`
	AssetID   string `json:"assetId"`
	Amount    string `json:"amount"`
	Recipient string `json:"recipient,omitempty"`
	Router    string `json:"router,omitempty"`
}

func (s *Server) handleRemoveLiquidity(w http.ResponseWriter, r *http.Request) {
	var req liquidityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errs.New(errs.ParamsInvalid, "handleRemoveLiquidity", "malformed request body"))
		return
	}
	err := s.liquidity.RemoveLiquidity(r.Context(), chainid.ID(req.ChainID), req.AssetID, req.Amount, req.Recipient)
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleAddLiquidityFor(w http.ResponseWriter, r *http.Request) {
	var req liquidityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errs.New(errs.ParamsInvalid, "handleAddLiquidityFor", "malformed request body"))
		return
	}
	err := s.liquidity.AddLiquidityFor(r.Context(), chainid.ID(req.ChainID), req.AssetID, req.Amount, req.Router)
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleDeadLetters(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.deadLetters.ListDeadLetters())
}

func writeError(w http.ResponseWriter, err error) {
	routerErr, ok := err.(*errs.RouterError)
	if !ok {
		routerErr = errs.Wrap(errs.RpcError, "api", err, "unexpected error")
	}
	log.Warn().Err(routerErr).Str("kind", string(routerErr.Kind)).Msg("admin endpoint returned an error")

	status := http.StatusInternalServerError
	if routerErr.Kind == errs.ParamsInvalid {
		status = http.StatusBadRequest
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"kind":    routerErr.Kind,
			"message": routerErr.Message,
			"context": routerErr.Context,
		},
	})
}
