// Package api provides the HTTP surface: REST endpoints for strategies,
// synchronous runs and OHLCV history, plus the WebSocket upgrade.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"signal-systemv1/internal/gateway"
	"signal-systemv1/internal/logger"
	"signal-systemv1/internal/marketdata/distributor"
	"signal-systemv1/internal/model"
	"signal-systemv1/internal/store/sqlite"
	"signal-systemv1/internal/strategy"
)

// Server bundles the collaborators behind the HTTP surface.
type Server struct {
	Dist  *distributor.Distributor
	Mgr   *strategy.Manager
	Store *sqlite.Store
	Hub   *gateway.Hub

	// OnForecast observes every completed forecast fit, optional.
	OnForecast func(degraded bool)

	upgrader websocket.Upgrader
}

// NewRouter sets up all HTTP routes behind the request-trace middleware.
func NewRouter(s *Server) http.Handler {
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     func(r *http.Request) bool { return true },
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/health", s.handleHealth)
	mux.HandleFunc("/api/v1/strategies", s.handleStrategies)
	mux.HandleFunc("/api/v1/strategies/run", s.handleRun)
	mux.HandleFunc("/api/v1/ohlcv", s.handleOHLCV)
	mux.HandleFunc("/api/v1/signals", s.handleSignals)
	mux.HandleFunc("/ws", s.handleWS)
	return withTrace(mux)
}

// withTrace assigns each request a trace id and logs it structured.
func withTrace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := logger.WithTraceID(r.Context(), uuid.NewString())
		start := time.Now()
		next.ServeHTTP(w, r.WithContext(ctx))
		attrs := append(logger.LogWithTrace(ctx),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Duration("took", time.Since(start)),
		)
		slog.Info("http request", attrs...)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStrategies(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, s.Mgr.List())
}

// runRequest is the synchronous-run request body.
type runRequest struct {
	Strategy  string `json:"strategy"`
	Symbol    string `json:"symbol,omitempty"`    // overrides the configured symbol
	Timeframe string `json:"timeframe,omitempty"` // overrides the configured timeframe
	Limit     int    `json:"limit,omitempty"`
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req runRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	in, err := s.Mgr.Get(req.Strategy)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	cfg := in.Config()
	if req.Symbol != "" {
		cfg.Symbol = req.Symbol
	}
	if req.Timeframe != "" {
		cfg.Timeframe = req.Timeframe
	}
	limit := req.Limit
	if limit <= 0 {
		limit = 500
	}

	candles, err := s.history(r.Context(), cfg.Key(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	result, err := strategy.RunOnce(cfg, candles)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, model.ErrInvalidConfig) {
			status = http.StatusUnprocessableEntity
		}
		writeError(w, status, err.Error())
		return
	}
	if result.Forecast != nil && s.OnForecast != nil {
		s.OnForecast(result.Forecast.Degraded)
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleOHLCV(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	q := r.URL.Query()
	key := model.SubscriptionKey{Symbol: q.Get("symbol"), Timeframe: q.Get("timeframe")}
	if key.Symbol == "" || key.Timeframe == "" {
		writeError(w, http.StatusBadRequest, "symbol and timeframe are required")
		return
	}
	limit, _ := strconv.Atoi(q.Get("limit"))
	if limit <= 0 || limit > model.DefaultBufferCap {
		limit = 500
	}
	candles, err := s.history(r.Context(), key, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, candles)
}

func (s *Server) handleSignals(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	id := r.URL.Query().Get("strategy")
	if id == "" {
		writeError(w, http.StatusBadRequest, "strategy is required")
		return
	}
	// Live ring buffer first; journal for strategies not currently loaded.
	if in, err := s.Mgr.Get(id); err == nil {
		writeJSON(w, http.StatusOK, in.Signals())
		return
	}
	if s.Store == nil {
		writeError(w, http.StatusNotFound, "unknown strategy: "+id)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	sigs, err := s.Store.Signals(r.Context(), id, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, sigs)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[api] ws upgrade failed: %v", err)
		return
	}
	s.Hub.HandleConn(conn)
}

// history prefers the distributor's live cache and falls back to the store.
func (s *Server) history(ctx context.Context, key model.SubscriptionKey, limit int) ([]model.Candle, error) {
	if candles := s.Dist.Snapshot(key, limit); len(candles) > 0 {
		return candles, nil
	}
	if s.Store == nil {
		return nil, nil
	}
	cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.Store.Candles(cctx, key, limit)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
