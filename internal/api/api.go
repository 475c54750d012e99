package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/thatsimonsguy/pump-controller/db"
	"github.com/thatsimonsguy/pump-controller/internal/model"
	"github.com/thatsimonsguy/pump-controller/internal/operator"
	"github.com/thatsimonsguy/pump-controller/internal/pump"
	"github.com/thatsimonsguy/pump-controller/internal/tick"
)

const (
	defaultEventLimit = 50
	maxEventLimit     = 1000
	defaultStatsDays  = 7
	maxStatsDays      = 366
)

// Operator is the command surface the API exposes. operator.Service
// implements it.
type Operator interface {
	Status(ctx context.Context) (model.PumpStatus, error)
	SetMode(ctx context.Context, mode pump.Mode) error
	SetManualState(ctx context.Context, on bool) error
	SetConfig(ctx context.Context, cfg pump.Config) error
	Enable(ctx context.Context) error
	Disable(ctx context.Context) error
	ClearFault(ctx context.Context) (pump.FaultKind, error)
	ResetStatistics(ctx context.Context) error
}

type Server struct {
	op      Operator
	db      *sql.DB
	metrics http.Handler
	now     func() time.Time
	timeout time.Duration
	log     zerolog.Logger
}

type ModeRequest struct {
	Mode string `json:"mode"`
}

type ManualRequest struct {
	On *bool `json:"on"`
}

type ClearFaultResponse struct {
	Cleared string `json:"cleared"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// NewServer builds the API. database and metrics may be nil, which turns
// off the history and /metrics endpoints.
func NewServer(op Operator, database *sql.DB, metrics http.Handler, log zerolog.Logger) *Server {
	return &Server{
		op:      op,
		db:      database,
		metrics: metrics,
		now:     time.Now,
		timeout: 5 * time.Second,
		log:     log,
	}
}

// Handler returns the routed API with CORS applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/pump", s.handleStatus)
	mux.HandleFunc("/api/pump/mode", s.handleMode)
	mux.HandleFunc("/api/pump/manual", s.handleManual)
	mux.HandleFunc("/api/pump/config", s.handleConfig)
	mux.HandleFunc("/api/pump/enable", s.post(func(ctx context.Context) error { return s.op.Enable(ctx) }))
	mux.HandleFunc("/api/pump/disable", s.post(func(ctx context.Context) error { return s.op.Disable(ctx) }))
	mux.HandleFunc("/api/pump/reset-statistics", s.post(func(ctx context.Context) error { return s.op.ResetStatistics(ctx) }))
	mux.HandleFunc("/api/pump/clear-fault", s.handleClearFault)
	mux.HandleFunc("/api/events", s.handleEvents)
	mux.HandleFunc("/api/stats", s.handleStats)
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics)
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		mux.ServeHTTP(w, r)
	})
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, port int) error {
	addr := fmt.Sprintf("0.0.0.0:%d", port)
	srv := &http.Server{Addr: addr, Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	s.log.Info().Str("address", addr).Msg("Starting REST API server")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	s.writeStatus(w, r)
}

func (s *Server) handleMode(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req ModeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}
	mode, err := pump.ParseMode(req.Mode)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.apply(w, r, func(ctx context.Context) error { return s.op.SetMode(ctx, mode) })
}

func (s *Server) handleManual(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req ManualRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.On == nil {
		s.writeError(w, http.StatusBadRequest, `Invalid JSON payload, expected {"on": true|false}`)
		return
	}

	s.apply(w, r, func(ctx context.Context) error { return s.op.SetManualState(ctx, *req.On) })
}

// handleConfig returns the pump config on GET. PUT decodes the body over
// the current config, so clients may send only the fields they change.
func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		status, ok := s.status(w, r)
		if ok {
			s.writeJSON(w, http.StatusOK, status.Config)
		}
	case http.MethodPut:
		status, ok := s.status(w, r)
		if !ok {
			return
		}
		cfg := status.Config
		if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
			s.writeError(w, http.StatusBadRequest, "Invalid JSON payload")
			return
		}
		s.apply(w, r, func(ctx context.Context) error { return s.op.SetConfig(ctx, cfg) })
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (s *Server) handleClearFault(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	cleared, err := s.op.ClearFault(ctx)
	if err != nil {
		s.writeCommandError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, ClearFaultResponse{Cleared: cleared.Code()})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if s.db == nil {
		s.writeError(w, http.StatusNotFound, "Event history not available")
		return
	}

	limit, err := intParam(r, "limit", defaultEventLimit, 1, maxEventLimit)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	events, err := db.GetRecentEvents(s.db, limit)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to get events")
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, events)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if s.db == nil {
		s.writeError(w, http.StatusNotFound, "Statistics history not available")
		return
	}

	days, err := intParam(r, "days", defaultStatsDays, 1, maxStatsDays)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	now := s.now()
	from := now.AddDate(0, 0, -(days - 1)).Format(time.DateOnly)
	stats, err := db.GetDailyStats(s.db, from, now.Format(time.DateOnly))
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to get daily stats")
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if stats == nil {
		stats = []db.DailyStats{}
	}
	s.writeJSON(w, http.StatusOK, stats)
}

func (s *Server) post(fn func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		s.apply(w, r, fn)
	}
}

// apply runs a command and answers with the resulting status.
func (s *Server) apply(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	if err := fn(ctx); err != nil {
		s.writeCommandError(w, err)
		return
	}
	s.writeStatus(w, r)
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) (model.PumpStatus, bool) {
	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	status, err := s.op.Status(ctx)
	if err != nil {
		s.writeCommandError(w, err)
		return model.PumpStatus{}, false
	}
	return status, true
}

func (s *Server) writeStatus(w http.ResponseWriter, r *http.Request) {
	if status, ok := s.status(w, r); ok {
		s.writeJSON(w, http.StatusOK, status)
	}
}

func (s *Server) writeCommandError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, operator.ErrInvalidCommand):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, tick.ErrStopped):
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		s.writeError(w, http.StatusGatewayTimeout, "Controller did not respond in time")
	default:
		s.log.Error().Err(err).Msg("Pump command failed")
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponse{Error: message})
}

func intParam(r *http.Request, name string, def, lo, hi int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < lo || v > hi {
		return 0, fmt.Errorf("Invalid %s. Must be an integer between %d and %d", name, lo, hi)
	}
	return v, nil
}
