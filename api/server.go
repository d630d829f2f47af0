package api

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gregtusar/gswap-trader/pkg/models"
	"github.com/gregtusar/gswap-trader/pkg/trader"
	"github.com/sirupsen/logrus"
)

const shutdownTimeout = 5 * time.Second

// StatusProvider is the read-only view of the trader the API exposes.
type StatusProvider interface {
	Portfolio() models.Portfolio
	LastSignal() (models.TradeSignal, models.Trend, bool)
	LastSnapshot() (models.PriceSnapshot, bool)
	PriceHistory() []models.PricePoint
	RecentTrades() []models.TradeResult
	State() trader.CycleState
}

type Server struct {
	status  StatusProvider
	metrics http.Handler
	logger  *logrus.Logger
	port    string
	now     func() time.Time
}

// NewServer builds the status API. metrics may be nil.
func NewServer(status StatusProvider, metrics http.Handler, logger *logrus.Logger, port int) *Server {
	return &Server{
		status:  status,
		metrics: metrics,
		logger:  logger,
		port:    strconv.Itoa(port),
		now:     time.Now,
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/portfolio", s.handlePortfolio)
	mux.HandleFunc("/api/signal", s.handleSignal)
	mux.HandleFunc("/api/trades", s.handleTrades)
	mux.HandleFunc("/api/history", s.handleHistory)
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics)
	}

	return corsMiddleware(mux)
}

// Start serves until ctx is done, then drains in-flight requests.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              ":" + s.port,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Infof("Starting API server on port %s", s.port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info("API server stopped")
	return nil
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"state":     s.status.State(),
		"timestamp": s.now().UTC(),
	})
}

func (s *Server) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	s.writeJSON(w, http.StatusOK, s.status.Portfolio())
}

type signalResponse struct {
	Signal   models.TradeSignal    `json:"signal"`
	Trend    models.Trend          `json:"trend"`
	Snapshot *models.PriceSnapshot `json:"snapshot,omitempty"`
}

func (s *Server) handleSignal(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}

	sig, trend, ok := s.status.LastSignal()
	if !ok {
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "no signal computed yet"})
		return
	}

	resp := signalResponse{Signal: sig, Trend: trend}
	if snap, ok := s.status.LastSnapshot(); ok {
		resp.Snapshot = &snap
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}

	trades := s.status.RecentTrades()
	if trades == nil {
		trades = []models.TradeResult{}
	}
	s.writeJSON(w, http.StatusOK, trades)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}

	points := s.status.PriceHistory()
	if points == nil {
		points = []models.PricePoint{}
	}
	s.writeJSON(w, http.StatusOK, points)
}

func allowGet(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.WithError(err).Error("Failed to encode JSON response")
	}
}
