// Package gateway is the network boundary of the engine. It validates
// client-submitted projection parameters, re-runs the shared projector
// authoritatively, and serves the balance/transaction surface. It never
// mutates balances as a side effect of a projection.
package gateway

import (
	"context"
	"encoding/json"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/ipgold/cycleledger/ledger"
	"github.com/ipgold/cycleledger/marketdata"
	"github.com/ipgold/cycleledger/projection"
	"github.com/ipgold/cycleledger/schedule"
)

// Server is the engine's HTTP API.
type Server struct {
	httpServer *http.Server
	projector  *projection.Projector
	store      *ledger.Store
	market     *marketdata.Service
	schedule   schedule.Schedule
	startedAt  time.Time
	now        func() time.Time
}

// NewServer wires the engine components behind an HTTP mux bound to addr.
func NewServer(addr string, proj *projection.Projector, store *ledger.Store, market *marketdata.Service, sched schedule.Schedule) *Server {
	s := &Server{
		projector: proj,
		store:     store,
		market:    market,
		schedule:  sched,
		startedAt: time.Now(),
		now:       time.Now,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/investments/calculate", s.handleCalculate)
	mux.HandleFunc("/api/balances", s.handleBalances)
	mux.HandleFunc("/api/balances/set", s.handleSetBalance)
	mux.HandleFunc("/api/transactions", s.handleTransactions)
	mux.HandleFunc("/api/transactions/mark", s.handleMarkTransaction)
	mux.HandleFunc("/api/schedule", s.handleSchedule)
	mux.HandleFunc("/api/schedule/next", s.handleNextCycle)
	mux.HandleFunc("/api/market-data", s.handleMarketData)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Start begins serving HTTP requests.
func (s *Server) Start(_ context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	log.Printf("[INFO] gateway listening on %s", s.httpServer.Addr)
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Printf("[ERROR] gateway: %v", err)
		}
	}()
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the mux for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[ERROR] encode response: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, errorResponse{Error: msg})
}

// GET /api/status — liveness and uptime.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"running":       true,
		"uptime_s":      time.Since(s.startedAt).Seconds(),
		"schedule_year": s.schedule.Year,
		"cycles":        s.schedule.Len(),
	})
}
