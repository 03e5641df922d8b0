package gateway

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/ipgold/cycleledger/ledger"
	"github.com/ipgold/cycleledger/pkg/id"
	"github.com/ipgold/cycleledger/projection"
)

// POST /api/investments/calculate — authoritative recomputation of a client
// projection, tagged with an audit identifier. Does not touch the ledger.
func (s *Server) handleCalculate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req calculateRequest
	if err := decodeStrict(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// The wire contract requires at least one cycle; only library callers
	// may ask for an empty projection.
	if req.Cycles < 1 {
		s.writeError(w, http.StatusBadRequest, "cycles: must be at least 1")
		return
	}

	result, err := s.projector.Project(projection.Input{
		InitialInvestment:      req.InitialInvestment,
		Cycles:                 req.Cycles,
		ReinvestmentEnabled:    req.ReinvestmentEnabled,
		ReinvestmentPercentage: req.ReinvestmentPercentage,
	})
	if err != nil {
		var verr *projection.ValidationError
		if errors.As(err, &verr) {
			s.writeError(w, http.StatusBadRequest, verr.Error())
			return
		}
		s.writeError(w, http.StatusInternalServerError, "projection failed")
		return
	}

	calcID := id.Calculation()
	log.Printf("[INFO] projection %s: amount=%.2f cycles=%d reinvest=%.1f%% final=%.2f",
		calcID, req.InitialInvestment, req.Cycles, req.ReinvestmentPercentage, result.FinalValue)

	s.writeJSON(w, http.StatusOK, calculateResponse{
		Success:       true,
		CalculationID: calcID,
		Data:          result,
	})
}

// GET /api/balances?userId=… — balance rows; all owners when unfiltered.
// POST /api/balances — delta-based adjustment {user_id, currency, delta}.
func (s *Server) handleBalances(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		balances, err := s.store.Balances(r.URL.Query().Get("userId"))
		if err != nil {
			log.Printf("[ERROR] list balances: %v", err)
			s.writeError(w, http.StatusInternalServerError, "failed to list balances")
			return
		}
		rows := make([]balanceRow, 0, len(balances))
		for _, b := range balances {
			rows = append(rows, toBalanceRow(b))
		}
		s.writeJSON(w, http.StatusOK, rows)

	case http.MethodPost:
		var req postDeltaRequest
		if err := decodeStrict(r, &req); err != nil {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if req.UserID == "" || req.Currency == "" || req.Delta == nil {
			s.writeError(w, http.StatusBadRequest, "user_id, currency, delta are required")
			return
		}

		b, err := s.store.PostDelta(req.UserID, req.Currency, *req.Delta)
		if err != nil {
			switch {
			case errors.Is(err, ledger.ErrInsufficientFunds):
				s.writeError(w, http.StatusConflict, err.Error())
			case errors.Is(err, ledger.ErrInvalidInput):
				s.writeError(w, http.StatusBadRequest, err.Error())
			default:
				log.Printf("[ERROR] post delta: %v", err)
				s.writeError(w, http.StatusInternalServerError, "failed to adjust balance")
			}
			return
		}
		s.writeJSON(w, http.StatusCreated, toBalanceRow(b))

	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// POST /api/balances/set — explicit absolute overwrite, the admin operation.
// Kept separate from POST /api/balances so callers state their intent.
func (s *Server) handleSetBalance(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req setBalanceRequest
	if err := decodeStrict(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.UserID == "" || req.Currency == "" || req.Amount == nil {
		s.writeError(w, http.StatusBadRequest, "user_id, currency, amount are required")
		return
	}
	if *req.Amount < 0 {
		s.writeError(w, http.StatusBadRequest, "amount: must not be negative")
		return
	}

	reason := req.Reason
	if reason == "" {
		reason = "manual balance set"
	}

	b, err := s.store.SetAbsolute(req.UserID, req.Currency, *req.Amount, reason)
	if err != nil {
		if errors.Is(err, ledger.ErrInvalidInput) {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		log.Printf("[ERROR] set balance: %v", err)
		s.writeError(w, http.StatusInternalServerError, "failed to set balance")
		return
	}
	s.writeJSON(w, http.StatusCreated, toBalanceRow(b))
}

// GET /api/transactions?userId=…&limit=N — most recent first.
// POST /api/transactions — append one; status defaults to pending.
func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		limit := 0
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 {
				s.writeError(w, http.StatusBadRequest, "limit: must be a positive integer")
				return
			}
			limit = n
		}

		txs, err := s.store.ListTransactions(r.URL.Query().Get("userId"), limit)
		if err != nil {
			log.Printf("[ERROR] list transactions: %v", err)
			s.writeError(w, http.StatusInternalServerError, "failed to list transactions")
			return
		}
		rows := make([]transactionRow, 0, len(txs))
		for _, t := range txs {
			rows = append(rows, toTransactionRow(t))
		}
		s.writeJSON(w, http.StatusOK, rows)

	case http.MethodPost:
		var req postTransactionRequest
		if err := decodeStrict(r, &req); err != nil {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if req.UserID == "" || req.Type == "" || req.Amount == nil {
			s.writeError(w, http.StatusBadRequest, "user_id, type, amount are required")
			return
		}
		currency := req.Currency
		if currency == "" {
			currency = "USD"
		}

		// A request id makes retried submissions append-once.
		var rec ledger.Transaction
		var err error
		if req.RequestID != "" {
			rec, err = s.store.RecordIdempotent(req.RequestID, req.UserID,
				ledger.Kind(req.Type), currency, *req.Amount, ledger.Status(req.Status), req.Comment)
		} else {
			rec, err = s.store.RecordTransaction(req.UserID, ledger.Kind(req.Type),
				currency, *req.Amount, ledger.Status(req.Status), req.Comment)
		}
		if err != nil {
			switch {
			case errors.Is(err, ledger.ErrRequestMismatch):
				s.writeError(w, http.StatusConflict, err.Error())
			case errors.Is(err, ledger.ErrInvalidInput):
				s.writeError(w, http.StatusBadRequest, err.Error())
			default:
				log.Printf("[ERROR] record transaction: %v", err)
				s.writeError(w, http.StatusInternalServerError, "failed to record transaction")
			}
			return
		}
		s.writeJSON(w, http.StatusCreated, toTransactionRow(rec))

	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// POST /api/transactions/mark — settle a pending transaction. Only
// pending→completed and pending→failed are accepted.
func (s *Server) handleMarkTransaction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req markTransactionRequest
	if err := decodeStrict(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.ID == "" || req.Status == "" {
		s.writeError(w, http.StatusBadRequest, "id and status are required")
		return
	}

	if err := s.store.MarkTransaction(req.ID, ledger.Status(req.Status)); err != nil {
		if errors.Is(err, ledger.ErrInvalidInput) {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		log.Printf("[ERROR] mark transaction: %v", err)
		s.writeError(w, http.StatusInternalServerError, "failed to mark transaction")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GET /api/schedule — the full program-year calendar.
func (s *Server) handleSchedule(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	entries := s.schedule.Entries()
	rows := make([]cycleRow, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, toCycleRow(e))
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"year":   s.schedule.Year,
		"cycles": rows,
	})
}

// GET /api/schedule/next — first cycle whose cutoff has not passed, or null
// when the program year is exhausted.
func (s *Server) handleNextCycle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var resp nextCycleResponse
	if e, ok := s.schedule.NextEligible(s.now()); ok {
		row := toCycleRow(e)
		resp.Cycle = &row
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// GET /api/market-data — cached spot prices; never fails, only degrades.
func (s *Server) handleMarketData(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, s.market.Get(r.Context()))
}
