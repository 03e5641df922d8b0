package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ipgold/cycleledger/ledger"
	"github.com/ipgold/cycleledger/projection"
	"github.com/ipgold/cycleledger/schedule"
)

// Wire shapes for every engine-facing endpoint. Bodies are decoded strictly:
// unknown fields are rejected rather than coerced.

type calculateRequest struct {
	InitialInvestment      float64 `json:"initialInvestment"`
	Cycles                 int     `json:"cycles"`
	ReinvestmentEnabled    bool    `json:"reinvestmentEnabled"`
	ReinvestmentPercentage float64 `json:"reinvestmentPercentage"`
}

type calculateResponse struct {
	Success       bool              `json:"success"`
	CalculationID string            `json:"calculationId"`
	Data          projection.Result `json:"data"`
}

type balanceRow struct {
	ID       int64   `json:"id"`
	UserID   string  `json:"user_id"`
	Currency string  `json:"currency"`
	Amount   float64 `json:"amount"`
}

func toBalanceRow(b ledger.Balance) balanceRow {
	return balanceRow{ID: b.ID, UserID: b.OwnerID, Currency: b.Currency, Amount: b.Amount}
}

type postDeltaRequest struct {
	UserID   string   `json:"user_id"`
	Currency string   `json:"currency"`
	Delta    *float64 `json:"delta"`
}

type setBalanceRequest struct {
	UserID   string   `json:"user_id"`
	Currency string   `json:"currency"`
	Amount   *float64 `json:"amount"`
	Reason   string   `json:"reason"`
}

type transactionRow struct {
	ID        string  `json:"id"`
	UserID    string  `json:"user_id"`
	Type      string  `json:"type"`
	Currency  string  `json:"currency"`
	Amount    float64 `json:"amount"`
	Status    string  `json:"status"`
	CreatedAt string  `json:"created_at"`
	Comment   string  `json:"comment,omitempty"`
}

func toTransactionRow(t ledger.Transaction) transactionRow {
	return transactionRow{
		ID:        t.ID,
		UserID:    t.OwnerID,
		Type:      string(t.Kind),
		Currency:  t.Currency,
		Amount:    t.Amount,
		Status:    string(t.Status),
		CreatedAt: t.CreatedAt.Format(time.RFC3339),
		Comment:   t.Comment,
	}
}

type postTransactionRequest struct {
	UserID    string   `json:"user_id"`
	Type      string   `json:"type"`
	Currency  string   `json:"currency"`
	Amount    *float64 `json:"amount"`
	Status    string   `json:"status"`
	Comment   string   `json:"comment"`
	RequestID string   `json:"request_id"`
}

type markTransactionRequest struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type cycleRow struct {
	Number int    `json:"number"`
	Date   string `json:"date"`
}

func toCycleRow(e schedule.Entry) cycleRow {
	return cycleRow{Number: e.Number, Date: e.Date.Format(schedule.DateLayout)}
}

type nextCycleResponse struct {
	Cycle *cycleRow `json:"cycle"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// decodeStrict decodes a JSON body rejecting unknown fields and trailing
// garbage.
func decodeStrict(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	if dec.More() {
		return fmt.Errorf("invalid request body: unexpected trailing data")
	}
	return nil
}
