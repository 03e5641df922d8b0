// Package ledger is the authoritative balance and transaction store. Balances
// are a mutable snapshot; transactions are append-only events; manual
// adjustments (absolute balance sets by an admin) are recorded separately so
// reconciliation can account for them.
package ledger

import (
	"database/sql"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/ipgold/cycleledger/pkg/id"
)

// Kind classifies a balance-affecting event.
type Kind string

const (
	KindDeposit    Kind = "DEPOSIT"
	KindWithdrawal Kind = "WITHDRAWAL"
	KindAccrual    Kind = "ACCRUAL"
	KindBonus      Kind = "BONUS"
)

// Status is a transaction's lifecycle state. Transitions are one-way:
// pending → completed or pending → failed, never reopened.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Balance is the current snapshot for one (owner, currency) pair.
type Balance struct {
	ID       int64
	OwnerID  string
	Currency string
	Amount   float64
}

// Transaction is one append-only ledger event. Completed rows are never
// edited or deleted.
type Transaction struct {
	ID        string
	OwnerID   string
	Kind      Kind
	Currency  string
	Amount    float64
	Status    Status
	CreatedAt time.Time
	Comment   string
}

// ErrInsufficientFunds is returned when a delta would drive a balance
// negative. No state changes in that case.
var ErrInsufficientFunds = errors.New("insufficient funds")

// ErrInvalidInput marks caller mistakes (missing key, unknown kind or status,
// non-finite amount). Callers check it with errors.Is to keep bad requests
// distinct from persistence failures.
var ErrInvalidInput = errors.New("invalid input")

// ErrRequestMismatch is returned when a request id is reused with a payload
// that differs from the transaction originally recorded under it.
var ErrRequestMismatch = errors.New("request id reused with different payload")

func errInvalidf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalidInput}, args...)...)
}

// Store is a SQLite-backed ledger. All writes for a given database are
// serialized through a store-level mutex on top of SQLite's own transaction
// guarantees, so concurrent accrual postings and admin edits cannot
// interleave into a lost update.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// Open opens (or creates) the ledger database and applies the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open ledger db: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply ledger schema: %w", err)
	}

	return &Store{db: db}, nil
}

// PostDelta applies an additive balance change and returns the new snapshot.
// The row is created at zero if it does not exist yet. A delta that would
// make the balance negative is rejected with ErrInsufficientFunds and
// nothing is written.
func (s *Store) PostDelta(ownerID, currency string, delta float64) (Balance, error) {
	if err := validateKey(ownerID, currency); err != nil {
		return Balance{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return Balance{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		INSERT OR IGNORE INTO balances (owner_id, currency, amount)
		VALUES (?, ?, 0)`, ownerID, currency); err != nil {
		return Balance{}, fmt.Errorf("ensure balance row: %w", err)
	}

	var b Balance
	err = tx.QueryRow(`
		SELECT id, owner_id, currency, amount
		FROM balances
		WHERE owner_id = ? AND currency = ?`, ownerID, currency).
		Scan(&b.ID, &b.OwnerID, &b.Currency, &b.Amount)
	if err != nil {
		return Balance{}, fmt.Errorf("read balance: %w", err)
	}

	next := b.Amount + delta
	if next < 0 {
		return Balance{}, fmt.Errorf("%w: %s/%s balance %.2f, delta %.2f",
			ErrInsufficientFunds, ownerID, currency, b.Amount, delta)
	}

	if _, err := tx.Exec(`
		UPDATE balances SET amount = amount + ?
		WHERE owner_id = ? AND currency = ?`, delta, ownerID, currency); err != nil {
		return Balance{}, fmt.Errorf("apply delta: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Balance{}, fmt.Errorf("commit: %w", err)
	}

	b.Amount = next
	return b, nil
}

// SetAbsolute overwrites a balance to an exact amount. This is the explicit
// admin operation, distinct in intent from PostDelta; the implied difference
// is recorded in the adjustments table so Reconcile stays meaningful.
func (s *Store) SetAbsolute(ownerID, currency string, amount float64, reason string) (Balance, error) {
	if err := validateKey(ownerID, currency); err != nil {
		return Balance{}, err
	}
	if amount < 0 || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return Balance{}, errInvalidf("amount must be a non-negative finite number, got %v", amount)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return Balance{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		INSERT OR IGNORE INTO balances (owner_id, currency, amount)
		VALUES (?, ?, 0)`, ownerID, currency); err != nil {
		return Balance{}, fmt.Errorf("ensure balance row: %w", err)
	}

	var b Balance
	err = tx.QueryRow(`
		SELECT id, owner_id, currency, amount
		FROM balances
		WHERE owner_id = ? AND currency = ?`, ownerID, currency).
		Scan(&b.ID, &b.OwnerID, &b.Currency, &b.Amount)
	if err != nil {
		return Balance{}, fmt.Errorf("read balance: %w", err)
	}

	diff := amount - b.Amount
	if diff != 0 {
		if _, err := tx.Exec(`
			INSERT INTO adjustments (owner_id, currency, amount, reason, created_at)
			VALUES (?, ?, ?, ?, ?)`,
			ownerID, currency, diff, reason, time.Now().UTC()); err != nil {
			return Balance{}, fmt.Errorf("record adjustment: %w", err)
		}
	}

	if _, err := tx.Exec(`
		UPDATE balances SET amount = ?
		WHERE owner_id = ? AND currency = ?`, amount, ownerID, currency); err != nil {
		return Balance{}, fmt.Errorf("set balance: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Balance{}, fmt.Errorf("commit: %w", err)
	}

	b.Amount = amount
	return b, nil
}

// RecordTransaction appends one ledger event and returns it with its
// generated ID and timestamp. It does not touch balances; pair it with
// PostDelta when the event settles.
func (s *Store) RecordTransaction(ownerID string, kind Kind, currency string, amount float64, status Status, comment string) (Transaction, error) {
	if err := validateKey(ownerID, currency); err != nil {
		return Transaction{}, err
	}
	if !validKind(kind) {
		return Transaction{}, errInvalidf("unknown transaction kind %q", kind)
	}
	if status == "" {
		status = StatusPending
	}
	if !validStatus(status) {
		return Transaction{}, errInvalidf("unknown transaction status %q", status)
	}
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return Transaction{}, errInvalidf("amount must be a finite number")
	}

	rec := Transaction{
		ID:        id.New(),
		OwnerID:   ownerID,
		Kind:      kind,
		Currency:  currency,
		Amount:    amount,
		Status:    status,
		CreatedAt: time.Now().UTC(),
		Comment:   comment,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO transactions
		(tx_id, owner_id, kind, currency, amount, status, created_at, comment)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.OwnerID, rec.Kind, rec.Currency, rec.Amount,
		rec.Status, rec.CreatedAt, rec.Comment,
	)
	if err != nil {
		return Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}
	return rec, nil
}

// RecordIdempotent appends a transaction keyed by a caller-supplied request
// id. Retrying the same request id returns the already-recorded row instead
// of appending a duplicate, which is what makes caller-side retries safe.
func (s *Store) RecordIdempotent(requestID, ownerID string, kind Kind, currency string, amount float64, status Status, comment string) (Transaction, error) {
	if requestID == "" {
		return Transaction{}, errInvalidf("request id is required")
	}
	if err := validateKey(ownerID, currency); err != nil {
		return Transaction{}, err
	}
	if !validKind(kind) {
		return Transaction{}, errInvalidf("unknown transaction kind %q", kind)
	}
	if status == "" {
		status = StatusPending
	}
	if !validStatus(status) {
		return Transaction{}, errInvalidf("unknown transaction status %q", status)
	}
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return Transaction{}, errInvalidf("amount must be a finite number")
	}

	txID := "req_" + requestID

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT OR IGNORE INTO transactions
		(tx_id, owner_id, kind, currency, amount, status, created_at, comment)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		txID, ownerID, kind, currency, amount, status, time.Now().UTC(), comment,
	)
	if err != nil {
		return Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}

	var rec Transaction
	err = s.db.QueryRow(`
		SELECT tx_id, owner_id, kind, currency, amount, status, created_at, comment
		FROM transactions
		WHERE tx_id = ?`, txID).
		Scan(&rec.ID, &rec.OwnerID, &rec.Kind, &rec.Currency, &rec.Amount,
			&rec.Status, &rec.CreatedAt, &rec.Comment)
	if err != nil {
		return Transaction{}, fmt.Errorf("read transaction: %w", err)
	}

	// A reused request id must carry the same financial payload. Status is
	// deliberately not compared: the stored row may have settled via
	// MarkTransaction since the first submission.
	if rec.OwnerID != ownerID || rec.Kind != kind || rec.Currency != currency || rec.Amount != amount {
		return Transaction{}, fmt.Errorf("%w: %s", ErrRequestMismatch, txID)
	}
	return rec, nil
}

// MarkTransaction moves a pending transaction to completed or failed. Rows
// already in a final state are left untouched and reported as an error.
func (s *Store) MarkTransaction(txID string, status Status) error {
	if status != StatusCompleted && status != StatusFailed {
		return errInvalidf("transactions can only move to %q or %q, not %q",
			StatusCompleted, StatusFailed, status)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`
		UPDATE transactions SET status = ?
		WHERE tx_id = ? AND status = ?`, status, txID, StatusPending)
	if err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return errInvalidf("transaction %s not found or not pending", txID)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func validateKey(ownerID, currency string) error {
	if ownerID == "" {
		return errInvalidf("owner id is required")
	}
	if currency == "" {
		return errInvalidf("currency is required")
	}
	return nil
}

func validKind(k Kind) bool {
	switch k {
	case KindDeposit, KindWithdrawal, KindAccrual, KindBonus:
		return true
	}
	return false
}

func validStatus(st Status) bool {
	switch st {
	case StatusPending, StatusCompleted, StatusFailed:
		return true
	}
	return false
}
