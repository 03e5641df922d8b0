package ledger

import (
	"fmt"
	"math"
)

// listCap bounds unfiltered listings, matching the admin view's page size.
const listCap = 500

// Balances returns the balance rows for one owner ordered by currency, or,
// with an empty ownerID, the most recent rows across all owners (admin view).
func (s *Store) Balances(ownerID string) ([]Balance, error) {
	q := `
		SELECT id, owner_id, currency, amount
		FROM balances
		WHERE owner_id = ?
		ORDER BY currency`
	args := []any{ownerID}
	if ownerID == "" {
		q = `
			SELECT id, owner_id, currency, amount
			FROM balances
			ORDER BY id DESC
			LIMIT ?`
		args = []any{listCap}
	}

	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("query balances: %w", err)
	}
	defer rows.Close()

	var out []Balance
	for rows.Next() {
		var b Balance
		if err := rows.Scan(&b.ID, &b.OwnerID, &b.Currency, &b.Amount); err != nil {
			return nil, fmt.Errorf("scan balance: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ListTransactions returns transactions ordered most recent first. An empty
// ownerID lists across all owners. limit <= 0 defaults to 100 and anything
// above the cap is clamped to it.
func (s *Store) ListTransactions(ownerID string, limit int) ([]Transaction, error) {
	if limit <= 0 {
		limit = 100
	}
	if limit > listCap {
		limit = listCap
	}

	q := `
		SELECT tx_id, owner_id, kind, currency, amount, status, created_at, comment
		FROM transactions
		WHERE owner_id = ?
		ORDER BY created_at DESC, tx_id DESC
		LIMIT ?`
	args := []any{ownerID, limit}
	if ownerID == "" {
		q = `
			SELECT tx_id, owner_id, kind, currency, amount, status, created_at, comment
			FROM transactions
			ORDER BY created_at DESC, tx_id DESC
			LIMIT ?`
		args = []any{limit}
	}

	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	var out []Transaction
	for rows.Next() {
		var t Transaction
		if err := rows.Scan(&t.ID, &t.OwnerID, &t.Kind, &t.Currency, &t.Amount,
			&t.Status, &t.CreatedAt, &t.Comment); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Owners returns every owner id appearing anywhere in the ledger. The union
// matters for the reconciliation sweep: an owner with transactions but no
// balance row yet must still be visited.
func (s *Store) Owners() ([]string, error) {
	rows, err := s.db.Query(`
		SELECT owner_id FROM balances
		UNION
		SELECT owner_id FROM transactions
		UNION
		SELECT owner_id FROM adjustments
		ORDER BY owner_id`)
	if err != nil {
		return nil, fmt.Errorf("query owners: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var o string
		if err := rows.Scan(&o); err != nil {
			return nil, fmt.Errorf("scan owner: %w", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Drift is one (owner, currency) pair whose stored balance disagrees with
// the sum of its completed transactions plus recorded manual adjustments.
type Drift struct {
	OwnerID  string
	Currency string
	Balance  float64
	Expected float64
}

// Diff returns how far the stored balance is from the derived one.
func (d Drift) Diff() float64 {
	return d.Balance - d.Expected
}

// driftTolerance absorbs float accumulation noise; anything beyond a tenth
// of a cent is real drift.
const driftTolerance = 1e-3

// Reconcile checks, for every currency the owner holds, that the stored
// balance equals the sum of completed transactions plus manual adjustments.
// Mismatches are returned for the caller to log; nothing is auto-corrected.
func (s *Store) Reconcile(ownerID string) ([]Drift, error) {
	if ownerID == "" {
		return nil, errInvalidf("owner id is required")
	}

	// The key set is the union of all three tables. A currency with completed
	// transactions but no balance row is a posting that never applied, which
	// is exactly the drift this sweep exists to find; iterating balances
	// alone would pass it silently. A missing balance row counts as zero.
	rows, err := s.db.Query(`
		SELECT currency FROM balances WHERE owner_id = ?
		UNION
		SELECT currency FROM transactions WHERE owner_id = ?
		UNION
		SELECT currency FROM adjustments WHERE owner_id = ?
		ORDER BY currency`, ownerID, ownerID, ownerID)
	if err != nil {
		return nil, fmt.Errorf("query ledger currencies: %w", err)
	}
	defer rows.Close()

	var currencies []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("scan currency: %w", err)
		}
		currencies = append(currencies, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var drifts []Drift
	for _, currency := range currencies {
		var stored, txSum, adjSum float64

		err := s.db.QueryRow(`
			SELECT COALESCE(
				(SELECT amount FROM balances WHERE owner_id = ? AND currency = ?), 0)`,
			ownerID, currency).Scan(&stored)
		if err != nil {
			return nil, fmt.Errorf("read balance: %w", err)
		}

		err = s.db.QueryRow(`
			SELECT COALESCE(SUM(amount), 0)
			FROM transactions
			WHERE owner_id = ? AND currency = ? AND status = ?`,
			ownerID, currency, StatusCompleted).Scan(&txSum)
		if err != nil {
			return nil, fmt.Errorf("sum transactions: %w", err)
		}

		err = s.db.QueryRow(`
			SELECT COALESCE(SUM(amount), 0)
			FROM adjustments
			WHERE owner_id = ? AND currency = ?`,
			ownerID, currency).Scan(&adjSum)
		if err != nil {
			return nil, fmt.Errorf("sum adjustments: %w", err)
		}

		expected := txSum + adjSum
		if math.Abs(stored-expected) > driftTolerance {
			drifts = append(drifts, Drift{
				OwnerID:  ownerID,
				Currency: currency,
				Balance:  stored,
				Expected: expected,
			})
		}
	}
	return drifts, nil
}
