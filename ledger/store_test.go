package ledger

import (
	"database/sql"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "test.db")

	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	return s, path
}

func TestSchemaCreated(t *testing.T) {
	t.Parallel()

	_, path := newTestStore(t)

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	rows, err := db.Query(`SELECT name FROM sqlite_master WHERE type='table' AND name IN ('balances','transactions','adjustments')`)
	require.NoError(t, err)
	defer rows.Close()

	found := map[string]bool{}
	for rows.Next() {
		var name string
		require.NoError(t, rows.Scan(&name))
		found[name] = true
	}
	require.NoError(t, rows.Err())

	assert.True(t, found["balances"])
	assert.True(t, found["transactions"])
	assert.True(t, found["adjustments"])
}

func TestPostDeltaCreatesAndAccumulates(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)

	b, err := s.PostDelta("user-1", "USD", 1000)
	require.NoError(t, err)
	assert.InDelta(t, 1000, b.Amount, 1e-9)

	b, err = s.PostDelta("user-1", "USD", -250)
	require.NoError(t, err)
	assert.InDelta(t, 750, b.Amount, 1e-9)

	// A second currency gets its own row.
	b, err = s.PostDelta("user-1", "IPG", 5)
	require.NoError(t, err)
	assert.InDelta(t, 5, b.Amount, 1e-9)

	balances, err := s.Balances("user-1")
	require.NoError(t, err)
	require.Len(t, balances, 2)
}

func TestPostDeltaInsufficientFunds(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)

	_, err := s.PostDelta("user-1", "USD", 100)
	require.NoError(t, err)

	_, err = s.PostDelta("user-1", "USD", -100.01)
	require.ErrorIs(t, err, ErrInsufficientFunds)

	// The refused write must not change state.
	balances, err := s.Balances("user-1")
	require.NoError(t, err)
	require.Len(t, balances, 1)
	assert.InDelta(t, 100, balances[0].Amount, 1e-9)
}

func TestPostDeltaRequiresKey(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)

	_, err := s.PostDelta("", "USD", 10)
	assert.Error(t, err)
	_, err = s.PostDelta("user-1", "", 10)
	assert.Error(t, err)
}

func TestSetAbsoluteRecordsAdjustment(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)

	_, err := s.PostDelta("user-1", "USD", 100)
	require.NoError(t, err)

	b, err := s.SetAbsolute("user-1", "USD", 500, "support ticket 1234")
	require.NoError(t, err)
	assert.InDelta(t, 500, b.Amount, 1e-9)

	// The overwrite is documented as an adjustment, so a matching completed
	// transaction for the original delta keeps reconciliation clean.
	_, err = s.RecordTransaction("user-1", KindDeposit, "USD", 100, StatusCompleted, "")
	require.NoError(t, err)

	drifts, err := s.Reconcile("user-1")
	require.NoError(t, err)
	assert.Empty(t, drifts)
}

func TestSetAbsoluteRejectsNegative(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)

	_, err := s.SetAbsolute("user-1", "USD", -1, "bad")
	assert.Error(t, err)
}

func TestRecordTransactionDefaults(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)

	rec, err := s.RecordTransaction("user-1", KindDeposit, "USD", 1000, "", "initial deposit")
	require.NoError(t, err)

	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, StatusPending, rec.Status)
	assert.Equal(t, "initial deposit", rec.Comment)
	assert.WithinDuration(t, time.Now().UTC(), rec.CreatedAt, 5*time.Second)
}

func TestRecordTransactionRejectsUnknownKind(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)

	_, err := s.RecordTransaction("user-1", Kind("TRANSFER"), "USD", 10, "", "")
	assert.Error(t, err)

	_, err = s.RecordTransaction("user-1", KindDeposit, "USD", 10, Status("done"), "")
	assert.Error(t, err)
}

func TestRecordIdempotent(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)

	first, err := s.RecordIdempotent("abc-123", "user-1", KindDeposit, "USD", 1000, StatusPending, "wire")
	require.NoError(t, err)
	assert.Equal(t, "req_abc-123", first.ID)

	// A retry of the same request returns the original row untouched.
	retry, err := s.RecordIdempotent("abc-123", "user-1", KindDeposit, "USD", 1000, StatusPending, "wire")
	require.NoError(t, err)
	assert.Equal(t, first, retry)

	txs, err := s.ListTransactions("user-1", 0)
	require.NoError(t, err)
	assert.Len(t, txs, 1)

	_, err = s.RecordIdempotent("", "user-1", KindDeposit, "USD", 1, StatusPending, "")
	assert.Error(t, err)
}

func TestMarkTransactionTransitions(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)

	rec, err := s.RecordTransaction("user-1", KindDeposit, "USD", 1000, StatusPending, "")
	require.NoError(t, err)

	require.NoError(t, s.MarkTransaction(rec.ID, StatusCompleted))

	// Completed rows never reopen or change again.
	assert.Error(t, s.MarkTransaction(rec.ID, StatusFailed))
	assert.Error(t, s.MarkTransaction(rec.ID, StatusCompleted))

	// Only the two final states are valid targets.
	rec2, err := s.RecordTransaction("user-1", KindDeposit, "USD", 10, StatusPending, "")
	require.NoError(t, err)
	assert.Error(t, s.MarkTransaction(rec2.ID, StatusPending))

	// Unknown id.
	assert.Error(t, s.MarkTransaction("no-such-id", StatusCompleted))
}

func TestListTransactionsOrderAndLimit(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)

	var ids []string
	for i := 0; i < 5; i++ {
		rec, err := s.RecordTransaction("user-1", KindAccrual, "USD", float64(i+1), StatusCompleted, "")
		require.NoError(t, err)
		ids = append(ids, rec.ID)
	}

	txs, err := s.ListTransactions("user-1", 3)
	require.NoError(t, err)
	require.Len(t, txs, 3)

	// Most recent first; ULIDs break created_at ties.
	assert.Equal(t, ids[4], txs[0].ID)
	assert.Equal(t, ids[3], txs[1].ID)
	assert.Equal(t, ids[2], txs[2].ID)

	// Empty owner lists across owners.
	_, err = s.RecordTransaction("user-2", KindBonus, "USD", 7, StatusCompleted, "")
	require.NoError(t, err)

	all, err := s.ListTransactions("", 0)
	require.NoError(t, err)
	assert.Len(t, all, 6)
}

func TestReconcileDetectsDrift(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)

	// Balance moved with no matching completed transaction: drift.
	_, err := s.PostDelta("user-1", "USD", 500)
	require.NoError(t, err)

	drifts, err := s.Reconcile("user-1")
	require.NoError(t, err)
	require.Len(t, drifts, 1)
	assert.InDelta(t, 500, drifts[0].Balance, 1e-9)
	assert.InDelta(t, 0, drifts[0].Expected, 1e-9)
	assert.InDelta(t, 500, drifts[0].Diff(), 1e-9)

	// Pending transactions do not count toward the derived balance.
	rec, err := s.RecordTransaction("user-1", KindDeposit, "USD", 500, StatusPending, "")
	require.NoError(t, err)

	drifts, err = s.Reconcile("user-1")
	require.NoError(t, err)
	assert.Len(t, drifts, 1)

	// Once completed, the ledger is consistent again.
	require.NoError(t, s.MarkTransaction(rec.ID, StatusCompleted))

	drifts, err = s.Reconcile("user-1")
	require.NoError(t, err)
	assert.Empty(t, drifts)
}

func TestOwners(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)

	_, err := s.PostDelta("alice", "USD", 1)
	require.NoError(t, err)
	_, err = s.PostDelta("bob", "USD", 1)
	require.NoError(t, err)
	_, err = s.PostDelta("alice", "IPG", 1)
	require.NoError(t, err)

	owners, err := s.Owners()
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, owners)
}

func TestConcurrentPostDeltaNoLostUpdates(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)

	const (
		workers = 20
		rounds  = 25
	)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				_, err := s.PostDelta("user-1", "USD", 1)
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	balances, err := s.Balances("user-1")
	require.NoError(t, err)
	require.Len(t, balances, 1)

	// Every delta applied exactly once.
	assert.InDelta(t, float64(workers*rounds), balances[0].Amount, 1e-9)
}

func TestCallerMistakesAreTypedValidationErrors(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)

	tests := []struct {
		name string
		call func() error
	}{
		{"missing owner", func() error { _, err := s.PostDelta("", "USD", 10); return err }},
		{"missing currency", func() error { _, err := s.PostDelta("user-1", "", 10); return err }},
		{"negative set", func() error { _, err := s.SetAbsolute("user-1", "USD", -1, ""); return err }},
		{"unknown kind", func() error { _, err := s.RecordTransaction("user-1", Kind("TRANSFER"), "USD", 10, "", ""); return err }},
		{"unknown status", func() error { _, err := s.RecordTransaction("user-1", KindDeposit, "USD", 10, Status("done"), ""); return err }},
		{"empty request id", func() error { _, err := s.RecordIdempotent("", "user-1", KindDeposit, "USD", 1, "", ""); return err }},
		{"mark to pending", func() error { return s.MarkTransaction("tx", StatusPending) }},
		{"mark unknown id", func() error { return s.MarkTransaction("no-such-id", StatusCompleted) }},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.ErrorIs(t, tt.call(), ErrInvalidInput)
		})
	}
}

func TestPersistenceFailureIsNotValidation(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)
	require.NoError(t, s.Close())

	// A valid payload against a dead database must not look like a caller
	// mistake to the gateway's status mapping.
	_, err := s.RecordTransaction("user-1", KindDeposit, "USD", 1000, "", "")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrInvalidInput))

	err = s.MarkTransaction("tx", StatusCompleted)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrInvalidInput))
}

func TestRecordIdempotentRejectsChangedPayload(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)

	first, err := s.RecordIdempotent("wire-9", "user-1", KindDeposit, "USD", 1000, StatusPending, "")
	require.NoError(t, err)

	// Same request id, different amount: refused, nothing appended.
	_, err = s.RecordIdempotent("wire-9", "user-1", KindDeposit, "USD", 999, StatusPending, "")
	require.ErrorIs(t, err, ErrRequestMismatch)

	_, err = s.RecordIdempotent("wire-9", "user-2", KindDeposit, "USD", 1000, StatusPending, "")
	require.ErrorIs(t, err, ErrRequestMismatch)

	_, err = s.RecordIdempotent("wire-9", "user-1", KindBonus, "USD", 1000, StatusPending, "")
	require.ErrorIs(t, err, ErrRequestMismatch)

	txs, err := s.ListTransactions("user-1", 0)
	require.NoError(t, err)
	assert.Len(t, txs, 1)

	// A faithful retry still succeeds after the row settles; status is not
	// part of the payload comparison.
	require.NoError(t, s.MarkTransaction(first.ID, StatusCompleted))
	retry, err := s.RecordIdempotent("wire-9", "user-1", KindDeposit, "USD", 1000, StatusPending, "")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, retry.Status)
}

func TestReconcileFindsUnpostedBalance(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)

	// A completed deposit whose balance posting never applied: no balance
	// row exists at all.
	_, err := s.RecordTransaction("ghost", KindDeposit, "USD", 500, StatusCompleted, "")
	require.NoError(t, err)

	drifts, err := s.Reconcile("ghost")
	require.NoError(t, err)
	require.Len(t, drifts, 1)
	assert.Equal(t, "USD", drifts[0].Currency)
	assert.InDelta(t, 0, drifts[0].Balance, 1e-9)
	assert.InDelta(t, 500, drifts[0].Expected, 1e-9)

	// The sweep can see the owner even though balances has no row for it.
	owners, err := s.Owners()
	require.NoError(t, err)
	assert.Contains(t, owners, "ghost")

	// Applying the posting clears the drift.
	_, err = s.PostDelta("ghost", "USD", 500)
	require.NoError(t, err)

	drifts, err = s.Reconcile("ghost")
	require.NoError(t, err)
	assert.Empty(t, drifts)
}
