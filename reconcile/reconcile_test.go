package reconcile

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ipgold/cycleledger/ledger"
)

func newTestJob(t *testing.T) (*Job, *ledger.Store) {
	t.Helper()

	store, err := ledger.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	job, err := New(store, "0 3 * * *")
	require.NoError(t, err)
	return job, store
}

func TestNewRejectsBadCronSpec(t *testing.T) {
	t.Parallel()

	store, err := ledger.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	_, err = New(store, "not a cron spec")
	assert.Error(t, err)
}

func TestRunOnceCleanLedger(t *testing.T) {
	t.Parallel()

	job, store := newTestJob(t)

	// Paired delta and completed transaction: consistent.
	_, err := store.PostDelta("alice", "USD", 1000)
	require.NoError(t, err)
	rec, err := store.RecordTransaction("alice", ledger.KindDeposit, "USD", 1000, ledger.StatusPending, "")
	require.NoError(t, err)
	require.NoError(t, store.MarkTransaction(rec.ID, ledger.StatusCompleted))

	assert.Empty(t, job.RunOnce())
}

func TestRunOnceSeesOwnersWithoutBalances(t *testing.T) {
	t.Parallel()

	job, store := newTestJob(t)

	// A completed deposit whose balance posting never applied leaves no
	// balance row at all; the sweep must still visit the owner.
	_, err := store.RecordTransaction("ghost", ledger.KindDeposit, "USD", 500, ledger.StatusCompleted, "")
	require.NoError(t, err)

	drifts := job.RunOnce()
	require.Len(t, drifts, 1)
	assert.Equal(t, "ghost", drifts[0].OwnerID)
	assert.InDelta(t, -500, drifts[0].Diff(), 1e-9)
}

func TestRunOnceReportsDrift(t *testing.T) {
	t.Parallel()

	job, store := newTestJob(t)

	// One consistent owner, one drifting.
	_, err := store.PostDelta("alice", "USD", 500)
	require.NoError(t, err)
	_, err = store.RecordTransaction("alice", ledger.KindDeposit, "USD", 500, ledger.StatusCompleted, "")
	require.NoError(t, err)

	_, err = store.PostDelta("bob", "USD", 300)
	require.NoError(t, err)

	drifts := job.RunOnce()
	require.Len(t, drifts, 1)
	assert.Equal(t, "bob", drifts[0].OwnerID)
	assert.InDelta(t, 300, drifts[0].Diff(), 1e-9)
}
