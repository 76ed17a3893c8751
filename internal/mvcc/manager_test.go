package mvcc

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_Begin(t *testing.T) {
	mgr := NewManager()
	xid := mgr.Begin(ReadCommitted)
	assert.Equal(t, XIDBootstrap, xid)

	tx, err := mgr.Get(xid)
	require.NoError(t, err)
	assert.Equal(t, StatusActive, tx.Status())
	assert.Equal(t, ReadCommitted, tx.Level())
}

func TestManager_BeginAdvancesXID(t *testing.T) {
	mgr := NewManager()
	xid1 := mgr.Begin(ReadCommitted)
	xid2 := mgr.Begin(ReadCommitted)
	assert.Greater(t, uint64(xid2), uint64(xid1))
}

func TestManager_Commit(t *testing.T) {
	mgr := NewManager()
	xid := mgr.Begin(ReadCommitted)

	require.NoError(t, mgr.Commit(xid, nil))

	tx, err := mgr.Get(xid)
	require.NoError(t, err)
	assert.Equal(t, StatusCommitted, tx.Status())
}

func TestManager_CommitAlreadyCommitted(t *testing.T) {
	mgr := NewManager()
	xid := mgr.Begin(ReadCommitted)
	require.NoError(t, mgr.Commit(xid, nil))

	err := mgr.Commit(xid, nil)
	assert.Error(t, err)
}

func TestManager_CommitValidationFailureStaysActive(t *testing.T) {
	mgr := NewManager()
	xid := mgr.Begin(Serializable)

	boom := assert.AnError
	err := mgr.Commit(xid, func(tx *Transaction) error { return boom })
	assert.ErrorIs(t, err, boom)

	tx, _ := mgr.Get(xid)
	assert.Equal(t, StatusActive, tx.Status())
}

func TestManager_Rollback(t *testing.T) {
	mgr := NewManager()
	xid := mgr.Begin(ReadCommitted)

	require.NoError(t, mgr.Rollback(xid, nil))

	tx, err := mgr.Get(xid)
	require.NoError(t, err)
	assert.Equal(t, StatusAborted, tx.Status())
	assert.True(t, mgr.IsAborted(xid))
}

func TestManager_GetUnknownTransaction(t *testing.T) {
	mgr := NewManager()
	_, err := mgr.Get(XID(999))
	assert.Error(t, err)
}

func TestManager_RecordChangeRejectsInactive(t *testing.T) {
	mgr := NewManager()
	xid := mgr.Begin(ReadCommitted)
	require.NoError(t, mgr.Commit(xid, nil))

	err := mgr.RecordChange(xid, Change{Kind: ChangeInsertRow, Table: "t", RowID: 1})
	assert.Error(t, err)
}

func TestManager_SnapshotIsolation_RepeatableRead(t *testing.T) {
	mgr := NewManager()
	xid1 := mgr.Begin(RepeatableRead)
	tx1, _ := mgr.Get(xid1)
	snap1 := tx1.Snapshot()

	xid2 := mgr.Begin(RepeatableRead)

	// txn1's fixed snapshot predates txn2, so txn2 is neither committed nor in xip.
	assert.False(t, snap1.IsActive(xid2))
	assert.False(t, snap1.CommittedAt(xid2, mgr.AbortedSet()))
}

func TestManager_SnapshotIsolation_ReadCommittedSeesLaterCommits(t *testing.T) {
	mgr := NewManager()
	xidReader := mgr.Begin(ReadCommitted)
	readerTx, _ := mgr.Get(xidReader)

	xidWriter := mgr.Begin(ReadCommitted)
	require.NoError(t, mgr.Commit(xidWriter, nil))

	// ReadCommitted mints a fresh snapshot per call, so it now sees the commit.
	snap := readerTx.Snapshot()
	assert.True(t, snap.CommittedAt(xidWriter, mgr.AbortedSet()))
}

func TestTransaction_ChangeLogAndWriteSet(t *testing.T) {
	mgr := NewManager()
	xid := mgr.Begin(ReadCommitted)

	require.NoError(t, mgr.RecordChange(xid, Change{Kind: ChangeInsertRow, Table: "users", RowID: 1}))
	require.NoError(t, mgr.RecordChange(xid, Change{Kind: ChangeUpdateRow, Table: "users", RowID: 1}))
	require.NoError(t, mgr.RecordChange(xid, Change{Kind: ChangeInsertRow, Table: "orders", RowID: 7}))

	tx, _ := mgr.Get(xid)
	assert.Len(t, tx.ChangeLog(), 3)

	ws := tx.WriteSet()
	assert.Len(t, ws, 2) // (users,1) deduped, plus (orders,7)
}

// TestSnapshot_VisibilityProperty checks the MVCC visibility rule holds for
// randomly generated creation/deletion orderings: a row is visible to a
// reader iff its creator committed before the reader's snapshot and it
// either was never deleted or its deleter has not committed.
func TestSnapshot_VisibilityProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	mgr := NewManager()

	for i := 0; i < 200; i++ {
		creator := mgr.Begin(ReadCommitted)
		var deleter XID
		if rng.Intn(2) == 0 {
			deleter = mgr.Begin(ReadCommitted)
		}

		creatorCommits := rng.Intn(2) == 0
		if creatorCommits {
			require.NoError(t, mgr.Commit(creator, nil))
		}
		if deleter != XIDNone {
			if rng.Intn(2) == 0 {
				require.NoError(t, mgr.Commit(deleter, nil))
			} else {
				require.NoError(t, mgr.Rollback(deleter, nil))
			}
		}

		readerXID := mgr.Begin(ReadCommitted)
		readerTx, _ := mgr.Get(readerXID)
		snap := readerTx.Snapshot()

		visible := snap.Visible(creator, deleter, mgr.AbortedSet())

		wantCreated := snap.CommittedAt(creator, mgr.AbortedSet())
		wantVisible := wantCreated && (deleter == XIDNone || !snap.CommittedAt(deleter, mgr.AbortedSet()))
		assert.Equal(t, wantVisible, visible)

		require.NoError(t, mgr.Commit(readerXID, nil))
		if creatorCommits {
			continue
		}
		require.NoError(t, mgr.Rollback(creator, nil))
	}
}

func TestSnapshot_ReadUncommittedSeesUncommittedInserts(t *testing.T) {
	mgr := NewManager()
	creator := mgr.Begin(ReadCommitted)

	readerXID := mgr.Begin(ReadUncommitted)
	readerTx, _ := mgr.Get(readerXID)
	snap := readerTx.Snapshot()

	assert.True(t, snap.Visible(creator, XIDNone, mgr.AbortedSet()))
}
