package mvcc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestXIDOrdering(t *testing.T) {
	xid1 := XID(100)
	xid2 := XID(200)
	xid3 := XID(100)

	assert.True(t, xid2 > xid1)
	assert.True(t, xid1 >= xid3)
	assert.False(t, xid1 > xid3)
	assert.Equal(t, "100", xid1.String())
}

func TestStatusValues(t *testing.T) {
	assert.Equal(t, 0, int(StatusActive))
	assert.Equal(t, 1, int(StatusCommitted))
	assert.Equal(t, 2, int(StatusAborted))
	assert.Equal(t, "Active", StatusActive.String())
	assert.Equal(t, "Committed", StatusCommitted.String())
	assert.Equal(t, "Aborted", StatusAborted.String())
}

func TestIsolationLevelValues(t *testing.T) {
	assert.Equal(t, "ReadUncommitted", ReadUncommitted.String())
	assert.Equal(t, "ReadCommitted", ReadCommitted.String())
	assert.Equal(t, "RepeatableRead", RepeatableRead.String())
	assert.Equal(t, "Serializable", Serializable.String())
}
