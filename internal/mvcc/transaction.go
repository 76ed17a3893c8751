package mvcc

import "sync"

// Transaction tracks one in-flight (or finished) unit of work: its id,
// lifecycle state, isolation level, fixed snapshot, and change log.
type Transaction struct {
	mu        sync.Mutex
	id        XID
	status    Status
	level     IsolationLevel
	snapshot  *Snapshot
	changeLog []Change
	manager   *Manager
}

func (t *Transaction) ID() XID { return t.id }

func (t *Transaction) Level() IsolationLevel { return t.level }

func (t *Transaction) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// Snapshot returns the snapshot to use for this transaction's reads: the
// fixed snapshot taken at Begin for RepeatableRead/Serializable, a freshly
// minted one for ReadCommitted (so later reads see later commits), and a
// permissive one for ReadUncommitted.
func (t *Transaction) Snapshot() *Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.level == ReadCommitted {
		return t.manager.freshSnapshot(t.id, t.level)
	}
	return t.snapshot
}

// ChangeLog returns a copy of the accumulated change log.
func (t *Transaction) ChangeLog() []Change {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Change, len(t.changeLog))
	copy(out, t.changeLog)
	return out
}

func (t *Transaction) appendChange(c Change) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.changeLog = append(t.changeLog, c)
}

// WriteSet returns the distinct (table, rowID) pairs this transaction wrote,
// used for serializable write-write conflict validation at commit time.
func (t *Transaction) WriteSet() []struct {
	Table string
	RowID uint64
} {
	t.mu.Lock()
	defer t.mu.Unlock()
	seen := map[string]bool{}
	var out []struct {
		Table string
		RowID uint64
	}
	for _, c := range t.changeLog {
		k := c.Table + "\x00" + itoa(c.RowID)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, struct {
			Table string
			RowID uint64
		}{Table: c.Table, RowID: c.RowID})
	}
	return out
}

func itoa(u uint64) string {
	if u == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for u > 0 {
		i--
		buf[i] = byte('0' + u%10)
		u /= 10
	}
	return string(buf[i:])
}
