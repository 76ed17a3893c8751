package mvcc

import (
	"fmt"
	"sync"
)

// Manager is the transaction manager: it hands out ids,
// tracks the active/aborted sets, and records per-transaction change logs.
type Manager struct {
	mu      sync.Mutex
	nextID  XID
	active  map[XID]bool
	aborted map[XID]bool
	txs     map[XID]*Transaction
}

// NewManager returns a manager whose first assigned id is XIDBootstrap.
func NewManager() *Manager {
	return &Manager{
		nextID:  XIDBootstrap,
		active:  map[XID]bool{},
		aborted: map[XID]bool{},
		txs:     map[XID]*Transaction{},
	}
}

// NotActiveError is returned for operations on a transaction that is not
// currently active (already committed/aborted, or never existed).
type NotActiveError struct{ ID XID }

func (e *NotActiveError) Error() string {
	return fmt.Sprintf("transaction %s is not active", e.ID)
}

// Begin snapshots the active set atomically and returns a new transaction id.
func (m *Manager) Begin(level IsolationLevel) XID {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++

	xmin := id
	for a := range m.active {
		if a < xmin {
			xmin = a
		}
	}
	xmax := id + 1
	snap := NewSnapshot(id, xmin, xmax, m.active, level)

	tx := &Transaction{id: id, status: StatusActive, level: level, snapshot: snap, manager: m}
	m.active[id] = true
	m.txs[id] = tx
	return id
}

func (m *Manager) freshSnapshot(self XID, level IsolationLevel) *Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	xmin := self
	for a := range m.active {
		if a < xmin {
			xmin = a
		}
	}
	return NewSnapshot(self, xmin, m.nextID, m.active, level)
}

// Get returns the transaction for id.
func (m *Manager) Get(id XID) (*Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.txs[id]
	if !ok {
		return nil, &NotActiveError{ID: id}
	}
	return tx, nil
}

// RecordChange appends c to id's change log; rejects non-active transactions.
func (m *Manager) RecordChange(id XID, c Change) error {
	m.mu.Lock()
	tx, ok := m.txs[id]
	active := ok && tx.Status() == StatusActive
	m.mu.Unlock()
	if !active {
		return &NotActiveError{ID: id}
	}
	tx.appendChange(c)
	return nil
}

// Commit marks id committed. If validate is non-nil (used for Serializable
// write-write conflict checks against storage, which this package cannot
// import), it runs before the transaction is marked committed; a failure
// leaves the transaction active so the caller can roll it back instead.
func (m *Manager) Commit(id XID, validate func(*Transaction) error) error {
	m.mu.Lock()
	tx, ok := m.txs[id]
	m.mu.Unlock()
	if !ok || tx.Status() != StatusActive {
		return &NotActiveError{ID: id}
	}

	if validate != nil {
		if err := validate(tx); err != nil {
			return err
		}
	}

	tx.mu.Lock()
	tx.status = StatusCommitted
	tx.mu.Unlock()

	m.mu.Lock()
	delete(m.active, id)
	m.mu.Unlock()
	return nil
}

// Rollback marks id aborted. applyInverse (when non-nil) is invoked with the
// transaction so the caller can reverse its change log against storage
// under the appropriate per-table write guards before the state flips.
func (m *Manager) Rollback(id XID, applyInverse func(*Transaction) error) error {
	m.mu.Lock()
	tx, ok := m.txs[id]
	m.mu.Unlock()
	if !ok {
		return &NotActiveError{ID: id}
	}

	if applyInverse != nil {
		if err := applyInverse(tx); err != nil {
			return fmt.Errorf("rollback of %s failed: %w", id, err)
		}
	}

	tx.mu.Lock()
	tx.status = StatusAborted
	tx.mu.Unlock()

	m.mu.Lock()
	delete(m.active, id)
	m.aborted[id] = true
	m.mu.Unlock()
	return nil
}

// AutoCommitSnapshot returns a fresh snapshot for statements run outside an
// explicit transaction: begin-execute-commit in one shot, Read Committed.
func (m *Manager) AutoCommitSnapshot() (XID, *Snapshot) {
	id := m.Begin(ReadCommitted)
	tx, _ := m.Get(id)
	return id, tx.Snapshot()
}

// AbortedSet returns a defensive copy of the aborted-transaction set, for
// passing into Snapshot.Visible/CommittedAt.
func (m *Manager) AbortedSet() map[XID]bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[XID]bool, len(m.aborted))
	for k := range m.aborted {
		out[k] = true
	}
	return out
}

// IsAborted reports whether xid is in the aborted set.
func (m *Manager) IsAborted(xid XID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.aborted[xid]
}
