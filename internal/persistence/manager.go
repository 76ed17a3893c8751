package persistence

import (
	"fmt"
	"sync"

	"github.com/kasuganosora/memdb/internal/catalog"
	"github.com/kasuganosora/memdb/internal/mvcc"
	"github.com/kasuganosora/memdb/internal/storage"
	"github.com/kasuganosora/memdb/internal/value"
	"github.com/kasuganosora/memdb/internal/wal"
)

// defaultWALSizeThreshold and defaultDDLThreshold are the "needs checkpoint"
// triggers from spec.md 4.5 when CheckpointPolicy leaves them unset.
const (
	defaultWALSizeThreshold = 4 * 1024 * 1024
	defaultDDLThreshold     = 500
)

// CheckpointPolicy controls when Manager.NeedsCheckpoint fires.
type CheckpointPolicy struct {
	WALSizeThreshold int64 // bytes; checkpoint once the WAL grows past this
	DDLEventCount    int   // checkpoint after this many DDL events since the last one
}

// Manager owns one database's on-disk durability: a WAL in front of the live
// store, and periodic snapshot checkpoints that let the WAL be truncated.
type Manager struct {
	mu sync.Mutex

	store        *storage.Store
	walPath      string
	snapshotPath string
	writer       *wal.Writer
	policy       CheckpointPolicy

	ddlSinceCheckpoint int
}

// Open builds (or reopens) a Manager bound to store: it loads the most
// recent snapshot at snapshotPath (if any), replays walPath on top of it,
// and returns the catalog rebuilt from what was recovered alongside the
// ready-to-append Manager. store must be empty (freshly constructed);
// Open populates it.
func Open(store *storage.Store, walPath, snapshotPath string, walOpts wal.Options, policy CheckpointPolicy) (*Manager, *catalog.Catalog, error) {
	if policy.WALSizeThreshold <= 0 {
		policy.WALSizeThreshold = defaultWALSizeThreshold
	}
	if policy.DDLEventCount <= 0 {
		policy.DDLEventCount = defaultDDLThreshold
	}

	cat, err := recoverFromDisk(store, walPath, snapshotPath)
	if err != nil {
		return nil, nil, err
	}

	w, err := wal.Open(walPath, walOpts)
	if err != nil {
		return nil, nil, err
	}

	m := &Manager{store: store, walPath: walPath, snapshotPath: snapshotPath, writer: w, policy: policy}
	return m, cat, nil
}

// recoveryState accumulates the final, post-replay shape of every table:
// its schema, its index definitions, and its surviving rows. Insert/Update
// overwrite a row in place and Delete removes it, so only the final state
// of each row matters, not the chain of mutations that produced it.
type recoveryState struct {
	schemas map[string]value.TableSchema
	rows    map[string]map[uint64]value.Row
	indexes map[string]map[string]indexDef
}

type indexDef struct {
	Name    string
	Columns []string
	Unique  bool
}

func newRecoveryState() *recoveryState {
	return &recoveryState{
		schemas: map[string]value.TableSchema{},
		rows:    map[string]map[uint64]value.Row{},
		indexes: map[string]map[string]indexDef{},
	}
}

func (rs *recoveryState) apply(rec wal.Record) error {
	switch rec.Op {
	case wal.OpCreateTable:
		ts := rec.TableSchema()
		rs.schemas[ts.Name] = ts
		rs.rows[ts.Name] = map[uint64]value.Row{}
		rs.indexes[ts.Name] = map[string]indexDef{}
	case wal.OpDropTable:
		delete(rs.schemas, rec.Table)
		delete(rs.rows, rec.Table)
		delete(rs.indexes, rec.Table)
	case wal.OpCreateIndex:
		if rs.indexes[rec.Table] == nil {
			rs.indexes[rec.Table] = map[string]indexDef{}
		}
		rs.indexes[rec.Table][rec.IndexName] = indexDef{Name: rec.IndexName, Columns: rec.IndexColumns, Unique: rec.IndexUnique}
	case wal.OpDropIndex:
		delete(rs.indexes[rec.Table], rec.IndexName)
	case wal.OpInsert, wal.OpUpdate:
		if rs.rows[rec.Table] == nil {
			rs.rows[rec.Table] = map[uint64]value.Row{}
		}
		rs.rows[rec.Table][rec.RowID] = rec.Row()
	case wal.OpDelete:
		delete(rs.rows[rec.Table], rec.RowID)
	default:
		return fmt.Errorf("persistence: unknown WAL op %v during recovery", rec.Op)
	}
	return nil
}

// recoverFromDisk loads snapshotPath (if present), seeds a recoveryState from it,
// replays walPath on top, then materializes the result into store and
// returns the catalog that describes it. Trailing WAL corruption is
// tolerated per spec.md 4.5: whatever was read cleanly before it still
// applies.
func recoverFromDisk(store *storage.Store, walPath, snapshotPath string) (*catalog.Catalog, error) {
	rs := newRecoveryState()

	snap, ok, err := readSnapshot(snapshotPath)
	if err != nil {
		return nil, err
	}
	if ok {
		for _, st := range snap.Tables {
			ts := decodeTableSchema(st.Schema)
			rs.schemas[ts.Name] = ts
			rows := make(map[uint64]value.Row, len(st.Rows))
			for _, r := range st.Rows {
				rows[r.RowID] = decodeRow(r.Values)
			}
			rs.rows[ts.Name] = rows
			idx := map[string]indexDef{}
			for col := range ts.IndexedColumns {
				name := "pk_" + ts.Name + "_" + col
				idx[name] = indexDef{Name: name, Columns: []string{col}, Unique: true}
			}
			rs.indexes[ts.Name] = idx
		}
	}

	if _, err := wal.Replay(walPath, 0, rs.apply); err != nil {
		if _, corrupt := err.(*wal.CorruptionError); !corrupt {
			return nil, err
		}
		// Corrupt/truncated tail: keep everything replayed before it.
	}

	return materialize(store, rs)
}

func materialize(store *storage.Store, rs *recoveryState) (*catalog.Catalog, error) {
	cat := catalog.New()
	txMgr := store.TxManager()
	recXID := txMgr.Begin(mvcc.ReadCommitted)

	for name, ts := range rs.schemas {
		idxDefs := rs.indexes[name]
		final := ts
		final.IndexedColumns = map[string]bool{}
		for _, d := range idxDefs {
			for _, col := range d.Columns {
				final = final.WithIndex(col)
			}
		}
		if err := store.CreateTable(final); err != nil {
			return nil, fmt.Errorf("persistence: recreate table %q: %w", name, err)
		}
		for _, d := range idxDefs {
			if err := store.CreateIndex(d.Name, name, d.Columns, d.Unique); err != nil {
				return nil, fmt.Errorf("persistence: recreate index %q on %q: %w", d.Name, name, err)
			}
		}
		for rowID, row := range rs.rows[name] {
			if err := store.RestoreRow(name, rowID, row, recXID); err != nil {
				return nil, fmt.Errorf("persistence: restore row %d of %q: %w", rowID, name, err)
			}
		}
		cat = cat.WithTable(final)
	}

	if err := store.Commit(recXID); err != nil {
		return nil, fmt.Errorf("persistence: commit recovery transaction: %w", err)
	}
	return cat, nil
}

// Log* append one WAL record each, matching the entries spec.md 4.5 names.
// DDL ops additionally count toward the checkpoint policy.

func (m *Manager) LogCreateTable(schema value.TableSchema) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ddlSinceCheckpoint++
	_, err := m.writer.Append(wal.NewCreateTable(schema))
	return err
}

func (m *Manager) LogDropTable(table string, final bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ddlSinceCheckpoint++
	_, err := m.writer.Append(wal.NewDropTable(table, final))
	return err
}

func (m *Manager) LogCreateIndex(name, table string, columns []string, unique bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ddlSinceCheckpoint++
	_, err := m.writer.Append(wal.NewCreateIndex(name, table, columns, unique))
	return err
}

func (m *Manager) LogDropIndex(name, table string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ddlSinceCheckpoint++
	_, err := m.writer.Append(wal.NewDropIndex(name, table))
	return err
}

func (m *Manager) LogInsert(table string, rowID uint64, row value.Row) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, err := m.writer.Append(wal.NewInsert(table, rowID, row))
	return err
}

func (m *Manager) LogUpdate(table string, rowID uint64, old, new_ value.Row) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, err := m.writer.Append(wal.NewUpdate(table, rowID, old, new_))
	return err
}

func (m *Manager) LogDelete(table string, rowID uint64, old value.Row) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, err := m.writer.Append(wal.NewDelete(table, rowID, old))
	return err
}

// NeedsCheckpoint reports whether the WAL has grown past its size threshold
// or enough DDL events have accumulated since the last checkpoint.
func (m *Manager) NeedsCheckpoint() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writer.Position() >= m.policy.WALSizeThreshold || m.ddlSinceCheckpoint >= m.policy.DDLEventCount
}

// Checkpoint snapshots cat's tables (reading each one's committed rows
// through a fresh auto-commit snapshot) to snapshotPath, then truncates the
// WAL: everything before the snapshot is now redundant.
func (m *Manager) Checkpoint(cat *catalog.Catalog) error {
	tables := make([]tableState, 0, len(cat.TableNames()))
	xid, _ := m.store.TxManager().AutoCommitSnapshot()
	for _, name := range cat.TableNames() {
		ts, err := cat.GetTable(name)
		if err != nil {
			return err
		}
		visible, err := m.store.Scan(xid, name)
		if err != nil {
			return err
		}
		rows := make(map[uint64]value.Row, len(visible))
		for _, v := range visible {
			rows[v.RowID] = v.Data
		}
		tables = append(tables, tableState{Schema: ts, Rows: rows})
	}
	if err := m.store.Commit(xid); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	pos := m.writer.Position()
	snap := newSnapshot(pos, tables)
	if err := writeSnapshotAtomic(m.snapshotPath, snap); err != nil {
		return err
	}
	if err := m.writer.Truncate(); err != nil {
		return err
	}
	m.ddlSinceCheckpoint = 0
	return nil
}

// Close flushes and closes the WAL writer.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writer.Close()
}
