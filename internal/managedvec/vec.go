// Package managedvec implements PersistVec: a typed collection of
// persisted items kept entirely in memory, backed by the same SQL table
// internal/persist's Entity type writes through, plus a periodic JSON
// snapshot on disk so a restart can repopulate the working set without a
// full table scan.
package managedvec

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/kasuganosora/memdb/internal/dynschema"
	"github.com/kasuganosora/memdb/internal/logging"
	"github.com/kasuganosora/memdb/internal/persist"
	"github.com/kasuganosora/memdb/internal/value"
)

// ReplicationMode selects how a snapshot is shipped to Config.Replicas.
type ReplicationMode int

const (
	// ReplicationNone ships nothing (Config.Replicas is ignored).
	ReplicationNone ReplicationMode = iota
	// ReplicationSync writes every replica in turn, returning the first
	// failure and stopping there.
	ReplicationSync
	// ReplicationAsyncBestEffort fires a goroutine per replica, counting
	// failures and logging them rather than surfacing them to the caller.
	ReplicationAsyncBestEffort
)

// Config configures Open.
type Config struct {
	Root             string
	Name             string
	SnapshotEveryOps int
	Replicas         []string
	ReplicationMode  ReplicationMode
	Logger           *logging.Logger
}

// PersistVec is one managed collection: an in-memory map of persist.Entity
// values, kept atomic with respect to its own JSON snapshot file.
type PersistVec struct {
	mu sync.Mutex

	ps     *persist.PersistSession
	schema dynschema.DynamicSchema
	cfg    Config
	log    *logging.Logger

	items map[string]*persist.Entity
	order []string

	opsSinceSnapshot int
	replicationFails  int64
}

// Open provisions schema's backing table (if not already present),
// creates Config.Root, and restores the collection from its snapshot file
// if one exists — the snapshot is authoritative (OverwriteExisting),
// matching spec.md 4.11's open_vec semantics — else the collection starts
// empty.
func Open(ctx context.Context, ps *persist.PersistSession, schema dynschema.DynamicSchema, cfg Config) (*PersistVec, error) {
	if cfg.SnapshotEveryOps <= 0 {
		cfg.SnapshotEveryOps = 100
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNop()
	}
	if cfg.Name == "" {
		cfg.Name = schema.TableName
	}
	if err := os.MkdirAll(cfg.Root, 0o755); err != nil {
		return nil, fmt.Errorf("managedvec: create collection root: %w", err)
	}
	if err := ps.EnsureTable(ctx, schema); err != nil {
		return nil, err
	}

	pv := &PersistVec{
		ps:     ps,
		schema: schema,
		cfg:    cfg,
		log:    cfg.Logger.Named("managedvec").With("collection", cfg.Name),
		items:  map[string]*persist.Entity{},
	}

	snap, ok, err := readSnapshot(pv.snapshotPath())
	if err != nil {
		return nil, err
	}
	if ok {
		for _, it := range snap.Items {
			e := persist.RestoreEntity(schema, ps.Sess, it.Meta, decodeFields(it.Fields))
			pv.items[e.ID()] = e
			pv.order = append(pv.order, e.ID())
		}
	}
	return pv, nil
}

func (pv *PersistVec) snapshotPath() string {
	return filepath.Join(pv.cfg.Root, pv.cfg.Name+".snapshot.json")
}

// Len returns the number of items currently in the collection.
func (pv *PersistVec) Len() int {
	pv.mu.Lock()
	defer pv.mu.Unlock()
	return len(pv.items)
}

// Get returns one item by persist_id.
func (pv *PersistVec) Get(id string) (*persist.Entity, bool) {
	pv.mu.Lock()
	defer pv.mu.Unlock()
	e, ok := pv.items[id]
	return e, ok
}

// Items returns the collection's items, insertion-ordered.
func (pv *PersistVec) Items() []*persist.Entity {
	pv.mu.Lock()
	defer pv.mu.Unlock()
	out := make([]*persist.Entity, len(pv.order))
	for i, id := range pv.order {
		out[i] = pv.items[id]
	}
	return out
}

// ReplicationFailures returns the number of replica write failures
// observed so far (meaningful under ReplicationAsyncBestEffort; under
// ReplicationSync the first failure is returned to the caller instead).
func (pv *PersistVec) ReplicationFailures() int64 {
	return atomic.LoadInt64(&pv.replicationFails)
}

func atomicAddReplicationFailure(pv *PersistVec) {
	atomic.AddInt64(&pv.replicationFails, 1)
}

func runTx(ctx context.Context, ps *persist.PersistSession, body func() error) error {
	if _, err := ps.Sess.Exec(ctx, "BEGIN"); err != nil {
		return err
	}
	if err := body(); err != nil {
		_, _ = ps.Sess.Exec(ctx, "ROLLBACK")
		return err
	}
	if _, err := ps.Sess.Exec(ctx, "COMMIT"); err != nil {
		return err
	}
	return nil
}

// Create builds one item from draft, saves it, and adds it to the
// collection.
func (pv *PersistVec) Create(ctx context.Context, draft *persist.Draft) (*persist.Entity, error) {
	es, err := pv.CreateMany(ctx, []*persist.Draft{draft})
	if err != nil {
		return nil, err
	}
	return es[0], nil
}

// CreateMany builds and saves every draft under one transaction; on
// failure nothing is added to the collection and no row is left behind
// (the transaction never committed).
func (pv *PersistVec) CreateMany(ctx context.Context, drafts []*persist.Draft) ([]*persist.Entity, error) {
	pv.mu.Lock()
	defer pv.mu.Unlock()

	entities := make([]*persist.Entity, len(drafts))
	for i, d := range drafts {
		e, err := pv.ps.NewEntity(pv.schema, d)
		if err != nil {
			return nil, err
		}
		entities[i] = e
	}

	err := runTx(ctx, pv.ps, func() error {
		for _, e := range entities {
			if err := e.SaveBound(ctx, pv.ps.Sess); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, e := range entities {
		pv.items[e.ID()] = e
		pv.order = append(pv.order, e.ID())
	}
	pv.afterMutation(len(entities))
	return entities, nil
}

// Update finds item id, applies mutate to it, and saves it if mutate
// actually changed a field. mutate runs against the live item directly
// (e.g. via Entity.SetField); on any failure the item's in-memory state is
// restored to what it was before this call, and the database row is
// untouched.
func (pv *PersistVec) Update(ctx context.Context, id string, mutate func(*persist.Entity) error) (*persist.Entity, error) {
	es, _, err := pv.applyMany(ctx, []string{id}, mutate)
	if err != nil {
		return nil, err
	}
	return es[0], nil
}

// ApplyMany runs mutate against every named item under one transaction,
// saving only the items mutate actually changed; a failure (missing item,
// mutate error, or save error) restores every touched item's prior
// in-memory state and leaves the database untouched.
func (pv *PersistVec) ApplyMany(ctx context.Context, ids []string, mutate func(*persist.Entity) error) ([]*persist.Entity, error) {
	es, _, err := pv.applyMany(ctx, ids, mutate)
	return es, err
}

type preImage struct {
	meta   persist.Metadata
	fields map[string]value.Value
}

func (pv *PersistVec) applyMany(ctx context.Context, ids []string, mutate func(*persist.Entity) error) ([]*persist.Entity, []bool, error) {
	pv.mu.Lock()
	defer pv.mu.Unlock()

	entities := make([]*persist.Entity, len(ids))
	pres := make([]preImage, len(ids))
	for i, id := range ids {
		e, ok := pv.items[id]
		if !ok {
			return nil, nil, fmt.Errorf("managedvec: %q is not an item of %s", id, pv.cfg.Name)
		}
		entities[i] = e
		pres[i] = preImage{meta: e.Meta(), fields: e.Fields()}
	}

	restore := func() {
		for i, e := range entities {
			e.ResetTo(pres[i].meta, pres[i].fields)
		}
	}

	for _, e := range entities {
		if err := mutate(e); err != nil {
			restore()
			return nil, nil, err
		}
	}

	saved := make([]bool, len(entities))
	var toSave []*persist.Entity
	for i, e := range entities {
		if e.HasPendingChanges() {
			saved[i] = true
			toSave = append(toSave, e)
		}
	}
	if len(toSave) == 0 {
		return entities, saved, nil
	}

	err := runTx(ctx, pv.ps, func() error {
		for _, e := range toSave {
			if err := e.SaveBound(ctx, pv.ps.Sess); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		restore()
		return nil, nil, err
	}

	pv.afterMutation(len(toSave))
	return entities, saved, nil
}

// Patch applies a Patch to one item, saving it if anything changed.
func (pv *PersistVec) Patch(ctx context.Context, id string, patch *persist.Patch) (*persist.Entity, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}
	es, _, err := pv.applyMany(ctx, []string{id}, func(e *persist.Entity) error {
		return e.ApplyPatch(ctx, patch)
	})
	if err != nil {
		return nil, err
	}
	return es[0], nil
}

// ApplyCommand runs cmd against one item, saving it if cmd changed
// anything, and reports whether it did.
func (pv *PersistVec) ApplyCommand(ctx context.Context, id string, cmd persist.Command) (*persist.Entity, bool, error) {
	es, saved, err := pv.applyMany(ctx, []string{id}, func(e *persist.Entity) error {
		_, cerr := e.Apply(ctx, cmd)
		return cerr
	})
	if err != nil {
		return nil, false, err
	}
	return es[0], saved[0], nil
}

// Delete removes one item: deletes its row and drops it from the
// collection.
func (pv *PersistVec) Delete(ctx context.Context, id string) error {
	return pv.DeleteMany(ctx, []string{id})
}

// DeleteMany removes every named item under one transaction; on failure
// the collection is left exactly as it was (nothing is removed from
// memory until every delete has committed).
func (pv *PersistVec) DeleteMany(ctx context.Context, ids []string) error {
	pv.mu.Lock()
	defer pv.mu.Unlock()

	entities := make([]*persist.Entity, len(ids))
	for i, id := range ids {
		e, ok := pv.items[id]
		if !ok {
			return fmt.Errorf("managedvec: %q is not an item of %s", id, pv.cfg.Name)
		}
		entities[i] = e
	}

	err := runTx(ctx, pv.ps, func() error {
		for _, e := range entities {
			if err := e.DeleteBound(ctx, pv.ps.Sess); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, id := range ids {
		delete(pv.items, id)
	}
	filtered := pv.order[:0:0]
	for _, id := range pv.order {
		if _, ok := pv.items[id]; ok {
			filtered = append(filtered, id)
		}
	}
	pv.order = filtered
	pv.afterMutation(len(ids))
	return nil
}

// afterMutation bumps the op counter and fires a snapshot tick once
// Config.SnapshotEveryOps successful mutations have accumulated. Must be
// called with pv.mu held.
func (pv *PersistVec) afterMutation(nOps int) {
	pv.opsSinceSnapshot += nOps
	if pv.opsSinceSnapshot < pv.cfg.SnapshotEveryOps {
		return
	}
	pv.opsSinceSnapshot = 0
	if err := pv.snapshotLocked(); err != nil {
		pv.log.Errorw("snapshot failed", "error", err)
	}
}

// Snapshot forces an immediate snapshot regardless of the op counter.
func (pv *PersistVec) Snapshot() error {
	pv.mu.Lock()
	defer pv.mu.Unlock()
	pv.opsSinceSnapshot = 0
	return pv.snapshotLocked()
}

func (pv *PersistVec) snapshotLocked() error {
	snap := vecSnapshot{FormatVersion: snapshotFormatVersion}
	for _, id := range pv.order {
		e := pv.items[id]
		snap.Items = append(snap.Items, itemSnapshot{Meta: e.Meta(), Fields: encodeFields(e.Fields())})
	}
	data, err := writeSnapshotAtomic(pv.snapshotPath(), snap)
	if err != nil {
		return err
	}
	return pv.replicate(data)
}
