package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/kasuganosora/memdb/internal/logging"
)

func marshalState(s State) (json.RawMessage, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("runtime: encode state: %w", err)
	}
	return b, nil
}

const (
	defaultMaxHotObjects        = 10_000
	defaultPassivateAfter       = 5 * time.Minute
	defaultGCAfter              = 24 * time.Hour
	defaultSnapshotOpsThreshold = 1000
	defaultSnapshotSizeBytes    = 4 * 1024 * 1024
	defaultMaxInFlight          = 64
	defaultAcquireTimeout       = 5 * time.Second
	defaultMaxAttempts          = 5
	defaultBackoffInitial       = 10 * time.Millisecond
	defaultBackoffMax           = 2 * time.Second
)

// Config configures Open.
type Config struct {
	Root       string
	Durability DurabilityConfig

	MaxHotObjects   int
	PassivateAfter  time.Duration
	GCAfter         time.Duration
	GCOnlyUntouched bool

	SnapshotOpsThreshold  int
	SnapshotSizeThreshold int64

	MaxInFlight    int64
	AcquireTimeout time.Duration

	MaxAttempts    int
	BackoffInitial time.Duration
	BackoffMax     time.Duration

	Replicas        []string
	ReplicationMode ReplicationMode

	Logger *logging.Logger
}

func (cfg *Config) setDefaults() {
	if cfg.MaxHotObjects <= 0 {
		cfg.MaxHotObjects = defaultMaxHotObjects
	}
	if cfg.PassivateAfter <= 0 {
		cfg.PassivateAfter = defaultPassivateAfter
	}
	if cfg.GCAfter <= 0 {
		cfg.GCAfter = defaultGCAfter
	}
	if cfg.SnapshotOpsThreshold <= 0 {
		cfg.SnapshotOpsThreshold = defaultSnapshotOpsThreshold
	}
	if cfg.SnapshotSizeThreshold <= 0 {
		cfg.SnapshotSizeThreshold = defaultSnapshotSizeBytes
	}
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = defaultMaxInFlight
	}
	if cfg.AcquireTimeout <= 0 {
		cfg.AcquireTimeout = defaultAcquireTimeout
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.BackoffInitial <= 0 {
		cfg.BackoffInitial = defaultBackoffInitial
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = defaultBackoffMax
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNop()
	}
}

// Runtime is one open entity store: its hot/cold working set, its handler
// registries, and its journal/snapshot durability underneath.
type Runtime struct {
	mu sync.Mutex

	cfg     Config
	log     *logging.Logger
	journal *journalWriter
	reg     *registries
	sem     *semaphore.Weighted

	hot  map[Key]*StoredEntity
	cold map[Key]*StoredEntity

	nextSeq          int64
	opsSinceSnapshot int

	resurrectedSinceReport int64 // atomic
	replicationFails       int64 // atomic
}

func (c Config) journalPath() string  { return filepath.Join(c.Root, "runtime_journal.log") }
func (c Config) snapshotPath() string { return filepath.Join(c.Root, "runtime_snapshot.json") }

// Open recovers (or starts) a runtime rooted at Config.Root: it loads
// runtime_snapshot.json if present, replays runtime_journal.log records
// with seq greater than the snapshot's last_seq, and returns ready to
// accept operations.
func Open(cfg Config) (*Runtime, error) {
	cfg.setDefaults()

	rt := &Runtime{
		cfg:  cfg,
		log:  cfg.Logger.Named("runtime"),
		reg:  newRegistries(),
		sem:  semaphore.NewWeighted(cfg.MaxInFlight),
		hot:  map[Key]*StoredEntity{},
		cold: map[Key]*StoredEntity{},
	}

	snap, ok, err := readSnapshot(cfg.snapshotPath())
	if err != nil {
		return nil, err
	}
	if ok {
		for _, se := range snap.Entities {
			e, err := decodeEntity(se)
			if err != nil {
				return nil, fmt.Errorf("runtime: decode snapshot entity %s/%s: %w", se.EntityType, se.PersistID, err)
			}
			if e.Resident {
				rt.hot[e.Key] = e
			} else {
				rt.cold[e.Key] = e
			}
		}
		rt.nextSeq = snap.LastSeq
	}

	err = replayJournal(cfg.journalPath(), snap.LastSeq, func(rec journalRecord) error {
		if rec.Seq > rt.nextSeq {
			rt.nextSeq = rec.Seq
		}
		key := Key{EntityType: rec.Op.EntityType, PersistID: rec.Op.PersistID}
		switch rec.Op.Type {
		case "upsert":
			var state State
			if len(rec.Op.State) > 0 {
				if err := unmarshalState(rec.Op.State, &state); err != nil {
					return err
				}
			}
			e := &StoredEntity{
				Key:           key,
				TableName:     rec.Op.TableName,
				SchemaVersion: rec.Op.SchemaVersion,
				State:         state,
				LastAccessAt:  time.UnixMilli(rec.TsUnixMs),
				Resident:      true,
			}
			if existing, ok := rt.hot[key]; ok {
				e.AccessCount = existing.AccessCount
			} else if existing, ok := rt.cold[key]; ok {
				e.AccessCount = existing.AccessCount
			}
			delete(rt.cold, key)
			rt.hot[key] = e
		case "delete":
			delete(rt.hot, key)
			delete(rt.cold, key)
		default:
			return fmt.Errorf("runtime: unknown journal op %q during recovery", rec.Op.Type)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("runtime: replay journal: %w", err)
	}
	rt.nextSeq++

	jw, err := openJournalWriter(cfg.journalPath(), cfg.Durability)
	if err != nil {
		return nil, err
	}
	rt.journal = jw
	return rt, nil
}

// Close flushes and closes the underlying journal.
func (rt *Runtime) Close() error {
	return rt.journal.close()
}

// RegisterCommand binds a deterministic command handler for entityType.
func (rt *Runtime) RegisterCommand(entityType, name string, h DeterministicHandler, schema *PayloadSchema) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.reg.RegisterCommand(entityType, name, h, schema)
}

// RegisterClosure binds a non-deterministic runtime closure for entityType.
func (rt *Runtime) RegisterClosure(entityType, name string, fn RuntimeClosure) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.reg.RegisterClosure(entityType, name, fn)
}

// acquirePermit bounds in-flight operations with a semaphore, honouring
// Config.AcquireTimeout, per spec.md 4.12/5.
func (rt *Runtime) acquirePermit(ctx context.Context) (func(), error) {
	actx, cancel := context.WithTimeout(ctx, rt.cfg.AcquireTimeout)
	defer cancel()
	if err := rt.sem.Acquire(actx, 1); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackPressure, err)
	}
	return func() { rt.sem.Release(1) }, nil
}

func unmarshalState(raw []byte, out *State) error {
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("runtime: decode state: %w", err)
	}
	return nil
}

// nextSeqLocked allocates the next journal sequence number. Must be called
// with rt.mu held; seq is allocated before the record is written, matching
// spec.md 5's "seq is allocated before the write" ordering guarantee.
func (rt *Runtime) nextSeqLocked() int64 {
	rt.nextSeq++
	return rt.nextSeq
}

// appendLocked journals rec and mirrors it to any configured replicas.
// Must be called with rt.mu held.
func (rt *Runtime) appendLocked(op opPayload) error {
	rec := journalRecord{Seq: rt.nextSeqLocked(), TsUnixMs: time.Now().UnixMilli(), Op: op}
	line, err := rt.journal.append(rec)
	if err != nil {
		return err
	}
	if err := rt.replicateJournalAppend(line); err != nil {
		return err
	}
	rt.opsSinceSnapshot++
	return rt.maybeSnapshotLocked()
}

// CreateEntity mints a fresh persist_id, builds state from fields, and
// upserts it (journal + memory), scheduling a snapshot if thresholds are
// met.
func (rt *Runtime) CreateEntity(ctx context.Context, entityType, tableName string, fields map[string]any, schemaVersion int64) (string, error) {
	release, err := rt.acquirePermit(ctx)
	if err != nil {
		return "", err
	}
	defer release()

	id := uuid.NewString()
	state := State{}
	for k, v := range fields {
		state[k] = v
	}

	rt.mu.Lock()
	defer rt.mu.Unlock()

	key := Key{EntityType: entityType, PersistID: id}
	now := time.Now()
	rt.hot[key] = &StoredEntity{Key: key, TableName: tableName, SchemaVersion: schemaVersion, State: state, LastAccessAt: now, Resident: true}

	stateRaw, err := marshalState(state)
	if err != nil {
		return "", err
	}
	op := opPayload{Type: "upsert", EntityType: entityType, PersistID: id, TableName: tableName, SchemaVersion: schemaVersion, State: stateRaw, Reason: "create"}
	if err := rt.appendLocked(op); err != nil {
		delete(rt.hot, key)
		return "", err
	}
	return id, nil
}

// UpsertState replaces an entity's full state without minting a new id,
// the path a resident entity's caller uses to publish a state computed
// outside the runtime's own handler registries.
func (rt *Runtime) UpsertState(ctx context.Context, key Key, tableName string, schemaVersion int64, state State, reason string) error {
	release, err := rt.acquirePermit(ctx)
	if err != nil {
		return err
	}
	defer release()

	rt.mu.Lock()
	defer rt.mu.Unlock()

	prevHot, hadHot := rt.hot[key]
	prevCold, hadCold := rt.cold[key]

	now := time.Now()
	e := &StoredEntity{Key: key, TableName: tableName, SchemaVersion: schemaVersion, State: state, LastAccessAt: now, Resident: true}
	if hadHot {
		e.AccessCount = prevHot.AccessCount
	} else if hadCold {
		e.AccessCount = prevCold.AccessCount
	}
	delete(rt.cold, key)
	rt.hot[key] = e

	stateRaw, err := marshalState(state)
	if err != nil {
		return err
	}
	op := opPayload{Type: "upsert", EntityType: key.EntityType, PersistID: key.PersistID, TableName: tableName, SchemaVersion: schemaVersion, State: stateRaw, Reason: reason}
	if err := rt.appendLocked(op); err != nil {
		if hadHot {
			rt.hot[key] = prevHot
		} else {
			delete(rt.hot, key)
		}
		if hadCold {
			rt.cold[key] = prevCold
		}
		return err
	}
	return nil
}

// DeleteEntity removes key from the hot/cold working set and appends a
// Delete journal record.
func (rt *Runtime) DeleteEntity(ctx context.Context, key Key, reason string) error {
	release, err := rt.acquirePermit(ctx)
	if err != nil {
		return err
	}
	defer release()

	rt.mu.Lock()
	defer rt.mu.Unlock()

	prevHot, hadHot := rt.hot[key]
	prevCold, hadCold := rt.cold[key]
	delete(rt.hot, key)
	delete(rt.cold, key)

	op := opPayload{Type: "delete", EntityType: key.EntityType, PersistID: key.PersistID, Reason: reason}
	if err := rt.appendLocked(op); err != nil {
		if hadHot {
			rt.hot[key] = prevHot
		}
		if hadCold {
			rt.cold[key] = prevCold
		}
		return err
	}
	return nil
}

// GetState returns key's current state: a hot hit touches and returns
// directly; a cold hit promotes the entity back to hot, counting a
// resurrection, before returning.
func (rt *Runtime) GetState(ctx context.Context, key Key) (State, error) {
	release, err := rt.acquirePermit(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	rt.mu.Lock()
	defer rt.mu.Unlock()

	now := time.Now()
	if e, ok := rt.hot[key]; ok {
		e.touch(now)
		return e.State.Clone()
	}
	if e, ok := rt.cold[key]; ok {
		delete(rt.cold, key)
		e.Resident = true
		e.touch(now)
		rt.hot[key] = e
		atomic.AddInt64(&rt.resurrectedSinceReport, 1)
		return e.State.Clone()
	}
	return nil, ErrNotFound
}

func (rt *Runtime) residentLocked(key Key) (*StoredEntity, bool) {
	if e, ok := rt.hot[key]; ok {
		return e, true
	}
	if e, ok := rt.cold[key]; ok {
		delete(rt.cold, key)
		e.Resident = true
		rt.hot[key] = e
		atomic.AddInt64(&rt.resurrectedSinceReport, 1)
		return e, true
	}
	return nil, false
}

// ApplyDeterministicCommand validates payload against the command's
// registered schema, then retries the handler up to Config.MaxAttempts
// times with capped exponential backoff: each attempt clones the current
// state, runs the handler, and — on success — journals an Upsert record
// carrying the command invocation before committing the new state to the
// resident entity. The resident entity is never mutated until a full
// attempt (handler and journal append both) succeeds, so a final failure
// leaves it exactly as it was.
func (rt *Runtime) ApplyDeterministicCommand(ctx context.Context, entityType, id, name string, payload map[string]any) (State, error) {
	release, err := rt.acquirePermit(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	rt.mu.Lock()
	defer rt.mu.Unlock()

	entry, err := rt.reg.command(entityType, name)
	if err != nil {
		return nil, err
	}
	if err := entry.schema.Validate(payload); err != nil {
		return nil, err
	}

	key := Key{EntityType: entityType, PersistID: id}
	e, ok := rt.residentLocked(key)
	if !ok {
		return nil, ErrNotFound
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = rt.cfg.BackoffInitial
	bo.MaxInterval = rt.cfg.BackoffMax
	bo.MaxElapsedTime = 0 // attempt count governs retries, not elapsed time

	var lastErr error
	for attempt := 1; attempt <= rt.cfg.MaxAttempts; attempt++ {
		clone, err := e.State.Clone()
		if err != nil {
			return nil, err
		}
		newState, hErr := entry.handler(clone, payload)
		if hErr == nil {
			payloadRaw, err := marshalState(State(payload))
			if err != nil {
				return nil, err
			}
			stateRaw, err := marshalState(newState)
			if err != nil {
				return nil, err
			}
			op := opPayload{
				Type: "upsert", EntityType: entityType, PersistID: id,
				TableName: e.TableName, SchemaVersion: e.SchemaVersion,
				State: stateRaw, CommandName: name, Payload: payloadRaw,
			}
			if jErr := rt.appendLocked(op); jErr == nil {
				e.State = newState
				e.touch(time.Now())
				return newState, nil
			} else {
				lastErr = jErr
			}
		} else {
			lastErr = hErr
		}

		if attempt == rt.cfg.MaxAttempts {
			break
		}
		wait := bo.NextBackOff()
		if wait == backoff.Stop {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil, fmt.Errorf("runtime: command %s on %s/%s failed after %d attempts: %w", name, entityType, id, rt.cfg.MaxAttempts, lastErr)
}

// InvokeRuntimeClosure runs a registered, non-deterministic closure against
// key's current state. Unlike ApplyDeterministicCommand it is never
// retried and only the resulting state — never the call itself — is
// journaled.
func (rt *Runtime) InvokeRuntimeClosure(ctx context.Context, entityType, id, name string, args map[string]any) (State, error) {
	release, err := rt.acquirePermit(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	rt.mu.Lock()
	defer rt.mu.Unlock()

	fn, err := rt.reg.closure(entityType, name)
	if err != nil {
		return nil, err
	}

	key := Key{EntityType: entityType, PersistID: id}
	e, ok := rt.residentLocked(key)
	if !ok {
		return nil, ErrNotFound
	}

	clone, err := e.State.Clone()
	if err != nil {
		return nil, err
	}
	newState, err := fn(clone, args)
	if err != nil {
		return nil, err
	}

	stateRaw, err := marshalState(newState)
	if err != nil {
		return nil, err
	}
	op := opPayload{Type: "upsert", EntityType: entityType, PersistID: id, TableName: e.TableName, SchemaVersion: e.SchemaVersion, State: stateRaw, Reason: "closure:" + name}
	if err := rt.appendLocked(op); err != nil {
		return nil, err
	}
	e.State = newState
	e.touch(time.Now())
	return newState, nil
}

// Maintain passivates hot entities idle past Config.PassivateAfter,
// LRU-evicts any excess beyond Config.MaxHotObjects, and GCs cold entities
// idle past Config.GCAfter (optionally only those never touched).
func (rt *Runtime) Maintain(now time.Time) (MaintenanceReport, error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	passivated := 0
	for key, e := range rt.hot {
		if now.Sub(e.LastAccessAt) >= rt.cfg.PassivateAfter {
			e.Resident = false
			rt.cold[key] = e
			delete(rt.hot, key)
			passivated++
		}
	}

	if over := len(rt.hot) - rt.cfg.MaxHotObjects; over > 0 {
		type kv struct {
			key Key
			e   *StoredEntity
		}
		ordered := make([]kv, 0, len(rt.hot))
		for k, e := range rt.hot {
			ordered = append(ordered, kv{k, e})
		}
		for i := 0; i < len(ordered); i++ {
			for j := i + 1; j < len(ordered); j++ {
				if ordered[j].e.LastAccessAt.Before(ordered[i].e.LastAccessAt) {
					ordered[i], ordered[j] = ordered[j], ordered[i]
				}
			}
		}
		for i := 0; i < over && i < len(ordered); i++ {
			e := ordered[i].e
			e.Resident = false
			rt.cold[ordered[i].key] = e
			delete(rt.hot, ordered[i].key)
			passivated++
		}
	}

	gcDeleted := 0
	for key, e := range rt.cold {
		if now.Sub(e.LastAccessAt) < rt.cfg.GCAfter {
			continue
		}
		if rt.cfg.GCOnlyUntouched && e.AccessCount != 0 {
			continue
		}
		delete(rt.cold, key)
		if err := rt.appendLocked(opPayload{Type: "delete", EntityType: key.EntityType, PersistID: key.PersistID, Reason: "gc"}); err != nil {
			rt.cold[key] = e
			return MaintenanceReport{}, err
		}
		gcDeleted++
	}

	report := MaintenanceReport{
		Passivated:                 passivated,
		ResurrectedSinceLastReport: atomic.SwapInt64(&rt.resurrectedSinceReport, 0),
		GCDeleted:                  gcDeleted,
	}
	return report, nil
}

// maybeSnapshotLocked fires a snapshot once enough ops have accumulated or
// the journal has grown past its size threshold. Must be called with
// rt.mu held.
func (rt *Runtime) maybeSnapshotLocked() error {
	if rt.opsSinceSnapshot < rt.cfg.SnapshotOpsThreshold && rt.journal.sizeBytes() < rt.cfg.SnapshotSizeThreshold {
		return nil
	}
	return rt.snapshotLocked()
}

// Snapshot forces an immediate snapshot regardless of the op/size
// thresholds.
func (rt *Runtime) Snapshot() error {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.snapshotLocked()
}

func (rt *Runtime) snapshotLocked() error {
	snap := runtimeSnapshot{FormatVersion: runtimeSnapshotFormatVersion, CreatedAt: time.Now(), LastSeq: rt.nextSeq}
	for _, e := range rt.hot {
		se, err := encodeEntity(e)
		if err != nil {
			return err
		}
		snap.Entities = append(snap.Entities, se)
	}
	for _, e := range rt.cold {
		se, err := encodeEntity(e)
		if err != nil {
			return err
		}
		snap.Entities = append(snap.Entities, se)
	}

	data, err := writeSnapshotAtomic(rt.cfg.snapshotPath(), snap)
	if err != nil {
		return err
	}
	if err := rt.journal.truncate(); err != nil {
		return err
	}
	rt.opsSinceSnapshot = 0
	return rt.replicateSnapshot(data)
}

// ReplicationFailures returns the number of replica write failures
// observed so far (meaningful under ReplicationAsyncBestEffort).
func (rt *Runtime) ReplicationFailures() int64 {
	return rt.replicationFailureCount()
}
