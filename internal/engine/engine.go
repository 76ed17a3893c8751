// Package engine wires the parser, planner, executor, storage, and
// persistence layers into one embeddable database: Open builds an Engine
// bound to an optional on-disk WAL/snapshot pair, and Session runs SQL text
// against it with autocommit or explicit BEGIN/COMMIT/ROLLBACK semantics.
package engine

import (
	"fmt"
	"sync"

	"github.com/kasuganosora/memdb/internal/catalog"
	"github.com/kasuganosora/memdb/internal/logging"
	"github.com/kasuganosora/memdb/internal/mvcc"
	"github.com/kasuganosora/memdb/internal/persistence"
	"github.com/kasuganosora/memdb/internal/sqlparser"
	"github.com/kasuganosora/memdb/internal/storage"
	"github.com/kasuganosora/memdb/internal/wal"
)

// Config holds everything Open needs. Use the With* options rather than
// constructing Config directly; the zero Config is a valid in-memory,
// no-durability engine.
type Config struct {
	walPath          string
	snapshotPath     string
	durability       wal.DurabilityMode
	checkpointPolicy persistence.CheckpointPolicy
	logger           *logging.Logger
}

// Option configures Open.
type Option func(*Config)

// WithWAL turns on durability: walPath is the append log, snapshotPath is
// where periodic checkpoints land. Leaving this unset gives a pure
// in-memory engine that loses everything on Close.
func WithWAL(walPath, snapshotPath string) Option {
	return func(c *Config) { c.walPath, c.snapshotPath = walPath, snapshotPath }
}

// WithDurability selects the WAL fsync policy (default wal.Sync).
func WithDurability(mode wal.DurabilityMode) Option {
	return func(c *Config) { c.durability = mode }
}

// WithCheckpointPolicy overrides when Session statements trigger a
// checkpoint (see persistence.CheckpointPolicy for the defaults).
func WithCheckpointPolicy(p persistence.CheckpointPolicy) Option {
	return func(c *Config) { c.checkpointPolicy = p }
}

// WithLogger attaches l (named "engine") instead of a no-op logger.
func WithLogger(l *logging.Logger) Option {
	return func(c *Config) { c.logger = l }
}

// Engine owns one database: its live store, the catalog snapshot describing
// it, the parser shared by every session, and (when WithWAL was given) the
// persistence manager logging every mutation.
type Engine struct {
	mu      sync.RWMutex
	store   *storage.Store
	cat     *catalog.Catalog
	persist *persistence.Manager // nil: pure in-memory, no durability
	parser  *sqlparser.Parser
	log     *logging.Logger
}

// Open builds an Engine. With no WithWAL option it starts empty and
// in-memory; with one, it recovers from snapshotPath+walPath first.
func Open(opts ...Option) (*Engine, error) {
	cfg := Config{durability: wal.Sync}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = logging.NewNop()
	}

	store := storage.NewStore(mvcc.NewManager())
	eng := &Engine{store: store, parser: sqlparser.New(), log: cfg.logger.Named("engine")}

	if cfg.walPath == "" {
		eng.cat = catalog.New()
		return eng, nil
	}

	walOpts := wal.Options{Mode: cfg.durability}
	mgr, cat, err := persistence.Open(store, cfg.walPath, cfg.snapshotPath, walOpts, cfg.checkpointPolicy)
	if err != nil {
		return nil, &EngineError{Kind: ErrIO, Err: fmt.Errorf("engine: recover database: %w", err)}
	}
	eng.persist = mgr
	eng.cat = cat
	eng.log.Infow("recovered database", "tables", len(cat.TableNames()))
	return eng, nil
}

// NewSession returns a fresh autocommit session bound to this Engine.
func (e *Engine) NewSession() *Session {
	return &Session{eng: e, level: mvcc.ReadCommitted}
}

// Catalog returns the current table-schema snapshot.
func (e *Engine) Catalog() *catalog.Catalog {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cat
}

func (e *Engine) setCatalog(cat *catalog.Catalog) {
	e.mu.Lock()
	e.cat = cat
	e.mu.Unlock()
}

// maybeCheckpoint fires a checkpoint when the persistence manager's policy
// says it's due. Logged but not fatal: a failed opportunistic checkpoint
// just means the WAL stays a bit longer, not that the statement failed.
func (e *Engine) maybeCheckpoint() {
	if !e.persist.NeedsCheckpoint() {
		return
	}
	if err := e.Checkpoint(); err != nil {
		e.log.Errorw("opportunistic checkpoint failed", "error", err)
	}
}

// Checkpoint forces a snapshot+WAL-truncate cycle. It is a no-op on a
// non-durable (no WithWAL) engine.
func (e *Engine) Checkpoint() error {
	if e.persist == nil {
		return nil
	}
	e.mu.RLock()
	cat := e.cat
	e.mu.RUnlock()
	if err := e.persist.Checkpoint(cat); err != nil {
		return &EngineError{Kind: ErrIO, Err: fmt.Errorf("engine: checkpoint: %w", err)}
	}
	return nil
}

// Close flushes and closes the WAL writer, if any. It does not checkpoint
// first; call Checkpoint explicitly before Close to shrink the WAL a
// restart would otherwise have to replay.
func (e *Engine) Close() error {
	if e.persist == nil {
		return nil
	}
	if err := e.persist.Close(); err != nil {
		return &EngineError{Kind: ErrIO, Err: err}
	}
	return nil
}
