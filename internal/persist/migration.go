package persist

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kasuganosora/memdb/internal/engine"
	"github.com/kasuganosora/memdb/internal/value"
)

// MigrationStep is one schema version transition: the DDL that brings an
// existing table forward (with "{table}" substituted for the real table
// name), and an optional function that rewrites an in-memory state map the
// same way.
type MigrationStep struct {
	FromVersion   int64
	ToVersion     int64
	SQLStatements []string
	StateMigrator func(map[string]value.Value) (map[string]value.Value, error)
}

// PersistMigrationPlan is a persisted type's full migration chain.
type PersistMigrationPlan struct {
	CurrentVersion int64
	Steps          []MigrationStep
}

// Validate checks the chain's shape: every step moves strictly forward,
// none exceeds CurrentVersion, and no two steps share a FromVersion.
func (p PersistMigrationPlan) Validate() error {
	seen := make(map[int64]bool, len(p.Steps))
	for _, s := range p.Steps {
		if s.FromVersion < 1 {
			return fmt.Errorf("persist: migration step from_version must be >= 1, got %d", s.FromVersion)
		}
		if s.ToVersion <= s.FromVersion {
			return fmt.Errorf("persist: migration step to_version %d must exceed from_version %d", s.ToVersion, s.FromVersion)
		}
		if s.ToVersion > p.CurrentVersion {
			return fmt.Errorf("persist: migration step to_version %d exceeds plan current_version %d", s.ToVersion, p.CurrentVersion)
		}
		if seen[s.FromVersion] {
			return fmt.Errorf("persist: duplicate migration step from_version %d", s.FromVersion)
		}
		seen[s.FromVersion] = true
	}
	return nil
}

func (p PersistMigrationPlan) stepFrom(v int64) (MigrationStep, bool) {
	for _, s := range p.Steps {
		if s.FromVersion == v {
			return s, true
		}
	}
	return MigrationStep{}, false
}

const schemaVersionsTable = "__persist_schema_versions"

func ensureSchemaVersionsTable(ctx context.Context, sess *engine.Session) error {
	ddl := fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (table_name TEXT PRIMARY KEY, schema_version INTEGER NOT NULL, updated_at TIMESTAMP NOT NULL)",
		schemaVersionsTable,
	)
	_, err := sess.Exec(ctx, ddl)
	return err
}

// EnsureTableSchemaVersion reconciles table's recorded schema_version
// against plan: unset records plan.CurrentVersion directly; a stored
// version behind plan.CurrentVersion resolves the step chain and applies
// each step's SQL in order before recording the new current version. A
// stored version ahead of plan.CurrentVersion is left untouched — spec.md
// 4.10 treats that as forward-compatible, e.g. restoring a snapshot a
// newer build took.
func EnsureTableSchemaVersion(ctx context.Context, sess *engine.Session, table string, plan PersistMigrationPlan) error {
	if err := plan.Validate(); err != nil {
		return err
	}
	if err := ensureSchemaVersionsTable(ctx, sess); err != nil {
		return err
	}

	res, err := sess.Query(ctx, fmt.Sprintf(
		"SELECT schema_version FROM %s WHERE table_name = %s",
		schemaVersionsTable, sqlLiteral(value.NewText(table)),
	))
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if len(res.Rows) == 0 {
		insert := fmt.Sprintf(
			"INSERT INTO %s (table_name, schema_version, updated_at) VALUES (%s, %d, %s)",
			schemaVersionsTable, sqlLiteral(value.NewText(table)), plan.CurrentVersion, sqlLiteral(value.NewTimestamp(now)),
		)
		_, err := sess.Exec(ctx, insert)
		return err
	}

	idx, _ := res.Schema.FindColumnIndex("schema_version")
	stored, _ := res.Rows[0][idx].AsInt64()
	if stored >= plan.CurrentVersion {
		return nil
	}

	for stored < plan.CurrentVersion {
		step, ok := plan.stepFrom(stored)
		if !ok {
			return fmt.Errorf("persist: no migration step from schema_version %d for table %q", stored, table)
		}
		for _, stmt := range step.SQLStatements {
			rendered := strings.ReplaceAll(stmt, "{table}", table)
			if _, err := sess.Exec(ctx, rendered); err != nil {
				return fmt.Errorf("persist: migrate %q from %d to %d: %w", table, step.FromVersion, step.ToVersion, err)
			}
		}
		stored = step.ToVersion
	}

	update := fmt.Sprintf(
		"UPDATE %s SET schema_version = %d, updated_at = %s WHERE table_name = %s",
		schemaVersionsTable, plan.CurrentVersion, sqlLiteral(value.NewTimestamp(time.Now().UTC())), sqlLiteral(value.NewText(table)),
	)
	_, err = sess.Exec(ctx, update)
	return err
}

// MigrateStateToCurrent applies plan's StateMigrator chain to state in
// version order starting from meta.SchemaVersion, advancing meta as it
// goes — the in-memory counterpart to EnsureTableSchemaVersion's SQL
// chain, run over a loaded Entity's fields when its row predates the
// plan's current version.
func MigrateStateToCurrent(meta *Metadata, state map[string]value.Value, plan PersistMigrationPlan) (map[string]value.Value, error) {
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	for meta.SchemaVersion < plan.CurrentVersion {
		step, ok := plan.stepFrom(meta.SchemaVersion)
		if !ok {
			return nil, fmt.Errorf("persist: no migration step from schema_version %d", meta.SchemaVersion)
		}
		if step.StateMigrator != nil {
			migrated, err := step.StateMigrator(state)
			if err != nil {
				return nil, fmt.Errorf("persist: migrate state from %d to %d: %w", step.FromVersion, step.ToVersion, err)
			}
			state = migrated
		}
		meta.SchemaVersion = step.ToVersion
	}
	return state, nil
}
