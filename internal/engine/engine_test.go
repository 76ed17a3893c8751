package engine

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kasuganosora/memdb/internal/mvcc"
)

func mustExec(t *testing.T, s *Session, sql string) {
	t.Helper()
	_, err := s.Exec(context.Background(), sql)
	require.NoError(t, err)
}

func TestSession_AutocommitCRUD(t *testing.T) {
	eng, err := Open()
	require.NoError(t, err)
	defer eng.Close()

	s := eng.NewSession()
	mustExec(t, s, "CREATE TABLE users (id INT PRIMARY KEY, name TEXT)")
	mustExec(t, s, "INSERT INTO users (id, name) VALUES (1, 'alice')")
	mustExec(t, s, "INSERT INTO users (id, name) VALUES (2, 'bob')")

	qr, err := s.Query(context.Background(), "SELECT id, name FROM users WHERE id = 1")
	require.NoError(t, err)
	require.Len(t, qr.Rows, 1)
	name, _ := qr.Rows[0][1].AsString()
	require.Equal(t, "alice", name)

	res, err := s.Exec(context.Background(), "UPDATE users SET name = 'ALICE' WHERE id = 1")
	require.NoError(t, err)
	require.EqualValues(t, 1, res.RowsAffected)

	res, err = s.Exec(context.Background(), "DELETE FROM users WHERE id = 2")
	require.NoError(t, err)
	require.EqualValues(t, 1, res.RowsAffected)

	qr, err = s.Query(context.Background(), "SELECT id FROM users")
	require.NoError(t, err)
	require.Len(t, qr.Rows, 1)
}

func TestSession_ExplicitTransactionCommit(t *testing.T) {
	eng, err := Open()
	require.NoError(t, err)
	defer eng.Close()

	s := eng.NewSession()
	mustExec(t, s, "CREATE TABLE users (id INT PRIMARY KEY, name TEXT)")

	mustExec(t, s, "BEGIN")
	require.True(t, s.InTransaction())
	mustExec(t, s, "INSERT INTO users (id, name) VALUES (1, 'alice')")
	mustExec(t, s, "INSERT INTO users (id, name) VALUES (2, 'bob')")
	mustExec(t, s, "COMMIT")
	require.False(t, s.InTransaction())

	qr, err := s.Query(context.Background(), "SELECT id FROM users")
	require.NoError(t, err)
	require.Len(t, qr.Rows, 2)
}

func TestSession_ExplicitTransactionRollback(t *testing.T) {
	eng, err := Open()
	require.NoError(t, err)
	defer eng.Close()

	s := eng.NewSession()
	mustExec(t, s, "CREATE TABLE users (id INT PRIMARY KEY, name TEXT)")
	mustExec(t, s, "INSERT INTO users (id, name) VALUES (1, 'alice')")

	mustExec(t, s, "BEGIN")
	mustExec(t, s, "INSERT INTO users (id, name) VALUES (2, 'bob')")
	mustExec(t, s, "ROLLBACK")
	require.False(t, s.InTransaction())

	qr, err := s.Query(context.Background(), "SELECT id FROM users")
	require.NoError(t, err)
	require.Len(t, qr.Rows, 1)
}

func TestSession_NestedBeginRejected(t *testing.T) {
	eng, err := Open()
	require.NoError(t, err)
	defer eng.Close()

	s := eng.NewSession()
	mustExec(t, s, "BEGIN")
	_, err = s.Exec(context.Background(), "BEGIN")
	require.True(t, IsKind(err, ErrTransaction))
}

func TestSession_CommitWithoutBeginRejected(t *testing.T) {
	eng, err := Open()
	require.NoError(t, err)
	defer eng.Close()

	s := eng.NewSession()
	_, err = s.Exec(context.Background(), "COMMIT")
	require.True(t, IsKind(err, ErrTransaction))
}

func TestSession_ParseErrorClassified(t *testing.T) {
	eng, err := Open()
	require.NoError(t, err)
	defer eng.Close()

	s := eng.NewSession()
	_, err = s.Exec(context.Background(), "SELEKT * FROM users")
	require.True(t, IsKind(err, ErrParse))
}

func TestSession_UniqueViolationClassified(t *testing.T) {
	eng, err := Open()
	require.NoError(t, err)
	defer eng.Close()

	s := eng.NewSession()
	mustExec(t, s, "CREATE TABLE users (id INT PRIMARY KEY, name TEXT)")
	mustExec(t, s, "INSERT INTO users (id, name) VALUES (1, 'alice')")

	_, err = s.Exec(context.Background(), "INSERT INTO users (id, name) VALUES (1, 'alice2')")
	require.True(t, IsKind(err, ErrConstraint))
}

func TestSession_UnknownTableClassified(t *testing.T) {
	eng, err := Open()
	require.NoError(t, err)
	defer eng.Close()

	s := eng.NewSession()
	_, err = s.Query(context.Background(), "SELECT * FROM ghosts")
	require.True(t, IsKind(err, ErrPlan))
}

func TestEngine_RecoversAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	walPath := filepath.Join(dir, "wal.log")
	snapPath := filepath.Join(dir, "snap.db")

	eng, err := Open(WithWAL(walPath, snapPath))
	require.NoError(t, err)

	s := eng.NewSession()
	mustExec(t, s, "CREATE TABLE users (id INT PRIMARY KEY, name TEXT)")
	mustExec(t, s, "INSERT INTO users (id, name) VALUES (1, 'alice')")
	mustExec(t, s, "BEGIN")
	mustExec(t, s, "INSERT INTO users (id, name) VALUES (2, 'bob')")
	mustExec(t, s, "COMMIT")
	require.NoError(t, eng.Close())

	eng2, err := Open(WithWAL(walPath, snapPath))
	require.NoError(t, err)
	defer eng2.Close()

	s2 := eng2.NewSession()
	qr, err := s2.Query(context.Background(), "SELECT id, name FROM users")
	require.NoError(t, err)
	require.Len(t, qr.Rows, 2)
}

func TestEngine_CheckpointThenReopenRecoversFromSnapshot(t *testing.T) {
	dir := t.TempDir()
	walPath := filepath.Join(dir, "wal.log")
	snapPath := filepath.Join(dir, "snap.db")

	eng, err := Open(WithWAL(walPath, snapPath))
	require.NoError(t, err)

	s := eng.NewSession()
	mustExec(t, s, "CREATE TABLE users (id INT PRIMARY KEY, name TEXT)")
	mustExec(t, s, "INSERT INTO users (id, name) VALUES (1, 'alice')")
	require.NoError(t, eng.Checkpoint())
	require.NoError(t, eng.Close())

	eng2, err := Open(WithWAL(walPath, snapPath))
	require.NoError(t, err)
	defer eng2.Close()

	s2 := eng2.NewSession()
	qr, err := s2.Query(context.Background(), "SELECT id FROM users")
	require.NoError(t, err)
	require.Len(t, qr.Rows, 1)
}

func TestSession_IsolationLevelAppliesToNextBegin(t *testing.T) {
	eng, err := Open()
	require.NoError(t, err)
	defer eng.Close()

	s := eng.NewSession()
	s.SetIsolationLevel(mvcc.Serializable)
	require.Equal(t, mvcc.Serializable, s.level)
}
