package runtime

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
)

// ReplicationMode selects how journal appends and snapshots are mirrored
// to Config.Replicas.
type ReplicationMode int

const (
	// ReplicationNone ships nothing.
	ReplicationNone ReplicationMode = iota
	// ReplicationSync mirrors each journal append and each snapshot to
	// every replica in turn, surfacing the first failure.
	ReplicationSync
	// ReplicationAsyncBestEffort spawns a background goroutine per replica,
	// counting failures in a thread-safe counter and logging errors rather
	// than propagating them.
	ReplicationAsyncBestEffort
)

func (rt *Runtime) replicationFailureCount() int64 {
	return atomic.LoadInt64(&rt.replicationFails)
}

// replicateJournalAppend mirrors one already-encoded journal line to every
// replica's runtime_journal.log.
func (rt *Runtime) replicateJournalAppend(line []byte) error {
	return rt.replicate("runtime_journal.log", line, appendToFile)
}

// replicateSnapshot mirrors one already-encoded snapshot payload to every
// replica's runtime_snapshot.json, overwriting it. The replica's journal is
// left as it is; it is not truncated.
func (rt *Runtime) replicateSnapshot(data []byte) error {
	return rt.replicate("runtime_snapshot.json", data, overwriteFile)
}

type replicaWriteFn func(path string, data []byte) error

func appendToFile(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		return err
	}
	return f.Sync()
}

func overwriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

func (rt *Runtime) replicate(filename string, data []byte, write replicaWriteFn) error {
	if rt.cfg.ReplicationMode == ReplicationNone || len(rt.cfg.Replicas) == 0 {
		return nil
	}

	do := func(root string) error {
		if err := os.MkdirAll(root, 0o755); err != nil {
			return fmt.Errorf("runtime: create replica root %s: %w", root, err)
		}
		return write(filepath.Join(root, filename), data)
	}

	switch rt.cfg.ReplicationMode {
	case ReplicationSync:
		for _, root := range rt.cfg.Replicas {
			if err := do(root); err != nil {
				return fmt.Errorf("runtime: replicate %s to %s: %w", filename, root, err)
			}
		}
		return nil
	case ReplicationAsyncBestEffort:
		for _, root := range rt.cfg.Replicas {
			root := root
			go func() {
				if err := do(root); err != nil {
					atomic.AddInt64(&rt.replicationFails, 1)
					rt.log.Errorw("replica write failed", "replica", root, "file", filename, "error", err)
				}
			}()
		}
		return nil
	default:
		return fmt.Errorf("runtime: unknown replication mode %d", rt.cfg.ReplicationMode)
	}
}
