package persistence

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// writeSnapshotAtomic writes snap to path crash-safely: encode to a temp
// file in the same directory, fsync it, then rename over path. A crash at
// any point before the rename leaves the previous snapshot (or none) intact
// rather than a half-written file at the real path.
func writeSnapshotAtomic(path string, snap DatabaseSnapshot) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(snap); err != nil {
		return fmt.Errorf("persistence: encode snapshot: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("persistence: create snapshot directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("persistence: create temp snapshot: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once the rename below succeeds

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("persistence: write temp snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("persistence: fsync temp snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("persistence: close temp snapshot: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("persistence: rename snapshot into place: %w", err)
	}
	return nil
}

// readSnapshot loads path, returning ok=false if no snapshot file exists yet
// (a fresh database).
func readSnapshot(path string) (DatabaseSnapshot, bool, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DatabaseSnapshot{}, false, nil
		}
		return DatabaseSnapshot{}, false, err
	}
	defer f.Close()

	var snap DatabaseSnapshot
	if err := gob.NewDecoder(f).Decode(&snap); err != nil {
		return DatabaseSnapshot{}, false, fmt.Errorf("persistence: decode snapshot %s: %w", path, err)
	}
	if snap.FormatVersion != snapshotFormatVersion {
		return DatabaseSnapshot{}, false, fmt.Errorf("persistence: snapshot %s has format version %d, want %d", path, snap.FormatVersion, snapshotFormatVersion)
	}
	return snap, true, nil
}
