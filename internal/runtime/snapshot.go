package runtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const runtimeSnapshotFormatVersion = 1

// snapshotEntity is one StoredEntity's on-disk projection.
type snapshotEntity struct {
	EntityType    string          `json:"entity_type"`
	PersistID     string          `json:"persist_id"`
	TableName     string          `json:"table_name"`
	SchemaVersion int64           `json:"schema_version"`
	State         json.RawMessage `json:"state"`
	LastAccessAt  time.Time       `json:"last_access_at"`
	AccessCount   int64           `json:"access_count"`
	Resident      bool            `json:"resident"`
}

// runtimeSnapshot is runtime_snapshot.json's shape.
type runtimeSnapshot struct {
	FormatVersion int              `json:"format_version"`
	CreatedAt     time.Time        `json:"created_at"`
	LastSeq       int64            `json:"last_seq"`
	Entities      []snapshotEntity `json:"entities"`
}

func encodeEntity(e *StoredEntity) (snapshotEntity, error) {
	raw, err := json.Marshal(e.State)
	if err != nil {
		return snapshotEntity{}, err
	}
	return snapshotEntity{
		EntityType:    e.Key.EntityType,
		PersistID:     e.Key.PersistID,
		TableName:     e.TableName,
		SchemaVersion: e.SchemaVersion,
		State:         raw,
		LastAccessAt:  e.LastAccessAt,
		AccessCount:   e.AccessCount,
		Resident:      e.Resident,
	}, nil
}

func decodeEntity(se snapshotEntity) (*StoredEntity, error) {
	var state State
	if len(se.State) > 0 {
		if err := json.Unmarshal(se.State, &state); err != nil {
			return nil, err
		}
	} else {
		state = State{}
	}
	return &StoredEntity{
		Key:           Key{EntityType: se.EntityType, PersistID: se.PersistID},
		TableName:     se.TableName,
		SchemaVersion: se.SchemaVersion,
		State:         state,
		LastAccessAt:  se.LastAccessAt,
		AccessCount:   se.AccessCount,
		Resident:      se.Resident,
	}, nil
}

// writeSnapshotAtomic writes snap to path crash-safely (write a temp file
// in the same directory, fsync, rename over path), returning the encoded
// bytes for replication to reuse without re-marshaling.
func writeSnapshotAtomic(path string, snap runtimeSnapshot) ([]byte, error) {
	data, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("runtime: encode snapshot: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("runtime: create snapshot directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return nil, fmt.Errorf("runtime: create temp snapshot: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("runtime: write temp snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("runtime: fsync temp snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("runtime: close temp snapshot: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return nil, fmt.Errorf("runtime: rename snapshot into place: %w", err)
	}
	return data, nil
}

// readSnapshot loads path, returning ok=false if no snapshot exists yet.
func readSnapshot(path string) (runtimeSnapshot, bool, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return runtimeSnapshot{}, false, nil
		}
		return runtimeSnapshot{}, false, err
	}
	defer f.Close()

	var snap runtimeSnapshot
	if err := json.NewDecoder(f).Decode(&snap); err != nil {
		return runtimeSnapshot{}, false, fmt.Errorf("runtime: decode snapshot %s: %w", path, err)
	}
	if snap.FormatVersion != runtimeSnapshotFormatVersion {
		return runtimeSnapshot{}, false, fmt.Errorf("runtime: snapshot %s has format version %d, want %d", path, snap.FormatVersion, runtimeSnapshotFormatVersion)
	}
	return snap, true, nil
}
