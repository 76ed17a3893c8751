package managedvec

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/kasuganosora/memdb/internal/persist"
	"github.com/kasuganosora/memdb/internal/value"
)

const snapshotFormatVersion = 1

// snapValue is a JSON-friendly projection of value.Value: value.Value has
// no UnmarshalJSON, only MarshalJSON, so a snapshot round-trips every field
// through this DTO rather than value.Value directly (mirroring
// internal/persistence's gob-based snapValue, JSON-tagged here instead).
type snapValue struct {
	Kind value.Kind `json:"kind"`
	I    int64      `json:"i,omitempty"`
	F    float64    `json:"f,omitempty"`
	S    string     `json:"s,omitempty"`
	B    bool       `json:"b,omitempty"`
	T    time.Time  `json:"t,omitempty"`
	Arr  []snapValue `json:"arr,omitempty"`
	JSON json.RawMessage `json:"json,omitempty"`
}

func encodeValue(v value.Value) snapValue {
	w := snapValue{Kind: v.Kind()}
	switch v.Kind() {
	case value.KindInteger:
		w.I, _ = v.AsInt64()
	case value.KindFloat:
		w.F, _ = v.AsFloat64()
	case value.KindText, value.KindUUID:
		w.S, _ = v.AsString()
	case value.KindBoolean:
		w.B = v.AsBool()
	case value.KindTimestamp, value.KindDate:
		w.T, _ = v.AsTime()
	case value.KindArray:
		elems, _ := v.AsArray()
		w.Arr = make([]snapValue, len(elems))
		for i, e := range elems {
			w.Arr[i] = encodeValue(e)
		}
	case value.KindJSON:
		tree, _ := v.AsJSON()
		b, _ := json.Marshal(tree)
		w.JSON = b
	}
	return w
}

func decodeValue(w snapValue) value.Value {
	switch w.Kind {
	case value.KindInteger:
		return value.NewInteger(w.I)
	case value.KindFloat:
		return value.NewFloat(w.F)
	case value.KindText:
		return value.NewText(w.S)
	case value.KindUUID:
		u, _ := uuid.Parse(w.S)
		return value.NewUUID(u)
	case value.KindBoolean:
		return value.NewBoolean(w.B)
	case value.KindTimestamp:
		return value.NewTimestamp(w.T)
	case value.KindDate:
		return value.NewDate(w.T)
	case value.KindArray:
		elems := make([]value.Value, len(w.Arr))
		for i, e := range w.Arr {
			elems[i] = decodeValue(e)
		}
		return value.NewArray(elems)
	case value.KindJSON:
		var tree any
		_ = json.Unmarshal(w.JSON, &tree)
		return value.NewJSON(tree)
	default:
		return value.Null()
	}
}

func encodeFields(fields map[string]value.Value) map[string]snapValue {
	out := make(map[string]snapValue, len(fields))
	for k, v := range fields {
		out[k] = encodeValue(v)
	}
	return out
}

func decodeFields(fields map[string]snapValue) map[string]value.Value {
	out := make(map[string]value.Value, len(fields))
	for k, v := range fields {
		out[k] = decodeValue(v)
	}
	return out
}

type itemSnapshot struct {
	Meta   persist.Metadata         `json:"meta"`
	Fields map[string]snapValue     `json:"fields"`
}

type vecSnapshot struct {
	FormatVersion int            `json:"format_version"`
	Items         []itemSnapshot `json:"items"`
}

// writeSnapshotAtomic writes snap to path crash-safely: encode to a temp
// file in the same directory, fsync it, then rename over path. Returns the
// encoded bytes so the caller can ship the same payload to replicas
// without re-encoding.
func writeSnapshotAtomic(path string, snap vecSnapshot) ([]byte, error) {
	data, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("managedvec: encode snapshot: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("managedvec: create snapshot directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return nil, fmt.Errorf("managedvec: create temp snapshot: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once the rename below succeeds

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("managedvec: write temp snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("managedvec: fsync temp snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("managedvec: close temp snapshot: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return nil, fmt.Errorf("managedvec: rename snapshot into place: %w", err)
	}
	return data, nil
}

// readSnapshot loads path, returning ok=false if no snapshot file exists
// yet (a collection opened for the first time).
func readSnapshot(path string) (vecSnapshot, bool, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return vecSnapshot{}, false, nil
		}
		return vecSnapshot{}, false, err
	}
	defer f.Close()

	var snap vecSnapshot
	if err := json.NewDecoder(f).Decode(&snap); err != nil {
		return vecSnapshot{}, false, fmt.Errorf("managedvec: decode snapshot %s: %w", path, err)
	}
	if snap.FormatVersion != snapshotFormatVersion {
		return vecSnapshot{}, false, fmt.Errorf("managedvec: snapshot %s has format version %d, want %d", path, snap.FormatVersion, snapshotFormatVersion)
	}
	return snap, true, nil
}

// replicate ships data (an already-encoded snapshot payload) to every
// configured replica path, according to cfg.ReplicationMode.
func (pv *PersistVec) replicate(data []byte) error {
	if pv.cfg.ReplicationMode == ReplicationNone || len(pv.cfg.Replicas) == 0 {
		return nil
	}

	writeOne := func(dir string) error {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("managedvec: create replica directory %s: %w", dir, err)
		}
		path := filepath.Join(dir, pv.cfg.Name+".snapshot.json")
		tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
		if err != nil {
			return fmt.Errorf("managedvec: create temp replica file: %w", err)
		}
		tmpPath := tmp.Name()
		defer os.Remove(tmpPath)
		if _, err := tmp.Write(data); err != nil {
			tmp.Close()
			return fmt.Errorf("managedvec: write replica %s: %w", path, err)
		}
		if err := tmp.Sync(); err != nil {
			tmp.Close()
			return fmt.Errorf("managedvec: fsync replica %s: %w", path, err)
		}
		if err := tmp.Close(); err != nil {
			return fmt.Errorf("managedvec: close replica temp file: %w", err)
		}
		return os.Rename(tmpPath, path)
	}

	switch pv.cfg.ReplicationMode {
	case ReplicationSync:
		for _, dir := range pv.cfg.Replicas {
			if err := writeOne(dir); err != nil {
				return err
			}
		}
		return nil
	case ReplicationAsyncBestEffort:
		for _, dir := range pv.cfg.Replicas {
			dir := dir
			go func() {
				if err := writeOne(dir); err != nil {
					atomicAddReplicationFailure(pv)
					pv.log.Errorw("replica snapshot write failed", "replica", dir, "error", err)
				}
			}()
		}
		return nil
	default:
		return fmt.Errorf("managedvec: unknown replication mode %d", pv.cfg.ReplicationMode)
	}
}
