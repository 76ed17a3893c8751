package runtime

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// Durability controls when an appended journal record is guaranteed to
// survive a crash, per spec.md 4.12.
type Durability int

const (
	// Strict fsyncs after every record before an append returns.
	Strict Durability = iota
	// Eventual batches records, fsyncing on a background timer instead.
	Eventual
)

// DurabilityConfig configures a journal's fsync strategy.
type DurabilityConfig struct {
	Mode           Durability
	SyncIntervalMs int64 // Eventual only; default 200ms
}

const defaultEventualSyncInterval = 200 * time.Millisecond

// journalRecord is one line of runtime_journal.log: {seq, ts_unix_ms, op}.
type journalRecord struct {
	Seq      int64     `json:"seq"`
	TsUnixMs int64     `json:"ts_unix_ms"`
	Op       opPayload `json:"op"`
}

// opPayload is a discriminated union of the two journal operations
// (Upsert/Delete), flattened into one struct since the JSON line format
// has no need for Go-side polymorphism.
type opPayload struct {
	Type          string          `json:"type"` // "upsert" | "delete"
	EntityType    string          `json:"entity_type"`
	PersistID     string          `json:"persist_id"`
	TableName     string          `json:"table_name,omitempty"`
	SchemaVersion int64           `json:"schema_version,omitempty"`
	State         json.RawMessage `json:"state,omitempty"`
	Reason        string          `json:"reason,omitempty"`
	CommandName   string          `json:"command_name,omitempty"`
	Payload       json.RawMessage `json:"payload,omitempty"`
}

// journalWriter appends one JSON record per line to runtime_journal.log.
type journalWriter struct {
	mu   sync.Mutex
	file *os.File
	buf  *bufio.Writer
	size int64

	cfg       DurabilityConfig
	sinceSync int
	stopAsync chan struct{}
	asyncDone chan struct{}
}

func openJournalWriter(path string, cfg DurabilityConfig) (*journalWriter, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("runtime: open journal %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if cfg.SyncIntervalMs <= 0 {
		cfg.SyncIntervalMs = defaultEventualSyncInterval.Milliseconds()
	}
	jw := &journalWriter{file: f, buf: bufio.NewWriterSize(f, 64*1024), size: info.Size(), cfg: cfg}
	if cfg.Mode == Eventual {
		jw.stopAsync = make(chan struct{})
		jw.asyncDone = make(chan struct{})
		go jw.fsyncLoop()
	}
	return jw, nil
}

func (jw *journalWriter) fsyncLoop() {
	defer close(jw.asyncDone)
	interval := time.Duration(jw.cfg.SyncIntervalMs) * time.Millisecond
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			jw.mu.Lock()
			if jw.sinceSync > 0 {
				_ = jw.buf.Flush()
				_ = jw.file.Sync()
				jw.sinceSync = 0
			}
			jw.mu.Unlock()
		case <-jw.stopAsync:
			return
		}
	}
}

// append appends rec as one JSON line, returning the bytes actually
// written so a caller can mirror the same payload to a replica journal.
func (jw *journalWriter) append(rec journalRecord) ([]byte, error) {
	line, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("runtime: encode journal record: %w", err)
	}
	line = append(line, '\n')

	jw.mu.Lock()
	defer jw.mu.Unlock()

	if _, err := jw.buf.Write(line); err != nil {
		return nil, err
	}
	jw.size += int64(len(line))
	jw.sinceSync++

	if jw.cfg.Mode == Strict {
		if err := jw.buf.Flush(); err != nil {
			return nil, err
		}
		if err := jw.file.Sync(); err != nil {
			return nil, err
		}
		jw.sinceSync = 0
	} else {
		if err := jw.buf.Flush(); err != nil {
			return nil, err
		}
	}
	return line, nil
}

func (jw *journalWriter) sizeBytes() int64 {
	jw.mu.Lock()
	defer jw.mu.Unlock()
	return jw.size
}

// truncate resets the journal to empty, used right after a snapshot has
// captured every record written so far.
func (jw *journalWriter) truncate() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()
	if err := jw.buf.Flush(); err != nil {
		return err
	}
	if err := jw.file.Truncate(0); err != nil {
		return err
	}
	if _, err := jw.file.Seek(0, 0); err != nil {
		return err
	}
	jw.buf = bufio.NewWriterSize(jw.file, 64*1024)
	jw.size = 0
	jw.sinceSync = 0
	return nil
}

func (jw *journalWriter) close() error {
	if jw.cfg.Mode == Eventual {
		close(jw.stopAsync)
		<-jw.asyncDone
	}
	jw.mu.Lock()
	defer jw.mu.Unlock()
	if err := jw.buf.Flush(); err != nil {
		return err
	}
	if err := jw.file.Sync(); err != nil {
		return err
	}
	return jw.file.Close()
}

// replayJournal reads every record in path whose Seq exceeds afterSeq, in
// file order, calling apply for each. A missing file is treated as empty
// (a fresh runtime). Trailing corruption (a truncated final line) is
// tolerated: whatever decoded cleanly before it still applies, matching
// internal/persistence's WAL-replay tolerance.
func replayJournal(path string, afterSeq int64, apply func(journalRecord) error) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec journalRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			// Trailing corrupt line: stop here, keep everything before it.
			break
		}
		if rec.Seq <= afterSeq {
			continue
		}
		if err := apply(rec); err != nil {
			return err
		}
	}
	return nil
}
