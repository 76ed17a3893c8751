package wal

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"os"
	"sync"
	"time"
)

// DurabilityMode controls when an appended record is guaranteed to survive
// a crash, per spec.md 4.5.
type DurabilityMode int

const (
	// Sync fsyncs after every record before Append returns.
	Sync DurabilityMode = iota
	// Group flushes every record to the OS and fsyncs every GroupSize
	// appends (or sooner, on Close).
	Group
	// Async flushes to the OS on every append but fsyncs on a background
	// timer, trading a small durability window for throughput.
	Async
	// None neither flushes nor fsyncs on Append; buffered records reach the
	// file when the buffer fills, on Truncate, or on Close, which also fsyncs.
	// Tests only, per spec.md.
	None
)

func (d DurabilityMode) String() string {
	switch d {
	case Sync:
		return "sync"
	case Group:
		return "group"
	case Async:
		return "async"
	case None:
		return "none"
	default:
		return "unknown"
	}
}

const defaultGroupSize = 32
const defaultAsyncInterval = 200 * time.Millisecond

// Writer appends records to one WAL file, length-prefixed and checksummed:
// a frame is [4-byte length][4-byte crc32 of payload][payload]. Position is
// the file offset right after a successfully appended frame, the
// high-water mark a snapshot records.
type Writer struct {
	mu   sync.Mutex
	file *os.File
	buf  *bufio.Writer
	pos  int64

	mode          DurabilityMode
	groupSize     int
	sinceSync     int
	asyncInterval time.Duration
	stopAsync     chan struct{}
	asyncDone     chan struct{}
}

// Options configures a Writer beyond its durability mode.
type Options struct {
	Mode          DurabilityMode
	GroupSize     int           // Group mode only; default 32
	AsyncInterval time.Duration // Async mode only; default 200ms
}

// Open appends to (or creates) the WAL file at path.
func Open(path string, opts Options) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("wal: open %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if opts.GroupSize <= 0 {
		opts.GroupSize = defaultGroupSize
	}
	if opts.AsyncInterval <= 0 {
		opts.AsyncInterval = defaultAsyncInterval
	}
	w := &Writer{
		file:          f,
		buf:           bufio.NewWriterSize(f, 64*1024),
		pos:           info.Size(),
		mode:          opts.Mode,
		groupSize:     opts.GroupSize,
		asyncInterval: opts.AsyncInterval,
	}
	if w.mode == Async {
		w.stopAsync = make(chan struct{})
		w.asyncDone = make(chan struct{})
		go w.asyncFsyncLoop()
	}
	return w, nil
}

// Append encodes rec, writes its framed form, and (depending on the
// durability mode) flushes/fsyncs before returning. The returned position
// is the byte offset immediately after this record, usable as a recovery
// high-water mark.
func (w *Writer) Append(rec Record) (int64, error) {
	rec.Timestamp = time.Now()
	payload, err := encode(rec)
	if err != nil {
		return 0, fmt.Errorf("wal: encode record: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	var header [8]byte
	binary.BigEndian.PutUint32(header[0:4], uint32(len(payload)))
	binary.BigEndian.PutUint32(header[4:8], crc32.ChecksumIEEE(payload))

	if _, err := w.buf.Write(header[:]); err != nil {
		return 0, err
	}
	if _, err := w.buf.Write(payload); err != nil {
		return 0, err
	}
	w.pos += int64(len(header)) + int64(len(payload))
	w.sinceSync++

	switch w.mode {
	case Sync:
		if err := w.flushAndSyncLocked(); err != nil {
			return 0, err
		}
	case Group:
		if err := w.buf.Flush(); err != nil {
			return 0, err
		}
		if w.sinceSync >= w.groupSize {
			if err := w.file.Sync(); err != nil {
				return 0, err
			}
			w.sinceSync = 0
		}
	case Async:
		if err := w.buf.Flush(); err != nil {
			return 0, err
		}
	case None:
		// Neither flushed nor synced; Close flushes at the end.
	}

	return w.pos, nil
}

func (w *Writer) flushAndSyncLocked() error {
	if err := w.buf.Flush(); err != nil {
		return err
	}
	if err := w.file.Sync(); err != nil {
		return err
	}
	w.sinceSync = 0
	return nil
}

func (w *Writer) asyncFsyncLoop() {
	defer close(w.asyncDone)
	t := time.NewTicker(w.asyncInterval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			w.mu.Lock()
			if w.sinceSync > 0 {
				_ = w.file.Sync()
				w.sinceSync = 0
			}
			w.mu.Unlock()
		case <-w.stopAsync:
			return
		}
	}
}

// Position reports the current end-of-log byte offset.
func (w *Writer) Position() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pos
}

// Truncate resets the WAL to empty, used right after a checkpoint snapshot
// has captured everything written so far.
func (w *Writer) Truncate() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.buf.Flush(); err != nil {
		return err
	}
	if err := w.file.Truncate(0); err != nil {
		return err
	}
	if _, err := w.file.Seek(0, 0); err != nil {
		return err
	}
	w.buf = bufio.NewWriterSize(w.file, 64*1024)
	w.pos = 0
	w.sinceSync = 0
	return nil
}

// Close flushes and fsyncs any buffered data, stops the async fsync
// goroutine if running, and closes the underlying file.
func (w *Writer) Close() error {
	if w.mode == Async {
		close(w.stopAsync)
		<-w.asyncDone
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.flushAndSyncLocked(); err != nil {
		return err
	}
	return w.file.Close()
}
