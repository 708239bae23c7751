package recorder

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"main/internal/schema"
)

var (
	ErrQueueFull      = errors.New("wal: queue full")
	ErrClosed         = errors.New("wal: writer closed")
	ErrNotStarted     = errors.New("wal: writer not started")
	ErrAlreadyStarted = errors.New("wal: writer already started")
)

type recordRequest struct {
	header  schema.EventHeader
	payload []byte
}

// Writer appends events to WAL segments from a buffered queue so the
// engine's dispatch path never blocks on disk I/O.
type Writer struct {
	cfg Config
	ch  chan recordRequest
	wg  sync.WaitGroup
	err atomic.Value

	started uint32
	closed  uint32
}

// NewWriter creates a WAL writer and ensures the target directory exists.
func NewWriter(cfg Config) (*Writer, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, err
	}
	return &Writer{
		cfg: cfg,
		ch:  make(chan recordRequest, cfg.QueueSize),
	}, nil
}

// Start runs the writer loop in a new goroutine.
func (w *Writer) Start(ctx context.Context) error {
	if !atomic.CompareAndSwapUint32(&w.started, 0, 1) {
		return ErrAlreadyStarted
	}
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.run(ctx)
	}()
	return nil
}

// Close stops the writer and flushes any buffered data.
func (w *Writer) Close() error {
	if atomic.CompareAndSwapUint32(&w.closed, 0, 1) {
		close(w.ch)
	}
	w.wg.Wait()
	return w.Err()
}

// Err returns the first error observed by the writer, if any.
func (w *Writer) Err() error {
	if v := w.err.Load(); v != nil {
		return v.(error)
	}
	return nil
}

// TryAppend enqueues an event without blocking.
func (w *Writer) TryAppend(header schema.EventHeader, payload []byte) error {
	if atomic.LoadUint32(&w.closed) != 0 {
		return ErrClosed
	}
	if atomic.LoadUint32(&w.started) == 0 {
		return ErrNotStarted
	}
	if err := w.Err(); err != nil {
		return err
	}
	if uint64(len(payload)) > maxPayloadLen {
		return ErrPayloadTooLarge
	}
	if header.Version == 0 {
		header.Version = schema.SchemaVersion
	}
	if w.cfg.CopyPayload && len(payload) > 0 {
		cp := make([]byte, len(payload))
		copy(cp, payload)
		payload = cp
	}
	select {
	case w.ch <- recordRequest{header: header, payload: payload}:
		return nil
	default:
		return ErrQueueFull
	}
}

func (w *Writer) run(ctx context.Context) {
	var (
		seg         *segment
		segID       uint64
		headerBuf   = make([]byte, recordHeaderSize)
		checksumBuf [recordChecksumSize]byte
		flushC      <-chan time.Time
		syncC       <-chan time.Time
	)

	if w.cfg.FlushInterval > 0 {
		ticker := time.NewTicker(w.cfg.FlushInterval)
		defer ticker.Stop()
		flushC = ticker.C
	}
	if w.cfg.SyncInterval > 0 {
		ticker := time.NewTicker(w.cfg.SyncInterval)
		defer ticker.Stop()
		syncC = ticker.C
	}

	defer func() {
		if err := seg.closeAll(); err != nil && w.Err() == nil {
			w.setErr(err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			// Drain whatever is already queued before shutting down;
			// in-flight records are never abandoned.
			for {
				select {
				case req, ok := <-w.ch:
					if !ok {
						return
					}
					if err := w.write(&seg, &segID, headerBuf, &checksumBuf, req); err != nil {
						w.setErr(err)
						return
					}
				default:
					return
				}
			}
		case req, ok := <-w.ch:
			if !ok {
				return
			}
			if err := w.write(&seg, &segID, headerBuf, &checksumBuf, req); err != nil {
				w.setErr(err)
				return
			}
		case <-flushC:
			if err := seg.flush(); err != nil {
				w.setErr(err)
				return
			}
		case <-syncC:
			if err := seg.sync(); err != nil {
				w.setErr(err)
				return
			}
		}
	}
}

func (w *Writer) write(seg **segment, segID *uint64, headerBuf []byte, checksumBuf *[recordChecksumSize]byte, req recordRequest) error {
	recordSize := int64(recordHeaderSize + len(req.payload) + recordChecksumSize)
	if *seg != nil && (*seg).shouldRotate(recordSize, w.cfg) {
		if err := (*seg).closeAll(); err != nil {
			return err
		}
		*seg = nil
	}
	if *seg == nil {
		*segID++
		opened, err := openSegment(w.cfg, *segID)
		if err != nil {
			return err
		}
		*seg = opened
	}

	encodeRecordHeader(headerBuf, req.header, len(req.payload))
	binary.LittleEndian.PutUint32(checksumBuf[:], checksum(headerBuf, req.payload))
	return (*seg).append(headerBuf, req.payload, checksumBuf[:])
}

func (w *Writer) setErr(err error) {
	if err != nil {
		w.err.CompareAndSwap(nil, err)
	}
}

// segment is one WAL file with a buffered writer.
type segment struct {
	file     *os.File
	buf      *bufio.Writer
	written  int64
	openedAt time.Time
}

func openSegment(cfg Config, id uint64) (*segment, error) {
	name := fmt.Sprintf("%s-%s-%06d.wal", cfg.FilePrefix, time.Now().UTC().Format("20060102T150405"), id)
	file, err := os.OpenFile(filepath.Join(cfg.Dir, name), os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return nil, err
	}
	return &segment{
		file:     file,
		buf:      bufio.NewWriterSize(file, cfg.BufferSize),
		openedAt: time.Now().UTC(),
	}, nil
}

func (s *segment) shouldRotate(recordSize int64, cfg Config) bool {
	if s.written+recordSize > cfg.SegmentMaxBytes {
		return true
	}
	if cfg.SegmentMaxDuration > 0 && time.Since(s.openedAt) >= cfg.SegmentMaxDuration {
		return true
	}
	return false
}

func (s *segment) append(header, payload, checksum []byte) error {
	if _, err := s.buf.Write(header); err != nil {
		return err
	}
	if len(payload) > 0 {
		if _, err := s.buf.Write(payload); err != nil {
			return err
		}
	}
	if _, err := s.buf.Write(checksum); err != nil {
		return err
	}
	s.written += int64(len(header) + len(payload) + len(checksum))
	return nil
}

func (s *segment) flush() error {
	if s == nil {
		return nil
	}
	return s.buf.Flush()
}

func (s *segment) sync() error {
	if s == nil {
		return nil
	}
	if err := s.buf.Flush(); err != nil {
		return err
	}
	return s.file.Sync()
}

func (s *segment) closeAll() error {
	if s == nil {
		return nil
	}
	flushErr := s.buf.Flush()
	syncErr := s.file.Sync()
	closeErr := s.file.Close()
	if flushErr != nil {
		return flushErr
	}
	if syncErr != nil {
		return syncErr
	}
	return closeErr
}
