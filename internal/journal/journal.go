// Package journal captures routed frames to an append-only file for
// offline inspection. Frames are self-delimiting on disk (header declares
// the payload size), so the file is just encoded frames back to back,
// optionally behind a zstd stream.
package journal

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/haglib/hagsock/internal/frame"
	"github.com/haglib/hagsock/internal/metrics"
	"github.com/haglib/hagsock/internal/wire"
	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"
)

// Writer appends frames to a journal file. Safe for concurrent use.
type Writer struct {
	mu     sync.Mutex
	f      *os.File
	zw     *zstd.Encoder
	w      io.Writer
	logger *zap.Logger
}

// NewWriter opens (creating or appending) the journal at path.
func NewWriter(path string, compress bool, logger *zap.Logger) (*Writer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("journal: opening %s: %w", path, err)
	}

	w := &Writer{f: f, logger: logger}
	if compress {
		zw, err := zstd.NewWriter(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("journal: zstd writer: %w", err)
		}
		w.zw = zw
		w.w = zw
	} else {
		w.w = f
	}

	logger.Info("journal opened",
		zap.String("path", path),
		zap.Bool("compress", compress),
	)
	return w, nil
}

// Append records one frame. Implements router.Sink.
func (w *Writer) Append(f *frame.Frame) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.w == nil {
		return fmt.Errorf("journal: closed")
	}
	if err := wire.Send(w.w, f); err != nil {
		return fmt.Errorf("journal: appending frame: %w", err)
	}
	metrics.JournalRecordsTotal.Inc()
	return nil
}

// Close flushes the compressor and closes the file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.w = nil
	if w.zw != nil {
		if err := w.zw.Close(); err != nil {
			w.f.Close()
			return fmt.Errorf("journal: closing zstd stream: %w", err)
		}
	}
	return w.f.Close()
}

// Reader iterates the frames of a journal file.
type Reader struct {
	f          *os.File
	zr         *zstd.Decoder
	r          io.Reader
	maxPayload uint32
}

// NewReader opens the journal at path. compress must match the writer, and
// maxPayload must be at least the ceiling the writing server ran with
// (zero means wire.DefaultMaxPayload).
func NewReader(path string, compress bool, maxPayload uint32) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("journal: opening %s: %w", path, err)
	}
	r := &Reader{f: f, r: f, maxPayload: maxPayload}
	if compress {
		zr, err := zstd.NewReader(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("journal: zstd reader: %w", err)
		}
		r.zr = zr
		r.r = zr
	}
	return r, nil
}

// Next returns the next recorded frame, or io.EOF at the end of the
// journal.
func (r *Reader) Next() (*frame.Frame, error) {
	return wire.Recv(r.r, r.maxPayload)
}

func (r *Reader) Close() error {
	if r.zr != nil {
		r.zr.Close()
	}
	return r.f.Close()
}
