// Package wire reads and writes exactly one hag1 frame at a time on a
// byte stream. The header's declared payload size delimits frames, so the
// receiver never over-reads into the next frame.
package wire

import (
	"errors"
	"fmt"
	"io"

	"github.com/haglib/hagsock/internal/frame"
)

// DefaultMaxPayload bounds memory per received frame. The protocol itself
// is unbounded; the ceiling is configurable per connection.
const DefaultMaxPayload uint32 = 64 << 20

// ErrFrameTooLarge reports a declared payload size above the receiver's
// configured ceiling. The connection should be closed.
var ErrFrameTooLarge = errors.New("wire: frame too large")

// Send serializes f and writes it in a single Write call. Callers sharing
// a writer across goroutines must serialize Send themselves; interleaved
// writes corrupt the stream.
func Send(w io.Writer, f *frame.Frame) error {
	if _, err := w.Write(f.Encode()); err != nil {
		return fmt.Errorf("wire: sending frame: %w", err)
	}
	return nil
}

// Recv reads exactly one frame from r. End-of-stream before or inside a
// frame is io.EOF. A magic mismatch is frame.ErrBadMagic and a declared
// payload above maxPayload is ErrFrameTooLarge; both mean the stream can
// no longer be trusted and the connection should be closed. maxPayload 0
// means DefaultMaxPayload.
func Recv(r io.Reader, maxPayload uint32) (*frame.Frame, error) {
	if maxPayload == 0 {
		maxPayload = DefaultMaxPayload
	}

	var hdr [frame.HeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("wire: reading header: %w", err)
	}

	h, err := frame.ParseHeader(hdr[:])
	if err != nil {
		return nil, err
	}
	if h.PayloadSize > maxPayload {
		return nil, fmt.Errorf("%w: %d bytes declared, ceiling %d",
			ErrFrameTooLarge, h.PayloadSize, maxPayload)
	}

	payload := make([]byte, h.PayloadSize)
	if _, err := io.ReadFull(r, payload); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("wire: reading payload: %w", err)
	}

	return &frame.Frame{
		DestGroupID: h.DestGroupID,
		DestUserID:  h.DestUserID,
		SrcGroupID:  h.SrcGroupID,
		SrcUserID:   h.SrcUserID,
		Type:        h.Type,
		Payload:     payload,
	}, nil
}
