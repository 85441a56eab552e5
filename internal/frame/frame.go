// Package frame implements the hag1 wire format: a fixed 32-byte
// little-endian header followed by a typed payload.
//
// Header layout:
//
//	Offset  0: Magic "hag1" (4 bytes)
//	Offset  4: Reserved (4 bytes, zero on encode, ignored on decode)
//	Offset  8: Destination group id (4 bytes)
//	Offset 12: Destination user id (4 bytes)
//	Offset 16: Source group id (4 bytes)
//	Offset 20: Source user id (4 bytes)
//	Offset 24: Payload type (4 bytes)
//	Offset 28: Payload size (4 bytes)
//
// User and group ids 0 and 65535 are reserved: 0 addresses the server and
// 65535 is the destination wildcard. Neither is assignable to a client.
package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// Magic identifies a hag1 frame on the wire.
	Magic = "hag1"

	// HeaderSize is the fixed size of the frame header in bytes.
	HeaderSize = 32

	// ServerID in a destination field addresses the local server.
	ServerID uint32 = 0

	// WildcardID in a destination field matches any user or group.
	WildcardID uint32 = 0xFFFF
)

var (
	ErrBadMagic     = errors.New("frame: bad magic")
	ErrShortHeader  = errors.New("frame: short header")
	ErrShortPayload = errors.New("frame: short payload")
	ErrTruncatedLPS = errors.New("frame: truncated length-prefixed sequence")
)

// PayloadType tags the payload that follows the header. The set is closed;
// unknown tags decode successfully and are routed as raw binary.
type PayloadType uint32

const (
	BinaryRaw       PayloadType = 0
	PlainText       PayloadType = 1
	PngImage        PayloadType = 8000
	TextAndPngImage PayloadType = 8001
	Complex         PayloadType = 10000
	PacketFrame     PayloadType = 20000
	Requirement     PayloadType = 30000
)

func (t PayloadType) String() string {
	switch t {
	case BinaryRaw:
		return "binary_raw"
	case PlainText:
		return "plain_text"
	case PngImage:
		return "png_image"
	case TextAndPngImage:
		return "text_and_png_image"
	case Complex:
		return "complex"
	case PacketFrame:
		return "packet_frame"
	case Requirement:
		return "requirement"
	default:
		return fmt.Sprintf("unknown(%d)", uint32(t))
	}
}

// Frame is one unit on the wire. Payload bytes are opaque to the routing
// core; the typed accessors interpret them according to Type.
type Frame struct {
	DestGroupID uint32
	DestUserID  uint32
	SrcGroupID  uint32
	SrcUserID   uint32
	Type        PayloadType
	Payload     []byte
}

// Header holds the decoded fixed header of a frame. PayloadSize is the
// declared length of the payload that follows.
type Header struct {
	DestGroupID uint32
	DestUserID  uint32
	SrcGroupID  uint32
	SrcUserID   uint32
	Type        PayloadType
	PayloadSize uint32
}

// Encode serializes the frame to header + payload. The payload size field
// is always recomputed from the payload; it never fails.
func (f *Frame) Encode() []byte {
	buf := make([]byte, HeaderSize+len(f.Payload))
	copy(buf[0:4], Magic)
	// buf[4:8] reserved, left zero.
	binary.LittleEndian.PutUint32(buf[8:12], f.DestGroupID)
	binary.LittleEndian.PutUint32(buf[12:16], f.DestUserID)
	binary.LittleEndian.PutUint32(buf[16:20], f.SrcGroupID)
	binary.LittleEndian.PutUint32(buf[20:24], f.SrcUserID)
	binary.LittleEndian.PutUint32(buf[24:28], uint32(f.Type))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(len(f.Payload)))
	copy(buf[HeaderSize:], f.Payload)
	return buf
}

// ParseHeader decodes the fixed 32-byte header. The payload is not
// inspected; callers read PayloadSize bytes after the header themselves.
func ParseHeader(buf []byte) (Header, error) {
	var h Header
	if len(buf) < HeaderSize {
		return h, fmt.Errorf("%w: %d bytes", ErrShortHeader, len(buf))
	}
	if string(buf[0:4]) != Magic {
		return h, fmt.Errorf("%w: %q", ErrBadMagic, buf[0:4])
	}
	h.DestGroupID = binary.LittleEndian.Uint32(buf[8:12])
	h.DestUserID = binary.LittleEndian.Uint32(buf[12:16])
	h.SrcGroupID = binary.LittleEndian.Uint32(buf[16:20])
	h.SrcUserID = binary.LittleEndian.Uint32(buf[20:24])
	h.Type = PayloadType(binary.LittleEndian.Uint32(buf[24:28]))
	h.PayloadSize = binary.LittleEndian.Uint32(buf[28:32])
	return h, nil
}

// Decode deserializes a frame from buf. buf must contain the full header
// and at least PayloadSize payload bytes; trailing bytes are ignored.
func Decode(buf []byte) (*Frame, error) {
	h, err := ParseHeader(buf)
	if err != nil {
		return nil, err
	}
	if uint64(len(buf)) < uint64(HeaderSize)+uint64(h.PayloadSize) {
		return nil, fmt.Errorf("%w: declared %d, have %d",
			ErrShortPayload, h.PayloadSize, len(buf)-HeaderSize)
	}
	payload := make([]byte, h.PayloadSize)
	copy(payload, buf[HeaderSize:HeaderSize+int(h.PayloadSize)])
	return &Frame{
		DestGroupID: h.DestGroupID,
		DestUserID:  h.DestUserID,
		SrcGroupID:  h.SrcGroupID,
		SrcUserID:   h.SrcUserID,
		Type:        h.Type,
		Payload:     payload,
	}, nil
}
