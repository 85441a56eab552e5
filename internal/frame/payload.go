package frame

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"image"
	"image/png"
	"strings"
)

// Composite is the decoded form of Complex and Requirement payloads:
// typed item lists carried together in one frame.
type Composite struct {
	Texts    []string
	Images   []image.Image
	Binaries [][]byte
}

// newFrame returns a frame with the original defaults: destination unset
// (server) and source user left as the wildcard for the sender to fill.
func newFrame(t PayloadType, payload []byte) *Frame {
	return &Frame{
		SrcUserID: WildcardID,
		Type:      t,
		Payload:   payload,
	}
}

// NewText builds a PlainText frame from a UTF-8 message.
func NewText(msg string) *Frame {
	return newFrame(PlainText, []byte(msg))
}

// NewBinary builds a BinaryRaw frame from opaque bytes.
func NewBinary(raw []byte) *Frame {
	return newFrame(BinaryRaw, raw)
}

// NewImage builds a PngImage frame by PNG-encoding img.
func NewImage(img image.Image) (*Frame, error) {
	data, err := encodePNG(img)
	if err != nil {
		return nil, err
	}
	return newFrame(PngImage, data), nil
}

// NewTextAndImage builds a TextAndPngImage frame: an LPS of the UTF-8 text
// followed by the PNG-encoded image.
func NewTextAndImage(msg string, img image.Image) (*Frame, error) {
	data, err := encodePNG(img)
	if err != nil {
		return nil, err
	}
	payload := PackList([][]byte{[]byte(msg), data})
	return newFrame(TextAndPngImage, payload), nil
}

// NewComplex builds a Complex frame. The payload is an LPS whose first
// element is a 12-byte count header (N_text, N_image, N_binary as u32),
// followed by the text, image and binary items in that order.
func NewComplex(texts []string, images []image.Image, binaries [][]byte) (*Frame, error) {
	payload, err := packComposite(texts, images, binaries)
	if err != nil {
		return nil, err
	}
	return newFrame(Complex, payload), nil
}

// NewRequirement builds a Requirement frame. Same layout as Complex on a
// separate semantic channel.
func NewRequirement(texts []string, images []image.Image, binaries [][]byte) (*Frame, error) {
	payload, err := packComposite(texts, images, binaries)
	if err != nil {
		return nil, err
	}
	return newFrame(Requirement, payload), nil
}

// NewPacketFrame builds a PacketFrame frame carrying child encoded as its
// payload.
func NewPacketFrame(child *Frame) *Frame {
	return newFrame(PacketFrame, child.Encode())
}

func packComposite(texts []string, images []image.Image, binaries [][]byte) ([]byte, error) {
	counts := make([]byte, 12)
	binary.LittleEndian.PutUint32(counts[0:4], uint32(len(texts)))
	binary.LittleEndian.PutUint32(counts[4:8], uint32(len(images)))
	binary.LittleEndian.PutUint32(counts[8:12], uint32(len(binaries)))

	elems := make([][]byte, 0, 1+len(texts)+len(images)+len(binaries))
	elems = append(elems, counts)
	for _, t := range texts {
		elems = append(elems, []byte(t))
	}
	for _, img := range images {
		data, err := encodePNG(img)
		if err != nil {
			return nil, err
		}
		elems = append(elems, data)
	}
	elems = append(elems, binaries...)
	return PackList(elems), nil
}

// Text extracts a message from the frame. Cross-form: the first LPS
// element of a TextAndPngImage, or the first text item of a Complex.
// Invalid UTF-8 sequences are replaced; a missing text is "".
func (f *Frame) Text() string {
	switch f.Type {
	case PlainText:
		return toValidUTF8(f.Payload)
	case TextAndPngImage:
		parts, err := UnpackList(f.Payload)
		if err == nil && len(parts) >= 1 {
			return toValidUTF8(parts[0])
		}
	case Complex:
		c := f.ComplexData()
		if len(c.Texts) > 0 {
			return c.Texts[0]
		}
	}
	return ""
}

// Image extracts the first image from the frame, or nil if the frame
// carries none or the PNG data does not decode.
func (f *Frame) Image() image.Image {
	switch f.Type {
	case PngImage:
		return decodePNG(f.Payload)
	case TextAndPngImage:
		parts, err := UnpackList(f.Payload)
		if err == nil && len(parts) >= 2 {
			return decodePNG(parts[1])
		}
	case Complex:
		c := f.ComplexData()
		if len(c.Images) > 0 {
			return c.Images[0]
		}
	}
	return nil
}

// TextAndImage extracts both a message and an image, tolerating any of the
// text or image-bearing payload forms.
func (f *Frame) TextAndImage() (string, image.Image) {
	switch f.Type {
	case TextAndPngImage:
		var msg string
		var img image.Image
		parts, err := UnpackList(f.Payload)
		if err != nil {
			return "", nil
		}
		if len(parts) >= 1 {
			msg = toValidUTF8(parts[0])
		}
		if len(parts) >= 2 {
			img = decodePNG(parts[1])
		}
		return msg, img
	case PlainText:
		return toValidUTF8(f.Payload), nil
	case PngImage:
		return "", decodePNG(f.Payload)
	case Complex:
		c := f.ComplexData()
		var msg string
		var img image.Image
		if len(c.Texts) > 0 {
			msg = c.Texts[0]
		}
		if len(c.Images) > 0 {
			img = c.Images[0]
		}
		return msg, img
	}
	return "", nil
}

// ComplexData decodes a Complex payload. Non-Complex frames and malformed
// payloads yield an empty Composite, never an error.
func (f *Frame) ComplexData() Composite {
	if f.Type != Complex {
		return Composite{}
	}
	return unpackComposite(f.Payload)
}

// RequirementData decodes a Requirement payload; the layout is identical
// to Complex.
func (f *Frame) RequirementData() Composite {
	if f.Type != Requirement {
		return Composite{}
	}
	return unpackComposite(f.Payload)
}

func unpackComposite(payload []byte) Composite {
	var c Composite
	parts, err := UnpackList(payload)
	if err != nil || len(parts) == 0 || len(parts[0]) < 12 {
		return c
	}
	nText := int(binary.LittleEndian.Uint32(parts[0][0:4]))
	nImage := int(binary.LittleEndian.Uint32(parts[0][4:8]))
	nBinary := int(binary.LittleEndian.Uint32(parts[0][8:12]))

	items := parts[1:]
	idx := 0
	for i := 0; i < nText && idx < len(items); i++ {
		c.Texts = append(c.Texts, toValidUTF8(items[idx]))
		idx++
	}
	for i := 0; i < nImage && idx < len(items); i++ {
		if img := decodePNG(items[idx]); img != nil {
			c.Images = append(c.Images, img)
		}
		idx++
	}
	for i := 0; i < nBinary && idx < len(items); i++ {
		c.Binaries = append(c.Binaries, items[idx])
		idx++
	}
	return c
}

// Child decodes a nested frame from a PacketFrame payload, or nil if the
// frame is not a PacketFrame or the nested bytes do not decode.
func (f *Frame) Child() *Frame {
	if f.Type != PacketFrame {
		return nil
	}
	child, err := Decode(f.Payload)
	if err != nil {
		return nil
	}
	return child
}

// ToBase64Image returns the frame's image as base64 PNG data, prefixed
// with "data:image/png;base64," when withHeader is set. Frames without an
// image yield "".
func (f *Frame) ToBase64Image(withHeader bool) string {
	var data []byte
	switch f.Type {
	case PngImage:
		data = f.Payload
	case TextAndPngImage:
		parts, err := UnpackList(f.Payload)
		if err == nil && len(parts) >= 2 {
			data = parts[1]
		}
	case Complex:
		c := f.ComplexData()
		if len(c.Images) > 0 {
			encoded, err := encodePNG(c.Images[0])
			if err == nil {
				data = encoded
			}
		}
	}
	if len(data) == 0 {
		return ""
	}
	b64 := base64.StdEncoding.EncodeToString(data)
	if withHeader {
		return "data:image/png;base64," + b64
	}
	return b64
}

// ImageFromBase64 decodes a base64 PNG string produced by ToBase64Image,
// stripping the data-URL header when withHeader is set.
func ImageFromBase64(s string, withHeader bool) (image.Image, error) {
	if withHeader {
		if _, rest, ok := strings.Cut(s, ","); ok {
			s = rest
		}
	}
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("frame: decoding base64 image: %w", err)
	}
	img, err := png.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("frame: decoding png: %w", err)
	}
	return img, nil
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("frame: encoding png: %w", err)
	}
	return buf.Bytes(), nil
}

// decodePNG returns nil on malformed data; callers treat a missing image
// as absent rather than an error.
func decodePNG(data []byte) image.Image {
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil
	}
	return img
}

func toValidUTF8(b []byte) string {
	return strings.ToValidUTF8(string(b), "�")
}
