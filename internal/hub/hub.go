// Package hub delivers decoded frames to registered listeners. Client and
// server each own one Hub; the dispatch rules are identical on both ends.
package hub

import (
	"image"
	"strings"
	"sync"

	"github.com/haglib/hagsock/internal/frame"
	"go.uber.org/zap"
)

// ConnectPrefix marks a handshake body. Handshake frames are surfaced as
// log messages only, never as text events.
const ConnectPrefix = "CONNECT:"

// WelcomePrefix marks the server's greeting frame.
const WelcomePrefix = "ようこそ"

type (
	FirstMessageListener func(msg string)
	BinaryListener       func(f *frame.Frame)
	TextListener         func(msg string, f *frame.Frame)
	ImageListener        func(img image.Image, f *frame.Frame)
	TextAndImageListener func(msg string, img image.Image, f *frame.Frame)
	ComplexListener      func(c frame.Composite, f *frame.Frame)
	LogMessageListener   func(msg string)
	PacketFrameListener  func(child, parent *frame.Frame)
	RequirementListener  func(c frame.Composite, f *frame.Frame)
)

// Hub holds one listener list per event kind. Listeners run synchronously
// on the dispatching goroutine in registration order; a panicking listener
// is logged and does not stop the rest. There is no removal.
type Hub struct {
	mu sync.RWMutex

	firstMessage []FirstMessageListener
	binary       []BinaryListener
	text         []TextListener
	image        []ImageListener
	textAndImage []TextAndImageListener
	complexData  []ComplexListener
	logMessage   []LogMessageListener
	packetFrame  []PacketFrameListener
	requirement  []RequirementListener

	logger *zap.Logger
}

func New(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{logger: logger}
}

func (h *Hub) AddFirstMessageListener(fn FirstMessageListener) {
	h.mu.Lock()
	h.firstMessage = append(h.firstMessage, fn)
	h.mu.Unlock()
}

func (h *Hub) AddBinaryListener(fn BinaryListener) {
	h.mu.Lock()
	h.binary = append(h.binary, fn)
	h.mu.Unlock()
}

func (h *Hub) AddTextListener(fn TextListener) {
	h.mu.Lock()
	h.text = append(h.text, fn)
	h.mu.Unlock()
}

func (h *Hub) AddImageListener(fn ImageListener) {
	h.mu.Lock()
	h.image = append(h.image, fn)
	h.mu.Unlock()
}

func (h *Hub) AddTextAndImageListener(fn TextAndImageListener) {
	h.mu.Lock()
	h.textAndImage = append(h.textAndImage, fn)
	h.mu.Unlock()
}

func (h *Hub) AddComplexListener(fn ComplexListener) {
	h.mu.Lock()
	h.complexData = append(h.complexData, fn)
	h.mu.Unlock()
}

func (h *Hub) AddLogMessageListener(fn LogMessageListener) {
	h.mu.Lock()
	h.logMessage = append(h.logMessage, fn)
	h.mu.Unlock()
}

func (h *Hub) AddPacketFrameListener(fn PacketFrameListener) {
	h.mu.Lock()
	h.packetFrame = append(h.packetFrame, fn)
	h.mu.Unlock()
}

func (h *Hub) AddRequirementListener(fn RequirementListener) {
	h.mu.Lock()
	h.requirement = append(h.requirement, fn)
	h.mu.Unlock()
}

// invoke runs fn, isolating a panic so the remaining listeners still run.
func (h *Hub) invoke(kind string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("listener panicked",
				zap.String("kind", kind),
				zap.Any("panic", r),
			)
		}
	}()
	fn()
}

func (h *Hub) RaiseFirstMessage(msg string) {
	h.mu.RLock()
	listeners := h.firstMessage
	h.mu.RUnlock()
	for _, fn := range listeners {
		fn := fn
		h.invoke("first_message", func() { fn(msg) })
	}
}

func (h *Hub) RaiseBinary(f *frame.Frame) {
	h.mu.RLock()
	listeners := h.binary
	h.mu.RUnlock()
	for _, fn := range listeners {
		fn := fn
		h.invoke("binary", func() { fn(f) })
	}
}

func (h *Hub) RaiseText(msg string, f *frame.Frame) {
	h.mu.RLock()
	listeners := h.text
	h.mu.RUnlock()
	for _, fn := range listeners {
		fn := fn
		h.invoke("text", func() { fn(msg, f) })
	}
}

func (h *Hub) RaiseImage(img image.Image, f *frame.Frame) {
	h.mu.RLock()
	listeners := h.image
	h.mu.RUnlock()
	for _, fn := range listeners {
		fn := fn
		h.invoke("image", func() { fn(img, f) })
	}
}

func (h *Hub) RaiseTextAndImage(msg string, img image.Image, f *frame.Frame) {
	h.mu.RLock()
	listeners := h.textAndImage
	h.mu.RUnlock()
	for _, fn := range listeners {
		fn := fn
		h.invoke("text_and_image", func() { fn(msg, img, f) })
	}
}

func (h *Hub) RaiseComplex(c frame.Composite, f *frame.Frame) {
	h.mu.RLock()
	listeners := h.complexData
	h.mu.RUnlock()
	for _, fn := range listeners {
		fn := fn
		h.invoke("complex", func() { fn(c, f) })
	}
}

func (h *Hub) RaiseLogMessage(msg string) {
	h.mu.RLock()
	listeners := h.logMessage
	h.mu.RUnlock()
	for _, fn := range listeners {
		fn := fn
		h.invoke("log_message", func() { fn(msg) })
	}
}

func (h *Hub) RaisePacketFrame(child, parent *frame.Frame) {
	h.mu.RLock()
	listeners := h.packetFrame
	h.mu.RUnlock()
	for _, fn := range listeners {
		fn := fn
		h.invoke("packet_frame", func() { fn(child, parent) })
	}
}

func (h *Hub) RaiseRequirement(c frame.Composite, f *frame.Frame) {
	h.mu.RLock()
	listeners := h.requirement
	h.mu.RUnlock()
	for _, fn := range listeners {
		fn := fn
		h.invoke("requirement", func() { fn(c, f) })
	}
}

// Dispatch routes a decoded frame to the listener set matching its
// payload type. Handshake bodies ("CONNECT:...") raise log_message only.
func (h *Hub) Dispatch(f *frame.Frame) {
	if f == nil {
		return
	}

	switch f.Type {
	case frame.PlainText:
		msg := f.Text()
		if msg == "" {
			return
		}
		if strings.HasPrefix(msg, ConnectPrefix) {
			h.RaiseLogMessage("client connect request: " + msg)
			return
		}
		h.RaiseText(msg, f)

	case frame.PngImage:
		if img := f.Image(); img != nil {
			h.RaiseImage(img, f)
		}

	case frame.TextAndPngImage:
		msg, img := f.TextAndImage()
		if img != nil {
			h.RaiseTextAndImage(msg, img, f)
		}

	case frame.Complex:
		h.RaiseComplex(f.ComplexData(), f)

	case frame.PacketFrame:
		if child := f.Child(); child != nil {
			h.RaisePacketFrame(child, f)
		}

	case frame.Requirement:
		h.RaiseRequirement(f.RequirementData(), f)

	default:
		h.RaiseBinary(f)
	}
}
