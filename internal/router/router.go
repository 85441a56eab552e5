// Package router computes the recipient set for a frame from its
// destination fields and fans it out. Routing reads the session tables
// through snapshots; deliveries never run under the table mutex.
package router

import (
	"github.com/haglib/hagsock/internal/frame"
	"github.com/haglib/hagsock/internal/hub"
	"github.com/haglib/hagsock/internal/metrics"
	"github.com/haglib/hagsock/internal/session"
	"go.uber.org/zap"
)

// Sink receives a copy of every routed frame. The capture journal
// implements it; a nil sink disables capture.
type Sink interface {
	Append(f *frame.Frame) error
}

type Router struct {
	sessions *session.Manager
	hub      *hub.Hub
	logger   *zap.Logger
	sink     Sink
}

func New(sessions *session.Manager, h *hub.Hub, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		sessions: sessions,
		hub:      h,
		logger:   logger,
	}
}

// SetSink attaches a capture sink. Must be called before the server starts
// routing.
func (r *Router) SetSink(s Sink) { r.sink = s }

// Route handles a frame received on sender's connection: rewrites the
// source fields to the sender's authentic identity, then delivers by the
// destination truth table:
//
//	dest_user 0          → local server callbacks, no forwarding
//	dest_user * + group * → every session except the sender
//	dest_user * + group g → sessions in group g (sender included if in g)
//	dest_user u + group * → sessions of user u
//	dest_user u + group g → sessions matching both
func (r *Router) Route(sender *session.Session, f *frame.Frame) {
	if userID, groupID, ok := r.sessions.Identity(sender.ID()); ok {
		if f.SrcUserID == frame.WildcardID || f.SrcUserID == 0 {
			f.SrcUserID = userID
		}
		if f.SrcGroupID == 0 {
			f.SrcGroupID = groupID
		}
	}

	r.capture(f)

	switch {
	case f.DestUserID == frame.ServerID:
		metrics.FramesRoutedTotal.WithLabelValues("server").Inc()
		r.hub.Dispatch(f)

	case f.DestUserID == frame.WildcardID && f.DestGroupID == frame.WildcardID:
		metrics.FramesRoutedTotal.WithLabelValues("broadcast").Inc()
		r.deliver(r.sessions.SnapshotAll(), f, sender.ID())

	case f.DestUserID == frame.WildcardID:
		metrics.FramesRoutedTotal.WithLabelValues("group").Inc()
		r.deliver(r.sessions.SnapshotGroup(f.DestGroupID), f, 0)

	case f.DestGroupID == frame.WildcardID:
		metrics.FramesRoutedTotal.WithLabelValues("user").Inc()
		r.deliver(r.sessions.SnapshotUser(f.DestUserID), f, 0)

	default:
		metrics.FramesRoutedTotal.WithLabelValues("user_group").Inc()
		r.deliver(r.sessions.SnapshotUserGroup(f.DestUserID, f.DestGroupID), f, 0)
	}
}

// ServerSend delivers a frame on behalf of the server owner. Unlike Route
// there is no sender to exclude: a zero/unspecified destination reaches
// every live session.
func (r *Router) ServerSend(f *frame.Frame) {
	r.capture(f)

	switch {
	case f.DestUserID != 0 && f.DestUserID != frame.WildcardID:
		r.deliver(r.sessions.SnapshotUser(f.DestUserID), f, 0)
	case f.DestGroupID != 0 && f.DestGroupID != frame.WildcardID:
		r.deliver(r.sessions.SnapshotGroup(f.DestGroupID), f, 0)
	default:
		r.deliver(r.sessions.SnapshotAll(), f, 0)
	}
}

// deliver sends f to each recipient in turn, skipping excludeID. A failing
// send is logged and counted; it neither aborts the fan-out nor tears down
// the recipient, whose own receive loop will notice the dead connection.
func (r *Router) deliver(recipients []*session.Session, f *frame.Frame, excludeID uint64) {
	for _, s := range recipients {
		if excludeID != 0 && s.ID() == excludeID {
			continue
		}
		if err := s.Send(f); err != nil {
			metrics.SendFailuresTotal.Inc()
			r.logger.Warn("fan-out send failed",
				zap.Uint64("session_id", s.ID()),
				zap.Error(err),
			)
		}
	}
}

func (r *Router) capture(f *frame.Frame) {
	if r.sink == nil {
		return
	}
	if err := r.sink.Append(f); err != nil {
		r.logger.Warn("journal append failed", zap.Error(err))
	}
}
