// Package server implements the hag1 routing server: a TCP accept loop,
// one receive goroutine per connection, and handshake-driven identity
// assignment over the session tables.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"

	"github.com/haglib/hagsock/internal/frame"
	"github.com/haglib/hagsock/internal/hub"
	"github.com/haglib/hagsock/internal/metrics"
	"github.com/haglib/hagsock/internal/router"
	"github.com/haglib/hagsock/internal/session"
	"github.com/haglib/hagsock/internal/wire"
	"go.uber.org/zap"
)

// welcomeMessage is sent verbatim to every client on accept.
const welcomeMessage = "ようこそ！サーバーに接続しました。"

type Config struct {
	// ListenAddr is the TCP listen address, e.g. "0.0.0.0:18888".
	ListenAddr string
	// MaxPayloadBytes caps the declared payload size of received frames.
	// Zero means wire.DefaultMaxPayload.
	MaxPayloadBytes uint32
	// Name labels the server in log messages.
	Name string
}

type Server struct {
	cfg      Config
	logger   *zap.Logger
	hub      *hub.Hub
	sessions *session.Manager
	router   *router.Router

	mu        sync.Mutex
	ln        net.Listener
	listening bool

	ready chan struct{}
	wg    sync.WaitGroup
}

func New(cfg Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := hub.New(logger.Named("hub"))
	sessions := session.NewManager(logger.Named("sessions"))
	return &Server{
		cfg:      cfg,
		logger:   logger,
		hub:      h,
		sessions: sessions,
		router:   router.New(sessions, h, logger.Named("router")),
		ready:    make(chan struct{}),
	}
}

// Hub exposes the server's callback hub for listener registration.
func (s *Server) Hub() *hub.Hub { return s.hub }

// Sessions exposes the session manager.
func (s *Server) Sessions() *session.Manager { return s.sessions }

// SetSink attaches a capture sink to the router. Call before Serve.
func (s *Server) SetSink(sink router.Sink) { s.router.SetSink(sink) }

// Ready is closed once the listener is bound.
func (s *Server) Ready() <-chan struct{} { return s.ready }

// Addr returns the bound listen address, valid after Ready.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Listening reports whether the accept loop is running.
func (s *Server) Listening() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listening
}

// Serve binds the listener and accepts connections until ctx is
// cancelled. On return every session has been destroyed.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", s.cfg.ListenAddr, err)
	}

	s.mu.Lock()
	s.ln = ln
	s.listening = true
	s.mu.Unlock()
	close(s.ready)

	s.logger.Info("server listening", zap.String("addr", ln.Addr().String()))
	s.hub.RaiseLogMessage("server started: " + ln.Addr().String())

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			s.logger.Warn("accept failed", zap.Error(err))
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(conn)
		}()
	}

	s.mu.Lock()
	s.listening = false
	s.mu.Unlock()

	s.sessions.CloseAll()
	s.wg.Wait()
	s.logger.Info("server stopped")
	return nil
}

// SendData delivers a frame on behalf of the server owner. The broadcast
// case reaches every live session; there is no sender to exclude.
func (s *Server) SendData(f *frame.Frame) {
	s.router.ServerSend(f)
}

func (s *Server) handleConn(conn net.Conn) {
	sess := s.sessions.Create(conn)
	metrics.SessionsActive.Inc()

	remote := conn.RemoteAddr().String()
	s.hub.RaiseLogMessage(fmt.Sprintf("client connected: %s, session %d", remote, sess.ID()))

	defer func() {
		s.sessions.Destroy(sess.ID())
		metrics.SessionsActive.Dec()
		s.hub.RaiseLogMessage(fmt.Sprintf("client disconnected: %s, session %d", remote, sess.ID()))
		s.logger.Info("client disconnected",
			zap.Uint64("session_id", sess.ID()),
			zap.String("remote", remote),
		)
	}()

	welcome := frame.NewText(welcomeMessage)
	welcome.SrcUserID = frame.ServerID
	if err := sess.Send(welcome); err != nil {
		s.logger.Warn("welcome send failed",
			zap.Uint64("session_id", sess.ID()),
			zap.Error(err),
		)
		return
	}

	for sess.Alive() {
		f, err := wire.Recv(conn, s.cfg.MaxPayloadBytes)
		if err != nil {
			s.logRecvError(sess.ID(), err)
			break
		}

		metrics.FramesReceivedTotal.WithLabelValues(f.Type.String()).Inc()
		metrics.BytesReceivedTotal.Add(float64(len(f.Payload)))

		if f.Type == frame.PlainText {
			if msg := f.Text(); strings.HasPrefix(msg, hub.ConnectPrefix) {
				s.handleHandshake(sess, msg)
			}
		}

		s.router.Route(sess, f)
	}
}

// handleHandshake applies a CONNECT:<u>:<g> identity claim. A malformed
// body is logged and ignored; the session identity stays unchanged.
func (s *Server) handleHandshake(sess *session.Session, msg string) {
	userID, groupID, err := ParseHandshake(msg)
	if err != nil {
		metrics.HandshakeErrorsTotal.Inc()
		s.logger.Warn("handshake parse failed",
			zap.Uint64("session_id", sess.ID()),
			zap.String("body", msg),
			zap.Error(err),
		)
		return
	}

	s.sessions.SetIdentity(sess.ID(), userID, groupID)
	metrics.HandshakesTotal.Inc()
	s.logger.Info("session identity claimed",
		zap.Uint64("session_id", sess.ID()),
		zap.Uint32("user_id", userID),
		zap.Uint32("group_id", groupID),
	)
}

func (s *Server) logRecvError(sessionID uint64, err error) {
	switch {
	case err == io.EOF:
		s.logger.Debug("connection closed by peer", zap.Uint64("session_id", sessionID))
	case errors.Is(err, frame.ErrBadMagic):
		metrics.DecodeErrorsTotal.WithLabelValues("bad_magic").Inc()
		s.logger.Warn("bad magic, closing connection", zap.Uint64("session_id", sessionID))
	case errors.Is(err, wire.ErrFrameTooLarge):
		metrics.DecodeErrorsTotal.WithLabelValues("frame_too_large").Inc()
		s.logger.Warn("oversized frame, closing connection",
			zap.Uint64("session_id", sessionID),
			zap.Error(err),
		)
	default:
		metrics.DecodeErrorsTotal.WithLabelValues("read_error").Inc()
		s.logger.Warn("receive failed, closing connection",
			zap.Uint64("session_id", sessionID),
			zap.Error(err),
		)
	}
}

// ParseHandshake extracts the user and group ids from a CONNECT body.
// Only the first two integers matter; extra colon-separated fields are
// ignored. The wildcard id 65535 is reserved and not claimable.
func ParseHandshake(msg string) (userID, groupID uint32, err error) {
	rest, ok := strings.CutPrefix(msg, hub.ConnectPrefix)
	if !ok {
		return 0, 0, fmt.Errorf("server: not a handshake body")
	}
	parts := strings.Split(rest, ":")
	if len(parts) < 2 {
		return 0, 0, fmt.Errorf("server: handshake needs user and group ids")
	}
	u, err := strconv.ParseUint(parts[0], 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("server: handshake user id: %w", err)
	}
	g, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("server: handshake group id: %w", err)
	}
	if uint32(u) == frame.WildcardID || uint32(g) == frame.WildcardID {
		return 0, 0, fmt.Errorf("server: id %d is reserved", frame.WildcardID)
	}
	return uint32(u), uint32(g), nil
}
