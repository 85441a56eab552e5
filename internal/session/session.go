// Package session tracks live client connections on the server. A Session
// is one accepted TCP connection; the Manager owns the session table and
// the user-id index, both guarded by a single mutex.
package session

import (
	"errors"
	"net"
	"sync"
	"sync/atomic"

	"github.com/haglib/hagsock/internal/frame"
	"github.com/haglib/hagsock/internal/wire"
)

// ErrClosed reports a send on a session that has been destroyed.
var ErrClosed = errors.New("session: closed")

// Session is the per-connection record: a process-unique id, the identity
// claimed by the client's handshake, and the write half of the connection.
// Identity fields are read and written only under the Manager's mutex.
type Session struct {
	id   uint64
	name string
	conn net.Conn

	// wmu serializes writes: the receive loop and any number of fan-out
	// goroutines may send to the same session concurrently.
	wmu   sync.Mutex
	alive atomic.Bool

	// Guarded by Manager.mu.
	userID  uint32
	groupID uint32
}

// ID returns the session id, monotonically assigned from 1 and never
// reused within a server lifetime.
func (s *Session) ID() uint64 { return s.id }

// Name returns the session's display name ("Client-<id>" by default).
func (s *Session) Name() string { return s.name }

// Alive reports whether the session has not been destroyed.
func (s *Session) Alive() bool { return s.alive.Load() }

// RemoteAddr returns the peer address of the underlying connection.
func (s *Session) RemoteAddr() net.Addr { return s.conn.RemoteAddr() }

// Send writes one frame to the session's connection. Sends are serialized
// per session so concurrent fan-outs never interleave frames.
func (s *Session) Send(f *frame.Frame) error {
	if !s.alive.Load() {
		return ErrClosed
	}
	s.wmu.Lock()
	defer s.wmu.Unlock()
	return wire.Send(s.conn, f)
}

// close marks the session dead and closes the connection. Idempotent.
func (s *Session) close() {
	if s.alive.CompareAndSwap(true, false) {
		s.conn.Close()
	}
}
