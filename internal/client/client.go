// Package client implements the hag1 matching client: connect, claim an
// identity with the CONNECT handshake, then surface received frames
// through a callback hub.
package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/haglib/hagsock/internal/frame"
	"github.com/haglib/hagsock/internal/hub"
	"github.com/haglib/hagsock/internal/wire"
	"go.uber.org/zap"
)

// ErrNotConnected reports a send attempted while disconnected.
var ErrNotConnected = errors.New("client: not connected")

// DefaultHandshakeDelay is the pause between dialing and sending the
// handshake. It tolerates servers that are not yet reading; correctness
// does not depend on it.
const DefaultHandshakeDelay = 500 * time.Millisecond

type Option func(*Client)

// WithHandshakeDelay overrides the post-dial pause. Tests shorten it.
func WithHandshakeDelay(d time.Duration) Option {
	return func(c *Client) { c.handshakeDelay = d }
}

// WithMaxPayload caps the declared payload size of received frames.
func WithMaxPayload(n uint32) Option {
	return func(c *Client) { c.maxPayload = n }
}

type Client struct {
	Name string

	hub            *hub.Hub
	logger         *zap.Logger
	handshakeDelay time.Duration
	maxPayload     uint32

	mu      sync.Mutex
	conn    net.Conn
	userID  uint32
	groupID uint32

	// wmu serializes writes on the connection.
	wmu   sync.Mutex
	alive atomic.Bool
	wg    sync.WaitGroup
}

func New(logger *zap.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{
		hub:            hub.New(logger.Named("hub")),
		logger:         logger,
		handshakeDelay: DefaultHandshakeDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Hub exposes the client's callback hub for listener registration.
func (c *Client) Hub() *hub.Hub { return c.hub }

// UserID returns the identity claimed at Connect.
func (c *Client) UserID() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID
}

// GroupID returns the identity claimed at Connect.
func (c *Client) GroupID() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.groupID
}

// Alive reports whether the client is connected.
func (c *Client) Alive() bool { return c.alive.Load() }

// Connect dials the server, sends the CONNECT handshake and starts the
// receive loop. Connecting while already connected or while another
// Connect is in flight is a no-op.
func (c *Client) Connect(ctx context.Context, host string, port int, userID, groupID uint32) error {
	// alive doubles as the connect guard: the swap admits exactly one
	// connecting goroutine.
	if !c.alive.CompareAndSwap(false, true) {
		return nil
	}

	addr := net.JoinHostPort(host, strconv.Itoa(port))
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		c.alive.Store(false)
		return fmt.Errorf("client: dialing %s: %w", addr, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.userID = userID
	c.groupID = groupID
	c.mu.Unlock()

	if c.handshakeDelay > 0 {
		select {
		case <-time.After(c.handshakeDelay):
		case <-ctx.Done():
			c.Disconnect()
			return ctx.Err()
		}
	}

	handshake := frame.NewText(fmt.Sprintf("%s%d:%d", hub.ConnectPrefix, userID, groupID))
	handshake.SrcUserID = userID
	handshake.SrcGroupID = groupID
	if err := c.sendRaw(handshake); err != nil {
		c.Disconnect()
		return fmt.Errorf("client: sending handshake: %w", err)
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.receiveLoop(conn)
	}()

	c.hub.RaiseLogMessage("connected to " + addr)
	c.logger.Info("connected",
		zap.String("addr", addr),
		zap.Uint32("user_id", userID),
		zap.Uint32("group_id", groupID),
	)
	return nil
}

func (c *Client) receiveLoop(conn net.Conn) {
	defer c.Disconnect()

	for c.alive.Load() {
		f, err := wire.Recv(conn, c.maxPayload)
		if err != nil {
			if c.alive.Load() {
				c.logger.Debug("receive loop ended", zap.Error(err))
			}
			return
		}

		if f.Type == frame.PlainText {
			if msg := f.Text(); strings.HasPrefix(msg, hub.WelcomePrefix) {
				c.hub.RaiseFirstMessage(msg)
			}
		}

		c.hub.Dispatch(f)
	}
}

// SendData fills the frame's source fields from the client identity where
// unset, then sends it. A send failure disconnects and is returned.
func (c *Client) SendData(f *frame.Frame) error {
	if !c.alive.Load() {
		return ErrNotConnected
	}

	c.mu.Lock()
	if f.SrcGroupID == 0 {
		f.SrcGroupID = c.groupID
	}
	if f.SrcUserID == frame.WildcardID {
		f.SrcUserID = c.userID
	}
	c.mu.Unlock()

	if err := c.sendRaw(f); err != nil {
		c.hub.RaiseLogMessage("send failed: " + err.Error())
		c.logger.Warn("send failed, disconnecting", zap.Error(err))
		c.Disconnect()
		return err
	}
	return nil
}

func (c *Client) sendRaw(f *frame.Frame) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil || !c.alive.Load() {
		return ErrNotConnected
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return wire.Send(conn, f)
}

// Disconnect closes the connection and stops the receive loop. Idempotent.
func (c *Client) Disconnect() {
	if !c.alive.CompareAndSwap(true, false) {
		return
	}
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
	c.hub.RaiseLogMessage("disconnected")
	c.logger.Info("disconnected")
}

// Close disconnects and waits for the receive loop to return.
func (c *Client) Close() {
	c.Disconnect()
	c.wg.Wait()
}
