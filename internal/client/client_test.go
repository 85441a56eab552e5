package client

import (
	"context"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/haglib/hagsock/internal/frame"
	"github.com/haglib/hagsock/internal/wire"
	"go.uber.org/zap"
)

// fakeServer accepts a single connection, sends the welcome line and
// records every frame it receives.
type fakeServer struct {
	ln     net.Listener
	port   int
	frames chan *frame.Frame
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	_, portStr, _ := net.SplitHostPort(ln.Addr().String())
	port, _ := strconv.Atoi(portStr)
	fs := &fakeServer{ln: ln, port: port, frames: make(chan *frame.Frame, 16)}

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		welcome := frame.NewText("ようこそ！サーバーに接続しました。")
		welcome.SrcUserID = frame.ServerID
		if err := wire.Send(conn, welcome); err != nil {
			return
		}
		for {
			f, err := wire.Recv(conn, 0)
			if err != nil {
				close(fs.frames)
				return
			}
			fs.frames <- f
		}
	}()
	return fs
}

func (fs *fakeServer) recvOne(t *testing.T) *frame.Frame {
	t.Helper()
	select {
	case f := <-fs.frames:
		if f == nil {
			t.Fatal("server side closed")
		}
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame at server")
		return nil
	}
}

func connect(t *testing.T, fs *fakeServer, userID, groupID uint32) *Client {
	t.Helper()
	c := New(zap.NewNop(), WithHandshakeDelay(time.Millisecond))
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.Connect(ctx, "127.0.0.1", fs.port, userID, groupID); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(c.Close)
	return c
}

func TestSendData_NotConnected(t *testing.T) {
	c := New(zap.NewNop())
	if err := c.SendData(frame.NewText("x")); err != ErrNotConnected {
		t.Fatalf("err = %v, want ErrNotConnected", err)
	}
}

func TestConnect_SendsHandshake(t *testing.T) {
	fs := newFakeServer(t)
	c := connect(t, fs, 100, 7)

	got := fs.recvOne(t)
	if got.Type != frame.PlainText {
		t.Fatalf("handshake type = %v", got.Type)
	}
	if msg := got.Text(); msg != "CONNECT:100:7" {
		t.Fatalf("handshake body = %q", msg)
	}
	if got.SrcUserID != 100 || got.SrcGroupID != 7 {
		t.Fatalf("handshake src = (%d,%d)", got.SrcUserID, got.SrcGroupID)
	}
	if c.UserID() != 100 || c.GroupID() != 7 {
		t.Fatalf("identity = (%d,%d)", c.UserID(), c.GroupID())
	}
}

func TestConnect_WelcomeRaisesFirstMessage(t *testing.T) {
	fs := newFakeServer(t)
	c := New(zap.NewNop(), WithHandshakeDelay(time.Millisecond))
	first := make(chan string, 1)
	texts := make(chan string, 1)
	c.Hub().AddFirstMessageListener(func(msg string) { first <- msg })
	c.Hub().AddTextListener(func(msg string, f *frame.Frame) { texts <- msg })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.Connect(ctx, "127.0.0.1", fs.port, 1, 1); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(c.Close)

	select {
	case msg := <-first:
		if !strings.HasPrefix(msg, "ようこそ") {
			t.Fatalf("first message = %q", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("first message not raised")
	}
	// The welcome also flows through the ordinary text path.
	select {
	case <-texts:
	case <-time.After(2 * time.Second):
		t.Fatal("welcome not dispatched to text listeners")
	}
}

func TestConnect_WhileConnectedIsNoOp(t *testing.T) {
	fs := newFakeServer(t)
	c := connect(t, fs, 1, 1)
	fs.recvOne(t) // handshake

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := c.Connect(ctx, "127.0.0.1", fs.port, 2, 2); err != nil {
		t.Fatalf("second Connect: %v", err)
	}
	if c.UserID() != 1 {
		t.Fatalf("identity changed by no-op connect: %d", c.UserID())
	}
}

func TestConnect_DialFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	_, portStr, _ := net.SplitHostPort(ln.Addr().String())
	port, _ := strconv.Atoi(portStr)
	ln.Close() // nothing is listening on this port anymore

	c := New(zap.NewNop(), WithHandshakeDelay(time.Millisecond))
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.Connect(ctx, "127.0.0.1", port, 1, 1); err == nil {
		c.Close()
		t.Fatal("expected dial error")
	}
	if c.Alive() {
		t.Fatal("client alive after failed connect")
	}
}

func TestSendData_FillsSourceIdentity(t *testing.T) {
	fs := newFakeServer(t)
	c := connect(t, fs, 42, 7)
	fs.recvOne(t) // handshake

	if err := c.SendData(frame.NewText("hello")); err != nil {
		t.Fatalf("SendData: %v", err)
	}
	got := fs.recvOne(t)
	if got.SrcUserID != 42 || got.SrcGroupID != 7 {
		t.Fatalf("src = (%d,%d), want (42,7)", got.SrcUserID, got.SrcGroupID)
	}
}

func TestSendData_ExplicitSourceKept(t *testing.T) {
	fs := newFakeServer(t)
	c := connect(t, fs, 42, 7)
	fs.recvOne(t) // handshake

	f := frame.NewText("hello")
	f.SrcUserID = 9
	f.SrcGroupID = 8
	if err := c.SendData(f); err != nil {
		t.Fatalf("SendData: %v", err)
	}
	got := fs.recvOne(t)
	if got.SrcUserID != 9 || got.SrcGroupID != 8 {
		t.Fatalf("src = (%d,%d), want (9,8)", got.SrcUserID, got.SrcGroupID)
	}
}

func TestDisconnect_Idempotent(t *testing.T) {
	fs := newFakeServer(t)
	c := connect(t, fs, 1, 1)
	fs.recvOne(t) // handshake

	c.Disconnect()
	c.Disconnect()
	if c.Alive() {
		t.Fatal("still alive after disconnect")
	}
	if err := c.SendData(frame.NewText("x")); err != ErrNotConnected {
		t.Fatalf("err = %v, want ErrNotConnected", err)
	}
}

func TestConnect_ConcurrentCallsDialOnce(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	conns := make(chan net.Conn, 16)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conns <- conn
		}
	}()
	_, portStr, _ := net.SplitHostPort(ln.Addr().String())
	port, _ := strconv.Atoi(portStr)

	c := New(zap.NewNop(), WithHandshakeDelay(time.Millisecond))
	t.Cleanup(c.Close)

	// Exactly one goroutine may win the connect; the rest are no-ops.
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := c.Connect(context.Background(), "127.0.0.1", port, 1, 1); err != nil {
				t.Errorf("Connect: %v", err)
			}
		}()
	}
	wg.Wait()

	select {
	case conn := <-conns:
		defer conn.Close()
	case <-time.After(2 * time.Second):
		t.Fatal("no connection accepted")
	}
	select {
	case conn := <-conns:
		conn.Close()
		t.Fatal("concurrent Connect dialed more than once")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestConnect_CancelledDuringHandshakeDelay(t *testing.T) {
	fs := newFakeServer(t)
	c := New(zap.NewNop(), WithHandshakeDelay(5*time.Second))
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- c.Connect(ctx, "127.0.0.1", fs.port, 1, 1) }()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected context error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Connect did not honor cancellation")
	}
	if c.Alive() {
		t.Fatal("client alive after cancelled connect")
	}
}
