package relay

import (
	"encoding/json"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/adrelay/internal/domain"
	"github.com/stretchr/testify/require"
)

// fakeConn records writes made by the relay.
type fakeConn struct {
	mu          sync.Mutex
	messages    [][]byte
	pings       int
	closeFrame  []byte
	closed      bool
	writeErr    error
	pingErr     error
	blockWrites bool
	stallPings  bool
	unblock     chan struct{}
	closeOnce   sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{unblock: make(chan struct{})}
}

func (c *fakeConn) WriteMessage(_ int, data []byte) error {
	c.mu.Lock()
	block, writeErr := c.blockWrites, c.writeErr
	c.mu.Unlock()

	if block {
		<-c.unblock
		return net.ErrClosed
	}
	if writeErr != nil {
		return writeErr
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return net.ErrClosed
	}
	c.messages = append(c.messages, append([]byte(nil), data...))
	return nil
}

func (c *fakeConn) WriteControl(messageType int, data []byte, _ time.Time) error {
	c.mu.Lock()
	stall := c.stallPings && messageType == websocket.PingMessage
	c.mu.Unlock()

	// A peer that stopped reading: the ping hangs until the socket is closed.
	if stall {
		<-c.unblock
		return net.ErrClosed
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return net.ErrClosed
	}
	switch messageType {
	case websocket.PingMessage:
		if c.pingErr != nil {
			return c.pingErr
		}
		c.pings++
	case websocket.CloseMessage:
		c.closeFrame = append([]byte(nil), data...)
	}
	return nil
}

func (c *fakeConn) SetWriteDeadline(time.Time) error { return nil }

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.unblock) })
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) Messages() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.messages))
	copy(out, c.messages)
	return out
}

func (c *fakeConn) Pings() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pings
}

func (c *fakeConn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// CloseReason returns the text of the close frame, if one was written.
func (c *fakeConn) CloseReason() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.closeFrame) < 2 {
		return ""
	}
	return string(c.closeFrame[2:])
}

func (c *fakeConn) setStallPings() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stallPings = true
}

func (c *fakeConn) setBlockWrites() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.blockWrites = true
}

func (c *fakeConn) setPingErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pingErr = err
}

func (c *fakeConn) setWriteErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writeErr = err
}

var errBrokenPipe = errors.New("broken pipe")

func newTestHub(t *testing.T, observer Observer) *Hub {
	t.Helper()
	hub := NewHub(clockwork.NewRealClock(), observer)
	t.Cleanup(hub.Stop)
	return hub
}

func mustRegister(t *testing.T, hub *Hub, identity string, role domain.Role) (*Entry, *fakeConn) {
	t.Helper()
	conn := newFakeConn()
	entry, err := hub.Register(identity, role, conn)
	require.NoError(t, err)
	return entry, conn
}

func waitForPings(t *testing.T, conn *fakeConn, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return conn.Pings() >= n }, time.Second, 5*time.Millisecond)
}

func waitForMessages(t *testing.T, conn *fakeConn, n int) [][]byte {
	t.Helper()
	require.Eventually(t, func() bool { return len(conn.Messages()) >= n }, time.Second, 5*time.Millisecond)
	return conn.Messages()
}

func decode(t *testing.T, msg []byte) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(msg, &out))
	return out
}
