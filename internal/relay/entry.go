package relay

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pscheid92/adrelay/internal/domain"
)

// Conn is the subset of *websocket.Conn the relay writes to.
// WriteControl and Close must be safe to call concurrently with WriteMessage.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Entry is one live connection in the registry.
type Entry struct {
	ID          uuid.UUID
	Identity    string
	Role        domain.Role
	ConnectedAt time.Time

	conn   Conn
	writer *clientWriter
	alive  atomic.Bool
}

func newEntry(identity string, role domain.Role, conn Conn, connectedAt time.Time) *Entry {
	e := &Entry{
		ID:          uuid.New(),
		Identity:    identity,
		Role:        role,
		ConnectedAt: connectedAt,
		conn:        conn,
	}
	e.alive.Store(true)
	return e
}

// MarkAlive records a heartbeat reply. Safe to call from the connection's reader goroutine.
func (e *Entry) MarkAlive() {
	e.alive.Store(true)
}

// Alive reports whether a heartbeat reply arrived since the last sweep.
func (e *Entry) Alive() bool {
	return e.alive.Load()
}

// Conn returns the socket owned by this entry.
func (e *Entry) Conn() Conn {
	return e.conn
}

func (e *Entry) open() bool {
	return e.writer != nil && e.writer.isOpen()
}

// EntryInfo is a copy of an entry's state, safe to hand outside the hub goroutine.
type EntryInfo struct {
	ID          uuid.UUID
	Identity    string
	Role        domain.Role
	ConnectedAt time.Time
	Alive       bool
	Open        bool
}

func (e *Entry) info() EntryInfo {
	return EntryInfo{
		ID:          e.ID,
		Identity:    e.Identity,
		Role:        e.Role,
		ConnectedAt: e.ConnectedAt,
		Alive:       e.Alive(),
		Open:        e.open(),
	}
}
