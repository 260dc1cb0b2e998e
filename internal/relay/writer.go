package relay

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
)

const (
	writeDeadline     = 5 * time.Second
	messageBufferSize = 16
)

var errWriterClosed = errors.New("connection writer closed")

// clientWriter owns every data-frame write to one socket. Messages queued through
// enqueue are written in order, which gives per-identity FIFO delivery.
type clientWriter struct {
	connection  Conn
	clock       clockwork.Clock
	sendChannel chan []byte
	pingChannel chan struct{}
	doneChannel chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup
	closed      atomic.Bool
	onFailure   func(reason CloseReason, err error)
}

func newClientWriter(connection Conn, clock clockwork.Clock, onFailure func(reason CloseReason, err error)) *clientWriter {
	cw := &clientWriter{
		connection:  connection,
		clock:       clock,
		sendChannel: make(chan []byte, messageBufferSize),
		pingChannel: make(chan struct{}, 1),
		doneChannel: make(chan struct{}),
		onFailure:   onFailure,
	}
	cw.wg.Add(1)
	go cw.run()
	return cw
}

func (cw *clientWriter) run() {
	defer cw.wg.Done()

	for {
		select {
		case msg := <-cw.sendChannel:
			cw.updateWriteDeadline()
			if err := cw.connection.WriteMessage(websocket.TextMessage, msg); err != nil {
				cw.fail(ReasonWriteError, err)
				return
			}
		case <-cw.pingChannel:
			deadline := cw.clock.Now().Add(writeDeadline)
			if err := cw.connection.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				cw.fail(ReasonPingFailed, err)
				return
			}
		case <-cw.doneChannel:
			return
		}
	}
}

// fail marks the writer closed and reports the error off the writer goroutine,
// so a hub blocked in stop() can never deadlock against the callback.
func (cw *clientWriter) fail(reason CloseReason, err error) {
	cw.closed.Store(true)
	_ = cw.connection.Close()
	if cw.onFailure != nil {
		go cw.onFailure(reason, err)
	}
}

// enqueue hands msg to the writer without blocking.
// It returns false when the writer is closed or its buffer is full.
func (cw *clientWriter) enqueue(msg []byte) bool {
	if cw.closed.Load() {
		return false
	}
	select {
	case cw.sendChannel <- msg:
		return true
	default:
		return false
	}
}

func (cw *clientWriter) isOpen() bool {
	return !cw.closed.Load()
}

// requestPing asks the writer goroutine to send a heartbeat ping and returns at once.
// A ping still pending from an earlier request absorbs the new one.
// A failed ping is reported through onFailure with ReasonPingFailed.
func (cw *clientWriter) requestPing() error {
	if cw.closed.Load() {
		return errWriterClosed
	}
	select {
	case cw.pingChannel <- struct{}{}:
	default:
	}
	return nil
}

func (cw *clientWriter) stop() {
	cw.stopOnce.Do(func() {
		cw.closed.Store(true)
		close(cw.doneChannel)
		_ = cw.connection.Close()
	})
	cw.wg.Wait()
}

// stopGraceful sends a close frame with reason before closing.
func (cw *clientWriter) stopGraceful(reason string) {
	cw.stopOnce.Do(func() {
		cw.closed.Store(true)
		close(cw.doneChannel)

		// The run goroutine must exit before the close frame goes out.
		cw.wg.Wait()

		closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
		_ = cw.connection.WriteControl(websocket.CloseMessage, closeMsg, cw.clock.Now().Add(writeDeadline))
		_ = cw.connection.Close()
	})
	cw.wg.Wait()
}

func (cw *clientWriter) updateWriteDeadline() {
	_ = cw.connection.SetWriteDeadline(cw.clock.Now().Add(writeDeadline))
}
