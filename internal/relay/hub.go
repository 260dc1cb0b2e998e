package relay

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/adrelay/internal/domain"
)

const (
	commandTimeout  = 5 * time.Second
	stopTimeout     = 10 * time.Second
	commandCapacity = 256
)

var errNilPayload = errors.New("payload is required")

// hubCmd is the command interface for the Hub actor.
type hubCmd interface{ isHubCmd() }

type baseHubCmd struct{}

func (baseHubCmd) isHubCmd() {}

type registerCmd struct {
	baseHubCmd
	entry        *Entry
	replyChannel chan error
}

type unregisterCmd struct {
	baseHubCmd
	identity string
	id       uuid.UUID
	reason   CloseReason
}

type deliverCmd struct {
	baseHubCmd
	kind         DeliveryKind
	identity     string
	data         []byte
	replyChannel chan int
}

type sweepCmd struct {
	baseHubCmd
	replyChannel chan SweepResult
}

type lookupCmd struct {
	baseHubCmd
	identity     string
	replyChannel chan lookupResult
}

type lookupResult struct {
	info  EntryInfo
	found bool
}

type statsCmd struct {
	baseHubCmd
	replyChannel chan domain.ConnectionStats
}

type stopCmd struct {
	baseHubCmd
}

// SweepResult summarises one heartbeat sweep.
type SweepResult struct {
	Pinged  int
	Evicted int
}

// Hub owns the registry and serialises every mutation and delivery through one goroutine.
type Hub struct {
	cmdCh       chan hubCmd
	clock       clockwork.Clock
	registry    *Registry
	observer    Observer
	done        chan struct{}
	stopOnce    sync.Once
	stopTimeout time.Duration
}

// NewHub creates a hub and starts its goroutine. A nil observer disables instrumentation.
func NewHub(clock clockwork.Clock, observer Observer) *Hub {
	if observer == nil {
		observer = nopObserver{}
	}
	h := &Hub{
		cmdCh:       make(chan hubCmd, commandCapacity),
		clock:       clock,
		registry:    NewRegistry(),
		observer:    observer,
		done:        make(chan struct{}),
		stopTimeout: stopTimeout,
	}
	go h.run()
	return h
}

// Register adds conn under identity, replacing any previous connection for that identity.
// The returned entry is used by the caller's reader goroutine to report heartbeat replies
// and to unregister on close.
func (h *Hub) Register(identity string, role domain.Role, conn Conn) (*Entry, error) {
	if identity == "" {
		return nil, domain.ErrEmptyIdentity
	}

	entry := newEntry(identity, role, conn, h.clock.Now())
	errCh := make(chan error, 1)
	err, reqErr := request(h, registerCmd{entry: entry, replyChannel: errCh}, errCh)
	if reqErr != nil {
		return nil, fmt.Errorf("register %q: %w", identity, reqErr)
	}
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// Unregister removes identity if it is still bound to connection id. It does not wait.
func (h *Hub) Unregister(identity string, id uuid.UUID, reason CloseReason) {
	h.send(unregisterCmd{identity: identity, id: id, reason: reason})
}

// SendToIdentity queues payload for identity. It returns false when the identity is
// absent, its connection is not open, or the payload cannot be handed to the writer.
func (h *Hub) SendToIdentity(identity string, payload any) bool {
	return h.deliver(DeliveryUnicast, identity, payload) > 0
}

// BroadcastToAll queues payload for every open connection and returns how many accepted it.
func (h *Hub) BroadcastToAll(payload any) int {
	return h.deliver(DeliveryAll, "", payload)
}

// BroadcastToReviewers queues payload for the reviewer subset only.
func (h *Hub) BroadcastToReviewers(payload any) int {
	return h.deliver(DeliveryReviewers, "", payload)
}

// NotifySingleSubmitter is SendToIdentity guarded by the entry's role being submitter.
func (h *Hub) NotifySingleSubmitter(identity string, payload any) bool {
	return h.deliver(DeliverySubmitter, identity, payload) > 0
}

// Sweep runs one heartbeat sweep on the hub goroutine.
func (h *Hub) Sweep() (SweepResult, error) {
	replyCh := make(chan SweepResult, 1)
	return request(h, sweepCmd{replyChannel: replyCh}, replyCh)
}

// Lookup returns a copy of the entry registered for identity.
func (h *Hub) Lookup(identity string) (EntryInfo, bool) {
	replyCh := make(chan lookupResult, 1)
	res, err := request(h, lookupCmd{identity: identity, replyChannel: replyCh}, replyCh)
	if err != nil {
		return EntryInfo{}, false
	}
	return res.info, res.found
}

// Stats returns connection counts. It fails once the hub has stopped.
func (h *Hub) Stats() (domain.ConnectionStats, error) {
	replyCh := make(chan domain.ConnectionStats, 1)
	return request(h, statsCmd{replyChannel: replyCh}, replyCh)
}

// Stop closes every connection with a close frame and waits for the hub goroutine to exit.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		h.send(stopCmd{})

		timeout := h.clock.NewTimer(h.stopTimeout)
		defer timeout.Stop()

		select {
		case <-h.done:
			slog.Info("Hub stopped gracefully")
		case <-timeout.Chan():
			slog.Warn("Hub stop timeout exceeded", "timeout", h.stopTimeout)
		}
	})
}

// Done is closed once the hub goroutine has exited.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

func (h *Hub) send(cmd hubCmd) bool {
	select {
	case h.cmdCh <- cmd:
		return true
	case <-h.done:
		return false
	}
}

func request[T any](h *Hub, cmd hubCmd, replyCh chan T) (T, error) {
	var zero T
	if !h.send(cmd) {
		return zero, domain.ErrHubStopped
	}

	timer := h.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case v := <-replyCh:
		return v, nil
	case <-h.done:
		return zero, domain.ErrHubStopped
	case <-timer.Chan():
		return zero, domain.ErrCommandTimeout
	}
}

func (h *Hub) deliver(kind DeliveryKind, identity string, payload any) int {
	data, err := marshalPayload(payload)
	if err != nil {
		slog.Warn("Dropping undeliverable payload", "kind", kind, "identity", identity, "error", err)
		h.observer.Delivered(kind, false)
		return 0
	}

	replyCh := make(chan int, 1)
	n, err := request(h, deliverCmd{kind: kind, identity: identity, data: data, replyChannel: replyCh}, replyCh)
	if err != nil {
		slog.Warn("Delivery command failed", "kind", kind, "identity", identity, "error", err)
		return 0
	}
	return n
}

func marshalPayload(payload any) ([]byte, error) {
	if payload == nil {
		return nil, errNilPayload
	}
	if raw, ok := payload.(json.RawMessage); ok && len(raw) == 0 {
		return nil, errNilPayload
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return data, nil
}

func (h *Hub) run() {
	defer close(h.done)
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Hub panic recovered", "panic", r)
			h.closeAll("relay failure")
		}
	}()

	for cmd := range h.cmdCh {
		switch c := cmd.(type) {
		case registerCmd:
			h.handleRegister(c)
		case unregisterCmd:
			h.handleUnregister(c)
		case deliverCmd:
			c.replyChannel <- h.handleDeliver(c)
		case sweepCmd:
			c.replyChannel <- h.handleSweep()
		case lookupCmd:
			e, found := h.registry.Lookup(c.identity)
			res := lookupResult{found: found}
			if found {
				res.info = e.info()
			}
			c.replyChannel <- res
		case statsCmd:
			c.replyChannel <- domain.ConnectionStats{
				Connections: h.registry.Len(),
				Reviewers:   h.registry.ReviewerLen(),
			}
		case stopCmd:
			h.handleStop()
			return
		default:
			slog.Warn("Hub received unknown command type", "command_type", fmt.Sprintf("%T", cmd))
		}
	}
}

func (h *Hub) handleRegister(c registerCmd) {
	e := c.entry
	identity, id := e.Identity, e.ID
	e.writer = newClientWriter(e.conn, h.clock, func(reason CloseReason, err error) {
		slog.Warn("Socket write failed", "identity", identity, "connection_id", id.String(), "reason", reason, "error", err)
		h.Unregister(identity, id, reason)
	})

	replaced, ok := h.registry.Register(e)
	if !ok {
		e.writer.stop()
		c.replyChannel <- domain.ErrEmptyIdentity
		return
	}

	if replaced != nil {
		// The old peer may be stuck mid-write; its close frame must not hold up the hub.
		go replaced.writer.stopGraceful("replaced by a newer connection")
		h.observer.ConnectionClosed(replaced.Role, ReasonReplaced)
		slog.Info("Client replaced",
			"identity", identity,
			"old_connection_id", replaced.ID.String(),
			"connection_id", id.String(),
		)
	}

	h.observer.ConnectionOpened(e.Role)
	slog.Debug("Client registered",
		"identity", identity,
		"role", e.Role.Label(),
		"connection_id", id.String(),
		"total_clients", h.registry.Len(),
	)
	c.replyChannel <- nil
}

func (h *Hub) handleUnregister(c unregisterCmd) {
	e := h.registry.UnregisterConn(c.identity, c.id)
	if e == nil {
		return
	}
	h.closeEntry(e, c.reason)
}

func (h *Hub) handleDeliver(c deliverCmd) int {
	switch c.kind {
	case DeliveryAll:
		return h.fanOut(c.kind, h.registry.All(), c.data)
	case DeliveryReviewers:
		return h.fanOut(c.kind, h.registry.Reviewers(), c.data)
	}

	e, found := h.registry.Lookup(c.identity)
	if !found {
		slog.Debug("Delivery target not connected", "kind", c.kind, "identity", c.identity)
		h.observer.Delivered(c.kind, false)
		return 0
	}
	if c.kind == DeliverySubmitter && e.Role != domain.RoleSubmitter {
		slog.Debug("Delivery target is not a submitter", "identity", c.identity, "role", e.Role.Label())
		h.observer.Delivered(c.kind, false)
		return 0
	}
	if h.enqueue(c.kind, e, c.data) {
		return 1
	}
	return 0
}

// fanOut writes to each target independently; one failure never skips the rest.
func (h *Hub) fanOut(kind DeliveryKind, targets []*Entry, data []byte) int {
	delivered := 0
	for _, e := range targets {
		if h.enqueue(kind, e, data) {
			delivered++
		}
	}
	return delivered
}

func (h *Hub) enqueue(kind DeliveryKind, e *Entry, data []byte) bool {
	if !e.open() {
		h.observer.Delivered(kind, false)
		return false
	}
	if !e.writer.enqueue(data) {
		slog.Warn("Disconnecting slow client", "identity", e.Identity, "connection_id", e.ID.String())
		h.evict(e, ReasonSlowClient)
		h.observer.Delivered(kind, false)
		return false
	}
	h.observer.Delivered(kind, true)
	return true
}

// handleSweep applies the two-strike heartbeat policy: an entry that has not replied
// since the previous sweep is evicted, every other entry is marked and pinged.
// Pings are written by each entry's writer goroutine, never by the hub.
func (h *Hub) handleSweep() SweepResult {
	start := h.clock.Now()
	var res SweepResult

	for _, e := range h.registry.All() {
		if !e.alive.Load() {
			h.evict(e, ReasonHeartbeat)
			res.Evicted++
			continue
		}

		e.alive.Store(false)
		if err := e.writer.requestPing(); err != nil {
			slog.Debug("Heartbeat ping not queued", "identity", e.Identity, "error", err)
			h.evict(e, ReasonPingFailed)
			res.Evicted++
			continue
		}
		res.Pinged++
	}

	h.observer.SweepCompleted(h.clock.Since(start), res.Evicted)
	return res
}

func (h *Hub) evict(e *Entry, reason CloseReason) {
	if h.registry.UnregisterConn(e.Identity, e.ID) == nil {
		return
	}
	h.closeEntry(e, reason)
}

func (h *Hub) closeEntry(e *Entry, reason CloseReason) {
	e.writer.stop()
	h.observer.ConnectionClosed(e.Role, reason)

	attrs := []any{
		"identity", e.Identity,
		"role", e.Role.Label(),
		"connection_id", e.ID.String(),
		"reason", reason,
		"remaining_clients", h.registry.Len(),
	}
	switch reason {
	case ReasonReadError, ReasonWriteError, ReasonPingFailed:
		slog.Warn("Client removed after transport error", attrs...)
	default:
		slog.Info("Client removed", attrs...)
	}
}

func (h *Hub) handleStop() {
	total := h.registry.Len()
	slog.Info("Hub shutting down", "total_clients", total)
	h.closeAll("server shutting down")
	slog.Info("Hub shutdown complete", "disconnected_clients", total)
}

// closeAll closes every connection with the given reason, in parallel so one
// stuck peer costs at most one write deadline.
// Used during panic recovery and graceful shutdown.
func (h *Hub) closeAll(reason string) {
	var wg sync.WaitGroup
	for _, e := range h.registry.All() {
		h.registry.Unregister(e.Identity)
		h.observer.ConnectionClosed(e.Role, ReasonShutdown)
		if e.writer == nil {
			continue
		}
		wg.Add(1)
		go func(w *clientWriter) {
			defer wg.Done()
			w.stopGraceful(reason)
		}(e.writer)
	}
	wg.Wait()
}
