package relay

import "github.com/google/uuid"

// Registry maps identities to live connections and keeps the reviewer subset in sync.
//
// It is not safe for concurrent use; the Hub goroutine is its only owner.
// Invariant: every reviewer entry is also the all-clients entry for the same identity.
type Registry struct {
	clients   map[string]*Entry
	reviewers map[string]*Entry
}

func NewRegistry() *Registry {
	return &Registry{
		clients:   make(map[string]*Entry),
		reviewers: make(map[string]*Entry),
	}
}

// Register inserts e, replacing any entry with the same identity (last writer wins).
// It returns the replaced entry, if any. An empty identity is a no-op and reports false.
func (r *Registry) Register(e *Entry) (replaced *Entry, ok bool) {
	if e == nil || e.Identity == "" {
		return nil, false
	}

	replaced = r.clients[e.Identity]
	delete(r.reviewers, e.Identity)

	r.clients[e.Identity] = e
	if e.Role.IsReviewer() {
		r.reviewers[e.Identity] = e
	}
	return replaced, true
}

// Unregister removes identity from both tables and returns the removed entry.
// Removing an unknown identity is a no-op.
func (r *Registry) Unregister(identity string) *Entry {
	e, exists := r.clients[identity]
	if !exists {
		return nil
	}
	delete(r.clients, identity)
	delete(r.reviewers, identity)
	return e
}

// UnregisterConn removes identity only while it is still bound to connection id.
// A late close of a replaced connection therefore leaves its replacement alone.
func (r *Registry) UnregisterConn(identity string, id uuid.UUID) *Entry {
	e, exists := r.clients[identity]
	if !exists || e.ID != id {
		return nil
	}
	return r.Unregister(identity)
}

func (r *Registry) Lookup(identity string) (*Entry, bool) {
	e, ok := r.clients[identity]
	return e, ok
}

// All returns a snapshot of every entry. Callers may mutate the registry while iterating it.
func (r *Registry) All() []*Entry {
	return snapshot(r.clients)
}

// Reviewers returns a snapshot of the reviewer subset.
func (r *Registry) Reviewers() []*Entry {
	return snapshot(r.reviewers)
}

func (r *Registry) Len() int {
	return len(r.clients)
}

func (r *Registry) ReviewerLen() int {
	return len(r.reviewers)
}

func snapshot(m map[string]*Entry) []*Entry {
	entries := make([]*Entry, 0, len(m))
	for _, e := range m {
		entries = append(entries, e)
	}
	return entries
}
