// Package connectivity tracks whether the backend is reachable and
// fans state transitions out to subscribers.
package connectivity

import "sync"

// Signal reports reachability and notifies on transitions.
type Signal interface {
	// Online reports the current state.
	Online() bool
	// Subscribe registers fn to run on every state transition. The
	// returned cancel removes the subscription.
	Subscribe(fn func(online bool)) (cancel func())
}

// Manual is a Signal driven by explicit Set calls: platform
// callbacks, UI toggles, tests.
type Manual struct {
	mu     sync.Mutex
	online bool
	nextID int
	subs   map[int]func(bool)
}

// NewManual builds a Manual signal in the given state.
func NewManual(online bool) *Manual {
	return &Manual{online: online, subs: make(map[int]func(bool))}
}

// Online reports the current state.
func (m *Manual) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Set updates the state. Subscribers hear actual transitions only;
// setting the current state again is silent.
func (m *Manual) Set(online bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	subs := make([]func(bool), 0, len(m.subs))
	for _, fn := range m.subs {
		subs = append(subs, fn)
	}
	m.mu.Unlock()

	for _, fn := range subs {
		fn(online)
	}
}

// Subscribe registers fn for transitions. fn runs on the goroutine
// that called Set.
func (m *Manual) Subscribe(fn func(bool)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	m.subs[id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subs, id)
	}
}
