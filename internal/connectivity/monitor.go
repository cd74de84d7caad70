// Package connectivity tracks whether the catalog backend is reachable and
// publishes transitions to subscribers.
package connectivity

import (
	"sync"

	"travelog-backend/internal/shared/metrics"
	"travelog-backend/internal/shared/telemetry"
)

const subscriberBuffer = 8

// Monitor holds the latest reachability state. The zero value is not usable; use NewMonitor.
type Monitor struct {
	mu     sync.Mutex
	online bool
	subs   map[int]chan bool
	nextID int
}

// NewMonitor returns a monitor that reports online until told otherwise.
func NewMonitor() *Monitor {
	metrics.SetOnline(true)
	return &Monitor{online: true, subs: make(map[int]chan bool)}
}

// Online returns the latest known state.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Set records an observation. Subscribers are notified only when the state changes.
func (m *Monitor) Set(online bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	for _, in := range m.subs {
		in <- online
	}
	m.mu.Unlock()

	metrics.SetOnline(online)
	telemetry.Info("connectivity.changed", map[string]any{"online": online})
}

// Subscribe returns a channel of state transitions and a func that ends the subscription.
// A subscriber that falls behind loses its oldest transitions in pairs, so the values it
// receives still alternate and end at the latest state.
func (m *Monitor) Subscribe() (<-chan bool, func()) {
	in := make(chan bool)
	out := make(chan bool)
	go forward(in, out)

	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.subs[id] = in
	m.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, id)
			close(in)
			m.mu.Unlock()
		})
	}
	return out, cancel
}

func forward(in <-chan bool, out chan<- bool) {
	defer close(out)
	var pending []bool
	for {
		var send chan<- bool
		var head bool
		if len(pending) > 0 {
			send, head = out, pending[0]
		}
		select {
		case v, ok := <-in:
			if !ok {
				return
			}
			pending = append(pending, v)
			if len(pending) > subscriberBuffer {
				pending = pending[2:]
			}
		case send <- head:
			pending = pending[1:]
		}
	}
}
