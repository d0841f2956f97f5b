// Package connectivity tracks whether the remote store is reachable.
package connectivity

import (
	"sync"

	"github.com/google/uuid"
)

// Monitor holds the current reachability flag and fans transitions out to subscribers.
type Monitor struct {
	mu          sync.Mutex
	online      bool
	subscribers map[string]chan bool
}

func NewMonitor(initial bool) *Monitor {
	return &Monitor{
		online:      initial,
		subscribers: make(map[string]chan bool),
	}
}

func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Set records the latest reachability. Subscribers are notified only on transitions.
// Slow subscribers see the newest value; stale undelivered values are replaced.
func (m *Monitor) Set(online bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.online == online {
		return
	}
	m.online = online
	for _, ch := range m.subscribers {
		select {
		case ch <- online:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- online
		}
	}
}

// Subscribe returns an id for Unsubscribe and a channel receiving transitions.
func (m *Monitor) Subscribe() (string, <-chan bool) {
	id := uuid.NewString()
	ch := make(chan bool, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribers[id] = ch
	return id, ch
}

func (m *Monitor) Unsubscribe(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ch, ok := m.subscribers[id]; ok {
		close(ch)
		delete(m.subscribers, id)
	}
}
