// internal/syncer/connectivity.go
package syncer

import (
	"sync"

	"github.com/bartek5186/sfa-offline/internal/metrics"
)

// Monitor – maszyna stanów Online ⇄ Offline. Set woła runtime albo pętla sond.
type Monitor struct {
	mu      sync.Mutex
	online  bool
	nextID  int
	subs    map[int]func(online bool)
	metrics *metrics.Metrics
}

func NewMonitor(initial bool, m *metrics.Metrics) *Monitor {
	m.SetOnline(initial)
	return &Monitor{online: initial, subs: map[int]func(bool){}, metrics: m}
}

func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Set ustawia stan; subskrybenci dostają powiadomienie tylko przy zmianie.
// Callbacki są wołane poza lockiem, w goroutine wołającego.
func (m *Monitor) Set(online bool) bool {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return false
	}
	m.online = online
	subs := make([]func(bool), 0, len(m.subs))
	for _, fn := range m.subs {
		subs = append(subs, fn)
	}
	m.mu.Unlock()

	m.metrics.SetOnline(online)
	for _, fn := range subs {
		fn(online)
	}
	return true
}

// Subscribe zwraca funkcję wypisującą.
func (m *Monitor) Subscribe(fn func(online bool)) func() {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.subs[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
	}
}
