package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ghalamif/TrailSync/internal/domain"
	"github.com/ghalamif/TrailSync/internal/ports"
)

type mockObs struct {
	mu       sync.Mutex
	errors   []error
	counters map[string]float64
}

func (m *mockObs) LogInfo(string, ...ports.Field) {}
func (m *mockObs) LogError(_ string, err error, _ ...ports.Field) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors = append(m.errors, err)
}
func (m *mockObs) LogCritical(string, error, ...ports.Field) {}
func (m *mockObs) IncCounter(name string, v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counters == nil {
		m.counters = make(map[string]float64)
	}
	m.counters[name] += v
}
func (m *mockObs) ObserveLatency(string, float64) {}
func (m *mockObs) SetGauge(string, float64)       {}

func (m *mockObs) counter(name string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters[name]
}

type mockNet struct {
	mu     sync.Mutex
	online bool
	seq    int
	subs   map[string]chan bool
}

func newMockNet(online bool) *mockNet {
	return &mockNet{online: online, subs: make(map[string]chan bool)}
}

func (n *mockNet) Online() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.online
}

func (n *mockNet) Subscribe() (string, <-chan bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	ch := make(chan bool, 1)
	n.seq++
	id := fmt.Sprintf("sub-%d", n.seq)
	n.subs[id] = ch
	return id, ch
}

func (n *mockNet) Unsubscribe(id string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.subs, id)
}

func (n *mockNet) set(online bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.online = online
	for _, ch := range n.subs {
		select {
		case ch <- online:
		default:
		}
	}
}

// mockStore records uploads; uploadFn decides the outcome of each call.
type mockStore struct {
	mu       sync.Mutex
	uploads  [][]domain.DataPoint
	uploadFn func(ctx context.Context, points []domain.DataPoint) ([]domain.ClassifiedPoint, error)
	started  []*domain.Position
	stopped  []string
	startErr error
	stopErr  error
	nextID   string
}

func (m *mockStore) StartSession(_ context.Context, start *domain.Position) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = append(m.started, start)
	if m.startErr != nil {
		return "", m.startErr
	}
	if m.nextID == "" {
		return "remote-1", nil
	}
	return m.nextID, nil
}

func (m *mockStore) StopSession(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = append(m.stopped, id)
	return m.stopErr
}

func (m *mockStore) UploadBatch(ctx context.Context, _ string, points []domain.DataPoint) ([]domain.ClassifiedPoint, error) {
	m.mu.Lock()
	cp := append([]domain.DataPoint(nil), points...)
	m.uploads = append(m.uploads, cp)
	fn := m.uploadFn
	m.mu.Unlock()
	if fn != nil {
		return fn(ctx, points)
	}
	return nil, nil
}

func (m *mockStore) ListSessions(context.Context, int) ([]domain.SessionSummary, error) {
	return nil, nil
}

func (m *mockStore) SessionPoints(context.Context, string) ([]domain.DataPoint, error) {
	return nil, nil
}

func (m *mockStore) Name() string { return "mock" }

func (m *mockStore) uploadCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.uploads)
}

type fakeMotion struct {
	latest    domain.Acceleration
	hasLatest bool
	window    []domain.Acceleration
}

func (f *fakeMotion) Latest() (domain.Acceleration, bool) { return f.latest, f.hasLatest }

func (f *fakeMotion) Window(since time.Time) []domain.Acceleration {
	var out []domain.Acceleration
	for _, r := range f.window {
		if r.Timestamp.After(since) {
			out = append(out, r)
		}
	}
	return out
}
