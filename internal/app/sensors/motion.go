package sensors

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/ghalamif/TrailSync/internal/domain"
	"github.com/ghalamif/TrailSync/internal/ports"
)

// DefaultWindowSize keeps roughly five seconds of readings at 10 Hz.
const DefaultWindowSize = 50

// MotionSampler keeps the latest acceleration vector and a bounded window of raw
// readings. It never emits points on its own; callers ask for its current estimate.
// Without a source it reports a zero vector forever.
type MotionSampler struct {
	src ports.MotionSource

	mu        sync.Mutex
	latest    domain.Acceleration
	hasLatest bool
	ring      []domain.Acceleration
	head      int
	n         int
	available bool

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

func NewMotionSampler(src ports.MotionSource, windowSize int) *MotionSampler {
	if windowSize <= 0 {
		windowSize = DefaultWindowSize
	}
	return &MotionSampler{
		src:  src,
		ring: make([]domain.Acceleration, windowSize),
	}
}

// Start subscribes to the motion source. ErrSensorUnavailable (wrapped) is returned when
// the sampler has to degrade to zero vectors; the sampler remains usable either way.
func (m *MotionSampler) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return fmt.Errorf("motion sampler already started")
	}
	m.resetLocked()
	if m.src == nil {
		m.available = false
		return ports.ErrSensorUnavailable
	}

	readings := make(chan domain.Acceleration, len(m.ring))
	if err := m.src.Start(readings); err != nil {
		m.available = false
		return fmt.Errorf("%w: %v", ports.ErrSensorUnavailable, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.running = true
	m.available = true
	m.wg.Add(1)
	go m.consume(ctx, readings)
	return nil
}

// Stop unsubscribes; no reading is recorded after it returns.
func (m *MotionSampler) Stop() error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	err := m.src.Stop()
	m.wg.Wait()
	return err
}

func (m *MotionSampler) Available() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.available
}

func (m *MotionSampler) consume(ctx context.Context, readings <-chan domain.Acceleration) {
	defer m.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case r, ok := <-readings:
			if !ok {
				return
			}
			if ctx.Err() != nil {
				return
			}
			m.Record(r)
		}
	}
}

// Record stores one reading, evicting the oldest when the window is full.
func (m *MotionSampler) Record(r domain.Acceleration) {
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latest = r
	m.hasLatest = true
	m.ring[m.head] = r
	m.head = (m.head + 1) % len(m.ring)
	if m.n < len(m.ring) {
		m.n++
	}
}

// Latest returns the most recent reading, or a zero vector when none has arrived.
func (m *MotionSampler) Latest() (domain.Acceleration, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.hasLatest {
		return domain.Acceleration{}, false
	}
	return m.latest, true
}

// Window returns buffered readings newer than since, oldest first.
func (m *MotionSampler) Window(since time.Time) []domain.Acceleration {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Acceleration, 0, m.n)
	start := (m.head - m.n + len(m.ring)) % len(m.ring)
	for i := 0; i < m.n; i++ {
		r := m.ring[(start+i)%len(m.ring)]
		if r.Timestamp.After(since) {
			out = append(out, r)
		}
	}
	return out
}

func (m *MotionSampler) resetLocked() {
	m.latest = domain.Acceleration{}
	m.hasLatest = false
	m.head = 0
	m.n = 0
}

// Mean averages each axis across the readings. ok is false for an empty slice.
func Mean(readings []domain.Acceleration) (domain.Acceleration, bool) {
	if len(readings) == 0 {
		return domain.Acceleration{}, false
	}
	xs := make([]float64, len(readings))
	ys := make([]float64, len(readings))
	zs := make([]float64, len(readings))
	for i, r := range readings {
		xs[i], ys[i], zs[i] = r.X, r.Y, r.Z
	}
	return domain.Acceleration{
		Timestamp: readings[len(readings)-1].Timestamp,
		X:         stat.Mean(xs, nil),
		Y:         stat.Mean(ys, nil),
		Z:         stat.Mean(zs, nil),
	}, true
}
