package sensors

import (
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/ghalamif/TrailSync/internal/domain"
	"github.com/ghalamif/TrailSync/internal/ports"
)

type stubLocationSource struct {
	mu      sync.Mutex
	out     chan<- domain.Fix
	errs    chan<- error
	started int
	stopped int
	failErr error
}

func (s *stubLocationSource) Start(_ ports.LocationOptions, out chan<- domain.Fix, errs chan<- error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failErr != nil {
		return s.failErr
	}
	s.out, s.errs = out, errs
	s.started++
	return nil
}

func (s *stubLocationSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped++
	return nil
}

type stubMotionSource struct {
	out     chan<- domain.Acceleration
	failErr error
}

func (s *stubMotionSource) Start(out chan<- domain.Acceleration) error {
	if s.failErr != nil {
		return s.failErr
	}
	s.out = out
	return nil
}

func (s *stubMotionSource) Stop() error { return nil }

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met before deadline")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestLocationTrackerDeliversFixesAndErrors(t *testing.T) {
	src := &stubLocationSource{}
	var (
		mu    sync.Mutex
		fixes []domain.Fix
		errs  []error
	)
	tr := NewLocationTracker(src,
		func(f domain.Fix) { mu.Lock(); fixes = append(fixes, f); mu.Unlock() },
		func(err error) { mu.Lock(); errs = append(errs, err); mu.Unlock() },
	)

	if err := tr.Start(ports.LocationOptions{HighAccuracy: true}); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := tr.Start(ports.LocationOptions{}); err == nil {
		t.Fatalf("expected second start to fail")
	}

	src.out <- domain.Fix{Latitude: 1, Longitude: 2}
	src.errs <- ports.ErrPermissionDenied
	src.out <- domain.Fix{Latitude: 3, Longitude: 4}

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(fixes) == 2 && len(errs) == 1
	})

	if err := tr.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if src.stopped != 1 {
		t.Fatalf("expected source to be stopped once, got %d", src.stopped)
	}

	select {
	case src.out <- domain.Fix{Latitude: 5, Longitude: 6}:
	default:
	}
	time.Sleep(10 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if len(fixes) != 2 {
		t.Fatalf("fix delivered after stop: %d", len(fixes))
	}
	if fixes[0].Latitude != 1 || fixes[1].Latitude != 3 {
		t.Fatalf("fixes out of order: %+v", fixes)
	}
}

func TestLocationTrackerRejectsStaleAndInvalidFixes(t *testing.T) {
	src := &stubLocationSource{}
	var (
		mu    sync.Mutex
		fixes int
		errs  []error
	)
	tr := NewLocationTracker(src,
		func(domain.Fix) { mu.Lock(); fixes++; mu.Unlock() },
		func(err error) { mu.Lock(); errs = append(errs, err); mu.Unlock() },
	)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	tr.now = func() time.Time { return now }

	if err := tr.Start(ports.LocationOptions{MaxFixAge: time.Second}); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer tr.Stop()

	src.out <- domain.Fix{Timestamp: now.Add(-5 * time.Second), Latitude: 1, Longitude: 1}
	src.out <- domain.Fix{Timestamp: now, Latitude: math.Inf(1), Longitude: 1}
	src.out <- domain.Fix{Timestamp: now, Latitude: 1, Longitude: 1}

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return fixes == 1 && len(errs) == 2
	})
	for _, err := range errs {
		if !errors.Is(err, ports.ErrPositionUnavailable) {
			t.Fatalf("expected ErrPositionUnavailable, got %v", err)
		}
	}
}

func TestLocationTrackerReportsFixTimeout(t *testing.T) {
	src := &stubLocationSource{}
	timeouts := make(chan error, 4)
	tr := NewLocationTracker(src, func(domain.Fix) {}, func(err error) { timeouts <- err })

	if err := tr.Start(ports.LocationOptions{FixTimeout: 5 * time.Millisecond}); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer tr.Stop()

	select {
	case err := <-timeouts:
		if !errors.Is(err, ports.ErrFixTimeout) {
			t.Fatalf("expected ErrFixTimeout, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected a fix timeout to be reported")
	}
	if !tr.Running() {
		t.Fatalf("tracker must keep listening after a timeout")
	}
}

func TestLocationTrackerWithoutSource(t *testing.T) {
	tr := NewLocationTracker(nil, func(domain.Fix) {}, nil)
	if err := tr.Start(ports.LocationOptions{}); !errors.Is(err, ports.ErrSensorUnavailable) {
		t.Fatalf("expected ErrSensorUnavailable, got %v", err)
	}
	if err := tr.Stop(); err != nil {
		t.Fatalf("stop on idle tracker: %v", err)
	}
}

func TestMotionSamplerDegradesWithoutSource(t *testing.T) {
	m := NewMotionSampler(nil, 4)
	if err := m.Start(); !errors.Is(err, ports.ErrSensorUnavailable) {
		t.Fatalf("expected ErrSensorUnavailable, got %v", err)
	}
	if m.Available() {
		t.Fatalf("sampler without source must report unavailable")
	}
	a, ok := m.Latest()
	if ok || a.X != 0 || a.Y != 0 || a.Z != 0 {
		t.Fatalf("expected zero vector, got %+v ok=%v", a, ok)
	}

	failing := NewMotionSampler(&stubMotionSource{failErr: errors.New("no accelerometer")}, 4)
	if err := failing.Start(); !errors.Is(err, ports.ErrSensorUnavailable) {
		t.Fatalf("expected wrapped ErrSensorUnavailable, got %v", err)
	}
}

func TestMotionSamplerWindowEvictsOldest(t *testing.T) {
	m := NewMotionSampler(nil, 3)
	base := time.Unix(100, 0)
	for i := 0; i < 5; i++ {
		m.Record(domain.Acceleration{Timestamp: base.Add(time.Duration(i) * time.Second), X: float64(i)})
	}

	w := m.Window(time.Time{})
	if len(w) != 3 || w[0].X != 2 || w[2].X != 4 {
		t.Fatalf("unexpected window: %+v", w)
	}
	if recent := m.Window(base.Add(3 * time.Second)); len(recent) != 1 || recent[0].X != 4 {
		t.Fatalf("unexpected filtered window: %+v", recent)
	}
	latest, ok := m.Latest()
	if !ok || latest.X != 4 {
		t.Fatalf("unexpected latest: %+v", latest)
	}
}

func TestMotionSamplerConsumesSource(t *testing.T) {
	src := &stubMotionSource{}
	m := NewMotionSampler(src, 8)
	if err := m.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	src.out <- domain.Acceleration{X: 0.1, Y: 9.8, Z: 0.3}
	waitFor(t, func() bool {
		_, ok := m.Latest()
		return ok
	})
	if err := m.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if !m.Available() {
		t.Fatalf("expected sampler to report available")
	}
}

func TestMean(t *testing.T) {
	if _, ok := Mean(nil); ok {
		t.Fatalf("expected no mean for empty window")
	}
	got, ok := Mean([]domain.Acceleration{{X: 1, Y: 2, Z: 3}, {X: 3, Y: 4, Z: 5}})
	if !ok || got.X != 2 || got.Y != 3 || got.Z != 4 {
		t.Fatalf("unexpected mean %+v", got)
	}
}
