package pipeline

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/ghalamif/TrailSync/internal/adapters/queue"
	"github.com/ghalamif/TrailSync/internal/domain"
)

func TestAggregatorNoPointBeforeFirstFix(t *testing.T) {
	buf := queue.NewMemBuffer(0)
	agg := NewAggregator(AggregatorConfig{Policy: EmitFixedRate}, &fakeMotion{}, buf, nil, &mockObs{})
	if err := agg.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer agg.Stop()

	agg.Tick()
	if buf.Len() != 0 || agg.Collected() != 0 {
		t.Fatalf("expected no points before a fix, got %d", buf.Len())
	}
}

func TestAggregatorOnFixWithoutMotionEmitsZeroVector(t *testing.T) {
	buf := queue.NewMemBuffer(0)
	agg := NewAggregator(AggregatorConfig{}, &fakeMotion{}, buf, nil, &mockObs{})
	base := time.Unix(1_700_000_000, 0)
	clock := base
	agg.now = func() time.Time { return clock }

	if err := agg.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	agg.OnFix(domain.Fix{Latitude: 53.34, Longitude: -6.26})
	clock = clock.Add(time.Second)
	agg.OnFix(domain.Fix{Latitude: 53.35, Longitude: -6.27})
	agg.Stop()

	batch := buf.Drain()
	if len(batch) != 2 {
		t.Fatalf("expected 2 points, got %d", len(batch))
	}
	for _, p := range batch {
		if p.AccelX != 0 || p.AccelY != 0 || p.AccelZ != 0 || p.AccelMagnitude != 0 {
			t.Fatalf("expected zero acceleration, got %+v", p)
		}
	}
	if batch[1].Timestamp-batch[0].Timestamp != 1000 {
		t.Fatalf("expected points 1s apart, got %d ms", batch[1].Timestamp-batch[0].Timestamp)
	}
	if agg.Collected() != 2 {
		t.Fatalf("expected collected counter 2, got %d", agg.Collected())
	}
}

func TestAggregatorBurstOfFixesGetsDistinctTimestamps(t *testing.T) {
	buf := queue.NewMemBuffer(0)
	agg := NewAggregator(AggregatorConfig{}, &fakeMotion{}, buf, nil, &mockObs{})
	base := time.Unix(1_700_000_000, 0)
	agg.now = func() time.Time { return base }

	if err := agg.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	const n = 5
	for i := 0; i < n; i++ {
		agg.OnFix(domain.Fix{Latitude: 53.34 + float64(i)*0.0001, Longitude: -6.26})
	}
	agg.Stop()

	batch := buf.Drain()
	if len(batch) != n {
		t.Fatalf("expected %d points, got %d", n, len(batch))
	}
	for i := 1; i < n; i++ {
		if batch[i].Timestamp <= batch[i-1].Timestamp {
			t.Fatalf("timestamps not strictly increasing at %d: %d then %d", i, batch[i-1].Timestamp, batch[i].Timestamp)
		}
	}
	if batch[0].Timestamp != base.UnixMilli() {
		t.Fatalf("expected the first point at the clock time, got %d", batch[0].Timestamp)
	}
}

func TestAggregatorOnFixUsesLatestMotion(t *testing.T) {
	buf := queue.NewMemBuffer(0)
	obs := &mockObs{}
	motion := &fakeMotion{latest: domain.Acceleration{X: 3, Y: 4, Z: 12}, hasLatest: true}
	agg := NewAggregator(AggregatorConfig{Policy: EmitOnFix}, motion, buf, nil, obs)
	if err := agg.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	agg.OnFix(domain.Fix{Latitude: 1, Longitude: 2})
	agg.Stop()
	agg.OnFix(domain.Fix{Latitude: 1, Longitude: 2})

	batch := buf.Drain()
	if len(batch) != 1 {
		t.Fatalf("expected exactly one point (none after stop), got %d", len(batch))
	}
	if math.Abs(batch[0].AccelMagnitude-13) > 1e-9 {
		t.Fatalf("expected magnitude 13, got %f", batch[0].AccelMagnitude)
	}
	if obs.counter("trail_points_collected_total") != 1 {
		t.Fatalf("expected collected metric 1, got %f", obs.counter("trail_points_collected_total"))
	}
}

func TestAggregatorFixedRateAveragesWindowAndAttachesSamples(t *testing.T) {
	buf := queue.NewMemBuffer(0)
	base := time.Unix(1_700_000_000, 0)
	motion := &fakeMotion{
		latest:    domain.Acceleration{Timestamp: base.Add(200 * time.Millisecond), X: 4},
		hasLatest: true,
		window: []domain.Acceleration{
			{Timestamp: base.Add(100 * time.Millisecond), X: 2, Y: 0, Z: 9},
			{Timestamp: base.Add(200 * time.Millisecond), X: 4, Y: 2, Z: 11},
		},
	}
	agg := NewAggregator(AggregatorConfig{Policy: EmitFixedRate, RateHz: 0.001, AttachSamples: true}, motion, buf, nil, &mockObs{})
	clock := base
	agg.now = func() time.Time { return clock }

	if err := agg.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer agg.Stop()

	agg.OnFix(domain.Fix{Latitude: 10, Longitude: 20})
	if buf.Len() != 0 {
		t.Fatalf("fixed-rate policy must not emit on fix")
	}

	clock = base.Add(300 * time.Millisecond)
	agg.Tick()

	batch := buf.Drain()
	if len(batch) != 1 {
		t.Fatalf("expected 1 point, got %d", len(batch))
	}
	p := batch[0]
	if p.AccelX != 3 || p.AccelY != 1 || p.AccelZ != 10 {
		t.Fatalf("expected window mean (3,1,10), got (%f,%f,%f)", p.AccelX, p.AccelY, p.AccelZ)
	}
	if want := math.Sqrt(9 + 1 + 100); math.Abs(p.AccelMagnitude-want) > 1e-9 {
		t.Fatalf("expected magnitude %f, got %f", want, p.AccelMagnitude)
	}
	if len(p.AccelSamples) != 2 || p.AccelSamples[0].Timestamp != base.Add(100*time.Millisecond).UnixMilli() {
		t.Fatalf("unexpected attached samples: %+v", p.AccelSamples)
	}

	clock = base.Add(400 * time.Millisecond)
	agg.Tick()
	second := buf.Drain()
	if len(second) != 1 || second[0].AccelX != 4 || len(second[0].AccelSamples) != 0 {
		t.Fatalf("expected fallback to latest with no new samples, got %+v", second)
	}
}

func TestAggregatorFixedRateSkipsStaleFix(t *testing.T) {
	buf := queue.NewMemBuffer(0)
	agg := NewAggregator(AggregatorConfig{Policy: EmitFixedRate, RateHz: 0.001, StaleAfter: time.Second}, &fakeMotion{}, buf, nil, &mockObs{})
	base := time.Unix(1_700_000_000, 0)
	clock := base
	agg.now = func() time.Time { return clock }
	if err := agg.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer agg.Stop()

	agg.OnFix(domain.Fix{Latitude: 1, Longitude: 1})
	clock = base.Add(3 * time.Second)
	agg.Tick()
	if buf.Len() != 0 {
		t.Fatalf("expected stale fix to suppress emission")
	}
}

type failingTransformer struct{}

func (failingTransformer) Transform(domain.DataPoint) (domain.DataPoint, error) {
	return domain.DataPoint{}, errors.New("calibration missing")
}
func (failingTransformer) Version() uint16 { return 7 }

func TestAggregatorDropsPointsTheTransformerRejects(t *testing.T) {
	buf := queue.NewMemBuffer(0)
	obs := &mockObs{}
	agg := NewAggregator(AggregatorConfig{}, nil, buf, failingTransformer{}, obs)
	if err := agg.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	agg.OnFix(domain.Fix{Latitude: 1, Longitude: 1})
	agg.Stop()

	if buf.Len() != 0 || agg.Collected() != 0 {
		t.Fatalf("expected rejected point to be dropped")
	}
	if len(obs.errors) != 1 {
		t.Fatalf("expected transform failure to be logged")
	}
}
