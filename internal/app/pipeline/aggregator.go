package pipeline

import (
	"fmt"
	"sync"
	"time"

	"github.com/ghalamif/TrailSync/internal/app/sensors"
	"github.com/ghalamif/TrailSync/internal/domain"
	"github.com/ghalamif/TrailSync/internal/ports"
)

// EmitPolicy selects what triggers a fused data point.
type EmitPolicy string

const (
	// EmitOnFix produces one point per location fix using the latest acceleration.
	EmitOnFix EmitPolicy = "on_fix"
	// EmitFixedRate produces points on a timer from the averaged motion window and the
	// most recent fix, decoupling point density from the GPS rate.
	EmitFixedRate EmitPolicy = "fixed_rate"
)

type AggregatorConfig struct {
	Policy EmitPolicy
	// RateHz is the tick rate for EmitFixedRate.
	RateHz float64
	// StaleAfter stops fixed-rate emission when the last fix is older than this.
	StaleAfter time.Duration
	// AttachSamples copies the raw window readings since the previous point into AccelSamples.
	AttachSamples bool
}

func (c AggregatorConfig) withDefaults() AggregatorConfig {
	if c.Policy == "" {
		c.Policy = EmitOnFix
	}
	if c.RateHz <= 0 {
		c.RateHz = 10
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = 5 * time.Second
	}
	return c
}

// MotionEstimator is the read side of the motion sampler.
type MotionEstimator interface {
	Latest() (domain.Acceleration, bool)
	Window(since time.Time) []domain.Acceleration
}

// Aggregator fuses the last known fix with the current motion estimate and appends
// the result to the buffer. No point is produced before the first fix, and point
// timestamps strictly increase within a run.
type Aggregator struct {
	cfg    AggregatorConfig
	motion MotionEstimator
	buf    ports.Buffer
	tr     ports.Transformer
	obs    ports.Observability
	now    func() time.Time

	mu        sync.Mutex
	running   bool
	fix       domain.Fix
	hasFix    bool
	fixSeenAt time.Time
	lastEmit  time.Time
	lastStamp int64
	collected int64

	stopCh chan struct{}
	wg     sync.WaitGroup
}

func NewAggregator(cfg AggregatorConfig, motion MotionEstimator, buf ports.Buffer, tr ports.Transformer, obs ports.Observability) *Aggregator {
	if tr == nil {
		tr = NoopTransformer{}
	}
	return &Aggregator{
		cfg:    cfg.withDefaults(),
		motion: motion,
		buf:    buf,
		tr:     tr,
		obs:    obs,
		now:    time.Now,
	}
}

func (a *Aggregator) Policy() EmitPolicy { return a.cfg.Policy }

// Start resets the collected counter and forgets any previous fix.
func (a *Aggregator) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.running {
		return fmt.Errorf("aggregator already started")
	}
	a.running = true
	a.hasFix = false
	a.fix = domain.Fix{}
	a.collected = 0
	a.lastStamp = 0
	a.lastEmit = a.now()

	if a.cfg.Policy == EmitFixedRate {
		a.stopCh = make(chan struct{})
		a.wg.Add(1)
		go a.tickLoop(a.stopCh, time.Duration(float64(time.Second)/a.cfg.RateHz))
	}
	return nil
}

// Stop halts emission; OnFix calls after Stop are ignored.
func (a *Aggregator) Stop() {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return
	}
	a.running = false
	stopCh := a.stopCh
	a.stopCh = nil
	a.mu.Unlock()

	if stopCh != nil {
		close(stopCh)
	}
	a.wg.Wait()
}

// OnFix records the fix and, under EmitOnFix, emits a point for it.
func (a *Aggregator) OnFix(fix domain.Fix) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.running {
		return
	}
	a.fix = fix
	a.hasFix = true
	a.fixSeenAt = a.now()
	if a.cfg.Policy == EmitOnFix {
		a.emitLocked(a.fixSeenAt)
	}
}

// Tick emits one fixed-rate point when a recent fix exists.
func (a *Aggregator) Tick() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.running || !a.hasFix {
		return
	}
	now := a.now()
	if now.Sub(a.fixSeenAt) > a.cfg.StaleAfter {
		return
	}
	a.emitLocked(now)
}

// LastFix returns the most recent fix seen during the current run.
func (a *Aggregator) LastFix() (domain.Fix, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.fix, a.hasFix
}

// Collected is the number of points appended since Start.
func (a *Aggregator) Collected() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.collected
}

func (a *Aggregator) tickLoop(stop <-chan struct{}, period time.Duration) {
	defer a.wg.Done()
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			a.Tick()
		}
	}
}

func (a *Aggregator) emitLocked(ts time.Time) {
	accel, samples := a.estimateLocked()
	p, err := domain.NewDataPoint(ts, a.fix, accel, samples)
	if err != nil {
		a.obs.LogError("datapoint_rejected", err)
		return
	}
	p, err = a.tr.Transform(p)
	if err != nil {
		a.obs.LogError("datapoint_transform_failed", err, ports.Field{Key: "transform_ver", Value: a.tr.Version()})
		return
	}
	// Point timestamps key the stored rows, so they must be unique within a session.
	if p.Timestamp <= a.lastStamp {
		p.Timestamp = a.lastStamp + 1
	}
	a.lastStamp = p.Timestamp
	a.buf.Append(p)
	a.lastEmit = ts
	a.collected++
	a.obs.IncCounter("trail_points_collected_total", 1)
	a.obs.SetGauge("trail_buffer_length", float64(a.buf.Len()))
}

func (a *Aggregator) estimateLocked() (domain.Acceleration, []domain.AccelSample) {
	if a.motion == nil {
		return domain.Acceleration{}, nil
	}
	var window []domain.Acceleration
	if a.cfg.AttachSamples || a.cfg.Policy == EmitFixedRate {
		window = a.motion.Window(a.lastEmit)
	}

	var accel domain.Acceleration
	mean, ok := sensors.Mean(window)
	switch {
	case a.cfg.Policy == EmitFixedRate && ok:
		accel = mean
	default:
		accel, _ = a.motion.Latest()
	}

	if !a.cfg.AttachSamples || len(window) == 0 {
		return accel, nil
	}
	samples := make([]domain.AccelSample, len(window))
	for i, r := range window {
		samples[i] = domain.AccelSample{Timestamp: r.Timestamp.UnixMilli(), X: r.X, Y: r.Y, Z: r.Z}
	}
	return accel, samples
}

// NoopTransformer passes points through unchanged.
type NoopTransformer struct{}

func (NoopTransformer) Transform(p domain.DataPoint) (domain.DataPoint, error) { return p, nil }
func (NoopTransformer) Version() uint16                                          { return 1 }
