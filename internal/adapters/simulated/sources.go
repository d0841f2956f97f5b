// Package simulated provides synthetic sensors for running the recorder without hardware.
package simulated

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/ghalamif/TrailSync/internal/domain"
	"github.com/ghalamif/TrailSync/internal/ports"
)

const (
	earthRadiusMeters = 6371000.0
	gravity           = 9.81
)

// WalkConfig describes a random walk around a starting coordinate.
type WalkConfig struct {
	StartLat float64       `yaml:"start_lat"`
	StartLng float64       `yaml:"start_lng"`
	SpeedMPS float64       `yaml:"speed_mps"`
	Interval time.Duration `yaml:"interval"`
	// MaxTurnDeg bounds the heading change between two fixes.
	MaxTurnDeg float64 `yaml:"max_turn_deg"`
	Seed       int64   `yaml:"seed"`
}

func (c *WalkConfig) ApplyDefaults() {
	if c.SpeedMPS <= 0 {
		c.SpeedMPS = 1.4
	}
	if c.Interval <= 0 {
		c.Interval = time.Second
	}
	if c.MaxTurnDeg <= 0 {
		c.MaxTurnDeg = 20
	}
	if c.Seed == 0 {
		c.Seed = 1
	}
}

// Walker emits one fix per interval along a seeded random walk.
type Walker struct {
	cfg WalkConfig

	mu     sync.Mutex
	lat    float64
	lng    float64
	head   float64
	rng    *rand.Rand
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewWalker(cfg WalkConfig) *Walker {
	cfg.ApplyDefaults()
	return &Walker{
		cfg: cfg,
		lat: cfg.StartLat,
		lng: cfg.StartLng,
		rng: rand.New(rand.NewSource(cfg.Seed)),
	}
}

func (w *Walker) Start(_ ports.LocationOptions, out chan<- domain.Fix, _ chan<- error) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		return fmt.Errorf("simulated walker already started")
	}
	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.wg.Add(1)
	go w.run(ctx, out)
	return nil
}

func (w *Walker) Stop() error {
	w.mu.Lock()
	cancel := w.cancel
	w.cancel = nil
	w.mu.Unlock()
	if cancel != nil {
		cancel()
		w.wg.Wait()
	}
	return nil
}

func (w *Walker) run(ctx context.Context, out chan<- domain.Fix) {
	defer w.wg.Done()
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			fix := w.Next(now)
			select {
			case <-ctx.Done():
				return
			case out <- fix:
			}
		}
	}
}

// Next advances the walk by one interval and returns the resulting fix.
func (w *Walker) Next(ts time.Time) domain.Fix {
	w.mu.Lock()
	defer w.mu.Unlock()

	turn := (w.rng.Float64()*2 - 1) * w.cfg.MaxTurnDeg
	w.head = math.Mod(w.head+turn+360, 360)

	dist := w.cfg.SpeedMPS * w.cfg.Interval.Seconds()
	rad := w.head * math.Pi / 180
	dLat := dist * math.Cos(rad) / earthRadiusMeters
	dLng := dist * math.Sin(rad) / (earthRadiusMeters * math.Cos(w.lat*math.Pi/180))
	w.lat += dLat * 180 / math.Pi
	w.lng += dLng * 180 / math.Pi

	speed := w.cfg.SpeedMPS
	heading := w.head
	accuracy := 3 + w.rng.Float64()*2
	return domain.Fix{
		Timestamp: ts,
		Latitude:  w.lat,
		Longitude: w.lng,
		Speed:     &speed,
		Heading:   &heading,
		Accuracy:  &accuracy,
	}
}

// GaitConfig shapes the synthetic accelerometer signal.
type GaitConfig struct {
	RateHz     float64 `yaml:"rate_hz"`
	StepHz     float64 `yaml:"step_hz"`
	AmplitudeG float64 `yaml:"amplitude_g"`
	NoiseG     float64 `yaml:"noise_g"`
	Seed       int64   `yaml:"seed"`
}

func (c *GaitConfig) ApplyDefaults() {
	if c.RateHz <= 0 {
		c.RateHz = 50
	}
	if c.StepHz <= 0 {
		c.StepHz = 1.8
	}
	if c.AmplitudeG <= 0 {
		c.AmplitudeG = 0.3
	}
	if c.NoiseG < 0 {
		c.NoiseG = 0
	}
	if c.Seed == 0 {
		c.Seed = 1
	}
}

// Gait emits acceleration-including-gravity readings of a walking gait: gravity on z plus
// a vertical step oscillation and small lateral sway.
type Gait struct {
	cfg GaitConfig

	mu     sync.Mutex
	rng    *rand.Rand
	origin time.Time
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewGait(cfg GaitConfig) *Gait {
	cfg.ApplyDefaults()
	return &Gait{cfg: cfg, rng: rand.New(rand.NewSource(cfg.Seed))}
}

func (g *Gait) Start(out chan<- domain.Acceleration) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cancel != nil {
		return fmt.Errorf("simulated gait already started")
	}
	ctx, cancel := context.WithCancel(context.Background())
	g.cancel = cancel
	g.origin = time.Now()
	g.wg.Add(1)
	go g.run(ctx, out)
	return nil
}

func (g *Gait) Stop() error {
	g.mu.Lock()
	cancel := g.cancel
	g.cancel = nil
	g.mu.Unlock()
	if cancel != nil {
		cancel()
		g.wg.Wait()
	}
	return nil
}

func (g *Gait) run(ctx context.Context, out chan<- domain.Acceleration) {
	defer g.wg.Done()
	ticker := time.NewTicker(time.Duration(float64(time.Second) / g.cfg.RateHz))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			g.mu.Lock()
			reading := g.At(now.Sub(g.origin), now)
			g.mu.Unlock()
			select {
			case <-ctx.Done():
				return
			case out <- reading:
			}
		}
	}
}

// At returns the reading elapsed into the gait. Callers other than run must not race with it.
func (g *Gait) At(elapsed time.Duration, ts time.Time) domain.Acceleration {
	phase := 2 * math.Pi * g.cfg.StepHz * elapsed.Seconds()
	noise := func() float64 { return g.rng.NormFloat64() * g.cfg.NoiseG * gravity }
	return domain.Acceleration{
		Timestamp: ts,
		X:         0.5*g.cfg.AmplitudeG*gravity*math.Sin(phase/2) + noise(),
		Y:         noise(),
		Z:         gravity + g.cfg.AmplitudeG*gravity*math.Sin(phase) + noise(),
	}
}

var (
	_ ports.LocationSource = (*Walker)(nil)
	_ ports.MotionSource   = (*Gait)(nil)
)
