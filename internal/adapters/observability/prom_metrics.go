package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/ghalamif/TrailSync/internal/ports"
)

type PromObs struct {
	log      *zap.Logger
	counters map[string]prometheus.Counter
	gauges   map[string]prometheus.Gauge
	histos   map[string]prometheus.Observer
}

// NewPromObs registers the recorder metrics on the default registerer and logs through
// logger. A nil logger falls back to zap.NewNop.
func NewPromObs(logger *zap.Logger) *PromObs {
	return NewPromObsOn(prometheus.DefaultRegisterer, logger)
}

// NewPromObsOn is NewPromObs with an explicit registerer, so several recorders can live in
// one process.
func NewPromObsOn(reg prometheus.Registerer, logger *zap.Logger) *PromObs {
	if logger == nil {
		logger = zap.NewNop()
	}
	collected := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "trail_points_collected_total",
		Help: "Fused data points appended to the local buffer.",
	})
	synced := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "trail_points_synced_total",
		Help: "Data points confirmed by the remote store.",
	})
	syncErrors := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "trail_sync_errors_total",
		Help: "Failed batch transmissions; every failed batch is requeued.",
	})
	fixes := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "trail_fixes_total",
		Help: "Location fixes accepted by the tracker.",
	})
	skipped := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "trail_sync_skipped_offline_total",
		Help: "Sync ticks skipped because the network was unreachable.",
	})
	bufferGauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "trail_buffer_length",
		Help: "Data points waiting for transmission.",
	})
	onlineGauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "trail_online",
		Help: "1 when the remote store is reachable.",
	})
	latency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "trail_sync_latency_seconds",
		Help:    "Round trip of one batch upload.",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
	})

	reg.MustRegister(collected, fixes, synced, syncErrors, skipped, bufferGauge, onlineGauge, latency)

	return &PromObs{
		log: logger,
		counters: map[string]prometheus.Counter{
			"trail_points_collected_total":     collected,
			"trail_fixes_total":                fixes,
			"trail_points_synced_total":        synced,
			"trail_sync_errors_total":          syncErrors,
			"trail_sync_skipped_offline_total": skipped,
		},
		gauges: map[string]prometheus.Gauge{
			"trail_buffer_length": bufferGauge,
			"trail_online":        onlineGauge,
		},
		histos: map[string]prometheus.Observer{
			"trail_sync_latency_seconds": latency,
		},
	}
}

// Logger exposes the underlying zap logger for components that log directly.
func (p *PromObs) Logger() *zap.Logger { return p.log }

func (p *PromObs) LogInfo(msg string, fields ...ports.Field) {
	p.log.Info(msg, zapFields(fields)...)
}

func (p *PromObs) LogError(msg string, err error, fields ...ports.Field) {
	p.log.Warn(msg, append(zapFields(fields), zap.Error(err))...)
}

func (p *PromObs) LogCritical(msg string, err error, fields ...ports.Field) {
	p.log.Error(msg, append(zapFields(fields), zap.Error(err))...)
}

func (p *PromObs) IncCounter(name string, v float64) {
	if c, ok := p.counters[name]; ok {
		c.Add(v)
	}
}

func (p *PromObs) ObserveLatency(name string, seconds float64) {
	if h, ok := p.histos[name]; ok {
		h.Observe(seconds)
	}
}

func (p *PromObs) SetGauge(name string, v float64) {
	if g, ok := p.gauges[name]; ok {
		g.Set(v)
	}
}

func zapFields(fields []ports.Field) []zap.Field {
	out := make([]zap.Field, 0, len(fields)+1)
	for _, f := range fields {
		out = append(out, zap.Any(f.Key, f.Value))
	}
	return out
}

var _ ports.Observability = (*PromObs)(nil)
