package trailsync

import (
	"context"
	"fmt"
)

// Flow is a convenience builder that lets callers say Conf → StreamIN → StreamOUT
// without touching the underlying hexagonal wiring.
type Flow struct {
	cfg  *Config
	opts []RecorderOption
}

// FlowOption mutates the Flow after configuration is loaded.
type FlowOption func(*Flow)

// StreamInOption configures the sensor side of the recorder.
type StreamInOption func(*Flow)

// StreamOutOption configures the store/transformer/observability side of the recorder.
type StreamOutOption func(*Flow)

// Conf loads YAML from disk, applies FlowOption values, and returns a Flow builder.
func Conf(path string, opts ...FlowOption) (*Flow, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}
	return ConfFromConfig(cfg, opts...)
}

// ConfFromConfig bootstraps a Flow from an in-memory Config.
func ConfFromConfig(cfg *Config, opts ...FlowOption) (*Flow, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	f := &Flow{cfg: cfg}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	return f, nil
}

// Config returns the underlying configuration so callers can tweak it before building a recorder.
func (f *Flow) Config() *Config {
	if f == nil {
		return nil
	}
	return f.cfg
}

// Options appends raw RecorderOption values to the builder for advanced scenarios.
func (f *Flow) Options(opts ...RecorderOption) *Flow {
	if f == nil {
		return nil
	}
	f.appendOptions(opts...)
	return f
}

// StreamIN records sensor-side overrides (location, motion, buffer, connectivity).
func (f *Flow) StreamIN(opts ...StreamInOption) *Flow {
	if f == nil {
		return nil
	}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	return f
}

// StreamOUT records store-side overrides and builds a Recorder ready to run.
func (f *Flow) StreamOUT(opts ...StreamOutOption) (*Recorder, error) {
	if f == nil {
		return nil, fmt.Errorf("flow is nil")
	}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	return NewRecorder(f.cfg, f.opts...)
}

// Run is a shortcut for StreamOUT + Recorder.Run.
func (f *Flow) Run(ctx context.Context, opts ...StreamOutOption) error {
	rec, err := f.StreamOUT(opts...)
	if err != nil {
		return err
	}
	return rec.Run(ctx)
}

// WithFlowOptions appends RecorderOption values during Conf.
func WithFlowOptions(opts ...RecorderOption) FlowOption {
	return func(f *Flow) {
		if f != nil {
			f.appendOptions(opts...)
		}
	}
}

// StreamInLocation injects a custom location source.
func StreamInLocation(src LocationSource) StreamInOption {
	return func(f *Flow) {
		if f != nil && src != nil {
			f.appendOptions(WithLocationSource(src))
		}
	}
}

// StreamInMotion injects a custom accelerometer source.
func StreamInMotion(src MotionSource) StreamInOption {
	return func(f *Flow) {
		if f != nil && src != nil {
			f.appendOptions(WithMotionSource(src))
		}
	}
}

// StreamInFeed wires both sides of a host-driven Feed.
func StreamInFeed(feed *Feed) StreamInOption {
	return func(f *Flow) {
		if f != nil && feed != nil {
			f.appendOptions(WithLocationSource(feed.LocationSource()), WithMotionSource(feed.MotionSource()))
		}
	}
}

// StreamInSimulated switches both sensors to the built-in walking and gait generators.
func StreamInSimulated(walk WalkConfig, gait GaitConfig) StreamInOption {
	return func(f *Flow) {
		if f == nil {
			return
		}
		f.cfg.Location.Source = SourceSimulated
		f.cfg.Location.Simulated = walk
		f.cfg.Motion.Source = SourceSimulated
		f.cfg.Motion.Simulated = gait
	}
}

// StreamInNMEA reads fixes from a serial GNSS receiver.
func StreamInNMEA(receiver NMEAConfig) StreamInOption {
	return func(f *Flow) {
		if f == nil {
			return
		}
		f.cfg.Location.Source = SourceNMEA
		f.cfg.Location.NMEA = receiver
	}
}

// StreamInBuffer swaps the in-memory buffer for a caller-provided implementation.
func StreamInBuffer(b Buffer) StreamInOption {
	return func(f *Flow) {
		if f != nil && b != nil {
			f.appendOptions(WithBuffer(b))
		}
	}
}

// StreamInConnectivity pins reachability instead of probing.
func StreamInConnectivity(online bool) StreamInOption {
	return func(f *Flow) {
		if f != nil {
			f.appendOptions(WithConnectivity(online))
		}
	}
}

// StreamInObservability overrides the default Prometheus-based observability stack.
func StreamInObservability(obs Observability) StreamInOption {
	return func(f *Flow) {
		if f != nil && obs != nil {
			f.appendOptions(WithObservability(obs))
		}
	}
}

// StreamOutStore injects a custom RemoteStore implementation.
func StreamOutStore(s RemoteStore) StreamOutOption {
	return func(f *Flow) {
		if f != nil && s != nil {
			f.appendOptions(WithRemoteStore(s))
		}
	}
}

// StreamOutHTTP sends sessions to the HTTP API at baseURL.
func StreamOutHTTP(baseURL, token string) StreamOutOption {
	return func(f *Flow) {
		if f == nil {
			return
		}
		f.cfg.Remote.Kind = RemoteHTTP
		f.cfg.Remote.BaseURL = baseURL
		f.cfg.Remote.Token = token
	}
}

// StreamOutTimescale writes sessions straight into Postgres/TimescaleDB, applying the
// embedded migrations on Start.
func StreamOutTimescale(connString string) StreamOutOption {
	return func(f *Flow) {
		if f == nil {
			return
		}
		f.cfg.Remote.Kind = RemoteTimescale
		f.cfg.Remote.Timescale.ConnString = connString
		f.cfg.Remote.Timescale.Migrate = true
	}
}

// StreamOutTransformer overrides the default no-op transformer before points are buffered.
func StreamOutTransformer(tr Transformer) StreamOutOption {
	return func(f *Flow) {
		if f != nil && tr != nil {
			f.appendOptions(WithTransformer(tr))
		}
	}
}

// StreamOutObservability replaces the default observability backend.
func StreamOutObservability(obs Observability) StreamOutOption {
	return func(f *Flow) {
		if f != nil && obs != nil {
			f.appendOptions(WithObservability(obs))
		}
	}
}

// StreamOutCallback installs a store built from a simple callback function.
func StreamOutCallback(name string, fn BatchHandler) StreamOutOption {
	return func(f *Flow) {
		if f != nil {
			f.appendOptions(WithRemoteStore(NewCallbackStore(name, fn)))
		}
	}
}

func (f *Flow) appendOptions(opts ...RecorderOption) {
	for _, opt := range opts {
		if opt != nil {
			f.opts = append(f.opts, opt)
		}
	}
}
