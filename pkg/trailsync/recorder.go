package trailsync

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ghalamif/TrailSync/internal/adapters/netprobe"
	"github.com/ghalamif/TrailSync/internal/adapters/nmea"
	"github.com/ghalamif/TrailSync/internal/adapters/observability"
	"github.com/ghalamif/TrailSync/internal/adapters/opcua"
	"github.com/ghalamif/TrailSync/internal/adapters/queue"
	"github.com/ghalamif/TrailSync/internal/adapters/remote"
	"github.com/ghalamif/TrailSync/internal/adapters/simulated"
	"github.com/ghalamif/TrailSync/internal/adapters/sink"
	"github.com/ghalamif/TrailSync/internal/app/connectivity"
	"github.com/ghalamif/TrailSync/internal/app/pipeline"
	"github.com/ghalamif/TrailSync/internal/app/session"
	"github.com/ghalamif/TrailSync/internal/ports"
)

// RecorderOption customizes the dependencies used by Recorder.
type RecorderOption func(*runtimeOverrides)

type runtimeOverrides struct {
	location    LocationSource
	motion      MotionSource
	store       RemoteStore
	transformer Transformer
	buffer      Buffer
	obs         Observability
	logger      *zap.Logger
	httpClient  HTTPDoer
	auth        AuthProvider
	online      *bool
}

// WithLocationSource injects a custom position source (host platform, replay file, etc.).
func WithLocationSource(src LocationSource) RecorderOption {
	return func(o *runtimeOverrides) {
		o.location = src
	}
}

// WithMotionSource injects a custom accelerometer source.
func WithMotionSource(src MotionSource) RecorderOption {
	return func(o *runtimeOverrides) {
		o.motion = src
	}
}

// WithRemoteStore injects a custom store so sessions can be sent to any backend.
func WithRemoteStore(s RemoteStore) RecorderOption {
	return func(o *runtimeOverrides) {
		o.store = s
	}
}

// WithTransformer overrides the default no-op transformer.
func WithTransformer(t Transformer) RecorderOption {
	return func(o *runtimeOverrides) {
		o.transformer = t
	}
}

// WithBuffer replaces the in-memory point buffer.
func WithBuffer(b Buffer) RecorderOption {
	return func(o *runtimeOverrides) {
		o.buffer = b
	}
}

// WithObservability plugs in a custom observability backend.
func WithObservability(obs Observability) RecorderOption {
	return func(o *runtimeOverrides) {
		o.obs = obs
	}
}

// WithLogger replaces the logger built from the log section.
func WithLogger(l *zap.Logger) RecorderOption {
	return func(o *runtimeOverrides) {
		o.logger = l
	}
}

// WithHTTPClient sets the client used by the HTTP store.
func WithHTTPClient(c HTTPDoer) RecorderOption {
	return func(o *runtimeOverrides) {
		o.httpClient = c
	}
}

// WithAuth supplies credentials for the HTTP store instead of the static token.
func WithAuth(a AuthProvider) RecorderOption {
	return func(o *runtimeOverrides) {
		o.auth = a
	}
}

// WithConnectivity pins reachability and disables the probe. Hosts that learn about
// network changes themselves call Recorder.SetOnline afterwards.
func WithConnectivity(online bool) RecorderOption {
	return func(o *runtimeOverrides) {
		o.online = &online
	}
}

// Recorder wires sources, fusion, buffering and sync into one session recorder and
// exposes simple lifecycle hooks for embedding TrailSync inside any Go program.
type Recorder struct {
	cfg       *Config
	obs       ports.Observability
	logger    *zap.Logger
	registry  *prometheus.Registry
	store     ports.RemoteStore
	buffer    ports.Buffer
	net       *connectivity.Monitor
	probe     *netprobe.Probe
	lifecycle *session.Lifecycle
	db        *sql.DB
	timescale *sink.TimescaleStore
	hub       *statusHub
	timeout   time.Duration

	mu          sync.Mutex
	started     bool
	metricsSrv  *http.Server
	gaugeStopCh chan struct{}
}

// NewRecorder bootstraps the default adapters from cfg (NMEA, OPC UA or simulated
// sources, HTTP or TimescaleDB store, TCP reachability probe, Prometheus observability).
// RecorderOption values override any of them. Missing config values are defaulted in place.
func NewRecorder(cfg *Config, opts ...RecorderOption) (*Recorder, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	cfg.ApplyDefaults()

	var overrides runtimeOverrides
	for _, opt := range opts {
		if opt != nil {
			opt(&overrides)
		}
	}

	logger := overrides.logger
	if logger == nil {
		var err error
		logger, err = observability.NewLogger(cfg.Log.Level, cfg.Log.Format)
		if err != nil {
			return nil, err
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	obs := overrides.obs
	if obs == nil {
		obs = observability.NewPromObsOn(registry, logger)
	}

	r := &Recorder{
		cfg:      cfg,
		obs:      obs,
		logger:   logger,
		registry: registry,
		hub:      newStatusHub(),
		timeout:  cfg.Remote.Timeout,
	}

	buf := overrides.buffer
	if buf == nil {
		buf = queue.NewMemBuffer(256)
	}
	r.buffer = buf

	store := overrides.store
	if store == nil {
		var err error
		store, err = r.buildStore(overrides)
		if err != nil {
			return nil, err
		}
	}
	r.store = store

	loc := overrides.location
	if loc == nil {
		var err error
		loc, err = buildLocationSource(cfg)
		if err != nil {
			r.closeDB()
			return nil, err
		}
	}

	mot := overrides.motion
	if mot == nil {
		var err error
		mot, err = r.buildMotionSource()
		if err != nil {
			r.closeDB()
			return nil, err
		}
	}

	r.buildConnectivity(overrides)

	tr := overrides.transformer
	if tr == nil {
		tr = pipeline.NoopTransformer{}
	}

	r.lifecycle = session.New(session.Config{
		Location:        loc,
		Motion:          mot,
		Store:           store,
		Net:             r.net,
		Buffer:          buf,
		Obs:             obs,
		Transformer:     tr,
		LocationOptions: cfg.LocationOptions(),
		Aggregator: pipeline.AggregatorConfig{
			Policy:        pipeline.EmitPolicy(cfg.Motion.EmitPolicy),
			RateHz:        cfg.Motion.RateHz,
			StaleAfter:    cfg.Location.StaleAfter,
			AttachSamples: cfg.Motion.AttachSamples,
		},
		Sync:           cfg.Sync,
		WindowSize:     cfg.Motion.WindowSize,
		RequestTimeout: cfg.Remote.Timeout,
	})
	return r, nil
}

func (r *Recorder) buildStore(o runtimeOverrides) (ports.RemoteStore, error) {
	switch r.cfg.Remote.Kind {
	case RemoteTimescale:
		ts := r.cfg.Remote.Timescale
		db, err := sql.Open("postgres", ts.ConnString)
		if err != nil {
			return nil, err
		}
		r.db = db
		r.timescale = sink.NewTimescaleStore(db, ts.SessionsTable, ts.PointsTable, r.cfg.Remote.UserID)
		return r.timescale, nil
	case RemoteHTTP, "":
		client := o.httpClient
		if client == nil {
			client = &http.Client{Timeout: r.cfg.Remote.Timeout}
		}
		auth := o.auth
		if auth == nil {
			auth = remote.StaticAuth{BearerToken: r.cfg.Remote.Token, User: r.cfg.Remote.UserID}
		}
		return remote.NewStore(r.cfg.Remote.BaseURL, client, auth), nil
	default:
		return nil, fmt.Errorf("unsupported remote kind %q", r.cfg.Remote.Kind)
	}
}

func buildLocationSource(cfg *Config) (ports.LocationSource, error) {
	switch cfg.Location.Source {
	case SourceNMEA:
		return nmea.NewReceiver(cfg.Location.NMEA)
	case SourceSimulated:
		return simulated.NewWalker(cfg.Location.Simulated), nil
	case SourceNone, "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported location source %q", cfg.Location.Source)
	}
}

func (r *Recorder) buildMotionSource() (ports.MotionSource, error) {
	switch r.cfg.Motion.Source {
	case SourceOPCUA:
		src, err := opcua.NewMotionSource(r.cfg.Motion.OPCUA)
		if err != nil {
			return nil, err
		}
		src.OnError = func(err error) { r.obs.LogError("motion_source_error", err) }
		return src, nil
	case SourceSimulated:
		return simulated.NewGait(r.cfg.Motion.Simulated), nil
	case SourceNone, "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported motion source %q", r.cfg.Motion.Source)
	}
}

// buildConnectivity picks, in order: an explicit override, the static config value, a
// probe against the configured or derived address, and finally a fixed online flag.
func (r *Recorder) buildConnectivity(o runtimeOverrides) {
	switch {
	case o.online != nil:
		r.net = connectivity.NewMonitor(*o.online)
		return
	case r.cfg.Connectivity.Static != nil:
		r.net = connectivity.NewMonitor(*r.cfg.Connectivity.Static)
		return
	}

	probeCfg := r.cfg.Connectivity.Probe
	if probeCfg.Addr == "" && o.store == nil {
		target := r.cfg.Remote.BaseURL
		if r.cfg.Remote.Kind == RemoteTimescale {
			target = r.cfg.Remote.Timescale.ConnString
		}
		if addr, err := netprobe.AddrFromURL(target); err == nil {
			probeCfg.Addr = addr
		}
	}
	if probeCfg.Addr == "" {
		r.net = connectivity.NewMonitor(true)
		return
	}
	r.net = connectivity.NewMonitor(false)
	r.probe = netprobe.New(probeCfg, r.net, r.obs)
}

// Start launches the probe, prepares the database schema when asked to, and serves
// /metrics, /healthz and /status. It does not open a session; call StartSession for that.
func (r *Recorder) Start(ctx context.Context) error {
	if r == nil {
		return fmt.Errorf("recorder is nil")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return nil
	}

	if r.timescale != nil && r.cfg.Remote.Timescale.Migrate {
		version, err := sink.Migrate(r.cfg.Remote.Timescale.ConnString)
		if err != nil {
			return err
		}
		r.logger.Info("database schema ready", zap.Uint("version", version))
	}
	if r.timescale != nil && r.cfg.Remote.Timescale.EnsureSchema {
		schemaCtx, cancel := context.WithTimeout(ctx, r.timeout)
		err := r.timescale.EnsureSchema(schemaCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}

	if r.probe != nil {
		r.probe.Start()
	}
	r.startMetrics()
	r.started = true
	return nil
}

// Run starts the recorder, opens a session, and blocks until ctx is cancelled. The session
// is then stopped with its final flush before the recorder shuts down.
func (r *Recorder) Run(ctx context.Context) error {
	if err := r.Start(ctx); err != nil {
		return err
	}
	if _, err := r.StartSession(ctx); err != nil {
		_ = r.Shutdown(context.Background())
		return err
	}
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), r.shutdownBudget())
	defer cancel()
	return r.Shutdown(shutdownCtx)
}

// shutdownBudget covers a full final flush plus the stop notification.
func (r *Recorder) shutdownBudget() time.Duration {
	f := r.cfg.Sync.Flush
	attempts := time.Duration(f.MaxAttempts)
	return attempts*f.Timeout + (attempts-1)*f.Delay + r.timeout + 5*time.Second
}

// Shutdown stops an active session, the probe, the metrics server and the DB connection.
func (r *Recorder) Shutdown(ctx context.Context) error {
	var errs []error

	if r.lifecycle.Record().Status == StateRecording {
		warn, err := r.StopSession(ctx)
		if err != nil {
			errs = append(errs, err)
		}
		if warn != nil {
			r.logger.Warn("session stopped with unsynced points",
				zap.String("session_id", warn.SessionID),
				zap.Int("points", warn.Points))
		}
	}

	r.mu.Lock()
	if r.gaugeStopCh != nil {
		close(r.gaugeStopCh)
		r.gaugeStopCh = nil
	}
	srv := r.metricsSrv
	r.metricsSrv = nil
	r.started = false
	r.mu.Unlock()
	r.hub.closeAll()

	if srv != nil {
		if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs = append(errs, err)
		}
	}

	if r.probe != nil {
		r.probe.Stop()
	}

	if err := r.closeDB(); err != nil {
		errs = append(errs, err)
	}
	_ = r.logger.Sync()

	return errors.Join(errs...)
}

func (r *Recorder) closeDB() error {
	if r.db == nil {
		return nil
	}
	err := r.db.Close()
	r.db = nil
	return err
}

// StartSession opens a new recording session.
func (r *Recorder) StartSession(ctx context.Context) (SessionRecord, error) {
	return r.lifecycle.Start(ctx)
}

// StopSession stops the sensors, flushes buffered points and closes the session. A non-nil
// warning reports points that were dropped after the flush gave up.
func (r *Recorder) StopSession(ctx context.Context) (*UnsyncedWarning, error) {
	return r.lifecycle.Stop(ctx)
}

// SyncNow forces one sync attempt outside the periodic timer.
func (r *Recorder) SyncNow(ctx context.Context) error {
	return r.lifecycle.SyncNow(ctx)
}

func (r *Recorder) Status() Status {
	return r.lifecycle.Status()
}

// Record returns the active session record.
func (r *Recorder) Record() SessionRecord {
	return r.lifecycle.Record()
}

// SetOnline reports a reachability change observed by the host.
func (r *Recorder) SetOnline(online bool) {
	r.net.Set(online)
}

// Sessions lists the newest sessions known to the remote store.
func (r *Recorder) Sessions(ctx context.Context, limit int) ([]SessionSummary, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.store.ListSessions(ctx, limit)
}

// SessionPoints returns the stored points of one session in timestamp order.
func (r *Recorder) SessionPoints(ctx context.Context, sessionID string) ([]DataPoint, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.store.SessionPoints(ctx, sessionID)
}

// Handler serves the Prometheus registry on /metrics, a liveness check on /healthz, the
// recorder status as JSON on /status and as a websocket stream on /status/ws.
func (r *Recorder) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/status", r.serveStatus)
	mux.HandleFunc("/status/ws", r.serveStatusStream)
	return r.withCORS(mux)
}

func (r *Recorder) startMetrics() {
	r.metricsSrv = &http.Server{
		Addr:              r.cfg.Metrics.Addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	srv := r.metricsSrv
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.logger.Error("metrics server exited", zap.Error(err))
		}
	}()

	r.gaugeStopCh = make(chan struct{})
	go r.recordGauges(r.gaugeStopCh, time.Second)
}

func (r *Recorder) recordGauges(stop <-chan struct{}, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			r.sampleGauges()
			r.publishStatus()
		}
	}
}

func (r *Recorder) sampleGauges() {
	r.obs.SetGauge("trail_buffer_length", float64(r.buffer.Len()))
	online := 0.0
	if r.net.Online() {
		online = 1
	}
	r.obs.SetGauge("trail_online", online)
}
