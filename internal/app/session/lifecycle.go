package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ghalamif/TrailSync/internal/app/pipeline"
	"github.com/ghalamif/TrailSync/internal/app/sensors"
	"github.com/ghalamif/TrailSync/internal/domain"
	"github.com/ghalamif/TrailSync/internal/ports"
)

var (
	// ErrAlreadyActive rejects a start while a session is recording, starting or stopping.
	ErrAlreadyActive = errors.New("session: a session is already active")
	// ErrNotRecording rejects a stop when nothing is recording.
	ErrNotRecording = errors.New("session: not recording")
)

// UnsyncedWarning is returned by Stop when the final flush could not deliver every point.
// The session is stopped regardless.
type UnsyncedWarning struct {
	SessionID string
	Points    int
}

func (w *UnsyncedWarning) String() string {
	return fmt.Sprintf("%d points not synced", w.Points)
}

// Config wires the lifecycle to its collaborators. Location, Motion and Net may be nil.
type Config struct {
	Location ports.LocationSource
	Motion   ports.MotionSource
	Store    ports.RemoteStore
	Net      pipeline.Connectivity
	Buffer   ports.Buffer
	Obs      ports.Observability

	Transformer     ports.Transformer
	LocationOptions ports.LocationOptions
	Aggregator      pipeline.AggregatorConfig
	Sync            ports.SyncPolicy
	WindowSize      int
	// RequestTimeout bounds the start and stop notifications.
	RequestTimeout time.Duration
}

// Status is a point-in-time view of the recorder for display.
type Status struct {
	State              domain.SessionState
	SessionID          string
	LocalSession       bool
	StartedAt          time.Time
	Duration           time.Duration
	PointsCollected    int64
	PointsSynced       int64
	Buffered           int
	LastSyncAt         time.Time
	SyncErrors         int
	SyncState          pipeline.SyncState
	Online             bool
	LocationError      string
	MotionAvailable    bool
	Activity           string
	ActivityConfidence float64
}

// Lifecycle is the Idle -> Recording -> Stopping -> Idle controller for one recorder.
type Lifecycle struct {
	store   ports.RemoteStore
	net     pipeline.Connectivity
	buf     ports.Buffer
	obs     ports.Observability
	locOpts ports.LocationOptions
	timeout time.Duration
	now     func() time.Time
	tracker *sensors.LocationTracker
	motion  *sensors.MotionSampler
	agg     *pipeline.Aggregator
	syncer  *pipeline.SyncManager

	mu       sync.Mutex
	record   domain.SessionRecord
	starting bool
	lastFix  *domain.Fix
	locErr   string
}

func New(cfg Config) *Lifecycle {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	l := &Lifecycle{
		store:   cfg.Store,
		net:     cfg.Net,
		buf:     cfg.Buffer,
		obs:     cfg.Obs,
		locOpts: cfg.LocationOptions,
		timeout: cfg.RequestTimeout,
		now:     time.Now,
		record:  domain.SessionRecord{Status: domain.StateIdle},
	}
	l.motion = sensors.NewMotionSampler(cfg.Motion, cfg.WindowSize)
	l.agg = pipeline.NewAggregator(cfg.Aggregator, l.motion, cfg.Buffer, cfg.Transformer, cfg.Obs)
	l.syncer = pipeline.NewSyncManager(cfg.Buffer, cfg.Store, cfg.Net, cfg.Sync, cfg.Obs)
	l.tracker = sensors.NewLocationTracker(cfg.Location, l.onFix, l.onLocationError)
	return l
}

// Start opens a session. While offline, or when the remote store refuses, a local uuid is
// used so recording is never blocked on the network.
func (l *Lifecycle) Start(ctx context.Context) (domain.SessionRecord, error) {
	l.mu.Lock()
	if l.record.Status != domain.StateIdle || l.starting {
		l.mu.Unlock()
		return domain.SessionRecord{}, ErrAlreadyActive
	}
	l.starting = true
	var start *domain.Position
	if l.lastFix != nil {
		p := l.lastFix.Position()
		start = &p
	}
	l.mu.Unlock()

	id, local := l.openRemote(ctx, start)
	rec := domain.SessionRecord{
		SessionID: id,
		StartedAt: l.now(),
		Status:    domain.StateRecording,
		Local:     local,
	}

	if err := l.agg.Start(); err != nil {
		l.abortStart()
		return domain.SessionRecord{}, err
	}
	if err := l.syncer.Start(id); err != nil {
		l.agg.Stop()
		l.abortStart()
		return domain.SessionRecord{}, err
	}
	if err := l.motion.Start(); err != nil {
		l.obs.LogInfo("motion_degraded", ports.Field{Key: "reason", Value: err.Error()})
	}

	l.mu.Lock()
	l.locErr = ""
	l.mu.Unlock()

	// The tracker is subscribed before the session becomes visible, so a Stop can
	// never observe Recording while the location stream is still being opened.
	if err := l.tracker.Start(l.locOpts); err != nil {
		l.onLocationError(err)
	}

	l.mu.Lock()
	l.record = rec
	l.starting = false
	l.mu.Unlock()

	l.obs.LogInfo("session_started",
		ports.Field{Key: "session_id", Value: id},
		ports.Field{Key: "local", Value: local})
	return rec, nil
}

func (l *Lifecycle) openRemote(ctx context.Context, start *domain.Position) (string, bool) {
	if l.net != nil && !l.net.Online() {
		l.obs.LogInfo("session_start_offline")
		return uuid.NewString(), true
	}
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	id, err := l.store.StartSession(ctx, start)
	if err != nil || id == "" {
		if err == nil {
			err = errors.New("empty session id")
		}
		l.obs.LogError("session_start_failed", err, ports.Field{Key: "store", Value: l.store.Name()})
		return uuid.NewString(), true
	}
	return id, false
}

func (l *Lifecycle) abortStart() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.starting = false
}

// Stop halts the sensors, flushes the buffer, and only then notifies the remote store.
// A non-nil warning means some points were dropped; the stop itself still succeeded.
func (l *Lifecycle) Stop(ctx context.Context) (*UnsyncedWarning, error) {
	l.mu.Lock()
	if l.record.Status != domain.StateRecording {
		l.mu.Unlock()
		return nil, ErrNotRecording
	}
	l.record.Status = domain.StateStopping
	id := l.record.SessionID
	l.mu.Unlock()

	if err := l.tracker.Stop(); err != nil {
		l.obs.LogError("location_stop_failed", err)
	}
	if err := l.motion.Stop(); err != nil {
		l.obs.LogError("motion_stop_failed", err)
	}
	l.agg.Stop()

	remaining := l.syncer.FinalFlush(ctx)

	stopCtx, cancel := context.WithTimeout(ctx, l.timeout)
	if err := l.store.StopSession(stopCtx, id); err != nil {
		l.obs.LogError("session_stop_failed", err, ports.Field{Key: "session_id", Value: id})
	}
	cancel()

	var warn *UnsyncedWarning
	if remaining > 0 {
		warn = &UnsyncedWarning{SessionID: id, Points: remaining}
		dropped := len(l.buf.Drain())
		l.obs.LogCritical("unsynced_points_dropped", errors.New(warn.String()),
			ports.Field{Key: "session_id", Value: id},
			ports.Field{Key: "points", Value: dropped})
	}
	l.obs.SetGauge("trail_buffer_length", float64(l.buf.Len()))

	l.mu.Lock()
	l.record = domain.SessionRecord{Status: domain.StateIdle}
	l.mu.Unlock()

	l.obs.LogInfo("session_stopped",
		ports.Field{Key: "session_id", Value: id},
		ports.Field{Key: "unsynced", Value: remaining})
	return warn, nil
}

// Record returns the active session record; Status is StateIdle when nothing is recording.
func (l *Lifecycle) Record() domain.SessionRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.record
}

func (l *Lifecycle) Status() Status {
	l.mu.Lock()
	rec := l.record
	locErr := l.locErr
	l.mu.Unlock()

	ss := l.syncer.Status()
	st := Status{
		State:              rec.Status,
		SessionID:          rec.SessionID,
		LocalSession:       rec.Local,
		StartedAt:          rec.StartedAt,
		PointsCollected:    l.agg.Collected(),
		PointsSynced:       ss.PointsSynced,
		Buffered:           l.buf.Len(),
		LastSyncAt:         ss.LastSyncAt,
		SyncErrors:         ss.ConsecutiveErrors,
		SyncState:          ss.State,
		Online:             l.net == nil || l.net.Online(),
		LocationError:      locErr,
		MotionAvailable:    l.motion.Available(),
		Activity:           ss.Activity,
		ActivityConfidence: ss.ActivityConfidence,
	}
	if rec.Status != domain.StateIdle {
		st.Duration = l.now().Sub(rec.StartedAt)
	}
	return st
}

// SyncNow forces a sync attempt outside the periodic timer.
func (l *Lifecycle) SyncNow(ctx context.Context) error {
	if l.Record().Status != domain.StateRecording {
		return ErrNotRecording
	}
	return l.syncer.SyncNow(ctx)
}

func (l *Lifecycle) onFix(fix domain.Fix) {
	l.mu.Lock()
	f := fix
	l.lastFix = &f
	l.locErr = ""
	l.mu.Unlock()

	l.agg.OnFix(fix)
	l.obs.IncCounter("trail_fixes_total", 1)
}

func (l *Lifecycle) onLocationError(err error) {
	l.mu.Lock()
	l.locErr = err.Error()
	l.mu.Unlock()
	l.obs.LogError("location_fix_error", err)
}
