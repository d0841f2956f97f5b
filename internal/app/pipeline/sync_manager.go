package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ghalamif/TrailSync/internal/domain"
	"github.com/ghalamif/TrailSync/internal/ports"
)

// ErrSyncBusy is returned by SyncNow when another transmission is in flight.
var ErrSyncBusy = errors.New("sync: transmission already in flight")

// ErrOffline is returned by SyncNow when the network is known to be unreachable.
var ErrOffline = errors.New("sync: offline")

// SyncState is the user-facing buffering status.
type SyncState string

const (
	SyncIdle         SyncState = "idle"
	SyncSynced       SyncState = "synced"
	SyncOffline      SyncState = "offline"
	SyncRetryPending SyncState = "retry_pending"
	SyncFlushing     SyncState = "flushing"
)

// Connectivity is the read side of the connectivity monitor.
type Connectivity interface {
	Online() bool
	Subscribe() (string, <-chan bool)
	Unsubscribe(id string)
}

// SyncStatus is a snapshot of the sync manager counters.
type SyncStatus struct {
	State              SyncState
	LastSyncAt         time.Time
	ConsecutiveErrors  int
	TotalErrors        int
	PointsSynced       int64
	Activity           string
	ActivityConfidence float64
}

// SyncManager drains the buffer into the remote store. At most one transmission is in
// flight at any time; a failed batch is requeued ahead of newer points.
type SyncManager struct {
	buf   ports.Buffer
	store ports.RemoteStore
	net   Connectivity
	pol   ports.SyncPolicy
	obs   ports.Observability
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	sendMu sync.Mutex

	mu        sync.Mutex
	sessionID string
	status    SyncStatus
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

func NewSyncManager(buf ports.Buffer, store ports.RemoteStore, net Connectivity, pol ports.SyncPolicy, obs ports.Observability) *SyncManager {
	return &SyncManager{
		buf:    buf,
		store:  store,
		net:    net,
		pol:    pol.WithDefaults(),
		obs:    obs,
		now:    time.Now,
		sleep:  sleepCtx,
		status: SyncStatus{State: SyncIdle},
	}
}

// Start binds the manager to a session, resets its counters and starts the periodic timer.
func (s *SyncManager) Start(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopCh != nil {
		return fmt.Errorf("sync manager already running for session %s", s.sessionID)
	}
	s.sessionID = sessionID
	s.status = SyncStatus{State: SyncIdle}
	s.stopCh = make(chan struct{})

	s.wg.Add(1)
	go s.run(s.stopCh)
	return nil
}

// StopPeriodic cancels the timer and waits for an in-flight periodic transmission to settle.
func (s *SyncManager) StopPeriodic() {
	s.mu.Lock()
	stopCh := s.stopCh
	s.stopCh = nil
	s.mu.Unlock()

	if stopCh != nil {
		close(stopCh)
	}
	s.wg.Wait()
}

func (s *SyncManager) Status() SyncStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *SyncManager) run(stop <-chan struct{}) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.pol.Interval)
	defer ticker.Stop()

	var transitions <-chan bool
	if s.net != nil {
		id, ch := s.net.Subscribe()
		defer s.net.Unsubscribe(id)
		transitions = ch
	}

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.tick()
		case online, ok := <-transitions:
			if !ok {
				transitions = nil
				continue
			}
			s.obs.SetGauge("trail_online", boolGauge(online))
			if online {
				s.obs.LogInfo("connectivity_restored", ports.Field{Key: "buffered", Value: s.buf.Len()})
				s.tick()
			}
		}
	}
}

func (s *SyncManager) tick() {
	err := s.SyncNow(context.Background())
	if err != nil && !errors.Is(err, ErrSyncBusy) && !errors.Is(err, ErrOffline) {
		s.obs.LogError("sync_tick_failed", err, ports.Field{Key: "buffered", Value: s.buf.Len()})
	}
}

// SyncNow performs one periodic-style attempt: skipped while offline or busy, a no-op on
// an empty buffer, otherwise one bounded upload of everything buffered.
func (s *SyncManager) SyncNow(ctx context.Context) error {
	if s.net != nil && !s.net.Online() {
		s.obs.IncCounter("trail_sync_skipped_offline_total", 1)
		s.setState(SyncOffline)
		return ErrOffline
	}
	if !s.sendMu.TryLock() {
		return ErrSyncBusy
	}
	defer s.sendMu.Unlock()

	batch := s.buf.Drain()
	if len(batch) == 0 {
		return nil
	}
	return s.transmit(ctx, batch, s.pol.Tick.Timeout)
}

// FinalFlush stops the periodic timer, waits for any in-flight upload, then retries the
// remaining buffer up to the flush policy. It returns the number of points still unsent.
func (s *SyncManager) FinalFlush(ctx context.Context) int {
	s.StopPeriodic()

	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	s.setState(SyncFlushing)

	for attempt := 1; attempt <= s.pol.Flush.MaxAttempts; attempt++ {
		if s.buf.Len() == 0 {
			s.setState(SyncSynced)
			return 0
		}
		if s.net != nil && !s.net.Online() {
			s.obs.LogInfo("final_flush_offline", ports.Field{Key: "attempt", Value: attempt})
		} else if batch := s.buf.Drain(); len(batch) > 0 {
			if err := s.transmit(ctx, batch, s.pol.Flush.Timeout); err == nil && s.buf.Len() == 0 {
				return 0
			} else if err != nil {
				s.obs.LogError("final_flush_attempt_failed", err, ports.Field{Key: "attempt", Value: attempt})
			}
		}
		if attempt < s.pol.Flush.MaxAttempts {
			if err := s.sleep(ctx, s.pol.Flush.Delay); err != nil {
				break
			}
		}
	}

	remaining := s.buf.Len()
	if remaining == 0 {
		s.setState(SyncSynced)
	} else {
		s.setState(SyncRetryPending)
	}
	return remaining
}

func (s *SyncManager) transmit(parent context.Context, batch domain.SyncBatch, timeout time.Duration) error {
	s.mu.Lock()
	sessionID := s.sessionID
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	start := s.now()
	classified, err := s.store.UploadBatch(ctx, sessionID, batch)
	if err != nil {
		s.buf.Requeue(batch)
		s.mu.Lock()
		s.status.ConsecutiveErrors++
		s.status.TotalErrors++
		s.status.State = SyncRetryPending
		consecutive := s.status.ConsecutiveErrors
		s.mu.Unlock()

		s.obs.IncCounter("trail_sync_errors_total", 1)
		s.obs.SetGauge("trail_buffer_length", float64(s.buf.Len()))
		s.obs.LogError("sync_batch_failed", err,
			ports.Field{Key: "session_id", Value: sessionID},
			ports.Field{Key: "points", Value: len(batch)},
			ports.Field{Key: "consecutive_errors", Value: consecutive})
		return fmt.Errorf("upload %d points: %w", len(batch), err)
	}

	done := s.now()
	s.obs.ObserveLatency("trail_sync_latency_seconds", done.Sub(start).Seconds())
	s.obs.IncCounter("trail_points_synced_total", float64(len(batch)))
	s.obs.SetGauge("trail_buffer_length", float64(s.buf.Len()))

	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.LastSyncAt = done
	s.status.ConsecutiveErrors = 0
	s.status.PointsSynced += int64(len(batch))
	s.status.State = SyncSynced
	if activity, confidence, ok := latestActivity(classified); ok {
		s.status.Activity = activity
		s.status.ActivityConfidence = confidence
	}
	return nil
}

func (s *SyncManager) setState(state SyncState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.State = state
}

// latestActivity picks the newest classified point carrying a known activity label.
func latestActivity(points []domain.ClassifiedPoint) (string, float64, bool) {
	if len(points) == 0 {
		return "", 0, false
	}
	last := points[len(points)-1]
	if last.Activity == "" || last.Activity == "unknown" {
		return "", 0, false
	}
	return last.Activity, last.ActivityConfidence, true
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
