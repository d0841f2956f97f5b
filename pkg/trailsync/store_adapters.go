package trailsync

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrChannelStoreClosed is returned when a channel store is written to after being closed.
	ErrChannelStoreClosed = errors.New("trailsync: channel store closed")
	// ErrHistoryUnavailable is returned by stores that do not keep uploaded points.
	ErrHistoryUnavailable = errors.New("trailsync: store keeps no point history")
)

// BatchHandler receives every batch the recorder syncs, in order.
type BatchHandler func(sessionID string, points []DataPoint) error

// Batch is one synced upload delivered by a channel store.
type Batch struct {
	SessionID string
	Points    []DataPoint
}

// NewCallbackStore adapts a BatchHandler into a full RemoteStore so callers can plug
// arbitrary functions without defining structs. Session ids are generated locally.
func NewCallbackStore(name string, fn BatchHandler) RemoteStore {
	if name == "" {
		name = "callback"
	}
	return &callbackStore{name: name, fn: fn, sessions: newSessionLog()}
}

// NewChannelStore exposes synced batches via a channel; it returns the store, the read-only
// channel, and a close function that the caller should invoke during shutdown.
func NewChannelStore(name string, buffer int) (RemoteStore, <-chan Batch, func()) {
	if name == "" {
		name = "channel"
	}
	if buffer < 0 {
		buffer = 0
	}
	ch := make(chan Batch, buffer)
	s := &channelStore{
		name:     name,
		ch:       ch,
		closed:   make(chan struct{}),
		sessions: newSessionLog(),
	}
	return s, ch, func() { s.close() }
}

type callbackStore struct {
	name     string
	fn       BatchHandler
	sessions *sessionLog
}

func (s *callbackStore) StartSession(_ context.Context, _ *Position) (string, error) {
	return s.sessions.start(), nil
}

func (s *callbackStore) StopSession(_ context.Context, id string) error {
	return s.sessions.stop(id)
}

func (s *callbackStore) UploadBatch(_ context.Context, id string, points []DataPoint) ([]ClassifiedPoint, error) {
	if s.fn == nil {
		return nil, fmt.Errorf("callback store %q: nil handler", s.name)
	}
	if len(points) == 0 {
		return nil, nil
	}
	if err := s.fn(id, copyPoints(points)); err != nil {
		return nil, err
	}
	s.sessions.count(id, len(points))
	return nil, nil
}

func (s *callbackStore) ListSessions(_ context.Context, limit int) ([]SessionSummary, error) {
	return s.sessions.list(limit), nil
}

func (s *callbackStore) SessionPoints(context.Context, string) ([]DataPoint, error) {
	return nil, ErrHistoryUnavailable
}

func (s *callbackStore) Name() string { return s.name }

type channelStore struct {
	name     string
	ch       chan Batch
	closed   chan struct{}
	once     sync.Once
	sending  sync.RWMutex // held shared by senders so close never races a send
	sessions *sessionLog
}

func (s *channelStore) StartSession(_ context.Context, _ *Position) (string, error) {
	return s.sessions.start(), nil
}

func (s *channelStore) StopSession(_ context.Context, id string) error {
	return s.sessions.stop(id)
}

// UploadBatch blocks until the batch is received, the store is closed, or ctx expires.
// An expired ctx leaves the batch with the recorder, which requeues it.
func (s *channelStore) UploadBatch(ctx context.Context, id string, points []DataPoint) ([]ClassifiedPoint, error) {
	s.sending.RLock()
	defer s.sending.RUnlock()

	select {
	case <-s.closed:
		return nil, ErrChannelStoreClosed
	default:
	}

	if len(points) == 0 {
		return nil, nil
	}

	batch := Batch{SessionID: id, Points: copyPoints(points)}

	select {
	case <-s.closed:
		return nil, ErrChannelStoreClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	case s.ch <- batch:
		s.sessions.count(id, len(points))
		return nil, nil
	}
}

func (s *channelStore) ListSessions(_ context.Context, limit int) ([]SessionSummary, error) {
	return s.sessions.list(limit), nil
}

func (s *channelStore) SessionPoints(context.Context, string) ([]DataPoint, error) {
	return nil, ErrHistoryUnavailable
}

func (s *channelStore) Name() string { return s.name }

func (s *channelStore) close() {
	s.once.Do(func() {
		close(s.closed)
		s.sending.Lock()
		close(s.ch)
		s.sending.Unlock()
	})
}

// sessionLog keeps the session history of stores that have no backend of their own.
type sessionLog struct {
	mu       sync.Mutex
	now      func() time.Time
	sessions map[string]*SessionSummary
}

func newSessionLog() *sessionLog {
	return &sessionLog{now: time.Now, sessions: make(map[string]*SessionSummary)}
}

func (l *sessionLog) start() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	id := uuid.NewString()
	l.sessions[id] = &SessionSummary{ID: id, StartTime: l.now(), Status: "active"}
	return id
}

func (l *sessionLog) stop(id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.sessions[id]
	if !ok {
		return fmt.Errorf("unknown session %q", id)
	}
	s.EndTime = l.now()
	s.Status = "completed"
	return nil
}

func (l *sessionLog) count(id string, n int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if s, ok := l.sessions[id]; ok {
		s.DataPointCount += n
	}
}

func (l *sessionLog) list(limit int) []SessionSummary {
	l.mu.Lock()
	out := make([]SessionSummary, 0, len(l.sessions))
	for _, s := range l.sessions {
		out = append(out, *s)
	}
	l.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.After(out[j].StartTime) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func copyPoints(src []DataPoint) []DataPoint {
	dst := make([]DataPoint, len(src))
	copy(dst, src)
	return dst
}
