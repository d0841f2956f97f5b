package trailsync

import (
	"context"
	"errors"
	"sync"
)

// ErrFeedIdle is returned when a reading is pushed while nothing is subscribed.
var ErrFeedIdle = errors.New("trailsync: feed has no active subscriber")

// Feed lets a host application push readings it obtains itself (platform location APIs,
// a BLE sensor, a replayed track) into the recorder.
type Feed struct {
	loc feedLocation
	mot feedMotion
}

func NewFeed() *Feed {
	return &Feed{}
}

// LocationSource is the view of the feed to pass to WithLocationSource.
func (f *Feed) LocationSource() LocationSource { return &f.loc }

// MotionSource is the view of the feed to pass to WithMotionSource.
func (f *Feed) MotionSource() MotionSource { return &f.mot }

// PushFix hands a fix to the recorder, blocking until it is accepted or ctx is done.
func (f *Feed) PushFix(ctx context.Context, fix Fix) error {
	out, done := f.loc.subscriber()
	if out == nil {
		return ErrFeedIdle
	}
	select {
	case out <- fix:
		return nil
	case <-done:
		return ErrFeedIdle
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PushAcceleration hands an accelerometer reading to the recorder.
func (f *Feed) PushAcceleration(ctx context.Context, a Acceleration) error {
	out, done := f.mot.subscriber()
	if out == nil {
		return ErrFeedIdle
	}
	select {
	case out <- a:
		return nil
	case <-done:
		return ErrFeedIdle
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ReportLocationError surfaces a platform error (permission revoked, no signal). It never
// blocks; false means the error was not delivered.
func (f *Feed) ReportLocationError(err error) bool {
	f.loc.mu.Lock()
	defer f.loc.mu.Unlock()
	if f.loc.errs == nil {
		return false
	}
	select {
	case f.loc.errs <- err:
		return true
	default:
		return false
	}
}

type feedLocation struct {
	mu   sync.Mutex
	out  chan<- Fix
	errs chan<- error
	done chan struct{}
}

func (l *feedLocation) Start(_ LocationOptions, out chan<- Fix, errs chan<- error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.out != nil {
		return errors.New("trailsync: feed location already started")
	}
	l.out, l.errs, l.done = out, errs, make(chan struct{})
	return nil
}

func (l *feedLocation) Stop() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.done != nil {
		close(l.done)
	}
	l.out, l.errs, l.done = nil, nil, nil
	return nil
}

func (l *feedLocation) subscriber() (chan<- Fix, <-chan struct{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.out, l.done
}

type feedMotion struct {
	mu   sync.Mutex
	out  chan<- Acceleration
	done chan struct{}
}

func (m *feedMotion) Start(out chan<- Acceleration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.out != nil {
		return errors.New("trailsync: feed motion already started")
	}
	m.out, m.done = out, make(chan struct{})
	return nil
}

func (m *feedMotion) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.done != nil {
		close(m.done)
	}
	m.out, m.done = nil, nil
	return nil
}

func (m *feedMotion) subscriber() (chan<- Acceleration, <-chan struct{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.out, m.done
}

var (
	_ LocationSource = (*feedLocation)(nil)
	_ MotionSource   = (*feedMotion)(nil)
)
