package sensors

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ghalamif/TrailSync/internal/domain"
	"github.com/ghalamif/TrailSync/internal/ports"
)

// FixHandler receives every accepted fix, in arrival order.
type FixHandler func(domain.Fix)

// ErrorHandler receives non-fatal sensor errors.
type ErrorHandler func(error)

// LocationTracker owns the subscription to a LocationSource. Handlers run on a
// single goroutine and are never invoked after Stop returns.
type LocationTracker struct {
	src   ports.LocationSource
	onFix FixHandler
	onErr ErrorHandler
	now   func() time.Time

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

func NewLocationTracker(src ports.LocationSource, onFix FixHandler, onErr ErrorHandler) *LocationTracker {
	if onErr == nil {
		onErr = func(error) {}
	}
	return &LocationTracker{src: src, onFix: onFix, onErr: onErr, now: time.Now}
}

func (t *LocationTracker) Start(opts ports.LocationOptions) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return fmt.Errorf("location tracker already started")
	}
	if t.src == nil {
		return ports.ErrSensorUnavailable
	}

	fixes := make(chan domain.Fix, 16)
	errs := make(chan error, 4)
	if err := t.src.Start(opts, fixes, errs); err != nil {
		return fmt.Errorf("start location source: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	t.running = true
	t.wg.Add(1)
	go t.consume(ctx, opts, fixes, errs)
	return nil
}

// Stop unsubscribes synchronously: once it returns no handler call is in flight or pending.
func (t *LocationTracker) Stop() error {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return nil
	}
	cancel := t.cancel
	t.running = false
	t.cancel = nil
	t.mu.Unlock()

	cancel()
	err := t.src.Stop()
	t.wg.Wait()
	return err
}

func (t *LocationTracker) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

func (t *LocationTracker) consume(ctx context.Context, opts ports.LocationOptions, fixes <-chan domain.Fix, errs <-chan error) {
	defer t.wg.Done()

	var timeout <-chan time.Time
	var timer *time.Timer
	if opts.FixTimeout > 0 {
		timer = time.NewTimer(opts.FixTimeout)
		defer timer.Stop()
		timeout = timer.C
	}
	rearm := func() {
		if timer == nil {
			return
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(opts.FixTimeout)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case fix, ok := <-fixes:
			if !ok {
				return
			}
			if ctx.Err() != nil {
				return
			}
			rearm()
			if err := t.accept(fix, opts); err != nil {
				t.onErr(err)
				continue
			}
			t.onFix(fix)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if ctx.Err() != nil {
				return
			}
			t.onErr(err)
		case <-timeout:
			t.onErr(ports.ErrFixTimeout)
			timer.Reset(opts.FixTimeout)
		}
	}
}

func (t *LocationTracker) accept(fix domain.Fix, opts ports.LocationOptions) error {
	if err := fix.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ports.ErrPositionUnavailable, err)
	}
	if opts.MaxFixAge > 0 && !fix.Timestamp.IsZero() {
		if age := t.now().Sub(fix.Timestamp); age > opts.MaxFixAge {
			return fmt.Errorf("%w: cached fix is %s old", ports.ErrPositionUnavailable, age.Round(time.Millisecond))
		}
	}
	return nil
}
