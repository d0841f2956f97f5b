package ports

import "time"

// RetryPolicy bounds one kind of transmission attempt. The periodic tick always makes a
// single attempt; only Flush honours MaxAttempts and Delay.
type RetryPolicy struct {
	MaxAttempts int           `yaml:"max_attempts"`
	Delay       time.Duration `yaml:"delay"`
	Timeout     time.Duration `yaml:"timeout"`
}

// SyncPolicy separates the periodic tick from the final flush performed at stop.
type SyncPolicy struct {
	Interval time.Duration `yaml:"interval"`
	Tick     RetryPolicy   `yaml:"tick"`
	Flush    RetryPolicy   `yaml:"flush"`
}

// DefaultSyncPolicy is 5s ticks with a 10s request bound, and a final flush of
// three 15s attempts spaced 2s apart.
func DefaultSyncPolicy() SyncPolicy {
	return SyncPolicy{
		Interval: 5 * time.Second,
		Tick:     RetryPolicy{MaxAttempts: 1, Timeout: 10 * time.Second},
		Flush:    RetryPolicy{MaxAttempts: 3, Delay: 2 * time.Second, Timeout: 15 * time.Second},
	}
}

// WithDefaults fills zero fields from DefaultSyncPolicy.
func (p SyncPolicy) WithDefaults() SyncPolicy {
	d := DefaultSyncPolicy()
	if p.Interval <= 0 {
		p.Interval = d.Interval
	}
	if p.Tick.MaxAttempts <= 0 {
		p.Tick.MaxAttempts = d.Tick.MaxAttempts
	}
	if p.Tick.Timeout <= 0 {
		p.Tick.Timeout = d.Tick.Timeout
	}
	if p.Flush.MaxAttempts <= 0 {
		p.Flush.MaxAttempts = d.Flush.MaxAttempts
	}
	if p.Flush.Delay < 0 {
		p.Flush.Delay = 0
	} else if p.Flush.Delay == 0 {
		p.Flush.Delay = d.Flush.Delay
	}
	if p.Flush.Timeout <= 0 {
		p.Flush.Timeout = d.Flush.Timeout
	}
	return p
}
