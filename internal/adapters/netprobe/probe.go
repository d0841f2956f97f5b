// Package netprobe decides reachability of the remote store by dialing it.
package netprobe

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/ghalamif/TrailSync/internal/ports"
)

// Reporter receives reachability observations; connectivity.Monitor satisfies it.
type Reporter interface {
	Set(online bool)
}

type Config struct {
	Addr     string        `yaml:"addr"`
	Interval time.Duration `yaml:"interval"`
	Timeout  time.Duration `yaml:"timeout"`
}

func (c *Config) ApplyDefaults() {
	if c.Interval <= 0 {
		c.Interval = 5 * time.Second
	}
	if c.Timeout <= 0 {
		c.Timeout = 2 * time.Second
	}
}

// Probe periodically opens a TCP connection to Addr and reports the outcome.
type Probe struct {
	cfg    Config
	target Reporter
	obs    ports.Observability
	dial   func(ctx context.Context, network, addr string) (net.Conn, error)

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(cfg Config, target Reporter, obs ports.Observability) *Probe {
	cfg.ApplyDefaults()
	d := &net.Dialer{}
	return &Probe{cfg: cfg, target: target, obs: obs, dial: d.DialContext}
}

// AddrFromURL derives host:port from a base URL, defaulting the port from the scheme.
func AddrFromURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if u.Hostname() == "" {
		return "", fmt.Errorf("no host in %q", raw)
	}
	port := u.Port()
	if port == "" {
		switch u.Scheme {
		case "https":
			port = "443"
		case "postgres", "postgresql":
			port = "5432"
		default:
			port = "80"
		}
	}
	return net.JoinHostPort(u.Hostname(), port), nil
}

// Start checks once synchronously so the first reading is known before recording begins.
func (p *Probe) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.Check(ctx)

	p.wg.Add(1)
	go p.loop(ctx)
}

func (p *Probe) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	p.cancel = nil
	p.mu.Unlock()
	if cancel != nil {
		cancel()
		p.wg.Wait()
	}
}

func (p *Probe) loop(ctx context.Context) {
	defer p.wg.Done()
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Check(ctx)
		}
	}
}

// Check dials once and reports the result.
func (p *Probe) Check(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()
	conn, err := p.dial(ctx, "tcp", p.cfg.Addr)
	if err != nil {
		if ctx.Err() == context.Canceled {
			return false
		}
		p.obs.LogInfo("connectivity_probe_failed",
			ports.Field{Key: "addr", Value: p.cfg.Addr},
			ports.Field{Key: "error", Value: err.Error()})
		p.target.Set(false)
		return false
	}
	_ = conn.Close()
	p.target.Set(true)
	return true
}

// WaitForTCP dials addr every 200ms until it accepts a connection, ctx ends, or timeout
// elapses.
func WaitForTCP(ctx context.Context, addr string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	var d net.Dialer
	for {
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err == nil {
			_ = conn.Close()
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s could not be reached after %v: %w", addr, timeout, err)
		case <-time.After(200 * time.Millisecond):
		}
	}
}
