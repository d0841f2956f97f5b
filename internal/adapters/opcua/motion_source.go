package opcua

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gopcua/opcua"
	"github.com/gopcua/opcua/ua"

	"github.com/ghalamif/TrailSync/internal/domain"
	"github.com/ghalamif/TrailSync/internal/ports"
)

// Config captures the runtime details required to subscribe to an accelerometer that
// publishes its three axes as separate OPC UA variables.
type Config struct {
	Endpoint         string        `yaml:"endpoint"`
	Username         string        `yaml:"username"`
	Password         string        `yaml:"password"`
	SecurityMode     string        `yaml:"security_mode"`
	SecurityPolicy   string        `yaml:"security_policy"`
	ApplicationName  string        `yaml:"application_name"`
	PublishInterval  time.Duration `yaml:"publish_interval"`
	SamplingInterval time.Duration `yaml:"sampling_interval"`
	Nodes            AxisNodes     `yaml:"nodes"`
}

// AxisNodes holds the node ids of the x, y and z acceleration variables.
type AxisNodes struct {
	X string `yaml:"x"`
	Y string `yaml:"y"`
	Z string `yaml:"z"`
}

func (c *Config) ApplyDefaults() {
	if c.SecurityMode == "" {
		c.SecurityMode = "None"
	}
	if c.SecurityPolicy == "" {
		c.SecurityPolicy = "None"
	}
	if c.ApplicationName == "" {
		c.ApplicationName = "TrailSync Edge"
	}
	if c.PublishInterval <= 0 {
		c.PublishInterval = 100 * time.Millisecond
	}
	if c.SamplingInterval < 0 {
		c.SamplingInterval = 0
	}
}

func (c *Config) Validate() error {
	if c.Endpoint == "" {
		return errors.New("endpoint is required")
	}
	if c.Nodes.X == "" || c.Nodes.Y == "" || c.Nodes.Z == "" {
		return errors.New("nodes.x, nodes.y and nodes.z are required")
	}
	return nil
}

type axis int

const (
	axisX axis = iota + 1
	axisY
	axisZ
)

// MotionSource streams acceleration vectors assembled from three monitored axis nodes.
// Every data-change notification yields one reading carrying the latest value of each axis.
type MotionSource struct {
	cfg    Config
	client *opcua.Client
	sub    *opcua.Subscription
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
	vec    domain.Acceleration
	// OnError receives notification failures; nil discards them.
	OnError func(error)
	started bool
}

func NewMotionSource(cfg Config) (*MotionSource, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &MotionSource{cfg: cfg}, nil
}

func (m *MotionSource) Start(out chan<- domain.Acceleration) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return fmt.Errorf("opcua motion source already started")
	}
	m.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	client, err := opcua.NewClient(m.cfg.Endpoint, m.clientOptions()...)
	if err != nil {
		cancel()
		return fmt.Errorf("opcua new client: %w", err)
	}
	if err := client.Connect(ctx); err != nil {
		cancel()
		return fmt.Errorf("%w: opcua connect: %v", ports.ErrSensorUnavailable, err)
	}

	notifyCh := make(chan *opcua.PublishNotificationData, 16)
	sub, err := client.Subscribe(ctx, &opcua.SubscriptionParameters{
		Interval: m.cfg.PublishInterval,
	}, notifyCh)
	if err != nil {
		cancel()
		_ = client.Close(ctx)
		return fmt.Errorf("opcua subscribe: %w", err)
	}

	for handle, nodeID := range map[axis]string{axisX: m.cfg.Nodes.X, axisY: m.cfg.Nodes.Y, axisZ: m.cfg.Nodes.Z} {
		if err := m.monitor(ctx, sub, nodeID, uint32(handle)); err != nil {
			cleanupOnError(ctx, cancel, sub, client)
			return err
		}
	}

	m.mu.Lock()
	m.client = client
	m.sub = sub
	m.cancel = cancel
	m.vec = domain.Acceleration{}
	m.started = true
	m.mu.Unlock()

	m.wg.Add(1)
	go m.consume(ctx, notifyCh, out)
	return nil
}

func (m *MotionSource) monitor(ctx context.Context, sub *opcua.Subscription, node string, handle uint32) error {
	nodeID, err := ua.ParseNodeID(node)
	if err != nil {
		return fmt.Errorf("parse node id %q: %w", node, err)
	}
	req := opcua.NewMonitoredItemCreateRequestWithDefaults(nodeID, ua.AttributeIDValue, handle)
	if m.cfg.SamplingInterval > 0 {
		req.RequestedParameters.SamplingInterval = float64(m.cfg.SamplingInterval / time.Millisecond)
	}
	res, err := sub.Monitor(ctx, ua.TimestampsToReturnBoth, req)
	if err != nil {
		return fmt.Errorf("monitor node %q: %w", node, err)
	}
	if len(res.Results) == 0 {
		return fmt.Errorf("monitor node %q failed: empty result", node)
	}
	if res.Results[0].StatusCode != ua.StatusOK {
		return fmt.Errorf("monitor node %q failed: %s", node, res.Results[0].StatusCode)
	}
	return nil
}

func (m *MotionSource) Stop() error {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return nil
	}
	cancel := m.cancel
	sub := m.sub
	client := m.client
	m.started = false
	m.cancel = nil
	m.sub = nil
	m.client = nil
	m.mu.Unlock()

	cancel()

	ctx, ctxCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer ctxCancel()

	var err error
	if sub != nil {
		if e := sub.Cancel(ctx); e != nil && !errors.Is(e, context.Canceled) {
			err = errors.Join(err, e)
		}
	}
	if client != nil {
		if e := client.Close(ctx); e != nil && !errors.Is(e, context.Canceled) {
			err = errors.Join(err, e)
		}
	}

	m.wg.Wait()
	return err
}

func (m *MotionSource) consume(ctx context.Context, ch <-chan *opcua.PublishNotificationData, out chan<- domain.Acceleration) {
	defer m.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case notif := <-ch:
			if notif == nil {
				continue
			}
			if notif.Error != nil {
				m.reportError(fmt.Errorf("opcua notification: %w", notif.Error))
				continue
			}
			data, ok := notif.Value.(*ua.DataChangeNotification)
			if !ok {
				continue
			}
			reading, ok := m.apply(data)
			if !ok {
				continue
			}
			select {
			case <-ctx.Done():
				return
			case out <- reading:
			}
		}
	}
}

// apply folds one notification into the current vector. It reports false when no axis
// carried a usable value.
func (m *MotionSource) apply(data *ua.DataChangeNotification) (domain.Acceleration, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	changed := false
	var ts time.Time
	for _, item := range data.MonitoredItems {
		if item == nil || item.Value == nil {
			continue
		}
		fv, ok := variantToFloat(item.Value.Value)
		if !ok {
			continue
		}
		switch axis(item.ClientHandle) {
		case axisX:
			m.vec.X = fv
		case axisY:
			m.vec.Y = fv
		case axisZ:
			m.vec.Z = fv
		default:
			continue
		}
		changed = true
		if t := sampleTime(item.Value); t.After(ts) {
			ts = t
		}
	}
	if !changed {
		return domain.Acceleration{}, false
	}
	if ts.IsZero() {
		ts = time.Now()
	}
	m.vec.Timestamp = ts
	return m.vec, true
}

func (m *MotionSource) reportError(err error) {
	if m.OnError != nil {
		m.OnError(err)
	}
}

func (m *MotionSource) clientOptions() []opcua.Option {
	opts := []opcua.Option{
		opcua.SecurityModeString(normalizeSecurityMode(m.cfg.SecurityMode)),
		opcua.SecurityPolicy(normalizeSecurityPolicy(m.cfg.SecurityPolicy)),
		opcua.ApplicationName(m.cfg.ApplicationName),
		opcua.AutoReconnect(true),
	}
	if m.cfg.Username != "" {
		opts = append(opts, opcua.AuthUsername(m.cfg.Username, m.cfg.Password))
	} else {
		opts = append(opts, opcua.AuthAnonymous())
	}
	return opts
}

func cleanupOnError(ctx context.Context, cancel context.CancelFunc, sub *opcua.Subscription, client *opcua.Client) {
	if sub != nil {
		_ = sub.Cancel(ctx)
	}
	if client != nil {
		_ = client.Close(ctx)
	}
	cancel()
}

func sampleTime(v *ua.DataValue) time.Time {
	if !v.SourceTimestamp.IsZero() {
		return v.SourceTimestamp
	}
	return v.ServerTimestamp
}

func variantToFloat(v *ua.Variant) (float64, bool) {
	if v == nil {
		return 0, false
	}
	switch val := v.Value().(type) {
	case float32:
		return float64(val), true
	case float64:
		return val, true
	case int16:
		return float64(val), true
	case int32:
		return float64(val), true
	case int64:
		return float64(val), true
	default:
		return 0, false
	}
}

func normalizeSecurityMode(mode string) string {
	switch strings.ToLower(mode) {
	case "sign":
		return "Sign"
	case "signandencrypt", "signencrypt", "sign_and_encrypt", "sign+encrypt":
		return "SignAndEncrypt"
	default:
		return "None"
	}
}

func normalizeSecurityPolicy(policy string) string {
	if policy == "" {
		return "None"
	}
	return policy
}

var _ ports.MotionSource = (*MotionSource)(nil)
