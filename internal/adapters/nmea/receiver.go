// Package nmea reads position fixes from an NMEA 0183 GPS receiver on a serial port.
package nmea

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	gonmea "github.com/adrianmo/go-nmea"
	"go.bug.st/serial"

	"github.com/ghalamif/TrailSync/internal/domain"
	"github.com/ghalamif/TrailSync/internal/ports"
)

const (
	knotsToMetersPerSecond = 0.514444
	// uereMeters turns HDOP into a rough horizontal accuracy estimate.
	uereMeters = 5.0
	// maxHighAccuracyHDOP is the worst dilution accepted when high accuracy is requested.
	maxHighAccuracyHDOP = 5.0
)

type Config struct {
	Port     string `yaml:"port"`
	BaudRate int    `yaml:"baud_rate"`
}

func (c *Config) ApplyDefaults() {
	if c.BaudRate <= 0 {
		c.BaudRate = 9600
	}
}

func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("serial port is required")
	}
	return nil
}

// Receiver is a LocationSource backed by a line-oriented NMEA stream. One fix is produced
// per RMC sentence; altitude and HDOP come from the GGA sentence of the same epoch.
type Receiver struct {
	cfg  Config
	open func() (io.ReadCloser, error)
	now  func() time.Time

	mu      sync.Mutex
	port    io.ReadCloser
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

func NewReceiver(cfg Config) (*Receiver, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	r := &Receiver{cfg: cfg, now: time.Now}
	r.open = func() (io.ReadCloser, error) {
		port, err := serial.Open(cfg.Port, &serial.Mode{BaudRate: cfg.BaudRate})
		if err != nil {
			return nil, err
		}
		return port, nil
	}
	return r, nil
}

// NewStreamReceiver reads NMEA sentences from an already open stream, such as a gpsd raw
// socket or a recorded log file.
func NewStreamReceiver(rc io.ReadCloser) *Receiver {
	return &Receiver{
		open: func() (io.ReadCloser, error) { return rc, nil },
		now:  time.Now,
	}
}

func (r *Receiver) Start(opts ports.LocationOptions, out chan<- domain.Fix, errs chan<- error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return fmt.Errorf("nmea receiver already started")
	}

	port, err := r.open()
	if err != nil {
		return classifyOpenError(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.port = port
	r.cancel = cancel
	r.started = true
	r.wg.Add(1)
	go r.read(ctx, port, opts, out, errs)
	return nil
}

// Stop closes the port, which unblocks the reader, and waits for it to exit.
func (r *Receiver) Stop() error {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return nil
	}
	port := r.port
	cancel := r.cancel
	r.started = false
	r.port = nil
	r.cancel = nil
	r.mu.Unlock()

	cancel()
	err := port.Close()
	r.wg.Wait()
	return err
}

func (r *Receiver) read(ctx context.Context, port io.Reader, opts ports.LocationOptions, out chan<- domain.Fix, errs chan<- error) {
	defer r.wg.Done()

	report := func(err error) {
		select {
		case errs <- err:
		default:
		}
	}

	var epoch epochState
	scanner := bufio.NewScanner(port)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "$") {
			continue
		}
		s, err := gonmea.Parse(line)
		if err != nil {
			report(fmt.Errorf("%w: %v", ports.ErrPositionUnavailable, err))
			continue
		}

		switch m := s.(type) {
		case gonmea.GGA:
			epoch.observeGGA(m)
		case gonmea.RMC:
			fix, err := epoch.fixFromRMC(m, r.now())
			if err == nil && opts.HighAccuracy && epoch.hdop > maxHighAccuracyHDOP {
				err = fmt.Errorf("%w: hdop %.1f above %.1f", ports.ErrPositionUnavailable, epoch.hdop, maxHighAccuracyHDOP)
			}
			if err != nil {
				report(err)
				continue
			}
			select {
			case <-ctx.Done():
				return
			case out <- fix:
			}
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		report(fmt.Errorf("%w: %v", ports.ErrPositionUnavailable, err))
	}
}

// epochState carries GGA data forward until the RMC sentence with the same UTC time.
type epochState struct {
	ggaTime  gonmea.Time
	altitude float64
	hdop     float64
	hasGGA   bool
}

func (e *epochState) observeGGA(m gonmea.GGA) {
	if m.FixQuality == gonmea.Invalid {
		e.hasGGA = false
		return
	}
	e.ggaTime = m.Time
	e.altitude = m.Altitude
	e.hdop = m.HDOP
	e.hasGGA = true
}

func (e *epochState) fixFromRMC(m gonmea.RMC, now time.Time) (domain.Fix, error) {
	if m.Validity != gonmea.ValidRMC {
		return domain.Fix{}, fmt.Errorf("%w: receiver reports no fix", ports.ErrPositionUnavailable)
	}

	speed := m.Speed * knotsToMetersPerSecond
	heading := m.Course
	fix := domain.Fix{
		Timestamp: fixTime(m.Date, m.Time, now),
		Latitude:  m.Latitude,
		Longitude: m.Longitude,
		Speed:     &speed,
		Heading:   &heading,
	}
	if e.hasGGA && e.ggaTime == m.Time {
		alt := e.altitude
		acc := e.hdop * uereMeters
		fix.Altitude = &alt
		fix.Accuracy = &acc
	}
	return fix, fix.Validate()
}

func fixTime(d gonmea.Date, t gonmea.Time, now time.Time) time.Time {
	if !d.Valid || !t.Valid {
		return now
	}
	return time.Date(2000+d.YY, time.Month(d.MM), d.DD, t.Hour, t.Minute, t.Second, t.Millisecond*int(time.Millisecond), time.UTC)
}

func classifyOpenError(err error) error {
	var perr *serial.PortError
	if errors.As(err, &perr) {
		switch perr.Code() {
		case serial.PermissionDenied:
			return fmt.Errorf("%w: %v", ports.ErrPermissionDenied, err)
		case serial.PortNotFound:
			return fmt.Errorf("%w: %v", ports.ErrSensorUnavailable, err)
		}
	}
	return fmt.Errorf("open gps port: %w", err)
}

var _ ports.LocationSource = (*Receiver)(nil)
