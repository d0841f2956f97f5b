package nmea

import (
	"errors"
	"io"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/ghalamif/TrailSync/internal/domain"
	"github.com/ghalamif/TrailSync/internal/ports"
)

const capture = `$GPGGA,080001.00,5321.000,N,00615.600,W,1,08,1.2,15.5,M,55.0,M,,*4C
$GPRMC,080001.00,A,5321.000,N,00615.600,W,2.0,90.0,010624,,,A*7E
$GPRMC,080002.00,V,,,,,,,010624,,,N*76
garbage line
$GPRMC,080003.00,A,5321.060,N,00615.600,W,0.0,0.0,010624,,,A*41
`

func runCapture(t *testing.T, data string, opts ports.LocationOptions) ([]domain.Fix, []error) {
	t.Helper()
	r := NewStreamReceiver(io.NopCloser(strings.NewReader(data)))
	out := make(chan domain.Fix, 8)
	errs := make(chan error, 8)
	if err := r.Start(opts, out, errs); err != nil {
		t.Fatalf("start: %v", err)
	}
	r.wg.Wait()
	if err := r.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	close(out)
	close(errs)

	var fixes []domain.Fix
	for f := range out {
		fixes = append(fixes, f)
	}
	var errList []error
	for err := range errs {
		errList = append(errList, err)
	}
	return fixes, errList
}

func near(a, b float64) bool { return math.Abs(a-b) < 1e-6 }

func TestReceiverParsesFixes(t *testing.T) {
	fixes, errs := runCapture(t, capture, ports.LocationOptions{})

	if len(fixes) != 2 {
		t.Fatalf("expected 2 fixes, got %d", len(fixes))
	}
	first := fixes[0]
	if !near(first.Latitude, 53.35) || !near(first.Longitude, -6.26) {
		t.Fatalf("unexpected position %f,%f", first.Latitude, first.Longitude)
	}
	want := time.Date(2024, 6, 1, 8, 0, 1, 0, time.UTC)
	if !first.Timestamp.Equal(want) {
		t.Fatalf("expected timestamp %s, got %s", want, first.Timestamp)
	}
	if first.Speed == nil || !near(*first.Speed, 2*knotsToMetersPerSecond) {
		t.Fatalf("expected speed converted from knots, got %v", first.Speed)
	}
	if first.Altitude == nil || *first.Altitude != 15.5 {
		t.Fatalf("expected altitude from GGA, got %v", first.Altitude)
	}
	if first.Accuracy == nil || !near(*first.Accuracy, 6) {
		t.Fatalf("expected accuracy 6m from hdop, got %v", first.Accuracy)
	}
	if fixes[1].Altitude != nil {
		t.Fatalf("GGA from an earlier epoch must not be attached")
	}

	if len(errs) != 1 || !errors.Is(errs[0], ports.ErrPositionUnavailable) {
		t.Fatalf("expected one position-unavailable error for the void RMC, got %v", errs)
	}
}

func TestReceiverHighAccuracyRejectsPoorHDOP(t *testing.T) {
	data := "$GPGGA,080004.00,5321.000,N,00615.600,W,1,04,6.5,15.5,M,55.0,M,,*45\n" +
		"$GPRMC,080004.00,A,5321.000,N,00615.600,W,0.0,0.0,010624,,,A*40\n"

	fixes, errs := runCapture(t, data, ports.LocationOptions{HighAccuracy: true})
	if len(fixes) != 0 || len(errs) != 1 {
		t.Fatalf("expected fix rejected under high accuracy, got %d fixes %v", len(fixes), errs)
	}

	fixes, _ = runCapture(t, data, ports.LocationOptions{})
	if len(fixes) != 1 {
		t.Fatalf("expected fix accepted without high accuracy")
	}
}

func TestReceiverStartTwice(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	r := NewStreamReceiver(pr)
	out := make(chan domain.Fix, 1)
	errs := make(chan error, 1)
	if err := r.Start(ports.LocationOptions{}, out, errs); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := r.Start(ports.LocationOptions{}, out, errs); err == nil {
		t.Fatalf("expected second start to fail")
	}
	if err := r.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
}

func TestConfigDefaults(t *testing.T) {
	if _, err := NewReceiver(Config{}); err == nil {
		t.Fatalf("expected missing port to fail")
	}
	cfg := Config{Port: "/dev/ttyUSB0"}
	cfg.ApplyDefaults()
	if cfg.BaudRate != 9600 {
		t.Fatalf("expected default baud 9600, got %d", cfg.BaudRate)
	}
}
