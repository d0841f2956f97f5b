package domain

import (
	"errors"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
)

// ErrInvalidCoordinate is returned when a fix carries a non-finite latitude or longitude.
var ErrInvalidCoordinate = errors.New("domain: latitude/longitude must be finite")

// Position is a bare coordinate pair, used as the optional start location of a session.
type Position struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lng"`
}

// Fix is a single reading delivered by a location source.
type Fix struct {
	Timestamp time.Time
	Latitude  float64
	Longitude float64
	Altitude  *float64
	Speed     *float64
	Heading   *float64
	Accuracy  *float64
}

// Validate reports whether the fix carries usable coordinates.
func (f Fix) Validate() error {
	if !isFinite(f.Latitude) || !isFinite(f.Longitude) {
		return ErrInvalidCoordinate
	}
	return nil
}

func (f Fix) Position() Position {
	return Position{Latitude: f.Latitude, Longitude: f.Longitude}
}

// Acceleration is one raw acceleration-including-gravity reading in m/s².
type Acceleration struct {
	Timestamp time.Time `json:"-"`
	X         float64   `json:"x"`
	Y         float64   `json:"y"`
	Z         float64   `json:"z"`
}

// Magnitude is the Euclidean norm of the three components.
func (a Acceleration) Magnitude() float64 {
	return floats.Norm([]float64{a.X, a.Y, a.Z}, 2)
}

// AccelSample is a windowed raw reading attached to a DataPoint.
type AccelSample struct {
	Timestamp int64   `json:"t"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Z         float64 `json:"z"`
}

// DataPoint is one fused location + motion record destined for the remote store.
// It is never mutated after NewDataPoint returns.
type DataPoint struct {
	Timestamp      int64         `json:"timestamp"`
	Latitude       float64       `json:"latitude"`
	Longitude      float64       `json:"longitude"`
	Altitude       *float64      `json:"altitude,omitempty"`
	Speed          *float64      `json:"speed,omitempty"`
	Heading        *float64      `json:"heading,omitempty"`
	Accuracy       *float64      `json:"accuracy,omitempty"`
	AccelX         float64       `json:"accel_x"`
	AccelY         float64       `json:"accel_y"`
	AccelZ         float64       `json:"accel_z"`
	AccelMagnitude float64       `json:"accel_magnitude"`
	AccelSamples   []AccelSample `json:"accel_samples,omitempty"`
}

// NewDataPoint fuses a fix with an acceleration estimate taken at ts.
func NewDataPoint(ts time.Time, fix Fix, accel Acceleration, samples []AccelSample) (DataPoint, error) {
	if err := fix.Validate(); err != nil {
		return DataPoint{}, err
	}
	return DataPoint{
		Timestamp:      ts.UnixMilli(),
		Latitude:       fix.Latitude,
		Longitude:      fix.Longitude,
		Altitude:       fix.Altitude,
		Speed:          fix.Speed,
		Heading:        fix.Heading,
		Accuracy:       fix.Accuracy,
		AccelX:         accel.X,
		AccelY:         accel.Y,
		AccelZ:         accel.Z,
		AccelMagnitude: accel.Magnitude(),
		AccelSamples:   samples,
	}, nil
}

// ClassifiedPoint is a DataPoint echoed back by the remote store with its activity label.
type ClassifiedPoint struct {
	DataPoint
	Activity           string  `json:"activity,omitempty"`
	ActivityConfidence float64 `json:"activity_confidence,omitempty"`
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
