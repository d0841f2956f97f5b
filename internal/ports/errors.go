package ports

import "errors"

// Sensor error taxonomy shared by sources and the sampling layer.
var (
	// ErrSensorUnavailable means the capability is absent on this device.
	ErrSensorUnavailable = errors.New("sensor unavailable")
	// ErrPermissionDenied means the user or OS refused access to the sensor.
	ErrPermissionDenied = errors.New("sensor permission denied")
	// ErrPositionUnavailable is a transient failure to compute a position.
	ErrPositionUnavailable = errors.New("position unavailable")
	// ErrFixTimeout is reported when no fix arrived within the configured timeout.
	ErrFixTimeout = errors.New("location fix timeout")
)
