package ports

import "github.com/ghalamif/TrailSync/internal/domain"

// MotionSource streams acceleration-including-gravity readings.
type MotionSource interface {
	Start(out chan<- domain.Acceleration) error
	Stop() error
}
