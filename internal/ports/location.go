package ports

import (
	"time"

	"github.com/ghalamif/TrailSync/internal/domain"
)

// LocationOptions tune a continuous position subscription.
type LocationOptions struct {
	HighAccuracy bool
	// MaxFixAge is how old a cached fix may be and still be delivered. Zero disables the check.
	MaxFixAge time.Duration
	// FixTimeout is how long to wait for a fix before reporting a timeout.
	FixTimeout time.Duration
}

// LocationSource streams position fixes until Stop is called. Transient failures are
// written to errs; the source keeps listening afterwards.
type LocationSource interface {
	Start(opts LocationOptions, out chan<- domain.Fix, errs chan<- error) error
	Stop() error
}
