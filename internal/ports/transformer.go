package ports

import "github.com/ghalamif/TrailSync/internal/domain"

// Transformer adjusts a freshly fused point before it is buffered (axis remapping,
// calibration offsets).
type Transformer interface {
	Transform(domain.DataPoint) (domain.DataPoint, error)
	Version() uint16
}
