package ports

import "github.com/ghalamif/TrailSync/internal/domain"

// Buffer holds not-yet-confirmed points. Append, Drain and Requeue are the only
// legal mutations.
type Buffer interface {
	Append(p domain.DataPoint)
	Drain() domain.SyncBatch
	Requeue(b domain.SyncBatch)
	Len() int
}
