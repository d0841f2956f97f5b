package queue

import (
	"sync"

	"github.com/ghalamif/TrailSync/internal/domain"
	"github.com/ghalamif/TrailSync/internal/ports"
)

// MemBuffer is an unbounded in-memory FIFO of pending points. Drain and Requeue
// move whole batches so a failed transmission is retried ahead of newer points.
type MemBuffer struct {
	mu   sync.Mutex
	data []domain.DataPoint
}

func NewMemBuffer(initialCapacity int) *MemBuffer {
	if initialCapacity < 0 {
		initialCapacity = 0
	}
	return &MemBuffer{data: make([]domain.DataPoint, 0, initialCapacity)}
}

func (b *MemBuffer) Append(p domain.DataPoint) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data = append(b.data, p)
}

// Drain removes and returns everything currently buffered. Points appended after
// the lock is released land in the next batch.
func (b *MemBuffer) Drain() domain.SyncBatch {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.data) == 0 {
		return nil
	}
	out := b.data
	b.data = make([]domain.DataPoint, 0, cap(out))
	return out
}

// Requeue puts an unconfirmed batch back in front of anything appended since it was drained.
func (b *MemBuffer) Requeue(batch domain.SyncBatch) {
	if len(batch) == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	merged := make([]domain.DataPoint, 0, len(batch)+len(b.data))
	merged = append(merged, batch...)
	merged = append(merged, b.data...)
	b.data = merged
}

func (b *MemBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.data)
}

var _ ports.Buffer = (*MemBuffer)(nil)
