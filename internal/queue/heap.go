package queue

import (
	"container/heap"

	"github.com/domainfleet/engine/internal/domain"
)

// entry wraps a Job with the bookkeeping the priority heap needs: a
// strictly increasing sequence number keeps FIFO order stable among jobs
// of equal priority and equal NotBefore.
type entry struct {
	job *domain.Job
	seq int64
}

// jobHeap orders by NotBefore first (delayed jobs never jump the line
// ahead of ready ones), then by Priority (1 highest), then FIFO.
type jobHeap []*entry

func (h jobHeap) Len() int { return len(h) }

func (h jobHeap) Less(i, j int) bool {
	a, b := h[i], h[j]
	if !a.job.NotBefore.Equal(b.job.NotBefore) {
		return a.job.NotBefore.Before(b.job.NotBefore)
	}
	if a.job.Priority != b.job.Priority {
		return a.job.Priority < b.job.Priority
	}
	return a.seq < b.seq
}

func (h jobHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *jobHeap) Push(x interface{}) {
	*h = append(*h, x.(*entry))
}

func (h *jobHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

var _ heap.Interface = (*jobHeap)(nil)
