// Package queue implements the two queue structures of §4.1's data model:
// Q1, the per-agent internal withholding queue (plain FIFO), and Q2, the
// central RTGS queue ordered by priority then submission tick then
// transaction ID. Q2 is a container/heap.Interface implementation, the same
// pattern the teacher's trading engine uses for its order-book priority
// queues.
package queue

import (
	"container/heap"

	"github.com/aerugo/simcash/internal/domain"
)

// entry is one obligation waiting in the central RTGS queue.
type entry struct {
	tx    *domain.Obligation
	index int
}

// RTGS is the central FIFO-by-priority queue (Q2). Lower Priority values
// settle first; ties break by earlier SubmittedTick, then by TxID for a
// total, deterministic order (INV-queue-order).
type RTGS struct {
	h *rtgsHeap
}

// NewRTGS returns an empty central queue.
func NewRTGS() *RTGS {
	h := &rtgsHeap{}
	heap.Init(h)
	return &RTGS{h: h}
}

// Push adds tx to the queue.
func (q *RTGS) Push(tx *domain.Obligation) {
	heap.Push(q.h, &entry{tx: tx})
}

// Pop removes and returns the highest-priority transaction, or nil if empty.
func (q *RTGS) Pop() *domain.Obligation {
	if q.h.Len() == 0 {
		return nil
	}
	e := heap.Pop(q.h).(*entry)
	return e.tx
}

// Peek returns the highest-priority transaction without removing it.
func (q *RTGS) Peek() *domain.Obligation {
	if q.h.Len() == 0 {
		return nil
	}
	return (*q.h)[0].tx
}

// Len returns the number of transactions currently queued.
func (q *RTGS) Len() int { return q.h.Len() }

// Remove removes tx by ID, used by WithdrawFromRtgs. Reports whether it was
// found.
func (q *RTGS) Remove(id domain.TxID) bool {
	for i, e := range *q.h {
		if e.tx.ID == id {
			heap.Remove(q.h, i)
			return true
		}
	}
	return false
}

// Contents returns every queued transaction in current heap order. The
// slice is a defensive copy; it is not settlement order until drained
// through Pop.
func (q *RTGS) Contents() []*domain.Obligation {
	out := make([]*domain.Obligation, q.h.Len())
	for i, e := range *q.h {
		out[i] = e.tx
	}
	return out
}

// Sorted returns every queued transaction in full priority order, without
// mutating the queue. Used for read-only inspection (GetRTGSQueueContents).
func (q *RTGS) Sorted() []*domain.Obligation {
	clone := make(rtgsHeap, q.h.Len())
	copy(clone, *q.h)
	heap.Init(&clone)
	out := make([]*domain.Obligation, 0, len(clone))
	for clone.Len() > 0 {
		e := heap.Pop(&clone).(*entry)
		out = append(out, e.tx)
	}
	return out
}

type rtgsHeap []*entry

func (h rtgsHeap) Len() int { return len(h) }

func (h rtgsHeap) Less(i, j int) bool {
	a, b := h[i].tx, h[j].tx
	if a.Priority != b.Priority {
		return a.Priority < b.Priority
	}
	if a.SubmittedTick != b.SubmittedTick {
		return a.SubmittedTick < b.SubmittedTick
	}
	return a.ID < b.ID
}

func (h rtgsHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index, h[j].index = i, j
}

func (h *rtgsHeap) Push(x interface{}) {
	e := x.(*entry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *rtgsHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}
