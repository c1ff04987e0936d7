package queue

import "github.com/aerugo/simcash/internal/domain"

// Internal is one agent's Q1: a plain FIFO of obligations the agent's own
// payment policy has chosen to withhold before ever reaching the central
// RTGS queue.
type Internal struct {
	items []*domain.Obligation
}

// NewInternal returns an empty Q1.
func NewInternal() *Internal {
	return &Internal{}
}

// Enqueue appends tx to the back of the queue.
func (q *Internal) Enqueue(tx *domain.Obligation) {
	q.items = append(q.items, tx)
}

// Remove removes tx by ID, preserving the relative order of the rest.
// Reports whether it was found.
func (q *Internal) Remove(id domain.TxID) bool {
	for i, tx := range q.items {
		if tx.ID == id {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return true
		}
	}
	return false
}

// Len returns the number of transactions currently withheld.
func (q *Internal) Len() int { return len(q.items) }

// Items returns the queue contents in FIFO order. The slice is a defensive
// copy.
func (q *Internal) Items() []*domain.Obligation {
	out := make([]*domain.Obligation, len(q.items))
	copy(out, q.items)
	return out
}

// TotalValue sums the remaining amount of every transaction in the queue,
// used to populate Context.Queue1TotalValue for policy evaluation.
func (q *Internal) TotalValue() domain.Cents {
	var total domain.Cents
	for _, tx := range q.items {
		total += tx.RemainingAmount()
	}
	return total
}
