package monitor

import (
	"time"

	"github.com/rewired-gh/polywhale/internal/models"
)

// Queue holds insight candidates in first-seen order. It is owned by the tick
// orchestrator and lost on restart.
type Queue struct {
	items []models.Candidate
	seq   uint64
}

// NewQueue returns an empty queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Push appends c and stamps its insertion sequence.
func (q *Queue) Push(c models.Candidate) {
	q.seq++
	c.Seq = q.seq
	q.items = append(q.items, c)
}

// Len returns the number of queued candidates.
func (q *Queue) Len() int {
	return len(q.items)
}

// Items returns a copy of the queue in first-seen order.
func (q *Queue) Items() []models.Candidate {
	out := make([]models.Candidate, len(q.items))
	copy(out, q.items)
	return out
}

// Remove deletes the candidate with the given sequence number.
func (q *Queue) Remove(seq uint64) bool {
	for i := range q.items {
		if q.items[i].Seq == seq {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return true
		}
	}
	return false
}

// Prune drops candidates created ttl or longer before now and returns how many went.
func (q *Queue) Prune(now time.Time, ttl time.Duration) int {
	kept := q.items[:0]
	for _, c := range q.items {
		if now.Sub(c.CreatedAt) < ttl {
			kept = append(kept, c)
		}
	}
	removed := len(q.items) - len(kept)
	for i := len(kept); i < len(q.items); i++ {
		q.items[i] = models.Candidate{}
	}
	q.items = kept
	return removed
}
