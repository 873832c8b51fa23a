package models

import "time"

// Trade sides as reported by the Data API.
const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

// Trade is a single fill observed on a market. Immutable once observed.
type Trade struct {
	ID        string    `json:"id"`
	Price     float64   `json:"price"`
	Size      float64   `json:"size"`
	Side      string    `json:"side"`
	Timestamp time.Time `json:"timestamp"`
}

// Value is the notional traded, price * size. Negative inputs count as zero.
func (t Trade) Value() float64 {
	p, s := t.Price, t.Size
	if p < 0 || p != p {
		p = 0
	}
	if s < 0 || s != s {
		s = 0
	}
	return p * s
}
