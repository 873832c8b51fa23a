package models

import "time"

// Metrics summarises the trade activity of one market batch.
type Metrics struct {
	TotalVolume float64  `json:"total_volume"`
	BuyVolume   float64  `json:"buy_volume"`
	SellVolume  float64  `json:"sell_volume"`
	StartPrice  float64  `json:"start_price"`
	EndPrice    float64  `json:"end_price"`
	PriceChange float64  `json:"price_change"`
	TradeCount  int      `json:"trade_count"`
	Reasons     []string `json:"reasons"`
}

// Candidate is a scored summary of market activity eligible for a budgeted insight.
// It only lives in the in-process queue.
type Candidate struct {
	EventSlug      string
	EventTitle     string
	Category       string
	MarketQuestion string
	Outcomes       []string
	Prices         []string
	RawScore       float64
	Metrics        Metrics
	CreatedAt      time.Time

	// Seq is the queue insertion order, used as the tie-break on equal scores.
	Seq uint64
}

// WhaleAlert is a single trade whose value crossed the whale threshold.
type WhaleAlert struct {
	TradeID        string
	EventTitle     string
	EventSlug      string
	MarketQuestion string
	Side           string
	Price          float64
	Size           float64
	Value          float64
	Mega           bool
	DetectedAt     time.Time
}

// Insight is a budgeted deep-dive notification for one candidate.
type Insight struct {
	Candidate  Candidate
	Advisory   string
	BudgetUsed int
	BudgetMax  int
}

// Alert kinds stored in the alert history.
const (
	AlertKindWhale   = "whale"
	AlertKindInsight = "insight"
)

// AlertRecord is the persisted history entry for a delivered notification.
type AlertRecord struct {
	ID             string
	Kind           string
	EventSlug      string
	Category       string
	MarketQuestion string
	Value          float64
	Score          float64
	SentAt         time.Time
}
