package monitor

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rewired-gh/polywhale/internal/models"
)

// Collector aggregates a market's recent trades into activity metrics.
type Collector struct {
	config Config
}

// NewCollector creates a collector with the given thresholds.
func NewCollector(config Config) *Collector {
	return &Collector{config: config}
}

// Collect returns metrics when the batch is notable, nil otherwise.
// A batch is notable when total value exceeds the volume threshold or the
// first-to-last price move exceeds the move threshold.
func (c *Collector) Collect(trades []models.Trade) *models.Metrics {
	if len(trades) == 0 {
		return nil
	}

	// Inputs arrive newest-first or unordered; the delta needs chronological order.
	sorted := make([]models.Trade, len(trades))
	copy(sorted, trades)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	m := models.Metrics{
		StartPrice: nonNegative(sorted[0].Price),
		EndPrice:   nonNegative(sorted[len(sorted)-1].Price),
		TradeCount: len(sorted),
	}
	m.PriceChange = m.EndPrice - m.StartPrice

	for _, t := range sorted {
		v := t.Value()
		m.TotalVolume += v
		switch strings.ToUpper(t.Side) {
		case models.SideBuy:
			m.BuyVolume += v
		case models.SideSell:
			m.SellVolume += v
		}
	}

	if m.TotalVolume > c.config.VolumeThreshold {
		m.Reasons = append(m.Reasons, fmt.Sprintf("High Volume ($%s)", humanize.Comma(int64(math.Round(m.TotalVolume)))))
	}
	if math.Abs(m.PriceChange) > c.config.MoveThreshold {
		direction := "📈 Raging Up"
		if m.PriceChange < 0 {
			direction = "📉 Crashing Down"
		}
		m.Reasons = append(m.Reasons, fmt.Sprintf("%s (%+.2f)", direction, m.PriceChange))
	}
	if len(m.Reasons) == 0 {
		return nil
	}
	return &m
}

// Score is total volume plus the weighted absolute price move.
func (c *Collector) Score(m *models.Metrics) float64 {
	return m.TotalVolume + c.config.MoveWeight*math.Abs(m.PriceChange)
}

// Candidate builds a queue entry for a market with notable activity, or nil.
func (c *Collector) Candidate(event models.Event, market models.Market, trades []models.Trade, now time.Time) *models.Candidate {
	m := c.Collect(trades)
	if m == nil {
		return nil
	}
	return &models.Candidate{
		EventSlug:      event.Slug,
		EventTitle:     event.Title,
		Category:       event.Category,
		MarketQuestion: market.Question,
		Outcomes:       market.Outcomes,
		Prices:         market.Prices,
		RawScore:       c.Score(m),
		Metrics:        *m,
		CreatedAt:      now,
	}
}

func nonNegative(v float64) float64 {
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	return v
}
