package monitor

import (
	"context"
	"strings"
	"time"

	"github.com/rewired-gh/polywhale/internal/logger"
	"github.com/rewired-gh/polywhale/internal/models"
	"github.com/rewired-gh/polywhale/internal/state"
)

// WhaleNotifier delivers whale alerts. A nil error means at least one destination accepted.
type WhaleNotifier interface {
	SendWhale(ctx context.Context, alert models.WhaleAlert) error
}

// WhaleDetector fires on single trades above the whale threshold.
// It spends no analysis budget and ignores cooldowns.
type WhaleDetector struct {
	config   Config
	notifier WhaleNotifier
	now      func() time.Time
}

// NewWhaleDetector creates a detector delivering through notifier.
func NewWhaleDetector(config Config, notifier WhaleNotifier) *WhaleDetector {
	return &WhaleDetector{config: config, notifier: notifier, now: time.Now}
}

// WhaleReport summarises one Process call.
type WhaleReport struct {
	Detected  int
	Delivered []models.WhaleAlert
	Failed    int
}

// Classify returns an alert when the trade value reaches the threshold and the
// trade id has not been notified yet.
func (d *WhaleDetector) Classify(trade models.Trade, dedup *state.BoundedSet) *models.WhaleAlert {
	value := trade.Value()
	if value < d.config.WhaleThreshold {
		return nil
	}
	if trade.ID == "" || dedup.Contains(trade.ID) {
		return nil
	}
	price, size := trade.Price, trade.Size
	if price < 0 {
		price = 0
	}
	if size < 0 {
		size = 0
	}
	return &models.WhaleAlert{
		TradeID:    trade.ID,
		Side:       strings.ToUpper(trade.Side),
		Price:      price,
		Size:       size,
		Value:      value,
		Mega:       value > d.config.MegaWhaleThreshold,
		DetectedAt: d.now(),
	}
}

// Process classifies every trade of one market and delivers the alerts.
// A trade id enters dedup only after confirmed delivery, so failed alerts retry next tick.
func (d *WhaleDetector) Process(ctx context.Context, event models.Event, market models.Market, trades []models.Trade, dedup *state.BoundedSet) WhaleReport {
	var report WhaleReport
	for _, trade := range trades {
		alert := d.Classify(trade, dedup)
		if alert == nil {
			continue
		}
		alert.EventTitle = event.Title
		alert.EventSlug = event.Slug
		alert.MarketQuestion = market.Question
		report.Detected++

		if err := d.notifier.SendWhale(ctx, *alert); err != nil {
			report.Failed++
			logger.Warn("Whale alert for trade %s not delivered, will retry: %v", trade.ID, err)
			continue
		}
		dedup.Add(trade.ID)
		report.Delivered = append(report.Delivered, *alert)
		logger.Info("Whale alert sent: $%.2f on %s", alert.Value, event.Title)
	}
	return report
}
