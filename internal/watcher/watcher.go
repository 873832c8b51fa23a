// Package watcher runs one polling tick: fetch expiring events and their trades, fire
// whale alerts, queue candidates, drain the queue through the scheduler and persist state.
package watcher

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rewired-gh/polywhale/internal/logger"
	"github.com/rewired-gh/polywhale/internal/models"
	"github.com/rewired-gh/polywhale/internal/monitor"
	"github.com/rewired-gh/polywhale/internal/scheduler"
	"github.com/rewired-gh/polywhale/internal/state"
)

// Venue supplies events and trades.
type Venue interface {
	FetchExpiringEvents(ctx context.Context, window time.Duration, limit int) ([]models.Event, error)
	FetchTrades(ctx context.Context, conditionID string) ([]models.Trade, error)
}

// Store persists state and the alert history.
type Store interface {
	SaveState(st *state.State) error
	AddAlert(alert *models.AlertRecord) error
}

// Config holds the fetch parameters of a tick.
type Config struct {
	Window     time.Duration
	EventLimit int
	// Location defines the calendar day of the analysis budget.
	Location *time.Location
}

// Watcher owns the candidate queue and the in-memory state between ticks.
type Watcher struct {
	config    Config
	venue     Venue
	store     Store
	whales    *monitor.WhaleDetector
	collector *monitor.Collector
	scheduler *scheduler.Scheduler
	queue     *monitor.Queue
	state     *state.State
	now       func() time.Time
}

// New creates a watcher over a previously loaded state.
func New(config Config, venue Venue, store Store, whales *monitor.WhaleDetector,
	collector *monitor.Collector, sched *scheduler.Scheduler, st *state.State) *Watcher {
	if config.Location == nil {
		config.Location = time.UTC
	}
	return &Watcher{
		config:    config,
		venue:     venue,
		store:     store,
		whales:    whales,
		collector: collector,
		scheduler: sched,
		queue:     monitor.NewQueue(),
		state:     st,
		now:       time.Now,
	}
}

// TickReport summarises one tick.
type TickReport struct {
	ID          string
	Events      int
	Markets     int
	Trades      int
	FetchErrors int
	Whales      int
	WhaleFails  int
	Candidates  int
	Drain       scheduler.Report
	Cleanup     state.CleanupReport
	SaveErr     error
	Duration    time.Duration
}

// State returns the in-memory state.
func (w *Watcher) State() *state.State {
	return w.state
}

// QueueLen returns the number of waiting candidates.
func (w *Watcher) QueueLen() int {
	return w.queue.Len()
}

// Save persists the in-memory state.
func (w *Watcher) Save() error {
	return w.store.SaveState(w.state)
}

// Tick runs one cycle. It returns an error only when the event list could not be
// fetched; the queue is still drained and the state still saved in that case.
// Persistence failures are reported in TickReport and retried next tick.
func (w *Watcher) Tick(ctx context.Context) (TickReport, error) {
	start := w.now()
	report := TickReport{ID: uuid.NewString()}
	now := start.In(w.config.Location)

	if w.state.Budget.Roll(state.Day(now)) {
		logger.Info("New budget day %s", w.state.Budget.Date)
	}

	events, fetchErr := w.venue.FetchExpiringEvents(ctx, w.config.Window, w.config.EventLimit)
	if fetchErr != nil {
		fetchErr = fmt.Errorf("failed to fetch events: %w", fetchErr)
		logger.Error("Tick %s: %v", report.ID, fetchErr)
	}
	report.Events = len(events)
	logger.Debug("Tick %s: %d expiring events", report.ID, len(events))

	for _, event := range events {
		if ctx.Err() != nil {
			break
		}
		w.scanEvent(ctx, event, &report)
	}

	report.Drain = w.scheduler.Drain(ctx, w.queue, w.state)
	for _, c := range report.Drain.SentCandidates() {
		w.recordAlert(&models.AlertRecord{
			Kind:           models.AlertKindInsight,
			EventSlug:      c.EventSlug,
			Category:       c.Category,
			MarketQuestion: c.MarketQuestion,
			Value:          c.Metrics.TotalVolume,
			Score:          c.RawScore,
			SentAt:         w.state.Insights[c.EventSlug],
		})
	}

	report.Cleanup = w.state.Cleanup(w.now().In(w.config.Location))
	if err := w.Save(); err != nil {
		report.SaveErr = err
		logger.Error("Failed to save state, will retry next tick: %v", err)
	}

	report.Duration = w.now().Sub(start)
	logger.Info("Tick %s: %d events, %d markets, %d trades, %d whales, %d candidates, %d insights (halt: %s, budget %d), queue %d, took %v",
		report.ID, report.Events, report.Markets, report.Trades, report.Whales, report.Candidates,
		report.Drain.Sent, report.Drain.Halt, w.state.Budget.Count, w.queue.Len(), report.Duration)

	return report, fetchErr
}

// scanEvent fetches each market's trades, fires whale alerts and queues a candidate.
func (w *Watcher) scanEvent(ctx context.Context, event models.Event, report *TickReport) {
	for _, market := range event.Markets {
		trades, err := w.venue.FetchTrades(ctx, market.TradeKey())
		if err != nil {
			report.FetchErrors++
			logger.Warn("Skipping market %s of %s: %v", market.TradeKey(), event.Slug, err)
			continue
		}
		report.Markets++
		report.Trades += len(trades)

		whales := w.whales.Process(ctx, event, market, trades, w.state.Trades)
		report.Whales += len(whales.Delivered)
		report.WhaleFails += whales.Failed
		for _, a := range whales.Delivered {
			w.recordAlert(&models.AlertRecord{
				Kind:           models.AlertKindWhale,
				EventSlug:      a.EventSlug,
				Category:       event.Category,
				MarketQuestion: a.MarketQuestion,
				Value:          a.Value,
				SentAt:         a.DetectedAt,
			})
		}

		if c := w.collector.Candidate(event, market, trades, w.now()); c != nil {
			w.queue.Push(*c)
			report.Candidates++
		}
	}
}

func (w *Watcher) recordAlert(alert *models.AlertRecord) {
	if err := w.store.AddAlert(alert); err != nil {
		logger.Warn("Failed to record %s alert for %s: %v", alert.Kind, alert.EventSlug, err)
	}
}
