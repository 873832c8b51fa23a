// Package scheduler decides which queued candidate gets one of the day's analysis calls.
//
// Each tick Drain repeatedly picks the best candidate under three constraints: a daily
// budget, a minimum interval between insights, and a per-event cooldown. Candidates from
// categories already covered today are penalised so the day's insights stay diverse.
package scheduler

import (
	"context"
	"sort"
	"strconv"
	"time"

	"github.com/rewired-gh/polywhale/internal/logger"
	"github.com/rewired-gh/polywhale/internal/models"
	"github.com/rewired-gh/polywhale/internal/monitor"
	"github.com/rewired-gh/polywhale/internal/state"
)

// BurstThreshold is the interval below which the rate limit is only checked
// before the first send of a drain, letting one tick spend several budget units.
const BurstThreshold = 60 * time.Second

// Config holds the admission parameters.
type Config struct {
	MaxPerDay       int
	MinInterval     time.Duration
	Cooldown        time.Duration
	CategoryPenalty float64
	SendPause       time.Duration
	CandidateTTL    time.Duration
}

// DefaultConfig returns the production parameters: 13 insights a day in burst mode.
func DefaultConfig() Config {
	return Config{
		MaxPerDay:       13,
		MinInterval:     30 * time.Second,
		Cooldown:        6 * time.Hour,
		CategoryPenalty: 50,
		SendPause:       2 * time.Second,
		CandidateTTL:    time.Hour,
	}
}

// Analyzer produces an optional advisory text for a market.
type Analyzer interface {
	Analyze(ctx context.Context, question string, outcomes, prices []string) (string, error)
}

// InsightNotifier delivers an insight. A nil error means at least one destination accepted.
type InsightNotifier interface {
	SendInsight(ctx context.Context, insight models.Insight) error
}

// Status classifies one drain outcome.
type Status int

const (
	StatusSent Status = iota
	StatusSkipped
	StatusHalted
)

func (s Status) String() string {
	switch s {
	case StatusSent:
		return "sent"
	case StatusSkipped:
		return "skipped"
	default:
		return "halted"
	}
}

// Reason explains a skip or halt.
type Reason string

const (
	ReasonNone            Reason = ""
	ReasonCooldown        Reason = "cooldown"
	ReasonBudgetExhausted Reason = "budget_exhausted"
	ReasonRateLimited     Reason = "rate_limited"
	ReasonQueueEmpty      Reason = "queue_empty"
	ReasonAllOnCooldown   Reason = "all_on_cooldown"
	ReasonDeliveryFailed  Reason = "delivery_failed"
	ReasonCancelled       Reason = "cancelled"
)

// Outcome is one step of a drain.
type Outcome struct {
	Status        Status
	Reason        Reason
	Candidate     *models.Candidate
	AdjustedScore float64
	HasAdvisory   bool
}

// Report is the typed result of a drain. The last outcome is always the halt.
type Report struct {
	Outcomes []Outcome
	Sent     int
	Halt     Reason
	Pruned   int
}

// SentCandidates returns the candidates delivered during the drain, in send order.
func (r Report) SentCandidates() []models.Candidate {
	var out []models.Candidate
	for _, o := range r.Outcomes {
		if o.Status == StatusSent && o.Candidate != nil {
			out = append(out, *o.Candidate)
		}
	}
	return out
}

// Scheduler runs the admission drain loop.
type Scheduler struct {
	config   Config
	analyzer Analyzer
	notifier InsightNotifier
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
}

// New creates a scheduler. analyzer may be nil, in which case insights carry no advisory.
func New(config Config, analyzer Analyzer, notifier InsightNotifier) *Scheduler {
	return &Scheduler{
		config:   config,
		analyzer: analyzer,
		notifier: notifier,
		now:      time.Now,
		sleep:    sleepContext,
	}
}

// AdjustedScore discounts raw by how often the category was already covered today.
func AdjustedScore(raw float64, usage int, penalty float64) float64 {
	return raw / (1 + float64(usage)*penalty)
}

type ranked struct {
	candidate models.Candidate
	score     float64
}

// rank orders candidates by adjusted score, keeping first-seen order on ties.
func (s *Scheduler) rank(items []models.Candidate, budget *state.Budget) []ranked {
	out := make([]ranked, len(items))
	for i, c := range items {
		out[i] = ranked{
			candidate: c,
			score:     AdjustedScore(c.RawScore, budget.Usage(c.Category), s.config.CategoryPenalty),
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].score > out[j].score
	})
	return out
}

func (s *Scheduler) rateLimited(budget *state.Budget, now time.Time, sends int) bool {
	if budget.LastSentAt.IsZero() {
		return false
	}
	if s.config.MinInterval < BurstThreshold && sends > 0 {
		return false
	}
	return now.Sub(budget.LastSentAt) < s.config.MinInterval
}

// Drain sends insights from queue until the budget, the rate limit, the cooldowns
// or a delivery failure stop it, then prunes expired candidates.
// Delivered insights are accounted in st immediately.
func (s *Scheduler) Drain(ctx context.Context, queue *monitor.Queue, st *state.State) Report {
	var report Report
	sends := 0
	skipped := make(map[uint64]bool)

	halt := func(reason Reason, c *models.Candidate) {
		report.Halt = reason
		report.Outcomes = append(report.Outcomes, Outcome{Status: StatusHalted, Reason: reason, Candidate: c})
	}

	for {
		if ctx.Err() != nil {
			halt(ReasonCancelled, nil)
			break
		}
		now := s.now()

		if st.Budget.Count >= s.config.MaxPerDay {
			halt(ReasonBudgetExhausted, nil)
			break
		}
		if s.rateLimited(&st.Budget, now, sends) {
			halt(ReasonRateLimited, nil)
			break
		}
		if queue.Len() == 0 {
			halt(ReasonQueueEmpty, nil)
			break
		}

		var chosen *ranked
		for _, r := range s.rank(queue.Items(), &st.Budget) {
			if st.Insights.Active(r.candidate.EventSlug, now, s.config.Cooldown) {
				if !skipped[r.candidate.Seq] {
					skipped[r.candidate.Seq] = true
					c := r.candidate
					report.Outcomes = append(report.Outcomes, Outcome{
						Status: StatusSkipped, Reason: ReasonCooldown, Candidate: &c, AdjustedScore: r.score,
					})
				}
				continue
			}
			r := r
			chosen = &r
			break
		}
		if chosen == nil {
			halt(ReasonAllOnCooldown, nil)
			break
		}

		c := chosen.candidate
		// The candidate stays queued if the pause is cancelled.
		if sends > 0 && s.config.SendPause > 0 {
			if err := s.sleep(ctx, s.config.SendPause); err != nil {
				halt(ReasonCancelled, &c)
				break
			}
			now = s.now()
		}
		queue.Remove(c.Seq)

		logger.Info("Scheduler: analysing %s (cat: %s, score: %.0f, budget %d/%d)",
			c.EventTitle, c.Category, chosen.score, st.Budget.Count+1, s.config.MaxPerDay)

		advisory := s.analyze(ctx, c)
		insight := models.Insight{
			Candidate:  c,
			Advisory:   advisory,
			BudgetUsed: st.Budget.Count + 1,
			BudgetMax:  s.config.MaxPerDay,
		}
		if err := s.notifier.SendInsight(ctx, insight); err != nil {
			logger.Error("Scheduler: insight for %s not delivered, stopping drain: %v", c.EventSlug, err)
			halt(ReasonDeliveryFailed, &c)
			break
		}

		st.Budget.Record(c.Category, now)
		st.Insights[c.EventSlug] = now
		sends++
		report.Sent++
		report.Outcomes = append(report.Outcomes, Outcome{
			Status: StatusSent, Candidate: &c, AdjustedScore: chosen.score, HasAdvisory: advisory != "",
		})
		logger.Info("Insight sent for %s (%d/%d today)", c.EventSlug, st.Budget.Count, s.config.MaxPerDay)
	}

	report.Pruned = queue.Prune(s.now(), s.config.CandidateTTL)
	return report
}

// analyze asks for an advisory. Failures only cost the advisory, never the insight.
func (s *Scheduler) analyze(ctx context.Context, c models.Candidate) string {
	if s.analyzer == nil {
		return ""
	}
	outcomes, prices := c.Outcomes, c.Prices
	if len(outcomes) == 0 || len(prices) == 0 {
		outcomes = []string{"Outcome"}
		prices = []string{formatPrice(c.Metrics.EndPrice)}
	}
	text, err := s.analyzer.Analyze(ctx, c.MarketQuestion, outcomes, prices)
	if err != nil {
		logger.Warn("Analysis unavailable for %s: %v", c.EventSlug, err)
		return ""
	}
	return text
}

func formatPrice(p float64) string {
	return strconv.FormatFloat(p, 'f', 2, 64)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
