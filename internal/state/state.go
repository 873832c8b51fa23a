// Package state holds the durable bot state: dedup sets, the daily analysis budget and
// per-event cooldowns. It is owned by a single writer and is not safe for concurrent use.
package state

import (
	"time"
)

// Retention limits applied by Cleanup.
const (
	MaxTradeIDs       = 5000
	MaxPositionIDs    = 1000
	CooldownRetention = 24 * time.Hour
)

// DayLayout is the calendar-day format used for budget rollover.
const DayLayout = "2006-01-02"

// Day returns the calendar day of t in t's location.
func Day(t time.Time) string {
	return t.Format(DayLayout)
}

// BoundedSet is an insertion-ordered set of ids. Trim evicts the oldest entries first.
type BoundedSet struct {
	ids   []string
	index map[string]struct{}
}

// NewBoundedSet builds a set from ids, ignoring empties and duplicates.
func NewBoundedSet(ids ...string) *BoundedSet {
	s := &BoundedSet{index: make(map[string]struct{}, len(ids))}
	for _, id := range ids {
		s.Add(id)
	}
	return s
}

// Contains reports whether id is in the set.
func (s *BoundedSet) Contains(id string) bool {
	_, ok := s.index[id]
	return ok
}

// Add inserts id at the newest end. Existing ids keep their position.
func (s *BoundedSet) Add(id string) bool {
	if id == "" || s.Contains(id) {
		return false
	}
	s.ids = append(s.ids, id)
	s.index[id] = struct{}{}
	return true
}

// Len returns the number of ids.
func (s *BoundedSet) Len() int {
	return len(s.ids)
}

// Items returns the ids oldest first.
func (s *BoundedSet) Items() []string {
	out := make([]string, len(s.ids))
	copy(out, s.ids)
	return out
}

// Trim keeps at most max newest ids and returns how many were evicted.
func (s *BoundedSet) Trim(max int) int {
	if max < 0 {
		max = 0
	}
	excess := len(s.ids) - max
	if excess <= 0 {
		return 0
	}
	for _, id := range s.ids[:excess] {
		delete(s.index, id)
	}
	kept := make([]string, max)
	copy(kept, s.ids[excess:])
	s.ids = kept
	return excess
}

// Clear removes every id.
func (s *BoundedSet) Clear() {
	s.ids = nil
	s.index = make(map[string]struct{})
}

// Budget tracks the analysis calls spent on the current calendar day.
type Budget struct {
	Count      int
	Date       string
	LastSentAt time.Time
	Categories map[string]int
}

// Roll resets the daily counters when day differs from the recorded date.
func (b *Budget) Roll(day string) bool {
	if b.Date == day {
		return false
	}
	b.Count = 0
	b.Date = day
	b.Categories = make(map[string]int)
	return true
}

// Usage returns how many insights were sent today for category.
func (b *Budget) Usage(category string) int {
	return b.Categories[category]
}

// Record accounts one delivered insight.
func (b *Budget) Record(category string, at time.Time) {
	if b.Categories == nil {
		b.Categories = make(map[string]int)
	}
	b.Count++
	b.LastSentAt = at
	b.Categories[category]++
}

// Cooldowns maps an event slug to the time of its last insight.
type Cooldowns map[string]time.Time

// Active reports whether slug was notified less than window ago.
func (c Cooldowns) Active(slug string, now time.Time, window time.Duration) bool {
	last, ok := c[slug]
	if !ok {
		return false
	}
	return now.Sub(last) < window
}

// Purge drops entries older than retention and returns how many were removed.
func (c Cooldowns) Purge(now time.Time, retention time.Duration) int {
	removed := 0
	for slug, at := range c {
		if now.Sub(at) >= retention {
			delete(c, slug)
			removed++
		}
	}
	return removed
}

// State is the aggregate persisted between ticks and restarts.
type State struct {
	Version         int
	Trades          *BoundedSet
	SmartPositions  *BoundedSet
	Insights        Cooldowns
	Budget          Budget
	LastSmartScanAt time.Time
}

// New returns an empty state with the budget dated to now.
func New(now time.Time) *State {
	return &State{
		Version:        SchemaVersion,
		Trades:         NewBoundedSet(),
		SmartPositions: NewBoundedSet(),
		Insights:       make(Cooldowns),
		Budget: Budget{
			Date:       Day(now),
			Categories: make(map[string]int),
		},
	}
}

// CleanupReport summarises what a cleanup pass changed.
type CleanupReport struct {
	BudgetReset      bool
	TradesEvicted    int
	PositionsEvicted int
	InsightsPurged   int
}

// Cleanup resets the budget on a new day, caps the dedup sets and purges stale cooldowns.
func (s *State) Cleanup(now time.Time) CleanupReport {
	return CleanupReport{
		BudgetReset:      s.Budget.Roll(Day(now)),
		TradesEvicted:    s.Trades.Trim(MaxTradeIDs),
		PositionsEvicted: s.SmartPositions.Trim(MaxPositionIDs),
		InsightsPurged:   s.Insights.Purge(now, CooldownRetention),
	}
}

// ResetOptions selects which parts of the state Reset clears.
type ResetOptions struct {
	Trades         bool
	BudgetCount    bool
	Insights       bool
	SmartPositions bool
}

// ResetAll clears everything Reset can clear.
var ResetAll = ResetOptions{Trades: true, BudgetCount: true, Insights: true, SmartPositions: true}

// Reset clears the selected parts so past activity can be alerted again.
// The budget date and category usage are kept.
func (s *State) Reset(opts ResetOptions) {
	if opts.Trades {
		s.Trades.Clear()
	}
	if opts.BudgetCount {
		s.Budget.Count = 0
	}
	if opts.Insights {
		s.Insights = make(Cooldowns)
	}
	if opts.SmartPositions {
		s.SmartPositions.Clear()
		s.LastSmartScanAt = time.Time{}
	}
}
