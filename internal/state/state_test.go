package state

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

func TestBoundedSet_AddContainsTrim(t *testing.T) {
	s := NewBoundedSet("a", "b", "", "a")
	assert.Equal(t, []string{"a", "b"}, s.Items())
	assert.False(t, s.Add("a"), "duplicate add must be a no-op")
	assert.True(t, s.Add("c"))

	evicted := s.Trim(2)
	assert.Equal(t, 1, evicted)
	assert.Equal(t, []string{"b", "c"}, s.Items())
	assert.False(t, s.Contains("a"), "oldest id should be evicted first")
	assert.True(t, s.Contains("c"))

	assert.Equal(t, 0, s.Trim(10))
	s.Clear()
	assert.Equal(t, 0, s.Len())
	assert.True(t, s.Add("a"), "cleared set accepts old ids again")
}

func TestBudget_RollAndRecord(t *testing.T) {
	b := Budget{Date: "2026-03-14", Categories: map[string]int{}}
	b.Record("politics", base)
	b.Record("politics", base.Add(time.Minute))
	assert.Equal(t, 2, b.Count)
	assert.Equal(t, 2, b.Usage("politics"))
	assert.Equal(t, base.Add(time.Minute), b.LastSentAt)

	assert.False(t, b.Roll("2026-03-14"))
	assert.Equal(t, 2, b.Count)

	assert.True(t, b.Roll("2026-03-15"))
	assert.Equal(t, 0, b.Count)
	assert.Empty(t, b.Categories)
	assert.Equal(t, "2026-03-15", b.Date)
	assert.Equal(t, base.Add(time.Minute), b.LastSentAt, "last send survives rollover")
}

func TestCooldowns_ActiveAndPurge(t *testing.T) {
	c := Cooldowns{
		"fresh": base.Add(-5 * time.Hour),
		"old":   base.Add(-7 * time.Hour),
		"stale": base.Add(-25 * time.Hour),
	}
	window := 6 * time.Hour
	assert.True(t, c.Active("fresh", base, window))
	assert.False(t, c.Active("old", base, window))
	assert.False(t, c.Active("missing", base, window))

	assert.Equal(t, 1, c.Purge(base, CooldownRetention))
	assert.Contains(t, c, "old")
	assert.NotContains(t, c, "stale")
}

func TestCleanup_CapsAndRollover(t *testing.T) {
	s := New(base)
	for i := 0; i < MaxTradeIDs+10; i++ {
		s.Trades.Add(fmt.Sprintf("t-%d", i))
	}
	for i := 0; i < MaxPositionIDs+3; i++ {
		s.SmartPositions.Add(fmt.Sprintf("p-%d", i))
	}
	s.Budget.Record("tech", base)
	s.Insights["recent"] = base.Add(-time.Hour)
	s.Insights["expired"] = base.Add(-24 * time.Hour)

	report := s.Cleanup(base)
	assert.False(t, report.BudgetReset)
	assert.Equal(t, 10, report.TradesEvicted)
	assert.Equal(t, 3, report.PositionsEvicted)
	assert.Equal(t, 1, report.InsightsPurged)
	assert.Equal(t, MaxTradeIDs, s.Trades.Len())
	assert.Equal(t, MaxPositionIDs, s.SmartPositions.Len())
	assert.False(t, s.Trades.Contains("t-0"))
	assert.True(t, s.Trades.Contains(fmt.Sprintf("t-%d", MaxTradeIDs+9)))
	assert.Equal(t, 1, s.Budget.Count)
}

func TestCleanup_DayRolloverKeepsCooldowns(t *testing.T) {
	s := New(base)
	s.Budget.Record("politics", base)
	s.Budget.Record("tech", base)
	s.Insights["fed"] = base.Add(13 * time.Hour) // 23:00 on the 14th

	nextDay := base.Add(15 * time.Hour) // 01:00 on the 15th
	report := s.Cleanup(nextDay)

	require.True(t, report.BudgetReset)
	assert.Equal(t, 0, s.Budget.Count)
	assert.Empty(t, s.Budget.Categories)
	assert.Equal(t, "2026-03-15", s.Budget.Date)
	assert.Contains(t, s.Insights, "fed", "cooldowns age out, they do not reset at midnight")
	assert.True(t, s.Insights.Active("fed", nextDay, 21600*time.Second))
}

func TestReset(t *testing.T) {
	s := New(base)
	s.Trades.Add("t1")
	s.SmartPositions.Add("p1")
	s.LastSmartScanAt = base
	s.Insights["fed"] = base
	s.Budget.Record("politics", base)

	s.Reset(ResetOptions{Trades: true})
	assert.Equal(t, 0, s.Trades.Len())
	assert.Equal(t, 1, s.Budget.Count)

	s.Reset(ResetAll)
	assert.Equal(t, 0, s.Budget.Count)
	assert.Equal(t, 1, s.Budget.Usage("politics"), "category usage is kept")
	assert.Empty(t, s.Insights)
	assert.Equal(t, 0, s.SmartPositions.Len())
	assert.True(t, s.LastSmartScanAt.IsZero())
}
