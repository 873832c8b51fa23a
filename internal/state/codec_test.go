package state

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_LegacyDocumentMigrates(t *testing.T) {
	// Unversioned file from before budget tracking existed.
	legacy := `{"trades": ["a", "b"], "insights": {"fed-oct": 1773482400.5}}`

	s, err := Decode([]byte(legacy), base)
	require.NoError(t, err)

	assert.Equal(t, SchemaVersion, s.Version)
	assert.Equal(t, []string{"a", "b"}, s.Trades.Items())
	assert.Equal(t, 0, s.SmartPositions.Len())
	assert.Equal(t, "2026-03-14", s.Budget.Date, "missing budget gets today's date")
	assert.NotNil(t, s.Budget.Categories)
	assert.Equal(t, int64(1773482400), s.Insights["fed-oct"].Unix())
}

func TestDecode_UsageWithoutCategories(t *testing.T) {
	doc := `{"trades": [], "insights": {}, "ai_usage": {"count": 4, "date": "2026-03-13", "last_sent_ts": 1773400000}}`

	s, err := Decode([]byte(doc), base)
	require.NoError(t, err)
	assert.Equal(t, 4, s.Budget.Count)
	assert.Equal(t, "2026-03-13", s.Budget.Date)
	assert.NotNil(t, s.Budget.Categories)
	assert.Equal(t, int64(1773400000), s.Budget.LastSentAt.Unix())
}

func TestDecode_NonStringSmartPositions(t *testing.T) {
	doc := `{"smart_positions": ["0xabc-yes", {"slug": "x", "outcome": "No"}]}`

	s, err := Decode([]byte(doc), base)
	require.NoError(t, err)
	assert.Equal(t, []string{"0xabc-yes", `{"slug":"x","outcome":"No"}`}, s.SmartPositions.Items())
}

func TestDecode_Corrupt(t *testing.T) {
	for _, doc := range []string{"", "   ", "{not json", "[1,2,3]"} {
		_, err := Decode([]byte(doc), base)
		assert.Error(t, err, "document %q", doc)
	}
}

func TestEncodeDecode_PreservesState(t *testing.T) {
	s := New(base)
	s.Trades.Add("t1")
	s.Trades.Add("t2")
	s.SmartPositions.Add("p1")
	s.Insights["fed"] = base.Add(-time.Hour)
	s.Budget.Record("finance", base)
	s.LastSmartScanAt = base.Add(-2 * time.Hour)

	data, err := Encode(s)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.EqualValues(t, SchemaVersion, raw["version"])
	assert.Contains(t, raw, "ai_usage")

	got, err := Decode(data, base)
	require.NoError(t, err)
	assert.Equal(t, []string{"t1", "t2"}, got.Trades.Items())
	assert.Equal(t, []string{"p1"}, got.SmartPositions.Items())
	assert.Equal(t, 1, got.Budget.Count)
	assert.Equal(t, 1, got.Budget.Usage("finance"))
	assert.WithinDuration(t, base, got.Budget.LastSentAt, time.Millisecond)
	assert.WithinDuration(t, base.Add(-time.Hour), got.Insights["fed"], time.Millisecond)
	assert.WithinDuration(t, base.Add(-2*time.Hour), got.LastSmartScanAt, time.Millisecond)
}

func TestEncode_ZeroTimesAsZero(t *testing.T) {
	data, err := Encode(New(base))
	require.NoError(t, err)

	var raw struct {
		LastSmartScanTS float64      `json:"last_smart_scan_ts"`
		AIUsage         *usageRecord `json:"ai_usage"`
	}
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Zero(t, raw.LastSmartScanTS)
	assert.Zero(t, raw.AIUsage.LastSentTS)
}
