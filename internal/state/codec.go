package state

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// SchemaVersion is the version written by Encode.
// Version 0 is the unversioned JSON file written by earlier releases.
const SchemaVersion = 1

type usageRecord struct {
	Count      int            `json:"count"`
	Date       string         `json:"date"`
	LastSentTS float64        `json:"last_sent_ts"`
	Categories map[string]int `json:"categories"`
}

// record is the on-disk shape. Pointers and nil maps mark keys missing from old documents.
type record struct {
	Version         int                `json:"version"`
	Trades          []string           `json:"trades"`
	Insights        map[string]float64 `json:"insights"`
	SmartPositions  []json.RawMessage  `json:"smart_positions"`
	LastSmartScanTS float64            `json:"last_smart_scan_ts"`
	AIUsage         *usageRecord       `json:"ai_usage"`
}

// migrations[v] upgrades a record from version v to v+1.
var migrations = []func(r *record, now time.Time){
	migrateV0,
}

// migrateV0 fills the keys that unversioned documents may lack.
func migrateV0(r *record, now time.Time) {
	if r.Trades == nil {
		r.Trades = []string{}
	}
	if r.Insights == nil {
		r.Insights = map[string]float64{}
	}
	if r.SmartPositions == nil {
		r.SmartPositions = []json.RawMessage{}
	}
	if r.AIUsage == nil {
		r.AIUsage = &usageRecord{Date: Day(now)}
	}
	if r.AIUsage.Categories == nil {
		r.AIUsage.Categories = map[string]int{}
	}
	if r.AIUsage.Date == "" {
		r.AIUsage.Date = Day(now)
	}
}

func migrate(r *record, now time.Time) {
	for v := r.Version; v < SchemaVersion && v < len(migrations); v++ {
		migrations[v](r, now)
	}
	if r.Version < SchemaVersion {
		r.Version = SchemaVersion
	}
	// A document claiming a newer version may still lack keys.
	migrateV0(r, now)
}

// Decode parses a persisted document and migrates it to SchemaVersion.
func Decode(data []byte, now time.Time) (*State, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("empty state document")
	}
	var r record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to decode state: %w", err)
	}
	migrate(&r, now)

	positions := make([]string, 0, len(r.SmartPositions))
	for _, raw := range r.SmartPositions {
		positions = append(positions, positionID(raw))
	}

	insights := make(Cooldowns, len(r.Insights))
	for slug, ts := range r.Insights {
		insights[slug] = fromUnix(ts)
	}

	return &State{
		Version:         r.Version,
		Trades:          NewBoundedSet(r.Trades...),
		SmartPositions:  NewBoundedSet(positions...),
		Insights:        insights,
		LastSmartScanAt: fromUnix(r.LastSmartScanTS),
		Budget: Budget{
			Count:      r.AIUsage.Count,
			Date:       r.AIUsage.Date,
			LastSentAt: fromUnix(r.AIUsage.LastSentTS),
			Categories: r.AIUsage.Categories,
		},
	}, nil
}

// Encode renders the state in the current schema.
func Encode(s *State) ([]byte, error) {
	positions := make([]json.RawMessage, 0, s.SmartPositions.Len())
	for _, id := range s.SmartPositions.Items() {
		b, err := json.Marshal(id)
		if err != nil {
			return nil, err
		}
		positions = append(positions, b)
	}
	insights := make(map[string]float64, len(s.Insights))
	for slug, at := range s.Insights {
		insights[slug] = toUnix(at)
	}
	categories := s.Budget.Categories
	if categories == nil {
		categories = map[string]int{}
	}
	r := record{
		Version:         SchemaVersion,
		Trades:          s.Trades.Items(),
		Insights:        insights,
		SmartPositions:  positions,
		LastSmartScanTS: toUnix(s.LastSmartScanAt),
		AIUsage: &usageRecord{
			Count:      s.Budget.Count,
			Date:       s.Budget.Date,
			LastSentTS: toUnix(s.Budget.LastSentAt),
			Categories: categories,
		},
	}
	return json.Marshal(r)
}

// positionID accepts plain string ids and falls back to the compact JSON of anything else.
func positionID(raw json.RawMessage) string {
	var id string
	if err := json.Unmarshal(raw, &id); err == nil {
		return id
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}

func fromUnix(ts float64) time.Time {
	if ts <= 0 || math.IsNaN(ts) || math.IsInf(ts, 0) {
		return time.Time{}
	}
	sec, frac := math.Modf(ts)
	return time.Unix(int64(sec), int64(frac*1e9))
}

func toUnix(t time.Time) float64 {
	if t.IsZero() {
		return 0
	}
	return float64(t.UnixNano()) / 1e9
}
