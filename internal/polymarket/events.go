package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rewired-gh/polywhale/internal/logger"
	"github.com/rewired-gh/polywhale/internal/models"
)

// gammaEvent is an event from the Gamma API.
type gammaEvent struct {
	ID      string            `json:"id"`
	Slug    string            `json:"slug"`
	Title   string            `json:"title"`
	EndDate string            `json:"endDate"`
	Tags    []json.RawMessage `json:"tags"`
	Markets []gammaMarket     `json:"markets"`
}

// gammaMarket is a market nested in a Gamma event.
type gammaMarket struct {
	ID            string `json:"id"`
	ConditionID   string `json:"conditionId"`
	Question      string `json:"question"`
	Outcomes      string `json:"outcomes"`      // JSON string: "[\"Yes\", \"No\"]"
	OutcomePrices string `json:"outcomePrices"` // JSON string: "[\"0.75\", \"0.25\"]"
}

type gammaTag struct {
	Label string `json:"label"`
	Slug  string `json:"slug"`
}

// FetchExpiringEvents returns open events resolving within window from now, ordered by
// end date. With matchers configured only matching events are returned; otherwise every
// event is returned with its first tag as category.
func (c *Client) FetchExpiringEvents(ctx context.Context, window time.Duration, limit int) ([]models.Event, error) {
	u, err := url.Parse(c.gammaAPIURL + "/events")
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}

	q := u.Query()
	q.Set("closed", "false")
	q.Set("order", "endDate")
	q.Set("ascending", "true")
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", "0")
	u.RawQuery = q.Encode()

	var raw []gammaEvent
	if err := c.getJSON(ctx, u.String(), &raw); err != nil {
		return nil, fmt.Errorf("failed to fetch events: %w", err)
	}

	now := c.now()
	horizon := now.Add(window)

	var events []models.Event
	for _, ge := range raw {
		end, err := parseEndDate(ge.EndDate)
		if err != nil {
			logger.Debug("Skipping event %s: %v", ge.ID, err)
			continue
		}
		if !end.After(now) || end.After(horizon) {
			continue
		}

		category, ok := c.categorize(ge.Tags)
		if !ok {
			continue
		}

		event := models.Event{
			ID:       ge.ID,
			Slug:     ge.Slug,
			Title:    ge.Title,
			Category: category,
			EndDate:  end,
		}
		for _, gm := range ge.Markets {
			m := convertMarket(gm)
			if m.TradeKey() == "" {
				continue
			}
			event.Markets = append(event.Markets, m)
		}
		if err := event.Validate(); err != nil {
			logger.Warn("Skipping event %s: %v", ge.ID, err)
			continue
		}
		events = append(events, event)
	}

	return events, nil
}

// categorize returns the event category and whether the event passes the filter.
func (c *Client) categorize(rawTags []json.RawMessage) (string, bool) {
	tags := parseTags(rawTags)
	if len(c.categories) == 0 {
		if len(tags) > 0 {
			return tags[0], true
		}
		return OtherCategory, true
	}
	return c.categories.Classify(tags)
}

// parseTags accepts tags as objects with label and slug, or as plain strings.
func parseTags(rawTags []json.RawMessage) []string {
	var tags []string
	for _, raw := range rawTags {
		var tag gammaTag
		if err := json.Unmarshal(raw, &tag); err == nil {
			if tag.Slug != "" {
				tags = append(tags, strings.ToLower(tag.Slug))
			}
			if tag.Label != "" {
				tags = append(tags, strings.ToLower(tag.Label))
			}
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil && s != "" {
			tags = append(tags, strings.ToLower(s))
		}
	}
	return tags
}

func parseEndDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("missing end date")
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", time.DateOnly} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid end date %q", s)
}

// convertMarket decodes the JSON-in-string outcome fields. Malformed fields become empty.
func convertMarket(gm gammaMarket) models.Market {
	m := models.Market{
		ID:          gm.ID,
		ConditionID: gm.ConditionID,
		Question:    gm.Question,
	}
	if gm.Outcomes != "" {
		if err := json.Unmarshal([]byte(gm.Outcomes), &m.Outcomes); err != nil {
			m.Outcomes = nil
		}
	}
	if gm.OutcomePrices != "" {
		if err := json.Unmarshal([]byte(gm.OutcomePrices), &m.Prices); err != nil {
			m.Prices = nil
		}
	}
	if len(m.Prices) > len(m.Outcomes) {
		m.Prices = m.Prices[:len(m.Outcomes)]
	}
	return m
}
