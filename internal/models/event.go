// Package models defines the core domain entities: events, markets, trades, candidates and alerts.
package models

import (
	"errors"
	"time"
)

// Event is a Polymarket event (a group of markets) resolving inside the watch window.
type Event struct {
	ID       string    `json:"id"`
	Slug     string    `json:"slug"`
	Title    string    `json:"title"`
	Category string    `json:"category"`
	EndDate  time.Time `json:"end_date"`
	Markets  []Market  `json:"markets"`
}

// URL returns the public link for the event.
func (e *Event) URL() string {
	return EventURL(e.Slug)
}

// EventURL builds the public Polymarket link for an event slug.
func EventURL(slug string) string {
	return "https://polymarket.com/event/" + slug
}

// Market is a single outcome market inside an event.
// ConditionID keys trades in the Data API; ID is the Gamma market id.
type Market struct {
	ID          string   `json:"id"`
	ConditionID string   `json:"condition_id"`
	Question    string   `json:"question"`
	Outcomes    []string `json:"outcomes"`
	Prices      []string `json:"prices"`
}

// TradeKey returns the identifier used to fetch trades for the market.
func (m *Market) TradeKey() string {
	if m.ConditionID != "" {
		return m.ConditionID
	}
	return m.ID
}

// Validate checks event field constraints.
func (e *Event) Validate() error {
	if e.Slug == "" {
		return errors.New("event slug must not be empty")
	}
	if e.Title == "" {
		return errors.New("event title must not be empty")
	}
	if e.Category == "" {
		return errors.New("event category must not be empty")
	}
	for i := range e.Markets {
		if e.Markets[i].TradeKey() == "" {
			return errors.New("market must have an ID or condition ID")
		}
		if len(e.Markets[i].Prices) > len(e.Markets[i].Outcomes) {
			return errors.New("market has more prices than outcomes")
		}
	}
	return nil
}
