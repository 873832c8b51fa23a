package polymarket

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rewired-gh/polywhale/internal/models"
)

// TradeLimit is how many recent trades are requested per market.
const TradeLimit = 50

// number decodes a JSON number or numeric string. Anything else decodes as zero.
type number struct {
	decimal.Decimal
}

func (n *number) UnmarshalJSON(b []byte) error {
	b = bytes.Trim(bytes.TrimSpace(b), `"`)
	d, err := decimal.NewFromString(string(b))
	if err != nil {
		n.Decimal = decimal.Zero
		return nil
	}
	n.Decimal = d
	return nil
}

// dataTrade is a trade from the Data API.
type dataTrade struct {
	MatchID     string `json:"matchId"`
	ID          string `json:"id"`
	ConditionID string `json:"conditionId"`
	Side        string `json:"side"`
	Price       number `json:"price"`
	Size        number `json:"size"`
	Timestamp   number `json:"timestamp"`
}

// FetchTrades returns the most recent trades of a market, newest first as the API orders them.
func (c *Client) FetchTrades(ctx context.Context, conditionID string) ([]models.Trade, error) {
	u, err := url.Parse(c.dataAPIURL + "/trades")
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}
	q := u.Query()
	q.Set("market", conditionID)
	q.Set("limit", strconv.Itoa(TradeLimit))
	u.RawQuery = q.Encode()

	var raw []dataTrade
	if err := c.getJSON(ctx, u.String(), &raw); err != nil {
		return nil, fmt.Errorf("failed to fetch trades for %s: %w", conditionID, err)
	}

	trades := make([]models.Trade, 0, len(raw))
	for _, dt := range raw {
		trades = append(trades, convertTrade(dt, conditionID))
	}
	return trades, nil
}

func convertTrade(dt dataTrade, conditionID string) models.Trade {
	price, _ := dt.Price.Float64()
	size, _ := dt.Size.Float64()
	ts := dt.Timestamp.IntPart()

	return models.Trade{
		ID:        tradeID(dt, conditionID),
		Price:     price,
		Size:      size,
		Side:      dt.Side,
		Timestamp: time.Unix(ts, 0).UTC(),
	}
}

// tradeID prefers the venue match id, then the trade id, then a synthetic key.
func tradeID(dt dataTrade, conditionID string) string {
	if dt.MatchID != "" {
		return dt.MatchID
	}
	if dt.ID != "" {
		return dt.ID
	}
	if dt.ConditionID != "" {
		conditionID = dt.ConditionID
	}
	return fmt.Sprintf("%s-%d-%s", conditionID, dt.Timestamp.IntPart(), sizeKey(dt.Size.Decimal))
}

// sizeKey renders a size the way ids in older state files do: integral sizes keep a ".0".
func sizeKey(d decimal.Decimal) string {
	s := d.String()
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
