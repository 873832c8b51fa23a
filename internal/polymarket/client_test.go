package polymarket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

var now = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func newTestClient(t *testing.T, handler http.HandlerFunc, categories Categories) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := NewClient(Options{
		GammaAPIURL:   srv.URL,
		DataAPIURL:    srv.URL,
		RatePerSecond: 1000,
		Categories:    categories,
	})
	c.retryWait = time.Millisecond
	c.now = func() time.Time { return now }
	return c
}

const eventsBody = `[
  {"id":"1","slug":"expired","title":"Already over","endDate":"2026-03-14T11:00:00Z",
   "tags":[{"label":"Politics","slug":"politics"}],
   "markets":[{"id":"m1","conditionId":"0x1","question":"Q1?"}]},
  {"id":"2","slug":"fed-march","title":"Fed decision in March?","endDate":"2026-03-14T18:00:00Z",
   "tags":[{"label":"Finance","slug":"finance"},{"label":"Politics","slug":"politics"}],
   "markets":[{"id":"m2","conditionId":"0x2","question":"Will the Fed cut?",
               "outcomes":"[\"Yes\", \"No\"]","outcomePrices":"[\"0.25\", \"0.75\"]"}]},
  {"id":"3","slug":"g7-summit","title":"G7 summit communique","endDate":"2026-03-15T02:00:00Z",
   "tags":["World"],
   "markets":[{"id":"m3","conditionId":"0x3","question":"Joint statement on tariffs?","outcomes":"not json"}]},
  {"id":"7","slug":"nba-final","title":"Lakers vs Celtics","endDate":"2026-03-15T03:00:00Z",
   "tags":[{"label":"Sports","slug":"sports"},{"label":"NBA","slug":"nba"}],
   "markets":[{"id":"m7","conditionId":"0x7","question":"Lakers win?"}]},
  {"id":"4","slug":"far","title":"Next year","endDate":"2027-01-01T00:00:00Z",
   "tags":[{"label":"Crypto","slug":"crypto"}],
   "markets":[{"id":"m4","conditionId":"0x4","question":"BTC 200k?"}]},
  {"id":"5","slug":"bad-date","title":"Broken","endDate":"soon",
   "tags":[],"markets":[]},
  {"id":"6","slug":"knitting","title":"Knitting cup","endDate":"2026-03-14T20:00:00Z",
   "tags":[{"label":"Crafts","slug":"crafts"}],
   "markets":[{"id":"m6","conditionId":"0x6","question":"Scarf?"}]}
]`

func TestFetchExpiringEvents_WindowAndCategories(t *testing.T) {
	var gotQuery string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/events" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		gotQuery = r.URL.RawQuery
		w.Write([]byte(eventsBody))
	}, DefaultCategories())

	events, err := c.FetchExpiringEvents(context.Background(), 24*time.Hour, 100)
	if err != nil {
		t.Fatalf("FetchExpiringEvents() error = %v", err)
	}

	if gotQuery != "ascending=true&closed=false&limit=100&offset=0&order=endDate" {
		t.Errorf("query = %s", gotQuery)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d: %+v", len(events), events)
	}

	fed := events[0]
	if fed.Slug != "fed-march" {
		t.Errorf("first event = %s, want fed-march", fed.Slug)
	}
	// politics precedes finance in the matcher list.
	if fed.Category != "politics" {
		t.Errorf("category = %s, want politics", fed.Category)
	}
	if len(fed.Markets) != 1 || fed.Markets[0].ConditionID != "0x2" {
		t.Fatalf("unexpected markets %+v", fed.Markets)
	}
	if got := fed.Markets[0].Prices; len(got) != 2 || got[0] != "0.25" {
		t.Errorf("prices = %v", got)
	}

	summit := events[1]
	if summit.Category != "world" {
		t.Errorf("category = %s, want world", summit.Category)
	}
	if len(summit.Markets[0].Outcomes) != 0 {
		t.Errorf("malformed outcomes should be empty, got %v", summit.Markets[0].Outcomes)
	}
}

func TestFetchExpiringEvents_NoMatchersKeepsEverything(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(eventsBody))
	}, nil)

	events, err := c.FetchExpiringEvents(context.Background(), 24*time.Hour, 100)
	if err != nil {
		t.Fatalf("FetchExpiringEvents() error = %v", err)
	}
	if len(events) != 4 {
		t.Fatalf("expected 4 events, got %d", len(events))
	}
	if events[0].Category != "finance" {
		t.Errorf("category = %s, want first tag finance", events[0].Category)
	}
	if events[2].Category != "sports" {
		t.Errorf("category = %s, want sports", events[2].Category)
	}
	if events[3].Category != "crafts" {
		t.Errorf("category = %s, want crafts", events[2].Category)
	}
}

func TestFetchTrades(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/trades" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("market") != "0xabc" || r.URL.Query().Get("limit") != "50" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		w.Write([]byte(`[
		  {"matchId":"m-1","id":"t-1","side":"BUY","price":0.8,"size":20000,"timestamp":1773489600},
		  {"id":"t-2","side":"SELL","price":"0.41","size":"150.5","timestamp":1773489500},
		  {"side":"BUY","price":"abc","size":10,"timestamp":1773489400}
		]`))
	}, nil)

	trades, err := c.FetchTrades(context.Background(), "0xabc")
	if err != nil {
		t.Fatalf("FetchTrades() error = %v", err)
	}
	if len(trades) != 3 {
		t.Fatalf("expected 3 trades, got %d", len(trades))
	}

	if trades[0].ID != "m-1" {
		t.Errorf("id = %s, want match id", trades[0].ID)
	}
	if v := trades[0].Value(); v < 15999.99 || v > 16000.01 {
		t.Errorf("value = %f, want 16000", v)
	}
	if trades[0].Timestamp.Unix() != 1773489600 {
		t.Errorf("timestamp = %v", trades[0].Timestamp)
	}

	if trades[1].ID != "t-2" || trades[1].Price != 0.41 || trades[1].Size != 150.5 {
		t.Errorf("string numbers not parsed: %+v", trades[1])
	}

	if trades[2].ID != "0xabc-1773489400-10.0" {
		t.Errorf("synthetic id = %s", trades[2].ID)
	}
	if trades[2].Price != 0 {
		t.Errorf("malformed price should be 0, got %f", trades[2].Price)
	}
}

func TestSizeKey(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"20000", "20000.0"},
		{"150.5", "150.5"},
		{"150.50", "150.5"},
		{"0", "0.0"},
		{"1e3", "1000.0"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := sizeKey(decimal.RequireFromString(tt.in)); got != tt.want {
				t.Errorf("sizeKey(%s) = %s, want %s", tt.in, got, tt.want)
			}
		})
	}
}

func TestDoRequest_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`[]`))
	}, nil)

	trades, err := c.FetchTrades(context.Background(), "0x1")
	if err != nil {
		t.Fatalf("FetchTrades() error = %v", err)
	}
	if len(trades) != 0 {
		t.Errorf("expected no trades, got %d", len(trades))
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
}

func TestDoRequest_GivesUp(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}, nil)

	if _, err := c.FetchTrades(context.Background(), "0x1"); err == nil {
		t.Fatal("expected error after retries")
	}
}

func TestDoRequest_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}, nil)

	if _, err := c.FetchExpiringEvents(context.Background(), time.Hour, 10); err == nil {
		t.Fatal("expected error")
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}

func TestDefaultCategories(t *testing.T) {
	cats := DefaultCategories()
	want := []string{"politics", "geopolitics", "finance", "crypto", "elections", "tech", "culture", "world", "breaking"}
	if len(cats) != len(want) {
		t.Fatalf("got %d matchers, want %d", len(cats), len(want))
	}
	for i, name := range want {
		if cats[i].Name != name {
			t.Errorf("matcher %d = %s, want %s", i, cats[i].Name, name)
		}
	}

	tests := []struct {
		tags   []string
		want   string
		wantOK bool
	}{
		{[]string{"Geopolitics"}, "geopolitics", true},
		{[]string{"elections", "politics"}, "politics", true},
		{[]string{"Breaking"}, "breaking", true},
		{[]string{"culture"}, "culture", true},
		{[]string{"sports", "nba"}, "", false},
	}
	for _, tt := range tests {
		got, ok := cats.Classify(tt.tags)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("Classify(%v) = %q, %v; want %q, %v", tt.tags, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestCategoriesClassify(t *testing.T) {
	cats := Categories{
		{Name: "politics", Tags: []string{"Politics", "elections"}},
		{Name: "finance", Tags: []string{"economy", "politics"}},
	}

	tests := []struct {
		name   string
		tags   []string
		want   string
		wantOK bool
	}{
		{"exact match", []string{"elections"}, "politics", true},
		{"case insensitive", []string{"ECONOMY"}, "finance", true},
		{"first matcher wins", []string{"economy", "politics"}, "politics", true},
		{"no substring matching", []string{"us-politics-extra"}, "", false},
		{"no tags", nil, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := cats.Classify(tt.tags)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("Classify(%v) = %q, %v; want %q, %v", tt.tags, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}
