package telegram

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/rewired-gh/polywhale/internal/models"
)

type fakeSender struct {
	failFor map[int64]int // chat id -> remaining failures
	sent    []tgbotapi.MessageConfig
	calls   int
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.calls++
	msg := c.(tgbotapi.MessageConfig)
	if f.failFor[msg.ChatID] > 0 {
		f.failFor[msg.ChatID]--
		return tgbotapi.Message{}, errors.New("Bad Request: chat not found")
	}
	f.sent = append(f.sent, msg)
	return tgbotapi.Message{}, nil
}

func TestNewClient_InvalidChatID(t *testing.T) {
	// Chat ids are parsed before the bot token is checked against the API.
	_, err := NewClient("", []string{"not-a-number"}, 3, time.Second)
	if err == nil {
		t.Error("Expected error for invalid chat ID, got nil")
	}
}

func TestNewClient_NoChats(t *testing.T) {
	_, err := NewClient("token", []string{" ", ""}, 3, time.Second)
	if !errors.Is(err, ErrNoDestination) {
		t.Errorf("expected ErrNoDestination, got %v", err)
	}
}

func TestParseChatIDs(t *testing.T) {
	ids, err := ParseChatIDs([]string{"123", " -100456 ", ""})
	if err != nil {
		t.Fatalf("ParseChatIDs() error = %v", err)
	}
	if len(ids) != 2 || ids[0] != 123 || ids[1] != -100456 {
		t.Errorf("ParseChatIDs() = %v", ids)
	}
}

func TestDeliver_FanOut(t *testing.T) {
	s := &fakeSender{}
	c := newClient(s, []int64{1, 2}, 3, time.Millisecond)

	if err := c.Deliver(context.Background(), "<b>hi</b>"); err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}
	if len(s.sent) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(s.sent))
	}
	if s.sent[0].ParseMode != tgbotapi.ModeHTML {
		t.Errorf("parse mode = %q, want HTML", s.sent[0].ParseMode)
	}
}

func TestDeliver_PartialSuccess(t *testing.T) {
	s := &fakeSender{failFor: map[int64]int{1: 10}}
	c := newClient(s, []int64{1, 2}, 2, time.Millisecond)

	if err := c.Deliver(context.Background(), "x"); err != nil {
		t.Fatalf("one accepting chat is enough, got %v", err)
	}
	if len(s.sent) != 1 || s.sent[0].ChatID != 2 {
		t.Errorf("unexpected sends %+v", s.sent)
	}
}

func TestDeliver_RetriesThenSucceeds(t *testing.T) {
	s := &fakeSender{failFor: map[int64]int{1: 2}}
	c := newClient(s, []int64{1}, 3, time.Millisecond)

	if err := c.Deliver(context.Background(), "x"); err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}
	if s.calls != 3 {
		t.Errorf("calls = %d, want 3", s.calls)
	}
}

func TestDeliver_AllFail(t *testing.T) {
	s := &fakeSender{failFor: map[int64]int{1: 10, 2: 10}}
	c := newClient(s, []int64{1, 2}, 2, time.Millisecond)

	err := c.Deliver(context.Background(), "x")
	if !errors.Is(err, ErrNoDestination) {
		t.Fatalf("expected ErrNoDestination, got %v", err)
	}
	if s.calls != 4 {
		t.Errorf("calls = %d, want 4", s.calls)
	}
}

func TestDeliver_NoChats(t *testing.T) {
	c := newClient(&fakeSender{}, nil, 3, time.Millisecond)
	if err := c.Deliver(context.Background(), "x"); !errors.Is(err, ErrNoDestination) {
		t.Errorf("expected ErrNoDestination, got %v", err)
	}
}

func TestHandleCommand(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"/ping", "Pong"},
		{"/chatid", "Chat ID: -100777"},
		{"/chatid@polywhale_bot", "Chat ID: -100777"},
		{"/unknown", ""},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			s := &fakeSender{}
			c := newClient(s, []int64{1}, 1, time.Millisecond)
			cmdLen := len(tt.text)
			c.handleCommand(&tgbotapi.Message{
				Text:     tt.text,
				Chat:     &tgbotapi.Chat{ID: -100777},
				Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: cmdLen}},
			})
			if tt.want == "" {
				if len(s.sent) != 0 {
					t.Errorf("unexpected reply %q", s.sent[0].Text)
				}
				return
			}
			if len(s.sent) != 1 || s.sent[0].Text != tt.want || s.sent[0].ChatID != -100777 {
				t.Errorf("reply = %+v, want %q", s.sent, tt.want)
			}
		})
	}
}

func TestFormatWhale(t *testing.T) {
	msg := FormatWhale(models.WhaleAlert{
		EventTitle:     "Fed <March> decision",
		EventSlug:      "fed-march",
		MarketQuestion: "Will the Fed cut?",
		Side:           "BUY",
		Price:          0.8,
		Size:           20000,
		Value:          16000,
	})

	for _, want := range []string{
		"🐋 <b>WHALE ALERT!</b> 🐋",
		"Fed &lt;March&gt; decision",
		"BUYING YES (🐂 BULLISH)",
		"$16,000.00",
		"0.8 (80.0% Odds)",
		`<a href="https://polymarket.com/event/fed-march">View Market</a>`,
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("message missing %q:\n%s", want, msg)
		}
	}

	mega := FormatWhale(models.WhaleAlert{Side: "SELL", Price: 0.5, Value: 60000, Mega: true})
	if !strings.Contains(mega, "🐋🚨🐋") || !strings.Contains(mega, "SELLING YES (🐻 BEARISH)") {
		t.Errorf("unexpected mega message:\n%s", mega)
	}
}

func TestFormatInsight(t *testing.T) {
	in := models.Insight{
		Candidate: models.Candidate{
			EventSlug:      "fed-march",
			EventTitle:     "Fed decision",
			Category:       "finance",
			MarketQuestion: "Will the Fed cut?",
			Metrics: models.Metrics{
				TotalVolume: 12345.6,
				EndPrice:    0.42,
				Reasons:     []string{"High Volume ($12,346)", "📈 Raging Up (+0.10)"},
			},
		},
		BudgetUsed: 4,
		BudgetMax:  13,
	}

	msg := FormatInsight(in)
	for _, want := range []string{
		"⚡ <b>Daily Market Insight</b> ⚡",
		"<i>(Topic: FINANCE | Budget: 4/13)</i>",
		"<b>Activity:</b> High Volume ($12,346), 📈 Raging Up (+0.10)",
		"<b>Vol:</b> $12,346",
		"<b>Price:</b> 0.42",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("message missing %q:\n%s", want, msg)
		}
	}
	if strings.Contains(msg, "AI Advisory") {
		t.Error("advisory section should be omitted when empty")
	}

	in.Advisory = "<b>Recommendation:</b> BUY YES <script>x</script> & hold"
	msg = FormatInsight(in)
	if !strings.Contains(msg, "🤖 <b>AI Advisory:</b>\n<b>Recommendation:</b> BUY YES &lt;script&gt;x&lt;/script&gt; &amp; hold") {
		t.Errorf("advisory not sanitized:\n%s", msg)
	}
}

func TestFormatErrorAndRecovery(t *testing.T) {
	if got := FormatError(errors.New("fetch <events> failed")); got != "⚠️ <b>Monitoring error</b>\n<code>fetch &lt;events&gt; failed</code>" {
		t.Errorf("FormatError() = %q", got)
	}
	if got := FormatRecovery(3); got != "✅ <b>Monitoring recovered</b> after 3 consecutive failure(s)" {
		t.Errorf("FormatRecovery() = %q", got)
	}
}

func TestLogNotifierAlwaysDelivers(t *testing.T) {
	var n Notifier = LogNotifier{}
	ctx := context.Background()
	if err := n.SendWhale(ctx, models.WhaleAlert{}); err != nil {
		t.Error(err)
	}
	if err := n.SendInsight(ctx, models.Insight{}); err != nil {
		t.Error(err)
	}
}

var _ Notifier = (*Client)(nil)
