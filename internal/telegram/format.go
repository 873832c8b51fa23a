package telegram

import (
	"fmt"
	"html"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/rewired-gh/polywhale/internal/models"
)

// advisoryTags are the only tags kept from generated advisory text.
var advisoryTags = []string{"b", "i", "u", "code"}

// FormatWhale renders a whale alert.
func FormatWhale(a models.WhaleAlert) string {
	emoji := "🐋"
	if a.Mega {
		emoji = "🐋🚨🐋"
	}

	action := "TRADE"
	sentiment := "🐻 BEARISH"
	switch a.Side {
	case models.SideBuy:
		action = "BUYING YES"
		sentiment = "🐂 BULLISH"
	case models.SideSell:
		action = "SELLING YES"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s <b>WHALE ALERT!</b> %s\n\n", emoji, emoji)
	fmt.Fprintf(&b, "<b>Event:</b> %s\n", html.EscapeString(a.EventTitle))
	fmt.Fprintf(&b, "<b>Market:</b> %s\n", html.EscapeString(a.MarketQuestion))
	fmt.Fprintf(&b, "<b>Action:</b> %s (%s)\n", action, sentiment)
	fmt.Fprintf(&b, "<b>Amount:</b> $%s\n", humanize.FormatFloat("#,###.##", a.Value))
	fmt.Fprintf(&b, "<b>Price:</b> %s (%.1f%% Odds)\n", formatPrice(a.Price), a.Price*100)
	b.WriteString(link(a.EventSlug))
	return b.String()
}

// FormatInsight renders a budgeted insight with its optional advisory.
func FormatInsight(in models.Insight) string {
	c := in.Candidate

	var b strings.Builder
	b.WriteString("⚡ <b>Daily Market Insight</b> ⚡\n")
	fmt.Fprintf(&b, "<i>(Topic: %s | Budget: %d/%d)</i>\n\n",
		html.EscapeString(strings.ToUpper(c.Category)), in.BudgetUsed, in.BudgetMax)
	fmt.Fprintf(&b, "<b>Event:</b> %s\n", html.EscapeString(c.EventTitle))
	fmt.Fprintf(&b, "<b>Market:</b> %s\n", html.EscapeString(c.MarketQuestion))
	fmt.Fprintf(&b, "<b>Activity:</b> %s\n", html.EscapeString(strings.Join(c.Metrics.Reasons, ", ")))
	fmt.Fprintf(&b, "<b>Vol:</b> $%s\n", humanize.Comma(int64(c.Metrics.TotalVolume+0.5)))
	fmt.Fprintf(&b, "<b>Price:</b> %s\n", formatPrice(c.Metrics.EndPrice))
	b.WriteString(link(c.EventSlug))

	if advisory := strings.TrimSpace(in.Advisory); advisory != "" {
		fmt.Fprintf(&b, "\n\n🤖 <b>AI Advisory:</b>\n%s", sanitizeAdvisory(advisory))
	}
	return b.String()
}

// FormatError renders a monitoring failure notice.
func FormatError(err error) string {
	return fmt.Sprintf("⚠️ <b>Monitoring error</b>\n<code>%s</code>", html.EscapeString(err.Error()))
}

// FormatRecovery renders a recovery notice.
func FormatRecovery(failureCount int) string {
	return fmt.Sprintf("✅ <b>Monitoring recovered</b> after %d consecutive failure(s)", failureCount)
}

func link(slug string) string {
	return fmt.Sprintf(`<b>Link:</b> <a href="%s">View Market</a>`, html.EscapeString(models.EventURL(slug)))
}

func formatPrice(p float64) string {
	return strconv.FormatFloat(p, 'f', -1, 64)
}

// sanitizeAdvisory escapes generated text, then restores the simple formatting tags
// Telegram accepts.
func sanitizeAdvisory(text string) string {
	out := html.EscapeString(text)
	for _, tag := range advisoryTags {
		out = strings.ReplaceAll(out, "&lt;"+tag+"&gt;", "<"+tag+">")
		out = strings.ReplaceAll(out, "&lt;/"+tag+"&gt;", "</"+tag+">")
	}
	return out
}
