// Package analyst asks a text-generation service for a short trading advisory,
// optionally grounded in web search results.
package analyst

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rewired-gh/polywhale/internal/logger"
)

const (
	DefaultDeepSeekURL = "https://api.deepseek.com/chat/completions"
	DefaultTavilyURL   = "https://api.tavily.com/search"
	DefaultModel       = "deepseek-chat"

	searchResults = 3
	noNews        = "No recent news found."
)

// ErrNotConfigured is returned when no API key is set.
var ErrNotConfigured = errors.New("analyst: API key not configured")

// Config configures the analyst client.
type Config struct {
	DeepSeekAPIKey string
	DeepSeekURL    string
	Model          string
	Temperature    float64
	TavilyAPIKey   string
	TavilyURL      string
	Timeout        time.Duration
	SearchTimeout  time.Duration
}

// Client calls DeepSeek chat completions, enriched with Tavily search when configured.
type Client struct {
	config     Config
	httpClient *http.Client
}

// NewClient creates an analyst client.
func NewClient(config Config) *Client {
	if config.DeepSeekURL == "" {
		config.DeepSeekURL = DefaultDeepSeekURL
	}
	if config.TavilyURL == "" {
		config.TavilyURL = DefaultTavilyURL
	}
	if config.Model == "" {
		config.Model = DefaultModel
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.SearchTimeout <= 0 {
		config.SearchTimeout = 10 * time.Second
	}
	return &Client{config: config, httpClient: &http.Client{}}
}

// Enabled reports whether an advisory can be requested at all.
func (c *Client) Enabled() bool {
	return c.config.DeepSeekAPIKey != ""
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

type searchRequest struct {
	APIKey        string `json:"api_key"`
	Query         string `json:"query"`
	SearchDepth   string `json:"search_depth"`
	IncludeAnswer bool   `json:"include_answer"`
	MaxResults    int    `json:"max_results"`
}

type searchResponse struct {
	Results []struct {
		Title   string `json:"title"`
		Content string `json:"content"`
	} `json:"results"`
}

// Analyze returns an HTML-formatted advisory for the market.
func (c *Client) Analyze(ctx context.Context, question string, outcomes, prices []string) (string, error) {
	if !c.Enabled() {
		return "", ErrNotConfigured
	}

	news, err := c.Search(ctx, question)
	if err != nil {
		if !errors.Is(err, ErrNotConfigured) {
			logger.Warn("Web search failed, continuing without context: %v", err)
		}
		news = ""
	}
	if news == "" {
		news = noNews
	}

	body := chatRequest{
		Model:       c.config.Model,
		Messages:    []chatMessage{{Role: "user", Content: buildPrompt(question, outcomes, prices, news)}},
		Temperature: c.config.Temperature,
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	var resp chatResponse
	if err := c.postJSON(ctx, c.config.DeepSeekURL, c.config.DeepSeekAPIKey, body, &resp); err != nil {
		return "", fmt.Errorf("deepseek: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("deepseek: empty response")
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", errors.New("deepseek: empty advisory")
	}
	return text, nil
}

// Search returns up to three formatted web results for query.
func (c *Client) Search(ctx context.Context, query string) (string, error) {
	if c.config.TavilyAPIKey == "" {
		return "", ErrNotConfigured
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.SearchTimeout)
	defer cancel()

	body := searchRequest{
		APIKey:      c.config.TavilyAPIKey,
		Query:       query,
		SearchDepth: "basic",
		MaxResults:  searchResults,
	}
	var resp searchResponse
	if err := c.postJSON(ctx, c.config.TavilyURL, "", body, &resp); err != nil {
		return "", fmt.Errorf("tavily: %w", err)
	}

	var lines []string
	for i, r := range resp.Results {
		if i == searchResults {
			break
		}
		lines = append(lines, fmt.Sprintf("- %s: %s", r.Title, r.Content))
	}
	return strings.Join(lines, "\n"), nil
}

func (c *Client) postJSON(ctx context.Context, url, bearer string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func buildPrompt(question string, outcomes, prices []string, news string) string {
	var quotes []string
	for i, o := range outcomes {
		if i >= len(prices) {
			break
		}
		quotes = append(quotes, fmt.Sprintf("%s: $%s", o, prices[i]))
	}

	var b strings.Builder
	b.WriteString("You are a professional prediction market analyst.\n")
	fmt.Fprintf(&b, "Analyze the likelihood of the following event expiring in 24 hours: %q.\n\n", question)
	fmt.Fprintf(&b, "Current Market Prices:\n%s\n\n", strings.Join(quotes, ", "))
	fmt.Fprintf(&b, "Recent News Context:\n%s\n\n", news)
	b.WriteString("Task:\n")
	b.WriteString("1. Analyze the news and current situation.\n")
	b.WriteString("2. Recommend the outcome most likely mispriced at the current price.\n")
	b.WriteString("3. Calculate the profit of a $1000 bet on that outcome if it wins: (1000 / Price) - 1000.\n\n")
	b.WriteString("Output Format (Telegram HTML, no other tags):\n")
	b.WriteString("<b>Analysis:</b> [Brief reasoning]\n")
	b.WriteString("<b>Recommendation:</b> [BUY YES/NO]\n")
	b.WriteString("<b>Risk:</b> [High/Medium/Low]\n")
	b.WriteString("<b>Potential Win:</b> $[Amount] (ROI: [Percent]%)\n")
	return b.String()
}
