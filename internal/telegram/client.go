// Package telegram provides a client for sending notifications via Telegram Bot API.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/rewired-gh/polywhale/internal/logger"
	"github.com/rewired-gh/polywhale/internal/models"
)

// ErrNoDestination is returned when no chat is configured or none accepted a message.
var ErrNoDestination = errors.New("telegram: no chat accepted the message")

// Notifier is implemented by the Telegram client and by the log-only fallback.
type Notifier interface {
	SendWhale(ctx context.Context, alert models.WhaleAlert) error
	SendInsight(ctx context.Context, insight models.Insight) error
	SendError(ctx context.Context, cycleErr error) error
	SendRecovery(ctx context.Context, failureCount int) error
}

type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Client handles Telegram notifications to one or more chats.
type Client struct {
	bot            *tgbotapi.BotAPI
	sender         sender
	chatIDs        []int64
	maxRetries     int
	retryDelayBase time.Duration
}

// ParseChatIDs converts configured chat ids to integers.
func ParseChatIDs(chatIDs []string) ([]int64, error) {
	ids := make([]int64, 0, len(chatIDs))
	for _, s := range chatIDs {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid chat ID %q: %w", s, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// NewClient creates a new Telegram client.
func NewClient(botToken string, chatIDs []string, maxRetries int, retryDelayBase time.Duration) (*Client, error) {
	ids, err := ParseChatIDs(chatIDs)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, ErrNoDestination
	}

	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	c := newClient(bot, ids, maxRetries, retryDelayBase)
	c.bot = bot
	return c, nil
}

func newClient(s sender, chatIDs []int64, maxRetries int, retryDelayBase time.Duration) *Client {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelayBase <= 0 {
		retryDelayBase = time.Second
	}
	return &Client{
		sender:         s,
		chatIDs:        chatIDs,
		maxRetries:     maxRetries,
		retryDelayBase: retryDelayBase,
	}
}

// ListenForCommands starts a goroutine that polls for Telegram updates and handles bot commands.
// It returns immediately; the goroutine stops when ctx is cancelled.
func (c *Client) ListenForCommands(ctx context.Context) {
	if c.bot == nil {
		return
	}
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := c.bot.GetUpdatesChan(u)

	go func() {
		for {
			select {
			case <-ctx.Done():
				c.bot.StopReceivingUpdates()
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				if update.Message != nil && update.Message.IsCommand() {
					c.handleCommand(update.Message)
				}
			}
		}
	}()
}

func (c *Client) handleCommand(msg *tgbotapi.Message) {
	var text string
	switch msg.Command() {
	case "ping":
		text = "Pong"
	case "chatid":
		text = fmt.Sprintf("Chat ID: %d", msg.Chat.ID)
	default:
		return
	}
	reply := tgbotapi.NewMessage(msg.Chat.ID, text)
	c.sender.Send(reply) //nolint:errcheck
}

// Deliver sends an HTML message to every configured chat. It succeeds when at
// least one chat accepted the message.
func (c *Client) Deliver(ctx context.Context, text string) error {
	if len(c.chatIDs) == 0 {
		return ErrNoDestination
	}

	var errs []error
	delivered := 0
	for _, id := range c.chatIDs {
		if err := c.sendHTML(ctx, id, text); err != nil {
			logger.Error("Failed to send Telegram message to %d: %v", id, err)
			errs = append(errs, err)
			continue
		}
		delivered++
	}
	if delivered == 0 {
		return fmt.Errorf("%w: %w", ErrNoDestination, errors.Join(errs...))
	}
	return nil
}

// sendHTML sends an HTML message with linear-backoff retry.
func (c *Client) sendHTML(ctx context.Context, chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true

	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		if _, err := c.sender.Send(msg); err == nil {
			return nil
		} else {
			lastErr = err
		}
		if i == c.maxRetries-1 {
			break
		}
		select {
		case <-time.After(c.retryDelayBase * time.Duration(i+1)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("failed after %d retries: %w", c.maxRetries, lastErr)
}

// SendWhale delivers a whale alert.
func (c *Client) SendWhale(ctx context.Context, alert models.WhaleAlert) error {
	return c.Deliver(ctx, FormatWhale(alert))
}

// SendInsight delivers a budgeted market insight.
func (c *Client) SendInsight(ctx context.Context, insight models.Insight) error {
	return c.Deliver(ctx, FormatInsight(insight))
}

// SendError sends a monitoring error notification.
// Call this only on the first occurrence of a consecutive error sequence.
func (c *Client) SendError(ctx context.Context, cycleErr error) error {
	return c.Deliver(ctx, FormatError(cycleErr))
}

// SendRecovery sends a recovery notification after consecutive failures.
func (c *Client) SendRecovery(ctx context.Context, failureCount int) error {
	return c.Deliver(ctx, FormatRecovery(failureCount))
}
