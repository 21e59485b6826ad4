// Package telegram connects the orchestrator to a Telegram chat: a
// rate-limited client, a status channel that edits one message in place,
// a video deliverer, and the owner-only command bot.
package telegram

import (
	"context"
	"fmt"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Sender is the subset of *tgbotapi.BotAPI used by this package.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Bot API limits: about 30 messages per second overall and one per second
// per chat, with short bursts tolerated.
const (
	globalPerSecond  = 30
	chatInterval     = time.Second
	defaultChatBurst = 3
)

// Client wraps a Sender with a global and a per-chat rate limiter.
type Client struct {
	api       Sender
	global    *rate.Limiter
	chatLimit rate.Limit
	chatBurst int

	mu    sync.Mutex
	chats map[int64]*rate.Limiter
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithRateLimits overrides the default Bot API limits.
func WithRateLimits(global, perChat rate.Limit, burst int) ClientOption {
	return func(c *Client) {
		c.global = rate.NewLimiter(global, burst)
		c.chatLimit = perChat
		c.chatBurst = burst
	}
}

func NewClient(api Sender, opts ...ClientOption) *Client {
	c := &Client{
		api:       api,
		global:    rate.NewLimiter(rate.Limit(globalPerSecond), globalPerSecond),
		chatLimit: rate.Every(chatInterval),
		chatBurst: defaultChatBurst,
		chats:     make(map[int64]*rate.Limiter),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) chatLimiter(chatID int64) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.chats[chatID]
	if !ok {
		l = rate.NewLimiter(c.chatLimit, c.chatBurst)
		c.chats[chatID] = l
	}
	return l
}

func (c *Client) wait(ctx context.Context, chatID int64) error {
	if err := c.global.Wait(ctx); err != nil {
		return fmt.Errorf("global rate limiter: %w", err)
	}
	if err := c.chatLimiter(chatID).Wait(ctx); err != nil {
		return fmt.Errorf("chat rate limiter: %w", err)
	}
	return nil
}

// Send waits for both limiters and sends msg.
func (c *Client) Send(ctx context.Context, chatID int64, msg tgbotapi.Chattable) (tgbotapi.Message, error) {
	if err := c.wait(ctx, chatID); err != nil {
		return tgbotapi.Message{}, err
	}
	sent, err := c.api.Send(msg)
	if err != nil {
		return tgbotapi.Message{}, fmt.Errorf("telegram send: %w", err)
	}
	return sent, nil
}

// Request is Send for methods that do not return a message.
func (c *Client) Request(ctx context.Context, chatID int64, req tgbotapi.Chattable) error {
	if err := c.wait(ctx, chatID); err != nil {
		return err
	}
	if _, err := c.api.Request(req); err != nil {
		return fmt.Errorf("telegram request: %w", err)
	}
	return nil
}

// Reply sends a plain text message and logs failures.
func (c *Client) Reply(ctx context.Context, chatID int64, text string) {
	if _, err := c.Send(ctx, chatID, tgbotapi.NewMessage(chatID, text)); err != nil {
		log.Error().Err(err).Int64("chat", chatID).Msg("Failed to send reply")
	}
}
