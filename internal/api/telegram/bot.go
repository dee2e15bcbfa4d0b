package telegram

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"mnemosyne/internal/adapters/ai"
	redisrepo "mnemosyne/internal/repository/redis"
	"mnemosyne/internal/services/query"
	"mnemosyne/pkg/errors"
	"mnemosyne/pkg/logger"
)

// Bot is the chat surface over Telegram. Plain messages are answered as
// queries against the configured default context; a small command set covers
// the model catalog and help.
type Bot struct {
	api            *tgbotapi.BotAPI
	queries        *query.Service
	registry       *ai.Registry
	sessions       *redisrepo.ChatSessionRepository
	defaultContext uuid.UUID
	adminIDs       map[int64]bool
	rateLimiter    *rate.Limiter
	log            *logger.Logger

	mu      sync.Mutex
	running bool
}

// Config contains Telegram bot configuration
type Config struct {
	Token          string
	DefaultContext uuid.UUID
	AdminIDs       []int64
	Timeout        int // Update timeout in seconds
	HTTPTimeout    time.Duration
	RateLimitBurst int
	RateLimitRate  int
}

// NewBot creates a Telegram bot instance. sessions may be nil; without it
// every message is answered stateless.
func NewBot(cfg Config, queries *query.Service, registry *ai.Registry, sessions *redisrepo.ChatSessionRepository, log *logger.Logger) (*Bot, error) {
	if cfg.Token == "" {
		return nil, errors.Wrapf(errors.ErrInvalidInput, "telegram bot token is required")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60
	}
	if cfg.HTTPTimeout == 0 {
		cfg.HTTPTimeout = 90 * time.Second
	}
	if cfg.RateLimitBurst == 0 {
		cfg.RateLimitBurst = 30
	}
	if cfg.RateLimitRate == 0 {
		// Conservative: Telegram's limit is 30 msg/sec
		cfg.RateLimitRate = 20
	}

	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	api, err := tgbotapi.NewBotAPIWithClient(cfg.Token, tgbotapi.APIEndpoint, httpClient)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create telegram bot")
	}

	log.Infof("Authorized on account %s", api.Self.UserName)

	admins := make(map[int64]bool, len(cfg.AdminIDs))
	for _, id := range cfg.AdminIDs {
		admins[id] = true
	}

	return &Bot{
		api:            api,
		queries:        queries,
		registry:       registry,
		sessions:       sessions,
		defaultContext: cfg.DefaultContext,
		adminIDs:       admins,
		rateLimiter:    rate.NewLimiter(rate.Limit(cfg.RateLimitRate), cfg.RateLimitBurst),
		log:            log.With("component", "telegram_bot"),
	}, nil
}

// Start begins polling for updates. Blocks until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return errors.New("bot is already running")
	}
	b.running = true
	b.mu.Unlock()

	b.log.Infow("Starting Telegram bot in polling mode...")

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	b.log.Infow("✓ Telegram bot started, waiting for updates")

	for {
		select {
		case <-ctx.Done():
			b.log.Infow("Telegram bot stopping (context cancelled)")
			b.Stop()
			return nil

		case update := <-updates:
			go b.handleUpdate(ctx, update)
		}
	}
}

// Stop gracefully stops the bot
func (b *Bot) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.running {
		return
	}
	b.api.StopReceivingUpdates()
	b.running = false
	b.log.Infow("✓ Telegram bot stopped")
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	if update.Message == nil || update.Message.Text == "" {
		return
	}
	msg := update.Message

	if len(b.adminIDs) > 0 && !b.adminIDs[msg.From.ID] {
		b.log.Debugw("Ignoring message from unauthorized user",
			"from_id", msg.From.ID, "from", msg.From.UserName)
		return
	}

	if msg.IsCommand() {
		b.handleCommand(ctx, msg)
		return
	}

	b.answerQuery(ctx, msg)
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	switch msg.Command() {
	case "start", "help":
		b.reply(ctx, msg.Chat.ID,
			"Send me a question and I will answer it using the configured knowledge context.\n\n"+
				"/models — list available models and their usage\n"+
				"/reset — clear the conversation history\n"+
				"/help — this message")

	case "models":
		b.reply(ctx, msg.Chat.ID, b.modelsSummary())

	case "reset":
		if b.sessions != nil {
			if err := b.sessions.Clear(ctx, msg.Chat.ID); err != nil {
				b.log.Warnw("Failed to clear chat session", "chat_id", msg.Chat.ID, "error", err)
			}
		}
		b.reply(ctx, msg.Chat.ID, "Conversation history cleared.")

	default:
		b.reply(ctx, msg.Chat.ID, "Unknown command. Try /help.")
	}
}

func (b *Bot) answerQuery(ctx context.Context, msg *tgbotapi.Message) {
	if b.defaultContext == uuid.Nil {
		b.reply(ctx, msg.Chat.ID, "No knowledge context is configured for this bot.")
		return
	}

	queryCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	typing := tgbotapi.NewChatAction(msg.Chat.ID, tgbotapi.ChatTyping)
	_, _ = b.api.Request(typing)

	var history []ai.Message
	if b.sessions != nil {
		h, err := b.sessions.History(queryCtx, msg.Chat.ID)
		if err != nil {
			b.log.Warnw("Failed to load chat session", "chat_id", msg.Chat.ID, "error", err)
		} else {
			history = h
		}
	}

	result, err := b.queries.ProcessQuery(queryCtx, msg.Text, b.defaultContext, query.Options{
		History:         history,
		IncludeMetadata: true,
	})
	if err != nil {
		b.log.Warnw("Query via Telegram failed", "chat_id", msg.Chat.ID, "error", err)
		b.reply(ctx, msg.Chat.ID, "Sorry, I could not answer that: "+publicError(err))
		return
	}

	if b.sessions != nil {
		if err := b.sessions.Append(queryCtx, msg.Chat.ID, msg.Text, result.Response); err != nil {
			b.log.Warnw("Failed to store chat session", "chat_id", msg.Chat.ID, "error", err)
		}
	}

	text := result.Response
	if result.Metadata != nil {
		text += fmt.Sprintf("\n\n— %s · %s tokens · %s",
			result.ModelID,
			humanize.Comma(int64(result.Metadata.TotalTokens)),
			time.Duration(result.Metadata.ResponseTimeMs)*time.Millisecond)
	}
	b.reply(ctx, msg.Chat.ID, text)
}

func (b *Bot) modelsSummary() string {
	var sb strings.Builder
	sb.WriteString("Available models:\n")
	defaultID := b.registry.DefaultID()
	for _, snap := range b.registry.AllMetrics() {
		marker := ""
		if snap.ModelID == defaultID {
			marker = " (default)"
		}
		sb.WriteString(fmt.Sprintf("• %s%s — %d requests, %s tokens\n",
			snap.ModelID, marker, snap.RequestCount, humanize.Comma(snap.TotalTokens())))
	}
	return sb.String()
}

func (b *Bot) reply(ctx context.Context, chatID int64, text string) {
	if err := b.rateLimiter.Wait(ctx); err != nil {
		return
	}
	reply := tgbotapi.NewMessage(chatID, text)
	if _, err := b.api.Send(reply); err != nil {
		b.log.Warnw("Failed to send Telegram message", "chat_id", chatID, "error", err)
	}
}

func publicError(err error) string {
	var verr *errors.ValidationError
	if errors.As(err, &verr) {
		return verr.Message
	}
	switch {
	case errors.Is(err, errors.ErrNotFound):
		return "the configured context no longer exists"
	case errors.Is(err, errors.ErrRateLimitExceeded):
		return "the model is rate limited right now, try again in a minute"
	case errors.Is(err, errors.ErrTimeout):
		return "the model took too long to respond"
	default:
		return "an internal error occurred"
	}
}
