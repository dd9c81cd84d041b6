// Package telegram implements the bot Adapter for Telegram via long polling.
package telegram

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/oxang/groupforge/internal/bot"
)

// updateTimeout is the long-poll timeout in seconds.
const updateTimeout = 30

// api abstracts the tgbotapi.BotAPI methods we use, enabling test mocks.
type api interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	StopReceivingUpdates()
	Self() tgbotapi.User
}

// realAPI wraps *tgbotapi.BotAPI to implement the api interface.
type realAPI struct {
	b *tgbotapi.BotAPI
}

func (r *realAPI) GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return r.b.GetUpdatesChan(config)
}
func (r *realAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	return r.b.Send(c)
}
func (r *realAPI) StopReceivingUpdates() {
	r.b.StopReceivingUpdates()
}
func (r *realAPI) Self() tgbotapi.User {
	return r.b.Self
}

// Adapter implements bot.Adapter for Telegram. Operators talk to the bot in
// private chats; everything moves as plain text.
type Adapter struct {
	api       api
	botToken  string
	mu        sync.Mutex
	botID     int64
	connected bool
	closed    bool
	inbound   chan bot.InboundMessage
	stop      chan struct{}
}

// AdapterOpts holds parameters for creating a Telegram Adapter.
type AdapterOpts struct {
	BotToken string
	// For testing: inject a mock API instead of the real Bot API client.
	API api
}

// New creates a Telegram Adapter.
func New(opts AdapterOpts) (*Adapter, error) {
	if opts.API == nil && opts.BotToken == "" {
		return nil, fmt.Errorf("telegram: bot token is required")
	}
	return &Adapter{
		api:      opts.API,
		botToken: opts.BotToken,
		inbound:  make(chan bot.InboundMessage, 100),
		stop:     make(chan struct{}),
	}, nil
}

// Connect authenticates against the Bot API.
func (a *Adapter) Connect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return fmt.Errorf("telegram: adapter already closed")
	}
	if a.connected {
		return nil
	}

	if a.api == nil {
		b, err := tgbotapi.NewBotAPI(a.botToken)
		if err != nil {
			return fmt.Errorf("telegram: authenticate: %w", err)
		}
		a.api = &realAPI{b: b}
	}

	self := a.api.Self()
	a.botID = self.ID
	if self.UserName != "" {
		log.Printf("telegram: connected as @%s (ID: %d)", self.UserName, self.ID)
	}

	a.connected = true
	return nil
}

// Listen starts consuming the update long poll and returns the inbound
// channel. Must be called after Connect.
func (a *Adapter) Listen(ctx context.Context) (<-chan bot.InboundMessage, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.connected {
		return nil, fmt.Errorf("telegram: not connected")
	}

	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = updateTimeout
	updates := a.api.GetUpdatesChan(cfg)

	go a.pump(ctx, updates)
	return a.inbound, nil
}

// pump converts Bot API updates into inbound messages until the update
// channel closes or the context ends. As the only sender it also owns
// closing the inbound channel.
func (a *Adapter) pump(ctx context.Context, updates tgbotapi.UpdatesChannel) {
	defer close(a.inbound)
	for {
		select {
		case <-ctx.Done():
			return
		case <-a.stop:
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			msg := a.convert(update)
			if msg == nil {
				continue
			}
			select {
			case a.inbound <- *msg:
			case <-ctx.Done():
				return
			case <-a.stop:
				return
			}
		}
	}
}

// convert turns an update into an InboundMessage, or nil for updates the
// controller has no use for.
func (a *Adapter) convert(update tgbotapi.Update) *bot.InboundMessage {
	m := update.Message
	if m == nil || m.From == nil || m.From.IsBot {
		return nil
	}

	a.mu.Lock()
	botID := a.botID
	a.mu.Unlock()
	if botID != 0 && m.From.ID == botID {
		return nil
	}

	return &bot.InboundMessage{
		Platform:  "telegram",
		ChatID:    strconv.FormatInt(m.Chat.ID, 10),
		UserID:    m.From.ID,
		UserName:  m.From.UserName,
		Text:      m.Text,
		Timestamp: m.Time(),
	}
}

// Send delivers plain text to a chat. The ChatID must be a numeric Telegram
// chat ID.
func (a *Adapter) Send(ctx context.Context, msg bot.OutboundMessage) error {
	a.mu.Lock()
	if !a.connected {
		a.mu.Unlock()
		return fmt.Errorf("telegram: not connected")
	}
	a.mu.Unlock()

	chatID, err := strconv.ParseInt(msg.ChatID, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram: bad chat id %q: %w", msg.ChatID, err)
	}

	if _, err := a.api.Send(tgbotapi.NewMessage(chatID, msg.Text)); err != nil {
		return fmt.Errorf("telegram: send message: %w", err)
	}
	return nil
}

// Close stops the long poll. The pump goroutine closes the inbound channel
// on its way out, so no send can land on a closed channel.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	a.connected = false
	close(a.stop)
	if a.api != nil {
		a.api.StopReceivingUpdates()
	}
	return nil
}

// BotUserID returns the bot's Telegram user ID (available after Connect).
func (a *Adapter) BotUserID() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.botID
}
