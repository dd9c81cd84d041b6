// Package bot hosts the conversational front-end: the chat platform Adapter
// contract, the per-operator login state machine, and the daemon that pumps
// inbound messages through it.
package bot

import (
	"context"
	"time"
)

// Adapter is the interface platform-specific front-ends must satisfy. Each
// adapter handles connection management and message sending/receiving for a
// single chat platform.
type Adapter interface {
	// Connect establishes a connection to the chat platform.
	Connect(ctx context.Context) error

	// Listen returns a channel of inbound messages from the platform.
	// The channel is closed when the context is cancelled or the adapter
	// is closed. Listen must only be called after Connect.
	Listen(ctx context.Context) (<-chan InboundMessage, error)

	// Send delivers an outbound message to the platform.
	Send(ctx context.Context, msg OutboundMessage) error

	// Close gracefully shuts down the adapter connection.
	Close() error
}

// InboundMessage represents a message received from the chat platform.
type InboundMessage struct {
	Platform  string    // e.g. "telegram", "discord"
	ChatID    string    // platform-specific conversation identifier
	UserID    int64     // numeric operator identity
	UserName  string    // human-readable username
	Text      string    // raw message text
	Timestamp time.Time // when the message was sent
}

// OutboundMessage represents a message to be sent to the chat platform.
type OutboundMessage struct {
	ChatID string // target conversation
	Text   string // plain message text
}

// BotUserIDer is an optional interface that adapters can implement to
// expose the bot's own user ID. This enables self-message filtering.
type BotUserIDer interface {
	BotUserID() int64
}
