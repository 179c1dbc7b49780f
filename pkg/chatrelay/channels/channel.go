// Package channels defines the chat platform boundary. A Channel delivers
// inbound messages and sends replies back to a conversation.
package channels

import (
	"context"
	"errors"
	"time"
)

// Channel is implemented by every chat platform a bot can relay on.
type Channel interface {
	// Name returns the channel identifier (e.g. "discord").
	Name() string

	// Connect establishes the connection to the messaging platform.
	Connect(ctx context.Context) error

	// Disconnect gracefully closes the connection.
	Disconnect() error

	// Send sends a message to the conversation identified by to.
	Send(ctx context.Context, to string, message *OutgoingMessage) error

	// SendTyping shows a "typing..." indicator in the conversation.
	SendTyping(ctx context.Context, to string) error

	// Receive returns a Go channel that emits incoming messages.
	Receive() <-chan *IncomingMessage

	// SelfID returns the bot's own platform identity once connected.
	SelfID() string

	// IsConnected returns true if the channel is connected.
	IsConnected() bool

	// Health returns the channel health status.
	Health() HealthStatus
}

// IncomingMessage represents a message received from a channel.
type IncomingMessage struct {
	// ID is the unique message identifier in the source channel.
	ID string

	// Channel identifies the source channel (e.g. "discord").
	Channel string

	// From is the sender identifier on the platform.
	From string

	// FromName is the sender display name (if available).
	FromName string

	// FromBot reports whether the sender is an automated account.
	FromBot bool

	// ChatID is the conversation the message was posted in.
	ChatID string

	// IsGroup indicates whether the message is from a shared channel.
	IsGroup bool

	// Mentions lists the identities addressed by the message.
	Mentions []string

	// Content is the text content of the message.
	Content string

	// Timestamp is when the message was sent.
	Timestamp time.Time
}

// OutgoingMessage represents a message to be sent through a channel.
type OutgoingMessage struct {
	// Content is the text content of the message.
	Content string

	// ReplyTo contains the ID of the message to reply to.
	ReplyTo string
}

// HealthStatus represents the health state of a channel.
type HealthStatus struct {
	Connected     bool
	LastMessageAt time.Time
	ErrorCount    int
}

// Errors.
var (
	ErrChannelDisconnected = errors.New("channel is not connected")
	ErrConnectionFailed    = errors.New("failed to connect to channel")
)
