package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jholhewres/chatrelay/pkg/chatrelay/history"
)

// Message is one inbound user message.
type Message struct {
	// Speaker is the display name of the author, used for speaker tags.
	Speaker string

	// Content is the message text as typed.
	Content string
}

// Chat is the per-user handle onto an adapter. It is bound to the system
// prompt and to the user's History, which it reads to build each request
// and extends after each successful reply.
//
// Chat does not serialize Send calls; callers hold the user's lock.
type Chat struct {
	adapter     Adapter
	system      string
	history     *history.History
	tagSpeakers bool
	timeout     time.Duration
}

// ChatOption customizes a Chat.
type ChatOption func(*Chat)

// WithSpeakerTags prefixes the outgoing user turn with "[Speaker]: " so the
// model can tell speakers apart in shared channels. The stored turn keeps
// the raw content.
func WithSpeakerTags(on bool) ChatOption {
	return func(c *Chat) { c.tagSpeakers = on }
}

// WithTimeout bounds each completion call.
func WithTimeout(d time.Duration) ChatOption {
	return func(c *Chat) { c.timeout = d }
}

// NewChat returns a handle seeded with h.
func NewChat(adapter Adapter, system string, h *history.History, opts ...ChatOption) *Chat {
	c := &Chat{
		adapter: adapter,
		system:  system,
		history: h,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// History returns the history the chat appends to.
func (c *Chat) History() *history.History { return c.history }

// Adapter returns the backend the chat sends to.
func (c *Chat) Adapter() Adapter { return c.adapter }

// Send asks the model to answer msg. On success the raw user turn and the
// reply are appended to the history together; on failure the history is
// left untouched.
func (c *Chat) Send(ctx context.Context, msg Message) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req := Request{
		System: c.system,
		Turns:  append(c.history.Turns(), history.UserTurn(c.outgoing(msg))),
	}

	reply, err := c.adapter.Complete(ctx, req)
	if err != nil {
		return "", fmt.Errorf("%s completion: %w", c.adapter.Name(), err)
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return "", fmt.Errorf("%s completion: %w", c.adapter.Name(), ErrEmptyReply)
	}

	c.history.Append(history.UserTurn(msg.Content), history.AssistantTurn(reply))
	return reply, nil
}

func (c *Chat) outgoing(msg Message) string {
	if c.tagSpeakers && msg.Speaker != "" {
		return "[" + msg.Speaker + "]: " + msg.Content
	}
	return msg.Content
}
