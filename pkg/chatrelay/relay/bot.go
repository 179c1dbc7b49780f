// Package relay runs one bot profile: it reads messages from a channel,
// filters them, answers through the user's chat session and persists the
// conversation after every successful exchange.
package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jholhewres/chatrelay/pkg/chatrelay/channels"
	"github.com/jholhewres/chatrelay/pkg/chatrelay/config"
	"github.com/jholhewres/chatrelay/pkg/chatrelay/dispatch"
	"github.com/jholhewres/chatrelay/pkg/chatrelay/history"
	"github.com/jholhewres/chatrelay/pkg/chatrelay/llm"
	"github.com/jholhewres/chatrelay/pkg/chatrelay/session"
)

// DefaultTypingInterval refreshes the typing indicator before Discord's
// ten-second expiry.
const DefaultTypingInterval = 8 * time.Second

// Options wires a Bot.
type Options struct {
	Name    string
	Channel channels.Channel // nil for local use through Handle
	Store   history.Store
	Adapter llm.Adapter
	Prompt  string

	MaxHistory     int
	MaxSessions    int
	SessionTTL     time.Duration
	RequestTimeout time.Duration
	SpeakerTags    bool

	AlwaysListenChannel string
	IgnoreBots          bool

	Typing         bool
	TypingInterval time.Duration

	FallbackMessage string
	ErrorDetail     bool

	// ReplyToMessage sends replies as Discord replies referencing the
	// triggering message instead of plain channel messages.
	ReplyToMessage bool

	Logger *slog.Logger
}

// Bot relays one profile's conversations.
type Bot struct {
	name     string
	channel  channels.Channel
	store    history.Store
	cache    *session.Cache
	adapter  llm.Adapter
	logger   *slog.Logger
	typing   time.Duration
	fallback string
	detail   bool
	replyTo  bool

	filterMu sync.RWMutex
	filter   dispatch.Filter

	wg sync.WaitGroup
}

// New builds a bot from opts. The bot owns opts.Store.
func New(opts Options) *Bot {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("bot", opts.Name)

	typing := time.Duration(0)
	if opts.Typing {
		typing = opts.TypingInterval
		if typing <= 0 {
			typing = DefaultTypingInterval
		}
	}

	chatOpts := []llm.ChatOption{
		llm.WithSpeakerTags(opts.SpeakerTags),
		llm.WithTimeout(opts.RequestTimeout),
	}
	newChat := func(h *history.History) *llm.Chat {
		return llm.NewChat(opts.Adapter, opts.Prompt, h, chatOpts...)
	}

	return &Bot{
		name:    opts.Name,
		channel: opts.Channel,
		store:   opts.Store,
		adapter: opts.Adapter,
		cache: session.NewCache(opts.Store, newChat, session.Config{
			MaxHistory:  opts.MaxHistory,
			MaxSessions: opts.MaxSessions,
			TTL:         opts.SessionTTL,
		}, logger.With("component", "session")),
		logger:   logger.With("component", "relay"),
		typing:   typing,
		fallback: opts.FallbackMessage,
		detail:   opts.ErrorDetail,
		replyTo:  opts.ReplyToMessage,
		filter: dispatch.Filter{
			AlwaysListenChannel: opts.AlwaysListenChannel,
			IgnoreBots:          opts.IgnoreBots,
		},
	}
}

// Name returns the profile name.
func (b *Bot) Name() string { return b.name }

// Sessions returns the bot's session cache.
func (b *Bot) Sessions() *session.Cache { return b.cache }

// Run connects the channel and relays messages until ctx is cancelled or
// the channel's message stream closes. Each accepted message is handled in
// its own goroutine; Run waits for them before returning.
func (b *Bot) Run(ctx context.Context) error {
	if b.channel == nil {
		return errors.New("relay: bot has no channel")
	}
	if err := b.channel.Connect(ctx); err != nil {
		return fmt.Errorf("connecting %s: %w", b.channel.Name(), err)
	}
	defer func() {
		if err := b.channel.Disconnect(); err != nil {
			b.logger.Warn("disconnect failed", "error", err)
		}
	}()

	b.filterMu.Lock()
	b.filter.SelfID = b.channel.SelfID()
	b.filterMu.Unlock()

	if err := b.cache.StartPruner(ctx); err != nil {
		return err
	}
	defer func() {
		h := b.channel.Health()
		b.logger.Info("bot stopped",
			"connected", h.Connected,
			"last_message_at", h.LastMessageAt,
			"channel_errors", h.ErrorCount,
			"sessions", b.cache.Len(),
		)
	}()

	b.logger.Info("bot running",
		"channel", b.channel.Name(),
		"provider", b.adapter.Name(),
		"model", b.adapter.Model(),
		"self_id", b.channel.SelfID(),
	)

	defer b.wg.Wait()
	for {
		select {
		case msg, ok := <-b.channel.Receive():
			if !ok {
				return nil
			}
			if !b.Accept(msg) {
				continue
			}
			b.wg.Add(1)
			go func() {
				defer b.wg.Done()
				b.process(ctx, msg)
			}()

		case <-ctx.Done():
			return nil
		}
	}
}

// Accept reports whether msg should be answered.
func (b *Bot) Accept(msg *channels.IncomingMessage) bool {
	if strings.TrimSpace(msg.Content) == "" {
		return false
	}
	b.filterMu.RLock()
	f := b.filter
	b.filterMu.RUnlock()

	return f.Accept(dispatch.Event{
		AuthorID:    msg.From,
		AuthorIsBot: msg.FromBot,
		ChannelID:   msg.ChatID,
		Mentions:    msg.Mentions,
	})
}

// process answers one accepted message on the channel.
func (b *Bot) process(ctx context.Context, msg *channels.IncomingMessage) {
	start := time.Now()
	logger := b.logger.With(
		"event_id", uuid.NewString(),
		"chat_id", msg.ChatID,
		"from", msg.From,
		"msg_id", msg.ID,
	)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic in message handler",
				"panic", r,
				"stack", string(debug.Stack()),
			)
		}
	}()

	attrs := []any{"group", msg.IsGroup, "content_preview", truncate(msg.Content, 50)}
	if !msg.Timestamp.IsZero() {
		attrs = append(attrs, "queued_ms", start.Sub(msg.Timestamp).Milliseconds())
	}
	logger.Info("incoming message", attrs...)

	stopTyping := b.startTyping(ctx, msg.ChatID, logger)
	reply := b.handle(ctx, msg, logger)
	stopTyping()

	if !b.channel.IsConnected() {
		logger.Warn("channel disconnected, reply dropped")
		return
	}

	out := &channels.OutgoingMessage{Content: reply}
	if b.replyTo {
		out.ReplyTo = msg.ID
	}
	if err := b.channel.Send(ctx, msg.ChatID, out); err != nil {
		h := b.channel.Health()
		logger.Error("failed to deliver reply",
			"error", err,
			"connected", h.Connected,
			"channel_errors", h.ErrorCount,
		)
		return
	}
	logger.Info("reply delivered", "duration_ms", time.Since(start).Milliseconds())
}

// Handle answers msg and returns the text to deliver: the model's reply,
// or the fallback message when the completion fails.
func (b *Bot) Handle(ctx context.Context, msg *channels.IncomingMessage) string {
	return b.handle(ctx, msg, b.logger.With("event_id", uuid.NewString(), "from", msg.From))
}

func (b *Bot) handle(ctx context.Context, msg *channels.IncomingMessage, logger *slog.Logger) string {
	unlock := b.cache.Lock(msg.From)
	defer unlock()

	entry := b.cache.Resolve(ctx, msg.From)

	reply, err := entry.Chat.Send(ctx, llm.Message{Speaker: msg.FromName, Content: msg.Content})
	if err != nil {
		logger.Error("completion failed", "error", err)
		return b.fallbackFor(err)
	}

	if err := b.store.Save(ctx, msg.From, entry.History.Turns()); err != nil {
		logger.Error("history not persisted, delivering reply anyway", "error", err)
	}

	logger.Debug("completion succeeded", "turns", entry.History.Len(), "reply_len", len(reply))
	return reply
}

func (b *Bot) fallbackFor(err error) string {
	if b.detail {
		return fmt.Sprintf("An error occurred.\nDetails: %v", err)
	}
	if b.fallback == "" {
		return config.DefaultFallbackMessage
	}
	return b.fallback
}

// startTyping shows the typing indicator until the returned func is called.
func (b *Bot) startTyping(ctx context.Context, chatID string, logger *slog.Logger) func() {
	if b.typing <= 0 || b.channel == nil {
		return func() {}
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(b.typing)
		defer ticker.Stop()
		for {
			if err := b.channel.SendTyping(ctx, chatID); err != nil && ctx.Err() == nil {
				logger.Debug("typing indicator failed", "error", err)
			}
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

// Reset forgets userID's conversation, both persisted and live.
func (b *Bot) Reset(ctx context.Context, userID string) error {
	unlock := b.cache.Lock(userID)
	defer unlock()

	b.cache.Evict(userID)
	if err := b.store.Delete(ctx, userID); err != nil {
		return fmt.Errorf("deleting history of %s: %w", userID, err)
	}
	b.logger.Info("conversation reset", "user_id", userID)
	return nil
}

// Close releases the history store.
func (b *Bot) Close() error {
	b.wg.Wait()
	return b.store.Close()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
