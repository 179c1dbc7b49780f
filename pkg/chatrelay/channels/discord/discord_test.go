package discord

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"

	"github.com/jholhewres/chatrelay/pkg/chatrelay/channels"
)

func TestSplitMessage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		text       string
		maxLen     int
		wantChunks int
	}{
		{"short", "hello", 10, 1},
		{"exact", strings.Repeat("a", 10), 10, 1},
		{"hard split", strings.Repeat("a", 25), 10, 3},
		{"newline split", strings.Repeat("a", 8) + "\n" + strings.Repeat("b", 8), 10, 2},
		{"multibyte", strings.Repeat("あ", 25), 10, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			chunks := splitMessage(tt.text, tt.maxLen)
			if len(chunks) != tt.wantChunks {
				t.Fatalf("got %d chunks, want %d: %q", len(chunks), tt.wantChunks, chunks)
			}
			if joined := strings.Join(chunks, ""); joined != tt.text {
				t.Errorf("chunks do not reassemble the text")
			}
			for i, c := range chunks {
				if n := utf8.RuneCountInString(c); n > tt.maxLen {
					t.Errorf("chunk %d has %d characters", i, n)
				}
				if !utf8.ValidString(c) {
					t.Errorf("chunk %d is not valid UTF-8", i)
				}
			}
		})
	}
}

func TestSplitMessage_CutsAfterNewline(t *testing.T) {
	t.Parallel()

	text := strings.Repeat("a", 8) + "\n" + strings.Repeat("b", 8)
	chunks := splitMessage(text, 10)
	if chunks[0] != strings.Repeat("a", 8)+"\n" {
		t.Errorf("first chunk = %q", chunks[0])
	}
}

func TestDisplayName(t *testing.T) {
	t.Parallel()

	user := &discordgo.User{Username: "alice01", GlobalName: "Alice"}
	tests := []struct {
		name   string
		member *discordgo.Member
		user   *discordgo.User
		want   string
	}{
		{"nickname wins", &discordgo.Member{Nick: "Ally"}, user, "Ally"},
		{"global name", &discordgo.Member{}, user, "Alice"},
		{"direct message", nil, user, "Alice"},
		{"username only", nil, &discordgo.User{Username: "bob"}, "bob"},
	}
	for _, tt := range tests {
		if got := displayName(tt.member, tt.user); got != tt.want {
			t.Errorf("%s: displayName = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestToIncoming(t *testing.T) {
	t.Parallel()

	msg := &discordgo.Message{
		ID:        "m1",
		ChannelID: "123",
		GuildID:   "g1",
		Content:   "<@999> hello",
		Author:    &discordgo.User{ID: "42", Username: "alice", Bot: true},
		Mentions:  []*discordgo.User{{ID: "999"}, nil},
	}

	in := toIncoming(msg)
	if in.From != "42" || in.ChatID != "123" || in.Content != "<@999> hello" {
		t.Errorf("unexpected message: %+v", in)
	}
	if !in.IsGroup || !in.FromBot {
		t.Errorf("IsGroup=%v FromBot=%v", in.IsGroup, in.FromBot)
	}
	if len(in.Mentions) != 1 || in.Mentions[0] != "999" {
		t.Errorf("Mentions = %v", in.Mentions)
	}
	if in.FromName != "alice" {
		t.Errorf("FromName = %q", in.FromName)
	}
}

func TestSelfIDBeforeConnect(t *testing.T) {
	t.Parallel()

	d := New(Config{}, nil)
	if d.SelfID() != "" {
		t.Errorf("SelfID = %q before connect", d.SelfID())
	}
	if d.IsConnected() {
		t.Error("IsConnected before connect")
	}
}

func TestOpenError_KeepsBothChains(t *testing.T) {
	t.Parallel()

	gatewayErr := errors.New("websocket: close 4004: Authentication failed")
	err := openError(gatewayErr)

	if !errors.Is(err, channels.ErrConnectionFailed) {
		t.Errorf("errors.Is(ErrConnectionFailed) = false for %v", err)
	}
	if !errors.Is(err, gatewayErr) {
		t.Errorf("errors.Is(gateway error) = false for %v", err)
	}
}

func TestHealthAndSendBeforeConnect(t *testing.T) {
	t.Parallel()

	d := New(Config{Token: "t"}, nil)
	if d.IsConnected() {
		t.Error("IsConnected before Connect")
	}
	h := d.Health()
	if h.Connected || h.ErrorCount != 0 || !h.LastMessageAt.IsZero() {
		t.Errorf("Health = %+v", h)
	}

	err := d.Send(context.Background(), "c", &channels.OutgoingMessage{Content: "hi"})
	if !errors.Is(err, channels.ErrChannelDisconnected) {
		t.Errorf("Send before Connect = %v", err)
	}
}
