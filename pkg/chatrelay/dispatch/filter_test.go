package dispatch

import "testing"

func TestFilterAccept(t *testing.T) {
	t.Parallel()

	const self = "999"

	tests := []struct {
		name   string
		filter Filter
		event  Event
		want   bool
	}{
		{
			name:   "always-listen channel match without mention",
			filter: Filter{SelfID: self, AlwaysListenChannel: "123"},
			event:  Event{AuthorID: "1", ChannelID: "123"},
			want:   true,
		},
		{
			name:   "no always-listen channel and no mention",
			filter: Filter{SelfID: self},
			event:  Event{AuthorID: "1", ChannelID: "123"},
			want:   false,
		},
		{
			name:   "other channel without mention",
			filter: Filter{SelfID: self, AlwaysListenChannel: "123"},
			event:  Event{AuthorID: "1", ChannelID: "1234"},
			want:   false,
		},
		{
			name:   "mentioned in any channel",
			filter: Filter{SelfID: self},
			event:  Event{AuthorID: "1", ChannelID: "555", Mentions: []string{"42", self}},
			want:   true,
		},
		{
			name:   "mention of someone else",
			filter: Filter{SelfID: self},
			event:  Event{AuthorID: "1", Mentions: []string{"42"}},
			want:   false,
		},
		{
			name:   "own message with mention",
			filter: Filter{SelfID: self, AlwaysListenChannel: "123"},
			event:  Event{AuthorID: self, ChannelID: "123", Mentions: []string{self}},
			want:   false,
		},
		{
			name:   "other bot allowed by default",
			filter: Filter{SelfID: self},
			event:  Event{AuthorID: "7", AuthorIsBot: true, Mentions: []string{self}},
			want:   true,
		},
		{
			name:   "other bot ignored",
			filter: Filter{SelfID: self, IgnoreBots: true},
			event:  Event{AuthorID: "7", AuthorIsBot: true, Mentions: []string{self}},
			want:   false,
		},
		{
			name:   "unknown self never matches empty mention",
			filter: Filter{},
			event:  Event{AuthorID: "", Mentions: []string{""}},
			want:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.filter.Accept(tt.event); got != tt.want {
				t.Errorf("Accept(%+v) = %v, want %v", tt.event, got, tt.want)
			}
		})
	}
}
