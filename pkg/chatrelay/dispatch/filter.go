// Package dispatch decides which inbound messages a bot answers.
package dispatch

// Event is the part of an inbound message the filter looks at.
type Event struct {
	AuthorID    string
	AuthorIsBot bool
	ChannelID   string
	Mentions    []string // user ids addressed by the message
}

// Filter is the trigger rule of one bot profile. Mentions only count once
// SelfID is set.
type Filter struct {
	// SelfID is the bot's own platform identity.
	SelfID string

	// AlwaysListenChannel, when set, makes every message in that channel a
	// trigger. Compared exactly.
	AlwaysListenChannel string

	// IgnoreBots rejects messages authored by other bots.
	IgnoreBots bool
}

// Accept reports whether ev should be answered. It has no side effects.
func (f Filter) Accept(ev Event) bool {
	if f.SelfID != "" && ev.AuthorID == f.SelfID {
		return false
	}
	if f.IgnoreBots && ev.AuthorIsBot {
		return false
	}
	if f.mentioned(ev.Mentions) {
		return true
	}
	return f.AlwaysListenChannel != "" && ev.ChannelID == f.AlwaysListenChannel
}

func (f Filter) mentioned(ids []string) bool {
	if f.SelfID == "" {
		return false
	}
	for _, id := range ids {
		if id == f.SelfID {
			return true
		}
	}
	return false
}
