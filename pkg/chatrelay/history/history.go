// Package history holds the bounded, per-user conversation log and the
// stores that persist it between process runs.
//
// A History keeps at most 2*maxPairs turns. Every append drops the oldest
// turns until the bound holds again, so appending a user/assistant pair in
// one call keeps whole pairs as long as the history started out even.
package history

import (
	"fmt"
	"sync"
)

// Role identifies who produced a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the two persisted roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Turn is one message of a conversation. The JSON field names and role
// values are the persisted format.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// UserTurn returns a turn spoken by the user.
func UserTurn(content string) Turn {
	return Turn{Role: RoleUser, Content: content}
}

// AssistantTurn returns a turn spoken by the model.
func AssistantTurn(content string) Turn {
	return Turn{Role: RoleAssistant, Content: content}
}

// Validate checks every turn for a known role.
func Validate(turns []Turn) error {
	for i, t := range turns {
		if !t.Role.Valid() {
			return fmt.Errorf("turn %d: invalid role %q", i, t.Role)
		}
	}
	return nil
}

// Truncate returns a copy of the most recent limit turns, oldest first.
// A limit <= 0 disables the bound. When len(turns) is odd the window may
// start on an assistant turn; the cut is always made at the front.
func Truncate(turns []Turn, limit int) []Turn {
	start := 0
	if limit > 0 && len(turns) > limit {
		start = len(turns) - limit
	}
	out := make([]Turn, len(turns)-start)
	copy(out, turns[start:])
	return out
}

// History is a bounded, ordered conversation log owned by one user.
// It is safe for concurrent use.
type History struct {
	turns []Turn
	limit int
	mu    sync.RWMutex
}

// New returns a history seeded with turns and bounded to 2*maxPairs
// entries. Seed turns beyond the bound are dropped from the front.
func New(turns []Turn, maxPairs int) *History {
	limit := 0
	if maxPairs > 0 {
		limit = 2 * maxPairs
	}
	return &History{
		turns: Truncate(turns, limit),
		limit: limit,
	}
}

// Append adds turns at the end and enforces the bound.
func (h *History) Append(turns ...Turn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.turns = append(h.turns, turns...)
	if h.limit > 0 && len(h.turns) > h.limit {
		h.turns = Truncate(h.turns, h.limit)
	}
}

// Turns returns a copy of the retained turns, oldest first.
func (h *History) Turns() []Turn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Turn, len(h.turns))
	copy(out, h.turns)
	return out
}

// Len returns the number of retained turns.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.turns)
}

// Limit returns the maximum number of turns kept (0 = unbounded).
func (h *History) Limit() int {
	return h.limit
}

// Reset drops every turn.
func (h *History) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.turns = nil
}
