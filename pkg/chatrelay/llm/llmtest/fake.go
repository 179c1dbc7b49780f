// Package llmtest provides a scriptable llm.Adapter for tests.
package llmtest

import (
	"context"
	"sync"

	"github.com/jholhewres/chatrelay/pkg/chatrelay/llm"
)

// Fake is an in-memory adapter. Reply decides the answer for each request;
// when nil, Fake answers "ok". Every request is recorded.
type Fake struct {
	Reply func(req llm.Request) (string, error)

	mu       sync.Mutex
	requests []llm.Request
}

// Replying returns a Fake that always answers reply.
func Replying(reply string) *Fake {
	return &Fake{Reply: func(llm.Request) (string, error) { return reply, nil }}
}

// Failing returns a Fake whose every call fails with err.
func Failing(err error) *Fake {
	return &Fake{Reply: func(llm.Request) (string, error) { return "", err }}
}

func (f *Fake) Name() string  { return "fake" }
func (f *Fake) Model() string { return "fake-model" }

func (f *Fake) Complete(ctx context.Context, req llm.Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	if f.Reply == nil {
		return "ok", nil
	}
	return f.Reply(req)
}

// Requests returns the recorded requests in call order.
func (f *Fake) Requests() []llm.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]llm.Request(nil), f.requests...)
}

// Calls returns the number of Complete calls so far.
func (f *Fake) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

var _ llm.Adapter = (*Fake)(nil)
