// Package fake provides a scripted llm.Provider for tests and offline runs.
package fake

import (
	"context"
	"errors"
	"sync"

	"github.com/halldyll/recall-go/pkg/llm"
)

// ErrExhausted is returned when no scripted reply remains and no fallback
// is set.
var ErrExhausted = errors.New("fake llm: no scripted reply left")

// Reply is one scripted answer.
type Reply struct {
	Text string
	Err  error
}

// Provider replays scripted replies in order and records every request.
type Provider struct {
	mu       sync.Mutex
	replies  []Reply
	fallback *Reply
	calls    [][]llm.Message
	options  []llm.GenerateOptions
	closed   bool
}

// New returns a provider that answers with replies in order.
func New(replies ...Reply) *Provider {
	return &Provider{replies: replies}
}

// Always returns a provider that gives the same reply forever.
func Always(r Reply) *Provider {
	return &Provider{fallback: &r}
}

// Push appends scripted replies.
func (p *Provider) Push(replies ...Reply) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.replies = append(p.replies, replies...)
}

// Generate implements llm.Provider.
func (p *Provider) Generate(ctx context.Context, prompt string, opts ...llm.GenerateOption) (string, error) {
	return p.GenerateWithMessages(ctx, []llm.Message{{Role: llm.RoleUser, Content: prompt}}, opts...)
}

// GenerateWithMessages implements llm.Provider.
func (p *Provider) GenerateWithMessages(ctx context.Context, messages []llm.Message, opts ...llm.GenerateOption) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, append([]llm.Message(nil), messages...))
	p.options = append(p.options, *llm.ApplyGenerateOptions(opts))

	var r Reply
	switch {
	case len(p.replies) > 0:
		r = p.replies[0]
		p.replies = p.replies[1:]
	case p.fallback != nil:
		r = *p.fallback
	default:
		return "", ErrExhausted
	}
	if r.Err != nil {
		return "", r.Err
	}
	return r.Text, nil
}

// Calls returns the requests received so far.
func (p *Provider) Calls() [][]llm.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([][]llm.Message(nil), p.calls...)
}

// Options returns the resolved options of each request so far.
func (p *Provider) Options() []llm.GenerateOptions {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]llm.GenerateOptions(nil), p.options...)
}

// Closed reports whether Close was called.
func (p *Provider) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Close implements llm.Provider.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}
