package testutil

import (
	"context"
	"sync"
)

// CannedGenerator returns a fixed reply and records every prompt.
// It satisfies summarize.Generator.
type CannedGenerator struct {
	mu      sync.Mutex
	reply   string
	err     error
	prompts []string
}

// NewCannedGenerator creates a generator that always returns reply.
func NewCannedGenerator(reply string) *CannedGenerator {
	return &CannedGenerator{reply: reply}
}

// SetError makes Generate fail with err until cleared with nil.
func (g *CannedGenerator) SetError(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.err = err
}

// Generate implements summarize.Generator.
func (g *CannedGenerator) Generate(_ context.Context, prompt string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, prompt)
	if g.err != nil {
		return "", g.err
	}
	return g.reply, nil
}

// Prompts returns every prompt received so far.
func (g *CannedGenerator) Prompts() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.prompts...)
}
