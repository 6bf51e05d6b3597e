package testutil

import (
	"context"
	"sync"
)

// MockProvider is a scripted completion backend for tests. It
// satisfies the gateway's Provider interface structurally, so this
// package stays import-cycle free.
//
// Thread-safe for concurrent use.
type MockProvider struct {
	ProviderName string

	mu       sync.Mutex
	response string
	err      error
	prompts  []string
}

// NewMockProvider creates a provider that answers every prompt with
// response.
func NewMockProvider(name, response string) *MockProvider {
	return &MockProvider{ProviderName: name, response: response}
}

// FailWith makes every Complete call return err.
func (p *MockProvider) FailWith(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

// Respond resets the provider to answer with response again.
func (p *MockProvider) Respond(response string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.response = response
	p.err = nil
}

// Prompts returns a copy of every prompt received so far.
func (p *MockProvider) Prompts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.prompts))
	copy(out, p.prompts)
	return out
}

// Calls returns how many times Complete ran.
func (p *MockProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.prompts)
}

// Name implements the provider interface.
func (p *MockProvider) Name() string {
	return p.ProviderName
}

// Complete implements the provider interface.
func (p *MockProvider) Complete(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.prompts = append(p.prompts, prompt)
	if p.err != nil {
		return "", p.err
	}
	return p.response, nil
}
