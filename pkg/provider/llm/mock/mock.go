// Package mock provides a test double for the llm.Provider interface.
//
// Scripted responses: each call to StreamResponse consumes the next script
// from Scripts (sticking on the last one when exhausted) and plays its events
// on the returned channel. Recorded calls let tests verify conversation
// threading and tool-output continuations.
//
// Example:
//
//	p := &mock.Provider{
//	    ConversationID: "conv_1",
//	    Scripts: [][]llm.StreamEvent{{
//	        {Type: llm.EventTextDelta, Delta: "Hello!"},
//	        {Type: llm.EventCompleted},
//	    }},
//	}
package mock

import (
	"context"
	"sync"

	"github.com/blacklotus-ai/lotusvoice/pkg/provider/llm"
)

// StreamResponseCall records a single invocation of Provider.StreamResponse.
type StreamResponseCall struct {
	// Ctx is the context passed to StreamResponse.
	Ctx context.Context
	// Req is the request passed to StreamResponse.
	Req llm.ResponseRequest
}

// Provider is a mock implementation of llm.Provider.
type Provider struct {
	mu sync.Mutex

	// ConversationID is returned by CreateConversation. Defaults to
	// "conv_mock" when empty.
	ConversationID string

	// CreateConversationErr, if non-nil, is returned by CreateConversation.
	CreateConversationErr error

	// Scripts holds one event sequence per expected StreamResponse call, in
	// order. When more calls arrive than scripts exist, the last script is
	// replayed. A nil Scripts yields a single EventCompleted.
	Scripts [][]llm.StreamEvent

	// StreamResponseErr, if non-nil, is returned as the error from
	// StreamResponse.
	StreamResponseErr error

	// --- Call records ---

	// CreateConversationCalls is the number of CreateConversation calls.
	CreateConversationCalls int

	// StreamResponseCalls records every call to StreamResponse.
	StreamResponseCalls []StreamResponseCall
}

// CreateConversation records the call and returns ConversationID.
func (p *Provider) CreateConversation(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CreateConversationCalls++
	if p.CreateConversationErr != nil {
		return "", p.CreateConversationErr
	}
	if p.ConversationID == "" {
		return "conv_mock", nil
	}
	return p.ConversationID, nil
}

// StreamResponse records the call and plays the next script on the returned
// channel.
func (p *Provider) StreamResponse(ctx context.Context, req llm.ResponseRequest) (<-chan llm.StreamEvent, error) {
	p.mu.Lock()
	p.StreamResponseCalls = append(p.StreamResponseCalls, StreamResponseCall{Ctx: ctx, Req: req})
	if p.StreamResponseErr != nil {
		p.mu.Unlock()
		return nil, p.StreamResponseErr
	}

	var script []llm.StreamEvent
	idx := len(p.StreamResponseCalls) - 1
	switch {
	case len(p.Scripts) == 0:
		script = []llm.StreamEvent{{Type: llm.EventCompleted}}
	case idx < len(p.Scripts):
		script = p.Scripts[idx]
	default:
		script = p.Scripts[len(p.Scripts)-1]
	}
	p.mu.Unlock()

	ch := make(chan llm.StreamEvent, len(script))
	go func() {
		defer close(ch)
		for _, ev := range script {
			select {
			case ch <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

// CreateConversationCallCount returns the number of CreateConversation calls.
// Thread-safe.
func (p *Provider) CreateConversationCallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.CreateConversationCalls
}

// LastRequest returns the most recent StreamResponse request, or a zero value
// when none were made. Thread-safe.
func (p *Provider) LastRequest() llm.ResponseRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.StreamResponseCalls) == 0 {
		return llm.ResponseRequest{}
	}
	return p.StreamResponseCalls[len(p.StreamResponseCalls)-1].Req
}

// StreamResponseCallCount returns the number of StreamResponse calls.
// Thread-safe.
func (p *Provider) StreamResponseCallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.StreamResponseCalls)
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CreateConversationCalls = 0
	p.StreamResponseCalls = nil
}

// Ensure Provider implements llm.Provider at compile time.
var _ llm.Provider = (*Provider)(nil)
