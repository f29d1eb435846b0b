// Package mock provides a test double for the llm.Provider interface.
//
// Use Provider in unit tests to verify that the orchestrator sends correct
// CompletionRequests and to feed controlled responses without a live LLM
// backend. Responses are scripted: each call to Complete consumes the next
// entry from the Script slice, so a multi-round tool conversation can be
// expressed as a sequence of scripted turns.
//
// Example:
//
//	p := &mock.Provider{
//	    Script: []mock.Turn{
//	        {Response: &llm.CompletionResponse{ToolCalls: []types.ToolCall{call}}},
//	        {Response: &llm.CompletionResponse{Content: "done"}},
//	    },
//	}
package mock

import (
	"context"
	"sync"

	"github.com/pfahlr/llm-writer/pkg/provider/llm"
	"github.com/pfahlr/llm-writer/pkg/types"
)

// Turn scripts the outcome of a single Complete call.
type Turn struct {
	// Response is returned when Err is nil.
	Response *llm.CompletionResponse

	// Err, if non-nil, is returned instead of Response.
	Err error
}

// StreamTurn scripts the outcome of a single StreamCompletion call.
type StreamTurn struct {
	// Chunks is the sequence of Chunk values emitted on the returned channel.
	// All chunks are sent before the channel is closed.
	Chunks []llm.Chunk

	// Err, if non-nil, is returned as the error from StreamCompletion instead
	// of opening a channel.
	Err error
}

// CompleteCall records a single invocation of Complete.
type CompleteCall struct {
	// Ctx is the context passed to Complete.
	Ctx context.Context
	// Req is the CompletionRequest passed to Complete.
	Req llm.CompletionRequest
}

// StreamCall records a single invocation of StreamCompletion.
type StreamCall struct {
	// Ctx is the context passed to StreamCompletion.
	Ctx context.Context
	// Req is the CompletionRequest passed to StreamCompletion.
	Req llm.CompletionRequest
}

// Provider is a scripted mock implementation of llm.Provider.
//
// Complete consumes Script entries in order; once the script is exhausted the
// last entry is repeated (a one-entry script behaves like a fixed response).
// StreamCompletion consumes StreamScript the same way. An empty script yields
// zero-value responses.
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// Script is the sequence of outcomes for successive Complete calls.
	Script []Turn

	// StreamScript is the sequence of outcomes for successive
	// StreamCompletion calls.
	StreamScript []StreamTurn

	// ModelCapabilities is returned by Capabilities.
	ModelCapabilities types.ModelCapabilities

	// --- Call records (read after test) ---

	// CompleteCalls records every invocation of Complete in order.
	CompleteCalls []CompleteCall

	// StreamCalls records every invocation of StreamCompletion in order.
	StreamCalls []StreamCall

	completeIdx int
	streamIdx   int
}

// Ensure Provider implements llm.Provider at compile time.
var _ llm.Provider = (*Provider)(nil)

// Complete records the call and returns the next scripted Turn.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CompleteCalls = append(p.CompleteCalls, CompleteCall{Ctx: ctx, Req: req})

	if len(p.Script) == 0 {
		return &llm.CompletionResponse{}, nil
	}
	turn := p.Script[min(p.completeIdx, len(p.Script)-1)]
	p.completeIdx++
	return turn.Response, turn.Err
}

// StreamCompletion records the call and plays back the next scripted StreamTurn.
func (p *Provider) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	p.mu.Lock()
	p.StreamCalls = append(p.StreamCalls, StreamCall{Ctx: ctx, Req: req})

	var turn StreamTurn
	if len(p.StreamScript) > 0 {
		turn = p.StreamScript[min(p.streamIdx, len(p.StreamScript)-1)]
		p.streamIdx++
	}
	p.mu.Unlock()

	if turn.Err != nil {
		return nil, turn.Err
	}

	ch := make(chan llm.Chunk, len(turn.Chunks))
	go func() {
		defer close(ch)
		for _, c := range turn.Chunks {
			select {
			case <-ctx.Done():
				return
			case ch <- c:
			}
		}
	}()
	return ch, nil
}

// Capabilities returns ModelCapabilities.
func (p *Provider) Capabilities() types.ModelCapabilities {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ModelCapabilities
}

// Reset clears recorded calls and rewinds both scripts. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CompleteCalls = nil
	p.StreamCalls = nil
	p.completeIdx = 0
	p.streamIdx = 0
}
