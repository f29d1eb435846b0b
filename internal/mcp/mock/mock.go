// Package mock provides a test double for the mcp.Executor interface.
//
// Tools and call results are configured per server/tool; every invocation is
// recorded so tests can assert on the exact parameter mappings the
// orchestrator produced.
package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/pfahlr/llm-writer/internal/mcp"
)

// ListToolsCall records a single invocation of ListTools.
type ListToolsCall struct {
	// Ctx is the context passed to ListTools.
	Ctx context.Context
	// Server is the server id passed to ListTools.
	Server string
}

// CallToolCall records a single invocation of CallTool.
type CallToolCall struct {
	// Ctx is the context passed to CallTool.
	Ctx context.Context
	// Server is the server id passed to CallTool.
	Server string
	// Tool is the tool name passed to CallTool.
	Tool string
	// Params is the parameter mapping passed to CallTool.
	Params map[string]any
}

// Executor is a configurable mock implementation of mcp.Executor.
type Executor struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// Tools maps server id to the tool listing returned by ListTools.
	// A server id missing from the map yields ListToolsErr (or an "unknown
	// server" error when that is nil too).
	Tools map[string][]mcp.ToolInfo

	// ListToolsErr, if non-nil, is returned by every ListTools call.
	ListToolsErr error

	// Results maps "server/tool" to the payload returned by CallTool.
	Results map[string]any

	// CallToolErr, if non-nil, is returned by every CallTool call.
	CallToolErr error

	// --- Call records (read after test) ---

	// ListToolsCalls records every invocation of ListTools in order.
	ListToolsCalls []ListToolsCall

	// CallToolCalls records every invocation of CallTool in order.
	CallToolCalls []CallToolCall
}

// Ensure Executor implements mcp.Executor at compile time.
var _ mcp.Executor = (*Executor)(nil)

// ListTools records the call and returns the configured listing.
func (e *Executor) ListTools(ctx context.Context, serverID string) ([]mcp.ToolInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ListToolsCalls = append(e.ListToolsCalls, ListToolsCall{Ctx: ctx, Server: serverID})

	if e.ListToolsErr != nil {
		return nil, e.ListToolsErr
	}
	tools, ok := e.Tools[serverID]
	if !ok {
		return nil, fmt.Errorf("mock: unknown server %q", serverID)
	}
	return tools, nil
}

// CallTool records the call and returns the configured payload for
// "server/tool".
func (e *Executor) CallTool(ctx context.Context, serverID, tool string, params map[string]any) (*mcp.ToolResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.CallToolCalls = append(e.CallToolCalls, CallToolCall{Ctx: ctx, Server: serverID, Tool: tool, Params: params})

	if e.CallToolErr != nil {
		return nil, e.CallToolErr
	}
	payload, ok := e.Results[serverID+"/"+tool]
	if !ok {
		return nil, fmt.Errorf("mock: no result configured for %s/%s", serverID, tool)
	}
	return &mcp.ToolResult{Server: serverID, Tool: tool, Payload: payload}, nil
}

// Reset clears all recorded calls. Thread-safe.
func (e *Executor) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ListToolsCalls = nil
	e.CallToolCalls = nil
}
