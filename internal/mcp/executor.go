// Package mcp defines the interface the completion orchestrator uses to talk
// to Model Context Protocol (MCP) tool servers.
//
// The orchestrator treats the tool layer purely as a request/response
// collaborator: it lists the tools a server exposes and executes individual
// calls. Connection management, process spawning, and transports are the
// concern of the concrete implementation (see the mcphost package).
//
// All methods must be safe for concurrent use.
package mcp

import "context"

// Transport selects the connection mechanism for an MCP server.
type Transport string

const (
	// TransportStdio spawns a subprocess and communicates over stdin/stdout.
	TransportStdio Transport = "stdio"

	// TransportStreamableHTTP communicates via the MCP Streamable HTTP protocol.
	TransportStreamableHTTP Transport = "streamable-http"
)

// IsValid reports whether t is a recognised transport.
func (t Transport) IsValid() bool {
	return t == TransportStdio || t == TransportStreamableHTTP
}

// ToolInfo describes a single tool exposed by an MCP server, as reported by
// the server's tool listing.
type ToolInfo struct {
	// Name is the tool's identifier, unique within its server.
	Name string

	// Description is the human-readable summary shown to the LLM.
	Description string

	// InputSchema is the JSON Schema for the tool's parameters. May be nil
	// when the server declares none.
	InputSchema map[string]any
}

// ToolResult holds the outcome of a single tool execution.
type ToolResult struct {
	// Server is the id of the server that executed the tool.
	Server string

	// Tool is the executed tool's name, echoed back.
	Tool string

	// Payload is the opaque result: a string, a []any of structured items, or
	// a map[string]any, exactly as the server returned it.
	Payload any
}

// Executor is the tool-layer collaborator handed to the completion
// orchestrator.
//
// Implementations must be safe for concurrent use.
type Executor interface {
	// ListTools returns the tools exposed by the named server.
	//
	// Returns an error when the server is unknown or the listing request
	// fails; the orchestrator treats such failures as an empty catalogue
	// rather than aborting the completion.
	ListTools(ctx context.Context, serverID string) ([]ToolInfo, error)

	// CallTool executes the named tool on the named server with the given
	// parameter mapping and returns its result.
	//
	// Any error is fatal to the round that issued the call: unlike catalogue
	// listing, an in-flight tool call is a caller-visible operation.
	CallTool(ctx context.Context, serverID, tool string, params map[string]any) (*ToolResult, error)
}
