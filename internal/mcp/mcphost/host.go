// Package mcphost provides a concrete implementation of the [mcp.Executor]
// interface.
//
// It connects to MCP servers via stdio or streamable-HTTP transports using
// the official MCP Go SDK (github.com/modelcontextprotocol/go-sdk), lists
// tools on demand, and routes tool calls to the owning server session.
//
// Typical usage:
//
//	h := mcphost.New()
//	if err := h.ConnectAll(ctx, cfgs); err != nil { ... }
//	defer h.Close()
//
//	tools, err := h.ListTools(ctx, "notes")
//	result, err := h.CallTool(ctx, "notes", "search", map[string]any{"query": "x"})
package mcphost

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/sync/errgroup"

	"github.com/pfahlr/llm-writer/internal/mcp"
)

// serverConn holds a live connection to an external MCP server.
type serverConn struct {
	cfg     mcp.ServerConfig
	session *mcpsdk.ClientSession
}

// Host is a concrete implementation of [mcp.Executor].
//
// It manages connections to one or more MCP servers and routes tool listing
// and execution requests to the owning session. The zero value is NOT
// usable; create instances with [New].
type Host struct {
	mu      sync.RWMutex
	servers map[string]serverConn // key: server id

	// client is reused across all server connections. The official SDK allows
	// a single Client to manage multiple sessions concurrently.
	client *mcpsdk.Client
}

// Compile-time check: Host must implement mcp.Executor.
var _ mcp.Executor = (*Host)(nil)

// New creates and returns a ready-to-use Host with no connected servers.
func New() *Host {
	client := mcpsdk.NewClient(
		&mcpsdk.Implementation{Name: "llm-writer-mcphost", Version: "1.0.0"},
		nil,
	)
	return &Host{
		servers: make(map[string]serverConn),
		client:  client,
	}
}

// RegisterServer connects to the MCP server described by cfg. If a server
// with the same ID is already registered, the old connection is closed and
// replaced.
//
// For [mcp.TransportStdio]: cfg.Command is split on spaces into executable +
// args; cfg.Env is appended to the parent process environment.
//
// For [mcp.TransportStreamableHTTP]: cfg.URL is the endpoint address.
func (h *Host) RegisterServer(ctx context.Context, cfg mcp.ServerConfig) error {
	if cfg.ID == "" {
		return fmt.Errorf("mcp host: server config must have a non-empty id")
	}
	if !cfg.Transport.IsValid() {
		return fmt.Errorf("mcp host: unknown transport %q for server %q", cfg.Transport, cfg.ID)
	}

	var transport mcpsdk.Transport

	switch cfg.Transport {
	case mcp.TransportStdio:
		executable, args := splitCommand(cfg.Command)
		if executable == "" {
			return fmt.Errorf("mcp host: stdio server %q requires a non-empty Command", cfg.ID)
		}
		cmd := exec.CommandContext(ctx, executable, args...)
		cmd.Env = commandEnv(cfg.Env)
		transport = &mcpsdk.CommandTransport{Command: cmd}

	case mcp.TransportStreamableHTTP:
		if cfg.URL == "" {
			return fmt.Errorf("mcp host: streamable-http server %q requires a non-empty URL", cfg.ID)
		}
		transport = &mcpsdk.StreamableClientTransport{Endpoint: cfg.URL}
	}

	session, err := h.client.Connect(ctx, transport, nil)
	if err != nil {
		return fmt.Errorf("mcp host: failed to connect to server %q: %w", cfg.ID, err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if old, ok := h.servers[cfg.ID]; ok {
		_ = old.session.Close()
	}
	h.servers[cfg.ID] = serverConn{cfg: cfg, session: session}
	return nil
}

// ConnectAll registers every server in cfgs concurrently. The first
// connection failure cancels the remaining attempts and is returned;
// successfully established sessions stay registered.
func (h *Host) ConnectAll(ctx context.Context, cfgs []mcp.ServerConfig) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, cfg := range cfgs {
		g.Go(func() error {
			return h.RegisterServer(gctx, cfg)
		})
	}
	return g.Wait()
}

// ListTools implements [mcp.Executor]. It queries the named server's tool
// listing and converts each entry into a [mcp.ToolInfo].
func (h *Host) ListTools(ctx context.Context, serverID string) ([]mcp.ToolInfo, error) {
	conn, err := h.lookup(serverID)
	if err != nil {
		return nil, err
	}

	var infos []mcp.ToolInfo
	for tool, err := range conn.session.Tools(ctx, nil) {
		if err != nil {
			return nil, fmt.Errorf("mcp host: failed to list tools for server %q: %w", serverID, err)
		}
		infos = append(infos, mcp.ToolInfo{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: schemaToMap(tool.InputSchema),
		})
	}
	return infos, nil
}

// CallTool implements [mcp.Executor]. It executes the named tool and
// extracts the payload from the result's content blocks.
//
// A tool-level error result (IsError) is returned as a Go error carrying the
// first text block as its message, since the orchestrator treats any
// executor failure as fatal to the round.
func (h *Host) CallTool(ctx context.Context, serverID, tool string, params map[string]any) (*mcp.ToolResult, error) {
	conn, err := h.lookup(serverID)
	if err != nil {
		return nil, err
	}

	callResult, err := conn.session.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      tool,
		Arguments: params,
	})
	if err != nil {
		return nil, fmt.Errorf("mcp host: call to tool %q on server %q failed: %w", tool, serverID, err)
	}
	if callResult.IsError {
		msg := firstText(callResult.Content)
		if msg == "" {
			msg = "MCP tool returned an error"
		}
		return nil, fmt.Errorf("mcp host: tool %q on server %q: %s", tool, serverID, msg)
	}

	return &mcp.ToolResult{
		Server:  serverID,
		Tool:    tool,
		Payload: extractPayload(callResult.Content),
	}, nil
}

// Close shuts down all server connections and releases associated resources.
// After Close returns the Host must not be used again.
func (h *Host) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var firstErr error
	for id, conn := range h.servers {
		if err := conn.session.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("mcp host: error closing server %q: %w", id, err)
		}
		delete(h.servers, id)
	}
	return firstErr
}

// lookup returns the live connection for a server id.
func (h *Host) lookup(serverID string) (serverConn, error) {
	h.mu.RLock()
	conn, ok := h.servers[serverID]
	h.mu.RUnlock()
	if !ok {
		return serverConn{}, fmt.Errorf("mcp host: server %q not registered", serverID)
	}
	return conn, nil
}

// extractPayload converts a result's content blocks into an opaque payload.
//
// A single text block that parses as JSON is returned in structured form
// (with common collection wrappers unwrapped); otherwise text blocks are
// returned as a string or a list of strings.
func extractPayload(content []mcpsdk.Content) any {
	var texts []string
	for _, c := range content {
		if tc, ok := c.(*mcpsdk.TextContent); ok {
			texts = append(texts, tc.Text)
		}
	}

	switch len(texts) {
	case 0:
		return []any{}
	case 1:
		return maybeParseJSON(texts[0])
	default:
		out := make([]any, len(texts))
		for i, t := range texts {
			out[i] = t
		}
		return out
	}
}

// maybeParseJSON parses text as JSON when possible, unwrapping common
// collection envelopes ({"items": [...]}, {"results": [...]}, …).
func maybeParseJSON(text string) any {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "{") && !strings.HasPrefix(trimmed, "[") {
		return text
	}
	var parsed any
	if err := json.Unmarshal([]byte(trimmed), &parsed); err != nil {
		return text
	}
	if m, ok := parsed.(map[string]any); ok {
		for _, key := range []string{"items", "references", "results", "data"} {
			if inner, ok := m[key]; ok {
				return inner
			}
		}
	}
	return parsed
}

// firstText returns the first text block in a content list, or "".
func firstText(content []mcpsdk.Content) string {
	for _, c := range content {
		if tc, ok := c.(*mcpsdk.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

// schemaToMap converts any schema value to a map[string]any.
func schemaToMap(schema any) map[string]any {
	if schema == nil {
		return nil
	}
	if m, ok := schema.(map[string]any); ok {
		return m
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil
	}
	return m
}

// commandEnv appends the configured extra variables to the parent process
// environment. Server processes need PATH, HOME and friends regardless of
// what the config injects; a nil return means "inherit as-is".
func commandEnv(extra map[string]string) []string {
	if len(extra) == 0 {
		return nil
	}
	env := os.Environ()
	for k, v := range extra {
		env = append(env, k+"="+v)
	}
	return env
}

// splitCommand splits a command string into executable and arguments.
// e.g. "/bin/foo --bar baz" → ("/bin/foo", ["--bar", "baz"]).
func splitCommand(command string) (executable string, args []string) {
	parts := strings.Fields(command)
	if len(parts) == 0 {
		return "", nil
	}
	return parts[0], parts[1:]
}
