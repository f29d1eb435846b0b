package completion

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pfahlr/llm-writer/pkg/types"
)

// BridgeToolName is the single structured tool exposed to function-calling
// providers. Every tool invocation, regardless of target server, goes
// through this one bridge definition.
const BridgeToolName = "call_mcp_tool"

// TextualMarker is the fixed token a model emits in free text to invoke a
// tool when the provider lacks function calling. The JSON payload follows
// immediately after the marker. Matching is case-insensitive so
// "call_mcp_tool {...}" works too.
const TextualMarker = "CALL_MCP_TOOL"

// ToolRequest is one validated tool invocation, identical whether it was
// parsed from a structured tool-call object or from the textual convention.
type ToolRequest struct {
	// Server is the target MCP server id.
	Server string

	// Tool is the tool name on that server.
	Tool string

	// Params is the parameter mapping. Never nil.
	Params map[string]any
}

// ParseStructured extracts a ToolRequest from a provider's structured
// tool-call object. The function name must equal [BridgeToolName] and the
// arguments must be a JSON object with non-empty "server" and "tool" keys.
// An absent or non-object "params" key means empty parameters; any leftover
// top-level keys are folded into the parameter mapping.
func ParseStructured(call types.ToolCall) (*ToolRequest, error) {
	if call.Name != BridgeToolName {
		return nil, fmt.Errorf("%w: unexpected function name %q, want %q", ErrMalformedToolCall, call.Name, BridgeToolName)
	}

	var args map[string]any
	if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
		return nil, fmt.Errorf("%w: arguments are not a JSON object: %v", ErrMalformedToolCall, err)
	}
	return requestFromArgs(args)
}

// ParseTextual scans text for the [TextualMarker] convention and extracts
// the JSON payload that follows it. Returns (nil, nil) when no marker is
// present — a final answer, not an error. A marker with a malformed or
// incomplete payload fails with [ErrMalformedToolCall].
func ParseTextual(text string) (*ToolRequest, error) {
	idx := markerIndex(text)
	if idx < 0 {
		return nil, nil
	}
	after := text[idx+len(TextualMarker):]

	payload, err := balancedJSONObject(after)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedToolCall, err)
	}

	var args map[string]any
	if err := json.Unmarshal([]byte(payload), &args); err != nil {
		return nil, fmt.Errorf("%w: payload after marker is not valid JSON: %v", ErrMalformedToolCall, err)
	}
	return requestFromArgs(args)
}

// requestFromArgs validates the common argument shape shared by both call
// paths and builds the request.
func requestFromArgs(args map[string]any) (*ToolRequest, error) {
	server, _ := args["server"].(string)
	if server == "" {
		return nil, fmt.Errorf("%w: missing or empty \"server\" key", ErrMalformedToolCall)
	}
	tool, _ := args["tool"].(string)
	if tool == "" {
		return nil, fmt.Errorf("%w: missing or empty \"tool\" key", ErrMalformedToolCall)
	}

	params, _ := args["params"].(map[string]any)
	if params == nil {
		params = make(map[string]any)
	}

	// Models sometimes flatten parameters to the top level next to
	// server/tool; fold those strays into the parameter mapping.
	for k, v := range args {
		switch k {
		case "server", "tool", "params":
			continue
		}
		if _, exists := params[k]; !exists {
			params[k] = v
		}
	}

	return &ToolRequest{Server: server, Tool: tool, Params: params}, nil
}

// markerIndex finds the textual marker case-insensitively. The scan compares
// byte windows so offsets stay valid even around multi-byte runes.
func markerIndex(text string) int {
	for i := 0; i+len(TextualMarker) <= len(text); i++ {
		if strings.EqualFold(text[i:i+len(TextualMarker)], TextualMarker) {
			return i
		}
	}
	return -1
}

// balancedJSONObject returns the substring from the first '{' in s through
// its matching closing brace, honouring JSON string literals and escapes.
func balancedJSONObject(s string) (string, error) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", fmt.Errorf("no JSON object after marker")
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], nil
			}
		}
	}
	return "", fmt.Errorf("unbalanced braces in payload after marker")
}
