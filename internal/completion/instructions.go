package completion

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pfahlr/llm-writer/internal/mcp"
	"github.com/pfahlr/llm-writer/pkg/types"
)

// BuildBridgeTool renders the collected catalog into the single structured
// tool definition offered to function-calling providers. The definition
// exposes three parameters: the target server (enum of configured ids), the
// target tool (enum of every known tool name, with the full inventory in
// its description), and a free-form params object.
func BuildBridgeTool(catalog map[string][]mcp.ToolInfo) types.ToolDefinition {
	servers := sortedServers(catalog)

	var toolNames []string
	seen := make(map[string]bool)
	for _, id := range servers {
		for _, t := range catalog[id] {
			if !seen[t.Name] {
				seen[t.Name] = true
				toolNames = append(toolNames, t.Name)
			}
		}
	}
	sort.Strings(toolNames)

	return types.ToolDefinition{
		Name:        BridgeToolName,
		Description: "Execute a tool on one of the connected MCP servers and receive its result.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"server": map[string]any{
					"type":        "string",
					"enum":        servers,
					"description": "Identifier of the MCP server hosting the tool.",
				},
				"tool": map[string]any{
					"type":        "string",
					"enum":        toolNames,
					"description": "Name of the tool to execute. Available tools:\n" + renderInventory(catalog),
				},
				"params": map[string]any{
					"type":        "object",
					"description": "Parameters for the tool, matching its input schema.",
				},
			},
			"required": []string{"server", "tool"},
		},
	}
}

// BuildSystemInstruction renders the catalog into a natural-language system
// message. It always describes the inventory; when functionsActive is false
// it additionally spells out the textual invocation convention, since the
// provider has no structured channel for tool calls.
func BuildSystemInstruction(catalog map[string][]mcp.ToolInfo, functionsActive bool) string {
	var b strings.Builder
	b.WriteString("You can use external tools hosted on MCP servers. Available tools:\n\n")
	b.WriteString(renderInventory(catalog))

	if functionsActive {
		b.WriteString("\nInvoke a tool by calling the ")
		b.WriteString(BridgeToolName)
		b.WriteString(" function with the target server, tool name, and parameters.")
	} else {
		fmt.Fprintf(&b, `
To invoke a tool, emit on its own line:

%s {"server": "<server id>", "tool": "<tool name>", "params": {...}}

Emit at most one tool call per response and nothing after it. The result
will be sent back to you in a message starting with "TOOL_RESULT %s
<server>:<tool>" — treat that message as tool output, not as a user turn.
When you have everything you need, answer in plain text without the marker.`,
			TextualMarker, BridgeToolName)
	}
	return b.String()
}

// EchoToolResult renders an executed tool call's payload into the echo
// message sent back to the model, prefixed so the model can tell tool
// output apart from a new user turn.
func EchoToolResult(server, tool, rendered string) string {
	return fmt.Sprintf("TOOL_RESULT %s %s:%s\n\n%s", BridgeToolName, server, tool, rendered)
}

// renderInventory lists every server's tools with descriptions and schema
// field names.
func renderInventory(catalog map[string][]mcp.ToolInfo) string {
	var b strings.Builder
	for _, id := range sortedServers(catalog) {
		tools := catalog[id]
		if len(tools) == 0 {
			continue
		}
		fmt.Fprintf(&b, "Server %q:\n", id)
		for _, t := range tools {
			fmt.Fprintf(&b, "  - %s", t.Name)
			if t.Description != "" {
				fmt.Fprintf(&b, ": %s", t.Description)
			}
			if fields := schemaFields(t.InputSchema); len(fields) > 0 {
				fmt.Fprintf(&b, " (params: %s)", strings.Join(fields, ", "))
			}
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// schemaFields extracts the property names of a JSON Schema object, sorted.
func schemaFields(schema map[string]any) []string {
	props, _ := schema["properties"].(map[string]any)
	if len(props) == 0 {
		return nil
	}
	fields := make([]string, 0, len(props))
	for name := range props {
		fields = append(fields, name)
	}
	sort.Strings(fields)
	return fields
}

// sortedServers returns the catalog's server ids in stable order.
func sortedServers(catalog map[string][]mcp.ToolInfo) []string {
	ids := make([]string, 0, len(catalog))
	for id := range catalog {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
