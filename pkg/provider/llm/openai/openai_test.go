package openai

import (
	"errors"
	"net/http"
	"testing"

	oai "github.com/openai/openai-go"

	"github.com/pfahlr/llm-writer/pkg/provider/llm"
	"github.com/pfahlr/llm-writer/pkg/types"
)

// ── Constructor ───────────────────────────────────────────────────────────────

func TestNew_Validation(t *testing.T) {
	if _, err := New("", "gpt-4o"); err == nil {
		t.Error("expected error for empty apiKey")
	}
	if _, err := New("sk-test", ""); err == nil {
		t.Error("expected error for empty model")
	}
}

func TestNew_WithOptions(t *testing.T) {
	p, err := New("sk-test", "gpt-4o",
		WithBaseURL("https://proxy.example.com/v1"),
		WithOrganization("org-123"),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p == nil || p.model != "gpt-4o" {
		t.Errorf("unexpected provider: %+v", p)
	}
}

// ── convertMessage ────────────────────────────────────────────────────────────

func TestConvertMessage_System(t *testing.T) {
	msg, err := convertMessage(types.Message{Role: types.RoleSystem, Content: "Be brief."})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.OfSystem == nil {
		t.Error("expected a system message param")
	}
}

func TestConvertMessage_User(t *testing.T) {
	msg, err := convertMessage(types.Message{Role: types.RoleUser, Content: "Hello"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.OfUser == nil {
		t.Error("expected a user message param")
	}
}

func TestConvertMessage_AssistantWithToolCalls(t *testing.T) {
	msg, err := convertMessage(types.Message{
		Role: types.RoleAssistant,
		ToolCalls: []types.ToolCall{
			{ID: "call_1", Name: "call_mcp_tool", Arguments: `{"server":"notes","tool":"search"}`},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.OfAssistant == nil {
		t.Fatal("expected an assistant message param")
	}
	calls := msg.OfAssistant.ToolCalls
	if len(calls) != 1 || calls[0].ID != "call_1" || calls[0].Function.Name != "call_mcp_tool" {
		t.Errorf("unexpected tool calls: %+v", calls)
	}
}

func TestConvertMessage_ToolResult(t *testing.T) {
	msg, err := convertMessage(types.Message{Role: types.RoleTool, Content: "ok", ToolCallID: "call_1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.OfTool == nil {
		t.Fatal("expected a tool message param")
	}
	if msg.OfTool.ToolCallID != "call_1" {
		t.Errorf("tool call id = %q", msg.OfTool.ToolCallID)
	}
}

func TestConvertMessage_UnknownRole(t *testing.T) {
	if _, err := convertMessage(types.Message{Role: "narrator", Content: "..."}); err == nil {
		t.Error("expected error for unknown role")
	}
}

// ── buildParams ───────────────────────────────────────────────────────────────

func TestBuildParams_SystemPromptAndMessages(t *testing.T) {
	p := &Provider{model: "gpt-4o"}
	params, err := p.buildParams(llm.CompletionRequest{
		SystemPrompt: "Be brief.",
		Messages:     []types.Message{{Role: types.RoleUser, Content: "Hi"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(params.Messages) != 2 {
		t.Errorf("messages = %d, want system + user", len(params.Messages))
	}
	if string(params.Model) != "gpt-4o" {
		t.Errorf("model = %q", params.Model)
	}
}

func TestBuildParams_GenericParamFallback(t *testing.T) {
	p := &Provider{model: "gpt-4o"}
	params, err := p.buildParams(llm.CompletionRequest{
		Messages: []types.Message{{Role: types.RoleUser, Content: "Hi"}},
		Params:   map[string]any{"temperature": 0.4},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !params.Temperature.Valid() || params.Temperature.Value != 0.4 {
		t.Errorf("temperature not taken from generic params: %+v", params.Temperature)
	}
}

func TestBuildParams_Tools(t *testing.T) {
	p := &Provider{model: "gpt-4o"}
	params, err := p.buildParams(llm.CompletionRequest{
		Messages: []types.Message{{Role: types.RoleUser, Content: "Hi"}},
		Tools: []types.ToolDefinition{{
			Name:        "call_mcp_tool",
			Description: "Bridge",
			Parameters:  map[string]any{"type": "object"},
		}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(params.Tools) != 1 || params.Tools[0].Function.Name != "call_mcp_tool" {
		t.Errorf("unexpected tools: %+v", params.Tools)
	}
}

// ── classifyError ─────────────────────────────────────────────────────────────

func TestClassifyError(t *testing.T) {
	badRequest := &oai.Error{StatusCode: http.StatusBadRequest}
	serverErr := &oai.Error{StatusCode: http.StatusInternalServerError}

	if err := classifyError(badRequest, true); !llm.IsUnsupportedToolsError(err) {
		t.Errorf("400 with tools must classify as unsupported tools, got %v", err)
	}
	if err := classifyError(badRequest, false); errors.Is(err, llm.ErrUnsupportedTools) {
		t.Errorf("400 without tools must not classify as unsupported tools, got %v", err)
	}
	if err := classifyError(serverErr, true); errors.Is(err, llm.ErrUnsupportedTools) {
		t.Errorf("500 must not classify as unsupported tools, got %v", err)
	}
	if classifyError(errors.New("network down"), true) == nil {
		t.Error("plain errors must still be wrapped, not dropped")
	}
}

// ── Capabilities ──────────────────────────────────────────────────────────────

func TestCapabilities(t *testing.T) {
	cases := []struct {
		model         string
		contextWindow int
		toolCalling   bool
	}{
		{"gpt-4o", 128_000, true},
		{"gpt-4", 8_192, true},
		{"gpt-3.5-turbo", 16_385, true},
		{"o1-mini", 128_000, false},
		{"o3-mini", 200_000, true},
	}
	for _, tc := range cases {
		t.Run(tc.model, func(t *testing.T) {
			p := &Provider{model: tc.model}
			caps := p.Capabilities()
			if caps.ContextWindow != tc.contextWindow {
				t.Errorf("context window = %d, want %d", caps.ContextWindow, tc.contextWindow)
			}
			if caps.SupportsToolCalling != tc.toolCalling {
				t.Errorf("tool calling = %v, want %v", caps.SupportsToolCalling, tc.toolCalling)
			}
		})
	}
}
