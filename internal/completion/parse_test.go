package completion_test

import (
	"errors"
	"reflect"
	"testing"

	"github.com/pfahlr/llm-writer/internal/completion"
	"github.com/pfahlr/llm-writer/pkg/types"
)

func TestParseStructured_Valid(t *testing.T) {
	t.Parallel()
	req, err := completion.ParseStructured(types.ToolCall{
		ID:        "call_1",
		Name:      completion.BridgeToolName,
		Arguments: `{"server":"notes","tool":"search","params":{"query":"x"}}`,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.Server != "notes" || req.Tool != "search" {
		t.Errorf("got %s:%s, want notes:search", req.Server, req.Tool)
	}
	if req.Params["query"] != "x" {
		t.Errorf("params = %v, want query=x", req.Params)
	}
}

func TestParseStructured_WrongFunctionName(t *testing.T) {
	t.Parallel()
	_, err := completion.ParseStructured(types.ToolCall{
		Name:      "some_other_tool",
		Arguments: `{"server":"notes","tool":"search"}`,
	})
	if !errors.Is(err, completion.ErrMalformedToolCall) {
		t.Errorf("expected ErrMalformedToolCall, got %v", err)
	}
}

func TestParseStructured_BadJSON(t *testing.T) {
	t.Parallel()
	_, err := completion.ParseStructured(types.ToolCall{
		Name:      completion.BridgeToolName,
		Arguments: `{"server": "notes"`,
	})
	if !errors.Is(err, completion.ErrMalformedToolCall) {
		t.Errorf("expected ErrMalformedToolCall, got %v", err)
	}
}

func TestParseStructured_MissingKeys(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		args string
	}{
		{"no server", `{"tool":"search"}`},
		{"no tool", `{"server":"notes"}`},
		{"empty server", `{"server":"","tool":"search"}`},
		{"empty tool", `{"server":"notes","tool":""}`},
		{"non-string server", `{"server":1,"tool":"search"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := completion.ParseStructured(types.ToolCall{
				Name:      completion.BridgeToolName,
				Arguments: tc.args,
			})
			if !errors.Is(err, completion.ErrMalformedToolCall) {
				t.Errorf("expected ErrMalformedToolCall, got %v", err)
			}
		})
	}
}

func TestParseStructured_LeftoverKeysFoldedIntoParams(t *testing.T) {
	t.Parallel()
	req, err := completion.ParseStructured(types.ToolCall{
		Name:      completion.BridgeToolName,
		Arguments: `{"server":"notes","tool":"search","query":"x","limit":3}`,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.Params["query"] != "x" {
		t.Errorf("top-level query not folded into params: %v", req.Params)
	}
	if req.Params["limit"] != float64(3) {
		t.Errorf("top-level limit not folded into params: %v", req.Params)
	}
}

func TestParseStructured_ExplicitParamsWinOverLeftovers(t *testing.T) {
	t.Parallel()
	req, err := completion.ParseStructured(types.ToolCall{
		Name:      completion.BridgeToolName,
		Arguments: `{"server":"notes","tool":"search","params":{"query":"real"},"query":"stray"}`,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.Params["query"] != "real" {
		t.Errorf("explicit params key must not be overwritten, got %v", req.Params["query"])
	}
}

func TestParseTextual_NoMarkerMeansNoCall(t *testing.T) {
	t.Parallel()
	req, err := completion.ParseTextual("This is just a final answer with {braces} in it.")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req != nil {
		t.Errorf("expected no call, got %+v", req)
	}
}

func TestParseTextual_MarkerWithPayload(t *testing.T) {
	t.Parallel()
	text := "Let me look that up.\nCALL_MCP_TOOL {\"server\": \"notes\", \"tool\": \"search\", \"params\": {\"query\": \"x\"}}\n"
	req, err := completion.ParseTextual(text)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req == nil {
		t.Fatal("expected a call, got none")
	}
	if req.Server != "notes" || req.Tool != "search" || req.Params["query"] != "x" {
		t.Errorf("unexpected request: %+v", req)
	}
}

func TestParseTextual_CaseInsensitiveMarker(t *testing.T) {
	t.Parallel()
	req, err := completion.ParseTextual(`call_mcp_tool {"server":"notes","tool":"search"}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req == nil || req.Server != "notes" {
		t.Errorf("lowercase marker not recognised: %+v", req)
	}
}

func TestParseTextual_BracesInsideStrings(t *testing.T) {
	t.Parallel()
	text := `CALL_MCP_TOOL {"server":"notes","tool":"search","params":{"query":"a { tricky } string"}} trailing text`
	req, err := completion.ParseTextual(text)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.Params["query"] != "a { tricky } string" {
		t.Errorf("brace balancing broke inside a string literal: %v", req.Params["query"])
	}
}

func TestParseTextual_UnbalancedPayload(t *testing.T) {
	t.Parallel()
	_, err := completion.ParseTextual(`CALL_MCP_TOOL {"server":"notes","tool":"search"`)
	if !errors.Is(err, completion.ErrMalformedToolCall) {
		t.Errorf("expected ErrMalformedToolCall for unbalanced payload, got %v", err)
	}
}

func TestParseTextual_MarkerWithoutObject(t *testing.T) {
	t.Parallel()
	_, err := completion.ParseTextual("CALL_MCP_TOOL and nothing else")
	if !errors.Is(err, completion.ErrMalformedToolCall) {
		t.Errorf("expected ErrMalformedToolCall for marker without payload, got %v", err)
	}
}

// Both parse paths must yield identical requests for the same logical call.
func TestParsePaths_Equivalent(t *testing.T) {
	t.Parallel()
	payloads := []string{
		`{"server":"notes","tool":"search","params":{"query":"x"}}`,
		`{"server":"web","tool":"fetch","params":{"url":"https://example.com","depth":2}}`,
		`{"server":"notes","tool":"list"}`,
		`{"server":"notes","tool":"search","query":"folded"}`,
	}
	for _, payload := range payloads {
		structured, err := completion.ParseStructured(types.ToolCall{
			Name:      completion.BridgeToolName,
			Arguments: payload,
		})
		if err != nil {
			t.Fatalf("structured parse of %s: %v", payload, err)
		}
		textual, err := completion.ParseTextual("CALL_MCP_TOOL " + payload)
		if err != nil {
			t.Fatalf("textual parse of %s: %v", payload, err)
		}
		if !reflect.DeepEqual(structured, textual) {
			t.Errorf("paths disagree for %s:\nstructured: %+v\ntextual:    %+v", payload, structured, textual)
		}
	}
}
