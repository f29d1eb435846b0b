package render_test

import (
	"strings"
	"testing"

	"github.com/pfahlr/llm-writer/internal/mcp/render"
)

func TestNormalize_String(t *testing.T) {
	t.Parallel()
	items := render.Normalize("plain text result")
	if len(items) != 1 || items[0].Body != "plain text result" {
		t.Errorf("string payload must become one body item, got %+v", items)
	}
}

func TestNormalize_ListOfMaps(t *testing.T) {
	t.Parallel()
	items := render.Normalize([]any{
		map[string]any{
			"id":    "n1",
			"title": "First",
			"body":  "content",
			"url":   "https://example.com/n1",
			"score": 0.9,
		},
		map[string]any{"snippet": "only a snippet"},
	})
	if len(items) != 2 {
		t.Fatalf("items = %d, want 2", len(items))
	}

	first := items[0]
	if first.ID != "n1" || first.Title != "First" || first.Body != "content" || first.URL != "https://example.com/n1" {
		t.Errorf("well-known fields not lifted: %+v", first)
	}
	if first.Metadata["score"] != 0.9 {
		t.Errorf("leftover key must land in Metadata: %v", first.Metadata)
	}

	// Index stands in for a missing id.
	if items[1].ID != "1" {
		t.Errorf("fallback id = %q, want list index", items[1].ID)
	}
	if items[1].Snippet != "only a snippet" {
		t.Errorf("snippet not carried: %+v", items[1])
	}
}

func TestNormalize_MixedList(t *testing.T) {
	t.Parallel()
	items := render.Normalize([]any{"a string", 42})
	if len(items) != 2 {
		t.Fatalf("items = %d, want 2", len(items))
	}
	if items[0].Body != "a string" {
		t.Errorf("string element: %+v", items[0])
	}
	if items[1].Body != "42" {
		t.Errorf("scalar element must be stringified: %+v", items[1])
	}
}

func TestNormalize_Nil(t *testing.T) {
	t.Parallel()
	if items := render.Normalize(nil); items != nil {
		t.Errorf("nil payload must yield no items, got %+v", items)
	}
}

func TestForLLM_MapBecomesJSONBlock(t *testing.T) {
	t.Parallel()
	out := render.ForLLM("notes", "stats", map[string]any{"count": 3})

	if !strings.HasPrefix(out, "Result from notes:stats") {
		t.Errorf("missing header: %q", out)
	}
	if !strings.Contains(out, "```json") || !strings.Contains(out, `"count": 3`) {
		t.Errorf("map payload must render as a fenced JSON block: %q", out)
	}
}

func TestForLLM_ItemRendering(t *testing.T) {
	t.Parallel()
	out := render.ForLLM("notes", "search", []any{
		map[string]any{
			"title": "Grocery list",
			"body":  "milk, eggs",
			"url":   "https://notes.local/1",
			"tags":  []any{"home"},
		},
	})

	for _, want := range []string{
		"Result from notes:search",
		"Grocery list",
		"milk, eggs",
		"URL: https://notes.local/1",
		"Metadata:",
		"home",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("rendering missing %q:\n%s", want, out)
		}
	}
}

func TestForLLM_EmptyPayload(t *testing.T) {
	t.Parallel()
	out := render.ForLLM("notes", "search", []any{})
	if out != "Result from notes:search" {
		t.Errorf("empty payload must yield just the header, got %q", out)
	}
}

func TestSummarize(t *testing.T) {
	t.Parallel()
	if got := render.Summarize([]any{}, 10); got != "no items" {
		t.Errorf("empty payload digest = %q", got)
	}
	if got := render.Summarize("short", 10); got != "short" {
		t.Errorf("digest = %q, want untruncated body", got)
	}
	if got := render.Summarize("0123456789abc", 10); got != "0123456789…" {
		t.Errorf("digest = %q, want truncation with ellipsis", got)
	}
	if got := render.Summarize([]any{map[string]any{"snippet": "from snippet"}}, 80); got != "from snippet" {
		t.Errorf("digest must fall back to the snippet, got %q", got)
	}
}
