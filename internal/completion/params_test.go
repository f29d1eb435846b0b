package completion_test

import (
	"testing"

	"github.com/pfahlr/llm-writer/internal/completion"
)

func TestMergeParams_LayerPriority(t *testing.T) {
	t.Parallel()
	defaults := map[string]any{"temperature": 0.2, "max_tokens": 512}
	model := map[string]any{"temperature": 0.7, "top_p": 0.9}
	call := map[string]any{"max_tokens": 1024}

	merged := completion.MergeParams(defaults, model, call)

	if merged["temperature"] != 0.7 {
		t.Errorf("model layer must override defaults: temperature = %v", merged["temperature"])
	}
	if merged["max_tokens"] != 1024 {
		t.Errorf("call layer must override defaults: max_tokens = %v", merged["max_tokens"])
	}
	if merged["top_p"] != 0.9 {
		t.Errorf("model-only key missing: top_p = %v", merged["top_p"])
	}
}

func TestMergeParams_ShallowMerge(t *testing.T) {
	t.Parallel()
	a := map[string]any{"nested": map[string]any{"keep": 1, "lose": 2}}
	b := map[string]any{"nested": map[string]any{"keep": 3}}

	merged := completion.MergeParams(a, b)

	nested := merged["nested"].(map[string]any)
	if _, ok := nested["lose"]; ok {
		t.Error("nested structures must be replaced wholesale, not deep-merged")
	}
	if nested["keep"] != 3 {
		t.Errorf("later layer's nested value lost: %v", nested["keep"])
	}
}

func TestMergeParams_NilLayers(t *testing.T) {
	t.Parallel()
	merged := completion.MergeParams(nil, map[string]any{"k": "v"}, nil)
	if merged["k"] != "v" {
		t.Errorf("nil layers must be skipped: %v", merged)
	}
	if completion.MergeParams() == nil {
		t.Error("result must never be nil")
	}
}

func TestCapabilityCache(t *testing.T) {
	t.Parallel()
	c := completion.NewCapabilityCache()

	if !c.SupportsFunctions("openai") {
		t.Error("support must be assumed until proven otherwise")
	}
	if !c.Downgrade("openai") {
		t.Error("first downgrade must report a state change")
	}
	if c.Downgrade("openai") {
		t.Error("second downgrade must be a no-op")
	}
	if c.SupportsFunctions("openai") {
		t.Error("downgrade must be permanent")
	}

	// Seeding true never re-upgrades.
	c.Seed("openai", true)
	if c.SupportsFunctions("openai") {
		t.Error("seeding must not undo an observed downgrade")
	}

	c.Seed("textonly", false)
	if c.SupportsFunctions("textonly") {
		t.Error("seeded prior must be honoured")
	}
}
