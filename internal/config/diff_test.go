package config_test

import (
	"testing"

	"github.com/pfahlr/llm-writer/internal/config"
)

func baseConfig() *config.Config {
	return &config.Config{
		Server:       config.ServerConfig{LogLevel: config.LogInfo},
		DefaultModel: "fast",
		Models: []config.ModelConfig{
			{ID: "fast", Provider: "p", ModelName: "gpt-4o-mini", Params: map[string]any{"temperature": 0.5}},
			{ID: "deep", Provider: "p", ModelName: "gpt-4o", SystemPrompt: "Think."},
		},
	}
}

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	d := config.Diff(baseConfig(), baseConfig())
	if d.ModelsChanged || d.DefaultModelChanged || d.LogLevelChanged {
		t.Errorf("identical configs must produce an empty diff: %+v", d)
	}
}

func TestDiff_TopLevelChanges(t *testing.T) {
	t.Parallel()
	old := baseConfig()
	new := baseConfig()
	new.DefaultModel = "deep"
	new.Server.LogLevel = config.LogDebug

	d := config.Diff(old, new)
	if !d.DefaultModelChanged || d.NewDefaultModel != "deep" {
		t.Errorf("default model change not detected: %+v", d)
	}
	if !d.LogLevelChanged || d.NewLogLevel != config.LogDebug {
		t.Errorf("log level change not detected: %+v", d)
	}
	if d.ModelsChanged {
		t.Error("no model content changed")
	}
}

func TestDiff_ModelContentChanges(t *testing.T) {
	t.Parallel()
	old := baseConfig()
	new := baseConfig()
	new.Models[0].Params["temperature"] = 0.9
	new.Models[1].SystemPrompt = "Think harder."

	d := config.Diff(old, new)
	if !d.ModelsChanged || len(d.ModelChanges) != 2 {
		t.Fatalf("expected 2 model diffs, got %+v", d.ModelChanges)
	}
	for _, md := range d.ModelChanges {
		switch md.ID {
		case "fast":
			if !md.ParamsChanged || md.SystemPromptChanged {
				t.Errorf("fast diff wrong: %+v", md)
			}
		case "deep":
			if !md.SystemPromptChanged || md.ParamsChanged {
				t.Errorf("deep diff wrong: %+v", md)
			}
		default:
			t.Errorf("unexpected model diff %+v", md)
		}
	}
}

func TestDiff_ToolsOverrideChange(t *testing.T) {
	t.Parallel()
	five := 5
	old := baseConfig()
	new := baseConfig()
	new.Models[0].Tools = &config.ToolsOverride{MaxRounds: &five}

	d := config.Diff(old, new)
	if len(d.ModelChanges) != 1 || !d.ModelChanges[0].ToolsChanged {
		t.Errorf("tools override change not detected: %+v", d.ModelChanges)
	}

	// Equal override values on both sides are not a change.
	old.Models[0].Tools = &config.ToolsOverride{MaxRounds: &five}
	if d := config.Diff(old, new); d.ModelsChanged {
		t.Errorf("value-equal overrides flagged as changed: %+v", d)
	}
}

func TestDiff_AddedAndRemovedModels(t *testing.T) {
	t.Parallel()
	old := baseConfig()
	new := baseConfig()
	new.Models = append(new.Models[:1], config.ModelConfig{ID: "local", Provider: "p", ModelName: "llama3"})

	d := config.Diff(old, new)
	if !d.ModelsChanged {
		t.Fatal("membership change not detected")
	}
	var added, removed bool
	for _, md := range d.ModelChanges {
		if md.ID == "local" && md.Added {
			added = true
		}
		if md.ID == "deep" && md.Removed {
			removed = true
		}
	}
	if !added || !removed {
		t.Errorf("added=%v removed=%v, want both: %+v", added, removed, d.ModelChanges)
	}
}
