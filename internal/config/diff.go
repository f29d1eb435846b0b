package config

import "maps"

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked.
type ConfigDiff struct {
	ModelsChanged       bool        // true if any model's params, prompt, or tool settings changed
	ModelChanges        []ModelDiff // per-model diffs
	DefaultModelChanged bool
	NewDefaultModel     string
	LogLevelChanged     bool
	NewLogLevel         LogLevel
}

// ModelDiff describes what changed for a single model between two configs.
type ModelDiff struct {
	ID                  string
	ParamsChanged       bool
	SystemPromptChanged bool
	ToolsChanged        bool
	Added               bool
	Removed             bool
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	// Log level
	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	// Default model
	if old.DefaultModel != new.DefaultModel {
		d.DefaultModelChanged = true
		d.NewDefaultModel = new.DefaultModel
	}

	// Build model lookup maps keyed by id.
	oldModels := make(map[string]*ModelConfig, len(old.Models))
	for i := range old.Models {
		oldModels[old.Models[i].ID] = &old.Models[i]
	}
	newModels := make(map[string]*ModelConfig, len(new.Models))
	for i := range new.Models {
		newModels[new.Models[i].ID] = &new.Models[i]
	}

	// Detect modified and removed models.
	for id, oldModel := range oldModels {
		newModel, exists := newModels[id]
		if !exists {
			d.ModelChanges = append(d.ModelChanges, ModelDiff{
				ID:      id,
				Removed: true,
			})
			d.ModelsChanged = true
			continue
		}
		md := diffModel(id, oldModel, newModel)
		if md.ParamsChanged || md.SystemPromptChanged || md.ToolsChanged {
			d.ModelChanges = append(d.ModelChanges, md)
			d.ModelsChanged = true
		}
	}

	// Detect added models.
	for id := range newModels {
		if _, exists := oldModels[id]; !exists {
			d.ModelChanges = append(d.ModelChanges, ModelDiff{
				ID:    id,
				Added: true,
			})
			d.ModelsChanged = true
		}
	}

	return d
}

// diffModel compares two model configs with the same id.
func diffModel(id string, old, new *ModelConfig) ModelDiff {
	md := ModelDiff{ID: id}

	if !maps.EqualFunc(old.Params, new.Params, func(a, b any) bool { return a == b }) {
		md.ParamsChanged = true
	}

	if old.SystemPrompt != new.SystemPrompt {
		md.SystemPromptChanged = true
	}

	if !toolsOverrideEqual(old.Tools, new.Tools) {
		md.ToolsChanged = true
	}

	return md
}

// toolsOverrideEqual compares two optional tool-iteration overrides by value.
func toolsOverrideEqual(a, b *ToolsOverride) bool {
	if a == nil || b == nil {
		return a == b
	}
	return intPtrEqual(a.MaxRounds, b.MaxRounds) &&
		boolPtrEqual(a.DetectLoops, b.DetectLoops) &&
		intPtrEqual(a.LoopWindow, b.LoopWindow)
}

func intPtrEqual(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func boolPtrEqual(a, b *bool) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
