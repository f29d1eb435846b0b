package completion_test

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/pfahlr/llm-writer/internal/completion"
	"github.com/pfahlr/llm-writer/internal/config"
	"github.com/pfahlr/llm-writer/pkg/provider/llm"
	llmmock "github.com/pfahlr/llm-writer/pkg/provider/llm/mock"
)

func TestRegistry_ModelSelection(t *testing.T) {
	t.Parallel()
	cfg := testConfig(false)
	cfg.Models = append(cfg.Models, config.ModelConfig{ID: "m2", Provider: "p1", ModelName: "mock-model-2"})
	reg := newTestRegistry(t, cfg, &llmmock.Provider{}, nil)

	ids := reg.Models()
	slices.Sort(ids)
	if len(ids) != 2 || ids[0] != "m1" || ids[1] != "m2" {
		t.Errorf("Models() = %v, want [m1 m2]", ids)
	}

	if reg.CurrentModel() != "m1" {
		t.Errorf("initial selection = %q, want the configured default", reg.CurrentModel())
	}
	if err := reg.SetCurrent("m2"); err != nil {
		t.Fatalf("SetCurrent(m2): %v", err)
	}
	if reg.CurrentModel() != "m2" {
		t.Errorf("selection after SetCurrent = %q", reg.CurrentModel())
	}
	if err := reg.SetCurrent("ghost"); !errors.Is(err, completion.ErrUnknownModel) {
		t.Errorf("SetCurrent(ghost) = %v, want ErrUnknownModel", err)
	}
}

func TestRegistry_UpdateConfig_SwapsModelsAndDefault(t *testing.T) {
	t.Parallel()
	old := testConfig(false)
	prov := &llmmock.Provider{
		Script: []llmmock.Turn{{Response: &llm.CompletionResponse{Content: "hi"}}},
	}
	reg := newTestRegistry(t, old, prov, nil)

	next := testConfig(false)
	next.Models = append(next.Models, config.ModelConfig{ID: "m2", Provider: "p1", ModelName: "mock-model-2"})
	next.DefaultModel = "m2"
	reg.UpdateConfig(next, config.Diff(old, next))

	ids := reg.Models()
	slices.Sort(ids)
	if len(ids) != 2 || ids[0] != "m1" || ids[1] != "m2" {
		t.Errorf("Models() after reload = %v, want [m1 m2]", ids)
	}
	if reg.CurrentModel() != "m2" {
		t.Errorf("selection after default change = %q, want m2", reg.CurrentModel())
	}

	// m1 was untouched by the reload, so its cached provider survives.
	if _, err := reg.Complete(context.Background(), completion.Request{Prompt: "go", Model: "m1"}); err != nil {
		t.Errorf("unchanged model must keep working after reload: %v", err)
	}
}

func TestRegistry_UpdateConfig_EvictsChangedProvider(t *testing.T) {
	t.Parallel()
	old := testConfig(false)
	prov := &llmmock.Provider{
		Script: []llmmock.Turn{{Response: &llm.CompletionResponse{Content: "hi"}}},
	}
	reg := newTestRegistry(t, old, prov, nil)

	next := testConfig(false)
	next.Models[0].Params = map[string]any{"temperature": 0.1}
	reg.UpdateConfig(next, config.Diff(old, next))

	// The changed model's provider was evicted; with no factory registered
	// for its type the next completion must fail at construction.
	_, err := reg.Complete(context.Background(), completion.Request{Prompt: "go"})
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("expected ErrProviderNotRegistered after eviction, got %v", err)
	}
	if len(prov.CompleteCalls) != 0 {
		t.Errorf("stale provider received %d calls after eviction", len(prov.CompleteCalls))
	}
}

func TestRegistry_UpdateConfig_RepointsSelectionOffRemovedModel(t *testing.T) {
	t.Parallel()
	old := testConfig(false)
	old.Models = append(old.Models, config.ModelConfig{ID: "m2", Provider: "p1", ModelName: "mock-model-2"})
	reg := newTestRegistry(t, old, &llmmock.Provider{}, nil)
	if err := reg.SetCurrent("m2"); err != nil {
		t.Fatalf("SetCurrent(m2): %v", err)
	}

	next := testConfig(false) // m2 is gone, default_model stays m1
	reg.UpdateConfig(next, config.Diff(old, next))

	if reg.CurrentModel() != "m1" {
		t.Errorf("selection after removing current model = %q, want the default", reg.CurrentModel())
	}
}

func TestComplete_UnregisteredProviderType(t *testing.T) {
	t.Parallel()
	// No factory registered for "mocktype" and no pre-populated provider.
	reg := newTestRegistry(t, testConfig(false), nil, nil)

	_, err := reg.Complete(context.Background(), completion.Request{Prompt: "go"})
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("expected ErrProviderNotRegistered, got %v", err)
	}
}
