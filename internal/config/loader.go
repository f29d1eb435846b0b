package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"github.com/pfahlr/llm-writer/internal/mcp"
	"gopkg.in/yaml.v3"
)

// ValidProviderTypes lists the LLM backend types the service can construct.
// Used by [Validate] to warn about unrecognised types.
var ValidProviderTypes = []string{
	"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "openrouter",
}

const (
	// MaxRoundsLimit is the upper bound for tools.max_rounds.
	MaxRoundsLimit = 20

	// DefaultMaxRounds applies when tools.max_rounds is unset.
	DefaultMaxRounds = 3

	// DefaultLoopWindow applies when tools.loop_window is unset.
	DefaultLoopWindow = 2
)

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Providers
	providersSeen := make(map[string]int, len(cfg.Providers))
	for i, p := range cfg.Providers {
		prefix := fmt.Sprintf("providers[%d]", i)
		if p.ID == "" {
			errs = append(errs, fmt.Errorf("%s.id is required", prefix))
		} else {
			if prev, ok := providersSeen[p.ID]; ok {
				errs = append(errs, fmt.Errorf("%s.id %q is a duplicate of providers[%d]", prefix, p.ID, prev))
			}
			providersSeen[p.ID] = i
		}
		if p.Type == "" {
			errs = append(errs, fmt.Errorf("%s.type is required", prefix))
		} else if !slices.Contains(ValidProviderTypes, p.Type) {
			slog.Warn("unknown provider type, may be a typo or third-party backend",
				"provider", p.ID,
				"type", p.Type,
				"known", ValidProviderTypes,
			)
		}
		if p.APIKey == "" && p.APIKeyEnv == "" {
			slog.Warn("provider has neither api_key nor api_key_env; completions will fail unless the backend needs no credential",
				"provider", p.ID,
			)
		}
	}

	// Models
	modelsSeen := make(map[string]int, len(cfg.Models))
	for i, m := range cfg.Models {
		prefix := fmt.Sprintf("models[%d]", i)
		if m.ID == "" {
			errs = append(errs, fmt.Errorf("%s.id is required", prefix))
		} else {
			if prev, ok := modelsSeen[m.ID]; ok {
				errs = append(errs, fmt.Errorf("%s.id %q is a duplicate of models[%d]", prefix, m.ID, prev))
			}
			modelsSeen[m.ID] = i
		}
		if m.Provider == "" {
			errs = append(errs, fmt.Errorf("%s.provider is required", prefix))
		} else if _, ok := providersSeen[m.Provider]; !ok {
			errs = append(errs, fmt.Errorf("%s.provider %q does not match any providers[].id", prefix, m.Provider))
		}
		if m.ModelName == "" {
			errs = append(errs, fmt.Errorf("%s.model_name is required", prefix))
		}
		if m.Tools != nil {
			if mr := m.Tools.MaxRounds; mr != nil && (*mr < 1 || *mr > MaxRoundsLimit) {
				errs = append(errs, fmt.Errorf("%s.tools.max_rounds %d is out of range [1, %d]", prefix, *mr, MaxRoundsLimit))
			}
			if lw := m.Tools.LoopWindow; lw != nil && *lw < 1 {
				errs = append(errs, fmt.Errorf("%s.tools.loop_window %d must be at least 1", prefix, *lw))
			}
		}
	}

	// Default model
	if cfg.DefaultModel != "" {
		if _, ok := modelsSeen[cfg.DefaultModel]; !ok {
			errs = append(errs, fmt.Errorf("default_model %q does not match any models[].id", cfg.DefaultModel))
		}
	} else if len(cfg.Models) > 0 {
		slog.Warn("default_model is not set; completion requests must name a model explicitly")
	}

	// Tool iteration bounds
	if mr := cfg.Tools.MaxRounds; mr != 0 && (mr < 1 || mr > MaxRoundsLimit) {
		errs = append(errs, fmt.Errorf("tools.max_rounds %d is out of range [1, %d]", mr, MaxRoundsLimit))
	}
	if lw := cfg.Tools.LoopWindow; lw != 0 && lw < 1 {
		errs = append(errs, fmt.Errorf("tools.loop_window %d must be at least 1", lw))
	}

	// MCP servers
	mcpSeen := make(map[string]int, len(cfg.MCP.Servers))
	for i, srv := range cfg.MCP.Servers {
		prefix := fmt.Sprintf("mcp.servers[%d]", i)
		if srv.ID == "" {
			errs = append(errs, fmt.Errorf("%s.id is required", prefix))
		} else {
			if prev, ok := mcpSeen[srv.ID]; ok {
				errs = append(errs, fmt.Errorf("%s.id %q is a duplicate of mcp.servers[%d]", prefix, srv.ID, prev))
			}
			mcpSeen[srv.ID] = i
		}
		if srv.Transport != "" && !srv.Transport.IsValid() {
			errs = append(errs, fmt.Errorf("%s.transport %q is invalid; valid values: stdio, streamable-http", prefix, srv.Transport))
		}
		if srv.Transport == mcp.TransportStdio && srv.Command == "" {
			errs = append(errs, fmt.Errorf("%s.command is required when transport is stdio", prefix))
		}
		if srv.Transport == mcp.TransportStreamableHTTP && srv.URL == "" {
			errs = append(errs, fmt.Errorf("%s.url is required when transport is streamable-http", prefix))
		}
	}

	return errors.Join(errs...)
}
