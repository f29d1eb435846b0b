// Package config provides the configuration schema, loader, and provider
// registry for the llm-writer completion service.
package config

import "github.com/pfahlr/llm-writer/internal/mcp"

// LogLevel controls log verbosity for the llm-writer server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure for llm-writer.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server ServerConfig `yaml:"server"`

	// DefaultModel is the id of the model used when a completion request does
	// not name one. Must match an entry in Models.
	DefaultModel string `yaml:"default_model"`

	// ModelDefaults holds generation parameters applied to every model unless
	// overridden per model or per request (e.g., temperature, max_tokens).
	ModelDefaults map[string]any `yaml:"model_defaults"`

	Providers []ProviderConfig `yaml:"providers"`
	Models    []ModelConfig    `yaml:"models"`
	Tools     ToolsConfig      `yaml:"tools"`
	MCP       MCPConfig        `yaml:"mcp"`
}

// ServerConfig holds logging and metrics settings for the server process.
type ServerConfig struct {
	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// MetricsAddr is the TCP address the Prometheus metrics endpoint listens
	// on (e.g., ":9090"). Empty disables the endpoint.
	MetricsAddr string `yaml:"metrics_addr"`
}

// ProviderConfig describes one LLM backend account.
type ProviderConfig struct {
	// ID is a unique identifier for this provider entry, referenced by
	// ModelConfig.Provider.
	ID string `yaml:"id"`

	// Type selects the backend implementation (e.g., "openai", "anthropic",
	// "ollama", "mistral", "openrouter").
	Type string `yaml:"type"`

	// APIKey is the literal authentication key. Takes precedence over
	// APIKeyEnv when both are set.
	APIKey string `yaml:"api_key"`

	// APIKeyEnv names an environment variable holding the authentication key.
	// Consulted only when APIKey is empty.
	APIKeyEnv string `yaml:"api_key_env"`

	// BaseURL overrides the backend's default API endpoint.
	// Leave empty to use the backend's built-in default.
	BaseURL string `yaml:"base_url"`

	// FunctionCalling, when set, seeds the process-wide capability cache for
	// this provider type: false marks the backend as unable to accept
	// structured tool definitions up front. When nil, support is assumed
	// until the backend proves otherwise.
	FunctionCalling *bool `yaml:"function_calling"`
}

// ModelConfig describes a single named model the service can complete with.
type ModelConfig struct {
	// ID is the unique identifier callers use to select this model.
	ID string `yaml:"id"`

	// Provider references a ProviderConfig.ID.
	Provider string `yaml:"provider"`

	// ModelName is the backend-specific model identifier (e.g., "gpt-4o",
	// "claude-sonnet-4-5").
	ModelName string `yaml:"model_name"`

	// Params holds per-model generation parameters layered over
	// Config.ModelDefaults (e.g., temperature, max_tokens).
	Params map[string]any `yaml:"params"`

	// SystemPrompt is an optional system instruction sent with every
	// completion for this model.
	SystemPrompt string `yaml:"system_prompt"`

	// Tools overrides the global tool-iteration settings for this model.
	// When nil, Config.Tools applies.
	Tools *ToolsOverride `yaml:"tools"`
}

// ToolsConfig holds the global tool-iteration settings.
type ToolsConfig struct {
	// MaxRounds caps tool rounds per completion. Valid range [1, 20];
	// 0 means the default of 3.
	MaxRounds int `yaml:"max_rounds"`

	// DetectLoops enables repeated-call detection. Defaults to true; set the
	// field explicitly to false to disable.
	DetectLoops *bool `yaml:"detect_loops"`

	// LoopWindow is the sliding window size for loop detection.
	// 0 means the default of 2.
	LoopWindow int `yaml:"loop_window"`
}

// ToolsOverride holds per-model tool-iteration overrides. Nil fields fall
// through to the global [ToolsConfig].
type ToolsOverride struct {
	MaxRounds   *int  `yaml:"max_rounds"`
	DetectLoops *bool `yaml:"detect_loops"`
	LoopWindow  *int  `yaml:"loop_window"`
}

// MCPConfig holds the list of Model Context Protocol servers to connect to.
type MCPConfig struct {
	Servers []MCPServerConfig `yaml:"servers"`
}

// MCPServerConfig describes how to connect to a single MCP tool server.
type MCPServerConfig struct {
	// ID is a unique identifier for this server, used in tool instructions
	// and logs.
	ID string `yaml:"id"`

	// Transport specifies the connection mechanism.
	Transport mcp.Transport `yaml:"transport"`

	// Command is the executable (with optional arguments) launched when
	// Transport is "stdio". Ignored for streamable-http transport.
	Command string `yaml:"command"`

	// URL is the MCP endpoint address used when Transport is "streamable-http"
	// (e.g., "https://mcp.example.com/mcp"). Ignored for stdio transport.
	URL string `yaml:"url"`

	// Env holds additional environment variables injected into the subprocess
	// when Transport is "stdio". May be nil.
	Env map[string]string `yaml:"env"`
}

// ServerConfigs converts the MCP section into the connection descriptions the
// mcp host consumes.
func (m MCPConfig) ServerConfigs() []mcp.ServerConfig {
	out := make([]mcp.ServerConfig, 0, len(m.Servers))
	for _, s := range m.Servers {
		out = append(out, mcp.ServerConfig{
			ID:        s.ID,
			Transport: s.Transport,
			Command:   s.Command,
			URL:       s.URL,
			Env:       s.Env,
		})
	}
	return out
}
