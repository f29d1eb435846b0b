// Command llm-writer runs tool-assisted LLM completions: it connects to the
// configured MCP servers, resolves the requested model, and drives the
// completion loop from prompt to final text.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pfahlr/llm-writer/internal/completion"
	"github.com/pfahlr/llm-writer/internal/config"
	"github.com/pfahlr/llm-writer/internal/mcp/mcphost"
	"github.com/pfahlr/llm-writer/internal/observe"
	"github.com/pfahlr/llm-writer/pkg/provider/llm"
	"github.com/pfahlr/llm-writer/pkg/provider/llm/anyllm"
	"github.com/pfahlr/llm-writer/pkg/provider/llm/openai"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	modelID := flag.String("model", "", "model id to complete with (default: config default_model)")
	prompt := flag.String("prompt", "", "prompt text; reads stdin when empty")
	stream := flag.Bool("stream", false, "stream the final answer to stdout as it arrives")
	loop := flag.Bool("loop", false, "complete one prompt per stdin line until EOF, hot-reloading the config file between prompts")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "llm-writer: config file %q not found; copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "llm-writer: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger, logLevel := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("llm-writer starting",
		"config", *configPath,
		"default_model", cfg.DefaultModel,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Observability ─────────────────────────────────────────────────────────
	shutdownMetrics, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "llm-writer"})
	if err != nil {
		slog.Error("failed to initialise metrics", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownMetrics(shutdownCtx); err != nil {
			slog.Warn("metrics shutdown error", "err", err)
		}
	}()

	if addr := cfg.Server.MetricsAddr; addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		go func() {
			if err := http.ListenAndServe(addr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Warn("metrics endpoint error", "addr", addr, "err", err)
			}
		}()
		slog.Info("metrics endpoint listening", "addr", addr)
	}

	// ── MCP servers ───────────────────────────────────────────────────────────
	host := mcphost.New()
	defer func() {
		if err := host.Close(); err != nil {
			slog.Warn("mcp host close error", "err", err)
		}
	}()

	if servers := cfg.MCP.ServerConfigs(); len(servers) > 0 {
		if err := host.ConnectAll(ctx, servers); err != nil {
			slog.Error("failed to connect MCP servers", "err", err)
			return 1
		}
		slog.Info("mcp servers connected", "count", len(servers))
	}

	// ── Provider registry ─────────────────────────────────────────────────────
	factories := config.NewRegistry()
	registerBuiltinProviders(factories)

	registry, err := completion.NewRegistry(cfg, factories, host)
	if err != nil {
		slog.Error("failed to build completion registry", "err", err)
		return 1
	}

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg)

	// ── Run ───────────────────────────────────────────────────────────────────
	if *loop {
		return runLoop(ctx, registry, *configPath, logLevel, *modelID, *stream)
	}

	promptText := *prompt
	if promptText == "" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			slog.Error("failed to read prompt from stdin", "err", err)
			return 1
		}
		promptText = strings.TrimSpace(string(data))
	}
	if promptText == "" {
		fmt.Fprintln(os.Stderr, "llm-writer: no prompt given (use -prompt or pipe text on stdin)")
		return 1
	}

	if err := runCompletion(ctx, registry, promptText, *modelID, *stream); err != nil {
		fmt.Fprintf(os.Stderr, "llm-writer: %v\n", err)
		return 1
	}
	return 0
}

// runCompletion executes one completion and prints the outcome to stdout.
func runCompletion(ctx context.Context, registry *completion.Registry, promptText, modelID string, stream bool) error {
	var chunked bool
	req := completion.Request{
		Prompt: promptText,
		Model:  modelID,
		Stream: stream,
	}
	if stream {
		req.OnChunk = func(text string) {
			chunked = true
			fmt.Print(text)
		}
	}

	answer, err := registry.CompleteWithFeedback(ctx, req, completion.DefaultMaxAttempts)

	for _, event := range registry.PopToolEvents() {
		slog.Info("tool event", "event", event)
	}

	if err != nil {
		return err
	}
	printAnswer(os.Stdout, answer, stream, chunked)
	return nil
}

// printAnswer writes the final text. When chunks already streamed to w only
// the line terminator is left to print; a stream request whose answer came
// from a non-streamed round (no chunks ever arrived) still prints in full.
func printAnswer(w io.Writer, answer string, stream, chunked bool) {
	if stream && chunked {
		fmt.Fprintln(w)
		return
	}
	fmt.Fprintln(w, answer)
}

// ── Loop mode ─────────────────────────────────────────────────────────────────

// runLoop completes one prompt per stdin line until EOF or interrupt. While
// it runs, the config file is watched: model edits, the default model, and
// the log level are hot-swapped between completions.
func runLoop(ctx context.Context, registry *completion.Registry, configPath string, logLevel *slog.LevelVar, modelID string, stream bool) int {
	watcher, err := config.NewWatcher(configPath, func(_, next *config.Config, d config.ConfigDiff) {
		registry.UpdateConfig(next, d)
		if d.LogLevelChanged {
			logLevel.Set(slogLevel(d.NewLogLevel))
			slog.Info("log level changed", "level", d.NewLogLevel)
		}
	})
	if err != nil {
		slog.Error("failed to watch config file", "path", configPath, "err", err)
		return 1
	}
	defer watcher.Stop()

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return 0
		}
		promptText := strings.TrimSpace(scanner.Text())
		if promptText == "" {
			continue
		}
		// One failed prompt does not end the loop.
		if err := runCompletion(ctx, registry, promptText, modelID, stream); err != nil {
			fmt.Fprintf(os.Stderr, "llm-writer: %v\n", err)
		}
	}
	if err := scanner.Err(); err != nil {
		slog.Error("failed to read prompts from stdin", "err", err)
		return 1
	}
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// anyLLMTypes lists the backend types routed through the any-llm-go factory.
// "openai" gets its own direct implementation below.
var anyLLMTypes = []string{
	"anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "openrouter",
}

// registerBuiltinProviders wires all built-in provider factories into reg.
func registerBuiltinProviders(reg *config.Registry) {
	reg.RegisterLLM("openai", func(entry config.ProviderConfig, modelName, apiKey string) (llm.Provider, error) {
		var opts []openai.Option
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		return openai.New(apiKey, modelName, opts...)
	})

	for _, providerType := range anyLLMTypes {
		reg.RegisterLLM(providerType, func(entry config.ProviderConfig, modelName, apiKey string) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if apiKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(apiKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(entry.Type, modelName, opts...)
		})
	}

	for _, providerType := range reg.RegisteredLLMTypes() {
		slog.Debug("registered provider", "type", providerType)
	}
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║        llm-writer startup summary     ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	fmt.Printf("║  Default model   : %-19s║\n", clip(cfg.DefaultModel, 19))
	fmt.Printf("║  Models          : %-19d║\n", len(cfg.Models))
	fmt.Printf("║  Providers       : %-19d║\n", len(cfg.Providers))
	fmt.Printf("║  MCP servers     : %-19d║\n", len(cfg.MCP.Servers))
	if cfg.Server.MetricsAddr != "" {
		fmt.Printf("║  Metrics addr    : %-19s║\n", clip(cfg.Server.MetricsAddr, 19))
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func clip(s string, n int) string {
	if s == "" {
		return "(not set)"
	}
	if len(s) > n {
		return s[:n-1] + "…"
	}
	return s
}

// ── Logger ─────────────────────────────────────────────────────────────────────

// newLogger builds the process logger. The returned LevelVar lets a config
// reload change verbosity without replacing the handler.
func newLogger(level config.LogLevel) (*slog.Logger, *slog.LevelVar) {
	lvl := new(slog.LevelVar)
	lvl.Set(slogLevel(level))
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})), lvl
}

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
