package completion

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/pfahlr/llm-writer/internal/config"
	"github.com/pfahlr/llm-writer/internal/mcp"
	"github.com/pfahlr/llm-writer/internal/mcp/render"
	"github.com/pfahlr/llm-writer/pkg/provider/llm"
	"github.com/pfahlr/llm-writer/pkg/types"
)

// toolEventSnippetLen bounds the payload digest in tool event log lines.
const toolEventSnippetLen = 80

// Request describes one completion operation.
type Request struct {
	// Prompt is the user's prompt text. Required.
	Prompt string

	// SystemPrompt is an optional caller system instruction, concatenated
	// with the model's configured system prompt and the tool instructions.
	SystemPrompt string

	// Model selects a registered model id. Empty means the registry's
	// current selection.
	Model string

	// Params holds per-call generation parameter overrides, layered over the
	// process defaults and the model's own params.
	Params map[string]any

	// Stream opts into incremental delivery: rounds after the first are
	// issued as streaming calls and OnChunk receives each text fragment.
	Stream bool

	// OnChunk receives text fragments in arrival order when Stream is set.
	OnChunk func(text string)
}

// IterationConfig is the resolved tool-iteration policy for one completion:
// model-level override → global config → built-in defaults.
type IterationConfig struct {
	// MaxRounds caps tool rounds per completion. Always in [1, 20].
	MaxRounds int

	// DetectLoops enables repeated-call detection.
	DetectLoops bool

	// LoopWindow is the sliding window size for duplicate detection.
	LoopWindow int
}

// iterationFor resolves the iteration policy for a model.
func (r *Registry) iterationFor(model config.ModelConfig) IterationConfig {
	r.mu.Lock()
	global := r.iteration
	r.mu.Unlock()

	cfg := IterationConfig{
		MaxRounds:   config.DefaultMaxRounds,
		DetectLoops: true,
		LoopWindow:  config.DefaultLoopWindow,
	}
	if global.MaxRounds != 0 {
		cfg.MaxRounds = global.MaxRounds
	}
	if global.DetectLoops != nil {
		cfg.DetectLoops = *global.DetectLoops
	}
	if global.LoopWindow != 0 {
		cfg.LoopWindow = global.LoopWindow
	}
	if t := model.Tools; t != nil {
		if t.MaxRounds != nil {
			cfg.MaxRounds = *t.MaxRounds
		}
		if t.DetectLoops != nil {
			cfg.DetectLoops = *t.DetectLoops
		}
		if t.LoopWindow != nil {
			cfg.LoopWindow = *t.LoopWindow
		}
	}
	return cfg
}

// opState is the mutable state of one completion attempt. It is created
// fresh inside [Registry.Complete] and never stored on the Registry, so
// concurrent completions against the same Registry cannot interfere.
type opState struct {
	conversation    []types.Message
	rounds          int
	detector        *loopDetector
	functionsActive bool

	// hasSystem records whether conversation[0] is the system message, so a
	// mid-operation capability downgrade can rewrite the tool instructions
	// in place.
	hasSystem bool
}

// operation bundles everything one completion attempt needs: the resolved
// provider, the prepared tool surface, and the per-attempt state.
type operation struct {
	provider    llm.Provider
	providerCfg config.ProviderConfig
	model       config.ModelConfig
	params      map[string]any
	catalog     map[string][]mcp.ToolInfo
	toolCount   int
	toolDefs    []types.ToolDefinition
	baseSystem  string
	iter        IterationConfig
	state       *opState
	req         Request
}

// modelTurn is the normalized outcome of one provider call: either a final
// answer (req == nil) or a tool request. call is the structured tool-call
// object when the request arrived via function calling, nil for the textual
// convention.
type modelTurn struct {
	text string
	call *types.ToolCall
	req  *ToolRequest
}

// Complete runs one completion operation: prompt in, final text out,
// possibly spanning several tool-call rounds. It is safe to call
// concurrently; every invocation carries its own state.
func (r *Registry) Complete(ctx context.Context, req Request) (string, error) {
	model, providerCfg, err := r.resolve(req.Model)
	if err != nil {
		return "", err
	}
	provider, err := r.providerFor(model.ID, model, providerCfg)
	if err != nil {
		return "", err
	}

	r.metrics.ActiveCompletions.Add(ctx, 1)
	start := time.Now()
	defer func() {
		r.metrics.ActiveCompletions.Add(ctx, -1)
		r.metrics.CompletionDuration.Record(ctx, time.Since(start).Seconds(),
			metric.WithAttributes(attribute.String("model", model.ID)))
	}()

	// Tool surface. Catalog collection only happens when tool servers are
	// configured; the no-tools path never touches the executor.
	var catalog map[string][]mcp.ToolInfo
	toolCount := 0
	if r.exec != nil && len(r.serverIDs) > 0 {
		catalog = CollectCatalog(ctx, r.exec, r.serverIDs)
		for _, tools := range catalog {
			toolCount += len(tools)
		}
	}

	op := &operation{
		provider:    provider,
		providerCfg: providerCfg,
		model:       model,
		params:      MergeParams(r.generationDefaults(), model.Params, req.Params),
		catalog:     catalog,
		toolCount:   toolCount,
		baseSystem:  joinSections(model.SystemPrompt, req.SystemPrompt),
		iter:        r.iterationFor(model),
		req:         req,
	}
	op.state = &opState{
		detector:        newLoopDetector(op.iter),
		functionsActive: toolCount > 0 && r.caps.SupportsFunctions(providerCfg.Type),
	}
	if op.state.functionsActive {
		op.toolDefs = []types.ToolDefinition{BuildBridgeTool(catalog)}
	}

	if sys := systemContent(op.baseSystem, catalog, toolCount, op.state.functionsActive); sys != "" {
		op.state.conversation = append(op.state.conversation, types.Message{Role: types.RoleSystem, Content: sys})
		op.state.hasSystem = true
	}
	op.state.conversation = append(op.state.conversation, types.Message{Role: types.RoleUser, Content: req.Prompt})

	return r.runLoop(ctx, op)
}

// runLoop drives the round state machine until a terminal condition: final
// text, an error, or the iteration budget.
func (r *Registry) runLoop(ctx context.Context, op *operation) (string, error) {
	state := op.state
	for {
		creq := llm.CompletionRequest{
			Messages: state.conversation,
			Params:   op.params,
		}
		if state.functionsActive {
			creq.Tools = op.toolDefs
		}

		resp, canceled, err := r.issueRound(ctx, op, creq)
		if canceled {
			// Stream cancellation hands back whatever arrived.
			return resp.Content, nil
		}
		if err != nil {
			if state.functionsActive && llm.IsUnsupportedToolsError(err) {
				// Capability mismatch: permanently downgrade the provider
				// type and replay the same round via the textual convention.
				// Does not consume the tool-round budget.
				if r.caps.Downgrade(op.providerCfg.Type) {
					r.metrics.RecordCapabilityDowngrade(ctx, op.providerCfg.Type)
					slog.Info("provider rejected structured tools; switching to textual convention",
						"provider", op.providerCfg.Type,
						"model", op.model.ID,
					)
				}
				state.functionsActive = false
				rewriteSystemMessage(state, op.baseSystem, op.catalog, op.toolCount)
				continue
			}
			r.metrics.RecordProviderError(ctx, op.providerCfg.Type)
			return "", fmt.Errorf("completion: model %q: provider call failed: %w", op.model.ID, err)
		}
		r.metrics.RecordProviderRequest(ctx, op.providerCfg.Type, "ok")

		turn, err := normalizeTurn(resp, !state.functionsActive && op.toolCount > 0)
		if err != nil {
			return "", err
		}

		// Final answer.
		if turn.req == nil {
			if strings.TrimSpace(turn.text) == "" {
				return "", fmt.Errorf("%w: model %q returned no text; the prompt may have been filtered or truncated, try rephrasing or simplifying it", ErrEmptyResponse, op.model.ID)
			}
			return turn.text, nil
		}

		// Tool requested. Budget is checked before dispatch.
		if state.rounds >= op.iter.MaxRounds {
			return "", fmt.Errorf("%w: model %q requested %s:%s after %d round(s); raise tools.max_rounds or simplify the prompt", ErrIterationLimit, op.model.ID, turn.req.Server, turn.req.Tool, state.rounds)
		}
		if state.detector.Observe(CallSignature(turn.req.Server, turn.req.Tool, turn.req.Params)) {
			r.metrics.LoopsDetected.Add(ctx, 1)
			return "", fmt.Errorf("%w: model %q repeated %s:%s with identical parameters", ErrToolCallLoop, op.model.ID, turn.req.Server, turn.req.Tool)
		}

		echo, err := r.dispatch(ctx, turn.req)
		if err != nil {
			return "", err
		}

		// Append the request/result pair. Structured calls use the native
		// tool role; the textual convention echoes the result as a user turn
		// because the provider has no tool channel.
		if turn.call != nil {
			state.conversation = append(state.conversation,
				types.Message{Role: types.RoleAssistant, Content: turn.text, ToolCalls: []types.ToolCall{*turn.call}},
				types.Message{Role: types.RoleTool, ToolCallID: turn.call.ID, Content: echo},
			)
		} else {
			state.conversation = append(state.conversation,
				types.Message{Role: types.RoleAssistant, Content: turn.text},
				types.Message{Role: types.RoleUser, Content: echo},
			)
		}
		state.rounds++
	}
}

// issueRound performs one provider call, honouring the streaming policy:
// the first round is always non-streaming; later rounds stream when the
// caller opted in, falling back to a non-streaming reissue if a tool-call
// fragment appears mid-stream. The returned canceled flag is set when the
// caller's context ended mid-stream; resp then carries the accumulated text.
func (r *Registry) issueRound(ctx context.Context, op *operation, creq llm.CompletionRequest) (resp *llm.CompletionResponse, canceled bool, err error) {
	callStart := time.Now()
	defer func() {
		r.metrics.ProviderDuration.Record(ctx, time.Since(callStart).Seconds(),
			metric.WithAttributes(attribute.String("provider", op.providerCfg.Type)))
	}()

	if op.req.Stream && op.state.rounds > 0 {
		text, sawToolCall, streamCanceled, serr := r.streamRound(ctx, op.provider, creq, op.req.OnChunk)
		if streamCanceled {
			return &llm.CompletionResponse{Content: text}, true, nil
		}
		if serr != nil {
			return nil, false, serr
		}
		if !sawToolCall {
			return &llm.CompletionResponse{Content: text}, false, nil
		}
		// A tool call surfaced mid-stream: reissue the identical round
		// non-streaming so tool handling stays on one code path.
	}

	resp, err = op.provider.Complete(ctx, creq)
	return resp, false, err
}

// normalizeTurn reduces a provider response to a tagged modelTurn in one
// place, so the state machine never inspects raw response shape again. When
// scanTextual is set (functions inactive but tools exist) the text is
// additionally scanned for the textual convention.
func normalizeTurn(resp *llm.CompletionResponse, scanTextual bool) (*modelTurn, error) {
	if len(resp.ToolCalls) > 0 {
		// Only the first of multiple simultaneous calls is processed; serial
		// ordering is a deliberate property of the round design.
		call := resp.ToolCalls[0]
		treq, err := ParseStructured(call)
		if err != nil {
			return nil, err
		}
		return &modelTurn{text: resp.Content, call: &call, req: treq}, nil
	}

	if scanTextual {
		treq, err := ParseTextual(resp.Content)
		if err != nil {
			return nil, err
		}
		if treq != nil {
			return &modelTurn{text: resp.Content, req: treq}, nil
		}
	}

	return &modelTurn{text: resp.Content}, nil
}

// dispatch executes a validated tool request and returns the echo message
// appended to the conversation. Executor failures are fatal to the round and
// propagate unchanged.
func (r *Registry) dispatch(ctx context.Context, treq *ToolRequest) (string, error) {
	execStart := time.Now()
	result, err := r.exec.CallTool(ctx, treq.Server, treq.Tool, treq.Params)
	r.metrics.ToolExecutionDuration.Record(ctx, time.Since(execStart).Seconds(),
		metric.WithAttributes(
			attribute.String("server", treq.Server),
			attribute.String("tool", treq.Tool),
		))
	if err != nil {
		r.metrics.RecordToolCall(ctx, treq.Server, treq.Tool, "error")
		return "", fmt.Errorf("completion: tool %s:%s failed: %w", treq.Server, treq.Tool, err)
	}
	r.metrics.RecordToolCall(ctx, treq.Server, treq.Tool, "ok")

	r.recordToolEvent(fmt.Sprintf("Tool %s:%s params=%v result=%s",
		treq.Server, treq.Tool, treq.Params, render.Summarize(result.Payload, toolEventSnippetLen)))

	return EchoToolResult(treq.Server, treq.Tool, render.ForLLM(treq.Server, treq.Tool, result.Payload)), nil
}

// systemContent composes the full system message from the base prompt and
// the tool instructions. Empty when there is neither.
func systemContent(baseSystem string, catalog map[string][]mcp.ToolInfo, toolCount int, functionsActive bool) string {
	if toolCount == 0 {
		return baseSystem
	}
	return joinSections(baseSystem, BuildSystemInstruction(catalog, functionsActive))
}

// rewriteSystemMessage swaps the tool instructions in the conversation's
// system message to the textual-convention variant after a capability
// downgrade.
func rewriteSystemMessage(state *opState, baseSystem string, catalog map[string][]mcp.ToolInfo, toolCount int) {
	content := systemContent(baseSystem, catalog, toolCount, false)
	if content == "" {
		return
	}
	if state.hasSystem {
		state.conversation[0].Content = content
		return
	}
	state.conversation = append([]types.Message{{Role: types.RoleSystem, Content: content}}, state.conversation...)
	state.hasSystem = true
}

// joinSections concatenates non-empty prompt sections with a blank line.
func joinSections(sections ...string) string {
	var parts []string
	for _, s := range sections {
		if strings.TrimSpace(s) != "" {
			parts = append(parts, strings.TrimSpace(s))
		}
	}
	return strings.Join(parts, "\n\n")
}
