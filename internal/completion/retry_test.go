package completion_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/pfahlr/llm-writer/internal/completion"
	"github.com/pfahlr/llm-writer/pkg/provider/llm"
	llmmock "github.com/pfahlr/llm-writer/pkg/provider/llm/mock"
	"github.com/pfahlr/llm-writer/pkg/types"
)

func TestCompleteWithFeedback_RetriesWithErrorFeedback(t *testing.T) {
	t.Parallel()
	prov := &llmmock.Provider{
		Script: []llmmock.Turn{
			{Err: errors.New("boom")},
			{Response: &llm.CompletionResponse{Content: "ok"}},
		},
	}
	reg := newTestRegistry(t, testConfig(false), prov, nil)

	got, err := reg.CompleteWithFeedback(context.Background(), completion.Request{Prompt: "write a haiku"}, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "ok" {
		t.Errorf("result = %q, want %q", got, "ok")
	}
	if len(prov.CompleteCalls) != 2 {
		t.Fatalf("provider calls = %d, want 2", len(prov.CompleteCalls))
	}

	// First attempt carries the bare prompt.
	first := lastUserMessage(t, prov.CompleteCalls[0].Req.Messages)
	if first.Content != "write a haiku" {
		t.Errorf("first attempt prompt = %q, want the original", first.Content)
	}

	// The retry appends feedback to the original prompt, not to the failed
	// attempt's conversation.
	second := lastUserMessage(t, prov.CompleteCalls[1].Req.Messages)
	if !strings.HasPrefix(second.Content, "write a haiku") {
		t.Errorf("retry prompt must start from the original: %q", second.Content)
	}
	if !strings.Contains(second.Content, "SYSTEM FEEDBACK:") || !strings.Contains(second.Content, "boom") {
		t.Errorf("retry prompt missing feedback block: %q", second.Content)
	}
	if len(prov.CompleteCalls[1].Req.Messages) != 1 {
		t.Errorf("retry must start a fresh conversation, got %d messages", len(prov.CompleteCalls[1].Req.Messages))
	}
}

func TestCompleteWithFeedback_Exhaustion(t *testing.T) {
	t.Parallel()
	boom := errors.New("boom")
	prov := &llmmock.Provider{
		Script: []llmmock.Turn{{Err: boom}},
	}
	reg := newTestRegistry(t, testConfig(false), prov, nil)

	// maxAttempts 0 falls back to the default of two.
	_, err := reg.CompleteWithFeedback(context.Background(), completion.Request{Prompt: "go"}, 0)
	if err == nil {
		t.Fatal("expected failure after exhausting attempts")
	}

	var cerr *completion.CompletionError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected *CompletionError, got %T: %v", err, err)
	}
	if cerr.Model != "" || cerr.Attempts != completion.DefaultMaxAttempts {
		t.Errorf("error detail = {Model:%q Attempts:%d}, want default attempt count", cerr.Model, cerr.Attempts)
	}
	if !errors.Is(err, boom) {
		t.Error("underlying provider error must stay reachable through Unwrap")
	}
	if len(prov.CompleteCalls) != completion.DefaultMaxAttempts {
		t.Errorf("provider calls = %d, want %d", len(prov.CompleteCalls), completion.DefaultMaxAttempts)
	}
}

func TestCompleteWithFeedback_NoRetryOnUnknownModel(t *testing.T) {
	t.Parallel()
	prov := &llmmock.Provider{}
	reg := newTestRegistry(t, testConfig(false), prov, nil)

	_, err := reg.CompleteWithFeedback(context.Background(), completion.Request{Prompt: "go", Model: "ghost"}, 3)
	if !errors.Is(err, completion.ErrUnknownModel) {
		t.Fatalf("expected ErrUnknownModel, got %v", err)
	}

	// Feedback cannot fix a bad model id: one attempt, no provider traffic.
	var cerr *completion.CompletionError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected *CompletionError, got %T: %v", err, err)
	}
	if cerr.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", cerr.Attempts)
	}
	if len(prov.CompleteCalls) != 0 {
		t.Errorf("provider calls = %d, want 0", len(prov.CompleteCalls))
	}
}

func TestCompleteWithFeedback_NoRetryOnMissingCredential(t *testing.T) {
	t.Parallel()
	cfg := testConfig(false)
	cfg.Providers[0].APIKey = ""
	cfg.Providers[0].APIKeyEnv = "LLM_WRITER_TEST_NO_SUCH_KEY"
	// No pre-populated provider: construction must fail at the credential.
	reg := newTestRegistry(t, cfg, nil, nil)

	_, err := reg.CompleteWithFeedback(context.Background(), completion.Request{Prompt: "go"}, 3)
	if !errors.Is(err, completion.ErrMissingCredential) {
		t.Fatalf("expected ErrMissingCredential, got %v", err)
	}
	var cerr *completion.CompletionError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected *CompletionError, got %T: %v", err, err)
	}
	if cerr.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", cerr.Attempts)
	}
}

func TestCompleteWithFeedback_StopsOnCanceledContext(t *testing.T) {
	t.Parallel()
	prov := &llmmock.Provider{
		Script: []llmmock.Turn{{Err: errors.New("boom")}},
	}
	reg := newTestRegistry(t, testConfig(false), prov, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := reg.CompleteWithFeedback(ctx, completion.Request{Prompt: "go"}, 5)
	var cerr *completion.CompletionError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected *CompletionError, got %v", err)
	}
	if cerr.Attempts != 1 {
		t.Errorf("attempts = %d, want 1 (no retries on a dead context)", cerr.Attempts)
	}
}

// lastUserMessage returns the final user-role message of a conversation.
func lastUserMessage(t *testing.T, msgs []types.Message) types.Message {
	t.Helper()
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == types.RoleUser {
			return msgs[i]
		}
	}
	t.Fatal("no user message in conversation")
	return types.Message{}
}
