package completion

import (
	"context"
	"fmt"
	"strings"

	"github.com/pfahlr/llm-writer/pkg/provider/llm"
)

// streamRound issues one streaming provider call and assembles the result.
//
// Return values:
//   - text: the concatenation of all text fragments received so far.
//   - sawToolCall: a tool-call fragment arrived; the partial stream was
//     drained and the caller must reissue the round non-streaming.
//   - canceled: the caller's context ended mid-stream; text carries what
//     accumulated, which the caller returns rather than discards.
//   - err: the stream failed to open or reported a mid-stream error.
//
// Each text fragment is forwarded to onChunk in arrival order before being
// appended. Tool-call fragments are never forwarded.
func (r *Registry) streamRound(ctx context.Context, provider llm.Provider, creq llm.CompletionRequest, onChunk func(string)) (text string, sawToolCall, canceled bool, err error) {
	ch, err := provider.StreamCompletion(ctx, creq)
	if err != nil {
		return "", false, false, err
	}

	var b strings.Builder
	for {
		select {
		case <-ctx.Done():
			return b.String(), false, true, nil
		case chunk, ok := <-ch:
			if !ok {
				return b.String(), false, false, nil
			}
			if chunk.FinishReason == llm.FinishReasonError {
				return b.String(), false, false, fmt.Errorf("completion: stream failed: %s", chunk.Text)
			}
			if len(chunk.ToolCalls) > 0 || chunk.FinishReason == llm.FinishReasonToolCalls {
				// Abort the partial stream; the round is reissued
				// non-streaming so tool handling has one code path.
				return b.String(), true, false, nil
			}
			if chunk.Text != "" {
				if onChunk != nil {
					onChunk(chunk.Text)
				}
				b.WriteString(chunk.Text)
			}
		}
	}
}
