package completion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// DefaultMaxAttempts is the attempt ceiling applied by
// [Registry.CompleteWithFeedback] when the caller passes 0.
const DefaultMaxAttempts = 2

// feedbackBlock is appended to the original prompt before a retry so the
// model can correct whatever made the previous attempt fail.
const feedbackBlock = `SYSTEM FEEDBACK:
The previous LLM completion attempt failed with the following error:
%s
Please adjust your response formatting and retry.`

// CompleteWithFeedback wraps [Registry.Complete] with bounded
// retry-with-feedback: when an attempt fails, the next one runs with the
// error message appended as a SYSTEM FEEDBACK block to the original prompt.
// Each attempt starts from the original request with fresh per-operation
// state, never from the failed attempt's conversation.
//
// maxAttempts <= 0 means [DefaultMaxAttempts]. When every attempt fails the
// returned error is a [*CompletionError] carrying the last failure.
func (r *Registry) CompleteWithFeedback(ctx context.Context, req Request, maxAttempts int) (string, error) {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	basePrompt := req.Prompt

	var lastErr error
	attemptsMade := 0
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			req.Prompt = basePrompt + "\n\n" + fmt.Sprintf(feedbackBlock, lastErr.Error())
			r.metrics.Retries.Add(ctx, 1,
				metric.WithAttributes(attribute.String("model", req.Model)))
		}

		text, err := r.Complete(ctx, req)
		attemptsMade = attempt
		if err == nil {
			return text, nil
		}
		lastErr = err
		slog.Warn("completion attempt failed",
			"model", req.Model,
			"attempt", attempt,
			"max_attempts", maxAttempts,
			"err", err,
		)

		// Configuration errors fail identically on every attempt; feedback
		// cannot conjure a missing model, provider, or credential.
		if nonRetriable(err) {
			break
		}
		// Context cancellation will not improve with feedback either.
		if ctx.Err() != nil {
			break
		}
	}

	return "", &CompletionError{Model: req.Model, Attempts: attemptsMade, LastErr: lastErr}
}

// nonRetriable reports whether err is a configuration failure that no amount
// of prompt feedback can change.
func nonRetriable(err error) bool {
	return errors.Is(err, ErrUnknownModel) ||
		errors.Is(err, ErrUnknownProvider) ||
		errors.Is(err, ErrMissingCredential)
}
