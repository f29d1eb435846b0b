package completion

import (
	"errors"
	"fmt"
)

// Sentinel errors for the completion pipeline. Callers are expected to test
// them with [errors.Is]; the wrapped messages carry the offending model,
// provider, or tool name.
var (
	// ErrUnknownModel is returned when a model id is not registered.
	ErrUnknownModel = errors.New("completion: unknown model")

	// ErrUnknownProvider is returned when a model references a provider id
	// that is not present in configuration.
	ErrUnknownProvider = errors.New("completion: unknown provider")

	// ErrMissingCredential is returned when neither a literal API key nor a
	// resolvable environment variable yields a non-empty secret.
	ErrMissingCredential = errors.New("completion: missing credential")

	// ErrMalformedToolCall is returned when a tool call cannot be parsed:
	// bad JSON, non-object arguments, or missing server/tool keys.
	ErrMalformedToolCall = errors.New("completion: malformed tool call")

	// ErrToolCallLoop is returned when the model repeats an identical tool
	// call within the loop-detection window.
	ErrToolCallLoop = errors.New("completion: tool call loop detected")

	// ErrIterationLimit is returned when the tool-round budget is exhausted
	// before the model produces a final answer.
	ErrIterationLimit = errors.New("completion: tool iteration limit exceeded")

	// ErrEmptyResponse is returned when the model's final answer is empty or
	// whitespace-only, a symptom of content filtering or truncation.
	ErrEmptyResponse = errors.New("completion: empty response from model")
)

// CompletionError is returned by [Registry.CompleteWithFeedback] when every
// attempt has failed. It carries the last attempt's error so callers can
// render an actionable message instead of crashing.
type CompletionError struct {
	// Model is the id of the model the completion ran against.
	Model string

	// Attempts is the number of attempts made before giving up.
	Attempts int

	// LastErr is the error from the final attempt.
	LastErr error
}

// Error implements the error interface.
func (e *CompletionError) Error() string {
	return fmt.Sprintf("completion: model %q failed after %d attempt(s): %v", e.Model, e.Attempts, e.LastErr)
}

// Unwrap exposes the last attempt's error to [errors.Is] and [errors.As].
func (e *CompletionError) Unwrap() error {
	return e.LastErr
}
