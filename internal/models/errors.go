// ABOUTME: Sentinel errors for the orchestration core
// ABOUTME: Callers match with errors.Is; infrastructure errors are wrapped
package models

import "errors"

var (
	// ErrUnsupportedFormat indicates a document format the processor cannot read.
	ErrUnsupportedFormat = errors.New("unsupported document format")

	// ErrNotFound indicates a requested document does not exist.
	ErrNotFound = errors.New("document not found")

	// ErrEmbeddingFailure indicates embedding generation failed after all retries.
	ErrEmbeddingFailure = errors.New("embedding generation failed")

	// ErrLLMUnavailable indicates the chat model was unreachable after all retries.
	ErrLLMUnavailable = errors.New("llm unavailable")

	// ErrLLMTimeout indicates the chat model call timed out.
	ErrLLMTimeout = errors.New("llm request timed out")

	// ErrToolSelectionAmbiguous indicates the model invoked the escalation tool
	// with an argument matching no known category. Treated as "no tool".
	ErrToolSelectionAmbiguous = errors.New("tool selection ambiguous")

	// ErrConfirmationExpired indicates the pending confirmation is gone,
	// either swept by TTL or already resolved.
	ErrConfirmationExpired = errors.New("confirmation expired")

	// ErrConfirmationForbidden indicates a user other than the originator
	// attempted to resolve a pending confirmation.
	ErrConfirmationForbidden = errors.New("confirmation forbidden")

	// ErrEscalationFailed indicates the external ticket executor reported failure.
	ErrEscalationFailed = errors.New("escalation execution failed")
)
