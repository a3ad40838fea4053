// Package adapters defines the contract between the gateway and inference
// backends, plus one adapter per backend protocol. Adapters normalize each
// provider's native request/response/streaming shape to the canonical
// completion and chunk shapes; the dispatcher never sees a provider-specific
// payload.
package adapters

import (
	"context"
	"fmt"

	"github.com/contextlabs/ragway/internal/types"
)

// Backend is implemented once per inference provider protocol.
type Backend interface {
	Name() string

	// Invoke sends one non-streaming request and returns the canonical
	// completion. Exactly one backend round trip; the gateway never retries.
	Invoke(ctx context.Context, req *types.ChatRequest) (*types.Completion, error)

	// InvokeStream issues one streaming request and returns a finite,
	// non-restartable event sequence. Events arrive in backend order, one per
	// backend line. The channel is closed when the stream ends; a Done event
	// precedes close on a clean finish. Cancelling ctx aborts the in-flight
	// backend request.
	InvokeStream(ctx context.Context, req *types.ChatRequest) (<-chan StreamEvent, error)
}

// StreamEvent is one unit of a backend stream. Data holds the JSON-encoded
// canonical chunk payload for one SSE frame. The passthrough adapter relays
// the backend's own chunk framing verbatim; the translating adapter marshals
// a synthesized types.Chunk.
type StreamEvent struct {
	Data []byte
	Done bool
	Err  error
}

// Error is a non-2xx reply from the backend. The status code and body are
// surfaced to the caller unchanged; the gateway cannot recover a failed
// generation.
type Error struct {
	StatusCode int
	Body       string
}

func (e *Error) Error() string {
	return fmt.Sprintf("backend returned status %d: %s", e.StatusCode, e.Body)
}
