package gateway

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/contextlabs/ragway/internal/backend/adapters"
	"github.com/contextlabs/ragway/internal/httputil"
)

// streamState tracks the translator's progress through one backend stream.
type streamState int

const (
	streamOpen     streamState = iota // headers sent, no backend event yet
	streamEmitting                    // at least one event forwarded
	streamDone                        // backend signalled completion
)

// streamChunks converts a backend event sequence into the canonical streaming
// protocol: one `data: <chunk>` frame per event, in arrival order, flushed as
// it arrives, terminated by exactly one `data: [DONE]` sentinel frame. A
// channel that closes without a Done event is a truncated stream: whatever
// was already sent stands, and the sentinel is still emitted so the caller
// sees a complete protocol exchange. Returns the number of chunk frames
// written and whether the backend signalled a clean finish.
func streamChunks(w http.ResponseWriter, reqID string, events <-chan adapters.StreamEvent) (int, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		httputil.WriteInternalError(w, reqID, "Streaming not supported")
		return 0, false
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Request-ID", reqID)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	state := streamOpen
	chunks := 0

	for event := range events {
		if event.Err != nil {
			slog.Error("backend stream error", "request_id", reqID, "error", event.Err)
			break
		}
		if event.Done {
			state = streamDone
			break
		}

		fmt.Fprintf(w, "data: %s\n\n", event.Data)
		flusher.Flush()
		chunks++
		state = streamEmitting
	}

	if state != streamDone {
		slog.Warn("stream ended without done signal, closing as truncated",
			"request_id", reqID, "chunks", chunks)
	}

	// The sentinel is emitted exactly once, always last.
	fmt.Fprintf(w, "data: [DONE]\n\n")
	flusher.Flush()
	return chunks, state == streamDone
}
