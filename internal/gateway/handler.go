package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/contextlabs/ragway/internal/backend"
	"github.com/contextlabs/ragway/internal/backend/adapters"
	"github.com/contextlabs/ragway/internal/config"
	"github.com/contextlabs/ragway/internal/httputil"
	"github.com/contextlabs/ragway/internal/metadata"
	"github.com/contextlabs/ragway/internal/telemetry"
	"github.com/contextlabs/ragway/internal/types"
)

// contextPreamble prefixes the retrieved context in the synthetic system
// message injected ahead of the conversation.
const contextPreamble = "Use the following context to answer the user's question:\n\n"

// ContextRetriever assembles the retrieved context block for one query.
type ContextRetriever interface {
	RetrieveContext(ctx context.Context, query string) string
}

// UsageLogger persists one usage record per completed request.
type UsageLogger interface {
	LogUsage(ctx context.Context, log *metadata.UsageLog) error
}

// VectorStoreLister probes the vector store; the health surface reports its
// reachability and collection count alongside the backend circuit states.
type VectorStoreLister interface {
	ListCollections(ctx context.Context) ([]string, error)
}

// Handler holds dependencies for the gateway HTTP handlers. Everything is
// injected; the handler keeps no per-request state.
type Handler struct {
	registry    *backend.Registry
	health      *backend.HealthTracker
	retriever   ContextRetriever
	vectors     VectorStoreLister
	usage       UsageLogger
	metrics     *telemetry.Metrics
	backendsCfg func() *config.BackendsConfig
}

func NewHandler(
	registry *backend.Registry,
	health *backend.HealthTracker,
	retriever ContextRetriever,
	vectors VectorStoreLister,
	usage UsageLogger,
	metrics *telemetry.Metrics,
	backendsCfg func() *config.BackendsConfig,
) *Handler {
	return &Handler{
		registry:    registry,
		health:      health,
		retriever:   retriever,
		vectors:     vectors,
		usage:       usage,
		metrics:     metrics,
		backendsCfg: backendsCfg,
	}
}

// ChatCompletions handles POST /v1/chat/completions: normalize, retrieve,
// augment, dispatch to the configured backend, translate the response.
// Exactly one backend round trip per inbound request, no retries.
func (h *Handler) ChatCompletions(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")
	receivedAt := time.Now()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		httputil.WriteBadRequestError(w, reqID, "Failed to read request body")
		return
	}
	defer r.Body.Close()

	req, err := normalizeRequest(body)
	if err != nil {
		httputil.WriteBadRequestError(w, reqID, err.Error())
		return
	}

	// Retrieval runs on the last user utterance; a conversation with no user
	// turn retrieves nothing and proceeds on its own messages.
	contextBlock := h.retriever.RetrieveContext(r.Context(), req.LastUserContent())
	if contextBlock != "" {
		req = req.WithSystemContext(contextPreamble + contextBlock)
	}

	b, err := h.registry.Active()
	if err != nil {
		slog.Error("no active backend", "request_id", reqID, "error", err)
		httputil.WriteInternalError(w, reqID, "Gateway backend misconfigured")
		return
	}

	if req.Stream {
		h.handleStream(w, r, reqID, b, req, receivedAt)
		return
	}

	completion, err := b.Invoke(r.Context(), req)
	if err != nil {
		h.health.RecordFailure(b.Name())
		h.writeBackendFailure(w, reqID, b.Name(), err)
		h.recordRequest(b.Name(), req, "error", receivedAt, nil)
		return
	}
	h.health.RecordSuccess(b.Name())

	duration := time.Since(receivedAt)
	slog.Info("request completed",
		"request_id", reqID,
		"backend", b.Name(),
		"model", completion.Model,
		"prompt_tokens", completion.Usage.PromptTokens,
		"completion_tokens", completion.Usage.CompletionTokens,
		"duration_ms", duration.Milliseconds(),
		"stream", false,
	)
	h.recordRequest(b.Name(), req, "200", receivedAt, completion)
	h.logUsage(&metadata.UsageLog{
		RequestID:        reqID,
		Backend:          b.Name(),
		Model:            completion.Model,
		Stream:           false,
		PromptTokens:     completion.Usage.PromptTokens,
		CompletionTokens: completion.Usage.CompletionTokens,
		DurationMs:       duration.Milliseconds(),
	})

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(completion)
}

// handleStream dispatches the streaming variant and forwards canonical chunk
// frames to the client as they arrive.
func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request, reqID string, b adapters.Backend, req *types.ChatRequest, receivedAt time.Time) {
	events, err := b.InvokeStream(r.Context(), req)
	if err != nil {
		h.health.RecordFailure(b.Name())
		h.writeBackendFailure(w, reqID, b.Name(), err)
		h.recordRequest(b.Name(), req, "error", receivedAt, nil)
		return
	}

	chunks, completed := streamChunks(w, reqID, events)

	// The stream's health outcome is only known once it has drained: a
	// truncated or errored stream is a backend failure even though the
	// client already got a 200.
	if completed {
		h.health.RecordSuccess(b.Name())
	} else {
		h.health.RecordFailure(b.Name())
	}

	duration := time.Since(receivedAt)
	slog.Info("stream completed",
		"request_id", reqID,
		"backend", b.Name(),
		"model", req.Model,
		"chunks", chunks,
		"duration_ms", duration.Milliseconds(),
		"stream", true,
	)
	if h.metrics != nil {
		h.metrics.RecordStreamChunks(b.Name(), chunks)
	}
	h.recordRequest(b.Name(), req, "200", receivedAt, nil)
	h.logUsage(&metadata.UsageLog{
		RequestID:        reqID,
		Backend:          b.Name(),
		Model:            req.Model,
		Stream:           true,
		PromptTokens:     types.UsageUnknown,
		CompletionTokens: types.UsageUnknown,
		DurationMs:       duration.Milliseconds(),
	})
}

// writeBackendFailure surfaces a backend error to the caller: a non-2xx
// backend reply keeps its status code and body; transport failures map to
// 502. The gateway never retries.
func (h *Handler) writeBackendFailure(w http.ResponseWriter, reqID, name string, err error) {
	var backendErr *adapters.Error
	if errors.As(err, &backendErr) {
		slog.Error("backend returned error",
			"request_id", reqID,
			"backend", name,
			"status", backendErr.StatusCode,
		)
		httputil.WriteBackendError(w, reqID, backendErr.StatusCode, backendErr.Body)
		return
	}
	slog.Error("backend unreachable", "request_id", reqID, "backend", name, "error", err)
	httputil.WriteBadGatewayError(w, reqID, "Backend request failed")
}

func (h *Handler) recordRequest(name string, req *types.ChatRequest, status string, receivedAt time.Time, completion *types.Completion) {
	if h.metrics == nil {
		return
	}
	labels := telemetry.RequestLabels{
		Backend:    name,
		Model:      req.Model,
		Status:     status,
		Stream:     req.Stream,
		DurationMs: float64(time.Since(receivedAt).Milliseconds()),
	}
	if completion != nil {
		labels.Model = completion.Model
		labels.PromptTokens = completion.Usage.PromptTokens
		labels.CompletionTokens = completion.Usage.CompletionTokens
	}
	h.metrics.RecordRequest(labels)
}

// logUsage writes the usage record off the request path; a failed write is
// logged and dropped.
func (h *Handler) logUsage(log *metadata.UsageLog) {
	if h.usage == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := h.usage.LogUsage(ctx, log); err != nil {
			slog.Error("failed to log usage", "request_id", log.RequestID, "error", err)
		}
	}()
}
