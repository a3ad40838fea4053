package adapters

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/contextlabs/ragway/internal/config"
	"github.com/contextlabs/ragway/internal/types"
)

// TranslatingAdapter talks to backends that speak a single-prompt completion
// protocol (the Ollama generate API) with no concept of multi-turn roles or
// chunk envelopes. The ordered message sequence is flattened into one
// "{role}: {content}" line per message, and canonical envelopes are
// synthesized on the way back: one fresh completion id per request, the
// backend's done flag mapped to finish_reason, and unknown usage counts.
type TranslatingAdapter struct {
	name   string
	cfg    config.BackendConfig
	client *http.Client

	// Injected for deterministic tests.
	now   func() time.Time
	newID func() string
}

func NewTranslatingAdapter(name string, cfg config.BackendConfig, client *http.Client) *TranslatingAdapter {
	return &TranslatingAdapter{
		name:   name,
		cfg:    cfg,
		client: client,
		now:    time.Now,
		newID:  func() string { return "chatcmpl-" + uuid.NewString() },
	}
}

func (a *TranslatingAdapter) Name() string { return a.name }

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// flattenPrompt converts the ordered message sequence into one
// newline-delimited prompt, one "{role}: {content}" line per message.
func flattenPrompt(messages []types.Message) string {
	lines := make([]string, len(messages))
	for i, m := range messages {
		lines[i] = m.Role + ": " + m.Content
	}
	return strings.Join(lines, "\n")
}

func (a *TranslatingAdapter) model(req *types.ChatRequest) string {
	if req.Model != "" {
		return req.Model
	}
	return a.cfg.Model
}

func (a *TranslatingAdapter) buildRequest(ctx context.Context, req *types.ChatRequest, stream bool) (*http.Request, error) {
	data, err := json.Marshal(generateRequest{
		Model:  a.model(req),
		Prompt: flattenPrompt(req.Messages),
		Stream: stream,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal generate request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.BaseURL+"/api/generate", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create http request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	return httpReq, nil
}

func (a *TranslatingAdapter) Invoke(ctx context.Context, req *types.ChatRequest) (*types.Completion, error) {
	httpReq, err := a.buildRequest(ctx, req, false)
	if err != nil {
		return nil, err
	}

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("translating request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read translating response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &Error{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var genResp generateResponse
	if err := json.Unmarshal(body, &genResp); err != nil {
		return nil, fmt.Errorf("unmarshal translating response: %w", err)
	}

	return &types.Completion{
		ID:      a.newID(),
		Object:  types.ObjectCompletion,
		Created: a.now().Unix(),
		Model:   a.model(req),
		Choices: []types.Choice{
			{
				Index:        0,
				Message:      types.Message{Role: types.RoleAssistant, Content: genResp.Response},
				FinishReason: types.FinishStop,
			},
		},
		Usage: types.UnknownUsage(),
	}, nil
}

func (a *TranslatingAdapter) InvokeStream(ctx context.Context, req *types.ChatRequest) (<-chan StreamEvent, error) {
	httpReq, err := a.buildRequest(ctx, req, true)
	if err != nil {
		return nil, err
	}

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("translating stream request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, &Error{StatusCode: resp.StatusCode, Body: string(body)}
	}

	// One synthesized completion id covers every chunk of this request.
	id := a.newID()
	model := a.model(req)

	ch := make(chan StreamEvent)
	go func() {
		defer close(ch)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}

			var genResp generateResponse
			if err := json.Unmarshal([]byte(line), &genResp); err != nil {
				select {
				case ch <- StreamEvent{Err: fmt.Errorf("decode generate line: %w", err)}:
				case <-ctx.Done():
				}
				return
			}

			chunk := a.synthesizeChunk(id, model, genResp)
			data, err := json.Marshal(chunk)
			if err != nil {
				select {
				case ch <- StreamEvent{Err: fmt.Errorf("marshal chunk: %w", err)}:
				case <-ctx.Done():
				}
				return
			}

			select {
			case ch <- StreamEvent{Data: data}:
			case <-ctx.Done():
				return
			}

			if genResp.Done {
				select {
				case ch <- StreamEvent{Done: true}:
				case <-ctx.Done():
				}
				return
			}
		}
		if err := scanner.Err(); err != nil {
			select {
			case ch <- StreamEvent{Err: err}:
			case <-ctx.Done():
			}
		}
	}()

	return ch, nil
}

// synthesizeChunk wraps one generate line in a canonical chunk envelope.
// finish_reason is "stop" on the done line and null while the stream continues.
func (a *TranslatingAdapter) synthesizeChunk(id, model string, genResp generateResponse) *types.Chunk {
	var finish *string
	if genResp.Done {
		stop := types.FinishStop
		finish = &stop
	}
	return &types.Chunk{
		ID:      id,
		Object:  types.ObjectChunk,
		Created: a.now().Unix(),
		Model:   model,
		Choices: []types.ChunkChoice{
			{
				Index:        0,
				Delta:        types.Delta{Content: genResp.Response},
				FinishReason: finish,
			},
		},
	}
}
