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

	"github.com/contextlabs/ragway/internal/config"
	"github.com/contextlabs/ragway/internal/types"
)

// PassthroughAdapter talks to backends that already speak the canonical
// chat-completion protocol (Groq, OpenAI, compatible servers). Requests are
// forwarded near-verbatim with bearer auth; streamed chunks are relayed
// without re-parsing their delta contents — the backend's framing is trusted.
type PassthroughAdapter struct {
	name   string
	cfg    config.BackendConfig
	client *http.Client
}

func NewPassthroughAdapter(name string, cfg config.BackendConfig, client *http.Client) *PassthroughAdapter {
	return &PassthroughAdapter{name: name, cfg: cfg, client: client}
}

func (a *PassthroughAdapter) Name() string { return a.name }

func (a *PassthroughAdapter) buildRequest(ctx context.Context, req *types.ChatRequest, stream bool) (*http.Request, error) {
	outbound := *req
	outbound.Stream = stream
	if outbound.Model == "" {
		outbound.Model = a.cfg.Model
	}

	data, err := json.Marshal(&outbound)
	if err != nil {
		return nil, fmt.Errorf("marshal passthrough request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.BaseURL+"/chat/completions", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create http request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)
	for k, v := range a.cfg.Headers {
		if v != "" {
			httpReq.Header.Set(k, v)
		}
	}
	return httpReq, nil
}

func (a *PassthroughAdapter) Invoke(ctx context.Context, req *types.ChatRequest) (*types.Completion, error) {
	httpReq, err := a.buildRequest(ctx, req, false)
	if err != nil {
		return nil, err
	}

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("passthrough request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read passthrough response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &Error{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var completion types.Completion
	if err := json.Unmarshal(body, &completion); err != nil {
		return nil, fmt.Errorf("unmarshal passthrough response: %w", err)
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("passthrough backend returned no choices")
	}
	return &completion, nil
}

func (a *PassthroughAdapter) InvokeStream(ctx context.Context, req *types.ChatRequest) (<-chan StreamEvent, error) {
	httpReq, err := a.buildRequest(ctx, req, true)
	if err != nil {
		return nil, err
	}

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("passthrough stream request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, &Error{StatusCode: resp.StatusCode, Body: string(body)}
	}

	ch := make(chan StreamEvent)
	go func() {
		defer close(ch)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		// Large buffer for oversized chunks
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || !strings.HasPrefix(line, "data: ") {
				continue
			}
			data := strings.TrimPrefix(line, "data: ")

			if data == "[DONE]" {
				select {
				case ch <- StreamEvent{Done: true}:
				case <-ctx.Done():
				}
				return
			}

			// One backend line, one event. The payload is relayed as-is.
			select {
			case ch <- StreamEvent{Data: []byte(data)}:
			case <-ctx.Done():
				return
			}
		}
		// Scanner stops on EOF or a dropped connection. No Done event: the
		// consumer treats channel close without Done as truncation.
		if err := scanner.Err(); err != nil {
			select {
			case ch <- StreamEvent{Err: err}:
			case <-ctx.Done():
			}
		}
	}()

	return ch, nil
}
