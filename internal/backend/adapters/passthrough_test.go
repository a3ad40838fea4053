package adapters

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/contextlabs/ragway/internal/config"
	"github.com/contextlabs/ragway/internal/types"
)

func passthroughConfig(baseURL string) config.BackendConfig {
	return config.BackendConfig{
		Type:    config.BackendTypePassthrough,
		BaseURL: baseURL,
		APIKey:  "sk-test",
		Model:   "default-model",
		Timeout: 5 * time.Second,
	}
}

func float64Ptr(v float64) *float64 { return &v }
func intPtr(v int) *int             { return &v }

func TestPassthroughInvoke(t *testing.T) {
	var gotAuth string
	var gotBody map[string]interface{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %q, want /chat/completions", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&gotBody)

		json.NewEncoder(w).Encode(types.Completion{
			ID:      "chatcmpl-abc",
			Object:  types.ObjectCompletion,
			Model:   "upstream-model",
			Choices: []types.Choice{{Message: types.Message{Role: types.RoleAssistant, Content: "hi"}, FinishReason: types.FinishStop}},
			Usage:   types.Usage{PromptTokens: 3, CompletionTokens: 1, TotalTokens: 4},
		})
	}))
	defer server.Close()

	a := NewPassthroughAdapter("groq", passthroughConfig(server.URL), server.Client())
	completion, err := a.Invoke(context.Background(), &types.ChatRequest{
		Model:       "explicit-model",
		Messages:    []types.Message{{Role: types.RoleUser, Content: "hello"}},
		Temperature: float64Ptr(0.3),
		MaxTokens:   intPtr(128),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotAuth != "Bearer sk-test" {
		t.Errorf("Authorization = %q, want Bearer sk-test", gotAuth)
	}
	if gotBody["model"] != "explicit-model" {
		t.Errorf("forwarded model = %v, want explicit-model", gotBody["model"])
	}
	if gotBody["temperature"] != 0.3 {
		t.Errorf("temperature = %v, want 0.3", gotBody["temperature"])
	}
	if gotBody["max_tokens"] != float64(128) {
		t.Errorf("max_tokens = %v, want 128", gotBody["max_tokens"])
	}
	if _, present := gotBody["top_p"]; present {
		t.Error("absent sampling parameter was forwarded")
	}
	if gotBody["stream"] != nil && gotBody["stream"] != false {
		t.Errorf("stream = %v, want false or omitted", gotBody["stream"])
	}

	if completion.ID != "chatcmpl-abc" {
		t.Errorf("completion id = %q, want chatcmpl-abc", completion.ID)
	}
	if completion.Usage.TotalTokens != 4 {
		t.Errorf("usage not relayed: %+v", completion.Usage)
	}
}

func TestPassthroughModelDefault(t *testing.T) {
	var gotModel string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		json.NewDecoder(r.Body).Decode(&body)
		gotModel, _ = body["model"].(string)
		json.NewEncoder(w).Encode(types.Completion{
			Choices: []types.Choice{{Message: types.Message{Content: "x"}}},
		})
	}))
	defer server.Close()

	a := NewPassthroughAdapter("groq", passthroughConfig(server.URL), server.Client())
	_, err := a.Invoke(context.Background(), &types.ChatRequest{
		Messages: []types.Message{{Role: types.RoleUser, Content: "q"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotModel != "default-model" {
		t.Errorf("model = %q, want configured default", gotModel)
	}
}

func TestPassthroughBackendError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":{"message":"rate limit exceeded"}}`)
	}))
	defer server.Close()

	a := NewPassthroughAdapter("groq", passthroughConfig(server.URL), server.Client())
	_, err := a.Invoke(context.Background(), &types.ChatRequest{
		Messages: []types.Message{{Role: types.RoleUser, Content: "q"}},
	})
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	var backendErr *Error
	if !errors.As(err, &backendErr) {
		t.Fatalf("error %T is not *Error", err)
	}
	if backendErr.StatusCode != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", backendErr.StatusCode)
	}
	if backendErr.Body != `{"error":{"message":"rate limit exceeded"}}` {
		t.Errorf("body not preserved: %q", backendErr.Body)
	}
}

func TestPassthroughInvokeStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		json.NewDecoder(r.Body).Decode(&body)
		if body["stream"] != true {
			t.Errorf("stream = %v, want true", body["stream"])
		}

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"id\":\"c1\",\"choices\":[{\"delta\":{\"content\":\"he\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"id\":\"c1\",\"choices\":[{\"delta\":{\"content\":\"llo\"}}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	a := NewPassthroughAdapter("groq", passthroughConfig(server.URL), server.Client())
	events, err := a.InvokeStream(context.Background(), &types.ChatRequest{
		Stream:   true,
		Messages: []types.Message{{Role: types.RoleUser, Content: "q"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var payloads []string
	doneSeen := false
	for e := range events {
		if e.Err != nil {
			t.Fatalf("stream error: %v", e.Err)
		}
		if e.Done {
			doneSeen = true
			continue
		}
		payloads = append(payloads, string(e.Data))
	}

	if !doneSeen {
		t.Error("no Done event")
	}
	if len(payloads) != 2 {
		t.Fatalf("got %d payloads, want 2: %v", len(payloads), payloads)
	}
	// Relayed verbatim, no re-encoding.
	if payloads[0] != `{"id":"c1","choices":[{"delta":{"content":"he"}}]}` {
		t.Errorf("payload 0 = %q", payloads[0])
	}
}

func TestPassthroughInvokeStreamTruncated(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data: {\"id\":\"c1\"}\n\n")
		// connection ends without [DONE]
	}))
	defer server.Close()

	a := NewPassthroughAdapter("groq", passthroughConfig(server.URL), server.Client())
	events, err := a.InvokeStream(context.Background(), &types.ChatRequest{
		Stream:   true,
		Messages: []types.Message{{Role: types.RoleUser, Content: "q"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	count := 0
	for e := range events {
		if e.Done {
			t.Error("unexpected Done event on truncated stream")
		}
		if e.Err != nil {
			t.Fatalf("unexpected stream error: %v", e.Err)
		}
		count++
	}
	if count != 1 {
		t.Errorf("got %d events, want 1", count)
	}
}

func TestPassthroughInvokeStreamErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, "invalid api key")
	}))
	defer server.Close()

	a := NewPassthroughAdapter("groq", passthroughConfig(server.URL), server.Client())
	_, err := a.InvokeStream(context.Background(), &types.ChatRequest{
		Stream:   true,
		Messages: []types.Message{{Role: types.RoleUser, Content: "q"}},
	})

	var backendErr *Error
	if !errors.As(err, &backendErr) {
		t.Fatalf("error %T is not *Error", err)
	}
	if backendErr.StatusCode != http.StatusUnauthorized || backendErr.Body != "invalid api key" {
		t.Errorf("unexpected backend error: %+v", backendErr)
	}
}
