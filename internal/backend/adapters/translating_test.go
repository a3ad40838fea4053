package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/contextlabs/ragway/internal/config"
	"github.com/contextlabs/ragway/internal/types"
)

func translatingConfig(baseURL string) config.BackendConfig {
	return config.BackendConfig{
		Type:    config.BackendTypeTranslating,
		BaseURL: baseURL,
		Model:   "llama3",
		Timeout: 5 * time.Second,
	}
}

func fixedClock(a *TranslatingAdapter) {
	a.now = func() time.Time { return time.Unix(1700000000, 0) }
	a.newID = func() string { return "chatcmpl-fixed" }
}

func TestFlattenPrompt(t *testing.T) {
	got := flattenPrompt([]types.Message{
		{Role: types.RoleUser, Content: "hi"},
		{Role: types.RoleAssistant, Content: "hello"},
		{Role: types.RoleUser, Content: "how are you"},
	})
	want := "user: hi\nassistant: hello\nuser: how are you"
	if got != want {
		t.Errorf("flattenPrompt = %q, want %q", got, want)
	}
}

func TestTranslatingInvoke(t *testing.T) {
	var gotBody generateRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("path = %q, want /api/generate", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "" {
			t.Errorf("unexpected Authorization header %q", auth)
		}
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(generateResponse{Response: "fine, thanks", Done: true})
	}))
	defer server.Close()

	a := NewTranslatingAdapter("ollama", translatingConfig(server.URL), server.Client())
	fixedClock(a)

	completion, err := a.Invoke(context.Background(), &types.ChatRequest{
		Messages: []types.Message{
			{Role: types.RoleUser, Content: "hi"},
			{Role: types.RoleAssistant, Content: "hello"},
			{Role: types.RoleUser, Content: "how are you"},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotBody.Prompt != "user: hi\nassistant: hello\nuser: how are you" {
		t.Errorf("prompt = %q", gotBody.Prompt)
	}
	if gotBody.Model != "llama3" {
		t.Errorf("model = %q, want configured default", gotBody.Model)
	}
	if gotBody.Stream {
		t.Error("stream = true, want false")
	}

	if completion.ID != "chatcmpl-fixed" {
		t.Errorf("id = %q", completion.ID)
	}
	if completion.Object != types.ObjectCompletion {
		t.Errorf("object = %q", completion.Object)
	}
	if completion.Created != 1700000000 {
		t.Errorf("created = %d", completion.Created)
	}
	if len(completion.Choices) != 1 ||
		completion.Choices[0].Message.Role != types.RoleAssistant ||
		completion.Choices[0].Message.Content != "fine, thanks" ||
		completion.Choices[0].FinishReason != types.FinishStop {
		t.Errorf("unexpected choices: %+v", completion.Choices)
	}
	if completion.Usage.PromptTokens != types.UsageUnknown ||
		completion.Usage.CompletionTokens != types.UsageUnknown ||
		completion.Usage.TotalTokens != types.UsageUnknown {
		t.Errorf("usage = %+v, want unknown sentinel", completion.Usage)
	}
}

func TestTranslatingInvokeStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var gotBody generateRequest
		json.NewDecoder(r.Body).Decode(&gotBody)
		if !gotBody.Stream {
			t.Error("stream = false, want true")
		}
		fmt.Fprint(w, `{"response":"fi","done":false}`+"\n")
		fmt.Fprint(w, `{"response":"ne","done":false}`+"\n")
		fmt.Fprint(w, `{"response":"","done":true}`+"\n")
	}))
	defer server.Close()

	a := NewTranslatingAdapter("ollama", translatingConfig(server.URL), server.Client())
	fixedClock(a)

	events, err := a.InvokeStream(context.Background(), &types.ChatRequest{
		Stream:   true,
		Messages: []types.Message{{Role: types.RoleUser, Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var chunks []types.Chunk
	doneSeen := false
	for e := range events {
		if e.Err != nil {
			t.Fatalf("stream error: %v", e.Err)
		}
		if e.Done {
			doneSeen = true
			continue
		}
		var chunk types.Chunk
		if err := json.Unmarshal(e.Data, &chunk); err != nil {
			t.Fatalf("chunk is not valid JSON: %v", err)
		}
		chunks = append(chunks, chunk)
	}

	if !doneSeen {
		t.Fatal("no Done event after final generate line")
	}
	if len(chunks) != 3 {
		t.Fatalf("got %d chunks, want one per backend line", len(chunks))
	}

	for i, c := range chunks {
		if c.ID != "chatcmpl-fixed" {
			t.Errorf("chunk %d id = %q, want the request-scoped id", i, c.ID)
		}
		if c.Object != types.ObjectChunk {
			t.Errorf("chunk %d object = %q", i, c.Object)
		}
	}
	if chunks[0].Choices[0].Delta.Content != "fi" || chunks[1].Choices[0].Delta.Content != "ne" {
		t.Errorf("delta contents wrong: %+v %+v", chunks[0].Choices, chunks[1].Choices)
	}
	if chunks[0].Choices[0].FinishReason != nil {
		t.Error("interim chunk has non-null finish_reason")
	}
	final := chunks[2].Choices[0]
	if final.FinishReason == nil || *final.FinishReason != types.FinishStop {
		t.Errorf("final finish_reason = %v, want stop", final.FinishReason)
	}
}

func TestTranslatingStreamMatchesNonStreaming(t *testing.T) {
	// One canned reply served both ways: whole in non-streaming mode, split
	// into word-sized generate lines in streaming mode.
	const full = "the quick brown fox"
	pieces := []string{"the ", "quick ", "brown ", "fox"}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var gotBody generateRequest
		json.NewDecoder(r.Body).Decode(&gotBody)
		if !gotBody.Stream {
			json.NewEncoder(w).Encode(generateResponse{Response: full, Done: true})
			return
		}
		for _, p := range pieces {
			json.NewEncoder(w).Encode(generateResponse{Response: p, Done: false})
		}
		json.NewEncoder(w).Encode(generateResponse{Response: "", Done: true})
	}))
	defer server.Close()

	a := NewTranslatingAdapter("ollama", translatingConfig(server.URL), server.Client())
	fixedClock(a)

	req := &types.ChatRequest{
		Messages: []types.Message{{Role: types.RoleUser, Content: "go on"}},
	}

	completion, err := a.Invoke(context.Background(), req)
	if err != nil {
		t.Fatalf("Invoke error: %v", err)
	}

	events, err := a.InvokeStream(context.Background(), req)
	if err != nil {
		t.Fatalf("InvokeStream error: %v", err)
	}

	var concatenated string
	for e := range events {
		if e.Err != nil {
			t.Fatalf("stream error: %v", e.Err)
		}
		if e.Done {
			continue
		}
		var chunk types.Chunk
		if err := json.Unmarshal(e.Data, &chunk); err != nil {
			t.Fatalf("chunk is not valid JSON: %v", err)
		}
		concatenated += chunk.Choices[0].Delta.Content
	}

	if got := completion.Choices[0].Message.Content; concatenated != got {
		t.Errorf("concatenated deltas = %q, non-streaming content = %q", concatenated, got)
	}
	if concatenated != full {
		t.Errorf("concatenated deltas = %q, want %q", concatenated, full)
	}
}

func TestTranslatingInvokeStreamTruncated(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"response":"fi","done":false}`+"\n")
		// stream ends without a done line
	}))
	defer server.Close()

	a := NewTranslatingAdapter("ollama", translatingConfig(server.URL), server.Client())
	fixedClock(a)

	events, err := a.InvokeStream(context.Background(), &types.ChatRequest{
		Stream:   true,
		Messages: []types.Message{{Role: types.RoleUser, Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	count := 0
	for e := range events {
		if e.Done {
			t.Error("unexpected Done event on truncated stream")
		}
		count++
	}
	if count != 1 {
		t.Errorf("got %d events, want 1", count)
	}
}

func TestTranslatingInvokeBackendError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"error":"model 'llama3' not found"}`)
	}))
	defer server.Close()

	a := NewTranslatingAdapter("ollama", translatingConfig(server.URL), server.Client())
	_, err := a.Invoke(context.Background(), &types.ChatRequest{
		Messages: []types.Message{{Role: types.RoleUser, Content: "hi"}},
	})

	backendErr, ok := err.(*Error)
	if !ok {
		t.Fatalf("error %T is not *Error", err)
	}
	if backendErr.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", backendErr.StatusCode)
	}
}
