package types

// Completion is the non-streaming terminal object, shaped like an OpenAI
// chat.completion so passthrough backends round-trip without reshaping.
type Completion struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`
}

type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

// Usage carries token counts. Backends with no token accounting report the
// UsageUnknown sentinel for every field.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// UsageUnknown marks token counts the backend could not report.
const UsageUnknown = -1

func UnknownUsage() Usage {
	return Usage{
		PromptTokens:     UsageUnknown,
		CompletionTokens: UsageUnknown,
		TotalTokens:      UsageUnknown,
	}
}

const (
	ObjectCompletion = "chat.completion"
	ObjectChunk      = "chat.completion.chunk"
)

const (
	FinishStop   = "stop"
	FinishLength = "length"
)

// Chunk is the canonical streaming unit, shaped like an OpenAI
// chat.completion.chunk. The final chunk of a clean stream carries a non-null
// finish_reason; the stream itself is terminated by an out-of-band sentinel
// frame, not by a chunk.
type Chunk struct {
	ID      string        `json:"id"`
	Object  string        `json:"object"`
	Created int64         `json:"created"`
	Model   string        `json:"model"`
	Choices []ChunkChoice `json:"choices"`
}

type ChunkChoice struct {
	Index        int     `json:"index"`
	Delta        Delta   `json:"delta"`
	FinishReason *string `json:"finish_reason"`
}

type Delta struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`
}
