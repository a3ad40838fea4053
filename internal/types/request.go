package types

// ChatRequest is the canonical chat-completion request accepted at the
// gateway's inbound boundary. Both backend protocols are produced from it.
type ChatRequest struct {
	Model    string    `json:"model,omitempty"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream,omitempty"`

	// Recognized sampling parameters. Optional, forwarded to the backend
	// verbatim; the gateway does not validate provider-specific ranges.
	Temperature      *float64 `json:"temperature,omitempty"`
	MaxTokens        *int     `json:"max_tokens,omitempty"`
	TopP             *float64 `json:"top_p,omitempty"`
	FrequencyPenalty *float64 `json:"frequency_penalty,omitempty"`
	PresencePenalty  *float64 `json:"presence_penalty,omitempty"`
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// LastUserContent returns the content of the last message with role "user",
// or "" if the conversation has none. This is the retrieval query.
func (r *ChatRequest) LastUserContent() string {
	for i := len(r.Messages) - 1; i >= 0; i-- {
		if r.Messages[i].Role == RoleUser {
			return r.Messages[i].Content
		}
	}
	return ""
}

// WithSystemContext returns a copy of the request with one synthetic system
// message prepended. The original message ordering is otherwise unchanged and
// the receiver is not mutated.
func (r *ChatRequest) WithSystemContext(content string) *ChatRequest {
	augmented := *r
	augmented.Messages = make([]Message, 0, len(r.Messages)+1)
	augmented.Messages = append(augmented.Messages, Message{Role: RoleSystem, Content: content})
	augmented.Messages = append(augmented.Messages, r.Messages...)
	return &augmented
}
