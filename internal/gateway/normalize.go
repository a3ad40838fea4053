package gateway

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/contextlabs/ragway/internal/types"
)

// errMalformed classifies inbound bodies the gateway rejects with HTTP 400
// before any backend call is made.
var errMalformed = errors.New("malformed request")

// rawRequest mirrors types.ChatRequest with a pointer for the messages field
// so a missing key is distinguishable from an empty sequence.
type rawRequest struct {
	Model    string           `json:"model"`
	Messages *[]types.Message `json:"messages"`
	Stream   bool             `json:"stream"`

	Temperature      *float64 `json:"temperature"`
	MaxTokens        *int     `json:"max_tokens"`
	TopP             *float64 `json:"top_p"`
	FrequencyPenalty *float64 `json:"frequency_penalty"`
	PresencePenalty  *float64 `json:"presence_penalty"`
}

// normalizeRequest parses and validates an inbound canonical chat-completion
// body. The messages key must be present (an empty sequence is allowed);
// stream defaults to false. Recognized sampling parameters are carried
// through without validation — provider-specific constraints are the
// backend's problem.
func normalizeRequest(body []byte) (*types.ChatRequest, error) {
	var raw rawRequest
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: invalid JSON: %v", errMalformed, err)
	}
	if raw.Messages == nil {
		return nil, fmt.Errorf("%w: messages is required", errMalformed)
	}

	return &types.ChatRequest{
		Model:            raw.Model,
		Messages:         *raw.Messages,
		Stream:           raw.Stream,
		Temperature:      raw.Temperature,
		MaxTokens:        raw.MaxTokens,
		TopP:             raw.TopP,
		FrequencyPenalty: raw.FrequencyPenalty,
		PresencePenalty:  raw.PresencePenalty,
	}, nil
}
