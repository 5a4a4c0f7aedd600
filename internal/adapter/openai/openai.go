package openai

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/altic/readr/internal/adapter"
	"github.com/altic/readr/internal/chat"
)

// Ensure OpenAIAdapter implements ChatAdapter.
var _ adapter.ChatAdapter = (*OpenAIAdapter)(nil)
var _ adapter.ErrorDecoder = (*OpenAIAdapter)(nil)

// doneSentinel is the literal payload that ends an OpenAI stream.
const doneSentinel = "[DONE]"

// OpenAIAdapter speaks the chat completions streaming API.
type OpenAIAdapter struct {
	baseURL string
	model   string
	org     string // optional organization ID
}

// Config holds configuration for the OpenAI adapter.
type Config struct {
	BaseURL      string // optional, defaults to https://api.openai.com/v1
	Model        string // optional, defaults to the provider default
	Organization string // optional
}

// New creates an OpenAIAdapter instance.
func New(cfg Config) *OpenAIAdapter {
	info, _ := chat.ProviderOpenAI.Info()

	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = info.BaseURL
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = info.Model
	}

	return &OpenAIAdapter{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		model:   model,
		org:     cfg.Organization,
	}
}

func (a *OpenAIAdapter) Provider() chat.Provider { return chat.ProviderOpenAI }

// Model returns the model identifier sent with every request.
func (a *OpenAIAdapter) Model() string { return a.model }

// PrepareRequest builds a POST to /chat/completions with the system message
// kept inline in the messages array.
func (a *OpenAIAdapter) PrepareRequest(messages []chat.Message, credential string) (adapter.Request, error) {
	if len(messages) == 0 {
		return adapter.Request{}, errors.New("openai: no messages provided")
	}

	payload := ChatCompletionRequest{
		Model:    a.model,
		Messages: make([]ChatMessage, 0, len(messages)),
		Stream:   true,
	}
	for _, m := range messages {
		payload.Messages = append(payload.Messages, ChatMessage{Role: string(m.Role), Content: m.Content})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return adapter.Request{}, &adapter.EncodingError{Provider: chat.ProviderOpenAI, Err: err}
	}

	h := adapter.JSONHeader()
	h.Set("Authorization", "Bearer "+credential)
	if a.org != "" {
		h.Set("OpenAI-Organization", a.org)
	}

	return adapter.Request{
		URL:    a.baseURL + "/chat/completions",
		Header: h,
		Body:   body,
	}, nil
}

// DecodeEvent maps `[DONE]` to Done, a non-empty choices[0].delta.content to
// text and anything else to Skip.
func (a *OpenAIAdapter) DecodeEvent(payload []byte) (adapter.Fragment, error) {
	if strings.TrimSpace(string(payload)) == doneSentinel {
		return adapter.Done, nil
	}

	var chunk ChatCompletionChunk
	if err := json.Unmarshal(payload, &chunk); err != nil {
		return adapter.Skip, adapter.NewDecodeError(chat.ProviderOpenAI, payload, err)
	}
	// Role frames carry content:"" and finish frames carry no content at all.
	if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == nil || *chunk.Choices[0].Delta.Content == "" {
		return adapter.Skip, nil
	}
	return adapter.Text(*chunk.Choices[0].Delta.Content), nil
}

// DecodeErrorBody extracts error.message from an OpenAI error envelope.
func (a *OpenAIAdapter) DecodeErrorBody(status int, body []byte) string {
	var errResp struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
			Code    string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		return fmt.Sprintf("%s (type=%s, code=%s)", errResp.Error.Message, errResp.Error.Type, errResp.Error.Code)
	}
	return strings.TrimSpace(string(body))
}
