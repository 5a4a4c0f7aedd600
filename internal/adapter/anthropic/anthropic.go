package anthropic

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/altic/readr/internal/adapter"
	"github.com/altic/readr/internal/chat"
)

// Ensure AnthropicAdapter implements ChatAdapter.
var _ adapter.ChatAdapter = (*AnthropicAdapter)(nil)
var _ adapter.ErrorDecoder = (*AnthropicAdapter)(nil)

const (
	DefaultVersion   = "2023-06-01"
	DefaultMaxTokens = 4096
)

// AnthropicAdapter speaks the Messages streaming API.
type AnthropicAdapter struct {
	baseURL   string
	model     string
	version   string // API version header
	maxTokens int
}

// Config holds configuration for the Anthropic adapter.
type Config struct {
	BaseURL   string // optional, defaults to https://api.anthropic.com
	Model     string // optional
	Version   string // optional, defaults to 2023-06-01
	MaxTokens int    // optional, defaults to 4096; the API requires a bound
}

// New creates an AnthropicAdapter instance.
func New(cfg Config) *AnthropicAdapter {
	info, _ := chat.ProviderAnthropic.Info()

	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = info.BaseURL
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = info.Model
	}
	version := strings.TrimSpace(cfg.Version)
	if version == "" {
		version = DefaultVersion
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	return &AnthropicAdapter{
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		model:     model,
		version:   version,
		maxTokens: maxTokens,
	}
}

func (a *AnthropicAdapter) Provider() chat.Provider { return chat.ProviderAnthropic }

// Model returns the model identifier sent with every request.
func (a *AnthropicAdapter) Model() string { return a.model }

// messagesRequest is the streaming body for POST /v1/messages.
type messagesRequest struct {
	Model     string             `json:"model"`
	Messages  []anthropicMessage `json:"messages"`
	System    string             `json:"system,omitempty"`
	MaxTokens int                `json:"max_tokens"`
	Stream    bool               `json:"stream"`
}

// anthropicMessage represents a message in Anthropic's format.
type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Streaming event minimal schema.
type anthropicStreamEvent struct {
	Type  string `json:"type"`
	Index int    `json:"index,omitempty"`
	// For content_block_delta
	Delta struct {
		Type string `json:"type"`
		Text string `json:"text,omitempty"`
	} `json:"delta"`
}

// PrepareRequest lifts system messages into the top-level system field.
func (a *AnthropicAdapter) PrepareRequest(messages []chat.Message, credential string) (adapter.Request, error) {
	converted, systemPrompt, err := convertMessages(messages)
	if err != nil {
		return adapter.Request{}, fmt.Errorf("anthropic: convert messages: %w", err)
	}

	body, err := json.Marshal(messagesRequest{
		Model:     a.model,
		Messages:  converted,
		System:    systemPrompt,
		MaxTokens: a.maxTokens,
		Stream:    true,
	})
	if err != nil {
		return adapter.Request{}, &adapter.EncodingError{Provider: chat.ProviderAnthropic, Err: err}
	}

	h := adapter.JSONHeader()
	h.Set("x-api-key", credential)
	h.Set("anthropic-version", a.version)

	return adapter.Request{
		URL:    a.baseURL + "/v1/messages",
		Header: h,
		Body:   body,
	}, nil
}

// DecodeEvent yields text only for content_block_delta events. The stream has
// no in-band terminator; it ends when the connection closes.
func (a *AnthropicAdapter) DecodeEvent(payload []byte) (adapter.Fragment, error) {
	var evt anthropicStreamEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		return adapter.Skip, adapter.NewDecodeError(chat.ProviderAnthropic, payload, err)
	}
	if evt.Type != "content_block_delta" || evt.Delta.Text == "" {
		return adapter.Skip, nil
	}
	return adapter.Text(evt.Delta.Text), nil
}

// DecodeErrorBody extracts error.message from an Anthropic error envelope.
func (a *AnthropicAdapter) DecodeErrorBody(status int, body []byte) string {
	var errResp struct {
		Type  string `json:"type"`
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		return fmt.Sprintf("%s (type=%s)", errResp.Error.Message, errResp.Error.Type)
	}
	return strings.TrimSpace(string(body))
}

// convertMessages splits system content from the conversation.
// Returns messages array, system prompt, and error.
func convertMessages(in []chat.Message) ([]anthropicMessage, string, error) {
	var messages []anthropicMessage
	var systemPrompt string

	for _, msg := range in {
		switch msg.Role {
		case chat.RoleSystem:
			if systemPrompt != "" {
				systemPrompt += "\n\n"
			}
			systemPrompt += msg.Content
		case chat.RoleAssistant:
			messages = append(messages, anthropicMessage{Role: "assistant", Content: msg.Content})
		default:
			messages = append(messages, anthropicMessage{Role: "user", Content: msg.Content})
		}
	}

	if len(messages) == 0 {
		return nil, "", errors.New("no user/assistant messages after filtering system messages")
	}
	return messages, systemPrompt, nil
}
