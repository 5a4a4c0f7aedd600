package gemini

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/altic/readr/internal/adapter"
	"github.com/altic/readr/internal/chat"
)

var _ adapter.ChatAdapter = (*GeminiAdapter)(nil)
var _ adapter.ErrorDecoder = (*GeminiAdapter)(nil)

// DefaultMaxOutputTokens bounds the generated reply.
const DefaultMaxOutputTokens = 4096

// GeminiAdapter speaks the streamGenerateContent API in SSE mode.
type GeminiAdapter struct {
	baseURL         string
	model           string
	maxOutputTokens int
}

// Config holds configuration for the Gemini adapter.
type Config struct {
	BaseURL         string // optional, defaults to https://generativelanguage.googleapis.com
	Model           string // optional
	MaxOutputTokens int    // optional
}

// New creates a GeminiAdapter instance.
func New(cfg Config) *GeminiAdapter {
	info, _ := chat.ProviderGemini.Info()

	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = info.BaseURL
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = info.Model
	}
	maxTokens := cfg.MaxOutputTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxOutputTokens
	}

	return &GeminiAdapter{
		baseURL:         strings.TrimSuffix(baseURL, "/"),
		model:           model,
		maxOutputTokens: maxTokens,
	}
}

func (a *GeminiAdapter) Provider() chat.Provider { return chat.ProviderGemini }

// Model returns the model identifier placed in the request path.
func (a *GeminiAdapter) Model() string { return a.model }

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generationConfig struct {
	MaxOutputTokens int `json:"maxOutputTokens"`
}

type generateRequest struct {
	Contents          []content        `json:"contents"`
	SystemInstruction *content         `json:"systemInstruction,omitempty"`
	GenerationConfig  generationConfig `json:"generationConfig"`
}

type streamChunk struct {
	Candidates []struct {
		Content struct {
			Parts []part `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
}

// PrepareRequest lifts system messages into systemInstruction and renames the
// assistant role to "model".
func (a *GeminiAdapter) PrepareRequest(messages []chat.Message, credential string) (adapter.Request, error) {
	payload := generateRequest{
		GenerationConfig: generationConfig{MaxOutputTokens: a.maxOutputTokens},
	}
	var system []string
	for _, m := range messages {
		switch m.Role {
		case chat.RoleSystem:
			system = append(system, m.Content)
		case chat.RoleAssistant:
			payload.Contents = append(payload.Contents, content{Role: "model", Parts: []part{{Text: m.Content}}})
		default:
			payload.Contents = append(payload.Contents, content{Role: "user", Parts: []part{{Text: m.Content}}})
		}
	}
	if len(payload.Contents) == 0 {
		return adapter.Request{}, fmt.Errorf("gemini: no user/model contents")
	}
	if len(system) > 0 {
		payload.SystemInstruction = &content{Parts: []part{{Text: strings.Join(system, "\n\n")}}}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return adapter.Request{}, &adapter.EncodingError{Provider: chat.ProviderGemini, Err: err}
	}

	h := adapter.JSONHeader()
	h.Set("x-goog-api-key", credential)

	// Build URL: /v1beta/{model=models/*}:streamGenerateContent
	endpoint := fmt.Sprintf("%s/v1beta/models/%s:streamGenerateContent?alt=sse", a.baseURL, url.PathEscape(a.model))
	return adapter.Request{URL: endpoint, Header: h, Body: body}, nil
}

// DecodeEvent concatenates the text parts of the first candidate. Gemini has
// no in-band terminator.
func (a *GeminiAdapter) DecodeEvent(payload []byte) (adapter.Fragment, error) {
	var chunk streamChunk
	if err := json.Unmarshal(payload, &chunk); err != nil {
		return adapter.Skip, adapter.NewDecodeError(chat.ProviderGemini, payload, err)
	}
	if len(chunk.Candidates) == 0 {
		return adapter.Skip, nil
	}
	var b strings.Builder
	for _, p := range chunk.Candidates[0].Content.Parts {
		b.WriteString(p.Text)
	}
	if b.Len() == 0 {
		return adapter.Skip, nil
	}
	return adapter.Text(b.String()), nil
}

// DecodeErrorBody extracts error.message from a Google API error envelope.
func (a *GeminiAdapter) DecodeErrorBody(status int, body []byte) string {
	var errResp struct {
		Error struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
			Status  string `json:"status"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		return fmt.Sprintf("%s (code=%d, status=%s)", errResp.Error.Message, errResp.Error.Code, errResp.Error.Status)
	}
	return strings.TrimSpace(string(body))
}
