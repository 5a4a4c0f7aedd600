package loopback

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/altic/readr/internal/adapter"
	"github.com/altic/readr/internal/chat"
)

// Ensure LoopbackAdapter implements ChatAdapter.
var _ adapter.ChatAdapter = (*LoopbackAdapter)(nil)
var _ adapter.ErrorDecoder = (*LoopbackAdapter)(nil)

// endSentinel terminates a loopback stream.
const endSentinel = "[END]"

// LoopbackAdapter talks to the in-process echo Transport. It exercises the
// whole request/stream pipeline without network access.
type LoopbackAdapter struct {
	baseURL string
}

// New creates a LoopbackAdapter instance. An empty baseURL selects loopback://local.
func New(baseURL string) *LoopbackAdapter {
	if strings.TrimSpace(baseURL) == "" {
		info, _ := chat.ProviderLoopback.Info()
		baseURL = info.BaseURL
	}
	return &LoopbackAdapter{baseURL: strings.TrimSuffix(baseURL, "/")}
}

func (a *LoopbackAdapter) Provider() chat.Provider { return chat.ProviderLoopback }

type echoRequest struct {
	Messages []chat.Message `json:"messages"`
}

type echoEvent struct {
	Text string `json:"text"`
}

// PrepareRequest posts the messages unchanged to /v1/echo.
func (a *LoopbackAdapter) PrepareRequest(messages []chat.Message, credential string) (adapter.Request, error) {
	if len(messages) == 0 {
		return adapter.Request{}, errors.New("loopback: no messages provided")
	}
	body, err := json.Marshal(echoRequest{Messages: messages})
	if err != nil {
		return adapter.Request{}, &adapter.EncodingError{Provider: chat.ProviderLoopback, Err: err}
	}
	h := adapter.JSONHeader()
	h.Set("Authorization", "Bearer "+credential)
	return adapter.Request{URL: a.baseURL + "/v1/echo", Header: h, Body: body}, nil
}

// DecodeEvent maps `[END]` to Done and {"text":...} to text.
func (a *LoopbackAdapter) DecodeEvent(payload []byte) (adapter.Fragment, error) {
	if strings.TrimSpace(string(payload)) == endSentinel {
		return adapter.Done, nil
	}
	var evt echoEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		return adapter.Skip, adapter.NewDecodeError(chat.ProviderLoopback, payload, err)
	}
	if evt.Text == "" {
		return adapter.Skip, nil
	}
	return adapter.Text(evt.Text), nil
}

// DecodeErrorBody extracts error.message from a Transport error response.
func (a *LoopbackAdapter) DecodeErrorBody(status int, body []byte) string {
	var errResp struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		return errResp.Error.Message
	}
	return strings.TrimSpace(string(body))
}
