package anthropic

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/altic/readr/internal/adapter"
	"github.com/altic/readr/internal/chat"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name          string
		cfg           Config
		wantBaseURL   string
		wantVersion   string
		wantMaxTokens int
	}{
		{
			name:          "defaults",
			cfg:           Config{},
			wantBaseURL:   "https://api.anthropic.com",
			wantVersion:   "2023-06-01",
			wantMaxTokens: 4096,
		},
		{
			name:          "overrides",
			cfg:           Config{BaseURL: "http://127.0.0.1:8080/", Version: "2024-01-01", MaxTokens: 512},
			wantBaseURL:   "http://127.0.0.1:8080",
			wantVersion:   "2024-01-01",
			wantMaxTokens: 512,
		},
		{
			name:          "negative max tokens falls back",
			cfg:           Config{MaxTokens: -1},
			wantBaseURL:   "https://api.anthropic.com",
			wantVersion:   "2023-06-01",
			wantMaxTokens: 4096,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := New(tt.cfg)
			if a.baseURL != tt.wantBaseURL {
				t.Errorf("baseURL = %q, want %q", a.baseURL, tt.wantBaseURL)
			}
			if a.version != tt.wantVersion {
				t.Errorf("version = %q, want %q", a.version, tt.wantVersion)
			}
			if a.maxTokens != tt.wantMaxTokens {
				t.Errorf("maxTokens = %d, want %d", a.maxTokens, tt.wantMaxTokens)
			}
		})
	}
}

func TestPrepareRequest(t *testing.T) {
	a := New(Config{})
	msgs := []chat.Message{
		{Role: chat.RoleSystem, Content: "You are a helpful assistant."},
		{Role: chat.RoleUser, Content: "a"},
		{Role: chat.RoleAssistant, Content: "c"},
	}
	req, err := a.PrepareRequest(msgs, "sk-ant-test")
	if err != nil {
		t.Fatalf("PrepareRequest() error = %v", err)
	}

	if req.URL != "https://api.anthropic.com/v1/messages" {
		t.Errorf("URL = %q", req.URL)
	}
	if got := req.Header.Get("x-api-key"); got != "sk-ant-test" {
		t.Errorf("x-api-key = %q", got)
	}
	if got := req.Header.Get("anthropic-version"); got != "2023-06-01" {
		t.Errorf("anthropic-version = %q", got)
	}
	if got := req.Header.Get("Authorization"); got != "" {
		t.Errorf("Authorization = %q, want unset", got)
	}

	var body struct {
		Model     string             `json:"model"`
		Messages  []anthropicMessage `json:"messages"`
		System    string             `json:"system"`
		MaxTokens int                `json:"max_tokens"`
		Stream    bool               `json:"stream"`
	}
	if err := json.Unmarshal(req.Body, &body); err != nil {
		t.Fatalf("body is not JSON: %v", err)
	}
	if body.System != "You are a helpful assistant." {
		t.Errorf("system = %q", body.System)
	}
	if len(body.Messages) != 2 || body.Messages[0].Role != "user" || body.Messages[1].Role != "assistant" {
		t.Errorf("messages = %+v, want system lifted out", body.Messages)
	}
	if body.MaxTokens != 4096 || !body.Stream {
		t.Errorf("max_tokens = %d, stream = %v", body.MaxTokens, body.Stream)
	}
	if body.Model != "claude-3-5-sonnet-20241022" {
		t.Errorf("model = %q", body.Model)
	}
}

func TestPrepareRequest_OmitsEmptySystem(t *testing.T) {
	req, err := New(Config{}).PrepareRequest([]chat.Message{{Role: chat.RoleUser, Content: "Hello"}}, "k")
	if err != nil {
		t.Fatalf("PrepareRequest() error = %v", err)
	}
	if strings.Contains(string(req.Body), `"system"`) {
		t.Errorf("body = %s, want no system field", req.Body)
	}
}

func TestPrepareRequest_SystemOnly(t *testing.T) {
	_, err := New(Config{}).PrepareRequest([]chat.Message{{Role: chat.RoleSystem, Content: "x"}}, "k")
	if err == nil {
		t.Fatal("expected error for system-only conversation")
	}
}

func TestDecodeEvent(t *testing.T) {
	a := New(Config{})
	tests := []struct {
		name    string
		payload string
		want    adapter.Fragment
		wantErr bool
	}{
		{name: "text delta", payload: `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Hi"}}`, want: adapter.Text("Hi")},
		{name: "message start", payload: `{"type":"message_start","message":{"id":"msg_1"}}`, want: adapter.Skip},
		{name: "ping", payload: `{"type":"ping"}`, want: adapter.Skip},
		{name: "block stop", payload: `{"type":"content_block_stop","index":0}`, want: adapter.Skip},
		{name: "message stop", payload: `{"type":"message_stop"}`, want: adapter.Skip},
		{name: "empty delta", payload: `{"type":"content_block_delta","delta":{"type":"text_delta","text":""}}`, want: adapter.Skip},
		{name: "malformed", payload: `{"type":`, want: adapter.Skip, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := a.DecodeEvent([]byte(tt.payload))
			if tt.wantErr {
				var de *adapter.DecodeError
				if !errors.As(err, &de) {
					t.Fatalf("error = %v, want *DecodeError", err)
				}
				if de.Provider != chat.ProviderAnthropic {
					t.Errorf("provider = %q", de.Provider)
				}
			} else if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("DecodeEvent() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestDecodeErrorBody(t *testing.T) {
	a := New(Config{})
	msg := a.DecodeErrorBody(401, []byte(`{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`))
	if msg != "invalid x-api-key (type=authentication_error)" {
		t.Errorf("message = %q", msg)
	}
}
