package openai

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/altic/readr/internal/adapter"
	"github.com/altic/readr/internal/chat"
)

func TestNew_Defaults(t *testing.T) {
	a := New(Config{})
	if a.baseURL != "https://api.openai.com/v1" {
		t.Errorf("baseURL = %q", a.baseURL)
	}
	if a.Model() != "gpt-4" {
		t.Errorf("model = %q", a.Model())
	}

	a = New(Config{BaseURL: "http://localhost:9000/v1/", Model: "gpt-4o"})
	if a.baseURL != "http://localhost:9000/v1" {
		t.Errorf("baseURL = %q, want trailing slash trimmed", a.baseURL)
	}
	if a.Model() != "gpt-4o" {
		t.Errorf("model = %q", a.Model())
	}
}

func TestPrepareRequest(t *testing.T) {
	a := New(Config{Organization: "org-1"})
	msgs := []chat.Message{
		{Role: chat.RoleSystem, Content: "You are a helpful assistant."},
		{Role: chat.RoleUser, Content: "Hello"},
	}
	req, err := a.PrepareRequest(msgs, "sk-test123")
	if err != nil {
		t.Fatalf("PrepareRequest() error = %v", err)
	}

	if req.URL != "https://api.openai.com/v1/chat/completions" {
		t.Errorf("URL = %q", req.URL)
	}
	if got := req.Header.Get("Authorization"); got != "Bearer sk-test123" {
		t.Errorf("Authorization = %q", got)
	}
	if got := req.Header.Get("Content-Type"); got != "application/json" {
		t.Errorf("Content-Type = %q", got)
	}
	if got := req.Header.Get("OpenAI-Organization"); got != "org-1" {
		t.Errorf("OpenAI-Organization = %q", got)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(req.Body, &body); err != nil {
		t.Fatalf("body is not JSON: %v", err)
	}
	if body["model"] != "gpt-4" {
		t.Errorf("model = %v", body["model"])
	}
	if body["stream"] != true {
		t.Errorf("stream = %v, want true", body["stream"])
	}
	messages, ok := body["messages"].([]interface{})
	if !ok || len(messages) != 2 {
		t.Fatalf("messages = %v", body["messages"])
	}
	first := messages[0].(map[string]interface{})
	if first["role"] != "system" {
		t.Errorf("first role = %v, want system kept inline", first["role"])
	}
	if len(body) != 3 {
		t.Errorf("body has %d keys, want exactly model/messages/stream: %v", len(body), body)
	}
}

func TestPrepareRequest_EmptyMessages(t *testing.T) {
	_, err := New(Config{}).PrepareRequest(nil, "sk")
	if err == nil || !strings.Contains(err.Error(), "no messages") {
		t.Fatalf("error = %v, want 'no messages'", err)
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
		{name: "content", payload: `{"choices":[{"delta":{"content":"Hel"}}]}`, want: adapter.Text("Hel")},
		{name: "role frame", payload: `{"choices":[{"index":0,"delta":{"role":"assistant","content":""},"finish_reason":null}]}`, want: adapter.Skip},
		{name: "finish frame", payload: `{"choices":[{"index":0,"delta":{},"finish_reason":"stop"}]}`, want: adapter.Skip},
		{name: "no choices", payload: `{"choices":[]}`, want: adapter.Skip},
		{name: "done", payload: `[DONE]`, want: adapter.Done},
		{name: "malformed", payload: `{"choices":[{"delta":`, want: adapter.Skip, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := a.DecodeEvent([]byte(tt.payload))
			if tt.wantErr {
				var de *adapter.DecodeError
				if !errors.As(err, &de) {
					t.Fatalf("error = %v, want *DecodeError", err)
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
	msg := a.DecodeErrorBody(401, []byte(`{"error":{"message":"Invalid API key","type":"invalid_request_error","code":"invalid_api_key"}}`))
	if !strings.Contains(msg, "Invalid API key") {
		t.Errorf("message = %q", msg)
	}
	if got := a.DecodeErrorBody(502, []byte("bad gateway\n")); got != "bad gateway" {
		t.Errorf("plain body = %q", got)
	}
}
