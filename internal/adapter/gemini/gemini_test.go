package gemini

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/altic/readr/internal/adapter"
	"github.com/altic/readr/internal/chat"
)

func TestPrepareRequest(t *testing.T) {
	a := New(Config{BaseURL: "http://127.0.0.1:9999/"})
	msgs := []chat.Message{
		{Role: chat.RoleSystem, Content: "persona"},
		{Role: chat.RoleUser, Content: "a"},
		{Role: chat.RoleAssistant, Content: "c"},
	}
	req, err := a.PrepareRequest(msgs, "AIza-test")
	if err != nil {
		t.Fatalf("PrepareRequest() error = %v", err)
	}

	wantURL := "http://127.0.0.1:9999/v1beta/models/gemini-1.5-flash:streamGenerateContent?alt=sse"
	if req.URL != wantURL {
		t.Errorf("URL = %q, want %q", req.URL, wantURL)
	}
	if got := req.Header.Get("x-goog-api-key"); got != "AIza-test" {
		t.Errorf("x-goog-api-key = %q", got)
	}

	var body generateRequest
	if err := json.Unmarshal(req.Body, &body); err != nil {
		t.Fatalf("body is not JSON: %v", err)
	}
	if body.SystemInstruction == nil || body.SystemInstruction.Parts[0].Text != "persona" {
		t.Errorf("systemInstruction = %+v", body.SystemInstruction)
	}
	if len(body.Contents) != 2 {
		t.Fatalf("contents = %+v", body.Contents)
	}
	if body.Contents[0].Role != "user" || body.Contents[1].Role != "model" {
		t.Errorf("roles = %q, %q", body.Contents[0].Role, body.Contents[1].Role)
	}
	if body.GenerationConfig.MaxOutputTokens != DefaultMaxOutputTokens {
		t.Errorf("maxOutputTokens = %d", body.GenerationConfig.MaxOutputTokens)
	}
}

func TestPrepareRequest_NoContents(t *testing.T) {
	if _, err := New(Config{}).PrepareRequest([]chat.Message{{Role: chat.RoleSystem, Content: "x"}}, "k"); err == nil {
		t.Fatal("expected error")
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
		{name: "single part", payload: `{"candidates":[{"content":{"parts":[{"text":"Hel"}],"role":"model"}}]}`, want: adapter.Text("Hel")},
		{name: "multiple parts", payload: `{"candidates":[{"content":{"parts":[{"text":"a"},{"text":"b"}]}}]}`, want: adapter.Text("ab")},
		{name: "finish only", payload: `{"candidates":[{"content":{"parts":[]},"finishReason":"STOP"}]}`, want: adapter.Skip},
		{name: "usage metadata", payload: `{"usageMetadata":{"promptTokenCount":3}}`, want: adapter.Skip},
		{name: "malformed", payload: `{"candidates":[`, want: adapter.Skip, wantErr: true},
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
	msg := New(Config{}).DecodeErrorBody(400, []byte(`{"error":{"code":400,"message":"API key not valid","status":"INVALID_ARGUMENT"}}`))
	if msg != "API key not valid (code=400, status=INVALID_ARGUMENT)" {
		t.Errorf("message = %q", msg)
	}
}
