package loopback

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/altic/readr/internal/chat"
)

// Scheme is the URL scheme served by Transport.
const Scheme = "loopback"

// ReplyPrefix is prepended to every echoed reply.
const ReplyPrefix = "[loopback] "

// Transport answers loopback:// requests in-process. It echoes the last user
// message back as an SSE stream, one word per event.
type Transport struct {
	// Delay is slept between events; zero streams as fast as the reader drains.
	Delay time.Duration
}

// Register installs a Transport for the loopback scheme on t. It panics if the
// scheme is already registered, like http.Transport.RegisterProtocol.
func Register(t *http.Transport, lt *Transport) {
	if lt == nil {
		lt = &Transport{}
	}
	t.RegisterProtocol(Scheme, lt)
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Body != nil {
		defer req.Body.Close()
	}
	if req.URL.Path != "/v1/echo" {
		return errorResponse(req, http.StatusNotFound, "no such endpoint: "+req.URL.Path), nil
	}
	auth := strings.TrimSpace(strings.TrimPrefix(req.Header.Get("Authorization"), "Bearer"))
	if auth == "" {
		return errorResponse(req, http.StatusUnauthorized, "missing credential"), nil
	}

	var payload echoRequest
	if req.Body == nil {
		return errorResponse(req, http.StatusBadRequest, "empty body"), nil
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		return errorResponse(req, http.StatusBadRequest, "invalid json: "+err.Error()), nil
	}
	if len(payload.Messages) == 0 {
		return errorResponse(req, http.StatusBadRequest, "no messages provided"), nil
	}

	// find last user message; default to final message if none
	message := payload.Messages[len(payload.Messages)-1]
	for i := len(payload.Messages) - 1; i >= 0; i-- {
		if payload.Messages[i].Role == chat.RoleUser {
			message = payload.Messages[i]
			break
		}
	}
	reply := ReplyPrefix + strings.TrimSpace(message.Content)

	pr, pw := io.Pipe()
	go t.stream(req, pw, strings.SplitAfter(reply, " "))

	return &http.Response{
		Status:        "200 OK",
		StatusCode:    http.StatusOK,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        http.Header{"Content-Type": []string{"text/event-stream"}},
		Body:          pr,
		ContentLength: -1,
		Request:       req,
	}, nil
}

func (t *Transport) stream(req *http.Request, pw *io.PipeWriter, words []string) {
	ctx := req.Context()
	for _, w := range words {
		if t.Delay > 0 {
			select {
			case <-ctx.Done():
				pw.CloseWithError(ctx.Err())
				return
			case <-time.After(t.Delay):
			}
		}
		if ctx.Err() != nil {
			pw.CloseWithError(ctx.Err())
			return
		}
		data, _ := json.Marshal(echoEvent{Text: w})
		if _, err := fmt.Fprintf(pw, "data: %s\n\n", data); err != nil {
			return
		}
	}
	fmt.Fprintf(pw, "data: %s\n\n", endSentinel)
	pw.Close()
}

func errorResponse(req *http.Request, status int, msg string) *http.Response {
	body, _ := json.Marshal(map[string]any{"error": map[string]string{"message": msg}})
	return &http.Response{
		Status:        fmt.Sprintf("%d %s", status, http.StatusText(status)),
		StatusCode:    status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        http.Header{"Content-Type": []string{"application/json"}},
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
		Request:       req,
	}
}
