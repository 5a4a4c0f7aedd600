package adapter

import (
	"bytes"
	"context"
	"net/http"

	"github.com/altic/readr/internal/chat"
	"github.com/altic/readr/internal/version"
)

// ChatAdapter knows one provider's endpoint, authentication, payload shape and
// event grammar. Adapters hold no per-request state and are safe for concurrent use.
type ChatAdapter interface {
	// Provider identifies the API this adapter speaks.
	Provider() chat.Provider
	// PrepareRequest shapes messages (system first) into a streaming request.
	PrepareRequest(messages []chat.Message, credential string) (Request, error)
	// DecodeEvent turns one SSE data payload into a fragment. A malformed
	// payload yields a *DecodeError; the caller skips it and keeps reading.
	DecodeEvent(payload []byte) (Fragment, error)
}

// ErrorDecoder is implemented by adapters that can extract a readable message
// from a non-2xx response body.
type ErrorDecoder interface {
	DecodeErrorBody(status int, body []byte) string
}

// Request is a fully prepared outbound call.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// HTTPRequest materialises the request bound to ctx.
func (r Request) HTTPRequest(ctx context.Context) (*http.Request, error) {
	method := r.Method
	if method == "" {
		method = http.MethodPost
	}
	req, err := http.NewRequestWithContext(ctx, method, r.URL, bytes.NewReader(r.Body))
	if err != nil {
		return nil, err
	}
	for k, vs := range r.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", version.UserAgent())
	}
	return req, nil
}

// FragmentKind classifies a decoded event.
type FragmentKind int

const (
	// KindSkip marks events that carry no text (role frames, pings, metadata).
	KindSkip FragmentKind = iota
	// KindText carries an incremental piece of generated text.
	KindText
	// KindDone marks an in-band end-of-stream sentinel.
	KindDone
)

func (k FragmentKind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindDone:
		return "done"
	default:
		return "skip"
	}
}

// Fragment is the provider-neutral result of decoding one event.
type Fragment struct {
	Kind FragmentKind
	Text string
}

// Text returns a text fragment.
func Text(s string) Fragment { return Fragment{Kind: KindText, Text: s} }

// Done is the terminal fragment.
var Done = Fragment{Kind: KindDone}

// Skip is the no-op fragment.
var Skip = Fragment{Kind: KindSkip}

// JSONHeader returns the common header set for JSON streaming requests.
func JSONHeader() http.Header {
	h := make(http.Header)
	h.Set("Content-Type", "application/json")
	h.Set("Accept", "text/event-stream")
	return h
}
