package sse

import (
	"errors"
	"math/rand"
	"strings"
	"testing"

	"github.com/altic/readr/internal/adapter"
	"github.com/altic/readr/internal/adapter/anthropic"
	"github.com/altic/readr/internal/adapter/openai"
)

func texts(frags []adapter.Fragment) (string, bool) {
	var b strings.Builder
	done := false
	for _, f := range frags {
		switch f.Kind {
		case adapter.KindText:
			b.WriteString(f.Text)
		case adapter.KindDone:
			done = true
		}
	}
	return b.String(), done
}

const openAIStream = "data: {\"choices\":[{\"delta\":{\"role\":\"assistant\",\"content\":\"\"}}]}\n\n" +
	"data: {\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n\n" +
	"data: {\"choices\":[{\"delta\":{\"content\":\"lo\"}}]}\n\n" +
	"data: [DONE]\n\n"

func TestReader_OpenAISplitAcrossChunks(t *testing.T) {
	r := NewReader(openai.New(openai.Config{}))

	first := r.Feed([]byte("data: {\"choices\":[{\"delta\":{\"content\":\"Hel"))
	if len(first) != 0 {
		t.Fatalf("first chunk produced %v, want nothing", first)
	}
	if r.Pending() == 0 {
		t.Fatal("expected incomplete line to be buffered")
	}

	second := r.Feed([]byte("\"}}]}\n\ndata: {\"choices\":[{\"delta\":{\"content\":\"lo\"}}]}\n\ndata: [DONE]\n\n"))
	got, done := texts(second)
	if got != "Hello" || !done {
		t.Fatalf("got %q done=%v, want Hello done=true", got, done)
	}
	if !r.Done() {
		t.Fatal("Done() = false after [DONE]")
	}
	if len(second) != 3 || second[0].Text != "Hel" || second[1].Text != "lo" {
		t.Fatalf("fragments = %+v", second)
	}
}

func TestReader_AnthropicStream(t *testing.T) {
	r := NewReader(anthropic.New(anthropic.Config{}))
	stream := "event: message_start\n" +
		"data: {\"type\":\"message_start\",\"message\":{\"id\":\"m\"}}\n\n" +
		"event: content_block_delta\n" +
		"data: {\"type\":\"content_block_delta\",\"index\":0,\"delta\":{\"type\":\"text_delta\",\"text\":\"Hi\"}}\n\n" +
		"event: message_stop\n" +
		"data: {\"type\":\"message_stop\"}\n\n"
	frags := r.Feed([]byte(stream))
	if len(frags) != 1 || frags[0] != adapter.Text("Hi") {
		t.Fatalf("fragments = %+v, want [Text(Hi)]", frags)
	}
	if r.Done() {
		t.Fatal("anthropic streams end on transport close, not in-band")
	}
}

func TestReader_ChunkBoundaryInsensitive(t *testing.T) {
	whole := NewReader(openai.New(openai.Config{})).Feed([]byte(openAIStream))
	want, _ := texts(whole)

	rng := rand.New(rand.NewSource(7))
	for iter := 0; iter < 200; iter++ {
		r := NewReader(openai.New(openai.Config{}))
		var frags []adapter.Fragment
		data := []byte(openAIStream)
		for len(data) > 0 {
			n := 1 + rng.Intn(len(data))
			frags = append(frags, r.Feed(data[:n])...)
			data = data[n:]
		}
		frags = append(frags, r.Flush()...)
		if len(frags) != len(whole) {
			t.Fatalf("iteration %d: %d fragments, want %d", iter, len(frags), len(whole))
		}
		for i := range frags {
			if frags[i] != whole[i] {
				t.Fatalf("iteration %d: fragment %d = %+v, want %+v", iter, i, frags[i], whole[i])
			}
		}
		if got, _ := texts(frags); got != want {
			t.Fatalf("iteration %d: text %q, want %q", iter, got, want)
		}
	}
}

func TestReader_MalformedLineSkipped(t *testing.T) {
	var hooked []error
	r := NewReader(openai.New(openai.Config{}))
	r.OnDecodeError = func(err error) { hooked = append(hooked, err) }

	frags := r.Feed([]byte("data: {\"choices\":[{\"delta\":{\"content\":\"a\"}}]}\n" +
		"data: {not json\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\"b\"}}]}\n"))
	got, _ := texts(frags)
	if got != "ab" {
		t.Fatalf("text = %q, want ab", got)
	}
	if r.DecodeErrors() != 1 || len(hooked) != 1 {
		t.Fatalf("decode errors = %d hooked = %d, want 1", r.DecodeErrors(), len(hooked))
	}
	var de *adapter.DecodeError
	if !errors.As(hooked[0], &de) {
		t.Fatalf("hooked error %v is not *DecodeError", hooked[0])
	}
}

func TestReader_IgnoresNonDataLines(t *testing.T) {
	r := NewReader(openai.New(openai.Config{}))
	frags := r.Feed([]byte(": keep-alive\nid: 4\nretry: 100\nevent: x\n\ndata:\n" +
		"data:{\"choices\":[{\"delta\":{\"content\":\"z\"}}]}\r\n"))
	if len(frags) != 1 || frags[0].Text != "z" {
		t.Fatalf("fragments = %+v", frags)
	}
	if r.DecodeErrors() != 0 {
		t.Fatalf("decode errors = %d", r.DecodeErrors())
	}
}

func TestReader_DoneLatches(t *testing.T) {
	r := NewReader(openai.New(openai.Config{}))
	frags := r.Feed([]byte("data: [DONE]\ndata: {\"choices\":[{\"delta\":{\"content\":\"late\"}}]}\n"))
	if len(frags) != 1 || frags[0].Kind != adapter.KindDone {
		t.Fatalf("fragments = %+v, want only Done", frags)
	}
	if more := r.Feed([]byte("data: {\"choices\":[{\"delta\":{\"content\":\"x\"}}]}\n")); len(more) != 0 {
		t.Fatalf("fragments after Done = %+v", more)
	}
	if r.Pending() != 0 {
		t.Fatalf("pending = %d after Done", r.Pending())
	}
}

func TestReader_FlushUnterminatedLine(t *testing.T) {
	r := NewReader(anthropic.New(anthropic.Config{}))
	frags := r.Feed([]byte(`data: {"type":"content_block_delta","delta":{"text":"tail"}}`))
	if len(frags) != 0 {
		t.Fatalf("unterminated line produced %+v", frags)
	}
	frags = r.Flush()
	if len(frags) != 1 || frags[0].Text != "tail" {
		t.Fatalf("Flush() = %+v", frags)
	}
	if r.Pending() != 0 {
		t.Fatalf("pending = %d after Flush", r.Pending())
	}
	if again := r.Flush(); len(again) != 0 {
		t.Fatalf("second Flush() = %+v", again)
	}
}
