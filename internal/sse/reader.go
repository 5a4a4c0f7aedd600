// Package sse turns raw server-sent event bytes into provider-neutral fragments.
package sse

import (
	"bytes"

	"github.com/altic/readr/internal/adapter"
)

// Decoder is the part of a ChatAdapter the reader needs.
type Decoder interface {
	DecodeEvent(payload []byte) (adapter.Fragment, error)
}

// Reader accumulates stream bytes, splits them into lines and decodes each
// `data:` line. Chunk boundaries never change the fragments produced.
//
// A Reader belongs to one stream and is not safe for concurrent use.
type Reader struct {
	dec     Decoder
	pending []byte // at most one incomplete line
	done    bool

	// OnDecodeError, when set, is called for each malformed event.
	OnDecodeError func(err error)
	decodeErrs    int
}

// NewReader creates a Reader for one stream.
func NewReader(dec Decoder) *Reader {
	return &Reader{dec: dec}
}

// Feed appends chunk and returns the Text and Done fragments of every line it
// completes, in order. Once Done has been produced further input is discarded.
func (r *Reader) Feed(chunk []byte) []adapter.Fragment {
	if r.done || len(chunk) == 0 {
		return nil
	}
	r.pending = append(r.pending, chunk...)

	var out []adapter.Fragment
	for !r.done {
		idx := bytes.IndexByte(r.pending, '\n')
		if idx < 0 {
			break
		}
		line := r.pending[:idx]
		r.pending = r.pending[idx+1:]
		out = r.processLine(line, out)
	}
	if r.done {
		r.pending = nil
	} else if len(r.pending) == 0 {
		// drop the backing array once fully consumed
		r.pending = nil
	}
	return out
}

// Flush processes a final unterminated line. Call it once the transport has
// closed.
func (r *Reader) Flush() []adapter.Fragment {
	if r.done || len(r.pending) == 0 {
		r.pending = nil
		return nil
	}
	line := r.pending
	r.pending = nil
	return r.processLine(line, nil)
}

// Done reports whether an in-band terminator has been seen.
func (r *Reader) Done() bool { return r.done }

// Pending returns the number of buffered bytes that do not yet form a line.
func (r *Reader) Pending() int { return len(r.pending) }

// DecodeErrors returns how many events failed to decode.
func (r *Reader) DecodeErrors() int { return r.decodeErrs }

func (r *Reader) processLine(line []byte, out []adapter.Fragment) []adapter.Fragment {
	line = bytes.TrimSuffix(line, []byte("\r"))
	payload, ok := dataPayload(line)
	if !ok || len(payload) == 0 {
		return out
	}
	frag, err := r.dec.DecodeEvent(payload)
	if err != nil {
		r.decodeErrs++
		if r.OnDecodeError != nil {
			r.OnDecodeError(err)
		}
		return out
	}
	switch frag.Kind {
	case adapter.KindText:
		out = append(out, frag)
	case adapter.KindDone:
		r.done = true
		out = append(out, frag)
	}
	return out
}

// dataPayload returns the payload of a `data:` line with at most one leading
// space removed. Comments, event names, ids and blank lines are not data.
func dataPayload(line []byte) ([]byte, bool) {
	const prefix = "data:"
	if !bytes.HasPrefix(line, []byte(prefix)) {
		return nil, false
	}
	payload := line[len(prefix):]
	if len(payload) > 0 && payload[0] == ' ' {
		payload = payload[1:]
	}
	// copy out of the carry-over buffer, which is reused
	return append([]byte(nil), payload...), true
}
