package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/altic/readr/internal/adapter"
	"github.com/altic/readr/internal/chat"
	"github.com/altic/readr/internal/httpserver/protocol"
	"github.com/altic/readr/internal/session"
)

type surfacesEndpoint struct {
	server *Server
}

func newSurfacesEndpoint(server *Server) protocol.Endpoint {
	return &surfacesEndpoint{server: server}
}

func (e *surfacesEndpoint) Name() string { return "surfaces" }

func (e *surfacesEndpoint) Routes() []protocol.EndpointRoute {
	return []protocol.EndpointRoute{
		{Method: http.MethodPost, Path: "/v1/surfaces/{surface}/messages", Handler: e.server.sendLimit.Wrap(http.HandlerFunc(e.server.handleSend))},
		{Method: http.MethodDelete, Path: "/v1/surfaces/{surface}/stream", Handler: http.HandlerFunc(e.server.handleCancel)},
		{Method: http.MethodGet, Path: "/v1/sessions", Handler: http.HandlerFunc(e.server.handleSessions)},
	}
}

// sendRequest is the body of POST /v1/surfaces/{surface}/messages. Provider
// accepts a provider id or a model name. Message, when set, is appended to
// History as the newest user turn.
type sendRequest struct {
	Provider        string      `json:"provider"`
	History         []chat.Turn `json:"history"`
	Message         string      `json:"message,omitempty"`
	SelectedContext string      `json:"selected_context,omitempty"`
	FirstPages      string      `json:"first_pages,omitempty"`
	Credential      string      `json:"credential,omitempty"`
}

type fragmentEvent struct {
	Text string `json:"text"`
}

type doneEvent struct {
	SessionID    string        `json:"session_id"`
	Provider     chat.Provider `json:"provider"`
	State        session.State `json:"state"`
	Text         string        `json:"text"`
	Fragments    int           `json:"fragments"`
	DecodeErrors int           `json:"decode_errors"`
	Error        string        `json:"error,omitempty"`
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	var body sendRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.respondError(w, http.StatusBadRequest, fmt.Errorf("invalid json: %w", err))
		return
	}
	name := firstNonEmpty(body.Provider, string(s.defaultProvider()))
	provider, err := s.adapters.Resolve(name)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err)
		return
	}
	history := body.History
	if strings.TrimSpace(body.Message) != "" {
		history = append(history, chat.NewTurn(body.Message, true))
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.respondError(w, http.StatusInternalServerError, errors.New("streaming unsupported"))
		return
	}

	ctx := r.Context()
	frags := make(chan string, 64)
	sink := func(text string) {
		select {
		case frags <- text:
		case <-ctx.Done():
		}
	}

	surface := s.surfaces.Surface(chi.URLParam(r, "surface"))
	sess, err := surface.Start(ctx, session.Request{
		Provider:        provider,
		History:         history,
		SelectedContext: body.SelectedContext,
		FirstPages:      body.FirstPages,
		Credential:      body.Credential,
	}, sink)
	if err != nil {
		status := http.StatusInternalServerError
		var cfgErr *adapter.ConfigurationError
		if errors.As(err, &cfgErr) {
			status = http.StatusBadRequest
		}
		s.respondError(w, status, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Session-ID", sess.ID())
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	writeFragment := func(text string) {
		data, _ := json.Marshal(fragmentEvent{Text: text})
		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()
	}

	done := sess.Done()
	var delivered <-chan struct{}
	for {
		select {
		case text := <-frags:
			writeFragment(text)
		case <-done:
			done = nil
			delivered = session.Barrier(surface.Dispatcher())
		case <-delivered:
			for drained := false; !drained; {
				select {
				case text := <-frags:
					writeFragment(text)
				default:
					drained = true
				}
			}
			res := sess.Result()
			ev := doneEvent{
				SessionID:    sess.ID(),
				Provider:     provider,
				State:        res.State,
				Text:         res.Text,
				Fragments:    res.Fragments,
				DecodeErrors: res.DecodeErrors,
			}
			if res.Err != nil {
				ev.Error = res.Err.Error()
			}
			data, _ := json.Marshal(ev)
			fmt.Fprintf(w, "event: done\ndata: %s\n\n", data)
			flusher.Flush()
			return
		case <-ctx.Done():
			sess.Cancel()
			s.debugf("client went away; cancelled session %s", sess.ID())
			return
		}
	}
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	surface, ok := s.surfaces.Lookup(chi.URLParam(r, "surface"))
	if !ok || surface.Current() == nil {
		s.respondError(w, http.StatusNotFound, errors.New("no session on surface"))
		return
	}
	cur := surface.Current()
	cur.Cancel()
	s.respondJSON(w, http.StatusOK, map[string]any{
		"session_id": cur.ID(),
		"state":      cur.State(),
	})
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]any{"sessions": s.surfaces.Sessions()})
}

func (s *Server) defaultProvider() chat.Provider {
	if s.fallbackProvider != "" {
		return s.fallbackProvider
	}
	return chat.ProviderOpenAI
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
