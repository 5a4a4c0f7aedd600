package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/altic/readr/internal/chat"
	"github.com/altic/readr/internal/auth"
	"github.com/altic/readr/internal/credentials"
	"github.com/altic/readr/internal/hooks"
	"github.com/altic/readr/internal/httpserver/protocol"
)

type providersEndpoint struct {
	server *Server
}

func newProvidersEndpoint(server *Server) protocol.Endpoint {
	return &providersEndpoint{server: server}
}

func (e *providersEndpoint) Name() string { return "providers" }

func (e *providersEndpoint) Routes() []protocol.EndpointRoute {
	return []protocol.EndpointRoute{
		{Method: http.MethodGet, Path: "/v1/providers", Handler: http.HandlerFunc(e.server.handleProviders)},
	}
}

type providerPayload struct {
	ID                chat.Provider `json:"id"`
	DisplayName       string        `json:"display_name"`
	Model             string        `json:"model"`
	BaseURL           string        `json:"base_url"`
	Auth              string        `json:"auth"`
	StrictAlternation bool          `json:"strict_alternation"`
	Registered        bool          `json:"registered"`
	HasCredential     bool          `json:"has_credential"`
}

func (s *Server) handleProviders(w http.ResponseWriter, r *http.Request) {
	stored := map[chat.Provider]bool{}
	if s.creds != nil {
		ps, err := s.creds.Providers(r.Context())
		if err != nil {
			s.respondError(w, http.StatusInternalServerError, err)
			return
		}
		for _, p := range ps {
			stored[p] = true
		}
	}

	var out []providerPayload
	for _, info := range chat.Providers() {
		item := providerPayload{
			ID:                info.Provider,
			DisplayName:       info.DisplayName,
			Model:             info.Model,
			BaseURL:           info.BaseURL,
			Auth:              info.AuthScheme,
			StrictAlternation: info.StrictAlternation,
			HasCredential:     stored[info.Provider],
		}
		if a, err := s.adapters.Adapter(info.Provider); err == nil {
			item.Registered = true
			if m, ok := a.(interface{ Model() string }); ok {
				item.Model = m.Model()
			}
		}
		out = append(out, item)
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"providers": out})
}

type credentialsEndpoint struct {
	server *Server
}

func newCredentialsEndpoint(server *Server) protocol.Endpoint {
	return &credentialsEndpoint{server: server}
}

func (e *credentialsEndpoint) Name() string { return "credentials" }

func (e *credentialsEndpoint) Routes() []protocol.EndpointRoute {
	return []protocol.EndpointRoute{
		{Method: http.MethodPut, Path: "/v1/credentials/{provider}", Handler: http.HandlerFunc(e.server.handleSetCredential)},
		{Method: http.MethodDelete, Path: "/v1/credentials/{provider}", Handler: http.HandlerFunc(e.server.handleDeleteCredential)},
	}
}

func (s *Server) providerParam(w http.ResponseWriter, r *http.Request) (chat.Provider, bool) {
	p, err := chat.ParseProvider(chi.URLParam(r, "provider"))
	if err != nil {
		s.respondError(w, http.StatusNotFound, err)
		return "", false
	}
	return p, true
}

func (s *Server) handleSetCredential(w http.ResponseWriter, r *http.Request) {
	p, ok := s.providerParam(w, r)
	if !ok {
		return
	}
	var body struct {
		Key string `json:"key"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.respondError(w, http.StatusBadRequest, fmt.Errorf("invalid json: %w", err))
		return
	}
	if err := credentials.Validate(p, body.Key); err != nil {
		s.respondError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.creds.Set(r.Context(), p, body.Key); err != nil {
		s.respondError(w, http.StatusInternalServerError, err)
		return
	}
	s.logger.Printf("credential stored for %s", p)
	s.emit(r, hooks.EventCredentialStored, p)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteCredential(w http.ResponseWriter, r *http.Request) {
	p, ok := s.providerParam(w, r)
	if !ok {
		return
	}
	if err := s.creds.Delete(r.Context(), p); err != nil && !errors.Is(err, credentials.ErrNotFound) {
		s.respondError(w, http.StatusInternalServerError, err)
		return
	}
	s.logger.Printf("credential removed for %s", p)
	s.emit(r, hooks.EventCredentialRemoved, p)
	w.WriteHeader(http.StatusNoContent)
}

// emit reports a credential change to the hook dispatcher; the key itself is
// never included.
func (s *Server) emit(r *http.Request, t hooks.EventType, p chat.Provider) {
	if s.hooks == nil {
		return
	}
	evt := hooks.NewEvent(t)
	evt.Provider = string(p)
	if c, ok := auth.ClientFrom(r.Context()); ok {
		evt.Metadata = map[string]any{"client": c}
	}
	if err := s.hooks.Emit(r.Context(), evt); err != nil {
		s.logger.Printf("hook %s failed: %v", t, err)
	}
}
