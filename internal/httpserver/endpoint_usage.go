package httpserver

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/altic/readr/internal/chat"
	"github.com/altic/readr/internal/httpserver/protocol"
	"github.com/altic/readr/internal/ledger"
)

type usageEndpoint struct {
	server *Server
}

func newUsageEndpoint(server *Server) protocol.Endpoint {
	return &usageEndpoint{server: server}
}

func (e *usageEndpoint) Name() string { return "usage" }

func (e *usageEndpoint) Routes() []protocol.EndpointRoute {
	return []protocol.EndpointRoute{
		{Method: http.MethodGet, Path: "/v1/usage", Handler: http.HandlerFunc(e.server.handleUsage)},
	}
}

// handleUsage returns the ledger summary and the most recent entries.
// Query: provider (repeatable or comma separated), surface, limit.
func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	filter, err := parseUsageFilter(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err)
		return
	}
	summary, err := s.ledger.Summary(r.Context(), filter)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err)
		return
	}
	entries, err := s.ledger.ListRecent(r.Context(), filter)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err)
		return
	}
	if entries == nil {
		entries = []ledger.Entry{}
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"summary": summary,
		"entries": entries,
	})
}

func parseUsageFilter(r *http.Request) (ledger.Filter, error) {
	q := r.URL.Query()
	var f ledger.Filter
	for _, raw := range q["provider"] {
		for _, name := range strings.Split(raw, ",") {
			if strings.TrimSpace(name) == "" {
				continue
			}
			p, err := chat.ParseProvider(name)
			if err != nil {
				return ledger.Filter{}, err
			}
			f.Providers = append(f.Providers, p)
		}
	}
	f.Surface = strings.TrimSpace(q.Get("surface"))
	if v := strings.TrimSpace(q.Get("limit")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return ledger.Filter{}, fmt.Errorf("invalid limit %q", v)
		}
		f.Limit = n
	}
	return f, nil
}
