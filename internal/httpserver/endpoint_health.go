package httpserver

import (
	"net/http"
	"time"

	"github.com/altic/readr/internal/health"
	"github.com/altic/readr/internal/httpserver/protocol"
	"github.com/altic/readr/internal/metrics"
)

type healthEndpoint struct {
	server *Server
}

func newHealthEndpoint(server *Server) protocol.Endpoint {
	return &healthEndpoint{server: server}
}

func (e *healthEndpoint) Name() string { return "health" }

func (e *healthEndpoint) Routes() []protocol.EndpointRoute {
	routes := []protocol.EndpointRoute{
		{Method: http.MethodGet, Path: "/health", Handler: http.HandlerFunc(e.server.HandleHealth)},
	}
	if e.server.metrics != nil {
		routes = append(routes, protocol.EndpointRoute{Method: http.MethodGet, Path: "/metrics", Handler: http.HandlerFunc(e.server.HandleMetrics)})
	}
	return routes
}

// HandleHealth runs the configured probes. Unhealthy stores answer 503.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	payload := map[string]any{
		"status": string(health.StatusHealthy),
		"time":   time.Now().UTC().Format(time.RFC3339),
	}
	status := http.StatusOK
	if s.health != nil {
		result := s.health.Check(r.Context())
		payload["status"] = string(result.Status)
		payload["components"] = result.Components
		if result.Status == health.StatusUnhealthy {
			status = http.StatusServiceUnavailable
		}
	}
	if s.adapters != nil {
		payload["adapters"] = s.adapters.ListAdapters()
		payload["routes"] = s.adapters.ListRoutes()
	}
	s.respondJSON(w, status, payload)
}

// HandleMetrics renders the collector in Prometheus text format.
func (s *Server) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(metrics.FormatPrometheus(s.metrics.GetSnapshot())))
}
