package httpserver

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/altic/readr/internal/adapter/router"
	"github.com/altic/readr/internal/auth"
	"github.com/altic/readr/internal/chat"
	"github.com/altic/readr/internal/credentials"
	"github.com/altic/readr/internal/health"
	"github.com/altic/readr/internal/hooks"
	"github.com/altic/readr/internal/httpserver/protocol"
	"github.com/altic/readr/internal/ledger"
	"github.com/altic/readr/internal/metrics"
	"github.com/altic/readr/internal/ratelimit"
	"github.com/altic/readr/internal/session"
)

var defaultEndpointKeys = []string{"health", "providers", "credentials", "surfaces", "usage"}

// Config wires the daemon's HTTP surface. Only Surfaces and Adapters are
// required; endpoint groups whose dependency is nil are skipped.
type Config struct {
	Surfaces    *session.Manager
	Adapters    *router.Router
	Credentials credentials.Store
	Ledger      ledger.Store
	Metrics     *metrics.Collector
	Health      *health.Checker
	// DefaultProvider is used when a send names no provider.
	DefaultProvider chat.Provider
	// Endpoints selects endpoint groups by key; empty enables all.
	Endpoints []string
	// Auth guards every /v1 route when set.
	Auth *auth.Manager
	// SendLimiter throttles session starts per client when set.
	SendLimiter *ratelimit.Limiter
	// Hooks receives credential change events when set.
	Hooks *hooks.Dispatcher
}

// Server exposes chat surfaces over HTTP for the UI glue.
type Server struct {
	surfaces  *session.Manager
	adapters  *router.Router
	creds     credentials.Store
	ledger    ledger.Store
	metrics   *metrics.Collector
	health    *health.Checker
	endpoints []string
	auth      *auth.Manager
	sendLimit *ratelimit.Middleware
	hooks     *hooks.Dispatcher

	fallbackProvider chat.Provider

	logger   *log.Logger
	logLevel string
}

// New creates a Server.
func New(cfg Config) *Server {
	s := &Server{
		surfaces:  cfg.Surfaces,
		adapters:  cfg.Adapters,
		creds:     cfg.Credentials,
		ledger:    cfg.Ledger,
		metrics:   cfg.Metrics,
		health:    cfg.Health,
		endpoints: normalizeEndpointKeys(cfg.Endpoints, defaultEndpointKeys),
		auth:      cfg.Auth,
		hooks:     cfg.Hooks,
		logger:    log.New(log.Writer(), "[readrd/http] ", log.LstdFlags|log.Lmicroseconds),

		fallbackProvider: cfg.DefaultProvider,
	}
	if cfg.SendLimiter != nil {
		s.sendLimit = ratelimit.NewMiddleware(cfg.SendLimiter, clientKey, s.logger)
	}
	return s
}

// clientKey names the caller for rate limiting: the token's client when
// authenticated, otherwise the remote address.
func clientKey(r *http.Request) string {
	if c, ok := auth.ClientFrom(r.Context()); ok {
		return "client:" + c
	}
	return "ip:" + ratelimit.RemoteIP(r)
}

// Router returns a configured chi router for embedding in HTTP servers.
func (s *Server) Router() http.Handler {
	r := s.newBaseRouter()
	s.registerEndpointKeys(r, s.endpoints...)
	return r
}

func (s *Server) newBaseRouter() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	return r
}

func (s *Server) registerEndpoints(r chi.Router, endpoints ...protocol.Endpoint) {
	for _, ep := range endpoints {
		if ep == nil {
			continue
		}
		s.debugf("registering endpoint %s", ep.Name())
		for _, route := range ep.Routes() {
			h := route.Handler
			if strings.HasPrefix(route.Path, "/v1/") {
				h = auth.Middleware(s.auth, s.logger)(h)
			}
			r.Method(route.Method, route.Path, s.instrument(route.Method+" "+route.Path, h))
		}
	}
}

func (s *Server) registerEndpointKeys(r chi.Router, keys ...string) int {
	var endpoints []protocol.Endpoint
	seen := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		if ep := s.endpointByKey(key); ep != nil {
			endpoints = append(endpoints, ep)
		} else {
			s.debugf("endpoint %s unavailable, skipping registration", key)
		}
	}
	s.registerEndpoints(r, endpoints...)
	return len(endpoints)
}

func (s *Server) endpointByKey(key string) protocol.Endpoint {
	switch key {
	case "health", "status":
		return newHealthEndpoint(s)
	case "providers":
		if s.adapters == nil {
			return nil
		}
		return newProvidersEndpoint(s)
	case "credentials", "keys":
		if s.creds == nil {
			return nil
		}
		return newCredentialsEndpoint(s)
	case "surfaces", "sessions":
		if s.surfaces == nil || s.adapters == nil {
			return nil
		}
		return newSurfacesEndpoint(s)
	case "usage", "ledger":
		if s.ledger == nil {
			return nil
		}
		return newUsageEndpoint(s)
	default:
		return nil
	}
}

func normalizeEndpointKeys(list []string, defaults []string) []string {
	var out []string
	for _, k := range list {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			out = append(out, k)
		}
	}
	if len(out) == 0 {
		return append([]string(nil), defaults...)
	}
	return out
}

// instrument records request counts, latency and 5xx errors per route.
func (s *Server) instrument(name string, next http.Handler) http.Handler {
	if s.metrics == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		s.metrics.RecordRequestStart(name)
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		defer func() {
			s.metrics.RecordRequestEnd(name)
			s.metrics.RecordRequest(name, time.Since(start))
			if ww.Status() >= http.StatusInternalServerError {
				s.metrics.RecordError(name)
			}
		}()
		next.ServeHTTP(ww, r)
	})
}

// SetLogger configures server-level logger and verbosity ("debug", "info", ...).
func (s *Server) SetLogger(level string, logger *log.Logger) {
	s.logLevel = strings.ToLower(strings.TrimSpace(level))
	if logger != nil {
		s.logger = logger
	}
}

func (s *Server) isDebug() bool { return s.logLevel == "debug" }
func (s *Server) debugf(format string, args ...any) {
	if s.logger != nil && s.isDebug() {
		s.logger.Printf("DEBUG "+format, args...)
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, payload any) {
	if payload == nil {
		w.WriteHeader(status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *Server) respondError(w http.ResponseWriter, status int, err error) {
	if err == nil {
		err = errors.New("unknown error")
	}
	s.respondJSON(w, status, map[string]any{"error": err.Error()})
}
