// Package app assembles the stores, adapters and transport shared by the
// readr CLI and the readrd daemon from a loaded configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/altic/readr/internal/adapter/anthropic"
	"github.com/altic/readr/internal/adapter/gemini"
	"github.com/altic/readr/internal/adapter/loopback"
	"github.com/altic/readr/internal/adapter/openai"
	"github.com/altic/readr/internal/adapter/router"
	"github.com/altic/readr/internal/chat"
	"github.com/altic/readr/internal/config"
	"github.com/altic/readr/internal/conversation"
	"github.com/altic/readr/internal/credentials"
	credpg "github.com/altic/readr/internal/credentials/postgres"
	credsqlite "github.com/altic/readr/internal/credentials/sqlite"
	"github.com/altic/readr/internal/health"
	"github.com/altic/readr/internal/ledger"
	"github.com/altic/readr/internal/ledger/async"
	ledgerpg "github.com/altic/readr/internal/ledger/postgres"
	ledgersqlite "github.com/altic/readr/internal/ledger/sqlite"
	"github.com/altic/readr/internal/metrics"
	"github.com/altic/readr/internal/session"
)

// Stores holds the opened credential and ledger stores.
type Stores struct {
	Credentials credentials.Store
	Ledger      ledger.Store

	pingers map[string]health.Pinger
}

// OpenStores opens the configured backends. On error nothing is left open.
func OpenStores(cfg config.ReadrConfig, logger *log.Logger) (*Stores, error) {
	s := &Stores{pingers: make(map[string]health.Pinger)}

	creds, err := openCredentials(cfg)
	if err != nil {
		return nil, err
	}
	s.Credentials = creds
	if p, ok := creds.(health.Pinger); ok {
		s.pingers["credentials"] = p
	}

	base, err := openLedger(cfg)
	if err != nil {
		_ = creds.Close()
		return nil, err
	}
	if p, ok := base.(health.Pinger); ok {
		s.pingers["ledger"] = p
	}
	s.Ledger = base
	if cfg.LedgerAsync && cfg.LedgerBackend != config.BackendMemory {
		s.Ledger = async.New(base, async.Config{
			BatchSize:     cfg.LedgerBatchSize,
			FlushInterval: cfg.LedgerFlushInterval,
			Logger:        logger,
		})
	}
	return s, nil
}

func openCredentials(cfg config.ReadrConfig) (credentials.Store, error) {
	switch cfg.CredentialsBackend {
	case config.BackendMemory:
		return credentials.NewMemory(), nil
	case config.BackendPostgres:
		st, err := credpg.New(credpg.Config{DSN: cfg.CredentialsDSN, Table: cfg.CredentialsTable})
		if err != nil {
			return nil, fmt.Errorf("open credential store: %w", err)
		}
		return st, nil
	default:
		st, err := credsqlite.New(cfg.CredentialsPath)
		if err != nil {
			return nil, fmt.Errorf("open credential store: %w", err)
		}
		return st, nil
	}
}

func openLedger(cfg config.ReadrConfig) (ledger.Store, error) {
	switch cfg.LedgerBackend {
	case config.BackendMemory:
		return ledger.NewMemory(), nil
	case config.BackendPostgres:
		st, err := ledgerpg.New(ledgerpg.Config{
			DSN:             cfg.LedgerDSN,
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 30 * time.Minute,
		})
		if err != nil {
			return nil, fmt.Errorf("open ledger: %w", err)
		}
		return st, nil
	default:
		st, err := ledgersqlite.New(cfg.LedgerPath)
		if err != nil {
			return nil, fmt.Errorf("open ledger: %w", err)
		}
		return st, nil
	}
}

// Pingers returns the stores that can be probed by the health checker.
func (s *Stores) Pingers() map[string]health.Pinger {
	out := make(map[string]health.Pinger, len(s.pingers))
	for k, v := range s.pingers {
		out[k] = v
	}
	return out
}

// Close flushes the ledger and closes both stores.
func (s *Stores) Close() error {
	var errs []error
	if s.Ledger != nil {
		errs = append(errs, s.Ledger.Close())
	}
	if s.Credentials != nil {
		errs = append(errs, s.Credentials.Close())
	}
	return errors.Join(errs...)
}

// NewHTTPClient returns the client sessions stream through. It has no overall
// timeout; RequestTimeout bounds only the wait for response headers. The
// loopback:// scheme is served in process.
func NewHTTPClient(cfg config.ReadrConfig) *http.Client {
	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          20,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: cfg.RequestTimeout,
	}
	loopback.Register(tr, &loopback.Transport{Delay: cfg.LoopbackDelay})
	return &http.Client{Transport: tr}
}

// NewAdapters registers every provider adapter and the configured model
// routes. Rejected routes are logged and skipped.
func NewAdapters(cfg config.ReadrConfig, logger *log.Logger) *router.Router {
	r := router.NewDefault(router.Config{
		OpenAI: openai.Config{
			BaseURL:      cfg.OpenAIBaseURL,
			Model:        cfg.OpenAIModel,
			Organization: cfg.OpenAIOrg,
		},
		Anthropic: anthropic.Config{
			BaseURL:   cfg.AnthropicBaseURL,
			Model:     cfg.AnthropicModel,
			Version:   cfg.AnthropicVersion,
			MaxTokens: cfg.AnthropicMaxTokens,
		},
		Gemini: gemini.Config{
			BaseURL:         cfg.GeminiBaseURL,
			Model:           cfg.GeminiModel,
			MaxOutputTokens: cfg.GeminiMaxOutputTokens,
		},
	})
	for _, rule := range cfg.ModelProviderRoutes {
		p, err := chat.ParseProvider(rule.Target)
		if err == nil {
			err = r.RegisterRoute(rule.Pattern, p)
		}
		if err != nil && logger != nil {
			logger.Printf("route rule %q=>%q rejected: %v", rule.Pattern, rule.Target, err)
		}
	}
	return r
}

// DefaultProvider parses the configured default, falling back to OpenAI.
func DefaultProvider(cfg config.ReadrConfig) chat.Provider {
	if p, err := chat.ParseProvider(cfg.DefaultProvider); err == nil {
		return p
	}
	return chat.ProviderOpenAI
}

// LoadBuilder returns a Builder using the profile at cfg.ProfilePath, or the
// built-in profile when the file does not exist.
func LoadBuilder(cfg config.ReadrConfig) (*conversation.Builder, error) {
	profile, err := conversation.LoadProfile(cfg.ProfilePath)
	if errors.Is(err, os.ErrNotExist) {
		return conversation.NewBuilder(conversation.DefaultProfile()), nil
	}
	if err != nil {
		return nil, err
	}
	return conversation.NewBuilder(profile), nil
}

// WatchBuilder hot-reloads b from cfg.ProfilePath until ctx is done. It is a
// no-op when watching is disabled.
func WatchBuilder(ctx context.Context, cfg config.ReadrConfig, b *conversation.Builder, logger *log.Logger) {
	if !cfg.WatchProfile {
		return
	}
	if err := conversation.WatchProfile(ctx, cfg.ProfilePath, b, logger); err != nil && logger != nil {
		logger.Printf("profile hot reload disabled: %v", err)
	}
}

// Observers returns the ledger and metrics observers in recording order.
// A nil collector skips metrics.
func Observers(stores *Stores, collector *metrics.Collector, logger *log.Logger) []session.Observer {
	var obs []session.Observer
	if stores != nil && stores.Ledger != nil {
		obs = append(obs, &session.LedgerObserver{Store: stores.Ledger, Logger: logger})
	}
	if collector != nil {
		obs = append(obs, &session.MetricsObserver{Collector: collector})
	}
	return obs
}

// NewDispatcher returns the delivery context named by cfg.Dispatch. The
// returned Queue is nil for inline dispatch; otherwise the caller runs it.
func NewDispatcher(cfg config.ReadrConfig) (session.Dispatcher, *session.Queue) {
	if cfg.Dispatch == "queue" {
		q := session.NewQueue()
		return q, q
	}
	return session.Inline, nil
}

// BaseURL returns the configured endpoint for p, or the provider default.
func BaseURL(cfg config.ReadrConfig, p chat.Provider) string {
	var override string
	switch p {
	case chat.ProviderOpenAI:
		override = cfg.OpenAIBaseURL
	case chat.ProviderAnthropic:
		override = cfg.AnthropicBaseURL
	case chat.ProviderGemini:
		override = cfg.GeminiBaseURL
	}
	if override != "" {
		return override
	}
	info, _ := p.Info()
	return info.BaseURL
}
