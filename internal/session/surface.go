package session

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/altic/readr/internal/adapter"
	"github.com/altic/readr/internal/chat"
	"github.com/altic/readr/internal/conversation"
	"github.com/altic/readr/internal/credentials"
)

// AdapterSource resolves the adapter for a provider; *router.Router satisfies it.
type AdapterSource interface {
	Adapter(p chat.Provider) (adapter.ChatAdapter, error)
}

// Config wires a Surface.
type Config struct {
	// Name labels the surface in logs and ledger entries.
	Name     string
	Adapters AdapterSource
	// Builder defaults to conversation.NewBuilder(conversation.DefaultProfile()).
	Builder *conversation.Builder
	// HTTPClient must not set an overall Timeout; streams are open-ended.
	HTTPClient *http.Client
	// Dispatcher defaults to Inline.
	Dispatcher Dispatcher
	// Credentials is consulted when a Request carries no credential.
	Credentials credentials.Store
	Observers   []Observer
	Logger      *log.Logger
}

// Request is everything one send needs.
type Request struct {
	Provider        chat.Provider
	History         []chat.Turn
	SelectedContext string
	FirstPages      string
	// Credential overrides the credential store unless blank. Surrounding
	// whitespace is trimmed.
	Credential string
}

// Surface is one chat window. At most one session per surface is live; a
// successful Start supersedes the previous one.
type Surface struct {
	name      string
	adapters  AdapterSource
	builder   *conversation.Builder
	client    *http.Client
	dispatch  Dispatcher
	creds     credentials.Store
	observers []Observer
	logger    *log.Logger

	startMu sync.Mutex // serialises Start
	mu      sync.Mutex
	current *Session
}

// NewSurface creates a Surface.
func NewSurface(cfg Config) *Surface {
	s := &Surface{
		name:      cfg.Name,
		adapters:  cfg.Adapters,
		builder:   cfg.Builder,
		client:    cfg.HTTPClient,
		dispatch:  cfg.Dispatcher,
		creds:     cfg.Credentials,
		observers: cfg.Observers,
		logger:    cfg.Logger,
	}
	if s.name == "" {
		s.name = "default"
	}
	if s.builder == nil {
		s.builder = conversation.NewBuilder(conversation.DefaultProfile())
	}
	if s.client == nil {
		s.client = &http.Client{}
	}
	if s.dispatch == nil {
		s.dispatch = Inline
	}
	if s.logger == nil {
		s.logger = log.New(log.Writer(), "[readr/session] ", log.LstdFlags|log.Lmicroseconds)
	}
	return s
}

// Name returns the surface label.
func (s *Surface) Name() string { return s.name }

// Dispatcher returns the delivery context sinks run on.
func (s *Surface) Dispatcher() Dispatcher { return s.dispatch }

// Start validates req, cancels the surface's previous session and begins
// streaming. Validation failures (*adapter.ConfigurationError,
// *adapter.EncodingError) are returned before any network I/O and leave the
// previous session untouched.
func (s *Surface) Start(ctx context.Context, req Request, sink Sink) (*Session, error) {
	s.startMu.Lock()
	defer s.startMu.Unlock()

	sess, httpReq, err := s.prepare(ctx, req, sink)
	if err != nil {
		var cfgErr *adapter.ConfigurationError
		var encErr *adapter.EncodingError
		if !errors.As(err, &cfgErr) && !errors.As(err, &encErr) {
			err = &adapter.EncodingError{Provider: req.Provider, Err: err}
		}
		s.logger.Printf("start rejected on surface %s (%s): %v", s.name, req.Provider, err)
		for _, o := range s.observers {
			if ro, ok := o.(RejectObserver); ok {
				ro.SessionRejected(s.name, req.Provider, err)
			}
		}
		sess.cancelCtx()
		return nil, err
	}

	s.mu.Lock()
	prev := s.current
	s.current = sess
	s.mu.Unlock()
	if prev != nil {
		prev.Cancel()
	}

	s.logger.Printf("session %s started on surface %s: provider=%s model=%s", sess.info.ID, s.name, sess.info.Provider, sess.info.Model)
	for _, o := range s.observers {
		o.SessionStarted(sess.info)
	}
	go sess.run(httpReq.Context(), httpReq)
	return sess, nil
}

// prepare builds the session and its request without side effects on the
// surface. The returned session is non-nil so its context can be released.
func (s *Surface) prepare(ctx context.Context, req Request, sink Sink) (*Session, *http.Request, error) {
	sctx, cancel := context.WithCancel(ctx)
	sess := &Session{
		info: Info{
			ID:        uuid.NewString(),
			Surface:   s.name,
			Provider:  req.Provider,
			StartedAt: time.Now().UTC(),
		},
		client:    s.client,
		dispatch:  s.dispatch,
		sink:      sink,
		logger:    s.logger,
		observers: s.observers,
		cancelCtx: cancel,
		state:     StateSending,
		done:      make(chan struct{}),
	}

	if s.adapters == nil {
		return sess, nil, &adapter.ConfigurationError{Provider: req.Provider, Err: adapter.ErrUnknownProvider}
	}
	a, err := s.adapters.Adapter(req.Provider)
	if err != nil {
		return sess, nil, err
	}
	sess.adapter = a
	if m, ok := a.(interface{ Model() string }); ok {
		sess.info.Model = m.Model()
	}

	credential := strings.TrimSpace(req.Credential)
	if credential == "" {
		credential = credentials.Lookup(ctx, s.creds, req.Provider)
	}
	if credential == "" {
		return sess, nil, &adapter.ConfigurationError{Provider: req.Provider, Err: adapter.ErrMissingCredential}
	}

	messages := s.builder.Build(req.History, req.SelectedContext, req.Provider, req.FirstPages)
	prepared, err := a.PrepareRequest(messages, credential)
	if err != nil {
		return sess, nil, err
	}
	httpReq, err := prepared.HTTPRequest(sctx)
	if err != nil {
		return sess, nil, &adapter.ConfigurationError{Provider: req.Provider, Err: err}
	}
	return sess, httpReq, nil
}

// Current returns the most recently started session, or nil.
func (s *Surface) Current() *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Cancel cancels the current session, if any.
func (s *Surface) Cancel() {
	if cur := s.Current(); cur != nil {
		cur.Cancel()
	}
}
