// Package auth issues and checks the bearer tokens that guard the daemon's
// HTTP API. The daemon holds provider keys, so every /v1 route requires a
// token once a secret is configured.
package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DefaultTTL applies when IssueToken is given a zero ttl.
const DefaultTTL = 30 * 24 * time.Hour

var (
	ErrMalformedToken = errors.New("auth: malformed token")
	ErrBadSignature   = errors.New("auth: signature mismatch")
	ErrExpiredToken   = errors.New("auth: token expired")
)

// Manager signs client tokens with an HMAC secret.
type Manager struct {
	secret []byte
	now    func() time.Time
}

// NewManager creates a Manager with the provided secret.
func NewManager(secret string) *Manager {
	if secret == "" {
		panic("auth manager requires non-empty secret")
	}
	return &Manager{secret: []byte(secret), now: time.Now}
}

// IssueToken returns a token naming client that expires after ttl.
func (m *Manager) IssueToken(client string, ttl time.Duration) (string, error) {
	client = strings.TrimSpace(client)
	if client == "" {
		return "", errors.New("auth: client name required")
	}
	if strings.Contains(client, "|") {
		return "", errors.New("auth: client name must not contain '|'")
	}
	if ttl == 0 {
		ttl = DefaultTTL
	}
	expires := m.now().Add(ttl).Unix()
	payload := fmt.Sprintf("%s|%d", client, expires)
	sig := m.sign([]byte(payload))
	return base64.RawURLEncoding.EncodeToString([]byte(payload)) + "." + base64.RawURLEncoding.EncodeToString(sig), nil
}

// ValidateToken checks the signature and expiry and returns the client name.
func (m *Manager) ValidateToken(token string) (string, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 2 {
		return "", ErrMalformedToken
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return "", ErrMalformedToken
	}
	sig, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return "", ErrMalformedToken
	}
	if !hmac.Equal(sig, m.sign(payload)) {
		return "", ErrBadSignature
	}
	client, rawExpiry, ok := strings.Cut(string(payload), "|")
	if !ok {
		return "", ErrMalformedToken
	}
	expiry, err := strconv.ParseInt(rawExpiry, 10, 64)
	if err != nil {
		return "", ErrMalformedToken
	}
	if m.now().Unix() > expiry {
		return "", ErrExpiredToken
	}
	return client, nil
}

func (m *Manager) sign(payload []byte) []byte {
	h := hmac.New(sha256.New, m.secret)
	h.Write(payload)
	return h.Sum(nil)
}

type clientKey struct{}

// WithClient returns a context carrying the authenticated client name.
func WithClient(ctx context.Context, client string) context.Context {
	return context.WithValue(ctx, clientKey{}, client)
}

// ClientFrom returns the authenticated client name, if any.
func ClientFrom(ctx context.Context) (string, bool) {
	c, ok := ctx.Value(clientKey{}).(string)
	return c, ok && c != ""
}
