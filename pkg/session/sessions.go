package session

import (
	"context"
	"fmt"
	"time"

	"github.com/jakechorley/donornet/pkg/core/model"
	"github.com/jakechorley/donornet/pkg/gateway"
)

// Lookup resolves a session token to its identity
type Lookup interface {
	LookupSession(ctx context.Context, token string) (model.Identity, error)
}

// FileSessions resolves the identity of the CLI's saved session
type FileSessions struct {
	files  *FileStore
	lookup Lookup
	now    func() time.Time
}

func NewFileSessions(files *FileStore, lookup Lookup) *FileSessions {
	return &FileSessions{files: files, lookup: lookup, now: time.Now}
}

// Token returns the saved token, or "" when there is none
func (s *FileSessions) Token() string {
	saved, err := s.files.Load()
	if err != nil || saved == nil {
		return ""
	}
	return saved.Token
}

func (s *FileSessions) CurrentIdentity(ctx context.Context) (model.Identity, error) {
	saved, err := s.files.Load()
	if err != nil {
		return "", fmt.Errorf("%w: %w", gateway.ErrAuthenticationRequired, err)
	}
	if saved == nil || saved.Token == "" || saved.Expired(s.now()) {
		return "", gateway.ErrAuthenticationRequired
	}
	return s.lookup.LookupSession(ctx, saved.Token)
}

type tokenKey struct{}

// WithToken returns a context carrying a bearer token
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

// TokenFrom returns the bearer token carried by ctx, if any
func TokenFrom(ctx context.Context) string {
	token, _ := ctx.Value(tokenKey{}).(string)
	return token
}

// TokenSessions resolves the identity of the bearer token in the context
type TokenSessions struct {
	lookup Lookup
}

func NewTokenSessions(lookup Lookup) *TokenSessions {
	return &TokenSessions{lookup: lookup}
}

func (s *TokenSessions) CurrentIdentity(ctx context.Context) (model.Identity, error) {
	token := TokenFrom(ctx)
	if token == "" {
		return "", gateway.ErrAuthenticationRequired
	}
	return s.lookup.LookupSession(ctx, token)
}
