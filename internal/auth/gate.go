package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"qdamono/server/internal/session"
	"qdamono/server/internal/util"
)

// ErrUnauthenticated is returned when a credential does not resolve to a
// live session.
var ErrUnauthenticated = errors.New("unauthenticated")

// SessionStore persists the server-side record of issued access tokens.
type SessionStore interface {
	Save(ctx context.Context, jti string, principal session.Principal, expiresAt time.Time) error
	Lookup(ctx context.Context, jti string) (session.Principal, error)
	Revoke(ctx context.Context, jti string) error
}

// Identity is the authenticated account behind a credential.
type Identity struct {
	UserID   string
	UserName string
	JTI      string
}

// Gate turns credentials into identities. A token is accepted only if its
// signature verifies, it has not expired and its session was not revoked.
type Gate struct {
	secret   []byte
	ttl      time.Duration
	sessions SessionStore
	now      func() time.Time
}

func NewGate(secret string, ttl time.Duration, sessions SessionStore) *Gate {
	return &Gate{secret: []byte(secret), ttl: ttl, sessions: sessions, now: time.Now}
}

// Issue creates a signed access token for a user and records its session.
func (g *Gate) Issue(ctx context.Context, userID, userName string) (string, time.Time, error) {
	now := g.now()
	expiresAt := now.Add(g.ttl)
	claims := Claims{
		Sub:  userID,
		Name: userName,
		JTI:  util.NewID(""),
		Iat:  now.Unix(),
		Exp:  expiresAt.Unix(),
	}
	token, err := IssueToken(g.secret, claims)
	if err != nil {
		return "", time.Time{}, err
	}
	principal := session.Principal{UserID: userID, DisplayName: userName, CreatedAt: now.UTC()}
	if err := g.sessions.Save(ctx, claims.JTI, principal, expiresAt); err != nil {
		return "", time.Time{}, fmt.Errorf("record session: %w", err)
	}
	return token, expiresAt, nil
}

// Authenticate resolves a token to the identity it was issued to.
func (g *Gate) Authenticate(ctx context.Context, token string) (Identity, error) {
	if token == "" {
		return Identity{}, ErrUnauthenticated
	}
	claims, err := ParseToken(g.secret, token)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}
	principal, err := g.sessions.Lookup(ctx, claims.JTI)
	if errors.Is(err, session.ErrNotFound) {
		return Identity{}, fmt.Errorf("%w: session revoked", ErrUnauthenticated)
	}
	if err != nil {
		return Identity{}, fmt.Errorf("lookup session: %w", err)
	}
	if principal.UserID != claims.Sub {
		return Identity{}, fmt.Errorf("%w: session subject mismatch", ErrUnauthenticated)
	}
	return Identity{UserID: claims.Sub, UserName: claims.Name, JTI: claims.JTI}, nil
}

// Revoke ends the session behind a token id. Later Authenticate calls with
// the same token fail.
func (g *Gate) Revoke(ctx context.Context, jti string) error {
	if jti == "" {
		return nil
	}
	return g.sessions.Revoke(ctx, jti)
}
