package sceneasset

import (
	"context"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/yungbote/neurobridge-viewer/internal/platform/ctxutil"
)

// CredentialSource supplies the bearer token for an archive request.
// An empty token with a nil error means no credential is available.
type CredentialSource interface {
	Token(ctx context.Context) (string, error)
}

type CredentialFunc func(ctx context.Context) (string, error)

func (f CredentialFunc) Token(ctx context.Context) (string, error) { return f(ctx) }

// StaticCredentials always returns the same token (service-to-service use).
type StaticCredentials string

func (s StaticCredentials) Token(context.Context) (string, error) {
	return strings.TrimSpace(string(s)), nil
}

// ContextCredentials reads the token the HTTP layer attached to the request
// context, falling back to Fallback when the context carries none.
type ContextCredentials struct {
	Fallback CredentialSource
}

func (c ContextCredentials) Token(ctx context.Context) (string, error) {
	if tok := ctxutil.GetBearerToken(ctx); tok != "" {
		return tok, nil
	}
	if c.Fallback != nil {
		return c.Fallback.Token(ctx)
	}
	return "", nil
}

// VerifiedCredentials passes Source's token through Verify before handing
// it out. Sources that authorize with their own service account (object
// storage) use it so an arbitrary string never unlocks an archive.
type VerifiedCredentials struct {
	Source CredentialSource
	Verify func(token string) error
}

func (v VerifiedCredentials) Token(ctx context.Context) (string, error) {
	if v.Source == nil {
		return "", nil
	}
	tok, err := v.Source.Token(ctx)
	if err != nil || tok == "" {
		return tok, err
	}
	if v.Verify != nil {
		if err := v.Verify(tok); err != nil {
			return "", err
		}
	}
	return tok, nil
}

// CheckExpiry fails with ExpiredSession when token is a JWT whose exp has
// passed. Opaque tokens pass.
func CheckExpiry(token string, now time.Time) error {
	if info := inspectToken(token); info.expired(now) {
		return newError(KindExpiredSession, "token expired", nil)
	}
	return nil
}

type tokenInfo struct {
	Subject   string
	ExpiresAt time.Time
	IsJWT     bool
}

// inspectToken decodes a JWT without verifying it. The signature is the
// upstream's business; this only lets us skip a request that is certain to
// come back 401. Opaque tokens report IsJWT=false.
func inspectToken(token string) tokenInfo {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return tokenInfo{}
	}
	info := tokenInfo{Subject: claims.Subject, IsJWT: true}
	if claims.ExpiresAt != nil {
		info.ExpiresAt = claims.ExpiresAt.Time
	}
	return info
}

func (t tokenInfo) expired(now time.Time) bool {
	return t.IsJWT && !t.ExpiresAt.IsZero() && !now.Before(t.ExpiresAt)
}
