package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// IdentityKind tags which identity table owns a record.
type IdentityKind string

const (
	// IdentityLocal is a password-backed identity in the users table.
	IdentityLocal IdentityKind = "local"
	// IdentityFederated is a provider-vouched identity in the google_users table.
	IdentityFederated IdentityKind = "federated"
)

// Identity is the polymorphic view over both identity tables. Callers never
// branch on storage table; the Resolver hands out the right variant.
type Identity interface {
	Kind() IdentityKind
	RowID() int64
	UUID() uuid.UUID
	Email() string
	DisplayName() string
	EmailVerified() bool
	RotatingToken() uuid.UUID
}

// Notifier delivers outbound mail. Delivery failures are logged and swallowed
// by callers; they never fail the primary response.
type Notifier interface {
	Send(ctx context.Context, to, subject, body string) error
}

// TokenIssuer issues and verifies the three signed token classes. Each class
// is scoped to its own secret so compromise of one does not grant the others'
// capabilities.
type TokenIssuer interface {
	IssueIdentityToken(id uuid.UUID) (string, error)
	IssueAuthToken(authID uuid.UUID) (string, error)
	IssueOneTimeToken(token uuid.UUID) (string, error)

	VerifyIdentityToken(raw string) (uuid.UUID, error)
	VerifyAuthToken(raw string) (uuid.UUID, error)
	VerifyOneTimeToken(raw string) (uuid.UUID, error)
}

// PasswordAuthenticator authenticates passwords
type PasswordAuthenticator interface {
	HashPassword(password string) (string, error)
	ComparePasswordAndHash(password, hash string) error
}

// TokenRevoker asks the federated provider to invalidate an access token.
type TokenRevoker interface {
	RevokeToken(ctx context.Context, accessToken string) error
}

// Config holds auth options
type Config interface {
	GetIdentitySecret() string
	GetAuthSecret() string
	GetOneTimeSecret() string
	GetIdentityTokenTTL() time.Duration
	GetSessionDuration() time.Duration
	GetOTPWindow() time.Duration
	GetBcryptCost() int
	GetClientURL() string
	GetIssuer() string
	GetAllowPasswordBootstrap() bool
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] AUTH "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] AUTH "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] AUTH "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] AUTH "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
