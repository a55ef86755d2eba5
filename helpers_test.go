package auth

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"golang.org/x/crypto/bcrypt"
)

func TestMain(m *testing.M) {
	BcryptCost = bcrypt.MinCost
	os.Exit(m.Run())
}

type testConfig struct {
	identitySecret    string
	authSecret        string
	oneTimeSecret     string
	identityTokenTTL  time.Duration
	sessionDuration   time.Duration
	otpWindow         time.Duration
	clientURL         string
	issuer            string
	allowPwdBootstrap bool
}

func newTestConfig() *testConfig {
	return &testConfig{
		identitySecret:   "identity-secret",
		authSecret:       "auth-secret",
		oneTimeSecret:    "one-time-secret",
		identityTokenTTL: time.Hour,
		sessionDuration:  25 * time.Hour,
		otpWindow:        5 * time.Minute,
		clientURL:        "http://localhost:3000/welcome",
		issuer:           "authd-test",
	}
}

func (c *testConfig) GetIdentitySecret() string          { return c.identitySecret }
func (c *testConfig) GetAuthSecret() string              { return c.authSecret }
func (c *testConfig) GetOneTimeSecret() string           { return c.oneTimeSecret }
func (c *testConfig) GetIdentityTokenTTL() time.Duration { return c.identityTokenTTL }
func (c *testConfig) GetSessionDuration() time.Duration  { return c.sessionDuration }
func (c *testConfig) GetOTPWindow() time.Duration        { return c.otpWindow }
func (c *testConfig) GetBcryptCost() int                 { return bcrypt.MinCost }
func (c *testConfig) GetClientURL() string               { return c.clientURL }
func (c *testConfig) GetIssuer() string                  { return c.issuer }
func (c *testConfig) GetAllowPasswordBootstrap() bool    { return c.allowPwdBootstrap }

type captureNotifier struct {
	mu       sync.Mutex
	messages []capturedMail
}

type capturedMail struct {
	To      string
	Subject string
	Body    string
}

func (n *captureNotifier) Send(ctx context.Context, to, subject, body string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, capturedMail{To: to, Subject: subject, Body: body})
	return nil
}

func setupDB(t *testing.T) *bun.DB {
	t.Helper()

	db, err := OpenDB(":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)

	require.NoError(t, CreateSchema(context.Background(), db))

	t.Cleanup(func() { db.Close() })

	return db
}

// stack wires the full service graph over an in-memory store.
type stack struct {
	db        *bun.DB
	cfg       *testConfig
	repo      RepositoryManager
	resolver  *Resolver
	tokens    *TokenServiceImpl
	sessions  *SessionCoordinator
	auther    *Auther
	registrar *Registrar
	profiler  *Profiler
}

func newStack(t *testing.T) *stack {
	t.Helper()

	db := setupDB(t)
	cfg := newTestConfig()
	repo := NewRepositoryManager(db)
	resolver := NewResolver(repo)
	tokens := NewTokenService(cfg, nil)
	sessions := NewSessionCoordinator(repo, cfg)
	auther := NewAuther(repo, resolver, tokens, sessions, cfg)

	return &stack{
		db:        db,
		cfg:       cfg,
		repo:      repo,
		resolver:  resolver,
		tokens:    tokens,
		sessions:  sessions,
		auther:    auther,
		registrar: NewRegistrar(repo, resolver, auther, cfg),
		profiler:  NewProfiler(repo, resolver, cfg),
	}
}

func (s *stack) createLocalUser(t *testing.T, email, username, password string, verified bool) *User {
	t.Helper()

	hash, err := HashPassword(password)
	require.NoError(t, err)

	user, err := s.repo.Users().Register(context.Background(), &User{
		Username:      username,
		Email:         email,
		PasswordHash:  hash,
		EmailVerified: verified,
	})
	require.NoError(t, err)

	return user
}

func (s *stack) createGoogleUser(t *testing.T, email, name string) *GoogleUser {
	t.Helper()

	record, err := s.repo.GoogleUsers().UpsertProfile(context.Background(), &GoogleUser{
		Name:          name,
		Email:         email,
		EmailVerified: true,
		Sub:           "sub-" + email,
		GoogleToken:   "access-" + email,
	})
	require.NoError(t, err)

	return record
}

// latestOTPCode reads the most recent passcode for a user straight from the
// store, standing in for the email the user would receive.
func (s *stack) latestOTPCode(t *testing.T, userID int64) string {
	t.Helper()

	record := &OTP{}
	err := s.db.NewSelect().
		Model(record).
		Where("user_id = ?", userID).
		Order("created_at DESC", "id DESC").
		Limit(1).
		Scan(context.Background())
	require.NoError(t, err)

	return record.Code
}
