package auth

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartClosesPreviousSession(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	user := s.createLocalUser(t, "u@example.com", "u", "Sup3r$ecret", true)
	identity := LocalIdentity(user)

	first, err := s.sessions.Start(ctx, identity)
	require.NoError(t, err)
	second, err := s.sessions.Start(ctx, identity)
	require.NoError(t, err)

	assert.NotEqual(t, first.SessionID, second.SessionID)

	open, err := s.repo.Sessions().CountOpen(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, open)

	all, err := s.repo.Sessions().ListByUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	current, err := s.repo.Sessions().FindOpen(ctx, user.ID)
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.Equal(t, second.SessionID, current.SessionID)
}

func TestStartManyLoginsSingleOpen(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	user := s.createLocalUser(t, "u@example.com", "u", "Sup3r$ecret", true)
	identity := LocalIdentity(user)

	for i := 0; i < 5; i++ {
		_, err := s.sessions.Start(ctx, identity)
		require.NoError(t, err)
	}

	open, err := s.repo.Sessions().CountOpen(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, open)
}

func TestEndAllButLatestPrunesLedger(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	user := s.createLocalUser(t, "u@example.com", "u", "Sup3r$ecret", true)
	identity := LocalIdentity(user)

	var last *Session
	for i := 0; i < 3; i++ {
		session, err := s.sessions.Start(ctx, identity)
		require.NoError(t, err)
		last = session
	}

	require.NoError(t, s.sessions.EndAllButLatest(ctx, identity))

	all, err := s.repo.Sessions().ListByUser(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, last.SessionID, all[0].SessionID)
}

type captureRevoker struct {
	tokens []string
}

func (r *captureRevoker) RevokeToken(ctx context.Context, accessToken string) error {
	r.tokens = append(r.tokens, accessToken)
	return nil
}

func TestEndAllButLatestRevokesProviderToken(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	revoker := &captureRevoker{}
	s.sessions.WithTokenRevoker(revoker)

	record := s.createGoogleUser(t, "fed@example.com", "Fed User")
	identity := FederatedIdentity(record)

	_, err := s.sessions.Start(ctx, identity)
	require.NoError(t, err)

	require.NoError(t, s.sessions.EndAllButLatest(ctx, identity))
	require.Len(t, revoker.tokens, 1)
	assert.Equal(t, record.GoogleToken, revoker.tokens[0])
}

func TestEndAllButLatestSkipsRevokeForLocal(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	revoker := &captureRevoker{}
	s.sessions.WithTokenRevoker(revoker)

	user := s.createLocalUser(t, "u@example.com", "u", "Sup3r$ecret", true)
	identity := LocalIdentity(user)

	_, err := s.sessions.Start(ctx, identity)
	require.NoError(t, err)

	require.NoError(t, s.sessions.EndAllButLatest(ctx, identity))
	assert.Empty(t, revoker.tokens)
}

type recordingLogger struct {
	lines []string
}

func (l *recordingLogger) log(format string, args ...any) {
	l.lines = append(l.lines, fmt.Sprintf(format, args...))
}

func (l *recordingLogger) Debug(format string, args ...any) { l.log(format, args...) }
func (l *recordingLogger) Info(format string, args ...any)  { l.log(format, args...) }
func (l *recordingLogger) Warn(format string, args ...any)  { l.log(format, args...) }
func (l *recordingLogger) Error(format string, args ...any) { l.log(format, args...) }

type failingRevoker struct{}

func (failingRevoker) RevokeToken(ctx context.Context, accessToken string) error {
	return errors.New("revoke endpoint unavailable")
}

func TestRevocationFailureLoggedNotReturned(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	logger := &recordingLogger{}
	s.sessions.WithTokenRevoker(failingRevoker{}).WithLogger(logger)

	record := s.createGoogleUser(t, "fed@example.com", "Fed User")
	identity := FederatedIdentity(record)

	_, err := s.sessions.Start(ctx, identity)
	require.NoError(t, err)

	require.NoError(t, s.sessions.EndAllButLatest(ctx, identity))

	// The log line interpolates cleanly: identity and cause, no stray verbs.
	require.Len(t, logger.lines, 1)
	assert.Contains(t, logger.lines[0], record.UUID.String())
	assert.Contains(t, logger.lines[0], "revoke endpoint unavailable")
	assert.NotContains(t, logger.lines[0], "%!")
}

func TestSessionSnapshotSerialized(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	user := s.createLocalUser(t, "u@example.com", "u", "Sup3r$ecret", true)

	session, err := s.sessions.Start(ctx, LocalIdentity(user))
	require.NoError(t, err)

	assert.Contains(t, session.Data, session.SessionID)
	assert.Contains(t, session.Data, user.UUID.String())
}
