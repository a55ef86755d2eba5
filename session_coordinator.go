package auth

import (
	"context"
	"encoding/json"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// DefaultSessionDuration is the session expiry used when config carries none.
const DefaultSessionDuration = 25 * time.Hour

// SessionCoordinator enforces the single-open-session invariant. Starting a
// session closes any open one and inserts the replacement inside one
// transaction, so concurrent logins for the same identity cannot leave two
// rows open.
type SessionCoordinator struct {
	repo     RepositoryManager
	duration time.Duration
	logger   Logger
	revoker  TokenRevoker
}

func NewSessionCoordinator(repo RepositoryManager, cfg Config) *SessionCoordinator {
	duration := DefaultSessionDuration
	if cfg != nil && cfg.GetSessionDuration() > 0 {
		duration = cfg.GetSessionDuration()
	}

	return &SessionCoordinator{
		repo:     repo,
		duration: duration,
		logger:   defLogger{},
	}
}

func (c *SessionCoordinator) WithLogger(l Logger) *SessionCoordinator {
	c.logger = l
	return c
}

// WithTokenRevoker wires the federated provider's revocation endpoint, used
// on logout for identities that hold a provider access token.
func (c *SessionCoordinator) WithTokenRevoker(r TokenRevoker) *SessionCoordinator {
	c.revoker = r
	return c
}

// Start closes any open session for the identity and opens a fresh one. The
// session id is generated per call; the data column captures an audit
// snapshot of the session attributes.
func (c *SessionCoordinator) Start(ctx context.Context, identity Identity) (*Session, error) {
	now := time.Now()
	record := &Session{
		SessionID: uuid.NewString(),
		UserID:    identity.RowID(),
		ExpiresAt: now.Add(c.duration),
	}

	snapshot, err := json.Marshal(SessionSnapshot{
		SessionID: record.SessionID,
		UserUUID:  identity.UUID(),
		Expires:   record.ExpiresAt,
		CreatedAt: now,
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to serialize session snapshot")
	}
	record.Data = string(snapshot)

	err = c.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := c.repo.Sessions().CloseOpenTx(ctx, tx, identity.RowID()); err != nil {
			return err
		}
		_, err := c.repo.Sessions().CreateTx(ctx, tx, record)
		return err
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to start session")
	}

	return record, nil
}

// EndAllButLatest prunes the identity's ledger down to the most recent row on
// explicit logout. For federated identities holding a provider access token
// it additionally asks the provider to revoke it; revocation failure is
// logged and never fails the logout.
func (c *SessionCoordinator) EndAllButLatest(ctx context.Context, identity *ResolvedIdentity) error {
	if _, err := c.repo.Sessions().PruneToLatest(ctx, identity.RowID()); err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to prune sessions")
	}

	if identity.Kind() != IdentityFederated || c.revoker == nil {
		return nil
	}

	accessToken := identity.Federated().GoogleToken
	if accessToken == "" {
		return nil
	}

	if err := c.revoker.RevokeToken(ctx, accessToken); err != nil {
		c.logger.Warn("provider token revocation failed for %s: %v", identity.UUID(), err)
	}

	return nil
}
