package auth

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

// LoginResult is what every successful login path produces: the canonical
// identity, the opened session, the signed tokens, and the client redirect.
type LoginResult struct {
	Identity      *ResolvedIdentity
	Session       *Session
	IdentityToken string
	AuthToken     string
	OneTimeToken  string
	RedirectURL   string
}

// Auther drives local credential login and one-time token consumption.
type Auther struct {
	repo     RepositoryManager
	resolver *Resolver
	tokens   TokenIssuer
	sessions *SessionCoordinator
	notifier Notifier
	cfg      Config
	logger   Logger
}

func NewAuther(repo RepositoryManager, resolver *Resolver, tokens TokenIssuer, sessions *SessionCoordinator, cfg Config) *Auther {
	return &Auther{
		repo:     repo,
		resolver: resolver,
		tokens:   tokens,
		sessions: sessions,
		cfg:      cfg,
		logger:   defLogger{},
	}
}

func (a *Auther) WithLogger(l Logger) *Auther {
	a.logger = l
	return a
}

func (a *Auther) WithNotifier(n Notifier) *Auther {
	a.notifier = n
	return a
}

// Login authenticates a local identity by email and password. The
// unknown-identity and wrong-password branches perform the same bcrypt work
// so neither can be told apart by response latency.
func (a *Auther) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	user, err := a.repo.Users().GetByEmail(ctx, email)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			CompareDecoy(password)
			return nil, ErrIdentityNotFound
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to retrieve user during login")
	}

	if err := ComparePasswordAndHash(password, user.PasswordHash); err != nil {
		if errors.Is(err, ErrMismatchedHashAndPassword) {
			return nil, ErrMismatchedHashAndPassword
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to compare password")
	}

	if !user.EmailVerified {
		return nil, ErrEmailNotVerified
	}

	identity := LocalIdentity(user)

	result, err := a.IssueSession(ctx, identity)
	if err != nil {
		return nil, err
	}

	a.notifyAsync(identity.Email(), "Successful Login Notification", loginNotificationBody(identity.DisplayName()))

	return result, nil
}

// IssueSession opens a session for an already-authenticated identity and
// signs the token set. Shared by local login, OTP completion, and federated
// login so all three produce identical artifacts.
func (a *Auther) IssueSession(ctx context.Context, identity *ResolvedIdentity) (*LoginResult, error) {
	session, err := a.sessions.Start(ctx, identity)
	if err != nil {
		return nil, err
	}

	identityToken, err := a.tokens.IssueIdentityToken(identity.UUID())
	if err != nil {
		return nil, err
	}

	authToken := ""
	if identity.Kind() == IdentityFederated {
		if authToken, err = a.tokens.IssueAuthToken(identity.AuthID()); err != nil {
			return nil, err
		}
	}

	oneTimeToken, err := a.tokens.IssueOneTimeToken(identity.RotatingToken())
	if err != nil {
		return nil, err
	}

	result := &LoginResult{
		Identity:      identity,
		Session:       session,
		IdentityToken: identityToken,
		AuthToken:     authToken,
		OneTimeToken:  oneTimeToken,
	}
	result.RedirectURL = a.buildRedirectURL(result)

	return result, nil
}

// ConsumeOneTimeToken verifies an identity token and one-time token pair,
// compares the one-time claim against the identity's current rotating token,
// and rotates the token on success. Presenting the same signed token again
// after rotation fails.
func (a *Auther) ConsumeOneTimeToken(ctx context.Context, identityTokenRaw, oneTimeTokenRaw string) (*ResolvedIdentity, error) {
	id, err := a.tokens.VerifyIdentityToken(identityTokenRaw)
	if err != nil {
		return nil, err
	}

	claim, err := a.tokens.VerifyOneTimeToken(oneTimeTokenRaw)
	if err != nil {
		return nil, err
	}

	identity, err := a.resolver.ByUUID(ctx, id)
	if err != nil {
		return nil, err
	}

	if claim != identity.RotatingToken() {
		return nil, ErrTokenMismatch
	}

	if err := a.rotate(ctx, identity); err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to rotate one-time token")
	}

	return identity, nil
}

// Logout verifies the identity token, prunes the session ledger to the
// latest row, and revokes the provider token for federated identities.
func (a *Auther) Logout(ctx context.Context, identityTokenRaw string) (*ResolvedIdentity, error) {
	id, err := a.tokens.VerifyIdentityToken(identityTokenRaw)
	if err != nil {
		return nil, err
	}

	identity, err := a.resolver.ByUUID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := a.sessions.EndAllButLatest(ctx, identity); err != nil {
		return nil, err
	}

	return identity, nil
}

// VerifyIdentity checks an identity token signature and returns the subject
// uuid. It does not touch storage.
func (a *Auther) VerifyIdentity(raw string) (uuid.UUID, error) {
	return a.tokens.VerifyIdentityToken(raw)
}

func (a *Auther) rotate(ctx context.Context, identity *ResolvedIdentity) error {
	var err error
	if identity.Kind() == IdentityLocal {
		_, err = a.repo.Users().RotateToken(ctx, identity.RowID())
	} else {
		_, err = a.repo.GoogleUsers().RotateToken(ctx, identity.RowID())
	}
	return err
}

func (a *Auther) buildRedirectURL(result *LoginResult) string {
	pairs := [][2]string{
		{"name", result.Identity.DisplayName()},
		{"token", result.IdentityToken},
	}
	if result.AuthToken != "" {
		pairs = append(pairs, [2]string{"token2", result.AuthToken})
	}
	pairs = append(pairs,
		[2]string{"email", result.Identity.Email()},
		[2]string{"sessionName", result.Session.SessionID},
		[2]string{"sessionExpire", result.Session.ExpiresAt.Format(time.RFC3339)},
		[2]string{"oneTimeToken", result.OneTimeToken},
	)

	parts := make([]string, 0, len(pairs))
	for _, kv := range pairs {
		parts = append(parts, url.QueryEscape(kv[0])+"="+url.QueryEscape(kv[1]))
	}

	base := ""
	if a.cfg != nil {
		base = strings.TrimRight(a.cfg.GetClientURL(), "/")
	}

	return base + "?" + strings.Join(parts, "&")
}

func (a *Auther) notifyAsync(to, subject, body string) {
	if a.notifier == nil {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := a.notifier.Send(ctx, to, subject, body); err != nil {
			a.logger.Warn("failed to send notification email to %s: %v", to, err)
		}
	}()
}

func loginNotificationBody(name string) string {
	return fmt.Sprintf(
		"Dear %s,\n\nYour account was successfully logged in at %s.\n\nIf you did not perform this action, please contact us immediately.",
		name, time.Now().Format(time.RFC1123),
	)
}
