package social

import (
	"context"
	"fmt"
	"time"

	goerrors "github.com/goliatone/go-errors"

	auth "github.com/nodalab/authd"
)

// Authenticator completes provider-vouched logins. A verified provider
// profile is folded into the federated identity table and a session is
// issued through the same path local logins use.
type Authenticator struct {
	providers map[string]Provider
	state     StateManager
	repo      auth.RepositoryManager
	auther    *auth.Auther
	notifier  auth.Notifier
	logger    auth.Logger
}

func NewAuthenticator(repo auth.RepositoryManager, auther *auth.Auther, state StateManager) *Authenticator {
	return &Authenticator{
		providers: map[string]Provider{},
		state:     state,
		repo:      repo,
		auther:    auther,
		logger:    defLogger{},
	}
}

// WithProvider registers a provider under its own name.
func (a *Authenticator) WithProvider(p Provider) *Authenticator {
	a.providers[p.Name()] = p
	return a
}

func (a *Authenticator) WithLogger(l auth.Logger) *Authenticator {
	a.logger = l
	return a
}

func (a *Authenticator) WithNotifier(n auth.Notifier) *Authenticator {
	a.notifier = n
	return a
}

// Provider returns a registered provider by name.
func (a *Authenticator) Provider(name string) (Provider, error) {
	p, ok := a.providers[name]
	if !ok {
		return nil, ErrProviderNotFound
	}
	return p, nil
}

// Begin starts the authorization flow: it generates a PKCE verifier, seals
// it into the state parameter, and returns the provider URL to redirect to.
func (a *Authenticator) Begin(ctx context.Context, providerName, redirectURL string) (string, error) {
	provider, err := a.Provider(providerName)
	if err != nil {
		return "", err
	}

	verifier, err := generateCodeVerifier()
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate code verifier")
	}

	encoded, err := a.state.Encode(&OAuthState{
		Provider:     providerName,
		CodeVerifier: verifier,
		RedirectURL:  redirectURL,
	})
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to encode oauth state")
	}

	return provider.AuthCodeURL(encoded,
		WithPKCE(computeCodeChallenge(verifier), "S256"),
	), nil
}

// Complete finishes the callback leg: it verifies the state, exchanges the
// code, fetches the profile, upserts the federated identity, and issues a
// session. The provider must vouch for the email.
func (a *Authenticator) Complete(ctx context.Context, providerName, code, stateToken string) (*auth.LoginResult, error) {
	state, err := a.state.Decode(stateToken)
	if err != nil {
		return nil, err
	}
	if state.Provider != providerName {
		return nil, ErrInvalidState
	}

	provider, err := a.Provider(providerName)
	if err != nil {
		return nil, err
	}

	var exchangeOpts []ExchangeOption
	if state.CodeVerifier != "" {
		exchangeOpts = append(exchangeOpts, WithCodeVerifier(state.CodeVerifier))
	}

	token, err := provider.Exchange(ctx, code, exchangeOpts...)
	if err != nil {
		return nil, wrapProviderError(ErrTokenExchangeFailed, providerName, "exchange", err)
	}

	profile, err := provider.UserInfo(ctx, token)
	if err != nil {
		return nil, wrapProviderError(ErrUserInfoFailed, providerName, "user_info", err)
	}

	if !profile.EmailVerified {
		return nil, ErrEmailNotVerified
	}

	record, err := a.repo.GoogleUsers().UpsertProfile(ctx, &auth.GoogleUser{
		Name:          profile.Name,
		Nickname:      profile.Nickname,
		Email:         profile.Email,
		EmailVerified: profile.EmailVerified,
		Picture:       profile.AvatarURL,
		Sub:           profile.ProviderUserID,
		GoogleToken:   token.AccessToken,
	})
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to upsert federated identity")
	}

	result, err := a.auther.IssueSession(ctx, auth.FederatedIdentity(record))
	if err != nil {
		return nil, err
	}

	a.notifyLogin(record)

	return result, nil
}

func (a *Authenticator) notifyLogin(record *auth.GoogleUser) {
	if a.notifier == nil {
		return
	}

	to := record.Email
	name := record.Name
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		body := fmt.Sprintf(
			"Dear %s,\n\nYour account was successfully logged in at %s.\n\nIf you did not perform this action, please contact us immediately.",
			name, time.Now().Format(time.RFC1123),
		)
		if err := a.notifier.Send(ctx, to, "Successful Login Notification", body); err != nil {
			a.logger.Warn("failed to send login email to %s: %v", to, err)
		}
	}()
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) { fmt.Printf("[ERR] SOCIAL "+format+"\n", args...) }
func (d defLogger) Warn(format string, args ...any)  { fmt.Printf("[WRN] SOCIAL "+format+"\n", args...) }
func (d defLogger) Info(format string, args ...any)  { fmt.Printf("[INF] SOCIAL "+format+"\n", args...) }
func (d defLogger) Debug(format string, args ...any) { fmt.Printf("[DBG] SOCIAL "+format+"\n", args...) }
