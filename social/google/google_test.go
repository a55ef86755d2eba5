package google

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nodalab/authd/social"
)

func newTestProvider(t *testing.T, handler http.Handler) (*Provider, *httptest.Server) {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	p := New(Config{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		CallbackURL:  "http://localhost/auth/google/callback",
		AuthURL:      srv.URL + "/auth",
		TokenURL:     srv.URL + "/token",
		UserInfoURL:  srv.URL + "/userinfo",
		RevokeURL:    srv.URL + "/revoke",
		HTTPClient:   srv.Client(),
	})

	return p, srv
}

func TestAuthCodeURL(t *testing.T) {
	p := New(Config{
		ClientID:    "client-id",
		CallbackURL: "http://localhost/cb",
	})

	raw := p.AuthCodeURL("state-value", social.WithPKCE("challenge", "S256"))

	parsed, err := url.Parse(raw)
	require.NoError(t, err)

	q := parsed.Query()
	assert.Equal(t, "client-id", q.Get("client_id"))
	assert.Equal(t, "state-value", q.Get("state"))
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "challenge", q.Get("code_challenge"))
	assert.Equal(t, "S256", q.Get("code_challenge_method"))
	assert.Contains(t, q.Get("scope"), "email")
}

func TestExchange(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "authorization_code", r.Form.Get("grant_type"))
		assert.Equal(t, "the-code", r.Form.Get("code"))
		assert.Equal(t, "the-verifier", r.Form.Get("code_verifier"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"access_token": "access-token",
			"token_type": "Bearer",
			"expires_in": 3600,
			"refresh_token": "refresh-token",
			"scope": "openid email profile"
		}`))
	})

	p, _ := newTestProvider(t, mux)

	token, err := p.Exchange(context.Background(), "the-code", social.WithCodeVerifier("the-verifier"))
	require.NoError(t, err)

	assert.Equal(t, "access-token", token.AccessToken)
	assert.Equal(t, "refresh-token", token.RefreshToken)
	assert.False(t, token.ExpiresAt.IsZero())
	assert.Len(t, token.Scopes, 3)
}

func TestExchangeError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error": "invalid_grant", "error_description": "Bad authorization code."}`))
	})

	p, _ := newTestProvider(t, mux)

	_, err := p.Exchange(context.Background(), "bad-code")
	require.Error(t, err)

	var perr *social.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "invalid_grant", perr.Code)
	assert.Equal(t, "exchange", perr.Operation)
}

func TestUserInfo(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer access-token", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"sub": "110248495921238986420",
			"email": "fed@example.com",
			"email_verified": true,
			"name": "Fed User",
			"given_name": "Fed",
			"family_name": "User",
			"picture": "https://example.com/p.png"
		}`))
	})

	p, _ := newTestProvider(t, mux)

	profile, err := p.UserInfo(context.Background(), &social.Token{AccessToken: "access-token"})
	require.NoError(t, err)

	assert.Equal(t, "110248495921238986420", profile.ProviderUserID)
	assert.Equal(t, "fed@example.com", profile.Email)
	assert.True(t, profile.EmailVerified)
	assert.Equal(t, "Fed User", profile.Name)
	assert.Equal(t, "Fed", profile.Nickname)
	assert.Equal(t, "https://example.com/p.png", profile.AvatarURL)
}

func TestRevokeToken(t *testing.T) {
	var gotToken string
	mux := http.NewServeMux()
	mux.HandleFunc("/revoke", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		gotToken = r.URL.Query().Get("token")
		w.WriteHeader(http.StatusOK)
	})

	p, _ := newTestProvider(t, mux)

	require.NoError(t, p.RevokeToken(context.Background(), "stale-access-token"))
	assert.Equal(t, "stale-access-token", gotToken)
}

func TestRevokeTokenError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/revoke", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error": "invalid_token"}`))
	})

	p, _ := newTestProvider(t, mux)

	err := p.RevokeToken(context.Background(), "bogus")
	require.Error(t, err)

	var perr *social.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "revoke", perr.Operation)
}
