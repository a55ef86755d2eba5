package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"golang.org/x/crypto/bcrypt"

	auth "github.com/nodalab/authd"
)

type testConfig struct{}

func (testConfig) GetIdentitySecret() string          { return "identity-secret" }
func (testConfig) GetAuthSecret() string              { return "auth-secret" }
func (testConfig) GetOneTimeSecret() string           { return "one-time-secret" }
func (testConfig) GetIdentityTokenTTL() time.Duration { return time.Hour }
func (testConfig) GetSessionDuration() time.Duration  { return 25 * time.Hour }
func (testConfig) GetOTPWindow() time.Duration        { return 5 * time.Minute }
func (testConfig) GetBcryptCost() int                 { return bcrypt.MinCost }
func (testConfig) GetClientURL() string               { return "http://localhost:3000/welcome" }
func (testConfig) GetIssuer() string                  { return "authd-test" }
func (testConfig) GetAllowPasswordBootstrap() bool    { return false }

type harness struct {
	app *fiber.App
	db  *bun.DB
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	auth.BcryptCost = bcrypt.MinCost

	db, err := auth.OpenDB(":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, auth.CreateSchema(context.Background(), db))

	cfg := testConfig{}
	repo := auth.NewRepositoryManager(db)
	resolver := auth.NewResolver(repo)
	tokens := auth.NewTokenService(cfg, nil)
	sessions := auth.NewSessionCoordinator(repo, cfg)
	auther := auth.NewAuther(repo, resolver, tokens, sessions, cfg)
	registrar := auth.NewRegistrar(repo, resolver, auther, cfg)
	profiler := auth.NewProfiler(repo, resolver, cfg)

	app := fiber.New()
	NewController(auther, registrar, profiler).RegisterRoutes(app, "/auth")

	return &harness{app: app, db: db}
}

func (h *harness) request(t *testing.T, method, path string, payload any) (*http.Response, map[string]any) {
	t.Helper()

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.app.Test(req, -1)
	require.NoError(t, err)

	decoded := map[string]any{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &decoded))
	}

	return resp, decoded
}

func (h *harness) latestOTPCode(t *testing.T, email string) string {
	t.Helper()

	user := &auth.User{}
	err := h.db.NewSelect().
		Model(user).
		Where("email = ?", email).
		Scan(context.Background())
	require.NoError(t, err)

	record := &auth.OTP{}
	err = h.db.NewSelect().
		Model(record).
		Where("user_id = ?", user.ID).
		Order("created_at DESC", "id DESC").
		Limit(1).
		Scan(context.Background())
	require.NoError(t, err)

	return record.Code
}

func (h *harness) register(t *testing.T, username, email string) {
	t.Helper()

	resp, body := h.request(t, fiber.MethodPost, "/auth/register", fiber.Map{
		"username": username,
		"email":    email,
		"password": "Sup3r$ecret",
	})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	require.Equal(t, true, body["success"])
}

func (h *harness) registerAndVerify(t *testing.T, username, email string) {
	t.Helper()

	h.register(t, username, email)

	resp, body := h.request(t, fiber.MethodPost, "/auth/verify-otp", fiber.Map{
		"email": email,
		"otp":   h.latestOTPCode(t, email),
	})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, true, body["success"])
	require.NotEmpty(t, body["redirectQueryString"])
}

func TestRegisterEndpoint(t *testing.T) {
	h := newHarness(t)

	resp, body := h.request(t, fiber.MethodPost, "/auth/register", fiber.Map{
		"username": "newbie",
		"email":    "newbie@example.com",
		"password": "Sup3r$ecret",
	})

	assert.Equal(t, fiber.StatusCreated, resp.StatusCode)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, true, body["emailSend"])
}

func TestRegisterEndpointConflicts(t *testing.T) {
	h := newHarness(t)

	h.register(t, "newbie", "newbie@example.com")

	resp, body := h.request(t, fiber.MethodPost, "/auth/register", fiber.Map{
		"username": "newbie",
		"email":    "other@example.com",
		"password": "Sup3r$ecret",
	})
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)
	assert.Equal(t, true, body["existingUsername"])

	resp, body = h.request(t, fiber.MethodPost, "/auth/register", fiber.Map{
		"username": "other",
		"email":    "newbie@example.com",
		"password": "Sup3r$ecret",
	})
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)
	assert.Equal(t, true, body["existingEmail"])
}

func TestRegisterEndpointValidation(t *testing.T) {
	h := newHarness(t)

	resp, _ := h.request(t, fiber.MethodPost, "/auth/register", fiber.Map{
		"username": "newbie",
		"email":    "not-an-email",
		"password": "Sup3r$ecret",
	})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestVerifyOTPEndpoint(t *testing.T) {
	h := newHarness(t)

	h.register(t, "newbie", "newbie@example.com")

	resp, body := h.request(t, fiber.MethodPost, "/auth/verify-otp", fiber.Map{
		"email": "newbie@example.com",
		"otp":   "999999",
	})
	if h.latestOTPCode(t, "newbie@example.com") != "999999" {
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, true, body["invalidOtp"])
	}

	resp, body = h.request(t, fiber.MethodPost, "/auth/verify-otp", fiber.Map{
		"email": "newbie@example.com",
		"otp":   h.latestOTPCode(t, "newbie@example.com"),
	})
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["success"])
	assert.Contains(t, body["redirectQueryString"], "oneTimeToken=")
}

func TestResendOTPEndpoint(t *testing.T) {
	h := newHarness(t)

	h.register(t, "newbie", "newbie@example.com")

	resp, body := h.request(t, fiber.MethodPost, "/auth/resend-otp", fiber.Map{
		"email": "newbie@example.com",
	})
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["emailSend"])

	resp, body = h.request(t, fiber.MethodPost, "/auth/resend-otp", fiber.Map{
		"email": "nobody@example.com",
	})
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	assert.Equal(t, true, body["notFoundUser"])
}

func TestLoginEndpoint(t *testing.T) {
	h := newHarness(t)

	h.registerAndVerify(t, "newbie", "newbie@example.com")

	resp, body := h.request(t, fiber.MethodPost, "/auth/login", fiber.Map{
		"email":    "newbie@example.com",
		"password": "Sup3r$ecret",
	})
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["success"])
	assert.Contains(t, body["redirectQueryString"], "sessionName=")
}

func TestLoginEndpointFailureFlags(t *testing.T) {
	h := newHarness(t)

	h.register(t, "pending", "pending@example.com")

	resp, body := h.request(t, fiber.MethodPost, "/auth/login", fiber.Map{
		"email":    "nobody@example.com",
		"password": "Sup3r$ecret",
	})
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, true, body["notFoundUser"])

	resp, body = h.request(t, fiber.MethodPost, "/auth/login", fiber.Map{
		"email":    "pending@example.com",
		"password": "Wrong$ecret1",
	})
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, true, body["wrongPassword"])

	resp, body = h.request(t, fiber.MethodPost, "/auth/login", fiber.Map{
		"email":    "pending@example.com",
		"password": "Sup3r$ecret",
	})
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, true, body["emailNotVerified"])
}

func TestTokenVerifyEndpoint(t *testing.T) {
	h := newHarness(t)

	h.registerAndVerify(t, "newbie", "newbie@example.com")

	_, loginBody := h.request(t, fiber.MethodPost, "/auth/login", fiber.Map{
		"email":    "newbie@example.com",
		"password": "Sup3r$ecret",
	})

	redirect, ok := loginBody["redirectQueryString"].(string)
	require.True(t, ok)

	params := queryParams(t, redirect)

	resp, body := h.request(t, fiber.MethodPost, "/auth/token/verify", fiber.Map{
		"token":        params["token"],
		"oneTimeToken": params["oneTimeToken"],
	})
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["success"])

	// Replay: the rotating value changed on first use.
	resp, body = h.request(t, fiber.MethodPost, "/auth/token/verify", fiber.Map{
		"token":        params["token"],
		"oneTimeToken": params["oneTimeToken"],
	})
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, true, body["tokenMismatch"])
}

func TestLogoutEndpoint(t *testing.T) {
	h := newHarness(t)

	h.registerAndVerify(t, "newbie", "newbie@example.com")

	_, loginBody := h.request(t, fiber.MethodPost, "/auth/login", fiber.Map{
		"email":    "newbie@example.com",
		"password": "Sup3r$ecret",
	})
	params := queryParams(t, loginBody["redirectQueryString"].(string))

	resp, body := h.request(t, fiber.MethodPost, "/auth/logout", fiber.Map{
		"userId": fiber.Map{"_Xtoken": params["token"]},
	})
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["success"])
}

func TestProfileEndpoints(t *testing.T) {
	h := newHarness(t)

	h.registerAndVerify(t, "newbie", "newbie@example.com")

	_, loginBody := h.request(t, fiber.MethodPost, "/auth/login", fiber.Map{
		"email":    "newbie@example.com",
		"password": "Sup3r$ecret",
	})
	params := queryParams(t, loginBody["redirectQueryString"].(string))

	resp, body := h.request(t, fiber.MethodPost, "/auth/profile", fiber.Map{
		"token": params["token"],
	})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	profile := body["profile"].(map[string]any)
	assert.Equal(t, "newbie", profile["username"])

	resp, body = h.request(t, fiber.MethodPut, "/auth/profile", fiber.Map{
		"token":    params["token"],
		"name":     "Fresh Name",
		"username": "renamed",
	})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	profile = body["profile"].(map[string]any)
	assert.Equal(t, "Fresh Name", profile["name"])
	assert.Equal(t, "renamed", profile["username"])
}

func TestPasswordEndpoints(t *testing.T) {
	h := newHarness(t)

	h.registerAndVerify(t, "newbie", "newbie@example.com")

	_, loginBody := h.request(t, fiber.MethodPost, "/auth/login", fiber.Map{
		"email":    "newbie@example.com",
		"password": "Sup3r$ecret",
	})
	params := queryParams(t, loginBody["redirectQueryString"].(string))

	resp, body := h.request(t, fiber.MethodPost, "/auth/verify-old-password", fiber.Map{
		"token":       params["token"],
		"oldPassword": "Sup3r$ecret",
	})
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["success"])

	resp, body = h.request(t, fiber.MethodPost, "/auth/new-password", fiber.Map{
		"token":       params["token"],
		"newPassword": "Fresh$ecret1",
	})
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["success"])

	resp, body = h.request(t, fiber.MethodPost, "/auth/verify-old-password", fiber.Map{
		"token":       params["token"],
		"oldPassword": "Sup3r$ecret",
	})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, true, body["wrongPassword"])
}

func TestPasswordEndpointsRequireToken(t *testing.T) {
	h := newHarness(t)

	h.registerAndVerify(t, "victim", "victim@example.com")

	// Knowing the email is not enough; without a verified token the
	// credential never changes.
	resp, body := h.request(t, fiber.MethodPost, "/auth/new-password", fiber.Map{
		"email":       "victim@example.com",
		"newPassword": "Attack3r$pwn",
	})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, false, body["success"])

	resp, body = h.request(t, fiber.MethodPost, "/auth/new-password", fiber.Map{
		"token":       "not-a-token",
		"newPassword": "Attack3r$pwn",
	})
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, true, body["invalidToken"])

	resp, body = h.request(t, fiber.MethodPost, "/auth/verify-old-password", fiber.Map{
		"email":       "victim@example.com",
		"oldPassword": "Sup3r$ecret",
	})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, false, body["success"])

	resp, _ = h.request(t, fiber.MethodPost, "/auth/login", fiber.Map{
		"email":    "victim@example.com",
		"password": "Sup3r$ecret",
	})
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func queryParams(t *testing.T, redirect string) map[string]string {
	t.Helper()

	idx := bytes.IndexByte([]byte(redirect), '?')
	require.GreaterOrEqual(t, idx, 0)

	params := map[string]string{}
	for _, pair := range bytes.Split([]byte(redirect[idx+1:]), []byte{'&'}) {
		kv := bytes.SplitN(pair, []byte{'='}, 2)
		if len(kv) == 2 {
			params[string(kv[0])] = string(kv[1])
		}
	}
	return params
}
