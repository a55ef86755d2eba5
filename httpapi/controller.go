package httpapi

import (
	"errors"
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"

	auth "github.com/nodalab/authd"
	"github.com/nodalab/authd/social"
)

// Controller exposes the identity lifecycle over HTTP. Response bodies carry
// the boolean reason flags clients branch on, one flag per failure cause.
type Controller struct {
	Debug     bool
	Logger    auth.Logger
	Auther    *auth.Auther
	Registrar *auth.Registrar
	Profiler  *auth.Profiler
	Social    *social.Authenticator
}

type ControllerOption func(*Controller) *Controller

func WithLogger(l auth.Logger) ControllerOption {
	return func(c *Controller) *Controller {
		c.Logger = l
		return c
	}
}

func WithDebug(debug bool) ControllerOption {
	return func(c *Controller) *Controller {
		c.Debug = debug
		return c
	}
}

func NewController(auther *auth.Auther, registrar *auth.Registrar, profiler *auth.Profiler, opts ...ControllerOption) *Controller {
	c := &Controller{
		Auther:    auther,
		Registrar: registrar,
		Profiler:  profiler,
		Logger:    stdLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			c = opt(c)
		}
	}

	return c
}

// WithSocial wires the federated login flow; without it the Google routes
// are not registered.
func (c *Controller) WithSocial(s *social.Authenticator) *Controller {
	c.Social = s
	return c
}

// RegisterRoutes mounts every endpoint under the given prefix.
func (c *Controller) RegisterRoutes(app *fiber.App, prefix string) {
	if prefix == "" {
		prefix = "/auth"
	}
	grp := app.Group(prefix)

	grp.Post("/register", c.Register)
	grp.Post("/verify-otp", c.VerifyOTP)
	grp.Post("/resend-otp", c.ResendOTP)
	grp.Post("/login", c.Login)
	grp.Post("/token/verify", c.VerifyOneTimeToken)
	grp.Post("/logout", c.Logout)

	grp.Post("/profile", c.ProfileShow)
	grp.Put("/profile", c.ProfileUpdate)
	grp.Post("/verify-old-password", c.VerifyOldPassword)
	grp.Post("/new-password", c.SetNewPassword)

	if c.Social != nil {
		grp.Get("/google", c.GoogleRedirect)
		grp.Get("/google/callback", c.GoogleCallback)
	}
}

type registerPayload struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (p registerPayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Username, validation.Required),
		validation.Field(&p.Email, validation.Required, is.Email),
		validation.Field(&p.Password, validation.Required),
	)
}

func (c *Controller) Register(ctx *fiber.Ctx) error {
	payload := registerPayload{}
	if err := ctx.BodyParser(&payload); err != nil {
		return badRequest(ctx, "malformed payload")
	}

	if c.Debug {
		fmt.Println(print.MaybePrettyJSON(payload))
	}

	if err := payload.Validate(); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"errors":  err,
		})
	}

	_, err := c.Registrar.Register(ctx.Context(), auth.RegisterUserMessage{
		Username: payload.Username,
		Email:    payload.Email,
		Password: payload.Password,
	})
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrDuplicateUsername):
			return ctx.Status(fiber.StatusConflict).JSON(fiber.Map{
				"success":          false,
				"existingUsername": true,
			})
		case errors.Is(err, auth.ErrDuplicateEmail):
			return ctx.Status(fiber.StatusConflict).JSON(fiber.Map{
				"success":       false,
				"existingEmail": true,
			})
		}
		return c.fail(ctx, err)
	}

	return ctx.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success":   true,
		"emailSend": true,
	})
}

type otpPayload struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

func (p otpPayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Email, validation.Required, is.Email),
		validation.Field(&p.OTP, validation.Required),
	)
}

func (c *Controller) VerifyOTP(ctx *fiber.Ctx) error {
	payload := otpPayload{}
	if err := ctx.BodyParser(&payload); err != nil {
		return badRequest(ctx, "malformed payload")
	}

	if err := payload.Validate(); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"errors":  err,
		})
	}

	result, err := c.Registrar.VerifyOTP(ctx.Context(), payload.Email, payload.OTP)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrIdentityNotFound):
			return ctx.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"success":      false,
				"notFoundUser": true,
			})
		case errors.Is(err, auth.ErrInvalidOTP):
			return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"success":    false,
				"invalidOtp": true,
			})
		case errors.Is(err, auth.ErrOTPExpired):
			return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"success":        false,
				"alreadyExpired": true,
			})
		case errors.Is(err, auth.ErrOTPAlreadyVerified):
			return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"success":         false,
				"alreadyVerified": true,
			})
		}
		return c.fail(ctx, err)
	}

	resp := fiber.Map{"success": true}
	if result.RedirectURL != "" {
		resp["redirectQueryString"] = result.RedirectURL
	}

	return ctx.JSON(resp)
}

type emailPayload struct {
	Email string `json:"email"`
}

func (p emailPayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Email, validation.Required, is.Email),
	)
}

func (c *Controller) ResendOTP(ctx *fiber.Ctx) error {
	payload := emailPayload{}
	if err := ctx.BodyParser(&payload); err != nil {
		return badRequest(ctx, "malformed payload")
	}

	if err := payload.Validate(); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"errors":  err,
		})
	}

	if err := c.Registrar.ResendOTP(ctx.Context(), payload.Email); err != nil {
		if errors.Is(err, auth.ErrIdentityNotFound) {
			return ctx.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"success":      false,
				"notFoundUser": true,
			})
		}
		return c.fail(ctx, err)
	}

	return ctx.JSON(fiber.Map{
		"success":   true,
		"emailSend": true,
	})
}

type loginPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (p loginPayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Email, validation.Required, is.Email),
		validation.Field(&p.Password, validation.Required),
	)
}

func (c *Controller) Login(ctx *fiber.Ctx) error {
	payload := loginPayload{}
	if err := ctx.BodyParser(&payload); err != nil {
		return badRequest(ctx, "malformed payload")
	}

	if err := payload.Validate(); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"errors":  err,
		})
	}

	result, err := c.Auther.Login(ctx.Context(), payload.Email, payload.Password)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrIdentityNotFound):
			return ctx.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"success":      false,
				"notFoundUser": true,
			})
		case errors.Is(err, auth.ErrMismatchedHashAndPassword):
			return ctx.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"success":       false,
				"wrongPassword": true,
			})
		case errors.Is(err, auth.ErrEmailNotVerified):
			return ctx.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"success":          false,
				"emailNotVerified": true,
			})
		}
		return c.fail(ctx, err)
	}

	return ctx.JSON(fiber.Map{
		"success":             true,
		"redirectQueryString": result.RedirectURL,
	})
}

type tokenVerifyPayload struct {
	Token        string `json:"token"`
	OneTimeToken string `json:"oneTimeToken"`
}

func (p tokenVerifyPayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Token, validation.Required),
		validation.Field(&p.OneTimeToken, validation.Required),
	)
}

// VerifyOneTimeToken consumes a one-time token. The token is dead after this
// call; replaying it fails with a mismatch.
func (c *Controller) VerifyOneTimeToken(ctx *fiber.Ctx) error {
	payload := tokenVerifyPayload{}
	if err := ctx.BodyParser(&payload); err != nil {
		return badRequest(ctx, "malformed payload")
	}

	if err := payload.Validate(); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"errors":  err,
		})
	}

	identity, err := c.Auther.ConsumeOneTimeToken(ctx.Context(), payload.Token, payload.OneTimeToken)
	if err != nil {
		switch {
		case auth.IsTokenExpiredError(err):
			return ctx.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"success":      false,
				"tokenExpired": true,
			})
		case errors.Is(err, auth.ErrTokenMismatch):
			return ctx.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"success":       false,
				"tokenMismatch": true,
			})
		case errors.Is(err, auth.ErrIdentityNotFound):
			return ctx.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"success":      false,
				"notFoundUser": true,
			})
		case auth.IsMalformedError(err):
			return ctx.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"success":      false,
				"invalidToken": true,
			})
		}
		return c.fail(ctx, err)
	}

	return ctx.JSON(fiber.Map{
		"success": true,
		"uuid":    identity.UUID(),
	})
}

type logoutPayload struct {
	UserID struct {
		Token string `json:"_Xtoken"`
	} `json:"userId"`
}

func (c *Controller) Logout(ctx *fiber.Ctx) error {
	payload := logoutPayload{}
	if err := ctx.BodyParser(&payload); err != nil {
		return badRequest(ctx, "malformed payload")
	}

	if payload.UserID.Token == "" {
		return badRequest(ctx, "missing token")
	}

	if _, err := c.Auther.Logout(ctx.Context(), payload.UserID.Token); err != nil {
		switch {
		case errors.Is(err, auth.ErrIdentityNotFound):
			return ctx.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"success":      false,
				"notFoundUser": true,
			})
		case auth.IsTokenExpiredError(err) || auth.IsMalformedError(err):
			return ctx.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"success":      false,
				"invalidToken": true,
			})
		}
		return c.fail(ctx, err)
	}

	return ctx.JSON(fiber.Map{"success": true})
}

func (c *Controller) GoogleRedirect(ctx *fiber.Ctx) error {
	target, err := c.Social.Begin(ctx.Context(), "google", ctx.Query("redirect"))
	if err != nil {
		return c.fail(ctx, err)
	}
	return ctx.Redirect(target, fiber.StatusTemporaryRedirect)
}

// GoogleCallback completes the provider flow and sends the browser to the
// client with the session payload in the query string.
func (c *Controller) GoogleCallback(ctx *fiber.Ctx) error {
	code := ctx.Query("code")
	state := ctx.Query("state")
	if code == "" || state == "" {
		return badRequest(ctx, "missing code or state")
	}

	result, err := c.Social.Complete(ctx.Context(), "google", code, state)
	if err != nil {
		return c.fail(ctx, err)
	}

	return ctx.Redirect(result.RedirectURL, fiber.StatusFound)
}

type profileShowPayload struct {
	Token string `json:"token"`
}

func (c *Controller) ProfileShow(ctx *fiber.Ctx) error {
	payload := profileShowPayload{}
	if err := ctx.BodyParser(&payload); err != nil {
		return badRequest(ctx, "malformed payload")
	}

	id, err := c.Auther.VerifyIdentity(payload.Token)
	if err != nil {
		return c.unauthorizedToken(ctx, err)
	}

	profile, err := c.Profiler.Get(ctx.Context(), id)
	if err != nil {
		if errors.Is(err, auth.ErrIdentityNotFound) {
			return ctx.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"success":      false,
				"notFoundUser": true,
			})
		}
		return c.fail(ctx, err)
	}

	return ctx.JSON(fiber.Map{
		"success": true,
		"profile": profile,
	})
}

type profileUpdatePayload struct {
	Token    string `json:"token"`
	Name     string `json:"name"`
	Username string `json:"username"`
	Picture  string `json:"picture"`
}

func (c *Controller) ProfileUpdate(ctx *fiber.Ctx) error {
	payload := profileUpdatePayload{}
	if err := ctx.BodyParser(&payload); err != nil {
		return badRequest(ctx, "malformed payload")
	}

	id, err := c.Auther.VerifyIdentity(payload.Token)
	if err != nil {
		return c.unauthorizedToken(ctx, err)
	}

	profile, err := c.Profiler.Update(ctx.Context(), id, auth.ProfileUpdate{
		Name:     payload.Name,
		Username: payload.Username,
		Picture:  payload.Picture,
	})
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrIdentityNotFound):
			return ctx.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"success":      false,
				"notFoundUser": true,
			})
		case errors.Is(err, auth.ErrDuplicateUsername):
			return ctx.Status(fiber.StatusConflict).JSON(fiber.Map{
				"success":          false,
				"existingUsername": true,
			})
		}
		return c.fail(ctx, err)
	}

	return ctx.JSON(fiber.Map{
		"success": true,
		"profile": profile,
	})
}

type oldPasswordPayload struct {
	Token       string `json:"token"`
	OldPassword string `json:"oldPassword"`
}

func (p oldPasswordPayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Token, validation.Required),
		validation.Field(&p.OldPassword, validation.Required),
	)
}

// VerifyOldPassword checks the caller's current password. The identity comes
// from the token's uuid claim, never from the request body.
func (c *Controller) VerifyOldPassword(ctx *fiber.Ctx) error {
	payload := oldPasswordPayload{}
	if err := ctx.BodyParser(&payload); err != nil {
		return badRequest(ctx, "malformed payload")
	}

	if err := payload.Validate(); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"errors":  err,
		})
	}

	id, err := c.Auther.VerifyIdentity(payload.Token)
	if err != nil {
		return c.unauthorizedToken(ctx, err)
	}

	if err := c.Profiler.VerifyOldPassword(ctx.Context(), id, payload.OldPassword); err != nil {
		switch {
		case errors.Is(err, auth.ErrIdentityNotFound):
			return ctx.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"success":      false,
				"notFoundUser": true,
			})
		case errors.Is(err, auth.ErrMismatchedHashAndPassword):
			return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"success":       false,
				"wrongPassword": true,
			})
		}
		return c.fail(ctx, err)
	}

	return ctx.JSON(fiber.Map{"success": true})
}

type newPasswordPayload struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

func (p newPasswordPayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Token, validation.Required),
		validation.Field(&p.NewPassword, validation.Required),
	)
}

// SetNewPassword stores a fresh credential for the identity named by the
// token's uuid claim.
func (c *Controller) SetNewPassword(ctx *fiber.Ctx) error {
	payload := newPasswordPayload{}
	if err := ctx.BodyParser(&payload); err != nil {
		return badRequest(ctx, "malformed payload")
	}

	if err := payload.Validate(); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"errors":  err,
		})
	}

	id, err := c.Auther.VerifyIdentity(payload.Token)
	if err != nil {
		return c.unauthorizedToken(ctx, err)
	}

	if _, err := c.Profiler.SetNewPassword(ctx.Context(), id, payload.NewPassword); err != nil {
		if errors.Is(err, auth.ErrPasswordBootstrapDisabled) {
			return ctx.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"success":      false,
				"notFoundUser": true,
			})
		}
		return c.fail(ctx, err)
	}

	return ctx.JSON(fiber.Map{"success": true})
}

func (c *Controller) unauthorizedToken(ctx *fiber.Ctx, err error) error {
	switch {
	case auth.IsTokenExpiredError(err):
		return ctx.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"success":      false,
			"tokenExpired": true,
		})
	case auth.IsMalformedError(err):
		return ctx.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"success":      false,
			"invalidToken": true,
		})
	}
	return c.fail(ctx, err)
}

// fail maps rich errors to their HTTP code, hiding internals from the body.
func (c *Controller) fail(ctx *fiber.Ctx, err error) error {
	var richErr *goerrors.Error
	if !errors.As(err, &richErr) {
		richErr = goerrors.Wrap(err, goerrors.CategoryInternal, "an unexpected server error occurred").
			WithCode(goerrors.CodeInternal)
	}

	c.Logger.Error(
		"request failed: %s category=%s details=%s",
		richErr.Message,
		richErr.Category,
		print.MaybePrettyJSON(richErr.Metadata),
	)

	status := richErr.Code
	if status == 0 {
		status = fiber.StatusInternalServerError
	}

	return ctx.Status(status).JSON(fiber.Map{
		"success": false,
		"error":   richErr.Message,
	})
}

func badRequest(ctx *fiber.Ctx, msg string) error {
	return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"success": false,
		"error":   msg,
	})
}

type stdLogger struct{}

func (stdLogger) Error(format string, args ...any) { fmt.Printf("[ERR] HTTP "+format+"\n", args...) }
func (stdLogger) Warn(format string, args ...any)  { fmt.Printf("[WRN] HTTP "+format+"\n", args...) }
func (stdLogger) Info(format string, args ...any)  { fmt.Printf("[INF] HTTP "+format+"\n", args...) }
func (stdLogger) Debug(format string, args ...any) { fmt.Printf("[DBG] HTTP "+format+"\n", args...) }
