package auth

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/uptrace/bun"
)

// OTPCodeLength is the fixed width of generated passcodes.
const OTPCodeLength = 6

// DefaultOTPWindow is the passcode validity window used when config carries none.
const DefaultOTPWindow = 5 * time.Minute

type RegisterUserMessage struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	// UseHashid derives the identity uuid deterministically from the email
	// instead of generating a random one.
	UseHashid bool
}

func (e RegisterUserMessage) Type() string { return "user.register" }

// Registrar drives registration, passcode issuance, verification, and
// resend. States per identity: registered(unverified) -> otp pending ->
// otp verified -> email verified + session issued.
type Registrar struct {
	repo      RepositoryManager
	resolver  *Resolver
	auther    *Auther
	notifier  Notifier
	otpWindow time.Duration
	logger    Logger
}

func NewRegistrar(repo RepositoryManager, resolver *Resolver, auther *Auther, cfg Config) *Registrar {
	window := DefaultOTPWindow
	if cfg != nil && cfg.GetOTPWindow() > 0 {
		window = cfg.GetOTPWindow()
	}

	return &Registrar{
		repo:      repo,
		resolver:  resolver,
		auther:    auther,
		otpWindow: window,
		logger:    defLogger{},
	}
}

func (r *Registrar) WithLogger(l Logger) *Registrar {
	r.logger = l
	return r
}

func (r *Registrar) WithNotifier(n Notifier) *Registrar {
	r.notifier = n
	return r
}

// Register validates input and cross-table uniqueness, creates the local
// identity with an unverified email, stores a fresh passcode, and mails it.
// The uniqueness probe and the insert are not one atomic step; the check is
// best-effort and a storage-level unique index is the backstop.
func (r *Registrar) Register(ctx context.Context, msg RegisterUserMessage) (*User, error) {
	if err := validation.Validate(msg.Username, validation.Required); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "username is required").
			WithTextCode("INVALID_USERNAME").
			WithCode(goerrors.CodeBadRequest)
	}
	if err := ValidateEmail(msg.Email); err != nil {
		return nil, err
	}
	if err := ValidatePassword(msg.Password); err != nil {
		return nil, err
	}

	if ok, err := r.resolver.UsernameAvailable(ctx, msg.Username); err != nil {
		return nil, err
	} else if !ok {
		return nil, ErrDuplicateUsername
	}

	if ok, err := r.resolver.EmailAvailable(ctx, msg.Email); err != nil {
		return nil, err
	} else if !ok {
		return nil, ErrDuplicateEmail
	}

	hash, err := HashPassword(msg.Password)
	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return nil, goerrors.Wrap(richErr, goerrors.CategoryValidation, "invalid password provided")
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
	}

	user := &User{
		Username:     msg.Username,
		Email:        msg.Email,
		PasswordHash: hash,
	}
	if msg.UseHashid {
		if id, err := hashid.NewUUID(msg.Email); err == nil {
			user.UUID = id
		}
	}

	code, err := GenerateOTPCode()
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate passcode")
	}

	err = r.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if user, err = r.repo.Users().RegisterTx(ctx, tx, user); err != nil {
			if isUniqueViolation(err) {
				return goerrors.Wrap(err, goerrors.CategoryConflict, "could not create user").
					WithCode(goerrors.CodeConflict)
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "could not create user")
		}
		_, err := r.repo.OTPs().CreateTx(ctx, tx, NewOTPRecord(user.ID, code, r.otpWindow))
		return err
	})
	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return nil, richErr
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "user registration transaction failed")
	}

	r.sendCode(user, code)

	return user, nil
}

// VerifyOTP matches the most recent passcode record with the given code.
// When no unverified, unexpired records remain after the match, the email is
// marked verified, every passcode is retired, and a session is issued.
func (r *Registrar) VerifyOTP(ctx context.Context, email, code string) (*LoginResult, error) {
	user, err := r.repo.Users().GetByEmail(ctx, email)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrIdentityNotFound
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve user during verification")
	}

	record, err := r.repo.OTPs().LatestMatch(ctx, user.ID, code)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to look up passcode")
	}
	if record == nil {
		return nil, ErrInvalidOTP
	}

	if record.IsVerified {
		return nil, ErrOTPAlreadyVerified
	}
	if record.IsExpired {
		return nil, ErrOTPExpired
	}
	// A lapsed window never matches, even with the correct code.
	if time.Now().After(record.ExpiresAt) {
		return nil, ErrInvalidOTP
	}

	completed := false
	err = r.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := r.repo.OTPs().MarkVerifiedTx(ctx, tx, record.ID); err != nil {
			return err
		}

		outstanding, err := r.repo.OTPs().CountOutstandingTx(ctx, tx, user.ID)
		if err != nil {
			return err
		}
		if outstanding > 0 {
			return nil
		}

		if err := r.repo.Users().MarkEmailVerifiedTx(ctx, tx, user.ID); err != nil {
			return err
		}
		if err := r.repo.OTPs().ExpireAllTx(ctx, tx, user.ID); err != nil {
			return err
		}
		completed = true
		return nil
	})
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "passcode verification transaction failed")
	}

	if !completed {
		return &LoginResult{Identity: LocalIdentity(user)}, nil
	}

	user.EmailVerified = true
	return r.auther.IssueSession(ctx, LocalIdentity(user))
}

// ResendOTP retires every outstanding passcode and issues a fresh one with a
// new validity window.
func (r *Registrar) ResendOTP(ctx context.Context, email string) error {
	user, err := r.repo.Users().GetByEmail(ctx, email)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return ErrIdentityNotFound
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve user during resend")
	}

	code, err := GenerateOTPCode()
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate passcode")
	}

	err = r.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := r.repo.OTPs().ExpireAllTx(ctx, tx, user.ID); err != nil {
			return err
		}
		_, err := r.repo.OTPs().CreateTx(ctx, tx, NewOTPRecord(user.ID, code, r.otpWindow))
		return err
	})
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "passcode resend transaction failed")
	}

	r.sendCode(user, code)

	return nil
}

func (r *Registrar) sendCode(user *User, code string) {
	if r.notifier == nil {
		return
	}

	to := user.Email
	name := user.Username
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		body := fmt.Sprintf(
			"Dear %s,\n\nYour verification code is %s. It expires in %d minutes.",
			name, code, int(r.otpWindow.Minutes()),
		)
		if err := r.notifier.Send(ctx, to, "Verify Your Email Address", body); err != nil {
			r.logger.Warn("failed to send verification email to %s: %v", to, err)
		}
	}()
}

// GenerateOTPCode returns a fixed-width numeric passcode from crypto/rand.
func GenerateOTPCode() (string, error) {
	max := big.NewInt(1)
	for i := 0; i < OTPCodeLength; i++ {
		max.Mul(max, big.NewInt(10))
	}

	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("%0*d", OTPCodeLength, n), nil
}
