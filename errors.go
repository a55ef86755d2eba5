package auth

import (
	"strings"

	"github.com/goliatone/go-errors"
)

// ErrIdentityNotFound is returned when neither identity table holds the caller.
var ErrIdentityNotFound = errors.New("identity not found", errors.CategoryNotFound).
	WithTextCode("IDENTITY_NOT_FOUND").
	WithCode(errors.CodeNotFound)

// ErrMismatchedHashAndPassword is the single credential failure we expose for
// both unknown-identity and wrong-password paths.
var ErrMismatchedHashAndPassword = errors.New("credentials do not match", errors.CategoryAuth).
	WithTextCode("CREDENTIAL_MISMATCH").
	WithCode(errors.CodeUnauthorized)

// ErrEmailNotVerified blocks login until the OTP flow completes.
var ErrEmailNotVerified = errors.New("email address not verified", errors.CategoryAuth).
	WithTextCode("EMAIL_NOT_VERIFIED").
	WithCode(errors.CodeUnauthorized)

// ErrTokenExpired is returned for expired signed tokens of any class.
var ErrTokenExpired = errors.New("authentication token expired", errors.CategoryAuth).
	WithTextCode("TOKEN_EXPIRED").
	WithCode(errors.CodeUnauthorized)

// ErrTokenMalformed covers signature mismatch and undecodable payloads.
var ErrTokenMalformed = errors.New("authentication token malformed", errors.CategoryAuth).
	WithTextCode("TOKEN_MALFORMED").
	WithCode(errors.CodeUnauthorized)

// ErrTokenMismatch is returned when a one-time token claim does not equal the
// identity's current rotating token.
var ErrTokenMismatch = errors.New("tokens do not match", errors.CategoryAuth).
	WithTextCode("TOKEN_MISMATCH").
	WithCode(errors.CodeUnauthorized)

// ErrDuplicateEmail reports a cross-table email uniqueness violation.
var ErrDuplicateEmail = errors.New("email already registered", errors.CategoryConflict).
	WithTextCode("DUPLICATE_EMAIL").
	WithCode(errors.CodeConflict)

// ErrDuplicateUsername reports a cross-table username uniqueness violation.
var ErrDuplicateUsername = errors.New("username already registered", errors.CategoryConflict).
	WithTextCode("DUPLICATE_USERNAME").
	WithCode(errors.CodeConflict)

// ErrInvalidOTP is returned when no unexpired passcode record matches.
var ErrInvalidOTP = errors.New("invalid one-time passcode", errors.CategoryAuth).
	WithTextCode("INVALID_OTP").
	WithCode(errors.CodeBadRequest)

// ErrOTPExpired is returned when the matched passcode record was superseded.
var ErrOTPExpired = errors.New("one-time passcode expired", errors.CategoryAuth).
	WithTextCode("OTP_EXPIRED").
	WithCode(errors.CodeBadRequest)

// ErrOTPAlreadyVerified is returned when the matched passcode was consumed before.
var ErrOTPAlreadyVerified = errors.New("one-time passcode already verified", errors.CategoryAuth).
	WithTextCode("OTP_ALREADY_VERIFIED").
	WithCode(errors.CodeBadRequest)

// ErrNoEmptyString rejects empty required inputs before they hit the hasher.
var ErrNoEmptyString = errors.New("value must not be empty", errors.CategoryValidation).
	WithTextCode("EMPTY_VALUE").
	WithCode(errors.CodeBadRequest)

// ErrPasswordBootstrapDisabled is returned when a set-new-password call names a
// uuid with no identity row and the bootstrap fallback is not enabled.
var ErrPasswordBootstrapDisabled = errors.New("password bootstrap for unknown identity disabled", errors.CategoryAuthz).
	WithTextCode("PASSWORD_BOOTSTRAP_DISABLED").
	WithCode(errors.CodeForbidden)

// ErrNoLocalPassword is returned when a password operation targets a
// federated identity, which carries no local credential.
var ErrNoLocalPassword = errors.New("identity holds no local password", errors.CategoryBadInput).
	WithTextCode("NO_LOCAL_PASSWORD").
	WithCode(errors.CodeBadRequest)

// IsTokenExpiredError will check for expired tokens
func IsTokenExpiredError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTokenExpired) {
		return true
	}
	return strings.Contains(err.Error(), "token is expired")
}

// IsMalformedError will check for error message. The text code covers every
// verification failure the token service folds into the malformed class,
// including issuer mismatch, whose jwt message names neither word.
func IsMalformedError(err error) bool {
	if err == nil {
		return false
	}
	var richErr *errors.Error
	if errors.As(err, &richErr) && richErr.TextCode == ErrTokenMalformed.TextCode {
		return true
	}
	return strings.Contains(err.Error(), "token is malformed") ||
		strings.Contains(err.Error(), "missing or malformed JWT")
}

// IsConflictError reports uniqueness violations from either identity table.
func IsConflictError(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrDuplicateEmail) || errors.Is(err, ErrDuplicateUsername)
}
