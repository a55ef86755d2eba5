package auth

import (
	"regexp"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/goliatone/go-errors"
)

var (
	reUpper      = regexp.MustCompile(`[A-Z]`)
	reLower      = regexp.MustCompile(`[a-z]`)
	reDigit      = regexp.MustCompile(`[0-9]`)
	reSymbol     = regexp.MustCompile(`[^A-Za-z0-9\s]`)
	reNoSpaces   = regexp.MustCompile(`^\S+$`)
	reEmailShape = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
)

// ValidatePassword enforces the composed password policy: length 8-100, at
// least one uppercase, lowercase, digit and symbol, no whitespace.
func ValidatePassword(password string) error {
	err := validation.Validate(password,
		validation.Required,
		validation.Length(8, 100),
		validation.Match(reUpper).Error("must contain an uppercase letter"),
		validation.Match(reLower).Error("must contain a lowercase letter"),
		validation.Match(reDigit).Error("must contain a digit"),
		validation.Match(reSymbol).Error("must contain a symbol"),
		validation.Match(reNoSpaces).Error("must not contain whitespace"),
	)
	if err != nil {
		return errors.Wrap(err, errors.CategoryValidation, "password does not meet policy").
			WithTextCode("WEAK_PASSWORD").
			WithCode(errors.CodeBadRequest)
	}
	return nil
}

// ValidateEmail applies the same address shape check the registration flow
// has always used.
func ValidateEmail(email string) error {
	err := validation.Validate(email,
		validation.Required,
		validation.Match(reEmailShape).Error("invalid email format"),
	)
	if err != nil {
		return errors.Wrap(err, errors.CategoryValidation, "invalid email address").
			WithTextCode("INVALID_EMAIL").
			WithCode(errors.CodeBadRequest)
	}
	return nil
}
