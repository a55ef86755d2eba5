package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// IdentityClaims carry the stable external identifier of an identity. This is
// the primary bearer credential for authenticated calls.
type IdentityClaims struct {
	jwt.RegisteredClaims
	UUID string `json:"uuid"`
}

// AuthClaims carry the secondary per-identity auth UUID, used as a
// confirmation factor independent of the primary token.
type AuthClaims struct {
	jwt.RegisteredClaims
	Auth string `json:"auth"`
}

// OneTimeClaims carry the identity's current rotating token, valid for
// exactly one verification round-trip.
type OneTimeClaims struct {
	jwt.RegisteredClaims
	Token string `json:"token"`
}

// TokenServiceImpl implements the TokenIssuer interface over three HS256
// secrets, one per token class.
type TokenServiceImpl struct {
	identitySecret []byte
	authSecret     []byte
	oneTimeSecret  []byte
	ttl            time.Duration
	issuer         string
	logger         Logger
}

var _ TokenIssuer = (*TokenServiceImpl)(nil)

// NewTokenService creates a new TokenService instance
func NewTokenService(cfg Config, logger Logger) *TokenServiceImpl {
	if logger == nil {
		logger = defLogger{}
	}
	return &TokenServiceImpl{
		identitySecret: []byte(cfg.GetIdentitySecret()),
		authSecret:     []byte(cfg.GetAuthSecret()),
		oneTimeSecret:  []byte(cfg.GetOneTimeSecret()),
		ttl:            cfg.GetIdentityTokenTTL(),
		issuer:         cfg.GetIssuer(),
		logger:         logger,
	}
}

func (ts *TokenServiceImpl) IssueIdentityToken(id uuid.UUID) (string, error) {
	claims := &IdentityClaims{
		RegisteredClaims: ts.registered(id.String()),
		UUID:             id.String(),
	}
	return ts.sign(claims, ts.identitySecret)
}

func (ts *TokenServiceImpl) IssueAuthToken(authID uuid.UUID) (string, error) {
	claims := &AuthClaims{
		RegisteredClaims: ts.registered(authID.String()),
		Auth:             authID.String(),
	}
	return ts.sign(claims, ts.authSecret)
}

func (ts *TokenServiceImpl) IssueOneTimeToken(token uuid.UUID) (string, error) {
	claims := &OneTimeClaims{
		RegisteredClaims: ts.registered(""),
		Token:            token.String(),
	}
	return ts.sign(claims, ts.oneTimeSecret)
}

func (ts *TokenServiceImpl) VerifyIdentityToken(raw string) (uuid.UUID, error) {
	claims := &IdentityClaims{}
	if err := ts.parse(raw, claims, ts.identitySecret); err != nil {
		return uuid.Nil, err
	}
	return ts.parseUUIDClaim(claims.UUID)
}

func (ts *TokenServiceImpl) VerifyAuthToken(raw string) (uuid.UUID, error) {
	claims := &AuthClaims{}
	if err := ts.parse(raw, claims, ts.authSecret); err != nil {
		return uuid.Nil, err
	}
	return ts.parseUUIDClaim(claims.Auth)
}

func (ts *TokenServiceImpl) VerifyOneTimeToken(raw string) (uuid.UUID, error) {
	claims := &OneTimeClaims{}
	if err := ts.parse(raw, claims, ts.oneTimeSecret); err != nil {
		return uuid.Nil, err
	}
	return ts.parseUUIDClaim(claims.Token)
}

func (ts *TokenServiceImpl) registered(subject string) jwt.RegisteredClaims {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Issuer:   ts.issuer,
		Subject:  subject,
		IssuedAt: jwt.NewNumericDate(now),
		ID:       uuid.NewString(),
	}
	if ts.ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ts.ttl))
	}
	return claims
}

func (ts *TokenServiceImpl) sign(claims jwt.Claims, secret []byte) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signedString, err := token.SignedString(secret)
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to sign JWT")
	}

	return signedString, nil
}

func (ts *TokenServiceImpl) parse(raw string, claims jwt.Claims, secret []byte) error {
	parserOptions := make([]jwt.ParserOption, 0, 1)
	if ts.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(ts.issuer))
	}

	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			ts.logger.Error("token service encountered unexpected signing method: %v", t.Header["alg"])
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secret, nil
	}, parserOptions...)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrTokenExpired
		}
		return errors.Wrap(err, ErrTokenMalformed.Category, ErrTokenMalformed.Message).
			WithTextCode(ErrTokenMalformed.TextCode)
	}

	if !token.Valid {
		return ErrTokenMalformed
	}

	return nil
}

func (ts *TokenServiceImpl) parseUUIDClaim(value string) (uuid.UUID, error) {
	id, err := uuid.Parse(value)
	if err != nil {
		return uuid.Nil, errors.Wrap(err, ErrTokenMalformed.Category, ErrTokenMalformed.Message).
			WithTextCode(ErrTokenMalformed.TextCode)
	}
	return id, nil
}
