package auth

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// User is a locally registered identity. The numeric ID is the internal store
// key; UUID is the stable external identifier callers see in token claims.
type User struct {
	bun.BaseModel `bun:"table:users,alias:usr"`
	ID            int64      `bun:"id,pk,autoincrement" json:"id,omitempty"`
	UUID          uuid.UUID  `bun:"uuid,notnull,unique,type:uuid" json:"uuid,omitempty"`
	Name          string     `bun:"name" json:"name,omitempty"`
	Username      string     `bun:"username" json:"username,omitempty"`
	Email         string     `bun:"email,notnull" json:"email,omitempty"`
	PasswordHash  string     `bun:"password_hash" json:"password_hash,omitempty"`
	EmailVerified bool       `bun:"email_verified,notnull" json:"email_verified"`
	Picture       string     `bun:"picture" json:"picture,omitempty"`
	SetPassword   bool       `bun:"set_password,notnull" json:"set_password"`
	SetUsername   bool       `bun:"set_username,notnull" json:"set_username"`
	Token         uuid.UUID  `bun:"token,notnull,type:uuid" json:"-"`
	Auth          uuid.UUID  `bun:"auth,notnull,type:uuid" json:"-"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// GoogleUser is a federated identity vouched for by Google. Sub is the
// provider's immutable subject id; GoogleToken the last provider access token.
type GoogleUser struct {
	bun.BaseModel `bun:"table:google_users,alias:gusr"`
	ID            int64      `bun:"id,pk,autoincrement" json:"id,omitempty"`
	UUID          uuid.UUID  `bun:"uuid,notnull,unique,type:uuid" json:"uuid,omitempty"`
	Name          string     `bun:"name" json:"name,omitempty"`
	Nickname      string     `bun:"nickname" json:"nickname,omitempty"`
	Email         string     `bun:"email,notnull" json:"email,omitempty"`
	EmailVerified bool       `bun:"email_verified,notnull" json:"email_verified"`
	Picture       string     `bun:"picture" json:"picture,omitempty"`
	Sub           string     `bun:"sub,notnull" json:"sub,omitempty"`
	GoogleToken   string     `bun:"google_token" json:"-"`
	Token         uuid.UUID  `bun:"token,notnull,type:uuid" json:"-"`
	Auth          uuid.UUID  `bun:"auth,notnull,type:uuid" json:"-"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// Session is one row in the per-identity session ledger. At most one row per
// identity may have Ended=false; the coordinator enforces that on every start.
type Session struct {
	bun.BaseModel `bun:"table:sessions,alias:ses"`
	ID            int64      `bun:"id,pk,autoincrement" json:"id,omitempty"`
	SessionID     string     `bun:"session_id,notnull" json:"session_id,omitempty"`
	UserID        int64      `bun:"user_id,notnull" json:"user_id,omitempty"`
	ExpiresAt     time.Time  `bun:"expires_at,notnull" json:"expires_at"`
	Data          string     `bun:"data,notnull" json:"data,omitempty"`
	Ended         bool       `bun:"session_end,notnull" json:"session_end"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// OTP is one passcode record. Multiple records may exist per identity after
// resends; IsExpired flips when superseded or when the email becomes verified.
type OTP struct {
	bun.BaseModel `bun:"table:otps,alias:otp"`
	ID            int64      `bun:"id,pk,autoincrement" json:"id,omitempty"`
	UUID          uuid.UUID  `bun:"uuid,notnull,type:uuid" json:"uuid,omitempty"`
	Code          string     `bun:"code,notnull" json:"-"`
	UserID        int64      `bun:"user_id,notnull" json:"user_id,omitempty"`
	ExpiresAt     time.Time  `bun:"expires_at,notnull" json:"expires_at"`
	IsVerified    bool       `bun:"is_verified,notnull" json:"is_verified"`
	IsExpired     bool       `bun:"is_expired,notnull" json:"is_expired"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// Expired reports whether the record is unusable, either because it was
// superseded or because its window elapsed.
func (o *OTP) Expired(now time.Time) bool {
	return o.IsExpired || now.After(o.ExpiresAt)
}

// SessionSnapshot is the opaque audit payload serialized into Session.Data.
type SessionSnapshot struct {
	SessionID string    `json:"sessionId"`
	UserUUID  uuid.UUID `json:"userUuid"`
	Expires   time.Time `json:"expires"`
	CreatedAt time.Time `json:"createdAt"`
}
