package auth

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// OTPs is the passcode ledger backing the email verification state machine.
type OTPs interface {
	Create(ctx context.Context, record *OTP) (*OTP, error)
	CreateTx(ctx context.Context, tx bun.IDB, record *OTP) (*OTP, error)

	// LatestMatch returns the most recent record with the given code for the
	// identity, regardless of flags. Nil without error when none matches.
	LatestMatch(ctx context.Context, userID int64, code string) (*OTP, error)
	LatestMatchTx(ctx context.Context, tx bun.IDB, userID int64, code string) (*OTP, error)

	MarkVerified(ctx context.Context, id int64) error
	MarkVerifiedTx(ctx context.Context, tx bun.IDB, id int64) error

	// CountOutstanding counts records still blocking full email verification:
	// unverified and not flagged expired.
	CountOutstanding(ctx context.Context, userID int64) (int, error)
	CountOutstandingTx(ctx context.Context, tx bun.IDB, userID int64) (int, error)

	ExpireAll(ctx context.Context, userID int64) error
	ExpireAllTx(ctx context.Context, tx bun.IDB, userID int64) error
}

type otps struct {
	db *bun.DB
}

var _ OTPs = (*otps)(nil)

func NewOTPsRepository(db *bun.DB) OTPs {
	return &otps{db: db}
}

func (r *otps) Create(ctx context.Context, record *OTP) (*OTP, error) {
	return r.CreateTx(ctx, r.db, record)
}

func (r *otps) CreateTx(ctx context.Context, tx bun.IDB, record *OTP) (*OTP, error) {
	if record.UUID == uuid.Nil {
		record.UUID = uuid.New()
	}
	if _, err := tx.NewInsert().Model(record).Returning("*").Exec(ctx); err != nil {
		return nil, err
	}
	return record, nil
}

func (r *otps) LatestMatch(ctx context.Context, userID int64, code string) (*OTP, error) {
	return r.LatestMatchTx(ctx, r.db, userID, code)
}

func (r *otps) LatestMatchTx(ctx context.Context, tx bun.IDB, userID int64, code string) (*OTP, error) {
	record := &OTP{}
	err := tx.NewSelect().
		Model(record).
		Where("user_id = ? AND code = ?", userID, code).
		Order("created_at DESC", "id DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return record, nil
}

func (r *otps) MarkVerified(ctx context.Context, id int64) error {
	return r.MarkVerifiedTx(ctx, r.db, id)
}

func (r *otps) MarkVerifiedTx(ctx context.Context, tx bun.IDB, id int64) error {
	_, err := tx.NewUpdate().
		Model((*OTP)(nil)).
		Set("is_verified = ?", true).
		Where("id = ?", id).
		Exec(ctx)
	return err
}

func (r *otps) CountOutstanding(ctx context.Context, userID int64) (int, error) {
	return r.CountOutstandingTx(ctx, r.db, userID)
}

func (r *otps) CountOutstandingTx(ctx context.Context, tx bun.IDB, userID int64) (int, error) {
	return tx.NewSelect().
		Model((*OTP)(nil)).
		Where("user_id = ? AND is_verified = ? AND is_expired = ?", userID, false, false).
		Count(ctx)
}

func (r *otps) ExpireAll(ctx context.Context, userID int64) error {
	return r.ExpireAllTx(ctx, r.db, userID)
}

func (r *otps) ExpireAllTx(ctx context.Context, tx bun.IDB, userID int64) error {
	_, err := tx.NewUpdate().
		Model((*OTP)(nil)).
		Set("is_expired = ?", true).
		Where("user_id = ? AND is_expired = ?", userID, false).
		Exec(ctx)
	return err
}

// NewOTPRecord builds an unsaved passcode record with the given window.
func NewOTPRecord(userID int64, code string, window time.Duration) *OTP {
	return &OTP{
		UUID:      uuid.New(),
		Code:      code,
		UserID:    userID,
		ExpiresAt: time.Now().Add(window),
	}
}
