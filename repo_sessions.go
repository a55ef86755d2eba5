package auth

import (
	"context"
	"database/sql"
	"errors"

	"github.com/uptrace/bun"
)

// Sessions is the append-only session ledger. Rows are never deleted except
// by PruneToLatest on explicit logout.
type Sessions interface {
	Create(ctx context.Context, record *Session) (*Session, error)
	CreateTx(ctx context.Context, tx bun.IDB, record *Session) (*Session, error)

	FindOpen(ctx context.Context, userID int64) (*Session, error)
	FindOpenTx(ctx context.Context, tx bun.IDB, userID int64) (*Session, error)

	// CloseOpenTx marks every open session for the identity as ended.
	CloseOpen(ctx context.Context, userID int64) error
	CloseOpenTx(ctx context.Context, tx bun.IDB, userID int64) error

	ListByUser(ctx context.Context, userID int64) ([]*Session, error)
	CountOpen(ctx context.Context, userID int64) (int, error)

	// PruneToLatest deletes every session row for the identity except the
	// most recently created one, and returns the kept row.
	PruneToLatest(ctx context.Context, userID int64) (*Session, error)
	PruneToLatestTx(ctx context.Context, tx bun.IDB, userID int64) (*Session, error)
}

type sessions struct {
	db *bun.DB
}

var _ Sessions = (*sessions)(nil)

func NewSessionsRepository(db *bun.DB) Sessions {
	return &sessions{db: db}
}

func (r *sessions) Create(ctx context.Context, record *Session) (*Session, error) {
	return r.CreateTx(ctx, r.db, record)
}

func (r *sessions) CreateTx(ctx context.Context, tx bun.IDB, record *Session) (*Session, error) {
	if _, err := tx.NewInsert().Model(record).Returning("*").Exec(ctx); err != nil {
		return nil, err
	}
	return record, nil
}

func (r *sessions) FindOpen(ctx context.Context, userID int64) (*Session, error) {
	return r.FindOpenTx(ctx, r.db, userID)
}

func (r *sessions) FindOpenTx(ctx context.Context, tx bun.IDB, userID int64) (*Session, error) {
	record := &Session{}
	err := tx.NewSelect().
		Model(record).
		Where("user_id = ? AND session_end = ?", userID, false).
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

func (r *sessions) CloseOpen(ctx context.Context, userID int64) error {
	return r.CloseOpenTx(ctx, r.db, userID)
}

func (r *sessions) CloseOpenTx(ctx context.Context, tx bun.IDB, userID int64) error {
	_, err := tx.NewUpdate().
		Model((*Session)(nil)).
		Set("session_end = ?", true).
		Where("user_id = ? AND session_end = ?", userID, false).
		Exec(ctx)
	return err
}

func (r *sessions) ListByUser(ctx context.Context, userID int64) ([]*Session, error) {
	var records []*Session
	err := r.db.NewSelect().
		Model(&records).
		Where("user_id = ?", userID).
		Order("created_at DESC", "id DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (r *sessions) CountOpen(ctx context.Context, userID int64) (int, error) {
	return r.db.NewSelect().
		Model((*Session)(nil)).
		Where("user_id = ? AND session_end = ?", userID, false).
		Count(ctx)
}

func (r *sessions) PruneToLatest(ctx context.Context, userID int64) (*Session, error) {
	return r.PruneToLatestTx(ctx, r.db, userID)
}

func (r *sessions) PruneToLatestTx(ctx context.Context, tx bun.IDB, userID int64) (*Session, error) {
	latest := &Session{}
	err := tx.NewSelect().
		Model(latest).
		Where("user_id = ?", userID).
		Order("created_at DESC", "id DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	_, err = tx.NewDelete().
		Model((*Session)(nil)).
		Where("user_id = ? AND id != ?", userID, latest.ID).
		Exec(ctx)
	if err != nil {
		return nil, err
	}

	return latest, nil
}
