package auth

import (
	"context"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Users is the repository over the local identity table.
type Users interface {
	repository.Repository[*User]

	GetByUUID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByUUIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	GetByUsernameTx(ctx context.Context, tx bun.IDB, username string) (*User, error)

	Register(ctx context.Context, user *User) (*User, error)
	RegisterTx(ctx context.Context, tx bun.IDB, user *User) (*User, error)

	RotateToken(ctx context.Context, id int64) (uuid.UUID, error)
	RotateTokenTx(ctx context.Context, tx bun.IDB, id int64) (uuid.UUID, error)

	SetPassword(ctx context.Context, id int64, passwordHash string) error
	SetPasswordTx(ctx context.Context, tx bun.IDB, id int64, passwordHash string) error

	UpdateProfile(ctx context.Context, id int64, name, username, picture string) error
	UpdateProfileTx(ctx context.Context, tx bun.IDB, id int64, name, username, picture string) error

	MarkEmailVerified(ctx context.Context, id int64) error
	MarkEmailVerifiedTx(ctx context.Context, tx bun.IDB, id int64) error
}

type users struct {
	repository.Repository[*User]
	db *bun.DB
}

var (
	_ Users                        = (*users)(nil)
	_ repository.Repository[*User] = (*users)(nil)
)

func NewUsersRepository(db *bun.DB) Users {
	repo := repository.NewRepository[*User](db, repository.ModelHandlers[*User]{
		NewRecord: func() *User { return &User{} },
		GetID: func(u *User) uuid.UUID {
			if u == nil {
				return uuid.Nil
			}
			return u.UUID
		},
		SetID: func(u *User, id uuid.UUID) {
			if u != nil {
				u.UUID = id
			}
		},
		GetIdentifier: func() string {
			return "uuid"
		},
	})

	return &users{
		Repository: repo,
		db:         db,
	}
}

func (a *users) Register(ctx context.Context, user *User) (*User, error) {
	return a.RegisterTx(ctx, a.db, user)
}

func (a *users) RegisterTx(ctx context.Context, tx bun.IDB, user *User) (*User, error) {
	prepareUserDefaults(user)
	if _, err := tx.NewInsert().Model(user).Returning("*").Exec(ctx); err != nil {
		return nil, err
	}
	return user, nil
}

func (a *users) GetByUUID(ctx context.Context, id uuid.UUID) (*User, error) {
	return a.GetByUUIDTx(ctx, a.db, id)
}

func (a *users) GetByUUIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*User, error) {
	return a.selectOne(ctx, tx, "uuid", id.String())
}

func (a *users) GetByEmail(ctx context.Context, email string) (*User, error) {
	return a.GetByEmailTx(ctx, a.db, email)
}

func (a *users) GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*User, error) {
	return a.selectOne(ctx, tx, "email", email)
}

func (a *users) GetByUsername(ctx context.Context, username string) (*User, error) {
	return a.GetByUsernameTx(ctx, a.db, username)
}

func (a *users) GetByUsernameTx(ctx context.Context, tx bun.IDB, username string) (*User, error) {
	return a.selectOne(ctx, tx, "username", username)
}

func (a *users) selectOne(ctx context.Context, tx bun.IDB, column, value string) (*User, error) {
	record := &User{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias."+column+" = ?", value).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{column: value})
		}
		return nil, err
	}
	return record, nil
}

func (a *users) RotateToken(ctx context.Context, id int64) (uuid.UUID, error) {
	return a.RotateTokenTx(ctx, a.db, id)
}

// RotateTokenTx replaces the rotating verification token with a fresh value.
// Consuming a one-time token without rotating re-enables replay, so every
// consumption path must call this.
func (a *users) RotateTokenTx(ctx context.Context, tx bun.IDB, id int64) (uuid.UUID, error) {
	next := uuid.New()
	now := time.Now()
	_, err := tx.NewUpdate().
		Model((*User)(nil)).
		Set("token = ?", next).
		Set("updated_at = ?", now).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return uuid.Nil, err
	}
	return next, nil
}

func (a *users) SetPassword(ctx context.Context, id int64, passwordHash string) error {
	return a.SetPasswordTx(ctx, a.db, id, passwordHash)
}

func (a *users) SetPasswordTx(ctx context.Context, tx bun.IDB, id int64, passwordHash string) error {
	now := time.Now()
	_, err := tx.NewUpdate().
		Model((*User)(nil)).
		Set("password_hash = ?", passwordHash).
		Set("set_password = ?", true).
		Set("updated_at = ?", now).
		Where("id = ?", id).
		Exec(ctx)
	return err
}

func (a *users) UpdateProfile(ctx context.Context, id int64, name, username, picture string) error {
	return a.UpdateProfileTx(ctx, a.db, id, name, username, picture)
}

// UpdateProfileTx updates the mutable profile fields. A non-empty username
// also flips the set_username flag, recording that the user picked one.
func (a *users) UpdateProfileTx(ctx context.Context, tx bun.IDB, id int64, name, username, picture string) error {
	now := time.Now()
	q := tx.NewUpdate().
		Model((*User)(nil)).
		Set("name = ?", name).
		Set("picture = ?", picture).
		Set("updated_at = ?", now).
		Where("id = ?", id)

	if username != "" {
		q = q.Set("username = ?", username).
			Set("set_username = ?", true)
	}

	_, err := q.Exec(ctx)
	return err
}

func (a *users) MarkEmailVerified(ctx context.Context, id int64) error {
	return a.MarkEmailVerifiedTx(ctx, a.db, id)
}

func (a *users) MarkEmailVerifiedTx(ctx context.Context, tx bun.IDB, id int64) error {
	now := time.Now()
	_, err := tx.NewUpdate().
		Model((*User)(nil)).
		Set("email_verified = ?", true).
		Set("updated_at = ?", now).
		Where("id = ?", id).
		Exec(ctx)
	return err
}

func prepareUserDefaults(record *User) {
	if record == nil {
		return
	}

	if record.UUID == uuid.Nil {
		record.UUID = uuid.New()
	}

	if record.Token == uuid.Nil {
		record.Token = uuid.New()
	}

	if record.Auth == uuid.Nil {
		record.Auth = uuid.New()
	}
}
