package auth

import (
	"context"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// GoogleUsers is the repository over the federated identity table.
type GoogleUsers interface {
	repository.Repository[*GoogleUser]

	GetByUUID(ctx context.Context, id uuid.UUID) (*GoogleUser, error)
	GetByUUIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*GoogleUser, error)
	GetByEmail(ctx context.Context, email string) (*GoogleUser, error)
	GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*GoogleUser, error)

	// UpsertProfile folds a verified provider profile into the table: a new
	// row gets a fresh uuid and rotating token; an existing row has its
	// mutable fields updated in place. UUID and internal id never change.
	UpsertProfile(ctx context.Context, record *GoogleUser) (*GoogleUser, error)
	UpsertProfileTx(ctx context.Context, tx bun.IDB, record *GoogleUser) (*GoogleUser, error)

	RotateToken(ctx context.Context, id int64) (uuid.UUID, error)
	RotateTokenTx(ctx context.Context, tx bun.IDB, id int64) (uuid.UUID, error)

	UpdateProfile(ctx context.Context, id int64, name, picture string) error
	UpdateProfileTx(ctx context.Context, tx bun.IDB, id int64, name, picture string) error
}

type googleUsers struct {
	repository.Repository[*GoogleUser]
	db *bun.DB
}

var (
	_ GoogleUsers                        = (*googleUsers)(nil)
	_ repository.Repository[*GoogleUser] = (*googleUsers)(nil)
)

func NewGoogleUsersRepository(db *bun.DB) GoogleUsers {
	repo := repository.NewRepository[*GoogleUser](db, repository.ModelHandlers[*GoogleUser]{
		NewRecord: func() *GoogleUser { return &GoogleUser{} },
		GetID: func(u *GoogleUser) uuid.UUID {
			if u == nil {
				return uuid.Nil
			}
			return u.UUID
		},
		SetID: func(u *GoogleUser, id uuid.UUID) {
			if u != nil {
				u.UUID = id
			}
		},
		GetIdentifier: func() string {
			return "uuid"
		},
	})

	return &googleUsers{
		Repository: repo,
		db:         db,
	}
}

func (a *googleUsers) GetByUUID(ctx context.Context, id uuid.UUID) (*GoogleUser, error) {
	return a.GetByUUIDTx(ctx, a.db, id)
}

func (a *googleUsers) GetByUUIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*GoogleUser, error) {
	return a.selectOne(ctx, tx, "uuid", id.String())
}

func (a *googleUsers) GetByEmail(ctx context.Context, email string) (*GoogleUser, error) {
	return a.GetByEmailTx(ctx, a.db, email)
}

func (a *googleUsers) GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*GoogleUser, error) {
	return a.selectOne(ctx, tx, "email", email)
}

func (a *googleUsers) selectOne(ctx context.Context, tx bun.IDB, column, value string) (*GoogleUser, error) {
	record := &GoogleUser{}
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

func (a *googleUsers) UpsertProfile(ctx context.Context, record *GoogleUser) (*GoogleUser, error) {
	return a.UpsertProfileTx(ctx, a.db, record)
}

func (a *googleUsers) UpsertProfileTx(ctx context.Context, tx bun.IDB, record *GoogleUser) (*GoogleUser, error) {
	existing, err := a.GetByEmailTx(ctx, tx, record.Email)
	if err != nil {
		if !repository.IsRecordNotFound(err) {
			return nil, err
		}
		prepareGoogleUserDefaults(record)
		if _, err := tx.NewInsert().Model(record).Returning("*").Exec(ctx); err != nil {
			return nil, err
		}
		return record, nil
	}

	now := time.Now()
	token := uuid.New()
	_, err = tx.NewUpdate().
		Model((*GoogleUser)(nil)).
		Set("name = ?", record.Name).
		Set("email = ?", record.Email).
		Set("email_verified = ?", record.EmailVerified).
		Set("picture = ?", record.Picture).
		Set("sub = ?", record.Sub).
		Set("google_token = ?", record.GoogleToken).
		Set("token = ?", token).
		Set("updated_at = ?", now).
		Where("id = ?", existing.ID).
		Exec(ctx)
	if err != nil {
		return nil, err
	}

	return a.GetByEmailTx(ctx, tx, record.Email)
}

func (a *googleUsers) RotateToken(ctx context.Context, id int64) (uuid.UUID, error) {
	return a.RotateTokenTx(ctx, a.db, id)
}

func (a *googleUsers) RotateTokenTx(ctx context.Context, tx bun.IDB, id int64) (uuid.UUID, error) {
	next := uuid.New()
	now := time.Now()
	_, err := tx.NewUpdate().
		Model((*GoogleUser)(nil)).
		Set("token = ?", next).
		Set("updated_at = ?", now).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return uuid.Nil, err
	}
	return next, nil
}

func (a *googleUsers) UpdateProfile(ctx context.Context, id int64, name, picture string) error {
	return a.UpdateProfileTx(ctx, a.db, id, name, picture)
}

func (a *googleUsers) UpdateProfileTx(ctx context.Context, tx bun.IDB, id int64, name, picture string) error {
	now := time.Now()
	_, err := tx.NewUpdate().
		Model((*GoogleUser)(nil)).
		Set("name = ?", name).
		Set("picture = ?", picture).
		Set("updated_at = ?", now).
		Where("id = ?", id).
		Exec(ctx)
	return err
}

func prepareGoogleUserDefaults(record *GoogleUser) {
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
