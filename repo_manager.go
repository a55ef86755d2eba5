package auth

import (
	"context"
	"database/sql"
	"errors"
	"log"

	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// RepositoryManager exposes all repositories
type RepositoryManager interface {
	repository.Validator
	repository.TransactionManager
	Users() Users
	GoogleUsers() GoogleUsers
	Sessions() Sessions
	OTPs() OTPs
}

type mngr struct {
	db          *bun.DB
	users       Users
	googleUsers GoogleUsers
	sessions    Sessions
	otps        OTPs
}

func NewRepositoryManager(db *bun.DB) RepositoryManager {
	return &mngr{
		db:          db,
		users:       NewUsersRepository(db),
		googleUsers: NewGoogleUsersRepository(db),
		sessions:    NewSessionsRepository(db),
		otps:        NewOTPsRepository(db),
	}
}

func (m mngr) Validate() error {
	if m.users == nil {
		return errors.New("repository users should be initialized")
	}

	if m.googleUsers == nil {
		return errors.New("repository googleUsers should be initialized")
	}

	if m.sessions == nil {
		return errors.New("repository sessions should be initialized")
	}

	if m.otps == nil {
		return errors.New("repository otps should be initialized")
	}

	return nil
}

func (m mngr) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

func (m mngr) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return m.db.RunInTx(ctx, opts, f)
	}
}

func (m mngr) Users() Users {
	return m.users
}

func (m mngr) GoogleUsers() GoogleUsers {
	return m.googleUsers
}

func (m mngr) Sessions() Sessions {
	return m.sessions
}

func (m mngr) OTPs() OTPs {
	return m.otps
}
