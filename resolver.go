package auth

import (
	"context"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

// ResolvedIdentity is the tagged variant handed out by the Resolver. Exactly
// one of the underlying records is set.
type ResolvedIdentity struct {
	kind      IdentityKind
	local     *User
	federated *GoogleUser
}

var _ Identity = (*ResolvedIdentity)(nil)

// LocalIdentity wraps a local user row.
func LocalIdentity(u *User) *ResolvedIdentity {
	return &ResolvedIdentity{kind: IdentityLocal, local: u}
}

// FederatedIdentity wraps a federated user row.
func FederatedIdentity(u *GoogleUser) *ResolvedIdentity {
	return &ResolvedIdentity{kind: IdentityFederated, federated: u}
}

func (r *ResolvedIdentity) Kind() IdentityKind { return r.kind }

func (r *ResolvedIdentity) RowID() int64 {
	if r.kind == IdentityLocal {
		return r.local.ID
	}
	return r.federated.ID
}

func (r *ResolvedIdentity) UUID() uuid.UUID {
	if r.kind == IdentityLocal {
		return r.local.UUID
	}
	return r.federated.UUID
}

func (r *ResolvedIdentity) Email() string {
	if r.kind == IdentityLocal {
		return r.local.Email
	}
	return r.federated.Email
}

func (r *ResolvedIdentity) DisplayName() string {
	if r.kind == IdentityLocal {
		if r.local.Username != "" {
			return r.local.Username
		}
		return r.local.Name
	}
	return r.federated.Name
}

func (r *ResolvedIdentity) EmailVerified() bool {
	if r.kind == IdentityLocal {
		return r.local.EmailVerified
	}
	return r.federated.EmailVerified
}

func (r *ResolvedIdentity) RotatingToken() uuid.UUID {
	if r.kind == IdentityLocal {
		return r.local.Token
	}
	return r.federated.Token
}

// AuthID is the secondary per-identity UUID backing the auth token class.
func (r *ResolvedIdentity) AuthID() uuid.UUID {
	if r.kind == IdentityLocal {
		return r.local.Auth
	}
	return r.federated.Auth
}

// Local returns the underlying local record, nil for federated identities.
func (r *ResolvedIdentity) Local() *User { return r.local }

// Federated returns the underlying federated record, nil for local identities.
func (r *ResolvedIdentity) Federated() *GoogleUser { return r.federated }

// Resolver maps a caller to exactly one canonical identity across both
// identity tables. Probes are read-only and best-effort: a uniqueness check
// followed by a create is not atomic, which is accepted and documented.
type Resolver struct {
	repo   RepositoryManager
	logger Logger
}

func NewResolver(repo RepositoryManager) *Resolver {
	return &Resolver{
		repo:   repo,
		logger: defLogger{},
	}
}

func (r *Resolver) WithLogger(l Logger) *Resolver {
	r.logger = l
	return r
}

// ByUUID probes the local table first, then the federated table.
func (r *Resolver) ByUUID(ctx context.Context, id uuid.UUID) (*ResolvedIdentity, error) {
	user, err := r.repo.Users().GetByUUID(ctx, id)
	if err == nil {
		return LocalIdentity(user), nil
	}
	if !repository.IsRecordNotFound(err) {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to probe local identities")
	}

	gUser, err := r.repo.GoogleUsers().GetByUUID(ctx, id)
	if err == nil {
		return FederatedIdentity(gUser), nil
	}
	if !repository.IsRecordNotFound(err) {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to probe federated identities")
	}

	return nil, ErrIdentityNotFound
}

// ByEmail runs the same dual probe keyed on email. It backs the cross-table
// email uniqueness check before any create or email mutation.
func (r *Resolver) ByEmail(ctx context.Context, email string) (*ResolvedIdentity, error) {
	user, err := r.repo.Users().GetByEmail(ctx, email)
	if err == nil {
		return LocalIdentity(user), nil
	}
	if !repository.IsRecordNotFound(err) {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to probe local identities")
	}

	gUser, err := r.repo.GoogleUsers().GetByEmail(ctx, email)
	if err == nil {
		return FederatedIdentity(gUser), nil
	}
	if !repository.IsRecordNotFound(err) {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to probe federated identities")
	}

	return nil, ErrIdentityNotFound
}

// ByUsername mirrors ByEmail for username uniqueness. Federated rows carry
// the provider nickname in place of a username.
func (r *Resolver) ByUsername(ctx context.Context, username string) (*ResolvedIdentity, error) {
	user, err := r.repo.Users().GetByUsername(ctx, username)
	if err == nil {
		return LocalIdentity(user), nil
	}
	if !repository.IsRecordNotFound(err) {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to probe local identities")
	}

	return nil, ErrIdentityNotFound
}

// EmailAvailable reports whether no identity in either table owns the email.
func (r *Resolver) EmailAvailable(ctx context.Context, email string) (bool, error) {
	_, err := r.ByEmail(ctx, email)
	if err == nil {
		return false, nil
	}
	if errors.Is(err, ErrIdentityNotFound) {
		return true, nil
	}
	return false, err
}

// UsernameAvailable reports whether no local identity owns the username.
func (r *Resolver) UsernameAvailable(ctx context.Context, username string) (bool, error) {
	_, err := r.ByUsername(ctx, username)
	if err == nil {
		return false, nil
	}
	if errors.Is(err, ErrIdentityNotFound) {
		return true, nil
	}
	return false, err
}
