package auth

import (
	"context"

	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// Profile is the external view of an identity, shared by both tables.
type Profile struct {
	UUID          uuid.UUID    `json:"uuid"`
	Kind          IdentityKind `json:"kind"`
	Name          string       `json:"name"`
	Username      string       `json:"username,omitempty"`
	Email         string       `json:"email"`
	Picture       string       `json:"picture,omitempty"`
	EmailVerified bool         `json:"emailVerified"`
	SetUsername   bool         `json:"setUsername"`
	SetPassword   bool         `json:"setPassword"`
}

// ProfileUpdate carries the fields a user may change. An empty Username
// leaves the current one in place; federated identities have no username.
type ProfileUpdate struct {
	Name     string `json:"name"`
	Username string `json:"username"`
	Picture  string `json:"picture"`
}

// Profiler reads and mutates profile data over both identity tables, and
// manages local passwords.
type Profiler struct {
	repo     RepositoryManager
	resolver *Resolver
	cfg      Config
	logger   Logger
}

func NewProfiler(repo RepositoryManager, resolver *Resolver, cfg Config) *Profiler {
	return &Profiler{
		repo:     repo,
		resolver: resolver,
		cfg:      cfg,
		logger:   defLogger{},
	}
}

func (p *Profiler) WithLogger(l Logger) *Profiler {
	p.logger = l
	return p
}

// Get resolves the identity across both tables and projects its profile.
func (p *Profiler) Get(ctx context.Context, id uuid.UUID) (*Profile, error) {
	identity, err := p.resolver.ByUUID(ctx, id)
	if err != nil {
		return nil, err
	}
	return profileOf(identity), nil
}

// Update applies the mutable profile fields and returns the fresh view.
func (p *Profiler) Update(ctx context.Context, id uuid.UUID, upd ProfileUpdate) (*Profile, error) {
	identity, err := p.resolver.ByUUID(ctx, id)
	if err != nil {
		return nil, err
	}

	if upd.Username != "" && (identity.Kind() != IdentityLocal || upd.Username != identity.Local().Username) {
		if identity.Kind() != IdentityLocal {
			return nil, errors.New("federated identities cannot hold a username", errors.CategoryBadInput).
				WithTextCode("INVALID_USERNAME").
				WithCode(errors.CodeBadRequest)
		}
		if ok, err := p.resolver.UsernameAvailable(ctx, upd.Username); err != nil {
			return nil, err
		} else if !ok {
			return nil, ErrDuplicateUsername
		}
	}

	switch identity.Kind() {
	case IdentityLocal:
		err = p.repo.Users().UpdateProfile(ctx, identity.RowID(), upd.Name, upd.Username, upd.Picture)
	default:
		err = p.repo.GoogleUsers().UpdateProfile(ctx, identity.RowID(), upd.Name, upd.Picture)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to update profile")
	}

	return p.Get(ctx, id)
}

// VerifyOldPassword checks the current password for the identity named by a
// verified token claim. The not-found and federated branches burn the same
// bcrypt work as a real comparison before failing.
func (p *Profiler) VerifyOldPassword(ctx context.Context, id uuid.UUID, password string) error {
	identity, err := p.resolver.ByUUID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrIdentityNotFound) {
			CompareDecoy(password)
			return ErrIdentityNotFound
		}
		return errors.Wrap(err, errors.CategoryInternal, "failed to resolve identity during password check")
	}

	if identity.Kind() != IdentityLocal {
		CompareDecoy(password)
		return ErrMismatchedHashAndPassword
	}

	return ComparePasswordAndHash(password, identity.Local().PasswordHash)
}

// SetNewPassword validates the policy and stores a fresh hash for the
// identity named by a verified token claim. When neither table holds the
// claimed uuid, a bare local row keyed by that uuid is created with just the
// new credential, but only if configuration allows it.
func (p *Profiler) SetNewPassword(ctx context.Context, id uuid.UUID, newPassword string) (*User, error) {
	if err := ValidatePassword(newPassword); err != nil {
		return nil, err
	}

	hash, err := HashPassword(newPassword)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to hash password")
	}

	identity, err := p.resolver.ByUUID(ctx, id)
	if err != nil {
		if !errors.Is(err, ErrIdentityNotFound) {
			return nil, errors.Wrap(err, errors.CategoryInternal, "failed to resolve identity during password update")
		}

		if p.cfg == nil || !p.cfg.GetAllowPasswordBootstrap() {
			return nil, ErrPasswordBootstrapDisabled
		}

		user, err := p.repo.Users().Register(ctx, &User{
			UUID:         id,
			PasswordHash: hash,
			SetPassword:  true,
		})
		if err != nil {
			return nil, errors.Wrap(err, errors.CategoryInternal, "failed to bootstrap identity for password")
		}
		p.logger.Info("bootstrapped bare identity %s for password set", id)
		return user, nil
	}

	if identity.Kind() != IdentityLocal {
		return nil, ErrNoLocalPassword
	}

	user := identity.Local()
	if err := p.repo.Users().SetPassword(ctx, user.ID, hash); err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to store password")
	}

	user.PasswordHash = hash
	user.SetPassword = true
	return user, nil
}

func profileOf(identity *ResolvedIdentity) *Profile {
	p := &Profile{
		UUID:          identity.UUID(),
		Kind:          identity.Kind(),
		Email:         identity.Email(),
		EmailVerified: identity.EmailVerified(),
	}

	if identity.Kind() == IdentityLocal {
		u := identity.Local()
		p.Name = u.Name
		p.Username = u.Username
		p.Picture = u.Picture
		p.SetUsername = u.SetUsername
		p.SetPassword = u.SetPassword
	} else {
		g := identity.Federated()
		p.Name = g.Name
		p.Username = g.Nickname
		p.Picture = g.Picture
		p.SetUsername = g.Nickname != ""
	}

	return p
}
