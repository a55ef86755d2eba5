package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpsertProfileCreatesThenUpdates(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	first, err := s.repo.GoogleUsers().UpsertProfile(ctx, &GoogleUser{
		Name:          "Fed User",
		Email:         "fed@example.com",
		EmailVerified: true,
		Sub:           "sub-123",
		GoogleToken:   "access-1",
	})
	require.NoError(t, err)

	second, err := s.repo.GoogleUsers().UpsertProfile(ctx, &GoogleUser{
		Name:          "Fed Renamed",
		Email:         "fed@example.com",
		EmailVerified: true,
		Picture:       "https://example.com/new.png",
		Sub:           "sub-123",
		GoogleToken:   "access-2",
	})
	require.NoError(t, err)

	// Same row: identity anchors never change across logins.
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.UUID, second.UUID)
	assert.Equal(t, first.Auth, second.Auth)

	// Mutable fields track the provider; the rotating token gets a new value.
	assert.Equal(t, "Fed Renamed", second.Name)
	assert.Equal(t, "https://example.com/new.png", second.Picture)
	assert.Equal(t, "access-2", second.GoogleToken)
	assert.NotEqual(t, first.Token, second.Token)

	count, err := s.db.NewSelect().Model((*GoogleUser)(nil)).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestRotateTokenChangesOnlyToken(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	record := s.createGoogleUser(t, "fed@example.com", "Fed User")

	next, err := s.repo.GoogleUsers().RotateToken(ctx, record.ID)
	require.NoError(t, err)
	assert.NotEqual(t, record.Token, next)

	stored, err := s.repo.GoogleUsers().GetByEmail(ctx, "fed@example.com")
	require.NoError(t, err)
	assert.Equal(t, next, stored.Token)
	assert.Equal(t, record.UUID, stored.UUID)
}
