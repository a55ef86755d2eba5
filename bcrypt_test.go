package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashPassword(t *testing.T) {
	hash, err := HashPassword("Sup3r$ecret")
	require.NoError(t, err)
	assert.NotEmpty(t, hash)
	assert.NotEqual(t, "Sup3r$ecret", hash)

	assert.NoError(t, ComparePasswordAndHash("Sup3r$ecret", hash))
}

func TestHashPasswordEmpty(t *testing.T) {
	_, err := HashPassword("")
	assert.ErrorIs(t, err, ErrNoEmptyString)
}

func TestComparePasswordAndHashMismatch(t *testing.T) {
	hash, err := HashPassword("Sup3r$ecret")
	require.NoError(t, err)

	err = ComparePasswordAndHash("wrong-password", hash)
	assert.ErrorIs(t, err, ErrMismatchedHashAndPassword)
}

func TestCompareDecoyAlwaysFails(t *testing.T) {
	assert.ErrorIs(t, CompareDecoy("anything"), ErrMismatchedHashAndPassword)
	assert.ErrorIs(t, CompareDecoy(""), ErrMismatchedHashAndPassword)
}

func TestRandomPasswordHash(t *testing.T) {
	h1 := RandomPasswordHash()
	h2 := RandomPasswordHash()
	assert.NotEmpty(t, h1)
	assert.NotEqual(t, h1, h2)
}
