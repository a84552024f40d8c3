package util

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestHashPassword(t *testing.T) {
	password := "MyPassword123"

	hashed, err := HashPassword(password, bcrypt.MinCost)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hashed, "$2a$"), "bcrypt format")

	// same password, different salt
	hashed2, err := HashPassword(password, bcrypt.MinCost)
	require.NoError(t, err)
	assert.NotEqual(t, hashed, hashed2)

	_, err = HashPassword("", bcrypt.MinCost)
	assert.Error(t, err)

	_, err = HashPassword(strings.Repeat("a", 73), bcrypt.MinCost)
	assert.ErrorIs(t, err, ErrPasswordTooLong)
}

func TestHashPasswordCostFallback(t *testing.T) {
	hashed, err := HashPassword("password1", 99)
	require.NoError(t, err)
	cost, err := bcrypt.Cost([]byte(hashed))
	require.NoError(t, err)
	assert.Equal(t, bcrypt.DefaultCost, cost)
}

func TestCheckPassword(t *testing.T) {
	hashed, err := HashPassword("password1", bcrypt.MinCost)
	require.NoError(t, err)

	assert.True(t, CheckPassword("password1", hashed))
	assert.False(t, CheckPassword("password2", hashed))
	assert.False(t, CheckPassword("", hashed))
	assert.False(t, CheckPassword("password1", ""))
	assert.False(t, CheckPassword("password1", "not-a-hash"))
}
