package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashPassword_RoundTrip(t *testing.T) {
	hash, err := HashPassword("hunter22")
	require.NoError(t, err)

	assert.True(t, VerifyPassword(hash, "hunter22"))
	assert.False(t, VerifyPassword(hash, "wrong"))
}

func TestVerifyPassword_MalformedHash(t *testing.T) {
	assert.False(t, VerifyPassword("not-a-hash", "anything"))
	assert.False(t, VerifyPassword("", "anything"))
}

func TestRandomAlphanumeric_LengthAndUniqueness(t *testing.T) {
	a := randomAlphanumeric(32)
	b := randomAlphanumeric(32)
	assert.Len(t, a, 32)
	assert.NotEqual(t, a, b)
}
