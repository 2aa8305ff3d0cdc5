package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetup_ConsumeOnce(t *testing.T) {
	s := NewSetup()
	key := s.Key()
	require.NotEmpty(t, key)
	require.Len(t, key, SetupKeyLength)

	require.NoError(t, s.Consume(key))
	assert.Empty(t, s.Key())

	err := s.Consume(key)
	assert.Error(t, err)
}

func TestSetup_WrongKeyRejected(t *testing.T) {
	s := NewSetup()
	err := s.Consume("wrong-key-entirely")
	assert.Error(t, err)
	assert.NotEmpty(t, s.Key(), "a failed attempt must not consume the key")
}
