package id

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerator_Monotone(t *testing.T) {
	g := NewGenerator(0)
	prev := g.Next()
	for i := 0; i < 1000; i++ {
		next := g.Next()
		assert.Greater(t, int64(next), int64(prev))
		prev = next
	}
}

func TestSnowflake_JSONRoundTrip(t *testing.T) {
	sf := Next()

	data, err := json.Marshal(sf)
	require.NoError(t, err)
	assert.Equal(t, `"`+sf.String()+`"`, string(data))

	var decoded Snowflake
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, sf, decoded)
}

func TestNewInstanceUUID(t *testing.T) {
	u := NewInstanceUUID()
	assert.True(t, strings.HasPrefix(u.String(), "INSTANCE_"))

	other := NewInstanceUUID()
	assert.NotEqual(t, u, other)
}

func TestPidGenerator_Monotone(t *testing.T) {
	g := &PidGenerator{}
	first := g.Next()
	second := g.Next()
	assert.Equal(t, first+1, second)
}
