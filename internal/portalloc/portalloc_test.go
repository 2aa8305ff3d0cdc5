package portalloc

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocate_ReturnsStartWhenFree(t *testing.T) {
	a := New()
	// Reserve a genuinely free port first to know a good starting point.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	got := a.Allocate(port)
	assert.Equal(t, port, got)
}

func TestAllocate_SkipsAlreadyClaimed(t *testing.T) {
	a := New()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	first := a.Allocate(port)
	second := a.Allocate(port)
	assert.Equal(t, first, port)
	assert.Greater(t, second, port)
}

func TestDeallocate_FreesForReuse(t *testing.T) {
	a := New()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	a.Allocate(port)
	a.Deallocate(port)

	status := a.PortStatus(port)
	assert.False(t, status.Allocated)
}

func TestPortStatus_InUseWhenOSBound(t *testing.T) {
	a := New()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	port := ln.Addr().(*net.TCPAddr).Port

	status := a.PortStatus(port)
	assert.True(t, status.InUse)
	assert.False(t, status.Allocated)
}
