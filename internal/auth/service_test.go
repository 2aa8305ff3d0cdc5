package auth

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "users.json"))
	require.NoError(t, err)
	return NewService(store)
}

func TestService_FirstTimeSetup(t *testing.T) {
	svc := newTestService(t)
	require.NotNil(t, svc.Setup)
	key := svc.Setup.Key()

	owner, err := svc.FirstTimeSetup(key, "root", "hunter22")
	require.NoError(t, err)
	assert.True(t, owner.IsOwner)
	assert.Nil(t, svc.Setup)

	// Re-presenting the same key must fail: consumed, and no owner-less
	// state remains to set up again.
	_, err = svc.FirstTimeSetup(key, "root2", "whatever")
	assert.Error(t, err)
}

func TestService_LoginAndAuthenticate(t *testing.T) {
	svc := newTestService(t)
	key := svc.Setup.Key()
	_, err := svc.FirstTimeSetup(key, "root", "hunter22")
	require.NoError(t, err)

	u, token, err := svc.Login("root", "hunter22")
	require.NoError(t, err)
	assert.True(t, u.IsOwner)

	authed, err := svc.Authenticate(token)
	require.NoError(t, err)
	assert.Equal(t, u.UID, authed.UID)
}

func TestService_LoginWrongPassword(t *testing.T) {
	svc := newTestService(t)
	key := svc.Setup.Key()
	_, err := svc.FirstTimeSetup(key, "root", "hunter22")
	require.NoError(t, err)

	_, _, err = svc.Login("root", "wrong")
	assert.Error(t, err)
}

func TestService_ChangePasswordRotatesSecret(t *testing.T) {
	svc := newTestService(t)
	key := svc.Setup.Key()
	owner, err := svc.FirstTimeSetup(key, "root", "hunter22")
	require.NoError(t, err)

	_, token, err := svc.Login("root", "hunter22")
	require.NoError(t, err)

	require.NoError(t, svc.ChangePassword(owner.UID, "hunter22", "newpass123"))

	_, err = svc.Authenticate(token)
	assert.Error(t, err, "old token must be invalidated by the secret rotation")

	_, _, err = svc.Login("root", "newpass123")
	assert.NoError(t, err)
}

func TestService_ChangePasswordAdministrativeReset(t *testing.T) {
	svc := newTestService(t)
	key := svc.Setup.Key()
	owner, err := svc.FirstTimeSetup(key, "root", "hunter22")
	require.NoError(t, err)

	// Empty oldPassword: administrative reset. The endpoint is responsible
	// for gating this on ManageUser before calling in.
	require.NoError(t, svc.ChangePassword(owner.UID, "", "resetpass"))

	_, _, err = svc.Login("root", "resetpass")
	assert.NoError(t, err)
}
