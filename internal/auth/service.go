package auth

import (
	coreerrors "github.com/lodestone-core/lodestone/infrastructure/errors"
)

// Service is the auth core's entry point: the users store, the first-time
// setup key, and the operations the HTTP surface delegates into.
type Service struct {
	Store *Store
	Setup *Setup
}

// NewService wires a Service around an already-loaded Store. Setup is
// non-nil only until an owner exists.
func NewService(store *Store) *Service {
	svc := &Service{Store: store}
	if !store.HasOwner() {
		svc.Setup = NewSetup()
	}
	return svc
}

// Login authenticates by username/password and issues a bearer token.
// Verification failure is indistinguishable from unknown user.
func (s *Service) Login(username, password string) (User, string, error) {
	u, ok := s.Store.GetByUsername(username)
	if !ok || !VerifyPassword(u.HashedPassword, password) {
		return User{}, "", coreerrors.UnauthorizedError("invalid credentials")
	}
	token, err := IssueToken(u)
	if err != nil {
		return User{}, "", coreerrors.InternalError("failed to issue token", err)
	}
	return u, token, nil
}

// Authenticate validates a bearer token and returns the caller's current
// User record.
func (s *Service) Authenticate(token string) (User, error) {
	uid, err := ValidateToken(token, s.Store.Secret)
	if err != nil {
		return User{}, err
	}
	u, ok := s.Store.Get(uid)
	if !ok {
		return User{}, coreerrors.UnauthorizedError("invalid token")
	}
	return u, nil
}

// FirstTimeSetup creates the owner account using the setup key, then
// discards both the key and the Setup state.
func (s *Service) FirstTimeSetup(key, username, password string) (User, error) {
	if s.Setup == nil {
		return User{}, coreerrors.UnsupportedOperationError("an owner already exists")
	}
	if err := s.Setup.Consume(key); err != nil {
		return User{}, err
	}

	hash, err := HashPassword(password)
	if err != nil {
		return User{}, coreerrors.InternalError("failed to hash password", err)
	}

	owner := NewUser(username)
	owner.HashedPassword = hash
	owner.IsOwner = true

	if err := s.Store.Put(owner); err != nil {
		return User{}, err
	}
	s.Setup = nil
	return owner, nil
}

// ChangePassword updates password, requiring the caller's current password
// unless oldPassword is empty — an empty oldPassword is an administrative
// reset, which the endpoint (not this function) must gate on ManageUser.
// Either way the user's Secret is rotated, forcing a global logout.
func (s *Service) ChangePassword(uid, oldPassword, newPassword string) error {
	u, ok := s.Store.Get(uid)
	if !ok {
		return coreerrors.NotFoundError("user", uid)
	}
	if oldPassword != "" && !VerifyPassword(u.HashedPassword, oldPassword) {
		return coreerrors.UnauthorizedError("invalid credentials")
	}

	hash, err := HashPassword(newPassword)
	if err != nil {
		return coreerrors.InternalError("failed to hash password", err)
	}
	u.HashedPassword = hash
	u.Secret = randomAlphanumeric(32)
	return s.Store.Put(u)
}

// RotateSecret invalidates every token previously issued to uid.
func (s *Service) RotateSecret(uid string) error {
	u, ok := s.Store.Get(uid)
	if !ok {
		return coreerrors.NotFoundError("user", uid)
	}
	u.Secret = randomAlphanumeric(32)
	return s.Store.Put(u)
}

// CanViewEvent implements the §7 event visibility filter.
func CanViewEvent(u User, kind EventKindForVisibility, instanceUUID string) bool {
	switch kind {
	case EventVisibilityInstance:
		return CanPerformAction(u, ActionViewInstance, instanceUUID)
	case EventVisibilityUserOrFS:
		return CanPerformAction(u, ActionManageUser, "")
	case EventVisibilityMacro:
		return CanPerformAction(u, ActionAccessMacro, instanceUUID)
	case EventVisibilityProgression:
		return true
	default:
		return false
	}
}

// EventKindForVisibility mirrors event.InnerKind without importing the event
// package, so auth carries no dependency on event; the HTTP layer maps each
// event's kind onto this type.
type EventKindForVisibility string

const (
	EventVisibilityInstance    EventKindForVisibility = "INSTANCE"
	EventVisibilityUserOrFS    EventKindForVisibility = "USER_OR_FS"
	EventVisibilityMacro       EventKindForVisibility = "MACRO"
	EventVisibilityProgression EventKindForVisibility = "PROGRESSION"
)
