package auth

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	coreerrors "github.com/lodestone-core/lodestone/infrastructure/errors"
)

// Store is the in-memory user table backed by users.json. Every mutation
// writes the whole file atomically and rolls the in-memory change back on
// write failure, per §4.2's persistence policy.
type Store struct {
	mu    sync.RWMutex
	path  string
	users map[string]User // keyed by uid
}

// NewStore loads users.json at path if it exists, or starts empty.
func NewStore(path string) (*Store, error) {
	s := &Store{path: path, users: make(map[string]User)}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read users store: %w", err)
	}

	var users []User
	if err := json.Unmarshal(data, &users); err != nil {
		return nil, fmt.Errorf("parse users store: %w", err)
	}
	for _, u := range users {
		s.users[u.UID] = u
	}
	return s, nil
}

// Get returns a copy of the user with the given uid.
func (s *Store) Get(uid string) (User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[uid]
	return u, ok
}

// GetByUsername returns a copy of the user with the given username.
func (s *Store) GetByUsername(username string) (User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Username == username {
			return u, true
		}
	}
	return User{}, false
}

// Secret implements SecretLookup against this store.
func (s *Store) Secret(uid string) (string, bool) {
	u, ok := s.Get(uid)
	if !ok {
		return "", false
	}
	return u.Secret, true
}

// HasOwner reports whether an owner account already exists.
func (s *Store) HasOwner() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.IsOwner {
			return true
		}
	}
	return false
}

// All returns a copy of every user.
func (s *Store) All() []User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	return out
}

// Put inserts or replaces a user and persists the whole table. On write
// failure the in-memory change is rolled back and Internal is returned.
func (s *Store) Put(u User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	previous, existed := s.users[u.UID]
	s.users[u.UID] = u

	if err := s.flushLocked(); err != nil {
		if existed {
			s.users[u.UID] = previous
		} else {
			delete(s.users, u.UID)
		}
		return coreerrors.InternalError("failed to persist users store", err)
	}
	return nil
}

// Delete removes a user and persists the whole table. On write failure the
// in-memory change is rolled back and Internal is returned.
func (s *Store) Delete(uid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	previous, existed := s.users[uid]
	if !existed {
		return coreerrors.NotFoundError("user", uid)
	}
	delete(s.users, uid)

	if err := s.flushLocked(); err != nil {
		s.users[uid] = previous
		return coreerrors.InternalError("failed to persist users store", err)
	}
	return nil
}

func (s *Store) flushLocked() error {
	list := make([]User, 0, len(s.users))
	for _, u := range s.users {
		list = append(list, u)
	}
	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal users store: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".users-*.json.tmp")
	if err != nil {
		return fmt.Errorf("create temp users store: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp users store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp users store: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("commit users store: %w", err)
	}
	return nil
}
