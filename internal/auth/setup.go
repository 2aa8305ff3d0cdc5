package auth

import (
	"sync"

	coreerrors "github.com/lodestone-core/lodestone/infrastructure/errors"
)

// SetupKeyLength is the length of the first-time-setup key printed once at
// startup when no owner exists yet.
const SetupKeyLength = 16

// Setup tracks the single in-memory first-time-setup key. It is never
// persisted; presenting it once consumes it.
type Setup struct {
	mu  sync.Mutex
	key string
}

// NewSetup generates a fresh setup key. Callers print Key() once to stdout.
func NewSetup() *Setup {
	return &Setup{key: randomAlphanumeric(SetupKeyLength)}
}

// Key returns the current setup key, or "" if already consumed.
func (s *Setup) Key() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.key
}

// Consume validates the presented key and discards it on success so it can
// never be reused.
func (s *Setup) Consume(presented string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.key == "" || presented != s.key {
		return coreerrors.UnauthorizedError("invalid or already-consumed setup key")
	}
	s.key = ""
	return nil
}
