package instance

import (
	"sync"

	"github.com/lodestone-core/lodestone/internal/event"
)

// Roster tracks the set of players currently on an instance, with equality
// by UUID when present, else by name, per §4.5's player roster rule.
type Roster struct {
	mu      sync.Mutex
	players []event.Player
}

// NewRoster builds an empty Roster.
func NewRoster() *Roster {
	return &Roster{}
}

// List returns a snapshot of the current roster.
func (r *Roster) List() []event.Player {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]event.Player, len(r.players))
	copy(out, r.players)
	return out
}

// Count returns the current roster size.
func (r *Roster) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.players)
}

// Join adds p to the roster if not already present and returns the change
// (joined=[p], left=nil) plus the new full list, for building a
// PlayerChange event. A duplicate join (already on roster) is a no-op and
// returns joined=nil.
func (r *Roster) Join(p event.Player) (list, joined, left []event.Player) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.players {
		if existing.Equal(p) {
			return r.snapshotLocked(), nil, nil
		}
	}
	r.players = append(r.players, p)
	return r.snapshotLocked(), []event.Player{p}, nil
}

// Leave removes p from the roster if present and returns the change
// (joined=nil, left=[p]) plus the new full list. A leave for a player not
// on the roster is a no-op and returns left=nil.
func (r *Roster) Leave(p event.Player) (list, joined, left []event.Player) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, existing := range r.players {
		if existing.Equal(p) {
			r.players = append(r.players[:i], r.players[i+1:]...)
			return r.snapshotLocked(), nil, []event.Player{existing}
		}
	}
	return r.snapshotLocked(), nil, nil
}

// Clear empties the roster, used when the instance stops.
func (r *Roster) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.players = nil
}

func (r *Roster) snapshotLocked() []event.Player {
	out := make([]event.Player, len(r.players))
	copy(out, r.players)
	return out
}
