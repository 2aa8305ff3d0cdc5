package instance

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lodestone-core/lodestone/internal/event"
)

func TestRoster_JoinThenLeave(t *testing.T) {
	r := NewRoster()

	list, joined, left := r.Join(event.Player{Name: "Alice"})
	assert.Equal(t, []event.Player{{Name: "Alice"}}, list)
	assert.Equal(t, []event.Player{{Name: "Alice"}}, joined)
	assert.Empty(t, left)

	list, joined, left = r.Leave(event.Player{Name: "Alice"})
	assert.Empty(t, list)
	assert.Empty(t, joined)
	assert.Equal(t, []event.Player{{Name: "Alice"}}, left)
}

func TestRoster_DuplicateJoinIsNoOp(t *testing.T) {
	r := NewRoster()
	r.Join(event.Player{Name: "Alice"})
	_, joined, _ := r.Join(event.Player{Name: "Alice"})
	assert.Empty(t, joined)
	assert.Equal(t, 1, r.Count())
}

func TestRoster_LeaveUnknownIsNoOp(t *testing.T) {
	r := NewRoster()
	_, _, left := r.Leave(event.Player{Name: "Ghost"})
	assert.Empty(t, left)
}

func TestRoster_EqualityByUUIDWhenPresent(t *testing.T) {
	r := NewRoster()
	uuid := "abc-123"
	r.Join(event.Player{Name: "Alice", UUID: &uuid})

	otherUUID := "abc-123"
	_, joined, _ := r.Join(event.Player{Name: "DifferentName", UUID: &otherUUID})
	assert.Empty(t, joined, "same uuid should be treated as already on roster")
}

func TestRoster_Clear(t *testing.T) {
	r := NewRoster()
	r.Join(event.Player{Name: "Alice"})
	r.Join(event.Player{Name: "Bob"})
	r.Clear()
	assert.Equal(t, 0, r.Count())
}
