// Package id generates the two identifier kinds used throughout the core:
// Snowflakes for events and InstanceUuids for instances.
package id

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// coreEpoch is the reference point for Snowflake timestamps, chosen so
	// the 41-bit millisecond field doesn't roll over for decades.
	coreEpochMillis int64 = 1700000000000

	timestampBits = 41
	nodeBits      = 8
	sequenceBits  = 14

	maxSequence = (1 << sequenceBits) - 1
	maxNode     = (1 << nodeBits) - 1
)

// Snowflake is a 63-bit time-ordered integer: sign bit unused, 41 bits of
// millisecond timestamp since coreEpochMillis, 8 bits of node id, 14 bits of
// per-millisecond sequence. It serializes as a decimal string so it survives
// JSON's float64 number precision loss.
type Snowflake int64

// String renders the Snowflake as a decimal string.
func (s Snowflake) String() string {
	return strconv.FormatInt(int64(s), 10)
}

// MarshalJSON encodes the Snowflake as a JSON string.
func (s Snowflake) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf("%q", s.String())), nil
}

// UnmarshalJSON decodes a Snowflake from a JSON string.
func (s *Snowflake) UnmarshalJSON(data []byte) error {
	str, err := strconv.Unquote(string(data))
	if err != nil {
		return err
	}
	v, err := strconv.ParseInt(str, 10, 64)
	if err != nil {
		return err
	}
	*s = Snowflake(v)
	return nil
}

// Generator is a process-wide monotone Snowflake allocator.
type Generator struct {
	mu       sync.Mutex
	node     int64
	lastMs   int64
	sequence int64
}

// NewGenerator builds a Generator scoped to the given node id (0-255). A
// single Core process only ever needs node 0; the field exists so a future
// multi-process deployment can shard ids without collision.
func NewGenerator(node int64) *Generator {
	if node < 0 {
		node = 0
	}
	if node > maxNode {
		node = node % (maxNode + 1)
	}
	return &Generator{node: node}
}

var defaultGenerator = NewGenerator(0)

// Next allocates the next Snowflake from the process-wide default generator.
func Next() Snowflake {
	return defaultGenerator.Next()
}

// Next allocates the next Snowflake, blocking briefly if the per-millisecond
// sequence space is exhausted.
func (g *Generator) Next() Snowflake {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now().UnixMilli() - coreEpochMillis
	if now == g.lastMs {
		g.sequence = (g.sequence + 1) & maxSequence
		if g.sequence == 0 {
			for now <= g.lastMs {
				now = time.Now().UnixMilli() - coreEpochMillis
			}
		}
	} else {
		g.sequence = 0
	}
	g.lastMs = now

	id := (now << (nodeBits + sequenceBits)) | (g.node << sequenceBits) | g.sequence
	return Snowflake(id)
}

// InstanceUuid is an opaque instance identifier: the literal prefix
// "INSTANCE_" followed by a random UUID.
type InstanceUuid string

const instancePrefix = "INSTANCE_"

// NewInstanceUUID generates a fresh InstanceUuid.
func NewInstanceUUID() InstanceUuid {
	return InstanceUuid(instancePrefix + uuid.New().String())
}

// String returns the underlying string value.
func (u InstanceUuid) String() string {
	return string(u)
}

// UserId is an opaque user identifier.
type UserId string

// NewUserID generates a fresh UserId.
func NewUserID() UserId {
	return UserId(uuid.New().String())
}

// MacroPid is an unsigned, process-wide monotone counter identifying a
// running or historical macro task.
type MacroPid uint64

// PidGenerator allocates monotone MacroPids.
type PidGenerator struct {
	next uint64
	mu   sync.Mutex
}

var defaultPidGenerator = &PidGenerator{}

// NextPid allocates the next MacroPid from the process-wide default generator.
func NextPid() MacroPid {
	return defaultPidGenerator.Next()
}

// Next allocates the next MacroPid.
func (p *PidGenerator) Next() MacroPid {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.next++
	return MacroPid(p.next)
}
