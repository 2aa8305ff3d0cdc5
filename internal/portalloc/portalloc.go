// Package portalloc assigns free TCP ports with awareness of ports already
// claimed by existing instances, per §4.3.
package portalloc

import (
	"net"
	"strconv"
	"sync"
)

// Allocator holds the set of claimed ports.
type Allocator struct {
	mu      sync.Mutex
	claimed map[int]struct{}
}

// New builds an empty Allocator.
func New() *Allocator {
	return &Allocator{claimed: make(map[int]struct{})}
}

// Allocate returns start if it is both unclaimed and OS-free; otherwise it
// increments until it finds a port satisfying both, claims it, and returns
// it. A race with an external binder between the OS-freeness probe and the
// caller's subsequent listen is possible and acceptable — the caller's
// listen fails and it retries.
func (a *Allocator) Allocate(start int) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	port := start
	for {
		if _, claimed := a.claimed[port]; !claimed && osPortFree(port) {
			a.claimed[port] = struct{}{}
			return port
		}
		port++
	}
}

// Deallocate removes port from the claimed set.
func (a *Allocator) Deallocate(port int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.claimed, port)
}

// Status is the result of PortStatus.
type Status struct {
	InUse     bool `json:"in_use"`
	Allocated bool `json:"allocated"`
}

// PortStatus reports whether port is claimed by this allocator and whether
// it is currently OS-free.
func (a *Allocator) PortStatus(port int) Status {
	a.mu.Lock()
	_, allocated := a.claimed[port]
	a.mu.Unlock()

	return Status{
		InUse:     !osPortFree(port),
		Allocated: allocated,
	}
}

// osPortFree probes whether the local TCP port can currently be bound.
func osPortFree(port int) bool {
	ln, err := net.Listen("tcp", localAddr(port))
	if err != nil {
		return false
	}
	_ = ln.Close()
	return true
}

func localAddr(port int) string {
	return net.JoinHostPort("0.0.0.0", strconv.Itoa(port))
}
