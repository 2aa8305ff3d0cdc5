package event

import (
	"sync"

	"github.com/lodestone-core/lodestone/infrastructure/metrics"
)

// backlogSize is the bounded per-receiver channel depth. A receiver that
// cannot keep up is never torn down; it is told it Lagged and resumes from
// the current head.
const backlogSize = 512

// Bus is the single multi-producer multi-consumer broadcast channel. Send
// never blocks and never fails, matching every producer's expectation that
// emitting an event has no failure mode worth handling.
type Bus struct {
	mu   sync.RWMutex
	subs map[*Receiver]struct{}
	next uint64
}

// NewBus builds an empty Bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[*Receiver]struct{})}
}

// Receiver is a bounded-backlog subscription handle. Recv blocks until an
// item, a Lagged signal, or Closed arrives.
type Receiver struct {
	id     uint64
	bus    *Bus
	ch     chan item
	closed chan struct{}
	once   sync.Once
}

type itemKind int

const (
	itemEvent itemKind = iota
	itemLagged
	itemClosed
)

type item struct {
	kind   itemKind
	event  Event
	lagged uint64
}

// Subscribe registers a new Receiver on the bus.
func (b *Bus) Subscribe() *Receiver {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.next++
	r := &Receiver{
		id:     b.next,
		bus:    b,
		ch:     make(chan item, backlogSize),
		closed: make(chan struct{}),
	}
	b.subs[r] = struct{}{}
	return r
}

// Unsubscribe removes the receiver from the bus and signals Closed to any
// blocked reader.
func (r *Receiver) Unsubscribe() {
	r.once.Do(func() {
		r.bus.mu.Lock()
		delete(r.bus.subs, r)
		r.bus.mu.Unlock()
		close(r.closed)
	})
}

// Recv blocks until an event arrives, the receiver has lagged, or the
// receiver was unsubscribed (ok=false).
func (r *Receiver) Recv() (ev Event, lagged bool, ok bool) {
	select {
	case it := <-r.ch:
		switch it.kind {
		case itemEvent:
			return it.event, false, true
		case itemLagged:
			return Event{}, true, true
		default:
			return Event{}, false, false
		}
	case <-r.closed:
		return Event{}, false, false
	}
}

// Send broadcasts an event to every current subscriber. It never blocks: a
// subscriber whose backlog is full is marked Lagged instead of receiving the
// event, and resumes from the next send.
func (b *Bus) Send(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if m := metrics.Global(); m != nil {
		m.RecordEventBroadcast(string(ev.Kind))
	}

	for r := range b.subs {
		select {
		case r.ch <- item{kind: itemEvent, event: ev}:
		default:
			// Backlog full: discard the buffered backlog and queue a
			// Lagged marker, so the receiver's next read reports it and
			// it resumes from the current head.
			for drained := false; !drained; {
				select {
				case <-r.ch:
				default:
					drained = true
				}
			}
			select {
			case r.ch <- item{kind: itemLagged}:
			default:
			}
			if m := metrics.Global(); m != nil {
				m.RecordEventBusLagged()
			}
		}
	}
}

// SubscriberCount reports the number of currently active receivers.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close unsubscribes every current receiver, unblocking any goroutine
// parked in Recv so shutdown can join them. Safe to call once; the bus
// itself remains usable for new Subscribe calls afterward, but nothing is
// listening until a new receiver is created.
func (b *Bus) Close() {
	b.mu.Lock()
	subs := make([]*Receiver, 0, len(b.subs))
	for r := range b.subs {
		subs = append(subs, r)
	}
	b.mu.Unlock()

	for _, r := range subs {
		r.Unsubscribe()
	}
}
