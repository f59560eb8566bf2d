// Package event carries the typed sync lifecycle notifications consumed by
// UI collaborators: Loading before a fetch, Loaded after the refresh settles
// (success or failure), and Updated when new records were inserted. The bus
// replaces ambient global pub-sub with an injected, inspectable channel set.
package event

import "sync"

// Kind is the lifecycle signal type.
type Kind int

const (
	// Loading fires before the remote fetch begins.
	Loading Kind = iota

	// Loaded fires once the refresh settles, on every exit path, so loading
	// indicators always clear.
	Loaded

	// Updated fires after Loaded when the import inserted new records.
	Updated
)

// String returns the signal name.
func (k Kind) String() string {
	switch k {
	case Loading:
		return "loading"
	case Loaded:
		return "loaded"
	case Updated:
		return "updated"
	default:
		return "unknown"
	}
}

// Event is one lifecycle notification for one entity type.
type Event struct {
	Kind      Kind
	EntityKey string

	// Inserted is the number of newly inserted records. Set on Updated only.
	Inserted int
}

// Bus fans lifecycle events out to subscribers. Publishing is fire-and-forget:
// a subscriber whose buffer is full misses the event rather than blocking a
// refresh.
type Bus struct {
	mu   sync.Mutex
	subs []chan Event
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers a new subscriber and returns its channel. The channel
// is buffered; drain it promptly to avoid dropped events.
func (b *Bus) Subscribe() <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, 64)
	b.subs = append(b.subs, ch)
	return ch
}

// Publish delivers the event to every subscriber without blocking.
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default: // subscriber is behind, drop rather than stall the sync
		}
	}
}
