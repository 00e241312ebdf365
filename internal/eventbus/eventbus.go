// Package eventbus is the single-producer-per-source, single-consumer
// funnel from platform hooks (clipboard, power, media sessions, hotkeys,
// tray clicks) into the device manager.
package eventbus

// Kind discriminates the small, closed set of system events a platform
// hook can raise.
type Kind int

const (
	ClipboardUpdated Kind = iota
	PowerStatusUpdated
	MediaSessionsChanged
	HotkeyPressed
	TrayMenuClicked
)

func (k Kind) String() string {
	switch k {
	case ClipboardUpdated:
		return "ClipboardUpdated"
	case PowerStatusUpdated:
		return "PowerStatusUpdated"
	case MediaSessionsChanged:
		return "MediaSessionsChanged"
	case HotkeyPressed:
		return "HotkeyPressed"
	case TrayMenuClicked:
		return "TrayMenuClicked"
	default:
		return "Unknown"
	}
}

// Event is a cheap-to-copy value type; plugins may each receive a copy
// independently via Repository.HandleEvent.
type Event struct {
	Kind Kind
	// MenuID identifies which tray menu item was clicked, valid only
	// when Kind == TrayMenuClicked.
	MenuID string
}

// Capacity is the bounded channel size between platform hooks and the
// single consumer that forwards into the device manager.
const Capacity = 10

// Bus is a bounded channel of events with a single consumer.
type Bus struct {
	ch chan Event
}

// New creates an event bus with the standard bounded capacity.
func New() *Bus {
	return &Bus{ch: make(chan Event, Capacity)}
}

// Send enqueues an event, blocking if the bus is full. Platform hooks
// call this from their own goroutine; each source is a single producer.
func (b *Bus) Send(e Event) {
	b.ch <- e
}

// TrySend enqueues an event without blocking, dropping it if the bus is
// full. Useful for hooks invoked from a context that must not block
// (e.g. an OS callback).
func (b *Bus) TrySend(e Event) bool {
	select {
	case b.ch <- e:
		return true
	default:
		return false
	}
}

// Events returns the receive-only channel for the single consumer.
func (b *Bus) Events() <-chan Event {
	return b.ch
}

// Close signals no more events will be sent.
func (b *Bus) Close() {
	close(b.ch)
}
