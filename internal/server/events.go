package server

// Event is a lifecycle notification delivered to listeners
type Event string

const (
	EventConfigured Event = "configured"
	EventStarted    Event = "started"
	EventStopped    Event = "stopped"
)

// Listener receives lifecycle notifications. Implementations must be
// comparable (typically pointers) so they can be removed again.
type Listener interface {
	StateChanged(e Event)
}
