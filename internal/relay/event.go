package relay

// EventKind names a relay event. The values double as wire frame types.
type EventKind string

const (
	EventSession EventKind = "session"
	EventText    EventKind = "text"
	EventError   EventKind = "error"
	EventEnd     EventKind = "end"
)

// Event is one unit of the outbound stream for a turn.
type Event struct {
	Kind      EventKind
	Content   string
	SessionID string
}

// Sink receives events in order. A returned error marks the client as gone;
// the turn keeps running but stops forwarding.
type Sink func(Event) error
