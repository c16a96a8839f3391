package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// TransportKind names a wire transport for the push channel
type TransportKind string

const (
	TransportWebSocket TransportKind = "websocket"
	TransportPolling   TransportKind = "polling"
)

// Environment selects the default transport order
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvProduction  Environment = "production"
)

// Preference returns the transport order for env. Production starts on
// long-polling and upgrades once a websocket probe succeeds.
func Preference(env Environment) []TransportKind {
	if env == EnvProduction {
		return []TransportKind{TransportPolling, TransportWebSocket}
	}
	return []TransportKind{TransportWebSocket, TransportPolling}
}

// ParseTransports converts configured transport names
func ParseTransports(names []string) ([]TransportKind, error) {
	out := make([]TransportKind, 0, len(names))
	for _, n := range names {
		switch k := TransportKind(n); k {
		case TransportWebSocket, TransportPolling:
			out = append(out, k)
		default:
			return nil, fmt.Errorf("unknown transport %q", n)
		}
	}
	return out, nil
}

// ErrConnClosed is returned by a Conn after Close
var ErrConnClosed = errors.New("push: connection closed")

// Event is a named push event as it travels on the wire:
//
//	{"event": "newMessage", "data": {...}}
type Event struct {
	Name string          `json:"event"`
	Data json.RawMessage `json:"data,omitempty"`
}

// NewEvent builds an Event, marshalling data when it is not nil
func NewEvent(name string, data any) (Event, error) {
	ev := Event{Name: name}
	if data == nil {
		return ev, nil
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return Event{}, fmt.Errorf("encoding %s payload: %w", name, err)
	}
	ev.Data = raw
	return ev, nil
}

// Decode unmarshals the payload into v
func (e Event) Decode(v any) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("event %s has no payload", e.Name)
	}
	return json.Unmarshal(e.Data, v)
}

// Conn is one live transport connection
type Conn interface {
	Kind() TransportKind
	// Read blocks until at least one event arrives, the connection fails or ctx ends.
	// A polling round trip with nothing to deliver returns no events and no error.
	Read(ctx context.Context) ([]Event, error)
	Send(ctx context.Context, ev Event) error
	Close() error
}

// Dialer opens transport connections
type Dialer interface {
	Dial(ctx context.Context, kind TransportKind) (Conn, error)
}
