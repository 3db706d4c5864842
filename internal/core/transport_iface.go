package core

import (
	"context"
	"encoding/json"
)

// EventKind is the closed set of events a peer transport can raise.
type EventKind int

const (
	EventSignal EventKind = iota
	EventConnect
	EventStream
	EventData
	EventClose
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventSignal:
		return "signal"
	case EventConnect:
		return "connect"
	case EventStream:
		return "stream"
	case EventData:
		return "data"
	case EventClose:
		return "close"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// TransportEvent is a tagged variant; exactly the field matching Kind is set.
type TransportEvent struct {
	Kind    EventKind
	Payload json.RawMessage // EventSignal: negotiation blob for the remote side
	Stream  MediaStream     // EventStream: inbound remote media
	Data    []byte          // EventData
	Err     error           // EventError
}

// Transport is one point-to-point connection attempt or established session.
// Exclusively owned by its peer session; created on session start, closed
// exactly once. Events for a single transport are delivered in order.
type Transport interface {
	// Start configures internal callbacks and binds the connection lifetime to ctx.
	// The initiator begins producing EventSignal immediately.
	Start(ctx context.Context) error
	// Signal feeds one inbound negotiation payload from the remote side.
	Signal(payload json.RawMessage) error
	// AttachStream adds the local outbound media without renegotiating from scratch.
	AttachStream(s MediaStream) error
	// Send transmits application data once connected.
	Send(data []byte) error
	// Close stops all underlying resources. Idempotent.
	Close()
}

// TransportFactory builds a transport for one peer session. The initiator
// originates the handshake; events are delivered through onEvent.
type TransportFactory func(peer string, initiator bool, onEvent func(TransportEvent)) (Transport, error)
