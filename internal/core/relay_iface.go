package core

import (
	"encoding/json"

	"github.com/Erikcwill/sussuros-foundry/internal/domain"
)

// MessageKind discriminates the three message types exchanged over the relay.
type MessageKind string

const (
	KindSignal         MessageKind = "signal"
	KindClose          MessageKind = "close"
	KindBroadcastState MessageKind = "broadcast-state"
)

// Envelope is one relay message. The relay is a shared namespace: every
// client receives every envelope and must discard those whose Recipient is
// not the local identity. Filtering is the session manager's job, not the
// relay adapter's.
type Envelope struct {
	Kind      MessageKind          `json:"kind"`
	Recipient domain.ParticipantID `json:"recipient"`
	Origin    domain.ParticipantID `json:"origin"`
	Payload   json.RawMessage      `json:"payload,omitempty"`
}

// BroadcastState is the payload of a KindBroadcastState envelope.
type BroadcastState struct {
	Broadcasting bool `json:"broadcasting"`
}

// Relay abstracts the out-of-band publish/subscribe channel.
// Delivery is ordered per sender; there is no guarantee across senders
// and none across reconnects. Owned by the adapter; the adapter must Close() it.
type Relay interface {
	SendTo(to domain.ParticipantID, kind MessageKind, payload json.RawMessage) error
	// OnMessage registers the single process-wide inbound handler. The handler
	// is invoked for every envelope on the shared channel, including those
	// addressed to other recipients.
	OnMessage(func(Envelope))
	Close()
}
