package app

import (
	"context"

	"github.com/Erikcwill/sussuros-foundry/internal/core"
	"github.com/Erikcwill/sussuros-foundry/internal/domain"
)

// Role tells which side originates the handshake.
type Role int

const (
	RoleInitiator Role = iota
	RoleResponder
)

func (r Role) String() string {
	if r == RoleInitiator {
		return "initiator"
	}
	return "responder"
}

// ConnState is the session's position in the lifecycle.
// Closed is terminal; a closed session is removed from the table, never reused.
type ConnState int

const (
	StateNegotiating ConnState = iota
	StateConnected
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateNegotiating:
		return "negotiating"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// PeerSession is the single record holding everything owned per remote
// participant: transport, both streams, UI indicator and the enabled flag.
// Keeping them in one record rules out partial multi-map updates.
// All fields are guarded by the Manager's lock.
type PeerSession struct {
	ID    domain.ParticipantID
	Role  Role
	State ConnState

	transport core.Transport
	ctx       context.Context
	cancel    context.CancelFunc

	outbound        core.MediaStream
	outboundEnabled bool
	exclusiveHeld   bool

	inbound   core.MediaStream
	indicator core.PeerIndicator
}

// PeerDTO is a read-only view for the control API (no transport fields).
type PeerDTO struct {
	ID              domain.ParticipantID `json:"id"`
	Role            string               `json:"role"`
	State           string               `json:"state"`
	OutboundEnabled bool                 `json:"outbound_enabled"`
	HasInbound      bool                 `json:"has_inbound"`
}

func (s *PeerSession) dto() PeerDTO {
	return PeerDTO{
		ID:              s.ID,
		Role:            s.Role.String(),
		State:           s.State.String(),
		OutboundEnabled: s.outboundEnabled,
		HasInbound:      s.inbound != nil,
	}
}
