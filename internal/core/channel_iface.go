package core

import "github.com/Erikcwill/sussuros-foundry/internal/domain"

// AlwaysOnChannel is the shared broadcast subsystem that continuously sends
// audio to all listeners. Its internal mixing and device handling are out of
// scope; only the flags below are read or written, and only the broadcast
// coordinator writes them on this system's behalf.
type AlwaysOnChannel interface {
	// AlwaysOn reports whether the channel is in always-broadcast mode.
	AlwaysOn() bool
	Muted(id domain.ParticipantID) bool
	SetMuted(id domain.ParticipantID, muted bool)
	// Broadcasting reports the broadcast flag; ok is false when the channel
	// does not expose it directly and callers must derive from the mute flag.
	Broadcasting() (value, ok bool)
	SetBroadcasting(on bool)
}

// Directory is the read-only view of the host session's participant roster.
type Directory interface {
	IsActive(id domain.ParticipantID) bool
	IsLocal(id domain.ParticipantID) bool
	Active() []domain.Participant
}
