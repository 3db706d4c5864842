// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"

	"github.com/google/uuid"
)

const (
	MaxParticipantIDLen = 36
	MaxNameLen          = 36
)

var (
	ErrParticipantIDEmpty   = errors.New("participant id empty")
	ErrParticipantIDTooLong = errors.New("participant id too long")
	ErrNameTooLong          = errors.New("name too long")
)

// ParticipantID is the opaque identifier of a session member.
type ParticipantID string

type Participant struct {
	ID     ParticipantID `json:"id"`
	Name   string        `json:"name"`
	Active bool          `json:"active"`
}

// NewParticipant is a tiny helper to avoid ad-hoc struct literals in adapters.
func NewParticipant(id ParticipantID, name string) (*Participant, error) {
	if len(id) == 0 {
		return nil, ErrParticipantIDEmpty
	}
	if len(id) > MaxParticipantIDLen {
		return nil, ErrParticipantIDTooLong
	}
	if len(name) > MaxNameLen {
		return nil, ErrNameTooLong
	}
	return &Participant{ID: id, Name: name, Active: true}, nil
}

// LocalID returns a stable identity for this process, generating one when the
// configuration does not pin it.
func LocalID(configured string) ParticipantID {
	if configured != "" {
		return ParticipantID(configured)
	}
	return ParticipantID(uuid.NewString())
}
