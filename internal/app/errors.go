package app

import "errors"

var (
	// ErrNotConnected — the operation requires a connected session.
	ErrNotConnected = errors.New("session not connected")
	// ErrCaptureReleased — the capture resolved after its owner released it;
	// the stream was stopped and must not be attached.
	ErrCaptureReleased = errors.New("capture released before resolving")
	// ErrUnknownParticipant — no session exists for the given id.
	ErrUnknownParticipant = errors.New("unknown participant")
)
