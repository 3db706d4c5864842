package core

import "context"

// MediaTrack is one audio track of a stream.
type MediaTrack interface {
	ID() string
	// SetEnabled flips the track's active flag without tearing down or
	// renegotiating anything. A disabled track transmits silence.
	SetEnabled(enabled bool)
	Enabled() bool
	// Stop releases the track's underlying resources. Idempotent.
	Stop()
}

// MediaStream groups the audio tracks of one capture or one remote peer.
type MediaStream interface {
	ID() string
	AudioTracks() []MediaTrack
}

// CaptureDevice opens the local audio input. Acquisition is asynchronous from
// the caller's point of view and may require user permission; it fails when no
// input device is configured or access is denied.
type CaptureDevice interface {
	Capture(ctx context.Context) (MediaStream, error)
}

// Sink is a playback destination for one participant's inbound media.
// Owned by the UI layer; the core only attaches and detaches.
type Sink interface {
	Attach(MediaStream)
	Detach()
}
