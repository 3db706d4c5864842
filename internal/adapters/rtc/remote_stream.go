package rtc

import (
	"sync/atomic"

	"github.com/pion/webrtc/v4"

	"github.com/Erikcwill/sussuros-foundry/internal/core"
)

// remoteStream wraps one inbound pion track as a core.MediaStream so the
// session manager can hold and release it without importing pion.
type remoteStream struct {
	id     string
	tracks []core.MediaTrack
}

func newRemoteStream(track *webrtc.TrackRemote) core.MediaStream {
	return &remoteStream{
		id:     track.StreamID(),
		tracks: []core.MediaTrack{&remoteTrack{src: track}},
	}
}

func (s *remoteStream) ID() string                     { return s.id }
func (s *remoteStream) AudioTracks() []core.MediaTrack { return s.tracks }

// remoteTrack is receive-only; the enabled flag is bookkeeping for sinks,
// stopping is handled by the owning peer connection.
type remoteTrack struct {
	src     *webrtc.TrackRemote
	muted   atomic.Bool
	stopped atomic.Bool
}

func (t *remoteTrack) ID() string { return t.src.ID() }

func (t *remoteTrack) SetEnabled(enabled bool) { t.muted.Store(!enabled) }

func (t *remoteTrack) Enabled() bool { return !t.muted.Load() && !t.stopped.Load() }

func (t *remoteTrack) Stop() { t.stopped.Store(true) }

// Remote exposes the underlying pion track for playback sinks that read RTP.
func (t *remoteTrack) Remote() *webrtc.TrackRemote { return t.src }
