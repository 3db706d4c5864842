package capture

import (
	"sync/atomic"
	"time"

	"github.com/pion/mediadevices"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/rs/zerolog/log"

	"github.com/Erikcwill/sussuros-foundry/internal/core"
)

type trackState int32

const (
	trackStateOk trackState = iota
	trackStateMuted
	trackStateStopped
)

const opusFrameDuration = 20 * time.Millisecond

// micTrack pumps encoded samples from a mediadevices source into a local
// sample track. Muting drops samples at the pump instead of touching the
// peer connection, so enable/disable never renegotiates anything.
type micTrack struct {
	out    *webrtc.TrackLocalStaticSample
	src    mediadevices.Track
	reader mediadevices.EncodedReadCloser
	state  atomic.Int32
}

func newMicTrack(src mediadevices.Track, streamID string) (*micTrack, error) {
	out, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus},
		src.ID(),
		streamID,
	)
	if err != nil {
		return nil, err
	}
	reader, err := src.NewEncodedReader(webrtc.MimeTypeOpus)
	if err != nil {
		return nil, err
	}
	t := &micTrack{out: out, src: src, reader: reader}
	go t.pump()
	return t, nil
}

// pump forwards samples until the source ends or the track is stopped.
func (t *micTrack) pump() {
	for {
		buf, release, err := t.reader.Read()
		if err != nil {
			if trackState(t.state.Load()) != trackStateStopped {
				log.Error().Err(err).Str("module", "capture").Str("track", t.src.ID()).Msg("mic read error, stopping")
				t.Stop()
			}
			return
		}
		if trackState(t.state.Load()) == trackStateOk {
			data := make([]byte, len(buf.Data))
			copy(data, buf.Data)
			if err := t.out.WriteSample(media.Sample{Data: data, Duration: opusFrameDuration}); err != nil {
				log.Error().Err(err).Str("module", "capture").Str("track", t.src.ID()).Msg("write sample error")
			}
		}
		if release != nil {
			release()
		}
	}
}

func (t *micTrack) ID() string { return t.src.ID() }

func (t *micTrack) SetEnabled(enabled bool) {
	if trackState(t.state.Load()) == trackStateStopped {
		return
	}
	if enabled {
		t.state.Store(int32(trackStateOk))
	} else {
		t.state.Store(int32(trackStateMuted))
	}
}

func (t *micTrack) Enabled() bool {
	return trackState(t.state.Load()) == trackStateOk
}

func (t *micTrack) Stop() {
	if trackState(t.state.Swap(int32(trackStateStopped))) == trackStateStopped {
		return
	}
	if err := t.reader.Close(); err != nil {
		log.Error().Err(err).Str("module", "capture").Str("track", t.src.ID()).Msg("reader close")
	}
	if err := t.src.Close(); err != nil {
		log.Error().Err(err).Str("module", "capture").Str("track", t.src.ID()).Msg("source close")
	}
}

// Local exposes the attachable pion track for the rtc adapter.
func (t *micTrack) Local() webrtc.TrackLocal { return t.out }

type micStream struct {
	id     string
	tracks []core.MediaTrack
}

func (s *micStream) ID() string                     { return s.id }
func (s *micStream) AudioTracks() []core.MediaTrack { return s.tracks }
