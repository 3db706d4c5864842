//go:build linux && cgo

package capture

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/codec/opus"
	_ "github.com/pion/mediadevices/pkg/driver/microphone"
	"github.com/rs/zerolog/log"

	"github.com/Erikcwill/sussuros-foundry/internal/core"
)

// Microphone opens the local audio input through pion/mediadevices
// (malgo on Linux) and encodes it as Opus.
type Microphone struct {
	selector *mediadevices.CodecSelector
}

func NewMicrophone() (*Microphone, error) {
	opusParams, err := opus.NewParams()
	if err != nil {
		return nil, err
	}
	selector := mediadevices.NewCodecSelector(
		mediadevices.WithAudioEncoders(&opusParams),
	)
	return &Microphone{selector: selector}, nil
}

func (m *Microphone) Capture(ctx context.Context) (core.MediaStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stream, err := mediadevices.GetUserMedia(mediadevices.MediaStreamConstraints{
		Audio: func(_ *mediadevices.MediaTrackConstraints) {},
		Codec: m.selector,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrDeviceUnavailable, err)
	}

	srcTracks := stream.GetAudioTracks()
	if len(srcTracks) == 0 {
		return nil, fmt.Errorf("%w: no audio tracks", core.ErrDeviceUnavailable)
	}

	ms := &micStream{id: uuid.NewString()}
	for _, src := range srcTracks {
		src.OnEnded(func(err error) {
			if err != nil {
				log.Error().Err(err).Str("module", "capture").Msg("mic track ended")
			}
		})
		t, err := newMicTrack(src, ms.id)
		if err != nil {
			for _, done := range ms.tracks {
				done.Stop()
			}
			_ = src.Close()
			return nil, fmt.Errorf("%w: %v", core.ErrDeviceUnavailable, err)
		}
		ms.tracks = append(ms.tracks, t)
	}
	log.Info().Str("module", "capture").Str("stream", ms.id).Int("tracks", len(ms.tracks)).Msg("microphone captured")
	return ms, nil
}
