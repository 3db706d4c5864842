package app

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/Erikcwill/sussuros-foundry/internal/core"
	"github.com/Erikcwill/sussuros-foundry/internal/domain"
)

// captureEntry is one cached (or in-flight) local capture. Entry identity is
// the race detector: an acquire that resolves after its entry was removed or
// replaced knows its stream belongs to nobody and stops it on the spot.
type captureEntry struct {
	ready  bool
	stream core.MediaStream
}

// CaptureManager acquires and caches one local outbound stream per peer on
// demand. Capture is per-peer, never shared across peers.
type CaptureManager struct {
	dev core.CaptureDevice

	mu      sync.Mutex
	entries map[domain.ParticipantID]*captureEntry
}

func NewCaptureManager(dev core.CaptureDevice) *CaptureManager {
	return &CaptureManager{
		dev:     dev,
		entries: make(map[domain.ParticipantID]*captureEntry),
	}
}

// Acquire returns the cached stream for id, requesting a new capture from the
// input device when none is cached. Device acquisition blocks; callers run it
// off the manager's event path. A capture that resolves after Release was
// called is stopped immediately and reported as ErrCaptureReleased.
func (m *CaptureManager) Acquire(ctx context.Context, id domain.ParticipantID) (core.MediaStream, error) {
	m.mu.Lock()
	if e, ok := m.entries[id]; ok && e.ready {
		m.mu.Unlock()
		return e.stream, nil
	}
	mine := &captureEntry{}
	m.entries[id] = mine
	m.mu.Unlock()

	stream, err := m.dev.Capture(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	current := m.entries[id]
	if err != nil {
		if current == mine {
			delete(m.entries, id)
		}
		log.Warn().Err(err).Str("module", "app.capture").Str("peer", string(id)).Msg("capture failed")
		return nil, err
	}
	if current != mine {
		// Released (or replaced) while the device was opening.
		stopTracks(stream)
		log.Info().Str("module", "app.capture").Str("peer", string(id)).Msg("late capture discarded")
		return nil, ErrCaptureReleased
	}
	mine.ready = true
	mine.stream = stream
	log.Info().Str("module", "app.capture").Str("peer", string(id)).Str("stream", stream.ID()).Msg("capture ready")
	return stream, nil
}

// SetEnabled flips the outbound tracks' active flag without touching the
// transport. No-op if no stream is cached.
func (m *CaptureManager) SetEnabled(id domain.ParticipantID, enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok || !e.ready {
		return
	}
	for _, t := range e.stream.AudioTracks() {
		t.SetEnabled(enabled)
	}
	log.Info().Str("module", "app.capture").Str("peer", string(id)).Bool("enabled", enabled).Msg("outbound tracks flipped")
}

// Release stops all tracks of the cached stream and drops the cache entry.
// Idempotent; an in-flight capture for id is flagged for immediate release
// once it resolves.
func (m *CaptureManager) Release(id domain.ParticipantID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return
	}
	delete(m.entries, id)
	if e.ready {
		stopTracks(e.stream)
	}
	log.Info().Str("module", "app.capture").Str("peer", string(id)).Bool("was_ready", e.ready).Msg("capture released")
}

// Cached reports whether a ready stream is held for id.
func (m *CaptureManager) Cached(id domain.ParticipantID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	return ok && e.ready
}

func stopTracks(s core.MediaStream) {
	if s == nil {
		return
	}
	for _, t := range s.AudioTracks() {
		t.Stop()
	}
}
