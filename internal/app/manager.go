package app

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/Erikcwill/sussuros-foundry/internal/core"
	"github.com/Erikcwill/sussuros-foundry/internal/domain"
)

// Device-change keys this system reacts to.
const (
	DeviceKeyAudioSrc  = "audioSrc"
	DeviceKeyAudioSink = "audioSink"
)

// Manager owns the table of peer sessions and drives the handshake state
// machine. Every entry point — UI call, relay envelope, transport event,
// capture completion — serializes on one lock, so each transition is atomic
// with respect to its session. Nothing blocking runs while the lock is held;
// transport teardown and device capture happen outside it.
type Manager struct {
	localID    domain.ParticipantID
	relay      core.Relay
	transports core.TransportFactory
	capture    *CaptureManager
	broadcast  *BroadcastCoordinator
	ctx        context.Context

	mu         sync.Mutex
	sessions   map[domain.ParticipantID]*PeerSession
	sinks      map[domain.ParticipantID]core.Sink
	indicators map[domain.ParticipantID]core.PeerIndicator
	notify     func(msg string)
}

func NewManager(
	ctx context.Context,
	localID domain.ParticipantID,
	relay core.Relay,
	transports core.TransportFactory,
	capture *CaptureManager,
	broadcast *BroadcastCoordinator,
) *Manager {
	m := &Manager{
		localID:    localID,
		relay:      relay,
		transports: transports,
		capture:    capture,
		broadcast:  broadcast,
		ctx:        ctx,
		sessions:   make(map[domain.ParticipantID]*PeerSession),
		sinks:      make(map[domain.ParticipantID]core.Sink),
		indicators: make(map[domain.ParticipantID]core.PeerIndicator),
	}
	relay.OnMessage(m.HandleEnvelope)
	return m
}

// SetNotifier installs the hook used to surface failures that affect the
// local user's own ability to transmit.
func (m *Manager) SetNotifier(fn func(msg string)) {
	m.mu.Lock()
	m.notify = fn
	m.mu.Unlock()
}

// Connect opens a new session to id as initiator. If a non-closed session
// already exists this is a logged no-op, whichever side started it.
func (m *Manager) Connect(id domain.ParticipantID) error {
	m.mu.Lock()
	if _, ok := m.sessions[id]; ok {
		m.mu.Unlock()
		log.Info().Str("module", "app.manager").Str("peer", string(id)).Msg("connect ignored, session already exists")
		return nil
	}
	sess, err := m.newSessionLocked(id, RoleInitiator)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	m.mu.Unlock()
	return m.startTransport(sess)
}

// ReceiveSignal routes one inbound negotiation payload to id's session,
// creating a responder session when none exists. The payload is forwarded
// regardless of current state: a responder may need several rounds before
// reaching connected.
func (m *Manager) ReceiveSignal(id domain.ParticipantID, payload json.RawMessage) error {
	m.mu.Lock()
	sess, ok := m.sessions[id]
	created := false
	if !ok {
		var err error
		sess, err = m.newSessionLocked(id, RoleResponder)
		if err != nil {
			m.mu.Unlock()
			return err
		}
		created = true
	}
	m.mu.Unlock()

	if created {
		if err := m.startTransport(sess); err != nil {
			return err
		}
	}
	return sess.transport.Signal(payload)
}

// newSessionLocked builds the session record and its transport. Caller holds m.mu.
func (m *Manager) newSessionLocked(id domain.ParticipantID, role Role) (*PeerSession, error) {
	ctx, cancel := context.WithCancel(m.ctx)
	sess := &PeerSession{
		ID:        id,
		Role:      role,
		State:     StateNegotiating,
		ctx:       ctx,
		cancel:    cancel,
		indicator: m.indicatorLocked(id),
	}
	tr, err := m.transports(string(id), role == RoleInitiator, func(ev core.TransportEvent) {
		m.onTransportEvent(id, ev)
	})
	if err != nil {
		cancel()
		return nil, err
	}
	sess.transport = tr
	m.sessions[id] = sess
	log.Info().Str("module", "app.manager").Str("peer", string(id)).Str("role", role.String()).Msg("session created")
	return sess, nil
}

func (m *Manager) startTransport(sess *PeerSession) error {
	if err := sess.transport.Start(sess.ctx); err != nil {
		log.Error().Err(err).Str("module", "app.manager").Str("peer", string(sess.ID)).Msg("transport start failed")
		m.teardown(sess.ID, "transport start failed")
		return err
	}
	return nil
}

// onTransportEvent is the single typed handler consuming one session's
// transport events. A failure inside this system's logic is logged and never
// escapes: other sessions keep functioning.
func (m *Manager) onTransportEvent(id domain.ParticipantID, ev core.TransportEvent) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("module", "app.manager").Str("peer", string(id)).Any("panic", r).Msg("transport event handler panicked")
		}
	}()

	switch ev.Kind {
	case core.EventSignal:
		if err := m.relay.SendTo(id, core.KindSignal, ev.Payload); err != nil {
			log.Warn().Err(err).Str("module", "app.manager").Str("peer", string(id)).Msg("relay send failed")
		}

	case core.EventConnect:
		m.mu.Lock()
		sess, ok := m.sessions[id]
		if !ok || sess.State != StateNegotiating {
			m.mu.Unlock()
			return
		}
		sess.State = StateConnected
		ind := sess.indicator
		m.mu.Unlock()
		ind.SetConnected(true)
		log.Info().Str("module", "app.manager").Str("peer", string(id)).Msg("connected")
		// Outbound audio starts disabled; exclusivity begins only when the
		// user actually enables transmit.
		go m.acquireOutbound(id)

	case core.EventStream:
		m.mu.Lock()
		sess, ok := m.sessions[id]
		if !ok {
			m.mu.Unlock()
			stopTracks(ev.Stream)
			return
		}
		sess.inbound = ev.Stream
		sink := m.sinks[id]
		m.mu.Unlock()
		if sink != nil {
			sink.Attach(ev.Stream)
		}
		log.Info().Str("module", "app.manager").Str("peer", string(id)).Bool("sink_ready", sink != nil).Msg("inbound stream received")

	case core.EventData:
		log.Debug().Str("module", "app.manager").Str("peer", string(id)).Int("bytes", len(ev.Data)).Msg("data received")

	case core.EventClose:
		m.teardown(id, "transport closed")

	case core.EventError:
		m.mu.Lock()
		sess, ok := m.sessions[id]
		var st ConnState
		if ok {
			st = sess.State
		}
		m.mu.Unlock()
		if !ok {
			return
		}
		if st != StateConnected {
			log.Warn().Err(ev.Err).Str("module", "app.manager").Str("peer", string(id)).Msg("negotiation failed, closing")
			m.teardown(id, "handshake incompatible")
			return
		}
		// Errors on a connected session do not force teardown unless the
		// transport itself reports disconnection.
		log.Error().Err(ev.Err).Str("module", "app.manager").Str("peer", string(id)).Msg("transport error on connected session")
	}
}

// acquireOutbound obtains the local capture for id and attaches it to the
// session's transport. Runs off the event path: device access can take as
// long as the user's permission prompt.
func (m *Manager) acquireOutbound(id domain.ParticipantID) {
	stream, err := m.capture.Acquire(m.ctx, id)
	if err != nil {
		if errors.Is(err, ErrCaptureReleased) {
			return
		}
		log.Warn().Err(err).Str("module", "app.manager").Str("peer", string(id)).Msg("outbound capture unavailable")
		m.notifyUser("microphone unavailable — whisper stays receive-only")
		return
	}

	// Disabled by default post-connect.
	for _, t := range stream.AudioTracks() {
		t.SetEnabled(false)
	}

	m.mu.Lock()
	sess, ok := m.sessions[id]
	if !ok || sess.State != StateConnected {
		m.mu.Unlock()
		m.capture.Release(id)
		return
	}
	tr := sess.transport
	m.mu.Unlock()

	if err := tr.AttachStream(stream); err != nil {
		log.Error().Err(err).Str("module", "app.manager").Str("peer", string(id)).Msg("attach outbound stream failed")
		m.capture.Release(id)
		return
	}

	m.mu.Lock()
	if cur := m.sessions[id]; cur == sess {
		sess.outbound = stream
		enabled := sess.outboundEnabled
		m.mu.Unlock()
		// The user may have enabled transmit while the device was still
		// opening; the flag flipped nothing then, so apply it now.
		if enabled {
			m.capture.SetEnabled(id, true)
		}
		return
	}
	m.mu.Unlock()
	// Session closed while attaching.
	m.capture.Release(id)
}

// SetOutboundEnabled flips transmit toward id. Requires a connected session.
// Enabling starts exclusivity on the always-on channel, disabling ends it;
// either way the remote side is told so its UI can reflect the change.
func (m *Manager) SetOutboundEnabled(id domain.ParticipantID, enabled bool) error {
	m.mu.Lock()
	sess, ok := m.sessions[id]
	if !ok || sess.State != StateConnected {
		m.mu.Unlock()
		log.Info().Str("module", "app.manager").Str("peer", string(id)).Bool("enabled", enabled).Msg("transmit ignored, session not connected")
		return ErrNotConnected
	}
	if sess.outboundEnabled == enabled {
		m.mu.Unlock()
		return nil
	}
	sess.outboundEnabled = enabled
	if enabled {
		sess.exclusiveHeld = m.broadcast.BeginExclusive(id)
	} else if sess.exclusiveHeld {
		m.broadcast.EndExclusive()
		sess.exclusiveHeld = false
	}
	ind := sess.indicator
	m.mu.Unlock()

	m.capture.SetEnabled(id, enabled)
	payload, _ := json.Marshal(core.BroadcastState{Broadcasting: enabled})
	if err := m.relay.SendTo(id, core.KindBroadcastState, payload); err != nil {
		log.Warn().Err(err).Str("module", "app.manager").Str("peer", string(id)).Msg("broadcast-state send failed")
	}
	ind.SetBroadcasting(enabled)
	return nil
}

// ToggleOutbound flips transmit to the logical negation of the current state.
func (m *Manager) ToggleOutbound(id domain.ParticipantID) error {
	m.mu.Lock()
	sess, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		return ErrNotConnected
	}
	next := !sess.outboundEnabled
	m.mu.Unlock()
	return m.SetOutboundEnabled(id, next)
}

// ClosePeer tears down id's session after notifying the remote side.
func (m *Manager) ClosePeer(id domain.ParticipantID) error {
	m.mu.Lock()
	_, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok {
		return ErrUnknownParticipant
	}
	if err := m.relay.SendTo(id, core.KindClose, nil); err != nil {
		log.Warn().Err(err).Str("module", "app.manager").Str("peer", string(id)).Msg("close notification failed")
	}
	m.teardown(id, "local close")
	return nil
}

// CloseAll notifies every peer and closes every session. Called on local
// shutdown and on audio device changes — a device change invalidates all
// in-flight captures, so every session must renegotiate fresh media.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	ids := make([]domain.ParticipantID, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		if err := m.relay.SendTo(id, core.KindClose, nil); err != nil {
			log.Warn().Err(err).Str("module", "app.manager").Str("peer", string(id)).Msg("close notification failed")
		}
		m.teardown(id, "close all")
	}
}

// OnDeviceChange reacts to a changed-keys notification; only audio input or
// output keys matter here.
func (m *Manager) OnDeviceChange(keys []string) {
	for _, k := range keys {
		if k == DeviceKeyAudioSrc || k == DeviceKeyAudioSink {
			log.Info().Str("module", "app.manager").Str("key", k).Msg("audio device changed, closing all sessions")
			m.CloseAll()
			return
		}
	}
}

// teardown is the single closed-state path: it removes the table entry and
// releases transport, streams and UI flags unconditionally, even when they
// were never fully established.
func (m *Manager) teardown(id domain.ParticipantID, reason string) {
	m.mu.Lock()
	sess, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		return
	}
	delete(m.sessions, id)
	sess.State = StateClosed
	sink := m.sinks[id]
	m.mu.Unlock()

	if sess.cancel != nil {
		sess.cancel()
	}
	if sess.exclusiveHeld {
		m.broadcast.EndExclusive()
		sess.exclusiveHeld = false
	}
	sess.outboundEnabled = false
	m.capture.Release(id)
	stopTracks(sess.inbound)
	if sink != nil {
		sink.Detach()
	}
	sess.indicator.SetConnected(false)
	sess.indicator.SetBroadcasting(false)
	sess.indicator.SetRemoteTalking(false)
	sess.transport.Close()
	log.Info().Str("module", "app.manager").Str("peer", string(id)).Str("reason", reason).Msg("session closed")
}

// HandleEnvelope is the relay's inbound handler. Envelopes addressed to a
// different local user are discarded here.
func (m *Manager) HandleEnvelope(env core.Envelope) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("module", "app.manager").Str("origin", string(env.Origin)).Any("panic", r).Msg("envelope handler panicked")
		}
	}()

	if env.Recipient != m.localID {
		return
	}
	switch env.Kind {
	case core.KindSignal:
		if err := m.ReceiveSignal(env.Origin, env.Payload); err != nil {
			log.Error().Err(err).Str("module", "app.manager").Str("peer", string(env.Origin)).Msg("inbound signal failed")
		}
	case core.KindClose:
		m.teardown(env.Origin, "remote close")
	case core.KindBroadcastState:
		var st core.BroadcastState
		if err := json.Unmarshal(env.Payload, &st); err != nil {
			log.Warn().Err(err).Str("module", "app.manager").Str("peer", string(env.Origin)).Msg("bad broadcast-state payload")
			return
		}
		// UI indicator only; no state-machine transition.
		m.indicatorFor(env.Origin).SetRemoteTalking(st.Broadcasting)
	default:
		log.Warn().Str("module", "app.manager").Str("kind", string(env.Kind)).Msg("unknown envelope kind")
	}
}

// RegisterSink installs the playback destination for id. An inbound stream
// that arrived before the sink existed is attached now.
func (m *Manager) RegisterSink(id domain.ParticipantID, sink core.Sink) {
	m.mu.Lock()
	if sink == nil {
		delete(m.sinks, id)
		m.mu.Unlock()
		return
	}
	m.sinks[id] = sink
	var pending core.MediaStream
	if sess, ok := m.sessions[id]; ok && sess.inbound != nil {
		pending = sess.inbound
	}
	m.mu.Unlock()
	if pending != nil {
		sink.Attach(pending)
	}
}

// RegisterIndicator binds the visual control for id and replays the current
// session flags onto it.
func (m *Manager) RegisterIndicator(id domain.ParticipantID, ind core.PeerIndicator) {
	m.mu.Lock()
	if ind == nil {
		delete(m.indicators, id)
		m.mu.Unlock()
		return
	}
	m.indicators[id] = ind
	sess, ok := m.sessions[id]
	if ok {
		sess.indicator = ind
	}
	m.mu.Unlock()
	if ok {
		ind.SetConnected(sess.State == StateConnected)
		ind.SetBroadcasting(sess.outboundEnabled)
	}
}

func (m *Manager) indicatorLocked(id domain.ParticipantID) core.PeerIndicator {
	if ind, ok := m.indicators[id]; ok {
		return ind
	}
	return core.NopIndicator{}
}

func (m *Manager) indicatorFor(id domain.ParticipantID) core.PeerIndicator {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sess, ok := m.sessions[id]; ok {
		return sess.indicator
	}
	return m.indicatorLocked(id)
}

// Peers returns a read-only snapshot of the session table.
func (m *Manager) Peers() []PeerDTO {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]PeerDTO, 0, len(m.sessions))
	for _, sess := range m.sessions {
		out = append(out, sess.dto())
	}
	return out
}

// IsConnected reports whether a connected session to id exists.
func (m *Manager) IsConnected(id domain.ParticipantID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	return ok && sess.State == StateConnected
}

func (m *Manager) notifyUser(msg string) {
	m.mu.Lock()
	fn := m.notify
	m.mu.Unlock()
	if fn != nil {
		fn(msg)
	}
}
