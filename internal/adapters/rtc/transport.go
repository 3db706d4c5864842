package rtc

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/Erikcwill/sussuros-foundry/internal/core"
)

// signalMessage is the negotiation blob exchanged over the relay. Opaque to
// everything outside this package.
type signalMessage struct {
	Type          string  `json:"type"` // offer | answer | candidate
	SDP           string  `json:"sdp,omitempty"`
	Candidate     string  `json:"candidate,omitempty"`
	SDPMid        *string `json:"sdpMid,omitempty"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex,omitempty"`
}

func Config(stunServers []string) webrtc.Configuration {
	if len(stunServers) == 0 {
		stunServers = []string{"stun:stun.l.google.com:19302"}
	}
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{URLs: stunServers},
		},
	}
}

// NewFactory returns a core.TransportFactory producing pion-backed transports.
func NewFactory(cfg webrtc.Configuration) core.TransportFactory {
	return func(peer string, initiator bool, onEvent func(core.TransportEvent)) (core.Transport, error) {
		pc, err := webrtc.NewPeerConnection(cfg)
		if err != nil {
			return nil, err
		}
		return &Transport{
			pc:        pc,
			peer:      peer,
			initiator: initiator,
			onEvent:   onEvent,
			events:    make(chan core.TransportEvent, 32),
		}, nil
	}
}

// Transport wraps one *webrtc.PeerConnection. Events are pushed through a
// channel and delivered by a single goroutine, so the consumer sees them in
// the order the underlying connection raised them and never re-enters its own
// lock from inside a pion callback.
type Transport struct {
	pc        *webrtc.PeerConnection
	peer      string
	initiator bool
	onEvent   func(core.TransportEvent)

	events chan core.TransportEvent
	cancel context.CancelFunc
	once   sync.Once

	mu        sync.Mutex
	dc        *webrtc.DataChannel
	audio     *webrtc.RTPTransceiver
	remoteSet bool
	pending   []webrtc.ICECandidateInit
	connected bool
}

func (t *Transport) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	go t.dispatchLoop(ctx)

	t.pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil {
			return
		}
		ci := cand.ToJSON()
		t.emitSignal(signalMessage{
			Type:          "candidate",
			Candidate:     ci.Candidate,
			SDPMid:        ci.SDPMid,
			SDPMLineIndex: ci.SDPMLineIndex,
		})
	})

	t.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "rtc").Str("peer", t.peer).Str("peer_connection_state", s.String()).Msg("peer state")
		switch s {
		case webrtc.PeerConnectionStateConnected:
			t.mu.Lock()
			first := !t.connected
			t.connected = true
			t.mu.Unlock()
			if first {
				t.emit(core.TransportEvent{Kind: core.EventConnect})
			}
		case webrtc.PeerConnectionStateFailed:
			t.mu.Lock()
			wasConnected := t.connected
			t.mu.Unlock()
			if wasConnected {
				t.emit(core.TransportEvent{Kind: core.EventError, Err: core.ErrTransportSevered})
			} else {
				t.emit(core.TransportEvent{Kind: core.EventError, Err: core.ErrHandshakeIncompatible})
			}
			t.emit(core.TransportEvent{Kind: core.EventClose})
		case webrtc.PeerConnectionStateClosed, webrtc.PeerConnectionStateDisconnected:
			t.emit(core.TransportEvent{Kind: core.EventClose})
		}
	})

	t.pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		log.Info().
			Str("module", "rtc").
			Str("peer", t.peer).
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Str("stream_id", track.StreamID()).
			Msg("remote track received")
		t.emit(core.TransportEvent{Kind: core.EventStream, Stream: newRemoteStream(track)})
	})

	t.pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		t.bindDataChannel(dc)
	})

	// Both sides declare one sendrecv audio transceiver up front, so the
	// initial handshake already carries the audio m-line in both directions.
	// Capture resolves later and only replaces the sender's track.
	audio, err := t.pc.AddTransceiverFromKind(
		webrtc.RTPCodecTypeAudio,
		webrtc.RTPTransceiverInit{Direction: webrtc.RTPTransceiverDirectionSendrecv},
	)
	if err != nil {
		return err
	}
	t.mu.Lock()
	t.audio = audio
	t.mu.Unlock()

	if t.initiator {
		dc, err := t.pc.CreateDataChannel("whisper", nil)
		if err != nil {
			return err
		}
		t.bindDataChannel(dc)

		offer, err := t.pc.CreateOffer(nil)
		if err != nil {
			return err
		}
		if err := t.pc.SetLocalDescription(offer); err != nil {
			return err
		}
		// Trickle ICE: the offer goes out immediately, candidates follow as
		// separate signal messages.
		t.emitSignal(signalMessage{Type: "offer", SDP: offer.SDP})
	}
	return nil
}

func (t *Transport) bindDataChannel(dc *webrtc.DataChannel) {
	t.mu.Lock()
	t.dc = dc
	t.mu.Unlock()
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		t.emit(core.TransportEvent{Kind: core.EventData, Data: msg.Data})
	})
}

// Signal feeds one remote negotiation message into the connection. Candidates
// arriving before the remote description are queued and drained afterwards.
func (t *Transport) Signal(payload json.RawMessage) error {
	var msg signalMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("bad signal payload: %w", err)
	}

	switch msg.Type {
	case "offer":
		if err := t.pc.SetRemoteDescription(webrtc.SessionDescription{
			Type: webrtc.SDPTypeOffer,
			SDP:  msg.SDP,
		}); err != nil {
			return err
		}
		t.drainPending()
		answer, err := t.pc.CreateAnswer(nil)
		if err != nil {
			return err
		}
		if err := t.pc.SetLocalDescription(answer); err != nil {
			return err
		}
		t.emitSignal(signalMessage{Type: "answer", SDP: answer.SDP})
		return nil

	case "answer":
		if err := t.pc.SetRemoteDescription(webrtc.SessionDescription{
			Type: webrtc.SDPTypeAnswer,
			SDP:  msg.SDP,
		}); err != nil {
			return err
		}
		t.drainPending()
		return nil

	case "candidate":
		ci := webrtc.ICECandidateInit{
			Candidate:     msg.Candidate,
			SDPMid:        msg.SDPMid,
			SDPMLineIndex: msg.SDPMLineIndex,
		}
		t.mu.Lock()
		if !t.remoteSet {
			t.pending = append(t.pending, ci)
			t.mu.Unlock()
			return nil
		}
		t.mu.Unlock()
		return t.pc.AddICECandidate(ci)

	default:
		return fmt.Errorf("unknown signal type %q", msg.Type)
	}
}

func (t *Transport) drainPending() {
	t.mu.Lock()
	t.remoteSet = true
	pending := t.pending
	t.pending = nil
	t.mu.Unlock()
	for _, ci := range pending {
		if err := t.pc.AddICECandidate(ci); err != nil {
			log.Error().Err(err).Str("module", "rtc").Str("peer", t.peer).Msg("add queued ice candidate")
		}
	}
}

// localTrack is implemented by capture tracks that carry a pion local track.
type localTrack interface {
	Local() webrtc.TrackLocal
}

// AttachStream routes the stream's tracks into the pre-negotiated audio
// transceiver. Replacing the sender's track never touches the handshake, so
// media flows on the session descriptions exchanged before capture resolved.
func (t *Transport) AttachStream(s core.MediaStream) error {
	t.mu.Lock()
	audio := t.audio
	t.mu.Unlock()
	for i, mt := range s.AudioTracks() {
		lt, ok := mt.(localTrack)
		if !ok {
			return fmt.Errorf("track %s cannot be attached to a peer connection", mt.ID())
		}
		if i == 0 && audio != nil {
			if err := audio.Sender().ReplaceTrack(lt.Local()); err != nil {
				return err
			}
			continue
		}
		if _, err := t.pc.AddTrack(lt.Local()); err != nil {
			return err
		}
	}
	return nil
}

func (t *Transport) Send(data []byte) error {
	t.mu.Lock()
	dc := t.dc
	t.mu.Unlock()
	if dc == nil {
		return core.ErrTransportSevered
	}
	return dc.Send(data)
}

func (t *Transport) Close() {
	t.once.Do(func() {
		if t.cancel != nil {
			t.cancel()
		}
		if err := t.pc.Close(); err != nil {
			log.Error().Err(err).Str("module", "rtc").Str("peer", t.peer).Msg("close error")
		} else {
			log.Info().Str("module", "rtc").Str("peer", t.peer).Msg("closed")
		}
	})
}

// emit queues an event for ordered delivery. Drops on overflow rather than
// blocking a pion callback.
func (t *Transport) emit(ev core.TransportEvent) {
	select {
	case t.events <- ev:
	default:
		log.Warn().Str("module", "rtc").Str("peer", t.peer).Str("kind", ev.Kind.String()).Msg("event dropped, consumer too slow")
	}
}

func (t *Transport) emitSignal(msg signalMessage) {
	b, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Str("module", "rtc").Str("peer", t.peer).Msg("marshal signal")
		return
	}
	t.emit(core.TransportEvent{Kind: core.EventSignal, Payload: b})
}

func (t *Transport) dispatchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-t.events:
			t.onEvent(ev)
		}
	}
}
