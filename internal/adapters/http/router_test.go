package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/Erikcwill/sussuros-foundry/internal/adapters/channel"
	"github.com/Erikcwill/sussuros-foundry/internal/adapters/directory"
	"github.com/Erikcwill/sussuros-foundry/internal/app"
	"github.com/Erikcwill/sussuros-foundry/internal/config"
	"github.com/Erikcwill/sussuros-foundry/internal/core"
	"github.com/Erikcwill/sussuros-foundry/internal/domain"
)

type stubRelay struct{}

func (stubRelay) SendTo(domain.ParticipantID, core.MessageKind, json.RawMessage) error { return nil }
func (stubRelay) OnMessage(func(core.Envelope))                                        {}
func (stubRelay) Close()                                                               {}

type stubTransport struct {
	onEvent func(core.TransportEvent)
}

func (t *stubTransport) Start(ctx context.Context) error     { return nil }
func (t *stubTransport) Signal(json.RawMessage) error        { return nil }
func (t *stubTransport) AttachStream(core.MediaStream) error { return nil }
func (t *stubTransport) Send([]byte) error                   { return nil }
func (t *stubTransport) Close()                              {}

type stubFactory struct {
	mu      sync.Mutex
	created map[string]*stubTransport
}

func (f *stubFactory) New(peer string, initiator bool, onEvent func(core.TransportEvent)) (core.Transport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tr := &stubTransport{onEvent: onEvent}
	f.created[peer] = tr
	return tr, nil
}

func (f *stubFactory) connect(peer string) {
	f.mu.Lock()
	tr := f.created[peer]
	f.mu.Unlock()
	tr.onEvent(core.TransportEvent{Kind: core.EventConnect})
}

type stubDevice struct{}

func (stubDevice) Capture(ctx context.Context) (core.MediaStream, error) {
	return nil, core.ErrDeviceUnavailable
}

type fixture struct {
	router  *gin.Engine
	mgr     *app.Manager
	dir     *directory.Memory
	mirror  *channel.Mirror
	factory *stubFactory
}

func newFixture(t *testing.T, transmitMode string) *fixture {
	t.Helper()
	cfg := &config.Config{Mode: "release", TransmitMode: transmitMode}
	dir := directory.NewMemory("me")
	mirror := channel.NewMirror()
	factory := &stubFactory{created: make(map[string]*stubTransport)}
	mgr := app.NewManager(
		context.Background(),
		"me",
		stubRelay{},
		factory.New,
		app.NewCaptureManager(stubDevice{}),
		app.NewBroadcastCoordinator(mirror, "me", true),
	)
	return &fixture{
		router:  SetupRouter(cfg, mgr, dir, mirror),
		mgr:     mgr,
		dir:     dir,
		mirror:  mirror,
		factory: factory,
	}
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestRouter_ConnectRejectsSelf(t *testing.T) {
	f := newFixture(t, config.TransmitPushToTalk)

	w := f.do(t, http.MethodPost, "/api/peers/me/connect", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestRouter_ConnectRequiresActiveParticipant(t *testing.T) {
	f := newFixture(t, config.TransmitPushToTalk)

	w := f.do(t, http.MethodPost, "/api/peers/u2/connect", "")
	if w.Code != http.StatusConflict {
		t.Errorf("unknown participant: status = %d, want 409", w.Code)
	}

	f.dir.Upsert(domain.Participant{ID: "u2", Name: "bob", Active: true})
	w = f.do(t, http.MethodPost, "/api/peers/u2/connect", "")
	if w.Code != http.StatusAccepted {
		t.Errorf("active participant: status = %d, want 202", w.Code)
	}
	if len(f.mgr.Peers()) != 1 {
		t.Error("no session created")
	}
}

func TestRouter_PeersSnapshot(t *testing.T) {
	f := newFixture(t, config.TransmitPushToTalk)
	f.dir.Upsert(domain.Participant{ID: "u2", Name: "bob", Active: true})
	f.do(t, http.MethodPost, "/api/peers/u2/connect", "")

	w := f.do(t, http.MethodGet, "/api/peers", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp struct {
		Peers []app.PeerDTO `json:"peers"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad body: %v", err)
	}
	if len(resp.Peers) != 1 || resp.Peers[0].ID != "u2" || resp.Peers[0].State != "negotiating" {
		t.Errorf("unexpected snapshot: %+v", resp.Peers)
	}
}

func TestRouter_TransmitGatedByMode(t *testing.T) {
	f := newFixture(t, config.TransmitToggle)

	w := f.do(t, http.MethodPost, "/api/peers/u2/transmit", `{"enabled":true}`)
	if w.Code != http.StatusConflict {
		t.Errorf("transmit in toggle mode: status = %d, want 409", w.Code)
	}
}

func TestRouter_ToggleGatedByMode(t *testing.T) {
	f := newFixture(t, config.TransmitPushToTalk)

	w := f.do(t, http.MethodPost, "/api/peers/u2/toggle", "")
	if w.Code != http.StatusConflict {
		t.Errorf("toggle in push_to_talk mode: status = %d, want 409", w.Code)
	}
}

func TestRouter_TransmitOnConnectedSession(t *testing.T) {
	f := newFixture(t, config.TransmitPushToTalk)
	f.dir.Upsert(domain.Participant{ID: "u2", Name: "bob", Active: true})
	f.do(t, http.MethodPost, "/api/peers/u2/connect", "")

	w := f.do(t, http.MethodPost, "/api/peers/u2/transmit", `{"enabled":true}`)
	if w.Code != http.StatusConflict {
		t.Errorf("transmit while negotiating: status = %d, want 409", w.Code)
	}

	f.factory.connect("u2")
	w = f.do(t, http.MethodPost, "/api/peers/u2/transmit", `{"enabled":true}`)
	if w.Code != http.StatusNoContent {
		t.Errorf("transmit when connected: status = %d, want 204", w.Code)
	}
}

func TestRouter_CloseUnknownPeer(t *testing.T) {
	f := newFixture(t, config.TransmitPushToTalk)

	w := f.do(t, http.MethodPost, "/api/peers/u2/close", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestRouter_DeviceChangeClosesSessions(t *testing.T) {
	f := newFixture(t, config.TransmitPushToTalk)
	f.dir.Upsert(domain.Participant{ID: "u2", Name: "bob", Active: true})
	f.do(t, http.MethodPost, "/api/peers/u2/connect", "")

	w := f.do(t, http.MethodPost, "/api/devices/changed", `{"keys":["audioSrc"]}`)
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", w.Code)
	}
	if len(f.mgr.Peers()) != 0 {
		t.Error("sessions survived an audio device change")
	}
}

func TestRouter_ChannelStateRoundTrip(t *testing.T) {
	f := newFixture(t, config.TransmitPushToTalk)

	w := f.do(t, http.MethodPut, "/api/channel/state", `{"always_on":true,"broadcasting":true,"has_broadcast_flag":true}`)
	if w.Code != http.StatusNoContent {
		t.Fatalf("put status = %d", w.Code)
	}

	w = f.do(t, http.MethodGet, "/api/channel/state", "")
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
	var st channel.State
	if err := json.Unmarshal(w.Body.Bytes(), &st); err != nil {
		t.Fatalf("bad body: %v", err)
	}
	if !st.AlwaysOn || !st.Broadcasting || !st.HasBroadcastFlag {
		t.Errorf("state lost in round trip: %+v", st)
	}
}

func TestRouter_DirectoryUpsertValidation(t *testing.T) {
	f := newFixture(t, config.TransmitPushToTalk)

	longName := strings.Repeat("x", domain.MaxNameLen+1)
	w := f.do(t, http.MethodPut, "/api/directory/u2", `{"name":"`+longName+`","active":true}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid name: status = %d, want 400", w.Code)
	}

	w = f.do(t, http.MethodPut, "/api/directory/u2", `{"name":"bob","active":true}`)
	if w.Code != http.StatusNoContent {
		t.Errorf("valid upsert: status = %d, want 204", w.Code)
	}
	if !f.dir.IsActive("u2") {
		t.Error("roster entry missing after upsert")
	}

	w = f.do(t, http.MethodDelete, "/api/directory/u2", "")
	if w.Code != http.StatusNoContent {
		t.Errorf("delete: status = %d, want 204", w.Code)
	}
	if f.dir.IsActive("u2") {
		t.Error("roster entry survived delete")
	}
}
