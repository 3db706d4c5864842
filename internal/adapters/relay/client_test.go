package relay

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Erikcwill/sussuros-foundry/internal/core"
)

type relayServer struct {
	upgrader websocket.Upgrader

	mu       sync.Mutex
	conn     *websocket.Conn
	received [][]byte
}

func (s *relayServer) handle(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.received = append(s.received, data)
		s.mu.Unlock()
	}
}

func (s *relayServer) push(t *testing.T, v any) {
	t.Helper()
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		t.Fatal("no client connected")
	}
	if err := conn.WriteJSON(v); err != nil {
		t.Fatalf("server write: %v", err)
	}
}

func (s *relayServer) messages() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.received))
	copy(out, s.received)
	return out
}

func startRelay(t *testing.T) (*relayServer, string) {
	t.Helper()
	srv := &relayServer{}
	ts := httptest.NewServer(http.HandlerFunc(srv.handle))
	t.Cleanup(ts.Close)
	return srv, "ws" + strings.TrimPrefix(ts.URL, "http")
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met within timeout")
}

func TestClient_SendToWritesAddressedEnvelope(t *testing.T) {
	srv, url := startRelay(t)
	c, err := Dial(context.Background(), url, "u1")
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()

	payload := json.RawMessage(`{"type":"offer","sdp":"v=0"}`)
	if err := c.SendTo("u2", core.KindSignal, payload); err != nil {
		t.Fatalf("SendTo: %v", err)
	}

	waitFor(t, func() bool { return len(srv.messages()) == 1 })
	var env core.Envelope
	if err := json.Unmarshal(srv.messages()[0], &env); err != nil {
		t.Fatalf("bad wire envelope: %v", err)
	}
	if env.Kind != core.KindSignal || env.Recipient != "u2" || env.Origin != "u1" {
		t.Errorf("envelope fields wrong: %+v", env)
	}
	if string(env.Payload) != string(payload) {
		t.Errorf("payload altered: %s", env.Payload)
	}
}

func TestClient_InboundDeliveredToHandler(t *testing.T) {
	srv, url := startRelay(t)
	c, err := Dial(context.Background(), url, "u1")
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()

	var mu sync.Mutex
	var got []core.Envelope
	c.OnMessage(func(env core.Envelope) {
		mu.Lock()
		got = append(got, env)
		mu.Unlock()
	})

	// The server needs the client's connection registered before pushing.
	if err := c.SendTo("u2", core.KindClose, nil); err != nil {
		t.Fatalf("SendTo: %v", err)
	}
	waitFor(t, func() bool { return len(srv.messages()) == 1 })

	srv.push(t, core.Envelope{Kind: core.KindSignal, Recipient: "u1", Origin: "u2", Payload: json.RawMessage(`{"type":"offer"}`)})
	srv.push(t, core.Envelope{Kind: core.KindBroadcastState, Recipient: "u1", Origin: "u2", Payload: json.RawMessage(`{"broadcasting":true}`)})

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	})
	mu.Lock()
	defer mu.Unlock()
	if got[0].Kind != core.KindSignal || got[1].Kind != core.KindBroadcastState {
		t.Errorf("per-sender order not preserved: %v then %v", got[0].Kind, got[1].Kind)
	}
	if got[0].Origin != "u2" {
		t.Errorf("origin = %s, want u2", got[0].Origin)
	}
}

func TestClient_MalformedInboundIsSkipped(t *testing.T) {
	srv, url := startRelay(t)
	c, err := Dial(context.Background(), url, "u1")
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()

	var mu sync.Mutex
	var got []core.Envelope
	c.OnMessage(func(env core.Envelope) {
		mu.Lock()
		got = append(got, env)
		mu.Unlock()
	})

	if err := c.SendTo("u2", core.KindClose, nil); err != nil {
		t.Fatalf("SendTo: %v", err)
	}
	waitFor(t, func() bool { return len(srv.messages()) == 1 })

	srv.mu.Lock()
	conn := srv.conn
	srv.mu.Unlock()
	if err := conn.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatalf("server write: %v", err)
	}
	srv.push(t, core.Envelope{Kind: core.KindClose, Recipient: "u1", Origin: "u2"})

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	})
	mu.Lock()
	defer mu.Unlock()
	if got[0].Kind != core.KindClose {
		t.Errorf("valid envelope after garbage not delivered: %v", got[0].Kind)
	}
}

func TestClient_PanickingHandlerDoesNotKillReadPump(t *testing.T) {
	srv, url := startRelay(t)
	c, err := Dial(context.Background(), url, "u1")
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()

	var mu sync.Mutex
	calls := 0
	c.OnMessage(func(env core.Envelope) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n == 1 {
			panic("first envelope blows up")
		}
	})

	if err := c.SendTo("u2", core.KindClose, nil); err != nil {
		t.Fatalf("SendTo: %v", err)
	}
	waitFor(t, func() bool { return len(srv.messages()) == 1 })

	srv.push(t, core.Envelope{Kind: core.KindClose, Recipient: "u1", Origin: "u2"})
	srv.push(t, core.Envelope{Kind: core.KindClose, Recipient: "u1", Origin: "u2"})

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls == 2
	})
}

func TestClient_SendAfterCloseIsUnreachable(t *testing.T) {
	_, url := startRelay(t)
	c, err := Dial(context.Background(), url, "u1")
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}

	c.Close()
	c.Close() // second close must be a no-op

	err = c.SendTo("u2", core.KindSignal, json.RawMessage(`{}`))
	if !errors.Is(err, core.ErrRelayUnreachable) {
		t.Errorf("expected ErrRelayUnreachable, got %v", err)
	}
}

func TestClient_DialFailure(t *testing.T) {
	_, err := Dial(context.Background(), "ws://127.0.0.1:1/ws", "u1")
	if err == nil {
		t.Fatal("expected dial error for unreachable relay")
	}
}
