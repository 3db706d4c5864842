package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/Erikcwill/sussuros-foundry/internal/core"
	"github.com/Erikcwill/sussuros-foundry/internal/domain"
)

var ErrBackpressure = errors.New("backpressure")

// Client is the websocket adapter for the shared relay namespace. It only
// moves envelopes; addressing and recipient filtering belong to the caller.
type Client struct {
	conn    *websocket.Conn
	localID domain.ParticipantID
	send    chan []byte
	cancel  context.CancelFunc

	mu      sync.RWMutex
	closed  bool
	handler func(core.Envelope)
}

// Dial connects to the relay endpoint and starts the read/write pumps.
func Dial(ctx context.Context, url string, localID domain.ParticipantID) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial relay: %w", err)
	}
	c := &Client{
		conn:    conn,
		localID: localID,
		send:    make(chan []byte, 32),
	}
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	go c.writePump(ctx)
	go c.readPump(ctx)
	log.Info().Str("module", "relay").Str("url", url).Str("local", string(localID)).Msg("relay connected")
	return c, nil
}

// OnMessage registers the single inbound handler.
func (c *Client) OnMessage(fn func(core.Envelope)) {
	c.mu.Lock()
	c.handler = fn
	c.mu.Unlock()
}

// SendTo dispatches one envelope addressed to a specific recipient, with the
// local identity as origin filter so the remote client can disambiguate
// multi-user relay traffic. Failures map to core.ErrRelayUnreachable — logged
// by callers, never retried.
func (c *Client) SendTo(to domain.ParticipantID, kind core.MessageKind, payload json.RawMessage) error {
	env := core.Envelope{
		Kind:      kind,
		Recipient: to,
		Origin:    c.localID,
		Payload:   payload,
	}
	b, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("%w: marshal: %v", core.ErrRelayUnreachable, err)
	}
	return c.trySend(b)
}

func (c *Client) trySend(b []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return fmt.Errorf("%w: connection closed", core.ErrRelayUnreachable)
	}
	select {
	case c.send <- b:
		return nil
	default:
		return fmt.Errorf("%w: %v", core.ErrRelayUnreachable, ErrBackpressure)
	}
}

func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
	c.cancel()
	log.Info().Str("module", "relay").Msg("relay closed")
}
