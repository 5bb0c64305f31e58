package hub

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/fleetbeam/tracker-hub/internal/config"
	"github.com/fleetbeam/tracker-hub/pkg/log"
)

const defaultSendBuffer = 256

// Client is one persistent fleet connection. The send channel decouples
// broadcast fan-out from the peer's write speed; a peer that cannot
// drain it gets evicted rather than stalling other members.
type Client struct {
	ID   string
	Hub  *Hub
	Conn *websocket.Conn
	Send chan []byte

	config config.WebSocketConfig

	// sendMu guards closed so that enqueue and closeSend never race;
	// the read pump keeps producing replies while the hub tears the
	// client down.
	sendMu sync.Mutex
	closed bool
}

func NewClient(id string, h *Hub, conn *websocket.Conn, cfg config.WebSocketConfig) *Client {
	buffer := cfg.SendBuffer
	if buffer <= 0 {
		buffer = defaultSendBuffer
	}
	return &Client{
		ID:     id,
		Hub:    h,
		Conn:   conn,
		Send:   make(chan []byte, buffer),
		config: cfg,
	}
}

// SendMessage marshals v and queues it for delivery. The send never
// blocks; if the client's buffer is full or the client has been torn
// down the message is dropped (best-effort, at-most-once).
func (c *Client) SendMessage(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	c.enqueue(data)
	return nil
}

func (c *Client) enqueue(data []byte) {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if c.closed {
		return
	}
	select {
	case c.Send <- data:
	default:
	}
}

// closeSend shuts the send side down so the write pump drains and
// exits. Idempotent; after it returns every enqueue is a silent drop.
func (c *Client) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.Send)
}

// ReadPump reads inbound frames and hands them to onMessage. It owns
// teardown: onClose runs exactly once when the connection dies, however
// it dies.
func (c *Client) ReadPump(onMessage func(*Client, []byte), onClose func(*Client)) {
	defer func() {
		onClose(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				l := log.L()
				l.Warn().Str(log.FieldConnID, c.ID).Err(err).Msg("websocket read failed")
			}
			break
		}

		onMessage(c, message)
	}
}

// WritePump drains the send channel onto the wire and keeps the
// connection alive with periodic pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(c.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
