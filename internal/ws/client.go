package ws

import (
	"context"
	"encoding/json"
	"time"

	"typestake/internal/logger"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 30 * time.Second
	pingPeriod     = pongWait * 5 / 6
	sendBuffer     = 64
	maxFrameSize   = 1024
	snapshotTimeout = 3 * time.Second
)

// Client is one websocket watcher of one duel.
type Client struct {
	ID      string
	DuelID  uint64
	Address string // empty for anonymous watchers
	Conn    *websocket.Conn
	Send    chan []byte

	Hub  *Hub
	Done chan struct{}
}

func NewClient(duelID uint64, address string, conn *websocket.Conn, hub *Hub) *Client {
	return &Client{
		ID:      uuid.NewString(),
		DuelID:  duelID,
		Address: address,
		Conn:    conn,
		Send:    make(chan []byte, sendBuffer),
		Hub:     hub,
		Done:    make(chan struct{}),
	}
}

// Run joins the duel room and blocks until the connection closes.
func (c *Client) Run() {
	go c.writeLoop()

	c.trySend(encode(Envelope{Type: MsgReady, DuelID: c.DuelID}))
	c.Hub.Join(c)

	c.readLoop()
}

// trySend queues msg without blocking. Send is never closed, so this is safe
// after disconnect.
func (c *Client) trySend(msg []byte) bool {
	select {
	case c.Send <- msg:
		return true
	default:
		return false
	}
}

func (c *Client) reply(typ string, data interface{}) {
	c.trySend(encode(Envelope{Type: typ, DuelID: c.DuelID, Data: data}))
}

func (c *Client) readLoop() {
	defer func() {
		c.Hub.OnDisconnect(c)
		_ = c.Conn.Close()
		close(c.Done)
	}()

	c.Conn.SetReadLimit(maxFrameSize)
	extend := func(string) error { return c.Conn.SetReadDeadline(time.Now().Add(pongWait)) }
	_ = extend("")
	c.Conn.SetPongHandler(extend)

	for {
		_, raw, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug("ws: read error", "client", c.ID, "duel_id", c.DuelID, "error", err)
			}
			return
		}
		var in inbound
		if err := json.Unmarshal(raw, &in); err != nil {
			c.reply(MsgError, ErrorPayload{Message: "invalid message"})
			continue
		}
		c.handle(in)
	}
}

func (c *Client) handle(in inbound) {
	switch in.Type {
	case MsgPing:
		c.reply(MsgPong, nil)
	case MsgSync:
		// catch-up for watchers that connected after results were pushed
		ctx, cancel := context.WithTimeout(context.Background(), snapshotTimeout)
		defer cancel()
		snap, err := c.Hub.snapshot(ctx, c.DuelID)
		if err != nil {
			logger.Warn("ws: snapshot failed", "duel_id", c.DuelID, "error", err)
			c.reply(MsgError, ErrorPayload{Message: "snapshot unavailable"})
			return
		}
		c.reply(MsgSnapshot, snap)
	default:
		c.reply(MsgError, ErrorPayload{Message: "unknown message type " + in.Type})
	}
}

func (c *Client) write(kind int, payload []byte) error {
	_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.Conn.WriteMessage(kind, payload)
}

func (c *Client) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	defer c.Conn.Close()

	for {
		select {
		case <-c.Done:
			_ = c.write(websocket.CloseMessage, nil)
			return
		case msg := <-c.Send:
			if err := c.write(websocket.TextMessage, msg); err != nil {
				logger.Debug("ws: write error", "client", c.ID, "error", err)
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
