package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/KevinKickass/OpenRotoCore/internal/auth"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	authWait       = 10 * time.Second
	maxMessageSize = 8192
	sendBufferSize = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// clientMessage is what clients may send: {"type":"auth","token":"..."} first, then
// optionally {"type":"subscribe","machines":["RTX-1"]}.
type clientMessage struct {
	Type     string   `json:"type"`
	Token    string   `json:"token,omitempty"`
	Machines []string `json:"machines,omitempty"`
}

type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	logger   *zap.Logger
	identity *auth.Identity

	subMu    sync.RWMutex
	machines []string // empty means every machine
}

func (c *Client) remoteAddr() string {
	return c.conn.RemoteAddr().String()
}

// wants reports whether msg passes the client's machine subscription.
func (c *Client) wants(msg Message) bool {
	if msg.MachineID == "" {
		return true
	}
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	return len(c.machines) == 0 || slices.Contains(c.machines, msg.MachineID)
}

func (c *Client) readPump() {
	registered := false
	defer func() {
		if registered {
			c.hub.remove(c)
		} else {
			close(c.send)
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(authWait))

	var first clientMessage
	if err := c.conn.ReadJSON(&first); err != nil {
		c.logger.Debug("WebSocket closed before authentication", zap.Error(err))
		return
	}
	if first.Type != "auth" || first.Token == "" {
		c.sendControl("auth_failed", map[string]interface{}{"reason": "First message must be authentication"})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), authWait)
	identity, err := c.hub.validator.ValidateToken(ctx, first.Token, c.remoteAddr(), "")
	cancel()
	if err != nil {
		c.logger.Warn("WebSocket authentication failed",
			zap.Error(err),
			zap.String("remote_addr", c.remoteAddr()))
		c.sendControl("auth_failed", map[string]interface{}{"reason": "Invalid or expired token"})
		return
	}

	c.identity = identity
	c.sendControl("auth_success", map[string]interface{}{"permissions": identity.Permissions})
	c.logger.Info("WebSocket client authenticated",
		zap.String("remote_addr", c.remoteAddr()),
		zap.String("role", string(identity.Role)))

	if !c.hub.add(c) {
		return
	}
	registered = true

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg clientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn("WebSocket read error",
					zap.Error(err),
					zap.String("remote_addr", c.remoteAddr()))
			}
			return
		}
		c.handleMessage(msg)
	}
}

func (c *Client) handleMessage(msg clientMessage) {
	switch msg.Type {
	case "subscribe":
		c.subMu.Lock()
		c.machines = slices.Clone(msg.Machines)
		c.subMu.Unlock()
		c.logger.Debug("WebSocket subscription updated",
			zap.String("remote_addr", c.remoteAddr()),
			zap.Strings("machines", msg.Machines))
	default:
		c.logger.Debug("Ignoring client message",
			zap.String("remote_addr", c.remoteAddr()),
			zap.String("type", msg.Type))
	}
}

// sendControl queues a handshake reply for writePump.
func (c *Client) sendControl(msgType string, fields map[string]interface{}) {
	fields["type"] = msgType
	fields["timestamp"] = time.Now()
	data, err := json.Marshal(fields)
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ServeWs upgrades the request. The client joins the hub after authenticating.
func ServeWs(hub *Hub, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.logger.Error("WebSocket upgrade error",
			zap.Error(err),
			zap.String("remote_addr", r.RemoteAddr))
		return
	}

	client := &Client{
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		logger: hub.logger,
	}

	go client.writePump()
	go client.readPump()
}
