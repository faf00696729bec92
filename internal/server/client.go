// Package server manages individual WebSocket clients, handling read/write
// pumps, identity binding, and lifecycle control for each connection.
package server

import (
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Client is one real-time connection. It may declare a user identity through
// a send message; that binding is only read or written on the hub's event
// loop.
type Client struct {
	id     string
	conn   *websocket.Conn
	send   chan frame
	hub    *Hub
	addr   string
	userID string
	log    *slog.Logger
}

// NewClient creates a Client for an upgraded connection. The send queue is
// buffered according to the hub's configuration.
func NewClient(conn *websocket.Conn, hub *Hub, addr string) *Client {
	if conn != nil {
		conn.SetReadLimit(hub.cfg.MaxMessageSize)
	}
	id := uuid.NewString()

	return &Client{
		id:   id,
		conn: conn,
		send: make(chan frame, hub.cfg.SendBufferSize),
		hub:  hub,
		addr: addr,
		log:  hub.log.With("client", id, "addr", addr),
	}
}

// ID returns the connection id used in logs.
func (c *Client) ID() string {
	return c.id
}

// bind is the only writer of userID. The last declared id wins and is not
// checked against the registry.
func (c *Client) bind(userID string) {
	if c.userID != userID {
		c.log.Debug("Connection bound to user", "user", userID)
	}
	c.userID = userID
}

func (c *Client) boundUser() (string, bool) {
	return c.userID, c.userID != ""
}

// setupReadConnection configures read deadlines and pong handler for the WebSocket connection
func (c *Client) setupReadConnection() {
	timeout := c.hub.cfg.PongTimeout
	if err := c.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		c.log.Warn("Error setting initial read deadline", "error", err)
	}
	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			c.log.Warn("Error setting read deadline in pong handler", "error", err)
		}
		return nil
	})
}

// logReadError logs why the read loop ended.
func (c *Client) logReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		c.log.Warn("Message exceeded maximum size", "limit", c.hub.cfg.MaxMessageSize)
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived):
		c.log.Info("Client disconnected", "reason", err)
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF), isExpectedCloseError(err),
		websocket.IsCloseError(err, websocket.CloseAbnormalClosure):
		c.log.Info("Client connection closed", "reason", err)
	default:
		c.log.Warn("WebSocket read error", "error", err)
	}
}

// readPump forwards every data frame to the hub in arrival order. When the
// connection fails for any reason the client is unregistered exactly once.
func (c *Client) readPump() {
	defer func() {
		c.hub.leave(c)
		c.closeConnection()
	}()

	c.setupReadConnection()

	for {
		opcode, data, err := c.conn.ReadMessage()
		if err != nil {
			c.logReadError(err)
			return
		}
		if !c.hub.deliver(c, frame{opcode: opcode, data: data}) {
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(c.hub.cfg.pingPeriod())
	defer func() {
		ticker.Stop()
		c.closeConnection()
	}()

	for c.processWriteEvent(ticker) {
	}
}

// processWriteEvent waits for the next write event and returns false when the
// pump should stop processing.
func (c *Client) processWriteEvent(ticker *time.Ticker) bool {
	select {
	case f, ok := <-c.send:
		return c.handleFrame(f, ok)
	case <-ticker.C:
		return c.handlePing()
	}
}

// closeConnection safely closes the WebSocket connection with proper error handling
func (c *Client) closeConnection() {
	if err := c.conn.Close(); err != nil {
		if !isExpectedCloseError(err) {
			c.log.Warn("Error closing connection", "error", err)
		}
	}
}

// handleFrame writes one queued frame as its own WebSocket message and
// returns false if the connection should be closed.
func (c *Client) handleFrame(f frame, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.hub.cfg.WriteTimeout)); err != nil {
		c.log.Warn("Error setting write deadline", "error", err)
		return false
	}

	if !ok {
		return c.writeCloseMessage()
	}

	if err := c.conn.WriteMessage(f.opcode, f.data); err != nil {
		if !isExpectedCloseError(err) {
			c.log.Warn("Error writing message", "error", err)
		}
		return false
	}
	return true
}

// writeCloseMessage sends a close message to the client
func (c *Client) writeCloseMessage() bool {
	if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
		if !isExpectedCloseError(err) {
			c.log.Debug("Error writing close message", "error", err)
		}
	}
	return false
}

// handlePing sends a ping message to keep the connection alive
func (c *Client) handlePing() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.hub.cfg.WriteTimeout)); err != nil {
		c.log.Warn("Error setting write deadline for ping", "error", err)
		return false
	}
	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		c.log.Warn("Error writing ping message", "error", err)
		return false
	}
	return true
}
