// Package server coordinates connection lifecycle, identity binding, message
// relay and registry access for the presence service via the Hub type.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/Tyrowin/presence/internal/registry"
)

// ErrHubStopped is returned by control operations once the hub has shut down.
var ErrHubStopped = errors.New("hub stopped")

type inboundFrame struct {
	client *Client
	frame  frame
}

type call struct {
	fn   func()
	done chan struct{}
}

// Hub owns the user registry and the set of open connections. Every
// connection event and every registry operation runs on the goroutine
// executing Run, one at a time and to completion, so neither the registry nor
// the client set needs a lock.
type Hub struct {
	log        *slog.Logger
	cfg        Config
	users      *registry.Registry
	clients    map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	inbound    chan inboundFrame
	calls      chan call
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
}

// NewHub creates a Hub serving the given registry. The returned Hub does
// nothing until Run is started.
func NewHub(cfg Config, users *registry.Registry, log *slog.Logger) *Hub {
	RegisterMetrics()
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		log:        log,
		cfg:        sanitizeConfig(cfg),
		users:      users,
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		inbound:    make(chan inboundFrame),
		calls:      make(chan call),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

// Run starts the hub's event loop. It should be called in its own goroutine
// and returns after Shutdown.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			h.handleOpen(client)

		case client := <-h.unregister:
			h.handleClose(client)

		case in := <-h.inbound:
			h.handleMessage(in.client, in.frame)

		case c := <-h.calls:
			c.fn()
			usersGauge.Set(float64(h.users.Len()))
			close(c.done)
		}
	}
}

// Register hands a freshly upgraded client to the hub, which starts its pumps
// and pushes the current snapshot. It returns false if the hub has stopped.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.ctx.Done():
		return false
	}
}

func (h *Hub) deliver(client *Client, f frame) bool {
	select {
	case h.inbound <- inboundFrame{client: client, frame: f}:
		return true
	case <-h.ctx.Done():
		return false
	}
}

func (h *Hub) leave(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.ctx.Done():
	}
}

func (h *Hub) handleOpen(client *Client) {
	if client == nil {
		h.log.Warn("Received nil client registration; skipping")
		return
	}

	h.clients[client] = struct{}{}
	connectionsGauge.Set(float64(len(h.clients)))
	client.log.Info("Client registered", "total", len(h.clients))

	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		client.writePump()
	}()
	go func() {
		defer h.wg.Done()
		client.readPump()
	}()

	h.relaySnapshot()
}

func (h *Hub) handleMessage(client *Client, f frame) {
	if _, ok := h.clients[client]; !ok {
		return
	}

	msg, err := DecodeInbound(f.data)
	if err != nil {
		invalidMessages.Inc()
		client.log.Warn("Invalid message", "error", err)
		return
	}

	switch m := msg.(type) {
	case Send:
		if m.UserID != "" {
			client.bind(m.UserID)
		}
		client.log.Debug("Relaying message", "bytes", len(f.data))
		h.relay(f, "message")
	case Unknown:
		client.log.Debug("Ignoring message", "type", m.Type)
	}
}

// handleClose deregisters the client before anything is broadcast, so a
// closing client never receives its own departure.
func (h *Hub) handleClose(client *Client) {
	if _, ok := h.clients[client]; !ok {
		return
	}

	delete(h.clients, client)
	close(client.send)
	connectionsGauge.Set(float64(len(h.clients)))
	client.log.Info("Client unregistered", "total", len(h.clients))

	userID, bound := client.boundUser()
	if !bound {
		return
	}
	user, removed := h.users.Remove(userID)
	if !removed {
		return
	}
	usersGauge.Set(float64(h.users.Len()))
	h.log.Info("User exited the chat", "id", user.ID, "name", user.Name)
	h.relaySnapshot()
}

func (h *Hub) relaySnapshot() {
	data, err := json.Marshal(h.users.List())
	if err != nil {
		h.log.Error("Encoding registry snapshot", "error", err)
		return
	}
	h.relay(textFrame(data), "snapshot")
}

// relay queues f on every open client without blocking. A client whose queue
// is full misses this frame; others are unaffected.
func (h *Hub) relay(f frame, kind string) {
	for client := range h.clients {
		if h.trySend(client, f) {
			relayedFrames.WithLabelValues(kind).Inc()
			continue
		}
		droppedFrames.Inc()
		client.log.Warn("Send queue full; frame dropped", "kind", kind)
	}
}

func (h *Hub) trySend(client *Client, f frame) bool {
	select {
	case client.send <- f:
		return true
	default:
		return false
	}
}

// do runs fn on the event loop and waits for it to finish.
func (h *Hub) do(ctx context.Context, fn func()) error {
	c := call{fn: fn, done: make(chan struct{})}
	select {
	case h.calls <- c:
	case <-h.ctx.Done():
		return ErrHubStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	<-c.done
	return nil
}

// CreateUser adds a user to the registry.
func (h *Hub) CreateUser(ctx context.Context, name string) (registry.User, error) {
	var (
		user registry.User
		err  error
	)
	if callErr := h.do(ctx, func() { user, err = h.users.Create(name) }); callErr != nil {
		return registry.User{}, callErr
	}
	if err == nil {
		h.log.Info("User entered the chat", "id", user.ID, "name", user.Name)
	}
	return user, err
}

// Users returns the registry snapshot in join order.
func (h *Hub) Users(ctx context.Context) ([]registry.User, error) {
	var users []registry.User
	if err := h.do(ctx, func() { users = h.users.List() }); err != nil {
		return nil, err
	}
	return users, nil
}

// User looks up a single user.
func (h *Hub) User(ctx context.Context, id string) (registry.User, error) {
	var (
		user registry.User
		err  error
	)
	if callErr := h.do(ctx, func() { user, err = h.users.Get(id) }); callErr != nil {
		return registry.User{}, callErr
	}
	return user, err
}

// RenameUser changes a user's name without checking it against other users.
func (h *Hub) RenameUser(ctx context.Context, id, name string) (registry.User, error) {
	var (
		user registry.User
		err  error
	)
	if callErr := h.do(ctx, func() { user, err = h.users.Update(id, name) }); callErr != nil {
		return registry.User{}, callErr
	}
	return user, err
}

// DeleteUser removes a user and reports whether it existed. Unlike a
// disconnect, an explicit delete is not announced to connected clients.
func (h *Hub) DeleteUser(ctx context.Context, id string) (bool, error) {
	var removed bool
	if err := h.do(ctx, func() { _, removed = h.users.Remove(id) }); err != nil {
		return false, err
	}
	if removed {
		h.log.Info("User deleted", "id", id)
	}
	return removed, nil
}

// ConnectionCount returns the number of open connections.
func (h *Hub) ConnectionCount(ctx context.Context) (int, error) {
	var n int
	if err := h.do(ctx, func() { n = len(h.clients) }); err != nil {
		return 0, err
	}
	return n, nil
}

// shutdownClients closes every connection still registered.
func (h *Hub) shutdownClients() {
	h.log.Info("Shutting down all client connections...")

	clients := lo.Keys(h.clients)
	for _, client := range clients {
		delete(h.clients, client)
		close(client.send)
		if client.conn != nil {
			if err := client.conn.Close(); err != nil && !isExpectedCloseError(err) {
				client.log.Warn("Error closing client connection", "error", err)
			}
		}
	}
	connectionsGauge.Set(0)

	h.log.Info("Closed client connections", "count", len(clients))
}

// Shutdown stops the event loop and waits for all client goroutines to exit,
// or for the timeout to elapse.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.log.Info("Initiating hub shutdown...")

	h.cancel()
	<-h.done

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.log.Info("Hub shutdown completed successfully")
		return nil
	case <-time.After(timeout):
		h.log.Warn("Hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
