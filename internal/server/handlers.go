// Package server exposes HTTP handlers for the registry control interface,
// WebSocket upgrades, health checks, and the built-in test page.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"

	"github.com/Tyrowin/presence/internal/registry"
)

// Handler serves the control interface and the real-time endpoint on top of
// a running Hub.
type Handler struct {
	hub      *Hub
	log      *slog.Logger
	validate *validator.Validate
	upgrader websocket.Upgrader
}

type createUserRequest struct {
	Name string `json:"name" validate:"required"`
}

// renameUserRequest carries no validation: any name, the empty one included,
// replaces the current name.
type renameUserRequest struct {
	Name string `json:"name"`
}

type createUserResponse struct {
	Status string        `json:"status"`
	User   registry.User `json:"user"`
}

type statusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type healthResponse struct {
	Status      string `json:"status"`
	Service     string `json:"service"`
	Connections int    `json:"connections"`
}

// NewHandler creates a Handler. Origins in cfg restrict which browser pages
// may open a WebSocket.
func NewHandler(hub *Hub, cfg Config, log *slog.Logger) *Handler {
	policy := newOriginPolicy(cfg.Origins(), log)
	return &Handler{
		hub:      hub,
		log:      log,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     policy.checkOrigin,
		},
	}
}

// WebSocket upgrades the request and registers the connection with the hub.
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("WebSocket upgrade failed", "addr", r.RemoteAddr, "error", err)
		return
	}

	client := NewClient(conn, h.hub, r.RemoteAddr)
	if !h.hub.Register(client) {
		client.closeConnection()
	}
}

// Root serves WebSocket upgrades on "/" and the health check otherwise.
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	if websocket.IsWebSocketUpgrade(r) {
		h.WebSocket(w, r)
		return
	}
	h.Health(w, r)
}

// CreateUser handles POST /new-user.
//
// A missing or empty name is answered with 400 before the registry is
// consulted, even though the registry classes it as a conflict. 409 is kept
// for a name that is already taken.
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Name is required")
		return
	}

	user, err := h.hub.CreateUser(r.Context(), req.Name)
	switch {
	case errors.Is(err, registry.ErrConflict):
		h.writeError(w, http.StatusConflict, "This name is already taken!")
	case err != nil:
		h.hubUnavailable(w, err)
	default:
		h.writeJSON(w, http.StatusOK, createUserResponse{Status: "ok", User: user})
	}
}

// ListUsers handles GET /users.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.hub.Users(r.Context())
	if err != nil {
		h.hubUnavailable(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, users)
}

// GetUser handles GET /user/{id}.
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.hub.User(r.Context(), chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, registry.ErrNotFound):
		h.writeError(w, http.StatusNotFound, "User not found!")
	case err != nil:
		h.hubUnavailable(w, err)
	default:
		h.writeJSON(w, http.StatusOK, user)
	}
}

// UpdateUser handles PUT /user/{id}. The only failure besides an unreadable
// body is an unknown id.
func (h *Handler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	var req renameUserRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	user, err := h.hub.RenameUser(r.Context(), chi.URLParam(r, "id"), req.Name)
	switch {
	case errors.Is(err, registry.ErrNotFound):
		h.writeError(w, http.StatusNotFound, "User not found!")
	case err != nil:
		h.hubUnavailable(w, err)
	default:
		h.writeJSON(w, http.StatusOK, user)
	}
}

// DeleteUser handles DELETE /user/{id}.
func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	removed, err := h.hub.DeleteUser(r.Context(), chi.URLParam(r, "id"))
	switch {
	case err != nil:
		h.hubUnavailable(w, err)
	case !removed:
		h.writeError(w, http.StatusNotFound, "User not found")
	default:
		h.writeJSON(w, http.StatusOK, statusResponse{Status: "ok", Message: "User deleted successfully!"})
	}
}

// Health reports that the service is up along with the open connection count.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	n, err := h.hub.ConnectionCount(r.Context())
	if err != nil {
		h.hubUnavailable(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Service: "presence", Connections: n})
}

// decodeJSON reads a JSON body into v whatever its declared content type.
func (h *Handler) decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.writeError(w, http.StatusBadRequest, "Request body must be a JSON object with a name")
		return false
	}
	return true
}

func (h *Handler) hubUnavailable(w http.ResponseWriter, err error) {
	h.log.Warn("Hub call failed", "error", err)
	h.writeError(w, http.StatusServiceUnavailable, "Service is shutting down")
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Warn("Error writing JSON response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, statusResponse{Status: "error", Message: message})
}

// TestPage serves an HTML page for trying the service from a browser:
// pick a name, then chat with everyone connected.
func (h *Handler) TestPage(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	if _, err := fmt.Fprint(w, testPage); err != nil {
		h.log.Warn("Error writing HTML response", "error", err)
	}
}

const testPage = `<!DOCTYPE html>
<html>
<head>
    <title>Presence Chat Test</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        #layout { display: flex; gap: 20px; }
        #messages {
            border: 1px solid #ccc;
            height: 300px;
            width: 480px;
            padding: 10px;
            overflow-y: scroll;
            background-color: #f9f9f9;
        }
        #users { border: 1px solid #ccc; width: 160px; padding: 10px; }
        input[type="text"] { width: 300px; padding: 5px; margin-right: 10px; }
        button { padding: 5px 15px; background-color: #007cba; color: white; border: none; cursor: pointer; }
        button:hover { background-color: #005a87; }
        .error { color: #721c24; }
    </style>
</head>
<body>
    <h1>Presence Chat Test</h1>

    <div id="join">
        <input type="text" id="nameInput" placeholder="Choose a name...">
        <button onclick="join()">Join</button>
        <span id="joinError" class="error"></span>
    </div>

    <div id="chat" style="display:none">
        <div>
            <input type="text" id="messageInput" placeholder="Type a message...">
            <button onclick="sendMessage()">Send</button>
        </div>
        <div id="layout">
            <div id="messages"></div>
            <ul id="users"></ul>
        </div>
    </div>

    <script>
        let ws = null;
        let me = null;
        const messagesDiv = document.getElementById('messages');
        const usersList = document.getElementById('users');
        const messageInput = document.getElementById('messageInput');

        function addLine(text, color) {
            const el = document.createElement('div');
            el.style.margin = '5px 0';
            el.style.color = color || 'black';
            el.textContent = text;
            messagesDiv.appendChild(el);
            messagesDiv.scrollTop = messagesDiv.scrollHeight;
        }

        function showUsers(users) {
            usersList.innerHTML = '';
            users.forEach(function(u) {
                const li = document.createElement('li');
                li.textContent = u.id === (me && me.id) ? u.name + ' (you)' : u.name;
                usersList.appendChild(li);
            });
        }

        async function join() {
            const name = document.getElementById('nameInput').value.trim();
            const resp = await fetch('/new-user', { method: 'POST', body: JSON.stringify({ name: name }) });
            const body = await resp.json();
            if (body.status !== 'ok') {
                document.getElementById('joinError').textContent = body.message;
                return;
            }
            me = body.user;
            document.getElementById('join').style.display = 'none';
            document.getElementById('chat').style.display = 'block';
            connect();
        }

        function connect() {
            const scheme = location.protocol === 'https:' ? 'wss://' : 'ws://';
            ws = new WebSocket(scheme + location.host + '/ws');

            ws.onopen = function() {
                ws.send(JSON.stringify({ type: 'send', user: me, text: 'joined the chat' }));
            };

            ws.onmessage = function(event) {
                const data = JSON.parse(event.data);
                if (Array.isArray(data)) {
                    showUsers(data);
                    return;
                }
                const who = data.user ? data.user.name : 'unknown';
                addLine(who + ': ' + (data.text || ''), data.user && me && data.user.id === me.id ? 'blue' : 'green');
            };

            ws.onclose = function() {
                addLine('Connection closed', 'gray');
                ws = null;
            };
        }

        function sendMessage() {
            const text = messageInput.value.trim();
            if (text && ws && ws.readyState === WebSocket.OPEN) {
                ws.send(JSON.stringify({ type: 'send', user: me, text: text }));
                messageInput.value = '';
            }
        }

        messageInput.addEventListener('keypress', function(e) {
            if (e.key === 'Enter') {
                sendMessage();
            }
        });
    </script>
</body>
</html>`
