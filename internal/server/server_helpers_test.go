package server_test

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/presence/internal/registry"
	"github.com/Tyrowin/presence/internal/server"
	"github.com/Tyrowin/presence/internal/testhelpers"
)

type testServer struct {
	*httptest.Server
	hub *server.Hub
}

// newTestServer starts a hub and an HTTP server around it. customize may
// adjust the default configuration.
func newTestServer(t *testing.T, customize func(cfg *server.Config)) *testServer {
	t.Helper()

	cfg := server.NewConfig()
	if customize != nil {
		customize(&cfg)
	}
	log := server.NewLogger("error", io.Discard)

	hub := server.NewHub(cfg, registry.New(), log)
	go hub.Run()

	ts := httptest.NewServer(server.SetupRoutes(server.NewHandler(hub, cfg, log), cfg))
	t.Cleanup(func() {
		ts.Close()
		_ = hub.Shutdown(2 * time.Second)
	})
	return &testServer{Server: ts, hub: hub}
}

func (s *testServer) wsURL() string {
	return testhelpers.WebSocketURL(s.URL, "/ws")
}

// createUser registers name through the control interface.
func (s *testServer) createUser(t *testing.T, name string) registry.User {
	t.Helper()
	resp, body := testhelpers.DoJSON(t, http.MethodPost, s.URL+"/new-user", map[string]string{"name": name})
	testhelpers.AssertStatusCode(t, resp, http.StatusOK)

	var created struct {
		Status string        `json:"status"`
		User   registry.User `json:"user"`
	}
	require.NoError(t, json.Unmarshal(body, &created))
	require.Equal(t, "ok", created.Status)
	return created.User
}

func (s *testServer) listUsers(t *testing.T) []registry.User {
	t.Helper()
	resp, body := testhelpers.DoJSON(t, http.MethodGet, s.URL+"/users", nil)
	testhelpers.AssertStatusCode(t, resp, http.StatusOK)

	var users []registry.User
	require.NoError(t, json.Unmarshal(body, &users))
	return users
}

// connect opens a connection, consumes the snapshot it is greeted with and
// the copy of that snapshot pushed to every already-connected peer.
func (s *testServer) connect(t *testing.T, peers ...*websocket.Conn) (*websocket.Conn, []registry.User) {
	t.Helper()
	conn := testhelpers.MustConnect(t, s.wsURL())

	var snapshot []registry.User
	testhelpers.ReadJSON(t, conn, &snapshot)
	for _, peer := range peers {
		var peerSnapshot []registry.User
		testhelpers.ReadJSON(t, peer, &peerSnapshot)
		require.Equal(t, snapshot, peerSnapshot)
	}
	return conn, snapshot
}

func sendMessage(user registry.User, text string) []byte {
	msg := map[string]any{
		"type": "send",
		"user": user,
		"text": text,
	}
	data, _ := json.Marshal(msg)
	return data
}

func readSnapshot(t *testing.T, conn *websocket.Conn) []registry.User {
	t.Helper()
	var users []registry.User
	testhelpers.ReadJSON(t, conn, &users)
	return users
}

// metricValue reads an unlabelled sample from the /metrics endpoint.
func (s *testServer) metricValue(t *testing.T, name string) float64 {
	t.Helper()
	resp, body := testhelpers.DoJSON(t, http.MethodGet, s.URL+"/metrics", nil)
	testhelpers.AssertStatusCode(t, resp, http.StatusOK)

	scanner := bufio.NewScanner(bytes.NewReader(body))
	for scanner.Scan() {
		value, ok := strings.CutPrefix(scanner.Text(), name+" ")
		if !ok {
			continue
		}
		v, err := strconv.ParseFloat(value, 64)
		require.NoError(t, err)
		return v
	}
	require.Failf(t, "metric not exported", "%s", name)
	return 0
}
