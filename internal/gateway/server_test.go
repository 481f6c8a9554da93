package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	gorillaws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arosstale/pi-builder-sub000/internal/agent/registry"
	"github.com/arosstale/pi-builder-sub000/internal/common/config"
	"github.com/arosstale/pi-builder-sub000/internal/common/logger"
	"github.com/arosstale/pi-builder-sub000/internal/events/bus"
	"github.com/arosstale/pi-builder-sub000/internal/pty"
	"github.com/arosstale/pi-builder-sub000/internal/rpc"
	"github.com/arosstale/pi-builder-sub000/internal/session"
	"github.com/arosstale/pi-builder-sub000/internal/teams"
	"github.com/arosstale/pi-builder-sub000/internal/threads"
)

type testGateway struct {
	server *Server
	bus    *bus.MemoryEventBus
}

func startTestGateway(t *testing.T, mutate func(*config.Config)) *testGateway {
	t.Helper()

	log, err := logger.NewLogger(logger.Config{Level: "error", Format: "json"})
	require.NoError(t, err)

	cfg := &config.Config{}
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0
	cfg.Server.TrustLocalhost = true
	cfg.Session.DB = ":memory:"
	cfg.Session.TimeoutMs = 120000
	cfg.Session.Mode = "execute"
	cfg.Teams.BaseDir = t.TempDir()
	if mutate != nil {
		mutate(cfg)
	}

	eventBus := bus.NewMemoryEventBus(log)
	reg := registry.NewRegistry(log)
	sess := session.New(cfg, reg, eventBus, log)
	ptyMgr := pty.NewManager(eventBus, log)
	rpcMgr := rpc.NewManager(eventBus, log, rpc.WithDialer(
		func(ctx context.Context, cwd string, onEvent func(rpc.AgentEvent)) (rpc.Conn, error) {
			return nopConn{}, nil
		}))
	teamsDrv, err := teams.NewDriver(cfg.Teams.BaseDir, eventBus, log)
	require.NoError(t, err)

	srv := NewServer(cfg, Deps{
		Session:  sess,
		Registry: reg,
		Pty:      ptyMgr,
		RPC:      rpcMgr,
		Threads:  threads.NewEngine(rpcMgr, eventBus, log),
		Teams:    teamsDrv,
		Bus:      eventBus,
	}, log)
	require.NoError(t, srv.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
		teamsDrv.Close()
		ptyMgr.CloseAll()
	})

	return &testGateway{server: srv, bus: eventBus}
}

type nopConn struct{}

func (nopConn) Prompt(context.Context, string) error { return nil }
func (nopConn) Cancel(context.Context) error         { return nil }
func (nopConn) Close() error                         { return nil }

func dialWS(t *testing.T, g *testGateway, query string) *gorillaws.Conn {
	t.Helper()
	url := "ws://" + g.server.Addr() + "/ws" + query
	conn, _, err := gorillaws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *gorillaws.Conn) map[string]interface{} {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var frame map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &frame))
	return frame
}

func sendFrame(t *testing.T, conn *gorillaws.Conn, frame map[string]interface{}) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(frame))
}

func TestHelloProtocol(t *testing.T) {
	g := startTestGateway(t, nil)
	conn := dialWS(t, g, "")

	frame := readFrame(t, conn)
	assert.Equal(t, "hello", frame["type"])
	sessionID, ok := frame["sessionId"].(string)
	assert.True(t, ok)
	assert.NotEmpty(t, sessionID)
}

func TestEmptyHistoryReply(t *testing.T) {
	g := startTestGateway(t, nil)
	conn := dialWS(t, g, "")
	readFrame(t, conn) // hello

	sendFrame(t, conn, map[string]interface{}{"type": "history", "id": "h1"})
	frame := readFrame(t, conn)
	assert.Equal(t, "history", frame["type"])
	assert.Equal(t, "h1", frame["id"])
	messages, ok := frame["messages"].([]interface{})
	assert.True(t, ok)
	assert.Empty(t, messages)
}

func TestUnknownMethod(t *testing.T) {
	g := startTestGateway(t, nil)
	conn := dialWS(t, g, "")
	readFrame(t, conn) // hello

	sendFrame(t, conn, map[string]interface{}{"type": "frobnicate", "id": "x1"})
	frame := readFrame(t, conn)
	assert.Equal(t, "error", frame["type"])
	assert.Equal(t, "x1", frame["id"])
	assert.Equal(t, "Unknown method: frobnicate", frame["message"])
}

func TestInvalidJSON(t *testing.T) {
	g := startTestGateway(t, nil)
	conn := dialWS(t, g, "")
	readFrame(t, conn) // hello

	require.NoError(t, conn.WriteMessage(gorillaws.TextMessage, []byte("{not json")))
	frame := readFrame(t, conn)
	assert.Equal(t, "error", frame["type"])
	assert.Equal(t, "Invalid JSON", frame["message"])
	_, hasID := frame["id"]
	assert.False(t, hasID)
}

func TestEmptySendRejected(t *testing.T) {
	g := startTestGateway(t, nil)
	conn := dialWS(t, g, "")
	readFrame(t, conn) // hello

	sendFrame(t, conn, map[string]interface{}{"type": "send", "id": "s1", "message": "   "})
	frame := readFrame(t, conn)
	assert.Equal(t, "error", frame["type"])
	assert.Equal(t, "s1", frame["id"])
	assert.NotEmpty(t, frame["message"])
}

func TestMultiClientIndependentReplies(t *testing.T) {
	g := startTestGateway(t, nil)
	c1 := dialWS(t, g, "")
	c2 := dialWS(t, g, "")
	readFrame(t, c1) // hello
	readFrame(t, c2) // hello

	sendFrame(t, c1, map[string]interface{}{"type": "history", "id": "m1"})
	sendFrame(t, c2, map[string]interface{}{"type": "history", "id": "m2"})

	f1 := readFrame(t, c1)
	assert.Equal(t, "history", f1["type"])
	assert.Equal(t, "m1", f1["id"])

	f2 := readFrame(t, c2)
	assert.Equal(t, "history", f2["type"])
	assert.Equal(t, "m2", f2["id"])
}

func TestHealthEndpoint(t *testing.T) {
	g := startTestGateway(t, nil)
	conn := dialWS(t, g, "")
	readFrame(t, conn) // hello

	resp, err := http.Get("http://" + g.server.Addr() + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, float64(1), body["clients"])
}

func TestIndexServesUIWithIsolationHeaders(t *testing.T) {
	g := startTestGateway(t, nil)

	resp, err := http.Get("http://" + g.server.Addr() + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "same-origin", resp.Header.Get("Cross-Origin-Opener-Policy"))
	assert.Equal(t, "require-corp", resp.Header.Get("Cross-Origin-Embedder-Policy"))

	// Unknown paths 404.
	resp404, err := http.Get("http://" + g.server.Addr() + "/nope")
	require.NoError(t, err)
	defer resp404.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp404.StatusCode)
}

func TestBridgeRebroadcast(t *testing.T) {
	g := startTestGateway(t, nil)
	conn := dialWS(t, g, "")
	readFrame(t, conn) // hello

	body := bytes.NewBufferString(`{"type": "deploy_done", "sha": "abc123"}`)
	resp, err := http.Post("http://"+g.server.Addr()+"/bridge", "application/json", body)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	frame := readFrame(t, conn)
	assert.Equal(t, "bridge_event", frame["type"])
	assert.Equal(t, "deploy_done", frame["event"])
	assert.Equal(t, "abc123", frame["sha"])

	// Malformed bodies are rejected.
	bad, err := http.Post("http://"+g.server.Addr()+"/bridge", "application/json",
		bytes.NewBufferString("{oops"))
	require.NoError(t, err)
	defer bad.Body.Close()
	assert.Equal(t, http.StatusBadRequest, bad.StatusCode)
}

func TestLocalhostAuthBypass(t *testing.T) {
	g := startTestGateway(t, func(cfg *config.Config) {
		cfg.Server.AuthToken = "abc"
	})

	// Loopback HTTP without a token passes.
	resp, err := http.Get("http://" + g.server.Addr() + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Loopback WS without a token gets hello.
	conn := dialWS(t, g, "")
	frame := readFrame(t, conn)
	assert.Equal(t, "hello", frame["type"])
}

func TestAuthEnforcedWithoutLocalhostTrust(t *testing.T) {
	g := startTestGateway(t, func(cfg *config.Config) {
		cfg.Server.AuthToken = "abc"
		cfg.Server.TrustLocalhost = false
	})

	// HTTP without the token is rejected.
	resp, err := http.Get("http://" + g.server.Addr() + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// The bearer header passes.
	req, err := http.NewRequest(http.MethodGet, "http://"+g.server.Addr()+"/health", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer abc")
	okResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer okResp.Body.Close()
	assert.Equal(t, http.StatusOK, okResp.StatusCode)

	// WS without the token closes with 4001.
	conn, _, err := gorillaws.DefaultDialer.Dial("ws://"+g.server.Addr()+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err = conn.ReadMessage()
	require.Error(t, err)
	closeErr, ok := err.(*gorillaws.CloseError)
	require.True(t, ok, "expected close error, got %v", err)
	assert.Equal(t, 4001, closeErr.Code)

	// The query token passes.
	authed := dialWS(t, g, "?token=abc")
	frame := readFrame(t, authed)
	assert.Equal(t, "hello", frame["type"])
}

func TestRPCFramesRoundTrip(t *testing.T) {
	g := startTestGateway(t, nil)
	conn := dialWS(t, g, "")
	readFrame(t, conn) // hello

	sendFrame(t, conn, map[string]interface{}{
		"type": "rpc_new", "id": "r1", "sessionId": "dev", "cwd": t.TempDir(),
	})
	frame := readFrame(t, conn)
	require.Equal(t, "rpc_created", frame["type"])
	assert.Equal(t, "r1", frame["id"])

	sendFrame(t, conn, map[string]interface{}{"type": "rpc_list", "id": "r2"})
	frame = readFrame(t, conn)
	require.Equal(t, "rpc_sessions", frame["type"])
	sessions, ok := frame["sessions"].([]interface{})
	require.True(t, ok)
	assert.Len(t, sessions, 1)

	sendFrame(t, conn, map[string]interface{}{"type": "rpc_kill", "id": "r3", "sessionId": "dev"})
	// rpc.killed broadcast and the ok reply race; accept either order.
	sawOK := false
	sawKilled := false
	for i := 0; i < 2; i++ {
		frame = readFrame(t, conn)
		switch frame["type"] {
		case "ok":
			sawOK = true
		case "rpc_killed":
			sawKilled = true
		}
	}
	assert.True(t, sawOK)
	assert.True(t, sawKilled)
}

func TestTeamsFramesRoundTrip(t *testing.T) {
	g := startTestGateway(t, nil)
	conn := dialWS(t, g, "")
	readFrame(t, conn) // hello

	sendFrame(t, conn, map[string]interface{}{
		"type": "teams_create", "id": "t1", "preset": "review",
	})
	var created map[string]interface{}
	// The direct reply and the broadcast race; take the one carrying our id.
	for i := 0; i < 2; i++ {
		frame := readFrame(t, conn)
		require.Equal(t, "teams_created", frame["type"])
		if frame["id"] == "t1" {
			created = frame
		}
	}
	require.NotNil(t, created)
	cfg, ok := created["config"].(map[string]interface{})
	require.True(t, ok)
	name, _ := cfg["name"].(string)
	assert.Regexp(t, `^review-team-`, name)

	sendFrame(t, conn, map[string]interface{}{"type": "teams_list", "id": "t2"})
	frame := readFrame(t, conn)
	require.Equal(t, "teams_list", frame["type"])
	teamsMap, ok := frame["teams"].(map[string]interface{})
	require.True(t, ok)
	assert.Contains(t, teamsMap, name)
}

func TestShutdownDisconnectsClients(t *testing.T) {
	g := startTestGateway(t, nil)
	conn := dialWS(t, g, "")
	readFrame(t, conn) // hello

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, g.server.Shutdown(ctx))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)

	_, err = http.Get(fmt.Sprintf("http://%s/health", g.server.Addr()))
	assert.Error(t, err)
}
