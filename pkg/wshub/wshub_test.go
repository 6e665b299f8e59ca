package wshub

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var testUpgrader = websocket.Upgrader{}

func newTestServer(t *testing.T, h *Hub) (*httptest.Server, string) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		id := r.URL.Query().Get("id")
		if !h.Accept(ws, id) {
			return
		}
		// Keep the connection open until the test closes it.
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}))
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	return srv, wsURL
}

func dial(t *testing.T, wsURL, id string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL+"?id="+id, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func TestAccept_RegistersConnectionAndSendsStatus(t *testing.T) {
	h := New(10, slog.New(slog.NewTextHandler(io.Discard, nil)))
	srv, wsURL := newTestServer(t, h)
	defer srv.Close()

	conn := dial(t, wsURL, "c1")
	defer conn.Close()

	var frame map[string]any
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("reading status frame: %v", err)
	}
	if frame["type"] != "status" {
		t.Errorf("first frame type = %v, want status", frame["type"])
	}

	waitForCondition(t, func() bool { return h.Stats().ActiveConnections == 1 })
}

func TestAccept_RejectsBeyondCapacity(t *testing.T) {
	h := New(1, slog.New(slog.NewTextHandler(io.Discard, nil)))
	srv, wsURL := newTestServer(t, h)
	defer srv.Close()

	conn1 := dial(t, wsURL, "c1")
	defer conn1.Close()
	var frame map[string]any
	_ = conn1.ReadJSON(&frame)

	waitForCondition(t, func() bool { return h.Stats().ActiveConnections == 1 })

	conn2 := dial(t, wsURL, "c2")
	defer conn2.Close()

	conn2.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn2.ReadMessage()
	if err == nil {
		t.Fatal("second connection beyond capacity should be closed by the server")
	}
}

func TestJoinLeaveRooms_NoOpWithoutRegisteredConn(t *testing.T) {
	h := New(10, slog.New(slog.NewTextHandler(io.Discard, nil)))
	// No Accept call happened for "ghost"; joins must be silently ignored.
	h.JoinCluster("ghost", 1)
	h.JoinNamespace("ghost", 1, "default")
	h.JoinKind("ghost", 1, "pods")

	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.clusterRoom) != 0 || len(h.nsRoom) != 0 || len(h.kindRoom) != 0 {
		t.Error("joins for an unregistered connection id should be no-ops")
	}
}

func TestBroadcastToCluster_DeliversToRoomMembersOnly(t *testing.T) {
	h := New(10, slog.New(slog.NewTextHandler(io.Discard, nil)))
	srv, wsURL := newTestServer(t, h)
	defer srv.Close()

	connA := dial(t, wsURL, "a")
	defer connA.Close()
	connB := dial(t, wsURL, "b")
	defer connB.Close()

	var discard map[string]any
	_ = connA.ReadJSON(&discard)
	_ = connB.ReadJSON(&discard)

	waitForCondition(t, func() bool { return h.Stats().ActiveConnections == 2 })

	h.JoinCluster("a", 100)

	h.BroadcastToCluster(100, ResourceUpdate{ResourceType: "pods", ClusterID: 100})

	var got map[string]any
	connA.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := connA.ReadJSON(&got); err != nil {
		t.Fatalf("member of the room should receive the broadcast: %v", err)
	}
	if got["type"] != "resource_update" {
		t.Errorf("frame type = %v, want resource_update", got["type"])
	}

	connB.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	if _, _, err := connB.ReadMessage(); err == nil {
		t.Error("non-member should not receive the cluster broadcast")
	}
}

func TestDisconnect_RemovesFromEveryRoom(t *testing.T) {
	h := New(10, slog.New(slog.NewTextHandler(io.Discard, nil)))
	srv, wsURL := newTestServer(t, h)
	defer srv.Close()

	conn := dial(t, wsURL, "a")
	var discard map[string]any
	_ = conn.ReadJSON(&discard)
	waitForCondition(t, func() bool { return h.Stats().ActiveConnections == 1 })

	h.JoinCluster("a", 1)
	h.JoinNamespace("a", 1, "default")
	h.JoinKind("a", 1, "pods")

	h.Disconnect("a")

	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.conns) != 0 || len(h.clusterRoom) != 0 || len(h.nsRoom) != 0 || len(h.kindRoom) != 0 {
		t.Error("Disconnect should remove the connection from every room and the conn map")
	}
}

func TestDisconnect_UnknownIDIsNoOp(t *testing.T) {
	h := New(10, slog.New(slog.NewTextHandler(io.Discard, nil)))
	h.Disconnect("never-existed")
}

func waitForCondition(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
