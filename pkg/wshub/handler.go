package wshub

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// The upgrader accepts any origin. internal/httpserver's cors.Handler
	// in front of this route only sets CORS response headers; it does not
	// reject a cross-origin upgrade request.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// clientFrame is one inbound message on the control channel: join/leave a
// room, or a pong reply to our heartbeat ping.
type clientFrame struct {
	Action       string `json:"action"`
	ClusterID    int64  `json:"cluster_id"`
	Namespace    string `json:"namespace,omitempty"`
	ResourceType string `json:"resource_type,omitempty"`
}

// Handler upgrades an authenticated HTTP request to a WebSocket connection
// and runs its read pump until the connection closes.
type Handler struct {
	hub    *Hub
	logger *slog.Logger
}

func NewHandler(hub *Hub, logger *slog.Logger) *Handler {
	return &Handler{hub: hub, logger: logger}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	id := uuid.New().String()
	if !h.hub.Accept(ws, id) {
		return
	}
	defer h.hub.Disconnect(id)

	h.readPump(id, ws)
}

// readPump blocks reading control frames until the client disconnects or
// sends a malformed frame; the hub's own heartbeat loop independently
// disconnects connections that go quiet, so this loop only needs to handle
// graceful client-initiated closes and explicit room membership changes.
func (h *Handler) readPump(id string, ws *websocket.Conn) {
	for {
		var frame clientFrame
		if err := ws.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("websocket read error", "conn_id", id, "error", err)
			}
			return
		}

		h.hub.Touch(id)

		switch frame.Action {
		case "join_cluster":
			h.hub.JoinCluster(id, frame.ClusterID)
		case "leave_cluster":
			h.hub.LeaveCluster(id, frame.ClusterID)
		case "join_namespace":
			h.hub.JoinNamespace(id, frame.ClusterID, frame.Namespace)
		case "leave_namespace":
			h.hub.LeaveNamespace(id, frame.ClusterID, frame.Namespace)
		case "join_kind":
			h.hub.JoinKind(id, frame.ClusterID, frame.ResourceType)
		case "leave_kind":
			h.hub.LeaveKind(id, frame.ClusterID, frame.ResourceType)
		case "pong":
			// Touch above already refreshed the heartbeat clock.
		default:
			h.logger.Debug("unknown websocket action", "conn_id", id, "action", frame.Action)
		}
	}
}
