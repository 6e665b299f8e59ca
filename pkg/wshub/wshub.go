// Package wshub implements the WebSocket Hub (C6): a bounded connection
// registry with three room kinds (cluster, namespace, kind) and a
// heartbeat task that evicts stale connections. One mutex guards every
// room and connection map; membership mutation is atomic with respect to
// broadcast snapshotting, and a disconnect always removes a connection
// from every room before the underlying socket is closed.
package wshub

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/semaphore"
)

const (
	// DefaultMaxConnections bounds total live connections; beyond this new
	// sockets are accepted then immediately closed with code 1013.
	DefaultMaxConnections = 1000
	// broadcastConcurrency bounds in-flight broadcast sends across the
	// whole hub; every broadcast call shares the same window.
	broadcastConcurrency = 50
	// HeartbeatInterval is how often a ping frame is pushed to every
	// connection; a connection silent for 2x this is disconnected.
	HeartbeatInterval = 30 * time.Second
)

type namespaceKey struct {
	ClusterID int64
	Namespace string
}

type kindKey struct {
	ClusterID int64
	Kind      string
}

// conn wraps one live WebSocket connection. Writes are serialized through
// writeMu since gorilla/websocket forbids concurrent writers.
type conn struct {
	id              string
	ws              *websocket.Conn
	writeMu         sync.Mutex
	lastHeartbeatAt time.Time
}

func (c *conn) send(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteJSON(v)
}

// Hub is the process-wide WebSocket registry.
type Hub struct {
	maxConnections int
	logger         *slog.Logger
	sem            *semaphore.Weighted

	mu          sync.RWMutex
	conns       map[string]*conn
	clusterRoom map[int64]map[string]struct{}
	nsRoom      map[namespaceKey]map[string]struct{}
	kindRoom    map[kindKey]map[string]struct{}
}

// New builds an empty Hub.
func New(maxConnections int, logger *slog.Logger) *Hub {
	if maxConnections <= 0 {
		maxConnections = DefaultMaxConnections
	}
	return &Hub{
		maxConnections: maxConnections,
		logger:         logger,
		sem:            semaphore.NewWeighted(broadcastConcurrency),
		conns:          make(map[string]*conn),
		clusterRoom:    make(map[int64]map[string]struct{}),
		nsRoom:         make(map[namespaceKey]map[string]struct{}),
		kindRoom:       make(map[kindKey]map[string]struct{}),
	}
}

// Accept registers ws under id, or — if the hub is at capacity — closes it
// immediately with code 1013. Returns false in the latter case.
func (h *Hub) Accept(ws *websocket.Conn, id string) bool {
	h.mu.Lock()
	if len(h.conns) >= h.maxConnections {
		h.mu.Unlock()
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(1013, "Try Again Later"),
			time.Now().Add(time.Second))
		_ = ws.Close()
		return false
	}
	c := &conn{id: id, ws: ws, lastHeartbeatAt: time.Now()}
	h.conns[id] = c
	h.mu.Unlock()

	_ = c.send(map[string]any{"type": "status", "data": map[string]any{"status": "connected"}})
	return true
}

// Disconnect atomically removes id from every room before closing the
// socket — never the reverse, so a concurrent broadcast can never address
// a half-live connection.
func (h *Hub) Disconnect(id string) {
	h.mu.Lock()
	c, exists := h.conns[id]
	if !exists {
		h.mu.Unlock()
		return
	}
	delete(h.conns, id)
	for cid, members := range h.clusterRoom {
		delete(members, id)
		if len(members) == 0 {
			delete(h.clusterRoom, cid)
		}
	}
	for k, members := range h.nsRoom {
		delete(members, id)
		if len(members) == 0 {
			delete(h.nsRoom, k)
		}
	}
	for k, members := range h.kindRoom {
		delete(members, id)
		if len(members) == 0 {
			delete(h.kindRoom, k)
		}
	}
	h.mu.Unlock()

	// Idempotent: a duplicate close from a racing heartbeat/read-loop is
	// swallowed and logged at debug, mirroring the framework's
	// already-completed close behavior.
	if err := c.ws.Close(); err != nil {
		h.logger.Debug("closing websocket connection", "conn_id", id, "error", err)
	}
}

func (h *Hub) JoinCluster(id string, clusterID int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.conns[id]; !ok {
		return
	}
	if h.clusterRoom[clusterID] == nil {
		h.clusterRoom[clusterID] = make(map[string]struct{})
	}
	h.clusterRoom[clusterID][id] = struct{}{}
}

func (h *Hub) LeaveCluster(id string, clusterID int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if members, ok := h.clusterRoom[clusterID]; ok {
		delete(members, id)
		if len(members) == 0 {
			delete(h.clusterRoom, clusterID)
		}
	}
}

func (h *Hub) JoinNamespace(id string, clusterID int64, namespace string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.conns[id]; !ok {
		return
	}
	key := namespaceKey{clusterID, namespace}
	if h.nsRoom[key] == nil {
		h.nsRoom[key] = make(map[string]struct{})
	}
	h.nsRoom[key][id] = struct{}{}
}

func (h *Hub) LeaveNamespace(id string, clusterID int64, namespace string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	key := namespaceKey{clusterID, namespace}
	if members, ok := h.nsRoom[key]; ok {
		delete(members, id)
		if len(members) == 0 {
			delete(h.nsRoom, key)
		}
	}
}

func (h *Hub) JoinKind(id string, clusterID int64, kind string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.conns[id]; !ok {
		return
	}
	key := kindKey{clusterID, kind}
	if h.kindRoom[key] == nil {
		h.kindRoom[key] = make(map[string]struct{})
	}
	h.kindRoom[key][id] = struct{}{}
}

func (h *Hub) LeaveKind(id string, clusterID int64, kind string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	key := kindKey{clusterID, kind}
	if members, ok := h.kindRoom[key]; ok {
		delete(members, id)
		if len(members) == 0 {
			delete(h.kindRoom, key)
		}
	}
}

// Touch refreshes a connection's heartbeat clock — called on any inbound
// frame, including pong replies.
func (h *Hub) Touch(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.conns[id]; ok {
		c.lastHeartbeatAt = time.Now()
	}
}

// ResourceUpdate is the wire shape of a resource_update frame.
type ResourceUpdate struct {
	ResourceType string `json:"resource_type"`
	ClusterID    int64  `json:"cluster_id"`
	Namespace    string `json:"namespace,omitempty"`
	EventType    string `json:"event_type"`
	ResourceData any    `json:"resource_data"`
}

// BroadcastToCluster, BroadcastToNamespace and BroadcastToKind each
// snapshot their room's membership under the lock, then dispatch sends
// through a bounded concurrency window so one slow client only stalls its
// own slot.
func (h *Hub) BroadcastToCluster(clusterID int64, update ResourceUpdate) {
	h.broadcastTo(h.membersOf(h.clusterRoom, clusterID), update)
}

func (h *Hub) BroadcastToNamespace(clusterID int64, namespace string, update ResourceUpdate) {
	h.mu.RLock()
	members := copyMembers(h.nsRoom[namespaceKey{clusterID, namespace}])
	h.mu.RUnlock()
	h.broadcastTo(members, update)
}

func (h *Hub) BroadcastToKind(clusterID int64, kind string, update ResourceUpdate) {
	h.mu.RLock()
	members := copyMembers(h.kindRoom[kindKey{clusterID, kind}])
	h.mu.RUnlock()
	h.broadcastTo(members, update)
}

func (h *Hub) membersOf(room map[int64]map[string]struct{}, clusterID int64) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return copyMembers(room[clusterID])
}

func copyMembers(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for id := range m {
		out = append(out, id)
	}
	return out
}

func (h *Hub) broadcastTo(ids []string, update ResourceUpdate) {
	frame := map[string]any{
		"type":      "resource_update",
		"data":      update,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		h.mu.RLock()
		c, ok := h.conns[id]
		h.mu.RUnlock()
		if !ok {
			continue
		}

		if err := h.sem.Acquire(context.Background(), 1); err != nil {
			continue
		}
		wg.Add(1)
		go func(c *conn, id string) {
			defer wg.Done()
			defer h.sem.Release(1)
			if err := c.send(frame); err != nil {
				h.logger.Debug("broadcast send failed, disconnecting", "conn_id", id, "error", err)
				h.Disconnect(id)
			}
		}(c, id)
	}
	wg.Wait()
}

// RunHeartbeat pushes a ping to every live connection every
// HeartbeatInterval, disconnecting any whose last heartbeat is older than
// 2x that interval. It blocks until ctx is cancelled.
func (h *Hub) RunHeartbeat(ctx context.Context) {
	ticker := time.NewTicker(HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.heartbeatTick()
		}
	}
}

func (h *Hub) heartbeatTick() {
	h.mu.RLock()
	stale := make([]string, 0)
	live := make([]*conn, 0, len(h.conns))
	cutoff := time.Now().Add(-2 * HeartbeatInterval)
	for id, c := range h.conns {
		if c.lastHeartbeatAt.Before(cutoff) {
			stale = append(stale, id)
			continue
		}
		live = append(live, c)
	}
	h.mu.RUnlock()

	for _, c := range live {
		_ = c.send(map[string]any{"type": "ping"})
	}
	for _, id := range stale {
		h.Disconnect(id)
	}
}

// Stats reports the current connection count, published to the Metrics
// Recorder.
type Stats struct {
	ActiveConnections int
}

func (h *Hub) Stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return Stats{ActiveConnections: len(h.conns)}
}
