// Package watcher implements the Resource Watcher (C5): four long-lived
// per-cluster watch streams (pods, deployments, jobs, services) that
// normalize upstream events and publish them to the WebSocket Hub. Each
// cluster's streams run on their own goroutines so a stall on one cluster
// never starves another.
package watcher

import (
	"context"
	"log/slog"
	"sync"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/watch"
	"golang.org/x/sync/semaphore"

	"github.com/wisbric/kubefleet/pkg/clientpool"
	"github.com/wisbric/kubefleet/pkg/resource"
)

// watchedKinds are the four families a cluster watcher streams.
var watchedKinds = []resource.Kind{resource.Pods, resource.Deployments, resource.Jobs, resource.Services}

// Event is a normalized snapshot plus the upstream change type, addressed
// to three rooms by the caller: cluster, (cluster,namespace), (cluster,kind).
type Event struct {
	ClusterID int64
	Kind      string
	Namespace string
	EventType string // ADDED, MODIFIED, DELETED
	Snapshot  resource.Snapshot
}

// Publisher is the minimal surface the Resource Watcher needs from the
// WebSocket Hub.
type Publisher interface {
	PublishResourceUpdate(Event)
}

type clusterWatcher struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Manager owns one clusterWatcher per active cluster.
type Manager struct {
	pool      *clientpool.Pool
	publisher Publisher
	logger    *slog.Logger

	startSem *semaphore.Weighted // bounded worker pool of size 2 for Start

	mu       sync.Mutex
	watchers map[int64]*clusterWatcher
}

// NewManager builds a Manager. startConcurrency bounds how many clusters
// can run their streams at once (default 2): a cluster holds its slot until
// its streams end, so a further Start waits until one of them is stopped.
func NewManager(pool *clientpool.Pool, publisher Publisher, logger *slog.Logger, startConcurrency int64) *Manager {
	if startConcurrency <= 0 {
		startConcurrency = 2
	}
	return &Manager{
		pool:      pool,
		publisher: publisher,
		logger:    logger,
		startSem:  semaphore.NewWeighted(startConcurrency),
		watchers:  make(map[int64]*clusterWatcher),
	}
}

// Start launches the four streams for a cluster, off the request path.
// Idempotent: starting a watcher already running for clusterID is a no-op.
func (m *Manager) Start(clusterID int64, dyn dynamicClient) {
	m.mu.Lock()
	if _, exists := m.watchers[clusterID]; exists {
		m.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	cw := &clusterWatcher{cancel: cancel, done: make(chan struct{})}
	m.watchers[clusterID] = cw
	m.mu.Unlock()

	go func() {
		defer close(cw.done)
		if err := m.startSem.Acquire(ctx, 1); err != nil {
			return
		}
		defer m.startSem.Release(1)
		m.runStreams(ctx, clusterID, dyn)
	}()
}

func (m *Manager) runStreams(ctx context.Context, clusterID int64, dyn dynamicClient) {
	var wg sync.WaitGroup
	for _, k := range watchedKinds {
		wg.Add(1)
		go func(k resource.Kind) {
			defer wg.Done()
			m.runOneStream(ctx, clusterID, dyn, k)
		}(k)
	}
	wg.Wait()
}

// runOneStream consumes one watch.Interface until ctx is cancelled or the
// stream errors; an error terminates only this stream, never the other
// three, and is never auto-restarted within the same activation.
func (m *Manager) runOneStream(ctx context.Context, clusterID int64, dyn dynamicClient, k resource.Kind) {
	w, err := dyn.Resource(k.GVR).Watch(ctx, metav1.ListOptions{})
	if err != nil {
		m.logger.Error("starting watch stream", "cluster_id", clusterID, "kind", k.Name, "error", err)
		return
	}
	defer w.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.ResultChan():
			if !ok {
				m.logger.Warn("watch stream closed", "cluster_id", clusterID, "kind", k.Name)
				return
			}
			m.handleEvent(clusterID, k, ev)
		}
	}
}

func (m *Manager) handleEvent(clusterID int64, k resource.Kind, ev watch.Event) {
	obj, ok := ev.Object.(*unstructured.Unstructured)
	if !ok {
		return
	}
	snap := resource.Normalize(k.Name, obj)
	m.publisher.PublishResourceUpdate(Event{
		ClusterID: clusterID,
		Kind:      k.Name,
		Namespace: obj.GetNamespace(),
		EventType: string(ev.Type),
		Snapshot:  snap,
	})
}

// Stop halts all four streams for a cluster, closes the borrowed client,
// and removes the per-cluster record.
func (m *Manager) Stop(clusterID int64) {
	m.mu.Lock()
	cw, exists := m.watchers[clusterID]
	if exists {
		delete(m.watchers, clusterID)
	}
	m.mu.Unlock()

	if exists {
		cw.cancel()
		<-cw.done
	}
	m.pool.EvictCluster(clusterID)
}

// StopAll halts every running watcher, invoked at process shutdown.
func (m *Manager) StopAll() {
	m.mu.Lock()
	ids := make([]int64, 0, len(m.watchers))
	for id := range m.watchers {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		m.Stop(id)
	}
}

// Running reports whether a watcher is active for clusterID.
func (m *Manager) Running(clusterID int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.watchers[clusterID]
	return ok
}
