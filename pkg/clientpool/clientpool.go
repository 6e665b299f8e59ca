// Package clientpool implements the Client Pool: a keyed cache of
// authenticated Kubernetes API clients, one entry set per cluster, reused
// across requests instead of re-authenticating on every call. Eviction is
// time-based (idle timeout, health-check staleness); the sweeper never
// issues upstream API calls, which would amplify a failing cluster into a
// thundering herd of health checks.
package clientpool

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/wisbric/kubefleet/internal/apierr"
	"github.com/wisbric/kubefleet/internal/db"
)

// Handle is one borrowed client pair against a single cluster.
type Handle struct {
	Typed   kubernetes.Interface
	Dynamic dynamic.Interface
}

type entry struct {
	handle            Handle
	tempFiles         []string
	borrowed          bool
	lastUsedAt        time.Time
	lastHealthCheckAt time.Time
}

// Config controls pool sizing and timing, sourced from internal/config.
type Config struct {
	MaxConnectionsPerCluster int
	ConnectionTimeout        time.Duration
	HealthCheckInterval      time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxConnectionsPerCluster <= 0 {
		c.MaxConnectionsPerCluster = 10
	}
	if c.ConnectionTimeout <= 0 {
		c.ConnectionTimeout = 10 * time.Minute
	}
	if c.HealthCheckInterval <= 0 {
		c.HealthCheckInterval = 60 * time.Second
	}
	return c
}

// Pool is the process-wide Client Pool, keyed by cluster ID.
type Pool struct {
	cfg Config

	mu      sync.Mutex
	entries map[int64][]*entry
}

// New builds an empty Pool.
func New(cfg Config) *Pool {
	return &Pool{cfg: cfg.withDefaults(), entries: make(map[int64][]*entry)}
}

// Borrow returns a reusable or freshly built Handle for cluster, or
// apierr.PoolExhausted if the cluster's pool is at capacity. Borrow never
// holds its lock across network I/O: the health-check call (when due) runs
// after the lock is released.
func (p *Pool) Borrow(ctx context.Context, cluster db.Cluster) (Handle, error) {
	p.mu.Lock()
	p.evictExpiredLocked(cluster.ID)

	list := p.entries[cluster.ID]
	var chosen *entry
	for _, e := range list {
		if !e.borrowed {
			chosen = e
			break
		}
	}

	healthCheckDue := false
	if chosen != nil {
		chosen.borrowed = true
		healthCheckDue = time.Since(chosen.lastHealthCheckAt) > p.cfg.HealthCheckInterval
		p.mu.Unlock()
	} else if len(list) < p.cfg.MaxConnectionsPerCluster {
		built, tempFiles, err := buildClient(cluster)
		p.mu.Unlock()
		if err != nil {
			return Handle{}, apierr.Internal("building cluster client", err)
		}
		chosen = &entry{
			handle:            built,
			tempFiles:         tempFiles,
			borrowed:          true,
			lastUsedAt:        time.Now(),
			lastHealthCheckAt: time.Now(),
		}
		p.mu.Lock()
		p.entries[cluster.ID] = append(p.entries[cluster.ID], chosen)
		p.mu.Unlock()
	} else {
		p.mu.Unlock()
		return Handle{}, apierr.PoolExhausted(fmt.Sprintf("cluster %d has no available connection slots", cluster.ID))
	}

	if healthCheckDue {
		if _, err := chosen.handle.Typed.Discovery().ServerVersion(); err != nil {
			p.evictEntry(cluster.ID, chosen)
			return p.Borrow(ctx, cluster)
		}
		p.mu.Lock()
		chosen.lastHealthCheckAt = time.Now()
		p.mu.Unlock()
	}

	return chosen.handle, nil
}

// Return marks a handle as available again, stamping last-used time. It
// never closes the underlying client.
func (p *Pool) Return(clusterID int64, h Handle) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range p.entries[clusterID] {
		if e.handle.Typed == h.Typed {
			e.borrowed = false
			e.lastUsedAt = time.Now()
			return
		}
	}
}

// EvictCluster closes every entry for clusterID and removes their temp files.
func (p *Pool) EvictCluster(clusterID int64) {
	p.mu.Lock()
	list := p.entries[clusterID]
	delete(p.entries, clusterID)
	p.mu.Unlock()

	for _, e := range list {
		cleanupTempFiles(e.tempFiles)
	}
}

// evictExpiredLocked drops idle entries for one cluster. Caller holds mu.
func (p *Pool) evictExpiredLocked(clusterID int64) {
	list := p.entries[clusterID]
	if len(list) == 0 {
		return
	}
	kept := list[:0]
	var expired []*entry
	now := time.Now()
	for _, e := range list {
		if !e.borrowed && now.Sub(e.lastUsedAt) > p.cfg.ConnectionTimeout {
			expired = append(expired, e)
			continue
		}
		kept = append(kept, e)
	}
	p.entries[clusterID] = kept
	for _, e := range expired {
		cleanupTempFiles(e.tempFiles)
	}
}

func (p *Pool) evictEntry(clusterID int64, target *entry) {
	p.mu.Lock()
	list := p.entries[clusterID]
	kept := list[:0]
	for _, e := range list {
		if e != target {
			kept = append(kept, e)
		}
	}
	p.entries[clusterID] = kept
	p.mu.Unlock()
	cleanupTempFiles(target.tempFiles)
}

// Sweep is invoked by the background runner roughly every 60s. It is
// time-based only and never issues upstream API calls.
func (p *Pool) Sweep() {
	p.mu.Lock()
	ids := make([]int64, 0, len(p.entries))
	for id := range p.entries {
		ids = append(ids, id)
	}
	p.mu.Unlock()

	for _, id := range ids {
		p.mu.Lock()
		p.evictExpiredLocked(id)
		p.mu.Unlock()
	}
}

// Stats describes current pool occupancy, published to the Metrics Recorder.
type Stats struct {
	ClusterCount int
	PerCluster   map[int64]int
}

func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := Stats{ClusterCount: len(p.entries), PerCluster: make(map[int64]int, len(p.entries))}
	for id, list := range p.entries {
		s.PerCluster[id] = len(list)
	}
	return s
}

func cleanupTempFiles(paths []string) {
	for _, p := range paths {
		_ = os.Remove(p)
	}
}

// buildClient synthesizes a typed + dynamic client pair for one cluster,
// per its stored auth mode. For a kubeconfig blob, the client is built
// directly from the in-memory bytes without touching disk. For a bearer
// token, a rest.Config is assembled by hand and, if a CA is supplied, it is
// written to a temp file whose path is returned for later cleanup.
func buildClient(cluster db.Cluster) (Handle, []string, error) {
	var restCfg *rest.Config
	var tempFiles []string

	switch cluster.AuthMode {
	case db.AuthModeKubeconfigBlob:
		if cluster.KubeconfigBlob == nil {
			return Handle{}, nil, fmt.Errorf("cluster %d: auth mode kubeconfig_blob but no kubeconfig stored", cluster.ID)
		}
		clientCfg, err := clientcmd.NewClientConfigFromBytes([]byte(*cluster.KubeconfigBlob))
		if err != nil {
			return Handle{}, nil, fmt.Errorf("parsing kubeconfig: %w", err)
		}
		restCfg, err = clientCfg.ClientConfig()
		if err != nil {
			return Handle{}, nil, fmt.Errorf("building rest config from kubeconfig: %w", err)
		}

	case db.AuthModeBearerToken:
		if cluster.BearerToken == nil {
			return Handle{}, nil, fmt.Errorf("cluster %d: auth mode bearer_token but no token stored", cluster.ID)
		}
		restCfg = &rest.Config{
			Host:        cluster.Endpoint,
			BearerToken: *cluster.BearerToken,
		}
		if cluster.CAPem != nil {
			f, err := os.CreateTemp("", fmt.Sprintf("kubefleet-ca-%d-*.pem", cluster.ID))
			if err != nil {
				return Handle{}, nil, fmt.Errorf("writing CA temp file: %w", err)
			}
			if _, err := f.WriteString(*cluster.CAPem); err != nil {
				f.Close()
				os.Remove(f.Name())
				return Handle{}, nil, fmt.Errorf("writing CA temp file: %w", err)
			}
			f.Close()
			restCfg.TLSClientConfig = rest.TLSClientConfig{CAFile: f.Name()}
			tempFiles = append(tempFiles, f.Name())
		}

	default:
		return Handle{}, nil, fmt.Errorf("cluster %d: unknown auth mode %q", cluster.ID, cluster.AuthMode)
	}

	typed, err := kubernetes.NewForConfig(restCfg)
	if err != nil {
		cleanupTempFiles(tempFiles)
		return Handle{}, nil, fmt.Errorf("building typed client: %w", err)
	}
	dyn, err := dynamic.NewForConfig(restCfg)
	if err != nil {
		cleanupTempFiles(tempFiles)
		return Handle{}, nil, fmt.Errorf("building dynamic client: %w", err)
	}

	return Handle{Typed: typed, Dynamic: dyn}, tempFiles, nil
}
