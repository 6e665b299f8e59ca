// Package clusterstore owns the cluster registry: CRUD over the clusters
// table plus the single-active-cluster invariant (at most one cluster may
// be flagged active, used as the default for ambiguous list operations).
package clusterstore

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wisbric/kubefleet/internal/db"
)

// Store is the cluster registry's data-access layer.
type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) List(ctx context.Context) ([]db.Cluster, error) {
	return db.New(s.pool).ListClusters(ctx)
}

func (s *Store) Get(ctx context.Context, id int64) (db.Cluster, error) {
	return db.New(s.pool).GetCluster(ctx, id)
}

func (s *Store) Active(ctx context.Context) (db.Cluster, error) {
	return db.New(s.pool).GetActiveCluster(ctx)
}

func (s *Store) Create(ctx context.Context, p db.CreateClusterParams) (db.Cluster, error) {
	return db.New(s.pool).CreateCluster(ctx, p)
}

func (s *Store) Update(ctx context.Context, p db.UpdateClusterParams) (db.Cluster, error) {
	return db.New(s.pool).UpdateCluster(ctx, p)
}

func (s *Store) Delete(ctx context.Context, id int64) error {
	return db.New(s.pool).DeleteCluster(ctx, id)
}

// Activate enforces the single-active-cluster invariant: deactivate every
// cluster, then activate id, inside one transaction so no reader ever
// observes two active clusters or zero.
func (s *Store) Activate(ctx context.Context, id int64) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning activate transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	q := db.New(s.pool).WithTx(tx)
	if err := q.DeactivateAllClusters(ctx); err != nil {
		return fmt.Errorf("deactivating clusters: %w", err)
	}
	if err := q.ActivateCluster(ctx, id); err != nil {
		return fmt.Errorf("activating cluster %d: %w", id, err)
	}
	return tx.Commit(ctx)
}
