package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

func scanCluster(row pgx.Row) (Cluster, error) {
	var c Cluster
	err := row.Scan(&c.ID, &c.Name, &c.Endpoint, &c.AuthMode, &c.KubeconfigBlob, &c.BearerToken, &c.CAPem, &c.IsActive, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

const clusterColumns = "id, name, endpoint, auth_mode, kubeconfig_blob, bearer_token, ca_pem, is_active, created_at, updated_at"

func (q *Queries) ListClusters(ctx context.Context) ([]Cluster, error) {
	rows, err := q.db.Query(ctx, "SELECT "+clusterColumns+" FROM clusters ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Cluster
	for rows.Next() {
		c, err := scanCluster(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (q *Queries) GetCluster(ctx context.Context, id int64) (Cluster, error) {
	row := q.db.QueryRow(ctx, "SELECT "+clusterColumns+" FROM clusters WHERE id = $1", id)
	return scanCluster(row)
}

func (q *Queries) GetActiveCluster(ctx context.Context) (Cluster, error) {
	row := q.db.QueryRow(ctx, "SELECT "+clusterColumns+" FROM clusters WHERE is_active = true LIMIT 1")
	return scanCluster(row)
}

// CreateClusterParams mirrors the INSERT in queries.sql.
type CreateClusterParams struct {
	Name           string
	Endpoint       string
	AuthMode       AuthMode
	KubeconfigBlob *string
	BearerToken    *string
	CAPem          *string
	IsActive       bool
}

func (q *Queries) CreateCluster(ctx context.Context, p CreateClusterParams) (Cluster, error) {
	row := q.db.QueryRow(ctx,
		"INSERT INTO clusters (name, endpoint, auth_mode, kubeconfig_blob, bearer_token, ca_pem, is_active) "+
			"VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING "+clusterColumns,
		p.Name, p.Endpoint, p.AuthMode, p.KubeconfigBlob, p.BearerToken, p.CAPem, p.IsActive,
	)
	return scanCluster(row)
}

// UpdateClusterParams mirrors the UPDATE in queries.sql.
type UpdateClusterParams struct {
	ID             int64
	Name           string
	Endpoint       string
	AuthMode       AuthMode
	KubeconfigBlob *string
	BearerToken    *string
	CAPem          *string
}

func (q *Queries) UpdateCluster(ctx context.Context, p UpdateClusterParams) (Cluster, error) {
	row := q.db.QueryRow(ctx,
		"UPDATE clusters SET name=$2, endpoint=$3, auth_mode=$4, kubeconfig_blob=$5, bearer_token=$6, ca_pem=$7, updated_at=now() "+
			"WHERE id=$1 RETURNING "+clusterColumns,
		p.ID, p.Name, p.Endpoint, p.AuthMode, p.KubeconfigBlob, p.BearerToken, p.CAPem,
	)
	return scanCluster(row)
}

func (q *Queries) DeactivateAllClusters(ctx context.Context) error {
	_, err := q.db.Exec(ctx, "UPDATE clusters SET is_active = false, updated_at = now() WHERE is_active = true")
	return err
}

func (q *Queries) ActivateCluster(ctx context.Context, id int64) error {
	_, err := q.db.Exec(ctx, "UPDATE clusters SET is_active = true, updated_at = now() WHERE id = $1", id)
	return err
}

func (q *Queries) DeleteCluster(ctx context.Context, id int64) error {
	_, err := q.db.Exec(ctx, "DELETE FROM clusters WHERE id = $1", id)
	return err
}

const userColumns = "id, email, display_name, password_hash, role, is_active, created_at, updated_at"

func scanUser(row pgx.Row) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.DisplayName, &u.PasswordHash, &u.Role, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

func (q *Queries) GetUserByID(ctx context.Context, id pgtype.UUID) (User, error) {
	row := q.db.QueryRow(ctx, "SELECT "+userColumns+" FROM users WHERE id = $1", id)
	return scanUser(row)
}

func (q *Queries) GetUserByEmail(ctx context.Context, email string) (User, error) {
	row := q.db.QueryRow(ctx, "SELECT "+userColumns+" FROM users WHERE email = $1", email)
	return scanUser(row)
}

func (q *Queries) ListClusterGrantsForUser(ctx context.Context, userID pgtype.UUID) ([]UserClusterPermission, error) {
	rows, err := q.db.Query(ctx, "SELECT id, user_id, cluster_id, level, created_at FROM user_cluster_permissions WHERE user_id = $1", userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []UserClusterPermission
	for rows.Next() {
		var p UserClusterPermission
		if err := rows.Scan(&p.ID, &p.UserID, &p.ClusterID, &p.Level, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (q *Queries) ListNamespaceGrantsForUser(ctx context.Context, userID pgtype.UUID) ([]UserNamespacePermission, error) {
	rows, err := q.db.Query(ctx, "SELECT id, user_id, cluster_id, namespace, level, created_at FROM user_namespace_permissions WHERE user_id = $1", userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []UserNamespacePermission
	for rows.Next() {
		var p UserNamespacePermission
		if err := rows.Scan(&p.ID, &p.UserID, &p.ClusterID, &p.Namespace, &p.Level, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// CreateAuditLogParams mirrors the INSERT in queries.sql.
type CreateAuditLogParams struct {
	UserID       pgtype.UUID
	ClusterID    pgtype.Int8
	Action       string
	ResourceKind string
	ResourceName string
	Details      []byte
	IPAddress    *string
	UserAgent    *string
	Success      bool
	Error        *string
}

func (q *Queries) CreateAuditLog(ctx context.Context, p CreateAuditLogParams) (AuditLog, error) {
	row := q.db.QueryRow(ctx,
		"INSERT INTO audit_logs (user_id, cluster_id, action, resource_kind, resource_name, details, ip_address, user_agent, success, error) "+
			"VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10) "+
			"RETURNING id, user_id, cluster_id, action, resource_kind, resource_name, details, ip_address, user_agent, success, error, created_at",
		p.UserID, p.ClusterID, p.Action, p.ResourceKind, p.ResourceName, p.Details, p.IPAddress, p.UserAgent, p.Success, p.Error,
	)

	var a AuditLog
	err := row.Scan(&a.ID, &a.UserID, &a.ClusterID, &a.Action, &a.ResourceKind, &a.ResourceName, &a.Details, &a.IPAddress, &a.UserAgent, &a.Success, &a.Error, &a.CreatedAt)
	return a, err
}

// DeleteAuditLogsOlderThanBatch deletes up to limit audit_logs rows older
// than cutoff and returns the number of rows actually deleted, so the
// retention loop can keep calling it until a batch comes back short.
func (q *Queries) DeleteAuditLogsOlderThanBatch(ctx context.Context, cutoff time.Time, limit int32) (int64, error) {
	tag, err := q.db.Exec(ctx,
		"WITH doomed AS (SELECT id FROM audit_logs WHERE created_at < $1 ORDER BY id LIMIT $2) "+
			"DELETE FROM audit_logs WHERE id IN (SELECT id FROM doomed)",
		cutoff, limit,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (q *Queries) ListAlertRules(ctx context.Context) ([]AlertRule, error) {
	rows, err := q.db.Query(ctx, "SELECT id, name, kind, cluster_id, namespace, threshold, enabled, created_at, updated_at FROM alert_rules WHERE enabled = true")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AlertRule
	for rows.Next() {
		var a AlertRule
		if err := rows.Scan(&a.ID, &a.Name, &a.Kind, &a.ClusterID, &a.Namespace, &a.Threshold, &a.Enabled, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (q *Queries) GetAlertEventByDedupKey(ctx context.Context, dedupKey string) (AlertEvent, error) {
	row := q.db.QueryRow(ctx, "SELECT id, rule_id, cluster_id, namespace, resource_name, message, severity, dedup_key, created_at FROM alert_events WHERE dedup_key = $1", dedupKey)
	var a AlertEvent
	err := row.Scan(&a.ID, &a.RuleID, &a.ClusterID, &a.Namespace, &a.ResourceName, &a.Message, &a.Severity, &a.DedupKey, &a.CreatedAt)
	return a, err
}

// CreateAlertEventParams mirrors the INSERT in queries.sql.
type CreateAlertEventParams struct {
	RuleID       pgtype.Int8
	ClusterID    int64
	Namespace    *string
	ResourceName string
	Message      string
	Severity     string
	DedupKey     string
}

func (q *Queries) CreateAlertEvent(ctx context.Context, p CreateAlertEventParams) (AlertEvent, error) {
	row := q.db.QueryRow(ctx,
		"INSERT INTO alert_events (rule_id, cluster_id, namespace, resource_name, message, severity, dedup_key) "+
			"VALUES ($1,$2,$3,$4,$5,$6,$7) "+
			"RETURNING id, rule_id, cluster_id, namespace, resource_name, message, severity, dedup_key, created_at",
		p.RuleID, p.ClusterID, p.Namespace, p.ResourceName, p.Message, p.Severity, p.DedupKey,
	)
	var a AlertEvent
	err := row.Scan(&a.ID, &a.RuleID, &a.ClusterID, &a.Namespace, &a.ResourceName, &a.Message, &a.Severity, &a.DedupKey, &a.CreatedAt)
	return a, err
}

func (q *Queries) CreateAlertStatus(ctx context.Context, alertEventID int64, status string) (AlertStatus, error) {
	row := q.db.QueryRow(ctx,
		"INSERT INTO alert_status (alert_event_id, status) VALUES ($1, $2) "+
			"RETURNING id, alert_event_id, status, acked_by, acked_at, resolved_at",
		alertEventID, status,
	)
	var a AlertStatus
	err := row.Scan(&a.ID, &a.AlertEventID, &a.Status, &a.AckedBy, &a.AckedAt, &a.ResolvedAt)
	return a, err
}
