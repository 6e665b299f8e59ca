package db

import (
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

// AuthMode enumerates how the core authenticates to a managed cluster.
type AuthMode string

const (
	AuthModeKubeconfigBlob AuthMode = "kubeconfig_blob"
	AuthModeBearerToken    AuthMode = "bearer_token"
)

// GrantLevel enumerates the two privilege levels a permission row can carry.
type GrantLevel string

const (
	GrantLevelRead   GrantLevel = "read"
	GrantLevelManage GrantLevel = "manage"
)

// Cluster is a managed Kubernetes API endpoint with credentials — spec.md's
// "Cluster descriptor". Exactly one row may have IsActive = true.
type Cluster struct {
	ID              int64
	Name            string
	Endpoint        string
	AuthMode        AuthMode
	KubeconfigBlob  *string // base64 or raw kubeconfig YAML, only set for AuthModeKubeconfigBlob
	BearerToken     *string // only set for AuthModeBearerToken
	CAPem           *string
	IsActive        bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// User is an operator account.
type User struct {
	ID           pgtype.UUID
	Email        string
	DisplayName  string
	PasswordHash *string // nil for OIDC-only accounts
	Role         string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// RefreshToken backs long-lived session renewal.
type RefreshToken struct {
	ID        pgtype.UUID
	UserID    pgtype.UUID
	TokenHash string
	IssuedAt  time.Time
	ExpiresAt time.Time
	RevokedAt *time.Time
}

// UserSession records a live session for auditing/"active sessions" views.
type UserSession struct {
	ID         pgtype.UUID
	UserID     pgtype.UUID
	CreatedAt  time.Time
	LastSeenAt time.Time
	UserAgent  *string
	IPAddress  *string
}

// UserClusterPermission is a Grant: user -> cluster at a given level.
type UserClusterPermission struct {
	ID        int64
	UserID    pgtype.UUID
	ClusterID int64
	Level     GrantLevel
	CreatedAt time.Time
}

// UserNamespacePermission is a Grant: user -> (cluster, namespace) at a given level.
type UserNamespacePermission struct {
	ID        int64
	UserID    pgtype.UUID
	ClusterID int64
	Namespace string
	Level     GrantLevel
	CreatedAt time.Time
}

// AuditLog is spec.md's Audit record, append-only.
type AuditLog struct {
	ID           int64
	UserID       pgtype.UUID
	ClusterID    pgtype.Int8
	Action       string
	ResourceKind string
	ResourceName string
	Details      []byte // jsonb
	IPAddress    *string
	UserAgent    *string
	Success      bool
	Error        *string
	CreatedAt    time.Time
}

// AlertRule is a minimal rule evaluated by pkg/alertrules.
type AlertRule struct {
	ID        int64
	Name      string
	Kind      string // e.g. "node_not_ready", "pod_crashloop"
	ClusterID pgtype.Int8
	Namespace *string
	Threshold *int32
	Enabled   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// AlertEvent is one firing of an AlertRule, deduplicated by DedupKey.
type AlertEvent struct {
	ID           int64
	RuleID       pgtype.Int8
	ClusterID    int64
	Namespace    *string
	ResourceName string
	Message      string
	Severity     string
	DedupKey     string
	CreatedAt    time.Time
}

// AlertStatus tracks the lifecycle of an AlertEvent.
type AlertStatus struct {
	ID           int64
	AlertEventID int64
	Status       string // open, acked, resolved
	AckedBy      pgtype.UUID
	AckedAt      *time.Time
	ResolvedAt   *time.Time
}
