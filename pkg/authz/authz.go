// Package authz implements the Authorization Gate: a pure function deciding
// whether an authenticated caller may read or manage a given cluster and
// namespace. It never touches the upstream cluster or the database — the
// caller resolves grants ahead of time (internal/grants) and passes
// them in as part of the AuthContext.
package authz

const (
	RoleAdmin    = "admin"
	RoleOperator = "operator"
	RoleUser     = "user"
	RoleViewer   = "viewer"
)

// Level is the privilege a route requires.
type Level string

const (
	LevelRead   Level = "read"
	LevelManage Level = "manage"
)

// NamespaceKey identifies a (cluster, namespace) grant.
type NamespaceKey struct {
	ClusterID int64
	Namespace string
}

// AuthContext is the resolved identity and grant set for the current
// request — spec.md's "Authorization context": (user_id, role,
// explicit_cluster_grants, explicit_namespace_grants).
type AuthContext struct {
	Role                    string
	ExplicitClusterGrants   map[int64]struct{}
	ExplicitNamespaceGrants map[NamespaceKey]struct{}
}

// Decision is the outcome of an authorization check.
type Decision struct {
	Allowed bool
	Reason  string
}

// systemNamespaces may never be deleted, regardless of role.
var systemNamespaces = map[string]struct{}{
	"default":          {},
	"kube-system":      {},
	"kube-public":      {},
	"kube-node-lease":  {},
}

// IsProtectedNamespace reports whether ns is a system namespace that must
// never be deleted, irrespective of the caller's role.
func IsProtectedNamespace(ns string) bool {
	_, ok := systemNamespaces[ns]
	return ok
}

// Decide evaluates the authorization rule for one request. It is a pure
// function over (context, required level, cluster, namespace) — it never
// depends on upstream cluster state. clusterID/namespace are nil for routes
// that are not scoped to a specific cluster (e.g. "list clusters").
func Decide(ctx AuthContext, level Level, clusterID *int64, namespace *string) Decision {
	switch ctx.Role {
	case RoleAdmin:
		return allow()

	case RoleOperator:
		// Read/mutate on any cluster + namespace, except cluster registry writes.
		// Cluster-registry-write enforcement is the caller's job (it knows the
		// route is a registry mutation, not a resource mutation); Decide only
		// answers "can this identity act on this cluster/namespace".
		return allow()

	case RoleUser:
		if level == LevelRead {
			return allow()
		}
		// Mutate only within granted namespaces.
		if clusterID == nil || namespace == nil {
			return deny("manage requires an explicit cluster and namespace grant")
		}
		if _, ok := ctx.ExplicitNamespaceGrants[NamespaceKey{ClusterID: *clusterID, Namespace: *namespace}]; ok {
			return allow()
		}
		return deny("namespace not granted")

	case RoleViewer:
		if level != LevelRead {
			return deny("viewer role is read-only")
		}
		if clusterID == nil {
			// Listing clusters: the handler filters to the granted set itself;
			// Decide has nothing to refuse at this level.
			return allow()
		}
		if _, ok := ctx.ExplicitClusterGrants[*clusterID]; ok {
			return allow()
		}
		return deny("cluster not granted to viewer")

	default:
		return deny("unrecognized role")
	}
}

// DecideNamespaceDelete additionally enforces that system namespaces are
// never deletable, regardless of role: it denies a protected namespace
// before consulting Decide at LevelManage.
func DecideNamespaceDelete(ctx AuthContext, clusterID int64, namespace string) Decision {
	if IsProtectedNamespace(namespace) {
		return deny("refusing to delete a protected system namespace")
	}
	return Decide(ctx, LevelManage, &clusterID, &namespace)
}

func allow() Decision        { return Decision{Allowed: true} }
func deny(reason string) Decision { return Decision{Allowed: false, Reason: reason} }
