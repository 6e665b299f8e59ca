// Package resource implements the Read Facade (C2) and Mutation Facade
// (C3): one generic implementation per family (list/detail/yaml/create/
// update/delete), parameterized by Kind, shared across every upstream
// resource type instead of being duplicated per kind.
package resource

import "k8s.io/apimachinery/pkg/runtime/schema"

// Kind describes one upstream resource family the facades operate on.
type Kind struct {
	// Name is the lowercase plural used in cache keys and routes, e.g. "pods".
	Name string
	GVR  schema.GroupVersionResource
	// Namespaced is false for cluster-scoped kinds (Node, PV, StorageClass,
	// ClusterRole, ClusterRoleBinding, Namespace itself).
	Namespaced bool
	// Scalable kinds accept the scale patch verb (Deployment, StatefulSet).
	Scalable bool
	// CacheTTLSeconds is 0 when the kind's list endpoint is not cached.
	CacheTTLSeconds int
}

var (
	Pods = Kind{Name: "pods", GVR: schema.GroupVersionResource{Version: "v1", Resource: "pods"}, Namespaced: true}

	Deployments = Kind{Name: "deployments", GVR: schema.GroupVersionResource{Group: "apps", Version: "v1", Resource: "deployments"}, Namespaced: true, Scalable: true}

	StatefulSets = Kind{Name: "statefulsets", GVR: schema.GroupVersionResource{Group: "apps", Version: "v1", Resource: "statefulsets"}, Namespaced: true, Scalable: true}

	DaemonSets = Kind{Name: "daemonsets", GVR: schema.GroupVersionResource{Group: "apps", Version: "v1", Resource: "daemonsets"}, Namespaced: true}

	CronJobs = Kind{Name: "cronjobs", GVR: schema.GroupVersionResource{Group: "batch", Version: "v1", Resource: "cronjobs"}, Namespaced: true}

	Jobs = Kind{Name: "jobs", GVR: schema.GroupVersionResource{Group: "batch", Version: "v1", Resource: "jobs"}, Namespaced: true}

	Services = Kind{Name: "services", GVR: schema.GroupVersionResource{Version: "v1", Resource: "services"}, Namespaced: true}

	ConfigMaps = Kind{Name: "configmaps", GVR: schema.GroupVersionResource{Version: "v1", Resource: "configmaps"}, Namespaced: true}

	Secrets = Kind{Name: "secrets", GVR: schema.GroupVersionResource{Version: "v1", Resource: "secrets"}, Namespaced: true}

	Ingresses = Kind{Name: "ingresses", GVR: schema.GroupVersionResource{Group: "networking.k8s.io", Version: "v1", Resource: "ingresses"}, Namespaced: true}

	NetworkPolicies = Kind{Name: "networkpolicies", GVR: schema.GroupVersionResource{Group: "networking.k8s.io", Version: "v1", Resource: "networkpolicies"}, Namespaced: true}

	PersistentVolumes = Kind{Name: "persistentvolumes", GVR: schema.GroupVersionResource{Version: "v1", Resource: "persistentvolumes"}, Namespaced: false}

	PersistentVolumeClaims = Kind{Name: "persistentvolumeclaims", GVR: schema.GroupVersionResource{Version: "v1", Resource: "persistentvolumeclaims"}, Namespaced: true}

	StorageClasses = Kind{Name: "storageclasses", GVR: schema.GroupVersionResource{Group: "storage.k8s.io", Version: "v1", Resource: "storageclasses"}, Namespaced: false}

	ResourceQuotas = Kind{Name: "resourcequotas", GVR: schema.GroupVersionResource{Version: "v1", Resource: "resourcequotas"}, Namespaced: true}

	LimitRanges = Kind{Name: "limitranges", GVR: schema.GroupVersionResource{Version: "v1", Resource: "limitranges"}, Namespaced: true}

	Roles = Kind{Name: "roles", GVR: schema.GroupVersionResource{Group: "rbac.authorization.k8s.io", Version: "v1", Resource: "roles"}, Namespaced: true}

	RoleBindings = Kind{Name: "rolebindings", GVR: schema.GroupVersionResource{Group: "rbac.authorization.k8s.io", Version: "v1", Resource: "rolebindings"}, Namespaced: true}

	ServiceAccounts = Kind{Name: "serviceaccounts", GVR: schema.GroupVersionResource{Version: "v1", Resource: "serviceaccounts"}, Namespaced: true}

	ClusterRoles = Kind{Name: "clusterroles", GVR: schema.GroupVersionResource{Group: "rbac.authorization.k8s.io", Version: "v1", Resource: "clusterroles"}, Namespaced: false}

	ClusterRoleBindings = Kind{Name: "clusterrolebindings", GVR: schema.GroupVersionResource{Group: "rbac.authorization.k8s.io", Version: "v1", Resource: "clusterrolebindings"}, Namespaced: false}

	HorizontalPodAutoscalers = Kind{Name: "horizontalpodautoscalers", GVR: schema.GroupVersionResource{Group: "autoscaling", Version: "v2", Resource: "horizontalpodautoscalers"}, Namespaced: true}

	PodDisruptionBudgets = Kind{Name: "poddisruptionbudgets", GVR: schema.GroupVersionResource{Group: "policy", Version: "v1", Resource: "poddisruptionbudgets"}, Namespaced: true}

	Events = Kind{Name: "events", GVR: schema.GroupVersionResource{Version: "v1", Resource: "events"}, Namespaced: true, CacheTTLSeconds: 30}

	Nodes = Kind{Name: "nodes", GVR: schema.GroupVersionResource{Version: "v1", Resource: "nodes"}, Namespaced: false, CacheTTLSeconds: 60}

	Namespaces = Kind{Name: "namespaces", GVR: schema.GroupVersionResource{Version: "v1", Resource: "namespaces"}, Namespaced: false, CacheTTLSeconds: 300}
)

// AllKinds lists every family the Read/Mutation facades serve.
var AllKinds = []Kind{
	Pods, Deployments, StatefulSets, DaemonSets, CronJobs, Jobs, Services,
	ConfigMaps, Secrets, Ingresses, NetworkPolicies, PersistentVolumes,
	PersistentVolumeClaims, StorageClasses, ResourceQuotas, LimitRanges,
	Roles, RoleBindings, ServiceAccounts, ClusterRoles, ClusterRoleBindings,
	HorizontalPodAutoscalers, PodDisruptionBudgets, Events, Nodes, Namespaces,
}
