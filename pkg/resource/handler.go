package resource

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"

	"github.com/wisbric/kubefleet/internal/apierr"
	"github.com/wisbric/kubefleet/internal/clusterstore"
	"github.com/wisbric/kubefleet/internal/db"
	"github.com/wisbric/kubefleet/internal/grants"
	"github.com/wisbric/kubefleet/internal/httpauth"
	"github.com/wisbric/kubefleet/internal/httpserver"
	"github.com/wisbric/kubefleet/pkg/authz"
	"github.com/wisbric/kubefleet/pkg/clientpool"
)

// Auditor is the subset of internal/audit.Writer the resource Handler
// needs, kept as an interface so pkg/resource never imports internal/db
// transitively through internal/audit.
type Auditor interface {
	LogFromRequest(r *http.Request, clusterID *int64, action, resourceKind, resourceName string, details map[string]any, success bool, errMsg *string)
}

// Handler mounts one route group per resource kind (§6's per-resource
// families) onto a single generic implementation — list/detail/yaml/
// create/update/scale/restart/delete each exist once (detail/yaml/delete
// once more in a cluster-scoped form), shared across every kind via the
// Kind table, per Design Note "thin wrappers, keep thin".
type Handler struct {
	pool     *clientpool.Pool
	clusters *clusterstore.Store
	grants   *grants.Resolver
	read     *ReadFacade
	mutate   *MutationFacade
	auditor  Auditor
	logger   *slog.Logger
}

func NewHandler(pool *clientpool.Pool, clusters *clusterstore.Store, gr *grants.Resolver, read *ReadFacade, mutate *MutationFacade, auditor Auditor, logger *slog.Logger) *Handler {
	return &Handler{pool: pool, clusters: clusters, grants: gr, read: read, mutate: mutate, auditor: auditor, logger: logger}
}

// Routes mounts every kind in AllKinds under "/"+kind.Name, plus the two
// pod-only batch routes.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	for _, k := range AllKinds {
		r.Mount("/"+k.Name, h.routesForKind(k))
	}
	r.Post("/pods/batch-delete", h.handleBatchDelete)
	r.Post("/pods/batch-restart", h.handleBatchRestart)
	return r
}

func (h *Handler) routesForKind(k Kind) chi.Router {
	r := chi.NewRouter()
	if k.Namespaced {
		r.Get("/", h.handleList(k))
		r.Post("/", h.handleCreate(k))
		r.Post("/yaml", h.handleCreateYAML(k))
		r.Route("/{namespace}/{name}", func(r chi.Router) {
			r.Get("/", h.handleDetail(k))
			r.Get("/yaml", h.handleYAML(k))
			r.Put("/yaml", h.handleReplaceYAML(k))
			r.Delete("/", h.handleDelete(k))
			if k.Scalable {
				r.Patch("/scale", h.handleScale(k))
			}
			if k.Name == Deployments.Name {
				r.Post("/restart", h.handleRollingRestart(k))
			}
		})
	} else {
		r.Get("/", h.handleList(k))
		r.Route("/{name}", func(r chi.Router) {
			r.Get("/", h.handleDetailClusterScoped(k))
			r.Get("/yaml", h.handleYAMLClusterScoped(k))
			r.Delete("/", h.handleDeleteClusterScoped(k))
		})
	}
	return r
}

// --- request-scoped plumbing shared by every handler ---

// ctxInfo is everything one request needs beyond its URL: the resolved
// cluster, a borrowed client handle (returned via done), and the namespace
// the request was authorized for. prepare has already made the
// authorization decision before building it.
type ctxInfo struct {
	cluster   db.Cluster
	handle    clientpool.Handle
	namespace string
}

func (h *Handler) prepare(w http.ResponseWriter, r *http.Request, level authz.Level, namespace string) (*ctxInfo, bool) {
	ctx := r.Context()

	identity := httpauth.FromContext(ctx)
	if identity == nil {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return nil, false
	}

	cluster, err := h.resolveCluster(r)
	if err != nil {
		httpserver.RespondErr(w, err)
		return nil, false
	}

	authCtx, err := h.grants.Resolve(ctx, identity)
	if err != nil {
		h.logger.Error("resolving grants", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to resolve permissions")
		return nil, false
	}

	var nsPtr *string
	if namespace != "" {
		nsPtr = &namespace
	}
	decision := authz.Decide(authCtx, level, &cluster.ID, nsPtr)
	if !decision.Allowed {
		httpserver.RespondError(w, http.StatusForbidden, "forbidden", decision.Reason)
		return nil, false
	}

	handle, err := h.pool.Borrow(ctx, cluster)
	if err != nil {
		httpserver.RespondErr(w, err)
		return nil, false
	}

	return &ctxInfo{cluster: cluster, handle: handle, namespace: namespace}, true
}

func (h *Handler) done(info *ctxInfo) {
	h.pool.Return(info.cluster.ID, info.handle)
}

// resolveCluster reads "cluster_id" from the query string, falling back to
// the single active cluster when omitted (spec.md's "ambiguous list
// operations" default).
func (h *Handler) resolveCluster(r *http.Request) (db.Cluster, error) {
	ctx := r.Context()
	if v := r.URL.Query().Get("cluster_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return db.Cluster{}, apierr.Conflict("cluster_id must be an integer")
		}
		cluster, err := h.clusters.Get(ctx, id)
		if err != nil {
			return db.Cluster{}, apierr.NotFound("cluster not found")
		}
		return cluster, nil
	}
	cluster, err := h.clusters.Active(ctx)
	if err != nil {
		return db.Cluster{}, apierr.NotFound("no cluster_id given and no active cluster configured")
	}
	return cluster, nil
}

func labelSelector(r *http.Request) string {
	return r.URL.Query().Get("label_selector")
}

// --- namespaced handlers ---

func (h *Handler) handleList(k Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		namespace := r.URL.Query().Get("namespace")
		info, ok := h.prepare(w, r, authz.LevelRead, "")
		if !ok {
			return
		}
		defer h.done(info)

		params, err := httpserver.ParseListParams(r)
		if err != nil {
			httpserver.RespondError(w, http.StatusBadRequest, "bad_request", err.Error())
			return
		}

		page, err := h.read.ListPage(r.Context(), info.handle.Dynamic, k, info.cluster.ID, namespace, int64(params.Limit), params.Continue, labelSelector(r))
		if err != nil {
			httpserver.RespondErr(w, err)
			return
		}
		httpserver.Respond(w, http.StatusOK, page)
	}
}

func (h *Handler) handleDetail(k Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		namespace := chi.URLParam(r, "namespace")
		name := chi.URLParam(r, "name")
		info, ok := h.prepare(w, r, authz.LevelRead, namespace)
		if !ok {
			return
		}
		defer h.done(info)

		snap, err := h.read.Detail(r.Context(), info.handle.Dynamic, k, namespace, name)
		if err != nil {
			httpserver.RespondErr(w, err)
			return
		}
		httpserver.Respond(w, http.StatusOK, snap)
	}
}

func (h *Handler) handleYAML(k Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		namespace := chi.URLParam(r, "namespace")
		name := chi.URLParam(r, "name")
		info, ok := h.prepare(w, r, authz.LevelRead, namespace)
		if !ok {
			return
		}
		defer h.done(info)

		text, err := h.read.YAML(r.Context(), info.handle.Dynamic, k, namespace, name)
		if err != nil {
			httpserver.RespondErr(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/yaml")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(text))
	}
}

func (h *Handler) handleCreate(k Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		namespace := r.URL.Query().Get("namespace")
		info, ok := h.prepare(w, r, authz.LevelManage, namespace)
		if !ok {
			return
		}
		defer h.done(info)

		var obj unstructured.Unstructured
		if err := json.NewDecoder(r.Body).Decode(&obj.Object); err != nil {
			httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
			return
		}

		result, err := h.mutate.Create(r.Context(), info.handle.Dynamic, k, info.cluster.ID, namespace, &obj)
		h.auditResult(r, &info.cluster.ID, "create", k.Name, obj.GetName(), result.Details, err)
		if err != nil {
			httpserver.RespondErr(w, err)
			return
		}
		httpserver.Respond(w, http.StatusCreated, result.Object.Object)
	}
}

func (h *Handler) handleCreateYAML(k Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		namespace := r.URL.Query().Get("namespace")
		info, ok := h.prepare(w, r, authz.LevelManage, namespace)
		if !ok {
			return
		}
		defer h.done(info)

		doc, err := io.ReadAll(r.Body)
		if err != nil {
			httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "failed to read body")
			return
		}

		result, err := h.mutate.CreateFromYAML(r.Context(), info.handle.Dynamic, k, info.cluster.ID, namespace, doc)
		h.auditResult(r, &info.cluster.ID, "create", k.Name, "", result.Details, err)
		if err != nil {
			httpserver.RespondErr(w, err)
			return
		}
		httpserver.Respond(w, http.StatusCreated, result.Object.Object)
	}
}

func (h *Handler) handleReplaceYAML(k Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		namespace := chi.URLParam(r, "namespace")
		name := chi.URLParam(r, "name")
		info, ok := h.prepare(w, r, authz.LevelManage, namespace)
		if !ok {
			return
		}
		defer h.done(info)

		doc, err := io.ReadAll(r.Body)
		if err != nil {
			httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "failed to read body")
			return
		}

		result, err := h.mutate.ReplaceFromYAML(r.Context(), info.handle.Dynamic, k, info.cluster.ID, namespace, name, doc)
		h.auditResult(r, &info.cluster.ID, "update", k.Name, name, result.Details, err)
		if err != nil {
			httpserver.RespondErr(w, err)
			return
		}
		httpserver.Respond(w, http.StatusOK, result.Object.Object)
	}
}

func (h *Handler) handleScale(k Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		namespace := chi.URLParam(r, "namespace")
		name := chi.URLParam(r, "name")
		info, ok := h.prepare(w, r, authz.LevelManage, namespace)
		if !ok {
			return
		}
		defer h.done(info)

		var body struct {
			Replicas int32 `json:"replicas"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
			return
		}

		result, err := h.mutate.Scale(r.Context(), info.handle.Dynamic, k, info.cluster.ID, namespace, name, body.Replicas)
		h.auditResult(r, &info.cluster.ID, "scale", k.Name, name, result.Details, err)
		if err != nil {
			httpserver.RespondErr(w, err)
			return
		}
		httpserver.Respond(w, http.StatusOK, result.Object.Object)
	}
}

func (h *Handler) handleRollingRestart(k Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		namespace := chi.URLParam(r, "namespace")
		name := chi.URLParam(r, "name")
		info, ok := h.prepare(w, r, authz.LevelManage, namespace)
		if !ok {
			return
		}
		defer h.done(info)

		result, err := h.mutate.RollingRestart(r.Context(), info.handle.Dynamic, k, info.cluster.ID, namespace, name)
		h.auditResult(r, &info.cluster.ID, "restart", k.Name, name, result.Details, err)
		if err != nil {
			httpserver.RespondErr(w, err)
			return
		}
		httpserver.Respond(w, http.StatusOK, result.Object.Object)
	}
}

func (h *Handler) handleDelete(k Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		namespace := chi.URLParam(r, "namespace")
		name := chi.URLParam(r, "name")

		if k.Name == Namespaces.Name && authz.IsProtectedNamespace(name) {
			h.auditResult(r, nil, "delete", k.Name, name, map[string]any{}, apierr.Conflict("refusing to delete a protected system namespace"))
			httpserver.RespondError(w, http.StatusBadRequest, "conflict", "refusing to delete a protected system namespace")
			return
		}

		info, ok := h.prepare(w, r, authz.LevelManage, namespace)
		if !ok {
			return
		}
		defer h.done(info)

		force := r.URL.Query().Get("force") == "true"
		err := h.mutate.Delete(r.Context(), info.handle.Dynamic, k, info.cluster.ID, namespace, name, force)
		h.auditResult(r, &info.cluster.ID, "delete", k.Name, name, map[string]any{"force": force}, err)
		if err != nil {
			httpserver.RespondErr(w, err)
			return
		}
		httpserver.Respond(w, http.StatusOK, map[string]bool{"deleted": true})
	}
}

// --- cluster-scoped handlers (Nodes, PVs, StorageClasses, ClusterRoles, ClusterRoleBindings, Namespaces) ---

func (h *Handler) handleDetailClusterScoped(k Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		info, ok := h.prepare(w, r, authz.LevelRead, "")
		if !ok {
			return
		}
		defer h.done(info)

		snap, err := h.read.Detail(r.Context(), info.handle.Dynamic, k, "", name)
		if err != nil {
			httpserver.RespondErr(w, err)
			return
		}
		httpserver.Respond(w, http.StatusOK, snap)
	}
}

func (h *Handler) handleYAMLClusterScoped(k Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		info, ok := h.prepare(w, r, authz.LevelRead, "")
		if !ok {
			return
		}
		defer h.done(info)

		text, err := h.read.YAML(r.Context(), info.handle.Dynamic, k, "", name)
		if err != nil {
			httpserver.RespondErr(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/yaml")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(text))
	}
}

func (h *Handler) handleDeleteClusterScoped(k Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")

		if k.Name == Namespaces.Name && authz.IsProtectedNamespace(name) {
			h.auditResult(r, nil, "delete", k.Name, name, map[string]any{}, apierr.Conflict("refusing to delete a protected system namespace"))
			httpserver.RespondError(w, http.StatusBadRequest, "conflict", "refusing to delete a protected system namespace")
			return
		}

		info, ok := h.prepare(w, r, authz.LevelManage, "")
		if !ok {
			return
		}
		defer h.done(info)

		force := r.URL.Query().Get("force") == "true"
		err := h.mutate.Delete(r.Context(), info.handle.Dynamic, k, info.cluster.ID, "", name, force)
		h.auditResult(r, &info.cluster.ID, "delete", k.Name, name, map[string]any{"force": force}, err)
		if err != nil {
			httpserver.RespondErr(w, err)
			return
		}
		httpserver.Respond(w, http.StatusOK, map[string]bool{"deleted": true})
	}
}

// --- pod batch routes ---

type batchRequest struct {
	Targets []NamespacedName `json:"targets"`
	Force   bool             `json:"force"`
}

func (h *Handler) handleBatchDelete(w http.ResponseWriter, r *http.Request) {
	info, ok := h.prepare(w, r, authz.LevelManage, "")
	if !ok {
		return
	}
	defer h.done(info)

	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}

	result := h.mutate.BatchDelete(r.Context(), info.handle.Dynamic, info.cluster.ID, req.Targets, req.Force)
	h.auditResult(r, &info.cluster.ID, "batch_delete", Pods.Name, "", map[string]any{
		"success_count": result.SuccessCount, "failure_count": result.FailureCount,
	}, nil)
	httpserver.Respond(w, http.StatusOK, result)
}

func (h *Handler) handleBatchRestart(w http.ResponseWriter, r *http.Request) {
	info, ok := h.prepare(w, r, authz.LevelManage, "")
	if !ok {
		return
	}
	defer h.done(info)

	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}

	result := h.mutate.BatchRestart(r.Context(), info.handle.Dynamic, info.cluster.ID, req.Targets)
	h.auditResult(r, &info.cluster.ID, "batch_restart", Pods.Name, "", map[string]any{
		"success_count": result.SuccessCount, "failure_count": result.FailureCount,
	}, nil)
	httpserver.Respond(w, http.StatusOK, result)
}

func (h *Handler) auditResult(r *http.Request, clusterID *int64, action, kind, name string, details map[string]any, err error) {
	success := err == nil
	var errMsg *string
	if err != nil {
		msg := apierr.Message(err)
		errMsg = &msg
	}
	h.auditor.LogFromRequest(r, clusterID, action, kind, name, details, success, errMsg)
}
