package clusterstore

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"k8s.io/client-go/dynamic"

	"github.com/wisbric/kubefleet/internal/apierr"
	"github.com/wisbric/kubefleet/internal/db"
	"github.com/wisbric/kubefleet/internal/grants"
	"github.com/wisbric/kubefleet/internal/httpauth"
	"github.com/wisbric/kubefleet/internal/httpserver"
	"github.com/wisbric/kubefleet/pkg/authz"
	"github.com/wisbric/kubefleet/pkg/clientpool"
)

// Auditor mirrors pkg/resource.Auditor — kept separate so clusterstore
// never depends on pkg/resource.
type Auditor interface {
	LogFromRequest(r *http.Request, clusterID *int64, action, resourceKind, resourceName string, details map[string]any, success bool, errMsg *string)
}

// Watchers is the subset of pkg/watcher.Manager the cluster handler needs
// to start/stop streams on activate/deactivate.
type Watchers interface {
	Start(clusterID int64, dyn dynamic.Interface)
	Stop(clusterID int64)
}

// Handler exposes the cluster registry (§6's "clusters" route group):
// list/create/update/delete plus the test-connection and activate actions
// that cross into the Client Pool and Resource Watcher.
type Handler struct {
	store    *Store
	pool     *clientpool.Pool
	grants   *grants.Resolver
	watchers Watchers
	auditor  Auditor
	logger   *slog.Logger
}

func NewHandler(store *Store, pool *clientpool.Pool, gr *grants.Resolver, watchers Watchers, auditor Auditor, logger *slog.Logger) *Handler {
	return &Handler{store: store, pool: pool, grants: gr, watchers: watchers, auditor: auditor, logger: logger}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.handleList)
	r.Post("/", h.handleCreate)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.handleGet)
		r.Put("/", h.handleUpdate)
		r.Delete("/", h.handleDelete)
		r.Post("/test-connection", h.handleTestConnection)
		r.Post("/activate", h.handleActivate)
	})
	return r
}

func (h *Handler) requireRole(w http.ResponseWriter, r *http.Request, roles ...string) (*httpauth.Identity, bool) {
	id := httpauth.FromContext(r.Context())
	if id == nil {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return nil, false
	}
	for _, role := range roles {
		if id.Role == role {
			return id, true
		}
	}
	httpserver.RespondError(w, http.StatusForbidden, "forbidden", "cluster registry writes require admin or operator role")
	return nil, false
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	id := httpauth.FromContext(r.Context())
	if id == nil {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}
	clusters, err := h.store.List(r.Context())
	if err != nil {
		h.logger.Error("listing clusters", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to list clusters")
		return
	}
	// Viewers only ever see clusters explicitly granted to them; every
	// other role sees the whole registry (pkg/authz.Decide mirrors this
	// at the per-resource layer).
	if id.Role == authz.RoleViewer {
		ac, err := h.grants.Resolve(r.Context(), id)
		if err != nil {
			h.logger.Error("resolving grants", "error", err)
			httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to resolve grants")
			return
		}
		clusters = filterGrantedClusters(clusters, ac)
	}
	httpserver.Respond(w, http.StatusOK, clusters)
}

// filterGrantedClusters narrows a cluster list down to the caller's
// explicit grants, per spec's viewer scoping rule (P8): a viewer never
// sees a cluster it has not been granted, even in a list response.
func filterGrantedClusters(clusters []db.Cluster, ac authz.AuthContext) []db.Cluster {
	out := make([]db.Cluster, 0, len(clusters))
	for _, c := range clusters {
		if _, ok := ac.ExplicitClusterGrants[c.ID]; ok {
			out = append(out, c)
		}
	}
	return out
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	identity := httpauth.FromContext(r.Context())
	if identity == nil {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}
	id, err := parseID(r)
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	if identity.Role == authz.RoleViewer {
		ac, err := h.grants.Resolve(r.Context(), identity)
		if err != nil {
			h.logger.Error("resolving grants", "error", err)
			httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to resolve grants")
			return
		}
		if d := authz.Decide(ac, authz.LevelRead, &id, nil); !d.Allowed {
			httpserver.RespondError(w, http.StatusForbidden, "forbidden", d.Reason)
			return
		}
	}

	cluster, err := h.store.Get(r.Context(), id)
	if err != nil {
		httpserver.RespondError(w, http.StatusNotFound, "not_found", "cluster not found")
		return
	}
	httpserver.Respond(w, http.StatusOK, cluster)
}

type clusterRequest struct {
	Name           string `json:"name"`
	Endpoint       string `json:"endpoint"`
	AuthMode       string `json:"auth_mode"`
	KubeconfigBlob string `json:"kubeconfig_blob,omitempty"`
	BearerToken    string `json:"bearer_token,omitempty"`
	CAPem          string `json:"ca_pem,omitempty"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireRole(w, r, authz.RoleAdmin, authz.RoleOperator); !ok {
		return
	}

	var req clusterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}

	params := db.CreateClusterParams{
		Name:           req.Name,
		Endpoint:       req.Endpoint,
		AuthMode:       db.AuthMode(req.AuthMode),
		KubeconfigBlob: nonEmpty(req.KubeconfigBlob),
		BearerToken:    nonEmpty(req.BearerToken),
		CAPem:          nonEmpty(req.CAPem),
		IsActive:       false,
	}

	cluster, err := h.store.Create(r.Context(), params)
	h.auditor.LogFromRequest(r, nil, "create_cluster", "cluster", req.Name, map[string]any{}, err == nil, errMsgPtr(err))
	if err != nil {
		h.logger.Error("creating cluster", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to create cluster")
		return
	}
	httpserver.Respond(w, http.StatusCreated, cluster)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireRole(w, r, authz.RoleAdmin, authz.RoleOperator); !ok {
		return
	}
	id, err := parseID(r)
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	var req clusterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}

	params := db.UpdateClusterParams{
		ID:             id,
		Name:           req.Name,
		Endpoint:       req.Endpoint,
		AuthMode:       db.AuthMode(req.AuthMode),
		KubeconfigBlob: nonEmpty(req.KubeconfigBlob),
		BearerToken:    nonEmpty(req.BearerToken),
		CAPem:          nonEmpty(req.CAPem),
	}

	cluster, err := h.store.Update(r.Context(), params)
	h.auditor.LogFromRequest(r, &id, "update_cluster", "cluster", req.Name, map[string]any{}, err == nil, errMsgPtr(err))
	if err != nil {
		h.logger.Error("updating cluster", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to update cluster")
		return
	}

	// Registering new credentials for an already-active cluster invalidates
	// any borrowed client built from the stale credentials.
	h.pool.EvictCluster(id)

	httpserver.Respond(w, http.StatusOK, cluster)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireRole(w, r, authz.RoleAdmin, authz.RoleOperator); !ok {
		return
	}
	id, err := parseID(r)
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	h.watchers.Stop(id)
	err = h.store.Delete(r.Context(), id)
	h.auditor.LogFromRequest(r, &id, "delete_cluster", "cluster", "", map[string]any{}, err == nil, errMsgPtr(err))
	if err != nil {
		h.logger.Error("deleting cluster", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to delete cluster")
		return
	}
	httpserver.Respond(w, http.StatusOK, map[string]bool{"deleted": true})
}

// handleTestConnection borrows a client handle from the pool, asks the API
// server for its version to confirm the stored credentials reach it, then
// returns the handle to the pool.
func (h *Handler) handleTestConnection(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireRole(w, r, authz.RoleAdmin, authz.RoleOperator); !ok {
		return
	}
	id, err := parseID(r)
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	cluster, err := h.store.Get(r.Context(), id)
	if err != nil {
		httpserver.RespondError(w, http.StatusNotFound, "not_found", "cluster not found")
		return
	}

	handle, err := h.pool.Borrow(r.Context(), cluster)
	if err != nil {
		httpserver.Respond(w, http.StatusOK, map[string]any{"reachable": false, "error": apierr.Message(err)})
		return
	}
	_, err = handle.Typed.Discovery().ServerVersion()
	h.pool.Return(cluster.ID, handle)
	if err != nil {
		httpserver.Respond(w, http.StatusOK, map[string]any{"reachable": false, "error": err.Error()})
		return
	}
	httpserver.Respond(w, http.StatusOK, map[string]any{"reachable": true})
}

// handleActivate enforces the single-active-cluster invariant, then starts
// the newly active cluster's watch streams on a client handle dedicated to
// the watcher (not shared with request-path handles) and stops whichever
// cluster was previously active.
func (h *Handler) handleActivate(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireRole(w, r, authz.RoleAdmin, authz.RoleOperator); !ok {
		return
	}
	id, err := parseID(r)
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	previous, prevErr := h.store.Active(r.Context())

	cluster, err := h.store.Get(r.Context(), id)
	if err != nil {
		httpserver.RespondError(w, http.StatusNotFound, "not_found", "cluster not found")
		return
	}

	if err := h.store.Activate(r.Context(), id); err != nil {
		h.auditor.LogFromRequest(r, &id, "activate_cluster", "cluster", cluster.Name, map[string]any{}, false, errMsgPtr(err))
		h.logger.Error("activating cluster", "cluster_id", id, "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to activate cluster")
		return
	}

	if prevErr == nil && previous.ID != id {
		h.watchers.Stop(previous.ID)
	}

	h.startWatchers(r.Context(), cluster)

	h.auditor.LogFromRequest(r, &id, "activate_cluster", "cluster", cluster.Name, map[string]any{}, true, nil)
	httpserver.Respond(w, http.StatusOK, map[string]bool{"activated": true})
}

// startWatchers borrows a client handle dedicated to the watcher's own
// long-lived streams, per spec.md's note that a cluster activation's watch
// connections are not shared with request-thread handles.
func (h *Handler) startWatchers(ctx context.Context, cluster db.Cluster) {
	handle, err := h.pool.Borrow(ctx, cluster)
	if err != nil {
		h.logger.Error("borrowing client for watcher start", "cluster_id", cluster.ID, "error", err)
		return
	}
	h.watchers.Start(cluster.ID, handle.Dynamic)
}

func parseID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func errMsgPtr(err error) *string {
	if err == nil {
		return nil
	}
	msg := apierr.Message(err)
	return &msg
}
