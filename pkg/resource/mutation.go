package resource

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/yaml"

	"github.com/wisbric/kubefleet/internal/apierr"
	"github.com/wisbric/kubefleet/pkg/cache"
)

// MutationResult is the outcome of one mutation, forwarded verbatim plus
// the details map the caller audits.
type MutationResult struct {
	Object  *unstructured.Unstructured
	Details map[string]any
}

// BatchResult is the outcome of a batch pod delete/restart.
type BatchResult struct {
	Results      map[string]bool `json:"results"`
	SuccessCount int             `json:"success_count"`
	FailureCount int             `json:"failure_count"`
}

// MutationFacade implements create/replace/patch/scale/restart/delete,
// shared by every kind. Every successful call invalidates overlapping
// cache keys; callers are responsible for appending the audit record
// (the facade returns enough detail to build one, but does not hold a
// DB handle itself).
type MutationFacade struct {
	cache cache.Cache
}

func NewMutationFacade(c cache.Cache) *MutationFacade {
	return &MutationFacade{cache: c}
}

// Create inserts a structured object (already built by the caller from a
// decoded request body).
func (f *MutationFacade) Create(ctx context.Context, dyn dynamicClient, k Kind, clusterID int64, namespace string, obj *unstructured.Unstructured) (MutationResult, error) {
	obj.SetNamespace(namespace)
	created, err := f.createUnstructured(ctx, dyn, k, namespace, obj)
	if err != nil {
		return MutationResult{}, err
	}
	f.invalidate(ctx, k, clusterID, namespace)
	return MutationResult{Object: created, Details: map[string]any{}}, nil
}

// CreateFromYAML deserializes doc, forces metadata.namespace to the URL
// value (defense against cross-namespace typos in the body), strips
// status, then creates.
func (f *MutationFacade) CreateFromYAML(ctx context.Context, dyn dynamicClient, k Kind, clusterID int64, namespace string, doc []byte) (MutationResult, error) {
	obj, err := decodeYAML(doc)
	if err != nil {
		return MutationResult{}, err
	}
	obj.SetNamespace(namespace)
	unstructured.RemoveNestedField(obj.Object, "status")

	created, err := f.createUnstructured(ctx, dyn, k, namespace, obj)
	if err != nil {
		return MutationResult{}, err
	}
	f.invalidate(ctx, k, clusterID, namespace)
	return MutationResult{Object: created, Details: map[string]any{}}, nil
}

func (f *MutationFacade) createUnstructured(ctx context.Context, dyn dynamicClient, k Kind, namespace string, obj *unstructured.Unstructured) (*unstructured.Unstructured, error) {
	var created *unstructured.Unstructured
	var err error
	if k.Namespaced {
		created, err = dyn.Resource(k.GVR).Namespace(namespace).Create(ctx, obj, metav1.CreateOptions{})
	} else {
		created, err = dyn.Resource(k.GVR).Create(ctx, obj, metav1.CreateOptions{})
	}
	if err != nil {
		return nil, translateUpstreamErr(err)
	}
	return created, nil
}

// ReplaceFromYAML deserializes doc, forces both metadata.namespace and
// metadata.name to the URL values, then replaces.
func (f *MutationFacade) ReplaceFromYAML(ctx context.Context, dyn dynamicClient, k Kind, clusterID int64, namespace, name string, doc []byte) (MutationResult, error) {
	obj, err := decodeYAML(doc)
	if err != nil {
		return MutationResult{}, err
	}
	obj.SetNamespace(namespace)
	obj.SetName(name)

	var updated *unstructured.Unstructured
	if k.Namespaced {
		updated, err = dyn.Resource(k.GVR).Namespace(namespace).Update(ctx, obj, metav1.UpdateOptions{})
	} else {
		updated, err = dyn.Resource(k.GVR).Update(ctx, obj, metav1.UpdateOptions{})
	}
	if err != nil {
		return MutationResult{}, translateUpstreamErr(err)
	}
	f.invalidate(ctx, k, clusterID, namespace)
	return MutationResult{Object: updated, Details: map[string]any{}}, nil
}

// Scale patches spec.replicas for a scalable kind.
func (f *MutationFacade) Scale(ctx context.Context, dyn dynamicClient, k Kind, clusterID int64, namespace, name string, replicas int32) (MutationResult, error) {
	if !k.Scalable {
		return MutationResult{}, apierr.Conflict(fmt.Sprintf("%s does not support scaling", k.Name))
	}
	patch := []byte(fmt.Sprintf(`{"spec":{"replicas":%d}}`, replicas))
	updated, err := dyn.Resource(k.GVR).Namespace(namespace).Patch(ctx, name, types.MergePatchType, patch, metav1.PatchOptions{})
	if err != nil {
		return MutationResult{}, translateUpstreamErr(err)
	}
	f.invalidate(ctx, k, clusterID, namespace)
	return MutationResult{Object: updated, Details: map[string]any{"replicas": replicas}}, nil
}

// RollingRestart mutates only
// spec.template.metadata.annotations["kubectl.kubernetes.io/restartedAt"]
// to the current instant; no image or replica change.
func (f *MutationFacade) RollingRestart(ctx context.Context, dyn dynamicClient, k Kind, clusterID int64, namespace, name string) (MutationResult, error) {
	now := time.Now().UTC().Format(time.RFC3339)
	patch, _ := json.Marshal(map[string]any{
		"spec": map[string]any{
			"template": map[string]any{
				"metadata": map[string]any{
					"annotations": map[string]any{
						"kubectl.kubernetes.io/restartedAt": now,
					},
				},
			},
		},
	})
	updated, err := dyn.Resource(k.GVR).Namespace(namespace).Patch(ctx, name, types.MergePatchType, patch, metav1.PatchOptions{})
	if err != nil {
		return MutationResult{}, translateUpstreamErr(err)
	}
	f.invalidate(ctx, k, clusterID, namespace)
	return MutationResult{Object: updated, Details: map[string]any{"restarted_at": now}}, nil
}

// Delete removes one object, optionally with grace=0 (force).
func (f *MutationFacade) Delete(ctx context.Context, dyn dynamicClient, k Kind, clusterID int64, namespace, name string, force bool) error {
	opts := metav1.DeleteOptions{}
	if force {
		zero := int64(0)
		opts.GracePeriodSeconds = &zero
	}

	var err error
	if k.Namespaced {
		err = dyn.Resource(k.GVR).Namespace(namespace).Delete(ctx, name, opts)
	} else {
		err = dyn.Resource(k.GVR).Delete(ctx, name, opts)
	}
	if err != nil {
		return translateUpstreamErr(err)
	}
	f.invalidate(ctx, k, clusterID, namespace)
	return nil
}

// BatchDelete iterates targets sequentially; one failure does not abort
// the batch.
func (f *MutationFacade) BatchDelete(ctx context.Context, dyn dynamicClient, clusterID int64, targets []NamespacedName, force bool) BatchResult {
	return f.batch(ctx, dyn, clusterID, targets, func(ns, name string) error {
		return f.Delete(ctx, dyn, Pods, clusterID, ns, name, force)
	})
}

// BatchRestart is implemented as delete — the controller mediates
// replacement.
func (f *MutationFacade) BatchRestart(ctx context.Context, dyn dynamicClient, clusterID int64, targets []NamespacedName) BatchResult {
	return f.batch(ctx, dyn, clusterID, targets, func(ns, name string) error {
		return f.Delete(ctx, dyn, Pods, clusterID, ns, name, false)
	})
}

// NamespacedName identifies one pod within a batch operation.
type NamespacedName struct {
	Namespace string `json:"namespace"`
	Name      string `json:"name"`
}

func (f *MutationFacade) batch(ctx context.Context, dyn dynamicClient, clusterID int64, targets []NamespacedName, op func(ns, name string) error) BatchResult {
	result := BatchResult{Results: make(map[string]bool, len(targets))}
	for _, t := range targets {
		key := t.Namespace + "/" + t.Name
		err := op(t.Namespace, t.Name)
		ok := err == nil
		result.Results[key] = ok
		if ok {
			result.SuccessCount++
		} else {
			result.FailureCount++
		}
	}
	return result
}

func (f *MutationFacade) invalidate(ctx context.Context, k Kind, clusterID int64, namespace string) {
	_ = f.cache.DeletePattern(ctx, cache.ResourceKey(k.Name, clusterID, namespace)+"*")
	_ = f.cache.DeletePattern(ctx, cache.ClusterWideKey(k.Name, clusterID)+"*")
}

func decodeYAML(doc []byte) (*unstructured.Unstructured, error) {
	var m map[string]any
	if err := yaml.Unmarshal(doc, &m); err != nil {
		return nil, apierr.SerializationError("parsing YAML document", err)
	}
	return &unstructured.Unstructured{Object: m}, nil
}
