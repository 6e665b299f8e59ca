package resource

import (
	"context"
	"fmt"
	"time"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"sigs.k8s.io/yaml"

	"github.com/wisbric/kubefleet/internal/apierr"
	"github.com/wisbric/kubefleet/pkg/cache"
)

// ListPage is one cursor-paged slice of normalized objects. Continue is the
// upstream opaque token, forwarded verbatim — the facade never re-encodes
// or concatenates multiple pages server-side.
type ListPage struct {
	Items    []Snapshot `json:"items"`
	Continue string     `json:"continue_token,omitempty"`
}

// ReadFacade implements list/detail/yaml, shared by every kind.
type ReadFacade struct {
	cache cache.Cache
}

func NewReadFacade(c cache.Cache) *ReadFacade {
	return &ReadFacade{cache: c}
}

// ListPage delegates to the upstream cursor-paged list for one kind. A limit
// below 1 falls back to 50 and one above 1000 is capped at 1000; namespace
// empty means cluster-wide for
// namespaced kinds, or is ignored for cluster-scoped kinds.
func (f *ReadFacade) ListPage(ctx context.Context, dyn dynamicClient, k Kind, clusterID int64, namespace string, limit int64, continueToken, labelSelector string) (ListPage, error) {
	if limit < 1 {
		limit = 50
	}
	if limit > 1000 {
		limit = 1000
	}

	if k.CacheTTLSeconds > 0 && continueToken == "" {
		key := cache.ResourceKey(k.Name, clusterID, namespace)
		var cached ListPage
		if hit, _ := f.cache.Get(ctx, key, &cached); hit {
			return cached, nil
		}
		page, err := f.listUpstream(ctx, dyn, k, namespace, limit, continueToken, labelSelector)
		if err != nil {
			return ListPage{}, err
		}
		_ = f.cache.Set(ctx, key, page, time.Duration(k.CacheTTLSeconds)*time.Second)
		return page, nil
	}

	return f.listUpstream(ctx, dyn, k, namespace, limit, continueToken, labelSelector)
}

func (f *ReadFacade) listUpstream(ctx context.Context, dyn dynamicClient, k Kind, namespace string, limit int64, continueToken, labelSelector string) (ListPage, error) {
	opts := metav1.ListOptions{Limit: limit, Continue: continueToken, LabelSelector: labelSelector}

	var list *unstructured.UnstructuredList
	var err error
	if k.Namespaced && namespace != "" {
		list, err = dyn.Resource(k.GVR).Namespace(namespace).List(ctx, opts)
	} else {
		list, err = dyn.Resource(k.GVR).List(ctx, opts)
	}
	if err != nil {
		return ListPage{}, translateUpstreamErr(err)
	}

	page := ListPage{Continue: list.GetContinue()}
	for i := range list.Items {
		page.Items = append(page.Items, Normalize(k.Name, &list.Items[i]))
	}
	return page, nil
}

// Detail fetches and normalizes a single object.
func (f *ReadFacade) Detail(ctx context.Context, dyn dynamicClient, k Kind, namespace, name string) (Snapshot, error) {
	obj, err := f.get(ctx, dyn, k, namespace, name)
	if err != nil {
		return Snapshot{}, err
	}
	return Normalize(k.Name, obj), nil
}

// YAML serializes the detail blob with ordered keys preserved.
func (f *ReadFacade) YAML(ctx context.Context, dyn dynamicClient, k Kind, namespace, name string) (string, error) {
	obj, err := f.get(ctx, dyn, k, namespace, name)
	if err != nil {
		return "", err
	}
	out, err := yaml.Marshal(obj.Object)
	if err != nil {
		return "", apierr.SerializationError("marshaling object to YAML", err)
	}
	return string(out), nil
}

func (f *ReadFacade) get(ctx context.Context, dyn dynamicClient, k Kind, namespace, name string) (*unstructured.Unstructured, error) {
	var obj *unstructured.Unstructured
	var err error
	if k.Namespaced {
		obj, err = dyn.Resource(k.GVR).Namespace(namespace).Get(ctx, name, metav1.GetOptions{})
	} else {
		obj, err = dyn.Resource(k.GVR).Get(ctx, name, metav1.GetOptions{})
	}
	if err != nil {
		return nil, translateUpstreamErr(err)
	}
	return obj, nil
}

func translateUpstreamErr(err error) error {
	if err == nil {
		return nil
	}
	if status, ok := err.(apierrors.APIStatus); ok {
		code := int(status.Status().Code)
		return apierr.UpstreamAPIError(code, status.Status().Message, err)
	}
	return apierr.UpstreamUnreachable(fmt.Sprintf("contacting upstream API: %v", err), err)
}
