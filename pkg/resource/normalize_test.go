package resource

import (
	"testing"
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
)

func TestAge(t *testing.T) {
	tests := []struct {
		name string
		ts   time.Time
		want string
	}{
		{"zero value", time.Time{}, "Unknown"},
		{"just now", time.Now(), "0s"},
		{"seconds", time.Now().Add(-30 * time.Second), "30s"},
		{"minutes", time.Now().Add(-5 * time.Minute), "5m"},
		{"hours", time.Now().Add(-3 * time.Hour), "3h"},
		{"days", time.Now().Add(-48 * time.Hour), "2d"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Age(tt.ts); got != tt.want {
				t.Errorf("Age() = %q, want %q", got, tt.want)
			}
		})
	}
}

func podWith(statuses []any) *unstructured.Unstructured {
	return &unstructured.Unstructured{Object: map[string]any{
		"metadata": map[string]any{"name": "p", "namespace": "ns"},
		"status":   map[string]any{"containerStatuses": statuses},
	}}
}

func TestNormalizePods(t *testing.T) {
	obj := podWith([]any{
		map[string]any{"ready": true, "restartCount": int64(2)},
		map[string]any{"ready": false, "restartCount": int64(1)},
	})

	snap := Normalize(Pods.Name, obj)

	if snap.Extra["ready_containers"] != "1/2" {
		t.Errorf("ready_containers = %v, want 1/2", snap.Extra["ready_containers"])
	}
	if snap.Extra["restarts"] != int64(3) {
		t.Errorf("restarts = %v, want 3", snap.Extra["restarts"])
	}
}

func TestNormalizePods_NoContainerStatuses(t *testing.T) {
	obj := podWith(nil)
	snap := Normalize(Pods.Name, obj)

	if snap.Extra["ready_containers"] != "0/0" {
		t.Errorf("ready_containers = %v, want 0/0", snap.Extra["ready_containers"])
	}
	if snap.Extra["restarts"] != int64(0) {
		t.Errorf("restarts = %v, want 0", snap.Extra["restarts"])
	}
}

func TestNormalizeNodes(t *testing.T) {
	tests := []struct {
		name       string
		conditions []any
		want       string
	}{
		{"ready", []any{map[string]any{"type": "Ready", "status": "True"}}, "Ready"},
		{"not ready", []any{map[string]any{"type": "Ready", "status": "False"}}, "NotReady"},
		{"unknown status", []any{map[string]any{"type": "Ready", "status": "Unknown"}}, "Unknown"},
		{"no ready condition", []any{map[string]any{"type": "MemoryPressure", "status": "False"}}, "Unknown"},
		{"no conditions", nil, "Unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obj := &unstructured.Unstructured{Object: map[string]any{
				"metadata": map[string]any{"name": "n"},
				"status":   map[string]any{"conditions": tt.conditions},
			}}
			snap := Normalize(Nodes.Name, obj)
			if snap.Extra["status"] != tt.want {
				t.Errorf("status = %v, want %v", snap.Extra["status"], tt.want)
			}
		})
	}
}

func TestNormalizeIngresses(t *testing.T) {
	obj := &unstructured.Unstructured{Object: map[string]any{
		"metadata": map[string]any{"name": "i", "namespace": "ns"},
		"spec": map[string]any{
			"rules": []any{
				map[string]any{"host": "a.example.com"},
				map[string]any{"host": "b.example.com"},
			},
		},
		"status": map[string]any{
			"loadBalancer": map[string]any{
				"ingress": []any{
					map[string]any{"ip": "10.0.0.1"},
				},
			},
		},
	}}

	snap := Normalize(Ingresses.Name, obj)

	hosts, ok := snap.Extra["hosts"].([]string)
	if !ok || len(hosts) != 2 || hosts[0] != "a.example.com" {
		t.Errorf("hosts = %v", snap.Extra["hosts"])
	}
	addrs, ok := snap.Extra["addresses"].([]string)
	if !ok || len(addrs) != 1 || addrs[0] != "10.0.0.1" {
		t.Errorf("addresses = %v", snap.Extra["addresses"])
	}
}

func TestNormalizeServices_PrefersHostnameOverIP(t *testing.T) {
	obj := &unstructured.Unstructured{Object: map[string]any{
		"metadata": map[string]any{"name": "s", "namespace": "ns"},
		"status": map[string]any{
			"loadBalancer": map[string]any{
				"ingress": []any{
					map[string]any{"ip": "10.0.0.1"},
					map[string]any{"hostname": "lb.example.com"},
				},
			},
		},
	}}

	snap := Normalize(Services.Name, obj)
	if snap.Extra["external_ip"] != "lb.example.com" {
		t.Errorf("external_ip = %v, want lb.example.com", snap.Extra["external_ip"])
	}
}

func TestNormalizeServices_NoLoadBalancer(t *testing.T) {
	obj := &unstructured.Unstructured{Object: map[string]any{
		"metadata": map[string]any{"name": "s", "namespace": "ns"},
	}}
	snap := Normalize(Services.Name, obj)
	if snap.Extra["external_ip"] != "" {
		t.Errorf("external_ip = %v, want empty", snap.Extra["external_ip"])
	}
}

func TestNormalizeAnnotationsAndRaw(t *testing.T) {
	obj := &unstructured.Unstructured{Object: map[string]any{
		"metadata": map[string]any{
			"name":        "cm",
			"namespace":   "ns",
			"annotations": map[string]any{"a": "1", "b": "2"},
		},
	}}
	obj.SetCreationTimestamp(metav1.Now())

	snap := Normalize(ConfigMaps.Name, obj)

	if snap.Name != "cm" || snap.Namespace != "ns" {
		t.Errorf("name/namespace = %q/%q", snap.Name, snap.Namespace)
	}
	if snap.Annotations["a"] != "1" || snap.Annotations["b"] != "2" {
		t.Errorf("annotations = %v", snap.Annotations)
	}
	if snap.Raw == nil {
		t.Error("Raw should never be nil")
	}
}
