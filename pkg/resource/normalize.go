package resource

import (
	"fmt"
	"time"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
)

// Snapshot is a normalized, language-neutral view of one upstream object,
// built by the same transform whether it reached us via the Read Facade or
// the Resource Watcher — the two call sites must never diverge.
type Snapshot struct {
	Kind        string         `json:"kind"`
	Namespace   string         `json:"namespace,omitempty"`
	Name        string         `json:"name"`
	Age         string         `json:"age"`
	Annotations map[string]string `json:"annotations,omitempty"`
	Extra       map[string]any `json:"extra,omitempty"`
	Raw         map[string]any `json:"raw"`
}

// Normalize converts one raw unstructured object into a Snapshot, applying
// the kind-specific derived fields (ready containers, restarts, node
// readiness, ingress hosts/addresses, service external IP) on top of the
// universal ones (age, annotations).
func Normalize(kindName string, obj *unstructured.Unstructured) Snapshot {
	meta, _, _ := unstructured.NestedMap(obj.Object, "metadata")
	extra := map[string]any{}

	switch kindName {
	case Pods.Name:
		extra["ready_containers"] = readyContainers(obj)
		extra["restarts"] = restartCount(obj)
	case Nodes.Name:
		extra["status"] = nodeReadiness(obj)
	case Ingresses.Name:
		hosts, addrs := ingressHostsAndAddresses(obj)
		extra["hosts"] = hosts
		extra["addresses"] = addrs
	case Services.Name:
		extra["external_ip"] = serviceExternalIP(obj)
	}

	annotations := map[string]string{}
	if meta != nil {
		if raw, ok := meta["annotations"].(map[string]any); ok {
			for k, v := range raw {
				if s, ok := v.(string); ok {
					annotations[k] = s
				}
			}
		}
	}

	return Snapshot{
		Kind:        kindName,
		Namespace:   obj.GetNamespace(),
		Name:        obj.GetName(),
		Age:         Age(obj.GetCreationTimestamp().Time),
		Annotations: annotations,
		Extra:       extra,
		Raw:         obj.Object,
	}
}

// Age reports the greatest nonzero unit among {d,h,m,s} of now-ts, or
// "Unknown" if ts is the zero value (creation_timestamp missing).
func Age(ts time.Time) string {
	if ts.IsZero() {
		return "Unknown"
	}
	d := time.Since(ts)
	if d < 0 {
		d = 0
	}

	days := int(d.Hours()) / 24
	if days > 0 {
		return fmt.Sprintf("%dd", days)
	}
	hours := int(d.Hours())
	if hours > 0 {
		return fmt.Sprintf("%dh", hours)
	}
	minutes := int(d.Minutes())
	if minutes > 0 {
		return fmt.Sprintf("%dm", minutes)
	}
	return fmt.Sprintf("%ds", int(d.Seconds()))
}

// readyContainers renders "R/T" — T = len(containerStatuses), R = count
// with ready=true.
func readyContainers(obj *unstructured.Unstructured) string {
	statuses, _, _ := unstructured.NestedSlice(obj.Object, "status", "containerStatuses")
	total := len(statuses)
	ready := 0
	for _, s := range statuses {
		m, ok := s.(map[string]any)
		if !ok {
			continue
		}
		if b, ok := m["ready"].(bool); ok && b {
			ready++
		}
	}
	return fmt.Sprintf("%d/%d", ready, total)
}

// restartCount sums restartCount across every container status.
func restartCount(obj *unstructured.Unstructured) int64 {
	statuses, _, _ := unstructured.NestedSlice(obj.Object, "status", "containerStatuses")
	var total int64
	for _, s := range statuses {
		m, ok := s.(map[string]any)
		if !ok {
			continue
		}
		switch v := m["restartCount"].(type) {
		case int64:
			total += v
		case float64:
			total += int64(v)
		}
	}
	return total
}

// nodeReadiness inspects status.conditions for the "Ready" condition and
// returns "Ready", "NotReady", or "Unknown".
func nodeReadiness(obj *unstructured.Unstructured) string {
	conditions, _, _ := unstructured.NestedSlice(obj.Object, "status", "conditions")
	for _, c := range conditions {
		m, ok := c.(map[string]any)
		if !ok {
			continue
		}
		if m["type"] != "Ready" {
			continue
		}
		switch m["status"] {
		case "True":
			return "Ready"
		case "False":
			return "NotReady"
		default:
			return "Unknown"
		}
	}
	return "Unknown"
}

// ingressHostsAndAddresses aggregates hosts from spec.rules and addresses
// from status.loadBalancer.ingress.
func ingressHostsAndAddresses(obj *unstructured.Unstructured) ([]string, []string) {
	var hosts []string
	rules, _, _ := unstructured.NestedSlice(obj.Object, "spec", "rules")
	for _, r := range rules {
		m, ok := r.(map[string]any)
		if !ok {
			continue
		}
		if h, ok := m["host"].(string); ok && h != "" {
			hosts = append(hosts, h)
		}
	}

	var addresses []string
	lbIngress, _, _ := unstructured.NestedSlice(obj.Object, "status", "loadBalancer", "ingress")
	for _, ing := range lbIngress {
		m, ok := ing.(map[string]any)
		if !ok {
			continue
		}
		if h, ok := m["hostname"].(string); ok && h != "" {
			addresses = append(addresses, h)
		} else if ip, ok := m["ip"].(string); ok && ip != "" {
			addresses = append(addresses, ip)
		}
	}
	return hosts, addresses
}

// serviceExternalIP returns the first non-empty hostname, else the first
// non-empty ip, across status.loadBalancer.ingress.
func serviceExternalIP(obj *unstructured.Unstructured) string {
	lbIngress, _, _ := unstructured.NestedSlice(obj.Object, "status", "loadBalancer", "ingress")
	for _, ing := range lbIngress {
		m, ok := ing.(map[string]any)
		if !ok {
			continue
		}
		if h, ok := m["hostname"].(string); ok && h != "" {
			return h
		}
	}
	for _, ing := range lbIngress {
		m, ok := ing.(map[string]any)
		if !ok {
			continue
		}
		if ip, ok := m["ip"].(string); ok && ip != "" {
			return ip
		}
	}
	return ""
}
