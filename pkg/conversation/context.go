package conversation

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
)

// ViewEvent describes what the user is currently looking at in the
// dashboard. Fields are optional; DescribeView renders whatever is set.
type ViewEvent struct {
	Type     string
	Title    string
	Resource map[string]any
	Items    []map[string]any
}

// ClusterHealth carries warning events and a connection error for one
// cluster, fed into the context description alongside the view.
type ClusterHealth struct {
	Warnings []string
	Err      error
}

// DescribeView turns a dashboard view event into a natural language
// description suitable for the context register, instead of dumping raw
// JSON on the model.
func DescribeView(event ViewEvent, currentCluster string, clusterHealth map[string]ClusterHealth) string {
	var parts []string

	if currentCluster != "" {
		parts = append(parts, "You are viewing cluster: "+currentCluster)
	}

	if view := firstNonEmpty(event.Title, event.Type); view != "" {
		parts = append(parts, "Current view: "+view)
	}

	if event.Resource != nil {
		parts = append(parts, describeResource(event.Resource)...)
	}

	if n := len(event.Items); n > 0 {
		kind, _, _ := unstructured.NestedString(event.Items[0], "kind")
		if kind == "" {
			kind = "resource"
		}
		plural := ""
		if n != 1 {
			plural = "s"
		}
		parts = append(parts, fmt.Sprintf("Showing %d %s%s", n, strings.ToLower(kind), plural))

		if kind == "Pod" {
			unhealthy := 0
			for _, pod := range event.Items {
				phase, _, _ := unstructured.NestedString(pod, "status", "phase")
				if phase != "Running" && phase != "Succeeded" {
					unhealthy++
				}
			}
			if unhealthy > 0 {
				parts = append(parts, fmt.Sprintf("%d pod(s) may need attention", unhealthy))
			}
		}
	}

	if len(clusterHealth) > 0 {
		parts = append(parts, "Cluster configured, with respective warnings and errors:")
		for _, name := range sortedKeys(clusterHealth) {
			health := clusterHealth[name]
			switch {
			case len(health.Warnings) > 0:
				parts = append(parts, name+" warnings:")
				for _, w := range health.Warnings {
					parts = append(parts, "- "+w)
				}
			case health.Err != nil:
				parts = append(parts, fmt.Sprintf("%s errors: %s", name, health.Err))
			default:
				parts = append(parts, name+" is healthy!")
			}
		}
	}

	return strings.Join(parts, "\n")
}

func describeResource(resource map[string]any) []string {
	kind, _, _ := unstructured.NestedString(resource, "kind")
	name, _, _ := unstructured.NestedString(resource, "metadata", "name")
	if kind == "" || name == "" {
		return nil
	}

	var parts []string
	line := fmt.Sprintf("Viewing %s: %s", kind, name)
	if ns, _, _ := unstructured.NestedString(resource, "metadata", "namespace"); ns != "" {
		line += " in namespace " + ns
	}
	parts = append(parts, line)

	if phase, _, _ := unstructured.NestedString(resource, "status", "phase"); phase != "" {
		parts = append(parts, "Resource status: "+phase)
	}

	if kind == "Pod" {
		containers, _, _ := unstructured.NestedSlice(resource, "spec", "containers")
		parts = append(parts, fmt.Sprintf("Pod has %d container(s)", len(containers)))

		if statuses, _, _ := unstructured.NestedSlice(resource, "status", "containerStatuses"); len(statuses) > 0 {
			ready := 0
			for _, s := range statuses {
				status, ok := s.(map[string]any)
				if !ok {
					continue
				}
				if isReady, _, _ := unstructured.NestedBool(status, "ready"); isReady {
					ready++
				}
			}
			parts = append(parts, fmt.Sprintf("%d/%d containers ready", ready, len(statuses)))
		}
	}

	return parts
}

// SummarizeResource renders a one line summary of a resource for display
// surfaces that cannot afford the full object.
func SummarizeResource(resource map[string]any) string {
	if resource == nil {
		return ""
	}

	var parts []string

	kind, _, _ := unstructured.NestedString(resource, "kind")
	name, _, _ := unstructured.NestedString(resource, "metadata", "name")
	if kind != "" && name != "" {
		parts = append(parts, kind+": "+name)
	}
	if ns, _, _ := unstructured.NestedString(resource, "metadata", "namespace"); ns != "" {
		parts = append(parts, "Namespace: "+ns)
	}

	if ts, _, _ := unstructured.NestedString(resource, "metadata", "creationTimestamp"); ts != "" {
		if created, err := time.Parse(time.RFC3339, ts); err == nil {
			parts = append(parts, "Age: "+formatAge(time.Since(created)))
		}
	}

	switch kind {
	case "Pod":
		if phase, _, _ := unstructured.NestedString(resource, "status", "phase"); phase != "" {
			parts = append(parts, "Status: "+phase)
		}
	case "Deployment":
		if desired, found, _ := unstructured.NestedInt64(resource, "status", "replicas"); found {
			ready, _, _ := unstructured.NestedInt64(resource, "status", "readyReplicas")
			parts = append(parts, fmt.Sprintf("Replicas: %d/%d", ready, desired))
		}
	case "Service":
		if svcType, _, _ := unstructured.NestedString(resource, "spec", "type"); svcType != "" {
			parts = append(parts, "Type: "+svcType)
		}
	}

	return strings.Join(parts, ", ")
}

func formatAge(d time.Duration) string {
	hours := int(d.Hours())
	switch {
	case hours >= 24:
		return fmt.Sprintf("%dd", hours/24)
	case hours > 0:
		return fmt.Sprintf("%dh", hours)
	default:
		return "<1h"
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func sortedKeys(m map[string]ClusterHealth) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
