// Package summarize reduces Kubernetes objects to a character budget before
// they are injected into a model conversation. Budgets are measured in
// characters of serialized JSON, not tokens.
package summarize

import (
	"encoding/json"
	"log/slog"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	k8sruntime "k8s.io/apimachinery/pkg/runtime"
)

// DefaultBudget is the default serialized-size budget, in characters.
const DefaultBudget = 3000

// Object reduces obj so that its JSON serialization fits under budget.
// It returns the (possibly reduced) object and whether any reduction
// happened. The input is never mutated.
//
// Reduction is staged: first metadata.annotations and
// metadata.managedFields are dropped, then the object collapses to a
// minimal identity projection, optionally keeping spec when it still fits.
func Object(obj map[string]any, budget int) (map[string]any, bool) {
	if budget <= 0 {
		budget = DefaultBudget
	}
	if obj == nil {
		return nil, false
	}

	if serializedLen(obj) <= budget {
		return obj, false
	}

	pruned := k8sruntime.DeepCopyJSON(obj)
	unstructured.RemoveNestedField(pruned, "metadata", "annotations")
	unstructured.RemoveNestedField(pruned, "metadata", "managedFields")
	if serializedLen(pruned) <= budget {
		slog.Debug("Summarized object by pruning metadata", "kind", kindOf(obj))
		return pruned, true
	}

	minimal := minimalProjection(obj)
	if spec, ok := obj["spec"]; ok {
		withSpec := k8sruntime.DeepCopyJSON(minimal)
		withSpec["spec"] = k8sruntime.DeepCopyJSONValue(spec)
		if serializedLen(withSpec) <= budget {
			slog.Debug("Summarized object to minimal projection with spec", "kind", kindOf(obj))
			return withSpec, true
		}
	}

	slog.Debug("Summarized object to minimal projection", "kind", kindOf(obj))
	return minimal, true
}

// List reduces a list of objects to fit under budget. Reduction is
// all-or-nothing: either the list already fits, or every element collapses
// to its minimal projection.
func List(items []map[string]any, budget int) ([]map[string]any, bool) {
	if budget <= 0 {
		budget = DefaultBudget
	}
	if items == nil {
		return nil, false
	}

	b, err := json.Marshal(items)
	if err == nil && len(b) <= budget {
		return items, false
	}

	reduced := make([]map[string]any, len(items))
	for i, item := range items {
		reduced[i] = minimalProjection(item)
	}
	slog.Debug("Summarized list to minimal projections", "items", len(items))
	return reduced, true
}

// minimalProjection keeps only what identifies the object: kind and
// metadata.name/namespace, plus the event source and reason for Events.
func minimalProjection(obj map[string]any) map[string]any {
	metadata := map[string]any{}
	if name, ok, _ := unstructured.NestedString(obj, "metadata", "name"); ok && name != "" {
		metadata["name"] = name
	}
	if ns, ok, _ := unstructured.NestedString(obj, "metadata", "namespace"); ok && ns != "" {
		metadata["namespace"] = ns
	}

	minimal := map[string]any{
		"kind":     kindOf(obj),
		"metadata": metadata,
	}

	if kindOf(obj) == "Event" {
		involved := map[string]any{}
		for _, field := range []string{"kind", "name", "namespace"} {
			if v, ok, _ := unstructured.NestedString(obj, "involvedObject", field); ok && v != "" {
				involved[field] = v
			}
		}
		if len(involved) > 0 {
			minimal["involvedObject"] = involved
		}
		if reason, ok, _ := unstructured.NestedString(obj, "reason"); ok && reason != "" {
			minimal["reason"] = reason
		}
	}

	return minimal
}

func kindOf(obj map[string]any) string {
	kind, _, _ := unstructured.NestedString(obj, "kind")
	return kind
}

func serializedLen(obj map[string]any) int {
	b, err := json.Marshal(obj)
	if err != nil {
		return 0
	}
	return len(b)
}
