package kube

// DeepMerge merges a patch into a target object following merge-patch
// semantics: nulls delete keys, arrays replace wholesale, nested objects
// merge recursively and primitives overwrite. Neither input is mutated.
func DeepMerge(target, patch map[string]any) map[string]any {
	result := make(map[string]any, len(target))
	for k, v := range target {
		result[k] = v
	}

	for key, value := range patch {
		if value == nil {
			delete(result, key)
			continue
		}
		switch v := value.(type) {
		case []any:
			replaced := make([]any, len(v))
			copy(replaced, v)
			result[key] = replaced
		case map[string]any:
			existing, ok := result[key].(map[string]any)
			if !ok {
				existing = map[string]any{}
			}
			result[key] = DeepMerge(existing, v)
		default:
			result[key] = value
		}
	}

	return result
}
