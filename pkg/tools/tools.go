package tools

// KubernetesAPIRequestName is the single tool exposed to every provider.
const KubernetesAPIRequestName = "kubernetes_api_request"

// KubernetesAPIRequest returns the tool definition for making requests
// against the Kubernetes API server on behalf of the user.
func KubernetesAPIRequest() Tool {
	return Tool{
		Type: ToolTypeFunction,
		Function: &FunctionDefinition{
			Name:        KubernetesAPIRequestName,
			Description: "Make requests to the Kubernetes API server to fetch, create, update or delete resources.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"url": map[string]any{
						"type":        "string",
						"description": "URL to request, e.g., /api/v1/pods or /api/v1/namespaces/default/pods/pod-name",
					},
					"method": map[string]any{
						"type":        "string",
						"description": "HTTP method: GET, POST, PATCH, PUT, DELETE",
					},
					"body": map[string]any{
						"type":        "string",
						"description": "Optional HTTP body, as YAML or JSON",
					},
					"cluster": map[string]any{
						"type":        "string",
						"description": "Optional cluster name; defaults to the current cluster",
					},
				},
				"required": []string{"url", "method"},
			},
		},
	}
}

// APIRequestArgs is the decoded argument payload of a kubernetes_api_request
// tool call.
type APIRequestArgs struct {
	URL     string `json:"url"`
	Method  string `json:"method"`
	Body    string `json:"body,omitempty"`
	Cluster string `json:"cluster,omitempty"`
}
