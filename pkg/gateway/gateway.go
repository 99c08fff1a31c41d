// Package gateway executes kubernetes_api_request tool calls against the
// cluster and formats the results for the model.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/goccy/go-yaml"

	"github.com/kubewise/kubewise/pkg/kube"
	"github.com/kubewise/kubewise/pkg/summarize"
	"github.com/kubewise/kubewise/pkg/tools"
)

// toolResultBudget caps how many bytes of a single object response are
// handed back to the model before summarization kicks in.
const toolResultBudget = 8000

// ClientSource resolves the API client for a named cluster. An empty name
// selects the current context.
type ClientSource interface {
	Client(cluster string) (kube.Client, error)
}

// Gateway executes Kubernetes API requests on behalf of the model.
type Gateway struct {
	source ClientSource
}

func New(source ClientSource) *Gateway {
	return &Gateway{source: source}
}

// Tools lists the tool definitions the gateway can execute.
func (g *Gateway) Tools() []tools.Tool {
	return []tools.Tool{tools.KubernetesAPIRequest()}
}

// RequiresConfirmation reports whether the request mutates cluster state
// and therefore needs user approval before executing.
func RequiresConfirmation(args *tools.APIRequestArgs) bool {
	return !strings.EqualFold(args.Method, "GET")
}

// Get executes a read request immediately and formats the response. Errors
// from the API server are folded into the tool result so the model can
// react to them.
func (g *Gateway) Get(ctx context.Context, args *tools.APIRequestArgs) *tools.ToolCallResult {
	client, err := g.source.Client(args.Cluster)
	if err != nil {
		return getError(args, err)
	}

	cleaned := kube.CleanURL(args.URL)

	req := kube.Request{
		URL:    cleaned,
		Method: "GET",
		Body:   args.Body,
	}
	switch {
	case kube.IsLogRequest(cleaned):
		req.Accept = "*/*"
	case kube.IsNamedResourceRequest(cleaned):
		req.Accept = kube.ContentTypeJSON
		req.ContentType = kube.ContentTypeJSON
	default:
		// Lists come back as server side Tables so the result stays small.
		req.Accept = kube.AcceptTable
		req.ContentType = kube.ContentTypeJSON
	}

	resp, err := client.Do(ctx, req)
	if err != nil {
		if kube.IsLogRequest(cleaned) {
			if hint := multiContainerHint(cleaned, err); hint != "" {
				return &tools.ToolCallResult{Output: hint}
			}
			return &tools.ToolCallResult{Output: fmt.Sprintf("Error fetching logs: %v", err)}
		}
		return getError(args, err)
	}

	if kube.IsLogRequest(cleaned) {
		return formatLogs(client.Cluster(), cleaned, resp)
	}

	return &tools.ToolCallResult{Output: g.formatGetResponse(client.Cluster(), cleaned, resp)}
}

// formatLogs keeps the raw log text out of the conversation history; the
// model gets a line count summary and the UI gets the text as a payload.
func formatLogs(cluster, url string, resp *kube.Response) *tools.ToolCallResult {
	content := strings.TrimSpace(string(resp.Body))
	if content == "" {
		return &tools.ToolCallResult{Output: "No logs found"}
	}

	lines := strings.Count(content, "\n") + 1

	payload := &tools.LogsPayload{
		Cluster: cluster,
		Lines:   lines,
		Content: content,
	}
	name := "the resource"
	if ref, ok := kube.ParseResourcePath(url); ok {
		payload.Namespace = ref.Namespace
		payload.Resource = ref.Resource
		payload.Name = ref.Name
		if ref.Name != "" {
			name = ref.Name
		}
	}

	return &tools.ToolCallResult{
		Output: fmt.Sprintf("Retrieved %d lines of logs from %s. The logs are shown to the user.", lines, name),
		Logs:   payload,
	}
}

func getError(args *tools.APIRequestArgs, err error) *tools.ToolCallResult {
	payload := map[string]any{
		"error":   true,
		"message": fmt.Sprintf("Error executing GET request: %v", err),
		"request": map[string]any{
			"method": strings.ToUpper(args.Method),
			"url":    args.URL,
		},
	}
	encoded, _ := json.Marshal(payload)
	return &tools.ToolCallResult{Output: string(encoded)}
}

// multiContainerHint recognizes the API server error for log requests
// against multi container pods and turns it into guidance instead of a raw
// failure.
func multiContainerHint(url string, err error) string {
	msg := err.Error()
	if !strings.Contains(msg, "container name must be specified") && !strings.Contains(msg, "choose one of") {
		return ""
	}

	podName := ""
	if ref, ok := kube.ParseResourcePath(url); ok {
		podName = ref.Name
	}

	if start := strings.Index(msg, "choose one of: ["); start != -1 {
		list := msg[start+len("choose one of: ["):]
		if end := strings.Index(list, "]"); end != -1 {
			containers := strings.Fields(list[:end])
			return fmt.Sprintf(
				"The pod %q has multiple containers. Please specify which container you want logs from.\n\nAvailable containers: %s",
				podName, strings.Join(containers, ", "))
		}
	}

	return fmt.Sprintf(
		"Failed to get logs from pod %q. This is likely because it has multiple containers; fetch the pod details to see the available containers.",
		podName)
}

func (g *Gateway) formatGetResponse(cluster, url string, resp *kube.Response) string {
	body := strings.TrimSpace(string(resp.Body))
	if body == "" {
		return "No data found"
	}

	var obj map[string]any
	if err := json.Unmarshal(resp.Body, &obj); err != nil {
		// Plain text responses pass through untouched.
		return body
	}

	if kind, _ := obj["kind"].(string); kind == "Table" {
		table, err := decodeTable(resp.Body)
		if err != nil {
			slog.Warn("Failed to decode Table response", "url", url, "error", err)
			return body
		}
		return formatTable(table, cluster, kube.KindFromListURL(url))
	}

	if len(body) > toolResultBudget {
		if reduced, ok := summarize.Object(obj, toolResultBudget); ok {
			slog.Debug("Summarized oversized tool result", "url", url, "original_size", len(body))
			obj = reduced
		}
	}

	pretty, err := json.MarshalIndent(obj, "", "  ")
	if err != nil {
		return body
	}
	return string(pretty)
}

// MutationPreview describes a pending non-GET request for the confirmation
// dialog.
type MutationPreview struct {
	Method string `json:"method"`
	URL    string `json:"url"`
	Body   string `json:"body,omitempty"`
	Kind   string `json:"kind,omitempty"`
	Name   string `json:"name,omitempty"`
	// Destructive marks requests that remove the resource, so the dialog
	// can warn accordingly.
	Destructive bool `json:"destructive,omitempty"`
	// Merged shows the live resource with the patch applied, so the user
	// reviews the effective object rather than the bare patch.
	Merged map[string]any `json:"merged,omitempty"`
}

// Preview prepares the confirmation payload for a mutation. For PATCH and
// PUT it fetches the live resource and applies the patch so the dialog can
// show the resulting object.
func (g *Gateway) Preview(ctx context.Context, args *tools.APIRequestArgs) (*MutationPreview, error) {
	preview := &MutationPreview{
		Method:      strings.ToUpper(args.Method),
		URL:         args.URL,
		Body:        args.Body,
		Destructive: strings.EqualFold(args.Method, "DELETE"),
	}

	if ref, ok := kube.ParseResourcePath(args.URL); ok {
		preview.Kind = ref.Resource
		preview.Name = ref.Name
	}
	if resource, err := parseResourceBody(args.Body); err == nil {
		if kind, _ := resource["kind"].(string); kind != "" {
			preview.Kind = kind
		}
		if name, ok := nestedString(resource, "metadata", "name"); ok {
			preview.Name = name
		}
	}

	if preview.Method != "PATCH" && preview.Method != "PUT" {
		return preview, nil
	}

	patch, err := parseResourceBody(args.Body)
	if err != nil {
		return nil, fmt.Errorf("parsing patch body: %w", err)
	}

	client, err := g.source.Client(args.Cluster)
	if err != nil {
		return nil, err
	}

	resp, err := client.Do(ctx, kube.Request{
		URL:         kube.CleanURL(args.URL),
		Method:      "GET",
		Accept:      kube.ContentTypeJSON,
		ContentType: kube.ContentTypeJSON,
	})
	if err != nil {
		return nil, fmt.Errorf("fetching current resource: %w", err)
	}

	var current map[string]any
	if err := resp.Decode(&current); err != nil {
		return nil, err
	}

	preview.Merged = kube.DeepMerge(current, patch)
	return preview, nil
}

// Mutate executes an approved non-GET request and returns the tool result
// the model sees.
func (g *Gateway) Mutate(ctx context.Context, args *tools.APIRequestArgs) (*tools.ToolCallResult, error) {
	client, err := g.source.Client(args.Cluster)
	if err != nil {
		return nil, err
	}

	method := strings.ToUpper(args.Method)
	switch method {
	case "POST":
		return g.create(ctx, client, args)
	case "DELETE":
		return g.delete(ctx, client, args)
	case "PATCH", "PUT":
		return g.update(ctx, client, args, method)
	default:
		return nil, fmt.Errorf("unsupported method %q", args.Method)
	}
}

func (g *Gateway) create(ctx context.Context, client kube.Client, args *tools.APIRequestArgs) (*tools.ToolCallResult, error) {
	resource, err := parseResourceBody(args.Body)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	body, err := json.Marshal(resource)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	resp, err := client.Do(ctx, kube.Request{
		URL:         args.URL,
		Method:      "POST",
		Body:        string(body),
		Accept:      kube.ContentTypeJSON,
		ContentType: kube.ContentTypeJSON,
	})
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	var created map[string]any
	if err := resp.Decode(&created); err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	kind, _ := resource["kind"].(string)
	if kind == "" {
		kind = "Resource"
	}
	name, _ := nestedString(created, "metadata", "name")
	slog.Info("Resource created", "kind", kind, "name", name, "cluster", client.Cluster())
	return &tools.ToolCallResult{Output: fmt.Sprintf("%s %s created successfully.", kind, name)}, nil
}

func (g *Gateway) delete(ctx context.Context, client kube.Client, args *tools.APIRequestArgs) (*tools.ToolCallResult, error) {
	kind, name := identifyTarget(args)

	_, err := client.Do(ctx, kube.Request{
		URL:         args.URL,
		Method:      "DELETE",
		Accept:      kube.ContentTypeJSON,
		ContentType: kube.ContentTypeJSON,
	})
	if err != nil {
		return nil, fmt.Errorf("deleting resource: %w", err)
	}

	slog.Info("Resource deleted", "kind", kind, "name", name, "cluster", client.Cluster())
	return &tools.ToolCallResult{Output: fmt.Sprintf("%s %s deleted successfully.", kind, name)}, nil
}

func (g *Gateway) update(ctx context.Context, client kube.Client, args *tools.APIRequestArgs, method string) (*tools.ToolCallResult, error) {
	resource, err := parseResourceBody(args.Body)
	if err != nil {
		return nil, fmt.Errorf("updating resource: %w", err)
	}

	req := kube.Request{
		URL:    args.URL,
		Method: method,
		Accept: kube.ContentTypeJSON,
	}

	if method == "PATCH" {
		body, err := json.Marshal(resource)
		if err != nil {
			return nil, fmt.Errorf("updating resource: %w", err)
		}
		req.Body = string(body)
		req.ContentType = kube.ContentTypeMergePatch
	} else {
		// PUT replaces the whole object, so apply the patch to the live
		// resource first.
		resp, err := client.Do(ctx, kube.Request{
			URL:         kube.CleanURL(args.URL),
			Method:      "GET",
			Accept:      kube.ContentTypeJSON,
			ContentType: kube.ContentTypeJSON,
		})
		if err != nil {
			return nil, fmt.Errorf("updating resource: %w", err)
		}
		var current map[string]any
		if err := resp.Decode(&current); err != nil {
			return nil, fmt.Errorf("updating resource: %w", err)
		}

		body, err := json.Marshal(kube.DeepMerge(current, resource))
		if err != nil {
			return nil, fmt.Errorf("updating resource: %w", err)
		}
		req.Body = string(body)
		req.ContentType = kube.ContentTypeJSON
	}

	if _, err := client.Do(ctx, req); err != nil {
		return nil, fmt.Errorf("updating resource: %w", err)
	}

	kind, name := identifyTarget(args)
	slog.Info("Resource updated", "kind", kind, "name", name, "method", method, "cluster", client.Cluster())
	return &tools.ToolCallResult{Output: fmt.Sprintf("%s %s updated successfully.", kind, name)}, nil
}

// identifyTarget names the resource a mutation addresses, preferring the
// URL path and falling back to the request body.
func identifyTarget(args *tools.APIRequestArgs) (kind, name string) {
	if ref, ok := kube.ParseResourcePath(args.URL); ok {
		kind = ref.Resource
		name = ref.Name
	}
	if resource, err := parseResourceBody(args.Body); err == nil {
		if k, _ := resource["kind"].(string); k != "" {
			kind = k
		}
		if n, ok := nestedString(resource, "metadata", "name"); ok && n != "" {
			name = n
		} else if n, ok := resource["name"].(string); ok && n != "" {
			name = n
		}
	}
	if kind == "" {
		kind = "Resource"
	}
	return kind, name
}

// parseResourceBody accepts either YAML or JSON, since models emit both.
func parseResourceBody(body string) (map[string]any, error) {
	if strings.TrimSpace(body) == "" {
		return nil, errors.New("empty body")
	}

	var resource map[string]any
	if err := yaml.Unmarshal([]byte(body), &resource); err == nil {
		return resource, nil
	}
	if err := json.Unmarshal([]byte(body), &resource); err != nil {
		return nil, fmt.Errorf("body is neither valid YAML nor JSON: %w", err)
	}
	return resource, nil
}

func nestedString(obj map[string]any, keys ...string) (string, bool) {
	current := obj
	for i, key := range keys {
		if i == len(keys)-1 {
			s, ok := current[key].(string)
			return s, ok
		}
		next, ok := current[key].(map[string]any)
		if !ok {
			return "", false
		}
		current = next
	}
	return "", false
}
