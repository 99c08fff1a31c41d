// Package api defines the wire types exchanged with the web UI.
package api

type ChatRequest struct {
	Message string `json:"message"`
}

type ResumeRequest struct {
	Type       string `json:"type"`
	EditedBody string `json:"editedBody,omitempty"`
}

// ViewEvent describes what the user is currently looking at in the UI.
type ViewEvent struct {
	Type     string           `json:"type"`
	Title    string           `json:"title,omitempty"`
	Resource map[string]any   `json:"resource,omitempty"`
	Items    []map[string]any `json:"items,omitempty"`
}

type ClusterHealth struct {
	Warnings []string `json:"warnings,omitempty"`
	Error    string   `json:"error,omitempty"`
}

type ContextRequest struct {
	Cluster string                   `json:"cluster,omitempty"`
	Event   *ViewEvent               `json:"event,omitempty"`
	Health  map[string]ClusterHealth `json:"health,omitempty"`
}

type SaveProviderRequest struct {
	ProviderID  string         `json:"providerId"`
	DisplayName string         `json:"displayName,omitempty"`
	Config      map[string]any `json:"config"`
	MakeDefault bool           `json:"makeDefault,omitempty"`
}

type ActivateProviderRequest struct {
	ProviderID string `json:"providerId"`
}

type DeleteProviderRequest struct {
	ProviderID string         `json:"providerId"`
	Config     map[string]any `json:"config,omitempty"`
}

// ProviderInfo is the saved provider entry with secrets stripped.
type ProviderInfo struct {
	ProviderID  string `json:"providerId"`
	DisplayName string `json:"displayName,omitempty"`
	Model       string `json:"model,omitempty"`
	IsDefault   bool   `json:"isDefault"`
	Active      bool   `json:"active"`
}
