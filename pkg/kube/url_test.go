package kube

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		url      string
		expected string
	}{
		{
			name:     "no query",
			url:      "/api/v1/pods",
			expected: "/api/v1/pods",
		},
		{
			name:     "strips allNamespaces",
			url:      "/api/v1/pods?allNamespaces=true",
			expected: "/api/v1/pods",
		},
		{
			name:     "keeps other params",
			url:      "/api/v1/pods?allNamespaces=true&labelSelector=app%3Dweb",
			expected: "/api/v1/pods?labelSelector=app%3Dweb",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, CleanURL(tt.url))
		})
	}
}

func TestIsLogRequest(t *testing.T) {
	t.Parallel()

	assert.True(t, IsLogRequest("/api/v1/namespaces/default/pods/web-0/log"))
	assert.True(t, IsLogRequest("/api/v1/namespaces/default/pods/web-0/log?container=web"))
	assert.False(t, IsLogRequest("/api/v1/namespaces/default/pods/web-0"))
	assert.False(t, IsLogRequest("/api/v1/pods"))
}

func TestParseResourcePath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		url      string
		expected ResourceRef
		ok       bool
	}{
		{
			name:     "core group list",
			url:      "/api/v1/pods",
			expected: ResourceRef{Version: "v1", Resource: "pods"},
			ok:       true,
		},
		{
			name: "core group namespaced named",
			url:  "/api/v1/namespaces/default/pods/web-0",
			expected: ResourceRef{
				Version:   "v1",
				Namespace: "default",
				Resource:  "pods",
				Name:      "web-0",
			},
			ok: true,
		},
		{
			name: "named group with subresource",
			url:  "/apis/apps/v1/namespaces/default/deployments/web/status",
			expected: ResourceRef{
				Group:       "apps",
				Version:     "v1",
				Namespace:   "default",
				Resource:    "deployments",
				Name:        "web",
				Subresource: "status",
			},
			ok: true,
		},
		{
			name:     "namespace object itself",
			url:      "/api/v1/namespaces/kube-system",
			expected: ResourceRef{Version: "v1", Resource: "namespaces", Name: "kube-system"},
			ok:       true,
		},
		{
			name: "query string ignored",
			url:  "/api/v1/namespaces/default/pods/web-0/log?container=web",
			expected: ResourceRef{
				Version:     "v1",
				Namespace:   "default",
				Resource:    "pods",
				Name:        "web-0",
				Subresource: "log",
			},
			ok: true,
		},
		{
			name: "not an API path",
			url:  "/healthz",
			ok:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ref, ok := ParseResourcePath(tt.url)
			require.Equal(t, tt.ok, ok)
			if ok {
				assert.Equal(t, tt.expected, ref)
			}
		})
	}
}

func TestIsNamedResourceRequest(t *testing.T) {
	t.Parallel()

	assert.True(t, IsNamedResourceRequest("/api/v1/namespaces/default/pods/web-0"))
	assert.False(t, IsNamedResourceRequest("/api/v1/pods"))
	assert.False(t, IsNamedResourceRequest("/apis/apps/v1/deployments"))
}

func TestKindFromListURL(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "pods", KindFromListURL("/api/v1/pods"))
	assert.Equal(t, "pods", KindFromListURL("/api/v1/namespaces/default/pods"))
	assert.Equal(t, "deployments", KindFromListURL("/apis/apps/v1/deployments"))
	assert.Equal(t, "", KindFromListURL("/healthz"))
}
