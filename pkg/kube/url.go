package kube

import (
	"net/url"
	"regexp"
	"strings"
)

// listKindPattern extracts the resource name from a list URL, e.g.
// /api/v1/pods or /apis/apps/v1/namespaces/default/deployments.
var listKindPattern = regexp.MustCompile(`/(?:api/v1|apis/[^/]+/[^/]+)/(?:namespaces/[^/]+/)?([^/?]+)`)

// ResourceRef identifies a single resource addressed by an API path.
type ResourceRef struct {
	Group     string
	Version   string
	Namespace string
	Resource  string
	Name      string
	// Subresource holds a trailing path element such as "log" or "status".
	Subresource string
}

// CleanURL normalizes a request URL before it is sent to the API server.
// Models occasionally carry over the dashboard's allNamespaces query
// parameter, which the API server rejects.
func CleanURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	q.Del("allNamespaces")
	u.RawQuery = q.Encode()
	if u.RawQuery == "" {
		return u.Path
	}
	return u.Path + "?" + u.RawQuery
}

// IsLogRequest reports whether the URL targets a pod log subresource.
func IsLogRequest(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return strings.HasSuffix(u.Path, "/log")
}

// IsNamedResourceRequest reports whether the URL addresses a single named
// resource rather than a collection.
func IsNamedResourceRequest(raw string) bool {
	ref, ok := ParseResourcePath(raw)
	return ok && ref.Name != ""
}

// KindFromListURL extracts the resource name from a list URL for display
// purposes. Returns "" when the URL does not look like a resource path.
func KindFromListURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	m := listKindPattern.FindStringSubmatch(u.Path)
	if m == nil {
		return ""
	}
	return m[1]
}

// ParseResourcePath decomposes a Kubernetes API path into its parts. It
// understands both the core group (/api/v1/...) and named groups
// (/apis/GROUP/VERSION/...), with optional namespace, resource name and
// subresource segments.
func ParseResourcePath(raw string) (ResourceRef, bool) {
	u, err := url.Parse(raw)
	if err != nil {
		return ResourceRef{}, false
	}

	segments := splitPath(u.Path)
	var ref ResourceRef

	switch {
	case len(segments) >= 2 && segments[0] == "api":
		ref.Version = segments[1]
		segments = segments[2:]
	case len(segments) >= 3 && segments[0] == "apis":
		ref.Group = segments[1]
		ref.Version = segments[2]
		segments = segments[3:]
	default:
		return ResourceRef{}, false
	}

	if len(segments) >= 2 && segments[0] == "namespaces" {
		// /namespaces/NS followed by a resource means a namespaced path;
		// a bare /namespaces/NS addresses the Namespace object itself.
		if len(segments) == 2 {
			ref.Resource = "namespaces"
			ref.Name = segments[1]
			return ref, true
		}
		ref.Namespace = segments[1]
		segments = segments[2:]
	}

	if len(segments) == 0 {
		return ResourceRef{}, false
	}

	ref.Resource = segments[0]
	if len(segments) > 1 {
		ref.Name = segments[1]
	}
	if len(segments) > 2 {
		ref.Subresource = strings.Join(segments[2:], "/")
	}
	return ref, true
}

func splitPath(path string) []string {
	var out []string
	for _, s := range strings.Split(path, "/") {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
