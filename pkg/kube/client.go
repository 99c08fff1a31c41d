// Package kube provides a thin Kubernetes API client for proxying model
// issued requests, plus the URL and merge helpers the tool gateway needs.
package kube

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

const (
	// AcceptTable asks the API server to render lists as Table objects so
	// the gateway can format them compactly for the model.
	AcceptTable = "application/json;as=Table;v=v1;g=meta.k8s.io,application/json;as=Table;v=v1beta1;g=meta.k8s.io,application/json"

	ContentTypeJSON       = "application/json"
	ContentTypeMergePatch = "application/merge-patch+json"
)

// Request is one raw API server request.
type Request struct {
	URL         string
	Method      string
	Body        string
	Accept      string
	ContentType string
}

// Response is the raw result of an API server request.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Decode unmarshals the response body into v.
func (r *Response) Decode(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("decoding API response: %w", err)
	}
	return nil
}

// IsJSON reports whether the server replied with a JSON body.
func (r *Response) IsJSON() bool {
	return strings.Contains(r.Header.Get("Content-Type"), "application/json")
}

// Client performs requests against one cluster's API server.
type Client interface {
	Do(ctx context.Context, req Request) (*Response, error)
	Cluster() string
}

// StatusError carries a non-2xx API server reply.
type StatusError struct {
	StatusCode int
	Status     metav1.Status
}

func (e *StatusError) Error() string {
	if e.Status.Message != "" {
		return e.Status.Message
	}
	return fmt.Sprintf("API server returned %d (%s)", e.StatusCode, http.StatusText(e.StatusCode))
}

// RESTClient talks to one API server using the transport settings from a
// kubeconfig context or the in-cluster service account.
type RESTClient struct {
	base    *url.URL
	http    *http.Client
	cluster string
}

// NewRESTClient builds a client for the given kubeconfig context. An empty
// kubeconfigPath falls back to in-cluster configuration and then the
// default kubeconfig locations.
func NewRESTClient(kubeconfigPath, kubeContext string) (*RESTClient, error) {
	cfg, cluster, err := buildRESTConfig(kubeconfigPath, kubeContext)
	if err != nil {
		return nil, err
	}

	httpClient, err := rest.HTTPClientFor(cfg)
	if err != nil {
		return nil, fmt.Errorf("building HTTP client: %w", err)
	}

	base, err := url.Parse(cfg.Host)
	if err != nil {
		return nil, fmt.Errorf("parsing API server host %q: %w", cfg.Host, err)
	}

	return &RESTClient{base: base, http: httpClient, cluster: cluster}, nil
}

func (c *RESTClient) Cluster() string {
	return c.cluster
}

func (c *RESTClient) Do(ctx context.Context, req Request) (*Response, error) {
	rel, err := url.Parse(req.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing request URL %q: %w", req.URL, err)
	}
	target := *c.base
	target.Path = strings.TrimSuffix(c.base.Path, "/") + "/" + strings.TrimPrefix(rel.Path, "/")
	target.RawQuery = rel.RawQuery

	var body io.Reader
	if req.Body != "" {
		body = bytes.NewReader([]byte(req.Body))
	}

	httpReq, err := http.NewRequestWithContext(ctx, strings.ToUpper(req.Method), target.String(), body)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	if req.Accept != "" {
		httpReq.Header.Set("Accept", req.Accept)
	}
	if req.ContentType != "" {
		httpReq.Header.Set("Content-Type", req.ContentType)
	}

	slog.Debug("Kubernetes API request", "method", httpReq.Method, "url", req.URL, "cluster", c.cluster)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("calling API server: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading API response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		statusErr := &StatusError{StatusCode: resp.StatusCode}
		if err := json.Unmarshal(data, &statusErr.Status); err != nil || statusErr.Status.Message == "" {
			statusErr.Status.Message = strings.TrimSpace(string(data))
		}
		return nil, statusErr
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       data,
	}, nil
}

func buildRESTConfig(kubeconfigPath, kubeContext string) (*rest.Config, string, error) {
	kubeconfigPath = strings.TrimSpace(kubeconfigPath)
	kubeContext = strings.TrimSpace(kubeContext)

	if kubeconfigPath != "" {
		loadingRules := &clientcmd.ClientConfigLoadingRules{ExplicitPath: kubeconfigPath}
		overrides := &clientcmd.ConfigOverrides{}
		if kubeContext != "" {
			overrides.CurrentContext = kubeContext
		}

		cc := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(loadingRules, overrides)
		return clientConfigFor(cc, kubeContext)
	}

	if restCfg, err := rest.InClusterConfig(); err == nil {
		return restCfg, "in-cluster", nil
	}

	cc := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(
		clientcmd.NewDefaultClientConfigLoadingRules(),
		&clientcmd.ConfigOverrides{CurrentContext: kubeContext},
	)
	return clientConfigFor(cc, kubeContext)
}

func clientConfigFor(cc clientcmd.ClientConfig, kubeContext string) (*rest.Config, string, error) {
	rawCfg, err := cc.RawConfig()
	if err != nil {
		return nil, "", fmt.Errorf("loading kubeconfig: %w", err)
	}

	contextName := rawCfg.CurrentContext
	if kubeContext != "" {
		contextName = kubeContext
	}

	restCfg, err := cc.ClientConfig()
	if err != nil {
		return nil, "", fmt.Errorf("building rest config: %w", err)
	}
	return restCfg, contextName, nil
}

// Pool caches one client per kubeconfig context so multi cluster requests
// reuse transports.
type Pool struct {
	kubeconfigPath string

	mu      sync.Mutex
	clients map[string]*RESTClient
}

func NewPool(kubeconfigPath string) *Pool {
	return &Pool{
		kubeconfigPath: kubeconfigPath,
		clients:        make(map[string]*RESTClient),
	}
}

// Client returns the client for the named kubeconfig context. An empty
// name selects the current context.
func (p *Pool) Client(cluster string) (Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.clients[cluster]; ok {
		return c, nil
	}

	c, err := NewRESTClient(p.kubeconfigPath, cluster)
	if err != nil {
		return nil, fmt.Errorf("connecting to cluster %q: %w", cluster, err)
	}
	p.clients[cluster] = c
	return c, nil
}
