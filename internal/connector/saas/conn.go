package saas

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"dsrgraph/internal/config"
	"dsrgraph/internal/connector"
	"dsrgraph/internal/graph"
	"dsrgraph/internal/identity"
	"dsrgraph/internal/metrics"
	"dsrgraph/internal/policy"
	"dsrgraph/internal/querygen"
	"dsrgraph/pkg/rows"
)

// OverrideFunc is a caller-registered replacement for a request shape that
// cannot be expressed declaratively. It receives the resolved params of the
// request it replaces and returns the retrieved rows (nil for mask calls).
type OverrideFunc func(ctx context.Context, client *Client, req querygen.HTTPRequest) ([]rows.Row, error)

var (
	ovMu      sync.RWMutex
	overrides = map[string]OverrideFunc{}
)

// RegisterOverride registers (or replaces) the function for a
// request_override name.
func RegisterOverride(name string, fn OverrideFunc) {
	ovMu.Lock()
	defer ovMu.Unlock()
	overrides[name] = fn
}

func overrideFor(name string) (OverrideFunc, bool) {
	ovMu.RLock()
	defer ovMu.RUnlock()
	fn, ok := overrides[name]
	return fn, ok
}

// Config holds the SaaS connector configuration.
type Config struct {
	Spec    *config.SaaSSpec
	Secrets config.Secrets
	Client  ClientConfig
}

// Conn executes generated HTTP requests against one SaaS API.
type Conn struct {
	spec    *config.SaaSSpec
	secrets config.Secrets
	client  *Client
	baseURL string
}

// NewConnector constructs a Conn and returns a Close function for cleanup.
func NewConnector(ctx context.Context, cfg Config) (*Conn, func(), error) {
	if cfg.Spec == nil {
		return nil, nil, fmt.Errorf("saas: spec must not be nil")
	}
	if cfg.Spec.ClientConfig.Host == "" {
		return nil, nil, fmt.Errorf("saas %s: host must not be empty", cfg.Spec.Name)
	}
	protocol := cfg.Spec.ClientConfig.Protocol
	if protocol == "" {
		protocol = "https"
	}

	c := &Conn{
		spec:    cfg.Spec,
		secrets: cfg.Secrets,
		baseURL: protocol + "://" + strings.TrimSuffix(cfg.Spec.ClientConfig.Host, "/"),
	}
	headers, err := c.authHeaders()
	if err != nil {
		return nil, nil, err
	}
	cc := cfg.Client
	if cc.BaseHeaders == nil {
		cc.BaseHeaders = headers
	} else {
		for k, vs := range headers {
			for _, v := range vs {
				cc.BaseHeaders.Add(k, v)
			}
		}
	}
	c.client = NewClient(cc)
	return c, func() { c.client.httpClient.CloseIdleConnections() }, nil
}

// authHeaders builds the base headers for the configured auth strategy.
// Values may reference connector params with the "<name>" form.
func (c *Conn) authHeaders() (http.Header, error) {
	auth := c.spec.ClientConfig.Auth
	h := http.Header{}
	switch auth.Strategy {
	case "":
		return h, nil
	case "bearer":
		token, err := c.resolve(auth.Config.String("token", ""))
		if err != nil {
			return nil, err
		}
		h.Set("Authorization", "Bearer "+token)
	case "basic":
		user, err := c.resolve(auth.Config.String("username", ""))
		if err != nil {
			return nil, err
		}
		pass, err := c.resolve(auth.Config.String("password", ""))
		if err != nil {
			return nil, err
		}
		h.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(user+":"+pass)))
	case "api_key":
		name := auth.Config.String("header", "X-API-Key")
		value, err := c.resolve(auth.Config.String("value", ""))
		if err != nil {
			return nil, err
		}
		h.Set(name, value)
	default:
		return nil, fmt.Errorf("saas %s: unknown auth strategy %q", c.spec.Name, auth.Strategy)
	}
	return h, nil
}

// resolve substitutes a "<name>" connector-param placeholder via the secrets
// provider; other strings pass through as literals.
func (c *Conn) resolve(s string) (string, error) {
	if !strings.HasPrefix(s, "<") || !strings.HasSuffix(s, ">") {
		return s, nil
	}
	name := strings.TrimSuffix(strings.TrimPrefix(s, "<"), ">")
	v, err := config.RequireConnectorParam(c.secrets, name)
	if err != nil {
		return "", err
	}
	return fmt.Sprint(v), nil
}

func (c *Conn) endpointFor(node *graph.Node) (*config.EndpointSpec, error) {
	for i := range c.spec.Endpoints {
		if c.spec.Endpoints[i].Name == node.Collection.Name {
			return &c.spec.Endpoints[i], nil
		}
	}
	return nil, fmt.Errorf("saas %s: no endpoint for collection %q", c.spec.Name, node.Collection.Name)
}

func (c *Conn) generator(node *graph.Node, endpoint *config.EndpointSpec) *querygen.SaaSGenerator {
	return &querygen.SaaSGenerator{
		Spec:       c.spec,
		Endpoint:   endpoint,
		Collection: node.Collection,
		Secrets:    c.secrets,
	}
}

// TestConnection probes the API host with a bare GET against the base URL.
// A well-formed HTTP response of any status counts as reachable.
func (c *Conn) TestConnection(ctx context.Context) error {
	start := time.Now()
	resp, err := c.client.Do(ctx, http.MethodGet, c.baseURL, nil, nil)
	metrics.RecordOp(c.spec.Name, "test", err, time.Since(start))
	if err != nil {
		return connector.WrapErr(c.spec.Name, "test", err)
	}
	_ = resp.Body.Close()
	return nil
}

// RetrieveData generates and executes the endpoint's read requests and
// extracts rows from each response.
func (c *Conn) RetrieveData(ctx context.Context, node *graph.Node, ident identity.Payload, in rows.Input) ([]rows.Row, error) {
	endpoint, err := c.endpointFor(node)
	if err != nil {
		return nil, connector.WrapErr(c.spec.Name, "retrieve", err)
	}
	reqs, err := c.generator(node, endpoint).ReadRequests(ident, in)
	if err != nil {
		return nil, connector.WrapErr(c.spec.Name, "retrieve", err)
	}
	metrics.RecordRequests(c.spec.Name, string(querygen.ActionRead), int64(len(reqs)))

	var out []rows.Row
	for _, req := range reqs {
		if req.Override != "" {
			fn, ok := overrideFor(req.Override)
			if !ok {
				return nil, connector.WrapErr(c.spec.Name, "retrieve",
					fmt.Errorf("request override %q not registered", req.Override))
			}
			rs, err := fn(ctx, c.client, req)
			if err != nil {
				return nil, connector.WrapErr(c.spec.Name, "retrieve", err)
			}
			out = append(out, rs...)
			continue
		}
		rs, err := c.execute(ctx, req)
		if err != nil {
			return nil, connector.WrapErr(c.spec.Name, "retrieve", err)
		}
		out = append(out, rs...)
	}
	metrics.RecordRows(c.spec.Name, "retrieved", int64(len(out)))
	return out, nil
}

// MaskData selects the endpoint's masking mechanism, generates one request
// per retrieved row, and executes them. An endpoint with no viable
// mechanism masks nothing and is reported, not failed.
func (c *Conn) MaskData(ctx context.Context, node *graph.Node, ident identity.Payload, rs []rows.Row, pol *policy.Policy) (int, error) {
	endpoint, err := c.endpointFor(node)
	if err != nil {
		return 0, connector.WrapErr(c.spec.Name, "mask", err)
	}
	reqs, mechanism, err := c.generator(node, endpoint).MaskRequests(ident, rs, pol)
	if err != nil {
		return 0, connector.WrapErr(c.spec.Name, "mask", err)
	}
	if mechanism == querygen.MechanismNone {
		log.Printf("saas %s: endpoint %s has no masking mechanism, %d row(s) left untouched",
			c.spec.Name, endpoint.Name, len(rs))
		metrics.RecordRows(c.spec.Name, "skipped", int64(len(rs)))
		return 0, nil
	}
	metrics.RecordRequests(c.spec.Name, string(mechanismAction(mechanism)), int64(len(reqs)))

	masked := 0
	for _, req := range reqs {
		if req.Override != "" {
			fn, ok := overrideFor(req.Override)
			if !ok {
				return masked, connector.WrapErr(c.spec.Name, "mask",
					fmt.Errorf("request override %q not registered", req.Override))
			}
			if _, err := fn(ctx, c.client, req); err != nil {
				return masked, connector.WrapErr(c.spec.Name, "mask", err)
			}
			masked++
			continue
		}
		if _, err := c.execute(ctx, req); err != nil {
			return masked, connector.WrapErr(c.spec.Name, "mask", err)
		}
		masked++
	}
	metrics.RecordRows(c.spec.Name, "masked", int64(masked))
	return masked, nil
}

// Close releases idle transport connections.
func (c *Conn) Close() { c.client.httpClient.CloseIdleConnections() }

func mechanismAction(m querygen.MaskingMechanism) querygen.Action {
	if m == querygen.MechanismDelete {
		return querygen.ActionDelete
	}
	return querygen.ActionUpdate
}

// execute performs one generated request and extracts its rows.
func (c *Conn) execute(ctx context.Context, req querygen.HTTPRequest) ([]rows.Row, error) {
	u := c.baseURL + req.Path
	if len(req.QueryParams) > 0 {
		q := url.Values{}
		for k, v := range req.QueryParams {
			q.Set(k, v)
		}
		u += "?" + q.Encode()
	}
	headers := http.Header{}
	for k, v := range req.Headers {
		headers.Set(k, v)
	}
	if len(req.Body) > 0 && headers.Get("Content-Type") == "" {
		headers.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.client.Do(ctx, req.Method, u, req.Body, headers)
	metrics.RecordOp(c.spec.Name, strings.ToLower(req.Method), err, time.Since(start))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode == http.StatusNotFound {
		// The subject simply has no data here.
		return nil, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%s %s: status %d: %s", req.Method, req.Path, resp.StatusCode, truncate(body, 256))
	}
	if len(body) == 0 {
		return nil, nil
	}
	return ExtractRows(body, req.DataPath)
}

// ExtractRows unmarshals a JSON response and walks the dot-separated data
// path to the row array. A single object at the path yields one row; an
// absent path yields none.
func ExtractRows(body []byte, dataPath string) ([]rows.Row, error) {
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if dataPath != "" {
		for _, seg := range strings.Split(dataPath, ".") {
			obj, ok := doc.(map[string]any)
			if !ok {
				return nil, nil
			}
			doc, ok = obj[seg]
			if !ok {
				return nil, nil
			}
		}
	}
	switch t := doc.(type) {
	case []any:
		out := make([]rows.Row, 0, len(t))
		for _, el := range t {
			if m, ok := el.(map[string]any); ok {
				out = append(out, rows.Row(m))
			}
		}
		return out, nil
	case map[string]any:
		return []rows.Row{rows.Row(t)}, nil
	default:
		return nil, nil
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
