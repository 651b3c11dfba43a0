package saas

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"dsrgraph/internal/config"
	"dsrgraph/internal/graph"
	"dsrgraph/internal/identity"
	"dsrgraph/internal/policy"
	"dsrgraph/internal/querygen"
	"dsrgraph/pkg/rows"
)

// newTestConn builds a Conn pointed at the httptest server.
func newTestConn(t *testing.T, srv *httptest.Server, spec *config.SaaSSpec, secrets config.Secrets) *Conn {
	t.Helper()
	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatalf("parse server URL: %v", err)
	}
	spec.ClientConfig.Protocol = "http"
	spec.ClientConfig.Host = u.Host
	conn, closeFn, err := NewConnector(context.Background(), Config{Spec: spec, Secrets: secrets})
	if err != nil {
		t.Fatalf("NewConnector: %v", err)
	}
	t.Cleanup(closeFn)
	return conn
}

func contactsSpec() *config.SaaSSpec {
	return &config.SaaSSpec{
		Name: "mailer",
		ClientConfig: config.ClientConfig{
			Auth: config.AuthConfig{
				Strategy: "bearer",
				Config:   config.Options{"token": "<api_token>"},
			},
		},
		Endpoints: []config.EndpointSpec{{
			Name: "contacts",
			Requests: config.RequestSet{
				Read: config.RequestList{{
					Method:      "GET",
					Path:        "/v1/contacts",
					QueryParams: map[string]string{"email": "<email>"},
					DataPath:    "data.contacts",
					ParamValues: []config.ParamValueSpec{{Name: "email", Identity: "email"}},
				}},
				Delete: &config.RequestSpec{
					Method: "DELETE",
					Path:   "/v1/contacts/<contact_id>",
					ParamValues: []config.ParamValueSpec{{
						Name:       "contact_id",
						References: []config.ReferenceSpec{{Field: "mailer.contacts.id", Direction: "from"}},
					}},
				},
			},
		}},
	}
}

func contactsNode(t *testing.T) *graph.Node {
	t.Helper()
	reg := graph.NewTypeRegistry()
	id, err := graph.GenerateField(graph.FieldParams{Name: "contact_id", Type: "string"}, reg)
	if err != nil {
		t.Fatalf("GenerateField: %v", err)
	}
	return &graph.Node{
		Address:    graph.CollectionAddress{Dataset: "mailer", Collection: "contacts"},
		Collection: &graph.Collection{Name: "contacts", Fields: []graph.Field{id}},
	}
}

func TestRetrieveDataExtractsRows(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var gotAuth, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		gotAuth = r.Header.Get("Authorization")
		gotQuery = r.URL.Query().Get("email")
		mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{
				"contacts": []any{
					map[string]any{"contact_id": "c1", "name": "Ada"},
					map[string]any{"contact_id": "c2", "name": "Ada B"},
				},
			},
		})
	}))
	defer srv.Close()

	secrets := config.StaticSecrets{Params: map[string]any{"api_token": "tok-123"}}
	conn := newTestConn(t, srv, contactsSpec(), secrets)

	rs, err := conn.RetrieveData(context.Background(), contactsNode(t),
		identity.Payload{"email": "ada@example.com"}, rows.Input{})
	if err != nil {
		t.Fatalf("RetrieveData: %v", err)
	}
	if len(rs) != 2 {
		t.Fatalf("got %d rows, want 2", len(rs))
	}
	if rs[0]["contact_id"] != "c1" || rs[1]["contact_id"] != "c2" {
		t.Errorf("rows = %v", rs)
	}
	mu.Lock()
	defer mu.Unlock()
	if gotAuth != "Bearer tok-123" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotQuery != "ada@example.com" {
		t.Errorf("email query = %q", gotQuery)
	}
}

func TestRetrieveDataNotFoundIsEmpty(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	spec := contactsSpec()
	spec.ClientConfig.Auth = config.AuthConfig{}
	conn := newTestConn(t, srv, spec, nil)

	rs, err := conn.RetrieveData(context.Background(), contactsNode(t),
		identity.Payload{"email": "ghost@example.com"}, rows.Input{})
	if err != nil {
		t.Fatalf("RetrieveData: %v", err)
	}
	if len(rs) != 0 {
		t.Errorf("got %d rows, want none for a 404", len(rs))
	}
}

func TestMaskDataDeleteMechanism(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var deleted []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodDelete {
			mu.Lock()
			deleted = append(deleted, r.URL.Path)
			mu.Unlock()
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	spec := contactsSpec()
	spec.ClientConfig.Auth = config.AuthConfig{}
	conn := newTestConn(t, srv, spec, nil)

	n, err := conn.MaskData(context.Background(), contactsNode(t),
		identity.Payload{"email": "ada@example.com"},
		[]rows.Row{{"contact_id": "c1"}, {"contact_id": "c2"}},
		&policy.Policy{})
	if err != nil {
		t.Fatalf("MaskData: %v", err)
	}
	if n != 2 {
		t.Fatalf("masked %d rows, want 2", n)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(deleted) != 2 || deleted[0] != "/v1/contacts/c1" || deleted[1] != "/v1/contacts/c2" {
		t.Errorf("deleted paths = %v", deleted)
	}
}

func TestMaskDataStrictPolicyWithoutUpdateIsNoop(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected call %s %s", r.Method, r.URL.Path)
	}))
	defer srv.Close()

	spec := contactsSpec()
	spec.ClientConfig.Auth = config.AuthConfig{}
	conn := newTestConn(t, srv, spec, nil)

	n, err := conn.MaskData(context.Background(), contactsNode(t),
		identity.Payload{"email": "ada@example.com"},
		[]rows.Row{{"contact_id": "c1"}},
		&policy.Policy{Strict: true})
	if err != nil {
		t.Fatalf("MaskData: %v", err)
	}
	if n != 0 {
		t.Errorf("masked %d rows, want 0 under a strict policy with no update request", n)
	}
}

func TestRetrieveDataRequestOverride(t *testing.T) {
	t.Parallel()

	spec := contactsSpec()
	spec.ClientConfig.Auth = config.AuthConfig{}
	spec.ClientConfig.Host = "api.invalid" // override must not touch the network
	spec.Endpoints[0].Requests.Read = config.RequestList{{
		RequestOverride: "mailer_contacts_read",
		ParamValues:     []config.ParamValueSpec{{Name: "email", Identity: "email"}},
	}}

	RegisterOverride("mailer_contacts_read", func(ctx context.Context, client *Client, req querygen.HTTPRequest) ([]rows.Row, error) {
		return []rows.Row{{"contact_id": "via-override", "email": req.Params["email"]}}, nil
	})

	conn, closeFn, err := NewConnector(context.Background(), Config{Spec: spec})
	if err != nil {
		t.Fatalf("NewConnector: %v", err)
	}
	defer closeFn()

	rs, err := conn.RetrieveData(context.Background(), contactsNode(t),
		identity.Payload{"email": "ada@example.com"}, rows.Input{})
	if err != nil {
		t.Fatalf("RetrieveData: %v", err)
	}
	if len(rs) != 1 || rs[0]["contact_id"] != "via-override" {
		t.Fatalf("rows = %v", rs)
	}
	if rs[0]["email"] != "ada@example.com" {
		t.Errorf("override did not receive resolved params: %v", rs[0])
	}
}

func TestExtractRows(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		body     string
		dataPath string
		want     int
	}{
		{"array at path", `{"data":{"items":[{"a":1},{"a":2}]}}`, "data.items", 2},
		{"single object", `{"data":{"user":{"a":1}}}`, "data.user", 1},
		{"top-level array", `[{"a":1}]`, "", 1},
		{"absent path", `{"data":{}}`, "data.items", 0},
		{"scalar at path", `{"data":{"items":42}}`, "data.items", 0},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rs, err := ExtractRows([]byte(tt.body), tt.dataPath)
			if err != nil {
				t.Fatalf("ExtractRows: %v", err)
			}
			if len(rs) != tt.want {
				t.Errorf("got %d rows, want %d", len(rs), tt.want)
			}
		})
	}
}

func TestClientRetriesTransientStatus(t *testing.T) {
	t.Parallel()

	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, "ok")
	}))
	defer srv.Close()

	client := NewClient(ClientConfig{
		MaxRetries:     3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
	})

	resp, err := client.Do(context.Background(), http.MethodGet, srv.URL, nil, nil)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "ok" {
		t.Errorf("body = %q", body)
	}
	if got := attempts.Load(); got != 3 {
		t.Errorf("attempts = %d, want 3", got)
	}
}

func TestClientGivesUpAfterMaxRetries(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := NewClient(ClientConfig{MaxRetries: 1, InitialBackoff: 1, MaxBackoff: 1})

	_, err := client.Do(context.Background(), http.MethodGet, srv.URL, nil, nil)
	if err == nil || !strings.Contains(err.Error(), "retryable status 429") {
		t.Fatalf("err = %v, want final retryable-status error", err)
	}
}

func TestClientBackoffAbortsOnContextCancel(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := NewClient(ClientConfig{
		MaxRetries:     5,
		InitialBackoff: 10 * time.Second,
		MaxBackoff:     10 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := client.Do(ctx, http.MethodGet, srv.URL, nil, nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want context.DeadlineExceeded", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("Do took %v; backoff wait did not abort on cancellation", elapsed)
	}
}
