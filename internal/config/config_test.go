package config

import (
	"strings"
	"testing"
)

const datasetJSON = `{
  "datasets": [{
    "name": "crm",
    "connection_key": "crm_db",
    "collections": [{
      "name": "customer",
      "fields": [
        {"name": "id", "type": "integer", "primary_key": true},
        {"name": "email", "type": "string", "identity": "email",
         "data_categories": ["user.contact.email"]}
      ]
    }, {
      "name": "orders",
      "fields": [
        {"name": "id", "type": "integer", "primary_key": true},
        {"name": "customer_id", "type": "integer",
         "references": [{"field": "crm.customer.id", "direction": "from"}]}
      ]
    }]
  }]
}`

const saasYAML = `
saas:
  - name: mailer
    client_config:
      host: api.mailer.example
      authentication:
        strategy: bearer
    endpoints:
      - name: contacts
        requests:
          read:
            method: GET
            path: /v2/contacts
            query_params:
              email: "<email>"
            param_values:
              - name: email
                identity: email
          delete:
            method: DELETE
            path: /v2/contacts/<contact_id>
            param_values:
              - name: contact_id
                references:
                  - field: mailer.contacts.id
                    direction: from
`

func TestDecodeJSONDataset(t *testing.T) {
	t.Parallel()

	f, err := Decode([]byte(datasetJSON), ".json")
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(f.Datasets) != 1 || f.Datasets[0].Name != "crm" {
		t.Fatalf("datasets = %+v", f.Datasets)
	}
	if got := len(f.Datasets[0].Collections); got != 2 {
		t.Errorf("collections = %d, want 2", got)
	}
	ref := f.Datasets[0].Collections[1].Fields[1].References[0]
	if ref.Field != "crm.customer.id" || ref.Direction != "from" {
		t.Errorf("reference = %+v", ref)
	}
}

func TestDecodeYAMLSaaS(t *testing.T) {
	t.Parallel()

	f, err := Decode([]byte(saasYAML), ".yaml")
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(f.SaaS) != 1 || f.SaaS[0].Name != "mailer" {
		t.Fatalf("saas = %+v", f.SaaS)
	}
	ep := f.SaaS[0].Endpoints[0]
	if len(ep.Requests.Read) != 1 {
		t.Fatalf("read requests = %+v; single mapping should decode as one-element list", ep.Requests.Read)
	}
	if ep.Requests.Read[0].ParamValues[0].Identity != "email" {
		t.Errorf("param = %+v", ep.Requests.Read[0].ParamValues[0])
	}
	if ep.Requests.Delete == nil || ep.Requests.Delete.Method != "DELETE" {
		t.Errorf("delete = %+v", ep.Requests.Delete)
	}
}

func TestDecodeRejectsUnknownExtension(t *testing.T) {
	t.Parallel()

	if _, err := Decode([]byte("{}"), ".toml"); err == nil {
		t.Error("expected error for unsupported extension")
	}
}

func TestRequestListJSONOneOrMany(t *testing.T) {
	t.Parallel()

	var one RequestList
	if err := one.UnmarshalJSON([]byte(`{"method":"GET","path":"/a"}`)); err != nil {
		t.Fatalf("one: %v", err)
	}
	if len(one) != 1 || one[0].Path != "/a" {
		t.Errorf("one = %+v", one)
	}

	var many RequestList
	if err := many.UnmarshalJSON([]byte(`[{"method":"GET","path":"/a"},{"method":"GET","path":"/b"}]`)); err != nil {
		t.Fatalf("many: %v", err)
	}
	if len(many) != 2 || many[1].Path != "/b" {
		t.Errorf("many = %+v", many)
	}
}

func TestOptionsAccessors(t *testing.T) {
	t.Parallel()

	o := Options{
		"host":  "example.com",
		"port":  float64(5432),
		"ssl":   true,
		"tags":  []any{"a", "b"},
		"remap": map[string]any{"x": "y", "n": 1},
	}
	if o.String("host", "") != "example.com" {
		t.Error("String")
	}
	if o.String("missing", "def") != "def" {
		t.Error("String default")
	}
	if o.Int("port", 0) != 5432 {
		t.Error("Int via float64")
	}
	if !o.Bool("ssl", false) {
		t.Error("Bool")
	}
	if got := o.StringSlice("tags"); len(got) != 2 || got[1] != "b" {
		t.Errorf("StringSlice = %v", got)
	}
	m := o.StringMap("remap")
	if m["x"] != "y" {
		t.Errorf("StringMap = %v", m)
	}
	if _, ok := m["n"]; ok {
		t.Error("StringMap kept non-string value")
	}
}

func hasIssue(issues []Issue, substr string) bool {
	for _, i := range issues {
		if strings.Contains(i.Message, substr) {
			return true
		}
	}
	return false
}

func TestValidateRequestOverrideExclusive(t *testing.T) {
	t.Parallel()

	issues := validateRequest("r", RequestSpec{
		RequestOverride: "custom_fn",
		Method:          "POST",
	})
	if !hasIssue(issues, "mutually exclusive") {
		t.Errorf("issues = %v", issues)
	}

	// Override with only params is clean.
	issues = validateRequest("r", RequestSpec{
		RequestOverride: "custom_fn",
		ParamValues:     []ParamValueSpec{{Name: "email", Identity: "email"}},
	})
	if len(Errors(issues)) != 0 {
		t.Errorf("issues = %v", issues)
	}
}

func TestValidateGroupedInputs(t *testing.T) {
	t.Parallel()

	base := RequestSpec{Method: "GET", Path: "/x"}

	// Not a subset of declared params.
	r := base
	r.GroupedInputs = []string{"ghost"}
	if !hasIssue(validateRequest("r", r), "not a declared param") {
		t.Error("missing subset check")
	}

	// Grouped param sourced from a connector constant.
	r = base
	r.ParamValues = []ParamValueSpec{{Name: "key", ConnectorParam: "api_key"}}
	r.GroupedInputs = []string{"key"}
	if !hasIssue(validateRequest("r", r), "connector constant") {
		t.Error("missing connector-constant check")
	}

	// Grouped params spanning two source collections.
	r = base
	r.ParamValues = []ParamValueSpec{
		{Name: "account_id", References: []ReferenceSpec{{Field: "ds.accounts.id", Direction: "from"}}},
		{Name: "org_id", References: []ReferenceSpec{{Field: "ds.orgs.id", Direction: "from"}}},
	}
	r.GroupedInputs = []string{"account_id", "org_id"}
	if !hasIssue(validateRequest("r", r), "share the source collection") {
		t.Error("missing same-source check")
	}

	// Correlated pair from one collection is clean.
	r = base
	r.ParamValues = []ParamValueSpec{
		{Name: "account_id", References: []ReferenceSpec{{Field: "ds.accounts.id", Direction: "from"}}},
		{Name: "account_type", References: []ReferenceSpec{{Field: "ds.accounts.type", Direction: "from"}}},
	}
	r.GroupedInputs = []string{"account_id", "account_type"}
	if got := Errors(validateRequest("r", r)); len(got) != 0 {
		t.Errorf("issues = %v", got)
	}
}

func TestValidateParamSingleSource(t *testing.T) {
	t.Parallel()

	r := RequestSpec{Method: "GET", Path: "/x", ParamValues: []ParamValueSpec{{
		Name:           "email",
		Identity:       "email",
		ConnectorParam: "default_email",
	}}}
	if !hasIssue(validateRequest("r", r), "exactly one") {
		t.Error("missing single-source check")
	}
}

func TestValidateReferenceDirection(t *testing.T) {
	t.Parallel()

	r := RequestSpec{Method: "GET", Path: "/x", ParamValues: []ParamValueSpec{{
		Name:       "cid",
		References: []ReferenceSpec{{Field: "ds.c.id", Direction: "to"}},
	}}}
	if !hasIssue(validateRequest("r", r), "direction \"from\"") {
		t.Error("param references with direction to must be rejected")
	}
}

func TestValidateDatasetObjectAnnotations(t *testing.T) {
	t.Parallel()

	ds := DatasetSpec{Name: "d", ConnectionKey: "k", Collections: []CollectionSpec{{
		Name: "c",
		Fields: []FieldSpec{{
			Name:           "addr",
			DataCategories: []string{"user.contact.address"},
			Fields:         []FieldSpec{{Name: "city", Type: "string"}},
		}},
	}}}
	if !hasIssue(ValidateDataset(ds), "object fields may not carry data categories") {
		t.Error("object data-category annotation must be rejected")
	}
}
