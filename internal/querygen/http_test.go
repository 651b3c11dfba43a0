package querygen

import (
	"errors"
	"strings"
	"testing"

	"dsrgraph/internal/config"
	"dsrgraph/internal/graph"
	"dsrgraph/internal/identity"
	"dsrgraph/internal/policy"
	"dsrgraph/pkg/rows"
)

func newEndpointGenerator(endpoint config.EndpointSpec) *SaaSGenerator {
	spec := &config.SaaSSpec{Name: "mailer", Endpoints: []config.EndpointSpec{endpoint}}
	return &SaaSGenerator{Spec: spec, Endpoint: &spec.Endpoints[0]}
}

func TestReadRequestsIdentitySubstitution(t *testing.T) {
	t.Parallel()
	gen := newEndpointGenerator(config.EndpointSpec{
		Name: "contacts",
		Requests: config.RequestSet{Read: config.RequestList{{
			Method:      "GET",
			Path:        "/v1/contacts",
			QueryParams: map[string]string{"email": "<email>"},
			DataPath:    "contacts",
			ParamValues: []config.ParamValueSpec{{Name: "email", Identity: "email"}},
		}}},
	})

	reqs, err := gen.ReadRequests(identity.Payload{"email": "ada@example.com"}, nil)
	if err != nil {
		t.Fatalf("ReadRequests: %v", err)
	}
	if len(reqs) != 1 {
		t.Fatalf("got %d requests, want 1", len(reqs))
	}
	r := reqs[0]
	if r.Method != "GET" || r.Path != "/v1/contacts" {
		t.Errorf("shape = %s %s", r.Method, r.Path)
	}
	if r.QueryParams["email"] != "ada@example.com" {
		t.Errorf("query email = %q", r.QueryParams["email"])
	}
	if r.DataPath != "contacts" {
		t.Errorf("DataPath = %q", r.DataPath)
	}
	if r.ID == "" {
		t.Error("request ID not assigned")
	}
}

func TestReadRequestsReferenceFanOut(t *testing.T) {
	t.Parallel()
	gen := newEndpointGenerator(config.EndpointSpec{
		Name: "messages",
		Requests: config.RequestSet{Read: config.RequestList{{
			Method: "GET",
			Path:   "/v1/conversations/<conversation_id>/messages",
			ParamValues: []config.ParamValueSpec{{
				Name:       "conversation_id",
				References: []config.ReferenceSpec{{Field: "mailer.conversations.id", Direction: "from"}},
			}},
		}}},
	})

	reqs, err := gen.ReadRequests(
		identity.Payload{"email": "ada@example.com"},
		rows.Input{"conversation_id": {"c1", "c2", "c3"}},
	)
	if err != nil {
		t.Fatalf("ReadRequests: %v", err)
	}
	if len(reqs) != 3 {
		t.Fatalf("got %d requests, want one per upstream value", len(reqs))
	}
	paths := map[string]struct{}{}
	for _, r := range reqs {
		paths[r.Path] = struct{}{}
	}
	for _, id := range []string{"c1", "c2", "c3"} {
		if _, ok := paths["/v1/conversations/"+id+"/messages"]; !ok {
			t.Errorf("missing request for conversation %s; got %v", id, paths)
		}
	}
}

func TestReadRequestsGroupedInputsZip(t *testing.T) {
	t.Parallel()
	gen := newEndpointGenerator(config.EndpointSpec{
		Name: "subscriptions",
		Requests: config.RequestSet{Read: config.RequestList{{
			Method:        "GET",
			Path:          "/v1/orgs/<org_id>/users/<user_id>",
			GroupedInputs: []string{"org_id", "user_id"},
			ParamValues: []config.ParamValueSpec{
				{Name: "org_id", References: []config.ReferenceSpec{{Field: "mailer.members.org_id", Direction: "from"}}},
				{Name: "user_id", References: []config.ReferenceSpec{{Field: "mailer.members.user_id", Direction: "from"}}},
			},
		}}},
	})

	reqs, err := gen.ReadRequests(
		identity.Payload{"email": "ada@example.com"},
		rows.Input{"org_id": {"o1", "o2"}, "user_id": {"u1", "u2"}},
	)
	if err != nil {
		t.Fatalf("ReadRequests: %v", err)
	}
	// Correlated values pair positionally: (o1,u1) and (o2,u2), never the
	// cross combinations.
	if len(reqs) != 2 {
		t.Fatalf("got %d requests, want 2", len(reqs))
	}
	got := map[string]struct{}{reqs[0].Path: {}, reqs[1].Path: {}}
	for _, want := range []string{"/v1/orgs/o1/users/u1", "/v1/orgs/o2/users/u2"} {
		if _, ok := got[want]; !ok {
			t.Errorf("missing %s; got %v", want, got)
		}
	}
}

func TestReadRequestsEmptyInputIsNotError(t *testing.T) {
	t.Parallel()
	gen := newEndpointGenerator(config.EndpointSpec{
		Name: "messages",
		Requests: config.RequestSet{Read: config.RequestList{{
			Method: "GET",
			Path:   "/v1/conversations/<conversation_id>/messages",
			ParamValues: []config.ParamValueSpec{{
				Name:       "conversation_id",
				References: []config.ReferenceSpec{{Field: "mailer.conversations.id", Direction: "from"}},
			}},
		}}},
	})

	reqs, err := gen.ReadRequests(identity.Payload{"email": "ada@example.com"}, rows.Input{})
	if err != nil {
		t.Fatalf("ReadRequests: %v", err)
	}
	if len(reqs) != 0 {
		t.Errorf("got %d requests, want none when upstream produced nothing", len(reqs))
	}
}

func TestReadRequestsMissingParam(t *testing.T) {
	t.Parallel()
	spec := config.RequestSpec{
		Method: "GET",
		Path:   "/v1/orgs/<org_id>/users/<user_id>",
		ParamValues: []config.ParamValueSpec{
			{Name: "org_id", References: []config.ReferenceSpec{{Field: "mailer.members.org_id", Direction: "from"}}},
			{Name: "user_id", References: []config.ReferenceSpec{{Field: "mailer.members.user_id", Direction: "from"}}},
		},
	}
	in := rows.Input{"org_id": {"o1"}} // user_id never arrived

	gen := newEndpointGenerator(config.EndpointSpec{
		Name:     "subscriptions",
		Requests: config.RequestSet{Read: config.RequestList{spec}},
	})
	_, err := gen.ReadRequests(identity.Payload{"email": "ada@example.com"}, in)
	var missing *MissingParamError
	if !errors.As(err, &missing) {
		t.Fatalf("err = %v, want *MissingParamError", err)
	}
	if missing.Param != "user_id" {
		t.Errorf("Param = %q, want user_id", missing.Param)
	}

	// With skip_missing_param_values the same shortfall is silent.
	spec.SkipMissingParamValues = true
	gen = newEndpointGenerator(config.EndpointSpec{
		Name:     "subscriptions",
		Requests: config.RequestSet{Read: config.RequestList{spec}},
	})
	reqs, err := gen.ReadRequests(identity.Payload{"email": "ada@example.com"}, in)
	if err != nil {
		t.Fatalf("ReadRequests with skip: %v", err)
	}
	if len(reqs) != 0 {
		t.Errorf("got %d requests, want none", len(reqs))
	}
}

func TestReadRequestsUnpack(t *testing.T) {
	t.Parallel()
	gen := newEndpointGenerator(config.EndpointSpec{
		Name: "lists",
		Requests: config.RequestSet{Read: config.RequestList{{
			Method: "GET",
			Path:   "/v1/lists/<list_id>",
			ParamValues: []config.ParamValueSpec{{
				Name:       "list_id",
				References: []config.ReferenceSpec{{Field: "mailer.member.list_ids", Direction: "from"}},
				Unpack:     true,
			}},
		}}},
	})

	reqs, err := gen.ReadRequests(
		identity.Payload{"email": "ada@example.com"},
		rows.Input{"list_id": {[]any{"l1", "l2"}}},
	)
	if err != nil {
		t.Fatalf("ReadRequests: %v", err)
	}
	if len(reqs) != 2 {
		t.Fatalf("got %d requests, want one per unpacked element", len(reqs))
	}
}

func TestReadRequestsConnectorParam(t *testing.T) {
	t.Parallel()
	gen := newEndpointGenerator(config.EndpointSpec{
		Name: "projects",
		Requests: config.RequestSet{Read: config.RequestList{{
			Method: "GET",
			Path:   "/v2/<workspace>/projects",
			ParamValues: []config.ParamValueSpec{
				{Name: "workspace", ConnectorParam: "workspace"},
				{Name: "email", Identity: "email"},
			},
			QueryParams: map[string]string{"email": "<email>"},
		}}},
	})
	gen.Secrets = config.StaticSecrets{Params: map[string]any{"workspace": "acme"}}

	reqs, err := gen.ReadRequests(identity.Payload{"email": "ada@example.com"}, nil)
	if err != nil {
		t.Fatalf("ReadRequests: %v", err)
	}
	if len(reqs) != 1 || reqs[0].Path != "/v2/acme/projects" {
		t.Fatalf("reqs = %+v", reqs)
	}
}

func TestReadRequestsRejectsMultipleIdentities(t *testing.T) {
	t.Parallel()
	gen := newEndpointGenerator(config.EndpointSpec{
		Name: "contacts",
		Requests: config.RequestSet{Read: config.RequestList{{
			Method:      "GET",
			Path:        "/v1/contacts/<email>",
			ParamValues: []config.ParamValueSpec{{Name: "email", Identity: "email"}},
		}}},
	})

	_, err := gen.ReadRequests(identity.Payload{
		"email":        "ada@example.com",
		"phone_number": "+15551234567",
	}, nil)
	if err == nil || !strings.Contains(err.Error(), "multiple active identities") {
		t.Fatalf("err = %v, want multiple-identities rejection", err)
	}
}

func TestSelectMaskingMechanism(t *testing.T) {
	t.Parallel()
	update := &config.RequestSpec{Method: "PUT", Path: "/v1/contacts/<contact_id>"}
	del := &config.RequestSpec{Method: "DELETE", Path: "/v1/contacts/<contact_id>"}
	dpr := &config.RequestSpec{Method: "POST", Path: "/v1/data_protection/erasure"}

	tests := []struct {
		name   string
		set    config.RequestSet
		dpr    *config.RequestSpec
		strict bool
		want   MaskingMechanism
	}{
		{"update wins", config.RequestSet{Update: update, Delete: del}, dpr, false, MechanismUpdate},
		{"data protection over delete", config.RequestSet{Delete: del}, dpr, false, MechanismDataProtection},
		{"delete as last resort", config.RequestSet{Delete: del}, nil, false, MechanismDelete},
		{"nothing viable", config.RequestSet{}, nil, false, MechanismNone},
		{"strict keeps update", config.RequestSet{Update: update, Delete: del}, dpr, true, MechanismUpdate},
		{"strict blocks destructive fallbacks", config.RequestSet{Delete: del}, dpr, true, MechanismNone},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			gen := newEndpointGenerator(config.EndpointSpec{Name: "contacts", Requests: tt.set})
			gen.Spec.DataProtectionRequest = tt.dpr
			_, mechanism := gen.SelectMaskingMechanism(tt.strict)
			if mechanism != tt.want {
				t.Errorf("mechanism = %s, want %s", mechanism, tt.want)
			}
		})
	}
}

func TestMaskRequestsUpdateBody(t *testing.T) {
	t.Parallel()
	name := mustField(t, graph.FieldParams{
		Name: "name", Type: "string", DataCategories: []string{"user.name"},
	})
	email := mustField(t, graph.FieldParams{
		Name: "email", Type: "string", DataCategories: []string{"user.contact.email"},
	})
	id := mustField(t, graph.FieldParams{Name: "id", Type: "string", ReadOnly: true})
	coll := &graph.Collection{Name: "contacts", Fields: []graph.Field{id, name, email}}

	gen := newEndpointGenerator(config.EndpointSpec{
		Name: "contacts",
		Requests: config.RequestSet{Update: &config.RequestSpec{
			Method: "PUT",
			Path:   "/v1/contacts/<contact_id>",
			Body:   `{<masked_object_fields>}`,
			ParamValues: []config.ParamValueSpec{{
				Name:       "contact_id",
				References: []config.ReferenceSpec{{Field: "mailer.contacts.id", Direction: "from"}},
			}},
		}},
	})
	gen.Collection = coll
	pol := &policy.Policy{Rules: []policy.Rule{
		{Categories: []string{"user.name"}, Strategy: policy.StrategyStringRewrite, Replacement: "MASKED"},
	}}

	reqs, mechanism, err := gen.MaskRequests(
		identity.Payload{"email": "ada@example.com"},
		[]rows.Row{{"contact_id": "c7", "id": "c7", "name": "Ada", "email": "ada@example.com"}},
		pol,
	)
	if err != nil {
		t.Fatalf("MaskRequests: %v", err)
	}
	if mechanism != MechanismUpdate {
		t.Fatalf("mechanism = %s", mechanism)
	}
	if len(reqs) != 1 {
		t.Fatalf("got %d requests, want 1", len(reqs))
	}
	if reqs[0].Path != "/v1/contacts/c7" {
		t.Errorf("Path = %q", reqs[0].Path)
	}
	if string(reqs[0].Body) != `{"name":"MASKED"}` {
		t.Errorf("Body = %s", reqs[0].Body)
	}
}

func TestMaskRequestsDeleteSkipsKeylessRows(t *testing.T) {
	t.Parallel()
	gen := newEndpointGenerator(config.EndpointSpec{
		Name: "contacts",
		Requests: config.RequestSet{Delete: &config.RequestSpec{
			Method: "DELETE",
			Path:   "/v1/contacts/<contact_id>",
			ParamValues: []config.ParamValueSpec{{
				Name:       "contact_id",
				References: []config.ReferenceSpec{{Field: "mailer.contacts.id", Direction: "from"}},
			}},
		}},
	})

	reqs, mechanism, err := gen.MaskRequests(
		identity.Payload{"email": "ada@example.com"},
		[]rows.Row{
			{"contact_id": "c1"},
			{"email": "ghost@example.com"}, // no key, silently skipped
		},
		&policy.Policy{},
	)
	if err != nil {
		t.Fatalf("MaskRequests: %v", err)
	}
	if mechanism != MechanismDelete {
		t.Fatalf("mechanism = %s", mechanism)
	}
	if len(reqs) != 1 || reqs[0].Path != "/v1/contacts/c1" {
		t.Fatalf("reqs = %+v", reqs)
	}
}

func TestUpdateFragments(t *testing.T) {
	t.Parallel()
	name := mustField(t, graph.FieldParams{
		Name: "name", Type: "string", DataCategories: []string{"user.name"},
	})
	email := mustField(t, graph.FieldParams{
		Name: "email", Type: "string", DataCategories: []string{"user.contact.email"},
	})
	street := mustField(t, graph.FieldParams{
		Name: "street", Type: "string", DataCategories: []string{"user.contact.address.street"},
	})
	city := mustField(t, graph.FieldParams{
		Name: "city", Type: "string", DataCategories: []string{"user.contact.address.city"},
	})
	addr := mustField(t, graph.FieldParams{Name: "address", SubFields: []graph.Field{street, city}})
	id := mustField(t, graph.FieldParams{Name: "id", Type: "string", ReadOnly: true})
	coll := &graph.Collection{Name: "contacts", Fields: []graph.Field{id, name, email, addr}}

	pol := &policy.Policy{Rules: []policy.Rule{
		{Categories: []string{"user.name", "user.contact.address.street"}, Strategy: policy.StrategyNullRewrite},
	}}
	row := rows.Row{
		"id":    "c7",
		"name":  "Ada",
		"email": "ada@example.com",
		"address": map[string]any{
			"street": "1 Main St",
			"city":   "Springfield",
		},
	}

	masked, all, err := UpdateFragments(coll, row, pol)
	if err != nil {
		t.Fatalf("UpdateFragments: %v", err)
	}
	// masked carries only the rewritten fields; nested objects keep their
	// shape. The read-only id never appears in either fragment.
	if masked != `"address":{"street":null},"name":null` {
		t.Errorf("masked = %s", masked)
	}
	for _, want := range []string{`"name":null`, `"street":null`, `"city":"Springfield"`, `"email":"ada@example.com"`} {
		if !strings.Contains(all, want) {
			t.Errorf("all fragment missing %s: %s", want, all)
		}
	}
	if strings.Contains(all, `"id"`) || strings.Contains(masked, `"id"`) {
		t.Errorf("read-only field leaked: masked=%s all=%s", masked, all)
	}
}
