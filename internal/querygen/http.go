package querygen

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"dsrgraph/internal/config"
	"dsrgraph/internal/graph"
	"dsrgraph/internal/identity"
	"dsrgraph/internal/policy"
	"dsrgraph/pkg/rows"
)

// HTTPRequest is one generated request descriptor for the SaaS family.
// Descriptors are values; executing them is the connector's job.
type HTTPRequest struct {
	ID          string
	Method      string
	Path        string
	Headers     map[string]string
	QueryParams map[string]string
	Body        []byte

	// Override names a caller-registered custom request function; when set,
	// the other shape fields are empty by construction (validated at load).
	Override string

	// Params carries the resolved placeholder values, mainly for overrides
	// and logging.
	Params map[string]any

	// DataPath locates the row array in the JSON response.
	DataPath string
}

// MaskingMechanism identifies which erasure mechanism was selected for an
// endpoint.
type MaskingMechanism string

const (
	MechanismUpdate         MaskingMechanism = "update"
	MechanismDataProtection MaskingMechanism = "data_protection_request"
	MechanismDelete         MaskingMechanism = "delete"
	MechanismNone           MaskingMechanism = "none"
)

// SaaSGenerator builds HTTP request descriptors for one endpoint.
type SaaSGenerator struct {
	Spec     *config.SaaSSpec
	Endpoint *config.EndpointSpec

	// Collection is the synthesized graph collection backing the endpoint;
	// it provides the field metadata for update-body assembly.
	Collection *graph.Collection

	Secrets config.Secrets
}

// ReadRequests enumerates the read requests for the endpoint given the
// current identity payload and accumulated upstream input. Exactly one
// identity may be active: a payload caching several non-empty identities
// fails fast rather than silently choosing one. An endpoint whose param
// sources have no values at all yields an empty list without error.
func (g *SaaSGenerator) ReadRequests(ident identity.Payload, in rows.Input) ([]HTTPRequest, error) {
	if len(g.Endpoint.Requests.Read) == 0 {
		return nil, fmt.Errorf("querygen: endpoint %q defines no read request", g.Endpoint.Name)
	}
	if _, _, err := ident.Active(); err != nil {
		return nil, err
	}
	var out []HTTPRequest
	for i := range g.Endpoint.Requests.Read {
		reqs, err := g.enumerate(&g.Endpoint.Requests.Read[i], ident, in)
		if err != nil {
			return nil, fmt.Errorf("querygen: endpoint %q read[%d]: %w", g.Endpoint.Name, i, err)
		}
		out = append(out, reqs...)
	}
	return out, nil
}

// enumerate resolves param values and expands one request spec into zero or
// more concrete requests.
func (g *SaaSGenerator) enumerate(spec *config.RequestSpec, ident identity.Payload, in rows.Input) ([]HTTPRequest, error) {
	groupedNames := map[string]struct{}{}
	for _, n := range spec.GroupedInputs {
		groupedNames[n] = struct{}{}
	}

	ungrouped := map[string][]any{}
	grouped := map[string][]any{}
	sourcedAny := false
	var missing []string

	for _, p := range spec.ParamValues {
		var values []any
		switch {
		case p.Identity != "":
			if v, ok := ident[p.Identity]; ok && v != nil && v != "" {
				values = []any{v}
			}
		case len(p.References) > 0:
			values = append([]any(nil), in[p.Name]...)
		case p.ConnectorParam != "":
			v, err := config.RequireConnectorParam(g.Secrets, p.ConnectorParam)
			if err != nil {
				return nil, err
			}
			values = []any{v}
		}
		if p.Unpack {
			values = unpackOne(values)
		}
		if len(values) == 0 {
			missing = append(missing, p.Name)
			continue
		}
		if p.ConnectorParam == "" {
			sourcedAny = true
		}
		if _, isGrouped := groupedNames[p.Name]; isGrouped {
			grouped[p.Name] = values
		} else {
			ungrouped[p.Name] = values
		}
	}

	if len(missing) > 0 {
		if !sourcedAny || spec.SkipMissingParamValues {
			// Nothing upstream addressed this endpoint, or the config opted
			// into skipping: no requests, no error.
			return nil, nil
		}
		sort.Strings(missing)
		return nil, &MissingParamError{Param: missing[0]}
	}

	sets, err := paramSets(ungrouped, grouped)
	if err != nil {
		return nil, err
	}
	out := make([]HTTPRequest, 0, len(sets))
	for _, params := range sets {
		out = append(out, g.render(spec, params))
	}
	return out, nil
}

// render substitutes resolved params into the request shape. Placeholders
// use the "<name>" form in path, headers, query params, and body.
func (g *SaaSGenerator) render(spec *config.RequestSpec, params map[string]any) HTTPRequest {
	req := HTTPRequest{
		ID:       uuid.NewString(),
		Method:   spec.Method,
		Path:     substitute(spec.Path, params),
		Override: spec.RequestOverride,
		Params:   params,
		DataPath: spec.DataPath,
	}
	if len(spec.Headers) > 0 {
		req.Headers = make(map[string]string, len(spec.Headers))
		for k, v := range spec.Headers {
			req.Headers[k] = substitute(v, params)
		}
	}
	if len(spec.QueryParams) > 0 {
		req.QueryParams = make(map[string]string, len(spec.QueryParams))
		for k, v := range spec.QueryParams {
			req.QueryParams[k] = substitute(v, params)
		}
	}
	if spec.Body != "" {
		req.Body = []byte(substitute(spec.Body, params))
	}
	return req
}

func substitute(template string, params map[string]any) string {
	out := template
	for name, v := range params {
		out = strings.ReplaceAll(out, "<"+name+">", fmt.Sprint(v))
	}
	return out
}

// SelectMaskingMechanism picks the erasure mechanism for the endpoint,
// first viable wins: update request, then the vendor-level data protection
// request, then plain delete. Strict policies permit only in-place update
// masking, so both destructive fallbacks are skipped. Returning
// MechanismNone is reported by the connector, never fatal.
func (g *SaaSGenerator) SelectMaskingMechanism(strict bool) (*config.RequestSpec, MaskingMechanism) {
	if g.Endpoint.Requests.Update != nil {
		return g.Endpoint.Requests.Update, MechanismUpdate
	}
	if strict {
		return nil, MechanismNone
	}
	if g.Spec != nil && g.Spec.DataProtectionRequest != nil {
		return g.Spec.DataProtectionRequest, MechanismDataProtection
	}
	if g.Endpoint.Requests.Delete != nil {
		return g.Endpoint.Requests.Delete, MechanismDelete
	}
	return nil, MechanismNone
}

// MaskRequests builds one request per row using the selected mechanism.
// Rows whose generation produces nothing are skipped silently. An endpoint
// with no viable mechanism yields (nil, MechanismNone, nil).
func (g *SaaSGenerator) MaskRequests(ident identity.Payload, rs []rows.Row, pol *policy.Policy) ([]HTTPRequest, MaskingMechanism, error) {
	spec, mechanism := g.SelectMaskingMechanism(pol != nil && pol.Strict)
	if mechanism == MechanismNone {
		return nil, MechanismNone, nil
	}
	if _, _, err := ident.Active(); err != nil {
		return nil, mechanism, err
	}
	var out []HTTPRequest
	for _, row := range rs {
		req, err := g.maskRow(spec, mechanism, ident, row, pol)
		if err != nil {
			return nil, mechanism, err
		}
		if req != nil {
			out = append(out, *req)
		}
	}
	return out, mechanism, nil
}

func (g *SaaSGenerator) maskRow(spec *config.RequestSpec, mechanism MaskingMechanism, ident identity.Payload, row rows.Row, pol *policy.Policy) (*HTTPRequest, error) {
	// Row-level params: every param sourced from a reference resolves from
	// the row itself during masking.
	params := map[string]any{}
	for _, p := range spec.ParamValues {
		switch {
		case p.Identity != "":
			v, ok := ident[p.Identity]
			if !ok || v == nil || v == "" {
				return nil, nil
			}
			params[p.Name] = v
		case len(p.References) > 0:
			v, ok := row[p.Name]
			if !ok || v == nil {
				return nil, nil
			}
			params[p.Name] = v
		case p.ConnectorParam != "":
			v, err := config.RequireConnectorParam(g.Secrets, p.ConnectorParam)
			if err != nil {
				return nil, err
			}
			params[p.Name] = v
		}
	}

	if mechanism == MechanismUpdate && g.Collection != nil && pol != nil {
		masked, all, err := UpdateFragments(g.Collection, row, pol)
		if err != nil {
			return nil, err
		}
		if masked == "" {
			return nil, nil
		}
		params["masked_object_fields"] = masked
		params["all_object_fields"] = all
	}

	req := g.render(spec, params)
	return &req, nil
}

// UpdateFragments assembles the two parallel JSON fragments spliced into a
// SaaS update body: masked_object_fields holds only the policy-targeted
// fields with their replacement values; all_object_fields holds every
// scalar field's current value with masked ones overridden. Read-only
// fields are stripped from both, and the outer braces are removed so the
// fragments can be embedded in a larger body template.
func UpdateFragments(c *graph.Collection, row rows.Row, pol *policy.Policy) (masked, all string, err error) {
	maskedObj, allObj := fragmentMaps(c.Fields, map[string]any(row), pol)
	mb, err := json.Marshal(maskedObj)
	if err != nil {
		return "", "", fmt.Errorf("querygen: marshal masked fields: %w", err)
	}
	ab, err := json.Marshal(allObj)
	if err != nil {
		return "", "", fmt.Errorf("querygen: marshal all fields: %w", err)
	}
	if len(maskedObj) == 0 {
		return "", stripBraces(ab), nil
	}
	return stripBraces(mb), stripBraces(ab), nil
}

func fragmentMaps(fields []graph.Field, data map[string]any, pol *policy.Policy) (masked, all map[string]any) {
	masked = map[string]any{}
	all = map[string]any{}
	for _, f := range fields {
		meta := f.Meta()
		if meta.ReadOnly {
			continue
		}
		raw, present := data[meta.Name]
		switch obj := f.(type) {
		case *graph.ObjectField:
			sub, ok := raw.(map[string]any)
			if !present || !ok {
				continue
			}
			childFields := make([]graph.Field, 0, len(obj.Fields))
			for _, name := range sortedFieldNames(obj.Fields) {
				childFields = append(childFields, obj.Fields[name])
			}
			m, a := fragmentMaps(childFields, sub, pol)
			if len(m) > 0 {
				masked[meta.Name] = m
			}
			if len(a) > 0 {
				all[meta.Name] = a
			}
		default:
			if !present {
				continue
			}
			if masker, ok := pol.MaskerFor(meta.DataCategories); ok {
				mv := masker.Mask(raw)
				masked[meta.Name] = mv
				all[meta.Name] = mv
			} else {
				all[meta.Name] = raw
			}
		}
	}
	return masked, all
}

func sortedFieldNames(m map[string]graph.Field) []string {
	names := make([]string, 0, len(m))
	for n := range m {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// stripBraces removes the outer {} wrapper of a marshaled JSON object.
func stripBraces(b []byte) string {
	s := strings.TrimSpace(string(b))
	s = strings.TrimPrefix(s, "{")
	s = strings.TrimSuffix(s, "}")
	return s
}
