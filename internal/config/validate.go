package config

import (
	"fmt"
	"strings"
)

// IssueSeverity grades a validation finding.
type IssueSeverity string

const (
	// SeverityError blocks request processing for the affected dataset.
	SeverityError IssueSeverity = "error"
	// SeverityWarning is surfaced but does not block execution.
	SeverityWarning IssueSeverity = "warning"
)

// Issue is a single validation finding. Path is a dotted path into the
// config (e.g. "endpoints[2].requests.read.param_values[0]").
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

// Error implements error so an Issue can stand alone.
func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// Errors filters issues down to the blocking ones.
func Errors(issues []Issue) []Issue {
	var out []Issue
	for _, i := range issues {
		if i.Severity == SeverityError {
			out = append(out, i)
		}
	}
	return out
}

// ValidateFile lints every payload in a decoded file.
func ValidateFile(f File) []Issue {
	var issues []Issue
	for i, ds := range f.Datasets {
		issues = append(issues, prefixIssues(fmt.Sprintf("datasets[%d]", i), ValidateDataset(ds))...)
	}
	for i, s := range f.SaaS {
		issues = append(issues, prefixIssues(fmt.Sprintf("saas[%d]", i), ValidateSaaS(s))...)
	}
	return issues
}

func prefixIssues(prefix string, issues []Issue) []Issue {
	for i := range issues {
		if issues[i].Path == "" {
			issues[i].Path = prefix
		} else {
			issues[i].Path = prefix + "." + issues[i].Path
		}
	}
	return issues
}

// ValidateDataset performs static checks over one dataset schema.
func ValidateDataset(ds DatasetSpec) []Issue {
	var issues []Issue
	if strings.TrimSpace(ds.Name) == "" {
		issues = append(issues, Issue{SeverityError, "name", "dataset name must not be empty"})
	}
	if strings.TrimSpace(ds.ConnectionKey) == "" {
		issues = append(issues, Issue{SeverityWarning, "connection_key", "no connection key set; dataset cannot be executed"})
	}
	seen := map[string]struct{}{}
	for i, c := range ds.Collections {
		path := fmt.Sprintf("collections[%d]", i)
		if strings.TrimSpace(c.Name) == "" {
			issues = append(issues, Issue{SeverityError, path + ".name", "collection name must not be empty"})
		}
		if _, dup := seen[c.Name]; dup {
			issues = append(issues, Issue{SeverityError, path + ".name", fmt.Sprintf("duplicate collection %q", c.Name)})
		}
		seen[c.Name] = struct{}{}
		issues = append(issues, validateFields(path+".fields", c.Fields)...)
	}
	return issues
}

func validateFields(path string, fields []FieldSpec) []Issue {
	var issues []Issue
	for i, f := range fields {
		fp := fmt.Sprintf("%s[%d]", path, i)
		if strings.TrimSpace(f.Name) == "" {
			issues = append(issues, Issue{SeverityError, fp + ".name", "field name must not be empty"})
		}
		if len(f.Fields) > 0 {
			if len(f.DataCategories) > 0 {
				issues = append(issues, Issue{SeverityError, fp + ".data_categories",
					"object fields may not carry data categories; annotate the scalar leaves"})
			}
			if f.Identity != "" {
				issues = append(issues, Issue{SeverityError, fp + ".identity",
					"object fields may not carry identity pointers"})
			}
			issues = append(issues, validateFields(fp+".fields", f.Fields)...)
		}
		for j, ref := range f.References {
			rp := fmt.Sprintf("%s.references[%d]", fp, j)
			issues = append(issues, validateReference(rp, ref)...)
		}
	}
	return issues
}

func validateReference(path string, ref ReferenceSpec) []Issue {
	var issues []Issue
	if ref.Direction != "from" && ref.Direction != "to" {
		issues = append(issues, Issue{SeverityError, path + ".direction",
			fmt.Sprintf("direction must be \"from\" or \"to\", got %q", ref.Direction)})
	}
	segments := strings.Split(ref.Field, ".")
	if ref.Dataset == "" && len(segments) < 3 {
		issues = append(issues, Issue{SeverityError, path + ".field",
			fmt.Sprintf("%q must use the dataset.collection.path form", ref.Field)})
	}
	if ref.Dataset != "" && len(segments) < 2 {
		issues = append(issues, Issue{SeverityError, path + ".field",
			fmt.Sprintf("%q must use the collection.path form when dataset is named", ref.Field)})
	}
	return issues
}

// ValidateSaaS performs static checks over one SaaS config, covering the
// mutually-exclusive request shapes and the grouped-input invariants.
func ValidateSaaS(s SaaSSpec) []Issue {
	var issues []Issue
	if strings.TrimSpace(s.Name) == "" {
		issues = append(issues, Issue{SeverityError, "name", "saas config name must not be empty"})
	}
	if strings.TrimSpace(s.ClientConfig.Host) == "" {
		issues = append(issues, Issue{SeverityError, "client_config.host", "host must not be empty"})
	}
	if _, ok := AuthStrategies[s.ClientConfig.Auth.Strategy]; !ok {
		issues = append(issues, Issue{SeverityError, "client_config.authentication.strategy",
			fmt.Sprintf("unknown authentication strategy %q", s.ClientConfig.Auth.Strategy)})
	}

	seen := map[string]struct{}{}
	for i, ep := range s.Endpoints {
		path := fmt.Sprintf("endpoints[%d]", i)
		if strings.TrimSpace(ep.Name) == "" {
			issues = append(issues, Issue{SeverityError, path + ".name", "endpoint name must not be empty"})
		}
		if _, dup := seen[ep.Name]; dup {
			issues = append(issues, Issue{SeverityError, path + ".name",
				fmt.Sprintf("duplicate endpoint %q; endpoints map 1:1 to collections", ep.Name)})
		}
		seen[ep.Name] = struct{}{}

		if len(ep.Requests.Read) == 0 && ep.Requests.Update == nil && ep.Requests.Delete == nil {
			issues = append(issues, Issue{SeverityWarning, path + ".requests", "endpoint declares no requests"})
		}
		for j, r := range ep.Requests.Read {
			issues = append(issues, validateRequest(fmt.Sprintf("%s.requests.read[%d]", path, j), r)...)
		}
		if ep.Requests.Update != nil {
			issues = append(issues, validateRequest(path+".requests.update", *ep.Requests.Update)...)
		}
		if ep.Requests.Delete != nil {
			issues = append(issues, validateRequest(path+".requests.delete", *ep.Requests.Delete)...)
		}
	}
	if s.DataProtectionRequest != nil {
		issues = append(issues, validateRequest("data_protection_request", *s.DataProtectionRequest)...)
	}
	return issues
}

func validateRequest(path string, r RequestSpec) []Issue {
	var issues []Issue

	if r.HasOverrideConflict() {
		issues = append(issues, Issue{SeverityError, path + ".request_override",
			"request_override is mutually exclusive with every field except param_values and grouped_inputs"})
	}
	if r.RequestOverride == "" && r.Method == "" {
		issues = append(issues, Issue{SeverityError, path + ".method", "method must not be empty"})
	}
	if r.RequestOverride == "" && r.Path == "" {
		issues = append(issues, Issue{SeverityError, path + ".path", "path must not be empty"})
	}

	params := map[string]ParamValueSpec{}
	for i, p := range r.ParamValues {
		pp := fmt.Sprintf("%s.param_values[%d]", path, i)
		if strings.TrimSpace(p.Name) == "" {
			issues = append(issues, Issue{SeverityError, pp + ".name", "param name must not be empty"})
			continue
		}
		if n := p.SourceCount(); n != 1 {
			issues = append(issues, Issue{SeverityError, pp,
				fmt.Sprintf("param %q must be sourced from exactly one of identity, references, or connector_param (got %d)", p.Name, n)})
		}
		for j, ref := range p.References {
			rp := fmt.Sprintf("%s.references[%d]", pp, j)
			issues = append(issues, validateReference(rp, ref)...)
			if ref.Direction == "to" {
				issues = append(issues, Issue{SeverityError, rp + ".direction",
					"param references must have direction \"from\""})
			}
		}
		params[p.Name] = p
	}

	// grouped_inputs must be a subset of declared param names, each grouped
	// param must come from a reference or identity, and all grouped params
	// must resolve to the same source collection.
	sourceColl := ""
	for _, g := range r.GroupedInputs {
		p, ok := params[g]
		if !ok {
			issues = append(issues, Issue{SeverityError, path + ".grouped_inputs",
				fmt.Sprintf("grouped input %q is not a declared param value", g)})
			continue
		}
		if p.ConnectorParam != "" {
			issues = append(issues, Issue{SeverityError, path + ".grouped_inputs",
				fmt.Sprintf("grouped input %q may not be sourced from a connector constant", g)})
			continue
		}
		for _, ref := range p.References {
			coll := referenceCollection(ref)
			if sourceColl == "" {
				sourceColl = coll
			} else if coll != sourceColl {
				issues = append(issues, Issue{SeverityError, path + ".grouped_inputs",
					fmt.Sprintf("grouped input %q resolves to %q; all grouped params must share the source collection %q", g, coll, sourceColl)})
			}
		}
	}
	return issues
}

// referenceCollection extracts the "dataset.collection" prefix a reference
// resolves to, for same-source comparison.
func referenceCollection(ref ReferenceSpec) string {
	segments := strings.Split(ref.Field, ".")
	if ref.Dataset != "" {
		if len(segments) < 1 {
			return ref.Dataset
		}
		return ref.Dataset + "." + segments[0]
	}
	if len(segments) < 2 {
		return ref.Field
	}
	return segments[0] + "." + segments[1]
}
