// Package config defines the serializable configuration payloads a
// subject-request graph is assembled from: manually authored dataset schemas
// and third-party API (SaaS) endpoint configs. Files load from JSON or YAML;
// field names in Go mirror the on-disk structure.
//
// Decoding is deliberately separated from validation: decode first, then run
// the linters in validate.go, then build the graph. Load-time validation
// catches every mutually-exclusive or malformed shape before any backend is
// contacted.
package config

import (
	"encoding/json"
	"fmt"
	"strings"
)

// File is the top-level payload of one configuration file. A file may carry
// dataset schemas, SaaS configs, or both.
type File struct {
	Datasets []DatasetSpec `json:"datasets" yaml:"datasets"`
	SaaS     []SaaSSpec    `json:"saas" yaml:"saas"`
}

// DatasetSpec describes one dataset: a named group of collections executed
// over a single external connection.
type DatasetSpec struct {
	Name string `json:"name" yaml:"name"`

	// ConnectionKey names the connector configuration executing this
	// dataset's collections.
	ConnectionKey string `json:"connection_key" yaml:"connection_key"`

	// After lists dataset names that must fully complete first.
	After []string `json:"after" yaml:"after"`

	Collections []CollectionSpec `json:"collections" yaml:"collections"`
}

// CollectionSpec describes one collection and its ordering hints. After and
// EraseAfter entries use the dotted "dataset.collection" form.
type CollectionSpec struct {
	Name          string      `json:"name" yaml:"name"`
	After         []string    `json:"after" yaml:"after"`
	EraseAfter    []string    `json:"erase_after" yaml:"erase_after"`
	GroupedInputs []string    `json:"grouped_inputs" yaml:"grouped_inputs"`
	Fields        []FieldSpec `json:"fields" yaml:"fields"`
}

// FieldSpec describes one field; a non-empty Fields list makes it an object
// field.
type FieldSpec struct {
	Name              string          `json:"name" yaml:"name"`
	PrimaryKey        bool            `json:"primary_key" yaml:"primary_key"`
	Identity          string          `json:"identity" yaml:"identity"`
	DataCategories    []string        `json:"data_categories" yaml:"data_categories"`
	Type              string          `json:"type" yaml:"type"`
	Length            int             `json:"length" yaml:"length"`
	IsArray           bool            `json:"is_array" yaml:"is_array"`
	ReadOnly          bool            `json:"read_only" yaml:"read_only"`
	ReturnAllElements bool            `json:"return_all_elements" yaml:"return_all_elements"`
	References        []ReferenceSpec `json:"references" yaml:"references"`
	Fields            []FieldSpec     `json:"fields" yaml:"fields"`
}

// ReferenceSpec points at a field in another collection. Field uses the
// dotted "dataset.collection.path" form; when Dataset is set instead, it
// names an external dataset reference resolved through the secrets provider
// and Field holds only "collection.path".
type ReferenceSpec struct {
	Dataset   string `json:"dataset" yaml:"dataset"`
	Field     string `json:"field" yaml:"field"`
	Direction string `json:"direction" yaml:"direction"`
}

// SaaSSpec configures a third-party HTTP API. Each endpoint maps 1:1 to a
// collection by name.
type SaaSSpec struct {
	Name            string         `json:"name" yaml:"name"`
	ConnectorParams Options        `json:"connector_params" yaml:"connector_params"`
	ClientConfig    ClientConfig   `json:"client_config" yaml:"client_config"`
	Endpoints       []EndpointSpec `json:"endpoints" yaml:"endpoints"`

	// DataProtectionRequest is the GDPR-style bulk-delete request, selected
	// for masking only when the policy is not strict.
	DataProtectionRequest *RequestSpec `json:"data_protection_request" yaml:"data_protection_request"`
}

// ClientConfig carries transport-level settings for a SaaS API.
type ClientConfig struct {
	Protocol string     `json:"protocol" yaml:"protocol"` // "https" default
	Host     string     `json:"host" yaml:"host"`
	Auth     AuthConfig `json:"authentication" yaml:"authentication"`
}

// AuthConfig selects one of a closed set of authentication strategies.
type AuthConfig struct {
	Strategy string  `json:"strategy" yaml:"strategy"` // bearer | basic | api_key
	Config   Options `json:"configuration" yaml:"configuration"`
}

// AuthStrategies is the closed set of accepted authentication strategy tags.
var AuthStrategies = map[string]struct{}{
	"":        {}, // unauthenticated
	"bearer":  {},
	"basic":   {},
	"api_key": {},
}

// EndpointSpec binds requests and ordering hints to one collection name.
type EndpointSpec struct {
	Name       string     `json:"name" yaml:"name"`
	After      []string   `json:"after" yaml:"after"`
	EraseAfter []string   `json:"erase_after" yaml:"erase_after"`
	Requests   RequestSet `json:"requests" yaml:"requests"`
}

// RequestSet groups the per-action requests of an endpoint. Read accepts a
// single object or a list in the source file.
type RequestSet struct {
	Read   RequestList  `json:"read" yaml:"read"`
	Update *RequestSpec `json:"update" yaml:"update"`
	Delete *RequestSpec `json:"delete" yaml:"delete"`
}

// RequestList decodes either one request object or an array of them.
type RequestList []RequestSpec

// UnmarshalJSON accepts `{...}` as a one-element list.
func (l *RequestList) UnmarshalJSON(b []byte) error {
	trimmed := strings.TrimSpace(string(b))
	if trimmed == "" || trimmed == "null" {
		*l = nil
		return nil
	}
	if strings.HasPrefix(trimmed, "[") {
		var many []RequestSpec
		if err := json.Unmarshal(b, &many); err != nil {
			return err
		}
		*l = many
		return nil
	}
	var one RequestSpec
	if err := json.Unmarshal(b, &one); err != nil {
		return err
	}
	*l = RequestList{one}
	return nil
}

// UnmarshalYAML accepts a mapping as a one-element list.
func (l *RequestList) UnmarshalYAML(unmarshal func(any) error) error {
	var many []RequestSpec
	if err := unmarshal(&many); err == nil {
		*l = many
		return nil
	}
	var one RequestSpec
	if err := unmarshal(&one); err != nil {
		return err
	}
	*l = RequestList{one}
	return nil
}

// RequestSpec describes one HTTP request shape. When RequestOverride is set,
// only ParamValues and GroupedInputs may additionally be populated; every
// other field must stay empty.
type RequestSpec struct {
	Method      string            `json:"method" yaml:"method"`
	Path        string            `json:"path" yaml:"path"`
	Headers     map[string]string `json:"headers" yaml:"headers"`
	QueryParams map[string]string `json:"query_params" yaml:"query_params"`

	// Body is a template; the generated masked_object_fields /
	// all_object_fields fragments splice into it via <...> placeholders.
	Body string `json:"body" yaml:"body"`

	// DataPath locates the row array within the JSON response.
	DataPath string `json:"data_path" yaml:"data_path"`

	ParamValues            []ParamValueSpec `json:"param_values" yaml:"param_values"`
	GroupedInputs          []string         `json:"grouped_inputs" yaml:"grouped_inputs"`
	RequestOverride        string           `json:"request_override" yaml:"request_override"`
	SkipMissingParamValues bool             `json:"skip_missing_param_values" yaml:"skip_missing_param_values"`
}

// ParamValueSpec sources one named placeholder from exactly one of: an
// identity seed, upstream dataset references, or a connector secret.
type ParamValueSpec struct {
	Name           string          `json:"name" yaml:"name"`
	Identity       string          `json:"identity" yaml:"identity"`
	References     []ReferenceSpec `json:"references" yaml:"references"`
	ConnectorParam string          `json:"connector_param" yaml:"connector_param"`

	// Unpack flattens one level of list nesting before use.
	Unpack bool `json:"unpack" yaml:"unpack"`
}

// SourceCount returns how many of the mutually exclusive sources are set.
func (p ParamValueSpec) SourceCount() int {
	n := 0
	if p.Identity != "" {
		n++
	}
	if len(p.References) > 0 {
		n++
	}
	if p.ConnectorParam != "" {
		n++
	}
	return n
}

// HasOverrideConflict reports whether a request with request_override also
// populates fields other than param_values/grouped_inputs.
func (r RequestSpec) HasOverrideConflict() bool {
	if r.RequestOverride == "" {
		return false
	}
	return r.Method != "" || r.Path != "" || len(r.Headers) > 0 ||
		len(r.QueryParams) > 0 || r.Body != "" || r.DataPath != ""
}

// String renders a compact identifier for error messages.
func (r ReferenceSpec) String() string {
	if r.Dataset != "" {
		return fmt.Sprintf("%s/%s (%s)", r.Dataset, r.Field, r.Direction)
	}
	return fmt.Sprintf("%s (%s)", r.Field, r.Direction)
}
