package config

import (
	"fmt"

	"dsrgraph/internal/graph"
)

// Secrets resolves connector_param placeholders and external dataset
// references. Implementations are supplied by the hosting application; a
// static map-backed implementation is provided for wiring and tests.
type Secrets interface {
	// ConnectorParam returns the secret value stored under name.
	ConnectorParam(name string) (any, bool)

	// ExternalReference resolves a string-valued external dataset reference
	// into a fully-qualified field address.
	ExternalReference(name string) (graph.FieldAddress, bool)
}

// StaticSecrets is a map-backed Secrets implementation.
type StaticSecrets struct {
	Params     map[string]any
	References map[string]graph.FieldAddress
}

// ConnectorParam implements Secrets.
func (s StaticSecrets) ConnectorParam(name string) (any, bool) {
	v, ok := s.Params[name]
	return v, ok
}

// ExternalReference implements Secrets.
func (s StaticSecrets) ExternalReference(name string) (graph.FieldAddress, bool) {
	a, ok := s.References[name]
	return a, ok
}

// RequireConnectorParam resolves name or fails with a configuration error.
func RequireConnectorParam(s Secrets, name string) (any, error) {
	if s == nil {
		return nil, fmt.Errorf("config: no secrets provider; cannot resolve connector param %q", name)
	}
	v, ok := s.ConnectorParam(name)
	if !ok {
		return nil, fmt.Errorf("config: connector param %q absent from secrets", name)
	}
	return v, nil
}
