// Package connector contains the backend-agnostic execution contract and the
// factory through which concrete backends are opened.
//
// Concrete backends (postgres, mysql, mssql, sqlite, saas) register factories
// with this package from their init functions; importing connector/all as a
// blank import enables every built-in backend. The rest of the application
// depends only on the Connector interface and stays backend-agnostic.
package connector

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"dsrgraph/internal/config"
	"dsrgraph/internal/graph"
	"dsrgraph/internal/identity"
	"dsrgraph/internal/policy"
	"dsrgraph/pkg/rows"
)

// Connector executes generated requests against one external system. One
// connector instance serves every collection of the datasets sharing its
// connection key.
type Connector interface {
	// TestConnection verifies the backend is reachable with the configured
	// credentials. It performs no data access beyond the probe.
	TestConnection(ctx context.Context) error

	// RetrieveData returns the rows of node's collection matching the seed
	// identity and the accumulated upstream input. An empty result is a
	// normal outcome.
	RetrieveData(ctx context.Context, node *graph.Node, ident identity.Payload, in rows.Input) ([]rows.Row, error)

	// MaskData applies the policy's masking rules to the previously
	// retrieved rows and reports how many rows were affected.
	MaskData(ctx context.Context, node *graph.Node, ident identity.Payload, rs []rows.Row, pol *policy.Policy) (int, error)

	// Close releases the underlying connection resources.
	Close()
}

// Config holds backend-agnostic connector configuration. Relational backends
// consume DSN and Schema; the saas backend consumes Spec and Secrets.
type Config struct {
	Kind   string
	DSN    string
	Schema string

	Spec    *config.SaaSSpec
	Secrets config.Secrets
}

// Factory constructs a Connector for a Config. Factories are registered per
// kind by the backend packages.
type Factory func(ctx context.Context, cfg Config) (Connector, error)

var (
	regMu     sync.RWMutex
	factories = map[string]Factory{}
)

// Register registers (or replaces) the factory for the given connector kind.
// It is typically called from backend packages' init() functions.
func Register(kind string, fn Factory) {
	regMu.Lock()
	defer regMu.Unlock()
	factories[kind] = fn
}

// New opens a connector of cfg.Kind via its registered factory.
func New(ctx context.Context, cfg Config) (Connector, error) {
	regMu.RLock()
	fn, ok := factories[cfg.Kind]
	regMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unsupported connector.kind=%s", cfg.Kind)
	}
	return fn(ctx, cfg)
}

// ListKinds returns a sorted snapshot of the registered connector kinds.
func ListKinds() []string {
	regMu.RLock()
	defer regMu.RUnlock()
	kinds := make([]string, 0, len(factories))
	for k := range factories {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// ConnectionError normalizes backend failures so callers can report them
// uniformly without inspecting driver-specific error types.
type ConnectionError struct {
	Kind string // connector kind, e.g. "postgres"
	Op   string // "connect" | "test" | "retrieve" | "mask"
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connector %s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// WrapErr wraps err as a ConnectionError; nil passes through. An error that
// already carries a ConnectionError is returned unchanged so the original
// kind and op survive relaying layers such as TestAll.
func WrapErr(kind, op string, err error) error {
	if err == nil {
		return nil
	}
	var ce *ConnectionError
	if errors.As(err, &ce) {
		return err
	}
	return &ConnectionError{Kind: kind, Op: op, Err: err}
}

// SeedInput merges the identity payload into the upstream input under the
// collection's identity-bearing field names. Start nodes receive their
// filter values this way; downstream nodes usually arrive with reference
// values already present.
func SeedInput(node *graph.Node, ident identity.Payload, in rows.Input) rows.Input {
	merged := rows.Input{}
	for name, vals := range in {
		merged[name] = append([]any(nil), vals...)
	}
	for path, key := range node.Collection.Identities() {
		if path.Levels() != 1 {
			continue
		}
		name := path.Segments()[0]
		if len(merged[name]) > 0 {
			continue
		}
		if v, ok := ident[key]; ok && v != nil && v != "" {
			merged[name] = []any{v}
		}
	}
	return merged
}
