package graph

import (
	"fmt"
	"sort"
	"strings"
)

// Node binds a collection to its owning dataset inside a built graph.
type Node struct {
	Address    CollectionAddress
	Dataset    *Dataset
	Collection *Collection
}

// ConnectionKey returns the connector key of the owning dataset.
func (n *Node) ConnectionKey() string { return n.Dataset.ConnectionKey }

// BuildError aggregates every configuration problem found while resolving a
// graph, so authors see all defects in one pass instead of one at a time.
type BuildError struct {
	Problems []string
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("graph: %d configuration problem(s): %s", len(e.Problems), strings.Join(e.Problems, "; "))
}

// Graph is the resolved constraint graph over every dataset of an execution
// plan. Edges run upstream→downstream: an edge u→v means v may not start
// before u has completed. Erase edges additionally constrain erasure-mode
// traversals only.
type Graph struct {
	Nodes      map[CollectionAddress]*Node
	Edges      map[CollectionAddress]map[CollectionAddress]struct{}
	EraseEdges map[CollectionAddress]map[CollectionAddress]struct{}

	// Seeds maps an identity seed-key name to the collections that become
	// valid start nodes when that key is present in the identity payload.
	Seeds map[string][]CollectionAddress
}

// NewGraph resolves datasets into a constraint graph using two passes:
// first every node is registered, then all cross-references and after-edges
// are validated against the complete node set. All problems are aggregated
// into a single *BuildError.
func NewGraph(datasets ...*Dataset) (*Graph, error) {
	g := &Graph{
		Nodes:      map[CollectionAddress]*Node{},
		Edges:      map[CollectionAddress]map[CollectionAddress]struct{}{},
		EraseEdges: map[CollectionAddress]map[CollectionAddress]struct{}{},
		Seeds:      map[string][]CollectionAddress{},
	}
	var problems []string

	// Pass 1: register every node.
	byDataset := map[string]*Dataset{}
	for _, ds := range datasets {
		if _, dup := byDataset[ds.Name]; dup {
			problems = append(problems, fmt.Sprintf("duplicate dataset %q", ds.Name))
			continue
		}
		byDataset[ds.Name] = ds
		for _, c := range ds.Collections {
			addr := ds.Address(c.Name)
			if _, dup := g.Nodes[addr]; dup {
				problems = append(problems, fmt.Sprintf("duplicate collection %q", addr))
				continue
			}
			g.Nodes[addr] = &Node{Address: addr, Dataset: ds, Collection: c}
		}
	}

	// Pass 2: resolve references and after-edges against the full node set.
	for _, node := range g.Nodes {
		addr := node.Address

		for path, refs := range node.Collection.References() {
			for _, ref := range refs {
				target := ref.Field.CollectionAddress()
				if target == addr {
					problems = append(problems, fmt.Sprintf(
						"field %s:%s references its own collection", addr, path))
					continue
				}
				if _, ok := g.Nodes[target]; !ok {
					problems = append(problems, fmt.Sprintf(
						"field %s:%s references unknown collection %q", addr, path, target))
					continue
				}
				switch ref.Direction {
				case RefFrom:
					g.addEdge(g.Edges, target, addr)
				case RefTo:
					g.addEdge(g.Edges, addr, target)
				default:
					problems = append(problems, fmt.Sprintf(
						"field %s:%s has invalid reference direction %q", addr, path, ref.Direction))
				}
			}
		}

		for dep := range node.Collection.After {
			if dep == addr {
				problems = append(problems, fmt.Sprintf("collection %q lists itself in after", addr))
				continue
			}
			if _, ok := g.Nodes[dep]; !ok {
				problems = append(problems, fmt.Sprintf(
					"collection %q lists unknown collection %q in after", addr, dep))
				continue
			}
			g.addEdge(g.Edges, dep, addr)
		}

		for dep := range node.Collection.EraseAfter {
			if dep == addr {
				problems = append(problems, fmt.Sprintf("collection %q lists itself in erase_after", addr))
				continue
			}
			if _, ok := g.Nodes[dep]; !ok {
				problems = append(problems, fmt.Sprintf(
					"collection %q lists unknown collection %q in erase_after", addr, dep))
				continue
			}
			g.addEdge(g.EraseEdges, dep, addr)
		}

		seen := map[string]struct{}{}
		for _, seed := range node.Collection.Identities() {
			if _, dup := seen[seed]; dup {
				continue
			}
			seen[seed] = struct{}{}
			g.Seeds[seed] = append(g.Seeds[seed], addr)
		}
	}

	// Dataset-level after: every collection of the named dataset precedes
	// every collection of the declaring dataset. Treated as a plain
	// conjunction with collection-level constraints; no ordering between the
	// two levels is inferred.
	for _, ds := range byDataset {
		for depName := range ds.After {
			dep, ok := byDataset[depName]
			if !ok {
				problems = append(problems, fmt.Sprintf(
					"dataset %q lists unknown dataset %q in after", ds.Name, depName))
				continue
			}
			if depName == ds.Name {
				problems = append(problems, fmt.Sprintf("dataset %q lists itself in after", ds.Name))
				continue
			}
			for _, upC := range dep.Collections {
				for _, downC := range ds.Collections {
					g.addEdge(g.Edges, dep.Address(upC.Name), ds.Address(downC.Name))
				}
			}
		}
	}

	// Acyclicity over read edges, then over read plus erase edges: a cycle
	// confined to erase_after would otherwise surface only mid-erasure.
	if cyc := g.findCycle(g.Edges); len(cyc) > 0 {
		problems = append(problems, fmt.Sprintf(
			"ordering constraints form a cycle involving: %s", joinAddresses(cyc)))
	} else if cyc := g.findCycle(g.Edges, g.EraseEdges); len(cyc) > 0 {
		problems = append(problems, fmt.Sprintf(
			"erasure ordering constraints form a cycle involving: %s", joinAddresses(cyc)))
	}

	if len(problems) > 0 {
		sort.Strings(problems)
		return nil, &BuildError{Problems: problems}
	}
	for seed := range g.Seeds {
		sortAddresses(g.Seeds[seed])
	}
	return g, nil
}

func joinAddresses(addrs []CollectionAddress) string {
	names := make([]string, len(addrs))
	for i, a := range addrs {
		names[i] = a.String()
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

func (g *Graph) addEdge(edges map[CollectionAddress]map[CollectionAddress]struct{}, from, to CollectionAddress) {
	m, ok := edges[from]
	if !ok {
		m = map[CollectionAddress]struct{}{}
		edges[from] = m
	}
	m[to] = struct{}{}
}

// findCycle runs Kahn's algorithm over the union of the given edge sets and
// returns the nodes left unprocessed, which are exactly the nodes on or
// downstream of a cycle.
func (g *Graph) findCycle(edgeSets ...map[CollectionAddress]map[CollectionAddress]struct{}) []CollectionAddress {
	merged := map[CollectionAddress]map[CollectionAddress]struct{}{}
	for _, edges := range edgeSets {
		for from, tos := range edges {
			for to := range tos {
				g.addEdge(merged, from, to)
			}
		}
	}

	inDegree := map[CollectionAddress]int{}
	for a := range g.Nodes {
		inDegree[a] = 0
	}
	for _, tos := range merged {
		for to := range tos {
			inDegree[to]++
		}
	}
	var queue []CollectionAddress
	for a, d := range inDegree {
		if d == 0 {
			queue = append(queue, a)
		}
	}
	processed := 0
	for len(queue) > 0 {
		a := queue[0]
		queue = queue[1:]
		processed++
		for to := range merged[a] {
			inDegree[to]--
			if inDegree[to] == 0 {
				queue = append(queue, to)
			}
		}
	}
	if processed == len(g.Nodes) {
		return nil
	}
	var stuck []CollectionAddress
	for a, d := range inDegree {
		if d > 0 {
			stuck = append(stuck, a)
		}
	}
	return stuck
}

// TraversalError reports nodes that cannot be reached from any start node
// selected by the supplied identity payload.
type TraversalError struct {
	Unreachable []CollectionAddress
}

func (e *TraversalError) Error() string {
	names := make([]string, len(e.Unreachable))
	for i, a := range e.Unreachable {
		names[i] = a.String()
	}
	return fmt.Sprintf("graph: unreachable collections: %s", strings.Join(names, ", "))
}

// Traversal is the partial order an external scheduler walks for one
// execution. It carries only constraints; it never runs anything itself.
type Traversal struct {
	Graph      *Graph
	StartNodes []CollectionAddress

	// erase selects which edge set applies: read edges only, or read plus
	// erase_after edges.
	erase bool
}

// NewTraversal selects the start nodes valid under identity (seed keys with
// non-empty values) and verifies every node is reachable from them. Different
// identity payloads may select different start sets; that is expected.
func NewTraversal(g *Graph, identity map[string]any) (*Traversal, error) {
	return newTraversal(g, identity, false)
}

// NewErasureTraversal builds a traversal that additionally honors
// erase_after constraints.
func NewErasureTraversal(g *Graph, identity map[string]any) (*Traversal, error) {
	return newTraversal(g, identity, true)
}

func newTraversal(g *Graph, identity map[string]any, erase bool) (*Traversal, error) {
	startSet := map[CollectionAddress]struct{}{}
	for seed, addrs := range g.Seeds {
		v, ok := identity[seed]
		if !ok || v == nil || v == "" {
			continue
		}
		for _, a := range addrs {
			startSet[a] = struct{}{}
		}
	}
	t := &Traversal{Graph: g, erase: erase}
	for a := range startSet {
		t.StartNodes = append(t.StartNodes, a)
	}
	sortAddresses(t.StartNodes)

	// Reachability from the synthetic root across the active edge set.
	reached := map[CollectionAddress]struct{}{}
	queue := append([]CollectionAddress(nil), t.StartNodes...)
	for len(queue) > 0 {
		a := queue[0]
		queue = queue[1:]
		if _, seen := reached[a]; seen {
			continue
		}
		reached[a] = struct{}{}
		for to := range g.Edges[a] {
			queue = append(queue, to)
		}
		if erase {
			for to := range g.EraseEdges[a] {
				queue = append(queue, to)
			}
		}
	}
	var unreachable []CollectionAddress
	for a := range g.Nodes {
		if _, ok := reached[a]; !ok {
			unreachable = append(unreachable, a)
		}
	}
	if len(unreachable) > 0 {
		sortAddresses(unreachable)
		return nil, &TraversalError{Unreachable: unreachable}
	}
	return t, nil
}

// edges returns the active upstream set of a node: read edges plus, for
// erasure traversals, erase_after edges.
func (t *Traversal) upstream(addr CollectionAddress) map[CollectionAddress]struct{} {
	ups := map[CollectionAddress]struct{}{}
	collect := func(edges map[CollectionAddress]map[CollectionAddress]struct{}) {
		for from, tos := range edges {
			if _, ok := tos[addr]; ok {
				ups[from] = struct{}{}
			}
		}
	}
	collect(t.Graph.Edges)
	if t.erase {
		collect(t.Graph.EraseEdges)
	}
	return ups
}

// ReadySets returns deterministic execution tiers: every node in tier i has
// all of its constraints satisfied by tiers < i. Any two nodes in one tier
// may run concurrently. The final tier is followed by the synthetic
// terminator, which callers may use to detect completion.
func (t *Traversal) ReadySets() [][]CollectionAddress {
	done := map[CollectionAddress]struct{}{}
	var tiers [][]CollectionAddress
	for len(done) < len(t.Graph.Nodes) {
		var tier []CollectionAddress
		for a := range t.Graph.Nodes {
			if _, ok := done[a]; ok {
				continue
			}
			ready := true
			for up := range t.upstream(a) {
				if _, ok := done[up]; !ok {
					ready = false
					break
				}
			}
			if ready {
				tier = append(tier, a)
			}
		}
		if len(tier) == 0 {
			// Cycles are rejected at build time, so this only guards against
			// future edge-set drift.
			break
		}
		sortAddresses(tier)
		tiers = append(tiers, tier)
		for _, a := range tier {
			done[a] = struct{}{}
		}
	}
	return tiers
}

func sortAddresses(addrs []CollectionAddress) {
	sort.Slice(addrs, func(i, j int) bool { return addrs[i].Compare(addrs[j]) < 0 })
}
