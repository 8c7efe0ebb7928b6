package graph

import (
	"fmt"
	"sort"

	pkgerrors "github.com/hoohou/plumber/pkg/errors"
	"github.com/hoohou/plumber/internal/servlet"
)

// Graph is an immutable, frozen service graph (§3, §4.4). It is built only
// through Builder.Freeze.
type Graph struct {
	Nodes  map[NodeID]*Node
	Edges  []Edge
	Input  Endpoint
	Output Endpoint

	// Levels holds nodes grouped by topological depth, computed by
	// checkTopology via Kahn's algorithm, mirroring the teacher's
	// level-parallel executor shape. The scheduler does not read it (it
	// seeds nodes with no inbound edges and checks each successor's
	// inputs); `plumberd graph show` prints it.
	Levels [][]NodeID

	// ResolvedTypes holds, per edge index, the concrete TypeExpr the
	// destination PD resolves to once type inference has run.
	ResolvedTypes []TypeExpr
}

// IncomingEdges returns the edges whose destination is (node, pd).
func (g *Graph) IncomingEdges(node NodeID, pd servlet.PD) []Edge {
	var out []Edge
	for _, e := range g.Edges {
		if e.DstNode == node && e.DstPD == pd {
			out = append(out, e)
		}
	}
	return out
}

// OutgoingEdges returns the edges whose source is (node, pd).
func (g *Graph) OutgoingEdges(node NodeID, pd servlet.PD) []Edge {
	var out []Edge
	for _, e := range g.Edges {
		if e.SrcNode == node && e.SrcPD == pd {
			out = append(out, e)
		}
	}
	return out
}

// checkTopology verifies the edge set forms a DAG reachable from the input
// endpoint and reaching the output endpoint, and computes Levels via Kahn's
// algorithm (grounded on the teacher's TopologicalSort, generalized from a
// single dependency string per step to possibly many typed edges per node).
func (g *Graph) checkTopology() error {
	indegree := make(map[NodeID]int, len(g.Nodes))
	successors := make(map[NodeID][]NodeID, len(g.Nodes))
	for id := range g.Nodes {
		indegree[id] = 0
	}
	seen := make(map[[2]NodeID]bool)
	for _, e := range g.Edges {
		key := [2]NodeID{e.SrcNode, e.DstNode}
		if seen[key] {
			continue
		}
		seen[key] = true
		indegree[e.DstNode]++
		successors[e.SrcNode] = append(successors[e.SrcNode], e.DstNode)
	}

	var queue []NodeID
	for id, deg := range indegree {
		if deg == 0 {
			queue = append(queue, id)
		}
	}
	sort.Slice(queue, func(i, j int) bool { return queue[i] < queue[j] })

	processed := 0
	var levels [][]NodeID
	for len(queue) > 0 {
		level := append([]NodeID(nil), queue...)
		levels = append(levels, level)

		var next []NodeID
		for _, id := range level {
			processed++
			for _, dep := range successors[id] {
				indegree[dep]--
				if indegree[dep] == 0 {
					next = append(next, dep)
				}
			}
		}
		sort.Slice(next, func(i, j int) bool { return next[i] < next[j] })
		queue = next
	}

	if processed != len(g.Nodes) {
		return pkgerrors.NewValidationError("graph", "cycle detected in service graph", nil)
	}

	if _, ok := g.Nodes[g.Input.Node]; !ok {
		return pkgerrors.NewValidationError("graph", "input endpoint references unknown node", nil)
	}
	if _, ok := g.Nodes[g.Output.Node]; !ok {
		return pkgerrors.NewValidationError("graph", "output endpoint references unknown node", nil)
	}
	if !g.reachableFromInput(g.Output.Node) {
		return pkgerrors.NewValidationError("graph", "output endpoint is not reachable from the input endpoint", nil)
	}
	for id := range g.Nodes {
		if !g.reachableFromInput(id) {
			return pkgerrors.NewValidationError("graph",
				fmt.Sprintf("node %d is not reachable from the input endpoint", id), nil)
		}
	}

	for id, n := range g.Nodes {
		for pdIdx, d := range n.PDs {
			if d.Direction != servlet.DirInput {
				continue
			}
			if id == g.Input.Node && servlet.PD(pdIdx) == g.Input.PD {
				continue
			}
			if d.Flags.Has(servlet.DescDisabled) {
				continue
			}
			if len(g.IncomingEdges(id, servlet.PD(pdIdx))) != 1 {
				return pkgerrors.NewValidationError("graph",
					fmt.Sprintf("node %d input pd %q must have exactly one incoming edge", id, d.Name), nil)
			}
		}
	}

	g.Levels = levels
	return nil
}

func (g *Graph) reachableFromInput(target NodeID) bool {
	visited := map[NodeID]bool{g.Input.Node: true}
	queue := []NodeID{g.Input.Node}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if id == target {
			return true
		}
		for _, e := range g.Edges {
			if e.SrcNode == id && !visited[e.DstNode] {
				visited[e.DstNode] = true
				queue = append(queue, e.DstNode)
			}
		}
	}
	return visited[target]
}

// inferTypes solves, per node, the convertibility equations formed by its
// incoming edges against its declared input PD types (§4.4). Per-node
// binding scope means a variable name is shared across all of one node's
// input PDs but not across different nodes. Bound variables are not
// substituted into the node's declared output PD types: a source PD's type
// is matched exactly as declared, so an output declared "$T" is compared
// as the literal token "$T".
func (g *Graph) inferTypes(resolver Resolver) error {
	g.ResolvedTypes = make([]TypeExpr, len(g.Edges))
	bindingsByNode := make(map[NodeID]bindingSet, len(g.Nodes))
	for id := range g.Nodes {
		bindingsByNode[id] = make(bindingSet)
	}

	for i, e := range g.Edges {
		srcNode := g.Nodes[e.SrcNode]
		dstNode := g.Nodes[e.DstNode]
		srcType := ParseTypeExpr(srcNode.PDs[e.SrcPD].TypeName)
		dstType := ParseTypeExpr(dstNode.PDs[e.DstPD].TypeName)

		resolved, ok := unify(srcType, dstType, bindingsByNode[e.DstNode], resolver)
		if !ok {
			return pkgerrors.NewValidationError("graph",
				fmt.Sprintf("edge %d->%d: type %q is not convertible to %q", e.SrcNode, e.DstNode, srcType, dstType), nil)
		}
		g.ResolvedTypes[i] = resolved
	}
	return nil
}

// resolveShadows validates that every Descriptor flagged DescShadow points
// at a PD index within range and of the opposite direction from itself
// (a shadow output mirrors an input, or vice versa, per §4.1's DRA
// shadow-pipe use case). Shadow chains themselves are resolved at pipe
// construction time by pipe.NewShadow, which collapses to the root origin;
// here we only validate the static declaration.
func (g *Graph) resolveShadows() error {
	for id, n := range g.Nodes {
		for _, d := range n.PDs {
			if !d.Flags.Has(servlet.DescShadow) {
				continue
			}
			if int(d.ShadowOf) < 0 || int(d.ShadowOf) >= len(n.PDs) {
				return pkgerrors.NewValidationError("graph",
					fmt.Sprintf("node %d pd %q: shadow_of index out of range", id, d.Name), nil)
			}
			origin := n.PDs[d.ShadowOf]
			if origin.Direction == d.Direction {
				return pkgerrors.NewValidationError("graph",
					fmt.Sprintf("node %d pd %q: shadow must mirror the opposite direction of pd %q", id, d.Name, origin.Name), nil)
			}
		}
	}
	return nil
}
