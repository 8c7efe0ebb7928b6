package graph

import (
	"fmt"
	"sort"

	pkgerrors "github.com/hoohou/plumber/pkg/errors"
	"github.com/hoohou/plumber/internal/servlet"
)

// Builder assembles a service graph (§3 "Service graph") before it is
// frozen into an immutable Graph. It mirrors the engine package's
// NewGraph/AddNode/AddEdge shape, generalized from plain string step
// dependencies to typed (node, pd) edges.
type Builder struct {
	servlets *servlet.Registry
	resolver Resolver

	nodes            map[NodeID]*nodeBuild
	nextID           NodeID
	edges            []Edge
	pendingEdgeNames []edgeNames
	inputName        *namedEndpoint
	outputName       *namedEndpoint
}

type nodeBuild struct {
	name string
	argv []string
}

// NewBuilder constructs an empty Builder backed by the given servlet
// registry. A nil resolver falls back to DefaultResolver.
func NewBuilder(servlets *servlet.Registry, resolver Resolver) *Builder {
	return &Builder{
		servlets: servlets,
		resolver: resolver,
		nodes:    make(map[NodeID]*nodeBuild),
	}
}

// AddNode reserves a node bound to the named servlet with the given argv,
// returning its NodeID for use in AddEdge/SetInput/SetOutput.
func (b *Builder) AddNode(servletName string, argv []string) NodeID {
	id := b.nextID
	b.nextID++
	b.nodes[id] = &nodeBuild{name: servletName, argv: append([]string(nil), argv...)}
	return id
}

// AddEdge records a pipe binding from an output PD to an input PD, named by
// the PD names the servlets declare through Describe.
func (b *Builder) AddEdge(srcNode NodeID, srcPD string, dstNode NodeID, dstPD string) error {
	if _, ok := b.nodes[srcNode]; !ok {
		return pkgerrors.NewUsageError("graph.AddEdge", fmt.Sprintf("unknown source node %d", srcNode))
	}
	if _, ok := b.nodes[dstNode]; !ok {
		return pkgerrors.NewUsageError("graph.AddEdge", fmt.Sprintf("unknown destination node %d", dstNode))
	}
	b.edges = append(b.edges, Edge{SrcNode: srcNode, DstNode: dstNode, SrcPD: -1, DstPD: -1})
	b.pendingEdgeNames = append(b.pendingEdgeNames, edgeNames{srcPD: srcPD, dstPD: dstPD})
	return nil
}

type edgeNames struct {
	srcPD, dstPD string
}

// SetInput designates the graph's single request-arrival endpoint.
func (b *Builder) SetInput(node NodeID, pdName string) error {
	if _, ok := b.nodes[node]; !ok {
		return pkgerrors.NewUsageError("graph.SetInput", fmt.Sprintf("unknown node %d", node))
	}
	b.inputName = &namedEndpoint{node: node, pd: pdName}
	return nil
}

// SetOutput designates the graph's single response-delivery endpoint.
func (b *Builder) SetOutput(node NodeID, pdName string) error {
	if _, ok := b.nodes[node]; !ok {
		return pkgerrors.NewUsageError("graph.SetOutput", fmt.Sprintf("unknown node %d", node))
	}
	b.outputName = &namedEndpoint{node: node, pd: pdName}
	return nil
}

type namedEndpoint struct {
	node NodeID
	pd   string
}

// Freeze resolves every servlet's PD table via Describe, binds edge and
// endpoint PD names to indices, runs the topology check, and performs type
// inference over the bound edges (§4.4), returning an immutable Graph.
func (b *Builder) Freeze() (*Graph, error) {
	resolver := b.resolver
	if resolver == nil {
		resolver = DefaultResolver
	}

	ids := make([]NodeID, 0, len(b.nodes))
	for id := range b.nodes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	nodes := make(map[NodeID]*Node, len(ids))
	for _, id := range ids {
		nb := b.nodes[id]
		s, err := b.servlets.New(nb.name)
		if err != nil {
			return nil, err
		}
		nodes[id] = &Node{ID: id, ServletName: nb.name, Argv: nb.argv, PDs: s.Describe(nb.argv)}
	}

	edges := make([]Edge, len(b.edges))
	for i, e := range b.edges {
		names := b.pendingEdgeNames[i]
		srcPD := nodes[e.SrcNode].PDByName(names.srcPD)
		if srcPD < 0 {
			return nil, pkgerrors.NewValidationError("graph", fmt.Sprintf("node %d has no output pd %q", e.SrcNode, names.srcPD), nil)
		}
		dstPD := nodes[e.DstNode].PDByName(names.dstPD)
		if dstPD < 0 {
			return nil, pkgerrors.NewValidationError("graph", fmt.Sprintf("node %d has no input pd %q", e.DstNode, names.dstPD), nil)
		}
		edges[i] = Edge{SrcNode: e.SrcNode, SrcPD: srcPD, DstNode: e.DstNode, DstPD: dstPD}
	}

	if b.inputName == nil {
		return nil, pkgerrors.NewValidationError("graph", "no input endpoint designated", nil)
	}
	if b.outputName == nil {
		return nil, pkgerrors.NewValidationError("graph", "no output endpoint designated", nil)
	}
	inputPD := nodes[b.inputName.node].PDByName(b.inputName.pd)
	if inputPD < 0 {
		return nil, pkgerrors.NewValidationError("graph", fmt.Sprintf("input node %d has no pd %q", b.inputName.node, b.inputName.pd), nil)
	}
	outputPD := nodes[b.outputName.node].PDByName(b.outputName.pd)
	if outputPD < 0 {
		return nil, pkgerrors.NewValidationError("graph", fmt.Sprintf("output node %d has no pd %q", b.outputName.node, b.outputName.pd), nil)
	}
	input := Endpoint{Node: b.inputName.node, PD: inputPD}
	output := Endpoint{Node: b.outputName.node, PD: outputPD}

	g := &Graph{Nodes: nodes, Edges: edges, Input: input, Output: output}

	if err := g.checkTopology(); err != nil {
		return nil, err
	}
	if err := g.inferTypes(resolver); err != nil {
		return nil, err
	}
	if err := g.resolveShadows(); err != nil {
		return nil, err
	}

	return g, nil
}
