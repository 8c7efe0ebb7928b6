// Package graph implements the service graph: a frozen DAG of servlet
// nodes connected by typed pipe-binding edges, with a designated input and
// output endpoint (§3 "Service graph", §4.4).
package graph

import "github.com/hoohou/plumber/internal/servlet"

// NodeID identifies a servlet instance within a graph.
type NodeID int

// Node is a servlet instance bound into the graph.
type Node struct {
	ID          NodeID
	ServletName string
	Argv        []string
	PDs         []servlet.Descriptor
}

// PDByName returns the PD index declared under name, or -1 if none.
func (n *Node) PDByName(name string) servlet.PD {
	for i, d := range n.PDs {
		if d.Name == name {
			return servlet.PD(i)
		}
	}
	return -1
}

// Endpoint names one (node, pd) pair.
type Endpoint struct {
	Node NodeID
	PD   servlet.PD
}

// Edge is a pipe binding: an output PD feeding an input PD (§3 "Pipe
// binding (edge)").
type Edge struct {
	SrcNode NodeID
	SrcPD   servlet.PD
	DstNode NodeID
	DstPD   servlet.PD
}
