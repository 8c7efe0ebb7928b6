// Package graphconfig parses the service-graph YAML document — nodes,
// pipe-binding edges, and the input/output endpoints — and drives a
// graph.Builder from it, mirroring the way the teacher's engine package
// turns a parsed config.Step list into a Graph via BuildDAG (internal/graph
// does the topology/type-inference work this package only feeds).
package graphconfig

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/hoohou/plumber/internal/graph"
	"github.com/hoohou/plumber/internal/servlet"
	pkgerrors "github.com/hoohou/plumber/pkg/errors"
)

// NodeSpec declares one service-graph node.
type NodeSpec struct {
	Name    string   `yaml:"name" validate:"required"`
	Servlet string   `yaml:"servlet" validate:"required"`
	Argv    []string `yaml:"argv"`
}

// EdgeSpec declares one pipe-binding edge, each endpoint written as
// "node.pd".
type EdgeSpec struct {
	Src string `yaml:"src" validate:"required"`
	Dst string `yaml:"dst" validate:"required"`
}

// Document is the parsed service-graph YAML file.
type Document struct {
	Nodes  []NodeSpec `yaml:"nodes" validate:"required,dive"`
	Edges  []EdgeSpec `yaml:"edges" validate:"dive"`
	Input  string     `yaml:"input" validate:"required"`
	Output string     `yaml:"output" validate:"required"`
}

// Load reads and validates a service-graph document from disk.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, pkgerrors.NewParseError(path, 0, err)
	}
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, pkgerrors.NewParseError(path, 0, err)
	}
	if err := validateDocument(&doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

func validateDocument(doc *Document) error {
	v := validator.New()
	if err := v.Struct(doc); err != nil {
		return pkgerrors.NewValidationError("graph", err.Error(), err)
	}
	return nil
}

func splitEndpoint(s string) (node, pd string, err error) {
	idx := strings.LastIndex(s, ".")
	if idx < 0 {
		return "", "", pkgerrors.NewValidationError("graph", fmt.Sprintf("endpoint %q must be of the form node.pd", s), nil)
	}
	return s[:idx], s[idx+1:], nil
}

// Build translates doc into a frozen service graph, resolving each node's
// servlet from reg and running graph.Builder.Freeze.
func Build(doc *Document, reg *servlet.Registry, resolver graph.Resolver) (*graph.Graph, error) {
	b := graph.NewBuilder(reg, resolver)

	byName := make(map[string]graph.NodeID, len(doc.Nodes))
	for _, n := range doc.Nodes {
		if _, exists := byName[n.Name]; exists {
			return nil, pkgerrors.NewValidationError("graph", fmt.Sprintf("duplicate node name %q", n.Name), nil)
		}
		byName[n.Name] = b.AddNode(n.Servlet, n.Argv)
	}

	resolveEndpoint := func(s string) (graph.NodeID, string, error) {
		nodeName, pdName, err := splitEndpoint(s)
		if err != nil {
			return 0, "", err
		}
		id, ok := byName[nodeName]
		if !ok {
			return 0, "", pkgerrors.NewValidationError("graph", fmt.Sprintf("unknown node %q", nodeName), nil)
		}
		return id, pdName, nil
	}

	for _, e := range doc.Edges {
		srcNode, srcPD, err := resolveEndpoint(e.Src)
		if err != nil {
			return nil, err
		}
		dstNode, dstPD, err := resolveEndpoint(e.Dst)
		if err != nil {
			return nil, err
		}
		if err := b.AddEdge(srcNode, srcPD, dstNode, dstPD); err != nil {
			return nil, err
		}
	}

	inNode, inPD, err := resolveEndpoint(doc.Input)
	if err != nil {
		return nil, err
	}
	if err := b.SetInput(inNode, inPD); err != nil {
		return nil, err
	}

	outNode, outPD, err := resolveEndpoint(doc.Output)
	if err != nil {
		return nil, err
	}
	if err := b.SetOutput(outNode, outPD); err != nil {
		return nil, err
	}

	return b.Freeze()
}
