package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hoohou/plumber/internal/graphconfig"
)

func newGraphCmd(app *AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Inspect a service graph document",
	}
	cmd.AddCommand(newGraphValidateCmd(app))
	cmd.AddCommand(newGraphShowCmd(app))
	return cmd
}

func newGraphValidateCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <graph.yaml>",
		Short: "Load and freeze a graph document, reporting any errors",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := graphconfig.Load(args[0])
			if err != nil {
				return err
			}
			if _, err := graphconfig.Build(doc, app.Servlets, nil); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d nodes, %d edges — ok\n", args[0], len(doc.Nodes), len(doc.Edges))
			return nil
		},
	}
}

func newGraphShowCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <graph.yaml>",
		Short: "Print a frozen graph's node levels and resolved edge types",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := graphconfig.Load(args[0])
			if err != nil {
				return err
			}
			g, err := graphconfig.Build(doc, app.Servlets, nil)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for depth, level := range g.Levels {
				fmt.Fprintf(out, "level %d:\n", depth)
				for _, id := range level {
					n := g.Nodes[id]
					fmt.Fprintf(out, "  [%d] %s(%v)\n", id, n.ServletName, n.Argv)
				}
			}
			for i, e := range g.Edges {
				fmt.Fprintf(out, "edge %d->%d: %s\n", e.SrcNode, e.DstNode, g.ResolvedTypes[i])
			}
			return nil
		},
	}
}
