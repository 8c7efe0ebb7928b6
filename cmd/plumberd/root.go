package main

import (
	"github.com/spf13/cobra"
)

func newRootCmd(app *AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "plumberd",
		Short:         "Plumber service graph daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(newServeCmd(app))
	cmd.AddCommand(newGraphCmd(app))
	cmd.AddCommand(newTopCmd(app))
	cmd.AddCommand(newVersionCmd())

	return cmd
}
