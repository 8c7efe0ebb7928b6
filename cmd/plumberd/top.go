package main

import (
	"context"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/hoohou/plumber/internal/inspector"
)

func newTopCmd(app *AppContext) *cobra.Command {
	flags := &serveFlags{}

	cmd := &cobra.Command{
		Use:   "top",
		Short: "Start the daemon with a live scheduler dashboard attached",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTop(cmd.Context(), app, flags)
		},
	}

	cmd.Flags().StringVar(&flags.configPath, "config", "plumberd.yaml", "path to the daemon config file")
	cmd.Flags().StringVar(&flags.listenAddr, "listen", "", "TCP address to accept requests on (empty disables the tcp module)")
	cmd.Flags().StringVar(&flags.graphRemote, "graph-remote", "", "optional git remote to sync the graph bundle from before loading")
	cmd.Flags().StringVar(&flags.graphRef, "graph-ref", "", "branch to track when --graph-remote is set")

	return cmd
}

func runTop(ctx context.Context, app *AppContext, flags *serveFlags) error {
	sched, err := buildScheduler(ctx, app, flags)
	if err != nil {
		return err
	}
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer func() { _ = sched.Kill(true) }()

	source := func() inspector.Stats {
		s := sched.Stats()
		return inspector.Stats{
			Workers:        s.Workers,
			AsyncPoolSize:  s.AsyncPoolSize,
			EqueueLen:      s.EqueueLen,
			TotalRequests:  s.TotalRequests,
			ActiveRequests: s.ActiveRequests,
		}
	}

	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return runPlainStats(ctx, source)
	}

	m := inspector.NewModel(source, 500*time.Millisecond)
	p := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("run dashboard: %w", err)
	}
	return nil
}

// runPlainStats is the non-interactive fallback when stdout is not a TTY
// (piped output, a log collector, a CI job): it prints one stats line per
// tick until the context is cancelled instead of drawing the full-screen
// dashboard, mirroring the teacher's apply command falling back to plain
// log lines when it can't drive a bubbletea program.
func runPlainStats(ctx context.Context, source func() inspector.Stats) error {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s := source()
			fmt.Printf("workers=%d async_pool=%d active=%d total=%d equeue=%d\n",
				s.Workers, s.AsyncPoolSize, s.ActiveRequests, s.TotalRequests, s.EqueueLen)
		}
	}
}
