package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hoohou/plumber/internal/daemonconfig"
	"github.com/hoohou/plumber/internal/graphconfig"
	"github.com/hoohou/plumber/internal/graphloader"
	"github.com/hoohou/plumber/internal/modules/tcp"
	"github.com/hoohou/plumber/internal/scheduler"
)

type serveFlags struct {
	configPath  string
	listenAddr  string
	graphRemote string
	graphRef    string
}

func newServeCmd(app *AppContext) *cobra.Command {
	flags := &serveFlags{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the daemon against a configured service graph",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), app, flags)
		},
	}

	cmd.Flags().StringVar(&flags.configPath, "config", "plumberd.yaml", "path to the daemon config file")
	cmd.Flags().StringVar(&flags.listenAddr, "listen", "", "TCP address to accept requests on (empty disables the tcp module)")
	cmd.Flags().StringVar(&flags.graphRemote, "graph-remote", "", "optional git remote to sync the graph bundle from before loading")
	cmd.Flags().StringVar(&flags.graphRef, "graph-ref", "", "branch to track when --graph-remote is set")

	return cmd
}

func runServe(ctx context.Context, app *AppContext, flags *serveFlags) error {
	sched, err := buildScheduler(ctx, app, flags)
	if err != nil {
		return err
	}

	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	app.Logger.Info("scheduler started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		app.Logger.Info("received signal, shutting down", "signal", sig.String())
	case <-ctx.Done():
	}

	return sched.Kill(true)
}

// buildScheduler loads the daemon config and service graph, registers the
// optional tcp listener, and constructs (but does not start) a Scheduler.
// Shared by `serve` and `top`, which both run the same daemon but differ in
// whether a live dashboard is attached.
func buildScheduler(ctx context.Context, app *AppContext, flags *serveFlags) (*scheduler.Scheduler, error) {
	cfg, err := daemonconfig.Load(flags.configPath)
	if err != nil {
		return nil, fmt.Errorf("load daemon config: %w", err)
	}

	graphPath := cfg.GraphFile
	if flags.graphRemote != "" {
		src := graphloader.Source{
			URL:       flags.graphRemote,
			Ref:       flags.graphRef,
			Dest:      "graph-bundle",
			GraphPath: cfg.GraphFile,
		}
		synced, err := graphloader.Sync(ctx, src)
		if err != nil {
			return nil, fmt.Errorf("sync graph bundle: %w", err)
		}
		graphPath = synced
		app.Logger.Info("synced graph bundle", "remote", flags.graphRemote, "path", graphPath)
	}

	doc, err := graphconfig.Load(graphPath)
	if err != nil {
		return nil, fmt.Errorf("load graph document: %w", err)
	}
	g, err := graphconfig.Build(doc, app.Servlets, nil)
	if err != nil {
		return nil, fmt.Errorf("build graph: %w", err)
	}

	if flags.listenAddr != "" {
		listener, err := net.Listen("tcp", flags.listenAddr)
		if err != nil {
			return nil, fmt.Errorf("listen on %s: %w", flags.listenAddr, err)
		}
		if err := app.Modules.Register(tcp.New("pipe.tcp", 0, listener)); err != nil {
			return nil, fmt.Errorf("register tcp module: %w", err)
		}
		app.Logger.Info("listening", "addr", flags.listenAddr)
	}

	return scheduler.New(scheduler.Config{
		Workers:        cfg.Scheduler.Workers,
		AsyncPoolSize:  cfg.Scheduler.AsyncPoolSize,
		EqueueCapacity: cfg.Scheduler.EqueueCapacity,
	}, g, app.Servlets, app.Modules, app.Logger), nil
}
