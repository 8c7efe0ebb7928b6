// Command plumberd is the Plumber daemon: it loads a service graph, starts
// the scheduler against the configured transport modules, and optionally
// drives the live `top` inspector, grounded on the teacher's streamy
// command's AppContext-wires-everything-then-hands-to-cobra shape.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/hoohou/plumber/internal/itc/module"
	"github.com/hoohou/plumber/internal/modules/memory"
	"github.com/hoohou/plumber/internal/plog"
	"github.com/hoohou/plumber/internal/servlet"
	"github.com/hoohou/plumber/servlets/asyncdemo"
	"github.com/hoohou/plumber/servlets/blobsink"
	"github.com/hoohou/plumber/servlets/blobsrc"
	"github.com/hoohou/plumber/servlets/cat3"
	"github.com/hoohou/plumber/servlets/reqparse"
	"github.com/hoohou/plumber/servlets/resgen"
)

// AppContext wires the long-lived collaborators every subcommand needs:
// the servlet registry, the always-available module registry entries (tcp
// modules are registered per `serve` invocation once the listen address is
// known), and a base logger each command derives its own component logger
// from.
type AppContext struct {
	Logger   *plog.Logger
	Servlets *servlet.Registry
	Modules  *module.Registry
}

func newAppContext() (*AppContext, error) {
	logger, err := plog.New(plog.Options{Level: "info", Component: "plumberd"})
	if err != nil {
		return nil, fmt.Errorf("construct logger: %w", err)
	}

	servlets := servlet.NewRegistry()
	if err := registerServlets(servlets); err != nil {
		return nil, fmt.Errorf("register servlets: %w", err)
	}

	modules := module.NewRegistry()
	if err := modules.Register(memory.New("")); err != nil {
		return nil, fmt.Errorf("register memory module: %w", err)
	}

	return &AppContext{Logger: logger, Servlets: servlets, Modules: modules}, nil
}

// registerServlets binds every servlet this build ships under the name its
// graph documents reference it by.
func registerServlets(reg *servlet.Registry) error {
	factories := map[string]servlet.Factory{
		"reqparse":  func() servlet.Servlet { return reqparse.New() },
		"resgen":    func() servlet.Servlet { return resgen.New() },
		"cat3":      func() servlet.Servlet { return cat3.New() },
		"asyncdemo": func() servlet.Servlet { return asyncdemo.New(0, 0) },
		"blobsink":  func() servlet.Servlet { return blobsink.New() },
	}
	for name, f := range factories {
		if err := reg.Register(name, f); err != nil {
			return err
		}
	}
	// blobsrc takes a payload at construction time rather than argv, so it
	// is registered by graphs that embed one via a thin per-deployment
	// wrapper; the stock build has no graph node for it today.
	_ = blobsrc.New
	return nil
}

func main() {
	app, err := newAppContext()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	root := newRootCmd(app)
	if err := root.ExecuteContext(context.Background()); err != nil {
		app.Logger.Error("command failed", "error", err)
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
