// Package graphloader optionally syncs a service-graph bundle (the graph
// document plus any servlet argv data it references) from a git remote
// before the daemon loads it, so a fleet of plumberd instances can pull
// the same graph revision without a separate deploy step. Grounded on the
// teacher's repo plugin, which drives go-git the same way: clone when the
// destination is empty, open-and-check-remote otherwise (§ domain stack:
// "PD/graph bundle sync").
package graphloader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"

	pkgerrors "github.com/hoohou/plumber/pkg/errors"
)

// Source describes a git-backed graph bundle.
type Source struct {
	// URL is the git remote to clone or pull from.
	URL string
	// Ref is the branch to track; empty means the remote's default branch.
	Ref string
	// Dest is the local checkout directory.
	Dest string
	// GraphPath is the path, relative to Dest, of the service-graph YAML
	// document within the bundle.
	GraphPath string
}

// Sync ensures Dest holds an up-to-date checkout of Source and returns the
// absolute path to the service-graph document inside it. A missing Dest is
// cloned; an existing one is fetched and fast-forwarded to Ref.
func Sync(ctx context.Context, src Source) (string, error) {
	if src.URL == "" {
		return filepath.Join(src.Dest, src.GraphPath), nil
	}

	gitDir := filepath.Join(src.Dest, ".git")
	if _, err := os.Stat(gitDir); err != nil {
		if !os.IsNotExist(err) {
			return "", pkgerrors.NewModuleIOError("graphloader", "stat", err)
		}
		if err := clone(ctx, src); err != nil {
			return "", err
		}
		return filepath.Join(src.Dest, src.GraphPath), nil
	}

	if err := pull(ctx, src); err != nil {
		return "", err
	}
	return filepath.Join(src.Dest, src.GraphPath), nil
}

func clone(ctx context.Context, src Source) error {
	if err := os.MkdirAll(filepath.Dir(src.Dest), 0o755); err != nil {
		return pkgerrors.NewModuleIOError("graphloader", "mkdir", err)
	}
	opts := &git.CloneOptions{URL: src.URL}
	if src.Ref != "" {
		opts.ReferenceName = plumbing.NewBranchReferenceName(src.Ref)
		opts.SingleBranch = true
	}
	if _, err := git.PlainCloneContext(ctx, src.Dest, false, opts); err != nil {
		return pkgerrors.NewModuleIOError("graphloader", "clone", fmt.Errorf("clone %s: %w", src.URL, err))
	}
	return nil
}

func pull(ctx context.Context, src Source) error {
	repo, err := git.PlainOpen(src.Dest)
	if err != nil {
		return pkgerrors.NewModuleIOError("graphloader", "open", err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return pkgerrors.NewModuleIOError("graphloader", "worktree", err)
	}
	opts := &git.PullOptions{RemoteName: "origin"}
	if src.Ref != "" {
		opts.ReferenceName = plumbing.NewBranchReferenceName(src.Ref)
	}
	if err := wt.PullContext(ctx, opts); err != nil {
		switch err {
		case git.NoErrAlreadyUpToDate:
			return nil
		case transport.ErrEmptyRemoteRepository:
			return nil
		default:
			return pkgerrors.NewModuleIOError("graphloader", "pull", fmt.Errorf("pull %s: %w", src.URL, err))
		}
	}
	return nil
}

// Head returns the first 12 hex digits of the checked-out commit hash, for
// logging which graph bundle version a daemon instance is running.
func Head(dest string) (string, error) {
	repo, err := git.PlainOpen(dest)
	if err != nil {
		return "", pkgerrors.NewModuleIOError("graphloader", "open", err)
	}
	ref, err := repo.Head()
	if err != nil {
		return "", pkgerrors.NewModuleIOError("graphloader", "head", err)
	}
	return ref.Hash().String()[:12], nil
}
