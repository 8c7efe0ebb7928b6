package graphloader

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/require"
)

var gitSig = object.Signature{Name: "test", Email: "test@example.com", When: time.Unix(0, 0)}

func newBareRemote(t *testing.T) string {
	t.Helper()
	remoteDir := filepath.Join(t.TempDir(), "remote.git")

	seedDir := t.TempDir()
	repo, err := git.PlainInit(seedDir, false)
	require.NoError(t, err)
	wt, err := repo.Worktree()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(seedDir, "graph.yaml"), []byte("nodes: []\n"), 0o644))
	_, err = wt.Add("graph.yaml")
	require.NoError(t, err)
	_, err = wt.Commit("seed", &git.CommitOptions{
		Author: &gitSig,
	})
	require.NoError(t, err)

	_, err = git.PlainClone(remoteDir, true, &git.CloneOptions{URL: seedDir})
	require.NoError(t, err)
	return remoteDir
}

func TestSyncClonesOnMissingDestination(t *testing.T) {
	remote := newBareRemote(t)
	dest := filepath.Join(t.TempDir(), "checkout")

	path, err := Sync(context.Background(), Source{URL: remote, Dest: dest, GraphPath: "graph.yaml"})
	require.NoError(t, err)
	require.FileExists(t, path)
}

func TestSyncPullsWhenAlreadyCloned(t *testing.T) {
	remote := newBareRemote(t)
	dest := filepath.Join(t.TempDir(), "checkout")

	_, err := Sync(context.Background(), Source{URL: remote, Dest: dest, GraphPath: "graph.yaml"})
	require.NoError(t, err)

	path, err := Sync(context.Background(), Source{URL: remote, Dest: dest, GraphPath: "graph.yaml"})
	require.NoError(t, err)
	require.FileExists(t, path)
}

func TestSyncWithEmptyURLReadsLocalPathDirectly(t *testing.T) {
	dest := t.TempDir()
	path, err := Sync(context.Background(), Source{Dest: dest, GraphPath: "graph.yaml"})
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dest, "graph.yaml"), path)
}

func TestHeadReportsCurrentRevision(t *testing.T) {
	remote := newBareRemote(t)
	dest := filepath.Join(t.TempDir(), "checkout")
	_, err := Sync(context.Background(), Source{URL: remote, Dest: dest, GraphPath: "graph.yaml"})
	require.NoError(t, err)

	head, err := Head(dest)
	require.NoError(t, err)
	require.Len(t, head, 12)
}
