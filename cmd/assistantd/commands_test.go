package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/creastat/assistant"
	"github.com/creastat/assistant/blobstore"
)

func TestVersionCmd(t *testing.T) {
	oldVersion, oldBuildTime, oldGitCommit := Version, BuildTime, GitCommit
	t.Cleanup(func() {
		Version, BuildTime, GitCommit = oldVersion, oldBuildTime, oldGitCommit
	})
	Version, BuildTime, GitCommit = "1.2.3", "2025-12-05", "abcdef"

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"version"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})
	require.NoError(t, rootCmd.Execute())

	assert.Contains(t, out.String(), "assistantd 1.2.3")
	assert.Contains(t, out.String(), "Built: 2025-12-05")
	assert.Contains(t, out.String(), "Commit: abcdef")
}

func TestSweepOnceUsesTierRetention(t *testing.T) {
	root := t.TempDir()
	stage := func(slug, name string, age time.Duration) {
		dir := filepath.Join(root, slug)
		require.NoError(t, os.MkdirAll(dir, 0o750))
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))
		at := time.Now().Add(-age)
		require.NoError(t, os.Chtimes(path, at, at))
	}
	// Free tier keeps 15 days, pro keeps 95.
	stage("1", "old.pdf", 20*24*time.Hour)
	stage("1", "new.pdf", time.Hour)
	stage("2", "old.pdf", 20*24*time.Hour)

	tenants := assistant.NewMemoryTenantStore(
		assistant.Tenant{Slug: "1"},
		assistant.Tenant{Slug: "2", Subscribed: true, TierLevel: 3},
	)
	a := &app{manager: blobstore.NewManager(tenants, blobstore.NewStaging(root), nil)}

	removed, err := sweepOnce(context.Background(), a)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.NoFileExists(t, filepath.Join(root, "1", "old.pdf"))
	assert.FileExists(t, filepath.Join(root, "1", "new.pdf"))
	assert.FileExists(t, filepath.Join(root, "2", "old.pdf"))
}
