package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openmined/journalsync/internal/blob"
	"github.com/openmined/journalsync/internal/workspace"
)

func TestPushUploadsAndSkipsOnSecondRun(t *testing.T) {
	f := newCLIFixture(t)
	f.writeFile("2024/01/entry.md", "first entry")
	f.writeFile("notes.txt", "notes")

	out, _, err := f.run("push")
	require.NoError(t, err)
	assert.Contains(t, out, "uploading 2 files")
	assert.Contains(t, out, "done 2 uploaded, 0 skipped")
	assert.ElementsMatch(t, []string{"2024/01/entry.md", "notes.txt"}, f.remote.Keys())

	data, ok := f.remote.Get("2024/01/entry.md")
	require.True(t, ok)
	assert.Equal(t, "first entry", string(data))

	config, err := os.ReadFile(filepath.Join(f.dir, ".journalsync", "config.json"))
	require.NoError(t, err)
	assert.Contains(t, string(config), "lastPushTimestamp")

	out, _, err = f.run("push", "--mode", "all")
	require.NoError(t, err)
	assert.Contains(t, out, "everything up to date")
	assert.Equal(t, 2, f.remote.UploadCalls())
}

func TestPushDryRunUploadsNothing(t *testing.T) {
	f := newCLIFixture(t)
	f.writeFile("entry.md", "hello")

	out, _, err := f.run("push", "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, out, "dry run 1 files")
	assert.Contains(t, out, "+ entry.md")
	assert.Empty(t, f.remote.Keys())

	config, err := os.ReadFile(filepath.Join(f.dir, ".journalsync", "config.json"))
	require.NoError(t, err)
	assert.NotContains(t, string(config), "lastPushTimestamp")
}

func TestPushForceReuploads(t *testing.T) {
	f := newCLIFixture(t)
	f.writeFile("entry.md", "hello")

	_, _, err := f.run("push")
	require.NoError(t, err)

	out, _, err := f.run("push", "--force", "--mode", "all")
	require.NoError(t, err)
	assert.Contains(t, out, "done 1 uploaded")
	assert.Equal(t, 2, f.remote.UploadCalls())
}

func TestPushReportsFailedFiles(t *testing.T) {
	f := newCLIFixture(t)
	f.writeConfig(`{"remote": {"provider": "memory"}, "retry": {"maxAttempts": 1}}`)
	f.writeFile("good.md", "ok")
	f.writeFile("bad.md", "nope")
	f.remote.FailUploads("bad.md", blob.ErrAuthentication, -1)

	out, _, err := f.run("push")
	require.ErrorIs(t, err, errPushIncomplete)
	assert.Contains(t, out, "bad.md failed")
	assert.Contains(t, out, "errors 1")
	assert.Equal(t, []string{"good.md"}, f.remote.Keys())
}

func TestPushRejectsUnknownMode(t *testing.T) {
	f := newCLIFixture(t)

	_, _, err := f.run("push", "--mode", "newest")
	require.Error(t, err)
	assert.Empty(t, f.remote.Keys())
}

func TestPushRejectsInvalidConfig(t *testing.T) {
	f := newCLIFixture(t)
	f.writeConfig(`{"remote": {"provider": "s3"}}`)

	_, _, err := f.run("push")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "remote.url is required")
}

func TestPushFailsWhenLocked(t *testing.T) {
	f := newCLIFixture(t)
	f.writeFile("entry.md", "hello")

	ws, err := workspace.New(f.dir)
	require.NoError(t, err)
	require.NoError(t, ws.Setup())
	require.NoError(t, ws.Lock())
	defer ws.Unlock()

	_, _, err = f.run("push")
	require.True(t, errors.Is(err, workspace.ErrWorkspaceLocked), "got %v", err)
	assert.Empty(t, f.remote.Keys())
}

func TestPushConcurrencyFlagOverridesConfig(t *testing.T) {
	f := newCLIFixture(t)
	f.writeConfig(`{"remote": {"provider": "memory"}, "sync": {"concurrency": 0}}`)
	for _, key := range []string{"a.md", "b.md", "c.md"} {
		f.writeFile(key, key)
	}

	_, _, err := f.run("push", "--concurrency", "1")
	require.NoError(t, err)
	assert.Len(t, f.remote.Keys(), 3)
}
