package main

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/openmined/journalsync/internal/blob"
)

var ansiRE = regexp.MustCompile(`\x1b\[[0-9;]*m`)

func stripANSI(s string) string {
	return ansiRE.ReplaceAllString(s, "")
}

// cliFixture is a journal directory whose memory remote survives across
// command invocations.
type cliFixture struct {
	t      *testing.T
	dir    string
	remote *blob.MemoryClient
}

func newCLIFixture(t *testing.T) *cliFixture {
	t.Helper()

	dir := t.TempDir()
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	f := &cliFixture{t: t, dir: dir, remote: blob.NewMemoryClient()}
	f.writeConfig(`{"remote": {"provider": "memory"}}`)
	return f
}

func (f *cliFixture) writeConfig(body string) {
	f.t.Helper()
	path := filepath.Join(f.dir, ".journalsync", "config.json")
	require.NoError(f.t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(f.t, os.WriteFile(path, []byte(body), 0o600))
}

func (f *cliFixture) writeFile(key, content string) {
	f.t.Helper()
	path := filepath.Join(f.dir, filepath.FromSlash(key))
	require.NoError(f.t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(f.t, os.WriteFile(path, []byte(content), 0o644))
}

// run executes the CLI in-process and returns stdout, stderr and the error.
func (f *cliFixture) run(args ...string) (string, string, error) {
	f.t.Helper()

	a := newApp()
	a.factory = blob.NewFactory()
	a.factory.Register(blob.ProviderMemory, func(*blob.Config) (blob.Client, error) { return f.remote, nil })
	defer a.close()

	var stdout, stderr bytes.Buffer
	root := a.rootCmd()
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(append([]string{"--dir", f.dir}, args...))
	err := root.Execute()
	return stripANSI(stdout.String()), stripANSI(stderr.String()), err
}
