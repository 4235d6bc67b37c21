package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusShowsPendingAndRemoteOnly(t *testing.T) {
	f := newCLIFixture(t)
	f.writeFile("local.md", "local")
	f.remote.Put("remote.md", []byte("remote"))

	out, _, err := f.run("status", "--all")
	require.NoError(t, err)
	assert.Contains(t, out, "+ local.md")
	assert.Contains(t, out, "- remote.md")
	assert.Equal(t, 0, f.remote.UploadCalls())
	assert.Equal(t, 0, f.remote.DeleteCalls())
}

func TestStatusDoesNotRecordHistory(t *testing.T) {
	f := newCLIFixture(t)
	f.writeFile("local.md", "local")

	_, _, err := f.run("status")
	require.NoError(t, err)

	out, _, err := f.run("history")
	require.NoError(t, err)
	assert.Contains(t, out, "no pushes recorded")
}
