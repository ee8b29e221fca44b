package domain

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPaths(t *testing.T) Paths {
	t.Helper()
	root := CanonicalPath(t.TempDir())
	home := filepath.Join(root, "home")
	return Paths{
		Home:       home,
		Prefix:     filepath.Join(root, "usr"),
		ScriptsDir: DefaultScriptsDir(home),
	}
}

func TestPaths_Expand(t *testing.T) {
	p := Paths{Home: "/h", Prefix: "/p"}

	assert.Equal(t, "/p", p.Expand("$PREFIX"))
	assert.Equal(t, "/p/bin/bash", p.Expand("$PREFIX/bin/bash"))
	assert.Equal(t, "/h", p.Expand("~"))
	assert.Equal(t, "/h/x.sh", p.Expand("~/x.sh"))
	assert.Equal(t, "~user/x", p.Expand("~user/x"))
	assert.Equal(t, "rel.sh", p.Expand("rel.sh"))
}

func TestPaths_ResolveExecutable(t *testing.T) {
	p := testPaths(t)

	assert.Equal(t, filepath.Join(p.ScriptsDir, "run.sh"), p.ResolveExecutable("run.sh"))
	assert.Equal(t, filepath.Join(p.ScriptsDir, "sub", "run.sh"), p.ResolveExecutable("sub/../sub/run.sh"))
	assert.Equal(t, filepath.Join(p.Prefix, "bin", "ls"), p.ResolveExecutable("$PREFIX/bin/ls"))
	assert.Equal(t, filepath.Join(p.Home, "bin", "x"), p.ResolveExecutable("~/bin/x"))
}

func TestPaths_ResolveWorkingDirectory(t *testing.T) {
	p := testPaths(t)

	assert.Equal(t, "", p.ResolveWorkingDirectory(""))
	assert.Equal(t, filepath.Join(p.Home, "work"), p.ResolveWorkingDirectory("work"))
	assert.Equal(t, filepath.Join(p.Home, "work"), p.ResolveWorkingDirectory("~/work"))
}

func TestPaths_InScriptsDir(t *testing.T) {
	p := testPaths(t)

	assert.True(t, p.InScriptsDir(filepath.Join(p.ScriptsDir, "run.sh")))
	assert.False(t, p.InScriptsDir(p.ScriptsDir))
	assert.False(t, p.InScriptsDir(p.ScriptsDir+"-other/run.sh"))
	assert.False(t, p.InScriptsDir(filepath.Join(p.ScriptsDir, "..", "escape.sh")))
}

func TestIsPathInDir(t *testing.T) {
	assert.True(t, IsPathInDir("/a/b", "/a", true))
	assert.True(t, IsPathInDir("/a", "/a", false))
	assert.False(t, IsPathInDir("/a", "/a", true))
	assert.False(t, IsPathInDir("/ab", "/a", false))
	assert.False(t, IsPathInDir("", "/a", false))
}

func TestCanonicalPath_ResolvesSymlinks(t *testing.T) {
	p := testPaths(t)
	require.NoError(t, os.MkdirAll(p.ScriptsDir, 0o750))
	outside := filepath.Join(p.Home, "outside.sh")
	require.NoError(t, os.WriteFile(outside, []byte("#!/bin/sh\n"), 0o700))
	link := filepath.Join(p.ScriptsDir, "link.sh")
	require.NoError(t, os.Symlink(outside, link))

	resolved := p.ResolveExecutable("link.sh")
	assert.Equal(t, outside, resolved)
	assert.False(t, p.InScriptsDir(resolved))
}
