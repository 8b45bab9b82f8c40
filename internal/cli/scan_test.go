package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RevCBH/kyco/internal/comment"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestScanTree_FindsMarkers(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.go", "package a\n\n// @@docs document this\nfunc A() {}\n")
	writeFile(t, dir, "b.py", "# @@codex:fix broken parser\ndef b(): pass\n")
	writeFile(t, dir, "plain.txt", "nothing here\n")

	tags, err := scanTree(dir, comment.New())
	require.NoError(t, err)
	require.Len(t, tags, 2)

	byMode := map[string]comment.Tag{}
	for _, tag := range tags {
		byMode[tag.Mode] = tag
	}
	assert.Equal(t, "claude", byMode["docs"].Agent)
	assert.Equal(t, "document this", byMode["docs"].Description)
	assert.Equal(t, "codex", byMode["fix"].Agent)
}

func TestScanTree_SkipsTaggedMarkersAndVendorDirs(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.go", "// @@fix already created [running#3]\n")
	writeFile(t, dir, "node_modules/x.js", "// @@fix should not be seen\n")
	writeFile(t, dir, ".git/config", "// @@fix not here either\n")

	tags, err := scanTree(dir, comment.New())
	require.NoError(t, err)
	assert.Empty(t, tags)
}

func TestScanTree_SkipsBinaryFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "blob.bin", "@@fix\x00binary")

	tags, err := scanTree(dir, comment.New())
	require.NoError(t, err)
	assert.Empty(t, tags)
}
