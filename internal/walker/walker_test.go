package walker

import (
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
}

func collectFiles(w *Walker, root string) []string {
	var out []string
	for e := range w.Files(root) {
		out = append(out, filepath.ToSlash(e.Rel))
	}
	sort.Strings(out)
	return out
}

func TestFiles_SkipsHiddenAndExcluded(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"a.txt":                 "a",
		"sub/b.txt":             "b",
		"sub/deeper/c.log":      "c",
		".hidden":               "h",
		".config/settings.json": "{}",
		"node_modules/pkg/x.js": "x",
		"project/.git/HEAD":     "ref",
		"project/__pycache__/m": "m",
		"project/main.go":       "package main",
	})

	w := New(Options{ExcludeDirs: []string{"node_modules", "__pycache__", ".git"}})

	assert.Equal(t, []string{
		"a.txt",
		"project/main.go",
		"sub/b.txt",
		"sub/deeper/c.log",
	}, collectFiles(w, root))
}

func TestFiles_ExcludePatterns(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"keep.txt":        "k",
		"drop.tmp":        "d",
		"build/out.bin":   "o",
		"src/a/b/gen.tmp": "g",
		"src/a/b/real.go": "r",
	})

	w := New(Options{ExcludePatterns: []string{"**/*.tmp", "build", "[invalid"}})

	assert.Equal(t, []string{"keep.txt", "src/a/b/real.go"}, collectFiles(w, root))
}

func TestAll_DirectoryEventsPrecedeContents(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"sub/file.txt": "x",
	})
	require.NoError(t, os.MkdirAll(filepath.Join(root, "empty"), 0755))

	w := New(Options{})

	var order []string
	children := map[string]int{}
	for e := range w.All(root) {
		rel := filepath.ToSlash(e.Rel)
		if e.Dir {
			rel += "/"
			children[filepath.ToSlash(e.Rel)] = e.Children
		}
		order = append(order, rel)
	}

	require.NotEmpty(t, order)
	assert.Equal(t, "./", order[0])
	assert.Less(t, indexOf(order, "sub/"), indexOf(order, "sub/file.txt"))
	assert.Equal(t, 0, children["empty"])
	assert.Equal(t, 1, children["sub"])
	assert.Equal(t, 2, children["."])
}

func TestAll_HiddenEntriesCountAsChildren(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"only-hidden/.keep": ""})

	w := New(Options{})
	for e := range w.All(root) {
		if e.Dir && e.Rel == "only-hidden" {
			assert.Equal(t, 1, e.Children)
			return
		}
	}
	t.Fatal("directory event for only-hidden not seen")
}

func TestFiles_EarlyBreak(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"a/1.txt": "1",
		"a/2.txt": "2",
		"b/3.txt": "3",
	})

	w := New(Options{})
	n := 0
	for range w.Files(root) {
		n++
		if n == 2 {
			break
		}
	}
	assert.Equal(t, 2, n)
}

func TestFiles_Symlinks(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"real/target.txt": "t",
	})

	if err := os.Symlink(filepath.Join(root, "real", "target.txt"), filepath.Join(root, "link.txt")); err != nil {
		t.Skipf("symlinks not supported: %v", err)
	}
	require.NoError(t, os.Symlink(filepath.Join(root, "real"), filepath.Join(root, "linkdir")))

	w := New(Options{})
	files := collectFiles(w, root)

	assert.Contains(t, files, "link.txt")
	assert.Contains(t, files, "real/target.txt")
	assert.NotContains(t, files, "linkdir/target.txt")
}

func TestFiles_InfoSizes(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"five.txt": "12345"})

	w := New(Options{})
	for e := range w.Files(root) {
		assert.Equal(t, int64(5), e.Info.Size())
		assert.Equal(t, filepath.Join(root, "five.txt"), e.Path)
	}
}

func TestAll_MissingRoot(t *testing.T) {
	w := New(Options{})
	for range w.All(filepath.Join(t.TempDir(), "missing")) {
		t.Fatal("no entries expected")
	}
}

func indexOf(list []string, s string) int {
	for i, v := range list {
		if v == s {
			return i
		}
	}
	return -1
}
