package engine

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mkTree creates files (paths ending in "/" are directories) below root.
func mkTree(t *testing.T, root string, entries ...string) {
	t.Helper()
	for _, e := range entries {
		p := filepath.Join(root, filepath.FromSlash(e))
		if e[len(e)-1] == '/' {
			require.NoError(t, os.MkdirAll(p, 0755))
			continue
		}
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
		require.NoError(t, os.WriteFile(p, []byte(e), 0644))
	}
}

func TestResolve_SingleFile(t *testing.T) {
	root := t.TempDir()
	mkTree(t, root, "report.csv")

	set, err := Resolve(filepath.Join(root, "report.csv"), nil)
	require.NoError(t, err)
	assert.False(t, set.IsDirectorySource)
	assert.Equal(t, []string{filepath.Join(root, "report.csv")}, set.Files)
}

func TestResolve_RelativePathBecomesAbsolute(t *testing.T) {
	root := t.TempDir()
	mkTree(t, root, "a.txt")
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(root))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	set, err := Resolve("a.txt", nil)
	require.NoError(t, err)
	require.Len(t, set.Files, 1)
	assert.True(t, filepath.IsAbs(set.Files[0]))
	assert.Equal(t, "a.txt", filepath.Base(set.Files[0]))
}

func TestResolve_DirectoryIsNotRecursive(t *testing.T) {
	tests := []struct {
		name    string
		entries []string
		want    []string
	}{
		{"empty", []string{"data/"}, nil},
		{"files only", []string{"data/a", "data/b", "data/c"}, []string{"a", "b", "c"}},
		{"subdirectories skipped", []string{"data/a", "data/sub/", "data/sub/deep", "data/z/"}, []string{"a"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			mkTree(t, root, tt.entries...)

			set, err := Resolve(filepath.Join(root, "data"), nil)
			require.NoError(t, err)
			assert.True(t, set.IsDirectorySource)

			var names []string
			for _, f := range set.Files {
				assert.Equal(t, filepath.Join(root, "data"), filepath.Dir(f))
				names = append(names, filepath.Base(f))
			}
			assert.ElementsMatch(t, tt.want, names)
		})
	}
}

func TestResolve_Glob(t *testing.T) {
	root := t.TempDir()
	mkTree(t, root, "logs/a.log", "logs/b.log", "logs/c.txt", "logs/dir.log/", "logs/dir.log/x.log")

	set, err := Resolve(filepath.Join(root, "logs", "*.log"), nil)
	require.NoError(t, err)
	assert.False(t, set.IsDirectorySource)
	assert.Equal(t, []string{
		filepath.Join(root, "logs", "a.log"),
		filepath.Join(root, "logs", "b.log"),
	}, set.Files)

	for _, f := range set.Files {
		ok, err := filepath.Match(filepath.Join(root, "logs", "*.log"), f)
		require.NoError(t, err)
		assert.True(t, ok)
	}
}

func TestResolve_GlobWithoutMatches(t *testing.T) {
	root := t.TempDir()
	log, hook := test.NewNullLogger()

	set, err := Resolve(filepath.Join(root, "*.bak"), log)
	require.NoError(t, err)
	assert.Empty(t, set.Files)
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
}

func TestResolve_GlobSyntax(t *testing.T) {
	_, err := Resolve(filepath.Join(t.TempDir(), "[a-"), nil)
	require.ErrorIs(t, err, ErrGlobSyntax)

	var re *ResolveError
	require.ErrorAs(t, err, &re)
	assert.ErrorIs(t, err, filepath.ErrBadPattern)
}

func TestResolve_NotFound(t *testing.T) {
	_, err := Resolve(filepath.Join(t.TempDir(), "missing"), nil)
	require.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestResolve_Symlinks(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	root := t.TempDir()
	mkTree(t, root, "real.txt", "data/", "other/")
	require.NoError(t, os.Symlink(filepath.Join(root, "real.txt"), filepath.Join(root, "data", "link.txt")))
	require.NoError(t, os.Symlink(filepath.Join(root, "other"), filepath.Join(root, "data", "dirlink")))
	require.NoError(t, os.Symlink(filepath.Join(root, "gone"), filepath.Join(root, "data", "dangling")))

	log, hook := test.NewNullLogger()
	set, err := Resolve(filepath.Join(root, "data"), log)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(root, "data", "link.txt")}, set.Files)

	// the dangling link is logged and skipped
	require.Len(t, hook.AllEntries(), 1)
	assert.Equal(t, filepath.Join(root, "data", "dangling"), hook.LastEntry().Data["file"])
}

func TestResolve_SpecialFile(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("no device files on windows")
	}
	if _, err := os.Stat(os.DevNull); err != nil {
		t.Skip("no null device")
	}

	_, err := Resolve(os.DevNull, nil)
	assert.ErrorIs(t, err, ErrUnsupported)
}
