package provider

import (
	"errors"
	"io/fs"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/pkg/sftp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type dirInfo struct {
	name string
	dir  bool
}

func (d dirInfo) Name() string       { return d.name }
func (d dirInfo) Size() int64        { return 0 }
func (d dirInfo) Mode() fs.FileMode  { return fs.ModeDir | 0755 }
func (d dirInfo) ModTime() time.Time { return time.Time{} }
func (d dirInfo) IsDir() bool        { return d.dir }
func (d dirInfo) Sys() any           { return nil }

// memDirs is an in-memory RemoteFS. mkdirErr injects the answer to the next
// mkdir of a path. raced does the same but also creates the directory, as if
// another client won the race between our stat and mkdir.
type memDirs struct {
	mu       sync.Mutex
	dirs     map[string]bool
	files    map[string]bool
	created  []string
	mkdirErr map[string]error
	raced    map[string]error
}

func newMemDirs(existing ...string) *memDirs {
	m := &memDirs{dirs: map[string]bool{"/": true}, files: map[string]bool{}, mkdirErr: map[string]error{}, raced: map[string]error{}}
	for _, d := range existing {
		m.dirs[d] = true
	}
	return m
}

func (m *memDirs) Stat(p string) (os.FileInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dirs[p] {
		return dirInfo{name: p, dir: true}, nil
	}
	if m.files[p] {
		return dirInfo{name: p}, nil
	}
	return nil, os.ErrNotExist
}

func (m *memDirs) Mkdir(p string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.mkdirErr[p]; ok {
		delete(m.mkdirErr, p)
		return err
	}
	if err, ok := m.raced[p]; ok {
		delete(m.raced, p)
		m.dirs[p] = true
		return err
	}
	if m.dirs[p] || m.files[p] {
		return &sftp.StatusError{Code: sshFxFailure}
	}
	m.dirs[p] = true
	m.created = append(m.created, p)
	return nil
}

func TestEnsureDirectory_CreatesParentsFirst(t *testing.T) {
	m := newMemDirs("/srv")
	require.NoError(t, EnsureDirectory(m, "/srv/backup/2024/logs"))
	assert.Equal(t, []string{"/srv/backup", "/srv/backup/2024", "/srv/backup/2024/logs"}, m.created)
}

func TestEnsureDirectory_Idempotent(t *testing.T) {
	m := newMemDirs()
	require.NoError(t, EnsureDirectory(m, "/a/b/"))
	require.NoError(t, EnsureDirectory(m, "/a/b"))
	assert.Equal(t, []string{"/a", "/a/b"}, m.created)
}

func TestEnsureDirectory_RootAndRelative(t *testing.T) {
	m := newMemDirs()
	require.NoError(t, EnsureDirectory(m, "/"))
	require.NoError(t, EnsureDirectory(m, "."))
	require.NoError(t, EnsureDirectory(m, "backup/x"))
	assert.Equal(t, []string{"backup", "backup/x"}, m.created)
}

func TestEnsureDirectory_LostRace(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"file already exists status", &sftp.StatusError{Code: sshFxFileAlreadyExists}},
		{"generic failure confirmed by stat", &sftp.StatusError{Code: sshFxFailure}},
		{"local fs exist error", fs.ErrExist},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newMemDirs()
			m.raced["/a"] = tt.err

			require.NoError(t, EnsureDirectory(m, "/a/b"))
			assert.Equal(t, []string{"/a/b"}, m.created)
		})
	}
}

func TestEnsureDirectory_GenericFailureNotConfirmed(t *testing.T) {
	m := newMemDirs()
	m.mkdirErr["/a"] = &sftp.StatusError{Code: sshFxFailure}

	err := EnsureDirectory(m, "/a/b")
	require.ErrorIs(t, err, ErrDirectoryCreate)

	var te *TransferError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "mkdir", te.Op)
	assert.Equal(t, "/a", te.Path)
}

func TestEnsureDirectory_PermissionDenied(t *testing.T) {
	m := newMemDirs()
	m.mkdirErr["/locked"] = &sftp.StatusError{Code: 3}

	err := EnsureDirectory(m, "/locked/sub")
	require.ErrorIs(t, err, ErrDirectoryCreate)
	assert.Empty(t, m.created)
}

func TestEnsureDirectory_Concurrent(t *testing.T) {
	m := newMemDirs()

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = EnsureDirectory(m, "/shared/deep/dir")
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.ElementsMatch(t, []string{"/shared", "/shared/deep", "/shared/deep/dir"}, m.created)
}
