package engine

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// ResolvedFileSet is the concrete list of files a source argument
// denotes. IsDirectorySource changes the remote layout: files keep their
// parent directory name as one extra level of nesting.
type ResolvedFileSet struct {
	IsDirectorySource bool
	// Files holds absolute paths of regular files. Order is for display only.
	Files []string
}

const globMeta = "*?["

// Resolve expands spec into a file set. A spec containing glob
// metacharacters is matched against the file system and only regular files
// are kept. A directory is listed without descending into subdirectories.
// Entries that cannot be inspected are logged and skipped.
func Resolve(spec string, log logrus.FieldLogger) (*ResolvedFileSet, error) {
	if log == nil {
		log = discardLogger()
	}

	abs, err := filepath.Abs(spec)
	if err != nil {
		return nil, &ResolveError{Kind: ErrNotFound, Spec: spec, Err: err}
	}

	if strings.ContainsAny(spec, globMeta) {
		return resolveGlob(spec, abs, log)
	}

	info, err := os.Stat(abs)
	if err != nil {
		return nil, &ResolveError{Kind: ErrNotFound, Spec: spec, Err: err}
	}

	switch {
	case info.IsDir():
		return resolveDir(spec, abs, log)
	case info.Mode().IsRegular():
		return &ResolvedFileSet{Files: []string{abs}}, nil
	default:
		return nil, &ResolveError{Kind: ErrUnsupported, Spec: spec, Err: fmt.Errorf("file mode %s", info.Mode().Type())}
	}
}

func resolveGlob(spec, pattern string, log logrus.FieldLogger) (*ResolvedFileSet, error) {
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, &ResolveError{Kind: ErrGlobSyntax, Spec: spec, Err: err}
	}

	set := &ResolvedFileSet{}
	for _, m := range matches {
		if regularFile(m, log) {
			set.Files = append(set.Files, m)
		}
	}
	if len(set.Files) == 0 {
		log.WithField("pattern", spec).Warn("Pattern matched no regular files")
	}
	return set, nil
}

func resolveDir(spec, dir string, log logrus.FieldLogger) (*ResolvedFileSet, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		kind := ErrNotFound
		if errors.Is(err, fs.ErrPermission) {
			kind = ErrUnsupported
		}
		return nil, &ResolveError{Kind: kind, Spec: spec, Err: err}
	}

	set := &ResolvedFileSet{IsDirectorySource: true}
	for _, e := range entries {
		p := filepath.Join(dir, e.Name())
		if regularFile(p, log) {
			set.Files = append(set.Files, p)
		}
	}
	return set, nil
}

// regularFile follows symlinks, so a link to a file counts as a file.
func regularFile(p string, log logrus.FieldLogger) bool {
	info, err := os.Stat(p)
	if err != nil {
		log.WithFields(logrus.Fields{"file": p, "error": err}).Warn("Skipping unreadable entry")
		return false
	}
	return info.Mode().IsRegular()
}
