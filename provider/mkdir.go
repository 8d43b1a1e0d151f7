package provider

import (
	"errors"
	"io/fs"
	"os"
	"path"

	"github.com/pkg/sftp"
)

// SFTP status codes that signal a directory already exists.
const (
	sshFxFailure           = 4
	sshFxFileAlreadyExists = 11
)

// RemoteFS is the part of a remote file system needed to materialize directories.
type RemoteFS interface {
	Stat(p string) (os.FileInfo, error)
	Mkdir(p string) error
}

// EnsureDirectory makes sure dir exists on the remote side, creating missing
// ancestors parent-first. It is idempotent and tolerates another process
// creating the same directory concurrently: only the "already exists"
// outcome of mkdir is swallowed, every other failure is returned.
func EnsureDirectory(rfs RemoteFS, dir string) error {
	dir = path.Clean(dir)

	// walk up until an existing ancestor is found; the loop is bounded by depth
	var missing []string
	for p := dir; !isRoot(p); p = path.Dir(p) {
		if _, err := rfs.Stat(p); err == nil {
			break
		}
		missing = append(missing, p)
	}

	for i := len(missing) - 1; i >= 0; i-- {
		p := missing[i]
		err := rfs.Mkdir(p)
		if err == nil || alreadyExists(rfs, p, err) {
			continue
		}
		return newError(ErrDirectoryCreate, "mkdir", "", p, err)
	}
	return nil
}

func isRoot(p string) bool {
	return p == "." || p == "/" || p == ""
}

// alreadyExists reports whether a failed mkdir lost a creation race.
// SFTPv3 servers such as OpenSSH have no dedicated status for this and answer
// with a generic failure, so that code is confirmed by probing the path.
func alreadyExists(rfs RemoteFS, p string, err error) bool {
	var status *sftp.StatusError
	if errors.As(err, &status) {
		switch status.Code {
		case sshFxFileAlreadyExists:
			return true
		case sshFxFailure:
			info, statErr := rfs.Stat(p)
			return statErr == nil && info.IsDir()
		}
		return false
	}
	return errors.Is(err, fs.ErrExist)
}
