package provider

import (
	"path"
	"path/filepath"
	"strings"
)

// RemoteKey computes where a local file lands on the remote side:
// <prefix>/<file-name> for a file source, or
// <prefix>/<parent-directory-name>/<file-name> for a directory source,
// keeping one level of directory nesting. An empty prefix yields the bare
// relative key.
func RemoteKey(localPath, remotePrefix string, isDirectorySource bool) string {
	name := filepath.Base(localPath)
	if isDirectorySource {
		if parent := filepath.Base(filepath.Dir(localPath)); parent != "." && parent != string(filepath.Separator) {
			name = path.Join(parent, name)
		}
	}

	prefix := strings.TrimRight(filepath.ToSlash(remotePrefix), "/")
	if prefix == "" {
		if strings.HasPrefix(remotePrefix, "/") {
			return "/" + name
		}
		return name
	}
	return prefix + "/" + name
}
