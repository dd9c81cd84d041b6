package account

import (
	"os"
	"path/filepath"
)

// artifactSuffixes are the on-disk files a platform client may leave behind
// for one phone's session.
var artifactSuffixes = []string{".session", ".session-journal"}

// SessionPath returns the base path of the session artifact for a phone.
func SessionPath(dir, phone string) string {
	return filepath.Join(dir, phone)
}

// RemoveArtifacts deletes the session files for a phone. Best-effort:
// missing files are not an error, and the first real failure is returned
// only after attempting every suffix.
func RemoveArtifacts(dir, phone string) error {
	base := SessionPath(dir, phone)
	var firstErr error
	for _, suffix := range artifactSuffixes {
		err := os.Remove(base + suffix)
		if err != nil && !os.IsNotExist(err) && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// HasArtifacts reports whether any session file exists for a phone.
func HasArtifacts(dir, phone string) bool {
	base := SessionPath(dir, phone)
	for _, suffix := range artifactSuffixes {
		if _, err := os.Stat(base + suffix); err == nil {
			return true
		}
	}
	return false
}
