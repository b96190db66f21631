package platform

import (
	"errors"
	"os"
	"path/filepath"
)

// RootIndicator marks the root of a vault.
const RootIndicator = ".notekit"

// ErrRootNotFound is returned by FindRoot when no vault encloses the start
// directory.
var ErrRootNotFound = errors.New("vault root not found")

// FindRoot looks upwards from startDir for a directory containing the vault
// indicator and returns its absolute path.
func FindRoot(startDir string) (string, error) {
	abs, err := filepath.Abs(startDir)
	if err != nil {
		return "", err
	}

	dir := abs
	for {
		if hasFile(dir, RootIndicator) {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached filesystem root
			break
		}
		dir = parent
	}

	return "", ErrRootNotFound
}

func hasFile(dir, name string) bool {
	path := filepath.Join(dir, name)
	_, err := os.Stat(path)
	return err == nil
}
