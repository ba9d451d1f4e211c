package manager

import "path/filepath"

// fileName returns the artifact file name of a resolved path.
func fileName(path string) string { return filepath.Base(path) }
