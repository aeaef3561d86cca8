package promptbuilder

import (
	"os"
	"path/filepath"
	"strings"
)

// FilterSafePaths removes any path that is absolute, contains a "..",
// starts with "~", or does not exist under root (spec.md §4.3
// "File-path safety"). Order is preserved among surviving entries.
func FilterSafePaths(root string, paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if p == "" {
			continue
		}
		if filepath.IsAbs(p) {
			continue
		}
		if strings.Contains(p, "..") {
			continue
		}
		if strings.HasPrefix(p, "~") {
			continue
		}
		full := filepath.Join(root, p)
		if _, err := os.Stat(full); err != nil {
			continue
		}
		out = append(out, p)
	}
	return out
}
