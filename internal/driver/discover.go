package driver

import (
	"os"
	"path/filepath"
)

// maxDiscoveredFiles bounds how many working-directory file paths are
// handed to the Helper-Agent strategy as context (spec.md §4.6 Strategy
// 3: "a list of discovered code files").
const maxDiscoveredFiles = 200

// discoverFiles walks workingDirectory and returns paths relative to it,
// skipping VCS and dependency directories. Errors mid-walk are ignored;
// a partial list is still useful context, never a validation input.
func discoverFiles(workingDirectory string) []string {
	var out []string
	_ = filepath.Walk(workingDirectory, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if len(out) >= maxDiscoveredFiles {
			return filepath.SkipDir
		}
		rel, relErr := filepath.Rel(workingDirectory, path)
		if relErr != nil {
			return nil
		}
		if info.IsDir() {
			switch filepath.Base(path) {
			case ".git", "node_modules", "vendor", ".hg":
				return filepath.SkipDir
			}
			return nil
		}
		out = append(out, rel)
		return nil
	})
	return out
}
