package validation

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
)

// CheckType names one of the pure, side-effect-free file-system checks a
// catalog rule can run (spec.md §4.6 Strategy 2).
type CheckType string

const (
	CheckFileExists      CheckType = "file_exists"
	CheckDirectoryExists CheckType = "directory_exists"
	CheckJSONContains    CheckType = "json_contains"
	CheckGrepFound       CheckType = "grep_found"
	CheckGrepNotFound    CheckType = "grep_not_found"
	CheckFileCount       CheckType = "file_count"
)

// Check is one rule's concrete assertion. Only the fields relevant to its
// Type are populated.
type Check struct {
	Type     CheckType `json:"type"`
	Path     string    `json:"path,omitempty"`
	Negate   bool      `json:"negate,omitempty"`
	Field    string    `json:"field,omitempty"` // dotted field path for json_contains
	Value    string    `json:"value,omitempty"` // expected value for json_contains
	Pattern  string    `json:"pattern,omitempty"` // regex for grep_found/grep_not_found
	Glob     string    `json:"glob,omitempty"`
	Min      int       `json:"min,omitempty"`
	Max      int       `json:"max,omitempty"`
}

// Run evaluates the check against the working directory. It never
// mutates the file system.
func (c Check) Run(root string) (bool, string) {
	switch c.Type {
	case CheckFileExists:
		ok := fileExists(filepath.Join(root, c.Path))
		if c.Negate {
			ok = !ok
		}
		return ok, fmt.Sprintf("file_exists(%s)=%v", c.Path, ok)

	case CheckDirectoryExists:
		ok := dirExists(filepath.Join(root, c.Path))
		if c.Negate {
			ok = !ok
		}
		return ok, fmt.Sprintf("directory_exists(%s)=%v", c.Path, ok)

	case CheckJSONContains:
		ok, detail := jsonContains(filepath.Join(root, c.Path), c.Field, c.Value)
		return ok, detail

	case CheckGrepFound:
		found, detail := grepFile(filepath.Join(root, c.Path), c.Pattern)
		return found, detail

	case CheckGrepNotFound:
		found, detail := grepFile(filepath.Join(root, c.Path), c.Pattern)
		return !found, detail

	case CheckFileCount:
		n, err := fileCount(root, c.Glob)
		if err != nil {
			return false, err.Error()
		}
		ok := n >= c.Min && (c.Max == 0 || n <= c.Max)
		return ok, fmt.Sprintf("file_count(%s)=%d", c.Glob, n)

	default:
		return false, "unknown check type " + string(c.Type)
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func jsonContains(path, dottedField, expected string) (bool, string) {
	b, err := os.ReadFile(path)
	if err != nil {
		return false, err.Error()
	}
	var doc map[string]interface{}
	if err := json.Unmarshal(b, &doc); err != nil {
		return false, "invalid json: " + err.Error()
	}
	got, ok := lookupDotted(doc, dottedField)
	if !ok {
		return false, fmt.Sprintf("field %q not found", dottedField)
	}
	gotStr := fmt.Sprintf("%v", got)
	return gotStr == expected, fmt.Sprintf("json_contains(%s)=%q want %q", dottedField, gotStr, expected)
}

func lookupDotted(doc map[string]interface{}, dotted string) (interface{}, bool) {
	cur := interface{}(doc)
	for _, part := range splitDotted(dotted) {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func splitDotted(s string) []string {
	var parts []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '.' {
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	parts = append(parts, s[start:])
	return parts
}

func grepFile(path, pattern string) (bool, string) {
	b, err := os.ReadFile(path)
	if err != nil {
		return false, err.Error()
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return false, "invalid pattern: " + err.Error()
	}
	found := re.Match(b)
	return found, fmt.Sprintf("grep(%s) found=%v", pattern, found)
}

func fileCount(root, glob string) (int, error) {
	matches, err := filepath.Glob(filepath.Join(root, glob))
	if err != nil {
		return 0, err
	}
	return len(matches), nil
}
