package validation

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/archonops/supervisor/internal/model"
)

// catalogFile is the on-disk YAML shape of an operator-supplied rule
// catalog: a list of keyword entries, each naming the rules and checks to
// run when the keyword pattern matches an acceptance criterion.
type catalogFile struct {
	Entries []catalogFileEntry `yaml:"entries"`
}

type catalogFileEntry struct {
	Keyword string            `yaml:"keyword"`
	Rules   []catalogFileRule `yaml:"rules"`
}

type catalogFileRule struct {
	ID         string  `yaml:"id"`
	Confidence string  `yaml:"confidence"`
	Checks     []Check `yaml:"checks"`
}

// LoadCatalogFile parses an operator-supplied YAML rule catalog. An empty
// path yields the empty catalog; a path that does not exist is an error,
// since a misspelled catalog silently downgrading every criterion to
// UNCERTAIN would be hard to notice.
func LoadCatalogFile(path string) (Catalog, error) {
	if path == "" {
		return EmptyCatalog(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("validation: read rule catalog %q: %w", path, err)
	}
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("validation: parse rule catalog %q: %w", path, err)
	}

	catalog := make(Catalog, 0, len(file.Entries))
	for i, entry := range file.Entries {
		re, err := regexp.Compile(entry.Keyword)
		if err != nil {
			return nil, fmt.Errorf("validation: rule catalog entry %d keyword %q: %w", i, entry.Keyword, err)
		}
		rules := make([]Rule, 0, len(entry.Rules))
		for _, r := range entry.Rules {
			conf, err := parseConfidence(r.Confidence)
			if err != nil {
				return nil, fmt.Errorf("validation: rule catalog rule %q: %w", r.ID, err)
			}
			rules = append(rules, Rule{ID: r.ID, Confidence: conf, Checks: r.Checks})
		}
		catalog = append(catalog, CatalogEntry{Keyword: re, Rules: rules})
	}
	return catalog, nil
}

func parseConfidence(s string) (model.Confidence, error) {
	switch model.Confidence(s) {
	case model.ConfidenceHigh, model.ConfidenceLow, model.ConfidenceMedium, model.ConfidenceUncertain:
		return model.Confidence(s), nil
	case "":
		return model.ConfidenceHigh, nil
	default:
		return "", fmt.Errorf("unknown confidence %q", s)
	}
}
