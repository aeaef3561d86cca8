package validation

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/archonops/supervisor/internal/model"
)

// Standard applies spec.md §4.6 Strategy 1: structural checks on the
// parsed agent output. It never inspects file contents beyond existence.
func Standard(t *model.Task, out *model.AgentOutput, workingDirectory string) model.ValidationReport {
	report := model.ValidationReport{Confidence: model.ConfidenceHigh}

	if out.Status != "completed" {
		report.FailureReason = "agent reported status " + safeStatus(out.Status)
		return report
	}

	switch out.Kind {
	case model.OutputKindVerification:
		if out.Verdict != "pass" && out.Verdict != "fail" {
			report.FailureReason = "verification verdict must be pass or fail"
			return report
		}
		report.Valid = out.Verdict == "pass"
		if !report.Valid {
			report.FailureReason = "verification verdict was fail"
		}
		return report

	case model.OutputKindBehavioral:
		if out.Response == "" {
			report.FailureReason = "behavioral response is empty"
			return report
		}
		report.Valid = true
		return report

	default: // coding-family
		missing := missingDeclaredFiles(workingDirectory, append(append([]string{}, out.FilesCreated...), out.FilesUpdated...))
		if len(missing) > 0 {
			report.FailureReason = "declared files do not exist: " + strings.Join(missing, ", ")
			report.Failed = missing
			return report
		}
		report.Valid = len(t.AcceptanceCriteria) == 0
		return report
	}
}

func safeStatus(s string) string {
	if s == "" {
		return "<empty>"
	}
	return s
}

func missingDeclaredFiles(root string, paths []string) []string {
	var missing []string
	for _, p := range paths {
		if p == "" {
			continue
		}
		full := p
		if !filepath.IsAbs(p) {
			full = filepath.Join(root, p)
		}
		if _, err := os.Stat(full); err != nil {
			missing = append(missing, p)
		}
	}
	return missing
}

