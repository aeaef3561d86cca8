package validation

import (
	"regexp"
	"strings"

	"github.com/archonops/supervisor/internal/model"
)

// ambiguityHints are lowercase substrings whose presence in an agent's
// free-text response, absent any definitive artifact, marks the report
// ambiguous (spec.md §8 S4: "response contains 'could', 'maybe', no
// definitive artifact").
var ambiguityHints = []string{"could", "maybe", "not sure", "unclear", "which approach"}

// questionPattern flags a response that poses a direct question back to
// the operator rather than completing the task.
var questionPattern = regexp.MustCompile(`\?\s*$`)

// DetectAmbiguity inspects a parsed agent output for ambiguity or an
// embedded question, populating the report's Ambiguous/AskedQuestion
// flags (spec.md error kinds ValidationAmbiguous, AgentAskedQuestion).
// It never overrides a report that is already valid, and it never
// invents a definitive artifact — a coding-family output that named any
// created/updated file is never considered ambiguous by text alone.
func DetectAmbiguity(t *model.Task, out *model.AgentOutput, report model.ValidationReport) model.ValidationReport {
	if report.Valid {
		return report
	}

	text := freeText(out)
	if text == "" {
		return report
	}

	hasArtifact := len(out.FilesCreated) > 0 || len(out.FilesUpdated) > 0
	lower := strings.ToLower(text)

	if questionPattern.MatchString(strings.TrimSpace(text)) {
		report.AskedQuestion = true
		if report.FailureReason == "" {
			report.FailureReason = "agent asked a question instead of completing the task"
		}
		return report
	}

	if !hasArtifact {
		for _, hint := range ambiguityHints {
			if strings.Contains(lower, hint) {
				report.Ambiguous = true
				if report.FailureReason == "" {
					report.FailureReason = "agent response is ambiguous: " + text
				}
				return report
			}
		}
	}

	return report
}

// freeText extracts whichever free-form text field the output carries,
// depending on its tagged kind.
func freeText(out *model.AgentOutput) string {
	switch out.Kind {
	case model.OutputKindBehavioral:
		return out.Response
	default:
		return out.Reasoning
	}
}
