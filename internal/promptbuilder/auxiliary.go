package promptbuilder

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/archonops/supervisor/internal/model"
)

const previewLineLimit = 50

// FilePreview is a file's first N lines, used to ground a fix prompt in
// the actual failing artifact rather than its name alone.
type FilePreview struct {
	Path  string
	Lines []string
}

// PreviewFiles reads up to previewLineLimit lines from each named,
// safety-filtered path under root.
func PreviewFiles(root string, paths []string) []FilePreview {
	safe := FilterSafePaths(root, paths)
	out := make([]FilePreview, 0, len(safe))
	for _, p := range safe {
		b, err := os.ReadFile(filepath.Join(root, p))
		if err != nil {
			continue
		}
		lines := strings.Split(string(b), "\n")
		if len(lines) > previewLineLimit {
			lines = lines[:previewLineLimit]
		}
		out = append(out, FilePreview{Path: p, Lines: lines})
	}
	return out
}

// BuildFixPrompt asks the agent to address a validation failure,
// embedding the report and previews of each path in failingFiles
// (spec.md §4.3 "fix prompts"). It does not pick file names out of the
// report; the previewed files are exactly the ones the caller passes.
func BuildFixPrompt(t *model.Task, report *model.ValidationReport, failingFiles []string, root string) Prompt {
	var b strings.Builder
	fmt.Fprintf(&b, "# Fix required for task %s\n\n", t.TaskID)
	b.WriteString("The previous attempt did not pass validation.\n\n")

	if report.FailureReason != "" {
		fmt.Fprintf(&b, "Failure reason: %s\n\n", report.FailureReason)
	}
	if len(report.Failed) > 0 {
		b.WriteString("Failed criteria:\n")
		for _, f := range report.Failed {
			fmt.Fprintf(&b, "- %s\n", f)
		}
		b.WriteString("\n")
	}
	if len(report.Uncertain) > 0 {
		b.WriteString("Uncertain criteria:\n")
		for _, u := range report.Uncertain {
			fmt.Fprintf(&b, "- %s\n", u)
		}
		b.WriteString("\n")
	}

	for _, fp := range PreviewFiles(root, failingFiles) {
		fmt.Fprintf(&b, "## %s (first %d lines)\n\n", fp.Path, previewLineLimit)
		b.WriteString("```\n")
		b.WriteString(strings.Join(fp.Lines, "\n"))
		b.WriteString("\n```\n\n")
	}

	writeStrategy(&b, strategyFor(DetectTaskType(t)))
	return Prompt{Text: b.String(), TaskType: DetectTaskType(t)}
}

// BuildClarificationPrompt is issued on AMBIGUITY or ASKED_QUESTION halts
// (spec.md §4.3), asking the operator-facing agent to state its question
// plainly rather than guess.
func BuildClarificationPrompt(t *model.Task, reason model.HaltReason, details string) Prompt {
	var b strings.Builder
	fmt.Fprintf(&b, "# Clarification needed for task %s\n\n", t.TaskID)
	fmt.Fprintf(&b, "Halt reason: %s\n\n", reason)
	if details != "" {
		fmt.Fprintf(&b, "Details: %s\n\n", details)
	}
	b.WriteString("State your question or the ambiguity you encountered as plainly as possible. Do not guess at an answer.\n")
	return Prompt{Text: b.String()}
}

// BuildGoalCompletionPrompt asks the agent to judge whether the goal is
// complete, using only state-derived context — never the agent's own
// unverified claims (spec.md §4.3).
func BuildGoalCompletionPrompt(state *model.SupervisorState) Prompt {
	var b strings.Builder
	b.WriteString("# Goal completion check\n\n")
	fmt.Fprintf(&b, "Goal: %s\n\n", state.Goal.Description)

	n := baseRecentCount
	recent := recentCompletedSummaries(state.CompletedTasks, n)
	if len(recent) > 0 {
		b.WriteString("Recently completed tasks:\n")
		for _, c := range recent {
			status := "failed"
			if c.Success {
				status = "succeeded"
			}
			fmt.Fprintf(&b, "- [%s] %s (%s): %s\n", c.CompletedAt, c.TaskID, status, c.Intent)
		}
		b.WriteString("\n")
	}
	if len(state.BlockedTasks) > 0 {
		fmt.Fprintf(&b, "Blocked tasks: %d\n\n", len(state.BlockedTasks))
	}
	b.WriteString(`Respond with exactly one JSON object: {"status": "completed|failed", "response": "", "confidence": "", "reasoning": ""}` + "\n")
	return Prompt{Text: b.String(), TaskType: model.TaskTypeBehavioral}
}

// BuildInterrogationPrompt batches every unresolved criterion for one
// interrogation round into a single prompt (spec.md §4.6 Strategy 4).
func BuildInterrogationPrompt(t *model.Task, unresolved []string, round int) Prompt {
	var b strings.Builder
	fmt.Fprintf(&b, "# Interrogation round %d for task %s\n\n", round, t.TaskID)
	b.WriteString("The following acceptance criteria remain unresolved. For each, either provide the file path(s) proving completion or explicitly acknowledge it was not completed.\n\n")
	for _, c := range unresolved {
		fmt.Fprintf(&b, "- %s\n", c)
	}
	return Prompt{Text: b.String()}
}
