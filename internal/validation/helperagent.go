package validation

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/archonops/supervisor/internal/model"
)

// HelperAgent is the second-opinion agent invocation contract used by
// Strategy 3 and Strategy 4. It is deliberately narrow — a single
// prompt/response round-trip — so any dispatched provider can serve it.
type HelperAgent interface {
	Ask(ctx context.Context, prompt string) (string, error)
}

// helperAgentResponse is the JSON contract the helper agent must honor:
// either confirm the failed criteria are actually satisfied, or name
// verification shell commands to run.
type helperAgentResponse struct {
	Confirmed bool     `json:"confirmed"`
	Commands  []string `json:"commands"`
}

const helperAgentCommandTimeout = 2 * time.Minute

// HelperAgentStrategy implements spec.md §4.6 Strategy 3. It only applies
// to coding-family tasks with remaining failures.
func HelperAgentStrategy(ctx context.Context, agent HelperAgent, t *model.Task, prev model.ValidationReport, discoveredFiles []string, workingDirectory string) (model.ValidationReport, error) {
	report := prev
	if model.KindForTaskType(t.TaskType) != model.OutputKindCodingFamily || len(report.Failed) == 0 {
		return report, nil
	}

	prompt := buildHelperAgentPrompt(report.Failed, discoveredFiles)
	raw, err := agent.Ask(ctx, prompt)
	if err != nil {
		return report, fmt.Errorf("validation: helper agent: %w", err)
	}

	var resp helperAgentResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return report, fmt.Errorf("validation: helper agent response is not valid JSON: %w", err)
	}

	satisfied := resp.Confirmed
	if !satisfied && len(resp.Commands) > 0 {
		satisfied = true
		for _, cmdline := range resp.Commands {
			if !runVerificationCommand(ctx, cmdline, workingDirectory) {
				satisfied = false
				break
			}
		}
	}
	if !satisfied {
		return report, nil
	}

	promoted := report.Failed
	report.Failed = nil
	report.Passed = append(report.Passed, promoted...)
	for i := range report.Criteria {
		if containsString(promoted, report.Criteria[i].Criterion) {
			report.Criteria[i].Passed = true
			report.Criteria[i].Confidence = model.ConfidenceMedium
		}
	}
	report.Confidence = model.ConfidenceMedium
	report.Valid = len(report.Failed) == 0 && len(report.Uncertain) == 0
	if report.Valid {
		report.FailureReason = ""
	}
	return report, nil
}

func buildHelperAgentPrompt(failed []string, discoveredFiles []string) string {
	var b strings.Builder
	b.WriteString("The following acceptance criteria could not be confirmed by deterministic checks:\n\n")
	for _, f := range failed {
		fmt.Fprintf(&b, "- %s\n", f)
	}
	b.WriteString("\nDiscovered code files:\n\n")
	for _, f := range discoveredFiles {
		fmt.Fprintf(&b, "- %s\n", f)
	}
	b.WriteString(`
Respond with exactly one JSON object: {"confirmed": bool, "commands": ["shell command", ...]}.
Set confirmed=true only if you are certain every criterion above is already satisfied.
Otherwise provide shell commands that, run from the working directory, exit 0 only if the criteria are satisfied.
`)
	return b.String()
}

func runVerificationCommand(ctx context.Context, cmdline, workingDirectory string) bool {
	ctx, cancel := context.WithTimeout(ctx, helperAgentCommandTimeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, "sh", "-c", cmdline)
	cmd.Dir = workingDirectory
	return cmd.Run() == nil
}

func containsString(items []string, s string) bool {
	for _, it := range items {
		if it == s {
			return true
		}
	}
	return false
}
