package driver

import (
	"context"

	"github.com/archonops/supervisor/internal/audit"
	"github.com/archonops/supervisor/internal/dispatcher"
)

// dispatchAgent adapts the Provider Dispatcher to the narrow
// validation.HelperAgent contract used by the Helper-Agent and
// Interrogation strategies (spec.md §4.6 Strategies 3-4): a single
// prompt/response round-trip, with no session continuity of its own.
//
// When audit is non-nil, every round is logged under promptKind/
// responseKind so the Helper-Agent and Interrogation escalation paths
// satisfy the same full-prompt/response capture guarantee as the primary
// dispatch (spec.md §4.9, §8 testable property 5).
type dispatchAgent struct {
	d                *dispatcher.Dispatcher
	workingDirectory string

	// agentMode is the configured default helper-agent model, passed as
	// the provider's mode hint so escalation calls can run on a cheaper
	// model than the primary dispatch.
	agentMode string

	audit        *audit.Sink
	taskID       string
	promptKind   audit.PromptKind
	responseKind audit.PromptKind
}

func (a dispatchAgent) Ask(ctx context.Context, prompt string) (string, error) {
	if a.audit != nil {
		a.audit.SafeAppendPrompt(a.promptKind, a.taskID, prompt)
	}
	res, _, err := a.d.Dispatch(ctx, prompt, a.workingDirectory, a.agentMode, "")
	if err != nil {
		return "", err
	}
	if a.audit != nil {
		a.audit.SafeAppendPrompt(a.responseKind, a.taskID, res.ParsedText)
	}
	return res.ParsedText, nil
}
