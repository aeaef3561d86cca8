package driver

import (
	"context"
	"os"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/archonops/supervisor/internal/audit"
	"github.com/archonops/supervisor/internal/dispatcher"
	"github.com/archonops/supervisor/internal/model"
	"github.com/archonops/supervisor/internal/promptbuilder"
	"github.com/archonops/supervisor/internal/retry"
	"github.com/archonops/supervisor/internal/validation"
)

// executeTask implements the "task" branch of §4.1's state machine:
// EXECUTE → VALIDATE → (FINALIZE | RETRY | ESCALATE | HALT).
func (d *Driver) executeTask(ctx context.Context, state *model.SupervisorState, retrieved *Retrieved) (bool, error) {
	task := retrieved.Task

	if d.Tracer != nil {
		var span trace.Span
		ctx, span = d.Tracer.Start(ctx, "supervisor.execute_task",
			trace.WithAttributes(
				attribute.String("task.id", task.TaskID),
				attribute.String("task.type", string(task.TaskType)),
				attribute.String("task.source", string(retrieved.Source)),
			),
		)
		defer span.End()
	}

	before := cloneState(state)
	state.QueueExhausted = false
	if err := d.Store.Save(ctx, state); err != nil {
		return false, err
	}

	workingDir := task.WorkingDirectory
	if workingDir == "" {
		workingDir = d.sandboxDir(state.Goal.ProjectID)
	}
	if err := os.MkdirAll(workingDir, 0o755); err != nil {
		return false, err
	}

	featureID := model.FeatureIDOf(task, state.Goal.ProjectID)
	explicitOverride := ""
	if task.Meta != nil {
		explicitOverride = task.Meta.SessionID
	}
	sessionID, fresh := d.Sessions.Resolve(state, task.Tool, featureID, explicitOverride)

	prompt, promptKind := d.buildDispatchPrompt(state, task, workingDir)
	if fresh {
		prompt = promptbuilder.WithFeatureTag(prompt, featureID)
	}
	d.Audit.SafeAppendPrompt(promptKind, task.TaskID, prompt.Text)

	start := d.now()
	result, providerName, dispErr := d.Dispatcher.Dispatch(ctx, prompt.Text, workingDir, task.AgentMode, sessionID)
	duration := d.now().Sub(start)
	if d.Metrics != nil {
		d.Metrics.ObserveDispatch(providerNameOr(providerName, task.Tool), duration)
	}

	d.updateSession(state, task, featureID, providerName, sessionID, result, dispErr)
	d.Audit.SafeAppendPrompt(audit.KindResponse, task.TaskID, result.RawOutput)

	if result.ResourceExhausted {
		retry.ScheduleResourceExhausted(state, d.now())
		if err := d.Store.Save(ctx, state); err != nil {
			return false, err
		}
		d.appendHalt(before, state, task.TaskID, string(retrieved.Source), providerName, prompt.Text, result.RawOutput, nil)
		return true, nil
	}

	var report model.ValidationReport
	if dispErr != nil {
		report = model.ValidationReport{Valid: false, FailureReason: dispErr.Error(), Confidence: model.ConfidenceHigh}
	} else {
		report = d.validate(ctx, task, state, result, workingDir)
	}

	return d.resolveOutcome(ctx, before, state, task, retrieved.Source, report, duration.Seconds(), providerName, prompt.Text, result.RawOutput)
}

// buildDispatchPrompt picks the base task prompt on a first attempt, or a
// fix prompt embedding the prior validation report and previews of the
// files discovered in the working directory on a retry (spec.md §4.3
// "Auxiliary prompts": fix prompts are sent on re-attempt).
func (d *Driver) buildDispatchPrompt(state *model.SupervisorState, task *model.Task, workingDir string) (promptbuilder.Prompt, audit.PromptKind) {
	if state.Sub.RetryCounts[task.TaskID] > 0 && state.Sub.LastValidationReport != nil {
		failingFiles := discoverFiles(workingDir)
		return promptbuilder.BuildFixPrompt(task, state.Sub.LastValidationReport, failingFiles, workingDir), audit.KindFixPrompt
	}
	return promptbuilder.Build(task, state, workingDir), audit.KindPrompt
}

func (d *Driver) validate(ctx context.Context, task *model.Task, state *model.SupervisorState, result dispatcher.Result, workingDir string) model.ValidationReport {
	strict := state.IsStrict(task.TaskID)
	helperMode := ""
	if d.Config != nil {
		helperMode = d.Config.HelperAgentModel
	}
	helperAgent := dispatchAgent{
		d: d.Dispatcher, workingDirectory: workingDir, agentMode: helperMode,
		audit: d.Audit, taskID: task.TaskID,
		promptKind: audit.KindHelperAgentPrompt, responseKind: audit.KindHelperAgentResponse,
	}
	interrogationSubject := dispatchAgent{
		d: d.Dispatcher, workingDirectory: workingDir, audit: d.Audit, taskID: task.TaskID,
		promptKind: audit.KindInterrogationPrompt, responseKind: audit.KindInterrogationResponse,
	}
	// The judge's analysis call is an internal pipeline step, not a
	// supervisor-to-agent interrogation turn in its own right (spec.md §8
	// testable property 5 bounds INTERROGATION_PROMPT records to one per
	// round); it is dispatched but deliberately left unlogged so that bound
	// stays observable.
	interrogationJudge := dispatchAgent{d: d.Dispatcher, workingDirectory: workingDir, agentMode: helperMode}

	persistFlag := func(ctx context.Context, taskID string, attempt int) error {
		if state.Sub.InterrogationFlags == nil {
			state.Sub.InterrogationFlags = map[string]bool{}
		}
		key := interrogationFlagKey(taskID, attempt)
		if state.Sub.InterrogationFlags[key] {
			return nil
		}
		state.Sub.InterrogationFlags[key] = true
		return d.Store.Save(ctx, state)
	}
	alreadyPerformed := func(taskID string, attempt int) bool {
		return state.Sub.InterrogationFlags != nil && state.Sub.InterrogationFlags[interrogationFlagKey(taskID, attempt)]
	}

	pipeline := validation.Pipeline{
		Catalog:              d.Catalog,
		HelperAgent:          helperAgent,
		InterrogationSubject: interrogationSubject,
		InterrogationJudge:   interrogationJudge,
		PersistFlag:          persistFlag,
		AlreadyPerformed:     alreadyPerformed,
		StrictMode:           strict,
	}

	attempt := state.Sub.RetryCounts[task.TaskID] + 1
	report, err := pipeline.Run(ctx, validation.Input{
		Task:             task,
		RawOutput:        result.ParsedText,
		WorkingDirectory: workingDir,
		DiscoveredFiles:  discoverFiles(workingDir),
		Attempt:          attempt,
	})
	if err != nil {
		report.Valid = false
		if report.FailureReason == "" {
			report.FailureReason = err.Error()
		}
	}
	if d.Metrics != nil {
		outcome := "failed"
		if report.Valid {
			outcome = "valid"
		}
		d.Metrics.ValidationOutcomes.WithLabelValues(string(report.Confidence), outcome).Inc()
	}
	return report
}

func (d *Driver) resolveOutcome(ctx context.Context, before, state *model.SupervisorState, task *model.Task, source Source, report model.ValidationReport, durationSeconds float64, providerName, promptText, responseText string) (bool, error) {
	if report.Valid {
		ct := Finalize(state, task, report, durationSeconds, d.now())
		if err := d.Store.Save(ctx, state); err != nil {
			return false, err
		}
		diff, _ := audit.BuildStateDiff(before, state)
		promptPreview, promptLen := audit.Preview(promptText)
		responsePreview, responseLen := audit.Preview(responseText)
		d.Audit.SafeAppendAudit(audit.Entry{
			Iteration:         state.Sub.Iteration,
			Event:             audit.EventTaskCompleted,
			TaskID:            ct.TaskID,
			Tool:              providerName,
			Source:            string(source),
			StateDiff:         diff,
			ValidationSummary: &report,
			PromptPreview:     promptPreview,
			PromptLength:      promptLen,
			ResponsePreview:   responsePreview,
			ResponseLength:    responseLen,
		})
		if d.Metrics != nil {
			d.Metrics.TasksCompleted.Inc()
		}
		return true, nil
	}

	// Evaluate before recording this attempt's failure: the strict flag an
	// identical repeat sets applies to the NEXT attempt, not the one that
	// tripped it.
	outcome := d.RetryPolicy.Evaluate(state, task, report)
	d.RetryPolicy.RecordFailure(state, task.TaskID, report.FailureReason)

	switch outcome {
	case retry.OutcomeHaltAmbiguity:
		retry.ApplyHalt(state, model.HaltAmbiguity, report.FailureReason)
		if err := d.Store.Save(ctx, state); err != nil {
			return false, err
		}
		d.logClarificationPrompt(task, model.HaltAmbiguity, report.FailureReason)
		d.appendHalt(before, state, task.TaskID, string(source), providerName, promptText, responseText, &report)
		return false, nil

	case retry.OutcomeHaltAskedQuestion:
		retry.ApplyHalt(state, model.HaltAskedQuestion, report.FailureReason)
		if err := d.Store.Save(ctx, state); err != nil {
			return false, err
		}
		d.logClarificationPrompt(task, model.HaltAskedQuestion, report.FailureReason)
		d.appendHalt(before, state, task.TaskID, string(source), providerName, promptText, responseText, &report)
		return false, nil

	case retry.OutcomeBlock:
		retry.ApplyBlock(state, task, report.FailureReason, d.now())
		if err := d.Store.Save(ctx, state); err != nil {
			return false, err
		}
		diff, _ := audit.BuildStateDiff(before, state)
		d.Audit.SafeAppendAudit(audit.Entry{
			Iteration:         state.Sub.Iteration,
			Event:             audit.EventTaskBlocked,
			TaskID:            task.TaskID,
			Tool:              providerName,
			Source:            string(source),
			StateDiff:         diff,
			ValidationSummary: &report,
		})
		if d.Metrics != nil {
			d.Metrics.TasksBlocked.Inc()
		}
		return true, nil

	default: // retry.OutcomeRetry
		retry.ApplyRetry(state, task)
		rpt := report
		state.Sub.LastValidationReport = &rpt
		if err := d.Store.Save(ctx, state); err != nil {
			return false, err
		}
		d.appendTransitionFrom(before, state, task.TaskID, string(source), "retry scheduled: "+report.FailureReason)
		if d.Metrics != nil {
			d.Metrics.TasksRetried.Inc()
		}
		return true, nil
	}
}

// logClarificationPrompt records the clarification prompt enforced on
// AMBIGUITY/ASKED_QUESTION halts (spec.md §4.3 "Auxiliary prompts"). The
// supervisor halts immediately after, so the prompt is captured for the
// operator's review rather than dispatched for another round-trip.
func (d *Driver) logClarificationPrompt(task *model.Task, reason model.HaltReason, details string) {
	prompt := promptbuilder.BuildClarificationPrompt(task, reason, details)
	d.Audit.SafeAppendPrompt(audit.KindClarificationPrompt, task.TaskID, prompt.Text)
}

func (d *Driver) appendHalt(before, after *model.SupervisorState, taskID, source, providerName, promptText, responseText string, report *model.ValidationReport) {
	diff, _ := audit.BuildStateDiff(before, after)
	promptPreview, promptLen := audit.Preview(promptText)
	responsePreview, responseLen := audit.Preview(responseText)
	d.Audit.SafeAppendAudit(audit.Entry{
		Iteration:         after.Sub.Iteration,
		Event:             audit.EventHalt,
		TaskID:            taskID,
		Tool:              providerName,
		Source:            source,
		StateDiff:         diff,
		ValidationSummary: report,
		PromptPreview:     promptPreview,
		PromptLength:      promptLen,
		ResponsePreview:   responsePreview,
		ResponseLength:    responseLen,
	})
	if d.Metrics != nil {
		d.Metrics.HaltsTotal.WithLabelValues(string(after.Sub.HaltReason)).Inc()
	}
}

func (d *Driver) updateSession(state *model.SupervisorState, task *model.Task, featureID, providerName, sessionID string, result dispatcher.Result, dispErr error) {
	usedProvider := providerNameOr(providerName, task.Tool)
	if usedProvider == "" {
		return
	}
	finalSessionID := sessionID
	reused := sessionID != ""
	if result.NewSessionID != "" {
		finalSessionID = result.NewSessionID
		reused = false
	}
	if finalSessionID == "" {
		return
	}
	var tokens int64
	if result.Usage != nil {
		tokens = result.Usage.Tokens
	}
	d.Sessions.Update(state, usedProvider, featureID, finalSessionID, reused, tokens, dispErr == nil, d.now())
}

func providerNameOr(providerName, fallback string) string {
	if providerName != "" {
		return providerName
	}
	return fallback
}

func interrogationFlagKey(taskID string, attempt int) string {
	return taskID + "_" + strconv.Itoa(attempt)
}
