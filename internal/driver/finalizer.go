package driver

import (
	"strings"
	"time"

	"github.com/archonops/supervisor/internal/model"
)

// summaryMaxLen bounds the first-sentence summary (spec.md §4.7 step 2).
const summaryMaxLen = 60

// Finalize implements the Task Finalizer (spec.md §4.7) for a report with
// Valid == true. It builds the next state in the caller's local value
// (the caller owns persistence ordering) and returns the completed-task
// record appended, so the caller can log it.
//
// Steps 2-4 of §4.7 are applied here as a single in-memory mutation so a
// failure partway never leaves a half-updated snapshot: the caller either
// persists the whole result or discards it.
func Finalize(state *model.SupervisorState, t *model.Task, report model.ValidationReport, durationSeconds float64, now time.Time) model.CompletedTask {
	state.Sub.Iteration++
	state.Sub.LastTaskID = t.TaskID
	rpt := report
	state.Sub.LastValidationReport = &rpt

	ct := model.CompletedTask{
		TaskID:          t.TaskID,
		CompletedAt:     now,
		Intent:          t.Intent,
		Summary:         summary(t.Intent, report),
		Success:         report.Valid,
		RequiresContext: true,
		DurationSeconds: durationSeconds,
		Report:          report,
	}
	state.CompletedTasks = append(state.CompletedTasks, ct)
	state.PruneCompleted()

	state.CurrentTask = nil
	state.RetrySlot = nil
	delete(state.Sub.RetryCounts, t.TaskID)
	delete(state.Sub.RepeatedFailureCount, t.TaskID)
	delete(state.Sub.LastFailureReason, t.TaskID)
	delete(state.Sub.StrictTasks, t.TaskID)

	if state.Sub.HaltReason == model.HaltResourceExhausted {
		state.Sub.ResourceExhaustedRetry = nil
		state.Sub.HaltReason = ""
		state.Sub.HaltDetails = ""
	}

	return ct
}

// summary computes the deterministic completed-task summary (spec.md
// §4.7 step 2): "Completed: <first sentence of intent, truncated to 60
// chars>" on success, "Failed: <reason or 'Unknown reason'>" otherwise.
func summary(intent string, report model.ValidationReport) string {
	if report.Valid {
		return "Completed: " + firstSentenceTruncated(intent)
	}
	reason := report.FailureReason
	if reason == "" {
		reason = "Unknown reason"
	}
	return "Failed: " + reason
}

func firstSentenceTruncated(intent string) string {
	sentence := intent
	if idx := strings.IndexAny(intent, ".!?"); idx != -1 {
		sentence = intent[:idx+1]
	}
	if len(sentence) > summaryMaxLen {
		sentence = sentence[:summaryMaxLen] + "..."
	}
	return sentence
}
