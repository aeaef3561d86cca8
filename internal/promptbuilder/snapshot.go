package promptbuilder

import (
	"strings"

	"github.com/archonops/supervisor/internal/model"
)

// Snapshot is the minimal, deterministic slice of supervisor state exposed
// to a prompt (spec.md §4.3 "Minimal state snapshot"). It never carries
// the full state: only the fields the spec names.
type Snapshot struct {
	ProjectID       string
	SandboxDir      string
	RecentCompleted []CompletedSummary
	Blockers        []BlockerSummary
	GoalDescription string // included only when gated keywords match
	LastTaskID      string // included only when gated keywords match
	BlockerDetails  bool   // whether Blockers carries the Reason field
}

// CompletedSummary is the id/time/intent/success projection of a
// CompletedTask, never the full validation report.
type CompletedSummary struct {
	TaskID      string
	CompletedAt string
	Intent      string
	Success     bool
}

// BlockerSummary is the id/time projection of a BlockedTask, with Reason
// populated only when blocker details are gated in.
type BlockerSummary struct {
	TaskID    string
	BlockedAt string
	Reason    string
}

const baseRecentCount = 5
const extendedRecentCount = 10

// BuildSnapshot assembles the minimal context for a task, applying the
// gated-inclusion rules: goal description, last task id, an extended
// completion list, and blocker detail are only included when the
// corresponding keywords appear in the task's intent/instructions/
// acceptance criteria. sandboxDir is the resolved working directory
// (task override if set, else the project's sandbox root) so the
// "Working directory" line is always present, per spec.md §4.3's minimal
// snapshot always including it.
func BuildSnapshot(t *model.Task, state *model.SupervisorState, sandboxDir string) Snapshot {
	haystack := strings.ToLower(t.Intent + " " + t.Instructions + " " + strings.Join(t.AcceptanceCriteria, " "))

	count := baseRecentCount
	if containsAny(haystack, "extend", "build on") {
		count = extendedRecentCount
	}

	dir := t.WorkingDirectory
	if dir == "" {
		dir = sandboxDir
	}

	snap := Snapshot{
		ProjectID:       state.Goal.ProjectID,
		SandboxDir:      dir,
		RecentCompleted: recentCompletedSummaries(state.CompletedTasks, count),
		BlockerDetails:  containsAny(haystack, "unblock", "blocked"),
	}

	for _, b := range state.BlockedTasks {
		bs := BlockerSummary{TaskID: b.TaskID, BlockedAt: b.BlockedAt.UTC().Format(timeLayout)}
		if snap.BlockerDetails {
			bs.Reason = b.Reason
		}
		snap.Blockers = append(snap.Blockers, bs)
	}

	if containsAny(haystack, "goal") {
		snap.GoalDescription = state.Goal.Description
	}
	if containsAny(haystack, "last task", "previous task") {
		snap.LastTaskID = state.Sub.LastTaskID
	}

	return snap
}

const timeLayout = "2006-01-02T15:04:05Z07:00"

func recentCompletedSummaries(completed []model.CompletedTask, n int) []CompletedSummary {
	if len(completed) == 0 {
		return nil
	}
	start := len(completed) - n
	if start < 0 {
		start = 0
	}
	out := make([]CompletedSummary, 0, len(completed)-start)
	for _, c := range completed[start:] {
		out = append(out, CompletedSummary{
			TaskID:      c.TaskID,
			CompletedAt: c.CompletedAt.UTC().Format(timeLayout),
			Intent:      c.Intent,
			Success:     c.Success,
		})
	}
	return out
}
