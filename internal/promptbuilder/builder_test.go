package promptbuilder

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/archonops/supervisor/internal/model"
)

func TestDetectTaskType(t *testing.T) {
	t.Run("explicit type wins", func(t *testing.T) {
		task := &model.Task{TaskType: model.TaskTypeBehavioral, Intent: "run the tests"}
		assert.Equal(t, model.TaskTypeBehavioral, DetectTaskType(task))
	})

	t.Run("keyword fallback", func(t *testing.T) {
		cases := []struct {
			intent string
			want   model.TaskType
		}{
			{"write unit tests for the parser", model.TaskTypeTesting},
			{"set up the config env vars", model.TaskTypeConfiguration},
			{"write the README guide", model.TaskTypeDocumentation},
			{"refactor and clean up the handler", model.TaskTypeRefactoring},
			{"say hello to the user", model.TaskTypeBehavioral},
			{"verify the deployment", model.TaskTypeVerification},
			{"implement the new endpoint", model.TaskTypeCoding},
		}
		for _, c := range cases {
			task := &model.Task{Intent: c.intent}
			assert.Equal(t, c.want, DetectTaskType(task), c.intent)
		}
	})
}

func TestBuildDeterministic(t *testing.T) {
	task := &model.Task{
		TaskID:             "t-1",
		Intent:             "add a health endpoint",
		Instructions:       "add GET /healthz returning 200",
		AcceptanceCriteria: []string{"GET /healthz returns 200"},
		WorkingDirectory:   "/sandbox/proj",
	}
	state := model.NewState("proj", model.ModeAuto)
	state.Goal.Description = "ship the service"

	p1 := Build(task, state, "/sandbox/proj")
	p2 := Build(task, state, "/sandbox/proj")

	require.Equal(t, p1.Text, p2.Text, "identical inputs must yield identical output bytes")
	assert.Equal(t, model.TaskTypeCoding, p1.TaskType)
	assert.Contains(t, p1.Text, "add a health endpoint")
	assert.Contains(t, p1.Text, codingFamilyFormat)
}

func TestBuildSnapshotGating(t *testing.T) {
	state := model.NewState("proj", model.ModeAuto)
	state.Goal.Description = "ship the service"
	state.Sub.LastTaskID = "t-0"
	state.BlockedTasks = []model.BlockedTask{{TaskID: "t-x", BlockedAt: time.Now(), Reason: "missing file"}}

	t.Run("ungated task omits goal and blocker detail", func(t *testing.T) {
		task := &model.Task{Intent: "add a feature"}
		snap := BuildSnapshot(task, state, "/sandbox/proj")
		assert.Empty(t, snap.GoalDescription)
		assert.Empty(t, snap.LastTaskID)
		require.Len(t, snap.Blockers, 1)
		assert.Empty(t, snap.Blockers[0].Reason)
	})

	t.Run("gated keywords include goal, last task, and blocker detail", func(t *testing.T) {
		task := &model.Task{Intent: "unblock the previous task and check the goal"}
		snap := BuildSnapshot(task, state, "/sandbox/proj")
		assert.Equal(t, "ship the service", snap.GoalDescription)
		assert.Equal(t, "t-0", snap.LastTaskID)
		require.Len(t, snap.Blockers, 1)
		assert.Equal(t, "missing file", snap.Blockers[0].Reason)
	})

	t.Run("extend keyword widens the completion window", func(t *testing.T) {
		for i := 0; i < 12; i++ {
			state.CompletedTasks = append(state.CompletedTasks, model.CompletedTask{TaskID: "c"})
		}
		task := &model.Task{Intent: "extend the previous work"}
		snap := BuildSnapshot(task, state, "/sandbox/proj")
		assert.Len(t, snap.RecentCompleted, extendedRecentCount)
	})
}

func TestFilterSafePaths(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "real.go"), []byte("package x\n"), 0o644))

	paths := []string{
		"real.go",
		"missing.go",
		"../escape.go",
		"/etc/passwd",
		"~/secret.go",
	}
	got := FilterSafePaths(root, paths)
	assert.Equal(t, []string{"real.go"}, got)
}

func TestBuildFixPromptEmbedsPreviewsAndReport(t *testing.T) {
	root := t.TempDir()
	content := ""
	for i := 0; i < 60; i++ {
		content += "line\n"
	}
	require.NoError(t, os.WriteFile(filepath.Join(root, "handler.go"), []byte(content), 0o644))

	task := &model.Task{TaskID: "t-1", Intent: "add a handler"}
	report := &model.ValidationReport{
		FailureReason: "missing test coverage",
		Failed:        []string{"has tests"},
		Uncertain:     []string{"handles errors"},
	}

	p := BuildFixPrompt(task, report, []string{"handler.go"}, root)
	assert.Contains(t, p.Text, "missing test coverage")
	assert.Contains(t, p.Text, "has tests")
	assert.Contains(t, p.Text, "handles errors")
	assert.Contains(t, p.Text, "handler.go")
}

func TestWithFeatureTag(t *testing.T) {
	p := Prompt{Text: "body"}
	tagged := WithFeatureTag(p, "feat-1")
	assert.Equal(t, "[Feature: feat-1]\n\nbody", tagged.Text)
	assert.Equal(t, "[Feature: feat-1]\n\n", tagged.FeatureTag)
}
