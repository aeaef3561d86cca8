package validation

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/archonops/supervisor/internal/model"
)

func TestStandardCodingFamily(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.go"), []byte("package a"), 0o644))

	t.Run("valid when declared files exist and no criteria", func(t *testing.T) {
		task := &model.Task{TaskType: model.TaskTypeCoding}
		out := &model.AgentOutput{Kind: model.OutputKindCodingFamily, Status: "completed", FilesCreated: []string{"a.go"}}
		report := Standard(task, out, root)
		assert.True(t, report.Valid)
	})

	t.Run("invalid when declared file missing", func(t *testing.T) {
		task := &model.Task{TaskType: model.TaskTypeCoding}
		out := &model.AgentOutput{Kind: model.OutputKindCodingFamily, Status: "completed", FilesCreated: []string{"missing.go"}}
		report := Standard(task, out, root)
		assert.False(t, report.Valid)
		assert.Contains(t, report.FailureReason, "missing.go")
	})

	t.Run("invalid when status is not completed", func(t *testing.T) {
		task := &model.Task{TaskType: model.TaskTypeCoding}
		out := &model.AgentOutput{Kind: model.OutputKindCodingFamily, Status: "failed"}
		report := Standard(task, out, root)
		assert.False(t, report.Valid)
	})
}

func TestStandardVerification(t *testing.T) {
	task := &model.Task{TaskType: model.TaskTypeVerification}
	t.Run("pass verdict", func(t *testing.T) {
		out := &model.AgentOutput{Kind: model.OutputKindVerification, Status: "completed", Verdict: "pass"}
		assert.True(t, Standard(task, out, t.TempDir()).Valid)
	})
	t.Run("fail verdict", func(t *testing.T) {
		out := &model.AgentOutput{Kind: model.OutputKindVerification, Status: "completed", Verdict: "fail"}
		assert.False(t, Standard(task, out, t.TempDir()).Valid)
	})
	t.Run("invalid verdict value", func(t *testing.T) {
		out := &model.AgentOutput{Kind: model.OutputKindVerification, Status: "completed", Verdict: "maybe"}
		report := Standard(task, out, t.TempDir())
		assert.False(t, report.Valid)
		assert.Contains(t, report.FailureReason, "pass or fail")
	})
}

func TestDeterministicCriterionEvaluation(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "README.md"), []byte("hello"), 0o644))

	catalog := Catalog{{
		Keyword: regexp.MustCompile(`(?i)readme`),
		Rules: []Rule{{
			ID:         "readme-exists",
			Confidence: model.ConfidenceHigh,
			Checks:     []Check{{Type: CheckFileExists, Path: "README.md"}},
		}},
	}}

	task := &model.Task{AcceptanceCriteria: []string{"README file exists", "unrelated criterion"}}
	report := Deterministic(task, model.ValidationReport{}, root, catalog)

	assert.Contains(t, report.Passed, "README file exists")
	assert.Contains(t, report.Uncertain, "unrelated criterion")
	assert.False(t, report.Valid)
}

type fakeAgent struct {
	response string
	err      error
}

func (f fakeAgent) Ask(ctx context.Context, prompt string) (string, error) {
	return f.response, f.err
}

func TestHelperAgentStrategyPromotesOnConfirmation(t *testing.T) {
	task := &model.Task{TaskType: model.TaskTypeCoding}
	prev := model.ValidationReport{
		Failed:   []string{"handles edge case"},
		Criteria: []model.CriterionOutcome{{Criterion: "handles edge case", Passed: false}},
	}
	agent := fakeAgent{response: `{"confirmed": true, "commands": []}`}

	report, err := HelperAgentStrategy(context.Background(), agent, task, prev, nil, t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, report.Failed)
	assert.Contains(t, report.Passed, "handles edge case")
	assert.True(t, report.Valid)
}

func TestHelperAgentStrategySkipsNonCodingTasks(t *testing.T) {
	task := &model.Task{TaskType: model.TaskTypeBehavioral}
	prev := model.ValidationReport{Failed: []string{"x"}}
	report, err := HelperAgentStrategy(context.Background(), fakeAgent{response: `{"confirmed":true}`}, task, prev, nil, t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, prev, report)
}

func TestHelperAgentStrategyRunsCommands(t *testing.T) {
	task := &model.Task{TaskType: model.TaskTypeCoding}
	prev := model.ValidationReport{
		Failed:   []string{"build succeeds"},
		Criteria: []model.CriterionOutcome{{Criterion: "build succeeds"}},
	}
	agent := fakeAgent{response: `{"confirmed": false, "commands": ["true"]}`}
	report, err := HelperAgentStrategy(context.Background(), agent, task, prev, nil, t.TempDir())
	require.NoError(t, err)
	assert.True(t, report.Valid)
}

func TestPipelineShortCircuitsOnStandard(t *testing.T) {
	p := Pipeline{}
	task := &model.Task{TaskType: model.TaskTypeBehavioral}
	report, err := p.Run(context.Background(), Input{
		Task:             task,
		RawOutput:        `{"status":"completed","response":"done","confidence":"high","reasoning":"ok"}`,
		WorkingDirectory: t.TempDir(),
	})
	require.NoError(t, err)
	assert.True(t, report.Valid)
}

func TestPipelineFallsThroughToDeterministic(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "out.go"), []byte("package x"), 0o644))

	catalog := Catalog{{
		Keyword: regexp.MustCompile(`(?i)out\.go`),
		Rules:   []Rule{{ID: "out-exists", Confidence: model.ConfidenceHigh, Checks: []Check{{Type: CheckFileExists, Path: "out.go"}}}},
	}}
	p := Pipeline{Catalog: catalog}
	task := &model.Task{TaskType: model.TaskTypeCoding, AcceptanceCriteria: []string{"out.go is created"}}
	report, err := p.Run(context.Background(), Input{
		Task:             task,
		RawOutput:        `{"status":"completed","files_created":["out.go"]}`,
		WorkingDirectory: root,
	})
	require.NoError(t, err)
	assert.True(t, report.Valid)
}
