package validation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/archonops/supervisor/internal/model"
)

func TestInterrogationResolvesUnresolvedCriteria(t *testing.T) {
	subject := fakeAgent{response: "proof text"}
	judge := fakeAgent{response: `[{"criterion":"handles edge case","verdict":"COMPLETE","evidence":"edge_case.go"}]`}

	task := &model.Task{TaskType: model.TaskTypeCoding}
	prev := model.ValidationReport{
		Uncertain: []string{"handles edge case"},
		Criteria:  []model.CriterionOutcome{{Criterion: "handles edge case"}},
	}

	report, err := Interrogation(context.Background(), subject, judge, nil, nil, task, 1, prev)
	require.NoError(t, err)
	assert.True(t, report.Valid)
	assert.Contains(t, report.Passed, "handles edge case")
	assert.Empty(t, report.Uncertain)
}

func TestInterrogationSkipsBehavioralTasks(t *testing.T) {
	task := &model.Task{TaskType: model.TaskTypeBehavioral}
	prev := model.ValidationReport{Uncertain: []string{"x"}}
	report, err := Interrogation(context.Background(), fakeAgent{}, fakeAgent{}, nil, nil, task, 1, prev)
	require.NoError(t, err)
	assert.Equal(t, prev, report)
}

func TestInterrogationSkipsWhenAlreadyPerformedForAttempt(t *testing.T) {
	task := &model.Task{TaskType: model.TaskTypeCoding, TaskID: "t1"}
	prev := model.ValidationReport{Uncertain: []string{"handles edge case"}}

	calls := 0
	subject := fakeAgent{response: "should never be reached"}
	judge := fakeAgent{response: `[]`}
	alreadyPerformed := func(taskID string, attempt int) bool {
		calls++
		return taskID == "t1" && attempt == 1
	}

	report, err := Interrogation(context.Background(), subject, judge, alreadyPerformed, nil, task, 1, prev)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, prev, report)
}

func TestInterrogationPersistsFlagBeforeFirstRound(t *testing.T) {
	task := &model.Task{TaskType: model.TaskTypeCoding, TaskID: "t1"}
	prev := model.ValidationReport{Uncertain: []string{"handles edge case"}}

	var persistedAttempt int
	persist := func(ctx context.Context, taskID string, attempt int) error {
		persistedAttempt = attempt
		return nil
	}
	subject := fakeAgent{response: "proof"}
	judge := fakeAgent{response: `[{"criterion":"handles edge case","verdict":"INCOMPLETE","evidence":""}]`}

	_, err := Interrogation(context.Background(), subject, judge, nil, persist, task, 2, prev)
	require.NoError(t, err)
	assert.Equal(t, 2, persistedAttempt)
}
