package driver

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/archonops/supervisor/internal/audit"
	"github.com/archonops/supervisor/internal/config"
	"github.com/archonops/supervisor/internal/dispatcher"
	"github.com/archonops/supervisor/internal/model"
	"github.com/archonops/supervisor/internal/observability"
	"github.com/archonops/supervisor/internal/queue"
	"github.com/archonops/supervisor/internal/retry"
	"github.com/archonops/supervisor/internal/session"
	"github.com/archonops/supervisor/internal/validation"
)

// promptKinds reads every recorded logs/prompts.log.jsonl kind under
// sandboxRoot/proj, in append order.
func promptKinds(t *testing.T, sandboxRoot string) []string {
	t.Helper()
	f, err := os.Open(filepath.Join(sandboxRoot, "proj", "logs", "prompts.log.jsonl"))
	require.NoError(t, err)
	defer f.Close()

	var kinds []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var entry audit.PromptEntry
		require.NoError(t, json.Unmarshal(sc.Bytes(), &entry))
		kinds = append(kinds, string(entry.Kind))
	}
	require.NoError(t, sc.Err())
	return kinds
}

func writeFakeAgent(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "agent.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

func newTestDriver(t *testing.T, state *model.SupervisorState, providerScript string) (*Driver, *memStore) {
	t.Helper()
	sandboxRoot := t.TempDir()
	sink, err := audit.NewSink(sandboxRoot, "proj", nil)
	require.NoError(t, err)

	store := newMemStore(state)
	cfg := &config.Config{
		SandboxRoot:              sandboxRoot,
		PollInterval:             time.Millisecond,
		DefaultRetryMax:          2,
		RepeatedFailureThreshold: 2,
	}
	disp := dispatcher.New([]dispatcher.Provider{{Name: "fake", Executable: providerScript}})
	sessions := session.NewManager(session.ContextLimits{"small": 8000}, map[string]string{"fake": "small"}, 5)

	d := &Driver{
		Store:       store,
		Queue:       queue.NewMemQueue(),
		Dispatcher:  disp,
		Sessions:    sessions,
		RetryPolicy: retry.NewPolicy(cfg.DefaultRetryMax, cfg.RepeatedFailureThreshold),
		Audit:       sink,
		Metrics:     observability.NewMetrics(),
		Catalog:     validation.EmptyCatalog(),
		Config:      cfg,
		Now:         time.Now,
	}
	return d, store
}

// sampleTask carries no acceptance criteria so a "completed" coding-family
// response passes Standard validation trivially, keeping these driver
// tests independent of the (separately tested) Deterministic/Helper-Agent
// stages.
func sampleTask(id string) *model.Task {
	return &model.Task{
		TaskID:       id,
		Intent:       "add a helper",
		Tool:         "fake",
		TaskType:     model.TaskTypeCoding,
		Instructions: "create the file",
	}
}

// TestHappyPathCompletesTask covers the coding-task golden path: a
// well-formed completed response is validated and finalized in one
// iteration.
func TestHappyPathCompletesTask(t *testing.T) {
	dir := t.TempDir()
	script := writeFakeAgent(t, dir, "cat > /dev/null\necho '{\"status\":\"completed\"}'\nexit 0\n")

	state := model.NewState("proj", model.ModeAuto)
	d, store := newTestDriver(t, state, script)
	require.NoError(t, d.Queue.Enqueue(context.Background(), sampleTask("t-1")))

	cont, err := d.RunIteration(context.Background())
	require.NoError(t, err)
	assert.True(t, cont)

	got, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, got.CompletedTasks, 1)
	assert.Equal(t, "t-1", got.CompletedTasks[0].TaskID)
	assert.True(t, got.CompletedTasks[0].Success)
	assert.Nil(t, got.CurrentTask)
	assert.Nil(t, got.RetrySlot)
}

// TestRetryThenBlock covers a task that keeps failing the same way past
// its retry budget, eventually landing in blocked_tasks.
func TestRetryThenBlock(t *testing.T) {
	dir := t.TempDir()
	script := writeFakeAgent(t, dir, "cat > /dev/null\necho '{\"status\":\"failed\"}'\nexit 0\n")

	state := model.NewState("proj", model.ModeAuto)
	d, store := newTestDriver(t, state, script)
	d.Config.DefaultRetryMax = 2
	require.NoError(t, d.Queue.Enqueue(context.Background(), sampleTask("t-2")))

	for i := 0; i < 3; i++ {
		cont, err := d.RunIteration(context.Background())
		require.NoError(t, err)
		assert.True(t, cont)
	}

	got, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, got.BlockedTasks, 1)
	assert.Equal(t, "t-2", got.BlockedTasks[0].TaskID)
	assert.Empty(t, got.CompletedTasks)
}

// TestAmbiguityHalts covers a response that reads as ambiguous, which
// must halt immediately rather than retry.
func TestAmbiguityHalts(t *testing.T) {
	dir := t.TempDir()
	script := writeFakeAgent(t, dir, "cat > /dev/null\necho '{\"status\":\"failed\",\"reasoning\":\"not sure which approach to take\"}'\nexit 0\n")

	state := model.NewState("proj", model.ModeAuto)
	d, store := newTestDriver(t, state, script)
	require.NoError(t, d.Queue.Enqueue(context.Background(), sampleTask("t-3")))

	cont, err := d.RunIteration(context.Background())
	require.NoError(t, err)
	assert.False(t, cont)

	got, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.StatusHalted, got.Sub.Status)
	assert.Equal(t, model.HaltAmbiguity, got.Sub.HaltReason)
}

// TestResourceExhaustedSchedulesAndResumes covers §8 scenario S5: a
// quota-exhaustion signal halts with a scheduled retry time, iterations
// before that time are no-ops, and the first iteration past it resumes
// RUNNING on its own.
func TestResourceExhaustedSchedulesAndResumes(t *testing.T) {
	dir := t.TempDir()
	script := writeFakeAgent(t, dir, "cat > /dev/null\necho 'quota exceeded' 1>&2\nexit 1\n")

	state := model.NewState("proj", model.ModeAuto)
	d, store := newTestDriver(t, state, script)
	now := time.Now()
	d.Now = func() time.Time { return now }
	require.NoError(t, d.Queue.Enqueue(context.Background(), sampleTask("t-4")))

	cont, err := d.RunIteration(context.Background())
	require.NoError(t, err)
	assert.True(t, cont)

	got, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.StatusHalted, got.Sub.Status)
	assert.Equal(t, model.HaltResourceExhausted, got.Sub.HaltReason)
	require.NotNil(t, got.Sub.ResourceExhaustedRetry)

	// Before the scheduled time: stays halted, no state mutation.
	cont, err = d.RunIteration(context.Background())
	require.NoError(t, err)
	assert.True(t, cont)
	stillHalted, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.StatusHalted, stillHalted.Sub.Status)

	// Past the scheduled time: resumes on its own.
	d.Now = func() time.Time { return got.Sub.ResourceExhaustedRetry.NextRetryAt.Add(time.Second) }
	cont, err = d.RunIteration(context.Background())
	require.NoError(t, err)
	assert.True(t, cont)
	resumed, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.StatusRunning, resumed.Sub.Status)
	assert.Nil(t, resumed.Sub.ResourceExhaustedRetry)
}

// TestLegacyStateLoadBackfills covers §8 scenario S6: a snapshot saved
// before the intent/summary fields existed still loads, with synthesized
// values rather than an error.
func TestLegacyStateLoadBackfills(t *testing.T) {
	state := model.NewState("proj", model.ModeAuto)
	state.CompletedTasks = append(state.CompletedTasks, model.CompletedTask{TaskID: "legacy-1"})

	dir := t.TempDir()
	script := writeFakeAgent(t, dir, "cat > /dev/null\necho '{\"status\":\"completed\"}'\nexit 0\n")
	_, store := newTestDriver(t, state, script)

	got, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, got.CompletedTasks, 1)
	assert.Equal(t, "[Legacy] legacy-1", got.CompletedTasks[0].Intent)
	assert.False(t, got.CompletedTasks[0].RequiresContext)
}

// TestHaltedSupervisorNeverResumesOnItsOwn covers invariant 8 (halt
// stability): a non-resource-exhausted halt sits unchanged until an
// explicit operator resume, never self-clearing.
func TestHaltedSupervisorNeverResumesOnItsOwn(t *testing.T) {
	state := model.NewState("proj", model.ModeAuto)
	state.Sub.Status = model.StatusHalted
	state.Sub.HaltReason = model.HaltOperator

	dir := t.TempDir()
	script := writeFakeAgent(t, dir, "exit 0\n")
	d, store := newTestDriver(t, state, script)

	cont, err := d.RunIteration(context.Background())
	require.NoError(t, err)
	assert.False(t, cont)

	got, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.StatusHalted, got.Sub.Status)
	assert.Equal(t, model.HaltOperator, got.Sub.HaltReason)
}

// TestSingleTaskInFlight covers invariant 1: current_task/retry_slot hold
// at most one task between them, even mid-retry.
func TestSingleTaskInFlight(t *testing.T) {
	dir := t.TempDir()
	script := writeFakeAgent(t, dir, "cat > /dev/null\necho '{\"status\":\"failed\"}'\nexit 0\n")

	state := model.NewState("proj", model.ModeAuto)
	d, store := newTestDriver(t, state, script)
	require.NoError(t, d.Queue.Enqueue(context.Background(), sampleTask("t-5")))

	_, err := d.RunIteration(context.Background())
	require.NoError(t, err)

	got, err := store.Load(context.Background())
	require.NoError(t, err)
	inFlight := 0
	if got.CurrentTask != nil {
		inFlight++
	}
	if got.RetrySlot != nil {
		inFlight++
	}
	assert.LessOrEqual(t, inFlight, 1)
}

// TestFixPromptSentOnRetry covers spec.md §4.3's auxiliary-prompt rule: a
// re-attempt after a failing validation is dispatched with a FIX_PROMPT
// carrying the prior report, not the base task prompt.
func TestFixPromptSentOnRetry(t *testing.T) {
	dir := t.TempDir()
	script := writeFakeAgent(t, dir, "cat > /dev/null\necho '{\"status\":\"failed\",\"reasoning\":\"missing file\"}'\nexit 0\n")

	state := model.NewState("proj", model.ModeAuto)
	d, _ := newTestDriver(t, state, script)
	d.Config.DefaultRetryMax = 3
	require.NoError(t, d.Queue.Enqueue(context.Background(), sampleTask("t-6")))

	_, err := d.RunIteration(context.Background())
	require.NoError(t, err)
	_, err = d.RunIteration(context.Background())
	require.NoError(t, err)

	kinds := promptKinds(t, d.Config.SandboxRoot)
	require.GreaterOrEqual(t, len(kinds), 4)
	assert.Equal(t, string(audit.KindPrompt), kinds[0])
	assert.Equal(t, string(audit.KindFixPrompt), kinds[2])
}

// TestClarificationPromptLoggedOnAmbiguityHalt covers spec.md §4.3:
// AMBIGUITY and ASKED_QUESTION halts log a CLARIFICATION_PROMPT entry.
func TestClarificationPromptLoggedOnAmbiguityHalt(t *testing.T) {
	dir := t.TempDir()
	script := writeFakeAgent(t, dir, "cat > /dev/null\necho '{\"status\":\"failed\",\"reasoning\":\"not sure which approach to take\"}'\nexit 0\n")

	state := model.NewState("proj", model.ModeAuto)
	d, _ := newTestDriver(t, state, script)
	require.NoError(t, d.Queue.Enqueue(context.Background(), sampleTask("t-7")))

	_, err := d.RunIteration(context.Background())
	require.NoError(t, err)

	kinds := promptKinds(t, d.Config.SandboxRoot)
	assert.Contains(t, kinds, string(audit.KindClarificationPrompt))
}
