package model

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStateDefaults(t *testing.T) {
	s := NewState("proj-1", ModeAuto)

	assert.Equal(t, 1, s.SchemaVersion)
	assert.Equal(t, StatusRunning, s.Sub.Status)
	assert.Equal(t, "proj-1", s.Goal.ProjectID)
	assert.Empty(t, s.CompletedTasks)
	assert.Empty(t, s.BlockedTasks)
	assert.NotNil(t, s.ActiveSessions)
	assert.NotNil(t, s.Sub.RetryCounts)
}

func TestPruneCompletedKeepsLastHundred(t *testing.T) {
	s := NewState("proj-1", ModeAuto)
	for i := 0; i < 150; i++ {
		s.CompletedTasks = append(s.CompletedTasks, CompletedTask{TaskID: strconv.Itoa(i)})
	}

	s.PruneCompleted()

	require.Len(t, s.CompletedTasks, MaxCompletedTasks)
	// The tail (most recent) entries must never be discarded.
	assert.Equal(t, "149", s.CompletedTasks[len(s.CompletedTasks)-1].TaskID)
	assert.Equal(t, "50", s.CompletedTasks[0].TaskID)
}

func TestPruneCompletedNoopUnderLimit(t *testing.T) {
	s := NewState("proj-1", ModeAuto)
	s.CompletedTasks = append(s.CompletedTasks, CompletedTask{TaskID: "only-one"})

	s.PruneCompleted()

	require.Len(t, s.CompletedTasks, 1)
	assert.Equal(t, "only-one", s.CompletedTasks[0].TaskID)
}

func TestBackfillSynthesizesLegacyCompletedTasks(t *testing.T) {
	s := &SupervisorState{
		CompletedTasks: []CompletedTask{
			{TaskID: "legacy-1"},
			{TaskID: "modern-1", Intent: "already has an intent", RequiresContext: true},
		},
	}

	s.Backfill()

	assert.Equal(t, "[Legacy] legacy-1", s.CompletedTasks[0].Intent)
	assert.False(t, s.CompletedTasks[0].RequiresContext)
	// A record that already carries an intent is left untouched.
	assert.Equal(t, "already has an intent", s.CompletedTasks[1].Intent)
	assert.True(t, s.CompletedTasks[1].RequiresContext)
}

func TestBackfillInitializesNilMaps(t *testing.T) {
	s := &SupervisorState{}
	s.Backfill()
	assert.NotNil(t, s.Sub.RetryCounts)
	assert.NotNil(t, s.ActiveSessions)
}

func TestIsStrict(t *testing.T) {
	s := NewState("proj-1", ModeAuto)
	assert.False(t, s.IsStrict("t-1"))

	s.Sub.StrictTasks = map[string]bool{"t-1": true}
	assert.True(t, s.IsStrict("t-1"))
	assert.False(t, s.IsStrict("t-2"))
}

func TestFeatureIDOfPrecedence(t *testing.T) {
	explicit := &Task{TaskID: "proj-42", Meta: &TaskMeta{FeatureID: "override"}}
	assert.Equal(t, "override", FeatureIDOf(explicit, "proj"))

	prefixed := &Task{TaskID: "proj-42"}
	assert.Equal(t, "proj", FeatureIDOf(prefixed, "ignored"))

	noPrefix := &Task{TaskID: "solo"}
	assert.Equal(t, "fallback", FeatureIDOf(noPrefix, "fallback"))

	bare := &Task{TaskID: "solo"}
	assert.Equal(t, "default", FeatureIDOf(bare, ""))
}
