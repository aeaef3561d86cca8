package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/archonops/supervisor/internal/model"
)

type stubDiscoverer struct {
	sessionID string
	found     bool
}

func (s stubDiscoverer) DiscoverSession(featureID string) (string, bool, error) {
	return s.sessionID, s.found, nil
}

func newTestState() *model.SupervisorState {
	return model.NewState("proj", model.ModeAuto)
}

func TestResolveOrder(t *testing.T) {
	limits := ContextLimits{"small": 8000}
	classOf := map[string]string{"codex": "small"}

	t.Run("explicit override wins", func(t *testing.T) {
		m := NewManager(limits, classOf, 5)
		state := newTestState()
		sid, fresh := m.Resolve(state, "codex", "feat-1", "override-id")
		assert.Equal(t, "override-id", sid)
		assert.False(t, fresh)
	})

	t.Run("existing session reused when healthy", func(t *testing.T) {
		m := NewManager(limits, classOf, 5)
		state := newTestState()
		state.ActiveSessions["feat-1"] = &model.Session{FeatureID: "feat-1", SessionID: "sess-1", TokenEstimate: 100}
		sid, fresh := m.Resolve(state, "codex", "feat-1", "")
		assert.Equal(t, "sess-1", sid)
		assert.False(t, fresh)
	})

	t.Run("discovery used when no active session", func(t *testing.T) {
		m := NewManager(limits, classOf, 5)
		m.RegisterDiscoverer("codex", stubDiscoverer{sessionID: "discovered", found: true})
		state := newTestState()
		sid, fresh := m.Resolve(state, "codex", "feat-1", "")
		assert.Equal(t, "discovered", sid)
		assert.False(t, fresh)
	})

	t.Run("fresh start when nothing resolves", func(t *testing.T) {
		m := NewManager(limits, classOf, 5)
		state := newTestState()
		sid, fresh := m.Resolve(state, "codex", "feat-1", "")
		assert.Empty(t, sid)
		assert.True(t, fresh)
	})
}

func TestRotationPolicy(t *testing.T) {
	limits := ContextLimits{"small": 1000}
	classOf := map[string]string{"codex": "small"}

	t.Run("token limit forces rotation", func(t *testing.T) {
		m := NewManager(limits, classOf, 5)
		state := newTestState()
		state.ActiveSessions["feat-1"] = &model.Session{FeatureID: "feat-1", SessionID: "sess-1", TokenEstimate: 2000}
		_, fresh := m.Resolve(state, "codex", "feat-1", "")
		assert.True(t, fresh)
	})

	t.Run("consecutive errors force rotation", func(t *testing.T) {
		m := NewManager(limits, classOf, 5)
		state := newTestState()
		state.ActiveSessions["feat-1"] = &model.Session{FeatureID: "feat-1", SessionID: "sess-1", ConsecutiveErrs: 5}
		_, fresh := m.Resolve(state, "codex", "feat-1", "")
		assert.True(t, fresh)
	})
}

func TestUpdate(t *testing.T) {
	now := time.Now()

	t.Run("success on reused session accumulates tokens and resets errors", func(t *testing.T) {
		m := NewManager(nil, nil, 5)
		state := newTestState()
		state.ActiveSessions["feat-1"] = &model.Session{FeatureID: "feat-1", SessionID: "sess-1", TokenEstimate: 100, ConsecutiveErrs: 2}
		m.Update(state, "codex", "feat-1", "sess-1", true, 50, true, now)
		s := state.ActiveSessions["feat-1"]
		require.NotNil(t, s)
		assert.Equal(t, int64(150), s.TokenEstimate)
		assert.Equal(t, 0, s.ConsecutiveErrs)
	})

	t.Run("failure increments consecutive errors", func(t *testing.T) {
		m := NewManager(nil, nil, 5)
		state := newTestState()
		state.ActiveSessions["feat-1"] = &model.Session{FeatureID: "feat-1", SessionID: "sess-1"}
		m.Update(state, "codex", "feat-1", "sess-1", true, 0, false, now)
		assert.Equal(t, 1, state.ActiveSessions["feat-1"].ConsecutiveErrs)
	})

	t.Run("fresh session starts at reported token count", func(t *testing.T) {
		m := NewManager(nil, nil, 5)
		state := newTestState()
		m.Update(state, "codex", "feat-1", "sess-new", false, 42, true, now)
		s := state.ActiveSessions["feat-1"]
		require.NotNil(t, s)
		assert.Equal(t, int64(42), s.TokenEstimate)
	})
}

func TestStripFeatureTag(t *testing.T) {
	assert.Equal(t, "body", StripFeatureTag("[Feature: x]\n\nbody"))
	assert.Equal(t, "no tag here", StripFeatureTag("no tag here"))
}
