// Package session implements the Session Manager: per-feature provider
// continuity, resolution order, and rotation policy (spec.md §4.4).
//
// Sessions are a field of the single persisted SupervisorState snapshot
// (model.SupervisorState.ActiveSessions) rather than a separate store —
// grounded on the teacher's pkg/session.Service interface shape
// (Get/Create/AppendEvent/List/Delete keyed by id), adapted here to a
// feature-id-keyed map mutated in place and persisted by the regular
// state-store Save call.
package session

import (
	"strings"
	"time"

	"github.com/archonops/supervisor/internal/model"
)

// Discoverer is the provider-specific session discovery contract (§4.4
// resolution order step 3): list recent sessions and match the feature tag
// embedded as the first line of the initial prompt. Concrete agent
// provider wrappers are out of core scope (spec.md §1); this interface is
// the contract a provider plugin may implement.
type Discoverer interface {
	DiscoverSession(featureID string) (sessionID string, found bool, err error)
}

// ContextLimits maps a provider's context-size class to a token budget
// (spec.md §4.4 rotation policy table: large ≈ 350k, medium ≈ 250k, small
// ≈ 8k).
type ContextLimits map[string]int64

// Manager resolves and rotates sessions against a SupervisorState snapshot.
type Manager struct {
	limits      ContextLimits
	classOf     map[string]string // provider name -> size class
	discoverers map[string]Discoverer
	errorCap    int
}

// NewManager constructs a Manager. classOf maps provider name to one of
// "large"/"medium"/"small" for the limits table; errorCap is the
// consecutive-error rotation threshold (default 5 per spec.md §4.4).
func NewManager(limits ContextLimits, classOf map[string]string, errorCap int) *Manager {
	if errorCap <= 0 {
		errorCap = 5
	}
	return &Manager{
		limits:      limits,
		classOf:     classOf,
		discoverers: map[string]Discoverer{},
		errorCap:    errorCap,
	}
}

// RegisterDiscoverer attaches a provider-specific session discoverer.
func (m *Manager) RegisterDiscoverer(provider string, d Discoverer) {
	m.discoverers[provider] = d
}

// FeatureTag returns the `[Feature: <id>]` prefix injected into a prompt
// the first time a session is started, so later discovery can match it
// (spec.md §4.4 "Feature-tag injection").
func FeatureTag(featureID string) string {
	return "[Feature: " + featureID + "]\n\n"
}

// Resolve implements the §4.4 resolution order: explicit override →
// existing active_sessions[feature] → provider discovery → none. Its one
// state change is dropping an existing session that needs rotation;
// Dispatch-time bookkeeping happens in Update.
func (m *Manager) Resolve(state *model.SupervisorState, provider, featureID, explicitOverride string) (sessionID string, startingFresh bool) {
	if explicitOverride != "" {
		return explicitOverride, false
	}

	if s, ok := state.ActiveSessions[featureID]; ok && s != nil && s.SessionID != "" {
		if !m.needsRotation(s, provider) {
			return s.SessionID, false
		}
		// Token/error caps exceeded: drop the stale session now so a
		// differently-keyed Update call doesn't leave two entries behind,
		// then fall through to discovery/fresh-start.
		m.Rotate(state, featureID)
	}

	if d, ok := m.discoverers[provider]; ok {
		if sid, found, err := d.DiscoverSession(featureID); err == nil && found {
			return sid, false
		}
	}

	return "", true
}

// needsRotation applies the rotation policy: drop the session if its
// cumulative token estimate exceeds the provider's context limit, or its
// consecutive error count reached the cap.
func (m *Manager) needsRotation(s *model.Session, provider string) bool {
	if s.ConsecutiveErrs >= m.errorCap {
		return true
	}
	class := m.classOf[provider]
	if limit, ok := m.limits[class]; ok && s.TokenEstimate > limit {
		return true
	}
	return false
}

// Rotate drops the stored session for a feature, forcing a fresh start on
// next dispatch.
func (m *Manager) Rotate(state *model.SupervisorState, featureID string) {
	delete(state.ActiveSessions, featureID)
}

// Update records the outcome of a dispatch against a session. On success
// the error counter resets and tokensUsed is added to the estimate of a
// reused session, or becomes the estimate of a fresh one; on failure the
// error counter increments. A session id that differs from the stored one
// replaces it with a new entry at zero tokens/errors first.
func (m *Manager) Update(state *model.SupervisorState, provider, featureID, sessionID string, reused bool, tokensUsed int64, success bool, now time.Time) {
	if state.ActiveSessions == nil {
		state.ActiveSessions = map[string]*model.Session{}
	}
	s, ok := state.ActiveSessions[featureID]
	if !ok || s == nil || s.SessionID != sessionID {
		s = &model.Session{FeatureID: featureID, SessionID: sessionID, Provider: provider}
		state.ActiveSessions[featureID] = s
	}
	s.LastUse = now
	if success {
		if reused {
			s.TokenEstimate += tokensUsed
		} else {
			s.TokenEstimate = tokensUsed
		}
		s.ConsecutiveErrs = 0
	} else {
		s.ConsecutiveErrs++
	}
}

// StripFeatureTag removes a leading feature tag line from text, used when
// the tag must not leak into the agent's parsed output.
func StripFeatureTag(s string) string {
	if strings.HasPrefix(s, "[Feature: ") {
		if idx := strings.Index(s, "]\n\n"); idx != -1 {
			return s[idx+3:]
		}
	}
	return s
}
