package model

import "time"

// SupervisorStatus is the top-level run state (invariant 7: HALTED requires
// operator intervention and is never self-resumed).
type SupervisorStatus string

const (
	StatusRunning   SupervisorStatus = "RUNNING"
	StatusBlocked   SupervisorStatus = "BLOCKED"
	StatusHalted    SupervisorStatus = "HALTED"
	StatusCompleted SupervisorStatus = "COMPLETED"
)

// ExecutionMode is the run mode recorded in state by init-state. The
// driver does not read it: AUTO and MANUAL states run the control loop
// the same way, without pausing for operator confirmation.
type ExecutionMode string

const (
	ModeAuto   ExecutionMode = "AUTO"
	ModeManual ExecutionMode = "MANUAL"
)

// HaltReason classifies why the supervisor stopped (spec.md §7).
type HaltReason string

const (
	HaltAmbiguity         HaltReason = "AMBIGUITY"
	HaltAskedQuestion     HaltReason = "ASKED_QUESTION"
	HaltResourceExhausted HaltReason = "RESOURCE_EXHAUSTED"
	HaltInternalError     HaltReason = "INTERNAL_ERROR"
	HaltOperator          HaltReason = "OPERATOR"
)

// ResourceExhaustedRetry is the exponential-backoff schedule recorded when
// a provider reports quota exhaustion (spec.md §4.8, §8 S5).
type ResourceExhaustedRetry struct {
	Attempt     int       `json:"attempt"`
	LastAttempt time.Time `json:"last_attempt_at"`
	NextRetryAt time.Time `json:"next_retry_at"`
}

// SupervisorSubState is the control-loop-owned half of the persisted
// snapshot.
type SupervisorSubState struct {
	Status                 SupervisorStatus        `json:"status"`
	Iteration              int64                   `json:"iteration"`
	LastTaskID             string                  `json:"last_task_id,omitempty"`
	LastValidationReport   *ValidationReport        `json:"last_validation_report,omitempty"`
	HaltReason             HaltReason              `json:"halt_reason,omitempty"`
	HaltDetails            string                  `json:"halt_details,omitempty"`
	ResourceExhaustedRetry *ResourceExhaustedRetry `json:"resource_exhausted_retry,omitempty"`
	RetryCounts            map[string]int          `json:"retry_counts,omitempty"`
	LastFailureReason      map[string]string       `json:"last_failure_reason,omitempty"`
	RepeatedFailureCount   map[string]int          `json:"repeated_failure_count,omitempty"`
	InterrogationFlags     map[string]bool         `json:"interrogation_flags,omitempty"`
	// StrictTasks marks task ids whose next attempt must run with the
	// retry/halt policy's strict escalation (spec.md §4.8 "repeated
	// identical failure" — next attempt harshens Helper-Agent/
	// Interrogation and any further failure blocks immediately).
	StrictTasks map[string]bool `json:"strict_tasks,omitempty"`
}

// Goal is the operator-injected description of the overall objective.
type Goal struct {
	ProjectID   string    `json:"project_id"`
	Description string    `json:"description"`
	Completed   bool      `json:"completed"`
	UpdatedAt   time.Time `json:"updated_at,omitempty"`
}

// Session is a per-feature provider continuation (spec.md §3 Session).
type Session struct {
	FeatureID       string    `json:"feature_id"`
	SessionID       string    `json:"session_id"`
	Provider        string    `json:"provider"`
	LastUse         time.Time `json:"last_use"`
	ConsecutiveErrs int       `json:"consecutive_errors"`
	TokenEstimate   int64     `json:"token_estimate"`
}

// SupervisorState is the single persisted object (invariant 3: every write
// is preceded by a read and followed by an audit append).
type SupervisorState struct {
	SchemaVersion  int                 `json:"schema_version"`
	Sub            SupervisorSubState  `json:"supervisor"`
	Goal           Goal                `json:"goal"`
	CurrentTask    *Task               `json:"current_task,omitempty"`
	RetrySlot      *Task               `json:"retry_slot,omitempty"`
	CompletedTasks []CompletedTask     `json:"completed_tasks"`
	BlockedTasks   []BlockedTask       `json:"blocked_tasks"`
	ActiveSessions map[string]*Session `json:"active_sessions"`
	QueueExhausted bool                `json:"queue_exhausted"`
	LastUpdated    time.Time           `json:"last_updated"`
	ExecutionMode  ExecutionMode       `json:"execution_mode"`
}

// MaxCompletedTasks is the cap enforced by invariant 4.
const MaxCompletedTasks = 100

// NewState returns a freshly initialized snapshot for init-state.
func NewState(projectID string, mode ExecutionMode) *SupervisorState {
	return &SupervisorState{
		SchemaVersion: 1,
		Sub: SupervisorSubState{
			Status:      StatusRunning,
			RetryCounts: map[string]int{},
		},
		Goal:           Goal{ProjectID: projectID},
		CompletedTasks: []CompletedTask{},
		BlockedTasks:   []BlockedTask{},
		ActiveSessions: map[string]*Session{},
		ExecutionMode:  mode,
		LastUpdated:    time.Time{},
	}
}

// PruneCompleted prunes completed_tasks to the last MaxCompletedTasks
// entries, never discarding the tail (invariant 4).
func (s *SupervisorState) PruneCompleted() {
	if len(s.CompletedTasks) <= MaxCompletedTasks {
		return
	}
	start := len(s.CompletedTasks) - MaxCompletedTasks
	s.CompletedTasks = s.CompletedTasks[start:]
}

// Backfill applies the legacy-load compatibility rules (spec.md §8
// round-trip laws): completed-task entries recorded before the intent/
// summary fields existed load with a synthetic intent and
// requires_context == false.
func (s *SupervisorState) Backfill() {
	for i := range s.CompletedTasks {
		ct := &s.CompletedTasks[i]
		if ct.Intent == "" {
			ct.Intent = "[Legacy] " + ct.TaskID
			ct.RequiresContext = false
		}
	}
	if s.Sub.RetryCounts == nil {
		s.Sub.RetryCounts = map[string]int{}
	}
	if s.ActiveSessions == nil {
		s.ActiveSessions = map[string]*Session{}
	}
}

// IsStrict reports whether taskID's next attempt must run under the
// repeated-identical-failure strict escalation.
func (s *SupervisorState) IsStrict(taskID string) bool {
	return s.Sub.StrictTasks != nil && s.Sub.StrictTasks[taskID]
}
