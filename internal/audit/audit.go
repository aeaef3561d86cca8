// Package audit implements the Audit & Prompt Logs (spec.md §4.9):
// append-only JSON-line files recording every iteration event and every
// prompt/response the supervisor emits, grounded on the teacher's and
// the wider pack's "one JSON object per line" session-log idiom and using
// github.com/google/uuid for entry identifiers.
package audit

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/archonops/supervisor/internal/model"
)

// Event names an audit.log.jsonl entry (spec.md §4.9).
type Event string

const (
	EventTaskCompleted   Event = "TASK_COMPLETED"
	EventTaskBlocked     Event = "TASK_BLOCKED"
	EventHalt            Event = "HALT"
	EventQueueExhausted  Event = "QUEUE_EXHAUSTED"
	EventStateTransition Event = "STATE_TRANSITION"
)

// PromptKind names a logs/prompts.log.jsonl entry (spec.md §4.9).
type PromptKind string

const (
	KindPrompt                   PromptKind = "PROMPT"
	KindResponse                 PromptKind = "RESPONSE"
	KindFixPrompt                PromptKind = "FIX_PROMPT"
	KindClarificationPrompt      PromptKind = "CLARIFICATION_PROMPT"
	KindInterrogationPrompt      PromptKind = "INTERROGATION_PROMPT"
	KindInterrogationResponse    PromptKind = "INTERROGATION_RESPONSE"
	KindHelperAgentPrompt        PromptKind = "HELPER_AGENT_PROMPT"
	KindHelperAgentResponse      PromptKind = "HELPER_AGENT_RESPONSE"
	KindGoalCompletionCheck      PromptKind = "GOAL_COMPLETION_CHECK"
	KindGoalCompletionResponse   PromptKind = "GOAL_COMPLETION_RESPONSE"
)

// truncationLimit is the content size above which prompt-log entries are
// truncated (spec.md §4.9: "content > 100 kB is truncated").
const truncationLimit = 100 * 1024

// previewLimit bounds audit-entry prompt/response previews (spec.md §8
// "audit previews ≤ 500 chars").
const previewLimit = 500

// StateDiff carries the before/after snapshot of a state-changing
// operation (spec.md invariant 5: "before/after state... previews").
// Shallow by construction: both sides are the full marshaled snapshot, so
// a reader can diff structurally without the supervisor computing a field
// list itself (spec.md §4.9: "shallow; optionally structural").
type StateDiff struct {
	Before json.RawMessage `json:"before"`
	After  json.RawMessage `json:"after"`
}

// BuildStateDiff marshals both snapshots for an audit entry.
func BuildStateDiff(before, after *model.SupervisorState) (*StateDiff, error) {
	b, err := json.Marshal(before)
	if err != nil {
		return nil, fmt.Errorf("audit: marshal before-state: %w", err)
	}
	a, err := json.Marshal(after)
	if err != nil {
		return nil, fmt.Errorf("audit: marshal after-state: %w", err)
	}
	return &StateDiff{Before: b, After: a}, nil
}

// Entry is one audit.log.jsonl record (spec.md §4.9, invariant 5).
type Entry struct {
	ID                string                  `json:"id"`
	Timestamp         time.Time               `json:"timestamp"`
	Iteration         int64                   `json:"iteration"`
	Event             Event                   `json:"event"`
	TaskID            string                  `json:"task_id,omitempty"`
	Tool              string                  `json:"tool,omitempty"`
	Source            string                  `json:"source,omitempty"`
	StateDiff         *StateDiff              `json:"state_diff,omitempty"`
	ValidationSummary *model.ValidationReport `json:"validation_summary,omitempty"`
	PromptPreview     string                  `json:"prompt_preview,omitempty"`
	PromptLength      int                     `json:"prompt_length,omitempty"`
	ResponsePreview   string                  `json:"response_preview,omitempty"`
	ResponseLength    int                     `json:"response_length,omitempty"`
}

// PromptMetadata flags truncation on a PromptEntry (spec.md §8 testable
// property 7).
type PromptMetadata struct {
	Truncated      bool `json:"truncated"`
	OriginalLength int  `json:"original_length"`
}

// PromptEntry is one logs/prompts.log.jsonl record.
type PromptEntry struct {
	ID        string          `json:"id"`
	Timestamp time.Time       `json:"timestamp"`
	Kind      PromptKind      `json:"kind"`
	TaskID    string          `json:"task_id,omitempty"`
	Content   string          `json:"content"`
	Truncated bool            `json:"truncated,omitempty"`
	Metadata  *PromptMetadata `json:"metadata,omitempty"`
}

// Sink is the append-only destination for both logs, one pair per project
// sandbox (spec.md §4.9 "Persisted Log Layout").
type Sink struct {
	mu         sync.Mutex
	auditPath  string
	promptPath string
	logger     *slog.Logger
}

// NewSink creates (on demand) `<sandboxRoot>/<projectID>/audit.log.jsonl`
// and `.../logs/prompts.log.jsonl`. Absence of either file beforehand is
// not an error (spec.md §6 "Persisted Log Layout").
func NewSink(sandboxRoot, projectID string, logger *slog.Logger) (*Sink, error) {
	dir := filepath.Join(sandboxRoot, projectID)
	if err := os.MkdirAll(filepath.Join(dir, "logs"), 0o755); err != nil {
		return nil, fmt.Errorf("audit: create sandbox dirs: %w", err)
	}
	return &Sink{
		auditPath:  filepath.Join(dir, "audit.log.jsonl"),
		promptPath: filepath.Join(dir, "logs", "prompts.log.jsonl"),
		logger:     logger,
	}, nil
}

// AppendAudit appends one audit.log.jsonl record, filling in the id and
// timestamp if unset.
func (s *Sink) AppendAudit(e Entry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	return s.appendLine(s.auditPath, e)
}

// SafeAppendAudit appends and, on failure, logs to stderr and continues —
// audit-append failures are non-blocking (spec.md §7 "Propagation
// policy").
func (s *Sink) SafeAppendAudit(e Entry) {
	if err := s.AppendAudit(e); err != nil {
		s.logFailure("audit", err)
	}
}

// AppendPrompt appends one logs/prompts.log.jsonl record, truncating
// content over 100 kB with the literal marker required by spec.md §8
// testable property 7.
func (s *Sink) AppendPrompt(kind PromptKind, taskID, content string) error {
	body, truncated, originalLen := truncateContent(content)
	entry := PromptEntry{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Kind:      kind,
		TaskID:    taskID,
		Content:   body,
	}
	if truncated {
		entry.Truncated = true
		entry.Metadata = &PromptMetadata{Truncated: true, OriginalLength: originalLen}
	}
	return s.appendLine(s.promptPath, entry)
}

// SafeAppendPrompt is the non-blocking counterpart to AppendPrompt.
func (s *Sink) SafeAppendPrompt(kind PromptKind, taskID, content string) {
	if err := s.AppendPrompt(kind, taskID, content); err != nil {
		s.logFailure("prompt log", err)
	}
}

func (s *Sink) logFailure(what string, err error) {
	if s.logger != nil {
		s.logger.Error("append failed, continuing", "log", what, "error", err)
		return
	}
	fmt.Fprintf(os.Stderr, "audit: %s append failed: %v\n", what, err)
}

func (s *Sink) appendLine(path string, v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("audit: marshal entry: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("audit: open %s: %w", path, err)
	}
	defer f.Close()

	if _, err := f.Write(append(b, '\n')); err != nil {
		return fmt.Errorf("audit: write %s: %w", path, err)
	}
	return nil
}

// Preview truncates s to previewLimit characters for an audit-entry
// preview field, returning the (possibly shortened) text and its original
// length.
func Preview(s string) (string, int) {
	if len(s) <= previewLimit {
		return s, len(s)
	}
	return s[:previewLimit], len(s)
}

func truncateContent(content string) (body string, truncated bool, originalLen int) {
	if len(content) <= truncationLimit {
		return content, false, len(content)
	}
	originalLen = len(content)
	marker := fmt.Sprintf("\n\n[TRUNCATED: %d bytes total]", originalLen)
	return content[:truncationLimit] + marker, true, originalLen
}
