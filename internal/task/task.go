// Package task implements enqueue-time task decoding and schema
// validation (spec.md §6 "Task Record", §7 TaskSchemaInvalid: "reject
// enqueue; do not halt"), grounded on the teacher's pkg/task.Task decoding
// and using mapstructure to accept a loosely-typed JSON object (in
// particular the optional `meta` map) the way the teacher's enqueue-style
// inputs tolerate extra or loosely-typed fields.
package task

import (
	"encoding/json"
	"fmt"

	"github.com/mitchellh/mapstructure"

	"github.com/archonops/supervisor/internal/model"
)

// Decode converts one raw JSON task record into a model.Task, tolerating
// loosely-typed input via mapstructure (reusing the struct's json tags)
// rather than requiring an exact encoding/json shape.
func Decode(raw json.RawMessage) (*model.Task, error) {
	var generic map[string]any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("task: record is not a JSON object: %w", err)
	}

	var t model.Task
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           &t,
	})
	if err != nil {
		return nil, fmt.Errorf("task: build decoder: %w", err)
	}
	if err := decoder.Decode(generic); err != nil {
		return nil, fmt.Errorf("task: decode record: %w", err)
	}
	return &t, nil
}

// DecodeAll decodes a JSON array of task records, grounded on enqueue
// accepting one file holding the whole batch (spec.md §6 `enqueue
// --task-file <path>`).
func DecodeAll(raw []byte) ([]*model.Task, error) {
	var records []json.RawMessage
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("task: file is not a JSON array: %w", err)
	}
	tasks := make([]*model.Task, 0, len(records))
	for i, r := range records {
		t, err := Decode(r)
		if err != nil {
			return nil, fmt.Errorf("task: record %d: %w", i, err)
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

// Validate enforces the Task Record schema named in spec.md §6:
// non-empty task_id/intent/tool/instructions, at least one acceptance
// criterion. Status is normalized to "pending" regardless of input, since
// the queue never accepts a task in any other state.
func Validate(t *model.Task) error {
	if t.TaskID == "" {
		return fmt.Errorf("task: task_id is required")
	}
	if t.Intent == "" {
		return fmt.Errorf("task: %s: intent is required", t.TaskID)
	}
	if t.Tool == "" {
		return fmt.Errorf("task: %s: tool is required", t.TaskID)
	}
	if t.Instructions == "" {
		return fmt.Errorf("task: %s: instructions is required", t.TaskID)
	}
	if len(t.AcceptanceCriteria) == 0 {
		return fmt.Errorf("task: %s: acceptance_criteria must be non-empty", t.TaskID)
	}
	if t.RetryPolicy != nil && t.RetryPolicy.MaxRetries < 0 {
		return fmt.Errorf("task: %s: retry_policy.max_retries must be >= 0", t.TaskID)
	}
	t.Status = "pending"
	return nil
}

// ValidateBatch validates every record and additionally rejects duplicate
// task ids within the same enqueue batch (spec.md §3 "task_id unique per
// queue").
func ValidateBatch(tasks []*model.Task) error {
	seen := make(map[string]bool, len(tasks))
	for _, t := range tasks {
		if err := Validate(t); err != nil {
			return err
		}
		if seen[t.TaskID] {
			return fmt.Errorf("task: duplicate task_id %q in batch", t.TaskID)
		}
		seen[t.TaskID] = true
	}
	return nil
}
