// Package validation implements the four-strategy Validation Pipeline
// (spec.md §4.6): Standard structural checks, Deterministic rule-catalog
// evaluation, Helper-Agent verification, and bounded Interrogation.
package validation

import (
	"encoding/json"
	"fmt"

	"github.com/archonops/supervisor/internal/model"
)

// ParseAgentOutput decodes a dispatched agent's raw response into the
// tagged AgentOutput shape for the task's type. The struct's json tags
// already cover every task-type contract named in spec.md §4.3, so a
// single Unmarshal suffices; Kind records which contract applies.
func ParseAgentOutput(raw string, taskType model.TaskType) (*model.AgentOutput, error) {
	var out model.AgentOutput
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("validation: agent output is not valid JSON: %w", err)
	}
	out.Kind = model.KindForTaskType(taskType)
	return &out, nil
}
