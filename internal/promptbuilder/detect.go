package promptbuilder

import (
	"strings"

	"github.com/archonops/supervisor/internal/model"
)

// DetectTaskType derives a task's type deterministically when the task
// does not declare one explicitly (spec.md §4.3 "Detection"). Matching is
// on lowercase keyword presence in intent+instructions, checked in a fixed
// priority order so the result is stable across runs.
func DetectTaskType(t *model.Task) model.TaskType {
	if t.TaskType != "" {
		return t.TaskType
	}
	haystack := strings.ToLower(t.Intent + " " + t.Instructions)

	switch {
	case containsAny(haystack, "test"):
		return model.TaskTypeTesting
	case containsAny(haystack, "config", "setup", "env"):
		return model.TaskTypeConfiguration
	case containsAny(haystack, "document", "readme", "guide"):
		return model.TaskTypeDocumentation
	case containsAny(haystack, "refactor", "improve", "clean"):
		return model.TaskTypeRefactoring
	case containsAny(haystack, "greet", "hello", "say", "respond"):
		return model.TaskTypeBehavioral
	case containsAny(haystack, "verify", "check", "audit", "analyze", "confirm"):
		return model.TaskTypeVerification
	default:
		return model.TaskTypeCoding
	}
}

func containsAny(haystack string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}
