package promptbuilder

import "github.com/archonops/supervisor/internal/model"

// strategy holds the rule list, guidelines, and output contract for one
// task type (spec.md §4.3 "Task-type strategies").
type strategy struct {
	Rules        []string
	Guidelines   []string
	OutputFormat string
}

const codingFamilyFormat = `{"status": "completed|failed", "files_created": [], "files_updated": [], "changes": [], "neededChanges": true, "reasoning": "", "summary": ""}`
const behavioralFormat = `{"status": "completed|failed", "response": "", "confidence": "", "reasoning": ""}`
const verificationFormat = `{"status": "completed|failed", "findings": [], "verdict": "pass|fail", "reasoning": ""}`

// strategyTable is keyed by task type; coding-family types share the same
// output contract per spec.md §4.3.
var strategyTable = map[model.TaskType]strategy{
	model.TaskTypeCoding: {
		Rules:        []string{"Modify or create only files under the working directory.", "Every acceptance criterion must be addressed explicitly."},
		Guidelines:   []string{"Prefer minimal, targeted changes.", "List every file you touched."},
		OutputFormat: codingFamilyFormat,
	},
	model.TaskTypeConfiguration: {
		Rules:        []string{"Configuration changes must be idempotent.", "Do not remove unrelated settings."},
		Guidelines:   []string{"Call out any new environment variables introduced."},
		OutputFormat: codingFamilyFormat,
	},
	model.TaskTypeDocumentation: {
		Rules:        []string{"Documentation must describe only what the code actually does."},
		Guidelines:   []string{"Keep the existing document structure unless instructed otherwise."},
		OutputFormat: codingFamilyFormat,
	},
	model.TaskTypeTesting: {
		Rules:        []string{"New tests must exercise the described behavior directly.", "Do not weaken existing assertions."},
		Guidelines:   []string{"Match the surrounding test file's conventions."},
		OutputFormat: codingFamilyFormat,
	},
	model.TaskTypeRefactoring: {
		Rules:        []string{"Observable behavior must not change.", "Keep the change scoped to the stated target."},
		Guidelines:   []string{"Prefer small, reviewable diffs."},
		OutputFormat: codingFamilyFormat,
	},
	model.TaskTypeImplementation: {
		Rules:        []string{"Modify or create only files under the working directory.", "Every acceptance criterion must be addressed explicitly."},
		Guidelines:   []string{"Prefer minimal, targeted changes."},
		OutputFormat: codingFamilyFormat,
	},
	model.TaskTypeResearch: {
		Rules:        []string{"Modify or create only files under the working directory.", "Cite the files you read."},
		Guidelines:   []string{"Summarize findings before listing file changes."},
		OutputFormat: codingFamilyFormat,
	},
	model.TaskTypeOrchestration: {
		Rules:        []string{"Modify or create only files under the working directory."},
		Guidelines:   []string{"Describe the sequence of steps taken."},
		OutputFormat: codingFamilyFormat,
	},
	model.TaskTypeBehavioral: {
		Rules:        []string{"Respond directly; do not modify files."},
		Guidelines:   []string{"Keep the response concise and on-topic."},
		OutputFormat: behavioralFormat,
	},
	model.TaskTypeVerification: {
		Rules:        []string{"Do not modify files.", "Report every finding, positive or negative."},
		Guidelines:   []string{"State the verdict plainly."},
		OutputFormat: verificationFormat,
	},
}

func strategyFor(t model.TaskType) strategy {
	if s, ok := strategyTable[t]; ok {
		return s
	}
	return strategyTable[model.TaskTypeCoding]
}
