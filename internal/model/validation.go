package model

// Confidence rates how reliable a validation outcome is.
type Confidence string

const (
	ConfidenceHigh      Confidence = "HIGH"
	ConfidenceLow       Confidence = "LOW"
	ConfidenceUncertain Confidence = "UNCERTAIN"
	ConfidenceMedium    Confidence = "MEDIUM"
)

// RuleResult is one matched rule's outcome against a single criterion.
type RuleResult struct {
	RuleID  string `json:"rule_id"`
	Passed  bool   `json:"passed"`
	Detail  string `json:"detail,omitempty"`
}

// CriterionOutcome is the per-criterion verdict accumulated across pipeline
// stages.
type CriterionOutcome struct {
	Criterion  string       `json:"criterion"`
	Passed     bool         `json:"passed"`
	Confidence Confidence   `json:"confidence"`
	Rules      []RuleResult `json:"rules,omitempty"`
	Evidence   string       `json:"evidence,omitempty"`
}

// ValidationReport is the artifact produced by the validation pipeline.
type ValidationReport struct {
	Valid          bool               `json:"valid"`
	FailureReason  string             `json:"failure_reason,omitempty"`
	Passed         []string           `json:"passed,omitempty"`
	Failed         []string           `json:"failed,omitempty"`
	Uncertain      []string           `json:"uncertain,omitempty"`
	Confidence     Confidence         `json:"confidence"`
	Criteria       []CriterionOutcome `json:"criteria,omitempty"`
	Ambiguous      bool               `json:"ambiguous,omitempty"`
	AskedQuestion  bool               `json:"asked_question,omitempty"`
	StrictMode     bool               `json:"strict_mode,omitempty"`
}

// AgentOutput is the tagged variant of a parsed agent response, branched
// once by task type (design note: "polymorphic task output formats ->
// tagged variant").
type AgentOutput struct {
	Kind OutputKind `json:"-"`

	// Shared by coding-family task types.
	Status        string   `json:"status"`
	FilesCreated  []string `json:"files_created,omitempty"`
	FilesUpdated  []string `json:"files_updated,omitempty"`
	Changes       []string `json:"changes,omitempty"`
	NeededChanges bool     `json:"neededChanges,omitempty"`
	Reasoning     string   `json:"reasoning,omitempty"`
	Summary       string   `json:"summary,omitempty"`

	// Behavioral.
	Response   string `json:"response,omitempty"`
	Confidence string `json:"confidence,omitempty"`

	// Verification.
	Findings []string `json:"findings,omitempty"`
	Verdict  string   `json:"verdict,omitempty"`
}

// OutputKind tags which task-type shape an AgentOutput was parsed as.
type OutputKind string

const (
	OutputKindCodingFamily OutputKind = "coding_family"
	OutputKindBehavioral   OutputKind = "behavioral"
	OutputKindVerification OutputKind = "verification"
)

// KindForTaskType maps a task type to the output contract it must satisfy.
func KindForTaskType(t TaskType) OutputKind {
	switch t {
	case TaskTypeBehavioral:
		return OutputKindBehavioral
	case TaskTypeVerification:
		return OutputKindVerification
	default:
		return OutputKindCodingFamily
	}
}
