package validation

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/archonops/supervisor/internal/model"
	"github.com/archonops/supervisor/internal/promptbuilder"
)

// MaxInterrogationRounds bounds Strategy 4 (spec.md §4.6 Strategy 4).
const MaxInterrogationRounds = 4

// interrogationVerdict is one criterion's outcome from the judge agent's
// analysis of a subject agent's interrogation response.
type interrogationVerdict struct {
	Criterion string `json:"criterion"`
	Verdict   string `json:"verdict"` // COMPLETE | INCOMPLETE | UNCERTAIN
	Evidence  string `json:"evidence"`
}

// PersistFlag pre-persists the interrogation-performed flag for a given
// task/attempt before the first round runs, so a crash mid-interrogation
// never causes repeated rounds (spec.md §4.6 Strategy 4).
type PersistFlag func(ctx context.Context, taskID string, attempt int) error

// AlreadyPerformed reports whether the pre-persist flag for (taskID,
// attempt) was already set by an earlier, crashed run of this same
// attempt. Interrogation consults it as a recovery guard: once set, no
// further rounds run for that attempt, bounding the total number of
// INTERROGATION_PROMPT records per attempt to at most MaxInterrogationRounds
// regardless of how many times the iteration is replayed after a crash
// (spec.md §4.6 Strategy 4, §8 testable property 5).
type AlreadyPerformed func(taskID string, attempt int) bool

// Interrogation implements spec.md §4.6 Strategy 4. It does not apply to
// behavioral tasks. subject is asked for evidence; judge analyzes the
// subject's response into per-criterion verdicts.
func Interrogation(ctx context.Context, subject, judge HelperAgent, alreadyPerformed AlreadyPerformed, persist PersistFlag, t *model.Task, attempt int, prev model.ValidationReport) (model.ValidationReport, error) {
	report := prev
	if t.TaskType == model.TaskTypeBehavioral {
		return report, nil
	}

	unresolved := append(append([]string{}, report.Failed...), report.Uncertain...)
	if len(unresolved) == 0 {
		return report, nil
	}

	if alreadyPerformed != nil && alreadyPerformed(t.TaskID, attempt) {
		return report, nil
	}

	if persist != nil {
		if err := persist(ctx, t.TaskID, attempt); err != nil {
			return report, fmt.Errorf("validation: pre-persist interrogation flag: %w", err)
		}
	}

	resolved := map[string]interrogationVerdict{}
	for round := 1; round <= MaxInterrogationRounds && len(unresolved) > 0; round++ {
		prompt := promptbuilder.BuildInterrogationPrompt(t, unresolved, round)
		subjectResp, err := subject.Ask(ctx, prompt.Text)
		if err != nil {
			return report, fmt.Errorf("validation: interrogation round %d: %w", round, err)
		}

		verdicts, err := analyzeInterrogationResponse(ctx, judge, unresolved, subjectResp)
		if err != nil {
			return report, fmt.Errorf("validation: interrogation analysis round %d: %w", round, err)
		}

		var stillUnresolved []string
		for _, criterion := range unresolved {
			v, ok := verdicts[criterion]
			if !ok || v.Verdict == "UNCERTAIN" {
				stillUnresolved = append(stillUnresolved, criterion)
				continue
			}
			resolved[criterion] = v
		}
		unresolved = stillUnresolved
	}

	report = applyInterrogationVerdicts(report, resolved)
	return report, nil
}

func analyzeInterrogationResponse(ctx context.Context, judge HelperAgent, unresolved []string, subjectResp string) (map[string]interrogationVerdict, error) {
	prompt := fmt.Sprintf(
		"Analyze the following agent response against these unresolved criteria:\n%v\n\nResponse:\n%s\n\nRespond with a JSON array of {\"criterion\": \"\", \"verdict\": \"COMPLETE|INCOMPLETE|UNCERTAIN\", \"evidence\": \"\"}.",
		unresolved, subjectResp,
	)
	raw, err := judge.Ask(ctx, prompt)
	if err != nil {
		return nil, err
	}
	var verdicts []interrogationVerdict
	if err := json.Unmarshal([]byte(raw), &verdicts); err != nil {
		return nil, fmt.Errorf("judge response is not a valid verdict array: %w", err)
	}
	out := make(map[string]interrogationVerdict, len(verdicts))
	for _, v := range verdicts {
		out[v.Criterion] = v
	}
	return out, nil
}

func applyInterrogationVerdicts(report model.ValidationReport, resolved map[string]interrogationVerdict) model.ValidationReport {
	var failed, uncertain []string
	criteriaByName := map[string]*model.CriterionOutcome{}
	for i := range report.Criteria {
		criteriaByName[report.Criteria[i].Criterion] = &report.Criteria[i]
	}

	allCriteria := append(append([]string{}, report.Failed...), report.Uncertain...)
	for _, criterion := range allCriteria {
		v, ok := resolved[criterion]
		outcome := criteriaByName[criterion]
		switch {
		case ok && v.Verdict == "COMPLETE":
			report.Passed = append(report.Passed, criterion)
			if outcome != nil {
				outcome.Passed = true
				outcome.Confidence = model.ConfidenceHigh
				outcome.Evidence = v.Evidence
			}
		case ok && v.Verdict == "INCOMPLETE":
			failed = append(failed, criterion)
			if outcome != nil {
				outcome.Passed = false
				outcome.Confidence = model.ConfidenceHigh
				outcome.Evidence = v.Evidence
			}
		default:
			uncertain = append(uncertain, criterion)
			if outcome != nil {
				outcome.Confidence = model.ConfidenceUncertain
			}
		}
	}

	report.Failed = failed
	report.Uncertain = uncertain
	report.Valid = len(failed) == 0 && len(uncertain) == 0
	if report.Valid {
		report.FailureReason = ""
		report.Confidence = model.ConfidenceHigh
	} else if len(uncertain) > 0 {
		report.Confidence = model.ConfidenceUncertain
	}
	return report
}
