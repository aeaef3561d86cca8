package validation

import (
	"github.com/archonops/supervisor/internal/model"
)

// Deterministic applies spec.md §4.6 Strategy 2: each acceptance
// criterion is matched against the rule catalog; a criterion passes iff
// every check of every matched rule is satisfied. Criteria matching no
// rule are left UNCERTAIN for a later strategy to resolve.
func Deterministic(t *model.Task, prev model.ValidationReport, workingDirectory string, catalog Catalog) model.ValidationReport {
	report := prev
	report.Criteria = nil
	report.Passed = nil
	report.Failed = nil
	report.Uncertain = nil

	allPassed := len(t.AcceptanceCriteria) > 0
	for _, criterion := range t.AcceptanceCriteria {
		rules := catalog.Match(criterion)
		if len(rules) == 0 {
			report.Uncertain = append(report.Uncertain, criterion)
			report.Criteria = append(report.Criteria, model.CriterionOutcome{
				Criterion:  criterion,
				Confidence: model.ConfidenceUncertain,
			})
			allPassed = false
			continue
		}

		outcome := model.CriterionOutcome{Criterion: criterion, Passed: true}
		confidence := model.ConfidenceHigh
		for _, rule := range rules {
			rulePassed := true
			for _, check := range rule.Checks {
				ok, detail := check.Run(workingDirectory)
				outcome.Rules = append(outcome.Rules, model.RuleResult{RuleID: rule.ID, Passed: ok, Detail: detail})
				if !ok {
					rulePassed = false
				}
			}
			if !rulePassed {
				outcome.Passed = false
			}
			if rule.Confidence == model.ConfidenceLow {
				confidence = model.ConfidenceLow
			}
		}
		outcome.Confidence = confidence

		if outcome.Passed {
			report.Passed = append(report.Passed, criterion)
		} else {
			report.Failed = append(report.Failed, criterion)
			allPassed = false
		}
		report.Criteria = append(report.Criteria, outcome)
	}

	report.Valid = allPassed
	if !report.Valid && report.FailureReason == "" {
		report.FailureReason = "not every acceptance criterion passed deterministic checks"
	}
	if report.Valid {
		report.Confidence = model.ConfidenceHigh
	} else if len(report.Uncertain) > 0 {
		report.Confidence = model.ConfidenceUncertain
	} else {
		report.Confidence = model.ConfidenceHigh
	}
	return report
}
