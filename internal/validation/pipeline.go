package validation

import (
	"context"

	"github.com/archonops/supervisor/internal/model"
)

// Pipeline runs the four validation strategies in order, short-circuiting
// as soon as one marks the report valid (spec.md §4.6 "Ordering and
// short-circuits").
type Pipeline struct {
	Catalog              Catalog
	HelperAgent          HelperAgent
	InterrogationSubject HelperAgent
	InterrogationJudge   HelperAgent
	PersistFlag          PersistFlag
	AlreadyPerformed     AlreadyPerformed
	StrictMode           bool
}

// Input bundles everything a single validation run needs.
type Input struct {
	Task             *model.Task
	RawOutput        string
	WorkingDirectory string
	DiscoveredFiles  []string
	Attempt          int
}

// Run executes the pipeline and returns the final report, whichever
// strategy produced it.
func (p Pipeline) Run(ctx context.Context, in Input) (model.ValidationReport, error) {
	taskType := in.Task.TaskType
	if taskType == "" {
		taskType = model.TaskTypeCoding
	}

	out, err := ParseAgentOutput(in.RawOutput, taskType)
	if err != nil {
		return model.ValidationReport{
			Valid:         false,
			FailureReason: err.Error(),
			Confidence:    model.ConfidenceHigh,
		}, nil
	}

	report := Standard(in.Task, out, in.WorkingDirectory)
	if report.Valid {
		return report, nil
	}

	report = DetectAmbiguity(in.Task, out, report)
	if report.Ambiguous || report.AskedQuestion {
		return report, nil
	}

	report = Deterministic(in.Task, report, in.WorkingDirectory, p.Catalog)
	if p.StrictMode {
		report = escalateStrict(report)
	}
	if report.Valid {
		return report, nil
	}

	if p.HelperAgent != nil && !p.StrictMode {
		report, err = HelperAgentStrategy(ctx, p.HelperAgent, in.Task, report, in.DiscoveredFiles, in.WorkingDirectory)
		if err != nil {
			return report, err
		}
		if report.Valid {
			return report, nil
		}
	}

	if p.InterrogationSubject != nil && p.InterrogationJudge != nil && (len(report.Failed) > 0 || len(report.Uncertain) > 0) {
		report, err = Interrogation(ctx, p.InterrogationSubject, p.InterrogationJudge, p.AlreadyPerformed, p.PersistFlag, in.Task, in.Attempt, report)
		if err != nil {
			return report, err
		}
	}

	return report, nil
}

// escalateStrict applies the "strict mode" harshening named in spec.md
// §4.8: under strict mode, Helper-Agent is skipped entirely (no more
// unverified promotions) and any remaining uncertainty is treated as a
// failure rather than grounds for another round.
func escalateStrict(report model.ValidationReport) model.ValidationReport {
	if len(report.Uncertain) == 0 {
		return report
	}
	report.StrictMode = true
	report.Failed = append(report.Failed, report.Uncertain...)
	report.Uncertain = nil
	report.Valid = len(report.Failed) == 0
	return report
}
