package videoqc

import (
	"context"
	"fmt"
	"log"
	"math"

	"github.com/storyloom/storyloom/pkg/candidate"
	"github.com/storyloom/storyloom/pkg/refine"
)

// Thresholds for the deterministic technical checks.
const (
	durationTolerance = 0.5
	minMotionQuality  = 0.7
	minVisualClarity  = 0.7
)

// TechnicalJudge scores a clip's measurable quality from probed metrics.
// Unlike the frame judges it calls no model: the score is pure arithmetic
// over duration, motion, and clarity.
type TechnicalJudge struct {
	Probe  MetricsProbe
	Logger func(format string, args ...any)
}

// NewTechnicalJudge creates a technical judge over the given probe.
func NewTechnicalJudge(probe MetricsProbe) *TechnicalJudge {
	return &TechnicalJudge{Probe: probe, Logger: log.Printf}
}

// Name returns the judge identifier.
func (j *TechnicalJudge) Name() string {
	return DimTechnical
}

// Judge implements refine.Judge.
func (j *TechnicalJudge) Judge(ctx context.Context, cand candidate.Candidate, spec *refine.TaskSpec) (*refine.Verdict, error) {
	video, ok := cand.(*Candidate)
	if !ok {
		return nil, fmt.Errorf("technical judge: unexpected candidate %T", cand)
	}
	task, ok := spec.Payload.(*Task)
	if !ok {
		return nil, fmt.Errorf("technical judge: unexpected payload %T", spec.Payload)
	}

	metrics, err := j.Probe.Probe(ctx, video.Path)
	if err != nil {
		return nil, fmt.Errorf("probe %s: %w", video.Path, err)
	}

	verdict := &refine.Verdict{
		Scores: map[string]float64{DimTechnical: TechnicalScore(metrics, task.ExpectedDuration)},
	}

	if math.Abs(metrics.DurationSeconds-task.ExpectedDuration) > durationTolerance {
		verdict.Issues = append(verdict.Issues, refine.Issue{
			Category: DimTechnical,
			Severity: refine.SeverityMajor,
			Message:  fmt.Sprintf("duration %.1fs vs expected %.1fs", metrics.DurationSeconds, task.ExpectedDuration),
		})
	}
	if metrics.MotionQuality < minMotionQuality {
		verdict.Issues = append(verdict.Issues, refine.Issue{
			Category: DimTechnical,
			Severity: refine.SeverityMajor,
			Message:  fmt.Sprintf("poor motion quality %.2f", metrics.MotionQuality),
		})
	}
	if metrics.VisualClarity < minVisualClarity {
		verdict.Issues = append(verdict.Issues, refine.Issue{
			Category: DimTechnical,
			Severity: refine.SeverityMinor,
			Message:  fmt.Sprintf("low visual clarity %.2f", metrics.VisualClarity),
		})
	}

	j.log("[videoqc] technical score %.1f for %s", verdict.Scores[DimTechnical], video.Path)
	return verdict, nil
}

// TechnicalScore combines duration fit, motion quality, and visual clarity
// into a 0-10 score. Duration contributes 30%, motion and clarity 35% each;
// an out-of-tolerance duration is capped at a 6.0 contribution.
func TechnicalScore(metrics *VideoMetrics, expectedDuration float64) float64 {
	durationScore := 10.0
	if math.Abs(metrics.DurationSeconds-expectedDuration) > durationTolerance {
		durationScore = 6.0
	}
	return durationScore*0.3 + metrics.MotionQuality*10.0*0.35 + metrics.VisualClarity*10.0*0.35
}

func (j *TechnicalJudge) log(format string, args ...any) {
	if j.Logger != nil {
		j.Logger(format, args...)
	}
}
