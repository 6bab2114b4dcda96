package refine

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/storyloom/storyloom/pkg/candidate"
)

// MultiJudge fans one candidate out to several judges concurrently and merges
// their verdicts. Judges share no mutable state and see only the immutable
// candidate, so within-iteration parallelism is safe; all results are joined
// before the merged verdict is returned, preserving history ordering.
type MultiJudge struct {
	Judges []Judge

	// PerJudgeTimeout bounds each judge call. Zero applies no extra bound
	// beyond the controller's call timeout.
	PerJudgeTimeout time.Duration
}

// NewMultiJudge creates a fan-out judge.
func NewMultiJudge(judges ...Judge) *MultiJudge {
	return &MultiJudge{Judges: judges}
}

// Name returns the composite judge identifier.
func (m *MultiJudge) Name() string {
	return "multi"
}

// Judge runs every sub-judge concurrently and merges the results. A failing
// sub-judge does not fail the merge: its dimensions stay unscored (counting
// as zero) and a major issue records the failure, so partial judge outages
// degrade the score instead of corrupting the session. Judge fails outright
// only when every sub-judge fails.
func (m *MultiJudge) Judge(ctx context.Context, cand candidate.Candidate, spec *TaskSpec) (*Verdict, error) {
	if len(m.Judges) == 0 {
		return nil, fmt.Errorf("multi judge has no judges")
	}

	verdicts := make([]*Verdict, len(m.Judges))
	errs := make([]error, len(m.Judges))

	g, groupCtx := errgroup.WithContext(ctx)
	for i, judge := range m.Judges {
		g.Go(func() error {
			judgeCtx := groupCtx
			if m.PerJudgeTimeout > 0 {
				var cancel context.CancelFunc
				judgeCtx, cancel = context.WithTimeout(groupCtx, m.PerJudgeTimeout)
				defer cancel()
			}
			verdicts[i], errs[i] = judge.Judge(judgeCtx, cand, spec)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := &Verdict{Scores: make(map[string]float64)}
	failures := 0
	for i, judge := range m.Judges {
		if errs[i] != nil || verdicts[i] == nil {
			failures++
			merged.Issues = append(merged.Issues, Issue{
				Category: judge.Name(),
				Severity: SeverityMajor,
				Message:  fmt.Sprintf("judge %s failed: %v", judge.Name(), errs[i]),
			})
			continue
		}
		for name, score := range verdicts[i].Scores {
			merged.Scores[name] = score
		}
		merged.Issues = append(merged.Issues, verdicts[i].Issues...)
		merged.Strengths = append(merged.Strengths, verdicts[i].Strengths...)
		merged.Weaknesses = append(merged.Weaknesses, verdicts[i].Weaknesses...)
		merged.Suggestions = append(merged.Suggestions, verdicts[i].Suggestions...)
	}

	if failures == len(m.Judges) {
		return nil, fmt.Errorf("all %d judges failed", len(m.Judges))
	}
	return merged, nil
}
