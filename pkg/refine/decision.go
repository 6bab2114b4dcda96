package refine

import (
	"context"
	"fmt"
	"log"

	"github.com/storyloom/storyloom/pkg/candidate"
)

// Outcome tags the result of a decision or a whole session.
type Outcome string

const (
	OutcomeAccept Outcome = "ACCEPT"
	OutcomeRetry  Outcome = "RETRY"
	OutcomeFail   Outcome = "FAIL"

	// OutcomeInfraFailure marks sessions aborted by collaborator failures
	// rather than candidate quality.
	OutcomeInfraFailure Outcome = "INFRA_FAILURE"
)

// Terminal reports whether the outcome ends a session.
func (o Outcome) Terminal() bool {
	return o != OutcomeRetry
}

// Decision is the policy's verdict-to-action conversion for one candidate.
type Decision struct {
	Outcome      Outcome            `json:"outcome"`
	OverallScore float64            `json:"overall_score"`
	Breakdown    map[string]float64 `json:"breakdown,omitempty"`
	Reason       string             `json:"reason,omitempty"`

	// Directive carries refinement guidance for the producer. Set only on
	// RETRY.
	Directive *Directive `json:"directive,omitempty"`
}

// Policy converts a verdict into a decision. The zero value is not usable;
// construct with NewPolicy.
type Policy struct {
	// Refiner, when set, synthesizes higher-quality refinement directives.
	// Any failure falls back to the deterministic table mapping; directive
	// construction itself never fails.
	Refiner Refiner

	// Table maps issue categories to canonical fix directives.
	Table DirectiveTable

	Logger func(format string, args ...any)
}

// NewPolicy creates a policy with the default directive table and no
// enhanced refiner.
func NewPolicy() *Policy {
	return &Policy{
		Table:  DefaultDirectiveTable(),
		Logger: log.Printf,
	}
}

// OverallScore combines a verdict's dimension scores into one number along
// with the per-dimension breakdown. Weighted tasks use the weighted sum;
// unweighted tasks average the reported scores. Dimensions the judge did not
// score count as zero.
func OverallScore(verdict *Verdict, spec *TaskSpec) (float64, map[string]float64) {
	breakdown := make(map[string]float64)

	if len(spec.Dimensions) == 0 {
		// Single-score judges: average whatever was reported.
		if len(verdict.Scores) == 0 {
			return 0, breakdown
		}
		var sum float64
		for name, score := range verdict.Scores {
			breakdown[name] = score
			sum += score
		}
		return sum / float64(len(verdict.Scores)), breakdown
	}

	var overall float64
	for _, dim := range spec.Dimensions {
		score := verdict.Scores[dim.Name]
		breakdown[dim.Name] = score
		if spec.Weighted() {
			overall += dim.Weight * score
		} else {
			overall += score / float64(len(spec.Dimensions))
		}
	}
	return overall, breakdown
}

// Decide converts one (candidate, verdict) pair into a decision for the given
// 0-indexed iteration.
func (p *Policy) Decide(ctx context.Context, cand candidate.Candidate, verdict *Verdict, spec *TaskSpec, iteration int) *Decision {
	overall, breakdown := OverallScore(verdict, spec)
	decision := &Decision{
		OverallScore: overall,
		Breakdown:    breakdown,
	}

	if spec.FailOnUnfixable && verdict.HasUnfixable() {
		decision.Outcome = OutcomeFail
		decision.Reason = unfixableReason(verdict)
		return decision
	}

	if !verdict.Failed && overall >= spec.Threshold {
		decision.Outcome = OutcomeAccept
		decision.Reason = fmt.Sprintf("score %.1f meets threshold %.1f", overall, spec.Threshold)
		return decision
	}

	if !verdict.Failed && spec.LenientThreshold > 0 && iteration >= 1 && overall >= spec.LenientThreshold {
		decision.Outcome = OutcomeAccept
		decision.Reason = fmt.Sprintf("score %.1f meets lenient threshold %.1f after %d refinement(s)", overall, spec.LenientThreshold, iteration)
		return decision
	}

	if iteration+1 >= spec.MaxIterations {
		decision.Outcome = OutcomeFail
		decision.Reason = fmt.Sprintf("score %.1f below threshold %.1f with iteration budget exhausted", overall, spec.Threshold)
		return decision
	}

	decision.Outcome = OutcomeRetry
	decision.Reason = fmt.Sprintf("score %.1f below threshold %.1f, refining", overall, spec.Threshold)
	decision.Directive = p.directive(ctx, cand, verdict, spec)
	return decision
}

// directive builds refinement guidance, preferring the enhanced refiner and
// falling back to the table mapping on any failure.
func (p *Policy) directive(ctx context.Context, cand candidate.Candidate, verdict *Verdict, spec *TaskSpec) *Directive {
	if p.Refiner != nil {
		directive, err := p.Refiner.Refine(ctx, cand, verdict, spec)
		if err == nil && directive != nil && directive.Text != "" {
			return directive
		}
		if err != nil && p.Logger != nil {
			p.Logger("[policy] enhanced refinement failed, using table fallback: %v", err)
		}
	}
	return BuildDirective(verdict, p.Table)
}

func unfixableReason(verdict *Verdict) string {
	for _, issue := range verdict.IssuesBySeverity() {
		if issue.Unfixable {
			return fmt.Sprintf("unfixable %s issue in %s: %s", issue.Severity, issue.Category, issue.Message)
		}
	}
	return "unfixable issue flagged"
}
