package refine

import (
	"context"

	"github.com/storyloom/storyloom/pkg/candidate"
)

// Refiner synthesizes refinement directives from a verdict, typically by
// delegating to an LLM for higher-quality natural-language guidance.
// Implementations may fail freely: the policy catches any error at a single
// boundary and falls back to the deterministic table mapping.
type Refiner interface {
	Refine(ctx context.Context, cand candidate.Candidate, verdict *Verdict, spec *TaskSpec) (*Directive, error)
}

// RefinerFunc adapts a function to the Refiner interface.
type RefinerFunc func(ctx context.Context, cand candidate.Candidate, verdict *Verdict, spec *TaskSpec) (*Directive, error)

// Refine calls f.
func (f RefinerFunc) Refine(ctx context.Context, cand candidate.Candidate, verdict *Verdict, spec *TaskSpec) (*Directive, error) {
	return f(ctx, cand, verdict, spec)
}
