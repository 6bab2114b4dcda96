// Package refine implements the iterative produce/judge/decide loop used to
// raise the quality of generated artifacts. A session repeatedly asks a
// Producer for a candidate, asks a Judge to score it, and applies a Policy to
// accept, retry with feedback, or give up within a bounded iteration budget,
// always tracking the best candidate seen.
package refine

import (
	"fmt"
	"math"
)

// Score scale used by judges.
const (
	MinScore = 0.0
	MaxScore = 10.0
)

// Dimension names one scored axis of a verdict and its weight in the overall
// score. Weights across a task's dimensions sum to 1.0; all-zero weights mean
// the overall score is the plain average of the reported scores.
type Dimension struct {
	Name   string  `json:"name"`
	Weight float64 `json:"weight,omitempty"`
}

// TaskSpec is the immutable description of one refinement session.
type TaskSpec struct {
	// Name identifies the task in logs and traces.
	Name string `json:"name"`

	// Payload is the task input, opaque to the loop. Producers know its shape.
	Payload any `json:"-"`

	// Threshold is the overall score at or above which a candidate is accepted.
	Threshold float64 `json:"threshold"`

	// LenientThreshold, when > 0, accepts a candidate scoring at or above it
	// once at least one refinement has already been attempted. Zero disables
	// the lenient branch.
	LenientThreshold float64 `json:"lenient_threshold,omitempty"`

	// MaxIterations bounds the produce/judge/decide cycles. Must be >= 1.
	MaxIterations int `json:"max_iterations"`

	// Dimensions are the named scoring axes the judge reports on.
	Dimensions []Dimension `json:"dimensions,omitempty"`

	// FailOnUnfixable short-circuits the remaining budget when a verdict
	// flags an issue marked unfixable. Off by default.
	FailOnUnfixable bool `json:"fail_on_unfixable,omitempty"`
}

// Validate checks the spec before a session starts.
func (s *TaskSpec) Validate() error {
	if s == nil {
		return fmt.Errorf("task spec is required")
	}
	if s.MaxIterations < 1 {
		return fmt.Errorf("task %s: max iterations must be >= 1, got %d", s.Name, s.MaxIterations)
	}
	if s.Threshold < MinScore || s.Threshold > MaxScore {
		return fmt.Errorf("task %s: threshold %.2f outside score scale [%g, %g]", s.Name, s.Threshold, MinScore, MaxScore)
	}
	if s.LenientThreshold < 0 || s.LenientThreshold > MaxScore {
		return fmt.Errorf("task %s: lenient threshold %.2f outside score scale", s.Name, s.LenientThreshold)
	}
	if s.LenientThreshold > s.Threshold {
		return fmt.Errorf("task %s: lenient threshold %.2f above threshold %.2f", s.Name, s.LenientThreshold, s.Threshold)
	}
	if sum := s.weightSum(); sum != 0 && math.Abs(sum-1.0) > 1e-6 {
		return fmt.Errorf("task %s: dimension weights sum to %.4f, want 1.0", s.Name, sum)
	}
	return nil
}

// Weighted reports whether the task carries explicit dimension weights.
func (s *TaskSpec) Weighted() bool {
	return s.weightSum() != 0
}

func (s *TaskSpec) weightSum() float64 {
	var sum float64
	for _, d := range s.Dimensions {
		sum += d.Weight
	}
	return sum
}
