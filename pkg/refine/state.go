package refine

import (
	"fmt"
	"strings"
	"time"

	"github.com/storyloom/storyloom/pkg/candidate"
)

// IterationRecord is the append-only log entry for one completed
// produce/judge/decide cycle.
type IterationRecord struct {
	Index     int                 `json:"index"`
	Candidate candidate.Candidate `json:"-"`
	Verdict   *Verdict            `json:"verdict"`
	Decision  *Decision           `json:"decision"`
	Duration  time.Duration       `json:"duration"`
	Timestamp time.Time           `json:"timestamp"`
}

// State owns one session's mutable bookkeeping: the iteration history and the
// best candidate seen. It holds no business logic beyond truth-keeping and is
// owned exclusively by one controller for the session's lifetime.
type State struct {
	spec      *TaskSpec
	records   []IterationRecord
	best      candidate.Candidate
	bestScore float64
	terminal  bool
	outcome   Outcome
}

// NewState creates the bookkeeping for a fresh session.
func NewState(spec *TaskSpec) *State {
	return &State{spec: spec}
}

// Record appends an iteration record and updates best-candidate tracking.
// The first record always seeds the best candidate; afterwards only a
// strictly greater overall score replaces it, so ties keep the earlier one.
// Calling Record on a terminal state is a contract violation and panics.
func (s *State) Record(rec IterationRecord) {
	if s.terminal {
		panic(fmt.Sprintf("refine: Record called on terminal session (task %s, iteration %d)", s.spec.Name, rec.Index))
	}
	if rec.Index != len(s.records) {
		panic(fmt.Sprintf("refine: iteration %d recorded out of order, want %d", rec.Index, len(s.records)))
	}

	s.records = append(s.records, rec)
	s.best, s.bestScore = updateBest(s.best, s.bestScore, rec.Candidate, rec.Decision.OverallScore)

	if rec.Decision.Outcome.Terminal() {
		s.terminal = true
		s.outcome = rec.Decision.Outcome
	}
}

// Terminate marks the session ended with the given outcome without a final
// decision record, used when a collaborator failure aborts the loop.
func (s *State) Terminate(outcome Outcome) {
	s.terminal = true
	s.outcome = outcome
}

// updateBest is the pure best-so-far rule: replace only on strictly greater
// score, and always adopt the first candidate seen.
func updateBest(best candidate.Candidate, bestScore float64, cand candidate.Candidate, score float64) (candidate.Candidate, float64) {
	if best == nil || score > bestScore {
		return cand, score
	}
	return best, bestScore
}

// Iterations returns the number of completed iterations.
func (s *State) Iterations() int {
	return len(s.records)
}

// Terminal reports whether the session has ended.
func (s *State) Terminal() bool {
	return s.terminal
}

// Outcome returns the terminal outcome, empty until the session ends.
func (s *State) Outcome() Outcome {
	return s.outcome
}

// Best returns the highest-scoring candidate seen and its overall score.
// Nil until the first iteration is recorded.
func (s *State) Best() (candidate.Candidate, float64) {
	return s.best, s.bestScore
}

// History returns a read-only copy of the ordered iteration records.
func (s *State) History() []IterationRecord {
	history := make([]IterationRecord, len(s.records))
	copy(history, s.records)
	return history
}

// Summary renders a human-readable digest of the session so far.
func (s *State) Summary() string {
	if len(s.records) == 0 {
		return "no iterations yet"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "=== %s: %d iteration(s) ===\n", s.spec.Name, len(s.records))
	for _, rec := range s.records {
		fmt.Fprintf(&sb, "iteration %d: %s score %.1f/10\n", rec.Index, rec.Decision.Outcome, rec.Decision.OverallScore)
		if len(rec.Verdict.Strengths) > 0 {
			fmt.Fprintf(&sb, "  strengths: %s\n", strings.Join(firstN(rec.Verdict.Strengths, 2), "; "))
		}
		if len(rec.Verdict.Weaknesses) > 0 {
			fmt.Fprintf(&sb, "  weaknesses: %s\n", strings.Join(firstN(rec.Verdict.Weaknesses, 2), "; "))
		}
	}
	if s.best != nil {
		fmt.Fprintf(&sb, "best: %s v%d score %.1f/10\n", s.best.Hash(), s.best.Version(), s.bestScore)
	}
	return sb.String()
}

func firstN(values []string, n int) []string {
	if len(values) <= n {
		return values
	}
	return values[:n]
}
