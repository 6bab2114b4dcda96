package refine

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/storyloom/storyloom/pkg/adapter"
	"github.com/storyloom/storyloom/pkg/candidate"
)

// Producer creates or refines candidates. The prior candidate and feedback
// are nil on the first iteration.
type Producer interface {
	Produce(ctx context.Context, spec *TaskSpec, prior candidate.Candidate, feedback *Directive) (candidate.Candidate, error)
}

// Judge evaluates a candidate against the task's dimensions.
type Judge interface {
	Judge(ctx context.Context, cand candidate.Candidate, spec *TaskSpec) (*Verdict, error)

	// Name identifies the judge in logs and merged verdicts.
	Name() string
}

// Result is what a caller receives from a finished session. Candidate is the
// best seen across all iterations; it is nil only when the very first
// producer call failed. Collaborator failures are normalized into
// OutcomeInfraFailure rather than surfaced as raw errors.
type Result struct {
	Outcome   Outcome             `json:"outcome"`
	Candidate candidate.Candidate `json:"-"`
	Score     float64             `json:"score"`
	Reason    string              `json:"reason,omitempty"`
	History   []IterationRecord   `json:"history"`
}

// Accepted reports whether the session met its quality bar.
func (r *Result) Accepted() bool {
	return r.Outcome == OutcomeAccept
}

// Controller drives one session's produce/judge/decide cycles to completion
// under the task's iteration budget.
type Controller struct {
	Producer Producer
	Judge    Judge
	Policy   *Policy

	// Retry bounds call-site retries for collaborator infrastructure
	// failures. Zero value means adapter.DefaultRetryConfig.
	Retry adapter.RetryConfig

	// CallTimeout bounds each individual producer or judge call so a
	// collaborator that never returns cannot stall the session.
	CallTimeout time.Duration

	// Observer, when set, receives each iteration record as it is appended.
	Observer func(IterationRecord)

	Logger func(format string, args ...any)
}

// DefaultCallTimeout bounds collaborator calls when none is configured.
const DefaultCallTimeout = 2 * time.Minute

// NewController wires a controller with default policy, retry, and timeout.
func NewController(producer Producer, judge Judge) *Controller {
	return &Controller{
		Producer:    producer,
		Judge:       judge,
		Policy:      NewPolicy(),
		Retry:       adapter.DefaultRetryConfig(),
		CallTimeout: DefaultCallTimeout,
		Logger:      log.Printf,
	}
}

// Run executes the session. It returns an error only for invalid input or
// context cancellation before any result exists; collaborator failures end
// the session with OutcomeInfraFailure and the best-known candidate.
func (c *Controller) Run(ctx context.Context, spec *TaskSpec) (*Result, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if c.Producer == nil || c.Judge == nil {
		return nil, fmt.Errorf("task %s: producer and judge are required", spec.Name)
	}
	policy := c.Policy
	if policy == nil {
		policy = NewPolicy()
	}

	state := NewState(spec)
	var prior candidate.Candidate
	var feedback *Directive

	c.log("[%s] starting session: threshold=%.1f max_iterations=%d", spec.Name, spec.Threshold, spec.MaxIterations)

	for i := 0; i < spec.MaxIterations; i++ {
		if err := ctx.Err(); err != nil {
			// Cancellation at an iteration boundary: abandon cleanly, state
			// holds only fully recorded iterations.
			return c.abort(state, fmt.Sprintf("session cancelled: %v", err), err)
		}

		iterStart := time.Now()
		c.log("[%s] iteration %d/%d", spec.Name, i+1, spec.MaxIterations)

		cand, err := c.produce(ctx, spec, prior, feedback)
		if err != nil {
			return c.abort(state, fmt.Sprintf("producer failed after retries: %v", err), err)
		}

		verdict, err := c.judge(ctx, cand, spec)
		if err != nil {
			// History must stay gap-free: record the failed call as a
			// distinguished verdict/decision pair before aborting.
			verdict = FailedVerdict(err)
			decision := &Decision{
				Outcome: OutcomeInfraFailure,
				Reason:  fmt.Sprintf("judge failed after retries: %v", err),
			}
			rec := IterationRecord{
				Index:     i,
				Candidate: cand,
				Verdict:   verdict,
				Decision:  decision,
				Duration:  time.Since(iterStart),
				Timestamp: time.Now().UTC(),
			}
			state.Record(rec)
			if c.Observer != nil {
				c.Observer(rec)
			}
			return c.finish(state, decision.Reason), nil
		}

		decision := policy.Decide(ctx, cand, verdict, spec, i)

		rec := IterationRecord{
			Index:     i,
			Candidate: cand,
			Verdict:   verdict,
			Decision:  decision,
			Duration:  time.Since(iterStart),
			Timestamp: time.Now().UTC(),
		}
		state.Record(rec)
		if c.Observer != nil {
			c.Observer(rec)
		}
		c.log("[%s] iteration %d/%d: %s score=%.1f (%s)", spec.Name, i+1, spec.MaxIterations, decision.Outcome, decision.OverallScore, decision.Reason)

		if decision.Outcome.Terminal() {
			return c.finish(state, decision.Reason), nil
		}

		prior = cand
		feedback = decision.Directive
	}

	// Unreachable: the policy fails the last iteration, but keep the loop
	// guarantee explicit.
	return c.finish(state, "iteration budget exhausted"), nil
}

func (c *Controller) produce(ctx context.Context, spec *TaskSpec, prior candidate.Candidate, feedback *Directive) (candidate.Candidate, error) {
	var cand candidate.Candidate
	err := adapter.Retry(ctx, c.retryConfig(), func(ctx context.Context) error {
		callCtx, cancel := c.callContext(ctx)
		defer cancel()
		produced, err := c.Producer.Produce(callCtx, spec, prior, feedback)
		if err != nil {
			return err
		}
		if produced == nil {
			return fmt.Errorf("producer returned no candidate")
		}
		cand = produced
		return nil
	})
	return cand, err
}

func (c *Controller) judge(ctx context.Context, cand candidate.Candidate, spec *TaskSpec) (*Verdict, error) {
	var verdict *Verdict
	err := adapter.Retry(ctx, c.retryConfig(), func(ctx context.Context) error {
		callCtx, cancel := c.callContext(ctx)
		defer cancel()
		judged, err := c.Judge.Judge(callCtx, cand, spec)
		if err != nil {
			return err
		}
		if judged == nil {
			return fmt.Errorf("judge %s returned no verdict", c.Judge.Name())
		}
		verdict = judged
		return nil
	})
	return verdict, err
}

// abort ends a session on an infrastructure failure that produced no
// recordable iteration. With at least one successful iteration the caller
// still gets the best-known candidate.
func (c *Controller) abort(state *State, reason string, cause error) (*Result, error) {
	if state.Iterations() == 0 {
		return nil, fmt.Errorf("session aborted before first candidate: %w", cause)
	}
	if !state.Terminal() {
		state.Terminate(OutcomeInfraFailure)
	}
	return c.finish(state, reason), nil
}

func (c *Controller) finish(state *State, reason string) *Result {
	if !state.Terminal() {
		state.Terminate(OutcomeFail)
	}
	best, score := state.Best()
	result := &Result{
		Outcome:   state.Outcome(),
		Candidate: best,
		Score:     score,
		Reason:    reason,
		History:   state.History(),
	}
	c.log("[%s] session finished: %s best=%.1f after %d iteration(s)", state.spec.Name, result.Outcome, result.Score, state.Iterations())
	return result
}

func (c *Controller) retryConfig() adapter.RetryConfig {
	if c.Retry == (adapter.RetryConfig{}) {
		return adapter.DefaultRetryConfig()
	}
	return c.Retry
}

func (c *Controller) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := c.CallTimeout
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

func (c *Controller) log(format string, args ...any) {
	if c.Logger != nil {
		c.Logger(format, args...)
	}
}
