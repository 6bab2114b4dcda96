package refine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/storyloom/storyloom/pkg/adapter"
	"github.com/storyloom/storyloom/pkg/candidate"
)

// scriptedProducer returns one scripted result per call.
type scriptedProducer struct {
	errs     []error
	calls    int
	feedback []*Directive
}

func (p *scriptedProducer) Produce(_ context.Context, spec *TaskSpec, prior candidate.Candidate, feedback *Directive) (candidate.Candidate, error) {
	call := p.calls
	p.calls++
	p.feedback = append(p.feedback, feedback)
	if call < len(p.errs) && p.errs[call] != nil {
		return nil, p.errs[call]
	}
	if prior != nil {
		tc := prior.(*textCandidate)
		return &textCandidate{Meta: tc.Meta.NextVersion(fmt.Sprintf("draft %d", call))}, nil
	}
	return newTextCandidate(fmt.Sprintf("draft %d", call)), nil
}

// scriptedJudge returns one scripted verdict per call.
type scriptedJudge struct {
	verdicts []*Verdict
	errs     []error
	calls    int
}

func (j *scriptedJudge) Name() string { return "scripted" }

func (j *scriptedJudge) Judge(_ context.Context, _ candidate.Candidate, _ *TaskSpec) (*Verdict, error) {
	call := j.calls
	j.calls++
	if call < len(j.errs) && j.errs[call] != nil {
		return nil, j.errs[call]
	}
	if call < len(j.verdicts) {
		return j.verdicts[call], nil
	}
	return &Verdict{Scores: map[string]float64{"story": 0}}, nil
}

func scored(scores ...float64) []*Verdict {
	verdicts := make([]*Verdict, len(scores))
	for i, s := range scores {
		verdicts[i] = &Verdict{Scores: map[string]float64{"story": s}}
	}
	return verdicts
}

func fastRetry() adapter.RetryConfig {
	return adapter.RetryConfig{
		MaxRetries:        2,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        2 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}
}

func newTestController(p Producer, j Judge) *Controller {
	ctrl := NewController(p, j)
	ctrl.Retry = fastRetry()
	ctrl.Logger = nil
	ctrl.Policy.Logger = nil
	return ctrl
}

func storySpec(maxIterations int) *TaskSpec {
	return &TaskSpec{Name: "story", Threshold: 8.0, MaxIterations: maxIterations}
}

func TestRunAcceptsAfterRefinement(t *testing.T) {
	producer := &scriptedProducer{}
	judge := &scriptedJudge{verdicts: scored(6.0, 8.0)}
	ctrl := newTestController(producer, judge)

	res, err := ctrl.Run(context.Background(), storySpec(3))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Outcome != OutcomeAccept {
		t.Fatalf("outcome = %s, want ACCEPT", res.Outcome)
	}
	if len(res.History) != 2 {
		t.Errorf("history length = %d, want 2", len(res.History))
	}
	if res.Score != 8.0 {
		t.Errorf("score = %v, want 8.0", res.Score)
	}
	if res.Candidate.Version() != 2 {
		t.Errorf("accepted candidate version = %d, want the refined version 2", res.Candidate.Version())
	}
	if producer.feedback[0] != nil {
		t.Error("first produce call must carry no feedback")
	}
	if producer.feedback[1] == nil || producer.feedback[1].Text == "" {
		t.Error("second produce call must carry the retry directive")
	}
}

func TestRunFailsWhenBudgetExhausted(t *testing.T) {
	producer := &scriptedProducer{}
	judge := &scriptedJudge{verdicts: scored(7.0, 7.2)}
	ctrl := newTestController(producer, judge)

	res, err := ctrl.Run(context.Background(), storySpec(2))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Outcome != OutcomeFail {
		t.Fatalf("outcome = %s, want FAIL", res.Outcome)
	}
	if len(res.History) != 2 {
		t.Errorf("history length = %d, want 2", len(res.History))
	}
	if res.Score != 7.2 {
		t.Errorf("best score = %v, want the higher later attempt 7.2", res.Score)
	}
	if res.Candidate.Version() != 2 {
		t.Errorf("returned candidate version = %d, want 2", res.Candidate.Version())
	}
}

func TestRunUnfixableStopsImmediately(t *testing.T) {
	producer := &scriptedProducer{}
	judge := &scriptedJudge{verdicts: []*Verdict{{
		Scores: map[string]float64{"story": 9.0},
		Issues: []Issue{{Category: "visual", Severity: SeverityCritical, Message: "source footage corrupt", Unfixable: true}},
	}}}
	ctrl := newTestController(producer, judge)

	spec := storySpec(3)
	spec.FailOnUnfixable = true

	res, err := ctrl.Run(context.Background(), spec)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Outcome != OutcomeFail {
		t.Fatalf("outcome = %s, want FAIL", res.Outcome)
	}
	if producer.calls != 1 {
		t.Errorf("producer called %d times, want 1; unfixable must not burn budget", producer.calls)
	}
}

func TestRunProducerFailureKeepsBestKnown(t *testing.T) {
	down := &adapter.AdapterError{Status: 503, Err: errors.New("render farm down")}
	producer := &scriptedProducer{errs: []error{nil, down, down, down}}
	judge := &scriptedJudge{verdicts: scored(7.0)}
	ctrl := newTestController(producer, judge)

	res, err := ctrl.Run(context.Background(), storySpec(3))
	if err != nil {
		t.Fatalf("collaborator failure after a candidate must not surface an error, got %v", err)
	}
	if res.Outcome != OutcomeInfraFailure {
		t.Fatalf("outcome = %s, want INFRA_FAILURE", res.Outcome)
	}
	if producer.calls != 4 {
		t.Errorf("producer called %d times, want 4 (initial success plus three failed attempts)", producer.calls)
	}
	if res.Candidate == nil || res.Candidate.Body() != "draft 0" {
		t.Error("result must carry the best candidate from before the failure")
	}
	if len(res.History) != 1 {
		t.Errorf("history length = %d, want 1", len(res.History))
	}
}

func TestRunProducerFailureBeforeFirstCandidate(t *testing.T) {
	producer := &scriptedProducer{errs: []error{errors.New("no API key")}}
	judge := &scriptedJudge{}
	ctrl := newTestController(producer, judge)

	res, err := ctrl.Run(context.Background(), storySpec(3))
	if err == nil {
		t.Fatal("failure before any candidate must return an error")
	}
	if res != nil {
		t.Errorf("result = %+v, want nil", res)
	}
}

func TestRunJudgeFailureRecordsIteration(t *testing.T) {
	producer := &scriptedProducer{}
	judge := &scriptedJudge{errs: []error{errors.New("vision model 404")}}
	ctrl := newTestController(producer, judge)

	var observed []IterationRecord
	ctrl.Observer = func(rec IterationRecord) { observed = append(observed, rec) }

	res, err := ctrl.Run(context.Background(), storySpec(3))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Outcome != OutcomeInfraFailure {
		t.Fatalf("outcome = %s, want INFRA_FAILURE", res.Outcome)
	}
	if len(res.History) != 1 {
		t.Fatalf("history length = %d, want the failed iteration recorded", len(res.History))
	}
	if !res.History[0].Verdict.Failed {
		t.Error("recorded verdict must be the distinguished failed variant")
	}
	if len(observed) != 1 {
		t.Errorf("observer saw %d records, want 1", len(observed))
	}
}

func TestRunRetriesTransientFailures(t *testing.T) {
	producer := &scriptedProducer{errs: []error{
		&adapter.AdapterError{Status: 429, Err: errors.New("rate limited")},
	}}
	judge := &scriptedJudge{verdicts: scored(9.0)}
	ctrl := newTestController(producer, judge)

	res, err := ctrl.Run(context.Background(), storySpec(3))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Outcome != OutcomeAccept {
		t.Fatalf("outcome = %s, want ACCEPT after transient retry", res.Outcome)
	}
	if producer.calls != 2 {
		t.Errorf("producer called %d times, want 2", producer.calls)
	}
}

func TestRunMonotonicBestAcrossRegressions(t *testing.T) {
	producer := &scriptedProducer{}
	judge := &scriptedJudge{verdicts: scored(7.5, 5.0, 6.0)}
	ctrl := newTestController(producer, judge)

	res, err := ctrl.Run(context.Background(), storySpec(3))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Outcome != OutcomeFail {
		t.Fatalf("outcome = %s, want FAIL", res.Outcome)
	}
	if res.Score != 7.5 {
		t.Errorf("best score = %v, want the early peak 7.5", res.Score)
	}
	if res.Candidate.Version() != 1 {
		t.Errorf("best candidate version = %d, want 1", res.Candidate.Version())
	}
}

func TestRunIterationLoggingIsOneBased(t *testing.T) {
	producer := &scriptedProducer{}
	judge := &scriptedJudge{verdicts: scored(6.0, 8.0)}
	ctrl := newTestController(producer, judge)

	var lines []string
	logf := func(format string, args ...any) { lines = append(lines, fmt.Sprintf(format, args...)) }
	ctrl.Logger = logf
	ctrl.Policy.Logger = logf

	if _, err := ctrl.Run(context.Background(), storySpec(3)); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	var sawOutcome bool
	for _, line := range lines {
		if strings.Contains(line, "iteration 0") {
			t.Errorf("log line %q uses zero-based numbering", line)
		}
		if strings.Contains(line, "iteration 2/3: ACCEPT") {
			sawOutcome = true
		}
	}
	if !sawOutcome {
		t.Errorf("no decision line numbered 2/3 in %q", lines)
	}
}

func TestRunInvalidSpec(t *testing.T) {
	ctrl := newTestController(&scriptedProducer{}, &scriptedJudge{})

	if _, err := ctrl.Run(context.Background(), &TaskSpec{Name: "bad", MaxIterations: 0}); err == nil {
		t.Error("zero iteration budget must be rejected")
	}
	spec := storySpec(3)
	spec.LenientThreshold = 9.0
	if _, err := ctrl.Run(context.Background(), spec); err == nil {
		t.Error("lenient threshold above threshold must be rejected")
	}
}

func TestRunCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ctrl := newTestController(&scriptedProducer{}, &scriptedJudge{})
	if _, err := ctrl.Run(ctx, storySpec(3)); err == nil {
		t.Error("cancellation before the first iteration must return an error")
	}
}
