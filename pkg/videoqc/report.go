package videoqc

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/storyloom/storyloom/pkg/refine"
)

// DefaultJudgeTimeout bounds one frame-analysis judge call. Shorter than the
// controller's call timeout so one stalled vision call degrades that judge
// instead of aborting the whole merged verdict.
const DefaultJudgeTimeout = 90 * time.Second

// Validator runs quality-validation sessions for generated clips. Each scene
// gets an independent session so one scene's failure never blocks another.
type Validator struct {
	Generator Generator
	Analyzer  FrameAnalyzer
	Sampler   FrameSampler
	Probe     MetricsProbe

	// Refiner rewrites regeneration prompts. Nil falls back to the
	// deterministic rules.
	Refiner refine.Refiner

	// MaxIterations caps each scene's session. Zero means the default.
	MaxIterations int

	// JudgeTimeout bounds each judge within the merged verdict. Zero means
	// DefaultJudgeTimeout.
	JudgeTimeout time.Duration

	// Concurrency caps parallel scene sessions. Zero means 2; video
	// generation is the expensive call, not the judges.
	Concurrency int

	Observer func(refine.IterationRecord)
	Logger   func(format string, args ...any)
}

// NewValidator wires a validator from its collaborators.
func NewValidator(gen Generator, analyzer FrameAnalyzer, sampler FrameSampler, probe MetricsProbe) *Validator {
	return &Validator{
		Generator: gen,
		Analyzer:  analyzer,
		Sampler:   sampler,
		Probe:     probe,
		Refiner:   RuleRefiner{},
		Logger:    log.Printf,
	}
}

// SceneResult is the outcome of one scene's validation session.
type SceneResult struct {
	SceneNumber int             `json:"scene_number"`
	Outcome     refine.Outcome  `json:"outcome"`
	Score       float64         `json:"score"`
	Path        string          `json:"path,omitempty"`
	Iterations  int             `json:"iterations"`
	Reason      string          `json:"reason,omitempty"`
}

// QualityReport summarizes a batch of scene validations.
type QualityReport struct {
	Scenes       []SceneResult `json:"scenes"`
	Passed       int           `json:"passed"`
	Failed       int           `json:"failed"`
	Infra        int           `json:"infra_failures"`
	AverageScore float64       `json:"average_score"`
}

// AllPassed reports whether every scene met its quality bar.
func (r *QualityReport) AllPassed() bool {
	return r.Failed == 0 && r.Infra == 0 && len(r.Scenes) > 0
}

// ValidateScene runs one scene's generate/judge/regenerate session.
func (v *Validator) ValidateScene(ctx context.Context, task *Task) (*refine.Result, error) {
	policy := refine.NewPolicy()
	policy.Refiner = v.Refiner
	if policy.Refiner == nil {
		policy.Refiner = RuleRefiner{}
	}

	judge := refine.NewMultiJudge(
		NewAnatomyJudge(v.Analyzer, v.Sampler),
		NewConsistencyJudge(v.Analyzer, v.Sampler),
		NewTechnicalJudge(v.Probe),
	)
	judge.PerJudgeTimeout = v.JudgeTimeout
	if judge.PerJudgeTimeout <= 0 {
		judge.PerJudgeTimeout = DefaultJudgeTimeout
	}

	ctrl := refine.NewController(NewProducer(v.Generator), judge)
	ctrl.Policy = policy
	ctrl.Observer = v.Observer
	if v.Logger != nil {
		ctrl.Logger = v.Logger
	}

	return ctrl.Run(ctx, NewTaskSpec(task, v.MaxIterations))
}

// ValidateAll validates every task concurrently and aggregates the report.
// A scene whose session errors before producing any clip is reported as an
// infrastructure failure rather than failing the whole batch.
func (v *Validator) ValidateAll(ctx context.Context, tasks []*Task) (*QualityReport, error) {
	if len(tasks) == 0 {
		return nil, fmt.Errorf("no scenes to validate")
	}

	concurrency := v.Concurrency
	if concurrency < 1 {
		concurrency = 2
	}

	results := make([]SceneResult, len(tasks))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, task := range tasks {
		g.Go(func() error {
			res, err := v.ValidateScene(gctx, task)
			sr := SceneResult{SceneNumber: task.SceneNumber}
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				sr.Outcome = refine.OutcomeInfraFailure
				sr.Reason = err.Error()
				v.log("[videoqc] scene %d session failed: %v", task.SceneNumber, err)
			} else {
				sr.Outcome = res.Outcome
				sr.Score = res.Score
				sr.Iterations = len(res.History)
				sr.Reason = res.Reason
				if video, ok := res.Candidate.(*Candidate); ok {
					sr.Path = video.Path
				}
			}
			mu.Lock()
			results[i] = sr
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report := &QualityReport{Scenes: results}
	var total float64
	var scored int
	for _, sr := range results {
		switch sr.Outcome {
		case refine.OutcomeAccept:
			report.Passed++
		case refine.OutcomeInfraFailure:
			report.Infra++
		default:
			report.Failed++
		}
		if sr.Score > 0 {
			total += sr.Score
			scored++
		}
	}
	if scored > 0 {
		report.AverageScore = total / float64(scored)
	}
	v.log("[videoqc] batch done: %d passed, %d failed, %d infra of %d scenes",
		report.Passed, report.Failed, report.Infra, len(results))
	return report, nil
}

func (v *Validator) log(format string, args ...any) {
	if v.Logger != nil {
		v.Logger(format, args...)
	}
}
