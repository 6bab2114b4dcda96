package videoqc

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/storyloom/storyloom/pkg/refine"
)

// countingGenerator fabricates clip paths and counts renders.
type countingGenerator struct {
	calls atomic.Int32
	err   error
}

func (g *countingGenerator) Generate(_ context.Context, _ string, sceneNumber int) (string, error) {
	n := g.calls.Add(1)
	if g.err != nil {
		return "", g.err
	}
	return fmt.Sprintf("/tmp/scene-%d-take-%d.mp4", sceneNumber, n), nil
}

func passingAnalyzer() *stubAnalyzer {
	return &stubAnalyzer{reply: `{"score": 9.0, "issues": [], "suggestions": []}`}
}

func batchTasks(n int) []*Task {
	tasks := make([]*Task, 0, n)
	for i := 1; i <= n; i++ {
		tasks = append(tasks, &Task{
			SceneNumber:      i,
			SceneDescription: fmt.Sprintf("scene %d", i),
			Prompt:           fmt.Sprintf("prompt %d", i),
			ExpectedDuration: 8.0,
		})
	}
	return tasks
}

func TestValidateScenePassesFirstTry(t *testing.T) {
	gen := &countingGenerator{}
	v := NewValidator(gen, passingAnalyzer(), stubSampler{}, &stubProbe{metrics: goodMetrics()})
	v.Logger = nil

	res, err := v.ValidateScene(context.Background(), batchTasks(1)[0])
	if err != nil {
		t.Fatalf("ValidateScene() error = %v", err)
	}
	if !res.Accepted() {
		t.Fatalf("outcome = %s, want ACCEPT, reason: %s", res.Outcome, res.Reason)
	}
	if gen.calls.Load() != 1 {
		t.Errorf("generator calls = %d, want 1", gen.calls.Load())
	}
}

func TestValidateSceneRegeneratesOnLowScore(t *testing.T) {
	gen := &countingGenerator{}
	// Anatomy 1.0 keeps the weighted overall below even the lenient bar.
	v := NewValidator(gen, &stubAnalyzer{reply: `{
		"score": 1.0,
		"issues": [{"message": "extra limbs", "severity": "major", "unfixable": false}]
	}`}, stubSampler{}, &stubProbe{metrics: goodMetrics()})
	v.Logger = nil
	v.MaxIterations = 2

	res, err := v.ValidateScene(context.Background(), batchTasks(1)[0])
	if err != nil {
		t.Fatalf("ValidateScene() error = %v", err)
	}
	if res.Accepted() {
		t.Fatal("a clip scoring far below threshold must not pass")
	}
	if gen.calls.Load() != 2 {
		t.Errorf("generator calls = %d, want one regeneration", gen.calls.Load())
	}
	if len(res.History) != 2 {
		t.Errorf("history = %d, want 2", len(res.History))
	}
}

func TestValidateSceneUnfixableStopsEarly(t *testing.T) {
	gen := &countingGenerator{}
	v := NewValidator(gen, &stubAnalyzer{reply: `{
		"score": 3.0,
		"issues": [{"message": "reference character absent entirely", "severity": "critical", "unfixable": true}]
	}`}, stubSampler{}, &stubProbe{metrics: goodMetrics()})
	v.Logger = nil

	res, err := v.ValidateScene(context.Background(), batchTasks(1)[0])
	if err != nil {
		t.Fatalf("ValidateScene() error = %v", err)
	}
	if res.Accepted() {
		t.Fatal("unfixable issue must fail the scene")
	}
	if gen.calls.Load() != 1 {
		t.Errorf("generator calls = %d, want 1; unfixable must not regenerate", gen.calls.Load())
	}
}

func TestValidateSceneWithMockCollaborators(t *testing.T) {
	gen := &countingGenerator{}
	v := NewValidator(gen, MockAnalyzer{}, MockSampler{}, MockProbe{})
	v.Logger = nil

	res, err := v.ValidateScene(context.Background(), batchTasks(1)[0])
	if err != nil {
		t.Fatalf("ValidateScene() error = %v", err)
	}
	if !res.Accepted() {
		t.Fatalf("mock collaborators must pass a scene, got %s: %s", res.Outcome, res.Reason)
	}
	if gen.calls.Load() != 1 {
		t.Errorf("generator calls = %d, want 1", gen.calls.Load())
	}
}

// stalledAnalyzer blocks until its context ends.
type stalledAnalyzer struct{}

func (stalledAnalyzer) AnalyzeFrames(ctx context.Context, _ [][]byte, _ string, _ string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func TestValidateSceneBoundsStalledJudge(t *testing.T) {
	gen := &countingGenerator{}
	v := NewValidator(gen, stalledAnalyzer{}, stubSampler{}, &stubProbe{metrics: goodMetrics()})
	v.Logger = nil
	v.MaxIterations = 1
	v.JudgeTimeout = 10 * time.Millisecond

	done := make(chan struct{})
	var res *refine.Result
	var err error
	go func() {
		res, err = v.ValidateScene(context.Background(), batchTasks(1)[0])
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("judge timeout did not bound the stalled frame analysis")
	}
	if err != nil {
		t.Fatalf("ValidateScene() error = %v", err)
	}
	if res.Accepted() {
		t.Fatal("an unscored anatomy dimension must drag the scene below the bar")
	}
	var degraded bool
	for _, issue := range res.History[0].Verdict.Issues {
		if issue.Category == DimAnatomy {
			degraded = true
		}
	}
	if !degraded {
		t.Error("the timed-out judge must leave an issue in the merged verdict")
	}
}

func TestValidateAllAggregates(t *testing.T) {
	gen := &countingGenerator{}
	v := NewValidator(gen, passingAnalyzer(), stubSampler{}, &stubProbe{metrics: goodMetrics()})
	v.Logger = nil
	v.Concurrency = 3

	report, err := v.ValidateAll(context.Background(), batchTasks(4))
	if err != nil {
		t.Fatalf("ValidateAll() error = %v", err)
	}
	if !report.AllPassed() {
		t.Fatalf("report = %+v, want all passed", report)
	}
	if report.Passed != 4 || len(report.Scenes) != 4 {
		t.Errorf("passed = %d of %d scenes", report.Passed, len(report.Scenes))
	}
	for i, sr := range report.Scenes {
		if sr.SceneNumber != i+1 {
			t.Errorf("scene order disturbed: position %d holds scene %d", i, sr.SceneNumber)
		}
		if sr.Path == "" {
			t.Errorf("scene %d result has no clip path", sr.SceneNumber)
		}
	}
	if report.AverageScore <= 0 {
		t.Error("average score should be computed")
	}
}

func TestValidateAllIsolatesSceneFailures(t *testing.T) {
	gen := &countingGenerator{err: fmt.Errorf("render farm down")}
	v := NewValidator(gen, passingAnalyzer(), stubSampler{}, &stubProbe{metrics: goodMetrics()})
	v.Logger = nil

	report, err := v.ValidateAll(context.Background(), batchTasks(2))
	if err != nil {
		t.Fatalf("one scene failing must not fail the batch, got %v", err)
	}
	if report.Infra != 2 {
		t.Errorf("infra failures = %d, want 2", report.Infra)
	}
	if report.AllPassed() {
		t.Error("a batch with infra failures has not passed")
	}
}

func TestValidateAllEmpty(t *testing.T) {
	v := NewValidator(&countingGenerator{}, passingAnalyzer(), stubSampler{}, &stubProbe{metrics: goodMetrics()})
	v.Logger = nil

	if _, err := v.ValidateAll(context.Background(), nil); err == nil {
		t.Fatal("an empty batch must error")
	}
}
