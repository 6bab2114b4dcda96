package videoqc

import (
	"context"
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/storyloom/storyloom/pkg/adapter"
	"github.com/storyloom/storyloom/pkg/refine"
)

// stubProbe returns fixed metrics.
type stubProbe struct {
	metrics VideoMetrics
	err     error
}

func (p *stubProbe) Probe(context.Context, string) (*VideoMetrics, error) {
	if p.err != nil {
		return nil, p.err
	}
	m := p.metrics
	return &m, nil
}

// stubSampler returns placeholder frames.
type stubSampler struct{}

func (stubSampler) SampleFrames(_ context.Context, _ string, count int) ([][]byte, error) {
	frames := make([][]byte, count)
	for i := range frames {
		frames[i] = []byte{0xFF, 0xD8, byte(i)}
	}
	return frames, nil
}

// stubAnalyzer returns a scripted JSON reply.
type stubAnalyzer struct {
	reply string
	err   error
}

func (a *stubAnalyzer) AnalyzeFrames(context.Context, [][]byte, string, string) (string, error) {
	return a.reply, a.err
}

func goodMetrics() VideoMetrics {
	return VideoMetrics{DurationSeconds: 8.0, MotionQuality: 0.9, VisualClarity: 0.9}
}

func videoTask() *Task {
	return &Task{
		SceneNumber:      1,
		SceneDescription: "Pip pads through the snow",
		Prompt:           "A small orange fox walking through snowy birch trees",
		ExpectedDuration: 8.0,
	}
}

func TestTechnicalScore(t *testing.T) {
	tests := []struct {
		name     string
		metrics  VideoMetrics
		expected float64
		want     float64
	}{
		{
			name:     "in tolerance",
			metrics:  VideoMetrics{DurationSeconds: 8.2, MotionQuality: 0.9, VisualClarity: 0.8},
			expected: 8.0,
			want:     10.0*0.3 + 9.0*0.35 + 8.0*0.35,
		},
		{
			name:     "duration out of tolerance",
			metrics:  VideoMetrics{DurationSeconds: 6.0, MotionQuality: 1.0, VisualClarity: 1.0},
			expected: 8.0,
			want:     6.0*0.3 + 10.0*0.35 + 10.0*0.35,
		},
		{
			name:     "boundary is within tolerance",
			metrics:  VideoMetrics{DurationSeconds: 8.5, MotionQuality: 1.0, VisualClarity: 1.0},
			expected: 8.0,
			want:     10.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TechnicalScore(&tt.metrics, tt.expected)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("TechnicalScore() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTechnicalJudgeFlagsDefects(t *testing.T) {
	judge := NewTechnicalJudge(&stubProbe{metrics: VideoMetrics{
		DurationSeconds: 5.0,
		MotionQuality:   0.5,
		VisualClarity:   0.6,
	}})
	judge.Logger = nil

	task := videoTask()
	spec := NewTaskSpec(task, 3)
	verdict, err := judge.Judge(context.Background(), NewCandidate("/tmp/clip.mp4", 1, task.Prompt), spec)
	if err != nil {
		t.Fatalf("Judge() error = %v", err)
	}
	if len(verdict.Issues) != 3 {
		t.Fatalf("issues = %d, want duration, motion, and clarity flagged", len(verdict.Issues))
	}
	for _, issue := range verdict.Issues {
		if issue.Category != DimTechnical {
			t.Errorf("issue category = %s, want %s", issue.Category, DimTechnical)
		}
	}
}

func TestNewTaskSpecDefaults(t *testing.T) {
	task := &Task{SceneNumber: 2, Prompt: "p"}
	spec := NewTaskSpec(task, 0)

	if spec.MaxIterations != DefaultMaxIterations {
		t.Errorf("max iterations = %d, want %d", spec.MaxIterations, DefaultMaxIterations)
	}
	if spec.LenientThreshold != DefaultLenientThreshold {
		t.Errorf("lenient threshold = %v", spec.LenientThreshold)
	}
	if !spec.FailOnUnfixable {
		t.Error("video validation must short-circuit on unfixable issues")
	}
	if task.ExpectedDuration != 8.0 {
		t.Errorf("expected duration default = %v, want 8.0", task.ExpectedDuration)
	}
	if err := spec.Validate(); err != nil {
		t.Errorf("spec invalid: %v", err)
	}
}

func TestAnatomyJudgeParsesVerdict(t *testing.T) {
	judge := NewAnatomyJudge(&stubAnalyzer{reply: `{
		"score": 6.5,
		"issues": [
			{"message": "left hand has six fingers", "severity": "major", "unfixable": false}
		],
		"suggestions": ["add anatomical negative prompts"]
	}`}, stubSampler{})
	judge.Logger = nil

	task := videoTask()
	verdict, err := judge.Judge(context.Background(), NewCandidate("/tmp/clip.mp4", 1, task.Prompt), NewTaskSpec(task, 3))
	if err != nil {
		t.Fatalf("Judge() error = %v", err)
	}
	if verdict.Scores[DimAnatomy] != 6.5 {
		t.Errorf("score = %v, want 6.5", verdict.Scores[DimAnatomy])
	}
	if len(verdict.Issues) != 1 || verdict.Issues[0].Category != DimAnatomy {
		t.Errorf("issues = %+v", verdict.Issues)
	}
}

func TestAnatomyJudgeUnknownSeverityDefaultsMajor(t *testing.T) {
	verdict, err := parseFrameVerdict(`{
		"score": 5.0,
		"issues": [{"message": "warped face", "severity": "catastrophic"}]
	}`, DimAnatomy)
	if err != nil {
		t.Fatalf("parseFrameVerdict() error = %v", err)
	}
	if verdict.Issues[0].Severity != refine.SeverityMajor {
		t.Errorf("severity = %s, want major default", verdict.Issues[0].Severity)
	}
}

func TestConsistencyJudgeNoReferences(t *testing.T) {
	judge := NewConsistencyJudge(&stubAnalyzer{err: fmt.Errorf("must not be called")}, stubSampler{})
	judge.Logger = nil

	task := videoTask()
	verdict, err := judge.Judge(context.Background(), NewCandidate("/tmp/clip.mp4", 1, task.Prompt), NewTaskSpec(task, 3))
	if err != nil {
		t.Fatalf("Judge() error = %v", err)
	}
	if verdict.Scores[DimConsistency] != refine.MaxScore {
		t.Errorf("score without references = %v, want full mark", verdict.Scores[DimConsistency])
	}
}

func TestRuleRefinerAnatomy(t *testing.T) {
	task := videoTask()
	cand := NewCandidate("/tmp/clip.mp4", 1, task.Prompt)
	verdict := &refine.Verdict{Scores: map[string]float64{
		DimAnatomy: 6.0, DimConsistency: 9.0, DimTechnical: 9.0,
	}}

	directive, err := RuleRefiner{}.Refine(context.Background(), cand, verdict, NewTaskSpec(task, 3))
	if err != nil {
		t.Fatalf("Refine() error = %v", err)
	}
	if !strings.Contains(directive.Text, anatomyNegatives) {
		t.Error("low anatomy score must add the negative prompts")
	}
	if !strings.Contains(directive.Text, task.Prompt) {
		t.Error("the original prompt content must be preserved")
	}
	if strings.Contains(directive.Text, consistencyPrefix) {
		t.Error("passing consistency must not trigger reference strengthening")
	}
}

func TestRuleRefinerCompound(t *testing.T) {
	task := videoTask()
	cand := NewCandidate("/tmp/clip.mp4", 1, task.Prompt)
	verdict := &refine.Verdict{
		Scores: map[string]float64{DimAnatomy: 6.0, DimConsistency: 6.0, DimTechnical: 7.0},
		Issues: []refine.Issue{
			{Category: DimTechnical, Severity: refine.SeverityMajor, Message: "poor motion quality 0.50"},
		},
	}

	directive, err := RuleRefiner{}.Refine(context.Background(), cand, verdict, NewTaskSpec(task, 3))
	if err != nil {
		t.Fatalf("Refine() error = %v", err)
	}
	for _, fragment := range []string{anatomyNegatives, consistencyPrefix, motionCamera, compoundSimplify} {
		if !strings.Contains(directive.Text, fragment) {
			t.Errorf("compound directive missing %q", fragment)
		}
	}
	if len(directive.Improvements) != 4 {
		t.Errorf("improvements = %d, want 3 rules plus the global simplification", len(directive.Improvements))
	}
}

func TestRuleRefinerAlwaysChangesPrompt(t *testing.T) {
	task := videoTask()
	cand := NewCandidate("/tmp/clip.mp4", 1, task.Prompt)
	verdict := &refine.Verdict{Scores: map[string]float64{
		DimAnatomy: 9.0, DimConsistency: 9.0, DimTechnical: 9.0,
	}}

	directive, err := RuleRefiner{}.Refine(context.Background(), cand, verdict, NewTaskSpec(task, 3))
	if err != nil {
		t.Fatalf("Refine() error = %v", err)
	}
	if directive.Text == task.Prompt {
		t.Error("regeneration must never reuse the identical prompt")
	}
}

// brokenAdapter errors on every call.
type brokenAdapter struct{}

func (brokenAdapter) Name() string     { return "broken" }
func (brokenAdapter) Models() []string { return nil }

func (brokenAdapter) Generate(context.Context, string, string) (*adapter.Response, error) {
	return nil, fmt.Errorf("model down")
}

// cannedAdapter returns one fixed reply.
type cannedAdapter struct {
	reply string
}

func (*cannedAdapter) Name() string     { return "canned" }
func (*cannedAdapter) Models() []string { return nil }

func (a *cannedAdapter) Generate(context.Context, string, string) (*adapter.Response, error) {
	return &adapter.Response{Content: a.reply}, nil
}

func TestPromptRefinerFallsBackToRules(t *testing.T) {
	refiner := NewPromptRefiner(brokenAdapter{}, "m")
	refiner.Logger = nil

	task := videoTask()
	cand := NewCandidate("/tmp/clip.mp4", 1, task.Prompt)
	verdict := &refine.Verdict{Scores: map[string]float64{
		DimAnatomy: 6.0, DimConsistency: 9.0, DimTechnical: 9.0,
	}}

	directive, err := refiner.Refine(context.Background(), cand, verdict, NewTaskSpec(task, 3))
	if err != nil {
		t.Fatalf("fallback must absorb model failures, got %v", err)
	}
	if !strings.Contains(directive.Text, anatomyNegatives) {
		t.Error("fallback directive must come from the deterministic rules")
	}
}

func TestPromptRefinerUsesModelReply(t *testing.T) {
	refiner := NewPromptRefiner(&cannedAdapter{reply: `{
		"improved_prompt": "A small orange fox, single subject, correct anatomy",
		"improvements_applied": ["rewrote for anatomical clarity"]
	}`}, "m")
	refiner.Logger = nil

	task := videoTask()
	cand := NewCandidate("/tmp/clip.mp4", 1, task.Prompt)
	verdict := &refine.Verdict{Scores: map[string]float64{DimAnatomy: 6.0}}

	directive, err := refiner.Refine(context.Background(), cand, verdict, NewTaskSpec(task, 3))
	if err != nil {
		t.Fatalf("Refine() error = %v", err)
	}
	if directive.Text != "A small orange fox, single subject, correct anatomy" {
		t.Errorf("directive text = %q", directive.Text)
	}
	if len(directive.Improvements) != 1 {
		t.Errorf("improvements = %d, want 1", len(directive.Improvements))
	}
}

func TestPromptRefinerEmptyReplyFallsBack(t *testing.T) {
	refiner := NewPromptRefiner(&cannedAdapter{reply: `{"improved_prompt": "  "}`}, "m")
	refiner.Logger = nil

	task := videoTask()
	cand := NewCandidate("/tmp/clip.mp4", 1, task.Prompt)
	verdict := &refine.Verdict{Scores: map[string]float64{DimAnatomy: 6.0}}

	directive, err := refiner.Refine(context.Background(), cand, verdict, NewTaskSpec(task, 3))
	if err != nil {
		t.Fatalf("Refine() error = %v", err)
	}
	if !strings.Contains(directive.Text, anatomyNegatives) {
		t.Error("an empty model prompt must fall back to the rules")
	}
}

func TestCandidateRegenerated(t *testing.T) {
	first := NewCandidate("/tmp/a.mp4", 3, "prompt one")
	second := first.Regenerated("/tmp/b.mp4", "prompt two")

	if second.ID() != first.ID() {
		t.Error("regeneration must preserve the artifact ID")
	}
	if second.Version() != 2 {
		t.Errorf("version = %d, want 2", second.Version())
	}
	if second.Path != "/tmp/b.mp4" || second.Prompt != "prompt two" {
		t.Errorf("regenerated candidate = %+v", second)
	}
	if first.Path != "/tmp/a.mp4" {
		t.Error("the prior candidate must stay untouched")
	}
}
