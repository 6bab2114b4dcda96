package videoqc

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/storyloom/storyloom/pkg/adapter"
	"github.com/storyloom/storyloom/pkg/candidate"
	"github.com/storyloom/storyloom/pkg/refine"
	"github.com/storyloom/storyloom/pkg/story"
)

// Prompt fragments applied by the deterministic rules.
const (
	anatomyNegatives = "AVOID: extra limbs, deformed hands, multiple hands, mutated fingers, extra fingers, distorted body"

	consistencyPrefix = "CHARACTER APPEARANCE: Exactly matching the provided reference images."
	consistencySuffix = "Exactly matching the reference character shown."

	motionCamera    = "Simple, slow, smooth camera movement."
	motionCharacter = "Minimal character motion, natural expressions."

	compoundSimplify = "Simplified composition, single clear subject, stable framing."
)

// Score floors below which a rule fires.
const (
	anatomyRuleFloor     = 8.0
	consistencyRuleFloor = 7.5
)

// RuleRefiner rewrites a generation prompt deterministically from the
// verdict. It never fails, so it backstops the model-based refiner.
type RuleRefiner struct{}

// Refine implements refine.Refiner. The returned directive's Text is the
// full regeneration prompt.
func (RuleRefiner) Refine(ctx context.Context, cand candidate.Candidate, verdict *refine.Verdict, spec *refine.TaskSpec) (*refine.Directive, error) {
	video, ok := cand.(*Candidate)
	if !ok {
		return nil, fmt.Errorf("rule refiner: unexpected candidate %T", cand)
	}

	prompt := video.Prompt
	var improvements []refine.Improvement

	if verdict.Scores[DimAnatomy] < anatomyRuleFloor {
		prompt = prompt + ". " + anatomyNegatives
		improvements = append(improvements, refine.Improvement{
			Category: DimAnatomy,
			Issue:    fmt.Sprintf("anatomy scored %.1f", verdict.Scores[DimAnatomy]),
			Change:   "added anatomical negative prompts",
		})
	}

	if verdict.Scores[DimConsistency] < consistencyRuleFloor {
		prompt = consistencyPrefix + " " + prompt + ". " + consistencySuffix
		improvements = append(improvements, refine.Improvement{
			Category: DimConsistency,
			Issue:    fmt.Sprintf("consistency scored %.1f", verdict.Scores[DimConsistency]),
			Change:   "strengthened reference adherence",
		})
	}

	if hasMotionIssue(verdict) {
		prompt = prompt + ". " + motionCamera + " " + motionCharacter
		improvements = append(improvements, refine.Improvement{
			Category: DimTechnical,
			Issue:    "motion quality below threshold",
			Change:   "simplified camera and character motion",
		})
	}

	if len(improvements) > 1 {
		prompt = prompt + ". " + compoundSimplify
		improvements = append(improvements, refine.Improvement{
			Category: "overall",
			Issue:    "multiple quality dimensions failing",
			Change:   "reduced scene complexity",
		})
	}

	if len(improvements) == 0 {
		// Nothing fired; nudge the prompt so the regeneration differs.
		prompt = prompt + ". High quality, detailed, well-lit."
		improvements = append(improvements, refine.Improvement{
			Category: "overall",
			Issue:    "below acceptance threshold without a dominant defect",
			Change:   "added general quality emphasis",
		})
	}

	return &refine.Directive{
		Text:         prompt,
		Priority:     refine.SeverityMajor,
		Improvements: improvements,
	}, nil
}

func hasMotionIssue(verdict *refine.Verdict) bool {
	for _, issue := range verdict.Issues {
		if issue.Category == DimTechnical && strings.Contains(issue.Message, "motion") {
			return true
		}
	}
	return false
}

const refineSystemPrompt = `You are a video generation prompt engineer. Given a
generation prompt and the quality problems found in the resulting clip,
rewrite the prompt to avoid those problems while preserving the scene's
content and style.

Respond with JSON:
{
  "improved_prompt": "<full rewritten prompt>",
  "improvements_applied": ["<short description of each change>"]
}`

// PromptRefiner rewrites a generation prompt with a language model, falling
// back to the deterministic rules when the model call or its output fails.
type PromptRefiner struct {
	Adapter adapter.Adapter
	Model   string
	Rules   RuleRefiner
	Logger  func(format string, args ...any)
}

// NewPromptRefiner creates a model-backed refiner with rule fallback.
func NewPromptRefiner(a adapter.Adapter, model string) *PromptRefiner {
	return &PromptRefiner{Adapter: a, Model: model, Logger: log.Printf}
}

// Refine implements refine.Refiner. It never returns an error: any model
// failure degrades to the deterministic rules.
func (r *PromptRefiner) Refine(ctx context.Context, cand candidate.Candidate, verdict *refine.Verdict, spec *refine.TaskSpec) (*refine.Directive, error) {
	video, ok := cand.(*Candidate)
	if !ok {
		return nil, fmt.Errorf("prompt refiner: unexpected candidate %T", cand)
	}

	directive, err := r.refineWithModel(ctx, video, verdict)
	if err != nil {
		r.log("[videoqc] model refinement failed, using rules: %v", err)
		return r.Rules.Refine(ctx, cand, verdict, spec)
	}
	return directive, nil
}

type refineReply struct {
	ImprovedPrompt      string   `json:"improved_prompt"`
	ImprovementsApplied []string `json:"improvements_applied"`
}

func (r *PromptRefiner) refineWithModel(ctx context.Context, video *Candidate, verdict *refine.Verdict) (*refine.Directive, error) {
	issues := make([]string, 0, len(verdict.Issues))
	for _, issue := range verdict.Issues {
		issues = append(issues, fmt.Sprintf("[%s/%s] %s", issue.Category, issue.Severity, issue.Message))
	}
	payload, err := json.Marshal(map[string]any{
		"current_prompt": video.Prompt,
		"scores":         verdict.Scores,
		"issues":         issues,
		"suggestions":    verdict.Suggestions,
	})
	if err != nil {
		return nil, err
	}

	prompt := refineSystemPrompt + "\n\n" + string(payload)
	resp, err := r.Adapter.Generate(ctx, r.Model, prompt)
	if err != nil {
		return nil, err
	}

	raw, err := story.ExtractJSON(resp.Content)
	if err != nil {
		return nil, err
	}
	var reply refineReply
	if err := json.Unmarshal([]byte(raw), &reply); err != nil {
		return nil, err
	}
	if strings.TrimSpace(reply.ImprovedPrompt) == "" {
		return nil, fmt.Errorf("empty improved prompt")
	}

	improvements := make([]refine.Improvement, 0, len(reply.ImprovementsApplied))
	for _, change := range reply.ImprovementsApplied {
		improvements = append(improvements, refine.Improvement{Category: "overall", Change: change})
	}
	return &refine.Directive{
		Text:         reply.ImprovedPrompt,
		Priority:     refine.SeverityMajor,
		Improvements: improvements,
	}, nil
}

func (r *PromptRefiner) log(format string, args ...any) {
	if r.Logger != nil {
		r.Logger(format, args...)
	}
}
