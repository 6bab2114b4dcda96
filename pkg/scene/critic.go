package scene

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/storyloom/storyloom/pkg/adapter"
	"github.com/storyloom/storyloom/pkg/candidate"
	"github.com/storyloom/storyloom/pkg/refine"
	"github.com/storyloom/storyloom/pkg/story"
)

const criticSystemPrompt = `You are a quality critic for scene development, evaluating whether a scene
breakdown is ready for video generation.

Your output MUST be a single valid JSON object:
{
  "criteria_scores": {
    "visual_flow": 8.5,
    "narrative_coherence": 9.0,
    "character_usage": 8.0,
    "pacing": 7.5,
    "prompt_quality": 8.0,
    "style_fit": 8.5
  },
  "issues": [
    {"category": "pacing", "severity": "major", "message": "Specific problem"}
  ],
  "strengths": ["Specific strength"],
  "weaknesses": ["Specific weakness"],
  "suggestions": ["Specific actionable suggestion"]
}

Score each criterion 0-10. Severity is "minor", "major", or "critical".
Scene transitions that feel abrupt hurt visual_flow; prompts that depend on
other scenes hurt prompt_quality.`

// Critic judges a scene list across the six authored criteria.
type Critic struct {
	Adapter adapter.Adapter
	Model   string
	Logger  func(format string, args ...any)
}

// NewCritic creates a scene critic.
func NewCritic(a adapter.Adapter, model string) *Critic {
	return &Critic{Adapter: a, Model: model, Logger: log.Printf}
}

// Name returns the judge identifier.
func (c *Critic) Name() string {
	return "scene-critic"
}

// Judge implements refine.Judge.
func (c *Critic) Judge(ctx context.Context, cand candidate.Candidate, spec *refine.TaskSpec) (*refine.Verdict, error) {
	task, ok := spec.Payload.(*Task)
	if !ok {
		return nil, fmt.Errorf("scene critic: unexpected payload %T", spec.Payload)
	}

	prompt := fmt.Sprintf(`Critique this scene breakdown for the %s visual style.

Scenes:
%s

Judge every criterion, paying particular attention to how scenes connect and
whether each visual prompt can be generated independently. A criterion score
of %.1f or higher means ready for production.`, task.Style, cand.Body(), spec.Threshold)

	c.log("[scenes] critiquing scene list v%d", cand.Version())
	resp, err := c.Adapter.Generate(ctx, c.Model, criticSystemPrompt+"\n\n"+prompt)
	if err != nil {
		return nil, err
	}

	verdict, err := parseCritique(resp.Content)
	if err != nil {
		return nil, &adapter.AdapterError{Temporary: true, Err: err}
	}
	return verdict, nil
}

type critiqueReply struct {
	CriteriaScores map[string]float64 `json:"criteria_scores"`
	Issues         []refine.Issue     `json:"issues"`
	Strengths      []string           `json:"strengths"`
	Weaknesses     []string           `json:"weaknesses"`
	Suggestions    []string           `json:"suggestions"`
}

func parseCritique(reply string) (*refine.Verdict, error) {
	raw, err := story.ExtractJSON(reply)
	if err != nil {
		return nil, err
	}
	var parsed critiqueReply
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, fmt.Errorf("parse scene critique JSON: %w", err)
	}
	if len(parsed.CriteriaScores) == 0 {
		return nil, fmt.Errorf("scene critique reported no criteria scores")
	}
	for name, score := range parsed.CriteriaScores {
		if score < refine.MinScore || score > refine.MaxScore {
			return nil, fmt.Errorf("criterion %s score %.2f outside scale", name, score)
		}
	}
	return &refine.Verdict{
		Scores:      parsed.CriteriaScores,
		Issues:      parsed.Issues,
		Strengths:   parsed.Strengths,
		Weaknesses:  parsed.Weaknesses,
		Suggestions: parsed.Suggestions,
	}, nil
}

func (c *Critic) log(format string, args ...any) {
	if c.Logger != nil {
		c.Logger(format, args...)
	}
}
