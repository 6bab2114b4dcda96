package story

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/storyloom/storyloom/pkg/adapter"
	"github.com/storyloom/storyloom/pkg/candidate"
	"github.com/storyloom/storyloom/pkg/refine"
)

const criticSystemPrompt = `You are an expert story critic specializing in visual storytelling and video generation.
You provide constructive, specific feedback on story structures.

Your output MUST be a single valid JSON object:
{
  "score": 8.5,
  "strengths": ["Specific strength 1", "Specific strength 2"],
  "weaknesses": ["Specific weakness 1", "Specific weakness 2"],
  "suggestions": ["Specific actionable suggestion 1", "Specific actionable suggestion 2"]
}

Score must be between 0 and 10 (decimals allowed). Provide 2-4 entries per list.`

// Critic judges a story candidate with a single overall score.
type Critic struct {
	Adapter adapter.Adapter
	Model   string
	Logger  func(format string, args ...any)
}

// NewCritic creates a story critic.
func NewCritic(a adapter.Adapter, model string) *Critic {
	return &Critic{Adapter: a, Model: model, Logger: log.Printf}
}

// Name returns the judge identifier.
func (c *Critic) Name() string {
	return "story-critic"
}

// Judge implements refine.Judge.
func (c *Critic) Judge(ctx context.Context, cand candidate.Candidate, spec *refine.TaskSpec) (*refine.Verdict, error) {
	task, ok := spec.Payload.(*Task)
	if !ok {
		return nil, fmt.Errorf("story critic: unexpected payload %T", spec.Payload)
	}

	prompt := fmt.Sprintf(`Critique this story structure based on the original idea and visual style.

Original Idea: ***%s***
Visual Style: ***%s***

Generated Story:
%s

Evaluate based on:
1. Character quality (visual distinctiveness, depth, memorability)
2. Setting richness (visual interest, specificity, atmosphere)
3. Plot coherence (clear arc, engaging narrative, suitable for video format)
4. Visual storytelling potential
5. Alignment with the original idea
6. Compatibility with the %s style

Be specific and constructive. A score of %.1f or higher indicates excellent quality.`,
		task.Idea, task.Style, cand.Body(), task.Style, spec.Threshold)

	c.log("[story] critiquing story v%d", cand.Version())
	resp, err := c.Adapter.Generate(ctx, c.Model, criticSystemPrompt+"\n\n"+prompt)
	if err != nil {
		return nil, err
	}

	verdict, err := parseCritique(resp.Content)
	if err != nil {
		return nil, &adapter.AdapterError{Temporary: true, Err: err}
	}
	c.log("[story] critique score: %.1f/10", verdict.Scores["story"])
	return verdict, nil
}

type critiqueReply struct {
	Score       float64  `json:"score"`
	Strengths   []string `json:"strengths"`
	Weaknesses  []string `json:"weaknesses"`
	Suggestions []string `json:"suggestions"`
}

func parseCritique(reply string) (*refine.Verdict, error) {
	raw, err := ExtractJSON(reply)
	if err != nil {
		return nil, err
	}
	var parsed critiqueReply
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, fmt.Errorf("parse critique JSON: %w", err)
	}
	if parsed.Score < refine.MinScore || parsed.Score > refine.MaxScore {
		return nil, fmt.Errorf("critique score %.2f outside scale", parsed.Score)
	}
	return &refine.Verdict{
		Scores:      map[string]float64{"story": parsed.Score},
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
