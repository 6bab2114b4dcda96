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

// Task is the payload of a story refinement session.
type Task struct {
	Idea  string
	Style string
}

// Session defaults observed to converge without over-iterating.
const (
	DefaultThreshold     = 7.5
	DefaultMaxIterations = 3
)

// NewTaskSpec builds the refinement task for a story idea.
func NewTaskSpec(idea, style string, maxIterations int) *refine.TaskSpec {
	if maxIterations < 1 {
		maxIterations = DefaultMaxIterations
	}
	return &refine.TaskSpec{
		Name:          "story",
		Payload:       &Task{Idea: idea, Style: style},
		Threshold:     DefaultThreshold,
		MaxIterations: maxIterations,
		Dimensions:    []refine.Dimension{{Name: "story"}},
	}
}

const generateSystemPrompt = `You are a creative writer specializing in visual storytelling.
Your goal is to create compelling story structures optimized for video generation,
with vivid, visually-rich narratives and memorable characters.

Your output MUST be a single valid JSON object of this exact shape:
{
  "characters": [
    {
      "name": "Character name",
      "sex": "Female or Male",
      "voice": "High-pitched, Low, Deep, Squeaky, or Booming",
      "description": "Detailed visual description: appearance, clothing, distinctive features, personality"
    }
  ],
  "setting": "Rich description of the world, time period, and environment with visual details",
  "plot": "Engaging narrative arc with clear beginning, middle, and end"
}

Rules:
- MAXIMUM 3 characters, each visually unique and memorable
- "sex" MUST be exactly "Female" or "Male"
- "voice" MUST be one of: "High-pitched", "Low", "Deep", "Squeaky", "Booming"
- Setting must be vivid and cinematically interesting
- Plot must be concise and suitable for short video format`

// Producer generates and refines story structures through an LLM adapter.
type Producer struct {
	Adapter adapter.Adapter
	Model   string
	Logger  func(format string, args ...any)
}

// NewProducer creates a story producer.
func NewProducer(a adapter.Adapter, model string) *Producer {
	return &Producer{Adapter: a, Model: model, Logger: log.Printf}
}

// Produce implements refine.Producer. The first call generates a fresh story
// from the task's idea; later calls refine the prior candidate using the
// feedback directive.
func (p *Producer) Produce(ctx context.Context, spec *refine.TaskSpec, prior candidate.Candidate, feedback *refine.Directive) (candidate.Candidate, error) {
	task, ok := spec.Payload.(*Task)
	if !ok {
		return nil, fmt.Errorf("story producer: unexpected payload %T", spec.Payload)
	}

	var prompt string
	var priorStory *Candidate
	if prior == nil {
		p.log("[story] generating initial story for idea: %.50s", task.Idea)
		prompt = generatePrompt(task)
	} else {
		priorStory, ok = prior.(*Candidate)
		if !ok {
			return nil, fmt.Errorf("story producer: unexpected prior candidate %T", prior)
		}
		p.log("[story] refining story v%d", prior.Version())
		prompt = refinePrompt(task, priorStory, feedback)
	}

	resp, err := p.Adapter.Generate(ctx, p.Model, generateSystemPrompt+"\n\n"+prompt)
	if err != nil {
		return nil, err
	}

	parsed, err := parseStory(resp.Content)
	if err != nil {
		// Malformed model output is worth a retry.
		return nil, &adapter.AdapterError{Temporary: true, Err: err}
	}

	if priorStory != nil {
		return priorStory.Refined(*parsed)
	}
	return NewCandidate(*parsed)
}

func generatePrompt(task *Task) string {
	return fmt.Sprintf(`Create a story structure for the following idea:

Idea: ***%s***
Visual Style: ***%s***

Focus on visually distinctive characters and a setting that will translate beautifully to %s video.`,
		task.Idea, task.Style, task.Style)
}

func refinePrompt(task *Task, prior *Candidate, feedback *refine.Directive) string {
	directive := "Raise overall quality across characters, setting, and plot."
	if feedback != nil {
		directive = feedback.Text
	}
	return fmt.Sprintf(`Refine this story structure based on critique feedback.

Original Idea: ***%s***
Visual Style: ***%s***

Current Story:
%s

Feedback to address:
%s

MAINTAIN the core concept and strong elements. Preserve character names unless specifically problematic. Keep at most %d characters.`,
		task.Idea, task.Style, prior.Body(), directive, MaxCharacters)
}

func parseStory(reply string) (*Story, error) {
	raw, err := ExtractJSON(reply)
	if err != nil {
		return nil, err
	}
	var story Story
	if err := json.Unmarshal([]byte(raw), &story); err != nil {
		return nil, fmt.Errorf("parse story JSON: %w", err)
	}
	if err := story.Validate(); err != nil {
		return nil, fmt.Errorf("invalid story: %w", err)
	}
	return &story, nil
}

func (p *Producer) log(format string, args ...any) {
	if p.Logger != nil {
		p.Logger(format, args...)
	}
}
