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

const producerSystemPrompt = `You are a scene planner for AI video generation.
You break story structures into short, visually concrete scenes that flow smoothly
into each other and can each be generated as a single video clip.

Your output MUST be a single valid JSON object:
{
  "scenes": [
    {
      "number": 1,
      "title": "Short scene title",
      "description": "What happens in the scene",
      "duration_seconds": 8.0,
      "characters": ["Names of characters present"],
      "visual_prompt": "Self-contained generation prompt: subjects, action, camera, lighting, style"
    }
  ]
}

Rules:
- Scenes are numbered sequentially from 1
- Every visual prompt must stand alone: restate character appearance, never reference other scenes
- Keep motion simple enough for an 8 second clip
- Adjacent scenes must connect visually and narratively`

// Producer develops scene breakdowns from a story through an LLM adapter.
type Producer struct {
	Adapter adapter.Adapter
	Model   string
	Logger  func(format string, args ...any)
}

// NewProducer creates a scene producer.
func NewProducer(a adapter.Adapter, model string) *Producer {
	return &Producer{Adapter: a, Model: model, Logger: log.Printf}
}

// Produce implements refine.Producer.
func (p *Producer) Produce(ctx context.Context, spec *refine.TaskSpec, prior candidate.Candidate, feedback *refine.Directive) (candidate.Candidate, error) {
	task, ok := spec.Payload.(*Task)
	if !ok {
		return nil, fmt.Errorf("scene producer: unexpected payload %T", spec.Payload)
	}

	storyJSON, err := json.MarshalIndent(task.Story, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal story: %w", err)
	}

	var prompt string
	var priorList *Candidate
	if prior == nil {
		p.log("[scenes] developing %d scenes", task.SceneCount)
		prompt = fmt.Sprintf(`Break this story into exactly %d scenes in the %s visual style.

Story:
%s`, task.SceneCount, task.Style, storyJSON)
	} else {
		priorList, ok = prior.(*Candidate)
		if !ok {
			return nil, fmt.Errorf("scene producer: unexpected prior candidate %T", prior)
		}
		directive := "Raise quality across every critique criterion."
		if feedback != nil {
			directive = feedback.Text
		}
		p.log("[scenes] refining scene list v%d", prior.Version())
		prompt = fmt.Sprintf(`Refine this scene breakdown based on critique feedback. Keep exactly %d scenes.

Story:
%s

Current scenes:
%s

Feedback to address:
%s`, task.SceneCount, storyJSON, prior.Body(), directive)
	}

	resp, err := p.Adapter.Generate(ctx, p.Model, producerSystemPrompt+"\n\n"+prompt)
	if err != nil {
		return nil, err
	}

	parsed, err := parseList(resp.Content, task.SceneCount)
	if err != nil {
		return nil, &adapter.AdapterError{Temporary: true, Err: err}
	}

	if priorList != nil {
		return priorList.Refined(*parsed)
	}
	return NewCandidate(*parsed)
}

func parseList(reply string, expected int) (*List, error) {
	raw, err := story.ExtractJSON(reply)
	if err != nil {
		return nil, err
	}
	var list List
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		return nil, fmt.Errorf("parse scene list JSON: %w", err)
	}
	if err := list.Validate(expected); err != nil {
		return nil, fmt.Errorf("invalid scene list: %w", err)
	}
	return &list, nil
}

func (p *Producer) log(format string, args ...any) {
	if p.Logger != nil {
		p.Logger(format, args...)
	}
}
