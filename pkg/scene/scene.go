// Package scene implements the scene-development instantiation of the
// refinement loop: an accepted story is broken into a fixed number of
// video-ready scenes, each with a visual generation prompt, then critiqued
// across the authored quality criteria until the bar is met.
package scene

import (
	"encoding/json"
	"fmt"

	"github.com/storyloom/storyloom/pkg/candidate"
	"github.com/storyloom/storyloom/pkg/refine"
	"github.com/storyloom/storyloom/pkg/story"
)

// Scene is one shot-ready unit of the story.
type Scene struct {
	Number          int      `json:"number"`
	Title           string   `json:"title"`
	Description     string   `json:"description"`
	DurationSeconds float64  `json:"duration_seconds"`
	Characters      []string `json:"characters"`
	VisualPrompt    string   `json:"visual_prompt"`
}

// List is the structured artifact produced for a scene breakdown.
type List struct {
	Scenes []Scene `json:"scenes"`
}

// Validate checks structural constraints against the expected scene count.
func (l *List) Validate(expected int) error {
	if len(l.Scenes) == 0 {
		return fmt.Errorf("scene list is empty")
	}
	if expected > 0 && len(l.Scenes) != expected {
		return fmt.Errorf("scene list has %d scenes, expected %d", len(l.Scenes), expected)
	}
	for i, s := range l.Scenes {
		if s.Number != i+1 {
			return fmt.Errorf("scene %d numbered %d, scenes must be sequential from 1", i+1, s.Number)
		}
		if s.Description == "" {
			return fmt.Errorf("scene %d: description is required", s.Number)
		}
		if s.VisualPrompt == "" {
			return fmt.Errorf("scene %d: visual prompt is required", s.Number)
		}
		if s.DurationSeconds <= 0 {
			return fmt.Errorf("scene %d: duration must be positive, got %.1f", s.Number, s.DurationSeconds)
		}
	}
	return nil
}

// Candidate wraps a scene list as a refinement artifact.
type Candidate struct {
	candidate.Meta
	List List
}

// NewCandidate creates a first-version scene list candidate.
func NewCandidate(list List) (*Candidate, error) {
	body, err := marshalList(list)
	if err != nil {
		return nil, err
	}
	return &Candidate{Meta: candidate.NewMeta(candidate.KindSceneList, body), List: list}, nil
}

// Refined creates the next version of this candidate with a new scene list.
func (c *Candidate) Refined(list List) (*Candidate, error) {
	body, err := marshalList(list)
	if err != nil {
		return nil, err
	}
	return &Candidate{Meta: c.Meta.NextVersion(body), List: list}, nil
}

func marshalList(list List) (string, error) {
	body, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal scene list: %w", err)
	}
	return string(body), nil
}

// Task is the payload of a scene development session.
type Task struct {
	Story      story.Story
	Style      string
	SceneCount int
}

// Session defaults matching the scene critique's quality bar.
const (
	DefaultThreshold     = 8.0
	DefaultMaxIterations = 3
	DefaultSceneCount    = 5
)

// Criteria are the scored dimensions of a scene critique. Unweighted: the
// overall score is their plain average.
var Criteria = []refine.Dimension{
	{Name: "visual_flow"},
	{Name: "narrative_coherence"},
	{Name: "character_usage"},
	{Name: "pacing"},
	{Name: "prompt_quality"},
	{Name: "style_fit"},
}

// NewTaskSpec builds the refinement task for a scene breakdown.
func NewTaskSpec(st story.Story, style string, sceneCount, maxIterations int) *refine.TaskSpec {
	if sceneCount < 1 {
		sceneCount = DefaultSceneCount
	}
	if maxIterations < 1 {
		maxIterations = DefaultMaxIterations
	}
	return &refine.TaskSpec{
		Name:          "scenes",
		Payload:       &Task{Story: st, Style: style, SceneCount: sceneCount},
		Threshold:     DefaultThreshold,
		MaxIterations: maxIterations,
		Dimensions:    Criteria,
	}
}
