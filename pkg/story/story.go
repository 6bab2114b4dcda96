// Package story implements the idea-generation instantiation of the
// refinement loop: a natural-language story idea is expanded into characters,
// a setting, and a plot, then iteratively critiqued and refined until the
// quality bar is met.
package story

import (
	"encoding/json"
	"fmt"

	"github.com/storyloom/storyloom/pkg/candidate"
)

// Field constraints enforced on generated characters. Downstream voice and
// image synthesis only understand these values.
var (
	validSexes  = []string{"Female", "Male"}
	validVoices = []string{"High-pitched", "Low", "Deep", "Squeaky", "Booming"}
)

// MaxCharacters bounds the cast size a story may carry.
const MaxCharacters = 3

// Character is one member of a story's cast.
type Character struct {
	Name        string `json:"name"`
	Sex         string `json:"sex"`
	Voice       string `json:"voice"`
	Description string `json:"description"`
}

// Validate checks the character's constrained fields.
func (c *Character) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("character name is required")
	}
	if !contains(validSexes, c.Sex) {
		return fmt.Errorf("character %s: sex %q must be one of %v", c.Name, c.Sex, validSexes)
	}
	if !contains(validVoices, c.Voice) {
		return fmt.Errorf("character %s: voice %q must be one of %v", c.Name, c.Voice, validVoices)
	}
	if c.Description == "" {
		return fmt.Errorf("character %s: description is required", c.Name)
	}
	return nil
}

// Story is the structured artifact produced for a story idea.
type Story struct {
	Characters []Character `json:"characters"`
	Setting    string      `json:"setting"`
	Plot       string      `json:"plot"`
}

// Validate checks structural constraints on a generated story.
func (s *Story) Validate() error {
	if len(s.Characters) == 0 {
		return fmt.Errorf("story has no characters")
	}
	if len(s.Characters) > MaxCharacters {
		return fmt.Errorf("story has %d characters, maximum is %d", len(s.Characters), MaxCharacters)
	}
	for i := range s.Characters {
		if err := s.Characters[i].Validate(); err != nil {
			return err
		}
	}
	if s.Setting == "" {
		return fmt.Errorf("story setting is required")
	}
	if s.Plot == "" {
		return fmt.Errorf("story plot is required")
	}
	return nil
}

// Candidate wraps a story as a refinement artifact.
type Candidate struct {
	candidate.Meta
	Story Story
}

// NewCandidate creates a first-version story candidate.
func NewCandidate(story Story) (*Candidate, error) {
	body, err := marshalStory(story)
	if err != nil {
		return nil, err
	}
	return &Candidate{Meta: candidate.NewMeta(candidate.KindStory, body), Story: story}, nil
}

// Refined creates the next version of this candidate with a new story.
func (c *Candidate) Refined(story Story) (*Candidate, error) {
	body, err := marshalStory(story)
	if err != nil {
		return nil, err
	}
	return &Candidate{Meta: c.Meta.NextVersion(body), Story: story}, nil
}

func marshalStory(story Story) (string, error) {
	body, err := json.MarshalIndent(story, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal story: %w", err)
	}
	return string(body), nil
}

func contains(values []string, v string) bool {
	for _, value := range values {
		if value == v {
			return true
		}
	}
	return false
}
