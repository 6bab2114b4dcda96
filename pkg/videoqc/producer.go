package videoqc

import (
	"context"
	"fmt"
	"log"

	"github.com/storyloom/storyloom/pkg/candidate"
	"github.com/storyloom/storyloom/pkg/refine"
)

// Generator renders a video clip from a prompt and returns the output path.
// Implementations wrap the actual video model; tests supply stubs.
type Generator interface {
	Generate(ctx context.Context, prompt string, sceneNumber int) (string, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, prompt string, sceneNumber int) (string, error)

// Generate implements Generator.
func (f GeneratorFunc) Generate(ctx context.Context, prompt string, sceneNumber int) (string, error) {
	return f(ctx, prompt, sceneNumber)
}

// Producer renders video candidates. On retries the directive's text is the
// complete regeneration prompt; the prior clip is never edited in place.
type Producer struct {
	Generator Generator
	Logger    func(format string, args ...any)
}

// NewProducer creates a video producer over the given generator.
func NewProducer(gen Generator) *Producer {
	return &Producer{Generator: gen, Logger: log.Printf}
}

// Produce implements refine.Producer.
func (p *Producer) Produce(ctx context.Context, spec *refine.TaskSpec, prior candidate.Candidate, feedback *refine.Directive) (candidate.Candidate, error) {
	task, ok := spec.Payload.(*Task)
	if !ok {
		return nil, fmt.Errorf("video producer: unexpected payload %T", spec.Payload)
	}

	prompt := task.Prompt
	if feedback != nil && feedback.Text != "" {
		prompt = feedback.Text
	}

	path, err := p.Generator.Generate(ctx, prompt, task.SceneNumber)
	if err != nil {
		return nil, fmt.Errorf("generate scene %d: %w", task.SceneNumber, err)
	}
	p.log("[videoqc] generated scene %d clip at %s", task.SceneNumber, path)

	if priorVideo, ok := prior.(*Candidate); ok {
		return priorVideo.Regenerated(path, prompt), nil
	}
	return NewCandidate(path, task.SceneNumber, prompt), nil
}

func (p *Producer) log(format string, args ...any) {
	if p.Logger != nil {
		p.Logger(format, args...)
	}
}
