package videoqc

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// FrameAnalyzer evaluates a set of video frames against an instruction and
// returns the model's JSON reply. Backed by a multimodal model in
// production; tests supply a deterministic stub.
type FrameAnalyzer interface {
	AnalyzeFrames(ctx context.Context, frames [][]byte, instruction string, contextJSON string) (string, error)
}

// GeminiAnalyzer analyzes frames with a Gemini multimodal model.
type GeminiAnalyzer struct {
	client *genai.Client
	model  string
}

// NewGeminiAnalyzer creates a frame analyzer for the given model.
func NewGeminiAnalyzer(ctx context.Context, apiKey, model string) (*GeminiAnalyzer, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("google API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create google client: %w", err)
	}
	return &GeminiAnalyzer{client: client, model: model}, nil
}

// AnalyzeFrames sends the frames and instruction to Gemini and returns the
// raw JSON reply. Temperature stays low for consistent validation.
func (g *GeminiAnalyzer) AnalyzeFrames(ctx context.Context, frames [][]byte, instruction string, contextJSON string) (string, error) {
	parts := make([]*genai.Part, 0, len(frames)+1)
	for _, frame := range frames {
		parts = append(parts, &genai.Part{
			InlineData: &genai.Blob{MIMEType: "image/jpeg", Data: frame},
		})
	}

	prompt := fmt.Sprintf("%s\n\nContext:\n%s\n\nYou are shown %d frames. Respond with a single JSON object only.",
		instruction, contextJSON, len(frames))
	parts = append(parts, &genai.Part{Text: prompt})

	temperature := float32(0.1)
	resp, err := g.client.Models.GenerateContent(ctx, g.model,
		[]*genai.Content{{Role: "user", Parts: parts}},
		&genai.GenerateContentConfig{
			Temperature:      &temperature,
			ResponseMIMEType: "application/json",
		})
	if err != nil {
		return "", fmt.Errorf("gemini frame analysis: %w", err)
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("gemini returned no candidates")
	}

	var text string
	for _, part := range resp.Candidates[0].Content.Parts {
		text += part.Text
	}
	return text, nil
}
