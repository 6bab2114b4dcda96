package adapter

import (
	"context"
	"strings"
	"testing"
)

func TestMockAdapterEchoesPrompt(t *testing.T) {
	a := NewMockAdapter()
	resp, err := a.Generate(context.Background(), "mock-1", "draft a story")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if !strings.Contains(resp.Content, "draft a story") {
		t.Errorf("echo response %q must contain the prompt", resp.Content)
	}
}

func TestMockAdapterCannedDefaultIsVerbatim(t *testing.T) {
	canned := `{"score": 8.4}`
	a := NewMockAdapterWithResponses(nil, canned)
	resp, err := a.Generate(context.Background(), "mock-1", "anything at all")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if resp.Content != canned {
		t.Errorf("canned response = %q, want %q with no prompt appended", resp.Content, canned)
	}
}

func TestMockAdapterPerPromptResponse(t *testing.T) {
	a := NewMockAdapterWithResponses(map[string]string{"ping": "pong"}, "fallback")
	resp, err := a.Generate(context.Background(), "mock-1", "ping")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if resp.Content != "pong" {
		t.Errorf("matched response = %q, want %q", resp.Content, "pong")
	}
}
