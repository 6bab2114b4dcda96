package adapter

import (
	"context"
	"fmt"
)

// MockAdapter returns deterministic responses for local runs and tests.
type MockAdapter struct {
	responses       map[string]string
	defaultResponse string
	echoPrompt      bool
	Usage           *Usage
}

// NewMockAdapter creates a mock adapter that echoes the prompt back, useful
// for inspecting what a collaborator would have been asked.
func NewMockAdapter() *MockAdapter {
	return &MockAdapter{
		responses:       make(map[string]string),
		defaultResponse: "mock response:",
		echoPrompt:      true,
	}
}

// NewMockAdapterWithResponses creates a mock adapter with predefined
// responses. Unmatched prompts get the default response verbatim, so callers
// that parse structured replies can run against a canned one.
func NewMockAdapterWithResponses(responses map[string]string, defaultResponse string) *MockAdapter {
	if defaultResponse == "" {
		defaultResponse = "mock response:"
	}
	return &MockAdapter{responses: responses, defaultResponse: defaultResponse}
}

// Name returns the adapter identifier.
func (a *MockAdapter) Name() string {
	return "mock"
}

// Models returns the list of supported mock models.
func (a *MockAdapter) Models() []string {
	return []string{"mock-1"}
}

// Generate returns a deterministic response for the prompt.
func (a *MockAdapter) Generate(_ context.Context, model string, prompt string) (*Response, error) {
	if response, ok := a.responses[prompt]; ok {
		return &Response{Content: response, Usage: a.Usage}, nil
	}
	content := a.defaultResponse
	if a.echoPrompt {
		content = fmt.Sprintf("%s\n%s", a.defaultResponse, prompt)
	}
	return &Response{Content: content, Usage: a.Usage}, nil
}
