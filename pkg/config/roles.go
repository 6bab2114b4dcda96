package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Role names used by the pipeline.
const (
	RoleStoryProducer = "story_producer"
	RoleStoryCritic   = "story_critic"
	RoleSceneProducer = "scene_producer"
	RoleSceneCritic   = "scene_critic"
	RoleVision        = "vision"
	RoleRefiner       = "refiner"
)

// RoleConfig maps pipeline roles to adapter and model targets.
type RoleConfig struct {
	Roles   map[string]RoleTarget `yaml:"roles"`
	Default RoleTarget            `yaml:"default"`
}

// RoleTarget specifies an adapter and model combination.
type RoleTarget struct {
	Adapter string `yaml:"adapter"`
	Model   string `yaml:"model"`
}

// LoadRoleConfig reads role routing from a YAML file.
func LoadRoleConfig(path string) (*RoleConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg RoleConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// DefaultRoleConfig returns the default role routing. Creative production
// goes to Anthropic, critique to OpenAI so the judge never grades its own
// work, vision and prompt refinement to Google.
func DefaultRoleConfig() *RoleConfig {
	return &RoleConfig{
		Roles: map[string]RoleTarget{
			RoleStoryProducer: {Adapter: "anthropic", Model: "claude-sonnet-4-20250514"},
			RoleStoryCritic:   {Adapter: "openai", Model: "gpt-5.2-thinking"},
			RoleSceneProducer: {Adapter: "anthropic", Model: "claude-sonnet-4-20250514"},
			RoleSceneCritic:   {Adapter: "openai", Model: "gpt-5.2-thinking"},
			RoleVision:        {Adapter: "google", Model: "gemini-2.0-flash"},
			RoleRefiner:       {Adapter: "google", Model: "gemini-2.0-flash"},
		},
		Default: RoleTarget{Adapter: "anthropic", Model: "claude-sonnet-4-20250514"},
	}
}

// Validate checks that every role target is complete.
func (c *RoleConfig) Validate() error {
	for role, target := range c.Roles {
		if target.Adapter == "" || target.Model == "" {
			return fmt.Errorf("role %q needs both adapter and model", role)
		}
	}
	if c.Default.Adapter == "" || c.Default.Model == "" {
		return fmt.Errorf("default role needs both adapter and model")
	}
	return nil
}

// Target resolves a role to its adapter and model, falling back to the
// default for unknown roles.
func (c *RoleConfig) Target(role string) RoleTarget {
	if target, ok := c.Roles[role]; ok && target.Adapter != "" {
		return target
	}
	return c.Default
}
