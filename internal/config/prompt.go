package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// PromptPolicy overrides the answer prompt. Zero fields keep the built-in
// defaults.
type PromptPolicy struct {
	SystemPrompt string   `yaml:"system_prompt"`
	Model        string   `yaml:"model"`
	Temperature  *float64 `yaml:"temperature"`
	TopK         int      `yaml:"top_k"`
	NoContext    string   `yaml:"no_context"`
	Fallback     string   `yaml:"fallback"`
}

var ErrInvalidPromptPolicy = errors.New("invalid prompt policy")

// LoadPromptPolicy reads a YAML policy file. An empty path yields an empty
// policy.
func LoadPromptPolicy(path string) (*PromptPolicy, error) {
	if path == "" {
		return &PromptPolicy{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompt file: %w", err)
	}

	return ParsePromptPolicy(data)
}

func ParsePromptPolicy(data []byte) (*PromptPolicy, error) {
	var p PromptPolicy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse prompt file: %w", err)
	}

	if p.Temperature != nil && (*p.Temperature < 0 || *p.Temperature > 2) {
		return nil, fmt.Errorf("%w: temperature %.2f out of range [0, 2]", ErrInvalidPromptPolicy, *p.Temperature)
	}
	if p.TopK < 0 {
		return nil, fmt.Errorf("%w: top_k must not be negative", ErrInvalidPromptPolicy)
	}

	return &p, nil
}
