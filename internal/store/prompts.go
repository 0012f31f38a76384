package store

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// FilePromptRegistry serves category prompts from a YAML file:
//
//	prompts:
//	  sales_call: |
//	    ...
type FilePromptRegistry struct {
	prompts map[string]string
}

type promptFile struct {
	Prompts map[string]string `yaml:"prompts"`
}

// LoadFilePromptRegistry reads a prompt file. Blank prompts are ignored.
func LoadFilePromptRegistry(path string) (*FilePromptRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read prompt file: %w", err)
	}
	return ParsePromptRegistry(data)
}

func ParsePromptRegistry(data []byte) (*FilePromptRegistry, error) {
	var f promptFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse prompt file: %w", err)
	}

	r := &FilePromptRegistry{prompts: make(map[string]string, len(f.Prompts))}
	for k, v := range f.Prompts {
		if strings.TrimSpace(v) == "" {
			continue
		}
		r.prompts[promptField(k)] = v
	}
	return r, nil
}

func (r *FilePromptRegistry) GetPromptForCategory(_ context.Context, callType string) (string, bool, error) {
	p, ok := r.prompts[promptField(callType)]
	return p, ok, nil
}

// Len returns the number of loaded prompts.
func (r *FilePromptRegistry) Len() int {
	return len(r.prompts)
}

// ChainRegistry asks each registry in order and returns the first hit.
// A registry error stops the lookup.
type ChainRegistry []PromptRegistry

func (c ChainRegistry) GetPromptForCategory(ctx context.Context, callType string) (string, bool, error) {
	for _, r := range c {
		if r == nil {
			continue
		}
		p, ok, err := r.GetPromptForCategory(ctx, callType)
		if err != nil {
			return "", false, err
		}
		if ok {
			return p, true, nil
		}
	}
	return "", false, nil
}
