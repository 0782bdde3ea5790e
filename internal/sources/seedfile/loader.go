package seedfile

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/promptd/promptd/internal/domain"
)

// Loader handles loading and parsing of the prompt seed yaml.
type Loader struct {
	filePath string
}

// NewLoader creates a new seed loader
func NewLoader(filePath string) *Loader {
	return &Loader{
		filePath: filePath,
	}
}

// Load reads and parses the seed file into create inputs.
// Entries may inline their text or point at a sibling file via textFile,
// resolved relative to the seed file's directory.
func (l *Loader) Load() ([]domain.PromptInput, error) {
	data, err := os.ReadFile(l.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}

	var config SeedConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse seed yaml: %w", err)
	}

	return l.mapPrompts(config)
}

func (l *Loader) mapPrompts(config SeedConfig) ([]domain.PromptInput, error) {
	inputs := make([]domain.PromptInput, 0, len(config.Prompts))
	for i, sp := range config.Prompts {
		text := sp.Text
		if text == "" && sp.TextFile != "" {
			raw, err := os.ReadFile(filepath.Join(filepath.Dir(l.filePath), sp.TextFile))
			if err != nil {
				return nil, fmt.Errorf("failed to read text file for prompt %d (%s/%s): %w",
					i, sp.Namespace, sp.Name, err)
			}
			text = string(raw)
		}

		in := domain.PromptInput{
			Namespace: sp.Namespace,
			Name:      sp.Name,
			Version:   sp.Version,
			Lang:      sp.Lang,
			Text:      text,
			Tags:      sp.Tags,
			Priority:  sp.Priority,
			IsActive:  true,
			IsDefault: sp.IsDefault,
		}
		if sp.Version == 0 {
			in.Version = 1
		}
		if sp.IsActive != nil {
			in.IsActive = *sp.IsActive
		}

		if err := in.Validate(); err != nil {
			return nil, fmt.Errorf("invalid seed prompt %d (%s/%s): %w", i, sp.Namespace, sp.Name, err)
		}
		inputs = append(inputs, in)
	}
	return inputs, nil
}
