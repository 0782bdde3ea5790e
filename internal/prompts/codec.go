package prompts

import (
	"encoding/json"
	"fmt"

	"github.com/promptd/promptd/internal/domain"
)

// encodePrompt serializes a prompt into the store's value representation.
// The wire field names come from the domain struct tags and are a contract.
func encodePrompt(p *domain.Prompt) ([]byte, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal prompt %s: %w", p.ID, err)
	}
	return data, nil
}

// decodePrompt deserializes a stored value back into a prompt.
func decodePrompt(data []byte) (*domain.Prompt, error) {
	var p domain.Prompt
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal prompt: %w", err)
	}
	return &p, nil
}
