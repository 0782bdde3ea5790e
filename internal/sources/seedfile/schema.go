package seedfile

// SeedConfig represents the top-level structure of the seed yaml.
type SeedConfig struct {
	Prompts []SeedPrompt `yaml:"prompts"`
}

// SeedPrompt contains one seeded prompt definition.
type SeedPrompt struct {
	Namespace string   `yaml:"namespace"`
	Name      string   `yaml:"name"`
	Version   int      `yaml:"version,omitempty"`
	Lang      string   `yaml:"lang,omitempty"`
	Text      string   `yaml:"text"`
	TextFile  string   `yaml:"textFile,omitempty"`
	Tags      []string `yaml:"tags,omitempty"`
	Priority  int      `yaml:"priority,omitempty"`
	IsActive  *bool    `yaml:"isActive,omitempty"`
	IsDefault bool     `yaml:"isDefault,omitempty"`
}
