package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultGraceBeforeMinutes = 15
	defaultGraceAfterMinutes  = 60
	defaultReferenceAttempts  = 5
)

// Config models motorpool.yml.
type Config struct {
	Fleet struct {
		ID   string `yaml:"id"`
		Name string `yaml:"name"`
	} `yaml:"fleet"`
	Vehicles struct {
		Categories map[string]struct {
			Description string `yaml:"description"`
		} `yaml:"categories"`
	} `yaml:"vehicles"`
	Workflow struct {
		CheckIn struct {
			GraceBeforeMinutes int `yaml:"grace_before_minutes"`
			GraceAfterMinutes  int `yaml:"grace_after_minutes"`
		} `yaml:"check_in"`
		Reference struct {
			MaxAttempts int `yaml:"max_attempts"`
		} `yaml:"reference"`
	} `yaml:"workflow"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Secret         string   `yaml:"secret"`
	Events         []string `yaml:"events"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
	Enabled        *bool    `yaml:"enabled"`
}

// GraceBefore is how early check-in may happen relative to the window start.
func (c *Config) GraceBefore() time.Duration {
	m := c.Workflow.CheckIn.GraceBeforeMinutes
	if m <= 0 {
		m = defaultGraceBeforeMinutes
	}
	return time.Duration(m) * time.Minute
}

// GraceAfter is how late check-in may happen relative to the window start.
func (c *Config) GraceAfter() time.Duration {
	m := c.Workflow.CheckIn.GraceAfterMinutes
	if m <= 0 {
		m = defaultGraceAfterMinutes
	}
	return time.Duration(m) * time.Minute
}

// ReferenceAttempts is the bounded retry count for reference generation
// when the store reports a uniqueness violation.
func (c *Config) ReferenceAttempts() int {
	if n := c.Workflow.Reference.MaxAttempts; n > 0 {
		return n
	}
	return defaultReferenceAttempts
}

// KnownCategory reports whether the category exists in the catalog. An empty
// catalog accepts any category.
func (c *Config) KnownCategory(category string) bool {
	if category == "" || len(c.Vehicles.Categories) == 0 {
		return true
	}
	_, ok := c.Vehicles.Categories[category]
	return ok
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; import with mp fleet config import --file <path>", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Fleet.ID == "" {
		return fmt.Errorf("config.fleet.id is required")
	}
	if c.Workflow.CheckIn.GraceBeforeMinutes < 0 {
		return fmt.Errorf("config.workflow.check_in.grace_before_minutes must not be negative")
	}
	if c.Workflow.CheckIn.GraceAfterMinutes < 0 {
		return fmt.Errorf("config.workflow.check_in.grace_after_minutes must not be negative")
	}
	if c.Workflow.Reference.MaxAttempts < 0 {
		return fmt.Errorf("config.workflow.reference.max_attempts must not be negative")
	}
	for category := range c.Vehicles.Categories {
		if category == "" {
			return fmt.Errorf("config.vehicles.categories contains empty category id")
		}
	}
	for i, hook := range c.Webhooks {
		if hook.URL == "" {
			return fmt.Errorf("webhook %d has empty url", i)
		}
		if hook.TimeoutSeconds < 0 {
			return fmt.Errorf("webhook %d has negative timeout", i)
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "motorpool.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault(fleetID string) string {
	return fmt.Sprintf(defaultTemplate, fleetID)
}

// Default returns the default Config struct for a fleet.
func Default(fleetID string) *Config {
	cfg, err := FromYAML([]byte(GenerateDefault(fleetID)))
	if err != nil {
		// The template is static; a parse failure is a programming error.
		panic(err)
	}
	return cfg
}

const defaultTemplate = `fleet:
  id: %s
  name: Motor Pool

vehicles:
  categories:
    sedan:
      description: "Passenger car, up to 4 passengers"
    van:
      description: "People carrier, up to 8 passengers"
    pickup:
      description: "Light goods and equipment transport"
    minibus:
      description: "Group transport, up to 14 passengers"

workflow:
  check_in:
    grace_before_minutes: 15
    grace_after_minutes: 60

  reference:
    max_attempts: 5
`
