package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config models the per-project workflow configuration. It is stored in the
// database (project_configs) and may be imported from YAML.
type Config struct {
	Project struct {
		ID string `yaml:"id" json:"id"`
	} `yaml:"project" json:"project"`
	Workflow struct {
		// StrictUnlock withholds downstream access until the prior step is
		// approved, instead of merely submitted. Defaults to false, matching
		// the observed handoff behavior where HR may start the next step
		// while the CEO review is still pending.
		StrictUnlock bool `yaml:"strict_unlock" json:"strict_unlock"`
	} `yaml:"workflow" json:"workflow"`
	Invitations struct {
		TTLHours int `yaml:"ttl_hours" json:"ttl_hours"`
	} `yaml:"invitations" json:"invitations"`
	Notifications struct {
		Webhooks []WebhookConfig `yaml:"webhooks" json:"webhooks,omitempty"`
	} `yaml:"notifications" json:"notifications"`
}

// WebhookConfig describes one notification sink fed from the event log.
type WebhookConfig struct {
	URL            string   `yaml:"url" json:"url"`
	Events         []string `yaml:"events" json:"events,omitempty"`
	Secret         string   `yaml:"secret" json:"secret,omitempty"`
	TimeoutSeconds int      `yaml:"timeout_seconds" json:"timeout_seconds,omitempty"`
	Enabled        *bool    `yaml:"enabled" json:"enabled,omitempty"`
}

const defaultInvitationTTLHours = 168 // 7 days

// Default returns the default Config for a project.
func Default(projectID string) *Config {
	var cfg Config
	cfg.Project.ID = projectID
	cfg.Invitations.TTLHours = defaultInvitationTTLHours
	return &cfg
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Project.ID == "" {
		return fmt.Errorf("config.project.id is required")
	}
	if c.Invitations.TTLHours < 0 {
		return fmt.Errorf("config.invitations.ttl_hours must not be negative")
	}
	for i, hook := range c.Notifications.Webhooks {
		if strings.TrimSpace(hook.URL) == "" {
			return fmt.Errorf("config.notifications.webhooks[%d].url is required", i)
		}
		if hook.TimeoutSeconds < 0 {
			return fmt.Errorf("config.notifications.webhooks[%d].timeout_seconds must not be negative", i)
		}
	}
	return nil
}

// InvitationTTLHours returns the configured invitation validity window.
func (c *Config) InvitationTTLHours() int {
	if c == nil || c.Invitations.TTLHours <= 0 {
		return defaultInvitationTTLHours
	}
	return c.Invitations.TTLHours
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if cfg.Invitations.TTLHours == 0 {
		cfg.Invitations.TTLHours = defaultInvitationTTLHours
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
