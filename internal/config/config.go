package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"ideaforge/internal/domain"
)

// Config models ideaforge.yml: the progression rule table plus engine tuning.
type Config struct {
	Progression struct {
		Rules []Rule `yaml:"rules"`
	} `yaml:"progression"`
	Delegation struct {
		InactivityDays   int             `yaml:"inactivity_days"`
		EligibleStatuses []domain.Status `yaml:"eligible_statuses"`
	} `yaml:"delegation"`
	Ranking struct {
		LikeWeight    int `yaml:"like_weight"`
		CommentWeight int `yaml:"comment_weight"`
	} `yaml:"ranking"`
	Sweep struct {
		IntervalMinutes int `yaml:"interval_minutes"`
	} `yaml:"sweep"`
}

// Rule is one auto-promotion edge. ThresholdPct is a percentage of the total
// user population; both conditions must hold for the rule to fire.
type Rule struct {
	FromStatus   domain.Status `yaml:"from_status"`
	ToStatus     domain.Status `yaml:"to_status"`
	ThresholdPct float64       `yaml:"like_threshold_percentage"`
	MinimumLikes int           `yaml:"minimum_likes"`
}

// RuleFor returns the outgoing auto-progression rule for a status, if any.
// Each status has at most one.
func (c *Config) RuleFor(from domain.Status) (Rule, bool) {
	for _, r := range c.Progression.Rules {
		if r.FromStatus == from {
			return r, true
		}
	}
	return Rule{}, false
}

// AutoStatuses returns the set of statuses with an outgoing rule.
func (c *Config) AutoStatuses() []domain.Status {
	out := make([]domain.Status, 0, len(c.Progression.Rules))
	for _, r := range c.Progression.Rules {
		out = append(out, r.FromStatus)
	}
	return out
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if len(c.Progression.Rules) == 0 {
		return fmt.Errorf("config.progression.rules is required")
	}
	seen := map[domain.Status]bool{}
	for i, r := range c.Progression.Rules {
		if !r.FromStatus.Valid() || !r.ToStatus.Valid() {
			return fmt.Errorf("rule %d has unknown status %s -> %s", i, r.FromStatus, r.ToStatus)
		}
		if !domain.CanTransition(r.FromStatus, r.ToStatus) {
			return fmt.Errorf("rule %d is not a legal lifecycle edge: %s -> %s", i, r.FromStatus, r.ToStatus)
		}
		if seen[r.FromStatus] {
			return fmt.Errorf("duplicate rule for status %s", r.FromStatus)
		}
		seen[r.FromStatus] = true
		if r.ThresholdPct <= 0 || r.ThresholdPct > 100 {
			return fmt.Errorf("rule %s: like_threshold_percentage must be in (0,100]", r.FromStatus)
		}
		if r.MinimumLikes < 1 {
			return fmt.Errorf("rule %s: minimum_likes must be >= 1", r.FromStatus)
		}
	}
	if c.Delegation.InactivityDays < 1 {
		return fmt.Errorf("config.delegation.inactivity_days must be >= 1")
	}
	for _, s := range c.Delegation.EligibleStatuses {
		if !s.Valid() {
			return fmt.Errorf("delegation eligible status %s unknown", s)
		}
	}
	if c.Ranking.LikeWeight < 0 || c.Ranking.CommentWeight < 0 {
		return fmt.Errorf("ranking weights must be >= 0")
	}
	if c.Sweep.IntervalMinutes < 1 {
		return fmt.Errorf("config.sweep.interval_minutes must be >= 1")
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "ideaforge.yml")
}

// Default returns the built-in rule table.
func Default() *Config {
	var cfg Config
	_ = yaml.Unmarshal([]byte(defaultTemplate), &cfg)
	return &cfg
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

// LoadOptional returns nil,nil if the workspace config file does not exist.
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

const defaultTemplate = `progression:
  rules:
    - from_status: idea
      to_status: pre-draft
      like_threshold_percentage: 30
      minimum_likes: 5
    - from_status: pre-draft
      to_status: draft
      like_threshold_percentage: 40
      minimum_likes: 10
    - from_status: draft
      to_status: commit
      like_threshold_percentage: 50
      minimum_likes: 15

delegation:
  inactivity_days: 14
  eligible_statuses: [pre-draft, draft]

ranking:
  like_weight: 1
  comment_weight: 2

sweep:
  interval_minutes: 10
`
