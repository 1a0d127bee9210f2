// Package config loads engage's settings from a YAML file and ENGAGE_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/abhisek/engage/internal/content"
	"github.com/abhisek/engage/internal/engagement"
	"github.com/abhisek/engage/internal/evaluation"
	"github.com/abhisek/engage/internal/llm"
)

// DefaultAPIURL points at the local stub server.
const DefaultAPIURL = "http://127.0.0.1:8787"

// Config is the top-level application configuration.
type Config struct {
	API        APIConfig                  `yaml:"api"`
	Learner    string                     `yaml:"learner"`
	DB         string                     `yaml:"db"`
	Log        LogConfig                  `yaml:"log"`
	Evaluation EvaluationConfig           `yaml:"evaluation"`
	Profiles   map[string]ProfileOverride `yaml:"profiles"`
	LLM        llm.Config                 `yaml:"llm"`

	// Path is the file the config was read from, empty for defaults.
	Path string `yaml:"-"`
}

// APIConfig locates the collaborator services.
type APIConfig struct {
	URL           string        `yaml:"url"`
	Timeout       time.Duration `yaml:"timeout"`
	StreamTimeout time.Duration `yaml:"stream_timeout"`
	// Stream requests NDJSON content so viewers can show progress.
	Stream bool `yaml:"stream"`
}

type LogConfig struct {
	Mode string `yaml:"mode"`
	Path string `yaml:"path"`
}

// EvaluationConfig tunes the free-text evaluator.
type EvaluationConfig struct {
	PassScore   int     `yaml:"pass_score"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
	Parallelism int     `yaml:"parallelism"`
}

// ProfileOverride adjusts a built-in surface profile. Nil fields keep the
// built-in value.
type ProfileOverride struct {
	PromptThreshold    *float64       `yaml:"prompt_threshold"`
	FinalizeMinActive  *time.Duration `yaml:"finalize_min_active"`
	FinalizeMinPercent *float64       `yaml:"finalize_min_percent"`
	RatingField        *string        `yaml:"rating_field"`
}

// Default returns the built-in configuration.
func Default() *Config {
	ev := evaluation.DefaultConfig()
	return &Config{
		API: APIConfig{
			URL:     DefaultAPIURL,
			Timeout: 30 * time.Second,
			Stream:  true,
		},
		Learner: defaultLearner(),
		Log:     LogConfig{Mode: "development"},
		Evaluation: EvaluationConfig{
			PassScore:   ev.PassScore,
			MaxTokens:   ev.MaxTokens,
			Temperature: ev.Temperature,
			Parallelism: 4,
		},
		LLM: llm.DefaultConfig(),
	}
}

func defaultLearner() string {
	if u := strings.TrimSpace(os.Getenv("USER")); u != "" {
		return u
	}
	return "anonymous"
}

// Resolve picks the config file: the explicit path, then $ENGAGE_CONFIG,
// then $XDG_CONFIG_HOME/engage/config.yaml (or ~/.config/...). The second
// return value is false when the path came from the default location, in
// which case a missing file is not an error.
func Resolve(explicit string) (string, bool) {
	if p := strings.TrimSpace(explicit); p != "" {
		return p, true
	}
	if p := strings.TrimSpace(os.Getenv("ENGAGE_CONFIG")); p != "" {
		return p, true
	}
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", false
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "engage", "config.yaml"), false
}

// Load reads the config file (see Resolve), applies environment overrides
// and validates the result.
func Load(explicit string) (*Config, error) {
	cfg := Default()

	path, required := Resolve(explicit)
	if path != "" {
		b, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(b, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
			cfg.Path = path
		case errors.Is(err, os.ErrNotExist) && !required:
		default:
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overlays ENGAGE_* environment variables.
func (c *Config) ApplyEnv() {
	if v := strings.TrimSpace(os.Getenv("ENGAGE_API_URL")); v != "" {
		c.API.URL = v
	}
	if v := strings.TrimSpace(os.Getenv("ENGAGE_API_TIMEOUT")); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.API.Timeout = d
		}
	}
	if v := strings.TrimSpace(os.Getenv("ENGAGE_API_STREAM")); v != "" {
		c.API.Stream = parseBool(v)
	}
	if v := strings.TrimSpace(os.Getenv("ENGAGE_LOG_MODE")); v != "" {
		c.Log.Mode = v
	}
	if v := strings.TrimSpace(os.Getenv("ENGAGE_LOG_FILE")); v != "" {
		c.Log.Path = v
	}
	if v := strings.TrimSpace(os.Getenv("ENGAGE_DB")); v != "" {
		c.DB = v
	}
	if v := strings.TrimSpace(os.Getenv("ENGAGE_LEARNER")); v != "" {
		c.Learner = v
	}
	c.LLM.ApplyEnv()
}

// Validate checks the config and normalizes a few fields.
func (c *Config) Validate() error {
	c.API.URL = strings.TrimRight(strings.TrimSpace(c.API.URL), "/")
	if c.API.URL == "" {
		return errors.New("config: api.url is required")
	}
	if c.API.Timeout < 0 || c.API.StreamTimeout < 0 {
		return errors.New("config: api timeouts must not be negative")
	}
	if strings.TrimSpace(c.Learner) == "" {
		c.Learner = defaultLearner()
	}
	if p := c.Evaluation.PassScore; p < 0 || p > 100 {
		return fmt.Errorf("config: evaluation.pass_score %d outside 0..100", p)
	}
	for name, o := range c.Profiles {
		if !content.Kind(name).Valid() {
			return fmt.Errorf("config: unknown profile %q", name)
		}
		if o.PromptThreshold != nil && (*o.PromptThreshold < 0 || *o.PromptThreshold > 100) {
			return fmt.Errorf("config: profiles.%s.prompt_threshold outside 0..100", name)
		}
		if o.FinalizeMinPercent != nil && (*o.FinalizeMinPercent < 0 || *o.FinalizeMinPercent > 100) {
			return fmt.Errorf("config: profiles.%s.finalize_min_percent outside 0..100", name)
		}
		if o.RatingField != nil {
			switch engagement.RatingField(*o.RatingField) {
			case engagement.RatingHelpful, engagement.RatingEngagement:
			default:
				return fmt.Errorf("config: profiles.%s.rating_field %q", name, *o.RatingField)
			}
		}
	}
	if err := c.LLM.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// Profile returns the surface profile with any override applied.
func (c *Config) Profile(kind content.Kind) engagement.Profile {
	p := engagement.ProfileFor(kind)
	o, ok := c.Profiles[string(kind)]
	if !ok {
		return p
	}
	if o.PromptThreshold != nil {
		p.PromptThreshold = *o.PromptThreshold
	}
	if o.FinalizeMinActive != nil {
		p.FinalizeMinActive = *o.FinalizeMinActive
	}
	if o.FinalizeMinPercent != nil {
		p.FinalizeMinPercent = *o.FinalizeMinPercent
	}
	if o.RatingField != nil {
		p.RatingField = engagement.RatingField(*o.RatingField)
	}
	return p
}

// EvaluatorConfig converts the evaluation section for the evaluator.
func (c *Config) EvaluatorConfig() evaluation.Config {
	ev := evaluation.DefaultConfig()
	if c.Evaluation.PassScore > 0 {
		ev.PassScore = c.Evaluation.PassScore
	}
	if c.Evaluation.MaxTokens > 0 {
		ev.MaxTokens = c.Evaluation.MaxTokens
	}
	if c.Evaluation.Temperature > 0 {
		ev.Temperature = c.Evaluation.Temperature
	}
	if c.LLM.Timeout > 0 {
		ev.Timeout = c.LLM.Timeout
	}
	return ev
}

// LogPath returns where the terminal app writes its log.
func (c *Config) LogPath() string {
	if c.Log.Path != "" {
		return c.Log.Path
	}
	dir := os.Getenv("XDG_STATE_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join(os.TempDir(), "engage.log")
		}
		dir = filepath.Join(home, ".local", "state")
	}
	return filepath.Join(dir, "engage", "engage.log")
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "t", "true", "y", "yes", "on":
		return true
	default:
		return false
	}
}
