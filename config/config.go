// Package config loads the kernel configuration from YAML, an optional .env
// file and AGENTKERNEL_* environment variables, in that order of precedence
// (later sources win).
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/hupe1980/agentkernel/logging"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "AGENTKERNEL_"

// Supported model providers.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderOffline   = "offline"
)

// Config is the top-level configuration file.
type Config struct {
	Agent     AgentConfig     `yaml:"agent"`
	Model     ModelConfig     `yaml:"model"`
	Reactive  ReactiveConfig  `yaml:"reactive"`
	Proactive ProactiveConfig `yaml:"proactive"`
	Team      TeamConfig      `yaml:"team"`
	Redis     RedisConfig     `yaml:"redis"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Log       LogConfig       `yaml:"log"`
}

// AgentConfig configures the autonomous scheduler.
type AgentConfig struct {
	ID            string        `yaml:"id"`
	Goal          string        `yaml:"goal"`
	WorkingPath   string        `yaml:"working_path"`
	MaxIterations int           `yaml:"max_iterations"`
	MaxCost       float64       `yaml:"max_cost,omitempty"`   // 0 = unlimited
	RetryAttempts int           `yaml:"retry_attempts"`       // retries after the first execution
	BackoffBase   float64       `yaml:"backoff_base"`
	BackoffUnit   time.Duration `yaml:"backoff_unit"`
	TickInterval  time.Duration `yaml:"tick_interval,omitempty"`
}

// ModelConfig selects and tunes the inference service.
type ModelConfig struct {
	Provider    string  `yaml:"provider"`
	Name        string  `yaml:"name,omitempty"`
	APIKey      string  `yaml:"api_key,omitempty"`
	BaseURL     string  `yaml:"base_url,omitempty"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int64   `yaml:"max_tokens"`
	// RetryAttempts is the model's own call budget, separate from task retries.
	RetryAttempts int           `yaml:"retry_attempts"`
	RetryUnit     time.Duration `yaml:"retry_unit"`
	// OfflineFallback answers from the offline generator once the budget is spent.
	OfflineFallback bool `yaml:"offline_fallback"`
}

// ReactiveConfig configures the file sensor and reactor.
type ReactiveConfig struct {
	WatchPath         string        `yaml:"watch_path"`
	Ignore            []string      `yaml:"ignore,omitempty"`
	SuppressionWindow time.Duration `yaml:"suppression_window"`
	Debounce          time.Duration `yaml:"debounce"`
	ContentLimit      int           `yaml:"content_limit"`
	LogLimit          int           `yaml:"log_limit"`
}

// ProactiveConfig configures the behavior loops.
type ProactiveConfig struct {
	GoalInterval         time.Duration `yaml:"goal_interval"`
	ScanInterval         time.Duration `yaml:"scan_interval"`
	PredictionInterval   time.Duration `yaml:"prediction_interval"`
	Threshold            float64       `yaml:"threshold"`
	MaxActionsPerCycle   int           `yaml:"max_actions_per_cycle"`
	PredictionConfidence float64       `yaml:"prediction_confidence"`
}

// TeamConfig configures the analyzer/reviewer/coordinator exchange.
type TeamConfig struct {
	ResponseTimeout time.Duration `yaml:"response_timeout"`
	Concurrency     int           `yaml:"concurrency,omitempty"`
	Tasks           []string      `yaml:"tasks,omitempty"`
}

// RedisConfig enables Redis-backed snapshots and audit logs when Addr is set.
type RedisConfig struct {
	Addr      string        `yaml:"addr,omitempty"`
	Password  string        `yaml:"password,omitempty"`
	DB        int           `yaml:"db,omitempty"`
	Namespace string        `yaml:"namespace"`
	TTL       time.Duration `yaml:"ttl,omitempty"`
}

// MetricsConfig enables the Prometheus endpoint when Listen is set.
type MetricsConfig struct {
	Listen    string `yaml:"listen,omitempty"`
	Namespace string `yaml:"namespace"`
}

// LogConfig configures the structured logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json or text
}

// Default returns a configuration that runs offline out of the box.
func Default() *Config {
	return &Config{
		Agent: AgentConfig{
			ID:            "agent_01",
			WorkingPath:   ".",
			MaxIterations: 50,
			RetryAttempts: 3,
			BackoffBase:   2,
			BackoffUnit:   time.Second,
		},
		Model: ModelConfig{
			Provider:      ProviderOffline,
			Temperature:   0.7,
			MaxTokens:     1024,
			RetryAttempts: 3,
			RetryUnit:     time.Second,
		},
		Reactive: ReactiveConfig{
			WatchPath:         ".",
			Ignore:            []string{"node_modules", ".git", "dist", "*.log"},
			SuppressionWindow: 2 * time.Second,
			Debounce:          100 * time.Millisecond,
			ContentLimit:      500,
			LogLimit:          1000,
		},
		Proactive: ProactiveConfig{
			GoalInterval:         5 * time.Second,
			ScanInterval:         30 * time.Second,
			PredictionInterval:   60 * time.Second,
			Threshold:            0.3,
			MaxActionsPerCycle:   3,
			PredictionConfidence: 0.6,
		},
		Team: TeamConfig{
			ResponseTimeout: 30 * time.Second,
		},
		Redis: RedisConfig{
			Namespace: "agentkernel",
		},
		Metrics: MetricsConfig{
			Namespace: "agentkernel",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads path (optional) over the defaults, overlays a .env file found
// next to the config file or in the working directory, applies AGENTKERNEL_*
// overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		if err := cfg.decode(bytes.NewReader(data)); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	}

	LoadDotEnv(path)

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Parse decodes YAML over the defaults without consulting the environment.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := cfg.decode(bytes.NewReader(data)); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) decode(r io.Reader) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}

	return nil
}

// LoadDotEnv loads .env from the config file's directory and from the
// working directory. Missing files are ignored and variables already set in
// the environment are never overwritten.
func LoadDotEnv(configPath string) {
	var candidates []string

	if configPath != "" {
		if abs, err := filepath.Abs(configPath); err == nil {
			candidates = append(candidates, filepath.Join(filepath.Dir(abs), ".env"))
		}
	}

	candidates = append(candidates, ".env")

	for _, p := range candidates {
		if _, err := os.Stat(p); err != nil {
			continue
		}

		_ = godotenv.Load(p)
	}
}

// ApplyEnv overlays AGENTKERNEL_* variables obtained through lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(EnvPrefix + key); ok {
			*dst = v
		}
	}

	var errs []error

	integer := func(key string, dst *int) {
		if v, ok := lookup(EnvPrefix + key); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}

			*dst = n
		}
	}

	float := func(key string, dst *float64) {
		if v, ok := lookup(EnvPrefix + key); ok {
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}

			*dst = f
		}
	}

	duration := func(key string, dst *time.Duration) {
		if v, ok := lookup(EnvPrefix + key); ok {
			d, err := time.ParseDuration(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}

			*dst = d
		}
	}

	str("AGENT_ID", &c.Agent.ID)
	str("GOAL", &c.Agent.Goal)
	str("WORKING_PATH", &c.Agent.WorkingPath)
	integer("MAX_ITERATIONS", &c.Agent.MaxIterations)
	float("MAX_COST", &c.Agent.MaxCost)
	integer("RETRY_ATTEMPTS", &c.Agent.RetryAttempts)
	duration("BACKOFF_UNIT", &c.Agent.BackoffUnit)

	str("MODEL_PROVIDER", &c.Model.Provider)
	str("MODEL_NAME", &c.Model.Name)
	str("MODEL_API_KEY", &c.Model.APIKey)
	str("MODEL_BASE_URL", &c.Model.BaseURL)
	float("MODEL_TEMPERATURE", &c.Model.Temperature)

	str("WATCH_PATH", &c.Reactive.WatchPath)
	duration("TEAM_RESPONSE_TIMEOUT", &c.Team.ResponseTimeout)

	str("REDIS_ADDR", &c.Redis.Addr)
	str("REDIS_PASSWORD", &c.Redis.Password)
	integer("REDIS_DB", &c.Redis.DB)
	str("REDIS_NAMESPACE", &c.Redis.Namespace)

	str("METRICS_LISTEN", &c.Metrics.Listen)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)

	return errors.Join(errs...)
}

// Validate fails fast on settings the kernel cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if c.Agent.ID == "" {
		errs = append(errs, errors.New("agent.id is required"))
	}

	if c.Agent.MaxIterations <= 0 {
		errs = append(errs, fmt.Errorf("agent.max_iterations must be positive, got %d", c.Agent.MaxIterations))
	}

	if c.Agent.MaxCost < 0 {
		errs = append(errs, fmt.Errorf("agent.max_cost must not be negative, got %g", c.Agent.MaxCost))
	}

	if c.Agent.RetryAttempts < 0 {
		errs = append(errs, fmt.Errorf("agent.retry_attempts must not be negative, got %d", c.Agent.RetryAttempts))
	}

	if c.Agent.BackoffBase < 1 {
		errs = append(errs, fmt.Errorf("agent.backoff_base must be at least 1, got %g", c.Agent.BackoffBase))
	}

	if c.Agent.BackoffUnit < 0 {
		errs = append(errs, errors.New("agent.backoff_unit must not be negative"))
	}

	if !slices.Contains([]string{ProviderAnthropic, ProviderOpenAI, ProviderOffline}, c.Model.Provider) {
		errs = append(errs, fmt.Errorf("model.provider must be one of anthropic, openai, offline, got %q", c.Model.Provider))
	}

	if c.Model.Temperature < 0 || c.Model.Temperature > 2 {
		errs = append(errs, fmt.Errorf("model.temperature must be within [0,2], got %g", c.Model.Temperature))
	}

	if c.Proactive.Threshold < 0 {
		errs = append(errs, errors.New("proactive.threshold must not be negative"))
	}

	if c.Proactive.MaxActionsPerCycle <= 0 {
		errs = append(errs, errors.New("proactive.max_actions_per_cycle must be positive"))
	}

	if c.Proactive.PredictionConfidence < 0 || c.Proactive.PredictionConfidence > 1 {
		errs = append(errs, errors.New("proactive.prediction_confidence must be within [0,1]"))
	}

	if c.Team.ResponseTimeout <= 0 {
		errs = append(errs, errors.New("team.response_timeout must be positive"))
	}

	if c.Redis.Addr != "" && c.Redis.Namespace == "" {
		errs = append(errs, errors.New("redis.namespace is required when redis.addr is set"))
	}

	if !slices.Contains([]string{"json", "text"}, c.Log.Format) {
		errs = append(errs, fmt.Errorf("log.format must be json or text, got %q", c.Log.Format))
	}

	return errors.Join(errs...)
}

// Logger builds the kernel logger described by the log section.
func (c *Config) Logger(out io.Writer) *logging.KernelLogger {
	cfg := logging.DefaultLoggerConfig()
	cfg.Level = logging.ParseLevel(c.Log.Level)
	cfg.Format = c.Log.Format
	cfg.Component = "agentkernel"
	cfg.CustomAttrs["agent_id"] = c.Agent.ID

	if out != nil {
		cfg.Output = out
	}

	return logging.NewLogger(cfg)
}
