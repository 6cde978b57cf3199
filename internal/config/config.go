// Package config loads the session configuration: scheduler limits,
// confirmation and retry tunables, GUI verification thresholds,
// collaborator endpoints, and telemetry outputs. Values come from
// defaults, then the YAML file, then VOXOP_* environment variables,
// in that order.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/voxop/voxop/internal/errors"
)

// Duration wraps time.Duration so YAML can carry "90s" style values.
type Duration time.Duration

// UnmarshalYAML parses a Go duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML renders the duration string form.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the full session configuration.
type Config struct {
	Scheduler    SchedulerConfig    `yaml:"scheduler"`
	Confirmation ConfirmationConfig `yaml:"confirmation"`
	Shell        ShellConfig        `yaml:"shell"`
	GUI          GUIConfig          `yaml:"gui"`
	Retry        RetryConfig        `yaml:"retry"`
	Providers    ProvidersConfig    `yaml:"providers"`
	Library      LibraryConfig      `yaml:"library"`
	PolicyPath   string             `yaml:"policy_path"`
	Telemetry    TelemetryConfig    `yaml:"telemetry"`
	Log          LogConfig          `yaml:"log"`
}

// SchedulerConfig bounds concurrent task execution.
type SchedulerConfig struct {
	// Concurrency is the number of execution slots. Tasks beyond it
	// stay Ready until a slot frees.
	Concurrency int `yaml:"concurrency"`
}

// ConfirmationConfig controls the safety gate's confirmation flow.
type ConfirmationConfig struct {
	// Timeout fails an awaiting task if no approval arrives in time.
	Timeout Duration `yaml:"timeout"`
}

// ShellConfig controls the shell collaborator.
type ShellConfig struct {
	// CommandTimeout bounds each individual command in a sequence.
	CommandTimeout Duration `yaml:"command_timeout"`

	// WorkingDir is the initial working directory, empty for inherit.
	WorkingDir string `yaml:"working_dir"`
}

// GUIConfig tunes the verification loop.
type GUIConfig struct {
	// MaxRetries is how many fresh capture-infer rounds follow a
	// below-confidence locate result.
	MaxRetries int `yaml:"max_retries"`

	// Confidence is the minimum locate confidence to act on.
	Confidence float64 `yaml:"confidence"`

	// DiffTolerance is the fraction of changed screen cells above
	// which a re-verification capture counts as "screen changed".
	DiffTolerance float64 `yaml:"diff_tolerance"`

	// VerifyRadius is the pixel radius around a target sampled when
	// re-verifying before acting.
	VerifyRadius int `yaml:"verify_radius"`

	// SettleDelay is the pause after an action before the confirming
	// capture, letting the UI finish painting.
	SettleDelay Duration `yaml:"settle_delay"`

	// CaptureCommand is the argv that writes a screenshot to the
	// path appended as its final argument.
	CaptureCommand []string `yaml:"capture_command"`
}

// RetryConfig bounds retries when a collaborator is unreachable.
type RetryConfig struct {
	MaxAttempts int      `yaml:"max_attempts"`
	Backoff     Duration `yaml:"backoff"`
}

// ProvidersConfig names the model collaborators.
type ProvidersConfig struct {
	Language ProviderConfig `yaml:"language"`
	Vision   ProviderConfig `yaml:"vision"`
}

// ProviderConfig describes one model endpoint.
type ProviderConfig struct {
	// Type selects the client: "llamacpp" or "openai".
	Type string `yaml:"type"`

	BaseURL     string   `yaml:"base_url"`
	Model       string   `yaml:"model"`
	APIKey      string   `yaml:"api_key"`
	Timeout     Duration `yaml:"timeout"`
	MaxTokens   int      `yaml:"max_tokens"`
	Temperature float64  `yaml:"temperature"`
}

// LibraryConfig points at the user's command library.
type LibraryConfig struct {
	Path string `yaml:"path"`

	// Watch reloads the library when the file changes on disk.
	Watch bool `yaml:"watch"`
}

// TelemetryConfig selects event sinks. All are optional.
type TelemetryConfig struct {
	// Enabled turns on OTLP trace export.
	Enabled      bool   `yaml:"enabled"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`

	// JSONLPath appends one JSON event per line when set.
	JSONLPath string `yaml:"jsonl_path"`

	// SQLitePath records events to a local database when set.
	SQLitePath string `yaml:"sqlite_path"`

	NATS NATSConfig `yaml:"nats"`
}

// NATSConfig publishes events to a NATS subject when URL is set.
type NATSConfig struct {
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Scheduler: SchedulerConfig{
			Concurrency: 3,
		},
		Confirmation: ConfirmationConfig{
			Timeout: Duration(60 * time.Second),
		},
		Shell: ShellConfig{
			CommandTimeout: Duration(120 * time.Second),
		},
		GUI: GUIConfig{
			MaxRetries:     2,
			Confidence:     0.6,
			DiffTolerance:  0.25,
			VerifyRadius:   32,
			SettleDelay:    Duration(400 * time.Millisecond),
			CaptureCommand: []string{"scrot", "-z"},
		},
		Retry: RetryConfig{
			MaxAttempts: 3,
			Backoff:     Duration(500 * time.Millisecond),
		},
		Providers: ProvidersConfig{
			Language: ProviderConfig{
				Type:        "llamacpp",
				BaseURL:     "http://127.0.0.1:8080",
				Timeout:     Duration(30 * time.Second),
				MaxTokens:   512,
				Temperature: 0.1,
			},
			Vision: ProviderConfig{
				Type:        "llamacpp",
				BaseURL:     "http://127.0.0.1:8081",
				Timeout:     Duration(45 * time.Second),
				MaxTokens:   256,
				Temperature: 0.0,
			},
		},
		Library: LibraryConfig{
			Path:  "commands.yaml",
			Watch: true,
		},
		Telemetry: TelemetryConfig{
			NATS: NATSConfig{Subject: "voxop.events"},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads, expands, and validates a configuration file layered over
// the defaults. Environment variables referenced in the file are
// expanded before parsing; VOXOP_* overrides apply afterwards.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewFileNotFoundError(path).
				WithSuggestion("Run 'voxop doctor' to see which paths are searched")
		}
		return nil, errors.Wrap(errors.ErrCodeFileReadFailed, "read config file", err)
	}

	cfg := Default()
	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, errors.Wrap(errors.ErrCodeFileUnmarshal, "unmarshal config", err)
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault behaves like Load but treats a missing file as the
// default configuration rather than an error.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := Default()
		cfg.applyEnv()
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	return Load(path)
}

// Validate rejects values the scheduler or the GUI loop cannot work
// with.
func (c *Config) Validate() error {
	if c.Scheduler.Concurrency < 1 {
		return errors.NewConfigInvalidError("scheduler.concurrency", "must be at least 1")
	}
	if c.Confirmation.Timeout <= 0 {
		return errors.NewConfigInvalidError("confirmation.timeout", "must be positive")
	}
	if c.Shell.CommandTimeout <= 0 {
		return errors.NewConfigInvalidError("shell.command_timeout", "must be positive")
	}
	if c.GUI.Confidence <= 0 || c.GUI.Confidence > 1 {
		return errors.NewConfigInvalidError("gui.confidence", "must be in (0, 1]")
	}
	if c.GUI.DiffTolerance < 0 || c.GUI.DiffTolerance > 1 {
		return errors.NewConfigInvalidError("gui.diff_tolerance", "must be in [0, 1]")
	}
	if c.GUI.MaxRetries < 0 {
		return errors.NewConfigInvalidError("gui.max_retries", "must be non-negative")
	}
	if c.GUI.VerifyRadius < 1 {
		return errors.NewConfigInvalidError("gui.verify_radius", "must be at least 1")
	}
	if c.Retry.MaxAttempts < 1 {
		return errors.NewConfigInvalidError("retry.max_attempts", "must be at least 1")
	}
	if c.Library.Path == "" {
		return errors.NewConfigInvalidError("library.path", "must not be empty")
	}
	return nil
}

// applyEnv layers VOXOP_* overrides on top of file values. Only the
// settings that make sense to flip per-invocation are exposed.
func (c *Config) applyEnv() {
	if v := os.Getenv("VOXOP_CONCURRENCY"); v != "" {
		if n, err := parsePositiveInt(v); err == nil {
			c.Scheduler.Concurrency = n
		}
	}
	if v := os.Getenv("VOXOP_CONFIRMATION_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Confirmation.Timeout = Duration(d)
		}
	}
	if v := os.Getenv("VOXOP_LIBRARY_PATH"); v != "" {
		c.Library.Path = v
	}
	if v := os.Getenv("VOXOP_POLICY_PATH"); v != "" {
		c.PolicyPath = v
	}
	if v := os.Getenv("VOXOP_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("VOXOP_LOG_FORMAT"); v != "" {
		c.Log.Format = v
	}
	if v := os.Getenv("VOXOP_LANGUAGE_URL"); v != "" {
		c.Providers.Language.BaseURL = v
	}
	if v := os.Getenv("VOXOP_VISION_URL"); v != "" {
		c.Providers.Vision.BaseURL = v
	}
	if v := os.Getenv("VOXOP_NATS_URL"); v != "" {
		c.Telemetry.NATS.URL = v
	}
	if v := os.Getenv("VOXOP_OTLP_ENDPOINT"); v != "" {
		c.Telemetry.OTLPEndpoint = v
		c.Telemetry.Enabled = true
	}
}

func parsePositiveInt(s string) (int, error) {
	var n int
	if _, err := fmt.Sscanf(s, "%d", &n); err != nil {
		return 0, err
	}
	if n < 1 {
		return 0, fmt.Errorf("not positive: %d", n)
	}
	return n, nil
}

// Save writes the configuration to a YAML file.
func Save(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}
