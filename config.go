package btreex

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the YAML form of a tree's runtime settings. Node structure is
// built in code; Config only carries the knobs around it.
type Config struct {
	Name       string         `json:"name" yaml:"name"`
	Restart    RestartPolicy  `json:"restart" yaml:"restart"`
	OwnerCheck bool           `json:"ownerCheck" yaml:"ownerCheck"`
	LogLevel   slog.Level     `json:"logLevel" yaml:"logLevel"`
	Yield      YieldConfig    `json:"yield" yaml:"yield"`
	Realtime   RealtimeConfig `json:"realtime" yaml:"realtime"`
}

// YieldConfig holds the defaults applied to Yield nodes built from a Config.
type YieldConfig struct {
	ConsumeTick  *bool            `json:"consumeTick,omitempty" yaml:"consumeTick,omitempty"`
	OnNodeChange NodeChangePolicy `json:"onNodeChange" yaml:"onNodeChange"`
	OnSelfExit   SelfExitPolicy   `json:"onSelfExit" yaml:"onSelfExit"`
	MaxLoops     int              `json:"maxLoops,omitempty" yaml:"maxLoops,omitempty"`
}

// RealtimeConfig holds the settings of a fixed-rate driver.
type RealtimeConfig struct {
	TickRate        time.Duration `json:"tickRate" yaml:"tickRate"`
	MaxPostsPerTick int           `json:"maxPostsPerTick" yaml:"maxPostsPerTick"`
	StopOnComplete  bool          `json:"stopOnComplete" yaml:"stopOnComplete"`
}

// ParseConfig decodes YAML, rejecting unknown fields, and validates the
// result.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadConfig reads and parses the YAML file at path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return ParseConfig(data)
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	var errs []error
	if c.Realtime.TickRate < 0 {
		errs = append(errs, fmt.Errorf("realtime.tickRate must not be negative, got %v", c.Realtime.TickRate))
	}
	if c.Realtime.MaxPostsPerTick < 0 {
		errs = append(errs, fmt.Errorf("realtime.maxPostsPerTick must not be negative, got %d", c.Realtime.MaxPostsPerTick))
	}
	if c.Yield.MaxLoops < 0 {
		errs = append(errs, fmt.Errorf("yield.maxLoops must not be negative, got %d", c.Yield.MaxLoops))
	}
	return errors.Join(errs...)
}

// Options converts the config into tree options. When logger is nil a text
// logger on stderr at LogLevel is used.
func (c *Config) Options(logger *slog.Logger) []Option {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: c.LogLevel}))
	}
	if c.Name != "" {
		logger = logger.With("tree_name", c.Name)
	}
	return []Option{
		WithLogger(logger),
		WithRestart(c.Restart),
		WithOwnerCheck(c.OwnerCheck),
	}
}

// YieldOptions converts the yield section into options for Yield.
func (c *Config) YieldOptions() []YieldOption {
	opts := []YieldOption{
		WithNodeChange(c.Yield.OnNodeChange),
		WithSelfExit(c.Yield.OnSelfExit),
	}
	if c.Yield.ConsumeTick != nil {
		opts = append(opts, WithConsumeTick(*c.Yield.ConsumeTick))
	}
	if c.Yield.MaxLoops > 0 {
		opts = append(opts, WithMaxLoops(c.Yield.MaxLoops))
	}
	return opts
}

func (p RestartPolicy) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

func (p *RestartPolicy) UnmarshalText(b []byte) error {
	switch string(b) {
	case "never", "":
		*p = RestartNever
	case "on-complete":
		*p = RestartOnComplete
	case "on-invalid":
		*p = RestartOnInvalid
	default:
		return fmt.Errorf("unknown restart policy %q", b)
	}
	return nil
}
