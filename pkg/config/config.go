package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/openfroyo/control/pkg/engine"
	"github.com/openfroyo/control/pkg/telemetry"
)

// EnvPrefix is prepended to every environment variable, e.g.
// CONTROL_LOG_LEVEL.
const EnvPrefix = "CONTROL"

// Keys shared by flags, environment variables and the config file.
const (
	KeyLogLevel       = "log-level"
	KeyLogFormat      = "log-format"
	KeyKnownHosts     = "known-hosts"
	KeyStrictHostKey  = "strict-host-key"
	KeyConnectTimeout = "connect-timeout"
	KeyCommandTimeout = "command-timeout"
	KeyRetryAttempts  = "retry-attempts"
	KeyRetryDelay     = "retry-delay"
	KeyJournal        = "journal"
	KeyMetricsFile    = "metrics-file"
	KeyTraceExporter  = "trace-exporter"
	KeyTraceEndpoint  = "trace-endpoint"
)

// JournalDisabled as the journal path turns journaling off.
const JournalDisabled = "none"

// Config is the resolved tool configuration.
type Config struct {
	LogLevel       string        `mapstructure:"log-level" validate:"oneof=trace debug info warn error"`
	LogFormat      string        `mapstructure:"log-format" validate:"oneof=console json"`
	KnownHosts     string        `mapstructure:"known-hosts"`
	StrictHostKey  bool          `mapstructure:"strict-host-key"`
	ConnectTimeout time.Duration `mapstructure:"connect-timeout" validate:"gt=0"`
	CommandTimeout time.Duration `mapstructure:"command-timeout" validate:"gte=0"`
	RetryAttempts  int           `mapstructure:"retry-attempts" validate:"gte=0"`
	RetryDelay     time.Duration `mapstructure:"retry-delay" validate:"gte=0"`
	Journal        string        `mapstructure:"journal"`
	MetricsFile    string        `mapstructure:"metrics-file"`
	TraceExporter  string        `mapstructure:"trace-exporter" validate:"oneof=none stdout otlp"`
	TraceEndpoint  string        `mapstructure:"trace-endpoint" validate:"required_if=TraceExporter otlp"`
}

var configValidator = validator.New()

// DefaultJournalPath is ~/.local/state/control/journal.db.
func DefaultJournalPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return JournalDisabled
	}
	return filepath.Join(home, ".local", "state", "control", "journal.db")
}

// DefaultConfigFile is ~/.config/control/config.yaml.
func DefaultConfigFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "control", "config.yaml")
}

// RegisterFlags adds the configuration flags to fs and binds them to v.
func RegisterFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	knownHosts := ""
	if home, err := os.UserHomeDir(); err == nil {
		knownHosts = filepath.Join(home, ".ssh", "known_hosts")
	}

	fs.String(KeyLogLevel, "info", "Log level (trace, debug, info, warn, error)")
	fs.String(KeyLogFormat, "console", "Log format (console, json)")
	fs.String(KeyKnownHosts, knownHosts, "Path to known_hosts file")
	fs.Bool(KeyStrictHostKey, true, "Require host key verification against known_hosts")
	fs.Duration(KeyConnectTimeout, 30*time.Second, "Connection timeout")
	fs.Duration(KeyCommandTimeout, 0, "Per-command timeout (0 disables)")
	fs.Int(KeyRetryAttempts, 15, "Connection retries when --retry is set")
	fs.Duration(KeyRetryDelay, 30*time.Second, "Delay between connection retries")
	fs.String(KeyJournal, DefaultJournalPath(), "Run journal database path (\"none\" disables)")
	fs.String(KeyMetricsFile, "", "Write Prometheus metrics to this file after each run")
	fs.String(KeyTraceExporter, "none", "Trace exporter (none, stdout, otlp)")
	fs.String(KeyTraceEndpoint, "", "OTLP collector endpoint (host:port)")

	var errs []error
	fs.VisitAll(func(f *pflag.Flag) {
		if err := v.BindPFlag(f.Name, f); err != nil {
			errs = append(errs, fmt.Errorf("binding flag %s: %w", f.Name, err))
		}
	})
	return errors.Join(errs...)
}

// Load reads the optional config file and environment into v and decodes
// the result. An explicit configFile must exist; the default one may not.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	explicit := configFile != ""
	if !explicit {
		configFile = DefaultConfigFile()
	}
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			missing := errors.Is(err, os.ErrNotExist) || errors.As(err, &notFound)
			if explicit || !missing {
				return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	cfg.LogFormat = strings.ToLower(cfg.LogFormat)
	cfg.TraceExporter = strings.ToLower(cfg.TraceExporter)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := configValidator.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			e := verrs[0]
			return fmt.Errorf("invalid %s: %s %s", e.Field(), e.Tag(), e.Param())
		}
		return err
	}
	return nil
}

// JournalEnabled reports whether runs should be journaled.
func (c *Config) JournalEnabled() bool {
	return c.Journal != "" && c.Journal != JournalDisabled
}

// Telemetry builds the telemetry configuration.
func (c *Config) Telemetry(version string) *telemetry.Config {
	t := telemetry.DefaultConfig()
	t.ServiceVersion = version
	t.Logging.Level = c.LogLevel
	t.Logging.Format = c.LogFormat
	t.Tracing.Exporter = c.TraceExporter
	t.Tracing.Endpoint = c.TraceEndpoint
	t.Metrics.TextfilePath = c.MetricsFile
	t.Metrics.Enabled = c.MetricsFile != ""
	return t
}

// SSHSettings returns the connection settings for the engine dialer.
func (c *Config) SSHSettings() engine.SSHSettings {
	return engine.SSHSettings{
		KnownHostsPath:        c.KnownHosts,
		StrictHostKeyChecking: c.StrictHostKey,
		ConnectTimeout:        c.ConnectTimeout,
		CommandTimeout:        c.CommandTimeout,
	}
}

// RetryPolicy returns the connection retry policy. Retries only happen
// when enabled is true.
func (c *Config) RetryPolicy(enabled bool) engine.RetryPolicy {
	return engine.RetryPolicy{
		Enabled:  enabled,
		Attempts: c.RetryAttempts,
		Delay:    c.RetryDelay,
	}
}
