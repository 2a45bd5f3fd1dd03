// Package config loads mcpchat settings from a config file, a .env file, environment variables and flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/afero"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	// EnvPrefix is the prefix of the environment variables read by mcpchat, eg- MCPCHAT_STRICT_ARGS.
	EnvPrefix = "MCPCHAT"

	// DefaultConfigName is the config file searched for in the working directory when none is given.
	DefaultConfigName = "mcpchat"

	DefaultBaseURL              = "https://api.openai.com/v1"
	DefaultInitTimeoutSec       = 10
	DefaultToolTimeoutSec       = 30
	DefaultCompletionTimeoutSec = 60

	redactedValue = "<redacted>"
)

// Config holds the effective mcpchat settings.
type Config struct {
	APIKey  string `mapstructure:"api_key" yaml:"api_key"`
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
	Model   string `mapstructure:"model" yaml:"model"`

	InitTimeoutSec       int `mapstructure:"init_timeout_sec" yaml:"init_timeout_sec"`
	ToolTimeoutSec       int `mapstructure:"tool_timeout_sec" yaml:"tool_timeout_sec"`
	CompletionTimeoutSec int `mapstructure:"completion_timeout_sec" yaml:"completion_timeout_sec"`

	// StrictArgs validates tool arguments against the tool's input schema before invoking it.
	StrictArgs bool `mapstructure:"strict_args" yaml:"strict_args"`

	// TrimUndispatchedCalls removes the tool calls that were not dispatched from the history sent back
	// to the model.
	TrimUndispatchedCalls bool `mapstructure:"trim_undispatched_calls" yaml:"trim_undispatched_calls"`

	// AuditDB is the DSN of the tool invocation audit log. Auditing is disabled when empty.
	AuditDB string `mapstructure:"audit_db" yaml:"audit_db"`

	// MetricsPort is the port of the metrics http server. Metrics are disabled when empty.
	MetricsPort string `mapstructure:"metrics_port" yaml:"metrics_port"`

	Verbose bool `mapstructure:"verbose" yaml:"verbose"`

	// ProviderEnv holds extra environment variables passed to a stdio tool provider, as "KEY=VALUE".
	ProviderEnv []string `mapstructure:"provider_env" yaml:"provider_env"`

	// ProviderToken and ProviderHeaders are sent to a streamable http tool provider.
	ProviderToken   string            `mapstructure:"provider_token" yaml:"provider_token"`
	ProviderHeaders map[string]string `mapstructure:"provider_headers" yaml:"provider_headers"`

	SystemPrompt         string `mapstructure:"system_prompt" yaml:"system_prompt"`
	FollowUpSystemPrompt string `mapstructure:"followup_system_prompt" yaml:"followup_system_prompt"`
}

// LoadOptions controls where Load reads settings from.
type LoadOptions struct {
	// Fs is the filesystem config and .env files are read from. Defaults to the OS filesystem.
	Fs afero.Fs

	// ConfigFile is an explicit config file path. It must exist when set.
	// When empty, mcpchat.yaml is looked up in the working directory and is optional.
	ConfigFile string

	// DotEnvFile is loaded into the process environment if it exists. Variables that are
	// already set are not overridden.
	DotEnvFile string

	// Flags are bound to the config keys of the same name (with dashes instead of underscores).
	Flags *pflag.FlagSet
}

// envAliases lists the unprefixed environment variables also read for a key.
var envAliases = map[string]string{
	"api_key":  "OPENAI_API_KEY",
	"base_url": "OPENAI_API_BASE_URL",
	"model":    "MODEL",
}

// defaults holds every config key with its default value.
var defaults = map[string]any{
	"api_key":                 "",
	"base_url":                DefaultBaseURL,
	"model":                   "",
	"init_timeout_sec":        DefaultInitTimeoutSec,
	"tool_timeout_sec":        DefaultToolTimeoutSec,
	"completion_timeout_sec":  DefaultCompletionTimeoutSec,
	"strict_args":             false,
	"trim_undispatched_calls": false,
	"audit_db":                "",
	"metrics_port":            "",
	"verbose":                 false,
	"provider_env":            []string{},
	"provider_token":          "",
	"provider_headers":        map[string]string{},
	"system_prompt":           "",
	"followup_system_prompt":  "",
}

func setDefaults(v *viper.Viper) {
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
}

// Load builds the effective configuration.
// Precedence, highest first: flags, environment variables, config file, defaults.
func Load(opts LoadOptions) (*Config, error) {
	fs := opts.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}

	if opts.DotEnvFile != "" {
		if err := loadDotEnv(fs, opts.DotEnvFile); err != nil {
			return nil, err
		}
	}

	v := viper.New()
	v.SetFs(fs)
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	for key, alias := range envAliases {
		if err := v.BindEnv(key, EnvPrefix+"_"+strings.ToUpper(key), alias); err != nil {
			return nil, fmt.Errorf("failed to bind environment variable %s: %w", alias, err)
		}
	}

	if err := readConfigFile(v, opts.ConfigFile); err != nil {
		return nil, err
	}

	if opts.Flags != nil {
		if err := bindFlags(v, opts.Flags); err != nil {
			return nil, err
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}
	return &c, nil
}

func readConfigFile(v *viper.Viper, path string) error {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		return nil
	}

	v.SetConfigName(DefaultConfigName)
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

// bindFlags binds every flag whose name matches a config key, eg- --base-url to base_url.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	var bindErr error
	flags.VisitAll(func(f *pflag.Flag) {
		key := strings.ReplaceAll(f.Name, "-", "_")
		if !isKnownKey(key) {
			return
		}
		if err := v.BindPFlag(key, f); err != nil && bindErr == nil {
			bindErr = fmt.Errorf("failed to bind flag --%s: %w", f.Name, err)
		}
	})
	return bindErr
}

func isKnownKey(key string) bool {
	_, ok := defaults[key]
	return ok
}

// loadDotEnv sets the variables of a .env file in the process environment.
// A missing file is not an error.
func loadDotEnv(fs afero.Fs, path string) error {
	f, err := fs.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	vars, err := godotenv.Parse(f)
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	for k, val := range vars {
		if _, exists := os.LookupEnv(k); exists {
			continue
		}
		if err := os.Setenv(k, val); err != nil {
			return fmt.Errorf("failed to set environment variable %s: %w", k, err)
		}
	}
	return nil
}

// Validate checks that the configuration can be used to start a chat.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Model) == "" {
		errs = append(errs, errors.New("model is required, set MODEL or --model"))
	}
	if c.InitTimeoutSec <= 0 {
		errs = append(errs, fmt.Errorf("init_timeout_sec must be positive, got %d", c.InitTimeoutSec))
	}
	if c.ToolTimeoutSec <= 0 {
		errs = append(errs, fmt.Errorf("tool_timeout_sec must be positive, got %d", c.ToolTimeoutSec))
	}
	if c.CompletionTimeoutSec <= 0 {
		errs = append(errs, fmt.Errorf("completion_timeout_sec must be positive, got %d", c.CompletionTimeoutSec))
	}
	if c.MetricsPort != "" {
		if p, err := strconv.Atoi(c.MetricsPort); err != nil || p <= 0 || p > 65535 {
			errs = append(errs, fmt.Errorf("metrics_port '%s' is not a valid port", c.MetricsPort))
		}
	}
	return errors.Join(errs...)
}

// InitTimeout is how long to wait for the tool provider to initialize.
func (c *Config) InitTimeout() time.Duration {
	return time.Duration(c.InitTimeoutSec) * time.Second
}

// ToolTimeout bounds a single tool invocation.
func (c *Config) ToolTimeout() time.Duration {
	return time.Duration(c.ToolTimeoutSec) * time.Second
}

// CompletionTimeout bounds a single completion call.
func (c *Config) CompletionTimeout() time.Duration {
	return time.Duration(c.CompletionTimeoutSec) * time.Second
}

// ProviderEnvList returns the well-formed "KEY=VALUE" entries of ProviderEnv.
func (c *Config) ProviderEnvList() []string {
	envVars := make([]string, 0, len(c.ProviderEnv))
	for _, kv := range c.ProviderEnv {
		k, _, ok := strings.Cut(kv, "=")
		if !ok || strings.TrimSpace(k) == "" {
			continue
		}
		envVars = append(envVars, kv)
	}
	return envVars
}

// Redacted returns a copy of the configuration with secrets masked.
func (c *Config) Redacted() *Config {
	out := *c
	if out.APIKey != "" {
		out.APIKey = redactedValue
	}
	if out.ProviderToken != "" {
		out.ProviderToken = redactedValue
	}
	if len(c.ProviderHeaders) > 0 {
		out.ProviderHeaders = make(map[string]string, len(c.ProviderHeaders))
		for k, v := range c.ProviderHeaders {
			if strings.EqualFold(k, "Authorization") {
				v = redactedValue
			}
			out.ProviderHeaders[k] = v
		}
	}
	return &out
}

// YAML renders the configuration with secrets masked.
func (c *Config) YAML() ([]byte, error) {
	b, err := yaml.Marshal(c.Redacted())
	if err != nil {
		return nil, fmt.Errorf("failed to encode configuration: %w", err)
	}
	return b, nil
}
