// Package config provides configuration management for the judgeroute
// command-line tool. It supports loading configuration from a YAML file,
// environment variables, and command-line flags.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/otherjamesbrown/judgeroute/pkg/batch"
	"github.com/otherjamesbrown/judgeroute/pkg/cnj"
	"github.com/otherjamesbrown/judgeroute/pkg/portal"
	"github.com/otherjamesbrown/judgeroute/pkg/resolver"
)

// OutputFormat defines the supported output formats for CLI results.
type OutputFormat string

const (
	// OutputFormatText is human-readable plain text output.
	OutputFormatText OutputFormat = "text"
	// OutputFormatJSON is JSON-formatted output for machine processing.
	OutputFormatJSON OutputFormat = "json"
	// OutputFormatYAML is YAML-formatted output for machine processing.
	OutputFormatYAML OutputFormat = "yaml"
)

// Default configuration values.
const (
	DefaultOutputFormat    = OutputFormatText
	DefaultConfigDir       = ".judgeroute"
	DefaultConfigFile      = "config.yaml"
	DefaultCheckpointFile  = "checkpoints.db"
	DefaultReportDir       = "relatorios"
	DefaultCheckpointStore = "sqlite"
	DefaultArtifactStore   = "fs"
	DefaultLogLevel        = "info"
	DefaultLogFormat       = "console"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "JUDGEROUTE_"

// Duration is a time.Duration that reads and writes as "2s", "1m30s".
type Duration time.Duration

// D returns the value as a time.Duration.
func (d Duration) D() time.Duration { return time.Duration(d) }

// String implements fmt.Stringer.
func (d Duration) String() string { return time.Duration(d).String() }

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parsing duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// PortalConfig holds the e-SAJ portal settings.
type PortalConfig struct {
	// BaseURL is the portal root; principal links resolve against it.
	BaseURL string `yaml:"base_url"`

	// URLStrategy selects how the primary URL is built: search or show.
	URLStrategy string `yaml:"url_strategy"`

	// Infix is the J.TR code stripped from 20-digit numbers.
	Infix string `yaml:"infix"`

	UserAgent         string   `yaml:"user_agent"`
	Timeout           Duration `yaml:"timeout"`
	MaxAttempts       int      `yaml:"max_attempts"`
	Backoff           Duration `yaml:"backoff"`
	RequestsPerMinute int      `yaml:"requests_per_minute"`

	PrincipalSelector string `yaml:"principal_selector,omitempty"`
	JudgeSelector     string `yaml:"judge_selector,omitempty"`
}

// PacingConfig holds the delay between records and the blocked-rate policy.
type PacingConfig struct {
	MinDelay           Duration `yaml:"min_delay"`
	MaxDelay           Duration `yaml:"max_delay"`
	BlockedWindow      int      `yaml:"blocked_window"`
	BlockedThreshold   float64  `yaml:"blocked_threshold"`
	BlockedConsecutive int      `yaml:"blocked_consecutive"`
}

// CheckpointConfig selects where run state is persisted.
type CheckpointConfig struct {
	// Backend is sqlite, redis, postgres or memory.
	Backend string `yaml:"backend"`

	// SQLitePath defaults to <config dir>/checkpoints.db.
	SQLitePath  string `yaml:"sqlite_path,omitempty"`
	RedisAddr   string `yaml:"redis_addr,omitempty"`
	RedisDB     int    `yaml:"redis_db,omitempty"`
	PostgresDSN string `yaml:"postgres_dsn,omitempty"`
}

// EventsConfig enables progress events on Redis pub/sub.
type EventsConfig struct {
	// RedisAddr enables publishing when set.
	RedisAddr     string `yaml:"redis_addr,omitempty"`
	RedisPassword string `yaml:"redis_password,omitempty"`
	RedisDB       int    `yaml:"redis_db,omitempty"`
}

// Enabled reports whether events should be published.
func (e EventsConfig) Enabled() bool { return e.RedisAddr != "" }

// S3Config holds the S3 artifact destination.
type S3Config struct {
	Bucket   string `yaml:"bucket,omitempty"`
	Region   string `yaml:"region,omitempty"`
	Endpoint string `yaml:"endpoint,omitempty"`
	Prefix   string `yaml:"prefix,omitempty"`
}

// OutputConfig controls where reports go and in which formats.
type OutputConfig struct {
	// Store is fs or s3.
	Store   string   `yaml:"store"`
	Dir     string   `yaml:"dir"`
	Formats []string `yaml:"formats"`
	Summary bool     `yaml:"summary"`
	S3      S3Config `yaml:"s3,omitempty"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// CLIConfig holds the CLI configuration settings.
type CLIConfig struct {
	// OutputFormat specifies the default output format for commands.
	OutputFormat OutputFormat `yaml:"output_format"`

	// Debug enables verbose debug logging.
	Debug bool `yaml:"debug,omitempty"`

	// StatusAddr starts the status server during extract when set.
	StatusAddr string `yaml:"status_addr,omitempty"`

	Portal     PortalConfig     `yaml:"portal"`
	Pacing     PacingConfig     `yaml:"pacing"`
	Checkpoint CheckpointConfig `yaml:"checkpoint"`
	Events     EventsConfig     `yaml:"events,omitempty"`
	Output     OutputConfig     `yaml:"output"`
	Log        LogConfig        `yaml:"log"`
}

// DefaultConfig returns a CLIConfig with default values.
func DefaultConfig() *CLIConfig {
	return &CLIConfig{
		OutputFormat: DefaultOutputFormat,
		Portal: PortalConfig{
			BaseURL:           portal.DefaultBaseURL,
			URLStrategy:       portal.StrategySearch,
			Infix:             cnj.DefaultInfix,
			UserAgent:         portal.DefaultUserAgent,
			Timeout:           Duration(portal.DefaultTimeout),
			MaxAttempts:       portal.DefaultMaxAttempts,
			Backoff:           Duration(portal.DefaultBackoff),
			RequestsPerMinute: portal.DefaultRequestsPerMinute,
			PrincipalSelector: resolver.DefaultPrincipalSelector,
			JudgeSelector:     resolver.DefaultJudgeSelector,
		},
		Pacing: PacingConfig{
			MinDelay:           Duration(batch.DefaultMinDelay),
			MaxDelay:           Duration(batch.DefaultMaxDelay),
			BlockedWindow:      batch.DefaultBlockedWindow,
			BlockedThreshold:   batch.DefaultBlockedThreshold,
			BlockedConsecutive: batch.DefaultBlockedConsecutive,
		},
		Checkpoint: CheckpointConfig{Backend: DefaultCheckpointStore},
		Output: OutputConfig{
			Store:   DefaultArtifactStore,
			Dir:     DefaultReportDir,
			Formats: []string{"pdf"},
		},
		Log: LogConfig{Level: DefaultLogLevel, Format: DefaultLogFormat},
	}
}

// ConfigDir returns the configuration directory path.
// Uses $JUDGEROUTE_CONFIG_DIR if set, otherwise ~/.judgeroute
func ConfigDir() (string, error) {
	if dir := os.Getenv(EnvPrefix + "CONFIG_DIR"); dir != "" {
		return dir, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}

	return filepath.Join(home, DefaultConfigDir), nil
}

// ConfigPath returns the full path to the configuration file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, DefaultConfigFile), nil
}

// LoadConfig loads the CLI configuration from file and environment variables.
// Configuration is loaded in this order (later sources override earlier):
// 1. Default values
// 2. Config file (~/.judgeroute/config.yaml or $JUDGEROUTE_CONFIG_DIR/config.yaml)
// 3. Environment variables (JUDGEROUTE_*)
func LoadConfig() (*CLIConfig, error) {
	configPath, err := ConfigPath()
	if err != nil {
		return nil, fmt.Errorf("getting config path: %w", err)
	}
	return LoadConfigFrom(configPath)
}

// LoadConfigFrom is LoadConfig with an explicit file path. A missing file
// is not an error.
func LoadConfigFrom(configPath string) (*CLIConfig, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); err == nil {
		if err := loadFromFile(cfg, configPath); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	if err := loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}

	if err := cfg.resolvePaths(filepath.Dir(configPath)); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// ReadFile returns the defaults overlaid with the file at path only, with no
// environment overrides and no path expansion. config set edits this view.
func ReadFile(path string) (*CLIConfig, error) {
	cfg := DefaultConfig()
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}
	if err := loadFromFile(cfg, path); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFromFile decodes YAML over the defaults; keys absent from the file
// keep their default values.
func loadFromFile(cfg *CLIConfig, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}
	return nil
}

// envSetter applies one environment variable.
type envSetter func(cfg *CLIConfig, v string) error

func setString(field func(*CLIConfig) *string) envSetter {
	return func(cfg *CLIConfig, v string) error {
		*field(cfg) = v
		return nil
	}
}

func setInt(field func(*CLIConfig) *int) envSetter {
	return func(cfg *CLIConfig, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*field(cfg) = n
		return nil
	}
}

func setDuration(field func(*CLIConfig) *Duration) envSetter {
	return func(cfg *CLIConfig, v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*field(cfg) = Duration(d)
		return nil
	}
}

func setBool(field func(*CLIConfig) *bool) envSetter {
	return func(cfg *CLIConfig, v string) error {
		*field(cfg) = v == "true" || v == "1"
		return nil
	}
}

// envVars maps JUDGEROUTE_<name> to its field.
var envVars = map[string]envSetter{
	"OUTPUT_FORMAT": func(cfg *CLIConfig, v string) error { cfg.OutputFormat = OutputFormat(v); return nil },
	"DEBUG":         setBool(func(c *CLIConfig) *bool { return &c.Debug }),
	"STATUS_ADDR":   setString(func(c *CLIConfig) *string { return &c.StatusAddr }),

	"PORTAL_BASE_URL":            setString(func(c *CLIConfig) *string { return &c.Portal.BaseURL }),
	"PORTAL_URL_STRATEGY":        setString(func(c *CLIConfig) *string { return &c.Portal.URLStrategy }),
	"PORTAL_INFIX":               setString(func(c *CLIConfig) *string { return &c.Portal.Infix }),
	"PORTAL_USER_AGENT":          setString(func(c *CLIConfig) *string { return &c.Portal.UserAgent }),
	"PORTAL_TIMEOUT":             setDuration(func(c *CLIConfig) *Duration { return &c.Portal.Timeout }),
	"PORTAL_MAX_ATTEMPTS":        setInt(func(c *CLIConfig) *int { return &c.Portal.MaxAttempts }),
	"PORTAL_BACKOFF":             setDuration(func(c *CLIConfig) *Duration { return &c.Portal.Backoff }),
	"PORTAL_REQUESTS_PER_MINUTE": setInt(func(c *CLIConfig) *int { return &c.Portal.RequestsPerMinute }),

	"PACING_MIN_DELAY":      setDuration(func(c *CLIConfig) *Duration { return &c.Pacing.MinDelay }),
	"PACING_MAX_DELAY":      setDuration(func(c *CLIConfig) *Duration { return &c.Pacing.MaxDelay }),
	"PACING_BLOCKED_WINDOW": setInt(func(c *CLIConfig) *int { return &c.Pacing.BlockedWindow }),
	"PACING_BLOCKED_THRESHOLD": func(cfg *CLIConfig, v string) error {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return err
		}
		cfg.Pacing.BlockedThreshold = f
		return nil
	},
	"PACING_BLOCKED_CONSECUTIVE": setInt(func(c *CLIConfig) *int { return &c.Pacing.BlockedConsecutive }),

	"CHECKPOINT_BACKEND":      setString(func(c *CLIConfig) *string { return &c.Checkpoint.Backend }),
	"CHECKPOINT_SQLITE_PATH":  setString(func(c *CLIConfig) *string { return &c.Checkpoint.SQLitePath }),
	"CHECKPOINT_REDIS_ADDR":   setString(func(c *CLIConfig) *string { return &c.Checkpoint.RedisAddr }),
	"CHECKPOINT_REDIS_DB":     setInt(func(c *CLIConfig) *int { return &c.Checkpoint.RedisDB }),
	"CHECKPOINT_POSTGRES_DSN": setString(func(c *CLIConfig) *string { return &c.Checkpoint.PostgresDSN }),

	"EVENTS_REDIS_ADDR":     setString(func(c *CLIConfig) *string { return &c.Events.RedisAddr }),
	"EVENTS_REDIS_PASSWORD": setString(func(c *CLIConfig) *string { return &c.Events.RedisPassword }),
	"EVENTS_REDIS_DB":       setInt(func(c *CLIConfig) *int { return &c.Events.RedisDB }),

	"OUTPUT_STORE":       setString(func(c *CLIConfig) *string { return &c.Output.Store }),
	"OUTPUT_DIR":         setString(func(c *CLIConfig) *string { return &c.Output.Dir }),
	"OUTPUT_S3_BUCKET":   setString(func(c *CLIConfig) *string { return &c.Output.S3.Bucket }),
	"OUTPUT_S3_REGION":   setString(func(c *CLIConfig) *string { return &c.Output.S3.Region }),
	"OUTPUT_S3_ENDPOINT": setString(func(c *CLIConfig) *string { return &c.Output.S3.Endpoint }),
	"OUTPUT_S3_PREFIX":   setString(func(c *CLIConfig) *string { return &c.Output.S3.Prefix }),
	"OUTPUT_FORMATS": func(cfg *CLIConfig, v string) error {
		cfg.Output.Formats = SplitList(v)
		return nil
	},

	"LOG_LEVEL":  setString(func(c *CLIConfig) *string { return &c.Log.Level }),
	"LOG_FORMAT": setString(func(c *CLIConfig) *string { return &c.Log.Format }),
}

// loadFromEnv overlays environment variables onto the configuration.
// Unparseable values are reported rather than ignored.
func loadFromEnv(cfg *CLIConfig) error {
	for name, set := range envVars {
		v, ok := os.LookupEnv(EnvPrefix + name)
		if !ok || v == "" {
			continue
		}
		if err := set(cfg, v); err != nil {
			return fmt.Errorf("%s%s=%q: %w", EnvPrefix, name, v, err)
		}
	}
	return nil
}

// Keys lists the names accepted by Set, e.g. "portal.base_url".
func Keys() []string {
	keys := make([]string, 0, len(envVars))
	for name := range envVars {
		keys = append(keys, keyName(name))
	}
	sort.Strings(keys)
	return keys
}

// Set assigns one value by key, as the matching environment variable would,
// and validates the result.
func (c *CLIConfig) Set(key, value string) error {
	name := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
	set, ok := envVars[name]
	if !ok {
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	if err := set(c, value); err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	return c.Validate()
}

// keyName turns PORTAL_BASE_URL into portal.base_url.
func keyName(env string) string {
	k := strings.ToLower(env)
	for _, section := range []string{"portal", "pacing", "checkpoint", "events", "output", "log"} {
		if strings.HasPrefix(k, section+"_") && k != "output_format" {
			return section + "." + k[len(section)+1:]
		}
	}
	return k
}

// resolvePaths expands ~ and fills the default sqlite path.
func (c *CLIConfig) resolvePaths(configDir string) error {
	if c.Checkpoint.SQLitePath == "" {
		c.Checkpoint.SQLitePath = filepath.Join(configDir, DefaultCheckpointFile)
	}
	var err error
	if c.Checkpoint.SQLitePath, err = ExpandPath(c.Checkpoint.SQLitePath); err != nil {
		return err
	}
	if c.Output.Dir, err = ExpandPath(c.Output.Dir); err != nil {
		return err
	}
	return nil
}

// SplitList splits a comma separated list, dropping blanks.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.ToLower(strings.TrimSpace(part)); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks that the configuration is valid.
func (c *CLIConfig) Validate() error {
	if !c.OutputFormat.IsValid() {
		return fmt.Errorf("invalid output_format: %q (must be text, json, or yaml)", c.OutputFormat)
	}

	p := c.Portal
	if p.BaseURL == "" {
		return fmt.Errorf("portal.base_url is required")
	}
	if p.URLStrategy != portal.StrategySearch && p.URLStrategy != portal.StrategyShow {
		return fmt.Errorf("invalid portal.url_strategy: %q (must be search or show)", p.URLStrategy)
	}
	if len(p.Infix) != 3 || strings.Trim(p.Infix, "0123456789") != "" {
		return fmt.Errorf("invalid portal.infix: %q (must be three digits)", p.Infix)
	}
	if p.Timeout <= 0 {
		return fmt.Errorf("portal.timeout must be positive")
	}
	if p.MaxAttempts < 1 {
		return fmt.Errorf("portal.max_attempts must be at least 1")
	}
	if p.Backoff < 0 {
		return fmt.Errorf("portal.backoff must not be negative")
	}
	if p.RequestsPerMinute < 0 {
		return fmt.Errorf("portal.requests_per_minute must not be negative")
	}

	if c.Pacing.MinDelay < 0 || c.Pacing.MaxDelay < c.Pacing.MinDelay {
		return fmt.Errorf("pacing delays must satisfy 0 <= min_delay <= max_delay")
	}
	if c.Pacing.BlockedWindow < 1 {
		return fmt.Errorf("pacing.blocked_window must be at least 1")
	}
	if c.Pacing.BlockedThreshold <= 0 || c.Pacing.BlockedThreshold > 1 {
		return fmt.Errorf("pacing.blocked_threshold must be in (0, 1]")
	}

	switch c.Checkpoint.Backend {
	case "sqlite", "memory":
	case "redis":
		if c.Checkpoint.RedisAddr == "" {
			return fmt.Errorf("checkpoint.redis_addr is required for the redis backend")
		}
	case "postgres":
		if c.Checkpoint.PostgresDSN == "" {
			return fmt.Errorf("checkpoint.postgres_dsn is required for the postgres backend")
		}
	default:
		return fmt.Errorf("invalid checkpoint.backend: %q (must be sqlite, redis, postgres or memory)", c.Checkpoint.Backend)
	}

	switch c.Output.Store {
	case "fs":
		if c.Output.Dir == "" {
			return fmt.Errorf("output.dir is required for the fs store")
		}
	case "s3":
		if c.Output.S3.Bucket == "" {
			return fmt.Errorf("output.s3.bucket is required for the s3 store")
		}
	default:
		return fmt.Errorf("invalid output.store: %q (must be fs or s3)", c.Output.Store)
	}
	if len(c.Output.Formats) == 0 {
		return fmt.Errorf("output.formats must list at least one format")
	}
	for _, f := range c.Output.Formats {
		if f != "pdf" && f != "docx" {
			return fmt.Errorf("invalid output format %q (must be pdf or docx)", f)
		}
	}

	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("invalid log.format: %q (must be console or json)", c.Log.Format)
	}

	return nil
}

// IsValid checks if the output format is valid.
func (f OutputFormat) IsValid() bool {
	switch f {
	case OutputFormatText, OutputFormatJSON, OutputFormatYAML:
		return true
	default:
		return false
	}
}

// String returns the string representation of the output format.
func (f OutputFormat) String() string {
	return string(f)
}

// SaveConfig saves the configuration to the config file.
func SaveConfig(cfg *CLIConfig) error {
	configDir, err := ConfigDir()
	if err != nil {
		return fmt.Errorf("getting config directory: %w", err)
	}

	// Ensure config directory exists.
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	configPath := filepath.Join(configDir, DefaultConfigFile)
	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// EnsureConfigDir creates the configuration directory if it doesn't exist.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0700)
}

// ExpandPath expands ~ to the user's home directory.
func ExpandPath(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("getting home directory: %w", err)
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}
