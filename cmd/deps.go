// Package cmd provides CLI commands for the judgeroute tool.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/judgeroute/config"
	"github.com/otherjamesbrown/judgeroute/pkg/artifacts"
	"github.com/otherjamesbrown/judgeroute/pkg/batch"
	"github.com/otherjamesbrown/judgeroute/pkg/checkpoint"
	"github.com/otherjamesbrown/judgeroute/pkg/events"
	"github.com/otherjamesbrown/judgeroute/pkg/logging"
	"github.com/otherjamesbrown/judgeroute/pkg/observability"
	"github.com/otherjamesbrown/judgeroute/pkg/portal"
)

// EventPublisher is an observer that holds a connection.
type EventPublisher interface {
	batch.Observer
	Close() error
}

// CommandDeps holds the dependencies of every judgeroute command.
// This allows for easier testing by injecting fakes.
type CommandDeps struct {
	Config       *config.CLIConfig
	OutputFormat config.OutputFormat
	Logger       logging.Logger

	// Stdin feeds interactive prompts.
	Stdin io.Reader

	LoadConfig    func(path string) (*config.CLIConfig, error)
	OpenStore     func(ctx context.Context, cfg *config.CLIConfig, reg prometheus.Registerer) (checkpoint.Store, error)
	OpenArtifacts func(ctx context.Context, cfg *config.CLIConfig) (artifacts.Store, error)
	OpenEvents    func(ctx context.Context, cfg *config.CLIConfig, logger logging.Logger) (EventPublisher, error)

	// Sleep backs both the fetch backoff and the pacing delay.
	Sleep portal.Sleeper
	Now   func() time.Time

	// Registry collects the run's metrics and backs /metrics.
	Registry *prometheus.Registry

	runMetrics *observability.Metrics
}

// DefaultDeps returns the default dependencies for production use.
func DefaultDeps() *CommandDeps {
	return &CommandDeps{
		Stdin:         os.Stdin,
		LoadConfig:    loadConfig,
		OpenStore:     openStore,
		OpenArtifacts: openArtifacts,
		OpenEvents:    openEvents,
		Sleep:         portal.SleepContext,
		Now:           time.Now,
		Registry:      prometheus.NewRegistry(),
	}
}

func loadConfig(path string) (*config.CLIConfig, error) {
	if path == "" {
		return config.LoadConfig()
	}
	return config.LoadConfigFrom(path)
}

func openStore(ctx context.Context, cfg *config.CLIConfig, reg prometheus.Registerer) (checkpoint.Store, error) {
	c := cfg.Checkpoint
	return checkpoint.Open(ctx, checkpoint.Config{
		Backend:     c.Backend,
		SQLitePath:  c.SQLitePath,
		RedisAddr:   c.RedisAddr,
		RedisDB:     c.RedisDB,
		PostgresDSN: c.PostgresDSN,
		Registerer:  reg,
	})
}

func openArtifacts(ctx context.Context, cfg *config.CLIConfig) (artifacts.Store, error) {
	o := cfg.Output
	return artifacts.Open(ctx, artifacts.Config{
		Backend: o.Store,
		Dir:     o.Dir,
		S3: artifacts.S3Config{
			Bucket:   o.S3.Bucket,
			Region:   o.S3.Region,
			Endpoint: o.S3.Endpoint,
			Prefix:   o.S3.Prefix,
		},
	})
}

func openEvents(ctx context.Context, cfg *config.CLIConfig, logger logging.Logger) (EventPublisher, error) {
	p, err := events.NewPublisherFromConfig(ctx, events.PublisherConfig{
		Addr:     cfg.Events.RedisAddr,
		Password: cfg.Events.RedisPassword,
		DB:       cfg.Events.RedisDB,
	}, logger)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// prepare loads configuration once and applies the root persistent flags.
func (d *CommandDeps) prepare(cmd *cobra.Command) error {
	if d.Config == nil {
		cfg, err := d.LoadConfig(rootFlag(cmd, "config"))
		if err != nil {
			return fmt.Errorf("loading configuration: %w", err)
		}
		d.Config = cfg
	}

	// The flag applies to this invocation only; the config keeps the default.
	format := d.Config.OutputFormat
	if v := rootFlag(cmd, "output"); v != "" {
		format = config.OutputFormat(v)
	}
	if !format.IsValid() {
		return fmt.Errorf("invalid output format: %q (must be text, json, or yaml)", format)
	}
	d.OutputFormat = format

	if rootFlag(cmd, "debug") == "true" {
		d.Config.Debug = true
	}
	if v := rootFlag(cmd, "log-format"); v != "" {
		d.Config.Log.Format = v
	}

	if d.Logger == nil {
		level := logging.Level(d.Config.Log.Level)
		if d.Config.Debug {
			level = logging.LevelDebug
		}
		d.Logger = logging.NewLogger(&logging.Config{
			Level:   level,
			Command: "judgeroute " + cmd.Name(),
			Format:  logging.Format(d.Config.Log.Format),
			Output:  cmd.ErrOrStderr(),
		})
	}
	if d.Registry == nil {
		d.Registry = prometheus.NewRegistry()
	}
	if d.Sleep == nil {
		d.Sleep = portal.SleepContext
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Stdin == nil {
		d.Stdin = os.Stdin
	}
	return nil
}

// rootFlag reads a persistent flag from the root command, "" when unset.
func rootFlag(cmd *cobra.Command, name string) string {
	if cmd == nil {
		return ""
	}
	if f := cmd.Root().PersistentFlags().Lookup(name); f != nil && f.Changed {
		return f.Value.String()
	}
	return ""
}

// withStore opens the checkpoint store for the duration of fn.
func (d *CommandDeps) withStore(ctx context.Context, fn func(checkpoint.Store) error) error {
	store, err := d.OpenStore(ctx, d.Config, d.Registry)
	if err != nil {
		return fmt.Errorf("opening checkpoint store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			d.Logger.Warn("Closing checkpoint store failed", logging.Err(err))
		}
	}()
	return fn(store)
}
