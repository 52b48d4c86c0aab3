package cmd

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/judgeroute/config"
	"github.com/otherjamesbrown/judgeroute/pkg/batch"
	"github.com/otherjamesbrown/judgeroute/pkg/checkpoint"
	"github.com/otherjamesbrown/judgeroute/pkg/cnj"
	jrerrors "github.com/otherjamesbrown/judgeroute/pkg/errors"
	"github.com/otherjamesbrown/judgeroute/pkg/ingest"
	"github.com/otherjamesbrown/judgeroute/pkg/logging"
	"github.com/otherjamesbrown/judgeroute/pkg/observability"
	"github.com/otherjamesbrown/judgeroute/pkg/portal"
	"github.com/otherjamesbrown/judgeroute/pkg/resolver"
	"github.com/otherjamesbrown/judgeroute/pkg/statusserver"
)

// extractOptions are the extract command flags.
type extractOptions struct {
	resume     string
	charset    string
	listen     string
	noProgress bool
}

// ExtractResult is the structured output of extract.
type ExtractResult struct {
	RunID       string        `json:"run_id" yaml:"run_id"`
	Interrupted bool          `json:"interrupted" yaml:"interrupted"`
	Skipped     int           `json:"skipped_rows,omitempty" yaml:"skipped_rows,omitempty"`
	BadDates    []int         `json:"bad_date_lines,omitempty" yaml:"bad_date_lines,omitempty"`
	Summary     batch.Summary `json:"summary" yaml:"summary"`
}

// NewExtractCommand creates the extract command.
func NewExtractCommand(deps *CommandDeps) *cobra.Command {
	if deps == nil {
		deps = DefaultDeps()
	}
	var opts extractOptions

	cmd := &cobra.Command{
		Use:   "extract [export.csv]",
		Short: "Resolve the judge of every process in a writ export",
		Long: `Read a ';' separated MLE export and resolve the presiding judge of each
process from the e-SAJ portal, one request at a time.

Progress is checkpointed after every record. Ctrl-C pauses the run; resume it
later with --resume. Records resolved before the interruption are never
fetched again.

Examples:
  judgeroute extract mles.csv
  judgeroute extract mles.csv --charset windows-1252
  judgeroute extract --resume latest
  judgeroute extract mles.csv --listen :9464   # serve /status and /metrics`,
		Args: func(cmd *cobra.Command, args []string) error {
			if opts.resume == "" && len(args) != 1 {
				return fmt.Errorf("requires the export file, or --resume <run-id>")
			}
			if opts.resume != "" && len(args) > 0 {
				return fmt.Errorf("--resume does not take an export file")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := deps.prepare(cmd); err != nil {
				return err
			}
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			return runExtract(cmd, deps, path, opts)
		},
	}

	cmd.Flags().StringVar(&opts.resume, "resume", "", "resume a checkpointed run by id, or 'latest'")
	cmd.Flags().StringVar(&opts.charset, "charset", ingest.CharsetAuto, "export encoding: auto, utf-8, windows-1252, iso-8859-1")
	cmd.Flags().StringVar(&opts.listen, "listen", "", "serve /healthz, /status and /metrics on this address")
	cmd.Flags().BoolVar(&opts.noProgress, "no-progress", false, "do not print the progress line")

	return cmd
}

func runExtract(cmd *cobra.Command, deps *CommandDeps, path string, opts extractOptions) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cfg := deps.Config
	logger := deps.Logger

	return deps.withStore(ctx, func(store checkpoint.Store) error {
		printer := newProgressPrinter(cmd.ErrOrStderr())
		observers := batch.Observers{batch.ObserverFuncs{Warning: printer.Warn}}

		if cfg.Events.Enabled() {
			pub, err := deps.OpenEvents(ctx, cfg, logger)
			if err != nil {
				return fmt.Errorf("connecting event publisher: %w", err)
			}
			defer pub.Close()
			observers = append(observers, pub)
		}

		orch := deps.newOrchestrator(store, observers)
		result := ExtractResult{}

		if opts.resume != "" {
			st, err := checkpoint.Resolve(ctx, store, opts.resume)
			if err != nil {
				return fmt.Errorf("loading run %s: %w", opts.resume, err)
			}
			if err := orch.Restore(st); err != nil {
				return err
			}
			result.RunID = st.RunID
		} else {
			normalizer := cnj.Normalizer{Infix: cfg.Portal.Infix}
			read, err := ingest.ReadFile(path, ingest.Options{Charset: opts.charset, Normalizer: &normalizer})
			if err != nil {
				return err
			}
			if len(read.Records) == 0 {
				return fmt.Errorf("%w: %s has no process numbers", jrerrors.ErrValidation, path)
			}
			runID, err := orch.Load(filepath.Base(path), read.Records)
			if err != nil {
				return err
			}
			if err := store.Save(ctx, orch.Snapshot()); err != nil {
				return fmt.Errorf("saving initial checkpoint: %w", err)
			}
			result.RunID = runID
			result.Skipped = read.Skipped
			result.BadDates = read.BadDates
			logger.Info("Export loaded",
				logging.F("run_id", runID),
				logging.F("records", len(read.Records)),
				logging.F("skipped", read.Skipped))
			if len(read.BadDates) > 0 {
				logger.Warn("Unparseable action dates kept as text",
					logging.F("lines", read.BadDates))
			}
		}

		if !opts.noProgress && deps.OutputFormat == config.OutputFormatText {
			orch.Progress().SetOnUpdate(printer.Update)
		}

		addr := opts.listen
		if addr == "" {
			addr = cfg.StatusAddr
		}
		if addr != "" {
			srv := statusserver.New(orch,
				statusserver.WithGatherer(deps.Registry),
				statusserver.WithLogger(logger),
				statusserver.WithStoreHealth(func(ctx context.Context) checkpoint.Health {
					return checkpoint.CheckHealth(ctx, store, cfg.Checkpoint.Backend)
				}))
			if err := srv.Start(addr); err != nil {
				return err
			}
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}()
		}

		runErr := orch.Run(ctx)
		printer.Done()
		if runErr != nil && !errors.Is(runErr, context.Canceled) {
			return fmt.Errorf("run %s: %w", result.RunID, runErr)
		}
		result.Interrupted = runErr != nil
		result.Summary = orch.Summary()

		w := cmd.OutOrStdout()
		return output(w, deps.OutputFormat, result, func() error {
			printSummary(w, result.Summary)
			if result.Skipped > 0 {
				fmt.Fprintf(w, "Skipped rows:  %d (no process number)\n", result.Skipped)
			}
			if len(result.BadDates) > 0 {
				fmt.Fprintf(w, "Odd dates:     %d (kept as exported)\n", len(result.BadDates))
			}
			printNextSteps(w, result.Summary, result.Interrupted)
			return nil
		})
	})
}

// metrics returns the process-wide metrics, registering them once.
func (d *CommandDeps) metrics() *observability.Metrics {
	if d.runMetrics == nil {
		d.runMetrics = observability.NewMetrics(d.Registry)
	}
	return d.runMetrics
}

// newResolver wires the fetcher and resolver from the portal config.
func (d *CommandDeps) newResolver(tracer *observability.Tracer) (*resolver.Resolver, error) {
	p := d.Config.Portal
	fetcher := portal.NewFetcher(portal.Config{
		UserAgent:         p.UserAgent,
		Timeout:           p.Timeout.D(),
		MaxAttempts:       p.MaxAttempts,
		Backoff:           p.Backoff.D(),
		RequestsPerMinute: p.RequestsPerMinute,
	},
		portal.WithSleeper(d.Sleep),
		portal.WithMetrics(d.metrics()),
		portal.WithTracer(tracer),
		portal.WithLogger(d.Logger),
	)

	strategy, err := portal.StrategyByName(p.URLStrategy, p.BaseURL)
	if err != nil {
		return nil, err
	}
	sel := resolver.DefaultSelectors()
	if p.PrincipalSelector != "" {
		sel.Principal = p.PrincipalSelector
	}
	if p.JudgeSelector != "" {
		sel.Judge = p.JudgeSelector
	}
	return resolver.New(fetcher,
		resolver.WithStrategy(strategy),
		resolver.WithBaseURL(p.BaseURL),
		resolver.WithSelectors(sel),
		resolver.WithTracer(tracer),
		resolver.WithLogger(d.Logger),
	), nil
}

// newOrchestrator builds an orchestrator checkpointing into store. The
// resolver is created lazily so commands that never step (override) do
// not need a valid portal configuration.
func (d *CommandDeps) newOrchestrator(store checkpoint.Store, observers batch.Observers) *batch.Orchestrator {
	cfg := d.Config
	tracer := observability.NewTracer()
	return batch.New(&lazyResolver{deps: d, tracer: tracer},
		batch.WithPacing(batch.Pacing{Min: cfg.Pacing.MinDelay.D(), Max: cfg.Pacing.MaxDelay.D()}),
		batch.WithSleeper(d.Sleep),
		batch.WithNormalizer(cnj.Normalizer{Infix: cfg.Portal.Infix}),
		batch.WithObserver(observers),
		batch.WithCheckpointer(store),
		batch.WithBlockedPolicy(batch.BlockedPolicy{
			Window:      cfg.Pacing.BlockedWindow,
			Threshold:   cfg.Pacing.BlockedThreshold,
			Consecutive: cfg.Pacing.BlockedConsecutive,
		}),
		batch.WithMetrics(d.metrics()),
		batch.WithTracer(tracer),
		batch.WithLogger(d.Logger),
		batch.WithClock(d.Now),
	)
}

// lazyResolver builds the real resolver on first use.
type lazyResolver struct {
	deps   *CommandDeps
	tracer *observability.Tracer
	r      *resolver.Resolver
	err    error
}

func (l *lazyResolver) Resolve(ctx context.Context, id cnj.ID) resolver.Outcome {
	if l.r == nil && l.err == nil {
		l.r, l.err = l.deps.newResolver(l.tracer)
	}
	if l.err != nil {
		return resolver.TransientError("resolver configuration: " + l.err.Error())
	}
	return l.r.Resolve(ctx, id)
}
