package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/judgeroute/config"
	"github.com/otherjamesbrown/judgeroute/pkg/artifacts"
	"github.com/otherjamesbrown/judgeroute/pkg/batch"
	"github.com/otherjamesbrown/judgeroute/pkg/checkpoint"
	"github.com/otherjamesbrown/judgeroute/pkg/logging"
	"github.com/otherjamesbrown/judgeroute/pkg/report"
)

// ReportResult is the structured output of report.
type ReportResult struct {
	RunID     string            `json:"run_id" yaml:"run_id"`
	Date      string            `json:"date" yaml:"date"`
	Complete  bool              `json:"complete" yaml:"complete"`
	Artifacts []report.Artifact `json:"artifacts" yaml:"artifacts"`
}

// NewReportCommand creates the report command.
func NewReportCommand(deps *CommandDeps) *cobra.Command {
	if deps == nil {
		deps = DefaultDeps()
	}
	var (
		formats []string
		date    string
		summary bool
		outDir  string
	)

	cmd := &cobra.Command{
		Use:   "report <run-id|latest>",
		Short: "Write one report per judge for a run",
		Long: `Group the records of a run by judge and court division and write one
document per judge. Only records with a resolved judge (found or overridden)
are included; use 'judgeroute override' first for the rest.

Documents are named <judge>_<date>.<ext> and written to the configured
artifact store (a local directory, or S3).

Examples:
  judgeroute report latest
  judgeroute report 3f2a... --format pdf,docx --date 2024-03-05
  judgeroute report latest --out ./relatorios --summary`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := deps.prepare(cmd); err != nil {
				return err
			}
			if cmd.Flags().Changed("format") {
				deps.Config.Output.Formats = config.SplitList(strings.Join(formats, ","))
			}
			if cmd.Flags().Changed("summary") {
				deps.Config.Output.Summary = summary
			}
			if outDir != "" {
				dir, err := config.ExpandPath(outDir)
				if err != nil {
					return err
				}
				deps.Config.Output.Store = artifacts.BackendFS
				deps.Config.Output.Dir = dir
			}

			reportDate := deps.Now()
			if date != "" {
				d, err := time.ParseInLocation(report.DateLayout, date, time.Local)
				if err != nil {
					return fmt.Errorf("invalid --date %q (want YYYY-MM-DD)", date)
				}
				reportDate = d
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return deps.withStore(ctx, func(store checkpoint.Store) error {
				return runReport(ctx, cmd, deps, store, args[0], reportDate)
			})
		},
	}

	cmd.Flags().StringSliceVarP(&formats, "format", "f", nil, "document formats: pdf, docx (default from config)")
	cmd.Flags().StringVar(&date, "date", "", "report date, YYYY-MM-DD (default today)")
	cmd.Flags().BoolVar(&summary, "summary", false, "also write the consolidated CSV of all records")
	cmd.Flags().StringVar(&outDir, "out", "", "write to this local directory instead of the configured store")

	return cmd
}

func runReport(ctx context.Context, cmd *cobra.Command, deps *CommandDeps, store checkpoint.Store, runID string, date time.Time) error {
	st, err := checkpoint.Resolve(ctx, store, runID)
	if err != nil {
		return fmt.Errorf("loading run %s: %w", runID, err)
	}

	renderers := make([]report.Renderer, 0, len(deps.Config.Output.Formats))
	for _, f := range deps.Config.Output.Formats {
		r, err := report.RendererFor(f)
		if err != nil {
			return err
		}
		renderers = append(renderers, r)
	}

	complete := st.Status() == batch.StatusCompleted
	if !complete {
		deps.Logger.Warn("Run is not complete; unresolved records are left out of the reports",
			logging.F("run_id", st.RunID),
			logging.F("cursor", st.Cursor),
			logging.F("total", len(st.Records)))
	}

	sink, err := deps.OpenArtifacts(ctx, deps.Config)
	if err != nil {
		return fmt.Errorf("opening artifact store: %w", err)
	}
	pub := report.NewPublisher(sink, renderers,
		report.WithSummary(deps.Config.Output.Summary),
		report.WithPublishLogger(deps.Logger))

	arts, err := pub.Publish(ctx, st.Records, report.Meta{Date: date, RunID: st.RunID, Source: st.Source})
	if err != nil {
		return err
	}
	if arts == nil {
		arts = []report.Artifact{}
	}

	result := ReportResult{
		RunID:     st.RunID,
		Date:      date.Format(report.DateLayout),
		Complete:  complete,
		Artifacts: arts,
	}
	w := cmd.OutOrStdout()
	return output(w, deps.OutputFormat, result, func() error {
		if len(arts) == 0 {
			fmt.Fprintln(w, "No records with a resolved judge; nothing written.")
			return nil
		}
		for _, a := range arts {
			if a.Judge != "" {
				fmt.Fprintf(w, "%-5s %-40s %3d record(s)  %s\n", a.Format, truncate(a.Judge, 40), a.Records, a.Location)
			} else {
				fmt.Fprintf(w, "%-5s %-40s %3d record(s)  %s\n", a.Format, "(resumo)", a.Records, a.Location)
			}
		}
		fmt.Fprintf(w, "\n%d file(s) written for run %s\n", len(arts), st.RunID)
		return nil
	})
}
