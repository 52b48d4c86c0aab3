package cmd

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/judgeroute/pkg/batch"
	"github.com/otherjamesbrown/judgeroute/pkg/checkpoint"
	"github.com/otherjamesbrown/judgeroute/pkg/resolver"
)

// RecordView is one record as listed by status --records.
type RecordView struct {
	Index      int    `json:"index" yaml:"index"`
	ProcessID  string `json:"process_id" yaml:"process_id"`
	Division   string `json:"court_division" yaml:"court_division"`
	Outcome    string `json:"outcome" yaml:"outcome"`
	Judge      string `json:"judge" yaml:"judge"`
	Detail     string `json:"detail,omitempty" yaml:"detail,omitempty"`
	Overridden bool   `json:"overridden,omitempty" yaml:"overridden,omitempty"`
}

// RunStatus is the structured output of status <run-id>.
type RunStatus struct {
	Summary batch.Summary `json:"summary" yaml:"summary"`
	Records []RecordView  `json:"records,omitempty" yaml:"records,omitempty"`
}

// NewStatusCommand creates the status command.
func NewStatusCommand(deps *CommandDeps) *cobra.Command {
	if deps == nil {
		deps = DefaultDeps()
	}
	var (
		limit   int
		records bool
		all     bool
	)

	cmd := &cobra.Command{
		Use:   "status [run-id|latest]",
		Short: "List checkpointed runs or show one run",
		Long: `Without arguments, list the checkpointed runs, most recent first.

With a run id, show its progress and outcome counts. --records lists the
records that need a manual decision (not found or blocked); add --all to list
every record.

Examples:
  judgeroute status
  judgeroute status latest --records
  judgeroute status 3f2a... -o json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := deps.prepare(cmd); err != nil {
				return err
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			w := cmd.OutOrStdout()
			return deps.withStore(ctx, func(store checkpoint.Store) error {
				if len(args) == 0 {
					return listRuns(ctx, w, deps, store, limit)
				}
				return showRun(ctx, w, deps, store, args[0], records || all, all)
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum runs to list")
	cmd.Flags().BoolVar(&records, "records", false, "list records that need review")
	cmd.Flags().BoolVar(&all, "all", false, "with --records, list every record")

	return cmd
}

func listRuns(ctx context.Context, w io.Writer, deps *CommandDeps, store checkpoint.Store, limit int) error {
	runs, err := store.List(ctx, limit)
	if err != nil {
		return fmt.Errorf("listing runs: %w", err)
	}
	if runs == nil {
		runs = []batch.Summary{}
	}
	return output(w, deps.OutputFormat, runs, func() error {
		if len(runs) == 0 {
			fmt.Fprintln(w, "No runs found.")
			return nil
		}
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "RUN\tSOURCE\tSTATUS\tPROGRESS\tFOUND\tREVIEW\tUPDATED")
		fmt.Fprintln(tw, "---\t------\t------\t--------\t-----\t------\t-------")
		for _, s := range runs {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d/%d\t%d\t%d\t%s\n",
				s.RunID,
				truncate(s.Source, 30),
				s.Status,
				s.Cursor, s.Total,
				s.Counts[resolver.KindFound.String()],
				needsReview(s),
				s.UpdatedAt.Local().Format("2006-01-02 15:04"))
		}
		return tw.Flush()
	})
}

func showRun(ctx context.Context, w io.Writer, deps *CommandDeps, store checkpoint.Store, runID string, withRecords, all bool) error {
	st, err := checkpoint.Resolve(ctx, store, runID)
	if err != nil {
		return fmt.Errorf("loading run %s: %w", runID, err)
	}
	rs := RunStatus{Summary: st.Summarize(batch.DefaultBlockedWindow)}
	if withRecords {
		rs.Records = recordViews(st, func(r batch.ProcessRecord) bool {
			return all || r.Judge.Overridable()
		})
	}

	return output(w, deps.OutputFormat, rs, func() error {
		printSummary(w, rs.Summary)
		if withRecords {
			fmt.Fprintln(w)
			if len(rs.Records) == 0 {
				fmt.Fprintln(w, "No records need review.")
			} else {
				printRecords(w, rs.Records)
			}
		}
		printNextSteps(w, rs.Summary, false)
		return nil
	})
}

func recordViews(st *batch.State, keep func(batch.ProcessRecord) bool) []RecordView {
	var out []RecordView
	for i, r := range st.Records {
		if !keep(r) {
			continue
		}
		out = append(out, RecordView{
			Index:      i,
			ProcessID:  r.ProcessID,
			Division:   r.CourtDivision,
			Outcome:    r.Judge.Kind.String(),
			Judge:      r.Judge.Display(),
			Detail:     r.Judge.Detail,
			Overridden: r.Overridden,
		})
	}
	return out
}

func printRecords(w io.Writer, records []RecordView) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tPROCESS\tDIVISION\tOUTCOME\tJUDGE")
	fmt.Fprintln(tw, "-\t-------\t--------\t-------\t-----")
	for _, r := range records {
		judge := r.Judge
		if r.Overridden {
			judge += " (manual)"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", r.Index, r.ProcessID, truncate(r.Division, 30), r.Outcome, judge)
	}
	tw.Flush()
}

func needsReview(s batch.Summary) int {
	return s.Counts[resolver.KindNotFound.String()] + s.Counts[resolver.KindBlocked.String()]
}

// printSummary prints a run summary in the text format.
func printSummary(w io.Writer, s batch.Summary) {
	fmt.Fprintf(w, "Run:           %s\n", s.RunID)
	if s.Source != "" {
		fmt.Fprintf(w, "Source:        %s\n", s.Source)
	}
	fmt.Fprintf(w, "Status:        %s\n", s.Status)
	fmt.Fprintf(w, "Progress:      %d/%d\n", s.Cursor, s.Total)
	fmt.Fprintf(w, "Found:         %d\n", s.Counts[resolver.KindFound.String()])
	fmt.Fprintf(w, "Not found:     %d\n", s.Counts[resolver.KindNotFound.String()])
	fmt.Fprintf(w, "Blocked:       %d\n", s.Counts[resolver.KindBlocked.String()])
	fmt.Fprintf(w, "Errors:        %d\n", s.Counts[resolver.KindTransientError.String()])
	if s.Overridden > 0 {
		fmt.Fprintf(w, "Overridden:    %d\n", s.Overridden)
	}
	if s.BlockedRate > 0 {
		fmt.Fprintf(w, "Blocked rate:  %.0f%%\n", s.BlockedRate*100)
	}
}

// printNextSteps suggests the command that moves the run forward.
func printNextSteps(w io.Writer, s batch.Summary, interrupted bool) {
	switch {
	case interrupted || (s.Status != batch.StatusCompleted.String() && s.Total > 0):
		fmt.Fprintf(w, "\nPaused. Resume with: judgeroute extract --resume %s\n", s.RunID)
	case needsReview(s) > 0:
		fmt.Fprintf(w, "\n%d record(s) need review: judgeroute override %s --interactive\n", needsReview(s), s.RunID)
		fmt.Fprintf(w, "Generate reports with: judgeroute report %s\n", s.RunID)
	default:
		fmt.Fprintf(w, "\nGenerate reports with: judgeroute report %s\n", s.RunID)
	}
}
