package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/judgeroute/pkg/cnj"
	"github.com/otherjamesbrown/judgeroute/pkg/portal"
)

// NormalizedID is one line of normalize output.
type NormalizedID struct {
	Input   string `json:"input" yaml:"input"`
	Digits  string `json:"digits,omitempty" yaml:"digits,omitempty"`
	Query   string `json:"query,omitempty" yaml:"query,omitempty"`
	Display string `json:"display,omitempty" yaml:"display,omitempty"`
	Forum   string `json:"forum,omitempty" yaml:"forum,omitempty"`
	URL     string `json:"url,omitempty" yaml:"url,omitempty"`
	Error   string `json:"error,omitempty" yaml:"error,omitempty"`
}

// NewNormalizeCommand creates the normalize command.
func NewNormalizeCommand(deps *CommandDeps) *cobra.Command {
	if deps == nil {
		deps = DefaultDeps()
	}

	cmd := &cobra.Command{
		Use:   "normalize <process-number>...",
		Short: "Show how process numbers are normalized and queried",
		Long: `Normalize process numbers the way extract does, and print the portal URL
that would be fetched for each. Nothing is requested from the portal.

Examples:
  judgeroute normalize 1234567-89.2024.8.26.0100
  judgeroute normalize 12345678920240100 -o json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := deps.prepare(cmd); err != nil {
				return err
			}
			p := deps.Config.Portal
			strategy, err := portal.StrategyByName(p.URLStrategy, p.BaseURL)
			if err != nil {
				return err
			}
			normalizer := cnj.Normalizer{Infix: p.Infix}

			results := make([]NormalizedID, 0, len(args))
			failed := 0
			for _, raw := range args {
				id, err := normalizer.Normalize(raw)
				if err != nil {
					failed++
					results = append(results, NormalizedID{Input: raw, Error: err.Error()})
					continue
				}
				results = append(results, NormalizedID{
					Input:   raw,
					Digits:  id.Digits,
					Query:   id.Query,
					Display: id.Display,
					Forum:   id.Forum,
					URL:     strategy.PrimaryURL(id),
				})
			}

			w := cmd.OutOrStdout()
			if err := output(w, deps.OutputFormat, results, func() error {
				tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "INPUT\tDISPLAY\tQUERY\tURL")
				for _, r := range results {
					if r.Error != "" {
						fmt.Fprintf(tw, "%s\t-\t-\t%s\n", r.Input, r.Error)
						continue
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.Input, r.Display, r.Query, r.URL)
				}
				return tw.Flush()
			}); err != nil {
				return err
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d process numbers are invalid", failed, len(args))
			}
			return nil
		},
	}

	return cmd
}
