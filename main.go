// Package main provides the judgeroute CLI entry point.
// judgeroute resolves the presiding judge of each process in a writ (MLE)
// export from the TJSP e-SAJ portal and writes one report per judge.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/judgeroute/cmd"
	"github.com/otherjamesbrown/judgeroute/pkg/buildinfo"
)

// Global flags.
var (
	cfgFile      string
	outputFormat string
	debug        bool
	logFormat    string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "judgeroute",
	Short: "Route writ exports to the judge of each process",
	Long: `judgeroute reads a writ (MLE) export, looks up the presiding judge of every
process on the TJSP e-SAJ portal, and writes one report per judge.

Requests are strictly sequential and paced. Runs are checkpointed after
every record, so an interrupted extraction resumes where it stopped.

COMMON WORKFLOW:
  judgeroute extract mles.csv              Resolve judges (Ctrl-C pauses)
  judgeroute extract --resume latest       Continue a paused run
  judgeroute status latest --records       See what needs review
  judgeroute override latest -i            Fill in judges by hand
  judgeroute report latest                 Write one PDF per judge

DISCOVERY:
  judgeroute <command> --help              Flags and examples for any command
  judgeroute normalize <number>            Check how a number is queried
  judgeroute config show                   Effective configuration`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Version command flags.
var versionOutput string

// versionCmd prints version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long: `Print the version, commit hash, and build time of judgeroute.

Examples:
  judgeroute version
  judgeroute version --output json`,
	RunE: func(c *cobra.Command, args []string) error {
		info := buildinfo.Get()
		out := c.OutOrStdout()
		format := versionOutput
		if format == "" {
			format = outputFormat
		}
		switch format {
		case "json":
			return writeJSON(out, info)
		case "yaml":
			return writeYAML(out, info)
		default:
			fmt.Fprintf(out, "%s %s\n", info.Name, buildinfo.String())
			fmt.Fprintf(out, "  go:       %s\n", info.GoVersion)
			fmt.Fprintf(out, "  platform: %s\n", info.Platform)
			return nil
		}
	},
}

// completionCmd generates shell completion scripts.
var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate shell completion scripts",
	Long: `Generate shell completion scripts for judgeroute.

Bash:
  $ source <(judgeroute completion bash)

Zsh:
  $ judgeroute completion zsh > "${fpath[1]}/_judgeroute"

Fish:
  $ judgeroute completion fish | source

PowerShell:
  PS> judgeroute completion powershell | Out-String | Invoke-Expression
`,
	DisableFlagsInUseLine: true,
	ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
	Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	RunE: func(c *cobra.Command, args []string) error {
		out := c.OutOrStdout()
		switch args[0] {
		case "bash":
			return rootCmd.GenBashCompletion(out)
		case "zsh":
			return rootCmd.GenZshCompletion(out)
		case "fish":
			return rootCmd.GenFishCompletion(out, true)
		case "powershell":
			return rootCmd.GenPowerShellCompletionWithDesc(out)
		}
		return nil
	},
}

func init() {
	// Global flags.
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.judgeroute/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "", "output format: text, json, yaml")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format: console, json")

	rootCmd.AddGroup(
		&cobra.Group{ID: "run", Title: "Extraction:"},
		&cobra.Group{ID: "review", Title: "Review & Reports:"},
		&cobra.Group{ID: "setup", Title: "Setup:"},
	)

	// One set of dependencies is shared so the metrics registry and config
	// are loaded once per process.
	deps := cmd.DefaultDeps()

	// Extraction
	extractCmd := cmd.NewExtractCommand(deps)
	extractCmd.GroupID = "run"
	rootCmd.AddCommand(extractCmd)

	statusCmd := cmd.NewStatusCommand(deps)
	statusCmd.GroupID = "run"
	rootCmd.AddCommand(statusCmd)

	resetCmd := cmd.NewResetCommand(deps)
	resetCmd.GroupID = "run"
	rootCmd.AddCommand(resetCmd)

	// Review & Reports
	overrideCmd := cmd.NewOverrideCommand(deps)
	overrideCmd.GroupID = "review"
	rootCmd.AddCommand(overrideCmd)

	reportCmd := cmd.NewReportCommand(deps)
	reportCmd.GroupID = "review"
	rootCmd.AddCommand(reportCmd)

	normalizeCmd := cmd.NewNormalizeCommand(deps)
	normalizeCmd.GroupID = "review"
	rootCmd.AddCommand(normalizeCmd)

	// Setup
	configCmd := cmd.NewConfigCommand(deps)
	configCmd.GroupID = "setup"
	rootCmd.AddCommand(configCmd)

	completionCmd.GroupID = "setup"
	rootCmd.AddCommand(completionCmd)

	versionCmd.GroupID = "setup"
	versionCmd.Flags().StringVar(&versionOutput, "format", "", "output format: text, json, yaml")
	rootCmd.AddCommand(versionCmd)
}

func main() {
	// SIGINT and SIGTERM cancel the context; a running extraction pauses,
	// writes its checkpoint and exits cleanly.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
