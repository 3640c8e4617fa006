package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/No1412lee/il2cpp-plus/internal/repository"
)

var (
	runsMode  string
	runsLimit int
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect recorded scan runs",
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent runs, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		repos, err := openRepositories(cmd)
		if err != nil {
			return err
		}
		defer repos.Close()

		runs, err := repos.Scan.ListRuns(cmd.Context(), runsMode, runsLimit)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "RUN\tMODE\tSTATUS\tREPORTED\tWORKERS\tDURATION\tCREATED")
		for _, r := range runs {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%v\t%s\n",
				r.RunID, r.Mode, r.Status, r.Reported, r.Workers,
				time.Duration(r.DurationMs)*time.Millisecond, r.CreatedAt.Format(time.RFC3339))
		}
		return w.Flush()
	},
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show one run and its class histogram",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		repos, err := openRepositories(cmd)
		if err != nil {
			return err
		}
		defer repos.Close()

		run, err := repos.Scan.GetRun(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		counts, err := repos.Scan.GetClassCounts(cmd.Context(), run.RunID)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Run:        %s (%s)\n", run.RunID, run.Status)
		if run.StatusInfo != "" {
			fmt.Fprintf(out, "Info:       %s\n", run.StatusInfo)
		}
		fmt.Fprintf(out, "Mode:       %s\n", run.Mode)
		fmt.Fprintf(out, "Snapshot:   %s\n", run.Snapshot)
		if run.Filter != "" {
			fmt.Fprintf(out, "Filter:     %s\n", run.Filter)
		}
		fmt.Fprintf(out, "Reported:   %d (processed %d, discovered %d, stolen %d)\n",
			run.Reported, run.Processed, run.Discovered, run.Stolen)
		if run.ReportURL != "" {
			fmt.Fprintf(out, "Report:     %s\n", run.ReportURL)
		}

		w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "\nCLASS\tCATEGORY\tCOUNT\tPERCENT")
		for _, c := range counts {
			fmt.Fprintf(w, "%s\t%s\t%d\t%.2f%%\n", c.Class, c.Category, c.Count, c.Percent)
		}
		return w.Flush()
	},
}

func openRepositories(cmd *cobra.Command) (*repository.Repositories, error) {
	dbCfg := cfg.Database
	dbCfg.Enabled = true
	repos, err := repository.Open(cmd.Context(), &dbCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return repos, nil
}

func init() {
	rootCmd.AddCommand(runsCmd)
	runsCmd.AddCommand(runsListCmd, runsShowCmd)

	runsListCmd.Flags().StringVarP(&runsMode, "mode", "m", "", "Only runs of this mode")
	runsListCmd.Flags().IntVar(&runsLimit, "limit", 20, "Maximum number of runs, 0 for all")
}
