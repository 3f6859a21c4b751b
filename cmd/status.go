package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/osteele/slurm-watcher/internal/db"
	"github.com/osteele/slurm-watcher/internal/jobs"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the job table reported by the job manager",
	Long: `Connect, run the job manager's status helper and print the job table.

The filter matches job ID, running directory, script file and comment
(case-sensitive). With --cached the last table fetched for the account
is printed without connecting.

Examples:
  slurm-watcher status
  slurm-watcher status --filter equilibration
  slurm-watcher status -a alice@cluster --cached`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

var (
	statusFilter string
	statusCached bool
	statusJSON   bool
)

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().StringVarP(&statusFilter, "filter", "f", "", "Only show jobs containing this text")
	statusCmd.Flags().BoolVar(&statusCached, "cached", false, "Print the last fetched table without connecting")
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Print the table as JSON")
}

func runStatus(cmd *cobra.Command, args []string) error {
	if statusCached {
		return runCachedStatus()
	}
	return withConnection(func(ctx context.Context, a *app) error {
		snap, err := a.engine.RefreshJobs(ctx)
		if err != nil {
			return err
		}
		return printSnapshot(os.Stdout, snap, statusFilter)
	})
}

func runCachedStatus() error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	acct, err := a.selectAccount()
	if err != nil {
		return err
	}
	snap, fetchedAt, err := a.engine.CachedJobs(acct)
	if err != nil {
		return fmt.Errorf("load cached table: %w", err)
	}
	if snap == nil {
		fmt.Printf("No cached job table for %s\n", acct)
		return nil
	}
	age := int64(time.Since(fetchedAt).Seconds())
	fmt.Fprintf(os.Stderr, "Cached %s ago (%s)\n", db.FormatDuration(age), fetchedAt.Format("2006-01-02 15:04:05"))
	return printSnapshot(os.Stdout, snap, statusFilter)
}

func printSnapshot(w io.Writer, snap *jobs.Snapshot, filter string) error {
	entries := jobs.Filter(snap, filter)
	if statusJSON {
		return printJSON(w, entries)
	}
	if len(entries) == 0 {
		fmt.Fprintln(w, "No jobs")
		return nil
	}
	printEntries(w, entries)
	return nil
}

func printEntries(w io.Writer, entries []jobs.Entry) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "GROUP\tJOB ID\tSTATUS\tTIME\tSCRIPT\tDIRECTORY\tCOMMENT")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			e.Group, e.Job.JobID, e.Job.Status, e.Job.Time, e.Job.ScriptFile, e.Job.RunningDir, truncate(e.Job.Comment, 40))
	}
	tw.Flush()
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
