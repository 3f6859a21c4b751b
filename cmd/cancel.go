package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var cancelCmd = &cobra.Command{
	Use:   "cancel <job-id>...",
	Short: "Cancel one or more jobs with scancel",
	Long: `Cancel jobs through the scheduler. The jobs stay in the table until
the scheduler reports their new status.

Examples:
  slurm-watcher cancel 4711
  slurm-watcher cancel 4711 4712`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCancel,
}

var forgetCmd = &cobra.Command{
	Use:   "forget <job-id>...",
	Short: "Remove jobs from the job manager's records",
	Long: `Run the job manager's remove helper for each job so it no longer
appears in the status table.

Example:
  slurm-watcher forget 4711`,
	Args: cobra.MinimumNArgs(1),
	RunE: runForget,
}

func init() {
	rootCmd.AddCommand(cancelCmd)
	rootCmd.AddCommand(forgetCmd)
}

func runCancel(cmd *cobra.Command, args []string) error {
	return withConnection(func(ctx context.Context, a *app) error {
		return eachJob(args, "Cancelling", func(id string) (string, error) {
			return a.engine.CancelJob(ctx, id)
		})
	})
}

func runForget(cmd *cobra.Command, args []string) error {
	return withConnection(func(ctx context.Context, a *app) error {
		return eachJob(args, "Forgetting", func(id string) (string, error) {
			return a.engine.ForgetJob(ctx, id)
		})
	})
}

// eachJob applies fn to every job ID, collecting failures
func eachJob(ids []string, verb string, fn func(id string) (string, error)) error {
	var errors []string
	for _, id := range ids {
		fmt.Printf("%s job %s...\n", verb, id)
		out, err := fn(id)
		printOutput(os.Stdout, out)
		if err != nil {
			errors = append(errors, fmt.Sprintf("job %s: %v", id, err))
			continue
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("errors: %s", strings.Join(errors, "; "))
	}
	return nil
}
