package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/osteele/slurm-watcher/internal/db"
	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recently executed commands",
	Long: `Show commands run through cancel, forget, exec and buttons, newest
first.

Examples:
  slurm-watcher history
  slurm-watcher history --limit 100
  slurm-watcher history --cleanup 30   # Delete entries older than 30 days`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

var (
	historyLimit   int
	historyCleanup int
)

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().IntVar(&historyLimit, "limit", 50, "Limit results")
	historyCmd.Flags().IntVar(&historyCleanup, "cleanup", 0, "Delete entries older than N days")
}

func runHistory(cmd *cobra.Command, args []string) error {
	database, err := db.Open()
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer database.Close()

	if historyCleanup > 0 {
		deleted, err := db.CleanupOld(database, historyCleanup)
		if err != nil {
			return fmt.Errorf("cleanup: %w", err)
		}
		fmt.Printf("Deleted %d entries older than %d days\n", deleted, historyCleanup)
		return nil
	}

	entries, err := db.ListHistory(database, "", historyLimit)
	if err != nil {
		return fmt.Errorf("list history: %w", err)
	}
	if len(entries) == 0 {
		fmt.Println("No commands recorded")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tACCOUNT\tKIND\tDIR\tCOMMAND\tERROR")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			time.Unix(e.RanAt, 0).Format("01-02 15:04"),
			e.Account, e.Family, e.Dir, truncate(e.Command, 60), truncate(e.ErrorMessage, 40))
	}
	w.Flush()
	return nil
}
