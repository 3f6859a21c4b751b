package cmd

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/osteele/slurm-watcher/internal/tui"
	"github.com/spf13/cobra"
)

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Interactive terminal UI for watching jobs",
	Long: `Connect to the cluster and launch an interactive terminal UI.

The TUI shows:
  - Top panel: the job table reported by the job manager
  - Lower left: the remote directory of the selected job, or the local
    directory (Tab switches)
  - Lower right: output of the last command

Keyboard shortcuts:
  Up/Down    Move the highlight
  Tab        Switch panel
  Enter      Browse the job's directory / enter a directory
  /          Filter jobs (Esc clears)
  s          Query the job manager
  c          scancel the highlighted job
  x          Forget the highlighted job
  d          Download the highlighted remote file
  !          Run a command in the remote directory
  1-9, 0     Run a button
  b          Bookmark the local directory
  ?          Help
  Ctrl-C/q   Quit
  Ctrl-Z     Suspend (resume with 'fg')`,
	Args: cobra.NoArgs,
	RunE: runTUI,
}

func init() {
	rootCmd.AddCommand(tuiCmd)
}

func runTUI(cmd *cobra.Command, args []string) error {
	return withConnection(func(ctx context.Context, a *app) error {
		opts := tui.ModelOptions{}
		if a.cfg.SyncInterval > 0 {
			opts.SyncInterval = time.Duration(a.cfg.SyncInterval) * time.Second
		}

		model := tui.NewModel(a.engine, opts)

		p := tea.NewProgram(
			model,
			tea.WithAltScreen(),
		)

		if _, err := p.Run(); err != nil {
			return fmt.Errorf("run TUI: %w", err)
		}
		return nil
	})
}
