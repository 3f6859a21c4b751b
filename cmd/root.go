package cmd

import (
	"os"

	"github.com/osteele/slurm-watcher/internal/config"
	"github.com/spf13/cobra"
)

var (
	accountFlag  string
	jobDirFlag   string
	logLevelFlag string
)

var rootCmd = &cobra.Command{
	Use:   "slurm-watcher",
	Short: "Monitor and control Slurm jobs on a remote cluster",
	Long: `Slurm Watcher connects to a cluster login node over SSH, shows the
job table reported by the job manager helper, cancels or forgets jobs,
browses remote and local directories, downloads files and runs saved
command buttons.

Accounts are remembered after the first successful connection and can be
selected with --account by index, login@host or host. An account that is
not known yet can be given as login@host[:port] together with --jm-dir.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	// If no args provided, check config for default command
	if len(os.Args) == 1 {
		cfg, _ := config.Load()
		if cfg != nil && cfg.DefaultCommand != "" && cfg.DefaultCommand != "help" {
			// Insert the default command as the first argument
			os.Args = append(os.Args, cfg.DefaultCommand)
		}
	}
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&accountFlag, "account", "a", "", "Account to use (index, login@host[:port] or host; default: first saved account)")
	rootCmd.PersistentFlags().StringVar(&jobDirFlag, "jm-dir", "", "Remote job manager directory for a new account")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "Log level (debug, info, warn, error); overrides the config file")
}
