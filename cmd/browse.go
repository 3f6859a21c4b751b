package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var lsCmd = &cobra.Command{
	Use:   "ls [remote-dir]",
	Short: "List a remote directory",
	Long: `List a remote directory with ls -p. Directories end with "/".

With --job the running directory of that job is listed instead.

Examples:
  slurm-watcher ls /scratch/alice/run1
  slurm-watcher ls --job 4711`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLs,
}

var llsCmd = &cobra.Command{
	Use:   "lls [local-dir]",
	Short: "List a local directory",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runLls,
}

var downloadCmd = &cobra.Command{
	Use:   "download <remote-dir> <file>...",
	Short: "Download files into the current directory",
	Long: `Copy files from a remote directory into the local working directory
over SFTP.

Example:
  slurm-watcher download /scratch/alice/run1 final.pdb`,
	Args: cobra.MinimumNArgs(2),
	RunE: runDownload,
}

var execCmd = &cobra.Command{
	Use:   "exec [--dir <remote-dir>] <command>...",
	Short: "Run a command on the cluster",
	Long: `Run a shell command on the cluster and print its output. With --dir
the command runs after changing to that directory.

Example:
  slurm-watcher exec --dir /scratch/alice/run1 tail -n 20 slurm.out`,
	Args: cobra.MinimumNArgs(1),
	RunE: runExec,
}

var (
	lsJob   string
	execDir string
)

func init() {
	rootCmd.AddCommand(lsCmd)
	rootCmd.AddCommand(llsCmd)
	rootCmd.AddCommand(downloadCmd)
	rootCmd.AddCommand(execCmd)

	lsCmd.Flags().StringVar(&lsJob, "job", "", "List the running directory of this job")
	execCmd.Flags().StringVar(&execDir, "dir", "", "Remote directory to run in")
	execCmd.Flags().SetInterspersed(false)
}

func runLs(cmd *cobra.Command, args []string) error {
	return withConnection(func(ctx context.Context, a *app) error {
		if lsJob != "" {
			if _, err := a.engine.RefreshJobs(ctx); err != nil {
				return err
			}
			entries, err := a.engine.SelectJob(ctx, lsJob)
			if err != nil {
				return err
			}
			printListing(os.Stdout, a.engine.RemoteDir(), entries)
			return nil
		}

		dir := "~"
		if len(args) == 1 {
			dir = args[0]
		}
		a.engine.SetRemoteDir(dir)
		entries, err := a.engine.ListRemote(ctx)
		if err != nil {
			return err
		}
		printListing(os.Stdout, dir, entries)
		return nil
	})
}

func runLls(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if len(args) == 1 {
		if err := a.engine.SetLocalDir(args[0]); err != nil {
			return err
		}
	}
	entries, err := a.engine.ListLocal()
	if err != nil {
		return err
	}
	printListing(os.Stdout, a.engine.LocalDir(), entries)
	return nil
}

func runDownload(cmd *cobra.Command, args []string) error {
	return withConnection(func(ctx context.Context, a *app) error {
		a.engine.SetRemoteDir(args[0])
		var errors []string
		for _, name := range args[1:] {
			dctx, done := withDownloadBar(ctx, name)
			localPath, n, err := a.engine.Download(dctx, name)
			done()
			if err != nil {
				errors = append(errors, fmt.Sprintf("%s: %v", name, err))
				continue
			}
			fmt.Printf("Downloaded %s (%d bytes)\n", localPath, n)
		}
		if len(errors) > 0 {
			return fmt.Errorf("errors: %s", strings.Join(errors, "; "))
		}
		return nil
	})
}

func runExec(cmd *cobra.Command, args []string) error {
	return withConnection(func(ctx context.Context, a *app) error {
		a.engine.SetRemoteDir(execDir)
		out, err := a.engine.RunCommand(ctx, strings.Join(args, " "))
		printOutput(os.Stdout, out)
		return err
	})
}
