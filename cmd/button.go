package cmd

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/osteele/slurm-watcher/internal/buttons"
	"github.com/spf13/cobra"
)

var buttonCmd = &cobra.Command{
	Use:   "button",
	Short: "List, edit and run saved command buttons",
	Long: `Buttons are saved command templates in three families:

  remote     runs on the cluster in the chosen remote directory
  local      runs on this machine
  commander  runs on this machine in the chosen local directory

"$1" in a template is replaced by the selected file: the bare name for
remote and local buttons, the full local path for commander buttons.
Local and commander buttons are split into arguments and started without
a shell, and only when allow_local_exec is enabled in the config file.`,
}

var buttonListCmd = &cobra.Command{
	Use:   "list [family]",
	Short: "List buttons",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runButtonList,
}

var buttonSetCmd = &cobra.Command{
	Use:   "set <family> <slot> <label> <command>",
	Short: "Store a command in a button slot",
	Long: `Store a command template in a button slot. An empty command clears
the slot.

Example:
  slurm-watcher button set remote 0 tail 'tail -n 50 $1'`,
	Args: cobra.ExactArgs(4),
	RunE: runButtonSet,
}

var buttonRunCmd = &cobra.Command{
	Use:   "run <family> <slot> [file]",
	Short: "Run a button",
	Long: `Run a button. Remote buttons connect and run in --dir; local buttons
run in --dir on this machine (default: the current directory).

Examples:
  slurm-watcher button run remote 0 --dir /scratch/alice/run1 slurm.out
  slurm-watcher button run commander 3 --dir ~/results model.pdb`,
	Args: cobra.RangeArgs(2, 3),
	RunE: runButtonRun,
}

var buttonDir string

func init() {
	rootCmd.AddCommand(buttonCmd)
	buttonCmd.AddCommand(buttonListCmd)
	buttonCmd.AddCommand(buttonSetCmd)
	buttonCmd.AddCommand(buttonRunCmd)

	buttonRunCmd.Flags().StringVar(&buttonDir, "dir", "", "Directory to run in")
}

func parseSlot(family, slot string) (buttons.Family, int, error) {
	f, err := buttons.ParseFamily(family)
	if err != nil {
		return 0, 0, err
	}
	index, err := strconv.Atoi(slot)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid slot %q", slot)
	}
	return f, index, nil
}

func runButtonList(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	families := buttons.Families
	if len(args) == 1 {
		f, err := buttons.ParseFamily(args[0])
		if err != nil {
			return err
		}
		families = []buttons.Family{f}
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "FAMILY\tSLOT\tLABEL\tCOMMAND")
	for _, f := range families {
		for i, t := range a.engine.Buttons(f) {
			if t.IsEmpty() && t.Label == "" {
				continue
			}
			fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", f, i, t.Label, t.Body)
		}
	}
	w.Flush()
	return nil
}

func runButtonSet(cmd *cobra.Command, args []string) error {
	f, index, err := parseSlot(args[0], args[1])
	if err != nil {
		return err
	}
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.engine.SetButton(f, index, args[2], args[3]); err != nil {
		return err
	}
	fmt.Printf("Saved %s button %d\n", f, index)
	return nil
}

func runButtonRun(cmd *cobra.Command, args []string) error {
	f, index, err := parseSlot(args[0], args[1])
	if err != nil {
		return err
	}
	files := args[2:]

	run := func(ctx context.Context, a *app) error {
		if f.IsLocal() {
			if buttonDir != "" {
				if err := a.engine.SetLocalDir(buttonDir); err != nil {
					return err
				}
			}
		} else {
			a.engine.SetRemoteDir(buttonDir)
		}
		res, err := a.engine.RunButton(ctx, f, index, files...)
		printOutput(os.Stdout, res.Output)
		return err
	}

	if f.IsLocal() {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()
		return run(context.Background(), a)
	}
	return withConnection(run)
}
