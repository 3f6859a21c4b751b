package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "List saved accounts",
	Long: `List the accounts saved after successful connections. The index or
login@host can be passed to --account.`,
	Args: cobra.NoArgs,
	RunE: runAccounts,
}

var bookmarkCmd = &cobra.Command{
	Use:   "bookmark",
	Short: "Manage local directory bookmarks",
}

var bookmarkListCmd = &cobra.Command{
	Use:   "list",
	Short: "List local directory bookmarks",
	Args:  cobra.NoArgs,
	RunE:  runBookmarkList,
}

var bookmarkAddCmd = &cobra.Command{
	Use:   "add [dir]",
	Short: "Bookmark a local directory (default: the current one)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runBookmarkAdd,
}

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Export, import or locate the saved state",
	Long: `The state file holds accounts, buttons and bookmarks. Export writes
it to another file; import merges a file into it, replacing only the
sections present in that file.`,
}

var stateExportCmd = &cobra.Command{
	Use:   "export <file>",
	Short: "Write the saved state to a file",
	Args:  cobra.ExactArgs(1),
	RunE:  runStateExport,
}

var stateImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Merge a state file into the saved state",
	Args:  cobra.ExactArgs(1),
	RunE:  runStateImport,
}

var statePathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the location of the state file",
	Args:  cobra.NoArgs,
	RunE:  runStatePath,
}

func init() {
	rootCmd.AddCommand(accountsCmd)
	rootCmd.AddCommand(bookmarkCmd)
	bookmarkCmd.AddCommand(bookmarkListCmd)
	bookmarkCmd.AddCommand(bookmarkAddCmd)
	rootCmd.AddCommand(stateCmd)
	stateCmd.AddCommand(stateExportCmd)
	stateCmd.AddCommand(stateImportCmd)
	stateCmd.AddCommand(statePathCmd)
}

func runAccounts(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	accounts := a.engine.Accounts()
	if len(accounts) == 0 {
		fmt.Println("No saved accounts")
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "#\tLOGIN\tHOST\tPORT\tJOB MANAGER DIR\tPASSWORD")
	for i, acct := range accounts {
		saved := "no"
		if acct.Password != "" {
			saved = "saved"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\t%s\n", i, acct.Login, acct.Host, acct.Port, acct.JobManagerDir, saved)
	}
	w.Flush()
	return nil
}

func runBookmarkList(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	for _, p := range a.engine.Bookmarks() {
		fmt.Println(p)
	}
	return nil
}

func runBookmarkAdd(cmd *cobra.Command, args []string) error {
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
	added, err := a.engine.AddBookmark()
	if err != nil {
		return err
	}
	if added {
		fmt.Printf("Bookmarked %s\n", a.engine.LocalDir())
	} else {
		fmt.Printf("%s is already bookmarked\n", a.engine.LocalDir())
	}
	return nil
}

func runStateExport(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.engine.ExportState(args[0]); err != nil {
		return err
	}
	fmt.Printf("Exported state to %s\n", args[0])
	return nil
}

func runStateImport(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.engine.ImportState(args[0]); err != nil {
		return err
	}
	fmt.Printf("Imported %s into %s\n", args[0], a.store.Path())
	return nil
}

func runStatePath(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	fmt.Println(a.store.Path())
	return nil
}
