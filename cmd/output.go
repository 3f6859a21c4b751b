package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/osteele/slurm-watcher/internal/browse"
	"github.com/osteele/slurm-watcher/internal/jobs"
)

type jobRow struct {
	Group      string `json:"group"`
	JobID      string `json:"jobID"`
	RunningDir string `json:"runningDir"`
	ScriptFile string `json:"scriptFile"`
	Status     string `json:"status"`
	Time       string `json:"time"`
	Comment    string `json:"comment"`
}

func printJSON(w io.Writer, entries []jobs.Entry) error {
	rows := make([]jobRow, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, jobRow{
			Group:      e.Group,
			JobID:      e.Job.JobID,
			RunningDir: e.Job.RunningDir,
			ScriptFile: e.Job.ScriptFile,
			Status:     e.Job.Status,
			Time:       e.Job.Time,
			Comment:    e.Job.Comment,
		})
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rows)
}

func printListing(w io.Writer, dir string, entries []browse.Entry) {
	fmt.Fprintf(w, "%s:\n", dir)
	for _, e := range entries {
		fmt.Fprintf(w, "  %s\n", e.Name)
	}
}

// printOutput writes command output, adding a final newline if missing
func printOutput(w io.Writer, out string) {
	if out == "" {
		return
	}
	fmt.Fprint(w, out)
	if !strings.HasSuffix(out, "\n") {
		fmt.Fprintln(w)
	}
}
